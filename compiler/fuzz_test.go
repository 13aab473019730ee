package compiler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/chazu/uatu/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Basic tokens
		`( ) , : ; + - * / % == != < <= > >= = += -= *=`,
		// Literals
		`42`, `0`, `1_000`, `'hello'`, `"hello"`, `'it\'s'`, `''`,
		// Identifiers and reserved words
		`foo`, `_private`, `def`, `return`, `True`, `False`, `None`,
		// Comments
		"# a comment\nx = 1",
		// Indentation
		"if x:\n    y = 1\nz = 2",
		"def f(a, b):\n\treturn a + b\n",
		// Edge cases
		`'unterminated`, `!`, `1abc`, `\`,
		// Unicode
		`'こんにちは'`, `café = 1`,
		// Empty and whitespace only
		``, `   `, "\t\n\r",
		// Bad dedent
		"if x:\n        y = 1\n    z = 2\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data)
		for i := 0; i < 4*len(data)+100; i++ {
			if l.NextToken().Type == TokenEOF {
				return
			}
		}
		t.Fatalf("lexer did not reach EOF on input %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzCompileAndRun: feed arbitrary scripts through the full pipeline
// (parse -> codegen -> run). Errors are fine, panics are not.
// ---------------------------------------------------------------------------

func FuzzCompileAndRun(f *testing.F) {
	seeds := []string{
		`x = 1`,
		`a = b = 3; c = a + b`,
		"def f(x):\n    y = x * 2\n    return y\nz = f(3)\n",
		"i = 0\nwhile i < 3:\n    i += 1\n",
		"if 1 < 2:\n    x = 'yes'\nelif 2 < 3:\n    x = 'maybe'\nelse:\n    x = 'no'\n",
		"def g():\n    global n\n    n = 5\ng()\n",
		`print(str(abs(-3)))`,
		`x = 1 / 0`,
		`return 1`,
		`def`, `if`, `(`, `)`, `x =`, `= 1`, `1 = x`,
		"def f():\n    def g():\n        pass\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("pipeline panicked on input %q: %v", data, r)
			}
		}()

		unit, err := Compile("fuzz.py", data)
		if err != nil {
			return
		}
		_ = unit.Disassemble()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		vm := bytecode.NewVM()
		vm.SetOutput(io.Discard)
		_, _ = vm.Run(ctx, unit)
	})
}
