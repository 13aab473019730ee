package compiler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/uatu/pkg/bytecode"
)

func run(t *testing.T, src string) *bytecode.VM {
	t.Helper()
	unit, err := Compile("t.py", src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	vm := bytecode.NewVM()
	vm.SetOutput(&bytes.Buffer{})
	if _, err := vm.Run(context.Background(), unit); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return vm
}

func global(t *testing.T, vm *bytecode.VM, name string) bytecode.Value {
	t.Helper()
	v, ok := vm.Global(name)
	if !ok {
		t.Fatalf("global %q not bound", name)
	}
	return v
}

func TestCompileAndRunPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]bytecode.Value
	}{
		{
			name: "arithmetic",
			src:  "x = 2 + 3 * 4\ny = (2 + 3) * 4\nz = -7 / 2\nm = 7 % 3",
			want: map[string]bytecode.Value{"x": int64(14), "y": int64(20), "z": int64(-4), "m": int64(1)},
		},
		{
			name: "chained assignment",
			src:  "a = b = 'hi'",
			want: map[string]bytecode.Value{"a": "hi", "b": "hi"},
		},
		{
			name: "augmented assignment",
			src:  "n = 1; n += 4; n *= 3; n -= 1",
			want: map[string]bytecode.Value{"n": int64(14)},
		},
		{
			name: "function call",
			src:  "def f(x):\n    y = x * 2\n    return y\nz = f(3)\n",
			want: map[string]bytecode.Value{"z": int64(6)},
		},
		{
			name: "while loop",
			src:  "i = 0\ntotal = 0\nwhile i < 5:\n    i += 1\n    total += i\n",
			want: map[string]bytecode.Value{"i": int64(5), "total": int64(15)},
		},
		{
			name: "if elif else",
			src:  "def sign(n):\n    if n < 0:\n        return -1\n    elif n == 0:\n        return 0\n    else:\n        return 1\na = sign(-5)\nb = sign(0)\nc = sign(9)\n",
			want: map[string]bytecode.Value{"a": int64(-1), "b": int64(0), "c": int64(1)},
		},
		{
			name: "short circuit",
			src:  "a = 0 or 'x'\nb = 1 and 0\nc = not None\nd = None or None",
			want: map[string]bytecode.Value{"a": "x", "b": int64(0), "c": true, "d": nil},
		},
		{
			name: "global declaration",
			src:  "count = 0\ndef bump():\n    global count\n    count += 1\nbump()\nbump()\n",
			want: map[string]bytecode.Value{"count": int64(2)},
		},
		{
			name: "recursion",
			src:  "def fact(n):\n    if n <= 1:\n        return 1\n    return n * fact(n - 1)\nr = fact(10)\n",
			want: map[string]bytecode.Value{"r": int64(3628800)},
		},
		{
			name: "builtins",
			src:  "s = str(abs(-12)) + '!'\nn = len(s)\nt = True\nf = False",
			want: map[string]bytecode.Value{"s": "12!", "n": int64(3), "t": true, "f": false},
		},
		{
			name: "implicit None return",
			src:  "def noop():\n    pass\nr = noop()\n",
			want: map[string]bytecode.Value{"r": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := run(t, tt.src)
			for name, want := range tt.want {
				if got := global(t, vm, name); got != want {
					t.Errorf("%s = %v (%T), want %v (%T)", name, got, got, want, want)
				}
			}
		})
	}
}

func TestStoreOpcodesByScope(t *testing.T) {
	src := `g = 1
def f(x):
    global g
    y = x
    g = y
`
	unit, err := Compile("t.py", src)
	if err != nil {
		t.Fatal(err)
	}

	if !containsOp(unit, bytecode.OpStoreName) {
		t.Error("module-level assignment should use STORE_NAME")
	}

	fns := unit.Functions()
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	f := fns[0]
	if f.ArgCount != 1 || strings.Join(f.VarNames, ",") != "x,y" {
		t.Errorf("f locals = %v (args %d), want [x y] (args 1)", f.VarNames, f.ArgCount)
	}
	if !containsOp(f, bytecode.OpStoreLocal) {
		t.Error("local assignment should use STORE_LOCAL")
	}
	if !containsOp(f, bytecode.OpStoreGlobal) {
		t.Error("global assignment should use STORE_GLOBAL")
	}
	if containsOp(f, bytecode.OpStoreName) {
		t.Error("function bodies should never use STORE_NAME")
	}
}

func TestLineTable(t *testing.T) {
	src := "def f(x):\n    y = x * 2\n    return y\n"
	_, fn, err := CompileFunction("t.py", src, "f")
	if err != nil {
		t.Fatal(err)
	}
	want := []bytecode.LineStart{{Offset: 0, Line: 2}, {Offset: 10, Line: 3}}
	got := fn.Code.LineStarts()
	if len(got) != len(want) {
		t.Fatalf("LineStarts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LineStarts()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if fn.Code.FirstLine != 1 {
		t.Errorf("FirstLine = %d, want 1", fn.Code.FirstLine)
	}
}

func TestWhileHeadIsLineStart(t *testing.T) {
	src := "i = 0\nwhile i < 3:\n    i += 1\n"
	unit, err := Compile("t.py", src)
	if err != nil {
		t.Fatal(err)
	}
	// Find the backward jump and check its target begins line 2.
	code := unit.Code
	for off := 0; off < len(code); {
		op := bytecode.Opcode(code[off])
		if op == bytecode.OpJump {
			target := int(unit.Operand(off))
			if !unit.IsLineStart(target) || unit.LineAt(target) != 2 {
				t.Errorf("loop target %d is not the start of line 2", target)
			}
			return
		}
		off += op.InstructionLen()
	}
	t.Error("no backward jump emitted")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"return 1\n", "'return' outside function"},
		{"def f():\n    def g():\n        pass\n", "nested function"},
		{"def f(a):\n    global a\n", "parameter and global"},
		{"x = = 1\n", "unexpected token"},
	}

	for _, tt := range tests {
		_, err := Compile("bad.py", tt.src)
		var cerr *Error
		if !errors.As(err, &cerr) {
			t.Errorf("%q: expected *Error, got %v", tt.src, err)
			continue
		}
		if cerr.Filename != "bad.py" {
			t.Errorf("%q: filename = %q", tt.src, cerr.Filename)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: error %q does not mention %q", tt.src, err, tt.want)
		}
	}
}

func TestCompileFunctionMissing(t *testing.T) {
	if _, _, err := CompileFunction("t.py", "x = 1\n", "f"); err == nil {
		t.Error("expected error for missing function")
	}
}

func containsOp(unit *bytecode.CodeUnit, want bytecode.Opcode) bool {
	code := unit.Code
	for off := 0; off < len(code); {
		op := bytecode.Opcode(code[off])
		if op == want {
			return true
		}
		off += op.InstructionLen()
	}
	return false
}
