package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/uatu/pkg/bytecode"
)

// Error reports every problem found while compiling one source file.
type Error struct {
	Filename string
	Errors   []string // each prefixed with "line N:"
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, strings.Join(e.Errors, "; "))
}

// Compile parses and compiles a script into its module code unit. Function
// bodies are reachable through the unit's constant pool.
func Compile(filename, source string) (*bytecode.CodeUnit, error) {
	p := NewParser(source)
	sf := p.ParseSourceFile(filename)
	if len(p.Errors()) > 0 {
		return nil, &Error{Filename: filename, Errors: p.Errors()}
	}

	c := NewCompiler(filename)
	unit := c.CompileModule(sf)
	if len(c.Errors()) > 0 {
		return nil, &Error{Filename: filename, Errors: c.Errors()}
	}
	return unit, nil
}

// CompileFunction compiles source and returns the first top-level function
// named name, for callers that want to invoke one function directly.
func CompileFunction(filename, source, name string) (*bytecode.CodeUnit, *bytecode.Function, error) {
	unit, err := Compile(filename, source)
	if err != nil {
		return nil, nil, err
	}
	for _, fn := range unit.Functions() {
		if fn.Name == name {
			return unit, &bytecode.Function{Code: fn}, nil
		}
	}
	return nil, nil, fmt.Errorf("%s: no function named %q", filename, name)
}
