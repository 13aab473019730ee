package bytecode

import (
	"fmt"
	"strconv"
)

// Value is a runtime value. The VM produces int64, string, bool, nil,
// *Function and *Builtin values.
type Value = any

// Function is a callable value backed by a code unit.
type Function struct {
	Code *CodeUnit
}

// Name returns the function's declared name.
func (f *Function) Name() string {
	return f.Code.Name
}

func (f *Function) String() string {
	return fmt.Sprintf("<function %s>", f.Code.Name)
}

// Builtin is a callable value implemented in Go.
type Builtin struct {
	Name string
	Fn   func(vm *VM, args []Value) (Value, error)
}

func (b *Builtin) String() string {
	return fmt.Sprintf("<builtin %s>", b.Name)
}

// FunctionRef is the snapshot form of a callable value. It carries no
// reference back into the VM.
type FunctionRef struct {
	Name     string `cbor:"name"`
	Filename string `cbor:"file,omitempty"`
	Line     int    `cbor:"line,omitempty"`
	Builtin  bool   `cbor:"builtin,omitempty"`
}

func (r FunctionRef) String() string {
	if r.Builtin {
		return fmt.Sprintf("<builtin %s>", r.Name)
	}
	return fmt.Sprintf("<function %s>", r.Name)
}

// Snapshot returns a detached copy of v that is safe to keep after the VM
// moves on. Scalars are immutable and returned as-is.
func Snapshot(v Value) Value {
	switch x := v.(type) {
	case *Function:
		return FunctionRef{Name: x.Code.Name, Filename: x.Code.Filename, Line: x.Code.FirstLine}
	case *Builtin:
		return FunctionRef{Name: x.Name, Builtin: true}
	default:
		return v
	}
}

// Truthy reports whether v counts as true in a condition.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// Str formats v the way print shows it.
func Str(v Value) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Repr formats v unambiguously (strings are quoted).
func Repr(v Value) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Str(v)
}

// TypeName returns the runtime type name of v.
func TypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case string:
		return "str"
	case *Function:
		return "function"
	case *Builtin:
		return "builtin"
	default:
		return fmt.Sprintf("%T", v)
	}
}
