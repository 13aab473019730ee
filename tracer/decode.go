package tracer

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/uatu/pkg/bytecode"
)

// Scope says where a pending capture is looked up.
type Scope uint8

const (
	// ScopeLocal resolves against the frame's local bindings. For module
	// frames that is the module namespace.
	ScopeLocal Scope = iota
	// ScopeGlobal resolves against the module namespace.
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeGlobal:
		return "global"
	default:
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
}

// PendingCapture is a variable whose write has been seen in the code but whose
// value is not yet observable.
type PendingCapture struct {
	Name  string
	Scope Scope
}

// DecodeError describes why a window could not be decoded. Offset is absolute
// within the code unit.
type DecodeError struct {
	Offset int
	Op     bytecode.Opcode
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d (%s): %s", e.Offset, e.Op, e.Reason)
}

// Decode walks a window and lists the named stores it contains, in order.
// Any malformed instruction fails the whole window.
func Decode(w Window, unit *bytecode.CodeUnit) ([]PendingCapture, error) {
	var out []PendingCapture
	code := w.Code

	for pos := 0; pos < len(code); {
		op := bytecode.Opcode(code[pos])
		abs := w.Start + pos

		if !op.Known() {
			return nil, &DecodeError{Offset: abs, Op: op, Reason: "unknown opcode"}
		}
		if op == bytecode.OpExtendedArg {
			return nil, &DecodeError{Offset: abs, Op: op, Reason: "extended operands are not supported"}
		}
		if !op.HasArgument() {
			pos++
			continue
		}
		if pos+1+bytecode.OperandWidth > len(code) {
			return nil, &DecodeError{Offset: abs, Op: op, Reason: "truncated operand"}
		}
		arg := int(binary.LittleEndian.Uint16(code[pos+1:]))
		pos += op.InstructionLen()

		var table []string
		scope := ScopeLocal
		switch op {
		case bytecode.OpStoreLocal:
			table = unit.VarNames
		case bytecode.OpStoreName:
			table = unit.Names
		case bytecode.OpStoreGlobal:
			table, scope = unit.Names, ScopeGlobal
		default:
			continue
		}
		if arg >= len(table) {
			return nil, &DecodeError{Offset: abs, Op: op, Reason: fmt.Sprintf("name index %d out of range (%d names)", arg, len(table))}
		}
		out = append(out, PendingCapture{Name: table[arg], Scope: scope})
	}
	return out, nil
}
