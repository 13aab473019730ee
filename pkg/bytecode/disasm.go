package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the unit and every
// function nested in its constant pool.
func (u *CodeUnit) Disassemble() string {
	var sb strings.Builder
	u.disassembleInto(&sb)
	return sb.String()
}

func (u *CodeUnit) disassembleInto(sb *strings.Builder) {
	// Header
	fmt.Fprintf(sb, "; === %s (%s:%d) ===\n", u.Name, u.Filename, u.FirstLine)

	// Parameters
	if u.ArgCount > 0 {
		fmt.Fprintf(sb, "; Parameters (%d): %s\n", u.ArgCount, strings.Join(u.ArgNames(), ", "))
	}

	// Locals
	if len(u.VarNames) > 0 {
		fmt.Fprintf(sb, "; Locals: %s\n", strings.Join(u.VarNames, ", "))
	}
	if len(u.Names) > 0 {
		fmt.Fprintf(sb, "; Names: %s\n", strings.Join(u.Names, ", "))
	}

	sb.WriteString("\n")

	// Constants
	if len(u.Consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range u.Consts {
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, constDisplay(c, 40))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(u.Code) {
		text, n := u.disassembleInstruction(offset)
		marker := "    "
		if u.IsLineStart(offset) {
			marker = fmt.Sprintf("%4d", u.LineAt(offset))
		}
		fmt.Fprintf(sb, "%s  %04X  %s\n", marker, offset, text)
		offset += n
	}

	for _, fn := range u.Functions() {
		sb.WriteString("\n")
		fn.disassembleInto(sb)
	}
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (u *CodeUnit) disassembleInstruction(offset int) (string, int) {
	if offset >= len(u.Code) {
		return "<end of code>", 0
	}

	op := Opcode(u.Code[offset])
	if !op.HasArgument() {
		return op.String(), 1
	}
	if offset+1+OperandWidth > len(u.Code) {
		return fmt.Sprintf("%s <truncated>", op), len(u.Code) - offset
	}
	arg := int(binary.LittleEndian.Uint16(u.Code[offset+1:]))
	n := op.InstructionLen()

	switch op {
	case OpLoadConst, OpMakeFunction:
		if arg < len(u.Consts) {
			return fmt.Sprintf("%-14s %d ; %s", op, arg, constDisplay(u.Consts[arg], 20)), n
		}
	case OpLoadLocal, OpStoreLocal:
		if arg < len(u.VarNames) {
			return fmt.Sprintf("%-14s %d ; %s", op, arg, u.VarNames[arg]), n
		}
	case OpLoadName, OpStoreName, OpLoadGlobal, OpStoreGlobal:
		if arg < len(u.Names) {
			return fmt.Sprintf("%-14s %d ; %s", op, arg, u.Names[arg]), n
		}
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("%-14s %04X", op, arg), n
	}
	return fmt.Sprintf("%-14s %d", op, arg), n
}

func constDisplay(c Value, limit int) string {
	switch v := c.(type) {
	case *CodeUnit:
		return fmt.Sprintf("<code %s>", v.Name)
	case string:
		display := v
		// Truncate long strings for readability
		if len(display) > limit {
			display = display[:limit-3] + "..."
		}
		return fmt.Sprintf("%q", display)
	default:
		return Str(v)
	}
}
