package bytecode

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// ModuleName is the name given to top-level code units.
const ModuleName = "<module>"

// LineStart maps the first instruction of a source line to that line.
type LineStart struct {
	Offset int // Offset in the code section
	Line   int // Source line number (1-based)
}

// CodeUnit is one compiled, nameable block of instructions: a function body
// or a module's top level. The instruction stream is immutable once the unit
// has been built.
type CodeUnit struct {
	Name      string // Declared name ("<module>" for top-level code)
	Filename  string // Source file the unit was compiled from
	FirstLine int    // Line of the definition
	ArgCount  int    // Number of parameters; they occupy the first VarNames slots
	Module    bool   // True for top-level code

	// Code section
	Code []byte

	// Constant pool, referenced by OpLoadConst and OpMakeFunction
	Consts []Value

	// VarNames holds local slot names, parameters first (OpLoadLocal/OpStoreLocal).
	VarNames []string

	// Names holds global and module-level names (OpLoadName/OpStoreName/OpLoadGlobal/OpStoreGlobal).
	Names []string

	// Lines is the line-start table in increasing offset order.
	Lines []LineStart

	lineStarts map[int]bool
}

// NewCodeUnit creates an empty function code unit.
func NewCodeUnit(name, filename string, firstLine int) *CodeUnit {
	return &CodeUnit{
		Name:      name,
		Filename:  filename,
		FirstLine: firstLine,
		Code:      make([]byte, 0, 64),
	}
}

// NewModule creates an empty top-level code unit.
func NewModule(filename string) *CodeUnit {
	u := NewCodeUnit(ModuleName, filename, 1)
	u.Module = true
	return u
}

// ArgNames returns the declared parameter names.
func (u *CodeUnit) ArgNames() []string {
	if u.ArgCount > len(u.VarNames) {
		return u.VarNames
	}
	return u.VarNames[:u.ArgCount]
}

// AddConst adds a constant to the pool and returns its index.
// Scalar constants are deduplicated; code units never are.
func (u *CodeUnit) AddConst(v Value) int {
	switch v.(type) {
	case nil, int64, string, bool:
		for i, c := range u.Consts {
			if c == v {
				return i
			}
		}
	}
	u.Consts = append(u.Consts, v)
	return len(u.Consts) - 1
}

// LocalSlot returns the slot index for a local name, allocating it if needed.
func (u *CodeUnit) LocalSlot(name string) int {
	for i, n := range u.VarNames {
		if n == name {
			return i
		}
	}
	u.VarNames = append(u.VarNames, name)
	return len(u.VarNames) - 1
}

// HasLocal reports whether name already has a local slot.
func (u *CodeUnit) HasLocal(name string) bool {
	for _, n := range u.VarNames {
		if n == name {
			return true
		}
	}
	return false
}

// NameIndex returns the index for a global/module name, allocating it if needed.
func (u *CodeUnit) NameIndex(name string) int {
	for i, n := range u.Names {
		if n == name {
			return i
		}
	}
	u.Names = append(u.Names, name)
	return len(u.Names) - 1
}

// Emit appends a single-byte opcode to the code section.
func (u *CodeUnit) Emit(op Opcode) int {
	offset := len(u.Code)
	u.Code = append(u.Code, byte(op))
	return offset
}

// EmitArg appends an opcode with its operand. Operands that do not fit in
// 16 bits are split across an OpExtendedArg prefix.
// Returns the offset of the instruction itself (after any prefix).
func (u *CodeUnit) EmitArg(op Opcode, arg int) (int, error) {
	if !op.HasArgument() {
		return 0, fmt.Errorf("opcode %s takes no operand", op)
	}
	wide, err := safecast.Conv[uint32](arg)
	if err != nil {
		return 0, fmt.Errorf("operand %d for %s: %w", arg, op, err)
	}
	if hi := uint16(wide >> 16); hi != 0 {
		u.Code = append(u.Code, byte(OpExtendedArg))
		u.Code = binary.LittleEndian.AppendUint16(u.Code, hi)
	}
	offset := len(u.Code)
	u.Code = append(u.Code, byte(op))
	u.Code = binary.LittleEndian.AppendUint16(u.Code, uint16(wide))
	return offset, nil
}

// EmitJump emits a jump instruction with a placeholder target.
// Returns the offset of the placeholder for later patching.
func (u *CodeUnit) EmitJump(op Opcode) int {
	offset := len(u.Code)
	u.Code = append(u.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1
}

// PatchJump patches a jump's target to the current end of code.
func (u *CodeUnit) PatchJump(placeholderOffset int) error {
	return u.PatchJumpTo(placeholderOffset, len(u.Code))
}

// PatchJumpTo patches a jump to go to a specific offset.
func (u *CodeUnit) PatchJumpTo(placeholderOffset, target int) error {
	t, err := safecast.Conv[uint16](target)
	if err != nil {
		return fmt.Errorf("jump target %d: %w", target, err)
	}
	binary.LittleEndian.PutUint16(u.Code[placeholderOffset:], t)
	return nil
}

// EmitLoop emits an unconditional jump back to loopStart.
func (u *CodeUnit) EmitLoop(loopStart int) error {
	pos := u.EmitJump(OpJump)
	return u.PatchJumpTo(pos, loopStart)
}

// MarkLine records that the next emitted instruction starts source line line.
// Consecutive marks for the same line collapse into one entry.
func (u *CodeUnit) MarkLine(line int) {
	offset := len(u.Code)
	if n := len(u.Lines); n > 0 {
		last := &u.Lines[n-1]
		if last.Offset == offset {
			last.Line = line
			u.lineStarts = nil
			return
		}
		if last.Line == line {
			return
		}
	}
	u.Lines = append(u.Lines, LineStart{Offset: offset, Line: line})
	u.lineStarts = nil
}

// LineStarts returns a copy of the line-start table.
func (u *CodeUnit) LineStarts() []LineStart {
	out := make([]LineStart, len(u.Lines))
	copy(out, u.Lines)
	return out
}

// IsLineStart reports whether offset begins a source line.
func (u *CodeUnit) IsLineStart(offset int) bool {
	if u.lineStarts == nil {
		u.lineStarts = make(map[int]bool, len(u.Lines))
		for _, ls := range u.Lines {
			u.lineStarts[ls.Offset] = true
		}
	}
	return u.lineStarts[offset]
}

// LineAt returns the source line for a bytecode offset.
// Returns FirstLine if no mapping exists.
func (u *CodeUnit) LineAt(offset int) int {
	for i := len(u.Lines) - 1; i >= 0; i-- {
		if u.Lines[i].Offset <= offset {
			return u.Lines[i].Line
		}
	}
	return u.FirstLine
}

// Operand reads the little-endian operand of the instruction at offset.
func (u *CodeUnit) Operand(offset int) uint16 {
	if offset+1+OperandWidth > len(u.Code) {
		return 0
	}
	return binary.LittleEndian.Uint16(u.Code[offset+1:])
}

// CodeLen returns the length of the code section.
func (u *CodeUnit) CodeLen() int {
	return len(u.Code)
}

// Functions returns the code units nested in this unit's constant pool.
func (u *CodeUnit) Functions() []*CodeUnit {
	var out []*CodeUnit
	for _, c := range u.Consts {
		if fn, ok := c.(*CodeUnit); ok {
			out = append(out, fn)
		}
	}
	return out
}
