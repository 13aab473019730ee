package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes below HaveArgument occupy a single byte. Opcodes at or above it are
// followed by a two-byte little-endian operand.
type Opcode byte

// HaveArgument is the first opcode value that carries an operand.
const HaveArgument Opcode = 0x50

// OperandWidth is the number of operand bytes that follow an opcode at or
// above HaveArgument.
const OperandWidth = 2

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd Opcode = 0x10 // Pop two, push sum (or string concatenation)
	OpSub Opcode = 0x11 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x12 // Pop two, push product
	OpDiv Opcode = 0x13 // Pop two, push quotient
	OpMod Opcode = 0x14 // Pop two, push remainder
	OpNeg Opcode = 0x15 // Negate top of stack

	// ========================================================================
	// Comparison and logic (0x20-0x2F)
	// ========================================================================

	OpEq  Opcode = 0x20 // Pop two, push a == b
	OpNe  Opcode = 0x21 // Pop two, push a != b
	OpLt  Opcode = 0x22 // Pop two, push a < b
	OpLe  Opcode = 0x23 // Pop two, push a <= b
	OpGt  Opcode = 0x24 // Pop two, push a > b
	OpGe  Opcode = 0x25 // Pop two, push a >= b
	OpNot Opcode = 0x28 // Logical NOT of top of stack

	// ========================================================================
	// Return (0x30-0x3F)
	// ========================================================================

	OpReturn    Opcode = 0x30 // Return top of stack
	OpReturnNil Opcode = 0x31 // Return None

	// ========================================================================
	// Constants and names (0x50-0x5F), operand = table index
	// ========================================================================

	OpLoadConst   Opcode = 0x50 // Push constant: OpLoadConst <const:u16>
	OpLoadLocal   Opcode = 0x51 // Push local slot: OpLoadLocal <varname:u16>
	OpStoreLocal  Opcode = 0x52 // Pop into local slot: OpStoreLocal <varname:u16>
	OpLoadName    Opcode = 0x53 // Push module-level name: OpLoadName <name:u16>
	OpStoreName   Opcode = 0x54 // Pop into module-level name: OpStoreName <name:u16>
	OpLoadGlobal  Opcode = 0x55 // Push global: OpLoadGlobal <name:u16>
	OpStoreGlobal Opcode = 0x56 // Pop into global: OpStoreGlobal <name:u16>

	// ========================================================================
	// Control flow (0x60-0x6F), operand = absolute target offset
	// ========================================================================

	OpJump        Opcode = 0x60 // Unconditional jump: OpJump <target:u16>
	OpJumpIfFalse Opcode = 0x61 // Pop, jump if falsy: OpJumpIfFalse <target:u16>
	OpJumpIfTrue  Opcode = 0x62 // Pop, jump if truthy: OpJumpIfTrue <target:u16>

	// ========================================================================
	// Calls (0x70-0x7F)
	// ========================================================================

	OpCall         Opcode = 0x70 // Call: OpCall <argc:u16>, pops callee + argc args
	OpMakeFunction Opcode = 0x71 // Push function for code constant: OpMakeFunction <const:u16>

	// ========================================================================
	// Operand extension (0x90)
	// ========================================================================

	// OpExtendedArg supplies the high 16 bits of the next instruction's operand.
	OpExtendedArg Opcode = 0x90
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Human-readable name
	StackPop  int    // How many values popped from stack (-1 = variable)
	StackPush int    // How many values pushed to stack
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0},
	OpPop:  {"POP", 1, 0},
	OpDup:  {"DUP", 1, 2},
	OpSwap: {"SWAP", 2, 2},

	// Arithmetic
	OpAdd: {"ADD", 2, 1},
	OpSub: {"SUB", 2, 1},
	OpMul: {"MUL", 2, 1},
	OpDiv: {"DIV", 2, 1},
	OpMod: {"MOD", 2, 1},
	OpNeg: {"NEG", 1, 1},

	// Comparison
	OpEq:  {"EQ", 2, 1},
	OpNe:  {"NE", 2, 1},
	OpLt:  {"LT", 2, 1},
	OpLe:  {"LE", 2, 1},
	OpGt:  {"GT", 2, 1},
	OpGe:  {"GE", 2, 1},
	OpNot: {"NOT", 1, 1},

	// Return
	OpReturn:    {"RETURN", 1, 0},
	OpReturnNil: {"RETURN_NIL", 0, 0},

	// Names
	OpLoadConst:   {"LOAD_CONST", 0, 1},
	OpLoadLocal:   {"LOAD_LOCAL", 0, 1},
	OpStoreLocal:  {"STORE_LOCAL", 1, 0},
	OpLoadName:    {"LOAD_NAME", 0, 1},
	OpStoreName:   {"STORE_NAME", 1, 0},
	OpLoadGlobal:  {"LOAD_GLOBAL", 0, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 1, 0},

	// Control flow
	OpJump:        {"JUMP", 0, 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1, 0},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 1, 0},

	// Calls
	OpCall:         {"CALL", -1, 1}, // Pops callee + argc args
	OpMakeFunction: {"MAKE_FUNCTION", 0, 1},

	OpExtendedArg: {"EXTENDED_ARG", 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Known reports whether the opcode is defined.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// HasArgument reports whether an operand follows this opcode.
func (op Opcode) HasArgument() bool {
	return op >= HaveArgument
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	if op.HasArgument() {
		return OperandWidth
	}
	return 0
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpIfTrue
}

// IsReturn returns true if this opcode terminates the frame.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnNil
}

// IsStore returns true if this opcode binds a named slot.
func (op Opcode) IsStore() bool {
	return op == OpStoreLocal || op == OpStoreName || op == OpStoreGlobal
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
