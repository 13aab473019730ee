package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleEmpty(t *testing.T) {
	u := NewModule("t.py")

	output := u.Disassemble()

	if !strings.Contains(output, "=== <module> (t.py:1) ===") {
		t.Errorf("Disassembly missing header:\n%s", output)
	}
}

func TestDisassembleSimple(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	u.ArgCount = 1
	u.LocalSlot("x")
	u.LocalSlot("y")
	u.MarkLine(2)
	mustEmit(t, u, OpLoadLocal, 0)
	mustEmit(t, u, OpLoadConst, u.AddConst(int64(2)))
	u.Emit(OpMul)
	mustEmit(t, u, OpStoreLocal, 1)
	u.MarkLine(3)
	mustEmit(t, u, OpLoadLocal, 1)
	u.Emit(OpReturn)

	output := u.Disassemble()

	for _, want := range []string{
		"; Parameters (1): x",
		"; Locals: x, y",
		"LOAD_CONST",
		"STORE_LOCAL    1 ; y",
		"MUL",
		"RETURN",
		"   2  0000",
		"   3  000A",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleNested(t *testing.T) {
	mod := NewModule("t.py")
	fn := NewCodeUnit("helper", "t.py", 4)
	fn.Emit(OpReturnNil)
	mustEmit(t, mod, OpMakeFunction, mod.AddConst(fn))
	mustEmit(t, mod, OpStoreName, mod.NameIndex("helper"))

	output := mod.Disassemble()

	if !strings.Contains(output, "<code helper>") {
		t.Error("Missing code constant display")
	}
	if !strings.Contains(output, "=== helper (t.py:4) ===") {
		t.Error("Missing nested function listing")
	}
	if !strings.Contains(output, "STORE_NAME     0 ; helper") {
		t.Errorf("Missing name annotation:\n%s", output)
	}
}

func TestDisassembleTruncated(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	u.Code = []byte{byte(OpLoadConst), 0x01}

	output := u.Disassemble()

	if !strings.Contains(output, "<truncated>") {
		t.Errorf("expected truncated marker:\n%s", output)
	}
}

func mustEmit(t *testing.T, u *CodeUnit, op Opcode, arg int) {
	t.Helper()
	if _, err := u.EmitArg(op, arg); err != nil {
		t.Fatalf("EmitArg(%s, %d): %v", op, arg, err)
	}
}
