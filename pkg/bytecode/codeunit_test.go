package bytecode

import (
	"bytes"
	"testing"
)

func TestEmitArgLittleEndian(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	off, err := u.EmitArg(OpStoreLocal, 0x0102)
	if err != nil {
		t.Fatalf("EmitArg: %v", err)
	}
	if off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}
	want := []byte{byte(OpStoreLocal), 0x02, 0x01}
	if !bytes.Equal(u.Code, want) {
		t.Errorf("Code = % x, want % x", u.Code, want)
	}
	if got := u.Operand(0); got != 0x0102 {
		t.Errorf("Operand(0) = %#x, want 0x0102", got)
	}
}

func TestEmitArgExtended(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	off, err := u.EmitArg(OpLoadConst, 0x30004)
	if err != nil {
		t.Fatalf("EmitArg: %v", err)
	}
	if off != 3 {
		t.Errorf("offset = %d, want 3 (after prefix)", off)
	}
	want := []byte{byte(OpExtendedArg), 0x03, 0x00, byte(OpLoadConst), 0x04, 0x00}
	if !bytes.Equal(u.Code, want) {
		t.Errorf("Code = % x, want % x", u.Code, want)
	}
}

func TestEmitArgRejects(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	if _, err := u.EmitArg(OpAdd, 1); err == nil {
		t.Error("expected error for opcode without operand")
	}
	if _, err := u.EmitArg(OpLoadConst, -1); err == nil {
		t.Error("expected error for negative operand")
	}
}

func TestPatchJump(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	pos := u.EmitJump(OpJumpIfFalse)
	u.Emit(OpNop)
	u.Emit(OpNop)
	if err := u.PatchJump(pos); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
	if got := u.Operand(0); got != 5 {
		t.Errorf("jump target = %d, want 5", got)
	}
}

func TestAddConstDedup(t *testing.T) {
	u := NewModule("t.py")
	a := u.AddConst(int64(3))
	b := u.AddConst("x")
	c := u.AddConst(int64(3))
	if a != c {
		t.Errorf("int constant not deduplicated: %d vs %d", a, c)
	}
	if a == b {
		t.Error("distinct constants share an index")
	}

	f1 := u.AddConst(NewCodeUnit("f", "t.py", 2))
	f2 := u.AddConst(NewCodeUnit("f", "t.py", 2))
	if f1 == f2 {
		t.Error("code units should never be deduplicated")
	}
	if len(u.Functions()) != 2 {
		t.Errorf("Functions() = %d, want 2", len(u.Functions()))
	}
}

func TestSlotsAndNames(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	if u.LocalSlot("x") != 0 || u.LocalSlot("y") != 1 || u.LocalSlot("x") != 0 {
		t.Error("LocalSlot did not allocate stable slots")
	}
	if !u.HasLocal("y") || u.HasLocal("z") {
		t.Error("HasLocal mismatch")
	}
	if u.NameIndex("g") != 0 || u.NameIndex("h") != 1 || u.NameIndex("g") != 0 {
		t.Error("NameIndex did not allocate stable indices")
	}
	u.ArgCount = 1
	if args := u.ArgNames(); len(args) != 1 || args[0] != "x" {
		t.Errorf("ArgNames() = %v, want [x]", args)
	}
}

func TestMarkLine(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	u.MarkLine(2)
	u.MarkLine(3) // replaces line 2, nothing emitted yet
	u.Emit(OpNop)
	u.MarkLine(3) // same line, no new entry
	u.Emit(OpNop)
	u.MarkLine(5)
	u.Emit(OpReturnNil)

	want := []LineStart{{Offset: 0, Line: 3}, {Offset: 2, Line: 5}}
	got := u.LineStarts()
	if len(got) != len(want) {
		t.Fatalf("LineStarts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LineStarts()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	tests := []struct {
		offset int
		start  bool
		line   int
	}{
		{0, true, 3},
		{1, false, 3},
		{2, true, 5},
	}
	for _, tt := range tests {
		if got := u.IsLineStart(tt.offset); got != tt.start {
			t.Errorf("IsLineStart(%d) = %v, want %v", tt.offset, got, tt.start)
		}
		if got := u.LineAt(tt.offset); got != tt.line {
			t.Errorf("LineAt(%d) = %d, want %d", tt.offset, got, tt.line)
		}
	}
}

func TestLineStartsIsCopy(t *testing.T) {
	u := NewCodeUnit("f", "t.py", 1)
	u.MarkLine(1)
	u.Emit(OpNop)
	ls := u.LineStarts()
	ls[0].Line = 99
	if u.LineAt(0) != 1 {
		t.Error("mutating LineStarts() result changed the unit")
	}
}
