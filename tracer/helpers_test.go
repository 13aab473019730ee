package tracer

import (
	"testing"

	"github.com/chazu/uatu/pkg/bytecode"
)

// fakeFrame is a hand-driven execution context.
type fakeFrame struct {
	unit    *bytecode.CodeUnit
	line    int
	offset  int
	locals  map[string]bytecode.Value
	globals map[string]bytecode.Value

	callerLine int
	callerFile string
}

func newFakeFrame(unit *bytecode.CodeUnit) *fakeFrame {
	return &fakeFrame{
		unit:    unit,
		line:    unit.FirstLine,
		offset:  -1,
		locals:  make(map[string]bytecode.Value),
		globals: make(map[string]bytecode.Value),
	}
}

func (f *fakeFrame) Line() int                { return f.line }
func (f *fakeFrame) Offset() int              { return f.offset }
func (f *fakeFrame) Code() *bytecode.CodeUnit { return f.unit }

func (f *fakeFrame) Local(name string) (bytecode.Value, bool) {
	v, ok := f.locals[name]
	return v, ok
}

func (f *fakeFrame) Global(name string) (bytecode.Value, bool) {
	v, ok := f.globals[name]
	return v, ok
}

func (f *fakeFrame) Caller() (int, string, bool) {
	return f.callerLine, f.callerFile, f.callerFile != ""
}

// at moves the frame to the line starting at offset.
func (f *fakeFrame) at(offset int) *fakeFrame {
	f.offset = offset
	f.line = f.unit.LineAt(offset)
	return f
}

func emitArg(t *testing.T, u *bytecode.CodeUnit, op bytecode.Opcode, arg int) int {
	t.Helper()
	off, err := u.EmitArg(op, arg)
	if err != nil {
		t.Fatalf("EmitArg(%s, %d): %v", op, arg, err)
	}
	return off
}

// fixtureUnit builds a two-line unit:
//
//	line 1 (offset 0):  a = 1; m = 1      STORE_LOCAL a, STORE_NAME m
//	line 2 (offset 12): g = 1; b = a      STORE_GLOBAL g, STORE_LOCAL b
func fixtureUnit(t *testing.T) *bytecode.CodeUnit {
	t.Helper()
	u := bytecode.NewCodeUnit("fixture", "fixture.py", 1)
	u.VarNames = []string{"a", "b"}
	u.Names = []string{"g", "m"}
	one := u.AddConst(int64(1))

	u.MarkLine(1)
	emitArg(t, u, bytecode.OpLoadConst, one)
	emitArg(t, u, bytecode.OpStoreLocal, 0)
	emitArg(t, u, bytecode.OpLoadConst, one)
	emitArg(t, u, bytecode.OpStoreName, 1)

	u.MarkLine(2)
	emitArg(t, u, bytecode.OpLoadConst, one)
	emitArg(t, u, bytecode.OpStoreGlobal, 0)
	emitArg(t, u, bytecode.OpLoadLocal, 0)
	emitArg(t, u, bytecode.OpStoreLocal, 1)
	u.Emit(bytecode.OpReturnNil)
	return u
}

// activeTracer returns a tracer that accepts notifications without being
// installed on a VM.
func activeTracer(opts Options) *Tracer {
	tr := New(opts)
	tr.active = true
	return tr
}

func kinds(events []Event) []Kind {
	out := make([]Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
