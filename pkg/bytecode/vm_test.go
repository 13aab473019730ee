package bytecode

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// asm is a tiny assembler for hand-built test units.
type asm struct {
	t *testing.T
	u *CodeUnit
}

func newAsm(t *testing.T, u *CodeUnit) *asm {
	return &asm{t: t, u: u}
}

func (a *asm) line(n int) *asm {
	a.u.MarkLine(n)
	return a
}

func (a *asm) op(op Opcode) *asm {
	a.u.Emit(op)
	return a
}

func (a *asm) arg(op Opcode, arg int) *asm {
	a.t.Helper()
	mustEmit(a.t, a.u, op, arg)
	return a
}

func (a *asm) konst(v Value) *asm {
	return a.arg(OpLoadConst, a.u.AddConst(v))
}

// doubler builds:
//
//	def f(x):        # line 1
//	    y = x * 2    # line 2
//	    return y     # line 3
func doubler(t *testing.T) *CodeUnit {
	f := NewCodeUnit("f", "t.py", 1)
	f.ArgCount = 1
	x := f.LocalSlot("x")
	y := f.LocalSlot("y")
	newAsm(t, f).
		line(2).arg(OpLoadLocal, x).konst(int64(2)).op(OpMul).arg(OpStoreLocal, y).
		line(3).arg(OpLoadLocal, y).op(OpReturn)
	return f
}

type traceRecord struct {
	ev     TraceEvent
	name   string
	line   int
	offset int
	arg    Value
}

func recordingHook(out *[]traceRecord) Hook {
	var h Hook
	h = func(fr *Frame, ev TraceEvent, arg Value) Decision {
		*out = append(*out, traceRecord{ev, fr.Code().Name, fr.Line(), fr.Offset(), arg})
		return Continue(h)
	}
	return h
}

func TestRunArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		op   Opcode
		want Value
	}{
		{"add", int64(3), int64(4), OpAdd, int64(7)},
		{"sub", int64(3), int64(4), OpSub, int64(-1)},
		{"mul", int64(3), int64(4), OpMul, int64(12)},
		{"div", int64(7), int64(2), OpDiv, int64(3)},
		{"floor div", int64(-7), int64(2), OpDiv, int64(-4)},
		{"mod", int64(7), int64(3), OpMod, int64(1)},
		{"floor mod", int64(-7), int64(3), OpMod, int64(2)},
		{"concat", "ab", "cd", OpAdd, "abcd"},
		{"repeat", "ab", int64(3), OpMul, "ababab"},
		{"lt", int64(1), int64(2), OpLt, true},
		{"ge", int64(1), int64(2), OpGe, false},
		{"string lt", "a", "b", OpLt, true},
		{"eq", int64(2), int64(2), OpEq, true},
		{"ne", "a", "a", OpNe, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewModule("t.py")
			newAsm(t, u).line(1).konst(tt.a).konst(tt.b).op(tt.op).op(OpReturn)
			got, err := NewVM().Run(context.Background(), u)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunRuntimeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *asm)
		msg   string
	}{
		{"division by zero", func(a *asm) { a.konst(int64(1)).konst(int64(0)).op(OpDiv) }, "division by zero"},
		{"type mismatch", func(a *asm) { a.konst(int64(1)).konst("x").op(OpAdd) }, "unsupported operand"},
		{"undefined name", func(a *asm) { a.arg(OpLoadName, a.u.NameIndex("nope")) }, "not defined"},
		{"not callable", func(a *asm) { a.konst(int64(1)).arg(OpCall, 0) }, "not callable"},
		{"stack underflow", func(a *asm) { a.op(OpPop) }, "stack underflow"},
		{"unknown opcode", func(a *asm) { a.op(Opcode(0xEE)) }, "unknown opcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewModule("t.py")
			a := newAsm(t, u).line(1)
			tt.build(a)
			_, err := NewVM().Run(context.Background(), u)
			var rt *RuntimeError
			if !errors.As(err, &rt) {
				t.Fatalf("expected RuntimeError, got %v", err)
			}
			if !strings.Contains(rt.Msg, tt.msg) {
				t.Errorf("message %q does not contain %q", rt.Msg, tt.msg)
			}
			if rt.Line != 1 || rt.Filename != "t.py" {
				t.Errorf("location = %s:%d, want t.py:1", rt.Filename, rt.Line)
			}
		})
	}
}

func TestCallFunction(t *testing.T) {
	vm := NewVM()
	got, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(3))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != int64(6) {
		t.Errorf("got %v, want 6", got)
	}

	if _, err := vm.Call(context.Background(), &Function{Code: doubler(t)}); err == nil {
		t.Error("expected arity error")
	}
}

func TestModuleDefinesAndCalls(t *testing.T) {
	mod := NewModule("t.py")
	newAsm(t, mod).
		line(1).arg(OpMakeFunction, mod.AddConst(doubler(t))).arg(OpStoreName, mod.NameIndex("f")).
		line(4).arg(OpLoadName, mod.NameIndex("f")).konst(int64(5)).arg(OpCall, 1).arg(OpStoreName, mod.NameIndex("z"))

	vm := NewVM()
	if _, err := vm.Run(context.Background(), mod); err != nil {
		t.Fatalf("Run: %v", err)
	}
	z, ok := vm.Global("z")
	if !ok || z != int64(10) {
		t.Errorf("z = %v (%v), want 10", z, ok)
	}
	if f, _ := vm.Global("f"); TypeName(f) != "function" {
		t.Errorf("f has type %s", TypeName(f))
	}
}

func TestLoopAndGlobals(t *testing.T) {
	// i = 0
	// while i < 5:
	//     i += 1
	mod := NewModule("t.py")
	i := mod.NameIndex("i")
	a := newAsm(t, mod)
	a.line(1).konst(int64(0)).arg(OpStoreName, i)
	top := mod.CodeLen()
	a.line(2).arg(OpLoadName, i).konst(int64(5)).op(OpLt)
	exit := mod.EmitJump(OpJumpIfFalse)
	a.line(3).arg(OpLoadName, i).konst(int64(1)).op(OpAdd).arg(OpStoreName, i)
	if err := mod.EmitLoop(top); err != nil {
		t.Fatal(err)
	}
	if err := mod.PatchJump(exit); err != nil {
		t.Fatal(err)
	}

	var events []traceRecord
	vm := NewVM()
	vm.SetTrace(recordingHook(&events))
	if _, err := vm.Run(context.Background(), mod); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, _ := vm.Global("i"); got != int64(5) {
		t.Errorf("i = %v, want 5", got)
	}

	lines := 0
	for _, e := range events {
		if e.ev == TraceLine && e.line == 2 {
			lines++
		}
	}
	// Condition is evaluated six times.
	if lines != 6 {
		t.Errorf("line 2 reported %d times, want 6", lines)
	}
}

func TestTraceEventOrder(t *testing.T) {
	var events []traceRecord
	vm := NewVM()
	vm.SetTrace(recordingHook(&events))

	if _, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(3)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	want := []traceRecord{
		{TraceCall, "f", 1, -1, nil},
		{TraceLine, "f", 2, 0, nil},
		{TraceLine, "f", 3, 10, nil},
		{TraceReturn, "f", 3, 13, int64(6)},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(events), events, len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestLocalVisibleOnNextLine(t *testing.T) {
	vm := NewVM()
	var seen Value
	var h Hook
	h = func(fr *Frame, ev TraceEvent, arg Value) Decision {
		if ev == TraceLine && fr.Line() == 3 {
			seen, _ = fr.Local("y")
		}
		return Continue(h)
	}
	vm.SetTrace(h)
	if _, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(4)); err != nil {
		t.Fatal(err)
	}
	if seen != int64(8) {
		t.Errorf("y at line 3 = %v, want 8", seen)
	}
}

func TestDetachFrame(t *testing.T) {
	var events []traceRecord
	vm := NewVM()
	vm.SetTrace(func(fr *Frame, ev TraceEvent, arg Value) Decision {
		events = append(events, traceRecord{ev: ev})
		return Detach()
	})
	if _, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(1)); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ev != TraceCall {
		t.Errorf("expected only the call event, got %v", events)
	}
}

func TestClearHookMidFrame(t *testing.T) {
	var events []traceRecord
	vm := NewVM()
	var h Hook
	h = func(fr *Frame, ev TraceEvent, arg Value) Decision {
		events = append(events, traceRecord{ev: ev, line: fr.Line()})
		if ev == TraceLine {
			vm.SetTrace(nil)
		}
		return Continue(h)
	}
	vm.SetTrace(h)
	if _, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(1)); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("expected call and first line only, got %v", events)
	}
}

func TestHookFailure(t *testing.T) {
	boom := errors.New("boom")
	vm := NewVM()
	vm.SetTrace(func(fr *Frame, ev TraceEvent, arg Value) Decision {
		return Fail(boom)
	})
	_, err := vm.Call(context.Background(), &Function{Code: doubler(t)}, int64(1))
	var te *TraceError
	if !errors.As(err, &te) {
		t.Fatalf("expected TraceError, got %v", err)
	}
	if te.Event != TraceCall || !errors.Is(err, boom) {
		t.Errorf("unexpected trace error %v", err)
	}
}

func TestUnwindReportsReturn(t *testing.T) {
	f := NewCodeUnit("bad", "t.py", 1)
	newAsm(t, f).line(2).konst(int64(1)).konst(int64(0)).op(OpDiv).op(OpReturn)

	var events []traceRecord
	vm := NewVM()
	vm.SetTrace(recordingHook(&events))
	_, err := vm.Call(context.Background(), &Function{Code: f})
	if err == nil {
		t.Fatal("expected error")
	}
	last := events[len(events)-1]
	if last.ev != TraceReturn || last.arg != nil {
		t.Errorf("last event = %+v, want return with nil", last)
	}
}

func TestRecursionLimit(t *testing.T) {
	// def r(): return r()
	mod := NewModule("t.py")
	r := NewCodeUnit("r", "t.py", 1)
	newAsm(t, r).line(1).arg(OpLoadGlobal, r.NameIndex("r")).arg(OpCall, 0).op(OpReturn)
	newAsm(t, mod).line(1).arg(OpMakeFunction, mod.AddConst(r)).arg(OpStoreName, mod.NameIndex("r")).
		line(2).arg(OpLoadName, mod.NameIndex("r")).arg(OpCall, 0)

	vm := NewVM()
	vm.MaxDepth = 20
	_, err := vm.Run(context.Background(), mod)
	if err == nil || !strings.Contains(err.Error(), "recursion") {
		t.Errorf("expected recursion error, got %v", err)
	}
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewVM().Call(ctx, &Function{Code: doubler(t)}, int64(1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuiltins(t *testing.T) {
	var out bytes.Buffer
	vm := NewVM()
	vm.SetOutput(&out)

	mod := NewModule("t.py")
	newAsm(t, mod).
		line(1).arg(OpLoadName, mod.NameIndex("print")).konst("n =").
		arg(OpLoadName, mod.NameIndex("abs")).konst(int64(-4)).arg(OpCall, 1).
		arg(OpCall, 2).op(OpPop).
		line(2).arg(OpLoadName, mod.NameIndex("len")).
		arg(OpLoadName, mod.NameIndex("str")).konst(int64(1234)).arg(OpCall, 1).
		arg(OpCall, 1).op(OpReturn)

	got, err := vm.Run(context.Background(), mod)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != int64(4) {
		t.Errorf("len(str(1234)) = %v, want 4", got)
	}
	if out.String() != "n = 4\n" {
		t.Errorf("print wrote %q", out.String())
	}
}

func TestSnapshotFunction(t *testing.T) {
	ref, ok := Snapshot(&Function{Code: doubler(t)}).(FunctionRef)
	if !ok {
		t.Fatal("function snapshot is not a FunctionRef")
	}
	if ref.Name != "f" || ref.Filename != "t.py" || ref.Builtin {
		t.Errorf("unexpected ref %+v", ref)
	}
	if Snapshot(int64(3)) != int64(3) {
		t.Error("scalars should snapshot to themselves")
	}
}

func TestStrAndRepr(t *testing.T) {
	tests := []struct {
		v    Value
		str  string
		repr string
	}{
		{nil, "None", "None"},
		{true, "True", "True"},
		{int64(-2), "-2", "-2"},
		{"hi", "hi", `"hi"`},
		{FunctionRef{Name: "f"}, "<function f>", "<function f>"},
	}
	for _, tt := range tests {
		if got := Str(tt.v); got != tt.str {
			t.Errorf("Str(%v) = %q, want %q", tt.v, got, tt.str)
		}
		if got := Repr(tt.v); got != tt.repr {
			t.Errorf("Repr(%v) = %q, want %q", tt.v, got, tt.repr)
		}
	}
}
