// Package tracer records what a program does while it runs: function calls,
// returns, and assignments to named variables.
//
// Line notifications arrive before a line executes, so the tracer cannot read
// the values a line writes at that point. Instead it decodes the line's
// instructions, remembers which names are about to be stored, and captures
// their values at the next line or return notification, once the writes have
// happened.
package tracer

import (
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/uatu/pkg/bytecode"
	"github.com/chazu/uatu/store"
)

var log = commonlog.GetLogger("uatu.tracer")

// Options configures a Tracer.
type Options struct {
	// Debug prints every line record and event to DebugOut.
	Debug    bool
	DebugOut io.Writer // defaults to os.Stderr

	// MaxEvents detaches the tracer once this many events are recorded.
	// Zero means no limit.
	MaxEvents int

	// Store, when set, receives every event. Writes are best-effort.
	Store        store.Store
	StoreTimeout time.Duration
}

// Stats summarises a tracer's bookkeeping.
type Stats struct {
	Events         int
	CaptureMisses  uint64
	DecodeFailures uint64
	StoreFailures  uint64
	Pending        int
}

// Tracer turns trace notifications into an event log. A Tracer serves one
// VM at a time and is not safe for concurrent use.
type Tracer struct {
	opts  Options
	rec   *Recorder
	sched Scheduler
	debug *DebugPrinter

	hook    bytecode.Hook
	active  bool
	session *Session

	decodeFailures uint64
}

// New creates an idle tracer. Install attaches it to a VM.
func New(opts Options) *Tracer {
	t := &Tracer{
		opts: opts,
		rec:  NewRecorder(opts.Store, opts.StoreTimeout),
	}
	t.hook = t.trace
	t.sched.OnMiss = func(pc PendingCapture) {
		log.Debugf("capture of %s %s not available, dropped", pc.Scope, pc.Name)
	}
	if opts.Debug {
		out := opts.DebugOut
		if out == nil {
			out = os.Stderr
		}
		t.debug = NewDebugPrinter(out)
		t.rec.Subscribe(t.debug.Event)
	}
	return t
}

// Hook returns the function to install with vm.SetTrace.
func (t *Tracer) Hook() bytecode.Hook {
	return t.hook
}

// Recorder returns the tracer's event log.
func (t *Tracer) Recorder() *Recorder {
	return t.rec
}

// Events returns a copy of the recorded events.
func (t *Tracer) Events() []Event {
	return t.rec.Events()
}

// Active reports whether the tracer is installed and accepting notifications.
func (t *Tracer) Active() bool {
	return t.active
}

// Stats returns the current counters.
func (t *Tracer) Stats() Stats {
	return Stats{
		Events:         t.rec.Len(),
		CaptureMisses:  t.sched.Misses(),
		DecodeFailures: t.decodeFailures,
		StoreFailures:  t.rec.StoreFailures(),
		Pending:        t.sched.Len(),
	}
}

func (t *Tracer) trace(fr *bytecode.Frame, ev bytecode.TraceEvent, arg bytecode.Value) bytecode.Decision {
	return t.Dispatch(fr, ev, arg)
}

// Dispatch handles one notification for ctx and tells the runtime how to
// continue. The tracer keeps itself installed for the frame until it is
// detached. An extraction failure aborts the run and ends the session.
func (t *Tracer) Dispatch(ctx Context, ev bytecode.TraceEvent, arg bytecode.Value) bytecode.Decision {
	if !t.active {
		return bytecode.Detach()
	}

	switch ev {
	case bytecode.TraceLine:
		if err := t.dispatchLine(ctx); err != nil {
			// The session cannot trust its windows any more.
			t.stop()
			return bytecode.Fail(err)
		}
	case bytecode.TraceCall:
		t.dispatchCall(ctx)
	case bytecode.TraceReturn:
		t.dispatchReturn(ctx, arg)
	}

	if !t.active {
		return bytecode.Detach()
	}
	return bytecode.Continue(t.hook)
}

func (t *Tracer) dispatchLine(ctx Context) error {
	t.drain(ctx)
	if !t.active {
		return nil
	}

	unit := ctx.Code()
	w, err := Extract(unit.Code, unit.Lines, ctx.Offset())
	if err != nil {
		log.Errorf("%s:%d in %s: %s", unit.Filename, ctx.Line(), unit.Name, err.Error())
		return err
	}

	pcs, err := Decode(w, unit)
	if err != nil {
		t.decodeFailures++
		log.Warningf("%s:%d in %s: %s; line not captured", unit.Filename, ctx.Line(), unit.Name, err.Error())
	} else {
		t.sched.Enqueue(pcs...)
	}

	if t.debug != nil {
		t.debug.Line(ctx.Line(), unit, pcs)
	}
	return nil
}

func (t *Tracer) dispatchCall(ctx Context) {
	unit := ctx.Code()
	rec := CallRecord{
		Line:     ctx.Line(),
		Filename: unit.Filename,
		Function: unit.Name,
	}
	if !unit.Module {
		names := unit.ArgNames()
		rec.Params = make([]Param, 0, len(names))
		for _, name := range names {
			v, _ := ctx.Local(name)
			rec.Params = append(rec.Params, Param{Name: name, Value: bytecode.Snapshot(v)})
		}
	}
	if line, file, ok := ctx.Caller(); ok {
		rec.CallerLine, rec.CallerFile = line, file
	}
	t.emit(KindCall, unit.Name, rec)
}

func (t *Tracer) dispatchReturn(ctx Context, arg bytecode.Value) {
	t.drain(ctx)
	t.emit(KindReturn, ctx.Code().Name, bytecode.Snapshot(arg))
}

func (t *Tracer) drain(ctx Context) {
	t.sched.Drain(ctx, func(pc PendingCapture, v bytecode.Value) bool {
		return t.emit(KindAssign, pc.Name, bytecode.Snapshot(v))
	})
}

// emit records an event while the tracer is active. It reports whether the
// tracer is still active afterwards.
func (t *Tracer) emit(kind Kind, subject string, value any) bool {
	if !t.active {
		return false
	}
	t.rec.Emit(kind, subject, value)

	if limit := t.opts.MaxEvents; limit > 0 && t.rec.Len() >= limit && t.active {
		log.Infof("event limit %d reached, detaching", limit)
		t.stop()
	}
	return t.active
}

// stop detaches the tracer from whatever it is attached to.
func (t *Tracer) stop() {
	if t.session != nil {
		t.session.Close()
		return
	}
	t.active = false
}
