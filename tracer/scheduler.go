package tracer

import (
	"github.com/chazu/uatu/pkg/bytecode"
)

// Context is the tracer's view of an executing frame. *bytecode.Frame
// implements it.
type Context interface {
	// Line is the current source line.
	Line() int
	// Offset is the instruction about to execute, -1 before the first one.
	Offset() int
	Code() *bytecode.CodeUnit
	Local(name string) (bytecode.Value, bool)
	Global(name string) (bytecode.Value, bool)
	// Caller reports the calling frame's line and filename.
	Caller() (line int, filename string, ok bool)
}

var _ Context = (*bytecode.Frame)(nil)

// Scheduler holds captures waiting for their variable to be written. It is a
// single FIFO shared by every frame the tracer sees.
type Scheduler struct {
	queue  []PendingCapture
	misses uint64

	// OnMiss, when set, is told about every capture dropped because its
	// variable was not bound yet.
	OnMiss func(PendingCapture)
}

// Enqueue appends captures behind the ones already waiting.
func (s *Scheduler) Enqueue(pcs ...PendingCapture) {
	s.queue = append(s.queue, pcs...)
}

// Len returns the number of waiting captures.
func (s *Scheduler) Len() int {
	return len(s.queue)
}

// Pending returns a copy of the queue, head first.
func (s *Scheduler) Pending() []PendingCapture {
	out := make([]PendingCapture, len(s.queue))
	copy(out, s.queue)
	return out
}

// Misses returns how many captures have been dropped unresolved.
func (s *Scheduler) Misses() uint64 {
	return s.misses
}

// Drain resolves captures from the head of the queue against ctx. Each
// resolved capture is handed to emit. The first capture whose variable is
// not bound is dropped and ends the drain; the entries behind it wait for the
// next drain. Drain also stops when emit returns false. It returns the number
// of captures emitted.
func (s *Scheduler) Drain(ctx Context, emit func(PendingCapture, bytecode.Value) bool) int {
	n := 0
	for len(s.queue) > 0 {
		pc := s.queue[0]
		s.queue[0] = PendingCapture{}
		s.queue = s.queue[1:]

		v, ok := resolve(ctx, pc)
		if !ok {
			s.misses++
			if s.OnMiss != nil {
				s.OnMiss(pc)
			}
			break
		}
		n++
		if !emit(pc, v) {
			break
		}
	}
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return n
}

// Reset drops every waiting capture without counting them as misses.
func (s *Scheduler) Reset() {
	s.queue = nil
}

func resolve(ctx Context, pc PendingCapture) (bytecode.Value, bool) {
	if pc.Scope == ScopeGlobal {
		return ctx.Global(pc.Name)
	}
	return ctx.Local(pc.Name)
}
