package bytecode

import "fmt"

// TraceEvent identifies the kind of notification delivered to a Hook.
type TraceEvent uint8

const (
	// TraceCall fires when a new frame starts, before its first instruction.
	TraceCall TraceEvent = iota + 1
	// TraceLine fires when execution reaches the first instruction of a source
	// line, before that instruction runs.
	TraceLine
	// TraceReturn fires when a frame is about to return (or unwind).
	TraceReturn
)

// String returns the string representation of TraceEvent.
func (e TraceEvent) String() string {
	switch e {
	case TraceCall:
		return "call"
	case TraceLine:
		return "line"
	case TraceReturn:
		return "return"
	default:
		return fmt.Sprintf("TraceEvent(%d)", uint8(e))
	}
}

// Hook receives trace notifications. The installed hook sees every TraceCall;
// the Decision it returns selects the hook that receives the frame's
// TraceLine and TraceReturn notifications.
type Hook func(fr *Frame, ev TraceEvent, arg Value) Decision

// Decision tells the VM how to proceed after a notification.
type Decision struct {
	// Next receives further notifications for the frame. Nil stops tracing
	// the frame.
	Next Hook
	// Err aborts execution when non-nil.
	Err error
}

// Continue keeps tracing the frame with next.
func Continue(next Hook) Decision {
	return Decision{Next: next}
}

// Detach stops tracing the current frame.
func Detach() Decision {
	return Decision{}
}

// Fail aborts execution with err.
func Fail(err error) Decision {
	return Decision{Err: err}
}

// TraceError wraps a fatal error returned by a hook.
type TraceError struct {
	Event TraceEvent
	Err   error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("trace hook failed on %s: %v", e.Event, e.Err)
}

func (e *TraceError) Unwrap() error {
	return e.Err
}
