package tracer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chazu/uatu/pkg/bytecode"
	"github.com/chazu/uatu/store"
)

// ErrUnsupportedHistory is returned for history queries on an unknown kind.
var ErrUnsupportedHistory = errors.New("unsupported history kind")

// Kind classifies an event.
type Kind uint8

const (
	KindCall   Kind = 1
	KindReturn Kind = 2
	KindAssign Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindReturn:
		return "return"
	case KindAssign:
		return "assign"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind accepts the singular and plural spellings used by history
// queries: call(s), return(s), assign(s) and assignment(s).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "calls":
		return KindCall, nil
	case "return", "returns":
		return KindReturn, nil
	case "assign", "assigns", "assignment", "assignments":
		return KindAssign, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedHistory, s)
}

// Event is one entry of the trace log. Events are never modified once
// recorded.
type Event struct {
	Index   uint64
	Time    time.Time
	Kind    Kind
	Subject string
	Value   any
}

func (e Event) String() string {
	return fmt.Sprintf("%d %s %s %s %s",
		e.Index, e.Time.Format("2006-01-02T15:04:05.000000"), e.Kind, e.Subject, formatValue(e.Value))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case CallRecord:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return bytecode.Repr(v)
	}
}

// Param is one argument binding of a call.
type Param struct {
	Name  string `cbor:"name"`
	Value any    `cbor:"value"`
}

// CallRecord is the value of a call event.
type CallRecord struct {
	Line       int     `cbor:"line"`
	Filename   string  `cbor:"file"`
	Function   string  `cbor:"function"`
	Params     []Param `cbor:"params"`
	CallerLine int     `cbor:"caller_line,omitempty"`
	CallerFile string  `cbor:"caller_file,omitempty"`
}

// Param returns the value bound to a parameter.
func (r CallRecord) Param(name string) (any, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

func (r CallRecord) clone() CallRecord {
	if r.Params != nil {
		r.Params = append([]Param(nil), r.Params...)
	}
	return r
}

func (r CallRecord) String() string {
	args := make([]string, len(r.Params))
	for i, p := range r.Params {
		args[i] = p.Name + "=" + bytecode.Repr(p.Value)
	}
	s := fmt.Sprintf("%s(%s) at %s:%d", r.Function, strings.Join(args, ", "), r.Filename, r.Line)
	if r.CallerFile != "" {
		s += fmt.Sprintf(" from %s:%d", r.CallerFile, r.CallerLine)
	}
	return s
}

// DefaultStoreTimeout bounds a single store write.
const DefaultStoreTimeout = 2 * time.Second

// Recorder assigns indices to events and keeps the in-memory log. When a
// store is attached every event is also offered to it.
type Recorder struct {
	events    []Event
	listeners []func(Event)

	store         store.Store
	storeTimeout  time.Duration
	storeFailures uint64

	now func() time.Time
}

// NewRecorder creates a recorder. s may be nil.
func NewRecorder(s store.Store, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Recorder{
		store:        s,
		storeTimeout: timeout,
		now:          time.Now,
	}
}

// Subscribe registers fn to be called with every new event, in emission
// order, after the event is appended.
func (r *Recorder) Subscribe(fn func(Event)) {
	r.listeners = append(r.listeners, fn)
}

// Emit records a new event and returns it.
func (r *Recorder) Emit(kind Kind, subject string, value any) Event {
	ev := Event{
		Index:   uint64(len(r.events)),
		Time:    r.now(),
		Kind:    kind,
		Subject: subject,
		Value:   detach(value),
	}
	r.events = append(r.events, ev)

	if r.store != nil {
		r.persist(ev)
	}
	for _, fn := range r.listeners {
		cp := ev
		cp.Value = detach(ev.Value)
		fn(cp)
	}
	ev.Value = detach(ev.Value)
	return ev
}

func (r *Recorder) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	entry := store.Entry{
		Timestamp: ev.Time.UnixNano(),
		Kind:      ev.Kind.String(),
		Subject:   ev.Subject,
		Value:     ev.Value,
	}
	if err := r.store.Put(ctx, ev.Index, entry); err != nil {
		r.storeFailures++
		log.Warningf("store event %d (%s %s): %s", ev.Index, ev.Kind, ev.Subject, err.Error())
	}
}

// Events returns a copy of the log. Call records are copied too, so callers
// cannot reach the recorded parameters.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	for i := range out {
		out[i].Value = detach(out[i].Value)
	}
	return out
}

func detach(v any) any {
	if rec, ok := v.(CallRecord); ok {
		return rec.clone()
	}
	return v
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	return len(r.events)
}

// StoreFailures returns how many events the store rejected.
func (r *Recorder) StoreFailures() uint64 {
	return r.storeFailures
}

// History returns the events of the named kind, oldest first. An empty
// subject matches every function or variable.
func (r *Recorder) History(kind, subject string) ([]Event, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range r.events {
		if ev.Kind != k {
			continue
		}
		if subject != "" && ev.Subject != subject {
			continue
		}
		ev.Value = detach(ev.Value)
		out = append(out, ev)
	}
	return out, nil
}
