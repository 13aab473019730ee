package tracer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chazu/uatu/pkg/bytecode"
)

// ErrAlreadyInstalled is returned when a tracer is already attached in this
// process.
var ErrAlreadyInstalled = errors.New("a tracer is already installed")

// installed guards the single tracer allowed per process.
var installed atomic.Bool

// Session is one installation of a tracer on a VM. Close detaches it.
type Session struct {
	ID string

	tracer *Tracer
	vm     *bytecode.VM
	once   sync.Once
}

// Install attaches the tracer to vm. Only one tracer may be installed in the
// process at a time.
func (t *Tracer) Install(vm *bytecode.VM) (*Session, error) {
	if vm == nil {
		return nil, errors.New("install: nil VM")
	}
	if !installed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInstalled
	}

	s := &Session{
		ID:     uuid.NewString(),
		tracer: t,
		vm:     vm,
	}
	t.session = s
	t.active = true
	t.sched.Reset()
	vm.SetTrace(t.hook)

	log.Infof("session %s installed", s.ID)
	return s, nil
}

// Close uninstalls the tracer. Running frames stop being traced at their next
// notification and captures still pending are never resolved. Close may be
// called any number of times.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.vm.SetTrace(nil)
		s.tracer.active = false
		s.tracer.session = nil
		installed.Store(false)
		log.Infof("session %s closed after %d events", s.ID, s.tracer.rec.Len())
	})
	return nil
}

// Watch runs a module under the tracer and detaches afterwards, whatever the
// outcome. The log stays available through Events.
func (t *Tracer) Watch(ctx context.Context, vm *bytecode.VM, unit *bytecode.CodeUnit) (bytecode.Value, error) {
	s, err := t.Install(vm)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return vm.Run(ctx, unit)
}

// WatchCall calls fn with args under the tracer and detaches afterwards.
func (t *Tracer) WatchCall(ctx context.Context, vm *bytecode.VM, fn bytecode.Value, args ...bytecode.Value) (bytecode.Value, error) {
	s, err := t.Install(vm)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return vm.Call(ctx, fn, args...)
}
