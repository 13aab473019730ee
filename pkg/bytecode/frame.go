package bytecode

// Frame is one activation of a code unit. It is the read view handed to trace
// hooks: line, instruction offset, code unit and name lookups.
type Frame struct {
	unit   *CodeUnit
	back   *Frame
	vm     *VM
	locals []Value
	bound  []bool
	names  map[string]Value // STORE_NAME targets in non-module frames
	stack  []Value

	ip     int // next instruction to decode
	offset int // instruction about to execute (or executing); -1 before the first one
	line   int

	trace Hook
}

func newFrame(vm *VM, unit *CodeUnit, back *Frame) *Frame {
	return &Frame{
		unit:   unit,
		back:   back,
		vm:     vm,
		locals: make([]Value, len(unit.VarNames)),
		bound:  make([]bool, len(unit.VarNames)),
		stack:  make([]Value, 0, 16),
		offset: -1,
		line:   unit.FirstLine,
	}
}

// Code returns the frame's code unit.
func (f *Frame) Code() *CodeUnit {
	return f.unit
}

// Line returns the current source line.
func (f *Frame) Line() int {
	return f.line
}

// Offset returns the offset of the instruction about to execute, or -1 if
// the frame has not executed anything yet.
func (f *Frame) Offset() int {
	return f.offset
}

// Back returns the calling frame, or nil for the outermost frame.
func (f *Frame) Back() *Frame {
	return f.back
}

// Local looks up name in the frame's local scope. For module frames the local
// scope is the module namespace.
func (f *Frame) Local(name string) (Value, bool) {
	if f.unit.Module {
		return f.vm.Global(name)
	}
	for i, n := range f.unit.VarNames {
		if n == name {
			if !f.bound[i] {
				return nil, false
			}
			return f.locals[i], true
		}
	}
	if v, ok := f.names[name]; ok {
		return v, true
	}
	return nil, false
}

// Global looks up name in the module namespace.
func (f *Frame) Global(name string) (Value, bool) {
	return f.vm.Global(name)
}

// Caller returns the calling frame's current line and filename.
func (f *Frame) Caller() (line int, filename string, ok bool) {
	if f.back == nil {
		return 0, "", false
	}
	return f.back.line, f.back.unit.Filename, true
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = nil
	f.stack = f.stack[:n]
	return v
}

func (f *Frame) peek() Value {
	return f.stack[len(f.stack)-1]
}
