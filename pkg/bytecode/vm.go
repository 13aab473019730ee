package bytecode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultMaxDepth bounds nested calls.
const DefaultMaxDepth = 200

// RuntimeError is raised by the traced program itself (bad operands, unknown
// names, division by zero, ...).
type RuntimeError struct {
	Filename string
	Line     int
	Func     string
	Msg      string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s:%d: in %s: %s", e.Filename, e.Line, e.Func, e.Msg)
}

// VM executes code units and delivers trace notifications.
type VM struct {
	globals  map[string]Value
	builtins map[string]*Builtin

	hook  Hook
	depth int

	// MaxDepth bounds nested calls; zero means DefaultMaxDepth.
	MaxDepth int

	out io.Writer
}

// NewVM creates a new VM instance with the default builtins.
func NewVM() *VM {
	vm := &VM{
		globals:  make(map[string]Value),
		builtins: make(map[string]*Builtin),
		out:      os.Stdout,
	}
	registerDefaultBuiltins(vm)
	return vm
}

// SetOutput sets the writer used by print.
func (vm *VM) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	vm.out = w
}

// SetTrace installs h as the hook for new frames. A nil hook switches tracing
// off; frames already running stop receiving notifications immediately.
func (vm *VM) SetTrace(h Hook) {
	vm.hook = h
}

// TraceHook returns the installed hook.
func (vm *VM) TraceHook() Hook {
	return vm.hook
}

// Global returns a module-level binding.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// SetGlobal binds a module-level name.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals[name] = v
}

// RegisterBuiltin makes fn callable from programs under name.
func (vm *VM) RegisterBuiltin(name string, fn func(vm *VM, args []Value) (Value, error)) {
	vm.builtins[name] = &Builtin{Name: name, Fn: fn}
}

// Run executes a module code unit.
func (vm *VM) Run(ctx context.Context, unit *CodeUnit) (Value, error) {
	if unit == nil {
		return nil, errors.New("nil code unit")
	}
	return vm.execute(ctx, newFrame(vm, unit, nil))
}

// Call invokes a callable value with args.
func (vm *VM) Call(ctx context.Context, fn Value, args ...Value) (Value, error) {
	return vm.call(ctx, nil, fn, args)
}

func (vm *VM) call(ctx context.Context, caller *Frame, callee Value, args []Value) (Value, error) {
	switch fn := callee.(type) {
	case *Builtin:
		result, err := fn.Fn(vm, args)
		if err != nil {
			var rt *RuntimeError
			if errors.As(err, &rt) {
				return nil, err
			}
			return nil, vm.errorf(caller, "%s(): %v", fn.Name, err)
		}
		return result, nil

	case *Function:
		if len(args) != fn.Code.ArgCount {
			return nil, vm.errorf(caller, "%s() takes %d arguments (%d given)", fn.Code.Name, fn.Code.ArgCount, len(args))
		}
		fr := newFrame(vm, fn.Code, caller)
		for i, a := range args {
			fr.locals[i] = a
			fr.bound[i] = true
		}
		return vm.execute(ctx, fr)

	default:
		return nil, vm.errorf(caller, "'%s' object is not callable", TypeName(callee))
	}
}

// execute runs a frame between its call and return notifications.
func (vm *VM) execute(ctx context.Context, fr *Frame) (Value, error) {
	maxDepth := vm.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if vm.depth >= maxDepth {
		return nil, vm.errorf(fr.back, "maximum recursion depth exceeded")
	}
	vm.depth++
	defer func() { vm.depth-- }()

	if err := vm.notifyCall(fr); err != nil {
		return nil, err
	}

	result, err := vm.run(ctx, fr)
	if err != nil {
		var rt *RuntimeError
		if errors.As(err, &rt) {
			// The frame unwinds; hooks still see it leave.
			if nerr := vm.notify(fr, TraceReturn, nil); nerr != nil {
				return nil, nerr
			}
		}
		return nil, err
	}

	if err := vm.notify(fr, TraceReturn, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (vm *VM) notifyCall(fr *Frame) error {
	h := vm.hook
	if h == nil {
		return nil
	}
	d := h(fr, TraceCall, nil)
	if d.Err != nil {
		return &TraceError{Event: TraceCall, Err: d.Err}
	}
	fr.trace = d.Next
	return nil
}

func (vm *VM) notify(fr *Frame, ev TraceEvent, arg Value) error {
	if vm.hook == nil || fr.trace == nil {
		return nil
	}
	d := fr.trace(fr, ev, arg)
	if d.Err != nil {
		return &TraceError{Event: ev, Err: d.Err}
	}
	fr.trace = d.Next
	return nil
}

// run is the main execution loop.
func (vm *VM) run(ctx context.Context, fr *Frame) (Value, error) {
	unit := fr.unit
	code := unit.Code
	ext := 0

	for fr.ip < len(code) {
		if unit.IsLineStart(fr.ip) && ext == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fr.offset = fr.ip
			fr.line = unit.LineAt(fr.ip)
			if err := vm.notify(fr, TraceLine, nil); err != nil {
				return nil, err
			}
		}

		fr.offset = fr.ip
		op := Opcode(code[fr.ip])
		fr.ip++

		info, known := opcodeInfoTable[op]
		if !known {
			return nil, vm.errorf(fr, "unknown opcode 0x%02x at offset %d", byte(op), fr.offset)
		}

		arg := 0
		if op.HasArgument() {
			if fr.ip+OperandWidth > len(code) {
				return nil, vm.errorf(fr, "truncated operand for %s at offset %d", op, fr.offset)
			}
			arg = ext<<16 | int(binary.LittleEndian.Uint16(code[fr.ip:]))
			fr.ip += OperandWidth
			ext = 0
		}

		need := info.StackPop
		if op == OpCall {
			need = arg + 1
		}
		if len(fr.stack) < need {
			return nil, vm.errorf(fr, "stack underflow in %s at offset %d", op, fr.offset)
		}

		switch op {
		// ============ Stack Operations ============
		case OpNop:
			// Do nothing

		case OpPop:
			fr.pop()

		case OpDup:
			fr.push(fr.peek())

		case OpSwap:
			n := len(fr.stack)
			fr.stack[n-1], fr.stack[n-2] = fr.stack[n-2], fr.stack[n-1]

		// ============ Arithmetic ============
		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			b := fr.pop()
			a := fr.pop()
			v, err := vm.arith(fr, op, a, b)
			if err != nil {
				return nil, err
			}
			fr.push(v)

		case OpNeg:
			a, ok := fr.pop().(int64)
			if !ok {
				return nil, vm.errorf(fr, "bad operand type for unary -")
			}
			fr.push(-a)

		// ============ Comparison ============
		case OpEq:
			b := fr.pop()
			a := fr.pop()
			fr.push(a == b)

		case OpNe:
			b := fr.pop()
			a := fr.pop()
			fr.push(a != b)

		case OpLt, OpLe, OpGt, OpGe:
			b := fr.pop()
			a := fr.pop()
			v, err := vm.compare(fr, op, a, b)
			if err != nil {
				return nil, err
			}
			fr.push(v)

		case OpNot:
			fr.push(!Truthy(fr.pop()))

		// ============ Return ============
		case OpReturn:
			return fr.pop(), nil

		case OpReturnNil:
			return nil, nil

		// ============ Names ============
		case OpLoadConst:
			if arg >= len(unit.Consts) {
				return nil, vm.errorf(fr, "constant index %d out of range", arg)
			}
			fr.push(unit.Consts[arg])

		case OpLoadLocal:
			if arg >= len(fr.locals) {
				return nil, vm.errorf(fr, "local slot %d out of range", arg)
			}
			if !fr.bound[arg] {
				return nil, vm.errorf(fr, "local variable '%s' referenced before assignment", unit.VarNames[arg])
			}
			fr.push(fr.locals[arg])

		case OpStoreLocal:
			if arg >= len(fr.locals) {
				return nil, vm.errorf(fr, "local slot %d out of range", arg)
			}
			fr.locals[arg] = fr.pop()
			fr.bound[arg] = true

		case OpLoadName:
			name, err := vm.name(fr, arg)
			if err != nil {
				return nil, err
			}
			if !unit.Module {
				if v, ok := fr.names[name]; ok {
					fr.push(v)
					break
				}
			}
			v, err := vm.lookupGlobal(fr, name)
			if err != nil {
				return nil, err
			}
			fr.push(v)

		case OpStoreName:
			name, err := vm.name(fr, arg)
			if err != nil {
				return nil, err
			}
			if unit.Module {
				vm.globals[name] = fr.pop()
				break
			}
			if fr.names == nil {
				fr.names = make(map[string]Value)
			}
			fr.names[name] = fr.pop()

		case OpLoadGlobal:
			name, err := vm.name(fr, arg)
			if err != nil {
				return nil, err
			}
			v, err := vm.lookupGlobal(fr, name)
			if err != nil {
				return nil, err
			}
			fr.push(v)

		case OpStoreGlobal:
			name, err := vm.name(fr, arg)
			if err != nil {
				return nil, err
			}
			vm.globals[name] = fr.pop()

		// ============ Control Flow ============
		case OpJump:
			fr.ip = arg

		case OpJumpIfFalse:
			if !Truthy(fr.pop()) {
				fr.ip = arg
			}

		case OpJumpIfTrue:
			if Truthy(fr.pop()) {
				fr.ip = arg
			}

		// ============ Calls ============
		case OpCall:
			args := make([]Value, arg)
			for i := arg - 1; i >= 0; i-- {
				args[i] = fr.pop()
			}
			callee := fr.pop()
			result, err := vm.call(ctx, fr, callee, args)
			if err != nil {
				return nil, err
			}
			fr.push(result)

		case OpMakeFunction:
			if arg >= len(unit.Consts) {
				return nil, vm.errorf(fr, "constant index %d out of range", arg)
			}
			body, ok := unit.Consts[arg].(*CodeUnit)
			if !ok {
				return nil, vm.errorf(fr, "constant %d is not a code unit", arg)
			}
			fr.push(&Function{Code: body})

		case OpExtendedArg:
			ext = arg

		default:
			return nil, vm.errorf(fr, "unhandled opcode %s at offset %d", op, fr.offset)
		}
	}

	// Falling off the end returns None
	return nil, nil
}

func (vm *VM) name(fr *Frame, idx int) (string, error) {
	if idx >= len(fr.unit.Names) {
		return "", vm.errorf(fr, "name index %d out of range", idx)
	}
	return fr.unit.Names[idx], nil
}

func (vm *VM) lookupGlobal(fr *Frame, name string) (Value, error) {
	if v, ok := vm.globals[name]; ok {
		return v, nil
	}
	if b, ok := vm.builtins[name]; ok {
		return b, nil
	}
	return nil, vm.errorf(fr, "name '%s' is not defined", name)
}

func (vm *VM) arith(fr *Frame, op Opcode, a, b Value) (Value, error) {
	if op == OpAdd {
		if sa, ok := a.(string); ok {
			if sb, ok := b.(string); ok {
				return sa + sb, nil
			}
		}
	}
	if op == OpMul {
		if s, ok := a.(string); ok {
			if n, ok := b.(int64); ok && n >= 0 {
				return strings.Repeat(s, int(n)), nil
			}
		}
	}

	x, okA := a.(int64)
	y, okB := b.(int64)
	if !okA || !okB {
		return nil, vm.errorf(fr, "unsupported operand types for %s: '%s' and '%s'", op, TypeName(a), TypeName(b))
	}

	switch op {
	case OpAdd:
		return x + y, nil
	case OpSub:
		return x - y, nil
	case OpMul:
		return x * y, nil
	case OpDiv:
		if y == 0 {
			return nil, vm.errorf(fr, "integer division by zero")
		}
		return floorDiv(x, y), nil
	case OpMod:
		if y == 0 {
			return nil, vm.errorf(fr, "integer modulo by zero")
		}
		return x - floorDiv(x, y)*y, nil
	}
	return nil, vm.errorf(fr, "bad arithmetic opcode %s", op)
}

// floorDiv rounds toward negative infinity.
func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func (vm *VM) compare(fr *Frame, op Opcode, a, b Value) (Value, error) {
	var c int
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return nil, vm.errorf(fr, "cannot order '%s' and '%s'", TypeName(a), TypeName(b))
		}
		c = cmpInt(x, y)
	case string:
		y, ok := b.(string)
		if !ok {
			return nil, vm.errorf(fr, "cannot order '%s' and '%s'", TypeName(a), TypeName(b))
		}
		c = strings.Compare(x, y)
	default:
		return nil, vm.errorf(fr, "cannot order '%s' and '%s'", TypeName(a), TypeName(b))
	}

	switch op {
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// errorf builds a RuntimeError located at fr's current instruction.
func (vm *VM) errorf(fr *Frame, format string, args ...any) error {
	e := &RuntimeError{Msg: fmt.Sprintf(format, args...)}
	if fr != nil {
		e.Filename = fr.unit.Filename
		e.Func = fr.unit.Name
		e.Line = fr.unit.LineAt(fr.offset)
	}
	return e
}

func registerDefaultBuiltins(vm *VM) {
	vm.RegisterBuiltin("print", func(vm *VM, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Str(a)
		}
		fmt.Fprintln(vm.out, strings.Join(parts, " ")) //nolint:errcheck
		return nil, nil
	})
	vm.RegisterBuiltin("str", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("takes exactly one argument (%d given)", len(args))
		}
		return Str(args[0]), nil
	})
	vm.RegisterBuiltin("len", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("takes exactly one argument (%d given)", len(args))
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("object of type '%s' has no len()", TypeName(args[0]))
		}
		return int64(len(s)), nil
	})
	vm.RegisterBuiltin("abs", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("takes exactly one argument (%d given)", len(args))
		}
		n, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("bad operand type '%s'", TypeName(args[0]))
		}
		if n < 0 {
			n = -n
		}
		return n, nil
	})
}
