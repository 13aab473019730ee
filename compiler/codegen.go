package compiler

import (
	"fmt"

	"github.com/chazu/uatu/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// scope says where a name lives inside the unit being compiled.
type scope int

const (
	scopeName   scope = iota // module namespace (STORE_NAME)
	scopeLocal               // function slot (STORE_LOCAL)
	scopeGlobal              // declared global inside a function (STORE_GLOBAL)
)

// Compiler compiles AST nodes to bytecode.
type Compiler struct {
	filename string

	// Current compilation context
	unit    *bytecode.CodeUnit
	inFunc  bool
	globals map[string]bool // names declared global in the current function
	errors  []string
}

// NewCompiler creates a new compiler.
func NewCompiler(filename string) *Compiler {
	return &Compiler{filename: filename}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// errorf records a compilation error.
func (c *Compiler) errorf(pos Position, format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf("line %d: %s", pos.Line, fmt.Sprintf(format, args...)))
}

// CompileModule compiles a parsed file to its top-level code unit.
func (c *Compiler) CompileModule(sf *SourceFile) *bytecode.CodeUnit {
	c.unit = bytecode.NewModule(c.filename)
	c.inFunc = false
	c.globals = nil

	c.compileStatements(sf.Statements)
	c.unit.Emit(bytecode.OpReturnNil)
	return c.unit
}

// compileFunction compiles a def body into its own code unit.
func (c *Compiler) compileFunction(def *FuncDef) *bytecode.CodeUnit {
	outerUnit, outerInFunc, outerGlobals := c.unit, c.inFunc, c.globals
	defer func() {
		c.unit, c.inFunc, c.globals = outerUnit, outerInFunc, outerGlobals
	}()

	fn := bytecode.NewCodeUnit(def.Name, c.filename, def.At.Line)
	fn.ArgCount = len(def.Params)
	for _, p := range def.Params {
		fn.LocalSlot(p)
	}

	c.unit = fn
	c.inFunc = true
	c.globals = make(map[string]bool)

	// Resolve scopes before emitting: a name is global for the whole body
	// once declared, and local otherwise if it is ever bound.
	c.collectGlobals(def.Body)
	for _, p := range def.Params {
		if c.globals[p] {
			c.errorf(def.At, "name '%s' is parameter and global", p)
		}
	}
	c.collectLocals(def.Body)

	c.compileStatements(def.Body)
	if !endsWithReturn(def.Body) {
		fn.Emit(bytecode.OpReturnNil)
	}
	return fn
}

func (c *Compiler) collectGlobals(stmts []Stmt) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *GlobalStmt:
			for _, name := range n.Names {
				c.globals[name] = true
			}
		case *IfStmt:
			c.collectGlobals(n.Then)
			c.collectGlobals(n.Else)
		case *WhileStmt:
			c.collectGlobals(n.Body)
		}
	}
}

func (c *Compiler) collectLocals(stmts []Stmt) {
	bind := func(name string) {
		if !c.globals[name] {
			c.unit.LocalSlot(name)
		}
	}
	for _, s := range stmts {
		switch n := s.(type) {
		case *AssignStmt:
			for _, t := range n.Targets {
				bind(t)
			}
		case *AugAssignStmt:
			bind(n.Target)
		case *IfStmt:
			c.collectLocals(n.Then)
			c.collectLocals(n.Else)
		case *WhileStmt:
			c.collectLocals(n.Body)
		}
	}
}

func endsWithReturn(stmts []Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(*ReturnStmt)
	return ok
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []Stmt) {
	for _, stmt := range stmts {
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	c.unit.MarkLine(stmt.Pos().Line)

	switch s := stmt.(type) {
	case *ExprStmt:
		c.compileExpr(s.Expr)
		c.unit.Emit(bytecode.OpPop)

	case *AssignStmt:
		c.compileExpr(s.Value)
		for i, target := range s.Targets {
			if i < len(s.Targets)-1 {
				c.unit.Emit(bytecode.OpDup)
			}
			c.compileStore(s.At, target)
		}

	case *AugAssignStmt:
		c.compileLoad(s.At, s.Target)
		c.compileExpr(s.Value)
		c.unit.Emit(binaryOps[s.Op])
		c.compileStore(s.At, s.Target)

	case *ReturnStmt:
		if !c.inFunc {
			c.errorf(s.At, "'return' outside function")
			return
		}
		if s.Value == nil {
			c.unit.Emit(bytecode.OpReturnNil)
			return
		}
		c.compileExpr(s.Value)
		c.unit.Emit(bytecode.OpReturn)

	case *PassStmt:
		c.unit.Emit(bytecode.OpNop)

	case *GlobalStmt:
		// Resolved before codegen

	case *IfStmt:
		c.compileIf(s)

	case *WhileStmt:
		c.compileWhile(s)

	case *FuncDef:
		if c.inFunc {
			c.errorf(s.At, "nested function definitions are not supported")
			return
		}
		fn := c.compileFunction(s)
		c.emitArg(s.At, bytecode.OpMakeFunction, c.unit.AddConst(fn))
		c.compileStore(s.At, s.Name)

	default:
		c.errorf(stmt.Pos(), "unknown statement type: %T", stmt)
	}
}

func (c *Compiler) compileIf(s *IfStmt) {
	c.compileExpr(s.Cond)
	elseJump := c.unit.EmitJump(bytecode.OpJumpIfFalse)

	c.compileStatements(s.Then)

	if len(s.Else) == 0 {
		c.patch(s.At, elseJump)
		return
	}

	endJump := c.unit.EmitJump(bytecode.OpJump)
	c.patch(s.At, elseJump)
	c.compileStatements(s.Else)
	c.patch(s.At, endJump)
}

func (c *Compiler) compileWhile(s *WhileStmt) {
	// The loop head is the line start the back edge returns to.
	top := c.unit.CodeLen()
	c.compileExpr(s.Cond)
	exitJump := c.unit.EmitJump(bytecode.OpJumpIfFalse)

	c.compileStatements(s.Body)
	if err := c.unit.EmitLoop(top); err != nil {
		c.errorf(s.At, "%v", err)
	}

	c.patch(s.At, exitJump)
}

func (c *Compiler) patch(pos Position, placeholder int) {
	if err := c.unit.PatchJump(placeholder); err != nil {
		c.errorf(pos, "%v", err)
	}
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

func (c *Compiler) scopeOf(name string) scope {
	if !c.inFunc {
		return scopeName
	}
	if c.globals[name] {
		return scopeGlobal
	}
	if c.unit.HasLocal(name) {
		return scopeLocal
	}
	return scopeGlobal
}

func (c *Compiler) compileLoad(pos Position, name string) {
	switch c.scopeOf(name) {
	case scopeLocal:
		c.emitArg(pos, bytecode.OpLoadLocal, c.unit.LocalSlot(name))
	case scopeGlobal:
		c.emitArg(pos, bytecode.OpLoadGlobal, c.unit.NameIndex(name))
	default:
		c.emitArg(pos, bytecode.OpLoadName, c.unit.NameIndex(name))
	}
}

func (c *Compiler) compileStore(pos Position, name string) {
	switch c.scopeOf(name) {
	case scopeLocal:
		c.emitArg(pos, bytecode.OpStoreLocal, c.unit.LocalSlot(name))
	case scopeGlobal:
		c.emitArg(pos, bytecode.OpStoreGlobal, c.unit.NameIndex(name))
	default:
		c.emitArg(pos, bytecode.OpStoreName, c.unit.NameIndex(name))
	}
}

func (c *Compiler) emitArg(pos Position, op bytecode.Opcode, arg int) {
	if _, err := c.unit.EmitArg(op, arg); err != nil {
		c.errorf(pos, "%v", err)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[TokenType]bytecode.Opcode{
	TokenPlus:    bytecode.OpAdd,
	TokenMinus:   bytecode.OpSub,
	TokenStar:    bytecode.OpMul,
	TokenSlash:   bytecode.OpDiv,
	TokenPercent: bytecode.OpMod,
	TokenEq:      bytecode.OpEq,
	TokenNe:      bytecode.OpNe,
	TokenLt:      bytecode.OpLt,
	TokenLe:      bytecode.OpLe,
	TokenGt:      bytecode.OpGt,
	TokenGe:      bytecode.OpGe,
}

func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *IntLiteral:
		c.emitConst(e.At, e.Value)
	case *StringLiteral:
		c.emitConst(e.At, e.Value)
	case *BoolLiteral:
		c.emitConst(e.At, e.Value)
	case *NoneLiteral:
		c.emitConst(e.At, nil)

	case *Name:
		c.compileLoad(e.At, e.Name)

	case *UnaryExpr:
		c.compileExpr(e.Operand)
		if e.Op == TokenNot {
			c.unit.Emit(bytecode.OpNot)
		} else {
			c.unit.Emit(bytecode.OpNeg)
		}

	case *BinaryExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			c.errorf(e.At, "unknown operator %s", e.Op)
			return
		}
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.unit.Emit(op)

	case *LogicalExpr:
		// Leaves the deciding operand on the stack.
		c.compileExpr(e.Left)
		c.unit.Emit(bytecode.OpDup)
		jumpOp := bytecode.OpJumpIfFalse
		if e.Op == TokenOr {
			jumpOp = bytecode.OpJumpIfTrue
		}
		end := c.unit.EmitJump(jumpOp)
		c.unit.Emit(bytecode.OpPop)
		c.compileExpr(e.Right)
		c.patch(e.At, end)

	case *CallExpr:
		c.compileExpr(e.Callee)
		for _, arg := range e.Args {
			c.compileExpr(arg)
		}
		c.emitArg(e.At, bytecode.OpCall, len(e.Args))

	default:
		c.errorf(expr.Pos(), "unknown expression type: %T", expr)
	}
}

func (c *Compiler) emitConst(pos Position, v bytecode.Value) {
	c.emitArg(pos, bytecode.OpLoadConst, c.unit.AddConst(v))
}
