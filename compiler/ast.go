package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for scripts
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	At    Position
	Value int64
}

func (n *IntLiteral) Pos() Position { return n.At }
func (n *IntLiteral) node()         {}
func (n *IntLiteral) expr()         {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	At    Position
	Value string
}

func (n *StringLiteral) Pos() Position { return n.At }
func (n *StringLiteral) node()         {}
func (n *StringLiteral) expr()         {}

// BoolLiteral represents True or False.
type BoolLiteral struct {
	At    Position
	Value bool
}

func (n *BoolLiteral) Pos() Position { return n.At }
func (n *BoolLiteral) node()         {}
func (n *BoolLiteral) expr()         {}

// NoneLiteral represents None.
type NoneLiteral struct {
	At Position
}

func (n *NoneLiteral) Pos() Position { return n.At }
func (n *NoneLiteral) node()         {}
func (n *NoneLiteral) expr()         {}

// Name represents a variable reference.
type Name struct {
	At   Position
	Name string
}

func (n *Name) Pos() Position { return n.At }
func (n *Name) node()         {}
func (n *Name) expr()         {}

// UnaryExpr represents -x or not x.
type UnaryExpr struct {
	At      Position
	Op      TokenType // TokenMinus or TokenNot
	Operand Expr
}

func (n *UnaryExpr) Pos() Position { return n.At }
func (n *UnaryExpr) node()         {}
func (n *UnaryExpr) expr()         {}

// BinaryExpr represents an arithmetic or comparison operation.
type BinaryExpr struct {
	At    Position
	Op    TokenType
	Left  Expr
	Right Expr
}

func (n *BinaryExpr) Pos() Position { return n.At }
func (n *BinaryExpr) node()         {}
func (n *BinaryExpr) expr()         {}

// LogicalExpr represents a short-circuit and/or.
type LogicalExpr struct {
	At    Position
	Op    TokenType // TokenAnd or TokenOr
	Left  Expr
	Right Expr
}

func (n *LogicalExpr) Pos() Position { return n.At }
func (n *LogicalExpr) node()         {}
func (n *LogicalExpr) expr()         {}

// CallExpr represents fn(args...).
type CallExpr struct {
	At     Position
	Callee Expr
	Args   []Expr
}

func (n *CallExpr) Pos() Position { return n.At }
func (n *CallExpr) node()         {}
func (n *CallExpr) expr()         {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	At   Position
	Expr Expr
}

func (n *ExprStmt) Pos() Position { return n.At }
func (n *ExprStmt) node()         {}
func (n *ExprStmt) stmt()         {}

// AssignStmt binds one value to every target, left to right.
type AssignStmt struct {
	At      Position
	Targets []string
	Value   Expr
}

func (n *AssignStmt) Pos() Position { return n.At }
func (n *AssignStmt) node()         {}
func (n *AssignStmt) stmt()         {}

// AugAssignStmt represents target op= value.
type AugAssignStmt struct {
	At     Position
	Target string
	Op     TokenType // TokenPlus, TokenMinus or TokenStar
	Value  Expr
}

func (n *AugAssignStmt) Pos() Position { return n.At }
func (n *AugAssignStmt) node()         {}
func (n *AugAssignStmt) stmt()         {}

// ReturnStmt returns from a function. Value is nil for a bare return.
type ReturnStmt struct {
	At    Position
	Value Expr
}

func (n *ReturnStmt) Pos() Position { return n.At }
func (n *ReturnStmt) node()         {}
func (n *ReturnStmt) stmt()         {}

// PassStmt does nothing.
type PassStmt struct {
	At Position
}

func (n *PassStmt) Pos() Position { return n.At }
func (n *PassStmt) node()         {}
func (n *PassStmt) stmt()         {}

// GlobalStmt declares names as module-level inside a function.
type GlobalStmt struct {
	At    Position
	Names []string
}

func (n *GlobalStmt) Pos() Position { return n.At }
func (n *GlobalStmt) node()         {}
func (n *GlobalStmt) stmt()         {}

// IfStmt is an if/elif/else chain. Elif branches are nested IfStmts in Else.
type IfStmt struct {
	At   Position
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *IfStmt) Pos() Position { return n.At }
func (n *IfStmt) node()         {}
func (n *IfStmt) stmt()         {}

// WhileStmt loops while Cond is truthy.
type WhileStmt struct {
	At   Position
	Cond Expr
	Body []Stmt
}

func (n *WhileStmt) Pos() Position { return n.At }
func (n *WhileStmt) node()         {}
func (n *WhileStmt) stmt()         {}

// FuncDef defines a function.
type FuncDef struct {
	At     Position
	Name   string
	Params []string
	Body   []Stmt
}

func (n *FuncDef) Pos() Position { return n.At }
func (n *FuncDef) node()         {}
func (n *FuncDef) stmt()         {}

// ---------------------------------------------------------------------------
// Source file
// ---------------------------------------------------------------------------

// SourceFile is a parsed script.
type SourceFile struct {
	Filename   string
	Statements []Stmt
}
