package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for script syntax
// ---------------------------------------------------------------------------

// Parser parses script source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// synchronize skips to the start of the next statement after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenNewline) && !p.curTokenIs(TokenDedent) {
		p.nextToken()
	}
	if p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseSourceFile parses a complete script.
func (p *Parser) ParseSourceFile(filename string) *SourceFile {
	sf := &SourceFile{Filename: filename}
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		if p.curTokenIs(TokenDedent) {
			// Left over from a block abandoned after an error
			p.nextToken()
			continue
		}
		if p.curTokenIs(TokenIndent) {
			p.errorf("unexpected indent")
			p.nextToken()
			continue
		}
		sf.Statements = append(sf.Statements, p.parseStatement()...)
	}
	return sf
}

// parseStatement parses one compound statement or one line of simple
// statements.
func (p *Parser) parseStatement() []Stmt {
	errCount := len(p.errors)
	var stmts []Stmt

	switch p.curToken.Type {
	case TokenDef:
		if s := p.parseFuncDef(); s != nil {
			stmts = append(stmts, s)
		}
	case TokenIf:
		if s := p.parseIf(); s != nil {
			stmts = append(stmts, s)
		}
	case TokenWhile:
		if s := p.parseWhile(); s != nil {
			stmts = append(stmts, s)
		}
	case TokenError:
		p.errorf("%s", p.curToken.Literal)
	default:
		stmts = p.parseSimpleStatements()
	}

	if len(p.errors) > errCount {
		p.synchronize()
		return nil
	}
	return stmts
}

// parseSimpleStatements parses `stmt (; stmt)* [;] NEWLINE`.
func (p *Parser) parseSimpleStatements() []Stmt {
	var stmts []Stmt
	for {
		s := p.parseSimpleStatement()
		if s == nil {
			return nil
		}
		stmts = append(stmts, s)

		if !p.curTokenIs(TokenSemicolon) {
			break
		}
		p.nextToken()
		if p.curTokenIs(TokenNewline) || p.curTokenIs(TokenEOF) {
			break
		}
	}

	if p.curTokenIs(TokenEOF) {
		return stmts
	}
	if !p.expect(TokenNewline) {
		return nil
	}
	return stmts
}

func (p *Parser) parseSimpleStatement() Stmt {
	pos := p.curToken.Pos

	switch p.curToken.Type {
	case TokenPass:
		p.nextToken()
		return &PassStmt{At: pos}

	case TokenReturn:
		p.nextToken()
		if p.curTokenIs(TokenNewline) || p.curTokenIs(TokenSemicolon) || p.curTokenIs(TokenEOF) {
			return &ReturnStmt{At: pos}
		}
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		return &ReturnStmt{At: pos, Value: value}

	case TokenGlobal:
		p.nextToken()
		var names []string
		for {
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected name after global, got %s", p.curToken.Type)
				return nil
			}
			names = append(names, p.curToken.Literal)
			p.nextToken()
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		return &GlobalStmt{At: pos, Names: names}
	}

	expr := p.parseExpression()
	if expr == nil {
		return nil
	}

	switch p.curToken.Type {
	case TokenAssign:
		return p.parseAssignment(pos, expr)

	case TokenPlusAssign, TokenMinusAssign, TokenStarAssign:
		name, ok := expr.(*Name)
		if !ok {
			p.errorf("illegal expression for augmented assignment")
			return nil
		}
		op := map[TokenType]TokenType{
			TokenPlusAssign:  TokenPlus,
			TokenMinusAssign: TokenMinus,
			TokenStarAssign:  TokenStar,
		}[p.curToken.Type]
		p.nextToken()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		return &AugAssignStmt{At: pos, Target: name.Name, Op: op, Value: value}
	}

	return &ExprStmt{At: pos, Expr: expr}
}

// parseAssignment parses the rest of `a = b = ... = value` once the first
// target has been read.
func (p *Parser) parseAssignment(pos Position, first Expr) Stmt {
	targets := []Expr{first}
	var value Expr
	for p.curTokenIs(TokenAssign) {
		p.nextToken()
		value = p.parseExpression()
		if value == nil {
			return nil
		}
		if p.curTokenIs(TokenAssign) {
			targets = append(targets, value)
		}
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		n, ok := t.(*Name)
		if !ok {
			p.errorf("cannot assign to expression")
			return nil
		}
		names = append(names, n.Name)
	}
	return &AssignStmt{At: pos, Targets: names, Value: value}
}

// parseBlock parses `: simple_stmts` or `: NEWLINE INDENT stmt+ DEDENT`.
func (p *Parser) parseBlock() []Stmt {
	if !p.expect(TokenColon) {
		return nil
	}

	if !p.curTokenIs(TokenNewline) {
		return p.parseSimpleStatements()
	}
	p.nextToken()

	if !p.curTokenIs(TokenIndent) {
		p.errorf("expected an indented block")
		return nil
	}
	p.nextToken()

	var body []Stmt
	for !p.curTokenIs(TokenDedent) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		if p.curTokenIs(TokenIndent) {
			p.errorf("unexpected indent")
			return nil
		}
		errCount := len(p.errors)
		body = append(body, p.parseStatement()...)
		if len(p.errors) > errCount {
			return nil
		}
	}
	if p.curTokenIs(TokenDedent) {
		p.nextToken()
	}
	return body
}

func (p *Parser) parseFuncDef() Stmt {
	pos := p.curToken.Pos
	p.nextToken() // def

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", p.curToken.Type)
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil
	}
	var params []string
	seen := make(map[string]bool)
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken.Type)
			return nil
		}
		param := p.curToken.Literal
		if seen[param] {
			p.errorf("duplicate argument '%s' in function definition", param)
			return nil
		}
		seen[param] = true
		params = append(params, param)
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		return nil
	}

	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &FuncDef{At: pos, Name: name, Params: params, Body: body}
}

func (p *Parser) parseIf() Stmt {
	pos := p.curToken.Pos
	p.nextToken() // if / elif

	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}

	stmt := &IfStmt{At: pos, Cond: cond, Then: then}
	switch p.curToken.Type {
	case TokenElif:
		elif := p.parseIf()
		if elif == nil {
			return nil
		}
		stmt.Else = []Stmt{elif}
	case TokenElse:
		p.nextToken()
		stmt.Else = p.parseBlock()
		if stmt.Else == nil {
			return nil
		}
	}
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	pos := p.curToken.Pos
	p.nextToken() // while

	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return &WhileStmt{At: pos, Cond: cond, Body: body}
}

// ---------------------------------------------------------------------------
// Expression parsing, lowest precedence first
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseExpression()
}

func (p *Parser) parseExpression() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for left != nil && p.curTokenIs(TokenOr) {
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = &LogicalExpr{At: pos, Op: TokenOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseNot()
	for left != nil && p.curTokenIs(TokenAnd) {
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseNot()
		if right == nil {
			return nil
		}
		left = &LogicalExpr{At: pos, Op: TokenAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() Expr {
	if p.curTokenIs(TokenNot) {
		pos := p.curToken.Pos
		p.nextToken()
		operand := p.parseNot()
		if operand == nil {
			return nil
		}
		return &UnaryExpr{At: pos, Op: TokenNot, Operand: operand}
	}
	return p.parseComparison()
}

func isComparison(t TokenType) bool {
	switch t {
	case TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
		return true
	}
	return false
}

func (p *Parser) parseComparison() Expr {
	left := p.parseSum()
	if left == nil {
		return nil
	}
	if isComparison(p.curToken.Type) {
		pos := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		right := p.parseSum()
		if right == nil {
			return nil
		}
		if isComparison(p.curToken.Type) {
			p.errorf("chained comparisons are not supported")
			return nil
		}
		return &BinaryExpr{At: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseSum() Expr {
	left := p.parseTerm()
	for left != nil && (p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus)) {
		pos := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		right := p.parseTerm()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{At: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseTerm() Expr {
	left := p.parseUnary()
	for left != nil && (p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) || p.curTokenIs(TokenPercent)) {
		pos := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{At: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) {
		pos := p.curToken.Pos
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		if lit, ok := operand.(*IntLiteral); ok {
			return &IntLiteral{At: pos, Value: -lit.Value}
		}
		return &UnaryExpr{At: pos, Op: TokenMinus, Operand: operand}
	}
	return p.parseCall()
}

func (p *Parser) parseCall() Expr {
	expr := p.parsePrimary()
	for expr != nil && p.curTokenIs(TokenLParen) {
		pos := p.curToken.Pos
		p.nextToken()
		var args []Expr
		for !p.curTokenIs(TokenRParen) {
			arg := p.parseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		expr = &CallExpr{At: pos, Callee: expr, Args: args}
	}
	return expr
}

// parsePrimary parses primary expressions.
func (p *Parser) parsePrimary() Expr {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case TokenInteger:
		return p.parseInteger()
	case TokenString:
		lit := &StringLiteral{At: pos, Value: p.curToken.Literal}
		p.nextToken()
		return lit
	case TokenIdentifier:
		n := &Name{At: pos, Name: p.curToken.Literal}
		p.nextToken()
		return n
	case TokenTrue, TokenFalse:
		lit := &BoolLiteral{At: pos, Value: p.curTokenIs(TokenTrue)}
		p.nextToken()
		return lit
	case TokenNone:
		p.nextToken()
		return &NoneLiteral{At: pos}
	case TokenLParen:
		p.nextToken()
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr
	case TokenError:
		p.errorf("%s", p.curToken.Literal)
		return nil
	default:
		p.errorf("unexpected token: %s", p.curToken.Type)
		return nil
	}
}

func (p *Parser) parseInteger() Expr {
	pos := p.curToken.Pos
	literal := strings.ReplaceAll(p.curToken.Literal, "_", "")
	value, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		p.errorf("invalid integer literal: %s", p.curToken.Literal)
		return nil
	}
	p.nextToken()
	return &IntLiteral{At: pos, Value: value}
}
