package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for indentation-structured scripts
// ---------------------------------------------------------------------------

// tabWidth is the column stop a tab advances indentation to.
const tabWidth = 8

// Lexer tokenizes script source code. Block structure is reported with
// INDENT and DEDENT tokens; line ends outside parentheses produce NEWLINE.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	col       int  // current column (1-based)
	lineStart int  // offset of current line start

	indents     []int   // indentation stack, always starts with 0
	pending     []Token // queued DEDENT tokens
	atLineStart bool
	parenDepth  int
	last        TokenType
	done        bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:       input,
		line:        1,
		col:         0,
		indents:     []int{0},
		atLineStart: true,
		last:        TokenNewline,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	tok := l.next()
	l.last = tok.Type
	return tok
}

func (l *Lexer) next() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	for {
		if l.atLineStart && l.parenDepth == 0 {
			if tok, ok := l.readIndentation(); ok {
				return tok
			}
			if len(l.pending) > 0 {
				return l.next()
			}
		}

		l.skipBlanks()

		pos := l.position()
		switch {
		case l.ch == 0:
			return l.finish(pos)

		case l.ch == '\n' || l.ch == '\r':
			l.skipLineEnd()
			if l.parenDepth > 0 {
				continue
			}
			l.atLineStart = true
			return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

		default:
			return l.readToken(pos)
		}
	}
}

// readIndentation measures the indentation of a new logical line. Blank and
// comment-only lines are skipped. It reports an INDENT token directly and
// queues DEDENT tokens on l.pending.
func (l *Lexer) readIndentation() (Token, bool) {
	for {
		width := 0
		for l.ch == ' ' || l.ch == '\t' {
			if l.ch == '\t' {
				width += tabWidth - width%tabWidth
			} else {
				width++
			}
			l.readChar()
		}

		switch l.ch {
		case '#':
			l.skipComment()
			fallthrough
		case '\n', '\r':
			if l.ch == 0 {
				return Token{}, false
			}
			l.skipLineEnd()
			continue
		case 0:
			return Token{}, false
		}

		l.atLineStart = false
		pos := l.position()
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			return Token{Type: TokenIndent, Literal: "", Pos: pos}, true
		case width < top:
			for width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: TokenDedent, Literal: "", Pos: pos})
			}
			if width != l.indents[len(l.indents)-1] {
				l.pending = append(l.pending, Token{Type: TokenError, Literal: "unindent does not match any outer indentation level", Pos: pos})
			}
		}
		return Token{}, false
	}
}

// finish emits the tokens that close the input: a final NEWLINE if the last
// line had content, one DEDENT per open block, then EOF.
func (l *Lexer) finish(pos Position) Token {
	if l.done {
		return Token{Type: TokenEOF, Literal: "", Pos: pos}
	}
	l.done = true
	if l.last != TokenNewline && l.last != TokenDedent && l.last != TokenIndent {
		l.pending = append(l.pending, Token{Type: TokenNewline, Literal: "", Pos: pos})
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.pending = append(l.pending, Token{Type: TokenDedent, Literal: "", Pos: pos})
	}
	l.pending = append(l.pending, Token{Type: TokenEOF, Literal: "", Pos: pos})
	return l.next()
}

// skipBlanks skips spaces, tabs and comments within a line.
func (l *Lexer) skipBlanks() {
	for {
		for l.ch == ' ' || l.ch == '\t' {
			l.readChar()
		}
		if l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r') {
			// Explicit line continuation
			l.readChar()
			l.skipLineEnd()
			continue
		}
		if l.ch == '#' {
			l.skipComment()
		}
		return
	}
}

func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != '\r' && l.ch != 0 {
		l.readChar()
	}
}

func (l *Lexer) skipLineEnd() {
	if l.ch == '\r' {
		l.readChar()
	}
	if l.ch == '\n' {
		l.readChar()
	}
}

func (l *Lexer) readToken(pos Position) Token {
	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	withEquals := func(plain, eq TokenType) Token {
		first := l.ch
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: eq, Literal: string(first) + "=", Pos: pos}
		}
		return Token{Type: plain, Literal: string(first), Pos: pos}
	}

	switch {
	case l.ch == '(':
		l.parenDepth++
		return single(TokenLParen)

	case l.ch == ')':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
		return single(TokenRParen)

	case l.ch == ',':
		return single(TokenComma)
	case l.ch == ':':
		return single(TokenColon)
	case l.ch == ';':
		return single(TokenSemicolon)
	case l.ch == '/':
		return single(TokenSlash)
	case l.ch == '%':
		return single(TokenPercent)

	case l.ch == '+':
		return withEquals(TokenPlus, TokenPlusAssign)
	case l.ch == '-':
		return withEquals(TokenMinus, TokenMinusAssign)
	case l.ch == '*':
		return withEquals(TokenStar, TokenStarAssign)
	case l.ch == '=':
		return withEquals(TokenAssign, TokenEq)
	case l.ch == '<':
		return withEquals(TokenLt, TokenLe)
	case l.ch == '>':
		return withEquals(TokenGt, TokenGe)

	case l.ch == '!':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenNe, Literal: "!=", Pos: pos}
		}
		return Token{Type: TokenError, Literal: "unexpected character: !", Pos: pos}

	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
	}
}

// readString reads a quoted string, decoding escapes.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()

	var sb strings.Builder
	for l.ch != quote {
		switch l.ch {
		case 0, '\n', '\r':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(l.ch)
			case 0:
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			default:
				sb.WriteRune('\\')
				sb.WriteRune(l.ch)
			}
		default:
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // closing quote

	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readNumber reads a decimal integer literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if isLetter(l.ch) {
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenError, Literal: "invalid number literal: " + l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}
