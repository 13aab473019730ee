package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Layout
	TokenNewline // end of a logical line
	TokenIndent  // indentation increased
	TokenDedent  // indentation decreased

	// Literals
	TokenInteger    // 42
	TokenString     // 'hello', "hello"
	TokenIdentifier // foo, Bar

	// Operators
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenEq         // ==
	TokenNe         // !=
	TokenLt         // <
	TokenLe         // <=
	TokenGt         // >
	TokenGe         // >=
	TokenAssign     // =
	TokenPlusAssign // +=
	TokenMinusAssign
	TokenStarAssign

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;

	// Reserved words
	TokenDef
	TokenReturn
	TokenIf
	TokenElif
	TokenElse
	TokenWhile
	TokenPass
	TokenGlobal
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse
	TokenNone
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNewline:     "NEWLINE",
	TokenIndent:      "INDENT",
	TokenDedent:      "DEDENT",
	TokenInteger:     "INTEGER",
	TokenString:      "STRING",
	TokenIdentifier:  "IDENTIFIER",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenEq:          "==",
	TokenNe:          "!=",
	TokenLt:          "<",
	TokenLe:          "<=",
	TokenGt:          ">",
	TokenGe:          ">=",
	TokenAssign:      "=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenComma:       ",",
	TokenColon:       ":",
	TokenSemicolon:   ";",
	TokenDef:         "def",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElif:        "elif",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenPass:        "pass",
	TokenGlobal:      "global",
	TokenAnd:         "and",
	TokenOr:          "or",
	TokenNot:         "not",
	TokenTrue:        "True",
	TokenFalse:       "False",
	TokenNone:        "None",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (decoded for strings)
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"def":    TokenDef,
	"return": TokenReturn,
	"if":     TokenIf,
	"elif":   TokenElif,
	"else":   TokenElse,
	"while":  TokenWhile,
	"pass":   TokenPass,
	"global": TokenGlobal,
	"and":    TokenAnd,
	"or":     TokenOr,
	"not":    TokenNot,
	"True":   TokenTrue,
	"False":  TokenFalse,
	"None":   TokenNone,
}
