// Package lexer tokenizes SL source text. Whitespace and single-line `//`
// comments are skipped.
package lexer

import "vaultlang/internal/ast"

// TokenKind enumerates the lexical token classes of the SL grammar.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNumber
	TokString
	TokIdentifier

	// Keywords
	TokFunction
	TokIf
	TokElif
	TokElse
	TokWhile
	TokFor
	TokIn
	TokBreak
	TokContinue
	TokReturn
	TokTry
	TokExcept
	TokFinally
	TokThrow
	TokImport
	TokAs
	TokNonlocal
	TokCapability
	TokResource
	TokAllow
	TokTrue
	TokFalse
	TokNull

	// Punctuation & operators
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokComma
	TokColon
	TokSemicolon
	TokDot
	TokAssign
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokSlashSlash
	TokPercent
	TokBang
	TokAmpAmp
	TokPipePipe
	TokEqEq
	TokNotEq
	TokLt
	TokLte
	TokGt
	TokGte
	TokQuestion
	TokArrow // =>
)

var keywords = map[string]TokenKind{
	"function":   TokFunction,
	"if":         TokIf,
	"elif":       TokElif,
	"else":       TokElse,
	"while":      TokWhile,
	"for":        TokFor,
	"in":         TokIn,
	"break":      TokBreak,
	"continue":   TokContinue,
	"return":     TokReturn,
	"try":        TokTry,
	"except":     TokExcept,
	"finally":    TokFinally,
	"throw":      TokThrow,
	"import":     TokImport,
	"as":         TokAs,
	"nonlocal":   TokNonlocal,
	"capability": TokCapability,
	"resource":   TokResource,
	"allow":      TokAllow,
	"true":       TokTrue,
	"false":      TokFalse,
	"null":       TokNull,
}

// Token is one lexical unit with its source position.
type Token struct {
	Kind     TokenKind
	Lexeme   string
	Position ast.Position
}
