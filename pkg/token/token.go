package token

import "fmt"

type Type int

// Token tags. These occupy the range below 1000; interior AST node
// tags start at 1000 (see pkg/ast).
const (
	EOF Type = iota
	Ident
	Number
	CharLit
	String

	// Keywords
	Char
	Short
	Int
	Long
	Void
	Signed
	Unsigned
	Const
	Volatile
	Struct
	Union
	If
	Else
	While
	Do
	For
	Return

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Dot
	Arrow

	// Operators
	Assign
	Plus
	Minus
	Star
	Slash
	Percent
	Amp
	Pipe
	AndAnd
	OrOr
	Not
	EqEq
	Neq
	Lt
	Gt
	Lte
	Gte
)

var KeywordMap = map[string]Type{
	"char":     Char,
	"short":    Short,
	"int":      Int,
	"long":     Long,
	"void":     Void,
	"signed":   Signed,
	"unsigned": Unsigned,
	"const":    Const,
	"volatile": Volatile,
	"struct":   Struct,
	"union":    Union,
	"if":       If,
	"else":     Else,
	"while":    While,
	"do":       Do,
	"for":      For,
	"return":   Return,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

// Location identifies a source position. It is carried on every token,
// AST node, and diagnostic.
type Location struct {
	File string
	Line int
	Col  int
}

// Valid reports whether the location refers to an actual source position.
func (l Location) Valid() bool { return l.Line > 0 }

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

type Token struct {
	Type  Type
	Value string
	Loc   Location
}

// IsTypeKeyword reports whether the token can begin a declaration.
func (t Token) IsTypeKeyword() bool {
	switch t.Type {
	case Char, Short, Int, Long, Void, Signed, Unsigned, Const, Volatile, Struct, Union:
		return true
	}
	return false
}
