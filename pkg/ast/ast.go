// Package ast defines the abstract syntax tree produced by the parser
// and consumed by the semantic analyzer and the HIR generator.
//
// Node tags come from two ranges: token tags (below 1000, used for
// leaf nodes wrapping a single token such as a type modifier) and
// interior-node tags (1000 and above).
package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/token"
	"github.com/ncc-lang/ncc/pkg/types"
)

type Tag int

const (
	Unit Tag = iota + 1000
	VarDecl
	StructType
	UnionType
	BasicType
	DeclaratorList
	NamedDeclarator
	PointerDeclarator
	ArrayDeclarator
	FunctionDefinition
	FunctionDeclaration
	ParameterList
	Parameter
	StatementList
	EmptyStatement
	ExpressionStatement
	ReturnStatement
	ReturnExpressionStatement
	WhileStatement
	DoWhileStatement
	ForStatement
	IfStatement
	IfElseStatement
	StructTypeDefinition
	UnionTypeDefinition
	FieldDefinitionList
	BinaryExpression
	UnaryExpression
	PostfixExpression
	ConditionalExpression
	CastExpression
	FunctionCallExpression
	FieldRefExpression
	IndirectFieldRefExpression
	ArrayElementRefExpression
	ArgumentExpressionList
	VariableRef
	LiteralValue
	ImplicitConversion
)

var tagNames = map[Tag]string{
	Unit:                       "unit",
	VarDecl:                    "variable_declaration",
	StructType:                 "struct_type",
	UnionType:                  "union_type",
	BasicType:                  "basic_type",
	DeclaratorList:             "declarator_list",
	NamedDeclarator:            "named_declarator",
	PointerDeclarator:          "pointer_declarator",
	ArrayDeclarator:            "array_declarator",
	FunctionDefinition:         "function_definition",
	FunctionDeclaration:        "function_declaration",
	ParameterList:              "parameter_list",
	Parameter:                  "parameter",
	StatementList:              "statement_list",
	EmptyStatement:             "empty_statement",
	ExpressionStatement:        "expression_statement",
	ReturnStatement:            "return_statement",
	ReturnExpressionStatement:  "return_expression_statement",
	WhileStatement:             "while_statement",
	DoWhileStatement:           "do_while_statement",
	ForStatement:               "for_statement",
	IfStatement:                "if_statement",
	IfElseStatement:            "if_else_statement",
	StructTypeDefinition:       "struct_type_definition",
	UnionTypeDefinition:        "union_type_definition",
	FieldDefinitionList:        "field_definition_list",
	BinaryExpression:           "binary_expression",
	UnaryExpression:            "unary_expression",
	PostfixExpression:          "postfix_expression",
	ConditionalExpression:      "conditional_expression",
	CastExpression:             "cast_expression",
	FunctionCallExpression:     "function_call_expression",
	FieldRefExpression:         "field_ref_expression",
	IndirectFieldRefExpression: "indirect_field_ref_expression",
	ArrayElementRefExpression:  "array_element_ref_expression",
	ArgumentExpressionList:     "argument_expression_list",
	VariableRef:                "variable_ref",
	LiteralValue:               "literal_value",
	ImplicitConversion:         "implicit_conversion",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// LiteralKind tags a Literal.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitInteger
	LitCharacter
	LitString
)

// Literal is the value of a literal-value node. Integers carry the
// value plus unsigned/long markers; character literals carry the
// codepoint in IntValue; strings carry the raw (unescaped) text.
type Literal struct {
	Kind       LiteralKind
	IntValue   int64
	IsUnsigned bool
	IsLong     bool
	StrValue   string
}

// Node is one node of the tree. A node whose Tag is below 1000 is a
// leaf wrapping the token with that tag (type modifiers and operator
// tokens appear this way). Type, Sym, Lit, and Operand are annotations
// filled in by later stages.
type Node struct {
	Tag     Tag
	Loc     token.Location
	Lexeme  string
	Op      token.Type // operator of binary/unary expressions
	Kids    []*Node
	Type    *types.Type
	Sym     *symtab.Symbol
	Lit     *Literal
	Operand ir.Operand // set by the HIR generator
}

func New(tag Tag, loc token.Location, kids ...*Node) *Node {
	return &Node{Tag: tag, Loc: loc, Kids: kids}
}

// NewTok wraps a single token as a leaf node; its tag is the token tag.
func NewTok(tok token.Token) *Node {
	return &Node{Tag: Tag(tok.Type), Loc: tok.Loc, Lexeme: tok.Value}
}

func NewIdent(tag Tag, tok token.Token) *Node {
	return &Node{Tag: tag, Loc: tok.Loc, Lexeme: tok.Value}
}

func NewLiteral(loc token.Location, lit *Literal) *Node {
	return &Node{Tag: LiteralValue, Loc: loc, Lit: lit}
}

// NewImplicitConversion wraps expr in an implicit-conversion node
// carrying the promoted type.
func NewImplicitConversion(expr *Node, typ *types.Type) *Node {
	return &Node{Tag: ImplicitConversion, Loc: expr.Loc, Kids: []*Node{expr}, Type: typ}
}

func (n *Node) Kid(i int) *Node { return n.Kids[i] }
func (n *Node) NumKids() int    { return len(n.Kids) }

func (n *Node) Append(kid *Node) { n.Kids = append(n.Kids, kid) }

// IsTokenLeaf reports whether the node wraps a single token.
func (n *Node) IsTokenLeaf() bool { return n.Tag < 1000 }

// Dump writes an indented rendering of the tree, one node per line,
// for the -p mode of the driver.
func (n *Node) Dump(w io.Writer) { n.dump(w, 0) }

func (n *Node) dump(w io.Writer, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.IsTokenLeaf():
		fmt.Fprintf(w, "%sTOK[%s]\n", indent, n.Lexeme)
	case n.Lit != nil:
		switch n.Lit.Kind {
		case LitString:
			fmt.Fprintf(w, "%s%s[%q]\n", indent, n.Tag, n.Lit.StrValue)
		default:
			fmt.Fprintf(w, "%s%s[%d]\n", indent, n.Tag, n.Lit.IntValue)
		}
	case n.Lexeme != "":
		fmt.Fprintf(w, "%s%s[%s]\n", indent, n.Tag, n.Lexeme)
	default:
		fmt.Fprintf(w, "%s%s\n", indent, n.Tag)
	}
	for _, kid := range n.Kids {
		kid.dump(w, depth+1)
	}
}
