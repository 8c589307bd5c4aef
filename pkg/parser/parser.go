// Package parser implements a recursive-descent parser for the
// nearly-C source language, producing the pkg/ast tree.
//
// Declarators follow the grammar's intended nesting: the array suffix
// binds tighter than the pointer prefix, so "int *p[3]" declares an
// array of three pointers and "int (*p)[3]" a pointer to an array of
// three ints.
package parser

import (
	"strconv"
	"strings"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/token"
	"github.com/ncc-lang/ncc/pkg/util"
)

type Parser struct {
	tokens []token.Token
	pos    int
}

func NewParser(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) peek() token.Token { return p.tokens[p.pos] }

func (p *Parser) peekAt(off int) token.Token {
	if p.pos+off >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos+off]
}

func (p *Parser) next() token.Token {
	tok := p.tokens[p.pos]
	if tok.Type != token.EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) accept(t token.Type) bool {
	if p.peek().Type == t {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t token.Type, what string) token.Token {
	tok := p.peek()
	if tok.Type != t {
		util.Errorf(tok.Loc, "expected %s, found '%s'", what, tok.Value)
	}
	return p.next()
}

// Parse consumes the whole token stream and returns the unit node.
func (p *Parser) Parse() *ast.Node {
	unit := ast.New(ast.Unit, p.peek().Loc)
	for p.peek().Type != token.EOF {
		unit.Append(p.parseTopLevel())
	}
	return unit
}

func (p *Parser) parseTopLevel() *ast.Node {
	tok := p.peek()
	if !tok.IsTypeKeyword() {
		util.Errorf(tok.Loc, "expected declaration, found '%s'", tok.Value)
	}

	// struct definition: struct IDENT { ... } ;
	if tok.Type == token.Struct && p.peekAt(2).Type == token.LBrace {
		return p.parseStructDefinition()
	}
	if tok.Type == token.Union && p.peekAt(2).Type == token.LBrace {
		util.Errorf(tok.Loc, "unions are not supported")
	}

	baseType := p.parseBaseType()
	declarator := p.parseDeclarator()

	if p.peek().Type == token.LParen {
		return p.parseFunction(baseType, declarator)
	}
	return p.finishVarDecl(baseType, declarator)
}

// parseBaseType collects the modifier tokens of a basic type, or a
// struct type reference, into a single node.
func (p *Parser) parseBaseType() *ast.Node {
	tok := p.peek()

	// Leading qualifiers apply to struct references too.
	var quals []*ast.Node
	for p.peek().Type == token.Const || p.peek().Type == token.Volatile {
		quals = append(quals, ast.NewTok(p.next()))
	}

	if p.peek().Type == token.Struct {
		structTok := p.next()
		nameTok := p.expect(token.Ident, "struct tag")
		node := ast.NewIdent(ast.StructType, nameTok)
		node.Loc = structTok.Loc
		node.Kids = quals
		return node
	}

	node := ast.New(ast.BasicType, tok.Loc)
	node.Kids = append(node.Kids, quals...)
	for p.peek().IsTypeKeyword() && p.peek().Type != token.Struct && p.peek().Type != token.Union {
		node.Append(ast.NewTok(p.next()))
	}
	if node.NumKids() == 0 {
		util.Errorf(tok.Loc, "expected type, found '%s'", tok.Value)
	}
	return node
}

// parseDeclarator parses "*"* direct ("[" NUM "]")*, where direct is a
// name or a parenthesized declarator. Array suffixes wrap the direct
// declarator; pointer prefixes wrap the result.
func (p *Parser) parseDeclarator() *ast.Node {
	if p.peek().Type == token.Star {
		starTok := p.next()
		inner := p.parseDeclarator()
		return ast.New(ast.PointerDeclarator, starTok.Loc, inner)
	}
	return p.parseDirectDeclarator()
}

func (p *Parser) parseDirectDeclarator() *ast.Node {
	var node *ast.Node
	switch p.peek().Type {
	case token.Ident:
		node = ast.NewIdent(ast.NamedDeclarator, p.next())
	case token.LParen:
		p.next()
		node = p.parseDeclarator()
		p.expect(token.RParen, "')'")
	default:
		util.Errorf(p.peek().Loc, "expected declarator, found '%s'", p.peek().Value)
	}

	for p.peek().Type == token.LBracket {
		bracketTok := p.next()
		sizeTok := p.expect(token.Number, "array size")
		p.expect(token.RBracket, "']'")
		arr := ast.New(ast.ArrayDeclarator, bracketTok.Loc, node)
		arr.Lexeme = sizeTok.Value
		node = arr
	}
	return node
}

func (p *Parser) parseStructDefinition() *ast.Node {
	structTok := p.expect(token.Struct, "'struct'")
	nameTok := p.expect(token.Ident, "struct tag")
	p.expect(token.LBrace, "'{'")

	fields := ast.New(ast.FieldDefinitionList, p.peek().Loc)
	for p.peek().Type != token.RBrace {
		baseType := p.parseBaseType()
		declarator := p.parseDeclarator()
		fields.Append(p.finishVarDecl(baseType, declarator))
	}
	p.expect(token.RBrace, "'}'")
	p.expect(token.Semi, "';'")

	node := ast.NewIdent(ast.StructTypeDefinition, nameTok)
	node.Loc = structTok.Loc
	node.Append(fields)
	return node
}

// finishVarDecl completes a variable declaration whose base type and
// first declarator have been consumed, through the terminating ';'.
// A declaration with an initializer declares a single variable.
func (p *Parser) finishVarDecl(baseType, first *ast.Node) *ast.Node {
	declarators := ast.New(ast.DeclaratorList, first.Loc, first)
	if p.peek().Type == token.Assign {
		p.next()
		init := p.parseAssignment()
		p.expect(token.Semi, "';'")
		return ast.New(ast.VarDecl, baseType.Loc, baseType, declarators, init)
	}
	for p.accept(token.Comma) {
		declarators.Append(p.parseDeclarator())
	}
	p.expect(token.Semi, "';'")
	return ast.New(ast.VarDecl, baseType.Loc, baseType, declarators)
}

// parseFunction completes a function definition or declaration. The
// declarator holds the function's name at its leaf; any pointer layers
// around the name apply to the return type.
func (p *Parser) parseFunction(baseType, declarator *ast.Node) *ast.Node {
	name := declaratorName(declarator)

	p.expect(token.LParen, "'('")
	params := ast.New(ast.ParameterList, p.peek().Loc)
	if p.peek().Type == token.Void && p.peekAt(1).Type == token.RParen {
		p.next()
	} else if p.peek().Type != token.RParen {
		for {
			paramType := p.parseBaseType()
			paramDecl := p.parseDeclarator()
			params.Append(ast.New(ast.Parameter, paramType.Loc, paramType, paramDecl))
			if !p.accept(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "')'")

	if p.accept(token.Semi) {
		node := ast.New(ast.FunctionDeclaration, baseType.Loc, baseType, declarator, params)
		node.Lexeme = name
		return node
	}

	body := p.parseCompoundStatement()
	node := ast.New(ast.FunctionDefinition, baseType.Loc, baseType, declarator, params, body)
	node.Lexeme = name
	return node
}

func declaratorName(declarator *ast.Node) string {
	for declarator.Tag != ast.NamedDeclarator {
		declarator = declarator.Kid(0)
	}
	return declarator.Lexeme
}

func (p *Parser) parseCompoundStatement() *ast.Node {
	lbrace := p.expect(token.LBrace, "'{'")
	stmts := ast.New(ast.StatementList, lbrace.Loc)
	for p.peek().Type != token.RBrace {
		if p.peek().Type == token.EOF {
			util.Errorf(lbrace.Loc, "unterminated block")
		}
		stmts.Append(p.parseStatement())
	}
	p.expect(token.RBrace, "'}'")
	return stmts
}

func (p *Parser) parseStatement() *ast.Node {
	tok := p.peek()
	switch {
	case tok.IsTypeKeyword():
		baseType := p.parseBaseType()
		declarator := p.parseDeclarator()
		return p.finishVarDecl(baseType, declarator)

	case tok.Type == token.LBrace:
		return p.parseCompoundStatement()

	case tok.Type == token.Semi:
		p.next()
		return ast.New(ast.EmptyStatement, tok.Loc)

	case tok.Type == token.Return:
		p.next()
		if p.accept(token.Semi) {
			return ast.New(ast.ReturnStatement, tok.Loc)
		}
		expr := p.parseExpression()
		p.expect(token.Semi, "';'")
		return ast.New(ast.ReturnExpressionStatement, tok.Loc, expr)

	case tok.Type == token.While:
		p.next()
		p.expect(token.LParen, "'('")
		cond := p.parseExpression()
		p.expect(token.RParen, "')'")
		body := p.parseStatement()
		return ast.New(ast.WhileStatement, tok.Loc, cond, body)

	case tok.Type == token.Do:
		p.next()
		body := p.parseStatement()
		p.expect(token.While, "'while'")
		p.expect(token.LParen, "'('")
		cond := p.parseExpression()
		p.expect(token.RParen, "')'")
		p.expect(token.Semi, "';'")
		return ast.New(ast.DoWhileStatement, tok.Loc, body, cond)

	case tok.Type == token.For:
		p.next()
		p.expect(token.LParen, "'('")
		init := p.parseExpression()
		p.expect(token.Semi, "';'")
		cond := p.parseExpression()
		p.expect(token.Semi, "';'")
		step := p.parseExpression()
		p.expect(token.RParen, "')'")
		body := p.parseStatement()
		return ast.New(ast.ForStatement, tok.Loc, init, cond, step, body)

	case tok.Type == token.If:
		p.next()
		p.expect(token.LParen, "'('")
		cond := p.parseExpression()
		p.expect(token.RParen, "')'")
		thenStmt := p.parseStatement()
		if p.accept(token.Else) {
			elseStmt := p.parseStatement()
			return ast.New(ast.IfElseStatement, tok.Loc, cond, thenStmt, elseStmt)
		}
		return ast.New(ast.IfStatement, tok.Loc, cond, thenStmt)

	default:
		expr := p.parseExpression()
		p.expect(token.Semi, "';'")
		return ast.New(ast.ExpressionStatement, tok.Loc, expr)
	}
}

// Expression parsing, lowest precedence first.

func (p *Parser) parseExpression() *ast.Node { return p.parseAssignment() }

func (p *Parser) parseAssignment() *ast.Node {
	lhs := p.parseLogicalOr()
	if p.peek().Type == token.Assign {
		opTok := p.next()
		rhs := p.parseAssignment()
		node := ast.New(ast.BinaryExpression, opTok.Loc, lhs, rhs)
		node.Op = token.Assign
		return node
	}
	return lhs
}

func (p *Parser) parseBinaryLevel(operators []token.Type, operand func() *ast.Node) *ast.Node {
	lhs := operand()
	for {
		matched := false
		for _, op := range operators {
			if p.peek().Type == op {
				opTok := p.next()
				rhs := operand()
				node := ast.New(ast.BinaryExpression, opTok.Loc, lhs, rhs)
				node.Op = op
				lhs = node
				matched = true
				break
			}
		}
		if !matched {
			return lhs
		}
	}
}

func (p *Parser) parseLogicalOr() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.OrOr}, p.parseLogicalAnd)
}

func (p *Parser) parseLogicalAnd() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.AndAnd}, p.parseEquality)
}

func (p *Parser) parseEquality() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.EqEq, token.Neq}, p.parseRelational)
}

func (p *Parser) parseRelational() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.Lt, token.Lte, token.Gt, token.Gte}, p.parseAdditive)
}

func (p *Parser) parseAdditive() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.Plus, token.Minus}, p.parseMultiplicative)
}

func (p *Parser) parseMultiplicative() *ast.Node {
	return p.parseBinaryLevel([]token.Type{token.Star, token.Slash, token.Percent}, p.parseUnary)
}

func (p *Parser) parseUnary() *ast.Node {
	tok := p.peek()
	switch tok.Type {
	case token.Minus, token.Not, token.Amp, token.Star:
		p.next()
		operand := p.parseUnary()
		node := ast.New(ast.UnaryExpression, tok.Loc, operand)
		node.Op = tok.Type
		return node
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() *ast.Node {
	node := p.parsePrimary()
	for {
		tok := p.peek()
		switch tok.Type {
		case token.LParen:
			p.next()
			args := ast.New(ast.ArgumentExpressionList, tok.Loc)
			if p.peek().Type != token.RParen {
				for {
					args.Append(p.parseExpression())
					if !p.accept(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "')'")
			node = ast.New(ast.FunctionCallExpression, tok.Loc, node, args)

		case token.LBracket:
			p.next()
			index := p.parseExpression()
			p.expect(token.RBracket, "']'")
			node = ast.New(ast.ArrayElementRefExpression, tok.Loc, node, index)

		case token.Dot:
			p.next()
			member := p.expect(token.Ident, "member name")
			ref := ast.New(ast.FieldRefExpression, tok.Loc, node)
			ref.Lexeme = member.Value
			node = ref

		case token.Arrow:
			p.next()
			member := p.expect(token.Ident, "member name")
			ref := ast.New(ast.IndirectFieldRefExpression, tok.Loc, node)
			ref.Lexeme = member.Value
			node = ref

		default:
			return node
		}
	}
}

func (p *Parser) parsePrimary() *ast.Node {
	tok := p.peek()
	switch tok.Type {
	case token.Ident:
		p.next()
		return ast.NewIdent(ast.VariableRef, tok)

	case token.Number:
		p.next()
		return ast.NewLiteral(tok.Loc, parseIntegerLiteral(tok))

	case token.CharLit:
		p.next()
		lit := &ast.Literal{Kind: ast.LitCharacter}
		for _, r := range tok.Value {
			lit.IntValue = int64(r)
			break
		}
		return ast.NewLiteral(tok.Loc, lit)

	case token.String:
		p.next()
		return ast.NewLiteral(tok.Loc, &ast.Literal{Kind: ast.LitString, StrValue: tok.Value})

	case token.LParen:
		p.next()
		expr := p.parseExpression()
		p.expect(token.RParen, "')'")
		return expr
	}
	util.Errorf(tok.Loc, "expected expression, found '%s'", tok.Value)
	return nil
}

func parseIntegerLiteral(tok token.Token) *ast.Literal {
	text := tok.Value
	lit := &ast.Literal{Kind: ast.LitInteger}
	for strings.HasSuffix(strings.ToUpper(text), "U") || strings.HasSuffix(strings.ToUpper(text), "L") {
		switch text[len(text)-1] {
		case 'U', 'u':
			lit.IsUnsigned = true
		case 'L', 'l':
			lit.IsLong = true
		}
		text = text[:len(text)-1]
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		util.Errorf(tok.Loc, "invalid integer literal '%s'", tok.Value)
	}
	lit.IntValue = value
	return lit
}
