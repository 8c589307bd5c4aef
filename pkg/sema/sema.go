// Package sema implements the semantic analyzer: a post-order walk
// over the AST that annotates every node with a type (and, where
// applicable, a symbol), enforces the typing rules, and plans storage
// for locals.
package sema

import (
	"strings"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/token"
	"github.com/ncc-lang/ncc/pkg/types"
	"github.com/ncc-lang/ncc/pkg/util"
)

type Analyzer struct {
	global *symtab.SymbolTable
	cur    *symtab.SymbolTable
}

func NewAnalyzer() *Analyzer {
	global := symtab.NewSymbolTable(nil, "")
	return &Analyzer{global: global, cur: global}
}

// GlobalScope returns the unit's global symbol table (for the -a dump
// and for the assembly emitter's globals pass).
func (a *Analyzer) GlobalScope() *symtab.SymbolTable { return a.global }

// CurrentScope returns the scope the analyzer is currently in; outside
// of a walk this is the global scope.
func (a *Analyzer) CurrentScope() *symtab.SymbolTable { return a.cur }

func (a *Analyzer) enterScope(name string) {
	a.cur = symtab.NewSymbolTable(a.cur, name)
}

func (a *Analyzer) leaveScope() { a.cur = a.cur.Parent }

// Analyze walks the whole translation unit.
func (a *Analyzer) Analyze(unit *ast.Node) {
	if unit.Tag != ast.Unit {
		util.Internalf("Analyze on %s node", unit.Tag)
	}
	for _, kid := range unit.Kids {
		switch kid.Tag {
		case ast.VarDecl:
			a.visitVarDecl(kid)
		case ast.StructTypeDefinition:
			a.visitStructTypeDefinition(kid)
		case ast.FunctionDefinition:
			a.visitFunctionDefinition(kid)
		case ast.FunctionDeclaration:
			a.visitFunctionDeclaration(kid)
		case ast.UnionTypeDefinition:
			util.Internalf("unions are not supported")
		default:
			util.Internalf("unexpected AST tag %s at unit scope", kid.Tag)
		}
	}
}

// typeFromSpecifier turns a basic-type or struct-type node into a
// types.Type, applying any qualifier modifiers.
func (a *Analyzer) typeFromSpecifier(n *ast.Node) *types.Type {
	switch n.Tag {
	case ast.BasicType:
		return a.basicType(n)
	case ast.StructType:
		t := a.lookupStructType(n.Loc, n.Lexeme)
		return applyQualifiers(n, t)
	}
	util.Internalf("unexpected type specifier tag %s", n.Tag)
	return nil
}

func (a *Analyzer) lookupStructType(loc token.Location, tag string) *types.Type {
	sym := a.cur.LookupRecursiveKind("struct "+tag, symtab.SymType)
	if sym == nil {
		util.Errorf(loc, "unknown struct type '%s'", tag)
	}
	return sym.Type
}

func applyQualifiers(n *ast.Node, t *types.Type) *types.Type {
	for _, kid := range n.Kids {
		switch token.Type(kid.Tag) {
		case token.Const:
			t = types.NewQualified(t, types.QualConst)
		case token.Volatile:
			t = types.NewQualified(t, types.QualVolatile)
		}
	}
	return t
}

// basicType assembles a basic type from its modifier tokens, diagnosing
// invalid combinations.
func (a *Analyzer) basicType(n *ast.Node) *types.Type {
	var (
		kind              = types.BasicKind(-100) // unset
		isSigned          = true
		sawSign, sawShort bool
		sawLong           bool
		qual              = types.QualNone
		sawQual           bool
	)

	for _, kid := range n.Kids {
		switch token.Type(kid.Tag) {
		case token.Signed, token.Unsigned:
			if sawSign {
				util.Errorf(kid.Loc, "signed and unsigned cannot be used together")
			}
			sawSign = true
			isSigned = token.Type(kid.Tag) == token.Signed
		case token.Short:
			if sawLong {
				util.Errorf(kid.Loc, "long and short cannot be used together")
			}
			sawShort = true
		case token.Long:
			if sawShort {
				util.Errorf(kid.Loc, "long and short cannot be used together")
			}
			sawLong = true
		case token.Const:
			if sawQual {
				util.Errorf(kid.Loc, "type has more than one qualifier")
			}
			sawQual, qual = true, types.QualConst
		case token.Volatile:
			if sawQual {
				util.Errorf(kid.Loc, "type has more than one qualifier")
			}
			sawQual, qual = true, types.QualVolatile
		case token.Void:
			kind = types.Void
		case token.Char:
			kind = types.Char
		case token.Int:
			kind = types.Int
		default:
			util.Errorf(kid.Loc, "invalid type modifier '%s'", kid.Lexeme)
		}
	}

	if kind == types.Void {
		if sawQual || sawSign || sawShort || sawLong {
			util.Errorf(n.Loc, "void cannot have qualifiers or modifiers")
		}
		return types.NewBasic(types.Void, true)
	}
	if kind == types.Char && (sawShort || sawLong) {
		util.Errorf(n.Loc, "char cannot be combined with short or long")
	}
	if kind == types.BasicKind(-100) {
		kind = types.Int
	}
	if sawShort {
		kind = types.Short
	}
	if sawLong {
		kind = types.Long
	}

	t := types.NewBasic(kind, isSigned)
	if sawQual {
		t = types.NewQualified(t, qual)
	}
	return t
}

// declaratorType propagates the base type through nested declarators
// to the named leaf and returns the leaf along with the full type.
func (a *Analyzer) declaratorType(base *types.Type, declarator *ast.Node) (*ast.Node, *types.Type) {
	switch declarator.Tag {
	case ast.NamedDeclarator:
		return declarator, base
	case ast.PointerDeclarator:
		return a.declaratorType(types.NewPointer(base), declarator.Kid(0))
	case ast.ArrayDeclarator:
		return a.declaratorType(types.NewArray(base, arrayLength(declarator)), declarator.Kid(0))
	}
	util.Internalf("unexpected declarator tag %s", declarator.Tag)
	return nil, nil
}

func (a *Analyzer) visitVarDecl(n *ast.Node) {
	base := a.typeFromSpecifier(n.Kid(0))
	for _, declarator := range n.Kid(1).Kids {
		leaf, t := a.declaratorType(base, declarator)
		if t.IsVoid() {
			util.Errorf(leaf.Loc, "variable '%s' declared void", leaf.Lexeme)
		}
		if a.cur.HasSymbolLocal(leaf.Lexeme) {
			util.Errorf(leaf.Loc, "redefinition of '%s'", leaf.Lexeme)
		}
		sym := a.cur.Define(symtab.SymVariable, leaf.Lexeme, t)
		leaf.Sym, leaf.Type = sym, t
		declarator.Type = t
	}
	n.Type = base

	// Initializer: checked like an assignment, except that
	// initializing a const is allowed.
	if n.NumKids() == 3 {
		n.Kids[2] = a.visitExpr(n.Kid(2))
		init := n.Kid(2)
		leaf := namedLeaf(n.Kid(1).Kids[0])
		varType, initType := leaf.Type.Unqualified(), init.Type.Unqualified()
		switch {
		case varType.IsArray() || varType.IsStruct():
			util.Errorf(init.Loc, "initializer for aggregate '%s' is not supported", leaf.Lexeme)
		case varType.IsPointer():
			if !decayType(initType).IsPointer() {
				util.Errorf(init.Loc, "initialization of pointer from non-pointer")
			}
		case varType.IsIntegral() && initType.IsIntegral():
			if varType.StorageSize() != initType.StorageSize() {
				n.Kids[2] = ast.NewImplicitConversion(init, varType)
			}
		default:
			util.Errorf(init.Loc, "cannot initialize '%s' with '%s'", varType, initType)
		}
	}
}

func (a *Analyzer) visitStructTypeDefinition(n *ast.Node) {
	name := "struct " + n.Lexeme
	if a.cur.HasSymbolLocal(name) {
		util.Errorf(n.Loc, "redefinition of '%s'", name)
	}
	structType := types.NewStruct(name)
	// The symbol is defined before the fields are visited so the
	// struct can refer to itself through a pointer field.
	sym := a.cur.Define(symtab.SymType, name, structType)

	a.enterScope(name)
	for _, field := range n.Kid(0).Kids {
		a.visitVarDecl(field)
	}
	fieldScope := a.cur
	a.leaveScope()

	calc := NewStorageCalculator(StructMode)
	for _, fieldSym := range fieldScope.Symbols() {
		member := &types.Member{Name: fieldSym.Name, Type: fieldSym.Type}
		member.Offset = calc.AddField(fieldSym.Type)
		fieldSym.Offset = member.Offset
		structType.AddMember(member)
	}
	calc.Finish()
	structType.SetStorage(calc.Size(), calc.Align())

	n.Sym, n.Type = sym, structType
}

// functionType builds the function type of a definition or declaration
// node (base type, declarator, parameter list).
func (a *Analyzer) functionType(n *ast.Node) *types.Type {
	base := a.typeFromSpecifier(n.Kid(0))
	_, retType := a.declaratorType(base, n.Kid(1))
	fnType := types.NewFunction(retType)
	for _, param := range n.Kid(2).Kids {
		paramBase := a.typeFromSpecifier(param.Kid(0))
		leaf, paramType := a.declaratorType(paramBase, param.Kid(1))
		if fnType.FindMember(leaf.Lexeme) != nil {
			util.Errorf(leaf.Loc, "duplicate parameter name '%s'", leaf.Lexeme)
		}
		fnType.AddMember(&types.Member{Name: leaf.Lexeme, Type: paramType})
	}
	return fnType
}

func (a *Analyzer) visitFunctionDeclaration(n *ast.Node) {
	fnType := a.functionType(n)
	if existing := a.cur.LookupLocal(n.Lexeme); existing != nil {
		if !existing.Type.IsSame(fnType) {
			util.Errorf(n.Loc, "conflicting declaration of '%s'", n.Lexeme)
		}
		n.Sym, n.Type = existing, fnType
		return
	}
	n.Sym = a.cur.Declare(symtab.SymFunction, n.Lexeme, fnType)
	n.Type = fnType
}

func (a *Analyzer) visitFunctionDefinition(n *ast.Node) {
	fnType := a.functionType(n)

	sym := a.cur.LookupLocal(n.Lexeme)
	switch {
	case sym == nil:
		sym = a.cur.Define(symtab.SymFunction, n.Lexeme, fnType)
	case sym.IsDefined:
		util.Errorf(n.Loc, "redefinition of '%s'", n.Lexeme)
	default:
		if !sym.Type.IsSame(fnType) {
			util.Errorf(n.Loc, "conflicting declaration of '%s'", n.Lexeme)
		}
		sym.IsDefined = true
	}
	n.Sym, n.Type = sym, fnType

	// The function scope is named after the function so that return
	// statements can find the return type by scope-name lookup.
	a.enterScope(n.Lexeme)
	for i, param := range n.Kid(2).Kids {
		leaf := namedLeaf(param.Kid(1))
		paramSym := a.cur.Define(symtab.SymVariable, leaf.Lexeme, fnType.Members[i].Type)
		leaf.Sym, leaf.Type = paramSym, paramSym.Type
		param.Type = paramSym.Type
	}
	a.visitStatementList(n.Kid(3))
	a.leaveScope()
}

func (a *Analyzer) visitStatementList(n *ast.Node) {
	a.enterScope("")
	for _, stmt := range n.Kids {
		a.visitStatement(stmt)
	}
	a.leaveScope()
}

func (a *Analyzer) visitStatement(n *ast.Node) {
	switch n.Tag {
	case ast.VarDecl:
		a.visitVarDecl(n)
	case ast.StatementList:
		a.visitStatementList(n)
	case ast.EmptyStatement:
	case ast.ExpressionStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
	case ast.ReturnStatement:
		a.checkReturn(n, nil)
	case ast.ReturnExpressionStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
		a.checkReturn(n, n.Kid(0))
	case ast.WhileStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
		a.visitStatement(n.Kid(1))
	case ast.DoWhileStatement:
		a.visitStatement(n.Kid(0))
		n.Kids[1] = a.visitExpr(n.Kid(1))
	case ast.ForStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
		n.Kids[1] = a.visitExpr(n.Kid(1))
		n.Kids[2] = a.visitExpr(n.Kid(2))
		a.visitStatement(n.Kid(3))
	case ast.IfStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
		a.visitStatement(n.Kid(1))
	case ast.IfElseStatement:
		n.Kids[0] = a.visitExpr(n.Kid(0))
		a.visitStatement(n.Kid(1))
		a.visitStatement(n.Kid(2))
	default:
		util.Internalf("unexpected statement tag %s", n.Tag)
	}
}

// enclosingFunctionType finds the function whose scope the analyzer is
// currently inside, via scope-name lookup.
func (a *Analyzer) enclosingFunctionType(loc token.Location) *types.Type {
	for s := a.cur; s != nil; s = s.Parent {
		if s.Name != "" && !strings.HasPrefix(s.Name, "struct ") {
			sym := a.global.LookupRecursiveKind(s.Name, symtab.SymFunction)
			if sym != nil {
				return sym.Type
			}
		}
	}
	util.Errorf(loc, "return statement outside of a function")
	return nil
}

func (a *Analyzer) checkReturn(n, expr *ast.Node) {
	fnType := a.enclosingFunctionType(n.Loc)
	retType := fnType.Base

	if expr == nil {
		if !retType.IsVoid() {
			util.Errorf(n.Loc, "return without a value in function returning '%s'", retType)
		}
		return
	}
	if retType.IsVoid() {
		util.Errorf(n.Loc, "return with a value in function returning void")
	}
	exprType := expr.Type
	switch {
	case retType.IsIntegral() && exprType.IsIntegral():
		if retType.Unqualified().StorageSize() != exprType.Unqualified().StorageSize() {
			n.Kids[0] = ast.NewImplicitConversion(expr, retType.Unqualified())
		}
	case retType.IsSame(exprType):
	default:
		util.Errorf(n.Loc, "returning '%s' from function returning '%s'", exprType, retType)
	}
}

// visitExpr analyzes an expression and returns the same node. Implicit
// conversion wrappers are inserted by the parent around its kids; callers
// reassign the kid regardless.
func (a *Analyzer) visitExpr(n *ast.Node) *ast.Node {
	switch n.Tag {
	case ast.BinaryExpression:
		a.visitBinaryExpression(n)
	case ast.UnaryExpression:
		a.visitUnaryExpression(n)
	case ast.FunctionCallExpression:
		a.visitFunctionCall(n)
	case ast.FieldRefExpression:
		a.visitFieldRef(n)
	case ast.IndirectFieldRefExpression:
		a.visitIndirectFieldRef(n)
	case ast.ArrayElementRefExpression:
		a.visitArrayElementRef(n)
	case ast.VariableRef:
		a.visitVariableRef(n)
	case ast.LiteralValue:
		a.visitLiteral(n)
	case ast.ImplicitConversion:
	case ast.PostfixExpression, ast.ConditionalExpression, ast.CastExpression:
		util.Internalf("unsupported expression tag %s", n.Tag)
	default:
		util.Internalf("unexpected expression tag %s", n.Tag)
	}
	return n
}

var intType = types.NewBasic(types.Int, true)
var charType = types.NewBasic(types.Char, true)

// promoteSmall wraps char- and short-typed operands in an
// implicit-conversion node promoting them to int.
func promoteSmall(n *ast.Node) *ast.Node {
	t := n.Type.Unqualified()
	if t.IsIntegral() && t.StorageSize() < 4 {
		return ast.NewImplicitConversion(n, types.NewBasic(types.Int, t.Signed))
	}
	return n
}

// isLvalue reports whether the expression denotes a storage location.
func isLvalue(n *ast.Node) bool {
	switch n.Tag {
	case ast.FieldRefExpression, ast.IndirectFieldRefExpression, ast.ArrayElementRefExpression:
		return true
	case ast.UnaryExpression:
		return n.Op == token.Star
	}
	return n.Sym != nil
}

func (a *Analyzer) visitBinaryExpression(n *ast.Node) {
	if n.Op == token.Assign {
		a.visitAssignment(n)
		return
	}

	n.Kids[0] = a.visitExpr(n.Kid(0))
	n.Kids[1] = a.visitExpr(n.Kid(1))
	lhs, rhs := n.Kid(0), n.Kid(1)
	lhsType, rhsType := lhs.Type.Unqualified(), rhs.Type.Unqualified()

	if lhsType.IsVoid() || rhsType.IsVoid() {
		util.Errorf(n.Loc, "invalid use of void expression")
	}

	switch n.Op {
	case token.Plus, token.Minus, token.Star, token.Slash, token.Percent:
		// pointer arithmetic appears as pointer +/- integer
		if lhsType.IsPointer() || lhsType.IsArray() {
			if n.Op != token.Plus && n.Op != token.Minus {
				util.Errorf(n.Loc, "invalid operands to pointer arithmetic")
			}
			if !rhsType.IsIntegral() {
				util.Errorf(n.Loc, "pointer arithmetic requires an integer operand")
			}
			n.Type = decayType(lhsType)
			return
		}
		if rhsType.IsPointer() || rhsType.IsArray() {
			util.Errorf(n.Loc, "pointer may not appear on the right of arithmetic")
		}
		if !lhsType.IsIntegral() || !rhsType.IsIntegral() {
			util.Errorf(n.Loc, "arithmetic requires numeric operands")
		}
		a.promoteOperands(n)
		n.Type = n.Kid(0).Type.Unqualified()

	case token.Lt, token.Lte, token.Gt, token.Gte, token.EqEq, token.Neq:
		a.checkCategoryCompatible(n, lhsType, rhsType)
		if lhsType.IsIntegral() && rhsType.IsIntegral() {
			a.promoteOperands(n)
		}
		n.Type = intType

	case token.AndAnd, token.OrOr, token.Amp, token.Pipe:
		if !lhsType.IsIntegral() || !rhsType.IsIntegral() {
			util.Errorf(n.Loc, "logical operator requires integer operands")
		}
		a.promoteOperands(n)
		n.Type = intType

	default:
		util.Internalf("unexpected binary operator %d", n.Op)
	}
}

// promoteOperands promotes char and short operands to int, then
// widens the narrower operand when the two sides differ in width, so
// the HIR generator always sees operands of one size.
func (a *Analyzer) promoteOperands(n *ast.Node) {
	n.Kids[0] = promoteSmall(n.Kid(0))
	n.Kids[1] = promoteSmall(n.Kid(1))
	lhsType := n.Kid(0).Type.Unqualified()
	rhsType := n.Kid(1).Type.Unqualified()
	switch {
	case lhsType.StorageSize() < rhsType.StorageSize():
		n.Kids[0] = ast.NewImplicitConversion(n.Kid(0), rhsType)
	case rhsType.StorageSize() < lhsType.StorageSize():
		n.Kids[1] = ast.NewImplicitConversion(n.Kid(1), lhsType)
	}
}

// checkCategoryCompatible enforces that both comparison operands come
// from the same category: integer with integer, pointer with pointer,
// struct with struct, function with function.
func (a *Analyzer) checkCategoryCompatible(n *ast.Node, lhsType, rhsType *types.Type) {
	switch {
	case lhsType.IsIntegral() && rhsType.IsIntegral():
	case (lhsType.IsPointer() || lhsType.IsArray()) && (rhsType.IsPointer() || rhsType.IsArray()):
	case lhsType.IsStruct() && rhsType.IsStruct():
	case lhsType.IsFunction() && rhsType.IsFunction():
	default:
		util.Errorf(n.Loc, "comparison between '%s' and '%s'", lhsType, rhsType)
	}
}

func (a *Analyzer) visitAssignment(n *ast.Node) {
	n.Kids[0] = a.visitExpr(n.Kid(0))
	n.Kids[1] = a.visitExpr(n.Kid(1))
	lhs, rhs := n.Kid(0), n.Kid(1)

	if !isLvalue(lhs) {
		util.Errorf(n.Loc, "assignment to non-lvalue")
	}
	if lhs.Type.IsConst() {
		util.Errorf(n.Loc, "assignment to const")
	}
	lhsType, rhsType := lhs.Type.Unqualified(), rhs.Type.Unqualified()
	if lhsType.IsArray() {
		util.Errorf(n.Loc, "assignment to array")
	}
	if rhs.Type.IsVolatile() && !lhs.Type.IsVolatile() {
		util.Errorf(n.Loc, "assignment discards volatile qualifier")
	}

	switch {
	case lhsType.IsPointer() || rhsType.IsPointer() || rhsType.IsArray():
		if !lhsType.IsPointer() {
			util.Errorf(n.Loc, "assignment of pointer to '%s'", lhsType)
		}
		rt := decayType(rhsType)
		if !rt.IsPointer() {
			util.Errorf(n.Loc, "assignment of pointer from non-pointer")
		}
		if !lhsType.Base.IsSame(rt.Base) {
			util.Errorf(n.Loc, "incompatible pointer assignment")
		}
	case lhsType.IsStruct() || rhsType.IsStruct():
		if !lhsType.IsStruct() || !rhsType.IsStruct() {
			util.Errorf(n.Loc, "assignment between struct and non-struct")
		}
		if !lhsType.IsSame(rhsType) {
			util.Errorf(n.Loc, "assignment between distinct struct types")
		}
	default:
		if !lhsType.IsIntegral() || !rhsType.IsIntegral() {
			util.Errorf(n.Loc, "assignment of non-integer to integer")
		}
		if lhsType.StorageSize() != rhsType.StorageSize() {
			n.Kids[1] = ast.NewImplicitConversion(rhs, lhsType)
		}
	}

	n.Type = lhs.Type
}

func (a *Analyzer) visitUnaryExpression(n *ast.Node) {
	n.Kids[0] = a.visitExpr(n.Kid(0))
	operand := n.Kid(0)
	operandType := operand.Type.Unqualified()

	switch n.Op {
	case token.Amp:
		if operand.Tag == ast.LiteralValue {
			util.Errorf(n.Loc, "cannot take the address of a literal")
		}
		if !isLvalue(operand) {
			util.Errorf(n.Loc, "cannot take the address of a non-lvalue")
		}
		if operand.Sym != nil {
			operand.Sym.AddressTaken = true
		}
		n.Type = types.NewPointer(operand.Type)

	case token.Star:
		if !operandType.IsPointer() && !operandType.IsArray() {
			util.Errorf(n.Loc, "dereference of non-pointer type '%s'", operandType)
		}
		n.Type = operandType.Base

	case token.Minus:
		if !operandType.IsIntegral() {
			util.Errorf(n.Loc, "unary minus requires an integer operand")
		}
		n.Kids[0] = promoteSmall(operand)
		n.Type = n.Kid(0).Type.Unqualified()

	case token.Not:
		if !operandType.IsIntegral() && !operandType.IsPointer() {
			util.Errorf(n.Loc, "logical not requires a scalar operand")
		}
		if operandType.IsIntegral() {
			n.Kids[0] = promoteSmall(operand)
		}
		n.Type = intType

	default:
		util.Internalf("unexpected unary operator %d", n.Op)
	}
}

func (a *Analyzer) visitFunctionCall(n *ast.Node) {
	fnRef := n.Kid(0)
	if fnRef.Tag != ast.VariableRef {
		util.Errorf(n.Loc, "called object is not a function")
	}
	sym := a.cur.LookupRecursive(fnRef.Lexeme)
	if sym == nil {
		util.Errorf(fnRef.Loc, "reference to undefined function '%s'", fnRef.Lexeme)
	}
	if !sym.Type.IsFunction() {
		util.Errorf(fnRef.Loc, "'%s' is not a function", fnRef.Lexeme)
	}
	fnRef.Sym, fnRef.Type = sym, sym.Type
	fnType := sym.Type.Unqualified()

	args := n.Kid(1)
	if len(args.Kids) != len(fnType.Members) {
		util.Errorf(n.Loc, "function '%s' expects %d arguments, got %d",
			fnRef.Lexeme, len(fnType.Members), len(args.Kids))
	}
	for i := range args.Kids {
		args.Kids[i] = a.visitExpr(args.Kid(i))
		arg := args.Kid(i)
		paramType := fnType.Members[i].Type.Unqualified()
		argType := arg.Type.Unqualified()
		switch {
		case paramType.IsIntegral() && argType.IsIntegral():
			if paramType.StorageSize() != argType.StorageSize() {
				args.Kids[i] = ast.NewImplicitConversion(arg, paramType)
			}
		case paramType.IsPointer() && (argType.IsPointer() || argType.IsArray()):
			if !paramType.Base.IsSame(decayType(argType).Base) {
				util.Errorf(arg.Loc, "incompatible pointer argument %d to '%s'", i+1, fnRef.Lexeme)
			}
		case paramType.IsSame(argType):
		default:
			util.Errorf(arg.Loc, "incompatible argument %d to '%s' ('%s' expected, got '%s')",
				i+1, fnRef.Lexeme, paramType, argType)
		}
	}

	n.Sym = sym
	n.Type = fnType.Base
}

// decayType converts an array type to the corresponding pointer type.
func decayType(t *types.Type) *types.Type {
	u := t.Unqualified()
	if u.IsArray() {
		return types.NewPointer(u.Base)
	}
	return u
}

func (a *Analyzer) visitFieldRef(n *ast.Node) {
	n.Kids[0] = a.visitExpr(n.Kid(0))
	operandType := n.Kid(0).Type.Unqualified()
	if operandType.IsPointer() {
		util.Errorf(n.Loc, "'.' applied to a pointer (use '->')")
	}
	if !operandType.IsStruct() {
		util.Errorf(n.Loc, "'.' applied to non-struct type '%s'", operandType)
	}
	n.Type = a.memberType(n, operandType)
}

func (a *Analyzer) visitIndirectFieldRef(n *ast.Node) {
	n.Kids[0] = a.visitExpr(n.Kid(0))
	operandType := n.Kid(0).Type.Unqualified()
	if !operandType.IsPointer() {
		util.Errorf(n.Loc, "'->' applied to non-pointer type '%s'", operandType)
	}
	structType := operandType.Base.Unqualified()
	if !structType.IsStruct() {
		util.Errorf(n.Loc, "'->' applied to pointer to non-struct type '%s'", structType)
	}
	n.Type = a.memberType(n, structType)
}

func (a *Analyzer) memberType(n *ast.Node, structType *types.Type) *types.Type {
	member := structType.FindMember(n.Lexeme)
	if member == nil {
		util.Errorf(n.Loc, "'%s' has no member named '%s'", structType, n.Lexeme)
	}
	t := member.Type.Unqualified()
	// An array-of-char field decays to pointer-to-char on access.
	if t.IsArray() && t.Base.IsSame(charType) {
		return types.NewPointer(t.Base)
	}
	return member.Type
}

func (a *Analyzer) visitArrayElementRef(n *ast.Node) {
	n.Kids[0] = a.visitExpr(n.Kid(0))
	n.Kids[1] = a.visitExpr(n.Kid(1))
	baseType := n.Kid(0).Type.Unqualified()
	if !baseType.IsPointer() && !baseType.IsArray() {
		util.Errorf(n.Loc, "subscript of non-array, non-pointer type '%s'", baseType)
	}
	if !n.Kid(1).Type.Unqualified().IsIntegral() {
		util.Errorf(n.Loc, "array subscript is not an integer")
	}
	n.Type = baseType.Base
}

func (a *Analyzer) visitVariableRef(n *ast.Node) {
	sym := a.cur.LookupRecursive(n.Lexeme)
	if sym == nil {
		// Fall back to the struct-type key, used by struct-typed
		// expressions.
		sym = a.cur.LookupRecursive("struct " + n.Lexeme)
	}
	if sym == nil {
		util.Errorf(n.Loc, "reference to undefined identifier '%s'", n.Lexeme)
	}
	n.Sym, n.Type = sym, sym.Type
}

func (a *Analyzer) visitLiteral(n *ast.Node) {
	switch n.Lit.Kind {
	case ast.LitInteger:
		if n.Lit.IsLong {
			n.Type = types.NewBasic(types.Long, !n.Lit.IsUnsigned)
		} else {
			n.Type = types.NewBasic(types.Int, !n.Lit.IsUnsigned)
		}
	case ast.LitCharacter:
		n.Type = intType
	case ast.LitString:
		n.Type = types.NewPointer(charType)
	default:
		util.Internalf("literal node without a value")
	}
}
