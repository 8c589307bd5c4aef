// Package hirgen lowers the annotated AST to the high-level IR: a
// linear sequence of three-address instructions over virtual registers
// and labels, one sequence per function definition.
package hirgen

import (
	"fmt"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/sema"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/token"
	"github.com/ncc-lang/ncc/pkg/types"
	"github.com/ncc-lang/ncc/pkg/util"
)

// StringEntry is one string literal destined for the .rodata section.
type StringEntry struct {
	Name  string
	Value string
}

// Strings collects the translation unit's string literals. The
// generator appends to it per function; the driver flushes it to the
// module output.
type Strings struct {
	entries []StringEntry
}

func (s *Strings) Add(value string) string {
	name := fmt.Sprintf("str%d", len(s.entries))
	s.entries = append(s.entries, StringEntry{Name: name, Value: value})
	return name
}

func (s *Strings) Entries() []StringEntry { return s.entries }

// Generator lowers one function at a time. The label counter is shared
// across functions so labels never collide within the unit.
type Generator struct {
	seq         *ir.InstructionSequence
	labelCount  *int
	strings     *Strings
	nextTemp    int
	frameSize   int
	returnLabel string
}

func NewGenerator(labelCount *int, strings *Strings) *Generator {
	return &Generator{labelCount: labelCount, strings: strings}
}

// Generate runs the storage planner over the function and emits its
// HIR. Every return jumps to the function's unique return label, which
// sits immediately before the epilogue.
func (g *Generator) Generate(fn *ast.Node) *ir.InstructionSequence {
	if fn.Tag != ast.FunctionDefinition {
		util.Internalf("Generate on %s node", fn.Tag)
	}

	frameSize, nextVreg := sema.AllocateLocals(fn)
	g.seq = ir.NewInstructionSequence()
	g.seq.FuncSym = fn.Sym
	g.frameSize = frameSize
	g.nextTemp = nextVreg
	g.returnLabel = fmt.Sprintf(".L%s_return", fn.Lexeme)

	g.emit(ir.HinsEnter, ir.Imm(int64(frameSize)))

	// Parameters live in their argument vregs; an address-taken
	// parameter is spilled to its frame slot on entry.
	for _, param := range fn.Kid(2).Kids {
		leaf := param.Kid(1)
		for leaf.Tag != ast.NamedDeclarator {
			leaf = leaf.Kid(0)
		}
		sym := leaf.Sym
		if sym.OnStack {
			addr := ir.Vr(g.newTemp())
			g.emit(ir.HinsLocaladdr, addr, ir.Imm(int64(sym.Offset)))
			mov := opcodeForType(ir.HinsMovB, sym.Type)
			g.emit(mov, addr.ToMemref(), ir.Vr(sym.Vreg))
		}
	}

	g.visitStatementList(fn.Kid(3))

	g.defineLabel(g.returnLabel)
	g.emit(ir.HinsLeave, ir.Imm(int64(frameSize)))
	g.emit(ir.HinsRet)

	return g.seq
}

func (g *Generator) emit(op ir.Opcode, operands ...ir.Operand) {
	g.seq.Append(ir.NewInstruction(op, operands...))
}

// defineLabel attaches a label to the next instruction; if another
// label is already pending it is anchored with a nop first.
func (g *Generator) defineLabel(label string) {
	if g.seq.HasPendingLabel() {
		g.emit(ir.HinsNop)
	}
	g.seq.DefineLabel(label)
}

func (g *Generator) newLabel() string {
	label := fmt.Sprintf(".L%d", *g.labelCount)
	*g.labelCount++
	return label
}

func (g *Generator) newTemp() int {
	t := g.nextTemp
	g.nextTemp++
	return t
}

// opcodeForType selects the size-suffixed variant of base for a type:
// the basic kind's integer code (char=0, short=1, int=2, long=3) is
// the offset from the _b variant; pointers and arrays use _q.
func opcodeForType(base ir.Opcode, t *types.Type) ir.Opcode {
	u := t.Unqualified()
	if u.IsPointer() || u.IsArray() {
		return base + 3
	}
	if !u.IsIntegral() {
		util.Internalf("no opcode size for type '%s'", t)
	}
	return base + ir.Opcode(u.Basic)
}

func typeSize(t *types.Type) int { return t.Unqualified().StorageSize() }

func (g *Generator) visitStatementList(n *ast.Node) {
	// Temporaries are released on block exit.
	mark := g.nextTemp
	for _, stmt := range n.Kids {
		g.visitStatement(stmt)
	}
	g.nextTemp = mark
}

func (g *Generator) visitStatement(n *ast.Node) {
	switch n.Tag {
	case ast.EmptyStatement:
	case ast.VarDecl:
		if n.NumKids() == 3 {
			g.visitInitializer(n)
		}
	case ast.StatementList:
		g.visitStatementList(n)
	case ast.ExpressionStatement:
		g.visitExpr(n.Kid(0))
	case ast.ReturnStatement:
		g.emit(ir.HinsJmp, ir.Lbl(g.returnLabel))
	case ast.ReturnExpressionStatement:
		value := g.visitExpr(n.Kid(0))
		mov := opcodeForType(ir.HinsMovB, n.Kid(0).Type)
		g.emit(mov, ir.Vr(sema.VregRetval), value)
		g.emit(ir.HinsJmp, ir.Lbl(g.returnLabel))
	case ast.WhileStatement:
		g.visitWhile(n)
	case ast.DoWhileStatement:
		g.visitDoWhile(n)
	case ast.ForStatement:
		g.visitFor(n)
	case ast.IfStatement:
		g.visitIf(n)
	case ast.IfElseStatement:
		g.visitIfElse(n)
	default:
		util.Internalf("unexpected statement tag %s", n.Tag)
	}
}

// visitWhile keeps the loop test at the bottom so each iteration runs
// a single conditional branch, with an unconditional jump on entry.
func (g *Generator) visitWhile(n *ast.Node) {
	topLabel, cmpLabel := g.newLabel(), g.newLabel()
	g.emit(ir.HinsJmp, ir.Lbl(cmpLabel))
	g.defineLabel(topLabel)
	g.visitStatement(n.Kid(1))
	g.defineLabel(cmpLabel)
	cond := g.visitExpr(n.Kid(0))
	g.emit(ir.HinsCjmpT, cond, ir.Lbl(topLabel))
}

func (g *Generator) visitDoWhile(n *ast.Node) {
	topLabel := g.newLabel()
	g.defineLabel(topLabel)
	g.visitStatement(n.Kid(0))
	cond := g.visitExpr(n.Kid(1))
	g.emit(ir.HinsCjmpT, cond, ir.Lbl(topLabel))
}

func (g *Generator) visitFor(n *ast.Node) {
	bodyLabel, cmpLabel := g.newLabel(), g.newLabel()
	g.visitExpr(n.Kid(0))
	g.emit(ir.HinsJmp, ir.Lbl(cmpLabel))
	g.defineLabel(bodyLabel)
	g.visitStatement(n.Kid(3))
	g.visitExpr(n.Kid(2))
	g.defineLabel(cmpLabel)
	cond := g.visitExpr(n.Kid(1))
	g.emit(ir.HinsCjmpT, cond, ir.Lbl(bodyLabel))
}

func (g *Generator) visitIf(n *ast.Node) {
	skipLabel := g.newLabel()
	cond := g.visitExpr(n.Kid(0))
	g.emit(ir.HinsCjmpF, cond, ir.Lbl(skipLabel))
	g.visitStatement(n.Kid(1))
	g.defineLabel(skipLabel)
}

func (g *Generator) visitIfElse(n *ast.Node) {
	elseLabel, endLabel := g.newLabel(), g.newLabel()
	cond := g.visitExpr(n.Kid(0))
	g.emit(ir.HinsCjmpF, cond, ir.Lbl(elseLabel))
	g.visitStatement(n.Kid(1))
	g.emit(ir.HinsJmp, ir.Lbl(endLabel))
	g.defineLabel(elseLabel)
	g.visitStatement(n.Kid(2))
	g.defineLabel(endLabel)
}

// visitInitializer stores a declaration's initializer into the newly
// declared variable.
func (g *Generator) visitInitializer(n *ast.Node) {
	leaf := n.Kid(1).Kids[0]
	for leaf.Tag != ast.NamedDeclarator {
		leaf = leaf.Kid(0)
	}
	sym := leaf.Sym

	src := g.visitExpr(n.Kid(2))
	var dest ir.Operand
	if sym.OnStack || sym.AddressTaken {
		addr := ir.Vr(g.newTemp())
		g.emit(ir.HinsLocaladdr, addr, ir.Imm(int64(sym.Offset)))
		dest = addr.ToMemref()
	} else {
		dest = ir.Vr(sym.Vreg)
	}
	g.emit(opcodeForType(ir.HinsMovB, sym.Type), dest, src)
}

// visitExpr emits code for an expression and returns (and records on
// the node) the operand holding its value.
func (g *Generator) visitExpr(n *ast.Node) ir.Operand {
	var operand ir.Operand
	switch n.Tag {
	case ast.BinaryExpression:
		operand = g.visitBinaryExpression(n)
	case ast.UnaryExpression:
		operand = g.visitUnaryExpression(n)
	case ast.FunctionCallExpression:
		operand = g.visitFunctionCall(n)
	case ast.FieldRefExpression:
		operand = g.visitFieldRef(n)
	case ast.IndirectFieldRefExpression:
		operand = g.visitIndirectFieldRef(n)
	case ast.ArrayElementRefExpression:
		operand = g.visitArrayElementRef(n)
	case ast.VariableRef:
		operand = g.visitVariableRef(n)
	case ast.LiteralValue:
		operand = g.visitLiteral(n)
	case ast.ImplicitConversion:
		operand = g.visitImplicitConversion(n)
	default:
		util.Internalf("unexpected expression tag %s", n.Tag)
	}
	n.Operand = operand
	return operand
}

var binaryOpcodes = map[token.Type]ir.Opcode{
	token.Plus:    ir.HinsAddB,
	token.Minus:   ir.HinsSubB,
	token.Star:    ir.HinsMulB,
	token.Slash:   ir.HinsDivB,
	token.Percent: ir.HinsModB,
	token.AndAnd:  ir.HinsAndB,
	token.OrOr:    ir.HinsOrB,
	token.Amp:     ir.HinsAndB,
	token.Pipe:    ir.HinsOrB,
	token.Lt:      ir.HinsCmpLtB,
	token.Lte:     ir.HinsCmpLteB,
	token.Gt:      ir.HinsCmpGtB,
	token.Gte:     ir.HinsCmpGteB,
	token.EqEq:    ir.HinsCmpEqB,
	token.Neq:     ir.HinsCmpNeqB,
}

func (g *Generator) visitBinaryExpression(n *ast.Node) ir.Operand {
	if n.Op == token.Assign {
		return g.visitAssignment(n)
	}

	lhs := g.visitExpr(n.Kid(0))
	rhs := g.visitExpr(n.Kid(1))

	base, ok := binaryOpcodes[n.Op]
	if !ok {
		util.Internalf("unexpected binary operator %d", n.Op)
	}

	// Pointer arithmetic scales the integer operand by the element
	// size before the 64-bit add or sub.
	lhsType := n.Kid(0).Type.Unqualified()
	if (lhsType.IsPointer() || lhsType.IsArray()) && (n.Op == token.Plus || n.Op == token.Minus) {
		scaled := g.scaleIndex(rhs, n.Kid(1).Type, lhsType.Base.StorageSize())
		dest := ir.Vr(g.newTemp())
		g.emit(base+3, dest, lhs, scaled)
		return dest
	}

	// The and/or opcodes lower to bitwise instructions, so for && and ||
	// each operand is first reduced to 0 or 1.
	if n.Op == token.AndAnd || n.Op == token.OrOr {
		l, r := ir.Vr(g.newTemp()), ir.Vr(g.newTemp())
		g.emit(opcodeForType(ir.HinsCmpNeqB, n.Kid(0).Type), l, lhs, ir.Imm(0))
		g.emit(opcodeForType(ir.HinsCmpNeqB, n.Kid(1).Type), r, rhs, ir.Imm(0))
		lhs, rhs = l, r
	}

	// Comparisons are sized by the operand type, not the int result.
	opType := n.Kid(0).Type
	dest := ir.Vr(g.newTemp())
	g.emit(opcodeForType(base, opType), dest, lhs, rhs)
	return dest
}

func (g *Generator) visitAssignment(n *ast.Node) ir.Operand {
	dest := g.visitExpr(n.Kid(0))
	src := g.visitExpr(n.Kid(1))
	mov := opcodeForType(ir.HinsMovB, n.Type)
	g.emit(mov, dest, src)
	return dest
}

func (g *Generator) visitUnaryExpression(n *ast.Node) ir.Operand {
	operand := g.visitExpr(n.Kid(0))

	switch n.Op {
	case token.Amp:
		// The operand of & is either a memory reference whose base
		// register holds the address, or (for arrays and structs) the
		// address value itself.
		if operand.Kind == ir.VReg {
			return operand
		}
		if operand.Kind != ir.VRegMem {
			util.Internalf("address-of operand is not a memory reference")
		}
		return ir.Vr(operand.Base)

	case token.Star:
		if operand.Kind == ir.VReg {
			return ir.VrMem(operand.Base)
		}
		// Pointer value living in memory: load it first.
		temp := ir.Vr(g.newTemp())
		g.emit(ir.HinsMovQ, temp, operand)
		return temp.ToMemref()

	case token.Minus:
		dest := ir.Vr(g.newTemp())
		g.emit(opcodeForType(ir.HinsSubB, n.Type), dest, ir.Imm(0), operand)
		return dest

	case token.Not:
		dest := ir.Vr(g.newTemp())
		g.emit(opcodeForType(ir.HinsCmpEqB, n.Kid(0).Type), dest, operand, ir.Imm(0))
		return dest
	}
	util.Internalf("unexpected unary operator %d", n.Op)
	return ir.Operand{}
}

func (g *Generator) visitFunctionCall(n *ast.Node) ir.Operand {
	args := n.Kid(1)

	// Evaluate every argument before any is moved into its argument
	// vreg, so one argument's evaluation cannot clobber another's.
	operands := make([]ir.Operand, len(args.Kids))
	for i := range args.Kids {
		operands[i] = g.visitExpr(args.Kid(i))
	}
	for i, operand := range operands {
		mov := opcodeForType(ir.HinsMovB, args.Kid(i).Type)
		g.emit(mov, ir.Vr(sema.VregFirstArg+i), operand)
	}

	g.emit(ir.HinsCall, ir.Lbl(n.Kid(0).Lexeme))
	if n.Type.IsVoid() {
		return ir.Vr(sema.VregRetval)
	}

	// Copy the return value out of vr0 so a later call in the same
	// expression cannot clobber it.
	result := ir.Vr(g.newTemp())
	g.emit(opcodeForType(ir.HinsMovB, n.Type), result, ir.Vr(sema.VregRetval))
	return result
}

// scaleIndex widens an index value to 64 bits and multiplies it by the
// element size, returning the vreg holding the scaled result.
func (g *Generator) scaleIndex(index ir.Operand, indexType *types.Type, elemSize int) ir.Operand {
	widened := index
	if typeSize(indexType) < 8 {
		widened = ir.Vr(g.newTemp())
		g.emit(ir.HinsSconvLQ, widened, index)
	}
	scaled := ir.Vr(g.newTemp())
	g.emit(ir.HinsMulQ, scaled, widened, ir.Imm(int64(elemSize)))
	return scaled
}

func (g *Generator) visitArrayElementRef(n *ast.Node) ir.Operand {
	base := g.visitExpr(n.Kid(0))
	if base.IsMemref() {
		// A pointer variable spilled to memory: load the address.
		temp := ir.Vr(g.newTemp())
		g.emit(ir.HinsMovQ, temp, base)
		base = temp
	}

	elemType := n.Type.Unqualified()
	scaled := g.scaleIndex(g.visitExpr(n.Kid(1)), n.Kid(1).Type, elemSizeOf(n.Kid(0).Type))
	addr := ir.Vr(g.newTemp())
	g.emit(ir.HinsAddQ, addr, base, scaled)

	if elemType.IsArray() || elemType.IsStruct() {
		return addr
	}
	return addr.ToMemref()
}

func elemSizeOf(arrayOrPointer *types.Type) int {
	return arrayOrPointer.Unqualified().Base.StorageSize()
}

func (g *Generator) visitFieldRef(n *ast.Node) ir.Operand {
	base := g.visitExpr(n.Kid(0))
	structType := n.Kid(0).Type.Unqualified()
	return g.fieldAddress(base, structType, n)
}

func (g *Generator) visitIndirectFieldRef(n *ast.Node) ir.Operand {
	ptr := g.visitExpr(n.Kid(0))
	if ptr.IsMemref() {
		temp := ir.Vr(g.newTemp())
		g.emit(ir.HinsMovQ, temp, ptr)
		ptr = temp
	}
	structType := n.Kid(0).Type.Unqualified().Base.Unqualified()
	return g.fieldAddress(ptr, structType, n)
}

// fieldAddress materializes the field offset as an immediate, adds it
// to the struct's base address, and wraps the sum as a memory
// reference (unless the member itself is an aggregate).
func (g *Generator) fieldAddress(base ir.Operand, structType *types.Type, n *ast.Node) ir.Operand {
	member := structType.FindMember(n.Lexeme)
	if member == nil {
		util.Internalf("member '%s' vanished after analysis", n.Lexeme)
	}

	offset := ir.Vr(g.newTemp())
	g.emit(ir.HinsMovQ, offset, ir.Imm(int64(member.Offset)))
	addr := ir.Vr(g.newTemp())
	g.emit(ir.HinsAddQ, addr, base, offset)

	memberType := member.Type.Unqualified()
	if memberType.IsStruct() || memberType.IsArray() {
		return addr
	}
	return addr.ToMemref()
}

func (g *Generator) visitVariableRef(n *ast.Node) ir.Operand {
	sym := n.Sym
	if sym == nil {
		util.Internalf("variable reference '%s' without a symbol", n.Lexeme)
	}
	if sym.Table.Parent == nil && sym.Kind == symtab.SymVariable {
		util.Errorf(n.Loc, "access to global variable '%s' is not supported", n.Lexeme)
	}

	t := sym.Type.Unqualified()
	if sym.OnStack || sym.AddressTaken || t.IsStruct() {
		addr := ir.Vr(g.newTemp())
		g.emit(ir.HinsLocaladdr, addr, ir.Imm(int64(sym.Offset)))
		if sym.AddressTaken && !t.IsStruct() && !t.IsArray() {
			return addr.ToMemref()
		}
		return addr
	}
	return ir.Vr(sym.Vreg)
}

func (g *Generator) visitLiteral(n *ast.Node) ir.Operand {
	switch n.Lit.Kind {
	case ast.LitInteger, ast.LitCharacter:
		return ir.Imm(n.Lit.IntValue)
	case ast.LitString:
		return ir.ImmLbl(g.strings.Add(n.Lit.StrValue))
	}
	util.Internalf("literal node without a value")
	return ir.Operand{}
}

var convOpcodes = map[[2]int]ir.Opcode{
	{1, 2}: ir.HinsSconvBW,
	{1, 4}: ir.HinsSconvBL,
	{1, 8}: ir.HinsSconvBQ,
	{2, 4}: ir.HinsSconvWL,
	{2, 8}: ir.HinsSconvWQ,
	{4, 8}: ir.HinsSconvLQ,
}

const uconvDelta = ir.HinsUconvBW - ir.HinsSconvBW

func (g *Generator) visitImplicitConversion(n *ast.Node) ir.Operand {
	src := g.visitExpr(n.Kid(0))
	srcSize := typeSize(n.Kid(0).Type)
	destSize := typeSize(n.Type)

	dest := ir.Vr(g.newTemp())
	switch {
	case srcSize == destSize:
		return src
	case srcSize > destSize:
		// Narrowing is a sized move of the low bytes.
		g.emit(ir.SelectOpcode(ir.HinsMovB, destSize), dest, src)
	default:
		op, ok := convOpcodes[[2]int{srcSize, destSize}]
		if !ok {
			util.Internalf("unsupported conversion from %d to %d bytes", srcSize, destSize)
		}
		if !n.Kid(0).Type.IsSigned() {
			op += uconvDelta
		}
		g.emit(op, dest, src)
	}
	return dest
}
