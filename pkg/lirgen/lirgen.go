// Package lirgen lowers high-level IR to x86-64 low-level IR, one
// function at a time. The first eleven virtual registers map to fixed
// machine registers; the rest live in stack slots below the locals
// region. %r10 and %r11 are staging registers only: every
// instruction's result is written back to its destination before the
// next high-level instruction is translated, so neither ever carries a
// live value between statements.
package lirgen

import (
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/util"
)

// Fixed mapping from low virtual registers to machine registers:
// vr0 -> %rax (return value), vr1-vr6 -> the six argument registers
// (%rdi, %rsi, %rdx, %rcx, %r8, %r9), vr7-vr10 -> the callee-saved
// %r12-%r15 block.
var vregToMreg = [11]ir.MachineReg{
	ir.MregRax,
	ir.MregRdi,
	ir.MregRsi,
	ir.MregRdx,
	ir.MregRcx,
	ir.MregR8,
	ir.MregR9,
	ir.MregR12,
	ir.MregR13,
	ir.MregR14,
	ir.MregR15,
}

const firstSpilledVreg = 11

type Generator struct {
	seq        *ir.InstructionSequence // output
	localsSize int                     // S: bytes of named memory locals
	frameSize  int                     // total, padded to 16
}

func NewGenerator() *Generator { return &Generator{} }

// Generate translates one function's HIR sequence into LIR.
func (g *Generator) Generate(hl *ir.InstructionSequence) *ir.InstructionSequence {
	g.seq = ir.NewInstructionSequence()
	g.seq.FuncSym = hl.FuncSym

	if hl.FuncSym == nil {
		util.Internalf("high-level sequence has no function symbol")
	}
	g.localsSize = hl.FuncSym.FrameSize

	// Spilled vregs occupy 8 bytes each, below the locals region.
	maxVreg := maxVregOf(hl)
	spillBytes := 0
	if maxVreg >= firstSpilledVreg {
		spillBytes = 8 * (maxVreg - firstSpilledVreg + 1)
	}

	// Pad the frame to a multiple of 16 so %rsp stays 16-aligned
	// after the prologue pushes %rbp.
	g.frameSize = util.AlignUp(g.localsSize+spillBytes, 16)

	for _, slot := range hl.Slots() {
		if slot.Label != "" {
			g.seq.DefineLabel(slot.Label)
		}
		g.translate(slot.Ins)
	}
	return g.seq
}

// FrameSize reports the frame size computed by the last Generate call.
func (g *Generator) FrameSize() int { return g.frameSize }

func maxVregOf(hl *ir.InstructionSequence) int {
	max := -1
	for _, slot := range hl.Slots() {
		for i := 0; i < slot.Ins.NumOperands(); i++ {
			op := slot.Ins.Operand(i)
			if !op.IsVReg() {
				continue
			}
			if op.Base > max {
				max = op.Base
			}
			if op.HasIndexReg() && op.Index > max {
				max = op.Index
			}
		}
	}
	return max
}

// spillOffset returns the %rbp-relative offset of a spilled vreg's
// slot: -(S + 8*(v - 10)).
func (g *Generator) spillOffset(vreg int) int64 {
	return -int64(g.localsSize + 8*(vreg-firstSpilledVreg+1))
}

func (g *Generator) emit(op ir.Opcode, operands ...ir.Operand) {
	g.seq.Append(ir.NewInstruction(op, operands...))
}

// llOperand lowers a high-level operand. A spilled vreg becomes its
// %rbp-relative slot; a memory reference through a spilled vreg loads
// the base address into %r11 first (always 64-bit) and yields (%r11).
func (g *Generator) llOperand(hl ir.Operand, size int) ir.Operand {
	switch hl.Kind {
	case ir.ImmInt, ir.Label, ir.ImmLabel:
		return hl

	case ir.VReg, ir.VRegMem:
		if hl.Base < firstSpilledVreg {
			if hl.Kind == ir.VRegMem {
				return ir.MrMem(vregToMreg[hl.Base])
			}
			return ir.Mr(ir.SelectMregKind(size), vregToMreg[hl.Base])
		}
		slot := ir.MrMemOff(ir.MregRbp, g.spillOffset(hl.Base))
		if hl.Kind == ir.VRegMem {
			g.emit(ir.MinsMovQ, slot, ir.Mr(ir.MReg64, ir.MregR11))
			return ir.MrMem(ir.MregR11)
		}
		return slot
	}
	util.Internalf("cannot lower operand kind %d", hl.Kind)
	return ir.Operand{}
}

var convToLL = map[ir.Opcode]ir.Opcode{
	ir.HinsSconvBW: ir.MinsMovsbw,
	ir.HinsSconvBL: ir.MinsMovsbl,
	ir.HinsSconvBQ: ir.MinsMovsbq,
	ir.HinsSconvWL: ir.MinsMovswl,
	ir.HinsSconvWQ: ir.MinsMovswq,
	ir.HinsSconvLQ: ir.MinsMovslq,
	ir.HinsUconvBW: ir.MinsMovzbw,
	ir.HinsUconvBL: ir.MinsMovzbl,
	ir.HinsUconvBQ: ir.MinsMovzbq,
	ir.HinsUconvWL: ir.MinsMovzwl,
	ir.HinsUconvWQ: ir.MinsMovzwq,
	ir.HinsUconvLQ: ir.MinsMovzlq,
}

var cmpToSet = map[ir.Opcode]ir.Opcode{
	ir.HinsCmpLtB:  ir.MinsSetl,
	ir.HinsCmpLteB: ir.MinsSetle,
	ir.HinsCmpGtB:  ir.MinsSetg,
	ir.HinsCmpGteB: ir.MinsSetge,
	ir.HinsCmpEqB:  ir.MinsSete,
	ir.HinsCmpNeqB: ir.MinsSetne,
}

func (g *Generator) translate(hl *ir.Instruction) {
	op := hl.Opcode

	switch op {
	case ir.HinsNop:
		g.emit(ir.MinsNop)
		return

	case ir.HinsEnter:
		// ABI-compliant frame: locals are at negative offsets from
		// %rbp.
		g.emit(ir.MinsPushq, ir.Mr(ir.MReg64, ir.MregRbp))
		g.emit(ir.MinsMovQ, ir.Mr(ir.MReg64, ir.MregRsp), ir.Mr(ir.MReg64, ir.MregRbp))
		g.emit(ir.MinsSubQ, ir.Imm(int64(g.frameSize)), ir.Mr(ir.MReg64, ir.MregRsp))
		return

	case ir.HinsLeave:
		g.emit(ir.MinsAddQ, ir.Imm(int64(g.frameSize)), ir.Mr(ir.MReg64, ir.MregRsp))
		g.emit(ir.MinsPopq, ir.Mr(ir.MReg64, ir.MregRbp))
		return

	case ir.HinsRet:
		g.emit(ir.MinsRet)
		return

	case ir.HinsJmp:
		g.emit(ir.MinsJmp, hl.Operand(0))
		return

	case ir.HinsCall:
		g.emit(ir.MinsCall, hl.Operand(0))
		return

	case ir.HinsCjmpT, ir.HinsCjmpF:
		// The condition of a cjmp has no size; compare as a 32-bit
		// value.
		cond := g.llOperand(hl.Operand(0), 4)
		g.emit(ir.MinsCmpL, ir.Imm(0), cond)
		if op == ir.HinsCjmpT {
			g.emit(ir.MinsJne, hl.Operand(1))
		} else {
			g.emit(ir.MinsJe, hl.Operand(1))
		}
		return

	case ir.HinsLocaladdr:
		// The planner's offset counts up from the bottom of the
		// locals region, which starts at -S(%rbp).
		offset := -int64(g.localsSize) + hl.Operand(1).Imm
		r10 := ir.Mr(ir.MReg64, ir.MregR10)
		g.emit(ir.MinsLeaq, ir.MrMemOff(ir.MregRbp, offset), r10)
		dest := g.llOperand(hl.Operand(0), 8)
		g.emit(ir.MinsMovQ, r10, dest)
		return
	}

	if ll, ok := convToLL[op]; ok {
		g.translateConversion(hl, ll)
		return
	}

	srcSize := ir.SourceOperandSize(op)

	if ir.MatchHins(ir.HinsMovB, op) {
		g.translateMov(hl, srcSize)
		return
	}

	switch {
	case ir.MatchHins(ir.HinsAddB, op):
		g.translateBinary(hl, ir.SelectOpcode(ir.MinsAddB, srcSize), srcSize)
	case ir.MatchHins(ir.HinsSubB, op):
		g.translateBinary(hl, ir.SelectOpcode(ir.MinsSubB, srcSize), srcSize)
	case ir.MatchHins(ir.HinsAndB, op):
		g.translateBinary(hl, ir.SelectOpcode(ir.MinsAndB, srcSize), srcSize)
	case ir.MatchHins(ir.HinsOrB, op):
		g.translateBinary(hl, ir.SelectOpcode(ir.MinsOrB, srcSize), srcSize)
	case ir.MatchHins(ir.HinsMulB, op):
		mul := ir.MinsImulL
		if srcSize == 8 {
			mul = ir.MinsImulQ
		}
		g.translateBinary(hl, mul, srcSize)
	case ir.MatchHins(ir.HinsDivB, op):
		g.translateDivMod(hl, srcSize, false)
	case ir.MatchHins(ir.HinsModB, op):
		g.translateDivMod(hl, srcSize, true)
	default:
		if set, ok := cmpToSet[baseOf(op)]; ok {
			g.translateCompare(hl, set, srcSize)
			return
		}
		util.Internalf("high-level opcode %d not handled", int(op))
	}
}

// baseOf maps a sized comparison opcode back to its _b base.
func baseOf(op ir.Opcode) ir.Opcode {
	for base := range cmpToSet {
		if ir.MatchHins(base, op) {
			return base
		}
	}
	return op
}

func (g *Generator) translateMov(hl *ir.Instruction, size int) {
	mov := ir.SelectOpcode(ir.MinsMovB, size)
	src := g.llOperand(hl.Operand(1), size)

	// A memory-to-memory move stages the value through %r10, which
	// also frees %r11 for the destination's address load.
	hlDest := hl.Operand(0)
	destIsMem := hlDest.IsMemref() || hlDest.Base >= firstSpilledVreg
	if destIsMem && src.IsMemref() {
		r10 := ir.Mr(ir.SelectMregKind(size), ir.MregR10)
		g.emit(mov, src, r10)
		src = r10
	}

	dest := g.llOperand(hlDest, size)
	g.emit(mov, src, dest)
}

func (g *Generator) translateConversion(hl *ir.Instruction, widen ir.Opcode) {
	before := ir.SourceOperandSize(hl.Opcode)
	after := ir.DestOperandSize(hl.Opcode)

	src := g.llOperand(hl.Operand(1), before)
	r10Narrow := ir.Mr(ir.SelectMregKind(before), ir.MregR10)
	r10Wide := ir.Mr(ir.SelectMregKind(after), ir.MregR10)

	g.emit(ir.SelectOpcode(ir.MinsMovB, before), src, r10Narrow)
	g.emit(widen, r10Narrow, r10Wide)
	dest := g.llOperand(hl.Operand(0), after)
	g.emit(ir.SelectOpcode(ir.MinsMovB, after), r10Wide, dest)
}

// translateBinary stages the first source into %r10, applies the
// operator with the second source, and stores %r10 into the
// destination.
func (g *Generator) translateBinary(hl *ir.Instruction, ll ir.Opcode, size int) {
	mov := ir.SelectOpcode(ir.MinsMovB, size)
	r10 := ir.Mr(ir.SelectMregKind(size), ir.MregR10)

	src1 := g.llOperand(hl.Operand(1), size)
	g.emit(mov, src1, r10)
	src2 := g.llOperand(hl.Operand(2), size)
	g.emit(ll, src2, r10)
	dest := g.llOperand(hl.Operand(0), size)
	g.emit(mov, r10, dest)
}

// translateDivMod lowers division with the x86-64 idiom: the dividend
// goes through %rax, cdq/cqto sign-extends into %rdx, idiv divides by
// the (register- or memory-resident) divisor, and the quotient (%rax)
// or remainder (%rdx) is stored.
func (g *Generator) translateDivMod(hl *ir.Instruction, size int, wantRemainder bool) {
	mov := ir.SelectOpcode(ir.MinsMovB, size)
	regKind := ir.SelectMregKind(size)
	rax := ir.Mr(regKind, ir.MregRax)
	rdx := ir.Mr(regKind, ir.MregRdx)

	extend, idiv := ir.MinsCdq, ir.MinsIdivL
	if size == 8 {
		extend, idiv = ir.MinsCqto, ir.MinsIdivQ
	}

	src1 := g.llOperand(hl.Operand(1), size)
	g.emit(mov, src1, rax)
	g.emit(extend)

	divisor := g.llOperand(hl.Operand(2), size)
	if divisor.IsImmInt() {
		// idiv takes no immediate operand.
		r10 := ir.Mr(regKind, ir.MregR10)
		g.emit(mov, divisor, r10)
		divisor = r10
	}
	g.emit(idiv, divisor)

	result := rax
	if wantRemainder {
		result = rdx
	}
	dest := g.llOperand(hl.Operand(0), size)
	g.emit(mov, result, dest)
}

// translateCompare compares the operands, materializes the condition
// with the matching setcc into %r10b, widens within %r10 if the
// destination is wider than a byte, and stores the result.
func (g *Generator) translateCompare(hl *ir.Instruction, set ir.Opcode, size int) {
	mov := ir.SelectOpcode(ir.MinsMovB, size)
	r10 := ir.Mr(ir.SelectMregKind(size), ir.MregR10)
	r10b := ir.Mr(ir.MReg8, ir.MregR10)

	src1 := g.llOperand(hl.Operand(1), size)
	g.emit(mov, src1, r10)
	src2 := g.llOperand(hl.Operand(2), size)
	g.emit(ir.SelectOpcode(ir.MinsCmpB, size), src2, r10)
	g.emit(set, r10b)

	destSize := ir.DestOperandSize(hl.Opcode)
	if destSize > 1 {
		var widen ir.Opcode
		switch destSize {
		case 2:
			widen = ir.MinsMovzbw
		case 4:
			widen = ir.MinsMovzbl
		case 8:
			widen = ir.MinsMovzbq
		}
		wide := ir.Mr(ir.SelectMregKind(destSize), ir.MregR10)
		g.emit(widen, r10b, wide)
		dest := g.llOperand(hl.Operand(0), destSize)
		g.emit(ir.SelectOpcode(ir.MinsMovB, destSize), wide, dest)
	} else {
		dest := g.llOperand(hl.Operand(0), 1)
		g.emit(ir.SelectOpcode(ir.MinsMovB, 1), r10b, dest)
	}
}
