package cfg

import (
	"github.com/ncc-lang/ncc/pkg/ir"
)

// The CFG transformation framework shared by the optimization passes.
// A pass supplies a per-block hook; the framework copies every block
// through the hook (preserving kind, label, and code order) and
// re-adds the original edges between the mapped blocks. The input CFG
// is left intact.

// BlockTransform rewrites one basic block's instructions. The returned
// slice contains freshly allocated instructions; the input block must
// not be mutated.
type BlockTransform interface {
	TransformBasicBlock(bb *BasicBlock) []*ir.Instruction
}

// Transform applies a per-block transformation to every block and
// returns the new CFG.
func Transform(graph *ControlFlowGraph, pass BlockTransform) *ControlFlowGraph {
	result := NewControlFlowGraph()

	blockMap := make(map[int]*BasicBlock)
	for _, bb := range graph.Blocks() {
		mapped := result.CreateBasicBlock(bb.Kind, bb.CodeOrder, bb.Label)
		for _, ins := range pass.TransformBasicBlock(bb) {
			mapped.Append(ins)
		}
		blockMap[bb.ID] = mapped
	}

	for _, bb := range graph.Blocks() {
		for _, e := range graph.OutgoingEdges(bb) {
			result.CreateEdge(blockMap[e.Source.ID], blockMap[e.Target.ID], e.Kind)
		}
	}

	return result
}

// Vregs 0-2 carry the return value and the first two arguments across
// calls; a dead-looking def of one of them may still be observed by a
// call or the function epilogue.
func isCallReservedVreg(vreg int) bool { return vreg >= 0 && vreg <= 2 }

// DeadStoreElimination drops instructions that define a virtual
// register which is not live afterwards. Blocks are processed in
// isolation, which is safe because the liveness facts are global.
type DeadStoreElimination struct {
	liveness *LiveVregs
}

func NewDeadStoreElimination(liveness *LiveVregs) *DeadStoreElimination {
	return &DeadStoreElimination{liveness: liveness}
}

func (t *DeadStoreElimination) TransformBasicBlock(bb *BasicBlock) []*ir.Instruction {
	var out []*ir.Instruction
	for _, slot := range bb.Slots() {
		ins := slot.Ins
		if ir.HinsIsDef(ins) {
			dest := ins.Operand(0)
			liveAfter := t.liveness.FactAfterInstruction(bb, ins)
			if !liveAfter.Test(dest.Base) && !isCallReservedVreg(dest.Base) {
				continue
			}
		}
		out = append(out, ins.Duplicate())
	}
	return out
}

// numArgVregs bounds the vregs clobbered by a call: vr0 (return value)
// through vr9 (last argument register).
const numArgVregs = 10

// LocalConstantPropagation rewrites, within each basic block, uses of
// virtual registers known to hold an immediate integer. It does not
// cross block boundaries.
type LocalConstantPropagation struct{}

func (LocalConstantPropagation) TransformBasicBlock(bb *BasicBlock) []*ir.Instruction {
	constants := make(map[int]int64)
	var out []*ir.Instruction

	for _, slot := range bb.Slots() {
		ins := slot.Ins.Duplicate()

		// Rewrite source operands whose vreg holds a known constant.
		// Branch conditions are left alone: the low-level lowering of
		// cjmp needs a register or memory operand to compare.
		if ins.Opcode != ir.HinsCjmpT && ins.Opcode != ir.HinsCjmpF {
			for i := 1; i < ins.NumOperands(); i++ {
				op := ins.Operand(i)
				if op.Kind == ir.VReg {
					if val, ok := constants[op.Base]; ok {
						ins.Operands[i] = ir.Imm(val)
					}
				}
			}
		}

		if ins.Opcode == ir.HinsCall {
			for v := 0; v < numArgVregs; v++ {
				delete(constants, v)
			}
		}

		// An arithmetic instruction whose sources are now all
		// immediates folds into an immediate move.
		if folded, ok := foldConstant(ins); ok {
			ins = folded
		}

		if ir.HinsIsDef(ins) {
			dest := ins.Operand(0).Base
			if ir.MatchHins(ir.HinsMovB, ins.Opcode) && ins.Operand(1).IsImmInt() {
				constants[dest] = ins.Operand(1).Imm
			} else {
				delete(constants, dest)
			}
		}

		out = append(out, ins)
	}
	return out
}

var foldableBases = []struct {
	base ir.Opcode
	eval func(a, b int64) (int64, bool)
}{
	{ir.HinsAddB, func(a, b int64) (int64, bool) { return a + b, true }},
	{ir.HinsSubB, func(a, b int64) (int64, bool) { return a - b, true }},
	{ir.HinsMulB, func(a, b int64) (int64, bool) { return a * b, true }},
	{ir.HinsDivB, func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}},
	{ir.HinsModB, func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}},
	{ir.HinsAndB, func(a, b int64) (int64, bool) { return boolToInt(a != 0 && b != 0), true }},
	{ir.HinsOrB, func(a, b int64) (int64, bool) { return boolToInt(a != 0 || b != 0), true }},
	{ir.HinsCmpLtB, func(a, b int64) (int64, bool) { return boolToInt(a < b), true }},
	{ir.HinsCmpLteB, func(a, b int64) (int64, bool) { return boolToInt(a <= b), true }},
	{ir.HinsCmpGtB, func(a, b int64) (int64, bool) { return boolToInt(a > b), true }},
	{ir.HinsCmpGteB, func(a, b int64) (int64, bool) { return boolToInt(a >= b), true }},
	{ir.HinsCmpEqB, func(a, b int64) (int64, bool) { return boolToInt(a == b), true }},
	{ir.HinsCmpNeqB, func(a, b int64) (int64, bool) { return boolToInt(a != b), true }},
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// foldConstant evaluates a three-operand instruction whose sources are
// both immediates, yielding an equivalent immediate move.
func foldConstant(ins *ir.Instruction) (*ir.Instruction, bool) {
	if ins.NumOperands() != 3 || ins.Operand(0).Kind != ir.VReg ||
		!ins.Operand(1).IsImmInt() || !ins.Operand(2).IsImmInt() {
		return nil, false
	}
	for _, fam := range foldableBases {
		if !ir.MatchHins(fam.base, ins.Opcode) {
			continue
		}
		value, ok := fam.eval(ins.Operand(1).Imm, ins.Operand(2).Imm)
		if !ok {
			return nil, false
		}
		size := ir.SourceOperandSize(ins.Opcode)
		mov := ir.SelectOpcode(ir.HinsMovB, size)
		return ir.NewInstruction(mov, ins.Operand(0), ir.Imm(value)), true
	}
	return nil, false
}

// LocalCopyPropagation rewrites, within each basic block, uses of
// virtual registers known to be copies of other virtual registers.
type LocalCopyPropagation struct{}

func (LocalCopyPropagation) TransformBasicBlock(bb *BasicBlock) []*ir.Instruction {
	copies := make(map[int]int)
	var out []*ir.Instruction

	invalidate := func(vreg int) {
		delete(copies, vreg)
		for dst, src := range copies {
			if src == vreg {
				delete(copies, dst)
			}
		}
	}

	for _, slot := range bb.Slots() {
		ins := slot.Ins.Duplicate()

		for i := 1; i < ins.NumOperands(); i++ {
			op := ins.Operand(i)
			if op.IsVReg() {
				if src, ok := copies[op.Base]; ok {
					ins.Operands[i].Base = src
				}
			}
		}
		// The base register of a memory-reference destination is a
		// use too.
		if ins.NumOperands() > 0 && ins.Operand(0).IsMemref() && ins.Operand(0).IsVReg() {
			if src, ok := copies[ins.Operand(0).Base]; ok {
				ins.Operands[0].Base = src
			}
		}

		if ins.Opcode == ir.HinsCall {
			// Calls clobber the argument and return vregs.
			for v := 0; v < numArgVregs; v++ {
				invalidate(v)
			}
		}

		if ir.HinsIsDef(ins) {
			dest := ins.Operand(0).Base
			invalidate(dest)
			if ir.MatchHins(ir.HinsMovB, ins.Opcode) && ins.Operand(1).Kind == ir.VReg {
				copies[dest] = ins.Operand(1).Base
			}
		}

		out = append(out, ins)
	}
	return out
}
