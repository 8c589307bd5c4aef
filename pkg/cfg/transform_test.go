package cfg

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ncc-lang/ncc/pkg/ir"
)

func straightLine(instructions ...*ir.Instruction) *ir.InstructionSequence {
	seq := ir.NewInstructionSequence()
	seq.Append(ir.NewInstruction(ir.HinsEnter, ir.Imm(0)))
	for _, ins := range instructions {
		seq.Append(ins)
	}
	seq.Append(ir.NewInstruction(ir.HinsLeave, ir.Imm(0)))
	seq.Append(ir.NewInstruction(ir.HinsRet))
	return seq
}

func TestDeadStoreElimination(t *testing.T) {
	seq := straightLine(
		ir.NewInstruction(ir.HinsMovL, ir.Vr(16), ir.Imm(1)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(17), ir.Imm(2)), // dead
		ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Vr(16)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	liveness := NewLiveVregs(graph)
	liveness.Execute()
	optimized := Transform(graph, NewDeadStoreElimination(liveness)).Flatten()

	for _, slot := range optimized.Slots() {
		if ir.HinsIsDef(slot.Ins) && slot.Ins.Operand(0).Base == 17 {
			t.Error("dead store to vr17 survived")
		}
	}
	found16 := false
	for _, slot := range optimized.Slots() {
		if ir.HinsIsDef(slot.Ins) && slot.Ins.Operand(0).Base == 16 {
			found16 = true
		}
	}
	if !found16 {
		t.Error("live def of vr16 was dropped")
	}
}

func TestDeadStoreKeepsReservedVregs(t *testing.T) {
	// vr0 is dead after its def here, but it carries the return value.
	seq := straightLine(
		ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Imm(7)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	liveness := NewLiveVregs(graph)
	liveness.Execute()
	optimized := Transform(graph, NewDeadStoreElimination(liveness)).Flatten()

	found := false
	for _, slot := range optimized.Slots() {
		if ir.HinsIsDef(slot.Ins) && slot.Ins.Operand(0).Base == 0 {
			found = true
		}
	}
	if !found {
		t.Error("def of reserved vr0 was dropped")
	}
}

func TestDeadStoreKeepsStores(t *testing.T) {
	seq := straightLine(
		ir.NewInstruction(ir.HinsLocaladdr, ir.Vr(16), ir.Imm(0)),
		ir.NewInstruction(ir.HinsMovL, ir.VrMem(16), ir.Imm(3)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	liveness := NewLiveVregs(graph)
	liveness.Execute()
	optimized := Transform(graph, NewDeadStoreElimination(liveness)).Flatten()

	found := false
	for _, slot := range optimized.Slots() {
		if slot.Ins.NumOperands() > 0 && slot.Ins.Operand(0).Kind == ir.VRegMem {
			found = true
		}
	}
	if !found {
		t.Error("store through memory reference was dropped")
	}
}

func TestConstantPropagationFolds(t *testing.T) {
	// a = 2 + 3 * 4
	seq := straightLine(
		ir.NewInstruction(ir.HinsMulL, ir.Vr(17), ir.Imm(3), ir.Imm(4)),
		ir.NewInstruction(ir.HinsAddL, ir.Vr(18), ir.Imm(2), ir.Vr(17)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(16), ir.Vr(18)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Vr(16)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	optimized := Transform(graph, LocalConstantPropagation{})

	flat := optimized.Flatten()
	var retMov *ir.Instruction
	for _, slot := range flat.Slots() {
		if ir.MatchHins(ir.HinsMovB, slot.Ins.Opcode) && slot.Ins.Operand(0).Base == 0 {
			retMov = slot.Ins
		}
	}
	if retMov == nil {
		t.Fatal("move into vr0 not found")
	}
	src := retMov.Operand(1)
	if !src.IsImmInt() || src.Imm != 14 {
		t.Errorf("return value source = %+v, want $14", src)
	}
}

// Applying constant propagation to its own output changes nothing.
func TestConstantPropagationIdempotent(t *testing.T) {
	seq := straightLine(
		ir.NewInstruction(ir.HinsMulL, ir.Vr(17), ir.Imm(3), ir.Imm(4)),
		ir.NewInstruction(ir.HinsAddL, ir.Vr(18), ir.Imm(2), ir.Vr(17)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Vr(18)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	once := Transform(graph, LocalConstantPropagation{})
	twice := Transform(once, LocalConstantPropagation{})

	if diff := cmp.Diff(render(once.Flatten()), render(twice.Flatten())); diff != "" {
		t.Errorf("constant propagation is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestCopyPropagation(t *testing.T) {
	seq := straightLine(
		ir.NewInstruction(ir.HinsMovL, ir.Vr(17), ir.Vr(16)),
		ir.NewInstruction(ir.HinsAddL, ir.Vr(18), ir.Vr(17), ir.Imm(1)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	flat := Transform(graph, LocalCopyPropagation{}).Flatten()

	var add *ir.Instruction
	for _, slot := range flat.Slots() {
		if ir.MatchHins(ir.HinsAddB, slot.Ins.Opcode) {
			add = slot.Ins
		}
	}
	if add == nil {
		t.Fatal("add not found")
	}
	if add.Operand(1).Base != 16 {
		t.Errorf("copy not propagated: add source is vr%d, want vr16", add.Operand(1).Base)
	}
}

func TestCopyPropagationCallClobbers(t *testing.T) {
	seq := straightLine(
		ir.NewInstruction(ir.HinsMovL, ir.Vr(16), ir.Vr(1)),
		ir.NewInstruction(ir.HinsCall, ir.Lbl("g")),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(17), ir.Vr(16)),
	)
	graph := NewBuilder(seq, HighLevelPredicates).Build()
	flat := Transform(graph, LocalCopyPropagation{}).Flatten()

	for _, slot := range flat.Slots() {
		if ir.MatchHins(ir.HinsMovB, slot.Ins.Opcode) && slot.Ins.Operand(0).Base == 17 {
			if slot.Ins.Operand(1).Base == 1 {
				t.Error("copy of argument vreg propagated across a call")
			}
		}
	}
}

func TestTransformPreservesEdgesAndLabels(t *testing.T) {
	graph := buildLoopCFG(t)
	mapped := Transform(graph, LocalConstantPropagation{})

	if mapped.NumBlocks() != graph.NumBlocks() {
		t.Fatalf("block count changed: %d -> %d", graph.NumBlocks(), mapped.NumBlocks())
	}
	for _, bb := range graph.Blocks() {
		mappedBlock := mapped.Block(bb.ID)
		if mappedBlock.Label != bb.Label || mappedBlock.CodeOrder != bb.CodeOrder || mappedBlock.Kind != bb.Kind {
			t.Errorf("block %d metadata changed", bb.ID)
		}
		if len(mapped.OutgoingEdges(mappedBlock)) != len(graph.OutgoingEdges(bb)) {
			t.Errorf("block %d edge count changed", bb.ID)
		}
	}
}
