package cfg

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ncc-lang/ncc/pkg/ir"
)

// loopSequence builds the HIR of a counting loop in the canonical
// bottom-test shape.
func loopSequence() *ir.InstructionSequence {
	seq := ir.NewInstructionSequence()
	seq.Append(ir.NewInstruction(ir.HinsEnter, ir.Imm(0)))
	seq.Append(ir.NewInstruction(ir.HinsMovL, ir.Vr(16), ir.Imm(0)))
	seq.Append(ir.NewInstruction(ir.HinsJmp, ir.Lbl(".L1")))
	seq.DefineLabel(".L0")
	seq.Append(ir.NewInstruction(ir.HinsAddL, ir.Vr(16), ir.Vr(16), ir.Imm(1)))
	seq.DefineLabel(".L1")
	seq.Append(ir.NewInstruction(ir.HinsCmpLtL, ir.Vr(17), ir.Vr(16), ir.Imm(10)))
	seq.Append(ir.NewInstruction(ir.HinsCjmpT, ir.Vr(17), ir.Lbl(".L0")))
	seq.Append(ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Vr(16)))
	seq.Append(ir.NewInstruction(ir.HinsJmp, ir.Lbl(".Lf_return")))
	seq.DefineLabel(".Lf_return")
	seq.Append(ir.NewInstruction(ir.HinsLeave, ir.Imm(0)))
	seq.Append(ir.NewInstruction(ir.HinsRet))
	return seq
}

func render(seq *ir.InstructionSequence) []string {
	f := ir.HighLevelFormatter{}
	var out []string
	for _, slot := range seq.Slots() {
		if slot.Label != "" {
			out = append(out, slot.Label+":")
		}
		out = append(out, f.FormatInstruction(slot.Ins))
	}
	return out
}

func buildLoopCFG(t *testing.T) *ControlFlowGraph {
	t.Helper()
	return NewBuilder(loopSequence(), HighLevelPredicates).Build()
}

func TestCFGIntegrity(t *testing.T) {
	graph := buildLoopCFG(t)

	if graph.Entry() == nil || graph.Exit() == nil {
		t.Fatal("missing entry or exit block")
	}
	if len(graph.IncomingEdges(graph.Entry())) != 0 {
		t.Error("entry block has incoming edges")
	}
	if len(graph.OutgoingEdges(graph.Exit())) != 0 {
		t.Error("exit block has outgoing edges")
	}

	// Every block other than entry is reachable from entry.
	reachable := make(map[int]bool)
	var walk func(bb *BasicBlock)
	walk = func(bb *BasicBlock) {
		if reachable[bb.ID] {
			return
		}
		reachable[bb.ID] = true
		for _, e := range graph.OutgoingEdges(bb) {
			walk(e.Target)
		}
	}
	walk(graph.Entry())
	for _, bb := range graph.Blocks() {
		if !reachable[bb.ID] {
			t.Errorf("block %d is unreachable from entry", bb.ID)
		}
	}

	// Edges connect blocks of this CFG; at most one edge per ordered
	// pair.
	for _, bb := range graph.Blocks() {
		seen := make(map[int]bool)
		for _, e := range graph.OutgoingEdges(bb) {
			if e.Source != bb {
				t.Error("edge source mismatch")
			}
			if graph.Block(e.Target.ID) != e.Target {
				t.Error("edge target is not owned by this CFG")
			}
			if seen[e.Target.ID] {
				t.Errorf("duplicate edge %d -> %d", bb.ID, e.Target.ID)
			}
			seen[e.Target.ID] = true
		}
	}

	// Non-entry blocks all have at least one incoming edge.
	for _, bb := range graph.Blocks() {
		if bb == graph.Entry() {
			continue
		}
		if len(graph.IncomingEdges(bb)) == 0 {
			t.Errorf("block %d has no incoming edges", bb.ID)
		}
	}
}

func TestCreateEdgeDeduplicates(t *testing.T) {
	graph := NewControlFlowGraph()
	a := graph.CreateBasicBlock(BlockEntry, -1, "")
	b := graph.CreateBasicBlock(BlockExit, 1, "")
	e1 := graph.CreateEdge(a, b, EdgeFallthrough)
	e2 := graph.CreateEdge(a, b, EdgeFallthrough)
	if e1 != e2 {
		t.Error("second CreateEdge for the same pair created a new edge")
	}
	if len(graph.OutgoingEdges(a)) != 1 {
		t.Error("duplicate edge recorded")
	}
}

// A CFG built from a generator-shaped sequence flattens back to the
// exact original layout (fall-through edges all follow code order).
func TestFlattenRoundTrip(t *testing.T) {
	original := loopSequence()
	graph := NewBuilder(original, HighLevelPredicates).Build()
	flattened := graph.Flatten()

	if diff := cmp.Diff(render(original), render(flattened)); diff != "" {
		t.Errorf("flatten did not reproduce the original sequence (-orig +flat):\n%s", diff)
	}
}

func TestBranchTargetsLabeledBlocks(t *testing.T) {
	graph := buildLoopCFG(t)
	for _, bb := range graph.Blocks() {
		for _, e := range graph.OutgoingEdges(bb) {
			if e.Kind == EdgeBranch && e.Target.Kind == BlockInterior && !e.Target.HasLabel() {
				t.Errorf("branch edge to unlabeled block %d", e.Target.ID)
			}
		}
	}
}

func TestCallEndsBlock(t *testing.T) {
	seq := ir.NewInstructionSequence()
	seq.Append(ir.NewInstruction(ir.HinsEnter, ir.Imm(0)))
	seq.Append(ir.NewInstruction(ir.HinsMovL, ir.Vr(1), ir.Imm(10)))
	seq.Append(ir.NewInstruction(ir.HinsCall, ir.Lbl("sum")))
	seq.Append(ir.NewInstruction(ir.HinsMovL, ir.Vr(16), ir.Vr(0)))
	seq.Append(ir.NewInstruction(ir.HinsRet))

	graph := NewBuilder(seq, HighLevelPredicates).Build()
	for _, bb := range graph.Blocks() {
		for i, slot := range bb.Slots() {
			if slot.Ins.Opcode == ir.HinsCall && i != bb.Len()-1 {
				t.Error("call is not the last instruction of its block")
			}
		}
	}
}
