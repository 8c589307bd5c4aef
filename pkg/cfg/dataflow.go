package cfg

// The generic fixpoint dataflow engine. An Analysis supplies the fact
// type (a semilattice element), the direction, the meet operator, and
// the per-instruction transfer function; the engine computes facts at
// the beginning and end of every basic block and can replay a block's
// transfer to answer queries at individual instructions.

import (
	"github.com/ncc-lang/ncc/pkg/ir"
)

type Direction int

const (
	Forward Direction = iota
	Backward
)

// Analysis describes one dataflow analysis. F must be comparable so
// the engine can detect the fixpoint. CombineFacts must be
// commutative, idempotent, and absorbing with respect to TopFact.
// ModelInstruction returns the fact after (in analysis order) applying
// the instruction to the incoming fact.
type Analysis[F comparable] interface {
	Direction() Direction
	TopFact() F
	CombineFacts(a, b F) F
	ModelInstruction(ins *ir.Instruction, fact F) F
	FactToString(f F) string
}

// Dataflow runs an Analysis over a ControlFlowGraph.
type Dataflow[F comparable] struct {
	analysis   Analysis[F]
	cfg        *ControlFlowGraph
	beginFacts []F // facts at the physical beginning of each block
	endFacts   []F // facts at the physical end of each block
	iterOrder  []int
}

func NewDataflow[F comparable](cfg *ControlFlowGraph, analysis Analysis[F]) *Dataflow[F] {
	d := &Dataflow[F]{analysis: analysis, cfg: cfg}
	for i := 0; i < cfg.NumBlocks(); i++ {
		d.beginFacts = append(d.beginFacts, analysis.TopFact())
		d.endFacts = append(d.endFacts, analysis.TopFact())
	}
	return d
}

// Logical begin/end: where analysis of a block starts and finishes.
// For a backward analysis the logical beginning is the physical end.

func (d *Dataflow[F]) logicalBeginFacts() []F {
	if d.analysis.Direction() == Forward {
		return d.beginFacts
	}
	return d.endFacts
}

func (d *Dataflow[F]) logicalEndFacts() []F {
	if d.analysis.Direction() == Forward {
		return d.endFacts
	}
	return d.beginFacts
}

// logicalSuccessorEdges returns the edges leading logically forward
// from bb (outgoing for forward analyses, incoming for backward).
func (d *Dataflow[F]) logicalSuccessorEdges(bb *BasicBlock) []*Edge {
	if d.analysis.Direction() == Forward {
		return d.cfg.OutgoingEdges(bb)
	}
	return d.cfg.IncomingEdges(bb)
}

func (d *Dataflow[F]) logicalPredecessorEdges(bb *BasicBlock) []*Edge {
	if d.analysis.Direction() == Forward {
		return d.cfg.IncomingEdges(bb)
	}
	return d.cfg.OutgoingEdges(bb)
}

// logicalSuccessor resolves the block an edge leads to, in the direction the
// edge list was taken from.
func (d *Dataflow[F]) logicalSuccessor(e *Edge) *BasicBlock {
	if d.analysis.Direction() == Forward {
		return e.Target
	}
	return e.Source
}

func (d *Dataflow[F]) logicalPredecessor(e *Edge) *BasicBlock {
	if d.analysis.Direction() == Forward {
		return e.Source
	}
	return e.Target
}

// blockInstructions returns the block's instructions in analysis order.
func (d *Dataflow[F]) blockInstructions(bb *BasicBlock) []*ir.Instruction {
	n := bb.Len()
	instructions := make([]*ir.Instruction, n)
	for i := 0; i < n; i++ {
		if d.analysis.Direction() == Forward {
			instructions[i] = bb.Get(i)
		} else {
			instructions[i] = bb.Get(n - 1 - i)
		}
	}
	return instructions
}

// Execute runs the analysis to a fixpoint. Blocks are visited in
// reverse postorder on the CFG (on the reversed CFG for backward
// analyses); iteration stops when one full pass leaves every logical
// end-fact unchanged.
func (d *Dataflow[F]) Execute() {
	d.computeIterOrder()

	logicalBegin, logicalEnd := d.logicalBeginFacts(), d.logicalEndFacts()

	for {
		change := false
		for _, id := range d.iterOrder {
			bb := d.cfg.Block(id)

			// Meet over the logical predecessors' end facts.
			fact := d.analysis.TopFact()
			for _, e := range d.logicalPredecessorEdges(bb) {
				pred := d.logicalPredecessor(e)
				fact = d.analysis.CombineFacts(fact, logicalEnd[pred.ID])
			}
			logicalBegin[id] = fact

			for _, ins := range d.blockInstructions(bb) {
				fact = d.analysis.ModelInstruction(ins, fact)
			}

			if fact != logicalEnd[id] {
				change = true
				logicalEnd[id] = fact
			}
		}
		if !change {
			break
		}
	}
}

// FactAtBeginningOfBlock returns the fact at the physical beginning of
// the block.
func (d *Dataflow[F]) FactAtBeginningOfBlock(bb *BasicBlock) F { return d.beginFacts[bb.ID] }

// FactAtEndOfBlock returns the fact at the physical end of the block.
func (d *Dataflow[F]) FactAtEndOfBlock(bb *BasicBlock) F { return d.endFacts[bb.ID] }

// FactAfterInstruction returns the fact true physically after ins.
// For a backward analysis this is the fact logically before it.
func (d *Dataflow[F]) FactAfterInstruction(bb *BasicBlock, ins *ir.Instruction) F {
	return d.instructionFact(bb, ins, d.analysis.Direction() == Forward)
}

// FactBeforeInstruction returns the fact true physically before ins.
func (d *Dataflow[F]) FactBeforeInstruction(bb *BasicBlock, ins *ir.Instruction) F {
	return d.instructionFact(bb, ins, d.analysis.Direction() == Backward)
}

// instructionFact replays the block's transfer from its logical-begin
// fact up to (or just past) the target instruction.
func (d *Dataflow[F]) instructionFact(bb *BasicBlock, ins *ir.Instruction, afterInLogicalOrder bool) F {
	fact := d.logicalBeginFacts()[bb.ID]
	for _, blockIns := range d.blockInstructions(bb) {
		atInstruction := blockIns == ins
		if atInstruction && !afterInLogicalOrder {
			break
		}
		fact = d.analysis.ModelInstruction(blockIns, fact)
		if atInstruction {
			break
		}
	}
	return fact
}

// FactToString renders a fact using the analysis' formatter.
func (d *Dataflow[F]) FactToString(f F) string { return d.analysis.FactToString(f) }

func (d *Dataflow[F]) computeIterOrder() {
	visited := make([]bool, d.cfg.NumBlocks())
	d.iterOrder = d.iterOrder[:0]

	start := d.cfg.Entry()
	if d.analysis.Direction() == Backward {
		start = d.cfg.Exit()
	}
	d.postorder(visited, start)

	// reverse postorder
	for i, j := 0, len(d.iterOrder)-1; i < j; i, j = i+1, j-1 {
		d.iterOrder[i], d.iterOrder[j] = d.iterOrder[j], d.iterOrder[i]
	}
}

func (d *Dataflow[F]) postorder(visited []bool, bb *BasicBlock) {
	if visited[bb.ID] {
		return
	}
	visited[bb.ID] = true
	for _, e := range d.logicalSuccessorEdges(bb) {
		d.postorder(visited, d.logicalSuccessor(e))
	}
	d.iterOrder = append(d.iterOrder, bb.ID)
}
