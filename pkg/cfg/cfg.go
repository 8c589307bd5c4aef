// Package cfg builds control-flow graphs from linear instruction
// sequences, flattens them back, and provides the dataflow framework
// and the CFG-to-CFG transformation passes.
package cfg

import (
	"fmt"
	"io"
	"sort"

	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/util"
)

type BasicBlockKind int

const (
	BlockEntry BasicBlockKind = iota
	BlockExit
	BlockInterior
)

// BasicBlock is an instruction sequence with a kind, a CFG-unique id,
// an optional label, and a code-order integer preserving the block's
// position in the original linear layout. Entry and exit blocks are
// empty.
type BasicBlock struct {
	*ir.InstructionSequence
	Kind      BasicBlockKind
	ID        int
	Label     string
	CodeOrder int
}

func (bb *BasicBlock) HasLabel() bool { return bb.Label != "" }

// SetLabel attaches a label to a block discovered via fall-through
// before any branch reached it. A block's label never changes once set.
func (bb *BasicBlock) SetLabel(label string) {
	if bb.HasLabel() {
		util.Internalf("basic block %d already has label '%s'", bb.ID, bb.Label)
	}
	bb.Label = label
}

// LastInstruction returns the final instruction of the block, or nil.
func (bb *BasicBlock) LastInstruction() *ir.Instruction {
	if bb.Len() == 0 {
		return nil
	}
	return bb.Get(bb.Len() - 1)
}

type EdgeKind int

const (
	EdgeFallthrough EdgeKind = iota
	EdgeBranch
)

// Edge is a directed, typed edge between two blocks of the same CFG.
type Edge struct {
	Kind   EdgeKind
	Source *BasicBlock
	Target *BasicBlock
}

// ControlFlowGraph owns its blocks and edges. There is exactly one
// entry and one exit block, and at most one edge per ordered
// (source, target) pair.
type ControlFlowGraph struct {
	blocks   []*BasicBlock
	entry    *BasicBlock
	exit     *BasicBlock
	outgoing map[int][]*Edge
	incoming map[int][]*Edge
}

func NewControlFlowGraph() *ControlFlowGraph {
	return &ControlFlowGraph{
		outgoing: make(map[int][]*Edge),
		incoming: make(map[int][]*Edge),
	}
}

func (cfg *ControlFlowGraph) Entry() *BasicBlock { return cfg.entry }
func (cfg *ControlFlowGraph) Exit() *BasicBlock  { return cfg.exit }
func (cfg *ControlFlowGraph) NumBlocks() int     { return len(cfg.blocks) }

// Block returns the block with the given id.
func (cfg *ControlFlowGraph) Block(id int) *BasicBlock { return cfg.blocks[id] }

// Blocks returns the blocks in creation order.
func (cfg *ControlFlowGraph) Blocks() []*BasicBlock { return cfg.blocks }

func (cfg *ControlFlowGraph) CreateBasicBlock(kind BasicBlockKind, codeOrder int, label string) *BasicBlock {
	bb := &BasicBlock{
		InstructionSequence: ir.NewInstructionSequence(),
		Kind:                kind,
		ID:                  len(cfg.blocks),
		Label:               label,
		CodeOrder:           codeOrder,
	}
	cfg.blocks = append(cfg.blocks, bb)
	if kind == BlockEntry {
		if cfg.entry != nil {
			util.Internalf("control-flow graph has multiple entry blocks")
		}
		cfg.entry = bb
	}
	if kind == BlockExit {
		if cfg.exit != nil {
			util.Internalf("control-flow graph has multiple exit blocks")
		}
		cfg.exit = bb
	}
	return bb
}

// LookupEdge finds the edge from source to target, or nil.
func (cfg *ControlFlowGraph) LookupEdge(source, target *BasicBlock) *Edge {
	for _, e := range cfg.outgoing[source.ID] {
		if e.Target == target {
			return e
		}
	}
	return nil
}

// CreateEdge adds a directed edge; if one already exists for the
// ordered pair it is returned unchanged.
func (cfg *ControlFlowGraph) CreateEdge(source, target *BasicBlock, kind EdgeKind) *Edge {
	if e := cfg.LookupEdge(source, target); e != nil {
		return e
	}
	e := &Edge{Kind: kind, Source: source, Target: target}
	cfg.outgoing[source.ID] = append(cfg.outgoing[source.ID], e)
	cfg.incoming[target.ID] = append(cfg.incoming[target.ID], e)
	return e
}

func (cfg *ControlFlowGraph) OutgoingEdges(bb *BasicBlock) []*Edge { return cfg.outgoing[bb.ID] }
func (cfg *ControlFlowGraph) IncomingEdges(bb *BasicBlock) []*Edge { return cfg.incoming[bb.ID] }

// blocksInCodeOrder returns the blocks sorted by their original layout
// position.
func (cfg *ControlFlowGraph) blocksInCodeOrder() []*BasicBlock {
	blocks := make([]*BasicBlock, len(cfg.blocks))
	copy(blocks, cfg.blocks)
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].CodeOrder < blocks[j].CodeOrder
	})
	return blocks
}

// canUseOriginalLayout reports whether every fall-through edge connects
// a block to its immediate successor in code order, in which case
// flattening can reproduce the original layout exactly.
func (cfg *ControlFlowGraph) canUseOriginalLayout() bool {
	blocks := cfg.blocksInCodeOrder()
	next := make(map[int]*BasicBlock)
	for i := 0; i+1 < len(blocks); i++ {
		next[blocks[i].ID] = blocks[i+1]
	}
	for _, edges := range cfg.outgoing {
		for _, e := range edges {
			if e.Kind != EdgeFallthrough {
				continue
			}
			if next[e.Source.ID] != e.Target {
				return false
			}
		}
	}
	return true
}

// Flatten produces a linear instruction sequence from the CFG. When
// the fall-through edges still follow the original code order the
// blocks are emitted in exactly that order; otherwise fall-through
// connected blocks are grouped into chunks and the CFG is traversed
// from the entry, deferring the chunk containing the exit block to the
// end.
func (cfg *ControlFlowGraph) Flatten() *ir.InstructionSequence {
	if cfg.canUseOriginalLayout() {
		return cfg.rebuildSequence()
	}
	return cfg.reconstructSequence()
}

func (cfg *ControlFlowGraph) rebuildSequence() *ir.InstructionSequence {
	result := ir.NewInstructionSequence()
	finished := make([]bool, cfg.NumBlocks())
	for _, bb := range cfg.blocksInCodeOrder() {
		cfg.appendBasicBlock(result, bb, finished)
	}
	return result
}

// chunk is a group of basic blocks connected via fall-through edges;
// its blocks must be emitted contiguously.
type chunk struct {
	blocks []*BasicBlock
}

func (c *chunk) isFirst(bb *BasicBlock) bool { return len(c.blocks) > 0 && c.blocks[0] == bb }
func (c *chunk) isLast(bb *BasicBlock) bool {
	return len(c.blocks) > 0 && c.blocks[len(c.blocks)-1] == bb
}

func (c *chunk) containsExit() bool {
	for _, bb := range c.blocks {
		if bb.Kind == BlockExit {
			return true
		}
	}
	return false
}

func (cfg *ControlFlowGraph) reconstructSequence() *ir.InstructionSequence {
	// Group fall-through connected blocks into chunks.
	chunkMap := make(map[*BasicBlock]*chunk)
	for _, bb := range cfg.blocks {
		for _, e := range cfg.outgoing[bb.ID] {
			if e.Kind != EdgeFallthrough {
				continue
			}
			pred, succ := e.Source, e.Target
			predChunk, succChunk := chunkMap[pred], chunkMap[succ]
			switch {
			case predChunk == nil && succChunk == nil:
				c := &chunk{blocks: []*BasicBlock{pred, succ}}
				chunkMap[pred], chunkMap[succ] = c, c
			case predChunk == nil:
				if !succChunk.isFirst(succ) {
					util.Internalf("fall-through into interior of chunk")
				}
				succChunk.blocks = append([]*BasicBlock{pred}, succChunk.blocks...)
				chunkMap[pred] = succChunk
			case succChunk == nil:
				if !predChunk.isLast(pred) {
					util.Internalf("fall-through out of interior of chunk")
				}
				predChunk.blocks = append(predChunk.blocks, succ)
				chunkMap[succ] = predChunk
			default:
				merged := &chunk{blocks: append(append([]*BasicBlock{}, predChunk.blocks...), succChunk.blocks...)}
				for _, b := range merged.blocks {
					chunkMap[b] = merged
				}
			}
		}
	}

	result := ir.NewInstructionSequence()
	finished := make([]bool, cfg.NumBlocks())
	var exitChunk *chunk

	workList := []*BasicBlock{cfg.entry}
	for len(workList) > 0 {
		bb := workList[0]
		workList = workList[1:]
		if finished[bb.ID] {
			continue
		}

		if c, ok := chunkMap[bb]; ok {
			// The chunk containing the exit block must come last;
			// mark its blocks finished but defer emission.
			isExitChunk := c.containsExit()
			if isExitChunk {
				exitChunk = c
			}
			for _, b := range c.blocks {
				if isExitChunk {
					finished[b.ID] = true
				} else {
					cfg.appendBasicBlock(result, b, finished)
				}
				for _, e := range cfg.outgoing[b.ID] {
					workList = append(workList, e.Target)
				}
			}
		} else {
			cfg.appendBasicBlock(result, bb, finished)
			for _, e := range cfg.outgoing[bb.ID] {
				workList = append(workList, e.Target)
			}
		}
	}

	if exitChunk != nil {
		for _, b := range exitChunk.blocks {
			finished[b.ID] = false
			cfg.appendBasicBlock(result, b, finished)
		}
	}
	return result
}

func (cfg *ControlFlowGraph) appendBasicBlock(seq *ir.InstructionSequence, bb *BasicBlock, finished []bool) {
	if bb.HasLabel() {
		seq.DefineLabel(bb.Label)
	}
	for _, slot := range bb.Slots() {
		seq.Append(slot.Ins.Duplicate())
	}
	finished[bb.ID] = true
}

// Dump prints the CFG, one block per section, with edge summaries.
// annotate, if non-nil, is called after each instruction to print
// dataflow facts.
func (cfg *ControlFlowGraph) Dump(w io.Writer, format func(*ir.Instruction) string, annotate func(bb *BasicBlock, ins *ir.Instruction, w io.Writer)) {
	for _, bb := range cfg.blocks {
		kind := ""
		switch bb.Kind {
		case BlockEntry:
			kind = " [entry]"
		case BlockExit:
			kind = " [exit]"
		}
		label := ""
		if bb.HasLabel() {
			label = fmt.Sprintf(" (label %s)", bb.Label)
		}
		fmt.Fprintf(w, "BASIC BLOCK %d%s%s\n", bb.ID, kind, label)
		for _, slot := range bb.Slots() {
			fmt.Fprintf(w, "  %s\n", format(slot.Ins))
			if annotate != nil {
				annotate(bb, slot.Ins, w)
			}
		}
		for _, e := range cfg.outgoing[bb.ID] {
			kindStr := "fall-through"
			if e.Kind == EdgeBranch {
				kindStr = "branch"
			}
			fmt.Fprintf(w, "  Edge to basic block %d (%s)\n", e.Target.ID, kindStr)
		}
	}
}
