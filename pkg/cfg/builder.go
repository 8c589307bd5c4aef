package cfg

import (
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/util"
)

// Predicates supplies the level-specific instruction classification the
// builder needs: which instructions branch to a label, which are calls,
// and which can fall through to the next instruction.
type Predicates struct {
	IsBranch     func(*ir.Instruction) bool
	IsCall       func(*ir.Instruction) bool
	FallsThrough func(*ir.Instruction) bool
}

// HighLevelPredicates classifies HIR instructions.
var HighLevelPredicates = Predicates{
	IsBranch:     ir.HinsIsBranch,
	IsCall:       func(ins *ir.Instruction) bool { return ins.Opcode == ir.HinsCall },
	FallsThrough: ir.HinsFallsThrough,
}

// LowLevelPredicates classifies LIR instructions.
var LowLevelPredicates = Predicates{
	IsBranch:     ir.MinsIsBranch,
	IsCall:       func(ins *ir.Instruction) bool { return ins.Opcode == ir.MinsCall },
	FallsThrough: ir.MinsFallsThrough,
}

type workItem struct {
	insIndex int
	pred     *BasicBlock
	edgeKind EdgeKind
	label    string
}

// Builder partitions a linear instruction sequence into basic blocks
// joined by fall-through or branch edges.
type Builder struct {
	seq    *ir.InstructionSequence
	preds  Predicates
	cfg    *ControlFlowGraph
	blocks map[int]*BasicBlock // instruction index -> block starting there
}

func NewBuilder(seq *ir.InstructionSequence, preds Predicates) *Builder {
	return &Builder{
		seq:    seq,
		preds:  preds,
		cfg:    NewControlFlowGraph(),
		blocks: make(map[int]*BasicBlock),
	}
}

// Build discovers all basic blocks reachable from the beginning of the
// sequence and connects them with edges. The entry block has no
// incoming edges, the exit block no outgoing ones, and every other
// block is reachable from the entry.
func (b *Builder) Build() *ControlFlowGraph {
	numInstructions := b.seq.Len()

	entry := b.cfg.CreateBasicBlock(BlockEntry, -1, "")
	exit := b.cfg.CreateBasicBlock(BlockExit, 2000000, "")

	// A branch that targets the end of the sequence reaches the exit
	// block.
	b.blocks[numInstructions] = exit

	workList := []workItem{{insIndex: 0, pred: entry, edgeKind: EdgeFallthrough}}

	var last *BasicBlock
	for len(workList) > 0 {
		item := workList[0]
		workList = workList[1:]

		if item.insIndex == numInstructions {
			b.cfg.CreateEdge(item.pred, exit, item.edgeKind)
			continue
		}

		bb, known := b.blocks[item.insIndex]
		if known {
			// A block first discovered via fall-through may be reached
			// later by a branch; it picks up the branch's label then.
			if item.edgeKind == EdgeBranch && !bb.HasLabel() {
				bb.SetLabel(item.label)
			}
		} else {
			bb = b.scanBasicBlock(item.insIndex, item.label)
			b.blocks[item.insIndex] = bb
		}

		if item.edgeKind == EdgeBranch && bb.Label != item.label {
			util.Internalf("basic block %d reachable via two labels ('%s', '%s')", bb.ID, bb.Label, item.label)
		}

		b.cfg.CreateEdge(item.pred, bb, item.edgeKind)

		if known {
			continue
		}

		lastIns := bb.LastInstruction()
		if b.preds.IsBranch(lastIns) {
			// Branch instructions carry the target label as the last
			// operand.
			operand := lastIns.Operand(lastIns.NumOperands() - 1)
			if operand.Kind != ir.Label {
				util.Internalf("branch instruction without label operand")
			}
			targetIndex, ok := b.seq.LabelIndex(operand.Text)
			if !ok {
				util.Internalf("branch to undefined label '%s'", operand.Text)
			}
			workList = append(workList, workItem{insIndex: targetIndex, pred: bb, edgeKind: EdgeBranch, label: operand.Text})
		}

		if b.preds.FallsThrough(lastIns) {
			targetIndex := item.insIndex + bb.Len()
			if targetIndex == numInstructions {
				// Final block of the sequence falls through to exit.
				last = bb
			} else {
				workList = append(workList, workItem{insIndex: targetIndex, pred: bb, edgeKind: EdgeFallthrough})
			}
		}
	}

	if last != nil {
		b.cfg.CreateEdge(last, exit, EdgeFallthrough)
	}

	return b.cfg
}

// scanBasicBlock collects instructions into a new block starting at
// index, stopping after a branch or call, before an instruction that
// has a label (and thus begins another block), or at the end of the
// sequence.
func (b *Builder) scanBasicBlock(index int, label string) *BasicBlock {
	bb := b.cfg.CreateBasicBlock(BlockInterior, index, label)

	for index < b.seq.Len() {
		ins := b.seq.Get(index)
		bb.Append(ins.Duplicate())
		index++

		if index >= b.seq.Len() {
			break
		}
		if b.preds.IsCall(ins) || b.preds.IsBranch(ins) {
			break
		}
		if b.seq.LabelAt(index) != "" {
			break
		}
	}

	if bb.Len() == 0 {
		util.Internalf("scanned empty basic block at index %d", index)
	}
	return bb
}
