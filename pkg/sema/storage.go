package sema

import (
	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/types"
	"github.com/ncc-lang/ncc/pkg/util"
)

// Virtual-register plan: vr0 is the return value, vr1-vr9 carry
// arguments, vr10-vr15 are reserved for temporaries, and named local
// variables are numbered from vr16 up.
const (
	VregRetval     = 0
	VregFirstArg   = 1
	VregLastArg    = 9
	VregFirstLocal = 16
)

type StorageCalcMode int

const (
	StructMode StorageCalcMode = iota
	UnionMode
)

// StorageCalculator simulates packed layout with alignment padding. It
// lays out struct fields and function stack frames; UNION mode fixes
// every offset at zero and keeps the maximum size.
type StorageCalculator struct {
	mode     StorageCalcMode
	size     int
	align    int
	finished bool
}

func NewStorageCalculator(mode StorageCalcMode) *StorageCalculator {
	return &StorageCalculator{mode: mode}
}

// AddField accounts for one field and returns its offset.
func (c *StorageCalculator) AddField(t *types.Type) int {
	size := t.StorageSize()
	align := t.Alignment()

	// The largest field alignment becomes the overall alignment.
	if align > c.align {
		c.align = align
	}

	if c.mode == UnionMode {
		if size > c.size {
			c.size = size
		}
		return 0
	}

	offset := util.AlignUp(c.size, align)
	c.size = offset + size
	return offset
}

// Finish pads the total size up to the overall alignment. An empty
// struct has size 0 and alignment 1.
func (c *StorageCalculator) Finish() {
	if c.align == 0 {
		c.align = 1
	} else {
		c.size = util.AlignUp(c.size, c.align)
	}
	if c.align&(c.align-1) != 0 || c.size%c.align != 0 {
		util.Internalf("storage calculator produced size %d, alignment %d", c.size, c.align)
	}
	c.finished = true
}

func (c *StorageCalculator) Size() int {
	if !c.finished {
		util.Internalf("storage calculator queried before Finish")
	}
	return c.size
}

func (c *StorageCalculator) Align() int {
	if !c.finished {
		util.Internalf("storage calculator queried before Finish")
	}
	return c.align
}

// AllocateLocals runs the storage planner over one function
// definition: parameters are assigned argument vregs, and every local
// is classified as either a fresh virtual register (integral or
// pointer, address never taken) or a packed frame offset (arrays,
// structs, and address-taken scalars). It returns the function's
// locals-region size in bytes and the next unassigned vreg number,
// and records the region size on the function symbol.
func AllocateLocals(fn *ast.Node) (frameSize, nextVreg int) {
	if fn.Tag != ast.FunctionDefinition {
		util.Internalf("AllocateLocals on %s node", fn.Tag)
	}

	calc := NewStorageCalculator(StructMode)

	params := fn.Kid(2)
	vreg := VregFirstArg
	for _, param := range params.Kids {
		leaf := namedLeaf(param.Kid(1))
		if vreg > VregLastArg {
			util.Errorf(param.Loc, "function '%s' has more than %d parameters", fn.Lexeme, VregLastArg)
		}
		leaf.Sym.Vreg = vreg
		vreg++
		// An address-taken parameter also gets a frame slot; the
		// prologue stores the incoming argument there.
		if leaf.Sym.AddressTaken {
			leaf.Sym.OnStack = true
			leaf.Sym.Offset = calc.AddField(leaf.Sym.Type)
		}
	}

	nextVreg = VregFirstLocal
	allocateBlock(fn.Kid(3), calc, &nextVreg)
	calc.Finish()

	frameSize = calc.Size()
	if fn.Sym != nil {
		fn.Sym.FrameSize = frameSize
	}
	return frameSize, nextVreg
}

func allocateBlock(n *ast.Node, calc *StorageCalculator, nextVreg *int) {
	switch n.Tag {
	case ast.VarDecl:
		for _, declarator := range n.Kid(1).Kids {
			leaf := namedLeaf(declarator)
			sym := leaf.Sym
			if sym == nil {
				continue
			}
			t := sym.Type
			if (t.IsIntegral() || t.IsPointer()) && !sym.AddressTaken && !sym.OnStack {
				sym.Vreg = *nextVreg
				*nextVreg++
			} else {
				sym.OnStack = true
				sym.Offset = calc.AddField(t)
			}
		}
	default:
		for _, kid := range n.Kids {
			allocateBlock(kid, calc, nextVreg)
		}
	}
}

func namedLeaf(declarator *ast.Node) *ast.Node {
	for declarator.Tag != ast.NamedDeclarator {
		declarator = declarator.Kid(0)
	}
	return declarator
}

// arrayLength parses the length recorded on an array declarator.
func arrayLength(n *ast.Node) int {
	length := 0
	for _, r := range n.Lexeme {
		if r < '0' || r > '9' {
			util.Errorf(n.Loc, "invalid array length '%s'", n.Lexeme)
		}
		length = length*10 + int(r-'0')
	}
	return length
}
