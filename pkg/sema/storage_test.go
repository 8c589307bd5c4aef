package sema

import (
	"testing"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/lexer"
	"github.com/ncc-lang/ncc/pkg/parser"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/types"
)

func analyzeForStorage(t *testing.T, src string) (*ast.Node, *Analyzer) {
	t.Helper()
	tokens := lexer.Tokenize([]rune(src), "test.c")
	unit := parser.NewParser(tokens).Parse()
	analyzer := NewAnalyzer()
	analyzer.Analyze(unit)
	return unit, analyzer
}

func findSym(n *ast.Node, name string) *symtab.Symbol {
	if n.Tag == ast.NamedDeclarator && n.Lexeme == name && n.Sym != nil {
		return n.Sym
	}
	for _, kid := range n.Kids {
		if sym := findSym(kid, name); sym != nil {
			return sym
		}
	}
	return nil
}

func TestStructModeLayout(t *testing.T) {
	calc := NewStorageCalculator(StructMode)
	offC := calc.AddField(types.NewBasic(types.Char, true))
	offL := calc.AddField(types.NewBasic(types.Long, true))
	offS := calc.AddField(types.NewBasic(types.Short, true))
	calc.Finish()

	if offC != 0 || offL != 8 || offS != 16 {
		t.Errorf("offsets = %d, %d, %d; want 0, 8, 16", offC, offL, offS)
	}
	if calc.Size() != 24 {
		t.Errorf("size = %d, want 24", calc.Size())
	}
	if calc.Align() != 8 {
		t.Errorf("align = %d, want 8", calc.Align())
	}
	if calc.Size()%calc.Align() != 0 {
		t.Error("size is not a multiple of alignment")
	}
}

func TestUnionModeLayout(t *testing.T) {
	calc := NewStorageCalculator(UnionMode)
	off1 := calc.AddField(types.NewBasic(types.Long, true))
	off2 := calc.AddField(types.NewArray(types.NewBasic(types.Char, true), 3))
	calc.Finish()

	if off1 != 0 || off2 != 0 {
		t.Error("union offsets must be zero")
	}
	if calc.Size() != 8 {
		t.Errorf("union size = %d, want 8 (largest member)", calc.Size())
	}
}

func TestEmptyStruct(t *testing.T) {
	calc := NewStorageCalculator(StructMode)
	calc.Finish()
	if calc.Size() != 0 || calc.Align() != 1 {
		t.Errorf("empty struct size/align = %d/%d, want 0/1", calc.Size(), calc.Align())
	}
}

func TestArrayFieldAlignment(t *testing.T) {
	calc := NewStorageCalculator(StructMode)
	calc.AddField(types.NewBasic(types.Char, true))
	off := calc.AddField(types.NewArray(types.NewBasic(types.Int, true), 4))
	calc.Finish()

	if off != 4 {
		t.Errorf("int[4] after char at offset %d, want 4", off)
	}
	if calc.Align() != 4 {
		t.Errorf("align = %d, want 4 (element alignment)", calc.Align())
	}
}

func TestLocalClassification(t *testing.T) {
	unit, _ := analyzeForStorage(t, `
		int main(void) {
			int scalar;
			int arr[3];
			int *taken;
			scalar = 1;
			arr[0] = scalar;
			taken = &scalar;
			return 0;
		}
	`)

	fn := unit.Kids[0]
	frameSize, nextVreg := AllocateLocals(fn)

	scalar := findSym(unit, "scalar")
	arr := findSym(unit, "arr")
	taken := findSym(unit, "taken")

	// scalar's address is taken, so it lives in memory
	if !scalar.OnStack {
		t.Error("address-taken scalar not on stack")
	}
	// arrays are always in memory
	if !arr.OnStack || arr.Vreg >= 0 {
		t.Error("array not placed in memory")
	}
	// a pointer local whose address is never taken gets a vreg
	if taken.OnStack || taken.Vreg < VregFirstLocal {
		t.Errorf("pointer local misplaced: OnStack=%v vreg=%d", taken.OnStack, taken.Vreg)
	}

	// frame: int(4) + int[3](12) = 16
	if frameSize != 16 {
		t.Errorf("frame size = %d, want 16", frameSize)
	}
	if nextVreg <= VregFirstLocal {
		t.Errorf("next vreg = %d, want above %d", nextVreg, VregFirstLocal)
	}
	if fn.Sym.FrameSize != frameSize {
		t.Error("frame size not recorded on the function symbol")
	}
}

func TestParameterVregs(t *testing.T) {
	unit, _ := analyzeForStorage(t, `
		int f(int a, int b, int c) { return a + b + c; }
	`)
	fn := unit.Kids[0]
	AllocateLocals(fn)

	for i, name := range []string{"a", "b", "c"} {
		sym := findSym(unit, name)
		if sym.Vreg != VregFirstArg+i {
			t.Errorf("parameter %s in vr%d, want vr%d", name, sym.Vreg, VregFirstArg+i)
		}
	}
}
