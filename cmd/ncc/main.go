package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ncc-lang/ncc/pkg/asm"
	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/cfg"
	"github.com/ncc-lang/ncc/pkg/cli"
	"github.com/ncc-lang/ncc/pkg/hirgen"
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/lexer"
	"github.com/ncc-lang/ncc/pkg/lirgen"
	"github.com/ncc-lang/ncc/pkg/parser"
	"github.com/ncc-lang/ncc/pkg/sema"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/token"
	"github.com/ncc-lang/ncc/pkg/util"
)

// Compilation modes, selected by mutually exclusive flags (the last
// one on the command line wins). The default is full compilation to
// assembly on standard output.
const (
	modeCompile = iota
	modeTokens
	modeParseTree
	modeAnalyze
	modeHighLevel
	modeHighLevelCFG
	modeLiveness
	modeLowLevelCFG
)

var modeFlags = map[string]int{
	"l": modeTokens,
	"p": modeParseTree,
	"a": modeAnalyze,
	"h": modeHighLevel,
	"C": modeHighLevelCFG,
	"L": modeLiveness,
	"c": modeLowLevelCFG,
}

func main() {
	app := cli.NewApp("ncc")
	app.Synopsis = "[options] <file>"
	app.Description = "A compiler for a small statically-typed C-like language, targeting x86-64."

	var l, p, a, h, C, L, c, optimize bool
	fs := app.FlagSet
	fs.Bool(&l, "lex", "l", false, "Print the token stream and exit.")
	fs.Bool(&p, "parse", "p", false, "Print the parse tree and exit.")
	fs.Bool(&a, "analyze", "a", false, "Run semantic analysis and dump the symbol table.")
	fs.Bool(&h, "hir", "h", false, "Print the high-level IR.")
	fs.Bool(&C, "hir-cfg", "C", false, "Print the high-level IR control-flow graph.")
	fs.Bool(&L, "liveness", "L", false, "Print the high-level CFG annotated with live vregs.")
	fs.Bool(&c, "lir-cfg", "c", false, "Print the low-level IR control-flow graph.")
	fs.Bool(&optimize, "optimize", "o", false, "Enable optimization.")

	app.Action = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("Error: expected exactly one input file")
		}
		return compile(args[0], selectMode(os.Args[1:]), optimize, os.Stdout)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if semErr, ok := err.(*util.SemanticError); ok {
			util.PrintErrorLine(os.Stderr, semErr.Loc)
		}
		os.Exit(1)
	}
}

// selectMode applies last-one-wins to the mode flags, in their short
// (-h) or long (--hir) form, as they appeared on the command line.
func selectMode(args []string) int {
	longNames := map[string]string{
		"lex": "l", "parse": "p", "analyze": "a", "hir": "h",
		"hir-cfg": "C", "liveness": "L", "lir-cfg": "c",
	}
	mode := modeCompile
	for _, arg := range args {
		if len(arg) > 2 && arg[:2] == "--" {
			if short, ok := longNames[arg[2:]]; ok {
				arg = "-" + short
			}
		}
		if len(arg) == 2 && arg[0] == '-' {
			if m, ok := modeFlags[arg[1:]]; ok {
				mode = m
			}
		}
	}
	return mode
}

func compile(path string, mode int, optimize bool, out io.Writer) (err error) {
	defer util.Catch(&err)

	content, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Errorf("Error: could not read '%s': %v", path, readErr)
	}
	src := []rune(string(content))
	util.SetSourceFiles([]util.SourceFileRecord{{Name: path, Content: src}})

	tokens := lexer.Tokenize(src, path)
	if mode == modeTokens {
		for _, tok := range tokens {
			if tok.Type == token.EOF {
				break
			}
			fmt.Fprintf(out, "%d:%d: %d '%s'\n", tok.Loc.Line, tok.Loc.Col, tok.Type, tok.Value)
		}
		return nil
	}

	unit := parser.NewParser(tokens).Parse()
	if mode == modeParseTree {
		unit.Dump(out)
		return nil
	}

	analyzer := sema.NewAnalyzer()
	analyzer.Analyze(unit)
	if mode == modeAnalyze {
		analyzer.GlobalScope().Dump(out)
		return nil
	}

	module := &asm.Module{}
	for _, sym := range analyzer.GlobalScope().Symbols() {
		if sym.Kind == symtab.SymVariable {
			module.Globals = append(module.Globals, sym)
		}
	}

	strings := &hirgen.Strings{}
	labelCount := 0
	hlFormat := ir.HighLevelFormatter{}

	for _, kid := range unit.Kids {
		if kid.Tag != ast.FunctionDefinition {
			continue
		}

		gen := hirgen.NewGenerator(&labelCount, strings)
		hlSeq := gen.Generate(kid)

		if optimize {
			hlSeq = optimizeFunction(hlSeq)
		}

		switch mode {
		case modeHighLevel:
			fmt.Fprintf(out, "%s:\n", kid.Lexeme)
			printSequence(out, hlSeq, hlFormat.FormatInstruction)
			continue

		case modeHighLevelCFG:
			graph := cfg.NewBuilder(hlSeq, cfg.HighLevelPredicates).Build()
			fmt.Fprintf(out, "Function '%s'\n", kid.Lexeme)
			graph.Dump(out, hlFormat.FormatInstruction, nil)
			continue

		case modeLiveness:
			graph := cfg.NewBuilder(hlSeq, cfg.HighLevelPredicates).Build()
			liveness := cfg.NewLiveVregs(graph)
			liveness.Execute()
			fmt.Fprintf(out, "Function '%s'\n", kid.Lexeme)
			graph.Dump(out, hlFormat.FormatInstruction, func(bb *cfg.BasicBlock, ins *ir.Instruction, w io.Writer) {
				after := liveness.FactAfterInstruction(bb, ins)
				fmt.Fprintf(w, "    /* live after: %s */\n", after)
			})
			continue
		}

		llGen := lirgen.NewGenerator()
		llSeq := llGen.Generate(hlSeq)

		if mode == modeLowLevelCFG {
			graph := cfg.NewBuilder(llSeq, cfg.LowLevelPredicates).Build()
			llFormat := ir.LowLevelFormatter{}
			fmt.Fprintf(out, "Function '%s'\n", kid.Lexeme)
			graph.Dump(out, llFormat.FormatInstruction, nil)
			continue
		}

		fmt.Fprintf(out, "/* Function '%s': %d bytes of local storage, frame size %d */\n",
			kid.Lexeme, kid.Sym.FrameSize, llGen.FrameSize())
		module.AddFunction(kid.Lexeme, llSeq)
	}

	if mode == modeCompile {
		module.Strings = strings.Entries()
		module.Emit(out)
	}
	return nil
}

// optimizeFunction runs local constant propagation, local copy
// propagation, and liveness-guided dead-store elimination, producing a
// fresh sequence.
func optimizeFunction(hlSeq *ir.InstructionSequence) *ir.InstructionSequence {
	funcSym := hlSeq.FuncSym

	graph := cfg.NewBuilder(hlSeq, cfg.HighLevelPredicates).Build()
	graph = cfg.Transform(graph, cfg.LocalConstantPropagation{})
	graph = cfg.Transform(graph, cfg.LocalCopyPropagation{})

	liveness := cfg.NewLiveVregs(graph)
	liveness.Execute()
	graph = cfg.Transform(graph, cfg.NewDeadStoreElimination(liveness))

	result := graph.Flatten()
	result.FuncSym = funcSym
	return result
}

func printSequence(w io.Writer, seq *ir.InstructionSequence, format func(*ir.Instruction) string) {
	for _, slot := range seq.Slots() {
		if slot.Label != "" {
			fmt.Fprintf(w, "%s:\n", slot.Label)
		}
		fmt.Fprintf(w, "\t%s\n", format(slot.Ins))
	}
}
