package parser_test

import (
	"strings"
	"testing"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/lexer"
	"github.com/ncc-lang/ncc/pkg/parser"
	"github.com/ncc-lang/ncc/pkg/util"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	tokens := lexer.Tokenize([]rune(src), "test.c")
	return parser.NewParser(tokens).Parse()
}

func parseErr(src string) (err error) {
	defer util.Catch(&err)
	tokens := lexer.Tokenize([]rune(src), "test.c")
	parser.NewParser(tokens).Parse()
	return nil
}

func TestFunctionDefinitionShape(t *testing.T) {
	unit := parse(t, "int main(void) { return 0; }")
	if unit.Tag != ast.Unit || unit.NumKids() != 1 {
		t.Fatalf("unit shape wrong: %v", unit.Tag)
	}
	fn := unit.Kid(0)
	if fn.Tag != ast.FunctionDefinition || fn.Lexeme != "main" {
		t.Fatalf("function node = %v %q", fn.Tag, fn.Lexeme)
	}
	if fn.Kid(2).Tag != ast.ParameterList || fn.Kid(2).NumKids() != 0 {
		t.Error("void parameter list should be empty")
	}
	body := fn.Kid(3)
	if body.Tag != ast.StatementList || body.NumKids() != 1 {
		t.Fatal("body shape wrong")
	}
	if body.Kid(0).Tag != ast.ReturnExpressionStatement {
		t.Errorf("statement tag = %v", body.Kid(0).Tag)
	}
}

// Array suffixes bind tighter than pointer prefixes.
func TestDeclaratorShapes(t *testing.T) {
	unit := parse(t, "int main(void) { int *a[3]; int (*b)[3]; return 0; }")
	body := unit.Kid(0).Kid(3)

	declA := body.Kid(0).Kid(1).Kid(0)
	if declA.Tag != ast.PointerDeclarator || declA.Kid(0).Tag != ast.ArrayDeclarator {
		t.Errorf("int *a[3] parsed as %v over %v", declA.Tag, declA.Kid(0).Tag)
	}

	declB := body.Kid(1).Kid(1).Kid(0)
	if declB.Tag != ast.ArrayDeclarator || declB.Kid(0).Tag != ast.PointerDeclarator {
		t.Errorf("int (*b)[3] parsed as %v over %v", declB.Tag, declB.Kid(0).Tag)
	}
}

func TestPrecedence(t *testing.T) {
	unit := parse(t, "int main(void) { int a; a = 2 + 3 * 4; return a; }")
	assign := unit.Kid(0).Kid(3).Kid(1).Kid(0)
	if assign.Tag != ast.BinaryExpression {
		t.Fatalf("assignment tag = %v", assign.Tag)
	}
	add := assign.Kid(1)
	if add.Tag != ast.BinaryExpression {
		t.Fatalf("rhs tag = %v", add.Tag)
	}
	mul := add.Kid(1)
	if mul.Tag != ast.BinaryExpression || mul.Kid(0).Lit.IntValue != 3 {
		t.Error("multiplication did not bind tighter than addition")
	}
}

func TestStructDefinition(t *testing.T) {
	unit := parse(t, "struct P { int x; int y; };")
	def := unit.Kid(0)
	if def.Tag != ast.StructTypeDefinition || def.Lexeme != "P" {
		t.Fatalf("struct def = %v %q", def.Tag, def.Lexeme)
	}
	fields := def.Kid(0)
	if fields.Tag != ast.FieldDefinitionList || fields.NumKids() != 2 {
		t.Error("field list shape wrong")
	}
}

func TestPostfixChain(t *testing.T) {
	unit := parse(t, "struct P { int x; }; int main(void) { struct P *p; return p->x; }")
	ret := unit.Kid(1).Kid(3).Kid(1)
	expr := ret.Kid(0)
	if expr.Tag != ast.IndirectFieldRefExpression || expr.Lexeme != "x" {
		t.Errorf("p->x parsed as %v %q", expr.Tag, expr.Lexeme)
	}
}

func TestForStatement(t *testing.T) {
	unit := parse(t, "int main(void) { int i; int s; s = 0; for (i = 1; i <= 10; i = i + 1) s = s + i; return s; }")
	body := unit.Kid(0).Kid(3)
	var forNode *ast.Node
	for _, stmt := range body.Kids {
		if stmt.Tag == ast.ForStatement {
			forNode = stmt
		}
	}
	if forNode == nil {
		t.Fatal("for statement not found")
	}
	if forNode.NumKids() != 4 {
		t.Errorf("for has %d kids, want 4 (init, cond, step, body)", forNode.NumKids())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int main(void) { return 0 }", "';'"},
		{"union U { int x; };", "union"},
		{"int main(void) { int 3x; return 0; }", "declarator"},
		{"int", "declarator"},
	}
	for _, tt := range tests {
		err := parseErr(tt.src)
		if err == nil {
			t.Errorf("%q: expected parse error", tt.src)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: error %q does not mention %q", tt.src, err, tt.want)
		}
	}
}
