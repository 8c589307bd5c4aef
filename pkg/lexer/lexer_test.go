package lexer

import (
	"testing"

	"github.com/ncc-lang/ncc/pkg/token"
)

func kinds(src string) []token.Type {
	var out []token.Type
	for _, tok := range Tokenize([]rune(src), "test.c") {
		out = append(out, tok.Type)
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tokens := Tokenize([]rune("int main void x1 _y"), "test.c")
	want := []token.Type{token.Int, token.Ident, token.Void, token.Ident, token.Ident, token.EOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Type != want[i] {
			t.Errorf("token %d: type %d, want %d", i, tok.Type, want[i])
		}
	}
	if tokens[1].Value != "main" {
		t.Errorf("identifier value = %q", tokens[1].Value)
	}
}

func TestOperators(t *testing.T) {
	got := kinds("-> - && & || | == = != ! <= < >= >")
	want := []token.Type{
		token.Arrow, token.Minus, token.AndAnd, token.Amp, token.OrOr, token.Pipe,
		token.EqEq, token.Assign, token.Neq, token.Not, token.Lte, token.Lt,
		token.Gte, token.Gt, token.EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: type %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLocations(t *testing.T) {
	tokens := Tokenize([]rune("int\n  x;"), "test.c")
	if tokens[0].Loc.Line != 1 || tokens[0].Loc.Col != 1 {
		t.Errorf("int at %d:%d, want 1:1", tokens[0].Loc.Line, tokens[0].Loc.Col)
	}
	if tokens[1].Loc.Line != 2 || tokens[1].Loc.Col != 3 {
		t.Errorf("x at %d:%d, want 2:3", tokens[1].Loc.Line, tokens[1].Loc.Col)
	}
}

func TestComments(t *testing.T) {
	got := kinds("a // line comment\nb /* block\ncomment */ c")
	want := []token.Type{token.Ident, token.Ident, token.Ident, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
}

func TestLiterals(t *testing.T) {
	tokens := Tokenize([]rune(`42 10L 'a' '\n' "hi\tthere"`), "test.c")
	if tokens[0].Type != token.Number || tokens[0].Value != "42" {
		t.Errorf("number token = %+v", tokens[0])
	}
	if tokens[1].Type != token.Number || tokens[1].Value != "10L" {
		t.Errorf("long literal = %+v", tokens[1])
	}
	if tokens[2].Type != token.CharLit || tokens[2].Value != "a" {
		t.Errorf("char literal = %+v", tokens[2])
	}
	if tokens[3].Type != token.CharLit || tokens[3].Value != "\n" {
		t.Errorf("escaped char literal = %+v", tokens[3])
	}
	if tokens[4].Type != token.String || tokens[4].Value != "hi\tthere" {
		t.Errorf("string literal = %+v", tokens[4])
	}
}
