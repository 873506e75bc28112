package lexer

import (
	"testing"

	"rzn/internal/errors"
)

func scan(t *testing.T, source string) []Token {
	t.Helper()
	diags := &errors.DiagnosticList{}
	tokens := NewScanner(source, "test.rzn", diags).ScanTokens()
	if diags.HasErrors() {
		t.Fatalf("unexpected scan errors: %v", diags.Items)
	}
	return tokens
}

func kinds(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tokens := scan(t, "var x = fun struct impl selfish")
	want := []TokenType{TokenVar, TokenIdent, TokenEqual, TokenFun, TokenStruct,
		TokenImpl, TokenIdent, TokenEOF}
	got := kinds(tokens)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %s, want %s", i, got[i], want[i])
		}
	}
	if tokens[6].Lexeme != "selfish" {
		t.Fatalf("keyword prefix must not split identifiers: %q", tokens[6].Lexeme)
	}
}

func TestNumbersAndRanges(t *testing.T) {
	tokens := scan(t, "1..=5 2..8 3.5 1e3")
	want := []TokenType{
		TokenInt, TokenRangeIncl, TokenInt,
		TokenInt, TokenRange, TokenInt,
		TokenFloat, TokenFloat, TokenEOF,
	}
	got := kinds(tokens)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %s, want %s (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestOperators(t *testing.T) {
	tokens := scan(t, "** // += <<= >> >= && || ++ -- -> =>")
	want := []TokenType{
		TokenPower, TokenFloorDiv, TokenPlusEq, TokenShlEq, TokenShr, TokenGE,
		TokenAnd, TokenOr, TokenPlusPlus, TokenMinusMinus, TokenThinArrow,
		TokenFatArrow, TokenEOF,
	}
	got := kinds(tokens)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tokens := scan(t, `"a\nb\t\"c\""`)
	if tokens[0].Type != TokenString {
		t.Fatalf("type = %s", tokens[0].Type)
	}
	if tokens[0].Lexeme != "a\nb\t\"c\"" {
		t.Fatalf("lexeme = %q", tokens[0].Lexeme)
	}
}

func TestCharLiteral(t *testing.T) {
	tokens := scan(t, `'x' '\n'`)
	if tokens[0].Type != TokenChar || tokens[0].Lexeme != "x" {
		t.Fatalf("char token = %+v", tokens[0])
	}
	if tokens[1].Type != TokenChar || tokens[1].Lexeme != "\n" {
		t.Fatalf("escaped char token = %+v", tokens[1])
	}
}

func TestFStringParts(t *testing.T) {
	tokens := scan(t, `f"sum is {a + b}!"`)
	tok := tokens[0]
	if tok.Type != TokenFString {
		t.Fatalf("type = %s", tok.Type)
	}
	if len(tok.Parts) != 3 {
		t.Fatalf("parts = %+v", tok.Parts)
	}
	if tok.Parts[0].IsExpr || tok.Parts[0].Text != "sum is " {
		t.Fatalf("part 0 = %+v", tok.Parts[0])
	}
	if !tok.Parts[1].IsExpr || tok.Parts[1].Text != "a + b" {
		t.Fatalf("part 1 = %+v", tok.Parts[1])
	}
	if tok.Parts[2].IsExpr || tok.Parts[2].Text != "!" {
		t.Fatalf("part 2 = %+v", tok.Parts[2])
	}
}

func TestCommentsSkipped(t *testing.T) {
	tokens := scan(t, "var x # trailing words\nvar y")
	want := []TokenType{TokenVar, TokenIdent, TokenVar, TokenIdent, TokenEOF}
	got := kinds(tokens)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSpansTrackLines(t *testing.T) {
	tokens := scan(t, "var a\nvar b")
	if tokens[0].Span.Line != 1 {
		t.Fatalf("first token line = %d", tokens[0].Span.Line)
	}
	if tokens[2].Span.Line != 2 {
		t.Fatalf("second var line = %d", tokens[2].Span.Line)
	}
}

func TestUnterminatedStringReported(t *testing.T) {
	diags := &errors.DiagnosticList{}
	NewScanner(`"oops`, "test.rzn", diags).ScanTokens()
	if !diags.HasErrors() {
		t.Fatal("unterminated string must report an error")
	}
}
