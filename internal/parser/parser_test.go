// internal/parser/parser_test.go
package parser

import (
	"testing"

	"rzn/internal/errors"
)

func parse(t *testing.T, source string) *Program {
	t.Helper()
	diags := &errors.DiagnosticList{}
	prog := ParseSource(source, "test.rzn", diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.Items)
	}
	return prog
}

func TestVarAndConstDecl(t *testing.T) {
	prog := parse(t, `var a: int = 1
const b = "two"`)
	v, ok := prog.Stmts[0].(*VarDecl)
	if !ok || v.Name != "a" || v.TypeAnn != "int" || v.IsConst {
		t.Fatalf("var decl = %+v", prog.Stmts[0])
	}
	c, ok := prog.Stmts[1].(*VarDecl)
	if !ok || !c.IsConst || c.Init == nil {
		t.Fatalf("const decl = %+v", prog.Stmts[1])
	}
}

func TestPrecedenceMulOverAdd(t *testing.T) {
	prog := parse(t, "var x = 2 + 3 * 4")
	decl := prog.Stmts[0].(*VarDecl)
	add, ok := decl.Init.(*Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("top = %+v", decl.Init)
	}
	mul, ok := add.Right.(*Binary)
	if !ok || mul.Op != "*" {
		t.Fatalf("right = %+v", add.Right)
	}
}

func TestPowerIsRightAssociative(t *testing.T) {
	prog := parse(t, "var x = 2 ** 3 ** 2")
	decl := prog.Stmts[0].(*VarDecl)
	outer := decl.Init.(*Binary)
	if outer.Op != "**" {
		t.Fatalf("outer = %+v", outer)
	}
	if _, ok := outer.Right.(*Binary); !ok {
		t.Fatalf("** must nest to the right: %+v", outer)
	}
}

func TestRangeBindsLooserThanComparison(t *testing.T) {
	// a == b .. c == d parses as (a == b) .. (c == d).
	prog := parse(t, "var x = 1 == 2 .. 3 == 4")
	decl := prog.Stmts[0].(*VarDecl)
	rng := decl.Init.(*Binary)
	if rng.Op != ".." {
		t.Fatalf("top op = %q", rng.Op)
	}
	if l, ok := rng.Left.(*Binary); !ok || l.Op != "==" {
		t.Fatalf("left = %+v", rng.Left)
	}
}

func TestRangeBindsTighterThanOr(t *testing.T) {
	prog := parse(t, "var x = a || 1 .. 3")
	decl := prog.Stmts[0].(*VarDecl)
	or := decl.Init.(*Binary)
	if or.Op != "||" {
		t.Fatalf("top op = %q", or.Op)
	}
	if r, ok := or.Right.(*Binary); !ok || r.Op != ".." {
		t.Fatalf("right = %+v", or.Right)
	}
}

func TestCompoundAssignment(t *testing.T) {
	prog := parse(t, "x **= 2")
	es := prog.Stmts[0].(*ExprStmt)
	assign := es.E.(*Assign)
	if assign.Op != "**" {
		t.Fatalf("op = %q", assign.Op)
	}
}

func TestFunDeclWithReturnType(t *testing.T) {
	prog := parse(t, `fun add(a: int, b: int) -> int { return a + b }`)
	fn := prog.Stmts[0].(*FunDecl)
	if fn.Name != "add" || len(fn.Params) != 2 || fn.ReturnAnn != "int" {
		t.Fatalf("fun = %+v", fn)
	}
	if fn.Params[1].TypeAnn != "int" {
		t.Fatalf("param = %+v", fn.Params[1])
	}
}

func TestGenericTypeAnnotation(t *testing.T) {
	prog := parse(t, `var xs: Array<int> = []
var m: Map<str,int> = {}`)
	if ann := prog.Stmts[0].(*VarDecl).TypeAnn; ann != "Array<int>" {
		t.Fatalf("array annotation = %q", ann)
	}
	if ann := prog.Stmts[1].(*VarDecl).TypeAnn; ann != "Map<str,int>" {
		t.Fatalf("map annotation = %q", ann)
	}
}

func TestElifChain(t *testing.T) {
	prog := parse(t, `if a { println(1) } elif b { println(2) } else { println(3) }`)
	stmt := prog.Stmts[0].(*IfStmt)
	elif, ok := stmt.Else.(*IfStmt)
	if !ok {
		t.Fatalf("elif chain = %+v", stmt.Else)
	}
	if _, ok := elif.Else.(*Block); !ok {
		t.Fatalf("else block = %+v", elif.Else)
	}
}

func TestStructLiteralVsBlock(t *testing.T) {
	prog := parse(t, `struct Point { x: int }
fun main() {
	var p = Point { x: 1 }
	if flag { println(p) }
}`)
	fn := prog.Stmts[1].(*FunDecl)
	decl := fn.Body.Stmts[0].(*VarDecl)
	if _, ok := decl.Init.(*StructLit); !ok {
		t.Fatalf("init = %+v", decl.Init)
	}
	ifStmt, ok := fn.Body.Stmts[1].(*IfStmt)
	if !ok {
		t.Fatalf("if parsed as %+v", fn.Body.Stmts[1])
	}
	if _, ok := ifStmt.Cond.(*Ident); !ok {
		t.Fatalf("condition = %+v", ifStmt.Cond)
	}
}

func TestMatchArms(t *testing.T) {
	prog := parse(t, `match x {
	1 => { println("one") }
	Shape::Circle(r) => { println(r) }
	_ => { println("other") }
}`)
	m := prog.Stmts[0].(*MatchStmt)
	if len(m.Arms) != 3 {
		t.Fatalf("arms = %d", len(m.Arms))
	}
	if m.Arms[0].Pattern.Lit == nil {
		t.Fatalf("literal arm = %+v", m.Arms[0].Pattern)
	}
	enum := m.Arms[1].Pattern
	if enum.EnumType != "Shape" || enum.Variant != "Circle" || enum.Binding != "r" {
		t.Fatalf("enum arm = %+v", enum)
	}
	if !m.Arms[2].Pattern.Wildcard {
		t.Fatalf("wildcard arm = %+v", m.Arms[2].Pattern)
	}
}

func TestTryCatch(t *testing.T) {
	prog := parse(t, `try { throw "x" } catch e { println(e) }`)
	stmt := prog.Stmts[0].(*TryStmt)
	if stmt.CatchName != "e" || len(stmt.Body.Stmts) != 1 || len(stmt.Handler.Stmts) != 1 {
		t.Fatalf("try = %+v", stmt)
	}
}

func TestUseAliasDefaultsToFileStem(t *testing.T) {
	prog := parse(t, `use "lib/mathx.rzn"
use "tools" as t`)
	u1 := prog.Stmts[0].(*UseStmt)
	if u1.Alias != "mathx" {
		t.Fatalf("default alias = %q", u1.Alias)
	}
	u2 := prog.Stmts[1].(*UseStmt)
	if u2.Alias != "t" {
		t.Fatalf("explicit alias = %q", u2.Alias)
	}
}

func TestFStringSubExpressions(t *testing.T) {
	prog := parse(t, `var s = f"value {1 + 2}"`)
	decl := prog.Stmts[0].(*VarDecl)
	lit := decl.Init.(*FStringLit)
	if len(lit.Parts) != 2 || !lit.Parts[1].IsExpr {
		t.Fatalf("parts = %+v", lit.Parts)
	}
	if _, ok := lit.Parts[1].Expr.(*Binary); !ok {
		t.Fatalf("embedded expr = %+v", lit.Parts[1].Expr)
	}
}

func TestPostfixIncrement(t *testing.T) {
	prog := parse(t, "i++")
	es := prog.Stmts[0].(*ExprStmt)
	u := es.E.(*Unary)
	if u.Op != "++" || !u.Postfix {
		t.Fatalf("unary = %+v", u)
	}
}

func TestMethodCallChain(t *testing.T) {
	prog := parse(t, "p.norm().len")
	es := prog.Stmts[0].(*ExprStmt)
	member := es.E.(*Member)
	if member.Name != "len" {
		t.Fatalf("outer member = %+v", member)
	}
	call, ok := member.Object.(*Call)
	if !ok {
		t.Fatalf("inner call = %+v", member.Object)
	}
	if inner, ok := call.Callee.(*Member); !ok || inner.Name != "norm" {
		t.Fatalf("callee = %+v", call.Callee)
	}
}

func TestParserRecoversAfterError(t *testing.T) {
	diags := &errors.DiagnosticList{}
	prog := ParseSource("var = 1\nvar ok = 2", "test.rzn", diags)
	if !diags.HasErrors() {
		t.Fatal("expected a syntax error")
	}
	found := false
	for _, s := range prog.Stmts {
		if v, ok := s.(*VarDecl); ok && v.Name == "ok" {
			found = true
		}
	}
	if !found {
		t.Fatal("parser must recover and parse the second declaration")
	}
}
