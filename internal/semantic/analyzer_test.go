// internal/semantic/analyzer_test.go
package semantic

import (
	"testing"

	"rzn/internal/errors"
	"rzn/internal/parser"
)

func analyze(t *testing.T, source string) *errors.DiagnosticList {
	t.Helper()
	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(source, "test.rzn", diags)
	NewAnalyzer(diags).Analyze(prog)
	return diags
}

func hasKind(diags *errors.DiagnosticList, kind errors.Kind) bool {
	for _, d := range diags.Items {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func TestReassignmentTypeMismatch(t *testing.T) {
	diags := analyze(t, `var c: int = 10
c = "hi"`)
	if !hasKind(diags, errors.TypeMismatch) {
		t.Fatalf("expected TypeMismatch, got %v", diags.Items)
	}
}

func TestDuplicateDefinitionReportsPriorSpan(t *testing.T) {
	diags := analyze(t, `var x = 1
var x = 2`)
	if !hasKind(diags, errors.DuplicateDefinition) {
		t.Fatalf("expected DuplicateDefinition, got %v", diags.Items)
	}
	for _, d := range diags.Items {
		if d.Kind == errors.DuplicateDefinition && len(d.Secondary) == 0 {
			t.Fatal("duplicate definition should reference the prior declaration")
		}
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	diags := analyze(t, `fun f() { break }`)
	if !hasKind(diags, errors.BreakOutsideLoop) {
		t.Fatalf("expected BreakOutsideLoop, got %v", diags.Items)
	}
}

func TestContinueOutsideLoop(t *testing.T) {
	diags := analyze(t, `continue`)
	if !hasKind(diags, errors.ContinueOutsideLoop) {
		t.Fatalf("expected ContinueOutsideLoop, got %v", diags.Items)
	}
}

func TestReturnOutsideFunction(t *testing.T) {
	diags := analyze(t, `return 3`)
	if !hasKind(diags, errors.ReturnOutsideFunction) {
		t.Fatalf("expected ReturnOutsideFunction, got %v", diags.Items)
	}
}

func TestMissingReturn(t *testing.T) {
	diags := analyze(t, `fun f(x: int) -> int { if x > 0 { return 1 } }`)
	if !hasKind(diags, errors.MissingReturn) {
		t.Fatalf("expected MissingReturn, got %v", diags.Items)
	}
}

func TestAllPathsReturnAccepted(t *testing.T) {
	diags := analyze(t, `fun f(x: int) -> int {
	if x > 0 { return 1 } else { return 2 }
}`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items)
	}
}

func TestArgumentCountMismatch(t *testing.T) {
	diags := analyze(t, `fun f(a: int, b: int) -> int { return a + b }
fun main() { f(1) }`)
	if !hasKind(diags, errors.ArgumentCountMismatch) {
		t.Fatalf("expected ArgumentCountMismatch, got %v", diags.Items)
	}
}

func TestUndefinedSymbol(t *testing.T) {
	diags := analyze(t, `fun main() { println(missing) }`)
	if !hasKind(diags, errors.UndefinedSymbol) {
		t.Fatalf("expected UndefinedSymbol, got %v", diags.Items)
	}
}

func TestConstReassignment(t *testing.T) {
	diags := analyze(t, `const k = 1
fun main() { k = 2 }`)
	if !hasKind(diags, errors.InvalidLValue) {
		t.Fatalf("expected InvalidLValue, got %v", diags.Items)
	}
}

func TestInvalidLValue(t *testing.T) {
	diags := analyze(t, `fun main() { 1 + 2 = 3 }`)
	if !hasKind(diags, errors.InvalidLValue) {
		t.Fatalf("expected InvalidLValue, got %v", diags.Items)
	}
}

func TestNonExhaustiveMatch(t *testing.T) {
	diags := analyze(t, `enum Color { Red, Green, Blue }
fun main() {
	var c = Color::Red
	match c {
		Color::Red => { println(1) }
		Color::Green => { println(2) }
	}
}`)
	if !hasKind(diags, errors.NonExhaustiveMatch) {
		t.Fatalf("expected NonExhaustiveMatch, got %v", diags.Items)
	}
}

func TestWildcardMakesMatchExhaustive(t *testing.T) {
	diags := analyze(t, `enum Color { Red, Green, Blue }
fun main() {
	var c = Color::Red
	match c {
		Color::Red => { println(1) }
		_ => { println(0) }
	}
}`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items)
	}
}

func TestDuplicateMatchArm(t *testing.T) {
	diags := analyze(t, `fun main() {
	var x = 3
	match x {
		1 => { println("a") }
		1 => { println("b") }
		_ => { println("c") }
	}
}`)
	if !hasKind(diags, errors.DuplicateDefinition) {
		t.Fatalf("expected duplicate-arm error, got %v", diags.Items)
	}
}

func TestUnusedVariableWarning(t *testing.T) {
	diags := analyze(t, `fun main() { var unused = 1 }`)
	if !hasKind(diags, errors.UnusedSymbol) {
		t.Fatalf("expected UnusedSymbol warning, got %v", diags.Items)
	}
	if diags.HasErrors() {
		t.Fatalf("warning must not be an error: %v", diags.Items)
	}
}

func TestShadowingInfo(t *testing.T) {
	diags := analyze(t, `var x = 1
fun main() {
	var x = 2
	println(x)
}`)
	if !hasKind(diags, errors.Shadowing) {
		t.Fatalf("expected Shadowing info, got %v", diags.Items)
	}
	if diags.HasErrors() {
		t.Fatalf("shadowing must not be an error: %v", diags.Items)
	}
}

func TestAnySlotAcceptsEverything(t *testing.T) {
	diags := analyze(t, `fun main() {
	var x = 1
	x = "now a string"
	println(x)
}`)
	// x is unannotated: its declared type is the initializer's type int,
	// and reassigning a str must be rejected.
	if !hasKind(diags, errors.TypeMismatch) {
		t.Fatalf("expected TypeMismatch, got %v", diags.Items)
	}

	diags = analyze(t, `fun main() {
	var x: any = 1
	x = "now a string"
	println(x)
}`)
	if diags.HasErrors() {
		t.Fatalf("any-typed slot must accept reassignment: %v", diags.Items)
	}
}

func TestIntWidensToFloat(t *testing.T) {
	diags := analyze(t, `fun main() {
	var x: float = 3
	println(x)
}`)
	if diags.HasErrors() {
		t.Fatalf("int must widen to float: %v", diags.Items)
	}
}

func TestUndeclaredMethodOnStruct(t *testing.T) {
	diags := analyze(t, `struct P { x: int }
fun main() {
	var p = P { x: 1 }
	p.nope()
}`)
	if !hasKind(diags, errors.UndefinedSymbol) {
		t.Fatalf("expected UndefinedSymbol for missing method, got %v", diags.Items)
	}
}

func TestMissingStructField(t *testing.T) {
	diags := analyze(t, `struct P { x: int, y: int }
fun main() {
	var p = P { x: 1 }
	println(p.x)
}`)
	if !hasKind(diags, errors.TypeMismatch) {
		t.Fatalf("expected missing-field error, got %v", diags.Items)
	}
}
