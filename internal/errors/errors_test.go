// internal/errors/errors_test.go
package errors

import (
	"strings"
	"testing"
)

func TestDiagnosticListSeverities(t *testing.T) {
	var l DiagnosticList
	l.Errorf(TypeMismatch, Span{Line: 1, Column: 2}, "bad %s", "thing")
	l.Warnf(UnusedSymbol, Span{Line: 2, Column: 1}, "unused")
	l.Infof(Shadowing, Span{Line: 3, Column: 1}, "shadowed")

	if !l.HasErrors() {
		t.Fatal("expected errors")
	}
	if l.ErrorCount() != 1 {
		t.Fatalf("error count = %d", l.ErrorCount())
	}
	if len(l.Items) != 3 {
		t.Fatalf("items = %d", len(l.Items))
	}
}

func TestDiagnosticRenderPointsAtColumn(t *testing.T) {
	d := &Diagnostic{
		Severity: SeverityError,
		Kind:     TypeMismatch,
		Message:  "cannot assign str to int",
		Span:     Span{File: "x.rzn", Line: 2, Column: 5},
	}
	out := d.Render("var a = 1\nvar b = 2")
	if !strings.Contains(out, "var b = 2") {
		t.Fatalf("render missing source line:\n%s", out)
	}
	if !strings.Contains(out, "^") {
		t.Fatalf("render missing caret:\n%s", out)
	}
	if !strings.Contains(out, "TypeMismatch") {
		t.Fatalf("render missing kind:\n%s", out)
	}
}

func TestRuntimeErrorStack(t *testing.T) {
	err := NewRuntimeError(DivisionByZero, 12, "division by zero")
	err.AddStackFrame("inner", 12).AddStackFrame("main", 3)
	text := err.Error()
	if !strings.Contains(text, "DivisionByZero") ||
		!strings.Contains(text, "inner+12") ||
		!strings.Contains(text, "main+3") {
		t.Fatalf("error text = %q", text)
	}
}
