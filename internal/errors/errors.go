// internal/errors/errors.go
package errors

import (
	"fmt"
	"strings"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return "unknown"
}

// Kind identifies a diagnostic or runtime error class.
type Kind string

// Semantic error kinds.
const (
	UndefinedSymbol       Kind = "UndefinedSymbol"
	DuplicateDefinition   Kind = "DuplicateDefinition"
	TypeMismatch          Kind = "TypeMismatch"
	ArgumentCountMismatch Kind = "ArgumentCountMismatch"
	InvalidLValue         Kind = "InvalidLValue"
	BreakOutsideLoop      Kind = "BreakOutsideLoop"
	ContinueOutsideLoop   Kind = "ContinueOutsideLoop"
	ReturnOutsideFunction Kind = "ReturnOutsideFunction"
	MissingReturn         Kind = "MissingReturn"
	NonExhaustiveMatch    Kind = "NonExhaustiveMatch"
	UnusedSymbol          Kind = "UnusedSymbol"
	Shadowing             Kind = "Shadowing"
	ImportCycle           Kind = "ImportCycle"
	NotVisible            Kind = "NotVisible"
)

// Runtime error kinds.
const (
	DivisionByZero         Kind = "DivisionByZero"
	ModuloByZero           Kind = "ModuloByZero"
	IndexOutOfBounds       Kind = "IndexOutOfBounds"
	KeyNotFound            Kind = "KeyNotFound"
	StackOverflow          Kind = "StackOverflow"
	TypeCoercionFailure    Kind = "TypeCoercionFailure"
	UninitializedVariable  Kind = "UninitializedVariable"
	UnhandledThrow         Kind = "UnhandledThrow"
	RecursionLimitExceeded Kind = "RecursionLimitExceeded"
	InternalInvariant      Kind = "InternalInvariant"
)

// Span locates a region of source text.
type Span struct {
	File   string
	Start  int // byte offset, inclusive
	End    int // byte offset, exclusive
	Line   int
	Column int
}

func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Diagnostic is a structured message produced by the front half of the
// pipeline. Rendering to a terminal is the caller's concern; the core only
// fills in the fields.
type Diagnostic struct {
	Severity    Severity
	Kind        Kind
	Message     string
	Span        Span
	Secondary   []Span
	Replacement string // suggested fix, empty when none applies
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s (%s)", d.Severity, d.Kind, d.Message, d.Span)
}

// Render writes the diagnostic with the offending source line and a caret
// marker, when the source text is available.
func (d *Diagnostic) Render(source string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", d.Severity, d.Kind, d.Message))
	sb.WriteString(fmt.Sprintf("  at %s\n", d.Span))
	if source != "" && d.Span.Line > 0 {
		lines := strings.Split(source, "\n")
		if d.Span.Line <= len(lines) {
			line := lines[d.Span.Line-1]
			prefix := fmt.Sprintf("  %d | ", d.Span.Line)
			sb.WriteString(prefix + line + "\n")
			sb.WriteString(strings.Repeat(" ", len(prefix)))
			if d.Span.Column > 1 {
				sb.WriteString(strings.Repeat(" ", d.Span.Column-1))
			}
			sb.WriteString("^\n")
		}
	}
	for _, sec := range d.Secondary {
		sb.WriteString(fmt.Sprintf("  see also %s\n", sec))
	}
	return sb.String()
}

// DiagnosticList accumulates diagnostics during analysis.
type DiagnosticList struct {
	Items []*Diagnostic
}

func (l *DiagnosticList) Add(d *Diagnostic) {
	l.Items = append(l.Items, d)
}

func (l *DiagnosticList) Errorf(kind Kind, span Span, format string, args ...interface{}) {
	l.Items = append(l.Items, &Diagnostic{
		Severity: SeverityError,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	})
}

func (l *DiagnosticList) Warnf(kind Kind, span Span, format string, args ...interface{}) {
	l.Items = append(l.Items, &Diagnostic{
		Severity: SeverityWarning,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	})
}

func (l *DiagnosticList) Infof(kind Kind, span Span, format string, args ...interface{}) {
	l.Items = append(l.Items, &Diagnostic{
		Severity: SeverityInfo,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	})
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (l *DiagnosticList) HasErrors() bool {
	for _, d := range l.Items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-severity diagnostics.
func (l *DiagnosticList) ErrorCount() int {
	n := 0
	for _, d := range l.Items {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// StackFrame is one entry of a runtime call stack.
type StackFrame struct {
	Function string
	Offset   int // IR offset within the function
}

// RuntimeError is a structured error raised during execution. It carries the
// error kind, a message, and the IR offset at which it was raised; the value
// field holds the thrown payload for user throws.
type RuntimeError struct {
	Kind    Kind
	Message string
	Offset  int
	Value   interface{} // thrown value, nil unless the error came from throw
	Stack   []StackFrame
}

func (e *RuntimeError) Error() string {
	if len(e.Stack) == 0 {
		return fmt.Sprintf("%s: %s (ir offset %d)", e.Kind, e.Message, e.Offset)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s (ir offset %d)\n", e.Kind, e.Message, e.Offset))
	for _, f := range e.Stack {
		sb.WriteString(fmt.Sprintf("  at %s+%d\n", f.Function, f.Offset))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NewRuntimeError builds a runtime error at the given IR offset.
func NewRuntimeError(kind Kind, offset int, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
	}
}

// AddStackFrame appends a call-stack frame, outermost last.
func (e *RuntimeError) AddStackFrame(function string, offset int) *RuntimeError {
	e.Stack = append(e.Stack, StackFrame{Function: function, Offset: offset})
	return e
}
