// internal/parser/ast.go
package parser

import (
	"rzn/internal/errors"
	"rzn/internal/types"
)

// Node is anything with a source span.
type Node interface {
	Span() errors.Span
}

// Expr is an expression node. The semantic analyzer fills in the Type
// annotation; it is nil until analysis has run.
type Expr interface {
	Node
	exprNode()
	// TypeOf returns the inferred type annotation, Unknown before analysis.
	TypeOf() *types.Type
	// SetType records the inferred type annotation.
	SetType(t *types.Type)
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Program is an ordered sequence of top-level statements.
type Program struct {
	File  string
	Stmts []Stmt
}

type exprBase struct {
	Sp errors.Span
	T  *types.Type
}

func (e *exprBase) Span() errors.Span { return e.Sp }
func (e *exprBase) exprNode()         {}
func (e *exprBase) TypeOf() *types.Type {
	if e.T == nil {
		return types.Unknown
	}
	return e.T
}
func (e *exprBase) SetType(t *types.Type) { e.T = t }

type stmtBase struct {
	Sp errors.Span
}

func (s *stmtBase) Span() errors.Span { return s.Sp }
func (s *stmtBase) stmtNode()         {}

// --- Expressions ---

type IntLit struct {
	exprBase
	Value int64
}

type FloatLit struct {
	exprBase
	Value float64
}

type StringLit struct {
	exprBase
	Value string
}

// FStringPart is a resolved fragment of an interpolated string.
type FStringPart struct {
	IsExpr bool
	Lit    string
	Expr   Expr
}

type FStringLit struct {
	exprBase
	Parts []FStringPart
}

type BoolLit struct {
	exprBase
	Value bool
}

type NullLit struct {
	exprBase
}

type CharLit struct {
	exprBase
	Value rune
}

type Ident struct {
	exprBase
	Name string
}

// Unary covers -, !, ~ and the prefix/postfix increment forms.
type Unary struct {
	exprBase
	Op      string
	Operand Expr
	Postfix bool
}

type Binary struct {
	exprBase
	Op    string
	Left  Expr
	Right Expr
}

// Assign covers plain and compound assignment. Op is "=" or the compound
// operator without the trailing '=' ("+", "<<", ...).
type Assign struct {
	exprBase
	Op     string
	Target Expr
	Value  Expr
}

type Call struct {
	exprBase
	Callee Expr
	Args   []Expr
}

type Member struct {
	exprBase
	Object Expr
	Name   string
}

type Index struct {
	exprBase
	Object Expr
	Idx    Expr
}

type ArrayLit struct {
	exprBase
	Elems []Expr
}

type MapLit struct {
	exprBase
	Keys   []Expr
	Values []Expr
}

type StructLitField struct {
	Name  string
	Value Expr
}

type StructLit struct {
	exprBase
	Name   string
	Fields []StructLitField
}

// EnumLit instantiates an enum variant: Color::Red or Shape::Circle(r).
type EnumLit struct {
	exprBase
	TypeName string
	Variant  string
	Payload  Expr // nil for payload-free variants
}

type SelfExpr struct {
	exprBase
}

type Group struct {
	exprBase
	Inner Expr
}

// --- Statements ---

// VarDecl covers both var and const declarations.
type VarDecl struct {
	stmtBase
	Pub     bool
	IsConst bool
	Name    string
	TypeAnn string // annotation source text, "" when absent
	Init    Expr   // nil for an uninitialized var
}

type Param struct {
	Name    string
	TypeAnn string
	Span    errors.Span
}

type FunDecl struct {
	stmtBase
	Pub       bool
	Name      string
	Params    []Param
	ReturnAnn string
	Body      *Block
}

type FieldDef struct {
	Name    string
	TypeAnn string
	Span    errors.Span
}

type StructDecl struct {
	stmtBase
	Pub    bool
	Name   string
	Fields []FieldDef
}

type VariantDef struct {
	Name       string
	PayloadAnn string // annotation text, "" for payload-free variants
	Span       errors.Span
}

type EnumDecl struct {
	stmtBase
	Pub      bool
	Name     string
	Variants []VariantDef
}

type ImplBlock struct {
	stmtBase
	Target  string
	Methods []*FunDecl
}

// IfStmt chains elif branches through Else, which is either another
// *IfStmt or a *Block.
type IfStmt struct {
	stmtBase
	Cond Expr
	Then *Block
	Else Stmt
}

type WhileStmt struct {
	stmtBase
	Cond Expr
	Body *Block
}

type ForStmt struct {
	stmtBase
	Var  string
	Iter Expr
	Body *Block
}

// Pattern of a match arm: a wildcard, a literal, or an enum variant with an
// optional payload binding.
type Pattern struct {
	Wildcard bool
	Lit      Expr
	EnumType string
	Variant  string
	Binding  string
	Span     errors.Span
}

type MatchArm struct {
	Pattern Pattern
	Body    *Block
}

type MatchStmt struct {
	stmtBase
	Scrutinee Expr
	Arms      []MatchArm
}

type ReturnStmt struct {
	stmtBase
	Value Expr // nil for a bare return
}

type BreakStmt struct {
	stmtBase
}

type ContinueStmt struct {
	stmtBase
}

type ThrowStmt struct {
	stmtBase
	Value Expr
}

type TryStmt struct {
	stmtBase
	Body      *Block
	CatchName string
	Handler   *Block
}

type UseStmt struct {
	stmtBase
	Path  string
	Alias string // defaults to the file stem when no alias is given
}

type ExprStmt struct {
	stmtBase
	E Expr
}

type Block struct {
	stmtBase
	Stmts []Stmt
}
