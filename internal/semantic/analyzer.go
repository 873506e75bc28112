// internal/semantic/analyzer.go
package semantic

import (
	"rzn/internal/errors"
	"rzn/internal/parser"
	"rzn/internal/types"
)

// FuncSig is the callable surface of a declared function, method, or
// builtin.
type FuncSig struct {
	Name       string
	Params     []*types.Type
	ParamNames []string
	Return     *types.Type
	Decl       errors.Span
	Public     bool
	Builtin    bool
	MinArgs    int
	MaxArgs    int
}

func newSig(name string, params []*types.Type, ret *types.Type) *FuncSig {
	return &FuncSig{
		Name:    name,
		Params:  params,
		Return:  ret,
		MinArgs: len(params),
		MaxArgs: len(params),
	}
}

// Builtins is the fixed table of built-in functions.
var Builtins = map[string]*FuncSig{
	"print":    markBuiltin(newSig("print", []*types.Type{types.Any}, types.Null)),
	"println":  markBuiltin(newSig("println", []*types.Type{types.Any}, types.Null)),
	"printc":   markBuiltin(newSig("printc", []*types.Type{types.Any, types.Str}, types.Null)),
	"printlnc": markBuiltin(newSig("printlnc", []*types.Type{types.Any, types.Str}, types.Null)),
	"input":    markBuiltin(optArgs(newSig("input", []*types.Type{types.Str}, types.Str), 0)),
	"read":     markBuiltin(newSig("read", []*types.Type{types.Str}, types.Str)),
	"write":    markBuiltin(newSig("write", []*types.Type{types.Str, types.Str}, types.Bool)),
	"len":      markBuiltin(newSig("len", []*types.Type{types.Any}, types.Int)),
	"toint":    markBuiltin(newSig("toint", []*types.Type{types.Any}, types.Int)),
	"tofloat":  markBuiltin(newSig("tofloat", []*types.Type{types.Any}, types.Float)),
	"tostr":    markBuiltin(newSig("tostr", []*types.Type{types.Any}, types.Str)),
	"tobool":   markBuiltin(newSig("tobool", []*types.Type{types.Any}, types.Bool)),
	"typeof":   markBuiltin(newSig("typeof", []*types.Type{types.Any}, types.Str)),
	"sleep":    markBuiltin(newSig("sleep", []*types.Type{types.Int}, types.Null)),
}

func markBuiltin(s *FuncSig) *FuncSig {
	s.Builtin = true
	return s
}

func optArgs(s *FuncSig, min int) *FuncSig {
	s.MinArgs = min
	return s
}

// Analyzer walks the AST, enforces the typing and scoping rules, annotates
// expressions with their inferred types, and accumulates diagnostics. It
// never aborts; unknown types degrade to Any so analysis can continue.
type Analyzer struct {
	table *SymbolTable
	diags *errors.DiagnosticList

	structs map[string]*types.Type
	enums   map[string]*types.Type
	funcs   map[string]*FuncSig
	methods map[string]map[string]*FuncSig

	// Imported modules, keyed by alias.
	moduleFuncs map[string]map[string]*FuncSig
	moduleVars  map[string]map[string]*Symbol

	currentReturn *types.Type // declared return of the enclosing function
	currentSelf   *types.Type // receiver type inside an impl method
	sawReturn     bool
}

func NewAnalyzer(diags *errors.DiagnosticList) *Analyzer {
	return &Analyzer{
		table:       NewSymbolTable(),
		diags:       diags,
		structs:     make(map[string]*types.Type),
		enums:       make(map[string]*types.Type),
		funcs:       make(map[string]*FuncSig),
		methods:     make(map[string]map[string]*FuncSig),
		moduleFuncs: make(map[string]map[string]*FuncSig),
		moduleVars:  make(map[string]map[string]*Symbol),
	}
}

// Diagnostics returns the accumulated diagnostic list.
func (a *Analyzer) Diagnostics() *errors.DiagnosticList { return a.diags }

// Funcs exposes the resolved function signatures for the compiler.
func (a *Analyzer) Funcs() map[string]*FuncSig { return a.funcs }

// Methods exposes resolved method tables keyed by type name.
func (a *Analyzer) Methods() map[string]map[string]*FuncSig { return a.methods }

// StructType returns a declared struct type by name.
func (a *Analyzer) StructType(name string) (*types.Type, bool) {
	t, ok := a.structs[name]
	return t, ok
}

// EnumType returns a declared enum type by name.
func (a *Analyzer) EnumType(name string) (*types.Type, bool) {
	t, ok := a.enums[name]
	return t, ok
}

// Analyze checks a whole program. Imported modules must have been
// registered first via AnalyzeImported.
func (a *Analyzer) Analyze(prog *parser.Program) *errors.DiagnosticList {
	a.hoist(prog, "")
	for _, stmt := range prog.Stmts {
		a.stmt(stmt)
	}
	a.reportUnused(a.table.Global())
	return a.diags
}

// AnalyzeImported registers and checks a module loaded through `use`. Its
// public declarations become visible under the alias.
func (a *Analyzer) AnalyzeImported(prog *parser.Program, alias string) {
	a.hoist(prog, alias)
	a.table.Push(ScopeModule)
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *parser.VarDecl:
			a.stmt(s)
			if sym := a.table.Lookup(s.Name); sym != nil {
				sym.Public = s.Pub
				if a.moduleVars[alias] == nil {
					a.moduleVars[alias] = make(map[string]*Symbol)
				}
				a.moduleVars[alias][s.Name] = sym
			}
		default:
			a.stmt(stmt)
		}
	}
	a.table.Pop()
}

// resolveType parses a type annotation against the declared named types.
func (a *Analyzer) resolveType(ann string, span errors.Span) *types.Type {
	if ann == "" {
		return types.Any
	}
	t, ok := types.Parse(ann, func(name string) *types.Type {
		if st, ok := a.structs[name]; ok {
			return st
		}
		if et, ok := a.enums[name]; ok {
			return et
		}
		return nil
	})
	if !ok {
		a.diags.Errorf(errors.UndefinedSymbol, span, "unknown type %q", ann)
		return types.Any
	}
	return t
}

// hoist registers type and function declarations before bodies are
// analyzed, so order of declaration does not matter at the top level.
func (a *Analyzer) hoist(prog *parser.Program, alias string) {
	qualify := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	// First pass: names only, so struct fields can refer to each other.
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *parser.StructDecl:
			a.structs[qualify(s.Name)] = types.NewStruct(s.Name, nil)
			if alias != "" && s.Pub {
				a.structs[s.Name] = a.structs[qualify(s.Name)]
			}
		case *parser.EnumDecl:
			a.enums[qualify(s.Name)] = types.NewEnum(s.Name, nil)
			if alias != "" && s.Pub {
				a.enums[s.Name] = a.enums[qualify(s.Name)]
			}
		}
	}
	// Second pass: fields, variants, signatures.
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *parser.StructDecl:
			t := a.structs[qualify(s.Name)]
			for _, f := range s.Fields {
				t.Fields = append(t.Fields, types.Field{
					Name: f.Name,
					Type: a.resolveType(f.TypeAnn, f.Span),
				})
			}
			a.declareTypeSymbol(s.Name, SymStruct, t, s.Span(), s.Pub, alias)
		case *parser.EnumDecl:
			t := a.enums[qualify(s.Name)]
			for _, v := range s.Variants {
				variant := types.Variant{Name: v.Name}
				if v.PayloadAnn != "" {
					variant.Payload = a.resolveType(v.PayloadAnn, v.Span)
				}
				t.Variants = append(t.Variants, variant)
			}
			a.declareTypeSymbol(s.Name, SymEnum, t, s.Span(), s.Pub, alias)
		case *parser.FunDecl:
			// Private module functions are registered too; visibility is
			// enforced at the access site.
			sig := a.funcSig(s)
			name := qualify(s.Name)
			if prev, exists := a.funcs[name]; exists {
				d := &errors.Diagnostic{
					Severity:  errors.SeverityError,
					Kind:      errors.DuplicateDefinition,
					Message:   "function " + s.Name + " is already defined",
					Span:      s.Span(),
					Secondary: []errors.Span{prev.Decl},
				}
				a.diags.Add(d)
				continue
			}
			a.funcs[name] = sig
			if alias != "" {
				if a.moduleFuncs[alias] == nil {
					a.moduleFuncs[alias] = make(map[string]*FuncSig)
				}
				a.moduleFuncs[alias][s.Name] = sig
			}
		case *parser.ImplBlock:
			target := qualify(s.Target)
			if _, ok := a.structs[target]; !ok {
				a.diags.Errorf(errors.UndefinedSymbol, s.Span(),
					"impl target %q is not a declared struct", s.Target)
				continue
			}
			if a.methods[s.Target] == nil {
				a.methods[s.Target] = make(map[string]*FuncSig)
			}
			for _, m := range s.Methods {
				sig := a.funcSig(m)
				if prev, exists := a.methods[s.Target][m.Name]; exists {
					d := &errors.Diagnostic{
						Severity:  errors.SeverityError,
						Kind:      errors.DuplicateDefinition,
						Message:   "method " + s.Target + "." + m.Name + " is already defined",
						Span:      m.Span(),
						Secondary: []errors.Span{prev.Decl},
					}
					a.diags.Add(d)
					continue
				}
				a.methods[s.Target][m.Name] = sig
			}
		}
	}
}

func (a *Analyzer) declareTypeSymbol(name string, kind SymbolKind, t *types.Type, span errors.Span, pub bool, alias string) {
	if alias != "" {
		return // imported types are reached through the alias-qualified maps
	}
	sym := &Symbol{
		Name:        name,
		Kind:        kind,
		Type:        t,
		Initialized: true,
		Public:      pub,
		Decl:        span,
	}
	if prev, ok := a.table.DeclareGlobal(sym); !ok {
		d := &errors.Diagnostic{
			Severity:  errors.SeverityError,
			Kind:      errors.DuplicateDefinition,
			Message:   "type " + name + " is already defined",
			Span:      span,
			Secondary: []errors.Span{prev.Decl},
		}
		a.diags.Add(d)
	}
}

func (a *Analyzer) funcSig(fn *parser.FunDecl) *FuncSig {
	sig := &FuncSig{Name: fn.Name, Decl: fn.Span(), Public: fn.Pub}
	for _, p := range fn.Params {
		if p.Name == "self" {
			sig.Params = append(sig.Params, types.Any) // refined at impl analysis
			sig.ParamNames = append(sig.ParamNames, "self")
			continue
		}
		sig.Params = append(sig.Params, a.resolveType(p.TypeAnn, p.Span))
		sig.ParamNames = append(sig.ParamNames, p.Name)
	}
	sig.MinArgs = len(sig.Params)
	sig.MaxArgs = len(sig.Params)
	if fn.ReturnAnn != "" {
		sig.Return = a.resolveType(fn.ReturnAnn, fn.Span())
	} else {
		sig.Return = types.Null
	}
	return sig
}

// reportUnused emits warnings for symbols that were declared and never
// read. Functions and types are exempt at global scope; an entry point is
// not "used" by anyone.
func (a *Analyzer) reportUnused(scope *Scope) {
	for _, sym := range scope.Symbols() {
		if sym.Uses > 0 {
			continue
		}
		switch sym.Kind {
		case SymVariable, SymConstant, SymParameter:
			if sym.Name == "_" || sym.Name == "self" {
				continue
			}
			a.diags.Warnf(errors.UnusedSymbol, sym.Decl, "%s %q is never used", sym.Kind, sym.Name)
		}
	}
}
