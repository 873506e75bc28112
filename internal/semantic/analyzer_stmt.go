// internal/semantic/analyzer_stmt.go
package semantic

import (
	"rzn/internal/errors"
	"rzn/internal/parser"
	"rzn/internal/types"
)

func (a *Analyzer) stmt(s parser.Stmt) {
	switch st := s.(type) {
	case *parser.VarDecl:
		a.varDecl(st)
	case *parser.FunDecl:
		a.funDecl(st, nil)
	case *parser.StructDecl, *parser.EnumDecl, *parser.UseStmt:
		// handled during hoisting / module loading
	case *parser.ImplBlock:
		a.implBlock(st)
	case *parser.IfStmt:
		a.ifStmt(st)
	case *parser.WhileStmt:
		a.condType(st.Cond)
		a.scopedBlock(st.Body, ScopeLoop)
	case *parser.ForStmt:
		a.forStmt(st)
	case *parser.MatchStmt:
		a.matchStmt(st)
	case *parser.ReturnStmt:
		a.returnStmt(st)
	case *parser.BreakStmt:
		if !a.table.InLoop() {
			a.diags.Errorf(errors.BreakOutsideLoop, st.Span(), "break outside of a loop")
		}
	case *parser.ContinueStmt:
		if !a.table.InLoop() {
			a.diags.Errorf(errors.ContinueOutsideLoop, st.Span(), "continue outside of a loop")
		}
	case *parser.ThrowStmt:
		a.expr(st.Value)
	case *parser.TryStmt:
		a.tryStmt(st)
	case *parser.ExprStmt:
		a.expr(st.E)
	case *parser.Block:
		a.scopedBlock(st, ScopeBlock)
	}
}

func (a *Analyzer) scopedBlock(b *parser.Block, kind ScopeKind) {
	a.table.Push(kind)
	for _, s := range b.Stmts {
		a.stmt(s)
	}
	a.reportUnused(a.table.Pop())
}

func (a *Analyzer) varDecl(st *parser.VarDecl) {
	declared := types.Any
	annotated := st.TypeAnn != ""
	if annotated {
		declared = a.resolveType(st.TypeAnn, st.Span())
	}
	var initType *types.Type
	if st.Init != nil {
		initType = a.expr(st.Init)
		if annotated && !initType.AssignableTo(declared) {
			a.diags.Errorf(errors.TypeMismatch, st.Init.Span(),
				"cannot initialize %s %q of type %s with a value of type %s",
				kindWord(st.IsConst), st.Name, declared, initType)
		}
		if !annotated {
			declared = initType
		}
	} else if st.IsConst {
		// The parser already reported the missing initializer; keep the
		// symbol so later uses do not cascade.
		declared = types.Any
	}

	kind := SymVariable
	if st.IsConst {
		kind = SymConstant
	}
	sym := &Symbol{
		Name:        st.Name,
		Kind:        kind,
		Type:        declared,
		Mutable:     !st.IsConst,
		Initialized: st.Init != nil,
		Public:      st.Pub,
		Decl:        st.Span(),
	}
	if outer := a.table.LookupOuter(st.Name); outer != nil && a.table.Current().Kind != ScopeGlobal {
		a.diags.Infof(errors.Shadowing, st.Span(),
			"%q shadows a %s declared at %s", st.Name, outer.Kind, outer.Decl)
	}
	if prev, ok := a.table.Declare(sym); !ok {
		d := &errors.Diagnostic{
			Severity:  errors.SeverityError,
			Kind:      errors.DuplicateDefinition,
			Message:   st.Name + " is already declared in this scope",
			Span:      st.Span(),
			Secondary: []errors.Span{prev.Decl},
		}
		a.diags.Add(d)
	}
}

func kindWord(isConst bool) string {
	if isConst {
		return "const"
	}
	return "var"
}

func (a *Analyzer) funDecl(fn *parser.FunDecl, selfType *types.Type) {
	var sig *FuncSig
	if selfType != nil {
		sig = a.methods[selfType.Name][fn.Name]
	} else {
		sig = a.funcs[fn.Name]
	}
	if sig == nil {
		sig = a.funcSig(fn) // not registered under its bare name (imported module)
	}

	prevReturn, prevSelf, prevSaw := a.currentReturn, a.currentSelf, a.sawReturn
	a.currentReturn = sig.Return
	a.currentSelf = selfType
	a.sawReturn = false
	a.table.Push(ScopeFunction)
	for i, p := range fn.Params {
		t := types.Any
		if i < len(sig.Params) {
			t = sig.Params[i]
		}
		if p.Name == "self" && selfType != nil {
			t = selfType
		}
		a.table.Declare(&Symbol{
			Name:        p.Name,
			Kind:        SymParameter,
			Type:        t,
			Mutable:     true,
			Initialized: true,
			Decl:        p.Span,
		})
	}
	for _, s := range fn.Body.Stmts {
		a.stmt(s)
	}
	a.reportUnused(a.table.Pop())

	if sig.Return.Kind != types.KindNull && sig.Return.Kind != types.KindAny {
		if !blockReturns(fn.Body.Stmts) {
			a.diags.Errorf(errors.MissingReturn, fn.Span(),
				"function %q declares return type %s but not every path returns", fn.Name, sig.Return)
		}
	}
	a.currentReturn, a.currentSelf, a.sawReturn = prevReturn, prevSelf, prevSaw
}

func (a *Analyzer) implBlock(st *parser.ImplBlock) {
	target, ok := a.structs[st.Target]
	if !ok {
		return // reported during hoisting
	}
	for _, m := range st.Methods {
		if sig, ok := a.methods[st.Target][m.Name]; ok && len(sig.Params) > 0 && sig.ParamNames[0] == "self" {
			sig.Params[0] = target
		}
		a.funDecl(m, target)
	}
}

func (a *Analyzer) ifStmt(st *parser.IfStmt) {
	a.condType(st.Cond)
	a.scopedBlock(st.Then, ScopeConditional)
	switch e := st.Else.(type) {
	case *parser.IfStmt:
		a.ifStmt(e)
	case *parser.Block:
		a.scopedBlock(e, ScopeConditional)
	}
}

func (a *Analyzer) condType(cond parser.Expr) {
	t := a.expr(cond)
	if t.Kind != types.KindBool && t.Kind != types.KindAny && t.Kind != types.KindUnknown {
		a.diags.Errorf(errors.TypeMismatch, cond.Span(),
			"condition must be bool, found %s", t)
	}
}

func (a *Analyzer) forStmt(st *parser.ForStmt) {
	iterType := a.expr(st.Iter)
	elemType := types.Any
	switch {
	case isRangeExpr(st.Iter):
		elemType = types.Int
	case iterType.Kind == types.KindArray:
		elemType = iterType.Elem
	case iterType.Kind == types.KindStr:
		elemType = types.Char
	case iterType.Kind == types.KindMap:
		elemType = iterType.Key
	case iterType.Kind == types.KindAny || iterType.Kind == types.KindUnknown:
		elemType = types.Any
	default:
		a.diags.Errorf(errors.TypeMismatch, st.Iter.Span(),
			"cannot iterate over a value of type %s", iterType)
	}
	a.table.Push(ScopeLoop)
	a.table.Declare(&Symbol{
		Name:        st.Var,
		Kind:        SymVariable,
		Type:        elemType,
		Mutable:     false,
		Initialized: true,
		Decl:        st.Span(),
	})
	for _, s := range st.Body.Stmts {
		a.stmt(s)
	}
	a.reportUnused(a.table.Pop())
}

func isRangeExpr(e parser.Expr) bool {
	b, ok := e.(*parser.Binary)
	return ok && (b.Op == ".." || b.Op == "..=")
}

func (a *Analyzer) matchStmt(st *parser.MatchStmt) {
	scrutType := a.expr(st.Scrutinee)
	seen := make(map[string]errors.Span)
	covered := make(map[string]bool)
	hasWildcard := false
	for _, arm := range st.Arms {
		pat := arm.Pattern
		switch {
		case pat.Wildcard:
			hasWildcard = true
		case pat.EnumType != "":
			et, ok := a.enums[pat.EnumType]
			if !ok {
				a.diags.Errorf(errors.UndefinedSymbol, pat.Span, "unknown enum %q", pat.EnumType)
				break
			}
			variant, ok := et.VariantByName(pat.Variant)
			if !ok {
				a.diags.Errorf(errors.UndefinedSymbol, pat.Span,
					"enum %s has no variant %q", pat.EnumType, pat.Variant)
				break
			}
			key := pat.EnumType + "::" + pat.Variant
			if prev, dup := seen[key]; dup {
				d := &errors.Diagnostic{
					Severity:  errors.SeverityError,
					Kind:      errors.DuplicateDefinition,
					Message:   "duplicate match arm " + key,
					Span:      pat.Span,
					Secondary: []errors.Span{prev},
				}
				a.diags.Add(d)
			}
			seen[key] = pat.Span
			covered[pat.Variant] = true
			a.table.Push(ScopeMatch)
			if pat.Binding != "" {
				bt := types.Any
				if variant.Payload != nil {
					bt = variant.Payload
				}
				a.table.Declare(&Symbol{
					Name:        pat.Binding,
					Kind:        SymVariable,
					Type:        bt,
					Initialized: true,
					Decl:        pat.Span,
				})
			}
			for _, s := range arm.Body.Stmts {
				a.stmt(s)
			}
			a.reportUnused(a.table.Pop())
			continue
		case pat.Lit != nil:
			litType := a.expr(pat.Lit)
			if !litType.AssignableTo(scrutType) && !scrutType.AssignableTo(litType) {
				a.diags.Errorf(errors.TypeMismatch, pat.Span,
					"pattern of type %s cannot match a scrutinee of type %s", litType, scrutType)
			}
			if key, ok := literalKey(pat.Lit); ok {
				if prev, dup := seen[key]; dup {
					d := &errors.Diagnostic{
						Severity:  errors.SeverityError,
						Kind:      errors.DuplicateDefinition,
						Message:   "duplicate match arm",
						Span:      pat.Span,
						Secondary: []errors.Span{prev},
					}
					a.diags.Add(d)
				}
				seen[key] = pat.Span
			}
		}
		a.scopedBlock(arm.Body, ScopeMatch)
	}
	if scrutType.Kind == types.KindEnum && !hasWildcard {
		var missing []string
		for _, v := range scrutType.Variants {
			if !covered[v.Name] {
				missing = append(missing, v.Name)
			}
		}
		if len(missing) > 0 {
			a.diags.Errorf(errors.NonExhaustiveMatch, st.Span(),
				"match over %s does not cover %v", scrutType.Name, missing)
		}
	}
}

// literalKey builds a value-equality key for duplicate-arm detection.
func literalKey(e parser.Expr) (string, bool) {
	switch lit := e.(type) {
	case *parser.IntLit:
		return "i:" + itoa(lit.Value), true
	case *parser.FloatLit:
		return "f:" + ftoa(lit.Value), true
	case *parser.StringLit:
		return "s:" + lit.Value, true
	case *parser.BoolLit:
		if lit.Value {
			return "b:true", true
		}
		return "b:false", true
	case *parser.CharLit:
		return "c:" + string(lit.Value), true
	case *parser.NullLit:
		return "null", true
	}
	return "", false
}

func (a *Analyzer) returnStmt(st *parser.ReturnStmt) {
	if !a.table.InFunction() {
		a.diags.Errorf(errors.ReturnOutsideFunction, st.Span(), "return outside of a function")
		if st.Value != nil {
			a.expr(st.Value)
		}
		return
	}
	a.sawReturn = true
	want := a.currentReturn
	if want == nil {
		want = types.Null
	}
	if st.Value == nil {
		if want.Kind != types.KindNull && want.Kind != types.KindAny {
			a.diags.Errorf(errors.TypeMismatch, st.Span(),
				"bare return in a function declaring return type %s", want)
		}
		return
	}
	got := a.expr(st.Value)
	if !got.AssignableTo(want) {
		a.diags.Errorf(errors.TypeMismatch, st.Value.Span(),
			"cannot return %s from a function declaring %s", got, want)
	}
}

func (a *Analyzer) tryStmt(st *parser.TryStmt) {
	a.scopedBlock(st.Body, ScopeTry)
	a.table.Push(ScopeTry)
	a.table.Declare(&Symbol{
		Name:        st.CatchName,
		Kind:        SymVariable,
		Type:        types.Any,
		Initialized: true,
		Decl:        st.Span(),
	})
	for _, s := range st.Handler.Stmts {
		a.stmt(s)
	}
	a.reportUnused(a.table.Pop())
}

// blockReturns reports whether every path through the statements reaches a
// return or throw. The check is shallow on purpose; loops are not assumed
// to run.
func blockReturns(stmts []parser.Stmt) bool {
	for _, s := range stmts {
		if stmtReturns(s) {
			return true
		}
	}
	return false
}

func stmtReturns(s parser.Stmt) bool {
	switch st := s.(type) {
	case *parser.ReturnStmt, *parser.ThrowStmt:
		return true
	case *parser.Block:
		return blockReturns(st.Stmts)
	case *parser.IfStmt:
		if st.Else == nil {
			return false
		}
		thenOK := blockReturns(st.Then.Stmts)
		switch e := st.Else.(type) {
		case *parser.IfStmt:
			return thenOK && stmtReturns(e)
		case *parser.Block:
			return thenOK && blockReturns(e.Stmts)
		}
		return false
	case *parser.MatchStmt:
		if len(st.Arms) == 0 {
			return false
		}
		for _, arm := range st.Arms {
			if !blockReturns(arm.Body.Stmts) {
				return false
			}
		}
		// All arms return; trust exhaustiveness checking to require full
		// coverage where it applies.
		return true
	case *parser.TryStmt:
		return blockReturns(st.Body.Stmts) && blockReturns(st.Handler.Stmts)
	}
	return false
}
