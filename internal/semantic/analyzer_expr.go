// internal/semantic/analyzer_expr.go
package semantic

import (
	"strconv"

	"rzn/internal/errors"
	"rzn/internal/parser"
	"rzn/internal/types"
)

func itoa(v int64) string   { return strconv.FormatInt(v, 10) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// expr analyzes an expression, annotates it with the inferred type, and
// returns that type.
func (a *Analyzer) expr(e parser.Expr) *types.Type {
	t := a.exprType(e)
	e.SetType(t)
	return t
}

func (a *Analyzer) exprType(e parser.Expr) *types.Type {
	switch ex := e.(type) {
	case *parser.IntLit:
		return types.Int
	case *parser.FloatLit:
		return types.Float
	case *parser.StringLit:
		return types.Str
	case *parser.BoolLit:
		return types.Bool
	case *parser.NullLit:
		return types.Null
	case *parser.CharLit:
		return types.Char
	case *parser.FStringLit:
		for _, part := range ex.Parts {
			if !part.IsExpr {
				continue
			}
			t := a.expr(part.Expr)
			if !t.CoercibleToStr() {
				a.diags.Errorf(errors.TypeMismatch, part.Expr.Span(),
					"value of type %s cannot be interpolated into a string", t)
			}
		}
		return types.Str
	case *parser.Ident:
		return a.identType(ex)
	case *parser.SelfExpr:
		if a.currentSelf == nil {
			a.diags.Errorf(errors.UndefinedSymbol, ex.Span(), "self outside of an impl method")
			return types.Any
		}
		return a.currentSelf
	case *parser.Group:
		return a.expr(ex.Inner)
	case *parser.Unary:
		return a.unary(ex)
	case *parser.Binary:
		return a.binary(ex)
	case *parser.Assign:
		return a.assign(ex)
	case *parser.Call:
		return a.call(ex)
	case *parser.Member:
		return a.member(ex)
	case *parser.Index:
		return a.index(ex)
	case *parser.ArrayLit:
		return a.arrayLit(ex)
	case *parser.MapLit:
		return a.mapLit(ex)
	case *parser.StructLit:
		return a.structLit(ex)
	case *parser.EnumLit:
		return a.enumLit(ex)
	}
	return types.Any
}

func (a *Analyzer) identType(ex *parser.Ident) *types.Type {
	sym := a.table.Lookup(ex.Name)
	if sym == nil {
		if sig, ok := a.funcs[ex.Name]; ok {
			return types.NewFunction(sig.Params, sig.Return)
		}
		if _, ok := Builtins[ex.Name]; ok {
			return types.Any
		}
		a.diags.Errorf(errors.UndefinedSymbol, ex.Span(), "undefined symbol %q", ex.Name)
		return types.Any
	}
	sym.Uses++
	if (sym.Kind == SymVariable || sym.Kind == SymParameter) && !sym.Initialized {
		a.diags.Warnf(errors.UninitializedVariable, ex.Span(),
			"%q may be read before it is assigned", ex.Name)
		return types.Any
	}
	if sym.Type == nil {
		return types.Any
	}
	return sym.Type
}

func (a *Analyzer) unary(ex *parser.Unary) *types.Type {
	operand := a.expr(ex.Operand)
	if ex.Op == "++" || ex.Op == "--" {
		a.requireLValue(ex.Operand)
	}
	result := types.UnaryResult(ex.Op, operand)
	if result.Kind == types.KindUnknown {
		a.diags.Errorf(errors.TypeMismatch, ex.Span(),
			"operator %q is not defined for %s", ex.Op, operand)
		return types.Any
	}
	return result
}

func (a *Analyzer) binary(ex *parser.Binary) *types.Type {
	left := a.expr(ex.Left)
	right := a.expr(ex.Right)
	result := types.BinaryResult(ex.Op, left, right)
	if result.Kind == types.KindUnknown {
		a.diags.Errorf(errors.TypeMismatch, ex.Span(),
			"operator %q is not defined for %s and %s", ex.Op, left, right)
		return types.Any
	}
	return result
}

func (a *Analyzer) assign(ex *parser.Assign) *types.Type {
	// A plain store to an identifier is not a read; resolving it through
	// expr would warn about reading an uninitialized variable.
	var targetType *types.Type
	var targetSym *Symbol
	if id, ok := ex.Target.(*parser.Ident); ok {
		targetSym = a.table.Lookup(id.Name)
		if targetSym == nil {
			a.diags.Errorf(errors.UndefinedSymbol, id.Span(), "undefined symbol %q", id.Name)
			targetType = types.Any
		} else {
			targetType = targetSym.Type
			if targetType == nil {
				targetType = types.Any
			}
			if ex.Op != "=" {
				targetSym.Uses++
				if !targetSym.Initialized {
					a.diags.Warnf(errors.UninitializedVariable, id.Span(),
						"%q may be read before it is assigned", id.Name)
				}
			}
		}
		id.SetType(targetType)
	} else {
		targetType = a.expr(ex.Target)
	}
	valueType := a.expr(ex.Value)
	a.requireLValue(ex.Target)

	effective := valueType
	if ex.Op != "=" {
		// x op= e is x = x op e with the same operand rules.
		effective = types.BinaryResult(ex.Op, targetType, valueType)
		if effective.Kind == types.KindUnknown {
			a.diags.Errorf(errors.TypeMismatch, ex.Span(),
				"operator %q= is not defined for %s and %s", ex.Op, targetType, valueType)
			effective = types.Any
		}
	}

	if id, ok := ex.Target.(*parser.Ident); ok {
		if targetSym != nil {
			if !targetSym.Mutable && targetSym.Initialized {
				a.diags.Errorf(errors.InvalidLValue, ex.Span(),
					"cannot assign to %s %q", targetSym.Kind, id.Name)
			}
			if !effective.AssignableTo(targetType) {
				a.diags.Errorf(errors.TypeMismatch, ex.Value.Span(),
					"cannot assign a value of type %s to %q of type %s",
					effective, id.Name, targetType)
			}
			targetSym.Initialized = true
		}
		return effective
	}
	if !effective.AssignableTo(targetType) {
		a.diags.Errorf(errors.TypeMismatch, ex.Value.Span(),
			"cannot assign a value of type %s to a target of type %s", effective, targetType)
	}
	return effective
}

func (a *Analyzer) requireLValue(e parser.Expr) {
	switch target := e.(type) {
	case *parser.Ident, *parser.Index:
		return
	case *parser.Member:
		return
	case *parser.Group:
		a.requireLValue(target.Inner)
	default:
		a.diags.Errorf(errors.InvalidLValue, e.Span(), "expression is not assignable")
	}
}

func (a *Analyzer) call(ex *parser.Call) *types.Type {
	switch callee := ex.Callee.(type) {
	case *parser.Ident:
		return a.namedCall(ex, callee.Name)
	case *parser.Member:
		return a.memberCall(ex, callee)
	}
	// Calling through an arbitrary expression: it must be a function value.
	calleeType := a.expr(ex.Callee)
	for _, arg := range ex.Args {
		a.expr(arg)
	}
	switch calleeType.Kind {
	case types.KindFunction:
		if len(ex.Args) != len(calleeType.Params) {
			a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
				"expected %d arguments, found %d", len(calleeType.Params), len(ex.Args))
		}
		return calleeType.Return
	case types.KindAny, types.KindUnknown:
		return types.Any
	}
	a.diags.Errorf(errors.TypeMismatch, ex.Callee.Span(),
		"value of type %s is not callable", calleeType)
	return types.Any
}

func (a *Analyzer) namedCall(ex *parser.Call, name string) *types.Type {
	// A variable holding a function value shadows the global tables.
	if sym := a.table.Lookup(name); sym != nil && sym.Kind != SymFunction &&
		sym.Kind != SymStruct && sym.Kind != SymEnum && sym.Kind != SymImportAlias {
		sym.Uses++
		for _, arg := range ex.Args {
			a.expr(arg)
		}
		if sym.Type.Kind == types.KindFunction {
			if len(ex.Args) != len(sym.Type.Params) {
				a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
					"expected %d arguments, found %d", len(sym.Type.Params), len(ex.Args))
			}
			return sym.Type.Return
		}
		if sym.Type.Kind == types.KindAny {
			return types.Any
		}
		a.diags.Errorf(errors.TypeMismatch, ex.Span(), "%q is not callable", name)
		return types.Any
	}
	if sig, ok := Builtins[name]; ok {
		return a.checkArgs(ex, sig, name)
	}
	if sig, ok := a.funcs[name]; ok {
		return a.checkArgs(ex, sig, name)
	}
	if st, ok := a.structs[name]; ok {
		// Positional constructor call: one argument per field, in order.
		if len(ex.Args) != len(st.Fields) {
			a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
				"struct %s has %d fields, found %d arguments", name, len(st.Fields), len(ex.Args))
		}
		for i, arg := range ex.Args {
			at := a.expr(arg)
			if i < len(st.Fields) && !at.AssignableTo(st.Fields[i].Type) {
				a.diags.Errorf(errors.TypeMismatch, arg.Span(),
					"field %q of %s expects %s, found %s",
					st.Fields[i].Name, name, st.Fields[i].Type, at)
			}
		}
		return st
	}
	for _, arg := range ex.Args {
		a.expr(arg)
	}
	a.diags.Errorf(errors.UndefinedSymbol, ex.Span(), "undefined function %q", name)
	return types.Any
}

func (a *Analyzer) checkArgs(ex *parser.Call, sig *FuncSig, name string) *types.Type {
	if len(ex.Args) < sig.MinArgs || len(ex.Args) > sig.MaxArgs {
		if sig.MinArgs == sig.MaxArgs {
			a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
				"%q expects %d arguments, found %d", name, sig.MaxArgs, len(ex.Args))
		} else {
			a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
				"%q expects %d to %d arguments, found %d", name, sig.MinArgs, sig.MaxArgs, len(ex.Args))
		}
	}
	for i, arg := range ex.Args {
		at := a.expr(arg)
		if i < len(sig.Params) && !at.AssignableTo(sig.Params[i]) {
			a.diags.Errorf(errors.TypeMismatch, arg.Span(),
				"argument %d of %q expects %s, found %s", i+1, name, sig.Params[i], at)
		}
	}
	return sig.Return
}

func (a *Analyzer) memberCall(ex *parser.Call, callee *parser.Member) *types.Type {
	// Module function through an import alias.
	if obj, ok := callee.Object.(*parser.Ident); ok {
		if sym := a.table.Lookup(obj.Name); sym != nil && sym.Kind == SymImportAlias {
			sym.Uses++
			sig, found := a.moduleFuncs[obj.Name][callee.Name]
			if !found {
				a.diags.Errorf(errors.UndefinedSymbol, callee.Span(),
					"module %q has no function %q", obj.Name, callee.Name)
				for _, arg := range ex.Args {
					a.expr(arg)
				}
				return types.Any
			}
			if !sig.Public {
				a.diags.Errorf(errors.NotVisible, callee.Span(),
					"function %q is private to module %q", callee.Name, obj.Name)
			}
			return a.checkArgs(ex, sig, obj.Name+"."+callee.Name)
		}
	}
	recvType := a.expr(callee.Object)
	for _, arg := range ex.Args {
		a.expr(arg)
	}
	switch recvType.Kind {
	case types.KindStruct:
		sig, ok := a.methods[recvType.Name][callee.Name]
		if !ok {
			a.diags.Errorf(errors.UndefinedSymbol, callee.Span(),
				"type %s has no method %q", recvType.Name, callee.Name)
			return types.Any
		}
		// First parameter is the implicit self.
		want := len(sig.Params) - 1
		if len(ex.Args) != want {
			a.diags.Errorf(errors.ArgumentCountMismatch, ex.Span(),
				"method %q expects %d arguments, found %d", callee.Name, want, len(ex.Args))
		}
		for i, arg := range ex.Args {
			if i+1 < len(sig.Params) && !arg.TypeOf().AssignableTo(sig.Params[i+1]) {
				a.diags.Errorf(errors.TypeMismatch, arg.Span(),
					"argument %d of %q expects %s, found %s",
					i+1, callee.Name, sig.Params[i+1], arg.TypeOf())
			}
		}
		return sig.Return
	case types.KindAny, types.KindUnknown:
		return types.Any
	}
	a.diags.Errorf(errors.TypeMismatch, callee.Span(),
		"value of type %s has no methods", recvType)
	return types.Any
}

func (a *Analyzer) member(ex *parser.Member) *types.Type {
	if obj, ok := ex.Object.(*parser.Ident); ok {
		if sym := a.table.Lookup(obj.Name); sym != nil && sym.Kind == SymImportAlias {
			sym.Uses++
			if v, found := a.moduleVars[obj.Name][ex.Name]; found {
				if !v.Public {
					a.diags.Errorf(errors.NotVisible, ex.Span(),
						"%q is private to module %q", ex.Name, obj.Name)
				}
				return v.Type
			}
			if sig, found := a.moduleFuncs[obj.Name][ex.Name]; found {
				if !sig.Public {
					a.diags.Errorf(errors.NotVisible, ex.Span(),
						"function %q is private to module %q", ex.Name, obj.Name)
				}
				return types.NewFunction(sig.Params, sig.Return)
			}
			a.diags.Errorf(errors.UndefinedSymbol, ex.Span(),
				"module %q has no member %q", obj.Name, ex.Name)
			return types.Any
		}
	}
	objType := a.expr(ex.Object)
	switch objType.Kind {
	case types.KindStruct:
		if ft, ok := objType.FieldType(ex.Name); ok {
			return ft
		}
		a.diags.Errorf(errors.UndefinedSymbol, ex.Span(),
			"struct %s has no field %q", objType.Name, ex.Name)
		return types.Any
	case types.KindAny, types.KindUnknown:
		return types.Any
	}
	a.diags.Errorf(errors.TypeMismatch, ex.Span(),
		"value of type %s has no members", objType)
	return types.Any
}

func (a *Analyzer) index(ex *parser.Index) *types.Type {
	objType := a.expr(ex.Object)
	idxType := a.expr(ex.Idx)
	switch objType.Kind {
	case types.KindArray:
		if !idxType.AssignableTo(types.Int) {
			a.diags.Errorf(errors.TypeMismatch, ex.Idx.Span(),
				"array index must be int, found %s", idxType)
		}
		return objType.Elem
	case types.KindMap:
		if !idxType.AssignableTo(objType.Key) {
			a.diags.Errorf(errors.TypeMismatch, ex.Idx.Span(),
				"map key must be %s, found %s", objType.Key, idxType)
		}
		return objType.Elem
	case types.KindStr:
		if !idxType.AssignableTo(types.Int) {
			a.diags.Errorf(errors.TypeMismatch, ex.Idx.Span(),
				"string index must be int, found %s", idxType)
		}
		return types.Char
	case types.KindAny, types.KindUnknown:
		return types.Any
	}
	a.diags.Errorf(errors.TypeMismatch, ex.Span(),
		"value of type %s cannot be indexed", objType)
	return types.Any
}

func (a *Analyzer) arrayLit(ex *parser.ArrayLit) *types.Type {
	if len(ex.Elems) == 0 {
		return types.NewArray(types.Any)
	}
	elemType := a.expr(ex.Elems[0])
	uniform := true
	for _, e := range ex.Elems[1:] {
		t := a.expr(e)
		if !t.Equal(elemType) {
			uniform = false
		}
	}
	if !uniform {
		elemType = types.Any
	}
	return types.NewArray(elemType)
}

func (a *Analyzer) mapLit(ex *parser.MapLit) *types.Type {
	valType := types.Any
	uniform := true
	for i, k := range ex.Keys {
		kt := a.expr(k)
		if !kt.AssignableTo(types.Str) {
			a.diags.Errorf(errors.TypeMismatch, k.Span(),
				"map keys must be str, found %s", kt)
		}
		vt := a.expr(ex.Values[i])
		if i == 0 {
			valType = vt
		} else if !vt.Equal(valType) {
			uniform = false
		}
	}
	if !uniform {
		valType = types.Any
	}
	return types.NewMap(types.Str, valType)
}

func (a *Analyzer) structLit(ex *parser.StructLit) *types.Type {
	st, ok := a.structs[ex.Name]
	if !ok {
		a.diags.Errorf(errors.UndefinedSymbol, ex.Span(), "unknown struct %q", ex.Name)
		for _, f := range ex.Fields {
			a.expr(f.Value)
		}
		return types.Any
	}
	provided := make(map[string]bool)
	for _, f := range ex.Fields {
		vt := a.expr(f.Value)
		ft, exists := st.FieldType(f.Name)
		if !exists {
			a.diags.Errorf(errors.UndefinedSymbol, f.Value.Span(),
				"struct %s has no field %q", ex.Name, f.Name)
			continue
		}
		if provided[f.Name] {
			a.diags.Errorf(errors.DuplicateDefinition, f.Value.Span(),
				"field %q is set twice", f.Name)
		}
		provided[f.Name] = true
		if !vt.AssignableTo(ft) {
			a.diags.Errorf(errors.TypeMismatch, f.Value.Span(),
				"field %q of %s expects %s, found %s", f.Name, ex.Name, ft, vt)
		}
	}
	for _, f := range st.Fields {
		if !provided[f.Name] {
			a.diags.Errorf(errors.TypeMismatch, ex.Span(),
				"missing field %q in %s literal", f.Name, ex.Name)
		}
	}
	return st
}

func (a *Analyzer) enumLit(ex *parser.EnumLit) *types.Type {
	et, ok := a.enums[ex.TypeName]
	if !ok {
		a.diags.Errorf(errors.UndefinedSymbol, ex.Span(), "unknown enum %q", ex.TypeName)
		if ex.Payload != nil {
			a.expr(ex.Payload)
		}
		return types.Any
	}
	variant, ok := et.VariantByName(ex.Variant)
	if !ok {
		a.diags.Errorf(errors.UndefinedSymbol, ex.Span(),
			"enum %s has no variant %q", ex.TypeName, ex.Variant)
		if ex.Payload != nil {
			a.expr(ex.Payload)
		}
		return et
	}
	if ex.Payload != nil {
		pt := a.expr(ex.Payload)
		if variant.Payload == nil {
			a.diags.Errorf(errors.TypeMismatch, ex.Payload.Span(),
				"variant %s::%s carries no payload", ex.TypeName, ex.Variant)
		} else if !pt.AssignableTo(variant.Payload) {
			a.diags.Errorf(errors.TypeMismatch, ex.Payload.Span(),
				"variant %s::%s expects %s, found %s", ex.TypeName, ex.Variant, variant.Payload, pt)
		}
	} else if variant.Payload != nil {
		a.diags.Errorf(errors.TypeMismatch, ex.Span(),
			"variant %s::%s requires a payload of %s", ex.TypeName, ex.Variant, variant.Payload)
	}
	return et
}
