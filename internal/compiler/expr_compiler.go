// internal/compiler/expr_compiler.go
package compiler

import (
	"rzn/internal/ir"
	"rzn/internal/parser"
	"rzn/internal/semantic"
	"rzn/internal/types"
)

var binaryOps = map[string]ir.Op{
	"+":   ir.OpAdd,
	"-":   ir.OpSub,
	"*":   ir.OpMul,
	"/":   ir.OpDiv,
	"%":   ir.OpMod,
	"**":  ir.OpPow,
	"//":  ir.OpFloorDiv,
	"==":  ir.OpEq,
	"!=":  ir.OpNe,
	"<":   ir.OpLt,
	"<=":  ir.OpLe,
	">":   ir.OpGt,
	">=":  ir.OpGe,
	"&":   ir.OpBAnd,
	"|":   ir.OpBOr,
	"^":   ir.OpBXor,
	"<<":  ir.OpShl,
	">>":  ir.OpShr,
	"..":  ir.OpRangeExcl,
	"..=": ir.OpRangeIncl,
}

// expr lowers an expression, leaving exactly one value on the stack.
func (c *Compiler) expr(e parser.Expr) {
	switch ex := e.(type) {
	case *parser.IntLit:
		c.emit(ir.Instr{Op: ir.OpPushInt, A: ex.Value})
	case *parser.FloatLit:
		c.emit(ir.Instr{Op: ir.OpPushFloat, F: ex.Value})
	case *parser.StringLit:
		c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(ex.Value)})
	case *parser.CharLit:
		// B=1 tags the pooled string as a single character value.
		c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(string(ex.Value)), B: 1})
	case *parser.BoolLit:
		v := int64(0)
		if ex.Value {
			v = 1
		}
		c.emit(ir.Instr{Op: ir.OpPushBool, A: v})
	case *parser.NullLit:
		c.emit(ir.Instr{Op: ir.OpPushNull})
	case *parser.Ident:
		c.loadIdent(ex.Name)
	case *parser.SelfExpr:
		if slot, ok := c.lookupSlot("self"); ok {
			c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(slot)})
		} else {
			c.emit(ir.Instr{Op: ir.OpPushNull})
		}
	case *parser.Group:
		c.expr(ex.Inner)
	case *parser.Unary:
		c.unary(ex, true)
	case *parser.Binary:
		c.binary(ex)
	case *parser.Assign:
		c.assign(ex, true)
	case *parser.Call:
		c.call(ex)
	case *parser.Member:
		c.member(ex)
	case *parser.Index:
		c.indexLoad(ex)
	case *parser.ArrayLit:
		for _, el := range ex.Elems {
			c.expr(el)
		}
		c.emit(ir.Instr{Op: ir.OpCreateArray, A: int64(len(ex.Elems))})
	case *parser.MapLit:
		for i := range ex.Keys {
			c.expr(ex.Keys[i])
			c.expr(ex.Values[i])
		}
		c.emit(ir.Instr{Op: ir.OpCreateMap, A: int64(len(ex.Keys))})
	case *parser.StructLit:
		c.structLit(ex)
	case *parser.EnumLit:
		c.enumLit(ex)
	case *parser.FStringLit:
		c.fstring(ex)
	default:
		c.emit(ir.Instr{Op: ir.OpPushNull})
	}
}

func (c *Compiler) loadIdent(name string) {
	if slot, ok := c.lookupSlot(name); ok {
		c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(slot)})
		return
	}
	c.emit(ir.Instr{Op: ir.OpLoadGlobal, S: c.intern(c.globalName(name))})
}

func (c *Compiler) unary(ex *parser.Unary, needValue bool) {
	switch ex.Op {
	case "-":
		c.expr(ex.Operand)
		c.emit(ir.Instr{Op: ir.OpNeg})
	case "!":
		c.expr(ex.Operand)
		c.emit(ir.Instr{Op: ir.OpNot})
	case "~":
		c.expr(ex.Operand)
		c.emit(ir.Instr{Op: ir.OpBNot})
	case "++", "--":
		c.incDec(ex, needValue)
		return
	}
	if !needValue {
		c.emit(ir.Instr{Op: ir.OpPop})
	}
}

func (c *Compiler) incDec(ex *parser.Unary, needValue bool) {
	op := "+"
	if ex.Op == "--" {
		op = "-"
	}
	one := &parser.IntLit{Value: 1}
	desugared := &parser.Assign{Op: op, Target: ex.Operand, Value: one}
	if needValue && ex.Postfix {
		// The expression value is the operand before the update.
		c.expr(ex.Operand)
		c.assign(desugared, false)
		return
	}
	c.assign(desugared, needValue)
}

func (c *Compiler) binary(ex *parser.Binary) {
	switch ex.Op {
	case "&&":
		end := c.newLabel()
		c.expr(ex.Left)
		c.emit(ir.Instr{Op: ir.OpDup})
		c.jump(ir.OpJumpIfFalse, end)
		c.emit(ir.Instr{Op: ir.OpPop})
		c.expr(ex.Right)
		c.label(end)
		return
	case "||":
		end := c.newLabel()
		c.expr(ex.Left)
		c.emit(ir.Instr{Op: ir.OpDup})
		c.jump(ir.OpJumpIfTrue, end)
		c.emit(ir.Instr{Op: ir.OpPop})
		c.expr(ex.Right)
		c.label(end)
		return
	}
	c.expr(ex.Left)
	c.expr(ex.Right)
	if op, ok := binaryOps[ex.Op]; ok {
		c.emit(ir.Instr{Op: op})
	} else {
		c.emit(ir.Instr{Op: ir.OpPop})
	}
}

// assign lowers plain and compound assignment. With needValue the assigned
// value is left on the stack; member and index targets re-evaluate the
// target to produce it.
func (c *Compiler) assign(ex *parser.Assign, needValue bool) {
	switch target := ex.Target.(type) {
	case *parser.Ident:
		c.assignIdent(target.Name, ex, needValue)
	case *parser.Member:
		c.expr(target.Object)
		if ex.Op == "=" {
			c.expr(ex.Value)
		} else {
			c.emit(ir.Instr{Op: ir.OpDup})
			c.emit(ir.Instr{Op: ir.OpGetField, S: c.intern(target.Name)})
			c.expr(ex.Value)
			c.emit(ir.Instr{Op: binaryOps[ex.Op]})
		}
		c.emit(ir.Instr{Op: ir.OpSetField, S: c.intern(target.Name)})
		if needValue {
			c.member(target)
		}
	case *parser.Index:
		isMap := target.Object.TypeOf().Kind == types.KindMap
		c.expr(target.Object)
		c.expr(target.Idx)
		if ex.Op == "=" {
			c.expr(ex.Value)
		} else {
			c.expr(target.Object)
			c.expr(target.Idx)
			c.emitIndexLoad(isMap)
			c.expr(ex.Value)
			c.emit(ir.Instr{Op: binaryOps[ex.Op]})
		}
		if isMap {
			c.emit(ir.Instr{Op: ir.OpSetKey})
		} else {
			c.emit(ir.Instr{Op: ir.OpSetIndex})
		}
		if needValue {
			c.indexLoad(target)
		}
	case *parser.Group:
		inner := &parser.Assign{Op: ex.Op, Target: target.Inner, Value: ex.Value}
		c.assign(inner, needValue)
	default:
		// The analyzer already rejected this; keep the stack balanced.
		c.expr(ex.Value)
		if !needValue {
			c.emit(ir.Instr{Op: ir.OpPop})
		}
	}
}

func (c *Compiler) assignIdent(name string, ex *parser.Assign, needValue bool) {
	slot, isLocal := c.lookupSlot(name)
	load := func() {
		if isLocal {
			c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(slot)})
		} else {
			c.emit(ir.Instr{Op: ir.OpLoadGlobal, S: c.intern(c.globalName(name))})
		}
	}
	store := func() {
		if isLocal {
			c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(slot)})
		} else {
			c.emit(ir.Instr{Op: ir.OpStoreGlobal, S: c.intern(c.globalName(name))})
		}
	}
	if ex.Op == "=" {
		c.expr(ex.Value)
	} else {
		load()
		c.expr(ex.Value)
		c.emit(ir.Instr{Op: binaryOps[ex.Op]})
	}
	if needValue {
		c.emit(ir.Instr{Op: ir.OpDup})
	}
	store()
}

func (c *Compiler) member(ex *parser.Member) {
	if obj, ok := ex.Object.(*parser.Ident); ok {
		if _, isLocal := c.lookupSlot(obj.Name); !isLocal && c.an.HasModule(obj.Name) {
			c.emit(ir.Instr{Op: ir.OpLoadGlobal, S: c.intern(obj.Name + "." + ex.Name)})
			return
		}
	}
	c.expr(ex.Object)
	c.emit(ir.Instr{Op: ir.OpGetField, S: c.intern(ex.Name)})
}

func (c *Compiler) emitIndexLoad(isMap bool) {
	if isMap {
		c.emit(ir.Instr{Op: ir.OpGetKey})
	} else {
		c.emit(ir.Instr{Op: ir.OpGetIndex})
	}
}

func (c *Compiler) indexLoad(ex *parser.Index) {
	c.expr(ex.Object)
	c.expr(ex.Idx)
	c.emitIndexLoad(ex.Object.TypeOf().Kind == types.KindMap)
}

// structType resolves a struct by name, preferring the current module's
// qualified namespace when compiling an imported file.
func (c *Compiler) structType(name string) (*types.Type, bool) {
	if c.qualifier != "" {
		if st, ok := c.an.StructType(c.qualifier + name); ok {
			return st, true
		}
	}
	return c.an.StructType(name)
}

func (c *Compiler) structLit(ex *parser.StructLit) {
	st, ok := c.structType(ex.Name)
	if !ok {
		c.emit(ir.Instr{Op: ir.OpPushNull})
		return
	}
	// Fields are pushed in declared order regardless of literal order.
	byName := make(map[string]parser.Expr, len(ex.Fields))
	for _, f := range ex.Fields {
		byName[f.Name] = f.Value
	}
	n := 0
	for _, f := range st.Fields {
		value, present := byName[f.Name]
		if !present {
			continue
		}
		c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(f.Name)})
		c.expr(value)
		n++
	}
	c.emit(ir.Instr{Op: ir.OpStructNew, S: c.intern(ex.Name), A: int64(n)})
}

func (c *Compiler) enumLit(ex *parser.EnumLit) {
	c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(ex.Variant)})
	hasPayload := int64(0)
	if ex.Payload != nil {
		c.expr(ex.Payload)
		hasPayload = 1
	}
	c.emit(ir.Instr{Op: ir.OpEnumNew, S: c.intern(ex.TypeName), A: hasPayload})
}

func (c *Compiler) fstring(ex *parser.FStringLit) {
	if len(ex.Parts) == 0 {
		c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern("")})
		return
	}
	for _, part := range ex.Parts {
		if part.IsExpr {
			c.expr(part.Expr)
		} else {
			c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(part.Lit)})
		}
	}
	c.emit(ir.Instr{Op: ir.OpStringConcat, A: int64(len(ex.Parts))})
}

// call lowers every call shape: builtins, named functions, struct
// constructors, module functions, methods, and calls through function
// values.
func (c *Compiler) call(ex *parser.Call) {
	if callee, ok := ex.Callee.(*parser.Ident); ok {
		if _, isLocal := c.lookupSlot(callee.Name); !isLocal {
			if _, isBuiltin := semantic.Builtins[callee.Name]; isBuiltin {
				c.builtinCall(callee.Name, ex.Args)
				return
			}
			if st, isStruct := c.structType(callee.Name); isStruct {
				// Positional constructor: one argument per declared field.
				for i, f := range st.Fields {
					if i >= len(ex.Args) {
						break
					}
					c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern(f.Name)})
					c.expr(ex.Args[i])
				}
				n := len(st.Fields)
				if len(ex.Args) < n {
					n = len(ex.Args)
				}
				c.emit(ir.Instr{Op: ir.OpStructNew, S: c.intern(callee.Name), A: int64(n)})
				return
			}
			name := callee.Name
			if _, declared := c.module.ByName[c.globalName(name)]; declared || c.qualifier != "" {
				name = c.globalName(name)
			}
			for _, arg := range ex.Args {
				c.expr(arg)
			}
			c.emit(ir.Instr{Op: ir.OpCall, S: c.intern(name), B: int64(len(ex.Args))})
			return
		}
	}
	if callee, ok := ex.Callee.(*parser.Member); ok {
		if obj, isIdent := callee.Object.(*parser.Ident); isIdent {
			if _, isLocal := c.lookupSlot(obj.Name); !isLocal && c.an.HasModule(obj.Name) {
				for _, arg := range ex.Args {
					c.expr(arg)
				}
				c.emit(ir.Instr{
					Op: ir.OpCall,
					S:  c.intern(obj.Name + "." + callee.Name),
					B:  int64(len(ex.Args)),
				})
				return
			}
		}
		// Method call: the receiver rides along as the first argument.
		c.expr(callee.Object)
		for _, arg := range ex.Args {
			c.expr(arg)
		}
		c.emit(ir.Instr{
			Op: ir.OpMethodCall,
			S:  c.intern(callee.Name),
			A:  int64(len(ex.Args) + 1),
		})
		return
	}
	// Call through a function value: callee below the arguments.
	c.expr(ex.Callee)
	for _, arg := range ex.Args {
		c.expr(arg)
	}
	c.emit(ir.Instr{Op: ir.OpCall, S: DynamicCallID, B: int64(len(ex.Args) + 1)})
}

func (c *Compiler) builtinCall(name string, args []parser.Expr) {
	switch name {
	case "print":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpPrint})
		c.emit(ir.Instr{Op: ir.OpPushNull})
	case "println":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpPrintLn})
		c.emit(ir.Instr{Op: ir.OpPushNull})
	case "input":
		for _, arg := range args {
			c.expr(arg)
		}
		c.emit(ir.Instr{Op: ir.OpReadInput, A: int64(len(args))})
	case "len":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpLength})
	case "toint":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpToInt})
	case "tofloat":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpToFloat})
	case "tostr":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpToStr})
	case "tobool":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpToBool})
	case "typeof":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpTypeof})
	case "sleep":
		c.expr(args[0])
		c.emit(ir.Instr{Op: ir.OpSleep})
		c.emit(ir.Instr{Op: ir.OpPushNull})
	default:
		// printc, printlnc, read, write resolve in the runtime's native
		// function table.
		for _, arg := range args {
			c.expr(arg)
		}
		c.emit(ir.Instr{Op: ir.OpCall, S: c.intern(name), B: int64(len(args))})
	}
}
