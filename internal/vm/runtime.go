// internal/vm/runtime.go
package vm

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"rzn/internal/errors"
	"rzn/internal/ir"
)

// DefaultMaxStack is the operand stack cap in slots.
const DefaultMaxStack = 1 << 20

// osExit is swappable so embedding tests can observe exits.
var osExit = os.Exit

// uninitialized marks a register slot that has never been written.
type uninitialized struct{}

var uninit Value = uninitialized{}

// CallHook dispatches a user function call; the engine installs itself
// here so every call goes through strategy selection and profiling.
type CallHook func(f *ir.Function, args []Value) (Value, *errors.RuntimeError)

// Runtime is the tier-0 IR walker. It owns the operand stack, the global
// table, and the I/O endpoints; the bytecode tier shares all of them.
type Runtime struct {
	Module   *ir.Module
	Globals  map[uint32]Value
	Stdout   io.Writer
	Stdin    *bufio.Reader
	MaxStack int

	stack      []Value
	call       CallHook
	labelCache map[*ir.Function]map[int64]int
	natives    map[string]nativeFunc
}

func NewRuntime(m *ir.Module) *Runtime {
	r := &Runtime{
		Module:     m,
		Globals:    make(map[uint32]Value),
		Stdout:     os.Stdout,
		Stdin:      bufio.NewReader(os.Stdin),
		MaxStack:   DefaultMaxStack,
		labelCache: make(map[*ir.Function]map[int64]int),
	}
	r.natives = nativeTable()
	return r
}

// SetCallHook installs the engine's call dispatcher.
func (r *Runtime) SetCallHook(hook CallHook) { r.call = hook }

// StackDepth returns the current operand stack depth.
func (r *Runtime) StackDepth() int { return len(r.stack) }

// TruncateStack drops values above the given depth; both tiers use it on
// return and on error recovery.
func (r *Runtime) TruncateStack(depth int) {
	if depth >= 0 && depth <= len(r.stack) {
		r.stack = r.stack[:depth]
	}
}

func (r *Runtime) push(v Value) *errors.RuntimeError {
	if len(r.stack) >= r.MaxStack {
		return errors.NewRuntimeError(errors.StackOverflow, 0,
			"operand stack exceeded %d slots", r.MaxStack)
	}
	r.stack = append(r.stack, v)
	return nil
}

func (r *Runtime) pop() Value {
	v := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return v
}

func (r *Runtime) labels(f *ir.Function) map[int64]int {
	if m, ok := r.labelCache[f]; ok {
		return m
	}
	m := f.Labels()
	r.labelCache[f] = m
	return m
}

type tryFrame struct {
	handlerPC  int
	stackDepth int
}

// RunFunction executes one function activation at tier 0. Arguments land
// in slots 0..arity-1; the return value is whatever Return pops.
func (r *Runtime) RunFunction(f *ir.Function, args []Value) (Value, *errors.RuntimeError) {
	slots := make([]Value, f.MaxSlot+1)
	for i := range slots {
		slots[i] = uninit
	}
	for i, a := range args {
		if i < len(slots) {
			slots[i] = a
		}
	}
	labels := r.labels(f)
	var tries []tryFrame
	base := len(r.stack)

	var pc int
	raise := func(err *errors.RuntimeError) (int, *errors.RuntimeError) {
		if err.Offset == 0 {
			err.Offset = pc
		}
		if len(tries) == 0 {
			r.TruncateStack(base)
			return 0, err
		}
		frame := tries[len(tries)-1]
		tries = tries[:len(tries)-1]
		r.TruncateStack(frame.stackDepth)
		var caught Value
		if err.Kind == errors.UnhandledThrow {
			caught = err.Value
		} else {
			caught = &ErrorValue{Kind: string(err.Kind), Message: err.Message, Offset: err.Offset}
		}
		if e := r.push(caught); e != nil {
			return 0, e
		}
		return frame.handlerPC, nil
	}

	for pc < len(f.Code) {
		in := f.Code[pc]
		var err *errors.RuntimeError

		switch in.Op {
		case ir.OpPushInt:
			err = r.push(in.A)
		case ir.OpPushFloat:
			err = r.push(in.F)
		case ir.OpPushStr:
			if in.B == 1 {
				rn, _ := utf8.DecodeRuneInString(r.Module.Strings.Lookup(in.S))
				err = r.push(Char(rn))
			} else {
				err = r.push(Str{S: r.Module.Strings.Lookup(in.S), ID: int32(in.S)})
			}
		case ir.OpPushBool:
			err = r.push(in.A != 0)
		case ir.OpPushNull:
			err = r.push(nil)
		case ir.OpPop:
			r.pop()
		case ir.OpDup:
			err = r.push(r.stack[len(r.stack)-1])
		case ir.OpSwap:
			n := len(r.stack)
			r.stack[n-1], r.stack[n-2] = r.stack[n-2], r.stack[n-1]

		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpPow, ir.OpFloorDiv:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Arith(arithSymbol(in.Op), a, b)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpNeg:
			var v Value
			v, err = Negate(r.pop())
			if err == nil {
				err = r.push(v)
			}

		case ir.OpEq:
			b := r.pop()
			a := r.pop()
			err = r.push(Equal(a, b))
		case ir.OpNe:
			b := r.pop()
			a := r.pop()
			err = r.push(!Equal(a, b))
		case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Compare(cmpSymbol(in.Op), a, b)
			if err == nil {
				err = r.push(v)
			}

		case ir.OpAnd:
			b := r.pop()
			a := r.pop()
			err = r.push(Truthy(a) && Truthy(b))
		case ir.OpOr:
			b := r.pop()
			a := r.pop()
			err = r.push(Truthy(a) || Truthy(b))
		case ir.OpNot:
			err = r.push(!Truthy(r.pop()))

		case ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Bitwise(bitSymbol(in.Op), a, b)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpBNot:
			if n, ok := r.pop().(int64); ok {
				err = r.push(^n)
			} else {
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
					"operator ~ requires int")
			}

		case ir.OpLoadVar:
			v := slots[in.A]
			if _, bad := v.(uninitialized); bad {
				err = errors.NewRuntimeError(errors.UninitializedVariable, pc,
					"variable slot %d read before assignment", in.A)
			} else {
				err = r.push(v)
			}
		case ir.OpStoreVar:
			slots[in.A] = r.pop()
		case ir.OpLoadGlobal:
			v, ok := r.Globals[in.S]
			if !ok {
				err = errors.NewRuntimeError(errors.UninitializedVariable, pc,
					"global %q read before assignment", r.Module.Strings.Lookup(in.S))
			} else {
				err = r.push(v)
			}
		case ir.OpStoreGlobal:
			r.Globals[in.S] = r.pop()

		case ir.OpStringConcat:
			n := int(in.A)
			var sb strings.Builder
			parts := r.stack[len(r.stack)-n:]
			for _, p := range parts {
				var s string
				s, err = Interpolate(p)
				if err != nil {
					break
				}
				sb.WriteString(s)
			}
			if err == nil {
				r.stack = r.stack[:len(r.stack)-n]
				err = r.push(OwnedStr(sb.String()))
			}
		case ir.OpStringLen:
			if s, ok := r.pop().(Str); ok {
				err = r.push(int64(len(s.S)))
			} else {
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
					"string length requires str")
			}

		case ir.OpJump:
			pc = labels[in.A]
			continue
		case ir.OpJumpIfFalse:
			if !Truthy(r.pop()) {
				pc = labels[in.A]
				continue
			}
		case ir.OpJumpIfTrue:
			if Truthy(r.pop()) {
				pc = labels[in.A]
				continue
			}
		case ir.OpLabel:
			// no effect

		case ir.OpCall:
			err = r.doCall(in)
		case ir.OpMethodCall:
			err = r.doMethodCall(in)
		case ir.OpReturn:
			result := r.pop()
			r.TruncateStack(base)
			return result, nil
		case ir.OpDefineFunction:
			r.Globals[in.S] = &FuncValue{Fn: r.Module.Funcs[in.A]}

		case ir.OpCreateArray:
			n := int(in.A)
			elems := make([]Value, n)
			copy(elems, r.stack[len(r.stack)-n:])
			r.stack = r.stack[:len(r.stack)-n]
			err = r.push(&Array{Elements: elems})
		case ir.OpGetIndex:
			idx := r.pop()
			obj := r.pop()
			var v Value
			v, err = r.getIndex(obj, idx)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSetIndex:
			v := r.pop()
			idx := r.pop()
			obj := r.pop()
			err = r.setIndex(obj, idx, v)
		case ir.OpCreateMap:
			n := int(in.A)
			m := NewMap()
			pairs := r.stack[len(r.stack)-2*n:]
			for i := 0; i < 2*n; i += 2 {
				key, ok := pairs[i].(Str)
				if !ok {
					err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
						"map keys must be str, found %s", TypeTag(pairs[i]))
					break
				}
				m.Set(key.S, pairs[i+1])
			}
			if err == nil {
				r.stack = r.stack[:len(r.stack)-2*n]
				err = r.push(m)
			}
		case ir.OpGetKey:
			key := r.pop()
			obj := r.pop()
			var v Value
			v, err = r.getKey(obj, key)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSetKey:
			v := r.pop()
			key := r.pop()
			obj := r.pop()
			err = r.setIndex(obj, key, v)
		case ir.OpLength:
			var v Value
			v, err = Length(r.pop())
			if err == nil {
				err = r.push(v)
			}

		case ir.OpStructNew:
			n := int(in.A)
			pairs := r.stack[len(r.stack)-2*n:]
			st := &Struct{TypeName: r.Module.Strings.Lookup(in.S)}
			for i := 0; i < 2*n; i += 2 {
				st.Names = append(st.Names, pairs[i].(Str).S)
				st.Values = append(st.Values, pairs[i+1])
			}
			r.stack = r.stack[:len(r.stack)-2*n]
			err = r.push(st)
		case ir.OpGetField:
			obj := r.pop()
			var v Value
			v, err = r.getField(obj, r.Module.Strings.Lookup(in.S))
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSetField:
			v := r.pop()
			obj := r.pop()
			name := r.Module.Strings.Lookup(in.S)
			if st, ok := obj.(*Struct); ok {
				if !st.SetField(name, v) {
					err = errors.NewRuntimeError(errors.KeyNotFound, pc,
						"struct %s has no field %q", st.TypeName, name)
				}
			} else if m, ok := obj.(*Map); ok {
				m.Set(name, v)
			} else {
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
					"cannot set field on %s", TypeTag(obj))
			}
		case ir.OpEnumNew:
			e := &Enum{TypeName: r.Module.Strings.Lookup(in.S)}
			if in.A == 1 {
				e.Payload = r.pop()
				e.HasPayload = true
			}
			e.Variant = r.pop().(Str).S
			err = r.push(e)
		case ir.OpEnumMatch:
			v := r.pop()
			e, ok := v.(*Enum)
			err = r.push(ok && e.Variant == r.Module.Strings.Lookup(in.S))

		case ir.OpPrint:
			_, _ = io.WriteString(r.Stdout, Display(r.pop()))
		case ir.OpPrintLn:
			_, _ = io.WriteString(r.Stdout, Display(r.pop())+"\n")
		case ir.OpReadInput:
			if in.A == 1 {
				_, _ = io.WriteString(r.Stdout, Display(r.pop()))
			}
			line, _ := r.Stdin.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")
			err = r.push(OwnedStr(line))

		case ir.OpTypeof:
			err = r.push(OwnedStr(TypeTag(r.pop())))
		case ir.OpToInt:
			var v Value
			v, err = ToInt(r.pop())
			if err == nil {
				err = r.push(v)
			}
		case ir.OpToFloat:
			var v Value
			v, err = ToFloat(r.pop())
			if err == nil {
				err = r.push(v)
			}
		case ir.OpToStr:
			err = r.push(ToStr(r.pop()))
		case ir.OpToBool:
			var v Value
			v, err = ToBool(r.pop())
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSleep:
			if ms, ok := r.pop().(int64); ok {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case ir.OpExit:
			code, _ := r.pop().(int64)
			osExit(int(code))

		case ir.OpSetupTryCatch:
			tries = append(tries, tryFrame{
				handlerPC:  labels[in.A],
				stackDepth: len(r.stack),
			})
		case ir.OpClearTryCatch:
			if len(tries) > 0 {
				tries = tries[:len(tries)-1]
			}
		case ir.OpThrowException:
			thrown := r.pop()
			err = &errors.RuntimeError{
				Kind:    errors.UnhandledThrow,
				Message: Display(thrown),
				Offset:  pc,
				Value:   thrown,
			}

		case ir.OpRangeExcl, ir.OpRangeIncl:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = makeRange(a, b, in.Op == ir.OpRangeIncl)
			if err == nil {
				err = r.push(v)
			}
		}

		if err != nil {
			next, fatal := raise(err)
			if fatal != nil {
				return nil, fatal
			}
			pc = next
			continue
		}
		pc++
	}
	r.TruncateStack(base)
	return nil, nil
}

func arithSymbol(op ir.Op) string {
	switch op {
	case ir.OpAdd:
		return "+"
	case ir.OpSub:
		return "-"
	case ir.OpMul:
		return "*"
	case ir.OpDiv:
		return "/"
	case ir.OpMod:
		return "%"
	case ir.OpPow:
		return "**"
	case ir.OpFloorDiv:
		return "//"
	}
	return "?"
}

func cmpSymbol(op ir.Op) string {
	switch op {
	case ir.OpLt:
		return "<"
	case ir.OpLe:
		return "<="
	case ir.OpGt:
		return ">"
	case ir.OpGe:
		return ">="
	}
	return "?"
}

func bitSymbol(op ir.Op) string {
	switch op {
	case ir.OpBAnd:
		return "&"
	case ir.OpBOr:
		return "|"
	case ir.OpBXor:
		return "^"
	case ir.OpShl:
		return "<<"
	case ir.OpShr:
		return ">>"
	}
	return "?"
}

// makeRange materializes a range used as a plain value.
func makeRange(a, b Value, inclusive bool) (Value, *errors.RuntimeError) {
	start, ok1 := a.(int64)
	end, ok2 := b.(int64)
	if !ok1 || !ok2 {
		return nil, coercionError("..", a, b)
	}
	if inclusive {
		end++
	}
	arr := &Array{}
	for i := start; i < end; i++ {
		arr.Elements = append(arr.Elements, i)
	}
	return arr, nil
}

// doCall handles named calls, native builtins, and calls through function
// values.
func (r *Runtime) doCall(in ir.Instr) *errors.RuntimeError {
	if in.S == ir.DynamicCallID {
		argc := int(in.B) - 1
		args := make([]Value, argc)
		copy(args, r.stack[len(r.stack)-argc:])
		r.stack = r.stack[:len(r.stack)-argc]
		callee := r.pop()
		fv, ok := callee.(*FuncValue)
		if !ok {
			return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"value of type %s is not callable", TypeTag(callee))
		}
		return r.invoke(fv.Fn, args)
	}
	name := r.Module.Strings.Lookup(in.S)
	argc := int(in.B)
	args := make([]Value, argc)
	copy(args, r.stack[len(r.stack)-argc:])
	r.stack = r.stack[:len(r.stack)-argc]

	if native, ok := r.natives[name]; ok {
		result, err := native(r, args)
		if err != nil {
			return err
		}
		return r.push(result)
	}
	fn, ok := r.Module.Lookup(name)
	if !ok {
		if fv, isFn := r.Globals[in.S].(*FuncValue); isFn {
			return r.invoke(fv.Fn, args)
		}
		return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"undefined function %q", name)
	}
	return r.invoke(fn, args)
}

func (r *Runtime) doMethodCall(in ir.Instr) *errors.RuntimeError {
	argc := int(in.A)
	args := make([]Value, argc)
	copy(args, r.stack[len(r.stack)-argc:])
	r.stack = r.stack[:len(r.stack)-argc]

	method := r.Module.Strings.Lookup(in.S)
	receiver := args[0]
	st, ok := receiver.(*Struct)
	if !ok {
		return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"value of type %s has no methods", TypeTag(receiver))
	}
	fn, found := r.Module.Lookup(st.TypeName + "." + method)
	if !found {
		return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"type %s has no method %q", st.TypeName, method)
	}
	return r.invoke(fn, args)
}

// invoke runs a callee through the engine when one is installed, so nested
// calls are profiled and tier-selected; the result lands on the stack.
func (r *Runtime) invoke(fn *ir.Function, args []Value) *errors.RuntimeError {
	var result Value
	var err *errors.RuntimeError
	if r.call != nil {
		result, err = r.call(fn, args)
	} else {
		result, err = r.RunFunction(fn, args)
	}
	if err != nil {
		return err
	}
	return r.push(result)
}

func (r *Runtime) getIndex(obj, idx Value) (Value, *errors.RuntimeError) {
	switch o := obj.(type) {
	case *Array:
		i, ok := idx.(int64)
		if !ok {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"array index must be int, found %s", TypeTag(idx))
		}
		if i < 0 || int(i) >= len(o.Elements) {
			return nil, errors.NewRuntimeError(errors.IndexOutOfBounds, 0,
				"index %d out of bounds for array of length %d", i, len(o.Elements))
		}
		return o.Elements[i], nil
	case Str:
		i, ok := idx.(int64)
		if !ok {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"string index must be int, found %s", TypeTag(idx))
		}
		if i < 0 || int(i) >= len(o.S) {
			return nil, errors.NewRuntimeError(errors.IndexOutOfBounds, 0,
				"index %d out of bounds for string of length %d", i, len(o.S))
		}
		rn, _ := utf8.DecodeRuneInString(o.S[i:])
		return Char(rn), nil
	case *Map:
		switch key := idx.(type) {
		case Str:
			return r.getKey(obj, key)
		case int64:
			// Indexing a map with an int yields its i-th key in insertion
			// order; the for-loop lowering relies on this.
			if key < 0 || int(key) >= len(o.Keys) {
				return nil, errors.NewRuntimeError(errors.IndexOutOfBounds, 0,
					"index %d out of bounds for map of %d entries", key, len(o.Keys))
			}
			return OwnedStr(o.Keys[key]), nil
		}
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"value of type %s cannot be indexed", TypeTag(obj))
}

func (r *Runtime) getKey(obj, key Value) (Value, *errors.RuntimeError) {
	m, ok := obj.(*Map)
	if !ok {
		return r.getIndex(obj, key)
	}
	ks, ok := key.(Str)
	if !ok {
		return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"map key must be str, found %s", TypeTag(key))
	}
	v, exists := m.Items[ks.S]
	if !exists {
		return nil, errors.NewRuntimeError(errors.KeyNotFound, 0,
			"key %q not found", ks.S)
	}
	return v, nil
}

func (r *Runtime) setIndex(obj, idx, v Value) *errors.RuntimeError {
	switch o := obj.(type) {
	case *Array:
		i, ok := idx.(int64)
		if !ok {
			return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"array index must be int, found %s", TypeTag(idx))
		}
		if i < 0 || int(i) >= len(o.Elements) {
			return errors.NewRuntimeError(errors.IndexOutOfBounds, 0,
				"index %d out of bounds for array of length %d", i, len(o.Elements))
		}
		o.Elements[i] = v
		return nil
	case *Map:
		ks, ok := idx.(Str)
		if !ok {
			return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"map key must be str, found %s", TypeTag(idx))
		}
		o.Set(ks.S, v)
		return nil
	}
	return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"value of type %s cannot be indexed", TypeTag(obj))
}

func (r *Runtime) getField(obj Value, name string) (Value, *errors.RuntimeError) {
	switch o := obj.(type) {
	case *Struct:
		if v, ok := o.Field(name); ok {
			return v, nil
		}
		return nil, errors.NewRuntimeError(errors.KeyNotFound, 0,
			"struct %s has no field %q", o.TypeName, name)
	case *Enum:
		switch name {
		case "payload":
			if o.HasPayload {
				return o.Payload, nil
			}
			return nil, nil
		case "variant":
			return OwnedStr(o.Variant), nil
		}
		return nil, errors.NewRuntimeError(errors.KeyNotFound, 0,
			"enum value has no field %q", name)
	case *Map:
		if v, ok := o.Items[name]; ok {
			return v, nil
		}
		return nil, errors.NewRuntimeError(errors.KeyNotFound, 0,
			"key %q not found", name)
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"value of type %s has no fields", TypeTag(obj))
}
