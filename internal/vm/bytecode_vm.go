// internal/vm/bytecode_vm.go
package vm

import (
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"rzn/internal/bytecode"
	"rzn/internal/errors"
	"rzn/internal/ir"
)

// RunBytecode executes a function through its dense bytecode form. The
// dispatch loop keeps integer arithmetic on a fast path; complex value
// manipulation reuses the tier-0 helpers on the same operand stack, so the
// two tiers cannot drift apart semantically.
func (r *Runtime) RunBytecode(p *bytecode.Program, args []Value) (Value, *errors.RuntimeError) {
	f := p.Fn
	slots := make([]Value, f.MaxSlot+1)
	for i := range slots {
		slots[i] = uninit
	}
	for i, a := range args {
		if i < len(slots) {
			slots[i] = a
		}
	}
	var tries []tryFrame
	base := len(r.stack)
	code := p.Code

	w := 0    // word position
	ipc := 0  // instruction index, for error offsets
	raise := func(err *errors.RuntimeError) (int, int, *errors.RuntimeError) {
		if err.Offset == 0 {
			err.Offset = ipc
		}
		if len(tries) == 0 {
			r.TruncateStack(base)
			return 0, 0, err
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
			return 0, 0, e
		}
		return p.Offsets[frame.handlerPC], frame.handlerPC, nil
	}

	for w < len(code) {
		op := ir.Op(code[w])
		w++
		var err *errors.RuntimeError

		switch op {
		case ir.OpPushInt:
			err = r.push(p.Ints[code[w]])
			w++
		case ir.OpPushFloat:
			err = r.push(p.Floats[code[w]])
			w++
		case ir.OpPushStr:
			s, flag := code[w], code[w+1]
			w += 2
			if flag == 1 {
				rn, _ := utf8.DecodeRuneInString(r.Module.Strings.Lookup(s))
				err = r.push(Char(rn))
			} else {
				err = r.push(Str{S: r.Module.Strings.Lookup(s), ID: int32(s)})
			}
		case ir.OpPushBool:
			err = r.push(code[w] != 0)
			w++
		case ir.OpPushNull:
			err = r.push(nil)
		case ir.OpPop:
			r.pop()
		case ir.OpDup:
			err = r.push(r.stack[len(r.stack)-1])
		case ir.OpSwap:
			n := len(r.stack)
			r.stack[n-1], r.stack[n-2] = r.stack[n-2], r.stack[n-1]

		case ir.OpAdd:
			// Fast path: both operands already int.
			n := len(r.stack)
			if ai, ok := r.stack[n-2].(int64); ok {
				if bi, ok := r.stack[n-1].(int64); ok {
					r.stack = r.stack[:n-1]
					r.stack[n-2] = ai + bi
					break
				}
			}
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Arith("+", a, b)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpPow, ir.OpFloorDiv:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Arith(arithSymbol(op), a, b)
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
			n := len(r.stack)
			if ai, ok := r.stack[n-2].(int64); ok {
				if bi, ok := r.stack[n-1].(int64); ok {
					r.stack = r.stack[:n-1]
					r.stack[n-2] = intCompare(op, ai, bi)
					break
				}
			}
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = Compare(cmpSymbol(op), a, b)
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
			v, err = Bitwise(bitSymbol(op), a, b)
			if err == nil {
				err = r.push(v)
			}
		case ir.OpBNot:
			if n, ok := r.pop().(int64); ok {
				err = r.push(^n)
			} else {
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, ipc,
					"operator ~ requires int")
			}

		case ir.OpLoadVar:
			v := slots[code[w]]
			w++
			if _, bad := v.(uninitialized); bad {
				err = errors.NewRuntimeError(errors.UninitializedVariable, ipc,
					"variable slot read before assignment")
			} else {
				err = r.push(v)
			}
		case ir.OpStoreVar:
			slots[code[w]] = r.pop()
			w++
		case ir.OpLoadGlobal:
			v, ok := r.Globals[code[w]]
			if !ok {
				err = errors.NewRuntimeError(errors.UninitializedVariable, ipc,
					"global %q read before assignment", r.Module.Strings.Lookup(code[w]))
			} else {
				err = r.push(v)
			}
			w++
		case ir.OpStoreGlobal:
			r.Globals[code[w]] = r.pop()
			w++

		case ir.OpStringConcat:
			n := int(code[w])
			w++
			var sb strings.Builder
			parts := r.stack[len(r.stack)-n:]
			for _, part := range parts {
				var s string
				s, err = Interpolate(part)
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
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, ipc,
					"string length requires str")
			}

		case ir.OpJump:
			target := int(code[w])
			w, ipc = p.Offsets[target], target
			continue
		case ir.OpJumpIfFalse:
			target := int(code[w])
			w++
			if !Truthy(r.pop()) {
				w, ipc = p.Offsets[target], target
				continue
			}
		case ir.OpJumpIfTrue:
			target := int(code[w])
			w++
			if Truthy(r.pop()) {
				w, ipc = p.Offsets[target], target
				continue
			}
		case ir.OpLabel:
			// no effect

		case ir.OpCall:
			in := ir.Instr{Op: op, S: code[w], B: int64(code[w+1])}
			w += 2
			err = r.doCall(in)
		case ir.OpMethodCall:
			in := ir.Instr{Op: op, S: code[w], A: int64(code[w+1])}
			w += 2
			err = r.doMethodCall(in)
		case ir.OpReturn:
			result := r.pop()
			r.TruncateStack(base)
			return result, nil
		case ir.OpDefineFunction:
			s, idx := code[w], code[w+1]
			w += 2
			r.Globals[s] = &FuncValue{Fn: r.Module.Funcs[idx]}

		case ir.OpCreateArray:
			n := int(code[w])
			w++
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
			n := int(code[w])
			w++
			m := NewMap()
			pairs := r.stack[len(r.stack)-2*n:]
			for i := 0; i < 2*n; i += 2 {
				key, ok := pairs[i].(Str)
				if !ok {
					err = errors.NewRuntimeError(errors.TypeCoercionFailure, ipc,
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
			s, n32 := code[w], code[w+1]
			w += 2
			n := int(n32)
			pairs := r.stack[len(r.stack)-2*n:]
			st := &Struct{TypeName: r.Module.Strings.Lookup(s)}
			for i := 0; i < 2*n; i += 2 {
				st.Names = append(st.Names, pairs[i].(Str).S)
				st.Values = append(st.Values, pairs[i+1])
			}
			r.stack = r.stack[:len(r.stack)-2*n]
			err = r.push(st)
		case ir.OpGetField:
			obj := r.pop()
			var v Value
			v, err = r.getField(obj, r.Module.Strings.Lookup(code[w]))
			w++
			if err == nil {
				err = r.push(v)
			}
		case ir.OpSetField:
			name := r.Module.Strings.Lookup(code[w])
			w++
			v := r.pop()
			obj := r.pop()
			if st, ok := obj.(*Struct); ok {
				if !st.SetField(name, v) {
					err = errors.NewRuntimeError(errors.KeyNotFound, ipc,
						"struct %s has no field %q", st.TypeName, name)
				}
			} else if m, ok := obj.(*Map); ok {
				m.Set(name, v)
			} else {
				err = errors.NewRuntimeError(errors.TypeCoercionFailure, ipc,
					"cannot set field on %s", TypeTag(obj))
			}
		case ir.OpEnumNew:
			s, hasPayload := code[w], code[w+1]
			w += 2
			e := &Enum{TypeName: r.Module.Strings.Lookup(s)}
			if hasPayload == 1 {
				e.Payload = r.pop()
				e.HasPayload = true
			}
			e.Variant = r.pop().(Str).S
			err = r.push(e)
		case ir.OpEnumMatch:
			v := r.pop()
			e, ok := v.(*Enum)
			err = r.push(ok && e.Variant == r.Module.Strings.Lookup(code[w]))
			w++

		case ir.OpPrint:
			_, _ = io.WriteString(r.Stdout, Display(r.pop()))
		case ir.OpPrintLn:
			_, _ = io.WriteString(r.Stdout, Display(r.pop())+"\n")
		case ir.OpReadInput:
			if code[w] == 1 {
				_, _ = io.WriteString(r.Stdout, Display(r.pop()))
			}
			w++
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
				handlerPC:  int(code[w]),
				stackDepth: len(r.stack),
			})
			w++
		case ir.OpClearTryCatch:
			if len(tries) > 0 {
				tries = tries[:len(tries)-1]
			}
		case ir.OpThrowException:
			thrown := r.pop()
			err = &errors.RuntimeError{
				Kind:    errors.UnhandledThrow,
				Message: Display(thrown),
				Offset:  ipc,
				Value:   thrown,
			}

		case ir.OpRangeExcl, ir.OpRangeIncl:
			b := r.pop()
			a := r.pop()
			var v Value
			v, err = makeRange(a, b, op == ir.OpRangeIncl)
			if err == nil {
				err = r.push(v)
			}
		}

		if err != nil {
			nextW, nextIPC, fatal := raise(err)
			if fatal != nil {
				return nil, fatal
			}
			w, ipc = nextW, nextIPC
			continue
		}
		ipc++
	}
	r.TruncateStack(base)
	return nil, nil
}

func intCompare(op ir.Op, a, b int64) bool {
	switch op {
	case ir.OpLt:
		return a < b
	case ir.OpLe:
		return a <= b
	case ir.OpGt:
		return a > b
	case ir.OpGe:
		return a >= b
	}
	return false
}
