// internal/optimizer/passes.go
package optimizer

import (
	"math"

	"rzn/internal/ir"
)

// constVal is an immediate operand recovered from a push instruction.
type constVal struct {
	isInt   bool
	isFloat bool
	isBool  bool
	i       int64
	f       float64
	b       bool
}

func asConst(in ir.Instr) (constVal, bool) {
	switch in.Op {
	case ir.OpPushInt:
		return constVal{isInt: true, i: in.A}, true
	case ir.OpPushFloat:
		return constVal{isFloat: true, f: in.F}, true
	case ir.OpPushBool:
		return constVal{isBool: true, b: in.A != 0}, true
	}
	return constVal{}, false
}

func intInstr(v int64) ir.Instr   { return ir.Instr{Op: ir.OpPushInt, A: v} }
func floatInstr(v float64) ir.Instr { return ir.Instr{Op: ir.OpPushFloat, F: v} }
func boolInstr(v bool) ir.Instr {
	if v {
		return ir.Instr{Op: ir.OpPushBool, A: 1}
	}
	return ir.Instr{Op: ir.OpPushBool}
}

// constantFold evaluates operations whose operands are all immediate
// constants and whose result is defined for every input. Integer division
// and modulo by zero stay in the code so the runtime error survives; so
// does integer Pow with a negative exponent, which widens to float at
// runtime.
func constantFold(code []ir.Instr) ([]ir.Instr, bool) {
	changed := false
	for again := true; again; {
		again = false
		for i := 0; i+1 < len(code); i++ {
			// Unary fold: push; op.
			if folded, ok := foldUnary(code[i], code[i+1]); ok {
				code = splice(code, i, 2, folded)
				changed, again = true, true
				break
			}
			if i+2 >= len(code) {
				continue
			}
			a, okA := asConst(code[i])
			b, okB := asConst(code[i+1])
			if !okA || !okB {
				continue
			}
			if folded, ok := foldBinary(a, b, code[i+2].Op); ok {
				code = splice(code, i, 3, folded)
				changed, again = true, true
				break
			}
		}
	}
	return code, changed
}

func splice(code []ir.Instr, at, drop int, insert ir.Instr) []ir.Instr {
	out := make([]ir.Instr, 0, len(code)-drop+1)
	out = append(out, code[:at]...)
	out = append(out, insert)
	out = append(out, code[at+drop:]...)
	return out
}

func foldUnary(push, op ir.Instr) (ir.Instr, bool) {
	c, ok := asConst(push)
	if !ok {
		return ir.Instr{}, false
	}
	switch op.Op {
	case ir.OpNeg:
		if c.isInt {
			return intInstr(-c.i), true
		}
		if c.isFloat {
			return floatInstr(-c.f), true
		}
	case ir.OpNot:
		if c.isBool {
			return boolInstr(!c.b), true
		}
	case ir.OpBNot:
		if c.isInt {
			return intInstr(^c.i), true
		}
	}
	return ir.Instr{}, false
}

func foldBinary(a, b constVal, op ir.Op) (ir.Instr, bool) {
	// Logical and bitwise first; they are int/bool only.
	if a.isBool && b.isBool {
		switch op {
		case ir.OpAnd:
			return boolInstr(a.b && b.b), true
		case ir.OpOr:
			return boolInstr(a.b || b.b), true
		case ir.OpEq:
			return boolInstr(a.b == b.b), true
		case ir.OpNe:
			return boolInstr(a.b != b.b), true
		}
		return ir.Instr{}, false
	}
	if a.isInt && b.isInt {
		switch op {
		case ir.OpAdd:
			return intInstr(a.i + b.i), true
		case ir.OpSub:
			return intInstr(a.i - b.i), true
		case ir.OpMul:
			return intInstr(a.i * b.i), true
		case ir.OpDiv:
			if b.i == 0 {
				return ir.Instr{}, false // preserve the runtime error
			}
			return intInstr(a.i / b.i), true
		case ir.OpMod:
			if b.i == 0 {
				return ir.Instr{}, false
			}
			return intInstr(a.i % b.i), true
		case ir.OpFloorDiv:
			if b.i == 0 {
				return ir.Instr{}, false
			}
			q := a.i / b.i
			if a.i%b.i != 0 && (a.i < 0) != (b.i < 0) {
				q--
			}
			return intInstr(q), true
		case ir.OpPow:
			if b.i < 0 {
				return ir.Instr{}, false // widens to float at runtime
			}
			return intInstr(ipow(a.i, b.i)), true
		case ir.OpBAnd:
			return intInstr(a.i & b.i), true
		case ir.OpBOr:
			return intInstr(a.i | b.i), true
		case ir.OpBXor:
			return intInstr(a.i ^ b.i), true
		case ir.OpShl:
			if b.i < 0 || b.i > 63 {
				return ir.Instr{}, false
			}
			return intInstr(a.i << uint(b.i)), true
		case ir.OpShr:
			if b.i < 0 || b.i > 63 {
				return ir.Instr{}, false
			}
			return intInstr(a.i >> uint(b.i)), true
		case ir.OpEq:
			return boolInstr(a.i == b.i), true
		case ir.OpNe:
			return boolInstr(a.i != b.i), true
		case ir.OpLt:
			return boolInstr(a.i < b.i), true
		case ir.OpLe:
			return boolInstr(a.i <= b.i), true
		case ir.OpGt:
			return boolInstr(a.i > b.i), true
		case ir.OpGe:
			return boolInstr(a.i >= b.i), true
		}
		return ir.Instr{}, false
	}
	// Mixed numeric operands widen to float.
	if (a.isInt || a.isFloat) && (b.isInt || b.isFloat) {
		af, bf := a.f, b.f
		if a.isInt {
			af = float64(a.i)
		}
		if b.isInt {
			bf = float64(b.i)
		}
		switch op {
		case ir.OpAdd:
			return floatInstr(af + bf), true
		case ir.OpSub:
			return floatInstr(af - bf), true
		case ir.OpMul:
			return floatInstr(af * bf), true
		case ir.OpDiv:
			return floatInstr(af / bf), true
		case ir.OpPow:
			return floatInstr(math.Pow(af, bf)), true
		case ir.OpFloorDiv:
			return floatInstr(math.Floor(af / bf)), true
		case ir.OpEq:
			return boolInstr(af == bf), true
		case ir.OpNe:
			return boolInstr(af != bf), true
		case ir.OpLt:
			return boolInstr(af < bf), true
		case ir.OpLe:
			return boolInstr(af <= bf), true
		case ir.OpGt:
			return boolInstr(af > bf), true
		case ir.OpGe:
			return boolInstr(af >= bf), true
		}
	}
	return ir.Instr{}, false
}

func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// algebraicSimplify removes identity operations: x+0, x-0, x*1, x/1,
// x&&true, x||false, double negation. x*0 collapses only when the operand
// is a known numeric push, since a type error on a non-numeric operand is
// observable.
func algebraicSimplify(code []ir.Instr) ([]ir.Instr, bool) {
	changed := false
	for again := true; again; {
		again = false
		for i := 0; i+1 < len(code); i++ {
			in, next := code[i], code[i+1]
			drop2 := func() {
				code = append(code[:i], code[i+2:]...)
				changed, again = true, true
			}
			switch {
			case in.Op == ir.OpPushInt && in.A == 0 && (next.Op == ir.OpAdd || next.Op == ir.OpSub):
				drop2()
			case in.Op == ir.OpPushInt && in.A == 1 && (next.Op == ir.OpMul || next.Op == ir.OpDiv):
				drop2()
			case in.Op == ir.OpPushBool && in.A == 1 && next.Op == ir.OpAnd:
				drop2()
			case in.Op == ir.OpPushBool && in.A == 0 && next.Op == ir.OpOr:
				drop2()
			case in.Op == ir.OpNot && next.Op == ir.OpNot:
				drop2()
			case i > 0 && in.Op == ir.OpPushInt && in.A == 0 && next.Op == ir.OpMul &&
				numericProducer(code[i-1]):
				// drop the producer and the multiply, keep the zero
				out := make([]ir.Instr, 0, len(code)-2)
				out = append(out, code[:i-1]...)
				out = append(out, intInstr(0))
				out = append(out, code[i+2:]...)
				code = out
				changed, again = true, true
			}
			if again {
				break
			}
		}
	}
	return code, changed
}

// numericProducer reports whether the instruction pushes a value that is
// certainly numeric and side-effect free.
func numericProducer(in ir.Instr) bool {
	switch in.Op {
	case ir.OpPushInt, ir.OpPushFloat:
		return true
	}
	return false
}

// intProducer reports whether the instruction certainly pushes an int.
func intProducer(in ir.Instr) bool {
	switch in.Op {
	case ir.OpPushInt, ir.OpToInt, ir.OpLength, ir.OpStringLen:
		return true
	}
	return false
}

// strengthReduce replaces expensive operations with cheaper equivalents:
// x**2 becomes x*x, and for integer operands x*2 becomes x+x and division
// by a power of two becomes a shift.
func strengthReduce(code []ir.Instr) ([]ir.Instr, bool) {
	changed := false
	for again := true; again; {
		again = false
		for i := 0; i+1 < len(code); i++ {
			in, next := code[i], code[i+1]
			if in.Op != ir.OpPushInt {
				continue
			}
			replace := func(a, b ir.Instr) {
				code[i], code[i+1] = a, b
				changed, again = true, true
			}
			switch {
			case in.A == 2 && next.Op == ir.OpPow:
				replace(ir.Instr{Op: ir.OpDup}, ir.Instr{Op: ir.OpMul})
			case in.A == 2 && next.Op == ir.OpMul && i > 0 && intProducer(code[i-1]):
				replace(ir.Instr{Op: ir.OpDup}, ir.Instr{Op: ir.OpAdd})
			case next.Op == ir.OpDiv && in.A > 0 && in.A&(in.A-1) == 0 &&
				i > 0 && code[i-1].Op == ir.OpPushInt && code[i-1].A >= 0:
				n := int64(0)
				for v := in.A; v > 1; v >>= 1 {
					n++
				}
				replace(intInstr(n), ir.Instr{Op: ir.OpShr})
			}
			if again {
				break
			}
		}
	}
	return code, changed
}

// deadCodeEliminate removes instructions that can never execute and stores
// whose value is never read. Unreachable spans run from a Return, Jump, or
// Throw to the next Label. A dead StoreVar becomes a Pop so the stack stays
// balanced; peephole then deletes the pure producer.
func deadCodeEliminate(code []ir.Instr) ([]ir.Instr, bool) {
	changed := false
	// Unreachable code after an unconditional exit.
	out := code[:0:0]
	reachable := true
	for _, in := range code {
		if in.Op == ir.OpLabel {
			reachable = true
		}
		if reachable {
			out = append(out, in)
		} else {
			changed = true
		}
		switch in.Op {
		case ir.OpReturn, ir.OpJump, ir.OpThrowException, ir.OpExit:
			reachable = false
		}
	}
	code = out

	// Dead stores: a StoreVar whose slot is overwritten before any read,
	// with no intervening control flow to worry about.
	for i, in := range code {
		if in.Op != ir.OpStoreVar {
			continue
		}
		dead := false
		decided := false
	scan:
		for j := i + 1; j < len(code); j++ {
			switch code[j].Op {
			case ir.OpLoadVar:
				if code[j].A == in.A {
					decided = true
					break scan
				}
			case ir.OpStoreVar:
				if code[j].A == in.A {
					dead = true
					decided = true
					break scan
				}
			case ir.OpReturn:
				// Slots are per-activation; nothing reads them after the
				// frame returns.
				dead = true
				decided = true
				break scan
			case ir.OpLabel, ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue,
				ir.OpCall, ir.OpMethodCall, ir.OpSetupTryCatch,
				ir.OpThrowException:
				decided = true
				break scan
			}
		}
		if !decided {
			dead = true
		}
		if dead {
			code[i] = ir.Instr{Op: ir.OpPop}
			changed = true
		}
	}
	return code, changed
}

// peephole applies local window rewrites: dropping push/pop pairs, fusing
// negated jumps, and merging adjacent labels.
func peephole(code []ir.Instr) ([]ir.Instr, bool) {
	changed := false
	for again := true; again; {
		again = false
		for i := 0; i+1 < len(code); i++ {
			in, next := code[i], code[i+1]
			switch {
			case next.Op == ir.OpPop && purePush(in):
				code = append(code[:i], code[i+2:]...)
				changed, again = true, true
			case in.Op == ir.OpDup && next.Op == ir.OpPop:
				code = append(code[:i], code[i+2:]...)
				changed, again = true, true
			case in.Op == ir.OpStoreVar && next.Op == ir.OpLoadVar && in.A == next.A:
				// store x; load x  ==  dup; store x — and the store becomes
				// eliminable when nothing else reads the slot.
				code[i] = ir.Instr{Op: ir.OpDup}
				code[i+1] = ir.Instr{Op: ir.OpStoreVar, A: in.A}
				changed, again = true, true
			case in.Op == ir.OpNot && next.Op == ir.OpJumpIfFalse:
				code[i] = ir.Instr{Op: ir.OpJumpIfTrue, A: next.A}
				code = append(code[:i+1], code[i+2:]...)
				changed, again = true, true
			case in.Op == ir.OpNot && next.Op == ir.OpJumpIfTrue:
				code[i] = ir.Instr{Op: ir.OpJumpIfFalse, A: next.A}
				code = append(code[:i+1], code[i+2:]...)
				changed, again = true, true
			case in.Op == ir.OpLabel && next.Op == ir.OpLabel:
				// Rewire every jump aimed at the second label to the first.
				from, to := next.A, in.A
				for j := range code {
					switch code[j].Op {
					case ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue, ir.OpSetupTryCatch:
						if code[j].A == from {
							code[j].A = to
						}
					}
				}
				code = append(code[:i+1], code[i+2:]...)
				changed, again = true, true
			}
			if again {
				break
			}
		}
	}
	return code, changed
}

// purePush matches instructions that only push a value and cannot fail.
func purePush(in ir.Instr) bool {
	switch in.Op {
	case ir.OpPushInt, ir.OpPushFloat, ir.OpPushStr, ir.OpPushBool,
		ir.OpPushNull, ir.OpLoadVar:
		return true
	}
	return false
}
