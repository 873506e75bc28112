// internal/jit/jit.go
package jit

import (
	"rzn/internal/errors"
	"rzn/internal/ir"
)

// The native tier translates whitelisted functions into direct-threaded
// code: one Go closure per instruction, pre-bound to its operands, chained
// by index. Dispatch costs one indirect call per instruction with no
// operand decoding, and the integer register file is a flat []int64.
//
// The whitelist covers integer arithmetic, comparisons, bitwise and shift
// operations, variable load/store, integer and boolean constants, and
// intra-function control flow. Anything else demotes the function at
// selection time.

// kind is the static type of a stack slot; the compiler proves every slot
// is int or bool before accepting a function.
type kind uint8

const (
	kindInt kind = iota
	kindBool
)

// state is one native activation.
type state struct {
	stack []int64
	slots []int64
	inits []bool
	err   *errors.RuntimeError
}

// op executes one threaded instruction and returns the next instruction
// index, or -1 to halt.
type op func(s *state) int

// Code is a compiled native function.
type Code struct {
	fn         *ir.Function
	ops        []op
	resultBool bool
}

// Available reports whether the native tier can be used. The threaded
// generator is pure Go, so it is always on; a build without it would make
// the selector skip straight to bytecode.
func Available() bool { return true }

// Whitelisted reports whether a single opcode is eligible for native
// compilation.
func Whitelisted(o ir.Op) bool {
	switch o {
	case ir.OpPushInt, ir.OpPushBool, ir.OpPop, ir.OpDup, ir.OpSwap,
		ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpFloorDiv, ir.OpNeg,
		ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe,
		ir.OpAnd, ir.OpOr, ir.OpNot,
		ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpBNot, ir.OpShl, ir.OpShr,
		ir.OpLoadVar, ir.OpStoreVar,
		ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue, ir.OpLabel,
		ir.OpReturn:
		return true
	}
	return false
}

// Compile translates a function into threaded code. It returns nil when
// the function uses a non-whitelisted opcode or when static typing of the
// stack cannot prove every operation operates on the right kinds.
func Compile(f *ir.Function) *Code {
	for _, in := range f.Code {
		if !Whitelisted(in.Op) {
			return nil
		}
	}
	_, resultBool, ok := typecheck(f)
	if !ok {
		return nil
	}

	labels := f.Labels()
	ops := make([]op, len(f.Code))
	for i, in := range f.Code {
		ops[i] = compileInstr(i, in, labels)
		if ops[i] == nil {
			return nil
		}
	}
	return &Code{fn: f, ops: ops, resultBool: resultBool}
}

// typecheck abstractly interprets the stack to prove kind safety. It
// mirrors the structure of the IR verifier but tracks int/bool kinds
// instead of depths.
func typecheck(f *ir.Function) (map[int][]kind, bool, bool) {
	labels := f.Labels()
	seen := make(map[int][]kind)
	resultBool := false
	resultSet := false

	type work struct {
		pc    int
		stack []kind
	}
	queue := []work{{0, nil}}
	schedule := func(pc int, stack []kind) bool {
		if prev, ok := seen[pc]; ok {
			if len(prev) != len(stack) {
				return false
			}
			for i := range prev {
				if prev[i] != stack[i] {
					return false
				}
			}
			return true
		}
		seen[pc] = append([]kind(nil), stack...)
		queue = append(queue, work{pc, append([]kind(nil), stack...)})
		return true
	}

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		pc, stack := w.pc, append([]kind(nil), w.stack...)

		for pc < len(f.Code) {
			in := f.Code[pc]
			pop := func(want kind) bool {
				if len(stack) == 0 || stack[len(stack)-1] != want {
					return false
				}
				stack = stack[:len(stack)-1]
				return true
			}
			popAny := func() (kind, bool) {
				if len(stack) == 0 {
					return 0, false
				}
				k := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				return k, true
			}
			push := func(k kind) { stack = append(stack, k) }

			switch in.Op {
			case ir.OpPushInt:
				push(kindInt)
			case ir.OpPushBool:
				push(kindBool)
			case ir.OpPop:
				if _, ok := popAny(); !ok {
					return nil, false, false
				}
			case ir.OpDup:
				if len(stack) == 0 {
					return nil, false, false
				}
				push(stack[len(stack)-1])
			case ir.OpSwap:
				if len(stack) < 2 {
					return nil, false, false
				}
				n := len(stack)
				stack[n-1], stack[n-2] = stack[n-2], stack[n-1]
			case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpFloorDiv,
				ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr:
				if !pop(kindInt) || !pop(kindInt) {
					return nil, false, false
				}
				push(kindInt)
			case ir.OpNeg, ir.OpBNot:
				if !pop(kindInt) {
					return nil, false, false
				}
				push(kindInt)
			case ir.OpEq, ir.OpNe:
				a, ok1 := popAny()
				b, ok2 := popAny()
				if !ok1 || !ok2 || a != b {
					return nil, false, false
				}
				push(kindBool)
			case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
				if !pop(kindInt) || !pop(kindInt) {
					return nil, false, false
				}
				push(kindBool)
			case ir.OpAnd, ir.OpOr:
				if !pop(kindBool) || !pop(kindBool) {
					return nil, false, false
				}
				push(kindBool)
			case ir.OpNot:
				if !pop(kindBool) {
					return nil, false, false
				}
				push(kindBool)
			case ir.OpLoadVar:
				push(kindInt) // slots are int-only in this tier
			case ir.OpStoreVar:
				if !pop(kindInt) {
					return nil, false, false
				}
			case ir.OpJump:
				if !schedule(labels[in.A], stack) {
					return nil, false, false
				}
				pc = len(f.Code)
				continue
			case ir.OpJumpIfFalse, ir.OpJumpIfTrue:
				if !pop(kindBool) {
					return nil, false, false
				}
				if !schedule(labels[in.A], stack) {
					return nil, false, false
				}
			case ir.OpLabel:
				// no effect
			case ir.OpReturn:
				if len(stack) == 0 {
					return nil, false, false
				}
				isBool := stack[len(stack)-1] == kindBool
				if resultSet && isBool != resultBool {
					return nil, false, false
				}
				resultBool = isBool
				resultSet = true
				pc = len(f.Code)
				continue
			default:
				return nil, false, false
			}
			pc++
			if pc < len(f.Code) {
				if prev, ok := seen[pc]; ok {
					if len(prev) != len(stack) {
						return nil, false, false
					}
					break
				}
				seen[pc] = append([]kind(nil), stack...)
			}
		}
	}
	return seen, resultBool, true
}

func compileInstr(pc int, in ir.Instr, labels map[int64]int) op {
	next := pc + 1
	switch in.Op {
	case ir.OpPushInt:
		v := in.A
		return func(s *state) int {
			s.stack = append(s.stack, v)
			return next
		}
	case ir.OpPushBool:
		v := in.A
		return func(s *state) int {
			s.stack = append(s.stack, v)
			return next
		}
	case ir.OpPop:
		return func(s *state) int {
			s.stack = s.stack[:len(s.stack)-1]
			return next
		}
	case ir.OpDup:
		return func(s *state) int {
			s.stack = append(s.stack, s.stack[len(s.stack)-1])
			return next
		}
	case ir.OpSwap:
		return func(s *state) int {
			n := len(s.stack)
			s.stack[n-1], s.stack[n-2] = s.stack[n-2], s.stack[n-1]
			return next
		}
	case ir.OpAdd:
		return binInt(next, func(a, b int64) int64 { return a + b })
	case ir.OpSub:
		return binInt(next, func(a, b int64) int64 { return a - b })
	case ir.OpMul:
		return binInt(next, func(a, b int64) int64 { return a * b })
	case ir.OpDiv:
		return func(s *state) int {
			n := len(s.stack)
			b := s.stack[n-1]
			if b == 0 {
				s.err = errors.NewRuntimeError(errors.DivisionByZero, pc, "division by zero")
				return -1
			}
			s.stack[n-2] /= b
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpMod:
		return func(s *state) int {
			n := len(s.stack)
			b := s.stack[n-1]
			if b == 0 {
				s.err = errors.NewRuntimeError(errors.ModuloByZero, pc, "modulo by zero")
				return -1
			}
			s.stack[n-2] %= b
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpFloorDiv:
		return func(s *state) int {
			n := len(s.stack)
			a, b := s.stack[n-2], s.stack[n-1]
			if b == 0 {
				s.err = errors.NewRuntimeError(errors.DivisionByZero, pc, "division by zero")
				return -1
			}
			q := a / b
			if a%b != 0 && (a < 0) != (b < 0) {
				q--
			}
			s.stack[n-2] = q
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpNeg:
		return func(s *state) int {
			s.stack[len(s.stack)-1] = -s.stack[len(s.stack)-1]
			return next
		}
	case ir.OpEq:
		return binCmp(next, func(a, b int64) bool { return a == b })
	case ir.OpNe:
		return binCmp(next, func(a, b int64) bool { return a != b })
	case ir.OpLt:
		return binCmp(next, func(a, b int64) bool { return a < b })
	case ir.OpLe:
		return binCmp(next, func(a, b int64) bool { return a <= b })
	case ir.OpGt:
		return binCmp(next, func(a, b int64) bool { return a > b })
	case ir.OpGe:
		return binCmp(next, func(a, b int64) bool { return a >= b })
	case ir.OpAnd:
		return binInt(next, func(a, b int64) int64 { return a & b & 1 })
	case ir.OpOr:
		return binInt(next, func(a, b int64) int64 { return (a | b) & 1 })
	case ir.OpNot:
		return func(s *state) int {
			s.stack[len(s.stack)-1] ^= 1
			return next
		}
	case ir.OpBAnd:
		return binInt(next, func(a, b int64) int64 { return a & b })
	case ir.OpBOr:
		return binInt(next, func(a, b int64) int64 { return a | b })
	case ir.OpBXor:
		return binInt(next, func(a, b int64) int64 { return a ^ b })
	case ir.OpBNot:
		return func(s *state) int {
			s.stack[len(s.stack)-1] = ^s.stack[len(s.stack)-1]
			return next
		}
	case ir.OpShl:
		return func(s *state) int {
			n := len(s.stack)
			b := s.stack[n-1]
			if b < 0 || b > 63 {
				s.err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
					"shift count %d out of range", b)
				return -1
			}
			s.stack[n-2] <<= uint(b)
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpShr:
		return func(s *state) int {
			n := len(s.stack)
			b := s.stack[n-1]
			if b < 0 || b > 63 {
				s.err = errors.NewRuntimeError(errors.TypeCoercionFailure, pc,
					"shift count %d out of range", b)
				return -1
			}
			s.stack[n-2] >>= uint(b)
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpLoadVar:
		slot := int(in.A)
		return func(s *state) int {
			if !s.inits[slot] {
				s.err = errors.NewRuntimeError(errors.UninitializedVariable, pc,
					"variable slot %d read before assignment", slot)
				return -1
			}
			s.stack = append(s.stack, s.slots[slot])
			return next
		}
	case ir.OpStoreVar:
		slot := int(in.A)
		return func(s *state) int {
			n := len(s.stack)
			s.slots[slot] = s.stack[n-1]
			s.inits[slot] = true
			s.stack = s.stack[:n-1]
			return next
		}
	case ir.OpJump:
		target := labels[in.A]
		return func(s *state) int { return target }
	case ir.OpJumpIfFalse:
		target := labels[in.A]
		return func(s *state) int {
			n := len(s.stack)
			v := s.stack[n-1]
			s.stack = s.stack[:n-1]
			if v == 0 {
				return target
			}
			return next
		}
	case ir.OpJumpIfTrue:
		target := labels[in.A]
		return func(s *state) int {
			n := len(s.stack)
			v := s.stack[n-1]
			s.stack = s.stack[:n-1]
			if v != 0 {
				return target
			}
			return next
		}
	case ir.OpLabel:
		return func(s *state) int { return next }
	case ir.OpReturn:
		return func(s *state) int { return -1 }
	}
	return nil
}

func binInt(next int, f func(a, b int64) int64) op {
	return func(s *state) int {
		n := len(s.stack)
		s.stack[n-2] = f(s.stack[n-2], s.stack[n-1])
		s.stack = s.stack[:n-1]
		return next
	}
}

func binCmp(next int, f func(a, b int64) bool) op {
	return func(s *state) int {
		n := len(s.stack)
		if f(s.stack[n-2], s.stack[n-1]) {
			s.stack[n-2] = 1
		} else {
			s.stack[n-2] = 0
		}
		s.stack = s.stack[:n-1]
		return next
	}
}

// Run executes the compiled function with int64 arguments bound to the
// leading slots. ok is false when the run raised an error or left no value
// on the stack.
func (c *Code) Run(args []int64) (int64, bool, *errors.RuntimeError) {
	s := &state{
		stack: make([]int64, 0, 16),
		slots: make([]int64, c.fn.MaxSlot+1),
		inits: make([]bool, c.fn.MaxSlot+1),
	}
	for i, a := range args {
		if i < len(s.slots) {
			s.slots[i] = a
			s.inits[i] = true
		}
	}
	pc := 0
	for pc >= 0 && pc < len(c.ops) {
		pc = c.ops[pc](s)
	}
	if s.err != nil {
		return 0, false, s.err
	}
	if len(s.stack) == 0 {
		return 0, false, nil
	}
	return s.stack[len(s.stack)-1], true, nil
}

// ResultIsBool reports whether the function's return value is a boolean.
func (c *Code) ResultIsBool() bool { return c.resultBool }
