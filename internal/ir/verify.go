// internal/ir/verify.go
package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// StackEffect returns how many values the instruction pops and pushes.
// Control transfers report the effect of falling through; Return, Exit and
// ThrowException end the flow and are handled by the verifier directly.
func StackEffect(in Instr) (pops, pushes int) {
	switch in.Op {
	case OpPushInt, OpPushFloat, OpPushStr, OpPushBool, OpPushNull, OpLoadVar, OpLoadGlobal:
		return 0, 1
	case OpPop, OpStoreVar, OpStoreGlobal, OpPrint, OpPrintLn, OpSleep, OpExit,
		OpJumpIfFalse, OpJumpIfTrue, OpThrowException:
		return 1, 0
	case OpDup:
		return 1, 2
	case OpSwap:
		return 2, 2
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpFloorDiv,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpAnd, OpOr,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr,
		OpGetIndex, OpGetKey, OpRangeExcl, OpRangeIncl:
		return 2, 1
	case OpNeg, OpNot, OpBNot, OpStringLen, OpLength, OpGetField, OpEnumMatch,
		OpTypeof, OpToInt, OpToFloat, OpToStr, OpToBool:
		return 1, 1
	case OpStringConcat, OpCreateArray:
		return int(in.A), 1
	case OpCreateMap:
		return 2 * int(in.A), 1
	case OpStructNew:
		return 2 * int(in.A), 1
	case OpEnumNew:
		return 1 + int(in.A), 1
	case OpCall:
		return int(in.B), 1
	case OpMethodCall:
		return int(in.A), 1
	case OpReadInput:
		return int(in.A), 1
	case OpSetIndex, OpSetKey:
		return 3, 0
	case OpSetField:
		return 2, 0
	case OpJump, OpLabel, OpReturn, OpDefineFunction, OpSetupTryCatch, OpClearTryCatch:
		return 0, 0
	}
	return 0, 0
}

// Verify checks the function-level IR invariants: every jump target is a
// label defined exactly once in the same function, and the operand stack
// depth at each label is consistent across all incoming edges. A failure is
// a compiler bug, not a user error.
func Verify(f *Function) error {
	labels := make(map[int64]int)
	for i, in := range f.Code {
		if in.Op == OpLabel {
			if prev, dup := labels[in.A]; dup {
				return errors.Errorf("function %s: label L%d defined at %d and %d", f.Name, in.A, prev, i)
			}
			labels[in.A] = i
		}
	}
	for i, in := range f.Code {
		switch in.Op {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpSetupTryCatch:
			if _, ok := labels[in.A]; !ok {
				return errors.Errorf("function %s: instruction %d references undefined label L%d", f.Name, i, in.A)
			}
		}
	}

	// Abstract interpretation of stack depth. depthAt[i] == -1 means the
	// instruction was never reached with a known depth.
	depthAt := make([]int, len(f.Code))
	for i := range depthAt {
		depthAt[i] = -1
	}
	type work struct {
		pc    int
		depth int
	}
	queue := []work{{0, 0}}
	push := func(pc, depth int) error {
		if pc >= len(f.Code) {
			return nil
		}
		if depthAt[pc] == -1 {
			depthAt[pc] = depth
			queue = append(queue, work{pc, depth})
			return nil
		}
		if depthAt[pc] != depth {
			return errors.Errorf("function %s: inconsistent stack depth at pc %d (%d vs %d)",
				f.Name, pc, depthAt[pc], depth)
		}
		return nil
	}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		pc, depth := w.pc, w.depth
		for pc < len(f.Code) {
			in := f.Code[pc]
			pops, pushes := StackEffect(in)
			if depth < pops {
				return errors.Errorf("function %s: stack underflow at pc %d (%s: depth %d, pops %d)",
					f.Name, pc, in, depth, pops)
			}
			next := depth - pops + pushes
			switch in.Op {
			case OpReturn, OpExit:
				pc = len(f.Code) // flow ends
				continue
			case OpThrowException:
				pc = len(f.Code)
				continue
			case OpJump:
				if err := push(labels[in.A], next); err != nil {
					return err
				}
				pc = len(f.Code)
				continue
			case OpJumpIfFalse, OpJumpIfTrue:
				if err := push(labels[in.A], next); err != nil {
					return err
				}
			case OpSetupTryCatch:
				// The handler entry sees the depth at setup plus the caught
				// value pushed during unwinding.
				if err := push(labels[in.A], depth+1); err != nil {
					return err
				}
			}
			depth = next
			pc++
			if pc < len(f.Code) {
				if depthAt[pc] != -1 {
					if depthAt[pc] != depth {
						return errors.Errorf("function %s: inconsistent stack depth at pc %d (%d vs %d)",
							f.Name, pc, depthAt[pc], depth)
					}
					break // already explored from here
				}
				depthAt[pc] = depth
			}
		}
	}
	return nil
}

// VerifyModule verifies every function in the module.
func VerifyModule(m *Module) error {
	for _, f := range m.Funcs {
		if err := Verify(f); err != nil {
			return errors.Wrap(err, "ir verification failed")
		}
	}
	return nil
}

// MustVerify panics on an invariant violation; used by the optimizer, where
// a broken rewrite is unrecoverable.
func MustVerify(f *Function) {
	if err := Verify(f); err != nil {
		panic(fmt.Sprintf("internal invariant violated: %v", err))
	}
}
