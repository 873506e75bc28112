// internal/bytecode/program.go
package bytecode

import (
	"math"

	"rzn/internal/ir"
)

// Program is one function re-encoded as a dense uint32 stream with
// auxiliary constant pools. Offsets maps IR instruction indices to word
// positions so jumps resolve in constant time.
type Program struct {
	Fn      *ir.Function
	Code    []uint32
	Offsets []int // instruction index -> word index
	Ints    []int64
	Floats  []float64
}

// OperandWords returns the number of operand words the encoder emits after
// the opcode word.
func OperandWords(op ir.Op) int {
	switch op {
	case ir.OpPushInt, ir.OpPushFloat, ir.OpPushBool,
		ir.OpLoadVar, ir.OpStoreVar, ir.OpLoadGlobal, ir.OpStoreGlobal,
		ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue, ir.OpSetupTryCatch,
		ir.OpStringConcat, ir.OpCreateArray, ir.OpCreateMap, ir.OpReadInput,
		ir.OpGetField, ir.OpSetField, ir.OpGetKey, ir.OpSetKey, ir.OpEnumMatch:
		return 1
	case ir.OpPushStr, ir.OpCall, ir.OpMethodCall, ir.OpStructNew,
		ir.OpEnumNew, ir.OpDefineFunction:
		return 2
	}
	return 0
}

// Encode lowers a function's IR into the bytecode form. Wide immediates go
// through the int and float pools; jump targets become IR instruction
// indices resolved against the label table.
func Encode(f *ir.Function) *Program {
	p := &Program{Fn: f, Offsets: make([]int, len(f.Code)+1)}
	labels := f.Labels()

	intPool := make(map[int64]uint32)
	floatPool := make(map[uint64]uint32)
	internInt := func(v int64) uint32 {
		if id, ok := intPool[v]; ok {
			return id
		}
		id := uint32(len(p.Ints))
		p.Ints = append(p.Ints, v)
		intPool[v] = id
		return id
	}
	internFloat := func(v float64) uint32 {
		bits := floatBits(v)
		if id, ok := floatPool[bits]; ok {
			return id
		}
		id := uint32(len(p.Floats))
		p.Floats = append(p.Floats, v)
		floatPool[bits] = id
		return id
	}

	for i, in := range f.Code {
		p.Offsets[i] = len(p.Code)
		p.Code = append(p.Code, uint32(in.Op))
		switch in.Op {
		case ir.OpPushInt:
			p.Code = append(p.Code, internInt(in.A))
		case ir.OpPushFloat:
			p.Code = append(p.Code, internFloat(in.F))
		case ir.OpPushBool:
			p.Code = append(p.Code, uint32(in.A))
		case ir.OpPushStr:
			p.Code = append(p.Code, in.S, uint32(in.B))
		case ir.OpLoadVar, ir.OpStoreVar:
			p.Code = append(p.Code, uint32(in.A))
		case ir.OpLoadGlobal, ir.OpStoreGlobal, ir.OpGetField, ir.OpSetField,
			ir.OpGetKey, ir.OpSetKey, ir.OpEnumMatch:
			p.Code = append(p.Code, in.S)
		case ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue, ir.OpSetupTryCatch:
			p.Code = append(p.Code, uint32(labels[in.A]))
		case ir.OpStringConcat, ir.OpCreateArray, ir.OpCreateMap, ir.OpReadInput:
			p.Code = append(p.Code, uint32(in.A))
		case ir.OpCall:
			p.Code = append(p.Code, in.S, uint32(in.B))
		case ir.OpMethodCall, ir.OpStructNew, ir.OpEnumNew, ir.OpDefineFunction:
			p.Code = append(p.Code, in.S, uint32(in.A))
		}
	}
	p.Offsets[len(f.Code)] = len(p.Code)
	return p
}

// floatBits keys the float pool; NaNs collapse to one slot since their
// payload is not observable.
func floatBits(v float64) uint64 {
	if math.IsNaN(v) {
		return math.Float64bits(math.NaN())
	}
	return math.Float64bits(v)
}
