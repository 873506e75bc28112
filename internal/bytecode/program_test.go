// internal/bytecode/program_test.go
package bytecode

import (
	"testing"

	"rzn/internal/ir"
)

func TestEncodeOffsetsMatchOperandWidths(t *testing.T) {
	f := &ir.Function{
		Name:    "f",
		MaxSlot: 1,
		Code: []ir.Instr{
			{Op: ir.OpPushInt, A: 42},
			{Op: ir.OpStoreVar, A: 0},
			{Op: ir.OpLabel, A: 0},
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpPushInt, A: 1},
			{Op: ir.OpSub},
			{Op: ir.OpDup},
			{Op: ir.OpStoreVar, A: 0},
			{Op: ir.OpPushInt, A: 0},
			{Op: ir.OpGt},
			{Op: ir.OpJumpIfTrue, A: 0},
			{Op: ir.OpPushNull},
			{Op: ir.OpReturn},
		},
	}
	p := Encode(f)
	for i, in := range f.Code {
		wordAt := p.Offsets[i]
		if ir.Op(p.Code[wordAt]) != in.Op {
			t.Fatalf("instruction %d: opcode word mismatch", i)
		}
		width := 1 + OperandWords(in.Op)
		if p.Offsets[i+1]-wordAt != width {
			t.Fatalf("instruction %d (%s): width %d, want %d",
				i, in.Op, p.Offsets[i+1]-wordAt, width)
		}
	}
}

func TestEncodePoolsDeduplicate(t *testing.T) {
	f := &ir.Function{
		Name: "f",
		Code: []ir.Instr{
			{Op: ir.OpPushInt, A: 7},
			{Op: ir.OpPushInt, A: 7},
			{Op: ir.OpPushInt, A: 9},
			{Op: ir.OpPushFloat, F: 1.5},
			{Op: ir.OpPushFloat, F: 1.5},
			{Op: ir.OpReturn},
		},
	}
	p := Encode(f)
	if len(p.Ints) != 2 {
		t.Fatalf("int pool = %v, want two entries", p.Ints)
	}
	if len(p.Floats) != 1 {
		t.Fatalf("float pool = %v, want one entry", p.Floats)
	}
	if p.Code[1] != p.Code[3] {
		t.Fatal("identical int constants must share a pool slot")
	}
}

func TestEncodeResolvesJumpTargets(t *testing.T) {
	f := &ir.Function{
		Name: "f",
		Code: []ir.Instr{
			{Op: ir.OpPushBool, A: 1},
			{Op: ir.OpJumpIfFalse, A: 3},
			{Op: ir.OpLabel, A: 3},
			{Op: ir.OpPushNull},
			{Op: ir.OpReturn},
		},
	}
	p := Encode(f)
	// The jump operand stores the IR instruction index of the label.
	jumpWord := p.Offsets[1]
	if p.Code[jumpWord+1] != 2 {
		t.Fatalf("jump target = %d, want instruction index 2", p.Code[jumpWord+1])
	}
}
