// internal/jit/jit_test.go
package jit

import (
	"testing"

	"rzn/internal/errors"
	"rzn/internal/ir"
)

func TestCompileStraightLineArithmetic(t *testing.T) {
	f := &ir.Function{
		Name:    "calc",
		Arity:   2,
		MaxSlot: 1,
		Code: []ir.Instr{
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpLoadVar, A: 1},
			{Op: ir.OpMul},
			{Op: ir.OpPushInt, A: 7},
			{Op: ir.OpAdd},
			{Op: ir.OpReturn},
		},
	}
	code := Compile(f)
	if code == nil {
		t.Fatal("whitelisted function must compile")
	}
	result, ok, err := code.Run([]int64{6, 7})
	if err != nil || !ok {
		t.Fatalf("run: %v, ok=%v", err, ok)
	}
	if result != 49 {
		t.Fatalf("result = %d, want 49", result)
	}
	if code.ResultIsBool() {
		t.Fatal("result kind must be int")
	}
}

func TestCompileLoop(t *testing.T) {
	// sum 0..n-1: slots: 0=n, 1=i, 2=acc
	f := &ir.Function{
		Name:    "sum",
		Arity:   1,
		MaxSlot: 2,
		Code: []ir.Instr{
			{Op: ir.OpPushInt, A: 0},
			{Op: ir.OpStoreVar, A: 1},
			{Op: ir.OpPushInt, A: 0},
			{Op: ir.OpStoreVar, A: 2},
			{Op: ir.OpLabel, A: 0},
			{Op: ir.OpLoadVar, A: 1},
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpLt},
			{Op: ir.OpJumpIfFalse, A: 1},
			{Op: ir.OpLoadVar, A: 2},
			{Op: ir.OpLoadVar, A: 1},
			{Op: ir.OpAdd},
			{Op: ir.OpStoreVar, A: 2},
			{Op: ir.OpLoadVar, A: 1},
			{Op: ir.OpPushInt, A: 1},
			{Op: ir.OpAdd},
			{Op: ir.OpStoreVar, A: 1},
			{Op: ir.OpJump, A: 0},
			{Op: ir.OpLabel, A: 1},
			{Op: ir.OpLoadVar, A: 2},
			{Op: ir.OpReturn},
		},
	}
	code := Compile(f)
	if code == nil {
		t.Fatal("loop must compile")
	}
	result, ok, err := code.Run([]int64{10})
	if err != nil || !ok {
		t.Fatalf("run: %v ok=%v", err, ok)
	}
	if result != 45 {
		t.Fatalf("result = %d, want 45", result)
	}
}

func TestCompileRejectsNonWhitelisted(t *testing.T) {
	f := &ir.Function{
		Name: "printer",
		Code: []ir.Instr{
			{Op: ir.OpPushInt, A: 1},
			{Op: ir.OpPrint},
			{Op: ir.OpReturn},
		},
	}
	if Compile(f) != nil {
		t.Fatal("Print must demote the function")
	}
}

func TestCompileRejectsKindConfusion(t *testing.T) {
	// Adding a bool to an int must fail static typing.
	f := &ir.Function{
		Name: "confused",
		Code: []ir.Instr{
			{Op: ir.OpPushInt, A: 1},
			{Op: ir.OpPushBool, A: 1},
			{Op: ir.OpAdd},
			{Op: ir.OpReturn},
		},
	}
	if Compile(f) != nil {
		t.Fatal("kind confusion must be rejected")
	}
}

func TestDivisionByZero(t *testing.T) {
	f := &ir.Function{
		Name:    "div",
		Arity:   2,
		MaxSlot: 1,
		Code: []ir.Instr{
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpLoadVar, A: 1},
			{Op: ir.OpDiv},
			{Op: ir.OpReturn},
		},
	}
	code := Compile(f)
	if code == nil {
		t.Fatal("compile failed")
	}
	_, _, err := code.Run([]int64{1, 0})
	if err == nil || err.Kind != errors.DivisionByZero {
		t.Fatalf("err = %v, want DivisionByZero", err)
	}
}

func TestUninitializedSlot(t *testing.T) {
	f := &ir.Function{
		Name:    "uninit",
		Arity:   0,
		MaxSlot: 0,
		Code: []ir.Instr{
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpReturn},
		},
	}
	code := Compile(f)
	if code == nil {
		t.Fatal("compile failed")
	}
	_, _, err := code.Run(nil)
	if err == nil || err.Kind != errors.UninitializedVariable {
		t.Fatalf("err = %v, want UninitializedVariable", err)
	}
}

func TestBoolResult(t *testing.T) {
	f := &ir.Function{
		Name:    "isneg",
		Arity:   1,
		MaxSlot: 0,
		Code: []ir.Instr{
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpPushInt, A: 0},
			{Op: ir.OpLt},
			{Op: ir.OpReturn},
		},
	}
	code := Compile(f)
	if code == nil {
		t.Fatal("compile failed")
	}
	if !code.ResultIsBool() {
		t.Fatal("comparison result must be tagged bool")
	}
	result, ok, err := code.Run([]int64{-5})
	if err != nil || !ok {
		t.Fatalf("run: %v", err)
	}
	if result != 1 {
		t.Fatalf("result = %d, want 1", result)
	}
}
