// internal/vm/vm_benchmark_test.go
package vm

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"rzn/internal/bytecode"
	"rzn/internal/ir"
	"rzn/internal/jit"
)

// countdown builds a tight integer loop: n decremented to zero.
func countdown() *ir.Function {
	return &ir.Function{
		Name:    "countdown",
		Arity:   1,
		MaxSlot: 0,
		Code: []ir.Instr{
			{Op: ir.OpLabel, A: 0},
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpPushInt, A: 1},
			{Op: ir.OpSub},
			{Op: ir.OpStoreVar, A: 0},
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpPushInt, A: 0},
			{Op: ir.OpGt},
			{Op: ir.OpJumpIfTrue, A: 0},
			{Op: ir.OpLoadVar, A: 0},
			{Op: ir.OpReturn},
		},
	}
}

func benchModule(f *ir.Function) *ir.Module {
	m := ir.NewModule()
	m.AddFunction(f)
	return m
}

func BenchmarkRuntimeTier(b *testing.B) {
	f := countdown()
	r := NewRuntime(benchModule(f))
	r.Stdout = io.Discard
	r.Stdin = bufio.NewReader(strings.NewReader(""))
	args := []Value{int64(1000)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.RunFunction(f, args); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBytecodeTier(b *testing.B) {
	f := countdown()
	r := NewRuntime(benchModule(f))
	r.Stdout = io.Discard
	prog := bytecode.Encode(f)
	args := []Value{int64(1000)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.RunBytecode(prog, args); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNativeTier(b *testing.B) {
	f := countdown()
	code := jit.Compile(f)
	if code == nil {
		b.Fatal("countdown must be native-eligible")
	}
	args := []int64{1000}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := code.Run(args); err != nil {
			b.Fatal(err)
		}
	}
}
