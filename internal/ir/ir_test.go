// internal/ir/ir_test.go
package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVerifyAcceptsBalancedFunction(t *testing.T) {
	f := &Function{
		Name:    "ok",
		MaxSlot: 0,
		Code: []Instr{
			{Op: OpPushInt, A: 1},
			{Op: OpPushInt, A: 2},
			{Op: OpAdd},
			{Op: OpReturn},
		},
	}
	if err := Verify(f); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
}

func TestVerifyRejectsDuplicateLabel(t *testing.T) {
	f := &Function{
		Name: "dup",
		Code: []Instr{
			{Op: OpLabel, A: 1},
			{Op: OpLabel, A: 1},
			{Op: OpPushNull},
			{Op: OpReturn},
		},
	}
	if err := Verify(f); err == nil {
		t.Fatal("duplicate label must be rejected")
	}
}

func TestVerifyRejectsUndefinedJumpTarget(t *testing.T) {
	f := &Function{
		Name: "badjump",
		Code: []Instr{
			{Op: OpJump, A: 9},
			{Op: OpPushNull},
			{Op: OpReturn},
		},
	}
	if err := Verify(f); err == nil {
		t.Fatal("jump to an undefined label must be rejected")
	}
}

func TestVerifyRejectsInconsistentStackDepth(t *testing.T) {
	// One path reaches the label with depth 1, the other with depth 2.
	f := &Function{
		Name: "unbalanced",
		Code: []Instr{
			{Op: OpPushBool, A: 1},
			{Op: OpJumpIfFalse, A: 5},
			{Op: OpPushInt, A: 1},
			{Op: OpPushInt, A: 2},
			{Op: OpJump, A: 7},
			{Op: OpLabel, A: 5},
			{Op: OpPushInt, A: 3},
			{Op: OpLabel, A: 7},
			{Op: OpReturn},
		},
	}
	if err := Verify(f); err == nil {
		t.Fatal("inconsistent stack depth must be rejected")
	}
}

func TestVerifyRejectsUnderflow(t *testing.T) {
	f := &Function{
		Name: "underflow",
		Code: []Instr{
			{Op: OpAdd},
			{Op: OpReturn},
		},
	}
	if err := Verify(f); err == nil {
		t.Fatal("stack underflow must be rejected")
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	f1 := &Function{Name: "f", Code: []Instr{{Op: OpPushInt, A: 1}, {Op: OpReturn}}}
	f2 := &Function{Name: "f", Code: []Instr{{Op: OpPushInt, A: 1}, {Op: OpReturn}}}
	f3 := &Function{Name: "f", Code: []Instr{{Op: OpPushInt, A: 2}, {Op: OpReturn}}}
	f4 := &Function{Name: "g", Code: []Instr{{Op: OpPushInt, A: 1}, {Op: OpReturn}}}

	if f1.Fingerprint() != f2.Fingerprint() {
		t.Fatal("identical functions must share a fingerprint")
	}
	if f1.Fingerprint() == f3.Fingerprint() {
		t.Fatal("different code must change the fingerprint")
	}
	if f1.Fingerprint() == f4.Fingerprint() {
		t.Fatal("different names must change the fingerprint")
	}
}

func TestStringPoolInterning(t *testing.T) {
	pool := NewStringPool()
	a := pool.Intern("hello")
	b := pool.Intern("world")
	c := pool.Intern("hello")
	if a == b {
		t.Fatal("distinct strings must get distinct ids")
	}
	if a != c {
		t.Fatal("interning the same string twice must return the same id")
	}
	if pool.Lookup(a) != "hello" || pool.Lookup(b) != "world" {
		t.Fatal("lookup does not round-trip")
	}
	if pool.Len() != 2 {
		t.Fatalf("pool length = %d, want 2", pool.Len())
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	m := NewModule()
	m.Strings.Intern("greeting")
	m.AddFunction(&Function{
		Name:    "main",
		Arity:   0,
		MaxSlot: 1,
		Code: []Instr{
			{Op: OpPushInt, A: 42},
			{Op: OpStoreVar, A: 0},
			{Op: OpLoadVar, A: 0},
			{Op: OpPushFloat, F: 2.5},
			{Op: OpAdd},
			{Op: OpPushStr, S: 0},
			{Op: OpPop},
			{Op: OpPop},
			{Op: OpPushNull},
			{Op: OpReturn},
		},
	})

	var buf bytes.Buffer
	if err := Pack(m, &buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	got, err := Unpack(&buf)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(got.Funcs) != 1 {
		t.Fatalf("function count = %d, want 1", len(got.Funcs))
	}
	if diff := cmp.Diff(m.Funcs[0].Code, got.Funcs[0].Code); diff != "" {
		t.Fatalf("instruction round-trip mismatch (-want +got):\n%s", diff)
	}
	if got.Funcs[0].Name != "main" || got.Funcs[0].MaxSlot != 1 {
		t.Fatalf("function metadata lost: %+v", got.Funcs[0])
	}
	if got.Strings.Lookup(0) != "greeting" {
		t.Fatal("string pool lost")
	}
}

func TestUnpackRejectsBadMagic(t *testing.T) {
	if _, err := Unpack(strings.NewReader("NOPE....")); err == nil {
		t.Fatal("bad magic must be rejected")
	}
}

func TestDisassembleResolvesNames(t *testing.T) {
	m := NewModule()
	id := m.Strings.Intern("println_target")
	m.AddFunction(&Function{
		Name: "main",
		Code: []Instr{
			{Op: OpPushStr, S: id},
			{Op: OpPrintLn},
			{Op: OpPushNull},
			{Op: OpReturn},
		},
	})
	text := DumpModule(m)
	if !strings.Contains(text, "println_target") {
		t.Fatalf("disassembly does not resolve pool strings:\n%s", text)
	}
}
