// internal/compiler/compiler_test.go
package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"rzn/internal/errors"
	"rzn/internal/ir"
	"rzn/internal/parser"
	"rzn/internal/semantic"
)

func compile(t *testing.T, source string) *ir.Module {
	t.Helper()
	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(source, "test.rzn", diags)
	an := semantic.NewAnalyzer(diags)
	an.Analyze(prog)
	if diags.HasErrors() {
		t.Fatalf("semantic errors: %v", diags.Items)
	}
	module, err := New(an).Compile(prog, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return module
}

func opcodes(f *ir.Function) []ir.Op {
	out := make([]ir.Op, len(f.Code))
	for i, in := range f.Code {
		out[i] = in.Op
	}
	return out
}

func TestCompiledModuleVerifies(t *testing.T) {
	module := compile(t, `
struct Point { x: int, y: int }
impl Point { fun mag(self) -> int { return self.x * self.x + self.y * self.y } }
fun helper(n: int) -> int {
	var acc = 0
	for i in 0..n {
		if i % 2 == 0 { continue }
		acc += i
	}
	return acc
}
fun main() {
	var p = Point { x: 1, y: 2 }
	println(p.mag())
	println(helper(10))
	try { throw "x" } catch e { println(e) }
}`)
	if err := ir.VerifyModule(module); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestWhileLoweringShape(t *testing.T) {
	module := compile(t, `fun f() { var n = 0; while n < 3 { n = n + 1 } }`)
	fn, ok := module.Lookup("f")
	if !ok {
		t.Fatal("f not found")
	}
	// head-label, cond, JumpIfFalse end, body, Jump head, end-label
	ops := opcodes(fn)
	var labelIdx, jifIdx, jumpIdx = -1, -1, -1
	for i, op := range ops {
		switch op {
		case ir.OpLabel:
			if labelIdx == -1 {
				labelIdx = i
			}
		case ir.OpJumpIfFalse:
			if jifIdx == -1 {
				jifIdx = i
			}
		case ir.OpJump:
			jumpIdx = i
		}
	}
	if labelIdx == -1 || jifIdx == -1 || jumpIdx == -1 {
		t.Fatalf("missing loop structure: %v", ops)
	}
	if !(labelIdx < jifIdx && jifIdx < jumpIdx) {
		t.Fatalf("loop shape out of order: %v", ops)
	}
	if fn.Code[jumpIdx].A != fn.Code[labelIdx].A {
		t.Fatal("back jump must target the head label")
	}
}

func TestForRangeDoesNotMaterialize(t *testing.T) {
	module := compile(t, `fun f() { var s = 0; for i in 1..=5 { s = s + i } }`)
	fn, _ := module.Lookup("f")
	for _, in := range fn.Code {
		if in.Op == ir.OpRangeIncl || in.Op == ir.OpRangeExcl {
			t.Fatalf("range loop must lower to a counter, got %v", opcodes(fn))
		}
	}
}

func TestRangeAsValueMaterializes(t *testing.T) {
	module := compile(t, `fun f() { var xs = 1..4; println(len(xs)) }`)
	fn, _ := module.Lookup("f")
	found := false
	for _, in := range fn.Code {
		if in.Op == ir.OpRangeExcl {
			found = true
		}
	}
	if !found {
		t.Fatalf("range value must use the range opcode: %v", opcodes(fn))
	}
}

func TestCallLowering(t *testing.T) {
	module := compile(t, `
fun add(a: int, b: int) -> int { return a + b }
fun main() { println(add(1, 2)) }`)
	fn, _ := module.Lookup("main")
	var call *ir.Instr
	for i := range fn.Code {
		if fn.Code[i].Op == ir.OpCall {
			call = &fn.Code[i]
		}
	}
	if call == nil {
		t.Fatalf("no call emitted: %v", opcodes(fn))
	}
	if call.B != 2 {
		t.Fatalf("argc = %d, want 2", call.B)
	}
	if module.Strings.Lookup(call.S) != "add" {
		t.Fatalf("callee = %q", module.Strings.Lookup(call.S))
	}
}

func TestFStringLowersToConcat(t *testing.T) {
	module := compile(t, `fun f() { var n = 2; println(f"n={n}!") }`)
	fn, _ := module.Lookup("f")
	var concat *ir.Instr
	for i := range fn.Code {
		if fn.Code[i].Op == ir.OpStringConcat {
			concat = &fn.Code[i]
		}
	}
	if concat == nil || concat.A != 3 {
		t.Fatalf("f-string lowering: %v", opcodes(fn))
	}
}

func TestTryCatchLowering(t *testing.T) {
	module := compile(t, `fun f() { try { throw "a" } catch e { println(e) } }`)
	fn, _ := module.Lookup("f")
	ops := opcodes(fn)
	var setup, clear, throw bool
	for _, op := range ops {
		switch op {
		case ir.OpSetupTryCatch:
			setup = true
		case ir.OpClearTryCatch:
			clear = true
		case ir.OpThrowException:
			throw = true
		}
	}
	if !setup || !clear || !throw {
		t.Fatalf("try/catch lowering incomplete: %v", ops)
	}
}

func TestSlotAllocationDense(t *testing.T) {
	module := compile(t, `fun f(a: int, b: int) { var c = a; var d = b; println(c + d) }`)
	fn, _ := module.Lookup("f")
	if fn.Arity != 2 {
		t.Fatalf("arity = %d", fn.Arity)
	}
	if fn.MaxSlot != 3 {
		t.Fatalf("max slot = %d, want 3 (a, b, c, d)", fn.MaxSlot)
	}
}

func TestScriptCallsMain(t *testing.T) {
	module := compile(t, `fun main() { println(1) }`)
	script, ok := module.Lookup(ScriptName)
	if !ok {
		t.Fatal("script function missing")
	}
	found := false
	for _, in := range script.Code {
		if in.Op == ir.OpCall && module.Strings.Lookup(in.S) == "main" {
			found = true
		}
	}
	if !found {
		t.Fatal("script must call main")
	}
}

func TestImportsCompileQualified(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "mathx.rzn")
	if err := os.WriteFile(libPath, []byte(`pub fun double(n: int) -> int { return n * 2 }`), 0o644); err != nil {
		t.Fatal(err)
	}
	entryPath := filepath.Join(dir, "main.rzn")
	entrySrc := `use "mathx.rzn"
fun main() { println(mathx.double(21)) }`

	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(entrySrc, entryPath, diags)
	loader := NewLoader(entryPath, diags)
	imports, err := loader.Load(prog)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(imports) != 1 || imports[0].Alias != "mathx" {
		t.Fatalf("imports = %+v", imports)
	}

	an := semantic.NewAnalyzer(diags)
	for _, imp := range imports {
		an.RegisterImport(imp.Alias, errors.Span{File: imp.Path})
		an.AnalyzeImported(imp.Program, imp.Alias)
	}
	an.Analyze(prog)
	if diags.HasErrors() {
		t.Fatalf("semantic errors: %v", diags.Items)
	}

	module, cerr := New(an).Compile(prog, imports)
	if cerr != nil {
		t.Fatalf("compile: %v", cerr)
	}
	if _, ok := module.Lookup("mathx.double"); !ok {
		t.Fatal("imported function must compile under its qualified name")
	}
}

func TestImportCycleDetected(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.rzn")
	bPath := filepath.Join(dir, "b.rzn")
	if err := os.WriteFile(aPath, []byte(`use "b.rzn"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bPath, []byte(`use "a.rzn"`), 0o644); err != nil {
		t.Fatal(err)
	}

	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(`use "a.rzn"`, filepath.Join(dir, "main.rzn"), diags)
	loader := NewLoader(filepath.Join(dir, "main.rzn"), diags)
	if _, err := loader.Load(prog); err != nil {
		t.Fatalf("load: %v", err)
	}
	found := false
	for _, d := range diags.Items {
		if d.Kind == errors.ImportCycle {
			found = true
		}
	}
	if !found {
		t.Fatalf("cycle not reported: %v", diags.Items)
	}
}
