// internal/vm/engine_test.go
package vm

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"rzn/internal/bytecode"
	"rzn/internal/compiler"
	"rzn/internal/errors"
	"rzn/internal/ir"
	"rzn/internal/optimizer"
	"rzn/internal/parser"
	"rzn/internal/semantic"
)

// compileSource runs the full front half of the pipeline and fails the
// test on any diagnostic error.
func compileSource(t *testing.T, source string, level optimizer.Level) *ir.Module {
	t.Helper()
	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(source, "test.rzn", diags)
	an := semantic.NewAnalyzer(diags)
	an.Analyze(prog)
	if diags.HasErrors() {
		for _, d := range diags.Items {
			t.Logf("diagnostic: %v", d)
		}
		t.Fatalf("unexpected semantic errors in test program")
	}
	module, err := compiler.New(an).Compile(prog, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	optimizer.New(level).Module(module)
	if verr := ir.VerifyModule(module); verr != nil {
		t.Fatalf("post-optimization verify: %v", verr)
	}
	return module
}

func runSource(t *testing.T, source string, level optimizer.Level) (string, *errors.RuntimeError) {
	t.Helper()
	module := compileSource(t, source, level)
	engine := NewEngine(module)
	var out bytes.Buffer
	engine.Runtime().Stdout = &out
	engine.Runtime().Stdin = bufio.NewReader(strings.NewReader(""))
	_, err := engine.Run()
	return out.String(), err
}

func TestArithmeticAndPrinting(t *testing.T) {
	src := `fun main() { var x = 2 + 3 * 4; println(x) }`
	for _, level := range []optimizer.Level{optimizer.Level0, optimizer.Level1, optimizer.Level2} {
		out, err := runSource(t, src, level)
		if err != nil {
			t.Fatalf("level %d: unexpected error: %v", level, err)
		}
		if out != "14\n" {
			t.Fatalf("level %d: stdout = %q, want %q", level, out, "14\n")
		}
	}
}

func TestConstantFoldingCollapsesBody(t *testing.T) {
	module := compileSource(t, `fun main() { var x = 2 + 3 * 4; println(x) }`, optimizer.Level1)
	fn, ok := module.Lookup("main")
	if !ok {
		t.Fatal("main not found")
	}
	var sawFold bool
	for _, in := range fn.Code {
		switch in.Op {
		case ir.OpAdd, ir.OpMul:
			t.Fatalf("arithmetic survived folding: %v", fn.Code)
		case ir.OpPushInt:
			if in.A == 14 {
				sawFold = true
			}
		}
	}
	if !sawFold {
		t.Fatalf("folded constant 14 not found in %v", fn.Code)
	}
}

func TestForLoopOverInclusiveRange(t *testing.T) {
	src := `fun main(){ var s=0; for i in 1..=5 { s = s + i }; println(s) }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "15\n" {
		t.Fatalf("stdout = %q, want %q", out, "15\n")
	}
}

func TestBreakContinue(t *testing.T) {
	src := `fun main(){ for i in 1..=10 { if i==5 { continue }; if i==8 { break }; print(i); print(" ") } }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "1 2 3 4 6 7 " {
		t.Fatalf("stdout = %q, want %q", out, "1 2 3 4 6 7 ")
	}
}

func TestUnhandledThrow(t *testing.T) {
	out, err := runSource(t, `fun main(){ throw "boom" }`, optimizer.Level2)
	if err == nil {
		t.Fatal("expected an unhandled throw")
	}
	if err.Kind != errors.UnhandledThrow {
		t.Fatalf("kind = %s, want UnhandledThrow", err.Kind)
	}
	thrown, ok := err.Value.(Str)
	if !ok || thrown.S != "boom" {
		t.Fatalf("thrown value = %#v, want \"boom\"", err.Value)
	}
	if out != "" {
		t.Fatalf("unexpected stdout %q", out)
	}
}

func TestCaughtThrow(t *testing.T) {
	src := `fun main(){ try { throw "x" } catch e { println(e) } }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "x\n" {
		t.Fatalf("stdout = %q, want %q", out, "x\n")
	}
}

func TestWhileLoop(t *testing.T) {
	src := `fun main(){ var n = 0; while n < 3 { n = n + 1 }; println(n) }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3\n" {
		t.Fatalf("stdout = %q, want %q", out, "3\n")
	}
}

func TestFStringInterpolation(t *testing.T) {
	src := `fun main(){ var name = "world"; println(f"hello {name}, {1+2}") }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world, 3\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestStructsAndMethods(t *testing.T) {
	src := `
struct Point { x: int, y: int }
impl Point {
	fun sum(self) -> int { return self.x + self.y }
}
fun main() {
	var p = Point { x: 3, y: 4 }
	println(p.sum())
	p.x = 10
	println(p.sum())
}`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n14\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestEnumMatch(t *testing.T) {
	src := `
enum Shape { Circle(int), Square(int), Empty }
fun area(s: Shape) -> int {
	match s {
		Shape::Circle(r) => { return 3 * r * r }
		Shape::Square(w) => { return w * w }
		Shape::Empty => { return 0 }
	}
	return -1
}
fun main() {
	println(area(Shape::Circle(2)))
	println(area(Shape::Square(3)))
	println(area(Shape::Empty))
}`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "12\n9\n0\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestArraysAndMaps(t *testing.T) {
	src := `
fun main() {
	var xs = [10, 20, 30]
	xs[1] = 25
	var total = 0
	for x in xs { total = total + x }
	println(total)
	println(len(xs))
	var m = {"a": 1, "b": 2}
	m["c"] = 3
	println(len(m))
	println(m["b"])
}`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "65\n3\n3\n2\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestIndexOutOfBounds(t *testing.T) {
	src := `fun main(){ var xs = [1, 2]; println(xs[5]) }`
	_, err := runSource(t, src, optimizer.Level0)
	if err == nil || err.Kind != errors.IndexOutOfBounds {
		t.Fatalf("err = %v, want IndexOutOfBounds", err)
	}
}

func TestDivisionByZeroSurvivesOptimization(t *testing.T) {
	src := `fun main(){ println(1 / 0) }`
	for _, level := range []optimizer.Level{optimizer.Level0, optimizer.Level2} {
		_, err := runSource(t, src, level)
		if err == nil || err.Kind != errors.DivisionByZero {
			t.Fatalf("level %d: err = %v, want DivisionByZero", level, err)
		}
	}
}

func TestRecursion(t *testing.T) {
	src := `
fun fib(n: int) -> int {
	if n < 2 { return n }
	return fib(n-1) + fib(n-2)
}
fun main() { println(fib(12)) }`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "144\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestRecursionLimit(t *testing.T) {
	src := `
fun loop(n: int) -> int { return loop(n + 1) }
fun main() { println(loop(0)) }`
	_, err := runSource(t, src, optimizer.Level0)
	if err == nil || err.Kind != errors.RecursionLimitExceeded {
		t.Fatalf("err = %v, want RecursionLimitExceeded", err)
	}
}

// Tier parity: the same function must behave identically at tier 0 and
// tier 1.
func TestTierParity(t *testing.T) {
	src := `
fun crunch(a: int, b: int) -> int {
	var acc = 0
	for i in 0..a {
		acc = acc + i * b
		if acc > 10000 { break }
	}
	return acc % 9973
}
fun main() { println(crunch(100, 7)) }`
	module := compileSource(t, src, optimizer.Level2)
	fn, ok := module.Lookup("crunch")
	if !ok {
		t.Fatal("crunch not found")
	}

	args := []Value{int64(100), int64(7)}

	r1 := NewRuntime(module)
	v1, err1 := r1.RunFunction(fn, args)
	if err1 != nil {
		t.Fatalf("runtime tier: %v", err1)
	}

	r2 := NewRuntime(module)
	v2, err2 := r2.RunBytecode(bytecode.Encode(fn), args)
	if err2 != nil {
		t.Fatalf("bytecode tier: %v", err2)
	}

	if !Equal(v1, v2) {
		t.Fatalf("tier mismatch: runtime=%v bytecode=%v", v1, v2)
	}
	if r1.StackDepth() != 0 || r2.StackDepth() != 0 {
		t.Fatalf("stacks not drained: %d, %d", r1.StackDepth(), r2.StackDepth())
	}
}

func TestStrategySelectionDeterministic(t *testing.T) {
	src := `fun main(){ var s=0; for i in 1..=100 { s = s + i*i }; println(s) }`
	module := compileSource(t, src, optimizer.Level2)
	fn, _ := module.Lookup("main")

	e1 := NewEngine(module)
	e2 := NewEngine(module)
	s1 := e1.selectStrategy(fn, fn.Fingerprint())
	s2 := e2.selectStrategy(fn, fn.Fingerprint())
	if s1 != s2 {
		t.Fatalf("selection not deterministic: %v vs %v", s1, s2)
	}
}

func TestGlobalsAcrossFunctions(t *testing.T) {
	src := `
var counter = 0
fun bump() { counter = counter + 1 }
fun main() {
	bump()
	bump()
	bump()
	println(counter)
}`
	out, err := runSource(t, src, optimizer.Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestStatsReport(t *testing.T) {
	module := compileSource(t, `fun main(){ println(1) }`, optimizer.Level1)
	engine := NewEngine(module)
	var out bytes.Buffer
	engine.Runtime().Stdout = &out
	if _, err := engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	var stats bytes.Buffer
	engine.StatsReport(&stats)
	if !strings.Contains(stats.String(), "function") {
		t.Fatalf("stats report missing header: %q", stats.String())
	}
}
