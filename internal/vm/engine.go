// internal/vm/engine.go
package vm

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"rzn/internal/bytecode"
	"rzn/internal/errors"
	"rzn/internal/ir"
	"rzn/internal/jit"
)

// Strategy is the execution tier chosen for a function.
type Strategy int

const (
	StrategyRuntime Strategy = iota
	StrategyBytecode
	StrategyNative
)

func (s Strategy) String() string {
	switch s {
	case StrategyRuntime:
		return "runtime"
	case StrategyBytecode:
		return "bytecode"
	case StrategyNative:
		return "native"
	}
	return "unknown"
}

// Selection thresholds. A function goes native only when it is pure
// whitelisted arithmetic; it goes to bytecode when it is big enough for
// the re-encoding to pay off.
const (
	nativeMinArith   = 15
	nativeArithRatio = 0.7
	bytecodeMinLen   = 8
	bytecodeMinArith = 2
	bytecodeMaxCplx  = 10

	// Profile-driven upgrade thresholds from runtime to bytecode.
	upgradeCalls     = 100
	upgradeLoopIters = 1000

	// DefaultMaxDepth bounds call nesting.
	DefaultMaxDepth = 1024
)

// Profile accumulates per-function execution counters.
type Profile struct {
	Calls     uint64
	TotalNs   int64
	LoopIters uint64
}

// Engine executes an IR module, choosing a tier per function and caching
// everything by function fingerprint.
type Engine struct {
	module  *ir.Module
	runtime *Runtime

	strategies map[uint64]Strategy
	programs   map[uint64]*bytecode.Program
	native     map[uint64]*jit.Code
	profiles   map[uint64]*Profile
	prints     map[uint64]string // fingerprint -> function name, for stats

	nativeEnabled bool
	depth         int
	maxDepth      int
}

// NewEngine builds an engine over a compiled module.
func NewEngine(m *ir.Module) *Engine {
	e := &Engine{
		module:        m,
		runtime:       NewRuntime(m),
		strategies:    make(map[uint64]Strategy),
		programs:      make(map[uint64]*bytecode.Program),
		native:        make(map[uint64]*jit.Code),
		profiles:      make(map[uint64]*Profile),
		prints:        make(map[uint64]string),
		nativeEnabled: jit.Available(),
		maxDepth:      DefaultMaxDepth,
	}
	e.runtime.SetCallHook(e.Call)
	return e
}

// Runtime exposes the tier-0 runtime for I/O redirection in embedders and
// tests.
func (e *Engine) Runtime() *Runtime { return e.runtime }

// SetNativeEnabled toggles the native tier; while it is off the selector
// never picks it.
func (e *Engine) SetNativeEnabled(on bool) { e.nativeEnabled = on && jit.Available() }

// Reset clears every cache; required after the module is recompiled.
func (e *Engine) Reset() {
	e.strategies = make(map[uint64]Strategy)
	e.programs = make(map[uint64]*bytecode.Program)
	e.native = make(map[uint64]*jit.Code)
	e.profiles = make(map[uint64]*Profile)
}

// Run executes the module's entry function and maps the outcome to a
// process exit code: 0 on success, 1 on an unhandled error.
func (e *Engine) Run() (int, *errors.RuntimeError) {
	entry, ok := e.module.Lookup("<script>")
	if !ok {
		return 1, errors.NewRuntimeError(errors.InternalInvariant, 0,
			"module has no entry function")
	}
	if _, err := e.Call(entry, nil); err != nil {
		return 1, err
	}
	return 0, nil
}

// Call dispatches one function activation through strategy selection and
// profiling. Every nested user call funnels back through here.
func (e *Engine) Call(f *ir.Function, args []Value) (Value, *errors.RuntimeError) {
	if e.depth >= e.maxDepth {
		return nil, errors.NewRuntimeError(errors.RecursionLimitExceeded, 0,
			"call depth exceeded %d", e.maxDepth)
	}
	e.depth++
	defer func() { e.depth-- }()

	fp := f.Fingerprint()
	prof := e.profiles[fp]
	if prof == nil {
		prof = &Profile{}
		e.profiles[fp] = prof
		e.prints[fp] = f.Name
	}
	prof.Calls++

	strategy := e.strategyFor(f, fp, prof)
	start := time.Now()
	var result Value
	var err *errors.RuntimeError
	switch strategy {
	case StrategyNative:
		result, err = e.runNative(f, fp, args)
	case StrategyBytecode:
		result, err = e.runtime.RunBytecode(e.programFor(f, fp), args)
	default:
		result, err = e.runtime.RunFunction(f, args)
	}
	prof.TotalNs += time.Since(start).Nanoseconds()
	prof.LoopIters += countBackJumps(f)
	return result, err
}

// strategyFor returns the cached strategy, computing it on first call.
// Selection is deterministic in the IR; the only later change is the
// profile-driven upgrade from runtime to bytecode.
func (e *Engine) strategyFor(f *ir.Function, fp uint64, prof *Profile) Strategy {
	s, cached := e.strategies[fp]
	if !cached {
		s = e.selectStrategy(f, fp)
		e.strategies[fp] = s
	}
	if s == StrategyRuntime &&
		(prof.Calls >= upgradeCalls || prof.LoopIters >= upgradeLoopIters) {
		s = StrategyBytecode
		e.strategies[fp] = s
	}
	return s
}

// irCounts summarizes a function for the selector.
type irCounts struct {
	arith   int
	complex int
	ctrl    int
	irLen   int
}

func countIR(f *ir.Function) irCounts {
	c := irCounts{irLen: len(f.Code)}
	for _, in := range f.Code {
		switch {
		case in.Op.IsArith():
			c.arith++
		case in.Op.IsControl():
			c.ctrl++
		}
		if !jit.Whitelisted(in.Op) {
			c.complex++
		}
	}
	return c
}

func (e *Engine) selectStrategy(f *ir.Function, fp uint64) Strategy {
	counts := countIR(f)
	arith, complexOps, irLen := counts.arith, counts.complex, counts.irLen

	if e.nativeEnabled && complexOps == 0 && arith >= nativeMinArith &&
		irLen > 0 && float64(arith)/float64(irLen) > nativeArithRatio {
		if code := jit.Compile(f); code != nil {
			e.native[fp] = code
			return StrategyNative
		}
		// Whitelist said yes but static typing said no; demote.
	}
	if irLen > bytecodeMinLen && arith >= bytecodeMinArith && complexOps < bytecodeMaxCplx {
		return StrategyBytecode
	}
	return StrategyRuntime
}

func (e *Engine) programFor(f *ir.Function, fp uint64) *bytecode.Program {
	if p, ok := e.programs[fp]; ok {
		return p
	}
	p := bytecode.Encode(f)
	e.programs[fp] = p
	return p
}

func (e *Engine) runNative(f *ir.Function, fp uint64, args []Value) (Value, *errors.RuntimeError) {
	code := e.native[fp]
	if code == nil {
		code = jit.Compile(f)
		if code == nil {
			return e.runtime.RunBytecode(e.programFor(f, fp), args)
		}
		e.native[fp] = code
	}
	intArgs := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(int64)
		if !ok {
			// Non-integer arguments this invocation; run it a tier down.
			return e.runtime.RunBytecode(e.programFor(f, fp), args)
		}
		intArgs[i] = n
	}
	result, hasResult, err := code.Run(intArgs)
	if err != nil {
		return nil, err
	}
	if !hasResult {
		return nil, nil
	}
	if code.ResultIsBool() {
		return result != 0, nil
	}
	return result, nil
}

// countBackJumps approximates loop hotness: static backward jumps are
// credited once per call. Cheap and monotone, which is all the upgrade
// heuristic needs.
func countBackJumps(f *ir.Function) uint64 {
	labels := f.Labels()
	var n uint64
	for i, in := range f.Code {
		switch in.Op {
		case ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue:
			if target, ok := labels[in.A]; ok && target < i {
				n++
			}
		}
	}
	return n
}

// StatsReport renders the profile table for --stats.
func (e *Engine) StatsReport(w io.Writer) {
	type row struct {
		name     string
		strategy Strategy
		calls    uint64
		totalNs  int64
	}
	rows := make([]row, 0, len(e.profiles))
	for fp, prof := range e.profiles {
		rows = append(rows, row{
			name:     e.prints[fp],
			strategy: e.strategies[fp],
			calls:    prof.Calls,
			totalNs:  prof.TotalNs,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].totalNs > rows[j].totalNs })
	fmt.Fprintf(w, "%-32s %-10s %12s %14s\n", "function", "tier", "calls", "total")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, r := range rows {
		fmt.Fprintf(w, "%-32s %-10s %12s %14s\n",
			r.name, r.strategy,
			humanize.Comma(int64(r.calls)),
			time.Duration(r.totalNs).Round(time.Microsecond))
	}
	fmt.Fprintf(w, "\ncached: %s bytecode programs, %s native bodies, %s strings\n",
		humanize.Comma(int64(len(e.programs))),
		humanize.Comma(int64(len(e.native))),
		humanize.Comma(int64(e.module.Strings.Len())))
}
