// internal/optimizer/optimizer.go
package optimizer

import (
	"github.com/cespare/xxhash/v2"

	"rzn/internal/ir"
)

// Level selects how aggressively IR is rewritten.
//
//	0  no optimization
//	1  one pass over the pipeline
//	2  pipeline iterated to a fixed point (bounded)
//	3  level 2 plus hot-loop specialization
type Level int

const (
	Level0 Level = iota
	Level1
	Level2
	Level3
)

// passLimit bounds fixed-point iteration per level.
func (l Level) passLimit() int {
	switch l {
	case Level0:
		return 0
	case Level1:
		return 1
	default:
		return 3
	}
}

type pass struct {
	name string
	run  func([]ir.Instr) ([]ir.Instr, bool)
}

// Optimizer rewrites IR in place. Every transformation must keep labels
// reachable and stack depth consistent; a pass whose output fails
// verification is discarded.
type Optimizer struct {
	level Level
	// Specialized loop bodies, keyed by body hash.
	loopCache map[uint64][]ir.Instr
}

func New(level Level) *Optimizer {
	return &Optimizer{
		level:     level,
		loopCache: make(map[uint64][]ir.Instr),
	}
}

func (o *Optimizer) passes() []pass {
	return []pass{
		{"fold", constantFold},
		{"algebraic", algebraicSimplify},
		{"strength", strengthReduce},
		{"dce", deadCodeEliminate},
		{"peephole", peephole},
	}
}

// Module optimizes every function of a module.
func (o *Optimizer) Module(m *ir.Module) {
	if o.level == Level0 {
		return
	}
	for _, f := range m.Funcs {
		o.Function(f)
	}
}

// Function optimizes one function's code to a bounded fixed point.
func (o *Optimizer) Function(f *ir.Function) {
	f.Code = o.runPipeline(f, f.Code, o.level.passLimit())
	if o.level >= Level3 {
		f.Code = o.specializeHotLoops(f, f.Code)
	}
}

func (o *Optimizer) runPipeline(f *ir.Function, code []ir.Instr, limit int) []ir.Instr {
	for iter := 0; iter < limit; iter++ {
		changedAny := false
		for _, p := range o.passes() {
			next, changed := p.run(code)
			if !changed {
				continue
			}
			if !verifies(f, next) {
				continue // reject the rewrite, keep the old code
			}
			code = next
			changedAny = true
		}
		if !changedAny {
			break
		}
	}
	return code
}

// verifies checks a candidate body against the IR invariants without
// touching the original function.
func verifies(f *ir.Function, code []ir.Instr) bool {
	probe := &ir.Function{
		Name:    f.Name,
		Arity:   f.Arity,
		MaxSlot: f.MaxSlot,
		Code:    code,
	}
	return ir.Verify(probe) == nil
}

// specializeHotLoops re-runs the pass pipeline over the body of each loop
// whose size exceeds the hot threshold. Loops are Label L .. Jump L spans
// with every internal jump contained in the span.
func (o *Optimizer) specializeHotLoops(f *ir.Function, code []ir.Instr) []ir.Instr {
	const hotBodySize = 5
	const extraRounds = 3

	for start := 0; start < len(code); start++ {
		if code[start].Op != ir.OpLabel {
			continue
		}
		label := code[start].A
		end := -1
		for j := start + 1; j < len(code); j++ {
			if code[j].Op == ir.OpJump && code[j].A == label {
				end = j
				break
			}
		}
		if end == -1 || end-start-1 <= hotBodySize {
			continue
		}
		body := code[start+1 : end]
		if !jumpsContained(body, code[start:end+1]) {
			continue
		}
		key := hashBody(body)
		specialized, cached := o.loopCache[key]
		if !cached {
			specialized = body
			for r := 0; r < extraRounds; r++ {
				// Splice the candidate body in, run the pipeline over the
				// whole function, and pull the body back out; verification
				// inside the pipeline keeps the rewrite honest.
				optimized := o.runPipeline(f, wrapBody(code, start, end, specialized), 1)
				next, _ := extractBody(optimized, start, label)
				if next == nil {
					break
				}
				specialized = next
			}
			o.loopCache[key] = specialized
		}
		code = wrapBody(code, start, end, specialized)
		// Recompute the end position for the next scan.
		for j := start + 1; j < len(code); j++ {
			if code[j].Op == ir.OpJump && code[j].A == label {
				end = j
				break
			}
		}
		start = end
	}
	return code
}

func hashBody(body []ir.Instr) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, in := range body {
		buf[0] = byte(in.Op)
		buf[1] = byte(in.A)
		buf[2] = byte(in.A >> 8)
		buf[3] = byte(in.B)
		buf[4] = byte(in.S)
		buf[5] = byte(in.S >> 8)
		buf[6] = byte(in.S >> 16)
		buf[7] = byte(in.S >> 24)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// jumpsContained reports whether every jump in the body lands inside the
// loop span.
func jumpsContained(body, span []ir.Instr) bool {
	labels := make(map[int64]bool)
	for _, in := range span {
		if in.Op == ir.OpLabel {
			labels[in.A] = true
		}
	}
	for _, in := range body {
		switch in.Op {
		case ir.OpJump, ir.OpJumpIfFalse, ir.OpJumpIfTrue, ir.OpSetupTryCatch:
			if !labels[in.A] {
				return false
			}
		}
	}
	return true
}

// wrapBody splices a replacement loop body into the function.
func wrapBody(code []ir.Instr, start, end int, body []ir.Instr) []ir.Instr {
	out := make([]ir.Instr, 0, len(code)-(end-start-1)+len(body))
	out = append(out, code[:start+1]...)
	out = append(out, body...)
	out = append(out, code[end:]...)
	return out
}

// extractBody recovers the loop body after a pipeline run, identified by
// its head label.
func extractBody(code []ir.Instr, start int, label int64) ([]ir.Instr, int) {
	if start >= len(code) || code[start].Op != ir.OpLabel || code[start].A != label {
		// The pipeline moved the label; give up on this loop.
		return nil, -1
	}
	for j := start + 1; j < len(code); j++ {
		if code[j].Op == ir.OpJump && code[j].A == label {
			return code[start+1 : j], j
		}
	}
	return nil, -1
}
