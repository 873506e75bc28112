// internal/ir/ir.go
package ir

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// DynamicCallID in a Call instruction's S operand marks a call through a
// function value sitting on the stack below the arguments.
const DynamicCallID = ^uint32(0)

// Instr is a single IR instruction. Operand meaning depends on the opcode:
//
//	A   int immediate, slot index, label id, element count, or argc
//	B   secondary count (CreateMap pair count is A; Call argc is B)
//	F   float immediate (PushFloat)
//	S   string-pool id (PushStr, names for loads, calls, fields)
//
// Unused operands are zero.
type Instr struct {
	Op Op
	A  int64
	B  int64
	F  float64
	S  uint32
}

func (in Instr) String() string {
	switch in.Op {
	case OpPushInt:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case OpPushFloat:
		return fmt.Sprintf("%s %g", in.Op, in.F)
	case OpPushStr, OpLoadGlobal, OpStoreGlobal, OpGetField, OpSetField,
		OpGetKey, OpSetKey, OpEnumMatch:
		return fmt.Sprintf("%s s%d", in.Op, in.S)
	case OpPushBool:
		return fmt.Sprintf("%s %v", in.Op, in.A != 0)
	case OpLoadVar, OpStoreVar:
		return fmt.Sprintf("%s r%d", in.Op, in.A)
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpSetupTryCatch:
		return fmt.Sprintf("%s L%d", in.Op, in.A)
	case OpLabel:
		return fmt.Sprintf("L%d:", in.A)
	case OpCall:
		return fmt.Sprintf("%s s%d argc=%d", in.Op, in.S, in.B)
	case OpMethodCall:
		return fmt.Sprintf("%s s%d argc=%d", in.Op, in.S, in.A)
	case OpStringConcat, OpCreateArray, OpCreateMap, OpReadInput:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case OpStructNew, OpEnumNew:
		return fmt.Sprintf("%s s%d n=%d", in.Op, in.S, in.A)
	case OpDefineFunction:
		return fmt.Sprintf("%s s%d f%d", in.Op, in.S, in.A)
	}
	return in.Op.String()
}

// Function is one compiled IR function.
type Function struct {
	Name       string
	Arity      int
	Params     []string
	ReturnType string
	Code       []Instr
	// MaxSlot is the highest variable slot index used; the activation
	// record allocates MaxSlot+1 slots.
	MaxSlot int
}

// Fingerprint is a stable identity for the function derived from its name
// and IR content; it keys every execution cache.
func (f *Function) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(f.Name)
	var buf [8 * 4]byte
	for _, in := range f.Code {
		binary.LittleEndian.PutUint64(buf[0:], uint64(in.A)<<8|uint64(in.Op))
		binary.LittleEndian.PutUint64(buf[8:], uint64(in.B))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(in.F))
		binary.LittleEndian.PutUint64(buf[24:], uint64(in.S))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Labels maps label ids to instruction indices. It is rebuilt on demand
// after optimization passes move code around.
func (f *Function) Labels() map[int64]int {
	labels := make(map[int64]int)
	for i, in := range f.Code {
		if in.Op == OpLabel {
			labels[in.A] = i
		}
	}
	return labels
}

// Module is an ordered list of functions plus the interned string pool and
// numeric constant pool shared by all of them.
type Module struct {
	Funcs   []*Function
	ByName  map[string]int
	Strings *StringPool
	Consts  *ConstPool
}

func NewModule() *Module {
	return &Module{
		ByName:  make(map[string]int),
		Strings: NewStringPool(),
		Consts:  NewConstPool(),
	}
}

// AddFunction appends a function and indexes it by name.
func (m *Module) AddFunction(f *Function) int {
	idx := len(m.Funcs)
	m.Funcs = append(m.Funcs, f)
	m.ByName[f.Name] = idx
	return idx
}

// Lookup returns a function by name.
func (m *Module) Lookup(name string) (*Function, bool) {
	idx, ok := m.ByName[name]
	if !ok {
		return nil, false
	}
	return m.Funcs[idx], true
}

// StringPool is an append-only interning table. Ids are stable for the
// lifetime of the pool and equality of pooled strings is id equality.
type StringPool struct {
	strings []string
	index   map[string]uint32
}

func NewStringPool() *StringPool {
	return &StringPool{index: make(map[string]uint32)}
}

// Intern returns the id for s, adding it on first sight.
func (p *StringPool) Intern(s string) uint32 {
	if id, ok := p.index[s]; ok {
		return id
	}
	id := uint32(len(p.strings))
	p.strings = append(p.strings, s)
	p.index[s] = id
	return id
}

// Lookup returns the string for an id.
func (p *StringPool) Lookup(id uint32) string {
	if int(id) >= len(p.strings) {
		return ""
	}
	return p.strings[id]
}

// Len returns the number of pooled strings.
func (p *StringPool) Len() int { return len(p.strings) }

// All returns the pooled strings in id order.
func (p *StringPool) All() []string { return p.strings }

// ConstPool holds the module's numeric constants for the packaged form and
// the bytecode tier's auxiliary pools.
type ConstPool struct {
	Ints   []int64
	Floats []float64

	intIdx   map[int64]uint32
	floatIdx map[uint64]uint32
}

func NewConstPool() *ConstPool {
	return &ConstPool{
		intIdx:   make(map[int64]uint32),
		floatIdx: make(map[uint64]uint32),
	}
}

// InternInt returns the pool index for v.
func (p *ConstPool) InternInt(v int64) uint32 {
	if id, ok := p.intIdx[v]; ok {
		return id
	}
	id := uint32(len(p.Ints))
	p.Ints = append(p.Ints, v)
	p.intIdx[v] = id
	return id
}

// InternFloat returns the pool index for v. NaNs all collapse to one entry.
func (p *ConstPool) InternFloat(v float64) uint32 {
	bits := math.Float64bits(v)
	if math.IsNaN(v) {
		bits = math.Float64bits(math.NaN())
	}
	if id, ok := p.floatIdx[bits]; ok {
		return id
	}
	id := uint32(len(p.Floats))
	p.Floats = append(p.Floats, v)
	p.floatIdx[bits] = id
	return id
}
