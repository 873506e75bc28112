// internal/ir/pack.go
package ir

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Packaged module format, little-endian:
//
//	magic "RZNB", version u16, function count u32
//	per function: name len u16 + bytes, arity u8, max-slot u16,
//	              instruction count u32, instructions (4-byte tagged records)
//	string pool: count u32, then len u32 + bytes each
//	constant pool: int count u32 + i64 each, float count u32 + f64 each
//
// Each instruction record is op u8, x u8, y u16. Wide operands go through
// the constant pools; PushInt and PushFloat store pool indices. Execution
// never depends on this format; it exists as the persistence contract.

var packMagic = [4]byte{'R', 'Z', 'N', 'B'}

const packVersion uint16 = 1

type packedInstr struct {
	Op byte
	X  uint8
	Y  uint16
}

func packInstr(in Instr, consts *ConstPool) (packedInstr, error) {
	rec := packedInstr{Op: byte(in.Op)}
	switch in.Op {
	case OpPushInt:
		rec.Y = uint16(consts.InternInt(in.A))
	case OpPushFloat:
		rec.Y = uint16(consts.InternFloat(in.F))
	case OpPushBool:
		rec.X = uint8(in.A)
	case OpCall:
		rec.X = uint8(in.B)
		rec.Y = uint16(in.S)
	case OpMethodCall, OpStringConcat, OpCreateArray, OpCreateMap, OpReadInput:
		rec.X = uint8(in.A)
	case OpStructNew, OpEnumNew, OpDefineFunction:
		rec.X = uint8(in.A)
		rec.Y = uint16(in.S)
	case OpPushStr, OpLoadGlobal, OpStoreGlobal, OpGetField, OpSetField,
		OpGetKey, OpSetKey, OpEnumMatch:
		rec.Y = uint16(in.S)
	case OpLoadVar, OpStoreVar, OpJump, OpJumpIfFalse, OpJumpIfTrue,
		OpLabel, OpSetupTryCatch:
		if in.A > math.MaxUint16 {
			return rec, errors.Errorf("operand %d exceeds packaged record range", in.A)
		}
		rec.Y = uint16(in.A)
	}
	if in.S > math.MaxUint16 {
		return rec, errors.Errorf("string id %d exceeds packaged record range", in.S)
	}
	return rec, nil
}

func unpackInstr(rec packedInstr, consts *ConstPool) Instr {
	in := Instr{Op: Op(rec.Op)}
	switch in.Op {
	case OpPushInt:
		in.A = consts.Ints[rec.Y]
	case OpPushFloat:
		in.F = consts.Floats[rec.Y]
	case OpPushBool:
		in.A = int64(rec.X)
	case OpCall:
		in.B = int64(rec.X)
		in.S = uint32(rec.Y)
	case OpMethodCall, OpStringConcat, OpCreateArray, OpCreateMap, OpReadInput:
		in.A = int64(rec.X)
	case OpStructNew, OpEnumNew, OpDefineFunction:
		in.A = int64(rec.X)
		in.S = uint32(rec.Y)
	case OpPushStr, OpLoadGlobal, OpStoreGlobal, OpGetField, OpSetField,
		OpGetKey, OpSetKey, OpEnumMatch:
		in.S = uint32(rec.Y)
	case OpLoadVar, OpStoreVar, OpJump, OpJumpIfFalse, OpJumpIfTrue,
		OpLabel, OpSetupTryCatch:
		in.A = int64(rec.Y)
	}
	return in
}

// Pack writes the module in the packaged binary form.
func Pack(m *Module, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(packMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, packVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Funcs))); err != nil {
		return err
	}
	consts := NewConstPool()
	for _, f := range m.Funcs {
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(f.Name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(f.Name); err != nil {
			return err
		}
		if err := bw.WriteByte(byte(f.Arity)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(f.MaxSlot)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(f.Code))); err != nil {
			return err
		}
		for _, in := range f.Code {
			rec, err := packInstr(in, consts)
			if err != nil {
				return errors.Wrapf(err, "function %s", f.Name)
			}
			if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
				return err
			}
		}
	}
	strs := m.Strings.All()
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(strs))); err != nil {
		return err
	}
	for _, s := range strs {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(consts.Ints))); err != nil {
		return err
	}
	for _, v := range consts.Ints {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(consts.Floats))); err != nil {
		return err
	}
	for _, v := range consts.Floats {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Unpack reads a packaged module.
func Unpack(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, err
	}
	if magic != packMagic {
		return nil, errors.New("not a packaged module: bad magic")
	}
	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != packVersion {
		return nil, errors.Errorf("unsupported package version %d", version)
	}
	var funcCount uint32
	if err := binary.Read(br, binary.LittleEndian, &funcCount); err != nil {
		return nil, err
	}
	type rawFunc struct {
		fn   *Function
		recs []packedInstr
	}
	raw := make([]rawFunc, 0, funcCount)
	for i := uint32(0); i < funcCount; i++ {
		var nameLen uint16
		if err := binary.Read(br, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, err
		}
		arity, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		var maxSlot uint16
		if err := binary.Read(br, binary.LittleEndian, &maxSlot); err != nil {
			return nil, err
		}
		var instrCount uint32
		if err := binary.Read(br, binary.LittleEndian, &instrCount); err != nil {
			return nil, err
		}
		recs := make([]packedInstr, instrCount)
		if err := binary.Read(br, binary.LittleEndian, &recs); err != nil {
			return nil, err
		}
		raw = append(raw, rawFunc{
			fn: &Function{
				Name:    string(name),
				Arity:   int(arity),
				MaxSlot: int(maxSlot),
			},
			recs: recs,
		})
	}
	m := NewModule()
	var strCount uint32
	if err := binary.Read(br, binary.LittleEndian, &strCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < strCount; i++ {
		var l uint32
		if err := binary.Read(br, binary.LittleEndian, &l); err != nil {
			return nil, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		m.Strings.Intern(string(b))
	}
	var intCount uint32
	if err := binary.Read(br, binary.LittleEndian, &intCount); err != nil {
		return nil, err
	}
	consts := NewConstPool()
	for i := uint32(0); i < intCount; i++ {
		var v int64
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		consts.Ints = append(consts.Ints, v)
	}
	var floatCount uint32
	if err := binary.Read(br, binary.LittleEndian, &floatCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < floatCount; i++ {
		var v float64
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		consts.Floats = append(consts.Floats, v)
	}
	m.Consts = consts
	for _, rf := range raw {
		rf.fn.Code = make([]Instr, len(rf.recs))
		for i, rec := range rf.recs {
			rf.fn.Code[i] = unpackInstr(rec, consts)
		}
		m.AddFunction(rf.fn)
	}
	return m, nil
}
