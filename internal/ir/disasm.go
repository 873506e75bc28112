// internal/ir/disasm.go
package ir

import (
	"fmt"
	"strings"
)

// Disassemble renders one function as readable text, resolving string-pool
// ids when a pool is supplied.
func Disassemble(f *Function, pool *StringPool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("fun %s/%d (slots=%d)\n", f.Name, f.Arity, f.MaxSlot+1))
	for i, in := range f.Code {
		text := in.String()
		if pool != nil {
			switch in.Op {
			case OpPushStr, OpLoadGlobal, OpStoreGlobal, OpGetField, OpSetField,
				OpGetKey, OpSetKey, OpEnumMatch:
				text = fmt.Sprintf("%s %q", in.Op, pool.Lookup(in.S))
			case OpCall:
				text = fmt.Sprintf("%s %s argc=%d", in.Op, pool.Lookup(in.S), in.B)
			case OpMethodCall:
				text = fmt.Sprintf("%s %s argc=%d", in.Op, pool.Lookup(in.S), in.A)
			case OpStructNew, OpEnumNew:
				text = fmt.Sprintf("%s %s n=%d", in.Op, pool.Lookup(in.S), in.A)
			case OpDefineFunction:
				text = fmt.Sprintf("%s %s f%d", in.Op, pool.Lookup(in.S), in.A)
			}
		}
		if in.Op == OpLabel {
			sb.WriteString(fmt.Sprintf("%4d  %s\n", i, in))
		} else {
			sb.WriteString(fmt.Sprintf("%4d    %s\n", i, text))
		}
	}
	return sb.String()
}

// DumpModule renders every function in the module.
func DumpModule(m *Module) string {
	var sb strings.Builder
	for _, f := range m.Funcs {
		sb.WriteString(Disassemble(f, m.Strings))
		sb.WriteString("\n")
	}
	return sb.String()
}
