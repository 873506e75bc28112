// internal/vm/value.go
package vm

import (
	"fmt"
	"strconv"
	"strings"

	"rzn/internal/errors"
	"rzn/internal/ir"
)

// Value is a runtime value. The concrete types are:
//
//	int64, float64, bool, Str, Char, nil,
//	*Array, *Map, *Struct, *Enum, *FuncValue, *ErrorValue
type Value interface{}

// Str is the runtime string. ID is the string-pool id for pooled literals
// and -1 for strings built at runtime; pooled strings compare by id.
type Str struct {
	S  string
	ID int32
}

// OwnedStr wraps a runtime-constructed string, which is never interned.
func OwnedStr(s string) Str { return Str{S: s, ID: -1} }

// Char is a single code point.
type Char rune

// Array is an ordered sequence of values.
type Array struct {
	Elements []Value
}

// Map preserves insertion order of its keys.
type Map struct {
	Items map[string]Value
	Keys  []string
}

func NewMap() *Map {
	return &Map{Items: make(map[string]Value)}
}

// Set writes a key, appending to the order on first insertion.
func (m *Map) Set(key string, v Value) {
	if _, exists := m.Items[key]; !exists {
		m.Keys = append(m.Keys, key)
	}
	m.Items[key] = v
}

// Struct is a named record with ordered fields.
type Struct struct {
	TypeName string
	Names    []string
	Values   []Value
}

// Field returns a field value by name.
func (s *Struct) Field(name string) (Value, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Values[i], true
		}
	}
	return nil, false
}

// SetField overwrites a field by name.
func (s *Struct) SetField(name string, v Value) bool {
	for i, n := range s.Names {
		if n == name {
			s.Values[i] = v
			return true
		}
	}
	return false
}

// Enum is an enum variant instance with an optional payload.
type Enum struct {
	TypeName   string
	Variant    string
	Payload    Value
	HasPayload bool
}

// FuncValue references a compiled IR function.
type FuncValue struct {
	Fn *ir.Function
}

// ErrorValue is the catchable form of a runtime error.
type ErrorValue struct {
	Kind    string
	Message string
	Offset  int
}

// TypeTag returns the fixed lowercase tag used by typeof.
func TypeTag(v Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case int64:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case Str:
		return "str"
	case Char:
		return "char"
	case *Array:
		return "array"
	case *Map:
		return "map"
	case *Struct:
		return "struct"
	case *Enum:
		return "enum"
	case *FuncValue:
		return "function"
	case *ErrorValue:
		return "error"
	}
	return "unknown"
}

// Truthy reports the boolean interpretation used by ToBool.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	case Str:
		return val.S != ""
	case Char:
		return val != 0
	case *Array:
		return len(val.Elements) > 0
	case *Map:
		return len(val.Items) > 0
	}
	return true
}

// Display renders a value the way print shows it.
func Display(v Value) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case Str:
		return val.S
	case Char:
		return string(rune(val))
	case *Array:
		parts := make([]string, len(val.Elements))
		for i, el := range val.Elements {
			parts[i] = Display(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Map:
		parts := make([]string, 0, len(val.Keys))
		for _, k := range val.Keys {
			parts = append(parts, k+": "+Display(val.Items[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Struct:
		parts := make([]string, len(val.Names))
		for i, n := range val.Names {
			parts[i] = n + ": " + Display(val.Values[i])
		}
		return val.TypeName + "{" + strings.Join(parts, ", ") + "}"
	case *Enum:
		if val.HasPayload {
			return val.TypeName + "::" + val.Variant + "(" + Display(val.Payload) + ")"
		}
		return val.TypeName + "::" + val.Variant
	case *FuncValue:
		return "<fun " + val.Fn.Name + ">"
	case *ErrorValue:
		return val.Kind + ": " + val.Message
	}
	return fmt.Sprintf("%v", v)
}

// Equal is structural value equality. Int and float compare numerically;
// any other cross-type comparison is false. Pooled strings short-circuit on
// their pool ids.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return float64(av) == bv
		}
		return false
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int64:
			return av == float64(bv)
		}
		return false
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		if !ok {
			return false
		}
		if av.ID >= 0 && bv.ID >= 0 {
			return av.ID == bv.ID
		}
		return av.S == bv.S
	case Char:
		bv, ok := b.(Char)
		return ok && av == bv
	case *Array:
		bv, ok := b.(*Array)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equal(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for k, v := range av.Items {
			other, exists := bv.Items[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	case *Struct:
		bv, ok := b.(*Struct)
		if !ok || av.TypeName != bv.TypeName || len(av.Values) != len(bv.Values) {
			return false
		}
		for i := range av.Values {
			if !Equal(av.Values[i], bv.Values[i]) {
				return false
			}
		}
		return true
	case *Enum:
		bv, ok := b.(*Enum)
		if !ok || av.TypeName != bv.TypeName || av.Variant != bv.Variant {
			return false
		}
		if av.HasPayload != bv.HasPayload {
			return false
		}
		return !av.HasPayload || Equal(av.Payload, bv.Payload)
	case *FuncValue:
		bv, ok := b.(*FuncValue)
		return ok && av.Fn == bv.Fn
	}
	return false
}

// coercionError builds the shared runtime error for undefined operand
// combinations; the caller attaches the IR offset.
func coercionError(op string, a, b Value) *errors.RuntimeError {
	return errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"operator %s is not defined for %s and %s", op, TypeTag(a), TypeTag(b))
}
