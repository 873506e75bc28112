// internal/types/types.go
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the type variants.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindStr
	KindChar
	KindNull
	KindArray
	KindMap
	KindFunction
	KindStruct
	KindEnum
	KindAny
	KindUnknown
)

// Field is one named struct member. Order is declaration order.
type Field struct {
	Name string
	Type *Type
}

// Variant is one enum case with an optional payload type.
type Variant struct {
	Name    string
	Payload *Type // nil when the variant carries no payload
}

// Type describes a language type. Primitive types are shared singletons;
// composite types are built with the constructor functions below.
type Type struct {
	Kind     Kind
	Name     string  // struct and enum name
	Elem     *Type   // array element, map value
	Key      *Type   // map key
	Params   []*Type // function parameters
	Return   *Type   // function return
	Fields   []Field
	Variants []Variant
}

var (
	Int     = &Type{Kind: KindInt}
	Float   = &Type{Kind: KindFloat}
	Bool    = &Type{Kind: KindBool}
	Str     = &Type{Kind: KindStr}
	Char    = &Type{Kind: KindChar}
	Null    = &Type{Kind: KindNull}
	Any     = &Type{Kind: KindAny}
	Unknown = &Type{Kind: KindUnknown}
)

// NewArray builds Array<elem>.
func NewArray(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem}
}

// NewMap builds Map<key, value>.
func NewMap(key, value *Type) *Type {
	return &Type{Kind: KindMap, Key: key, Elem: value}
}

// NewFunction builds Function(params) -> ret.
func NewFunction(params []*Type, ret *Type) *Type {
	return &Type{Kind: KindFunction, Params: params, Return: ret}
}

// NewStruct builds a named struct type with ordered fields.
func NewStruct(name string, fields []Field) *Type {
	return &Type{Kind: KindStruct, Name: name, Fields: fields}
}

// NewEnum builds a named enum type.
func NewEnum(name string, variants []Variant) *Type {
	return &Type{Kind: KindEnum, Name: name, Variants: variants}
}

func (t *Type) String() string {
	switch t.Kind {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindChar:
		return "char"
	case KindNull:
		return "null"
	case KindAny:
		return "any"
	case KindUnknown:
		return "unknown"
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Elem)
	case KindMap:
		return fmt.Sprintf("Map<%s,%s>", t.Key, t.Elem)
	case KindFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("fun(%s) -> %s", strings.Join(parts, ", "), t.Return)
	case KindStruct, KindEnum:
		return t.Name
	}
	return "?"
}

// IsNumeric reports whether the type participates in arithmetic.
func (t *Type) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindFloat
}

// Equal is structural equality; named types compare by name.
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Elem.Equal(other.Elem)
	case KindMap:
		return t.Key.Equal(other.Key) && t.Elem.Equal(other.Elem)
	case KindFunction:
		if len(t.Params) != len(other.Params) || !t.Return.Equal(other.Return) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(other.Params[i]) {
				return false
			}
		}
		return true
	case KindStruct, KindEnum:
		return t.Name == other.Name
	default:
		return true
	}
}

// AssignableTo reports whether a value of this type may be stored into a
// slot declared as target. The only implicit widening is int to float;
// everything else requires an exact match or an Any slot.
func (t *Type) AssignableTo(target *Type) bool {
	if target.Kind == KindAny || t.Kind == KindUnknown || target.Kind == KindUnknown {
		return true
	}
	if target.Kind == KindFloat && t.Kind == KindInt {
		return true
	}
	return t.Equal(target)
}

// CoercibleToStr reports whether a value of this type may be stringified
// implicitly inside an interpolation context.
func (t *Type) CoercibleToStr() bool {
	switch t.Kind {
	case KindStr, KindInt, KindFloat, KindBool, KindChar:
		return true
	}
	// Any can hold anything; interpolation dispatches on the runtime tag.
	return t.Kind == KindAny || t.Kind == KindUnknown
}

// FieldType returns the type of a named struct field.
func (t *Type) FieldType(name string) (*Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// VariantByName returns an enum variant definition.
func (t *Type) VariantByName(name string) (Variant, bool) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// BinaryResult infers the result type of a binary operator applied to two
// operand types, or Unknown when the combination is invalid.
func BinaryResult(op string, left, right *Type) *Type {
	if left.Kind == KindAny || right.Kind == KindAny ||
		left.Kind == KindUnknown || right.Kind == KindUnknown {
		switch op {
		case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
			return Bool
		}
		return Any
	}
	switch op {
	case "+", "-", "*", "%":
		if left.IsNumeric() && right.IsNumeric() {
			if left.Kind == KindFloat || right.Kind == KindFloat {
				return Float
			}
			return Int
		}
		if op == "+" && left.Kind == KindStr && right.Kind == KindStr {
			return Str
		}
	case "/":
		if left.IsNumeric() && right.IsNumeric() {
			if left.Kind == KindFloat || right.Kind == KindFloat {
				return Float
			}
			return Int
		}
	case "//":
		if left.IsNumeric() && right.IsNumeric() {
			if left.Kind == KindFloat || right.Kind == KindFloat {
				return Float
			}
			return Int
		}
	case "**":
		if left.IsNumeric() && right.IsNumeric() {
			if left.Kind == KindFloat || right.Kind == KindFloat {
				return Float
			}
			// Negative integer exponents produce floats; that is a runtime
			// distinction, so the static result stays int only when both
			// operands are ints.
			return Int
		}
	case "==", "!=":
		return Bool
	case "<", "<=", ">", ">=":
		if (left.IsNumeric() && right.IsNumeric()) ||
			(left.Kind == KindStr && right.Kind == KindStr) ||
			(left.Kind == KindChar && right.Kind == KindChar) {
			return Bool
		}
	case "&&", "||":
		if left.Kind == KindBool && right.Kind == KindBool {
			return Bool
		}
	case "&", "|", "^", "<<", ">>":
		if left.Kind == KindInt && right.Kind == KindInt {
			return Int
		}
	case "..", "..=":
		if left.Kind == KindInt && right.Kind == KindInt {
			return NewArray(Int)
		}
	}
	return Unknown
}

// UnaryResult infers the result type of a unary operator.
func UnaryResult(op string, operand *Type) *Type {
	if operand.Kind == KindAny || operand.Kind == KindUnknown {
		if op == "!" {
			return Bool
		}
		return Any
	}
	switch op {
	case "-":
		if operand.IsNumeric() {
			return operand
		}
	case "!":
		if operand.Kind == KindBool {
			return Bool
		}
	case "~":
		if operand.Kind == KindInt {
			return Int
		}
	case "++", "--":
		if operand.IsNumeric() {
			return operand
		}
	}
	return Unknown
}

// Parse resolves a type annotation string against a resolver for named
// types. The resolver returns nil when the name is not a declared type.
func Parse(src string, resolve func(name string) *Type) (*Type, bool) {
	src = strings.TrimSpace(src)
	switch src {
	case "int":
		return Int, true
	case "float":
		return Float, true
	case "bool":
		return Bool, true
	case "str":
		return Str, true
	case "char":
		return Char, true
	case "null":
		return Null, true
	case "any":
		return Any, true
	}
	if strings.HasPrefix(src, "Array<") && strings.HasSuffix(src, ">") {
		elem, ok := Parse(src[6:len(src)-1], resolve)
		if !ok {
			return nil, false
		}
		return NewArray(elem), true
	}
	if strings.HasPrefix(src, "Map<") && strings.HasSuffix(src, ">") {
		inner := src[4 : len(src)-1]
		depth := 0
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '<':
				depth++
			case '>':
				depth--
			case ',':
				if depth == 0 {
					key, ok1 := Parse(inner[:i], resolve)
					val, ok2 := Parse(inner[i+1:], resolve)
					if ok1 && ok2 {
						return NewMap(key, val), true
					}
					return nil, false
				}
			}
		}
		return nil, false
	}
	if resolve != nil {
		if t := resolve(src); t != nil {
			return t, true
		}
	}
	return nil, false
}
