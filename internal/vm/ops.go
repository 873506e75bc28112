// internal/vm/ops.go
package vm

import (
	"math"
	"strconv"
	"strings"

	"rzn/internal/errors"
)

// Arith applies a binary arithmetic operator. Int operands stay int except
// where the operation widens; any float operand widens the result.
func Arith(op string, a, b Value) (Value, *errors.RuntimeError) {
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "/":
			if bi == 0 {
				return nil, errors.NewRuntimeError(errors.DivisionByZero, 0, "division by zero")
			}
			return ai / bi, nil
		case "%":
			if bi == 0 {
				return nil, errors.NewRuntimeError(errors.ModuloByZero, 0, "modulo by zero")
			}
			return ai % bi, nil
		case "//":
			if bi == 0 {
				return nil, errors.NewRuntimeError(errors.DivisionByZero, 0, "division by zero")
			}
			q := ai / bi
			if ai%bi != 0 && (ai < 0) != (bi < 0) {
				q--
			}
			return q, nil
		case "**":
			if bi < 0 {
				return math.Pow(float64(ai), float64(bi)), nil
			}
			result := int64(1)
			base, exp := ai, bi
			for exp > 0 {
				if exp&1 == 1 {
					result *= base
				}
				base *= base
				exp >>= 1
			}
			return result, nil
		}
	}
	// String concatenation rides on +.
	if op == "+" {
		if as, ok := a.(Str); ok {
			if bs, ok := b.(Str); ok {
				return OwnedStr(as.S + bs.S), nil
			}
		}
	}
	af, aNum := toFloatOperand(a)
	bf, bNum := toFloatOperand(b)
	if !aNum || !bNum {
		return nil, coercionError(op, a, b)
	}
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		return af / bf, nil
	case "%":
		return math.Mod(af, bf), nil
	case "//":
		return math.Floor(af / bf), nil
	case "**":
		return math.Pow(af, bf), nil
	}
	return nil, coercionError(op, a, b)
}

func toFloatOperand(v Value) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

// Negate implements unary minus.
func Negate(v Value) (Value, *errors.RuntimeError) {
	switch val := v.(type) {
	case int64:
		return -val, nil
	case float64:
		return -val, nil
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"operator - is not defined for %s", TypeTag(v))
}

// Compare applies an ordering operator. Ordering exists for numbers and,
// lexicographically, for strings and chars; float comparisons follow
// IEEE-754, so any NaN operand yields false.
func Compare(op string, a, b Value) (Value, *errors.RuntimeError) {
	if as, ok := a.(Str); ok {
		if bs, ok := b.(Str); ok {
			return cmpResult(op, strings.Compare(as.S, bs.S)), nil
		}
	}
	if ac, ok := a.(Char); ok {
		if bc, ok := b.(Char); ok {
			switch {
			case ac < bc:
				return cmpResult(op, -1), nil
			case ac > bc:
				return cmpResult(op, 1), nil
			}
			return cmpResult(op, 0), nil
		}
	}
	af, aNum := toFloatOperand(a)
	bf, bNum := toFloatOperand(b)
	if !aNum || !bNum {
		return nil, coercionError(op, a, b)
	}
	switch op {
	case "<":
		return af < bf, nil
	case "<=":
		return af <= bf, nil
	case ">":
		return af > bf, nil
	case ">=":
		return af >= bf, nil
	}
	return nil, coercionError(op, a, b)
}

func cmpResult(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

// Bitwise applies integer-only operators.
func Bitwise(op string, a, b Value) (Value, *errors.RuntimeError) {
	ai, aOK := a.(int64)
	bi, bOK := b.(int64)
	if !aOK || !bOK {
		return nil, coercionError(op, a, b)
	}
	switch op {
	case "&":
		return ai & bi, nil
	case "|":
		return ai | bi, nil
	case "^":
		return ai ^ bi, nil
	case "<<":
		if bi < 0 || bi > 63 {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"shift count %d out of range", bi)
		}
		return ai << uint(bi), nil
	case ">>":
		if bi < 0 || bi > 63 {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"shift count %d out of range", bi)
		}
		return ai >> uint(bi), nil
	}
	return nil, coercionError(op, a, b)
}

// Length returns element count for arrays, entry count for maps, and byte
// count for strings.
func Length(v Value) (Value, *errors.RuntimeError) {
	switch val := v.(type) {
	case Str:
		return int64(len(val.S)), nil
	case *Array:
		return int64(len(val.Elements)), nil
	case *Map:
		return int64(len(val.Items)), nil
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"len is not defined for %s", TypeTag(v))
}

// ToInt applies the explicit integer conversion.
func ToInt(v Value) (Value, *errors.RuntimeError) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case Str:
		n, err := strconv.ParseInt(strings.TrimSpace(val.S), 10, 64)
		if err != nil {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"cannot parse %q as int", val.S)
		}
		return n, nil
	case Char:
		return int64(val), nil
	case nil:
		return int64(0), nil
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"cannot convert %s to int", TypeTag(v))
}

// ToFloat applies the explicit float conversion.
func ToFloat(v Value) (Value, *errors.RuntimeError) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case bool:
		if val {
			return 1.0, nil
		}
		return 0.0, nil
	case Str:
		f, err := strconv.ParseFloat(strings.TrimSpace(val.S), 64)
		if err != nil {
			return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
				"cannot parse %q as float", val.S)
		}
		return f, nil
	case nil:
		return 0.0, nil
	}
	return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"cannot convert %s to float", TypeTag(v))
}

// ToStr renders any value as an owned string.
func ToStr(v Value) Value {
	return OwnedStr(Display(v))
}

// ToBool applies the explicit bool conversion. Strings must spell a
// boolean; everything else follows truthiness.
func ToBool(v Value) (Value, *errors.RuntimeError) {
	if s, ok := v.(Str); ok {
		switch strings.TrimSpace(s.S) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"cannot parse %q as bool", s.S)
	}
	return Truthy(v), nil
}

// Interpolate coerces a value for string interpolation; only scalar types
// coerce implicitly.
func Interpolate(v Value) (string, *errors.RuntimeError) {
	switch v.(type) {
	case Str, int64, float64, bool, Char:
		return Display(v), nil
	}
	return "", errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
		"value of type %s cannot be interpolated into a string", TypeTag(v))
}
