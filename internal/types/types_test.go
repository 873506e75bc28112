// internal/types/types_test.go
package types

import "testing"

func TestAssignability(t *testing.T) {
	cases := []struct {
		src, dst *Type
		want     bool
	}{
		{Int, Int, true},
		{Int, Float, true}, // widening
		{Float, Int, false},
		{Str, Int, false},
		{Int, Any, true},
		{NewArray(Int), NewArray(Int), true},
		{NewArray(Int), NewArray(Float), false},
		{NewMap(Str, Int), NewMap(Str, Int), true},
		{Null, Null, true},
	}
	for _, c := range cases {
		if got := c.src.AssignableTo(c.dst); got != c.want {
			t.Errorf("%s assignable to %s = %v, want %v", c.src, c.dst, got, c.want)
		}
	}
}

func TestNamedTypeEquality(t *testing.T) {
	p1 := NewStruct("Point", []Field{{Name: "x", Type: Int}})
	p2 := NewStruct("Point", []Field{{Name: "x", Type: Int}})
	q := NewStruct("Quad", nil)
	if !p1.Equal(p2) {
		t.Fatal("same-named structs are equal")
	}
	if p1.Equal(q) {
		t.Fatal("different names differ")
	}
}

func TestBinaryResultInference(t *testing.T) {
	if BinaryResult("+", Int, Int) != Int {
		t.Fatal("int + int = int")
	}
	if BinaryResult("+", Int, Float) != Float {
		t.Fatal("int + float = float")
	}
	if BinaryResult("+", Str, Str) != Str {
		t.Fatal("str + str = str")
	}
	if BinaryResult("==", Str, Str) != Bool {
		t.Fatal("comparison yields bool")
	}
	if BinaryResult("&", Int, Int) != Int {
		t.Fatal("bitwise int")
	}
	if BinaryResult("&", Float, Int) != Unknown {
		t.Fatal("bitwise rejects floats")
	}
	if BinaryResult("+", Str, Int) != Unknown {
		t.Fatal("str + int is invalid")
	}
	if rt := BinaryResult("..", Int, Int); rt.Kind != KindArray || rt.Elem != Int {
		t.Fatalf("range type = %v", rt)
	}
}

func TestParseAnnotations(t *testing.T) {
	point := NewStruct("Point", nil)
	resolve := func(name string) *Type {
		if name == "Point" {
			return point
		}
		return nil
	}
	cases := []struct {
		src  string
		want string
	}{
		{"int", "int"},
		{"float", "float"},
		{"any", "any"},
		{"Array<int>", "Array<int>"},
		{"Map<str,int>", "Map<str,int>"},
		{"Array<Array<float>>", "Array<Array<float>>"},
		{"Point", "Point"},
	}
	for _, c := range cases {
		got, ok := Parse(c.src, resolve)
		if !ok {
			t.Errorf("Parse(%q) failed", c.src)
			continue
		}
		if got.String() != c.want {
			t.Errorf("Parse(%q) = %s, want %s", c.src, got, c.want)
		}
	}
	if _, ok := Parse("Mystery", resolve); ok {
		t.Error("unknown named type must fail")
	}
}

func TestInterpolationCoercion(t *testing.T) {
	for _, ty := range []*Type{Int, Float, Bool, Char, Str, Any} {
		if !ty.CoercibleToStr() {
			t.Errorf("%s must coerce in interpolation", ty)
		}
	}
	if NewArray(Int).CoercibleToStr() {
		t.Error("arrays must not coerce implicitly")
	}
}
