package value

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// TypeNameField is the object field that carries the declared type of a
// response object. Embedded (non-normalized) objects keep it so that the
// default merge can tell whether two snapshots describe the same thing.
const TypeNameField = "__typename"

// EntityID uniquely identifies one normalized record in the store.
// It is derived from the declared type name plus the canonical
// serialization of the type's key-field values, so two objects with the
// same EntityID are the same logical entity no matter which response
// produced them.
type EntityID string

// Value is a sealed interface over everything the store can hold:
// Null, String, Int, Float, Bool, List, Object, Ref, and Opaque.
// Only these types implement it.
type Value interface {
	storedValue() // Sealed - only these types implement it
}

// Null represents an explicitly stored null. It is distinct from an
// absent field: a nil Value means "not present", Null{} means "present
// and null".
type Null struct{}

func (Null) storedValue() {}

// String is a string scalar.
type String string

func (String) storedValue() {}

// Int is an integer scalar, always int64.
type Int int64

func (Int) storedValue() {}

// Float is a floating-point scalar. It never participates in identity
// or storage-key computation unless a policy explicitly selects it;
// canonical serialization formats it with shortest round-trip notation
// so equal floats always serialize identically.
type Float float64

func (Float) storedValue() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) storedValue() {}

// List is an ordered sequence of values. Element order is significant
// and preserved by normalization.
type List []Value

func (List) storedValue() {}

// Object is a mapping from field or storage-key names to values. It is
// used both for embedded (non-normalized) structures inside a record
// and for raw response objects before normalization. Use SortedKeys for
// deterministic iteration.
type Object map[string]Value

func (Object) storedValue() {}

// Ref is an identity-based pointer to another record. It owns nothing:
// the target record may have been evicted, in which case the Ref is
// dangling and reads through it report missing data.
type Ref struct {
	To EntityID
}

func (Ref) storedValue() {}

// Opaque carries a caller-chosen internal representation that the
// engine never interprets, only stores and hands back. Policy read and
// merge functions use it to keep bookkeeping (cursors, key maps) in
// whatever shape suits them.
type Opaque struct {
	V any
}

func (Opaque) storedValue() {}

// TypeName returns the declared type of an object, or "" when the
// object carries none.
func (obj Object) TypeName() string {
	if s, ok := obj[TypeNameField].(String); ok {
		return string(s)
	}
	return ""
}

// SortedKeys returns keys in canonical order (UTF-16 code units, per
// RFC 8785). Go's sort.Strings compares UTF-8 bytes, which produces a
// different order for strings outside the ASCII range.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings by UTF-16 code units as required by
// RFC 8785 canonical JSON. utf16.Encode handles surrogate pairs.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// FromAny converts a Go value (typically the output of decoding JSON
// into any) to a Value. Numbers that are whole and fit int64 become
// Int; everything else numeric becomes Float. Unknown types are an
// error rather than being wrapped in Opaque, so accidental leakage of
// engine-internal types into responses is caught early.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		if val == float64(int64(val)) {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case float32:
		return FromAny(float64(val))
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			sv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = sv
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			sv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = sv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// MustFromAny is like FromAny but panics on error. Use only in tests or
// when inputs are known to be valid.
func MustFromAny(v any) Value {
	sv, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return sv
}

// ToAny converts a Value back to plain Go types (map[string]any,
// []any, scalars). Refs convert to a one-key map {"__ref": id} so dumps
// stay plain JSON; Opaque values are returned as-is.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Ref:
		return map[string]any{"__ref": string(val.To)}
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	case Opaque:
		return val.V
	default:
		return nil
	}
}

// Equal reports deep equality of two values. A nil Value is only equal
// to another nil Value; Null{} and nil are distinct. Opaque values
// compare by shallow interface equality, which is the strongest
// guarantee available for caller-chosen representations.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.To == bv.To
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, present := bv[k]
			if !present || !Equal(ae, be) {
				return false
			}
		}
		return true
	case Opaque:
		bv, ok := b.(Opaque)
		return ok && av.V == bv.V
	default:
		return false
	}
}

// Copy returns a deep copy of v. Scalars and Refs are value types and
// returned as-is; Lists and Objects are rebuilt. Opaque payloads cannot
// be copied generically and are shared.
func Copy(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Copy(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Copy(elem)
		}
		return out
	default:
		return v
	}
}
