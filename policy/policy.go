// Package policy defines the per-type and per-field configuration that
// customizes how the cache identifies, stores, reads, and merges data:
// key fields for entity identity, key arguments for storage-slot
// computation, and read/merge functions that intercept every field
// access.
package policy

import (
	"github.com/normgraph/normgraph/value"
)

// ReadFunc intercepts a field read. existing is the currently stored
// value for the field's storage key, or nil when the key has never been
// written. Returning (nil, nil) reports the field as genuinely missing
// from the cache, which is distinct from returning value.Null{}.
//
// The function must treat existing as immutable: build and return new
// values, never mutate existing in place.
type ReadFunc func(existing value.Value, ctx FieldContext) (value.Value, error)

// MergeFunc combines an incoming write with the stored value for one
// storage key. existing is nil on first write. The return value becomes
// the new authoritative stored value. A returned error aborts the whole
// enclosing write operation with no visible mutation.
type MergeFunc func(existing, incoming value.Value, ctx FieldContext) (value.Value, error)

// MergeKind tags the effective merge behavior of a field. Representing
// the directive as a closed variant keeps dispatch a switch instead of
// a chain of nil checks.
type MergeKind int

const (
	// MergeUnset means no merge policy applies: incoming replaces
	// existing outright.
	MergeUnset MergeKind = iota

	// MergeStructural always merges incoming into existing through the
	// generic object-merge helper (the merge:true directive).
	MergeStructural

	// MergeKeep drops the incoming value and keeps existing unmodified
	// (the merge:false directive). Distinct from MergeUnset.
	MergeKeep

	// MergeCustom dispatches to a user-supplied MergeFunc.
	MergeCustom
)

// Merge is the tagged merge directive for a field. The zero value is
// MergeUnset.
type Merge struct {
	kind MergeKind
	fn   MergeFunc
}

// StructuralMerge returns the merge:true directive.
func StructuralMerge() Merge { return Merge{kind: MergeStructural} }

// KeepExisting returns the merge:false directive: incoming writes to
// the field are dropped once a value exists.
func KeepExisting() Merge { return Merge{kind: MergeKeep} }

// MergeWith wraps a custom merge function.
func MergeWith(fn MergeFunc) Merge { return Merge{kind: MergeCustom, fn: fn} }

// Kind returns the directive tag.
func (m Merge) Kind() MergeKind { return m.kind }

// Func returns the custom merge function, or nil unless Kind is
// MergeCustom.
func (m Merge) Func() MergeFunc { return m.fn }

// FieldPolicy configures one field of one type. All parts are
// optional; unset parts fall back through the resolution chain
// (interfaces the type implements, then the type-level default merge).
type FieldPolicy struct {
	// KeyArgs selects which arguments distinguish storage slots for
	// this field. The zero value considers every argument.
	KeyArgs KeyArgs

	// Read intercepts reads of this field.
	Read ReadFunc

	// Merge directs how incoming writes combine with stored values.
	Merge Merge
}

// TypePolicy configures one object type.
type TypePolicy struct {
	// KeyFields lists the field paths whose values form this type's
	// identity, in order. Paths may descend into nested objects with
	// dots ("author.id"). Empty means the type has no declared key and
	// identity falls back to an "id" field when one is present.
	KeyFields []string

	// Embedded forces instances of this type to be stored inline in
	// their parent record, never normalized, even when an "id" field is
	// present.
	Embedded bool

	// Implements names interface or union types whose field policies
	// apply to this type when it declares none of its own for a field.
	Implements []string

	// DefaultMerge applies to every field whose declared result is this
	// type and which resolves no field-level merge.
	DefaultMerge Merge

	// Fields maps field names to their policies.
	Fields map[string]FieldPolicy
}

// Config is the construction-time policy surface of a cache: a mapping
// from type name to TypePolicy. It may be extended incrementally after
// construction without invalidating stored data.
type Config map[string]*TypePolicy
