package policy

import (
	"github.com/normgraph/normgraph/value"
)

// Scratch is a per-(record, field) persistent mapping handed to read
// and merge functions for memoizing expensive work across repeated
// invocations. It survives between operations but is never persisted
// with the store.
type Scratch map[string]any

// FieldContext is the capability object supplied to every read and
// merge function invocation. It is implemented by the cache engine;
// policy functions receive it and must not retain it beyond the call.
type FieldContext interface {
	// TypeName is the declared type owning the field being dispatched.
	TypeName() string

	// FieldName is the field being dispatched.
	FieldName() string

	// StorageKey is the resolved slot name for this invocation,
	// including any key-argument suffix.
	StorageKey() string

	// Args returns the final, variable-substituted arguments of this
	// invocation. Never nil; empty when the field takes no arguments.
	Args() value.Object

	// IsReference reports whether v is a reference to a normalized
	// record.
	IsReference(v value.Value) bool

	// ToReference turns an identifiable object (or an existing Ref)
	// into a reference. When store is true the object's fields are also
	// written into the target record as part of the current operation.
	// ok is false when the object cannot be identified.
	ToReference(v value.Value, store bool) (ref value.Ref, ok bool)

	// ReadField reads another field's already-policy-resolved value.
	// With no from argument it reads from the record currently being
	// dispatched; otherwise from may be an embedded object or a Ref to
	// a foreign record. ok is false when the field is missing. Reads of
	// a (record, key) pair already being resolved in this operation
	// short-circuit to the committed snapshot, which breaks cycles.
	ReadField(name string, from ...value.Value) (v value.Value, ok bool)

	// CanRead reports whether v is currently resolvable: true for any
	// non-reference value, and for references whose target record
	// exists. Dangling references report false.
	CanRead(v value.Value) bool

	// Scratch returns the persistent per-(record, field) scratch map.
	Scratch() Scratch

	// MergeObjects applies the generic structural object-merge helper:
	// fields of incoming merged key-by-key into existing, recursing
	// where both sides are embedded objects of the same declared type.
	// Neither input is mutated.
	MergeObjects(existing, incoming value.Value) value.Value
}
