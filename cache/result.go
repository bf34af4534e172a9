package cache

import (
	"github.com/normgraph/normgraph/value"
)

// FieldRef names one storage slot: a record plus a storage key within
// it. The change set of a write is a list of these, which is what a
// change-notification layer needs to decide which active queries are
// affected.
type FieldRef struct {
	Entity value.EntityID
	Key    string
}

// Degraded reports a non-fatal normalization failure: an object whose
// type declares key fields but whose values were absent at write time.
// The object was embedded inline instead of normalized.
type Degraded struct {
	// TypeName is the declared type of the object.
	TypeName string

	// Path locates the object in the incoming response tree, by
	// response keys and list indexes.
	Path []string
}

// WriteResult reports the outcome of one committed write operation.
type WriteResult struct {
	// Token identifies this write operation. Tokens are time-ordered
	// (UUIDv7), so a notification layer can order overlapping results.
	Token string

	// Changed lists every storage slot whose value changed, compared by
	// deep inequality after structural sharing. Sorted by entity then
	// key.
	Changed []FieldRef

	// Degraded lists objects that fell back to inline embedding.
	Degraded []Degraded
}

// Dirty reports whether the write changed anything.
func (w *WriteResult) Dirty() bool {
	return len(w.Changed) > 0
}

// MissingReason categorizes why a requested field produced no value.
type MissingReason string

const (
	// ReasonMissingField: the storage key has never been written and no
	// read function supplied a value.
	ReasonMissingField MissingReason = "MISSING_FIELD"

	// ReasonDangling: a stored reference points at a record that no
	// longer exists.
	ReasonDangling MissingReason = "DANGLING_REFERENCE"

	// ReasonAbsentRecord: the record a selection was addressed to does
	// not exist at all.
	ReasonAbsentRecord MissingReason = "ABSENT_RECORD"
)

// Missing locates one hole in a read result.
type Missing struct {
	// Path locates the field by response keys and list indexes.
	Path []string

	// Reason categorizes the hole.
	Reason MissingReason
}

// ReadResult is a materialized result tree plus the list of holes in
// it. The caller decides whether partial data is acceptable.
type ReadResult struct {
	// Data is the result tree, keyed by response keys. Fields reported
	// in Missing are absent from it.
	Data value.Object

	// Missing lists every requested field that produced no value.
	Missing []Missing
}

// Complete reports whether every requested field resolved.
func (r *ReadResult) Complete() bool {
	return len(r.Missing) == 0
}
