package cache

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

// Write normalizes an incoming response tree into the store. data is
// the response, shaped like req and keyed by response keys; fields
// absent from data are skipped, so partial responses are fine.
//
// The write is atomic: mutations are buffered in a transaction and
// committed only when the whole traversal succeeds. A failing merge or
// key function aborts the operation with no visible change. Re-writing
// the same response is idempotent as long as no merge function
// introduces history-dependent behavior.
func (c *Cache) Write(req *Request, data value.Object) (*WriteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &writeTx{
		c:        c,
		token:    uuid.Must(uuid.NewV7()).String(),
		updated:  make(map[value.EntityID]record),
		inflight: make(map[FieldRef]bool),
	}

	if err := tx.writeSelection(RootID, req.rootType(), req.Fields, data, nil); err != nil {
		return nil, err
	}

	changed := tx.commit()
	return &WriteResult{
		Token:    tx.token,
		Changed:  changed,
		Degraded: tx.degraded,
	}, nil
}

// writeTx buffers the record mutations of one write operation. Records
// are copied into the overlay on first touch and the base store is only
// modified at commit, which is what makes a mid-traversal policy error
// discard cleanly.
type writeTx struct {
	c        *Cache
	token    string
	updated  map[value.EntityID]record
	degraded []Degraded

	// inflight tracks slots whose read function is currently running on
	// behalf of a merge function's ReadField, mirroring the read path's
	// cycle guard.
	inflight map[FieldRef]bool
}

// lookup reads a storage slot through the overlay.
func (tx *writeTx) lookup(id value.EntityID, key string) (value.Value, bool) {
	if rec, ok := tx.updated[id]; ok {
		v, ok := rec[key]
		return v, ok
	}
	return tx.c.lookup(id, key)
}

// recordExists reports whether a record exists in the overlay or base.
func (tx *writeTx) recordExists(id value.EntityID) bool {
	if _, ok := tx.updated[id]; ok {
		return true
	}
	_, ok := tx.c.records[id]
	return ok
}

// rec returns the overlay copy of a record, creating it from the base
// (or empty) on first touch.
func (tx *writeTx) rec(id value.EntityID) record {
	if rec, ok := tx.updated[id]; ok {
		return rec
	}
	base := tx.c.records[id]
	rec := make(record, len(base)+4)
	for k, v := range base {
		rec[k] = v
	}
	tx.updated[id] = rec
	return rec
}

// writeSelection dispatches each selected field of data into the target
// record.
func (tx *writeTx) writeSelection(id value.EntityID, typename string, fields []*Field, data value.Object, path []string) error {
	if tn := data.TypeName(); tn != "" {
		tx.rec(id)[value.TypeNameField] = value.String(tn)
	}

	for _, sel := range fields {
		incoming, present := data[sel.ResponseKey()]
		if !present {
			continue
		}
		if err := tx.writeField(id, typename, sel, incoming, append(path, sel.ResponseKey())); err != nil {
			return err
		}
	}
	return nil
}

// writeField normalizes one incoming field value and merges it into its
// storage slot.
func (tx *writeTx) writeField(id value.EntityID, typename string, sel *Field, incoming value.Value, path []string) error {
	resolved := tx.c.resolver.Resolve(typename, sel.Name)

	storageKey, err := policy.BuildStorageKey(sel.Name, sel.args(), resolved.KeyArgs, policy.KeyContext{
		TypeName: typename,
		Field:    sel.Name,
	})
	if err != nil {
		return &OpError{
			Code:     ErrCodeStorageKey,
			Message:  "cannot compute storage key",
			TypeName: typename,
			Field:    sel.Name,
			Path:     append([]string(nil), path...),
			Err:      err,
		}
	}

	normalized, err := tx.normalize(sel, incoming, path)
	if err != nil {
		return err
	}

	existing, exists := tx.lookup(id, storageKey)
	if !exists {
		existing = nil
	}

	merged, err := tx.applyMerge(resolved, sel, id, typename, storageKey, existing, normalized, path)
	if err != nil {
		return err
	}
	tx.rec(id)[storageKey] = merged
	return nil
}

// normalize converts an incoming response value into its stored form:
// entities become references (their fields written into their own
// records), keyless objects embed inline, lists recurse elementwise.
func (tx *writeTx) normalize(sel *Field, incoming value.Value, path []string) (value.Value, error) {
	switch v := incoming.(type) {
	case value.List:
		out := make(value.List, len(v))
		for i, elem := range v {
			normalized, err := tx.normalize(sel, elem, append(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil

	case value.Object:
		if len(sel.Selections) == 0 {
			// Leaf field holding structured scalar data: stored as a
			// private copy so later caller mutations of the response
			// cannot reach the committed store.
			return value.Copy(v), nil
		}
		typename := v.TypeName()
		if typename == "" {
			typename = sel.Type
		}

		targetID, err := tx.c.resolver.Identify(typename, v)
		if err != nil {
			if !policy.IsNotNormalizable(err) {
				return nil, &OpError{
					Code:     ErrCodeBadRequest,
					Message:  "identity computation failed",
					TypeName: typename,
					Path:     append([]string(nil), path...),
					Err:      err,
				}
			}
			// Degrade to inline embedding, and report it when the type
			// actually declared keys it was missing.
			if tp := tx.c.resolver.TypePolicy(typename); tp != nil && len(tp.KeyFields) > 0 {
				tx.degraded = append(tx.degraded, Degraded{
					TypeName: typename,
					Path:     append([]string(nil), path...),
				})
			}
			return tx.embed(typename, sel, v, path)
		}

		// Entity records always know their type, whether or not the
		// response spelled it out; reads resolve policies from it.
		tx.rec(targetID)[value.TypeNameField] = value.String(typename)
		if err := tx.writeSelection(targetID, typename, sel.Selections, v, path); err != nil {
			return nil, err
		}
		return value.Ref{To: targetID}, nil

	default:
		// Scalars, explicit nulls, refs, and opaque values store as-is.
		return incoming, nil
	}
}

// embed builds the inline stored form of a non-normalizable object:
// a structure keyed by storage keys, with child fields normalized
// recursively so entities below an embedded object still get their own
// records.
func (tx *writeTx) embed(typename string, sel *Field, obj value.Object, path []string) (value.Value, error) {
	out := make(value.Object, len(sel.Selections)+1)
	if typename != "" {
		out[value.TypeNameField] = value.String(typename)
	}

	for _, sub := range sel.Selections {
		incoming, present := obj[sub.ResponseKey()]
		if !present {
			continue
		}
		subPath := append(path, sub.ResponseKey())

		resolved := tx.c.resolver.Resolve(typename, sub.Name)
		storageKey, err := policy.BuildStorageKey(sub.Name, sub.args(), resolved.KeyArgs, policy.KeyContext{
			TypeName: typename,
			Field:    sub.Name,
		})
		if err != nil {
			return nil, &OpError{
				Code:     ErrCodeStorageKey,
				Message:  "cannot compute storage key",
				TypeName: typename,
				Field:    sub.Name,
				Path:     append([]string(nil), subPath...),
				Err:      err,
			}
		}

		normalized, err := tx.normalize(sub, incoming, subPath)
		if err != nil {
			return nil, err
		}
		out[storageKey] = normalized
	}
	return out, nil
}

// applyMerge runs the effective merge directive for one slot.
func (tx *writeTx) applyMerge(resolved *policy.Resolved, sel *Field, id value.EntityID, typename, storageKey string, existing, incoming value.Value, path []string) (value.Value, error) {
	merge := resolved.Merge
	if merge.Kind() == policy.MergeUnset && sel.Type != "" {
		merge = tx.c.resolver.DefaultMergeFor(sel.Type)
	}

	switch merge.Kind() {
	case policy.MergeCustom:
		ctx := &fieldContext{
			c:          tx.c,
			tx:         tx,
			id:         id,
			typeName:   typename,
			field:      sel.Name,
			storageKey: storageKey,
			args:       sel.args(),
		}
		merged, err := merge.Func()(existing, incoming, ctx)
		if err != nil {
			return nil, policyFuncError("merge", typename, sel.Name, path, err)
		}
		if merged == nil {
			return nil, policyFuncError("merge", typename, sel.Name, path,
				fmt.Errorf("merge function returned no value"))
		}
		return merged, nil

	case policy.MergeKeep:
		if existing != nil {
			return existing, nil
		}
		return incoming, nil

	case policy.MergeStructural:
		if existing == nil {
			return incoming, nil
		}
		return policy.MergeEmbedded(existing, incoming), nil

	default:
		// No policy: the incoming value replaces the stored one
		// outright, embedded objects included. Key-by-key merging of
		// embedded structures only happens under an explicit structural
		// directive, so an unconfigured partial re-write surfaces its
		// data loss instead of hiding it.
		return incoming, nil
	}
}

// commit installs the overlay into the base store, reusing untouched
// records and computing the change set by deep comparison. Returns the
// changed slots sorted by entity then key.
func (tx *writeTx) commit() []FieldRef {
	var changed []FieldRef
	for id, rec := range tx.updated {
		base := tx.c.records[id]
		dirty := false
		for key, v := range rec {
			old, ok := base[key]
			if !ok || !value.Equal(old, v) {
				changed = append(changed, FieldRef{Entity: id, Key: key})
				dirty = true
			}
		}
		// Keys never disappear during a write, so equal length plus no
		// dirty slot means the record is unchanged; keep the old map so
		// readers see identical generations.
		if dirty || len(rec) != len(base) {
			tx.c.records[id] = rec
		}
	}

	sortFieldRefs(changed)
	return changed
}
