package cache

import (
	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

// fieldContext implements policy.FieldContext for one read or merge
// dispatch. Exactly one of tx (write mode) or rs (read mode) is set;
// lookups in write mode see the transaction overlay so merge functions
// observe fields written earlier in the same operation.
type fieldContext struct {
	c  *Cache
	tx *writeTx
	rs *readState

	id         value.EntityID
	typeName   string
	field      string
	storageKey string
	args       value.Object
}

var _ policy.FieldContext = (*fieldContext)(nil)

func (fc *fieldContext) TypeName() string   { return fc.typeName }
func (fc *fieldContext) FieldName() string  { return fc.field }
func (fc *fieldContext) StorageKey() string { return fc.storageKey }

func (fc *fieldContext) Args() value.Object {
	if fc.args == nil {
		return value.Object{}
	}
	return fc.args
}

func (fc *fieldContext) IsReference(v value.Value) bool {
	_, ok := v.(value.Ref)
	return ok
}

func (fc *fieldContext) ToReference(v value.Value, store bool) (value.Ref, bool) {
	switch val := v.(type) {
	case value.Ref:
		return val, true
	case value.Object:
		id, err := fc.c.resolver.Identify(val.TypeName(), val)
		if err != nil {
			return value.Ref{}, false
		}
		if store && fc.tx != nil {
			rec := fc.tx.rec(id)
			for k, fv := range val {
				rec[k] = fv
			}
		}
		return value.Ref{To: id}, true
	default:
		return value.Ref{}, false
	}
}

func (fc *fieldContext) ReadField(name string, from ...value.Value) (value.Value, bool) {
	// Embedded object source: fields live under storage keys, so the
	// slot name still goes through key-argument resolution.
	if len(from) > 0 {
		if obj, ok := from[0].(value.Object); ok {
			typename := obj.TypeName()
			resolved := fc.c.resolver.Resolve(typename, name)
			storageKey, err := policy.BuildStorageKey(name, value.Object{}, resolved.KeyArgs, policy.KeyContext{
				TypeName: typename,
				Field:    name,
			})
			if err != nil {
				return nil, false
			}
			v, ok := obj[storageKey]
			return v, ok
		}
	}

	// Resolve the target record: explicit Ref, or the current record.
	id := fc.id
	if len(from) > 0 {
		ref, ok := from[0].(value.Ref)
		if !ok {
			return nil, false
		}
		id = ref.To
	}

	typename := fc.typeName
	if rec, ok := fc.lookupRecord(id); ok {
		if tn := fc.c.typeNameOf(rec); tn != "" {
			typename = tn
		}
	} else {
		return nil, false
	}

	resolved := fc.c.resolver.Resolve(typename, name)
	storageKey, err := policy.BuildStorageKey(name, value.Object{}, resolved.KeyArgs, policy.KeyContext{
		TypeName: typename,
		Field:    name,
	})
	if err != nil {
		return nil, false
	}

	existing, exists := fc.lookupSlot(id, storageKey)

	// Recursive dispatch: honor the target field's read function in both
	// read and merge mode, unless that slot is already being resolved in
	// this operation, in which case the raw stored value breaks the
	// cycle.
	slot := FieldRef{Entity: id, Key: storageKey}
	inflight := fc.inflightSlots()
	if resolved.Read != nil && inflight != nil && !inflight[slot] {
		inflight[slot] = true
		v, rerr := resolved.Read(existing, &fieldContext{
			c:          fc.c,
			tx:         fc.tx,
			rs:         fc.rs,
			id:         id,
			typeName:   typename,
			field:      name,
			storageKey: storageKey,
			args:       value.Object{},
		})
		inflight[slot] = false
		if rerr != nil || v == nil {
			return nil, false
		}
		return v, true
	}

	return existing, exists
}

// inflightSlots returns the running operation's cycle-guard set,
// whichever mode the context was built for.
func (fc *fieldContext) inflightSlots() map[FieldRef]bool {
	if fc.rs != nil {
		return fc.rs.inflight
	}
	if fc.tx != nil {
		return fc.tx.inflight
	}
	return nil
}

func (fc *fieldContext) CanRead(v value.Value) bool {
	ref, ok := v.(value.Ref)
	if !ok {
		return v != nil
	}
	_, ok = fc.lookupRecord(ref.To)
	return ok
}

func (fc *fieldContext) Scratch() policy.Scratch {
	return fc.c.scratchFor(FieldRef{Entity: fc.id, Key: fc.storageKey})
}

func (fc *fieldContext) MergeObjects(existing, incoming value.Value) value.Value {
	return policy.MergeEmbedded(existing, incoming)
}

// lookupRecord reads a record through the write overlay when present.
func (fc *fieldContext) lookupRecord(id value.EntityID) (record, bool) {
	if fc.tx != nil {
		if rec, ok := fc.tx.updated[id]; ok {
			return rec, true
		}
	}
	rec, ok := fc.c.records[id]
	return rec, ok
}

// lookupSlot reads one storage slot through the write overlay when
// present.
func (fc *fieldContext) lookupSlot(id value.EntityID, key string) (value.Value, bool) {
	if fc.tx != nil {
		return fc.tx.lookup(id, key)
	}
	return fc.c.lookup(id, key)
}
