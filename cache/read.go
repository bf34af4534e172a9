package cache

import (
	"strconv"

	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

// Read materializes a result tree for the requested shape. Holes
// (never-written fields, dangling references) are reported in the
// result's Missing list rather than failing the operation; only a
// read-function error aborts.
//
// Reads run against the committed store snapshot and never mutate it,
// so any number may run concurrently with each other.
func (c *Cache) Read(req *Request) (*ReadResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rs := &readState{
		c:        c,
		inflight: make(map[FieldRef]bool),
	}

	data, err := rs.readSelection(RootID, req.rootType(), req.Fields, nil)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Data: data, Missing: rs.missing}, nil
}

// readState tracks one read operation: the holes found so far and the
// set of (record, key) slots currently being resolved. A read function
// that reads back into a slot already in flight gets the raw stored
// value instead of a recursive dispatch, which is what makes cyclic
// entity graphs terminate.
type readState struct {
	c        *Cache
	inflight map[FieldRef]bool
	missing  []Missing
}

// readSelection materializes the requested fields of one record.
// Missing fields are recorded and skipped; the partial object is still
// returned so the caller can decide whether it suffices.
func (rs *readState) readSelection(id value.EntityID, typename string, fields []*Field, path []string) (value.Object, error) {
	if rec, ok := rs.c.records[id]; ok {
		if tn := rs.c.typeNameOf(rec); tn != "" {
			typename = tn
		}
	}

	out := make(value.Object, len(fields))
	for _, sel := range fields {
		fieldPath := append(path, sel.ResponseKey())

		v, present, err := rs.readField(id, typename, sel, fieldPath)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		materialized, err := rs.materialize(v, sel, fieldPath)
		if err != nil {
			return nil, err
		}
		out[sel.ResponseKey()] = materialized
	}
	return out, nil
}

// readField produces the policy-resolved value of one slot. present is
// false when the field is genuinely missing, in which case it has been
// recorded already.
func (rs *readState) readField(id value.EntityID, typename string, sel *Field, path []string) (value.Value, bool, error) {
	resolved := rs.c.resolver.Resolve(typename, sel.Name)

	storageKey, err := policy.BuildStorageKey(sel.Name, sel.args(), resolved.KeyArgs, policy.KeyContext{
		TypeName: typename,
		Field:    sel.Name,
	})
	if err != nil {
		return nil, false, &OpError{
			Code:     ErrCodeStorageKey,
			Message:  "cannot compute storage key",
			TypeName: typename,
			Field:    sel.Name,
			Path:     append([]string(nil), path...),
			Err:      err,
		}
	}

	slot := FieldRef{Entity: id, Key: storageKey}
	existing, exists := rs.c.lookup(id, storageKey)

	if resolved.Read != nil && !rs.inflight[slot] {
		rs.inflight[slot] = true
		v, err := resolved.Read(existing, &fieldContext{
			c:          rs.c,
			rs:         rs,
			id:         id,
			typeName:   typename,
			field:      sel.Name,
			storageKey: storageKey,
			args:       sel.args(),
		})
		rs.inflight[slot] = false
		if err != nil {
			return nil, false, policyFuncError("read", typename, sel.Name, path, err)
		}
		if v == nil {
			rs.addMissing(path, ReasonMissingField)
			return nil, false, nil
		}
		return v, true, nil
	}

	if !exists {
		rs.addMissing(path, ReasonMissingField)
		return nil, false, nil
	}
	return existing, true, nil
}

// materialize turns a stored value into result form, resolving
// references through their target records and recursing into lists and
// embedded structures.
func (rs *readState) materialize(v value.Value, sel *Field, path []string) (value.Value, error) {
	switch val := v.(type) {
	case value.Ref:
		if _, ok := rs.c.records[val.To]; !ok {
			rs.addMissing(path, ReasonDangling)
			return value.Null{}, nil
		}
		if len(sel.Selections) == 0 {
			// Leaf selection over a reference: hand back the ref
			// itself; the caller asked for no fields of the target.
			return val, nil
		}
		return rs.readSelection(val.To, sel.Type, sel.Selections, path)

	case value.List:
		out := make(value.List, len(val))
		for i, elem := range val {
			m, err := rs.materialize(elem, sel, append(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil

	case value.Object:
		if len(sel.Selections) == 0 {
			return value.Copy(val), nil
		}
		return rs.readEmbedded(val, sel, path)

	default:
		return v, nil
	}
}

// readEmbedded materializes an embedded structure, whose fields are
// stored under storage keys just like record fields.
func (rs *readState) readEmbedded(obj value.Object, sel *Field, path []string) (value.Value, error) {
	typename := obj.TypeName()
	if typename == "" {
		typename = sel.Type
	}

	out := make(value.Object, len(sel.Selections))
	for _, sub := range sel.Selections {
		subPath := append(path, sub.ResponseKey())

		resolved := rs.c.resolver.Resolve(typename, sub.Name)
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

		stored, exists := obj[storageKey]
		if !exists {
			rs.addMissing(subPath, ReasonMissingField)
			continue
		}
		m, err := rs.materialize(stored, sub, subPath)
		if err != nil {
			return nil, err
		}
		out[sub.ResponseKey()] = m
	}
	return out, nil
}

func (rs *readState) addMissing(path []string, reason MissingReason) {
	rs.missing = append(rs.missing, Missing{
		Path:   append([]string(nil), path...),
		Reason: reason,
	})
}
