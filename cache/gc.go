package cache

import (
	"slices"

	"github.com/normgraph/normgraph/value"
)

// Evict removes a record outright. References to it become dangling:
// subsequent reads through them report missing data rather than
// failing. Returns false when no such record exists.
//
// Eviction policy (what to evict, and when) belongs to the caller.
func (c *Cache) Evict(id value.EntityID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; !ok {
		return false
	}
	delete(c.records, id)
	c.dropScratch(id, "")
	return true
}

// EvictField removes a single storage slot from a record. The record
// itself survives, even when emptied. Returns false when the record or
// slot does not exist.
func (c *Cache) EvictField(id value.EntityID, storageKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, ok := c.records[id]
	if !ok {
		return false
	}
	if _, ok := base[storageKey]; !ok {
		return false
	}

	// Replace rather than mutate so concurrent readers of the old
	// generation stay consistent.
	rec := make(record, len(base))
	for k, v := range base {
		if k != storageKey {
			rec[k] = v
		}
	}
	c.records[id] = rec
	c.dropScratch(id, storageKey)
	return true
}

// Dangling scans the store and reports every slot holding a reference
// whose target record no longer exists. The report is sorted by entity
// then key and lists each slot once, however many dangling references
// its value contains.
func (c *Cache) Dangling() []FieldRef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []FieldRef
	for id, rec := range c.records {
		for key, v := range rec {
			if c.holdsDanglingRef(v) {
				out = append(out, FieldRef{Entity: id, Key: key})
			}
		}
	}
	sortFieldRefs(out)
	return out
}

// holdsDanglingRef walks one stored value looking for an unresolvable
// reference.
func (c *Cache) holdsDanglingRef(v value.Value) bool {
	switch val := v.(type) {
	case value.Ref:
		_, ok := c.records[val.To]
		return !ok
	case value.List:
		for _, elem := range val {
			if c.holdsDanglingRef(elem) {
				return true
			}
		}
	case value.Object:
		for _, elem := range val {
			if c.holdsDanglingRef(elem) {
				return true
			}
		}
	}
	return false
}

// GC removes every record unreachable from the root record by following
// references, returning the removed identities sorted. Records written
// directly (never linked from a root selection) are collected too, so
// callers holding direct references should re-write or skip GC.
func (c *Cache) GC() []value.EntityID {
	c.mu.Lock()
	defer c.mu.Unlock()

	reachable := make(map[value.EntityID]bool, len(c.records))
	c.mark(RootID, reachable)

	var removed []value.EntityID
	for id := range c.records {
		if !reachable[id] {
			removed = append(removed, id)
			delete(c.records, id)
			c.dropScratch(id, "")
		}
	}
	slices.Sort(removed)
	return removed
}

// mark flags a record and everything transitively referenced from it.
func (c *Cache) mark(id value.EntityID, reachable map[value.EntityID]bool) {
	if reachable[id] {
		return
	}
	rec, ok := c.records[id]
	if !ok {
		return
	}
	reachable[id] = true
	for _, v := range rec {
		c.markValue(v, reachable)
	}
}

func (c *Cache) markValue(v value.Value, reachable map[value.EntityID]bool) {
	switch val := v.(type) {
	case value.Ref:
		c.mark(val.To, reachable)
	case value.List:
		for _, elem := range val {
			c.markValue(elem, reachable)
		}
	case value.Object:
		for _, elem := range val {
			c.markValue(elem, reachable)
		}
	}
}

func sortFieldRefs(refs []FieldRef) {
	slices.SortFunc(refs, func(a, b FieldRef) int {
		if a.Entity != b.Entity {
			if a.Entity < b.Entity {
				return -1
			}
			return 1
		}
		if a.Key != b.Key {
			if a.Key < b.Key {
				return -1
			}
			return 1
		}
		return 0
	})
}
