// Package cache implements the normalized store and the read/write
// traversal engine. Response trees are flattened into records keyed by
// entity identity and connected by references; every field read and
// write dispatches through the configured field policies.
package cache

import (
	"sync"

	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

// RootID is the identity of the designated root record that holds
// top-level query fields.
const RootID value.EntityID = "@root"

// DefaultRootType is the type name used to resolve policies for
// top-level fields when a request does not name one.
const DefaultRootType = "Query"

// record holds all known field values for one entity, keyed by storage
// key. Records are treated as immutable once installed: commits replace
// a changed record with a fresh map so readers can use identity
// comparison across store generations.
type record = value.Object

// Config is the construction-time configuration of a cache.
type Config struct {
	// Types maps type names to their policies.
	Types policy.Config
}

// Cache is a normalized, in-process store for graph-shaped query
// results. One writer at a time; any number of concurrent readers.
type Cache struct {
	mu       sync.RWMutex
	resolver *policy.Resolver
	records  map[value.EntityID]record

	// scratch keeps the per-(record, field) maps handed to policy
	// functions. Guarded separately because readers create entries too.
	scratchMu sync.Mutex
	scratch   map[FieldRef]policy.Scratch
}

// New builds an empty cache with the given policy configuration.
func New(cfg Config) *Cache {
	return &Cache{
		resolver: policy.NewResolver(cfg.Types),
		records:  make(map[value.EntityID]record),
		scratch:  make(map[FieldRef]policy.Scratch),
	}
}

// Extend registers additional type and field policies on a live cache.
// Existing stored data is unaffected.
func (c *Cache) Extend(types policy.Config) {
	c.resolver.Extend(types)
}

// Identify computes the entity identity of an object, applying the
// type's key-field policy. ok is false when the object cannot be
// normalized and would be embedded inline instead.
func (c *Cache) Identify(typename string, obj value.Object) (value.EntityID, bool) {
	id, err := c.resolver.Identify(typename, obj)
	if err != nil {
		return "", false
	}
	return id, true
}

// Len reports the number of records in the store, the root record
// included once any top-level field has been written.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Export returns a deep copy of every record, keyed by entity identity.
// Used by snapshot persistence and inspection tooling.
func (c *Cache) Export() map[value.EntityID]value.Object {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[value.EntityID]value.Object, len(c.records))
	for id, rec := range c.records {
		out[id] = value.Copy(rec).(value.Object)
	}
	return out
}

// Restore replaces the entire store contents with the given records,
// deep-copying them. Scratch state is discarded.
func (c *Cache) Restore(records map[value.EntityID]value.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make(map[value.EntityID]record, len(records))
	for id, rec := range records {
		c.records[id] = value.Copy(rec).(value.Object)
	}

	c.scratchMu.Lock()
	c.scratch = make(map[FieldRef]policy.Scratch)
	c.scratchMu.Unlock()
}

// lookup reads one committed storage slot.
func (c *Cache) lookup(id value.EntityID, key string) (value.Value, bool) {
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	v, ok := rec[key]
	return v, ok
}

// typeNameOf reports the stored declared type of a record, or "".
func (c *Cache) typeNameOf(rec record) string {
	return value.Object(rec).TypeName()
}

// scratchFor returns the persistent scratch map for one (record, field)
// slot, creating it on first use.
func (c *Cache) scratchFor(ref FieldRef) policy.Scratch {
	c.scratchMu.Lock()
	defer c.scratchMu.Unlock()
	s, ok := c.scratch[ref]
	if !ok {
		s = make(policy.Scratch)
		c.scratch[ref] = s
	}
	return s
}

// dropScratch discards scratch state for an entity (or one field of it
// when key is non-empty). Called on eviction.
func (c *Cache) dropScratch(id value.EntityID, key string) {
	c.scratchMu.Lock()
	defer c.scratchMu.Unlock()
	for ref := range c.scratch {
		if ref.Entity != id {
			continue
		}
		if key == "" || ref.Key == key {
			delete(c.scratch, ref)
		}
	}
}
