package cache

import (
	"github.com/normgraph/normgraph/value"
)

// Dump renders the whole store as canonical JSON: an object mapping
// entity identities to records, deterministically ordered. Two stores
// holding equal data always dump to identical bytes, which is what
// golden tests, the inspect tooling, and snapshot verification rely on.
//
// Opaque values cannot be serialized and make Dump fail; stores feeding
// dumps or snapshots should keep policy bookkeeping in plain values.
func (c *Cache) Dump() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	root := make(value.Object, len(c.records))
	for id, rec := range c.records {
		root[string(id)] = value.Object(rec)
	}

	return value.MarshalCanonical(root)
}
