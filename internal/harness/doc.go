// Package harness runs declarative conformance scenarios against the
// cache: YAML files describing a sequence of writes, reads, evictions,
// and collections, validated by step expectations, final-state
// assertions, and golden store dumps.
package harness
