// Package normgraph is a normalized, policy-driven cache for
// graph-shaped query results.
//
// Responses are flattened into identified records: every object that
// can be identified (by its type's key fields) is stored once under a
// deterministic entity ID and referenced from wherever it appears.
// Field policies decide how incoming values merge with stored ones and
// how stored values are materialized on read, so concerns like
// paginated lists or derived fields live in configuration instead of
// call sites.
//
// The library is split into focused subpackages:
//
//   - value: the stored value model and its canonical JSON form
//   - policy: type and field policies, identity, storage keys, built-in
//     read/merge strategies
//   - cache: the normalized store with atomic writes, partial reads,
//     eviction, and garbage collection
//   - policyfile: compiles CUE policy documents into a policy.Config
//   - snapshot: SQLite persistence of a store image
package normgraph
