// Package policyfile compiles declarative policy documents written in
// CUE into a policy.Config. Key fields, key arguments, and merge
// directives are fully declarative; custom read and merge behavior is
// referenced by name and resolved through a Registry populated in Go.
package policyfile

import (
	"fmt"
	"strings"

	"github.com/normgraph/normgraph/policy"
)

// Registry maps names used in policy documents to read and merge
// functions. A fresh registry already knows the built-in strategies:
//
//	merge: "append"       list page concatenation
//	merge: "offsetLimit"  offset-positioned page writes
//	merge: "byKey:<f>"    keyed-list dedup merge on element field f
//	read:  "offsetLimit"  offset/limit window reads
type Registry struct {
	merges map[string]policy.MergeFunc
	reads  map[string]policy.ReadFunc
}

// NewRegistry returns a registry preloaded with the built-ins.
func NewRegistry() *Registry {
	return &Registry{
		merges: map[string]policy.MergeFunc{
			"append":      policy.AppendMerge(),
			"offsetLimit": policy.OffsetLimitMerge(),
		},
		reads: map[string]policy.ReadFunc{
			"offsetLimit": policy.OffsetLimitRead(),
		},
	}
}

// RegisterMerge makes a merge function addressable from documents.
// Re-registering a name replaces it.
func (r *Registry) RegisterMerge(name string, fn policy.MergeFunc) {
	r.merges[name] = fn
}

// RegisterRead makes a read function addressable from documents.
func (r *Registry) RegisterRead(name string, fn policy.ReadFunc) {
	r.reads[name] = fn
}

// mergeByName resolves a merge directive name. The "byKey:<field>"
// form constructs a keyed merge on the spot.
func (r *Registry) mergeByName(name string) (policy.Merge, error) {
	if field, ok := strings.CutPrefix(name, "byKey:"); ok {
		if field == "" {
			return policy.Merge{}, fmt.Errorf("byKey merge needs a field name")
		}
		return policy.MergeWith(policy.KeyedMerge(field)), nil
	}
	fn, ok := r.merges[name]
	if !ok {
		return policy.Merge{}, fmt.Errorf("unknown merge function %q", name)
	}
	return policy.MergeWith(fn), nil
}

// readByName resolves a read function name.
func (r *Registry) readByName(name string) (policy.ReadFunc, error) {
	fn, ok := r.reads[name]
	if !ok {
		return nil, fmt.Errorf("unknown read function %q", name)
	}
	return fn, nil
}
