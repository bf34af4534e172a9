package policy

import (
	"sync"
)

// Resolved is the effective policy for one (type, field) pair after
// walking the fallback chain. Safe to cache: policies only change
// through Extend, which invalidates the cache.
type Resolved struct {
	KeyArgs KeyArgs
	Read    ReadFunc
	Merge   Merge
}

type typeField struct {
	typeName string
	field    string
}

// Resolver owns the policy configuration and answers per-(type, field)
// lookups through a two-level fallback chain: field policy on the
// concrete type, else field policy on an interface the type implements,
// else the type-level default merge. Results are computed once and
// cached.
type Resolver struct {
	mu    sync.RWMutex
	types Config
	cache map[typeField]*Resolved
}

// NewResolver builds a resolver over the given configuration. The
// config map is copied shallowly; TypePolicy values are shared and must
// not be mutated after construction.
func NewResolver(cfg Config) *Resolver {
	types := make(Config, len(cfg))
	for name, tp := range cfg {
		types[name] = tp
	}
	return &Resolver{
		types: types,
		cache: make(map[typeField]*Resolved),
	}
}

// Extend registers additional type policies on a live resolver. New
// policies for already-configured types replace the old ones. Stored
// data is unaffected; only the resolution cache is invalidated.
func (r *Resolver) Extend(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, tp := range cfg {
		r.types[name] = tp
	}
	// Fallback chains make precise invalidation fiddly; the cache is
	// cheap to rebuild, so drop all of it.
	r.cache = make(map[typeField]*Resolved)
}

// TypePolicy returns the registered policy for a type, or nil.
func (r *Resolver) TypePolicy(typename string) *TypePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[typename]
}

// Resolve computes the effective policy for one (type, field) pair.
func (r *Resolver) Resolve(typename, field string) *Resolved {
	key := typeField{typename, field}

	r.mu.RLock()
	if res, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return res
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.cache[key]; ok {
		return res
	}

	res := &Resolved{}
	// Each part resolves independently along the chain, so an
	// interface can contribute a merge while the concrete type
	// supplies keyArgs.
	haveKeyArgs, haveRead, haveMerge := false, false, false
	for _, name := range r.chainLocked(typename) {
		tp := r.types[name]
		if tp == nil {
			continue
		}
		fp, ok := tp.Fields[field]
		if !ok {
			continue
		}
		if !haveKeyArgs && fp.KeyArgs.kind != keyArgsAll {
			res.KeyArgs = fp.KeyArgs
			haveKeyArgs = true
		}
		if !haveRead && fp.Read != nil {
			res.Read = fp.Read
			haveRead = true
		}
		if !haveMerge && fp.Merge.kind != MergeUnset {
			res.Merge = fp.Merge
			haveMerge = true
		}
	}

	r.cache[key] = res
	return res
}

// DefaultMergeFor returns the type-level default merge for values whose
// declared result type is typename. Applies only when the field itself
// resolved no merge.
func (r *Resolver) DefaultMergeFor(typename string) Merge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.chainLocked(typename) {
		tp := r.types[name]
		if tp == nil {
			continue
		}
		if tp.DefaultMerge.kind != MergeUnset {
			return tp.DefaultMerge
		}
	}
	return Merge{}
}

// chainLocked returns the policy lookup chain for a type: the type
// itself followed by the interfaces it declares, in order. Callers must
// hold r.mu.
func (r *Resolver) chainLocked(typename string) []string {
	chain := []string{typename}
	if tp := r.types[typename]; tp != nil {
		chain = append(chain, tp.Implements...)
	}
	return chain
}
