package policy

import (
	"github.com/normgraph/normgraph/value"
)

// MergeEmbedded is the generic structural object-merge helper: the
// fields of incoming are laid over existing key by key, recursing where
// both sides hold embedded objects of the same declared type. Lists and
// scalars are replaced outright; list-level merge semantics are never
// implicit and belong to explicit per-field merge functions. Neither
// input is mutated.
func MergeEmbedded(existing, incoming value.Value) value.Value {
	eo, eok := existing.(value.Object)
	io, iok := incoming.(value.Object)
	if !eok || !iok {
		return incoming
	}

	out := make(value.Object, len(eo)+len(io))
	for k, v := range eo {
		out[k] = v
	}
	for k, iv := range io {
		ev, present := out[k]
		if present && sameEmbeddedType(ev, iv) {
			out[k] = MergeEmbedded(ev, iv)
		} else {
			out[k] = iv
		}
	}
	return out
}

// sameEmbeddedType reports whether both values are objects describing
// the same declared type. Objects without a declared type are treated
// as compatible with each other.
func sameEmbeddedType(a, b value.Value) bool {
	ao, aok := a.(value.Object)
	bo, bok := b.(value.Object)
	if !aok || !bok {
		return false
	}
	return ao.TypeName() == bo.TypeName()
}
