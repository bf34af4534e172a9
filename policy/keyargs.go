package policy

import (
	"fmt"
	"strings"

	"github.com/normgraph/normgraph/value"
)

// KeyContext carries the coordinates of a storage-key computation into
// a key-argument function.
type KeyContext struct {
	TypeName string
	Field    string
}

// KeyResult is what a key-argument function returns: a verbatim key
// suffix, a reduced set of argument paths to serialize, or the
// directive that no arguments matter.
type KeyResult struct {
	kind   keyArgsKind
	suffix string
	paths  []string
}

// KeySuffix uses s verbatim as the storage-key suffix.
func KeySuffix(s string) KeyResult { return KeyResult{kind: keyArgsSuffix, suffix: s} }

// KeyPaths reduces the considered arguments to the given paths.
func KeyPaths(paths ...string) KeyResult { return KeyResult{kind: keyArgsPaths, paths: paths} }

// KeyNone declares that no argument affects the result: every argument
// combination collapses into the bare field-name slot.
func KeyNone() KeyResult { return KeyResult{kind: keyArgsNone} }

// KeyArgsFunc computes a KeyResult from the final argument values.
type KeyArgsFunc func(args value.Object, ctx KeyContext) (KeyResult, error)

type keyArgsKind int

const (
	keyArgsAll keyArgsKind = iota // zero value: every argument considered
	keyArgsNone
	keyArgsPaths
	keyArgsSuffix
	keyArgsFunc
)

// KeyArgs specifies which of a field's arguments distinguish storage
// slots. The zero value considers all arguments.
type KeyArgs struct {
	kind  keyArgsKind
	paths []string
	fn    KeyArgsFunc
}

// AllKeyArgs considers every supplied argument (the default).
func AllKeyArgs() KeyArgs { return KeyArgs{} }

// NoKeyArgs collapses every argument combination into one slot, the
// bare field name. Useful for aliasing all pages of a paginated field
// into a single merge target.
func NoKeyArgs() KeyArgs { return KeyArgs{kind: keyArgsNone} }

// KeyArgsPaths considers only the named argument paths, in the order
// given. A path may descend into nested argument objects with dots.
func KeyArgsPaths(paths ...string) KeyArgs { return KeyArgs{kind: keyArgsPaths, paths: paths} }

// KeyArgsWith computes the considered arguments with a function.
func KeyArgsWith(fn KeyArgsFunc) KeyArgs { return KeyArgs{kind: keyArgsFunc, fn: fn} }

// BuildStorageKey computes the storage slot name for one field
// invocation. Fields without considered arguments use the bare field
// name; otherwise the canonical serialization of exactly the considered
// argument values is appended, which keeps distinct considered tuples
// in distinct slots.
func BuildStorageKey(field string, args value.Object, spec KeyArgs, kctx KeyContext) (string, error) {
	kind, paths := spec.kind, spec.paths

	if kind == keyArgsFunc {
		res, err := spec.fn(args, kctx)
		if err != nil {
			return "", &Error{
				Code:     ErrCodeKeyArgs,
				Message:  fmt.Sprintf("key-argument function: %v", err),
				TypeName: kctx.TypeName,
				Field:    field,
			}
		}
		if res.kind == keyArgsSuffix {
			return field + ":" + res.suffix, nil
		}
		kind, paths = res.kind, res.paths
	}

	var considered value.Object
	switch kind {
	case keyArgsNone:
		return field, nil
	case keyArgsAll:
		considered = args
	case keyArgsPaths:
		considered = extractPaths(args, paths)
	}

	if len(considered) == 0 {
		return field, nil
	}

	canonical, err := value.MarshalCanonical(considered)
	if err != nil {
		return "", &Error{
			Code:     ErrCodeKeyArgs,
			Message:  fmt.Sprintf("serialize arguments: %v", err),
			TypeName: kctx.TypeName,
			Field:    field,
		}
	}
	return field + "(" + string(canonical) + ")", nil
}

// extractPaths builds an object holding only the named argument paths,
// preserving nesting so that a.b and a stay distinguishable. Absent
// paths are skipped.
func extractPaths(args value.Object, paths []string) value.Object {
	out := make(value.Object, len(paths))
	for _, path := range paths {
		segments := strings.Split(path, ".")
		v, ok := lookupPath(args, segments)
		if !ok {
			continue
		}
		insertPath(out, segments, v)
	}
	return out
}

// lookupPath descends into nested objects segment by segment.
func lookupPath(obj value.Object, segments []string) (value.Value, bool) {
	var current value.Value = obj
	for _, seg := range segments {
		o, ok := current.(value.Object)
		if !ok {
			return nil, false
		}
		current, ok = o[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// insertPath writes v at the nested position named by segments,
// creating intermediate objects as needed.
func insertPath(obj value.Object, segments []string, v value.Value) {
	for _, seg := range segments[:len(segments)-1] {
		next, ok := obj[seg].(value.Object)
		if !ok {
			next = value.Object{}
			obj[seg] = next
		}
		obj = next
	}
	obj[segments[len(segments)-1]] = v
}
