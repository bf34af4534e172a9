package policy

import (
	"fmt"
	"strings"

	"github.com/normgraph/normgraph/value"
)

// defaultKeyField is used for types with no declared key fields: an
// object carrying an "id" is normalized under it, anything else is
// embedded.
const defaultKeyField = "id"

// Identify computes the EntityID for an object of the given type using
// the resolver's key-field configuration. The ID is a pure function of
// (typename, key-field values): extraneous fields and field ordering do
// not affect it, and distinct key tuples never collide because the key
// object is canonically serialized.
//
// A NOT_NORMALIZABLE error (see IsNotNormalizable) means the object
// carries no usable identity and must be embedded inline instead; it is
// a degradation signal, not a failure.
func (r *Resolver) Identify(typename string, obj value.Object) (value.EntityID, error) {
	if typename == "" {
		return "", &Error{
			Code:    ErrCodeNotNormalizable,
			Message: "object has no declared type",
		}
	}

	keyFields, embedded := r.keyFieldsFor(typename)
	if embedded {
		return "", &Error{
			Code:     ErrCodeNotNormalizable,
			Message:  "type is configured as embedded",
			TypeName: typename,
		}
	}

	keyObj := make(value.Object, len(keyFields))
	for _, path := range keyFields {
		segments := strings.Split(path, ".")
		v, ok := lookupPath(obj, segments)
		if !ok {
			return "", NewNotNormalizableError(typename, path)
		}
		insertPath(keyObj, segments, v)
	}

	canonical, err := value.MarshalCanonical(keyObj)
	if err != nil {
		return "", &Error{
			Code:     ErrCodeKeyFields,
			Message:  fmt.Sprintf("serialize key fields: %v", err),
			TypeName: typename,
		}
	}
	return value.EntityID(typename + ":" + string(canonical)), nil
}

// keyFieldsFor resolves the effective key-field paths for a type:
// the type's own declaration, else the first declaration on an
// interface it implements, else the "id" default. embedded is true when
// the type opts out of normalization entirely.
func (r *Resolver) keyFieldsFor(typename string) (paths []string, embedded bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.chainLocked(typename) {
		tp := r.types[name]
		if tp == nil {
			continue
		}
		if tp.Embedded {
			return nil, true
		}
		if len(tp.KeyFields) > 0 {
			return tp.KeyFields, false
		}
	}
	return []string{defaultKeyField}, false
}
