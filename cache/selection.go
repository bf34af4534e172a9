package cache

import (
	"github.com/normgraph/normgraph/value"
)

// Field describes one requested field in a selection tree. The query
// layer produces these with all variables already substituted into
// Args; the cache never sees unresolved argument syntax.
type Field struct {
	// Name is the schema field name, which keys storage.
	Name string

	// Alias is the response key when it differs from Name. Response
	// trees (both incoming writes and materialized reads) are keyed by
	// ResponseKey, storage always by Name.
	Alias string

	// Type is the declared result type name. Empty for scalar leaves.
	// Lists carry the element type.
	Type string

	// Args holds the final argument values. May be nil.
	Args value.Object

	// Selections is the nested selection for object-valued fields; nil
	// marks a leaf.
	Selections []*Field
}

// ResponseKey returns the key this field occupies in response trees.
func (f *Field) ResponseKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// args returns the field's arguments, never nil.
func (f *Field) args() value.Object {
	if f.Args == nil {
		return value.Object{}
	}
	return f.Args
}

// Request is a normalized request description: the shape to write an
// incoming response against, or to materialize a result for.
type Request struct {
	// RootType resolves policies for top-level fields. Defaults to
	// DefaultRootType.
	RootType string

	// Fields are the top-level selections.
	Fields []*Field
}

func (r *Request) rootType() string {
	if r.RootType != "" {
		return r.RootType
	}
	return DefaultRootType
}
