package policy

import (
	"fmt"

	"github.com/normgraph/normgraph/value"
)

// Built-in read/merge strategies. Pagination and accumulation are not
// special-cased by the engine; these are ordinary policy functions that
// callers attach per field, and templates for writing custom ones.

// AppendMerge concatenates incoming list pages onto the stored list.
// Combined with NoKeyArgs (or a KeyArgs spec excluding the cursor
// arguments) it accumulates every page of a paginated field in one
// slot. Append is associative, so pages may arrive in any grouping.
func AppendMerge() MergeFunc {
	return func(existing, incoming value.Value, ctx FieldContext) (value.Value, error) {
		if existing == nil {
			return incoming, nil
		}
		el, eok := existing.(value.List)
		il, iok := incoming.(value.List)
		if !eok || !iok {
			return nil, fmt.Errorf("append merge on %s.%s: both sides must be lists, got %T and %T",
				ctx.TypeName(), ctx.FieldName(), existing, incoming)
		}
		out := make(value.List, 0, len(el)+len(il))
		out = append(out, el...)
		out = append(out, il...)
		return out, nil
	}
}

// OffsetLimitMerge writes an incoming page into the stored list at the
// position given by the "offset" argument (default 0), growing the list
// as needed. Positions never written hold explicit nulls.
func OffsetLimitMerge() MergeFunc {
	return func(existing, incoming value.Value, ctx FieldContext) (value.Value, error) {
		il, ok := incoming.(value.List)
		if !ok {
			return nil, fmt.Errorf("offset merge on %s.%s: incoming must be a list, got %T",
				ctx.TypeName(), ctx.FieldName(), incoming)
		}
		offset := intArg(ctx.Args(), "offset", 0)
		if offset < 0 {
			return nil, fmt.Errorf("offset merge on %s.%s: negative offset %d",
				ctx.TypeName(), ctx.FieldName(), offset)
		}

		var el value.List
		if existing != nil {
			el, ok = existing.(value.List)
			if !ok {
				return nil, fmt.Errorf("offset merge on %s.%s: existing must be a list, got %T",
					ctx.TypeName(), ctx.FieldName(), existing)
			}
		}

		out := make(value.List, max(len(el), offset+len(il)))
		for i := range out {
			out[i] = value.Null{}
		}
		copy(out, el)
		for i, elem := range il {
			out[offset+i] = elem
		}
		return out, nil
	}
}

// OffsetLimitRead returns the window of the stored list selected by the
// "offset" and "limit" arguments, clipped to the data actually present.
// A missing stored list reports the field as missing.
func OffsetLimitRead() ReadFunc {
	return func(existing value.Value, ctx FieldContext) (value.Value, error) {
		if existing == nil {
			return nil, nil
		}
		el, ok := existing.(value.List)
		if !ok {
			return nil, fmt.Errorf("offset read on %s.%s: stored value must be a list, got %T",
				ctx.TypeName(), ctx.FieldName(), existing)
		}

		offset := intArg(ctx.Args(), "offset", 0)
		if offset < 0 || offset > len(el) {
			return nil, nil
		}
		end := len(el)
		if limit := intArg(ctx.Args(), "limit", -1); limit >= 0 && offset+limit < end {
			end = offset + limit
		}

		out := make(value.List, end-offset)
		copy(out, el[offset:end])
		return out, nil
	}
}

// KeyedMerge deduplicates list elements by a key field: incoming
// elements whose key matches a stored element merge into it in place,
// unmatched elements append in arrival order. Elements may be embedded
// objects or references; keys behind references are read through the
// store.
func KeyedMerge(keyField string) MergeFunc {
	return func(existing, incoming value.Value, ctx FieldContext) (value.Value, error) {
		if existing == nil {
			return incoming, nil
		}
		el, eok := existing.(value.List)
		il, iok := incoming.(value.List)
		if !eok || !iok {
			return nil, fmt.Errorf("keyed merge on %s.%s: both sides must be lists, got %T and %T",
				ctx.TypeName(), ctx.FieldName(), existing, incoming)
		}

		out := make(value.List, len(el))
		copy(out, el)

		index := make(map[string]int, len(el))
		for i, elem := range el {
			if k, ok := elementKey(elem, keyField, ctx); ok {
				index[k] = i
			}
		}

		for _, elem := range il {
			k, ok := elementKey(elem, keyField, ctx)
			if !ok {
				out = append(out, elem)
				continue
			}
			at, seen := index[k]
			if !seen {
				index[k] = len(out)
				out = append(out, elem)
				continue
			}
			out[at] = mergeElement(out[at], elem, ctx)
		}
		return out, nil
	}
}

// elementKey extracts the dedup key from a list element. References
// resolve the key through the store; embedded objects read it directly.
func elementKey(elem value.Value, keyField string, ctx FieldContext) (string, bool) {
	if ctx.IsReference(elem) {
		v, ok := ctx.ReadField(keyField, elem)
		if !ok {
			return "", false
		}
		return keyString(v)
	}
	if obj, ok := elem.(value.Object); ok {
		v, ok := obj[keyField]
		if !ok {
			return "", false
		}
		return keyString(v)
	}
	return "", false
}

// keyString renders a key value with canonical serialization so that
// Int(1) and String("1") stay distinct keys.
func keyString(v value.Value) (string, bool) {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// mergeElement combines a matched pair of list elements. Two references
// to the same record are already one entity; object pairs merge
// structurally; mixed pairs prefer the reference form since the record
// carries the merged fields.
func mergeElement(existing, incoming value.Value, ctx FieldContext) value.Value {
	if ctx.IsReference(incoming) {
		return incoming
	}
	if ctx.IsReference(existing) {
		return existing
	}
	return ctx.MergeObjects(existing, incoming)
}

// intArg reads an integer argument with a default.
func intArg(args value.Object, name string, def int) int {
	if v, ok := args[name].(value.Int); ok {
		return int(v)
	}
	return def
}
