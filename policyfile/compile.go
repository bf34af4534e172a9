package policyfile

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/normgraph/normgraph/policy"
)

// A policy document is a CUE struct of the form:
//
//	types: {
//		User: {
//			keyFields: ["id"]
//			fields: {
//				posts: {
//					keyArgs: ["type"]
//					merge:   "append"
//				}
//			}
//		}
//		Location: {embedded: true}
//		Book: {
//			keyFields:  ["isbn"]
//			implements: ["Media"]
//		}
//	}
//
// Per-field attributes: keyArgs (list of argument paths, or false to
// collapse every argument into one slot), merge (true, false, or a
// registry name), read (a registry name). Per-type attributes:
// keyFields, embedded, implements, defaultMerge.

// Compile parses a CUE value holding a policy document into a
// policy.Config, resolving function names through reg.
func Compile(v cue.Value, reg *Registry) (policy.Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, &CompileError{
			Field:   "types",
			Message: "types is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cfg := policy.Config{}
	for iter.Next() {
		tp, err := compileType(iter.Value(), reg)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", iter.Label(), err)
		}
		cfg[iter.Label()] = tp
	}
	return cfg, nil
}

// CompileString compiles a policy document from CUE source text.
func CompileString(src string, reg *Registry) (policy.Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	return Compile(v, reg)
}

// compileType parses one type policy struct.
func compileType(v cue.Value, reg *Registry) (*policy.TypePolicy, error) {
	tp := &policy.TypePolicy{}

	keyFields, err := stringList(v.LookupPath(cue.ParsePath("keyFields")))
	if err != nil {
		return nil, err
	}
	tp.KeyFields = keyFields

	implements, err := stringList(v.LookupPath(cue.ParsePath("implements")))
	if err != nil {
		return nil, err
	}
	tp.Implements = implements

	embeddedVal := v.LookupPath(cue.ParsePath("embedded"))
	if embeddedVal.Exists() {
		embedded, err := embeddedVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		tp.Embedded = embedded
	}

	defaultMergeVal := v.LookupPath(cue.ParsePath("defaultMerge"))
	if defaultMergeVal.Exists() {
		merge, err := compileMerge(defaultMergeVal, reg)
		if err != nil {
			return nil, fmt.Errorf("defaultMerge: %w", err)
		}
		tp.DefaultMerge = merge
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		tp.Fields = map[string]policy.FieldPolicy{}
		for iter.Next() {
			fp, err := compileField(iter.Value(), reg)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", iter.Label(), err)
			}
			tp.Fields[iter.Label()] = fp
		}
	}

	return tp, nil
}

// compileField parses one field policy struct.
func compileField(v cue.Value, reg *Registry) (policy.FieldPolicy, error) {
	var fp policy.FieldPolicy

	keyArgsVal := v.LookupPath(cue.ParsePath("keyArgs"))
	if keyArgsVal.Exists() {
		// false collapses all arguments; a list names the considered
		// argument paths.
		if disabled, err := keyArgsVal.Bool(); err == nil {
			if disabled {
				return fp, &CompileError{
					Field:   "keyArgs",
					Message: "keyArgs: true is meaningless; omit it to consider all arguments",
					Pos:     keyArgsVal.Pos(),
				}
			}
			fp.KeyArgs = policy.NoKeyArgs()
		} else {
			paths, err := stringList(keyArgsVal)
			if err != nil {
				return fp, err
			}
			fp.KeyArgs = policy.KeyArgsPaths(paths...)
		}
	}

	mergeVal := v.LookupPath(cue.ParsePath("merge"))
	if mergeVal.Exists() {
		merge, err := compileMerge(mergeVal, reg)
		if err != nil {
			return fp, err
		}
		fp.Merge = merge
	}

	readVal := v.LookupPath(cue.ParsePath("read"))
	if readVal.Exists() {
		name, err := readVal.String()
		if err != nil {
			return fp, formatCUEError(err)
		}
		read, err := reg.readByName(name)
		if err != nil {
			return fp, &CompileError{
				Field:   "read",
				Message: err.Error(),
				Pos:     readVal.Pos(),
			}
		}
		fp.Read = read
	}

	return fp, nil
}

// compileMerge parses a merge directive: true, false, or a registry
// name.
func compileMerge(v cue.Value, reg *Registry) (policy.Merge, error) {
	if b, err := v.Bool(); err == nil {
		if b {
			return policy.StructuralMerge(), nil
		}
		return policy.KeepExisting(), nil
	}

	name, err := v.String()
	if err != nil {
		return policy.Merge{}, &CompileError{
			Field:   "merge",
			Message: "merge must be true, false, or a function name",
			Pos:     v.Pos(),
		}
	}
	merge, err := reg.mergeByName(name)
	if err != nil {
		return policy.Merge{}, &CompileError{
			Field:   "merge",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return merge, nil
}

// stringList reads an optional list of strings.
func stringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a policy document error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
