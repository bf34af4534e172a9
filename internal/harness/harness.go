package harness

import (
	"fmt"
	"reflect"

	"github.com/normgraph/normgraph/cache"
	"github.com/normgraph/normgraph/policyfile"
	"github.com/normgraph/normgraph/value"
)

// Result captures one scenario execution.
type Result struct {
	// Cache is the cache in its final state.
	Cache *cache.Cache

	// Writes holds the result of every write step, in order.
	Writes []*cache.WriteResult

	// Reads holds the result of every read step, in order.
	Reads []*cache.ReadResult
}

// Run executes a scenario: compiles its policy documents, builds a
// cache, plays the steps, and checks step expectations plus final
// assertions. Returns an error on the first violated expectation.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := policyfile.LoadFiles(scenario.Policies, policyfile.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("compiling policies: %w", err)
	}

	c := cache.New(cache.Config{Types: cfg})
	result := &Result{Cache: c}

	for i, step := range scenario.Steps {
		switch {
		case step.Write != nil:
			if err := runWrite(c, scenario, i, step.Write, result); err != nil {
				return nil, err
			}
		case step.Read != nil:
			if err := runRead(c, scenario, i, step.Read, result); err != nil {
				return nil, err
			}
		case step.Evict != nil:
			runEvict(c, step.Evict)
		case step.GC != nil:
			removed := c.GC()
			if want := step.GC.ExpectRemoved; want != nil && len(removed) != *want {
				return nil, fmt.Errorf("steps[%d].gc: removed %d records, expected %d", i, len(removed), *want)
			}
		}
	}

	for i, a := range scenario.Assertions {
		if err := checkAssertion(c, i, &a); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func runWrite(c *cache.Cache, scenario *Scenario, i int, step *WriteStep, result *Result) error {
	req := &cache.Request{
		RootType: scenario.RootType,
		Fields:   buildSelection(step.Selection),
	}
	data, err := value.FromAny(step.Data)
	if err != nil {
		return fmt.Errorf("steps[%d].write: bad data: %w", i, err)
	}

	wr, err := c.Write(req, data.(value.Object))
	if err != nil {
		return fmt.Errorf("steps[%d].write: %w", i, err)
	}
	result.Writes = append(result.Writes, wr)

	if want := step.ExpectChanged; want != nil && len(wr.Changed) != *want {
		return fmt.Errorf("steps[%d].write: %d slots changed, expected %d", i, len(wr.Changed), *want)
	}
	return nil
}

func runRead(c *cache.Cache, scenario *Scenario, i int, step *ReadStep, result *Result) error {
	req := &cache.Request{
		RootType: scenario.RootType,
		Fields:   buildSelection(step.Selection),
	}

	rr, err := c.Read(req)
	if err != nil {
		return fmt.Errorf("steps[%d].read: %w", i, err)
	}
	result.Reads = append(result.Reads, rr)

	if step.Complete != nil && rr.Complete() != *step.Complete {
		return fmt.Errorf("steps[%d].read: complete=%v, expected %v (missing: %v)",
			i, rr.Complete(), *step.Complete, rr.Missing)
	}
	if step.Expect != nil {
		got := value.ToAny(rr.Data)
		want := normalizeYAML(step.Expect)
		if !reflect.DeepEqual(got, want) {
			return fmt.Errorf("steps[%d].read: result mismatch\n got: %#v\nwant: %#v", i, got, want)
		}
	}
	return nil
}

func runEvict(c *cache.Cache, step *EvictStep) {
	if step.Key != "" {
		c.EvictField(value.EntityID(step.Entity), step.Key)
		return
	}
	c.Evict(value.EntityID(step.Entity))
}

func checkAssertion(c *cache.Cache, i int, a *Assertion) error {
	records := c.Export()
	switch a.Type {
	case AssertRecordExists:
		if _, ok := records[value.EntityID(a.Entity)]; !ok {
			return fmt.Errorf("assertions[%d]: record %s does not exist", i, a.Entity)
		}
	case AssertRecordAbsent:
		if _, ok := records[value.EntityID(a.Entity)]; ok {
			return fmt.Errorf("assertions[%d]: record %s unexpectedly exists", i, a.Entity)
		}
	case AssertRecordCount:
		if len(records) != a.Count {
			return fmt.Errorf("assertions[%d]: store holds %d records, expected %d", i, len(records), a.Count)
		}
	case AssertDanglingCount:
		if got := len(c.Dangling()); got != a.Count {
			return fmt.Errorf("assertions[%d]: %d dangling slots, expected %d", i, got, a.Count)
		}
	}
	return nil
}

// buildSelection converts the YAML selection form into request fields.
func buildSelection(sels []SelField) []*cache.Field {
	out := make([]*cache.Field, len(sels))
	for i, s := range sels {
		f := &cache.Field{
			Name:  s.Field,
			Alias: s.Alias,
			Type:  s.Type,
		}
		if s.Args != nil {
			f.Args = value.MustFromAny(s.Args).(value.Object)
		}
		if len(s.Select) > 0 {
			f.Selections = buildSelection(s.Select)
		}
		out[i] = f
	}
	return out
}

// normalizeYAML brings a YAML-decoded expectation tree into the same
// shape value.ToAny produces: string-keyed maps and int64 numbers.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	case int:
		return int64(val)
	default:
		return v
	}
}
