package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a cache is built from
// declarative policy files, a sequence of write/read/evict steps runs
// against it, and assertions validate the results and the final store.
type Scenario struct {
	// Name uniquely identifies this scenario (and its golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policies lists paths to CUE policy documents, relative to the
	// scenario file location.
	Policies []string `yaml:"policies"`

	// RootType resolves policies for top-level fields. Defaults to
	// "Query".
	RootType string `yaml:"root_type,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario action. Exactly one of the members is set.
type Step struct {
	Write *WriteStep `yaml:"write,omitempty"`
	Read  *ReadStep  `yaml:"read,omitempty"`
	Evict *EvictStep `yaml:"evict,omitempty"`
	GC    *GCStep    `yaml:"gc,omitempty"`
}

// WriteStep normalizes a response tree into the cache.
type WriteStep struct {
	// Selection describes the response shape.
	Selection []SelField `yaml:"selection"`

	// Data is the response tree, keyed by response keys.
	Data map[string]any `yaml:"data"`

	// ExpectChanged, when non-nil, is the expected number of changed
	// storage slots.
	ExpectChanged *int `yaml:"expect_changed,omitempty"`
}

// ReadStep materializes a result tree and validates it.
type ReadStep struct {
	Selection []SelField `yaml:"selection"`

	// Expect, when present, must equal the materialized result tree
	// exactly.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Complete, when non-nil, asserts whether the read resolved every
	// requested field.
	Complete *bool `yaml:"complete,omitempty"`
}

// EvictStep removes a record, or one field of it when key is set.
type EvictStep struct {
	Entity string `yaml:"entity"`
	Key    string `yaml:"key,omitempty"`
}

// GCStep collects unreachable records.
type GCStep struct {
	// ExpectRemoved, when non-nil, is the expected number of collected
	// records.
	ExpectRemoved *int `yaml:"expect_removed,omitempty"`
}

// SelField is the YAML form of one selection field.
type SelField struct {
	Field  string         `yaml:"field"`
	Alias  string         `yaml:"alias,omitempty"`
	Type   string         `yaml:"type,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Select []SelField     `yaml:"select,omitempty"`
}

// Assertion validates the final store.
type Assertion struct {
	// Type is one of: record_exists, record_absent, record_count,
	// dangling_count.
	Type string `yaml:"type"`

	// Entity is the entity identity (record_exists, record_absent).
	Entity string `yaml:"entity,omitempty"`

	// Count is the expected count (record_count, dangling_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordExists  = "record_exists"
	AssertRecordAbsent  = "record_absent"
	AssertRecordCount   = "record_count"
	AssertDanglingCount = "dangling_count"
)

// LoadScenario reads and parses a scenario YAML file. Policy paths are
// resolved relative to the scenario file. Unknown YAML fields are
// rejected, which catches typos like "assertion:" for "assertions:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Policies {
		if !filepath.IsAbs(p) {
			scenario.Policies[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Policies) == 0 {
		return fmt.Errorf("policies list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range s.Policies {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("policy file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		n := 0
		if step.Write != nil {
			n++
			if len(step.Write.Selection) == 0 {
				return fmt.Errorf("steps[%d].write: selection is required", i)
			}
			if step.Write.Data == nil {
				return fmt.Errorf("steps[%d].write: data is required", i)
			}
		}
		if step.Read != nil {
			n++
			if len(step.Read.Selection) == 0 {
				return fmt.Errorf("steps[%d].read: selection is required", i)
			}
		}
		if step.Evict != nil {
			n++
			if step.Evict.Entity == "" {
				return fmt.Errorf("steps[%d].evict: entity is required", i)
			}
		}
		if step.GC != nil {
			n++
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of write, read, evict, gc is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRecordExists, AssertRecordAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for %s", index, a.Type)
		}
	case AssertRecordCount, AssertDanglingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
