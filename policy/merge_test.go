package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normgraph/normgraph/value"
)

func TestMergeEmbedded(t *testing.T) {
	tests := []struct {
		name               string
		existing, incoming value.Value
		expected           value.Value
	}{
		{
			name:     "non-objects replace",
			existing: value.Int(1),
			incoming: value.Int(2),
			expected: value.Int(2),
		},
		{
			name:     "lists replace rather than merge",
			existing: value.Object{"tags": value.List{value.String("a"), value.String("b")}},
			incoming: value.Object{"tags": value.List{value.String("c")}},
			expected: value.Object{"tags": value.List{value.String("c")}},
		},
		{
			name:     "disjoint fields union",
			existing: value.Object{"a": value.Int(1)},
			incoming: value.Object{"b": value.Int(2)},
			expected: value.Object{"a": value.Int(1), "b": value.Int(2)},
		},
		{
			name: "same typed objects recurse",
			existing: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("Meta"),
					"a":                 value.Int(1),
				},
			},
			incoming: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("Meta"),
					"b":                 value.Int(2),
				},
			},
			expected: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("Meta"),
					"a":                 value.Int(1),
					"b":                 value.Int(2),
				},
			},
		},
		{
			name: "different typed objects replace",
			existing: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("A"),
					"a":                 value.Int(1),
				},
			},
			incoming: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("B"),
					"b":                 value.Int(2),
				},
			},
			expected: value.Object{
				"meta": value.Object{
					value.TypeNameField: value.String("B"),
					"b":                 value.Int(2),
				},
			},
		},
		{
			name:     "untyped objects treated as compatible",
			existing: value.Object{"o": value.Object{"a": value.Int(1)}},
			incoming: value.Object{"o": value.Object{"b": value.Int(2)}},
			expected: value.Object{"o": value.Object{"a": value.Int(1), "b": value.Int(2)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeEmbedded(tt.existing, tt.incoming)
			assert.True(t, value.Equal(tt.expected, got), "got %#v", got)
		})
	}
}

func TestMergeEmbeddedDoesNotMutateInputs(t *testing.T) {
	existing := value.Object{"a": value.Int(1)}
	incoming := value.Object{"a": value.Int(2), "b": value.Int(3)}

	_ = MergeEmbedded(existing, incoming)

	assert.True(t, value.Equal(value.Object{"a": value.Int(1)}, existing))
	assert.True(t, value.Equal(value.Object{"a": value.Int(2), "b": value.Int(3)}, incoming))
}
