package cache

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

func TestWriteNormalizesEntity(t *testing.T) {
	c := New(Config{})

	wr, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)
	assert.True(t, wr.Dirty())
	assert.NotEmpty(t, wr.Token)
	assert.Empty(t, wr.Degraded)

	records := c.Export()
	require.Contains(t, records, RootID)
	require.Contains(t, records, userID("u1"))

	assert.True(t, value.Equal(value.Ref{To: userID("u1")}, records[RootID]["user"]))
	assert.True(t, value.Equal(value.String("Ada"), records[userID("u1")]["name"]))
	assert.True(t, value.Equal(value.String("User"), records[userID("u1")][value.TypeNameField]))
}

func TestWriteIdempotent(t *testing.T) {
	c := New(Config{})

	first, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)
	assert.True(t, first.Dirty())

	second, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)
	assert.False(t, second.Dirty())
	assert.Empty(t, second.Changed)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestWriteSharedEntityAcrossPaths(t *testing.T) {
	c := New(Config{})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	// A different root field reaching the same entity contributes more
	// fields to the same record.
	req := &Request{
		Fields: []*Field{
			sel("author", "User", leaf("id"), leaf("email")),
		},
	}
	_, err = c.Write(req, value.Object{
		"author": value.Object{
			"id":    value.String("u1"),
			"email": value.String("ada@example.com"),
		},
	})
	require.NoError(t, err)

	rec := c.Export()[userID("u1")]
	assert.True(t, value.Equal(value.String("Ada"), rec["name"]))
	assert.True(t, value.Equal(value.String("ada@example.com"), rec["email"]))
}

func TestWriteChangeSet(t *testing.T) {
	c := New(Config{})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	// Only the changed slot is reported.
	wr, err := c.Write(userRequest(), userData("u1", "Grace"))
	require.NoError(t, err)
	assert.Equal(t, []FieldRef{{Entity: userID("u1"), Key: "name"}}, wr.Changed)
}

func TestWriteChangeSetSorted(t *testing.T) {
	c := New(Config{})

	wr, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	for i := 1; i < len(wr.Changed); i++ {
		prev, cur := wr.Changed[i-1], wr.Changed[i]
		if prev.Entity == cur.Entity {
			assert.Less(t, prev.Key, cur.Key)
		} else {
			assert.Less(t, string(prev.Entity), string(cur.Entity))
		}
	}
}

func TestWriteKeylessObjectEmbeds(t *testing.T) {
	c := New(Config{})

	req := &Request{
		Fields: []*Field{
			sel("settings", "Settings", leaf("theme")),
		},
	}
	wr, err := c.Write(req, value.Object{
		"settings": value.Object{"theme": value.String("dark")},
	})
	require.NoError(t, err)

	// No key fields resolvable and none declared: embed silently.
	assert.Empty(t, wr.Degraded)

	records := c.Export()
	assert.Len(t, records, 1)
	embedded, ok := records[RootID]["settings"].(value.Object)
	require.True(t, ok, "expected inline embedding, got %#v", records[RootID]["settings"])
	assert.True(t, value.Equal(value.String("dark"), embedded["theme"]))
}

func TestWriteDegradedWhenDeclaredKeysAbsent(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"Book": {KeyFields: []string{"isbn"}},
	}})

	req := &Request{
		Fields: []*Field{
			sel("book", "Book", leaf("title")),
		},
	}
	wr, err := c.Write(req, value.Object{
		"book": value.Object{"title": value.String("T")},
	})
	require.NoError(t, err)

	require.Len(t, wr.Degraded, 1)
	assert.Equal(t, "Book", wr.Degraded[0].TypeName)
	assert.Equal(t, []string{"book"}, wr.Degraded[0].Path)

	// Embedded inline, not normalized.
	assert.Len(t, c.Export(), 1)
}

func TestWriteEmbeddedTypeNeverNormalizes(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"Metadata": {Embedded: true},
	}})

	req := &Request{
		Fields: []*Field{
			sel("meta", "Metadata", leaf("id"), leaf("etag")),
		},
	}
	wr, err := c.Write(req, value.Object{
		"meta": value.Object{
			"id":   value.String("m1"),
			"etag": value.String("abc"),
		},
	})
	require.NoError(t, err)

	// Embedded by configuration is not a degradation.
	assert.Empty(t, wr.Degraded)
	assert.Len(t, c.Export(), 1)
}

func TestWriteListOfEntities(t *testing.T) {
	c := New(Config{})

	req := &Request{
		Fields: []*Field{
			sel("users", "User", leaf("id"), leaf("name")),
		},
	}
	_, err := c.Write(req, value.Object{
		"users": value.List{
			value.Object{"id": value.String("u1"), "name": value.String("Ada")},
			value.Object{"id": value.String("u2"), "name": value.String("Grace")},
		},
	})
	require.NoError(t, err)

	records := c.Export()
	assert.Len(t, records, 3)
	assert.True(t, value.Equal(value.List{
		value.Ref{To: userID("u1")},
		value.Ref{To: userID("u2")},
	}, records[RootID]["users"]))
}

func TestWriteAliasKeysResponseNotStorage(t *testing.T) {
	c := New(Config{})

	req := &Request{
		Fields: []*Field{
			{Name: "user", Alias: "viewer", Type: "User",
				Selections: []*Field{leaf("id"), leaf("name")}},
		},
	}
	_, err := c.Write(req, value.Object{
		"viewer": value.Object{
			"id":   value.String("u1"),
			"name": value.String("Ada"),
		},
	})
	require.NoError(t, err)

	// Stored under the schema field name, not the alias.
	rec := c.Export()[RootID]
	assert.Contains(t, rec, "user")
	assert.NotContains(t, rec, "viewer")
}

func TestWritePartialResponseSkipsAbsentFields(t *testing.T) {
	c := New(Config{})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	// The response omits name entirely; the stored value survives.
	wr, err := c.Write(userRequest(), value.Object{
		"user": value.Object{"id": value.String("u1")},
	})
	require.NoError(t, err)
	assert.False(t, wr.Dirty())
	assert.True(t, value.Equal(value.String("Ada"), c.Export()[userID("u1")]["name"]))
}

func TestWriteAtomicAbortOnMergeError(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"User": {
			Fields: map[string]policy.FieldPolicy{
				"name": {
					Merge: policy.MergeWith(func(existing, incoming value.Value, ctx policy.FieldContext) (value.Value, error) {
						return nil, fmt.Errorf("refused")
					}),
				},
			},
		},
	}})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.Error(t, err)
	assert.True(t, IsPolicyFunctionError(err))

	// Nothing committed, not even the fields written before the failure.
	assert.Equal(t, 0, c.Len())
}

func TestWriteArgumentsSeparateSlots(t *testing.T) {
	c := New(Config{})

	write := func(args value.Object, names ...string) {
		items := make(value.List, len(names))
		for i, n := range names {
			items[i] = value.String(n)
		}
		req := &Request{Fields: []*Field{selArgs("items", "", args)}}
		_, err := c.Write(req, value.Object{"items": items})
		require.NoError(t, err)
	}

	write(value.Object{"kind": value.String("a")}, "x")
	write(value.Object{"kind": value.String("b")}, "y")

	rec := c.Export()[RootID]
	assert.Contains(t, rec, `items({"kind":"a"})`)
	assert.Contains(t, rec, `items({"kind":"b"})`)
}

func TestWriteKeyArgsPathsCollapseCursorArgs(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"Query": {
			Fields: map[string]policy.FieldPolicy{
				"items": {
					KeyArgs: policy.KeyArgsPaths("filter"),
					Merge:   policy.MergeWith(policy.AppendMerge()),
				},
			},
		},
	}})

	page := func(offset int) {
		req := &Request{Fields: []*Field{selArgs("items", "", value.Object{
			"filter": value.String("all"),
			"offset": value.Int(int64(offset)),
		})}}
		_, err := c.Write(req, value.Object{
			"items": value.List{value.Int(int64(offset))},
		})
		require.NoError(t, err)
	}
	page(0)
	page(1)

	rec := c.Export()[RootID]
	stored := rec[`items({"filter":"all"})`]
	assert.True(t, value.Equal(value.List{value.Int(0), value.Int(1)}, stored))
}

func TestWriteKeepExistingDirective(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"User": {
			Fields: map[string]policy.FieldPolicy{
				"name": {Merge: policy.KeepExisting()},
			},
		},
	}})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)
	wr, err := c.Write(userRequest(), userData("u1", "Grace"))
	require.NoError(t, err)

	assert.False(t, wr.Dirty())
	assert.True(t, value.Equal(value.String("Ada"), c.Export()[userID("u1")]["name"]))
}

func TestWriteReplacesEmbeddedWithoutMergePolicy(t *testing.T) {
	c := New(Config{})

	req := func(sub *Field) *Request {
		return &Request{
			Fields: []*Field{
				sel("book", "Book", leaf("id"), sel("author", "Author", sub)),
			},
		}
	}

	_, err := c.Write(req(leaf("name")), value.Object{
		"book": value.Object{
			"id":     value.String("1"),
			"author": value.Object{"name": value.String("G")},
		},
	})
	require.NoError(t, err)
	_, err = c.Write(req(leaf("dob")), value.Object{
		"book": value.Object{
			"id":     value.String("1"),
			"author": value.Object{"dob": value.String("1819")},
		},
	})
	require.NoError(t, err)

	// No merge policy: the second write replaces the embedded object
	// outright, dropping the earlier name.
	stored, ok := c.Export()[value.EntityID(`Book:{"id":"1"}`)]["author"].(value.Object)
	require.True(t, ok)
	assert.True(t, value.Equal(value.String("1819"), stored["dob"]))
	assert.NotContains(t, stored, "name")
}

func TestWriteDefaultMergeForResultType(t *testing.T) {
	c := New(Config{Types: policy.Config{
		"Settings": {
			Embedded:     true,
			DefaultMerge: policy.StructuralMerge(),
		},
	}})

	req := &Request{
		Fields: []*Field{
			sel("settings", "Settings", leaf("theme"), leaf("lang")),
		},
	}
	_, err := c.Write(req, value.Object{
		"settings": value.Object{"theme": value.String("dark")},
	})
	require.NoError(t, err)
	_, err = c.Write(req, value.Object{
		"settings": value.Object{"lang": value.String("en")},
	})
	require.NoError(t, err)

	stored := c.Export()[RootID]["settings"].(value.Object)
	assert.True(t, value.Equal(value.String("dark"), stored["theme"]))
	assert.True(t, value.Equal(value.String("en"), stored["lang"]))
}

func TestWriteStructuralSharingKeepsUntouchedRecords(t *testing.T) {
	c := New(Config{})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	c.mu.RLock()
	before := c.records[userID("u1")]
	c.mu.RUnlock()

	// An identical write must not replace the record map.
	_, err = c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	c.mu.RLock()
	after := c.records[userID("u1")]
	c.mu.RUnlock()

	assert.True(t, mapsShareIdentity(before, after),
		"unchanged record should keep its map across writes")
}

// mapsShareIdentity reports whether two record maps are the same map.
func mapsShareIdentity(a, b record) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestWriteCustomMergeSeesOverlay(t *testing.T) {
	// The merge function's ReadField must observe fields written earlier
	// in the same operation.
	var seen value.Value
	c := New(Config{Types: policy.Config{
		"User": {
			Fields: map[string]policy.FieldPolicy{
				"name": {
					Merge: policy.MergeWith(func(existing, incoming value.Value, ctx policy.FieldContext) (value.Value, error) {
						seen, _ = ctx.ReadField("id")
						return incoming, nil
					}),
				},
			},
		},
	}})

	req := &Request{
		Fields: []*Field{
			sel("user", "User", leaf("id"), leaf("name")),
		},
	}
	_, err := c.Write(req, userData("u1", "Ada"))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.String("u1"), seen))
}

func TestWriteMergeReadFieldDispatchesReadFunction(t *testing.T) {
	// ReadField inside a merge function resolves the target field's read
	// function, same as on the read path.
	var seen value.Value
	var seenOK bool
	c := New(Config{Types: policy.Config{
		"User": {
			Fields: map[string]policy.FieldPolicy{
				"displayName": {
					Read: func(existing value.Value, ctx policy.FieldContext) (value.Value, error) {
						id, ok := ctx.ReadField("id")
						if !ok {
							return nil, nil
						}
						return value.String("@" + string(id.(value.String))), nil
					},
				},
				"name": {
					Merge: policy.MergeWith(func(existing, incoming value.Value, ctx policy.FieldContext) (value.Value, error) {
						seen, seenOK = ctx.ReadField("displayName")
						return incoming, nil
					}),
				},
			},
		},
	}})

	_, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)

	require.True(t, seenOK)
	assert.True(t, value.Equal(value.String("@u1"), seen))
}

func TestWriteMergeReadFieldGuardsReentrancy(t *testing.T) {
	// A read function reading its own slot during merge dispatch gets the
	// raw stored value instead of recursing.
	var seen value.Value
	c := New(Config{Types: policy.Config{
		"User": {
			Fields: map[string]policy.FieldPolicy{
				"name": {
					Read: func(existing value.Value, ctx policy.FieldContext) (value.Value, error) {
						raw, ok := ctx.ReadField("name")
						if !ok {
							return nil, nil
						}
						return value.String("*" + string(raw.(value.String))), nil
					},
				},
				"id": {
					Merge: policy.MergeWith(func(existing, incoming value.Value, ctx policy.FieldContext) (value.Value, error) {
						seen, _ = ctx.ReadField("name")
						return incoming, nil
					}),
				},
			},
		},
	}})

	req := &Request{
		Fields: []*Field{
			sel("user", "User", leaf("name"), leaf("id")),
		},
	}
	_, err := c.Write(req, userData("u1", "Ada"))
	require.NoError(t, err)

	assert.True(t, value.Equal(value.String("*Ada"), seen))
}

func TestWriteMergeReadFieldResolvesEmbeddedStorageKeys(t *testing.T) {
	// Embedded structures store their fields under storage keys; the
	// capability's embedded-source lookup goes through the same
	// key-argument resolution.
	var seen value.Value
	var seenOK bool
	c := New(Config{Types: policy.Config{
		"Stats": {
			Embedded: true,
			Fields: map[string]policy.FieldPolicy{
				"views": {
					KeyArgs: policy.KeyArgsWith(func(args value.Object, ctx policy.KeyContext) (policy.KeyResult, error) {
						return policy.KeySuffix("all"), nil
					}),
				},
			},
		},
		"Query": {
			Fields: map[string]policy.FieldPolicy{
				"stats": {
					Merge: policy.MergeWith(func(existing, incoming value.Value, ctx policy.FieldContext) (value.Value, error) {
						seen, seenOK = ctx.ReadField("views", incoming)
						return incoming, nil
					}),
				},
			},
		},
	}})

	req := &Request{Fields: []*Field{sel("stats", "Stats", leaf("views"))}}
	_, err := c.Write(req, value.Object{
		"stats": value.Object{"views": value.Int(7)},
	})
	require.NoError(t, err)

	require.True(t, seenOK)
	assert.True(t, value.Equal(value.Int(7), seen))

	stored := c.Export()[RootID]["stats"].(value.Object)
	assert.Contains(t, stored, "views:all")
}

func TestWriteCopiesLeafObjects(t *testing.T) {
	c := New(Config{})

	payload := value.Object{"unit": value.String("ms")}
	req := &Request{Fields: []*Field{leaf("meta")}}
	_, err := c.Write(req, value.Object{"meta": payload})
	require.NoError(t, err)

	// Mutating the response after the write must not reach the store.
	payload["unit"] = value.String("s")

	stored := c.Export()[RootID]["meta"].(value.Object)
	assert.True(t, value.Equal(value.String("ms"), stored["unit"]))
}

func TestWriteTokensAreOrdered(t *testing.T) {
	c := New(Config{})

	first, err := c.Write(userRequest(), userData("u1", "Ada"))
	require.NoError(t, err)
	second, err := c.Write(userRequest(), userData("u2", "Grace"))
	require.NoError(t, err)

	// UUIDv7 tokens sort by creation time.
	assert.Less(t, first.Token, second.Token)
}
