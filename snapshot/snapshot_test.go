package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/value"
)

func sampleRecords() map[value.EntityID]value.Object {
	return map[value.EntityID]value.Object{
		"@root": {
			"user": value.Ref{To: `User:{"id":"u1"}`},
		},
		`User:{"id":"u1"}`: {
			"__typename": value.String("User"),
			"id":         value.String("u1"),
			"name":       value.String("Ada"),
			"scores":     value.List{value.Int(1), value.Float(2.5), value.Null{}},
		},
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/snap.db")
	assert.Error(t, err)
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	records := sampleRecords()
	require.NoError(t, s.Save(records))

	loaded, err := s.Load()
	require.NoError(t, err)

	require.Len(t, loaded, len(records))
	for id, rec := range records {
		got, ok := loaded[id]
		require.True(t, ok, "missing record %s", id)
		assert.True(t, value.Equal(rec, got), "record %s: got %#v", id, got)
	}
}

func TestSaveReplacesPreviousImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleRecords()))
	require.NoError(t, s.Save(map[value.EntityID]value.Object{
		"@root": {"greeting": value.String("hi")},
	}))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, value.Equal(value.String("hi"), loaded["@root"]["greeting"]))
}

func TestSaveRejectsOpaqueValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	err = s.Save(map[value.EntityID]value.Object{
		"@root": {"cursor": value.Opaque{V: 42}},
	})
	require.Error(t, err)

	// The failed save left nothing behind.
	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleRecords()))

	_, err = s.db.Exec(`UPDATE records SET value_json = '"tampered"' WHERE storage_key = 'name'`)
	require.NoError(t, err)

	_, err = s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content hash mismatch")
}

func TestEntityIDsSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleRecords()))

	ids, err := s.EntityIDs()
	require.NoError(t, err)
	assert.Equal(t, []value.EntityID{"@root", `User:{"id":"u1"}`}, ids)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save(sampleRecords()))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestRecordHashDomainSeparated(t *testing.T) {
	a := recordHash([]byte(`"x"`))
	b := recordHash([]byte(`"y"`))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)

	// Same bytes under a different domain must not collide.
	assert.NotEqual(t, a, hashWithDomain("other/domain", []byte(`"x"`)))
}
