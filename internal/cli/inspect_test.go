package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/snapshot"
	"github.com/normgraph/normgraph/value"
)

func writeSnapshot(t *testing.T, records map[value.EntityID]value.Object) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := snapshot.Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Save(records))
	return path
}

func TestInspectCommandListsEntities(t *testing.T) {
	path := writeSnapshot(t, map[value.EntityID]value.Object{
		"@root": {
			"user": value.Ref{To: `User:{"id":"u1"}`},
		},
		`User:{"id":"u1"}`: {
			"__typename": value.String("User"),
			"id":         value.String("u1"),
		},
	})

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "@root")
	assert.Contains(t, out, `User:{"id":"u1"}`)
	assert.Contains(t, out, "2 record(s)")
}

func TestInspectCommandListsEntitiesJSON(t *testing.T) {
	path := writeSnapshot(t, map[value.EntityID]value.Object{
		"@root": {"greeting": value.String("hi")},
	})

	out, err := execute(t, "--format", "json", "inspect", path)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"@root"}, resp.Data.Entities)
	assert.Equal(t, 1, resp.Data.Count)
}

func TestInspectCommandPrintsRecord(t *testing.T) {
	path := writeSnapshot(t, map[value.EntityID]value.Object{
		`User:{"id":"u1"}`: {
			"__typename": value.String("User"),
			"id":         value.String("u1"),
			"name":       value.String("Ada"),
		},
	})

	out, err := execute(t, "inspect", path, `User:{"id":"u1"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `{"__typename":"User","id":"u1","name":"Ada"}`)
}

func TestInspectCommandRecordJSONRoundTrips(t *testing.T) {
	path := writeSnapshot(t, map[value.EntityID]value.Object{
		"@root": {"n": value.Int(7)},
	})

	out, err := execute(t, "--format", "json", "inspect", path, "@root")
	require.NoError(t, err)

	v, err := value.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Object{"n": value.Int(7)}, v))
}

func TestInspectCommandUnknownEntity(t *testing.T) {
	path := writeSnapshot(t, map[value.EntityID]value.Object{
		"@root": {"greeting": value.String("hi")},
	})

	_, err := execute(t, "inspect", path, "Ghost:{}")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInspectCommandMissingFile(t *testing.T) {
	_, err := execute(t, "inspect", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
