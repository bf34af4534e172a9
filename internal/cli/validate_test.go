package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateCommandValidDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cache.cue", `
types: {
	User: keyFields: ["id"]
	Query: fields: feed: {keyArgs: false, merge: "append"}
}
`)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestValidateCommandJSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cache.cue", `types: User: keyFields: ["id"]`)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateCommandCompileFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `types: Query: fields: a: merge: "unknownFn"`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "unknownFn")
}

func TestValidateCommandMissingDirectory(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
