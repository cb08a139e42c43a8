package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factset/internal/ir"
)

// twoCommits applies two documents and returns the database path.
func twoCommits(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "facts.db")

	_, err := execute(t, "apply", writeFile(t, dir, "first.json", createPlate), "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "apply", writeFile(t, dir, "second.json", `{"create_assets": ["?tube"]}`), "--db", db, "--label", "tubes")
	require.NoError(t, err)
	return db
}

func TestLog_AllOwners(t *testing.T) {
	db := twoCommits(t)

	out, err := execute(t, "log", "--db", db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "1.1 createAssets "))
	assert.True(t, strings.HasPrefix(lines[1], "1.2 addFacts "))
	assert.True(t, strings.HasPrefix(lines[3], "2.1 createAssets "))
}

func TestLog_OneOwner(t *testing.T) {
	db := twoCommits(t)

	out, err := execute(t, "log", "--db", db, "--owner", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Owner 2: tubes")
	assert.Contains(t, out, "2.1 createAssets")
	assert.NotContains(t, out, "1.1")
}

func TestLog_JSON(t *testing.T) {
	db := twoCommits(t)

	out, err := execute(t, "--format", "json", "log", "--db", db, "--owner", "1")
	require.NoError(t, err)

	var result struct {
		Owner      *ir.OwnerRecord `json:"owner"`
		Operations []ir.Operation  `json:"operations"`
	}
	decodeResponse(t, out, &result)
	require.NotNil(t, result.Owner)
	assert.Equal(t, "first.json", result.Owner.Label)
	require.Len(t, result.Operations, 3)
	for i, op := range result.Operations {
		assert.Equal(t, int64(1), op.OwnerID)
		assert.Equal(t, int64(i+1), op.Seq)
	}
}

func TestLog_EmptyDatabase(t *testing.T) {
	out, err := execute(t, "log", "--db", emptyDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No operations.")
}

func TestLog_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing database", []string{"log", "--db", filepath.Join(t.TempDir(), "nope.db")}},
		{"unknown owner", []string{"log", "--db", emptyDB(t), "--owner", "9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E005]")
		})
	}
}
