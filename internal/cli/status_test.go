package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ReportsJournaledLoop(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gonzo.db")
	sc := writeScenario(t, "name: quiet\ncycles: 4\n")

	_, err := execute(t, "run", "--scenario", sc, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Cycle:    4")
	assert.Contains(t, out, "Posts:    0")
	assert.Contains(t, out, "Errors:   0")
}

func TestStatus_MissingJournalIsCommandError(t *testing.T) {
	_, err := execute(t, "status", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
