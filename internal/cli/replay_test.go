package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gonzo3030/gonzo/internal/journal"
)

func TestReplay_ResumesFromLatestCheckpoint(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gonzo.db")
	sc := writeScenario(t, "name: quiet\ncycles: 3\n")

	_, err := execute(t, "run", "--scenario", sc, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "replay", "--db", db, "--cycles", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Resumed:   cycle 3")
	assert.Contains(t, out, "Cycles:    2")

	// The resumed cycles checkpoint past the restore point.
	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	cycle, _, err := j.LatestCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), cycle)
}

func TestReplay_WithoutCheckpointIsCommandError(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no checkpoint")
}
