package casesfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/staffhub/backend/tests"
)

func TestArchiveStamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 0, 5, 123e6, time.FixedZone("AEDT", 11*3600))
	assert.Equal(t, "2024-03-01T02-00-05-123Z", ArchiveStamp(ts))
}

func TestArchiver_ArchiveFiles(t *testing.T) {
	src := testutil.WriteExport(t, map[string]string{"STUDENT.DAT": "students", "STAFF.DAT": "staff"})
	root := filepath.Join(t.TempDir(), "archive")
	logger := testutil.NewLogger()

	a := NewArchiver(src, root, logger)
	a.now = func() time.Time { return time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC) }

	require.NoError(t, a.ArchiveFiles(context.Background(), []string{"STUDENT.DAT", "MISSING.DAT", "STAFF.DAT"}))

	dest := filepath.Join(root, "2026-10-15T02-00-00-000Z")
	data, err := os.ReadFile(filepath.Join(dest, "STAFF.DAT"))
	require.NoError(t, err)
	assert.Equal(t, "staff", string(data), "files after a failure are still archived")
	assert.Len(t, logger.Messages("error"), 1)
	assert.Contains(t, logger.Messages("info"), "archived 2 of 3 CASES files to "+dest)
}

func TestArchiver_ArchiveFiles_rootNotCreatable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := NewArchiver(t.TempDir(), blocker, testutil.NewLogger()).ArchiveFiles(context.Background(), []string{"STUDENT.DAT"})
	assert.Error(t, err)
}

func TestArchiver_CleanupOldArchives(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	for name, age := range map[string]time.Duration{"old": 40 * 24 * time.Hour, "recent": 2 * 24 * time.Hour} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
		require.NoError(t, os.Chtimes(dir, now.Add(-age), now.Add(-age)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	a := NewArchiver(t.TempDir(), root, testutil.NewLogger())
	a.now = func() time.Time { return now }

	assert.Equal(t, 1, a.CleanupOldArchives(context.Background(), 30))
	assert.NoDirExists(t, filepath.Join(root, "old"))
	assert.DirExists(t, filepath.Join(root, "recent"))
	assert.FileExists(t, filepath.Join(root, "stray.txt"))

	assert.Zero(t, NewArchiver("", filepath.Join(root, "missing"), testutil.NewLogger()).CleanupOldArchives(context.Background(), 30))
}
