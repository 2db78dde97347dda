package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dosnap/internal/naming"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.Mkdir(filepath.Join(dir, n), 0o755))
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	stamps := []time.Time{
		base.Add(3 * time.Hour),
		base,
		base.Add(26 * time.Hour),
		base.Add(-48 * time.Hour),
		base.Add(time.Minute),
	}
	for _, ts := range stamps {
		mkdirs(t, dir, naming.Encode(ts, "-auto"))
	}

	records, err := List(dir, "-auto")
	require.NoError(t, err)
	require.Len(t, records, len(stamps))

	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].Time.After(records[i].Time), "records not strictly newest first at %d", i)
	}
	assert.True(t, base.Add(26*time.Hour).Equal(records[0].Time))
	assert.True(t, base.Add(-48*time.Hour).Equal(records[len(records)-1].Time))
	assert.Equal(t, filepath.Join(dir, records[0].Name), records[0].Path)
	assert.Equal(t, "-auto", records[0].Suffix)
}

func TestListFiltersForeignEntries(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	mkdirs(t, dir,
		"garbage",
		naming.Encode(ts, "-manual"),
		naming.Encode(ts, "-auto"),
		"2024-05-01T12-00-00-auto.tmp",
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	records, err := List(dir, "-auto")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, naming.Encode(ts, "-auto"), records[0].Name)

	manual, err := List(dir, "-manual")
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, naming.Encode(ts, "-manual"), manual[0].Name)
}

func TestListEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "garbage")

	records, err := List(dir, "-auto")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListMissingDirectory(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "absent"), "-auto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSnapshotDir)
}

func TestListNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := List(file, "-auto")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshotDir)
}
