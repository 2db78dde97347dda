// Package index reads the snapshots of one filesystem back from its snapshot
// directory.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dosnap/internal/naming"
)

// ErrNoSnapshotDir is returned when the snapshot directory of a filesystem
// does not exist. An existing directory without matching entries is not an
// error.
var ErrNoSnapshotDir = errors.New("snapshot directory does not exist")

type Record struct {
	Name   string
	Path   string
	Time   time.Time
	Suffix string
}

// List returns the snapshots in dir carrying suffix, newest first. Entries
// whose name does not decode are skipped.
func List(dir, suffix string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSnapshotDir, dir)
		}
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		t, ok := naming.Decode(e.Name(), suffix)
		if !ok {
			continue
		}
		records = append(records, Record{
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
			Time:   t,
			Suffix: suffix,
		})
	}

	// os.ReadDir returns entries sorted by name, so equal timestamps keep
	// that order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})

	return records, nil
}
