package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dosnap/internal/index"
	"dosnap/internal/retention"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	r := New()
	decisions := []retention.Decision{
		{Record: index.Record{Name: "a"}, Keep: true, Tier: retention.Hourly},
		{Record: index.Record{Name: "b"}, Keep: true, Tier: retention.Hourly},
		{Record: index.Record{Name: "c"}, Keep: true, Tier: retention.Daily},
		{Record: index.Record{Name: "d"}},
	}
	at := time.Unix(1700000000, 0)

	r.ObserveCleanup("/home", decisions)
	r.ObserveCreate("/", at)
	r.ObserveFailure("/srv", "autoclean")
	r.Finish("autoclean", at)

	path := filepath.Join(t.TempDir(), "dosnap.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `dosnap_snapshots_kept{filesystem="/home",tier="hourly"} 2`)
	assert.Contains(t, out, `dosnap_snapshots_kept{filesystem="/home",tier="daily"} 1`)
	assert.Contains(t, out, `dosnap_snapshots_kept{filesystem="/home",tier="weekly"} 0`)
	assert.Contains(t, out, `dosnap_snapshots_pruned{filesystem="/home"} 1`)
	assert.Contains(t, out, `dosnap_snapshot_created_timestamp_seconds{filesystem="/"} 1.7e+09`)
	assert.Contains(t, out, `dosnap_failures{filesystem="/srv",operation="autoclean"} 1`)
	assert.Contains(t, out, `dosnap_last_run_timestamp_seconds{operation="autoclean"} 1.7e+09`)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveCleanup("/", nil)
	r.ObserveCreate("/", time.Now())
	r.ObserveFailure("/", "create")
	r.Finish("create", time.Now())
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "x.prom")))
}
