// Package metrics exports the outcome of a dosnap run as a Prometheus
// textfile, to be picked up by node_exporter's textfile collector.
package metrics

import (
	"time"

	"dosnap/internal/retention"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects per-filesystem results of one invocation. A nil
// *Recorder discards everything.
type Recorder struct {
	reg      *prometheus.Registry
	kept     *prometheus.GaugeVec
	pruned   *prometheus.GaugeVec
	created  *prometheus.GaugeVec
	failures *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		kept: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dosnap_snapshots_kept",
			Help: "Snapshots kept by the last cleanup, by retention tier.",
		}, []string{"filesystem", "tier"}),
		pruned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dosnap_snapshots_pruned",
			Help: "Snapshots deleted by the last cleanup.",
		}, []string{"filesystem"}),
		created: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dosnap_snapshot_created_timestamp_seconds",
			Help: "Time the last snapshot of a filesystem was created.",
		}, []string{"filesystem"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dosnap_failures",
			Help: "Failed operations in the last run.",
		}, []string{"filesystem", "operation"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dosnap_last_run_timestamp_seconds",
			Help: "Time the last run of an operation finished.",
		}, []string{"operation"}),
	}
	r.reg.MustRegister(r.kept, r.pruned, r.created, r.failures, r.lastRun)
	return r
}

func (r *Recorder) ObserveCleanup(filesystem string, decisions []retention.Decision) {
	if r == nil {
		return
	}
	for _, tier := range append([]retention.Tier{retention.None}, retention.Tiers...) {
		r.kept.WithLabelValues(filesystem, tier.String()).Set(0)
	}
	for tier, n := range retention.CountByTier(decisions) {
		r.kept.WithLabelValues(filesystem, tier.String()).Set(float64(n))
	}
	r.pruned.WithLabelValues(filesystem).Set(float64(len(retention.Pruned(decisions))))
}

func (r *Recorder) ObserveCreate(filesystem string, at time.Time) {
	if r == nil {
		return
	}
	r.created.WithLabelValues(filesystem).Set(float64(at.Unix()))
}

func (r *Recorder) ObserveFailure(filesystem, operation string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(filesystem, operation).Inc()
}

func (r *Recorder) Finish(operation string, at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.WithLabelValues(operation).Set(float64(at.Unix()))
}

// WriteFile atomically replaces path with the collected metrics.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
