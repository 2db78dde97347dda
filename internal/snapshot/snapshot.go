// Package snapshot drives snapshot creation and cleanup for the configured
// filesystems.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dosnap/internal/config"
	"dosnap/internal/index"
	"dosnap/internal/metrics"
	"dosnap/internal/naming"
	"dosnap/internal/retention"
)

// Backend takes and destroys snapshots. Calls are synchronous and made one
// snapshot at a time.
type Backend interface {
	CreateSnapshot(ctx context.Context, src, dst string) error
	DeleteSnapshot(ctx context.Context, path string) error
}

// Resolver maps paths from the configuration onto the mounted device.
type Resolver interface {
	Resolve(p string) string
}

// Root resolves paths below a plain directory.
type Root string

func (r Root) Resolve(p string) string {
	return filepath.Join(string(r), p)
}

type Manager struct {
	cfg     *config.Config
	backend Backend
	root    Resolver
	now     func() time.Time
	metrics *metrics.Recorder
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

func NewManager(cfg *config.Config, backend Backend, root Resolver, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		backend: backend,
		root:    root,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SnapshotDir is the directory holding the snapshots of sv.
func (m *Manager) SnapshotDir(sv *config.Subvolume) string {
	return m.root.Resolve(filepath.Join(m.cfg.SnapshotRoot, naming.EscapeMountpoint(sv.Mountpoint)))
}

func (m *Manager) List(sv *config.Subvolume, suffix string) ([]index.Record, error) {
	return index.List(m.SnapshotDir(sv), suffix)
}

// CreateOne snapshots sv under the current time and suffix. An existing
// snapshot with the same name is left alone.
func (m *Manager) CreateOne(ctx context.Context, sv *config.Subvolume, suffix string) error {
	now := m.now()
	dir := m.SnapshotDir(sv)
	dst := filepath.Join(dir, naming.Encode(now, suffix))

	if _, err := os.Lstat(dst); err == nil {
		slog.Warn("Destination exists, ignored", "filesystem", sv.Mountpoint, "path", dst)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	slog.Info("Snapshotting", "filesystem", sv.Mountpoint, "snapshot", filepath.Base(dst))
	if err := m.backend.CreateSnapshot(ctx, m.root.Resolve(sv.Path), dst); err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", dst, err)
	}
	m.metrics.ObserveCreate(sv.Mountpoint, now)
	return nil
}

// Create snapshots every subvolume in svs.
func (m *Manager) Create(ctx context.Context, svs []config.Subvolume, suffix string, strategy Strategy) Report {
	return m.runBatch(ctx, "create", strategy, svs, func(ctx context.Context, sv *config.Subvolume) ([]retention.Decision, error) {
		return nil, m.CreateOne(ctx, sv, suffix)
	})
}

// CreateAll snapshots every subvolume flagged with create, continuing past
// failures.
func (m *Manager) CreateAll(ctx context.Context, suffix string) Report {
	return m.Create(ctx, m.cfg.CreateSubvolumes(), suffix, BestEffort)
}

// CleanByCount keeps the nkeep newest snapshots with suffix and prunes the
// rest.
func (m *Manager) CleanByCount(ctx context.Context, sv *config.Subvolume, suffix string, nkeep int, dryRun bool) ([]retention.Decision, error) {
	if nkeep < 0 {
		return nil, fmt.Errorf("nkeep must be non-negative")
	}
	records, err := m.List(sv, suffix)
	if err != nil {
		return nil, err
	}
	return m.prune(ctx, sv, retention.KeepNewest(records, nkeep), dryRun)
}

// Autoclean applies the tiered limits of sv to its automatic snapshots.
func (m *Manager) Autoclean(ctx context.Context, sv *config.Subvolume, dryRun bool) ([]retention.Decision, error) {
	records, err := m.List(sv, m.cfg.Suffix)
	if err != nil {
		return nil, err
	}
	return m.prune(ctx, sv, retention.Classify(records, sv.Limits), dryRun)
}

// AutocleanAll runs Autoclean on every subvolume flagged with autoclean,
// continuing past failures.
func (m *Manager) AutocleanAll(ctx context.Context, dryRun bool) Report {
	return m.runBatch(ctx, "autoclean", BestEffort, m.cfg.AutocleanSubvolumes(), func(ctx context.Context, sv *config.Subvolume) ([]retention.Decision, error) {
		return m.Autoclean(ctx, sv, dryRun)
	})
}

// prune deletes every record marked for pruning, stopping at the first
// failed delete. With dryRun nothing is deleted.
func (m *Manager) prune(ctx context.Context, sv *config.Subvolume, decisions []retention.Decision, dryRun bool) ([]retention.Decision, error) {
	for _, d := range decisions {
		if d.Keep {
			slog.Debug("Keeping snapshot", "filesystem", sv.Mountpoint, "snapshot", d.Record.Name, "tier", d.Tier.String())
			continue
		}
		if dryRun {
			slog.Info("Would delete snapshot", "filesystem", sv.Mountpoint, "snapshot", d.Record.Name)
			continue
		}
		slog.Info("Deleting snapshot", "filesystem", sv.Mountpoint, "snapshot", d.Record.Name)
		if err := m.backend.DeleteSnapshot(ctx, d.Record.Path); err != nil {
			return decisions, fmt.Errorf("failed to delete snapshot %s: %w", d.Record.Path, err)
		}
	}

	if !dryRun {
		m.metrics.ObserveCleanup(sv.Mountpoint, decisions)
	}
	slog.Info("Cleanup finished", "filesystem", sv.Mountpoint,
		"kept", len(retention.Kept(decisions)), "pruned", len(retention.Pruned(decisions)), "dryRun", dryRun)
	return decisions, nil
}

// Strategy decides what a batch does when one filesystem fails.
type Strategy int

const (
	// FailFast stops the batch at the first failure.
	FailFast Strategy = iota
	// BestEffort records the failure and moves on to the next filesystem.
	BestEffort
)

func (s Strategy) String() string {
	if s == BestEffort {
		return "best-effort"
	}
	return "fail-fast"
}

type Result struct {
	Filesystem string
	Decisions  []retention.Decision
	Err        error
}

type Report struct {
	Results []Result
}

func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the failures of the batch, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Filesystem, res.Err))
	}
	return errors.Join(errs...)
}

func (m *Manager) runBatch(
	ctx context.Context,
	operation string,
	strategy Strategy,
	svs []config.Subvolume,
	fn func(context.Context, *config.Subvolume) ([]retention.Decision, error),
) Report {
	var report Report
	defer func() { m.metrics.Finish(operation, m.now()) }()

	for i := range svs {
		sv := &svs[i]
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{Filesystem: sv.Mountpoint, Err: err})
			return report
		}

		decisions, err := fn(ctx, sv)
		report.Results = append(report.Results, Result{Filesystem: sv.Mountpoint, Decisions: decisions, Err: err})
		if err == nil {
			continue
		}

		slog.Error("Operation failed", "operation", operation, "filesystem", sv.Mountpoint, "strategy", strategy.String(), "error", err)
		m.metrics.ObserveFailure(sv.Mountpoint, operation)
		if strategy == FailFast {
			return report
		}
	}

	return report
}
