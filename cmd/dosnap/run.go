package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dosnap/internal/btrfs"
	"dosnap/internal/config"
	"dosnap/internal/list"
	"dosnap/internal/lock"
	"dosnap/internal/logging"
	"dosnap/internal/metrics"
	"dosnap/internal/mount"
	"dosnap/internal/snapshot"

	"github.com/urfave/cli/v3"
)

const manualSuffix = "-manual"

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// oneFilesystem resolves the single FILESYSTEM argument of cmd.
func oneFilesystem(cmd *cli.Command, cfg *config.Config) (*config.Subvolume, error) {
	if cmd.Args().Len() != 1 {
		return nil, fmt.Errorf("%s expects exactly one filesystem", cmd.Name)
	}
	return cfg.FindSubvolume(cmd.Args().First())
}

func suffixOr(cmd *cli.Command, fallback string) string {
	if cmd.IsSet("suffix") {
		return cmd.String("suffix")
	}
	return fallback
}

// runPrivileged does everything that has to happen between a valid
// configuration and touching the device: root check, private mount
// namespace, lock, logging and the mount itself.
func runPrivileged(ctx context.Context, cmd *cli.Command, cfg *config.Config, fn func(context.Context, *snapshot.Manager) error) error {
	if err := mount.RequireRoot(); err != nil {
		return err
	}

	if !mount.Isolated() {
		code, err := mount.Reexec()
		if err != nil {
			return err
		}
		if code != 0 {
			return cli.Exit("", code)
		}
		return nil
	}

	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return err
	}
	logger, logFile, err := logging.NewLogger(level, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	lockPath := cfg.LockFile
	if lockPath == "" {
		lockPath = lock.DefaultPath
	}
	releaseLock, err := lock.Acquire(lockPath, cmd.Name, cfg.Device)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := releaseLock(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	session, err := mount.Acquire(ctx, btrfs.ExecRunner{}, cfg.Device, cfg.MountOptions)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Release(); err != nil {
			slog.Error("Failed to release mount", "mountpoint", session.Root(), "error", err)
		}
	}()

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.New()
	}

	manager := snapshot.NewManager(cfg, btrfs.New(nil), session, snapshot.WithMetrics(recorder))
	runErr := fn(ctx, manager)

	if err := recorder.WriteFile(cfg.MetricsFile); err != nil {
		slog.Warn("Failed to write metrics", "path", cfg.MetricsFile, "error", err)
	}
	return runErr
}

func runCreate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	all := cmd.Bool("all")
	if all && cmd.Args().Len() > 0 {
		return fmt.Errorf("--all cannot be combined with filesystem arguments")
	}
	if !all && cmd.Args().Len() == 0 {
		return fmt.Errorf("no filesystem given, use --all to snapshot every configured one")
	}

	if all {
		suffix := suffixOr(cmd, cfg.Suffix)
		return runPrivileged(ctx, cmd, cfg, func(ctx context.Context, m *snapshot.Manager) error {
			return m.CreateAll(ctx, suffix).Err()
		})
	}

	var targets []config.Subvolume
	for _, name := range cmd.Args().Slice() {
		sv, err := cfg.FindSubvolume(name)
		if err != nil {
			return err
		}
		targets = append(targets, *sv)
	}
	suffix := suffixOr(cmd, manualSuffix)
	return runPrivileged(ctx, cmd, cfg, func(ctx context.Context, m *snapshot.Manager) error {
		return m.Create(ctx, targets, suffix, snapshot.FailFast).Err()
	})
}

func runClean(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sv, err := oneFilesystem(cmd, cfg)
	if err != nil {
		return err
	}
	nkeep := int(cmd.Int("nkeep"))
	if nkeep < 0 {
		return fmt.Errorf("--nkeep must be non-negative")
	}
	suffix := suffixOr(cmd, cfg.Suffix)
	dryRun := cmd.Bool("dry-run")

	return runPrivileged(ctx, cmd, cfg, func(ctx context.Context, m *snapshot.Manager) error {
		decisions, err := m.CleanByCount(ctx, sv, suffix, nkeep, dryRun)
		if err != nil {
			return err
		}
		if dryRun {
			return list.WritePlan(os.Stdout, sv.Mountpoint, decisions)
		}
		return nil
	})
}

func runAutoclean(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun := cmd.Bool("dry-run")

	if cmd.Bool("all") {
		if cmd.Args().Len() > 0 {
			return fmt.Errorf("--all cannot be combined with a filesystem argument")
		}
		return runPrivileged(ctx, cmd, cfg, func(ctx context.Context, m *snapshot.Manager) error {
			report := m.AutocleanAll(ctx, dryRun)
			if dryRun {
				for _, r := range report.Results {
					if r.Err != nil {
						continue
					}
					if err := list.WritePlan(os.Stdout, r.Filesystem, r.Decisions); err != nil {
						return err
					}
				}
			}
			return report.Err()
		})
	}

	sv, err := oneFilesystem(cmd, cfg)
	if err != nil {
		return err
	}
	return runPrivileged(ctx, cmd, cfg, func(ctx context.Context, m *snapshot.Manager) error {
		decisions, err := m.Autoclean(ctx, sv, dryRun)
		if err != nil {
			return err
		}
		if dryRun {
			return list.WritePlan(os.Stdout, sv.Mountpoint, decisions)
		}
		return nil
	})
}

func runList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sv, err := oneFilesystem(cmd, cfg)
	if err != nil {
		return err
	}
	suffix := suffixOr(cmd, cfg.Suffix)
	asJSON := cmd.Bool("json")

	return runPrivileged(ctx, cmd, cfg, func(_ context.Context, m *snapshot.Manager) error {
		records, err := m.List(sv, suffix)
		if err != nil {
			return err
		}
		output := list.Build(sv.Mountpoint, suffix, m.SnapshotDir(sv), records, time.Now())
		return list.Write(os.Stdout, output, asJSON)
	})
}
