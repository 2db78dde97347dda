package check

import (
	"context"
	"fmt"
	"io"
	"os"

	"dosnap/internal/btrfs"
	"dosnap/internal/config"
	"dosnap/internal/mount"
)

// Run verifies what dosnap needs before it can touch the device, printing one
// line per check. It stops at the first failed check.
func Run(_ context.Context, w io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Fprintln(w, "config: OK")

	for _, sv := range cfg.Subvolumes {
		fmt.Fprintf(w, "filesystem %s: path %s, create=%t autoclean=%t\n", sv.Mountpoint, sv.Path, sv.Create, sv.Autoclean)
	}

	if _, err := os.Stat(cfg.Device); err != nil {
		return fmt.Errorf("device %s: %w", cfg.Device, err)
	}
	fmt.Fprintf(w, "device %s: OK\n", cfg.Device)

	if err := btrfs.CheckBinary(); err != nil {
		return err
	}
	fmt.Fprintln(w, "btrfs: OK")

	if err := mount.RequireRoot(); err != nil {
		return err
	}
	fmt.Fprintln(w, "privileges: OK")

	fmt.Fprintln(w, "all checks passed")
	return nil
}
