//go:build linux

// Package mount gives dosnap a private view of the btrfs device.
//
// A Session mounts the device on a temporary directory and changes into it.
// Release undoes both and must run on every exit path, so callers defer it
// right after a successful Acquire.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dosnap/internal/btrfs"

	"golang.org/x/sys/unix"
)

const tempPrefix = "btrfs-snapshot-"

type Session struct {
	dir      string
	prevDir  string
	unmount  func(string) error
	released bool
}

// Acquire mounts device with options on a fresh temporary directory and makes
// it the working directory.
func Acquire(ctx context.Context, runner btrfs.Runner, device string, options []string) (*Session, error) {
	return acquire(ctx, runner, device, options, func(dir string) error {
		return unix.Unmount(dir, 0)
	})
}

func acquire(ctx context.Context, runner btrfs.Runner, device string, options []string, unmount func(string) error) (*Session, error) {
	dir, err := os.MkdirTemp("", tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create mount directory: %w", err)
	}

	args := []string{}
	if len(options) > 0 {
		args = append(args, "-o", strings.Join(options, ","))
	}
	args = append(args, device, dir)
	if err := runner.Run(ctx, "mount", args...); err != nil {
		_ = os.Remove(dir)
		return nil, fmt.Errorf("failed to mount %s: %w", device, err)
	}
	slog.Debug("Device mounted", "device", device, "dir", dir)

	s := &Session{dir: dir, unmount: unmount}

	prev, err := os.Getwd()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get working directory: %w", err), s.teardown())
	}
	if err := os.Chdir(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to enter mount directory: %w", err), s.teardown())
	}
	s.prevDir = prev

	return s, nil
}

// Root is the directory the device is mounted on.
func (s *Session) Root() string {
	return s.dir
}

// Resolve maps a path from the configuration, which is always relative to the
// top of the device, into the mounted tree.
func (s *Session) Resolve(p string) string {
	return filepath.Join(s.dir, p)
}

// Release restores the previous working directory, unmounts the device and
// removes the temporary directory. It is safe to call more than once.
func (s *Session) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	if s.prevDir != "" {
		if err := os.Chdir(s.prevDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
		}
	}
	if err := s.teardown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) teardown() error {
	if err := s.unmount(s.dir); err != nil {
		// Keep the directory: removing it while mounted is not possible and
		// it shows where the device is still mounted.
		return fmt.Errorf("failed to unmount %s: %w", s.dir, err)
	}
	if err := os.Remove(s.dir); err != nil {
		return fmt.Errorf("failed to remove mount directory: %w", err)
	}
	slog.Debug("Device unmounted", "dir", s.dir)
	return nil
}
