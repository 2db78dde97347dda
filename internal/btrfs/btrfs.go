// Package btrfs wraps the btrfs command line tool.
package btrfs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec. Stdout goes to the process stdout,
// stderr is captured and returned in the error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmdline := append([]string{name}, args...)
	slog.Debug("Executing command", "cmd", cmdline)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("command %q failed: %w: %s", cmdline, err, msg)
		}
		return fmt.Errorf("command %q failed: %w", cmdline, err)
	}
	return nil
}

type Backend struct {
	runner Runner
}

func New(runner Runner) *Backend {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Backend{runner: runner}
}

// CreateSnapshot takes a read-only snapshot of subvolume src at dst.
func (b *Backend) CreateSnapshot(ctx context.Context, src, dst string) error {
	return b.runner.Run(ctx, "btrfs", "subvolume", "snapshot", "-r", src, dst)
}

func (b *Backend) DeleteSnapshot(ctx context.Context, path string) error {
	return b.runner.Run(ctx, "btrfs", "subvolume", "delete", path)
}

func CheckBinary() error {
	if _, err := exec.LookPath("btrfs"); err != nil {
		return fmt.Errorf("btrfs command not found in PATH: %w", err)
	}
	return nil
}
