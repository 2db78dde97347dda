//go:build linux

package mount

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// EnvMarker is set in the environment of the re-executed process.
const EnvMarker = "DOSNAP_MOUNT_NS"

// Isolated reports whether the process runs in the private mount namespace
// created by Reexec.
func Isolated() bool {
	return os.Getenv(EnvMarker) == "1"
}

// Reexec runs the current executable again, with the same arguments, in a new
// mount namespace whose mounts are all private, and returns its exit code.
// A multi-threaded Go process cannot unshare its own mount namespace, so the
// isolation has to happen at exec time.
func Reexec() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 1, fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), EnvMarker+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Unshareflags: unix.CLONE_NEWNS}

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, fmt.Errorf("unable to unshare mount namespace: %w", err)
	}
	return 0, nil
}

func RequireRoot() error {
	if unix.Geteuid() != 0 {
		return fmt.Errorf("please run as root")
	}
	return nil
}
