// Package lock keeps two dosnap invocations from working on the same device
// at once.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "/run/dosnap.lock"

type Entry struct {
	Pid       int    `yaml:"pid"`
	Command   string `yaml:"command"`
	Device    string `yaml:"device"`
	StartedAt string `yaml:"started_at"`
}

func readLock(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func writeLock(path string, entry *Entry) error {
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM: the process exists but belongs to someone else
	return true
}

// Acquire records the current process as the holder of lockPath. A lock left
// behind by a dead process is taken over. The returned release function
// should be deferred.
func Acquire(lockPath, command, device string) (func() error, error) {
	existing, err := readLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	if existing != nil && existing.Pid > 0 && existing.Pid != os.Getpid() && isProcessAlive(existing.Pid) {
		return nil, fmt.Errorf("%s already locked by pid %d (%s, started %s)",
			existing.Device, existing.Pid, existing.Command, existing.StartedAt)
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	entry := &Entry{
		Pid:       os.Getpid(),
		Command:   command,
		Device:    device,
		StartedAt: time.Now().Format(time.RFC3339),
	}
	if err := writeLock(lockPath, entry); err != nil {
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	release := func() error {
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return release, nil
}
