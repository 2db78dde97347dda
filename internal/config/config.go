package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dosnap/internal/retention"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath   = "/etc/dosnap.yaml"
	DefaultSuffix = "-auto"
)

var ErrSubvolumeNotFound = errors.New("filesystem not found in config")

type Subvolume struct {
	Mountpoint string           `yaml:"mountpoint"`
	Path       string           `yaml:"path"`
	Create     bool             `yaml:"create"`
	Autoclean  bool             `yaml:"autoclean"`
	Limits     retention.Limits `yaml:"limits"`
}

type Config struct {
	Device       string      `yaml:"device"`
	MountOptions []string    `yaml:"mount_options"`
	SnapshotRoot string      `yaml:"snapshot_root"`
	Suffix       string      `yaml:"suffix"`
	LockFile     string      `yaml:"lock_file,omitempty"`
	LogFile      string      `yaml:"log_file,omitempty"`
	MetricsFile  string      `yaml:"metrics_file,omitempty"`
	Subvolumes   []Subvolume `yaml:"subvolumes"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSuffix
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device is required")
	}
	if c.SnapshotRoot == "" {
		return fmt.Errorf("snapshot_root is required")
	}
	if c.Suffix == "" {
		return fmt.Errorf("suffix must not be empty")
	}
	// These are written while the working directory is inside the mount.
	for key, p := range map[string]string{"lock_file": c.LockFile, "log_file": c.LogFile, "metrics_file": c.MetricsFile} {
		if p != "" && !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path", key)
		}
	}
	if len(c.Subvolumes) == 0 {
		return fmt.Errorf("at least one subvolume is required")
	}
	seen := make(map[string]bool, len(c.Subvolumes))
	for i, sv := range c.Subvolumes {
		if sv.Mountpoint == "" {
			return fmt.Errorf("subvolumes[%d].mountpoint is required", i)
		}
		if seen[sv.Mountpoint] {
			return fmt.Errorf("subvolumes[%d].mountpoint %s is duplicated", i, sv.Mountpoint)
		}
		seen[sv.Mountpoint] = true
		if sv.Path == "" {
			return fmt.Errorf("subvolumes[%d].path is required", i)
		}
		for _, tier := range retention.Tiers {
			if n, bounded := sv.Limits.Cap(tier); bounded && n < 0 {
				return fmt.Errorf("subvolumes[%d].limits.%s must not be negative", i, tier)
			}
		}
	}
	return nil
}

func (c *Config) FindSubvolume(mountpoint string) (*Subvolume, error) {
	for i := range c.Subvolumes {
		if c.Subvolumes[i].Mountpoint == mountpoint {
			return &c.Subvolumes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubvolumeNotFound, mountpoint)
}

// CreateSubvolumes returns the subvolumes included in "create --all".
func (c *Config) CreateSubvolumes() []Subvolume {
	var out []Subvolume
	for _, sv := range c.Subvolumes {
		if sv.Create {
			out = append(out, sv)
		}
	}
	return out
}

// AutocleanSubvolumes returns the subvolumes included in "autoclean --all".
func (c *Config) AutocleanSubvolumes() []Subvolume {
	var out []Subvolume
	for _, sv := range c.Subvolumes {
		if sv.Autoclean {
			out = append(out, sv)
		}
	}
	return out
}
