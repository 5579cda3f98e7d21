package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultQEMUBinary     = "qemu-system-i386"
	defaultDiskImage      = "disk.img"
	defaultBootTimeout    = 15 * time.Second
	defaultCommandTimeout = 8 * time.Second
	// The allocator diagnostic exercises exhaustion paths and runs well past
	// the ordinary per-command budget.
	defaultMallocTimeout   = 20 * time.Second
	defaultSettleDelay     = 1 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultLogLevel        = "info"
)

// Config stores runtime settings loaded from TOML files. A loaded Config is
// treated as immutable: sessions and scenarios receive it by value at
// construction, so independent harness instances never share mutable state.
type Config struct {
	QEMUBinary      string
	DiskImage       string
	BootTimeout     time.Duration
	CommandTimeout  time.Duration
	MallocTimeout   time.Duration
	SettleDelay     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

type fileConfig struct {
	QEMUBinary      *string `toml:"qemu_binary"`
	DiskImage       *string `toml:"disk_image"`
	BootTimeout     *string `toml:"boot_timeout"`
	CommandTimeout  *string `toml:"command_timeout"`
	MallocTimeout   *string `toml:"malloc_timeout"`
	SettleDelay     *string `toml:"settle_delay"`
	ShutdownTimeout *string `toml:"shutdown_timeout"`
	LogLevel        *string `toml:"log_level"`
}

// Load reads config from ~/.yolotest/config.toml and overlays a project-local
// .yolotest/config.toml.
func Load() (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".yolotest", "config.toml"),
		filepath.Join(workingDir, ".yolotest", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Defaults returns the built-in configuration without reading any files.
func Defaults() Config {
	return defaults()
}

func defaults() Config {
	return Config{
		QEMUBinary:      defaultQEMUBinary,
		DiskImage:       defaultDiskImage,
		BootTimeout:     defaultBootTimeout,
		CommandTimeout:  defaultCommandTimeout,
		MallocTimeout:   defaultMallocTimeout,
		SettleDelay:     defaultSettleDelay,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if err := applyScalarOverrides(cfg, decoded); err != nil {
		return err
	}
	return applyDurationOverrides(cfg, decoded, path)
}

func applyScalarOverrides(cfg *Config, decoded fileConfig) error {
	if decoded.QEMUBinary != nil {
		binary := strings.TrimSpace(*decoded.QEMUBinary)
		if binary == "" {
			return errors.New("qemu_binary must not be empty")
		}
		cfg.QEMUBinary = binary
	}
	if decoded.DiskImage != nil {
		image := strings.TrimSpace(*decoded.DiskImage)
		if image == "" {
			return errors.New("disk_image must not be empty")
		}
		cfg.DiskImage = image
	}
	if decoded.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
	}
	return nil
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	entries := []struct {
		raw *string
		key string
		dst *time.Duration
	}{
		{decoded.BootTimeout, "boot_timeout", &cfg.BootTimeout},
		{decoded.CommandTimeout, "command_timeout", &cfg.CommandTimeout},
		{decoded.MallocTimeout, "malloc_timeout", &cfg.MallocTimeout},
		{decoded.SettleDelay, "settle_delay", &cfg.SettleDelay},
		{decoded.ShutdownTimeout, "shutdown_timeout", &cfg.ShutdownTimeout},
	}

	for _, entry := range entries {
		if entry.raw == nil {
			continue
		}
		value, err := parseDuration(*entry.raw, entry.key, path)
		if err != nil {
			return err
		}
		*entry.dst = value
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s in %q: must be > 0", key, path)
	}
	return parsed, nil
}
