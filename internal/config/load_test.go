package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lisovy/yolo-os/internal/config"
	"github.com/lisovy/yolo-os/test"
)

func TestLoadProjectConfigOverridesHomeConfig(t *testing.T) {
	home := test.TempDir(t)
	project := test.TempDir(t)
	t.Setenv("HOME", home)
	test.Chdir(t, project)

	test.ConfigFile(t, home, `
boot_timeout = "30s"
log_level = "debug"
`)
	test.ConfigFile(t, project, `boot_timeout = "5s"`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.BootTimeout, "project overlay wins")
	require.Equal(t, "debug", cfg.LogLevel, "home-only settings survive")
	require.Equal(t, "disk.img", cfg.DiskImage, "untouched settings keep defaults")
}

func TestLoadWithoutConfigFilesReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", test.TempDir(t))
	test.Chdir(t, test.TempDir(t))

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.Defaults(), *cfg)
}

func TestLoadSurfacesBrokenHomeConfig(t *testing.T) {
	home := test.TempDir(t)
	t.Setenv("HOME", home)
	test.Chdir(t, test.TempDir(t))

	test.ConfigFile(t, home, `boot_timeout = "eventually"`)

	_, err := config.Load()
	require.Error(t, err)
}
