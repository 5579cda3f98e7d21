// Package test provides shared testing utilities for the YOLO-OS
// console test harness.
//
// This package contains common helpers used across test files to keep
// fixture setup consistent.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Context returns a context that is cancelled when the test completes.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TempDir creates a temporary directory for testing.
// The directory is automatically cleaned up when the test completes.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "yolotest-*")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// WriteFile writes content to path, creating parent directories as needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent dirs")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write file")
}

// ConfigFile writes a .yolotest/config.toml under dir and returns its path.
func ConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".yolotest", "config.toml")
	WriteFile(t, path, content)
	return path
}

// Chdir changes to dir for the duration of the test.
// The original working directory is restored when the test completes.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	original, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	require.NoError(t, os.Chdir(dir), "failed to change directory")

	t.Cleanup(func() {
		assert.NoError(t, os.Chdir(original), "failed to restore working directory")
	})
}

// SkipIfShort skips the test if the -short flag is provided.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}

// AssertErrorIs checks if an error wraps the expected error.
func AssertErrorIs(t *testing.T, err, expected error) {
	t.Helper()
	assert.ErrorIs(t, err, expected, "error should wrap expected error")
}
