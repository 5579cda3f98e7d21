package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lisovy/yolo-os/internal/config"
)

func TestRootCommandVersionFlag(t *testing.T) {
	originalVersion := Version
	defer func() {
		Version = originalVersion
	}()
	Version = "v0.1.0-test"
	var exitCode int
	defaults := config.Defaults()
	cmd := newRootCommand(&defaults, &exitCode)

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := strings.TrimSpace(stdout.String())
	if output != "v0.1.0-test" {
		t.Fatalf("version output = %q, want %q", output, "v0.1.0-test")
	}
}

func TestRootCommandHelpListsExpectedSubcommands(t *testing.T) {
	var exitCode int
	defaults := config.Defaults()
	cmd := newRootCommand(&defaults, &exitCode)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := stdout.String()
	expected := []string{"doctor", "scenarios", "--disk"}
	for _, name := range expected {
		if !strings.Contains(output, name) {
			t.Fatalf("help output missing %q: %s", name, output)
		}
	}
}

func TestScenariosCommandListsRegistryOrder(t *testing.T) {
	var exitCode int
	defaults := config.Defaults()
	cmd := newRootCommand(&defaults, &exitCode)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"scenarios"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := stdout.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 14 {
		t.Fatalf("scenario count = %d, want 14:\n%s", len(lines), output)
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "1. boot") {
		t.Fatalf("first scenario line = %q, want boot", lines[0])
	}
	last := lines[len(lines)-1]
	if !strings.Contains(last, "t_panic") || !strings.Contains(last, "terminal") {
		t.Fatalf("last scenario line = %q, want t_panic marked terminal", last)
	}
}

func TestDoctorCommandReportsMissingDiskImage(t *testing.T) {
	var exitCode int
	defaults := config.Defaults()
	cmd := newRootCommand(&defaults, &exitCode)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	missing := filepath.Join(t.TempDir(), "no-such.img")
	cmd.SetArgs([]string{"doctor", "--disk", missing})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1 for missing disk image", exitCode)
	}
	if !strings.Contains(stdout.String(), "disk image") {
		t.Fatalf("doctor output missing disk image check:\n%s", stdout.String())
	}
}

func TestRunHarnessRejectsMissingDiskImageBeforeSpawning(t *testing.T) {
	cfg := config.Defaults()
	cfg.QEMUBinary = filepath.Join(t.TempDir(), "definitely-not-qemu")

	var stdout bytes.Buffer
	missing := filepath.Join(t.TempDir(), "no-such.img")
	code, err := runHarness(context.Background(), &stdout, cfg, missing)
	if err == nil {
		t.Fatal("expected an error for a missing disk image")
	}
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("harness wrote output before preflight failed: %q", stdout.String())
	}
}
