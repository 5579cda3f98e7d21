package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckDiskImagePasses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, []byte{0x55, 0xaa}, 0o600); err != nil {
		t.Fatalf("write disk image: %v", err)
	}

	check := NewManager(nil, nil).CheckDiskImage(path)
	if !check.OK {
		t.Fatalf("check failed: %s", check.Detail)
	}
}

func TestCheckDiskImageMissing(t *testing.T) {
	t.Parallel()

	check := NewManager(nil, nil).CheckDiskImage(filepath.Join(t.TempDir(), "absent.img"))
	if check.OK {
		t.Fatal("missing disk image reported as ok")
	}
	if !strings.Contains(check.Detail, "not found") {
		t.Fatalf("detail = %q", check.Detail)
	}
}

func TestCheckDiskImageRejectsDirectory(t *testing.T) {
	t.Parallel()

	check := NewManager(nil, nil).CheckDiskImage(t.TempDir())
	if check.OK {
		t.Fatal("directory reported as valid disk image")
	}
}

func TestCheckEmulatorResolvesPath(t *testing.T) {
	t.Parallel()

	lookPath := func(name string) (string, error) {
		if name == "qemu-system-i386" {
			return "/usr/bin/qemu-system-i386", nil
		}
		return "", errors.New("not found")
	}

	manager := NewManager(lookPath, nil)

	check := manager.CheckEmulator("qemu-system-i386")
	if !check.OK || check.Detail != "/usr/bin/qemu-system-i386" {
		t.Fatalf("check = %+v", check)
	}

	check = manager.CheckEmulator("qemu-system-arm")
	if check.OK {
		t.Fatal("unresolvable binary reported as ok")
	}
}

func TestRunAllAggregatesHealth(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, []byte{0x55, 0xaa}, 0o600); err != nil {
		t.Fatalf("write disk image: %v", err)
	}
	lookPath := func(string) (string, error) { return "/usr/bin/qemu-system-i386", nil }

	report := NewManager(lookPath, nil).RunAll("qemu-system-i386", path)
	if !report.Healthy() {
		t.Fatalf("report unhealthy: %+v", report.Checks)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("check count = %d", len(report.Checks))
	}

	report = NewManager(lookPath, nil).RunAll("qemu-system-i386", filepath.Join(t.TempDir(), "absent.img"))
	if report.Healthy() {
		t.Fatal("missing disk image not reflected in report health")
	}
}
