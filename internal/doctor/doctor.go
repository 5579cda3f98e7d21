// Package doctor runs one-shot environment preflight checks. The harness
// refuses to run, without ever spawning the emulator, when the environment
// cannot support it.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Check is the outcome of one preflight probe.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report aggregates preflight checks.
type Report struct {
	Checks []Check
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, check := range r.Checks {
		if !check.OK {
			return false
		}
	}
	return true
}

// LookPath resolves an executable name; swappable for tests.
type LookPath func(name string) (string, error)

// Stat probes a filesystem path; swappable for tests.
type Stat func(name string) (os.FileInfo, error)

// Manager executes environment preflight checks.
type Manager struct {
	lookPath LookPath
	stat     Stat
}

// NewManager builds a preflight manager with default probes where omitted.
func NewManager(lookPath LookPath, stat Stat) *Manager {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if stat == nil {
		stat = os.Stat
	}
	return &Manager{lookPath: lookPath, stat: stat}
}

// CheckDiskImage verifies the disk image exists and is a regular file.
func (m *Manager) CheckDiskImage(path string) Check {
	check := Check{Name: "disk-image"}

	info, err := m.stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			check.Detail = fmt.Sprintf("disk image not found: %s", path)
		} else {
			check.Detail = fmt.Sprintf("stat %s: %v", path, err)
		}
		return check
	}
	if info.IsDir() {
		check.Detail = fmt.Sprintf("%s is a directory, not a disk image", path)
		return check
	}

	check.OK = true
	check.Detail = path
	return check
}

// CheckEmulator verifies the emulator binary is resolvable on PATH.
func (m *Manager) CheckEmulator(binary string) Check {
	check := Check{Name: "emulator"}

	resolved, err := m.lookPath(binary)
	if err != nil {
		check.Detail = fmt.Sprintf("%s not found on PATH", binary)
		return check
	}

	check.OK = true
	check.Detail = resolved
	return check
}

// RunAll executes every preflight check for the given environment.
func (m *Manager) RunAll(binary, diskImage string) Report {
	return Report{Checks: []Check{
		m.CheckEmulator(binary),
		m.CheckDiskImage(diskImage),
	}}
}
