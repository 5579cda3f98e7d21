// Package scenario holds the console contract of the system under test and
// the library of interaction scripts asserted against it. Every literal the
// guest prints lives in the Contract, so a console-format change in the OS is
// one table edit here rather than a hunt through the scenario bodies.
package scenario

import "fmt"

// Contract fixes the console text protocol produced by the guest. The harness
// consumes these strings verbatim; it never implements them.
type Contract struct {
	// Banner is the fixed substring printed once at boot.
	Banner string
	// Prompt is reprinted by the shell after every completed command.
	Prompt string
	// ShutdownCommand requests a clean guest shutdown.
	ShutdownCommand string

	UnknownCommand string
	Greeting       string
	CannotOpen     string
	// HexHeader is the 8-hex-digit offset header (plus colon) that opens a
	// hex dump of an existing file.
	HexHeader     string
	Segfault      string
	ConfirmMarker string
	PhysLabel     string
	VirtLabel     string
	MemoryUnit    string
	MallocOK      string
	PanicTag      string
	// PanicMessage is the operator message carried by the fatal-halt request.
	PanicMessage string

	// ListingEntries are the filenames every root directory listing must
	// contain, independent of order and formatting. Directories carry the
	// trailing separator marker.
	ListingEntries []string

	// FrameCount and FrameSizeKB derive the physical memory total the status
	// command reports: the PMM manages FrameCount frames of FrameSizeKB each.
	FrameCount  int
	FrameSizeKB int

	// ExpectedProcs is the number of processes alive while the status command
	// runs: the shell plus the reporting command itself. This is an ordering-
	// sensitive precondition of the registry, made explicit here; reordering
	// scenarios that leave processes behind invalidates it.
	ExpectedProcs int
}

// DefaultContract returns the YOLO-OS console contract.
func DefaultContract() Contract {
	return Contract{
		Banner:          "Welcome to the YOLO-OS",
		Prompt:          "> ",
		ShutdownCommand: "__exit",
		UnknownCommand:  "unknown command",
		Greeting:        "Hello",
		CannotOpen:      "cannot open",
		HexHeader:       "00000000:",
		Segfault:        "Segmentation fault",
		ConfirmMarker:   "[y/N]",
		PhysLabel:       "Phys:",
		VirtLabel:       "Virt:",
		MemoryUnit:      "kB",
		MallocOK:        "malloc: OK",
		PanicTag:        "[PANIC]",
		PanicMessage:    "kernel panic test",
		ListingEntries:  []string{"bin/", "BOOT.TXT"},
		// 0x100000-0x7FFFFFF managed by the PMM: 32512 frames of 4 kB.
		FrameCount:    32512,
		FrameSizeKB:   4,
		ExpectedProcs: 2,
	}
}

// PhysTotalKB is the physical memory total the status command must report.
func (c Contract) PhysTotalKB() int {
	return c.FrameCount * c.FrameSizeKB
}

// ProcsAnnotation is the process-count suffix the status command must print.
func (c Contract) ProcsAnnotation() string {
	return fmt.Sprintf("(%d procs)", c.ExpectedProcs)
}

// PanicLine is the full fatal tag plus operator message asserted on halt.
func (c Contract) PanicLine() string {
	return c.PanicTag + " " + c.PanicMessage
}
