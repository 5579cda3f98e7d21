package scenario

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lisovy/yolo-os/internal/console"
	"github.com/lisovy/yolo-os/internal/shell"
)

// Case pairs a unique scenario name with its interaction script. Cases run in
// registry order against one shared session; later cases may depend on guest
// state left behind by earlier ones, and isolation is deliberately absent.
// A Terminal case halts the machine: nothing may run after it.
type Case struct {
	Name     string
	Terminal bool
	Run      func(sh *shell.Shell) (detail string, err error)
}

// Timeouts carries the wait budgets scenarios need beyond the shell's default
// per-command budget.
type Timeouts struct {
	Command time.Duration
	Malloc  time.Duration
}

// Registry returns the ordered scenario cases for the given contract. Any
// terminal case is moved to the end regardless of declaration position; a
// registry with more than one terminal case is rejected.
func Registry(c Contract, timeouts Timeouts) ([]Case, error) {
	declared := []Case{
		{Name: "boot", Run: boot()},
		{Name: "unknown_command", Run: unknownCommand(c, timeouts)},
		{Name: "hello", Run: hello(c, timeouts)},
		{Name: "ls", Run: listing(c)},
		{Name: "xxd", Run: hexDump(c, timeouts)},
		{Name: "xxd_missing_file", Run: hexDumpMissing(c)},
		{Name: "vi_quit", Run: editorForceQuit()},
		{Name: "t_segflt", Run: segfault(c, timeouts)},
		{Name: "fs_operations", Run: filesystemRoundTrip(c)},
		{Name: "paths", Run: pathResolution(c, timeouts)},
		{Name: "free", Run: memoryStatus(c)},
		{Name: "t_mall1", Run: allocatorStress(c, timeouts)},
		{Name: "t_mall2", Run: allocatorFault(c, timeouts)},
		{Name: "t_panic", Terminal: true, Run: kernelPanic(c, timeouts)},
	}
	return order(declared)
}

// order moves the terminal case last and rejects registries with more than one.
func order(cases []Case) ([]Case, error) {
	ordered := make([]Case, 0, len(cases))
	var terminal *Case
	for i := range cases {
		if !cases[i].Terminal {
			ordered = append(ordered, cases[i])
			continue
		}
		if terminal != nil {
			return nil, fmt.Errorf("registry declares terminal cases %q and %q; at most one is allowed", terminal.Name, cases[i].Name)
		}
		terminal = &cases[i]
	}
	if terminal != nil {
		ordered = append(ordered, *terminal)
	}
	return ordered, nil
}

// boot passes trivially: the runner already waited for the banner and first
// prompt under the boot budget before any case runs.
func boot() func(*shell.Shell) (string, error) {
	return func(*shell.Shell) (string, error) {
		return "got shell prompt", nil
	}
}

func unknownCommand(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("thisdoesnotexist", console.Text(c.UnknownCommand), timeouts.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("printed %q", c.UnknownCommand), nil
	}
}

func hello(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("hello", console.Text(c.Greeting), timeouts.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("output contains %q", c.Greeting), nil
	}
}

func listing(c Contract) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		out, err := sh.Capture("ls")
		if err != nil {
			return "", err
		}
		for _, entry := range c.ListingEntries {
			if !strings.Contains(out, entry) {
				return "", fmt.Errorf("%s not listed", entry)
			}
		}
		return "found " + strings.Join(c.ListingEntries, ", "), nil
	}
}

func hexDump(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("xxd BOOT.TXT", console.Text(c.HexHeader), timeouts.Command); err != nil {
			return "", err
		}
		return "hex dump starts with offset " + c.HexHeader, nil
	}
}

func hexDumpMissing(c Contract) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		out, err := sh.Capture("xxd NOSUCHFILE.TXT")
		if err != nil {
			return "", err
		}
		if !strings.Contains(out, c.CannotOpen) {
			return "", fmt.Errorf("no %q diagnostic for missing file", c.CannotOpen)
		}
		if strings.Contains(out, c.HexHeader) {
			return "", fmt.Errorf("offset header %s printed for missing file", c.HexHeader)
		}
		return fmt.Sprintf("printed %q", c.CannotOpen), nil
	}
}

// editorForceQuit opens the modal editor and force-quits with unsaved state;
// the shell prompt must reappear regardless.
func editorForceQuit() func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if err := sh.OpenEditor("test.txt"); err != nil {
			return "", err
		}
		if err := sh.ForceQuit(); err != nil {
			return "", err
		}
		return ":q! returned to shell", nil
	}
}

func segfault(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("t_segflt", console.Text(c.Segfault), timeouts.Command); err != nil {
			return "", err
		}
		return fmt.Sprintf("printed %q and returned to shell", c.Segfault), nil
	}
}

// filesystemRoundTrip creates and destroys a directory and a file, confirming
// each destructive step, and verifies the root listing ends up exactly where
// it started.
func filesystemRoundTrip(c Contract) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		baseline, err := sh.Capture("ls")
		if err != nil {
			return "", fmt.Errorf("baseline listing: %w", err)
		}

		if err := sh.Run("mkdir testdir"); err != nil {
			return "", err
		}
		if _, err := sh.ExpectThenPrompt("ls", console.Text("testdir/"), sh.CommandTimeout()); err != nil {
			return "", fmt.Errorf("testdir/ not visible after mkdir: %w", err)
		}
		if err := sh.Run("cd testdir"); err != nil {
			return "", err
		}

		if err := sh.OpenEditor("testfile.txt"); err != nil {
			return "", err
		}
		if err := sh.InsertText("hello"); err != nil {
			return "", err
		}
		if err := sh.WriteQuit(); err != nil {
			return "", err
		}
		if _, err := sh.ExpectThenPrompt("ls", console.Text("testfile.txt"), sh.CommandTimeout()); err != nil {
			return "", fmt.Errorf("testfile.txt not listed after editor save: %w", err)
		}

		if err := sh.Remove("testfile.txt"); err != nil {
			return "", err
		}
		if err := sh.Run("cd .."); err != nil {
			return "", err
		}
		if err := sh.Remove("testdir"); err != nil {
			return "", err
		}

		after, err := sh.Capture("ls")
		if err != nil {
			return "", fmt.Errorf("final listing: %w", err)
		}
		if strings.Contains(after, "testdir") {
			return "", fmt.Errorf("testdir still listed after deletion")
		}
		if before, got := listingEntries(baseline), listingEntries(after); before != got {
			return "", fmt.Errorf("listing changed by round trip: before=%q after=%q", before, got)
		}
		return "mkdir / create file / rm file / rm dir left listing unchanged", nil
	}
}

// listingEntries normalizes a captured listing block to a sorted entry set,
// ignoring ordering, spacing, and the echoed command line.
func listingEntries(block string) string {
	fields := strings.Fields(block)
	entries := make([]string, 0, len(fields))
	for _, field := range fields {
		if field == "ls" {
			continue
		}
		entries = append(entries, field)
	}
	sort.Strings(entries)
	return strings.Join(entries, " ")
}

// pathResolution exercises read, navigation, creation, and deletion through
// absolute and relative paths, including a nested directory.
func pathResolution(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("xxd /bin/hello", console.Text(c.HexHeader), timeouts.Command); err != nil {
			return "", err
		}
		if err := sh.Run("cd /bin"); err != nil {
			return "", err
		}
		out, err := sh.Capture("ls")
		if err != nil {
			return "", err
		}
		if !strings.Contains(out, "hello") {
			return "", fmt.Errorf("hello not listed inside /bin")
		}
		if _, err := sh.ExpectThenPrompt("xxd hello", console.Text(c.HexHeader), timeouts.Command); err != nil {
			return "", fmt.Errorf("relative read inside /bin: %w", err)
		}
		if err := sh.Run("cd /"); err != nil {
			return "", err
		}

		if err := sh.Run("mkdir pathtest"); err != nil {
			return "", err
		}
		if err := sh.OpenEditor("/pathtest/deep.txt"); err != nil {
			return "", err
		}
		if err := sh.InsertText("pathdata"); err != nil {
			return "", err
		}
		if err := sh.WriteQuit(); err != nil {
			return "", err
		}
		if _, err := sh.ExpectThenPrompt("xxd /pathtest/deep.txt", console.Text(c.HexHeader), timeouts.Command); err != nil {
			return "", fmt.Errorf("absolute read of nested file: %w", err)
		}

		if err := sh.Remove("/pathtest/deep.txt"); err != nil {
			return "", err
		}
		if err := sh.Remove("/pathtest"); err != nil {
			return "", err
		}
		return "read, navigate, create and delete via absolute and relative paths", nil
	}
}

// memoryStatus asserts the labeled physical and virtual memory rows, the
// derived physical total, and the live process count. The process count
// assumes exactly the shell and the status command itself are alive, which
// registry ordering must preserve.
func memoryStatus(c Contract) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		out, err := sh.Capture("free")
		if err != nil {
			return "", err
		}

		total := strconv.Itoa(c.PhysTotalKB())
		for _, want := range []string{c.PhysLabel, c.VirtLabel, c.MemoryUnit, total, c.ProcsAnnotation()} {
			if !strings.Contains(out, want) {
				return "", fmt.Errorf("%q missing from memory report", want)
			}
		}
		return fmt.Sprintf("Phys/Virt rows present, total=%s %s, %s", total, c.MemoryUnit, c.ProcsAnnotation()), nil
	}
}

func allocatorStress(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("t_mall1", console.Text(c.MallocOK), timeouts.Malloc); err != nil {
			return "", err
		}
		return "alloc, free+reuse, large alloc, exhaustion all passed", nil
	}
}

func allocatorFault(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if _, err := sh.ExpectThenPrompt("t_mall2", console.Text(c.Segfault), timeouts.Command); err != nil {
			return "", err
		}
		return "unmapped heap access caused segfault", nil
	}
}

// kernelPanic requests a fatal halt carrying an operator message. The machine
// stops; no further prompt is awaited and no case may run afterwards.
func kernelPanic(c Contract, timeouts Timeouts) func(*shell.Shell) (string, error) {
	return func(sh *shell.Shell) (string, error) {
		if err := sh.SendLine("t_panic " + c.PanicMessage); err != nil {
			return "", err
		}
		if _, err := sh.Expect(console.Text(c.PanicLine()), timeouts.Command); err != nil {
			return "", err
		}
		return "kernel panic triggered, " + c.PanicTag + " confirmed on console", nil
	}
}
