// Command yolotest boots a YOLO-OS disk image under QEMU and runs the
// console scenario suite against it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lisovy/yolo-os/internal/config"
	"github.com/lisovy/yolo-os/internal/console"
	"github.com/lisovy/yolo-os/internal/doctor"
	"github.com/lisovy/yolo-os/internal/events"
	"github.com/lisovy/yolo-os/internal/logging"
	"github.com/lisovy/yolo-os/internal/report"
	"github.com/lisovy/yolo-os/internal/runner"
	"github.com/lisovy/yolo-os/internal/scenario"
)

// Version is set at build time.
var Version = "dev"

func main() {
	code, err := run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run(ctx context.Context, args []string) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}

	exitCode := 0
	cmd := newRootCommand(cfg, &exitCode)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1, err
	}
	return exitCode, nil
}

func newRootCommand(cfg *config.Config, exitCode *int) *cobra.Command {
	var diskImage string

	root := &cobra.Command{
		Use:           "yolotest",
		Short:         "Run the YOLO-OS console test suite against a disk image",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := runHarness(cmd.Context(), cmd.OutOrStdout(), *cfg, diskImage)
			*exitCode = code
			return err
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().StringVar(&diskImage, "disk", cfg.DiskImage, "path to the disk image")

	root.AddCommand(
		newDoctorCommand(cfg, &diskImage, exitCode),
		newScenariosCommand(*cfg),
	)

	return root
}

// runHarness is the end-to-end run: preflight, boot, scenarios, teardown.
// The disk image is validated before the emulator is ever spawned.
func runHarness(ctx context.Context, out io.Writer, cfg config.Config, diskImage string) (int, error) {
	preflight := doctor.NewManager(nil, nil).CheckDiskImage(diskImage)
	if !preflight.OK {
		return 1, fmt.Errorf("%s", preflight.Detail)
	}

	runtimeLogger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return 1, fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := runtimeLogger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()
	logger := runtimeLogger.Logger

	contract := scenario.DefaultContract()
	cases, err := scenario.Registry(contract, scenario.Timeouts{
		Command: cfg.CommandTimeout,
		Malloc:  cfg.MallocTimeout,
	})
	if err != nil {
		return 1, fmt.Errorf("build scenario registry: %w", err)
	}

	fmt.Fprintf(out, "Booting %s in QEMU ...\n", diskImage)
	session, err := console.Start(console.Options{
		QEMUBinary:      cfg.QEMUBinary,
		DiskImage:       diskImage,
		ShutdownCommand: contract.ShutdownCommand,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		return 1, err
	}

	bus := events.New()
	report.NewConsoleReporter(out).Attach(bus)

	testRunner, err := runner.New(runner.Options{
		Session:        session,
		Cases:          cases,
		Contract:       contract,
		Bus:            bus,
		Logger:         logger,
		BootTimeout:    cfg.BootTimeout,
		CommandTimeout: cfg.CommandTimeout,
		SettleDelay:    cfg.SettleDelay,
	})
	if err != nil {
		_ = session.Close()
		return 1, fmt.Errorf("build runner: %w", err)
	}

	return testRunner.Run(ctx).ExitCode(), nil
}

func newDoctorCommand(cfg *config.Config, diskImage *string, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the environment can run the test suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			healthReport := doctor.NewManager(nil, nil).RunAll(cfg.QEMUBinary, *diskImage)
			for _, check := range healthReport.Checks {
				status := "ok"
				if !check.OK {
					status = "missing"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s %s\n", check.Name, status, check.Detail)
			}
			if !healthReport.Healthy() {
				*exitCode = 1
			}
			return nil
		},
	}
}

func newScenariosCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenario registry in execution order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := scenario.Registry(scenario.DefaultContract(), scenario.Timeouts{
				Command: cfg.CommandTimeout,
				Malloc:  cfg.MallocTimeout,
			})
			if err != nil {
				return err
			}
			for i, c := range cases {
				suffix := ""
				if c.Terminal {
					suffix = "  (terminal: halts the machine)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s%s\n", i+1, c.Name, suffix)
			}
			return nil
		},
	}
}
