// Package runner owns the harness run: one shared emulator session, the
// ordered scenario registry, streamed reporting, and unconditional teardown.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lisovy/yolo-os/internal/console"
	"github.com/lisovy/yolo-os/internal/events"
	"github.com/lisovy/yolo-os/internal/report"
	"github.com/lisovy/yolo-os/internal/scenario"
	"github.com/lisovy/yolo-os/internal/shell"
)

// Session is the emulator surface the runner drives. Satisfied by
// *console.Session; tests substitute scripted fakes.
type Session interface {
	shell.Console
	MarkHalted()
	Close() error
}

// Options configures a harness run.
type Options struct {
	Session  Session
	Cases    []scenario.Case
	Contract scenario.Contract
	Bus      events.Bus
	Logger   *log.Logger

	// BootTimeout bounds the wait for the banner and the first prompt. It is
	// deliberately longer than the per-command budget.
	BootTimeout    time.Duration
	CommandTimeout time.Duration
	SettleDelay    time.Duration
}

// Runner executes the registry against one shared session. It is the
// session's sole owner: scenarios receive the session only through the
// command driver, strictly one at a time.
type Runner struct {
	session  Session
	sh       *shell.Shell
	cases    []scenario.Case
	contract scenario.Contract
	bus      events.Bus
	logger   *log.Logger
	boot     time.Duration
}

// New validates the registry and builds a runner.
func New(opts Options) (*Runner, error) {
	if opts.Session == nil {
		return nil, errors.New("session is required")
	}
	if len(opts.Cases) == 0 {
		return nil, errors.New("at least one scenario case is required")
	}
	for i, c := range opts.Cases {
		if c.Terminal && i != len(opts.Cases)-1 {
			return nil, fmt.Errorf("terminal case %q must be last in the registry", c.Name)
		}
	}
	if opts.BootTimeout <= 0 {
		return nil, errors.New("boot timeout must be positive")
	}

	sh, err := shell.New(opts.Session, shell.Config{
		Prompt:         opts.Contract.Prompt,
		ConfirmMarker:  opts.Contract.ConfirmMarker,
		CommandTimeout: opts.CommandTimeout,
		SettleDelay:    opts.SettleDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("build command driver: %w", err)
	}

	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}

	return &Runner{
		session:  opts.Session,
		sh:       sh,
		cases:    opts.Cases,
		contract: opts.Contract,
		bus:      bus,
		logger:   opts.Logger,
		boot:     opts.BootTimeout,
	}, nil
}

// Run boots the guest and executes every case in registry order. A timeout or
// end-of-stream inside a case is recorded as that case's failure and the run
// continues; a crashing case never aborts the run. The session is closed on
// every exit path, including boot failure. The returned report's exit code is
// zero iff every case passed.
func (r *Runner) Run(ctx context.Context) *report.Report {
	rep := report.New()
	r.bus.Publish(events.Event{Type: events.EventTypeRunStarted, Severity: events.SeverityInfo})

	defer func() {
		if err := r.session.Close(); err != nil && r.logger != nil {
			r.logger.With("error", err).Warn("session teardown")
		}
		r.bus.Publish(events.Event{
			Type:     events.EventTypeRunCompleted,
			Payload:  rep,
			Severity: completionSeverity(rep),
		})
	}()

	if err := r.waitForBoot(); err != nil {
		r.record(rep, report.Result{Name: "boot", Passed: false, Detail: err.Error()})
		return rep
	}

	for _, c := range r.cases {
		if ctx.Err() != nil {
			if r.logger != nil {
				r.logger.With("case", c.Name).Warn("run canceled before case")
			}
			break
		}

		result := r.runCase(c)
		r.record(rep, result)

		// A passing terminal case means the machine has halted: skip the
		// graceful shutdown path on close. Nothing runs after it either way.
		if c.Terminal {
			if result.Passed {
				r.session.MarkHalted()
			}
			break
		}
	}

	return rep
}

func (r *Runner) waitForBoot() error {
	if _, err := r.sh.Expect(console.Text(r.contract.Banner), r.boot); err != nil {
		return fmt.Errorf("OS did not print welcome message: %w", err)
	}
	if err := r.sh.WaitPrompt(r.boot); err != nil {
		return fmt.Errorf("no shell prompt after welcome message: %w", err)
	}
	return nil
}

func (r *Runner) runCase(c scenario.Case) report.Result {
	if r.logger != nil {
		r.logger.With("case", c.Name).Debug("scenario start")
	}

	detail, err := c.Run(r.sh)
	if err != nil {
		return report.Result{Name: c.Name, Passed: false, Detail: err.Error()}
	}
	return report.Result{Name: c.Name, Passed: true, Detail: detail}
}

func (r *Runner) record(rep *report.Report, result report.Result) {
	rep.Add(result)

	severity := events.SeverityInfo
	if !result.Passed {
		severity = events.SeverityError
	}
	r.bus.Publish(events.Event{
		Type:     events.EventTypeScenarioResult,
		Scenario: result.Name,
		Payload:  result,
		Severity: severity,
	})

	if r.logger != nil {
		r.logger.With("case", result.Name, "passed", result.Passed, "detail", result.Detail).
			Info("scenario finished")
	}
}

func completionSeverity(rep *report.Report) string {
	if rep.Failed() > 0 {
		return events.SeverityError
	}
	return events.SeverityInfo
}
