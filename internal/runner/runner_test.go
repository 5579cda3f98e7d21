package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lisovy/yolo-os/internal/console"
	"github.com/lisovy/yolo-os/internal/events"
	"github.com/lisovy/yolo-os/internal/scenario"
	"github.com/lisovy/yolo-os/internal/shell"
)

// fakeSession serves pre-buffered console output and records lifecycle calls.
type fakeSession struct {
	pending    string
	sends      []string
	halted     bool
	closeCalls int
}

func bootedSession() *fakeSession {
	return &fakeSession{pending: "Welcome to the YOLO-OS\n> "}
}

func (s *fakeSession) Send(text string) error {
	s.sends = append(s.sends, text)
	return nil
}

func (s *fakeSession) SendLine(text string) error {
	return s.Send(text + "\n")
}

func (s *fakeSession) Expect(pattern console.Pattern, timeout time.Duration) (console.MatchResult, error) {
	result, rest, ok := console.Match(pattern, s.pending)
	if !ok {
		return console.MatchResult{}, fmt.Errorf("expect %s after %v: %w", pattern, timeout, console.ErrTimeout)
	}
	s.pending = rest
	return result, nil
}

func (s *fakeSession) Settle(time.Duration) {}

func (s *fakeSession) MarkHalted() { s.halted = true }

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

func passingCase(name string) scenario.Case {
	return scenario.Case{Name: name, Run: func(*shell.Shell) (string, error) {
		return "ok", nil
	}}
}

func newRunner(t *testing.T, session Session, cases []scenario.Case, bus events.Bus) *Runner {
	t.Helper()
	r, err := New(Options{
		Session:        session,
		Cases:          cases,
		Contract:       scenario.DefaultContract(),
		Bus:            bus,
		BootTimeout:    time.Second,
		CommandTimeout: time.Second,
		SettleDelay:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func TestRunExecutesCasesInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) scenario.Case {
		return scenario.Case{Name: name, Run: func(*shell.Shell) (string, error) {
			order = append(order, name)
			return "ok", nil
		}}
	}

	session := bootedSession()
	r := newRunner(t, session, []scenario.Case{record("first"), record("second"), record("third")}, nil)

	rep := r.Run(context.Background())

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("executed = %v", order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("executed[%d] = %q, want %q", i, order[i], name)
		}
	}
	if rep.Failed() != 0 || rep.ExitCode() != 0 {
		t.Fatalf("failed=%d exit=%d", rep.Failed(), rep.ExitCode())
	}
	if session.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", session.closeCalls)
	}
}

func TestRunBootFailureSkipsCasesAndStillClosesSession(t *testing.T) {
	t.Parallel()

	executed := false
	cases := []scenario.Case{{Name: "never", Run: func(*shell.Shell) (string, error) {
		executed = true
		return "ok", nil
	}}}

	session := &fakeSession{pending: "GRUB rescue>"}
	r := newRunner(t, session, cases, nil)

	rep := r.Run(context.Background())

	if executed {
		t.Fatal("scenario ran despite boot failure")
	}
	if rep.ExitCode() != 1 {
		t.Fatalf("exit = %d, want 1", rep.ExitCode())
	}
	results := rep.Results()
	if len(results) != 1 || results[0].Name != "boot" || results[0].Passed {
		t.Fatalf("results = %+v, want single boot failure", results)
	}
	if session.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", session.closeCalls)
	}
}

func TestRunFailingCaseDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	cases := []scenario.Case{
		passingCase("first"),
		{Name: "broken", Run: func(*shell.Shell) (string, error) {
			return "", fmt.Errorf("expect text %q: %w", "> ", console.ErrTimeout)
		}},
		passingCase("third"),
	}

	r := newRunner(t, bootedSession(), cases, nil)
	rep := r.Run(context.Background())

	results := rep.Results()
	if len(results) != 3 {
		t.Fatalf("result count = %d, want 3", len(results))
	}
	if results[1].Passed {
		t.Fatal("broken case recorded as pass")
	}
	if !strings.Contains(results[1].Detail, "expect") {
		t.Fatalf("detail = %q, want timeout text", results[1].Detail)
	}
	if !results[2].Passed {
		t.Fatal("case after failure did not run")
	}
	if rep.ExitCode() != 1 {
		t.Fatalf("exit = %d, want 1", rep.ExitCode())
	}
}

func TestRunPassingTerminalCaseMarksSessionHalted(t *testing.T) {
	t.Parallel()

	cases := []scenario.Case{
		passingCase("first"),
		{Name: "halt", Terminal: true, Run: func(*shell.Shell) (string, error) {
			return "machine halted", nil
		}},
	}

	session := bootedSession()
	r := newRunner(t, session, cases, nil)
	rep := r.Run(context.Background())

	if !session.halted {
		t.Fatal("session not marked halted after passing terminal case")
	}
	if session.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", session.closeCalls)
	}
	if rep.ExitCode() != 0 {
		t.Fatalf("exit = %d, want 0", rep.ExitCode())
	}
}

func TestRunFailingTerminalCaseLeavesGracefulPath(t *testing.T) {
	t.Parallel()

	cases := []scenario.Case{
		{Name: "halt", Terminal: true, Run: func(*shell.Shell) (string, error) {
			return "", errors.New("panic tag never appeared")
		}},
	}

	session := bootedSession()
	r := newRunner(t, session, cases, nil)
	rep := r.Run(context.Background())

	if session.halted {
		t.Fatal("session marked halted although the halt was never observed")
	}
	if session.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", session.closeCalls)
	}
	if rep.ExitCode() != 1 {
		t.Fatalf("exit = %d, want 1", rep.ExitCode())
	}
}

func TestNewRejectsTerminalCaseNotLast(t *testing.T) {
	t.Parallel()

	_, err := New(Options{
		Session: bootedSession(),
		Cases: []scenario.Case{
			{Name: "halt", Terminal: true, Run: func(*shell.Shell) (string, error) { return "", nil }},
			passingCase("after"),
		},
		Contract:       scenario.DefaultContract(),
		BootTimeout:    time.Second,
		CommandTimeout: time.Second,
	})
	if err == nil {
		t.Fatal("expected error for terminal case not last")
	}
}

func TestRunStreamsResultsThroughBus(t *testing.T) {
	t.Parallel()

	bus := events.New()
	var seen []string
	bus.SubscribeAll(func(event events.Event) {
		seen = append(seen, event.Type)
	})

	cases := []scenario.Case{passingCase("first"), passingCase("second")}
	r := newRunner(t, bootedSession(), cases, bus)
	r.Run(context.Background())

	want := []string{
		events.EventTypeRunStarted,
		events.EventTypeScenarioResult,
		events.EventTypeScenarioResult,
		events.EventTypeRunCompleted,
	}
	if len(seen) != len(want) {
		t.Fatalf("events = %v", seen)
	}
	for i, eventType := range want {
		if seen[i] != eventType {
			t.Fatalf("event[%d] = %q, want %q", i, seen[i], eventType)
		}
	}
}

func TestRunStopsBetweenCasesOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cases := []scenario.Case{
		{Name: "first", Run: func(*shell.Shell) (string, error) {
			cancel()
			return "ok", nil
		}},
		passingCase("second"),
	}

	session := bootedSession()
	r := newRunner(t, session, cases, nil)
	rep := r.Run(ctx)

	results := rep.Results()
	if len(results) != 1 {
		t.Fatalf("result count = %d, want 1 (run canceled)", len(results))
	}
	if session.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", session.closeCalls)
	}
}
