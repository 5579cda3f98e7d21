// Package report aggregates scenario outcomes and streams them to the
// console as they land.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/lisovy/yolo-os/internal/events"
)

// Result records one scenario outcome.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Report is the ordered outcome of a harness run.
type Report struct {
	mu      sync.Mutex
	results []Result
	failed  int
}

// New creates an empty report.
func New() *Report {
	return &Report{}
}

// Add appends one scenario result in execution order.
func (r *Report) Add(result Result) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	if !result.Passed {
		r.failed++
	}
}

// Results returns the recorded outcomes in execution order.
func (r *Report) Results() []Result {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// Passed returns the number of passing scenarios.
func (r *Report) Passed() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results) - r.failed
}

// Failed returns the number of failing scenarios.
func (r *Report) Failed() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// ExitCode derives the process exit status: zero iff nothing failed.
func (r *Report) ExitCode() int {
	if r.Failed() > 0 {
		return 1
	}
	return 0
}

// Summary renders the aggregate line.
func (r *Report) Summary() string {
	passed := r.Passed()
	total := passed + r.Failed()
	if r.Failed() > 0 {
		return fmt.Sprintf("%d/%d tests passed  (%d failed)", passed, total, r.Failed())
	}
	return fmt.Sprintf("%d/%d tests passed", passed, total)
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// ConsoleReporter prints one line per scenario result the moment it is
// published, plus the summary when the run completes. Reporting is streamed,
// never buffered to the end of the run.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter builds a reporter writing to the given stream.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Attach subscribes the reporter to a bus carrying run events.
func (c *ConsoleReporter) Attach(bus events.Bus) {
	bus.Subscribe(events.EventTypeScenarioResult, c.onScenarioResult)
	bus.Subscribe(events.EventTypeRunCompleted, c.onRunCompleted)
}

func (c *ConsoleReporter) onScenarioResult(event events.Event) {
	result, ok := event.Payload.(Result)
	if !ok {
		return
	}

	status := passStyle.Render("PASS")
	if !result.Passed {
		status = failStyle.Render("FAIL")
	}
	fmt.Fprintf(c.out, "  %s  %-25s  %s\n", status, result.Name, result.Detail)
}

func (c *ConsoleReporter) onRunCompleted(event events.Event) {
	report, ok := event.Payload.(*Report)
	if !ok {
		return
	}
	fmt.Fprintf(c.out, "\n%s\n", report.Summary())
}
