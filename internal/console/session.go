package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultShutdownCommand = "__exit"
	defaultShutdownTimeout = 5 * time.Second

	readChunkSize = 4096
)

var (
	// ErrTimeout reports that an expected pattern did not appear in time.
	ErrTimeout = errors.New("timed out waiting for console output")
	// ErrEOF reports that the console stream ended while waiting.
	ErrEOF = errors.New("console stream ended")
)

// Options configures an emulator session.
type Options struct {
	// QEMUBinary is the emulator executable, resolved via PATH.
	QEMUBinary string
	// DiskImage is the raw disk image attached as an IDE block device.
	DiskImage string
	// ShutdownCommand is sent to the guest shell on graceful close.
	// Defaults to "__exit".
	ShutdownCommand string
	// ShutdownTimeout bounds the wait for end-of-stream after the shutdown
	// command. The subprocess is force-killed regardless once it elapses.
	ShutdownTimeout time.Duration
	// Logger receives session lifecycle diagnostics. Optional.
	Logger *log.Logger
}

// process abstracts subprocess termination so tests can observe it.
type process interface {
	Kill() error
	Wait() error
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p execProcess) Wait() error {
	return p.cmd.Wait()
}

// Session owns one emulated machine subprocess and the duplexed byte channel
// to its serial console. A session has exactly one owner; its methods must be
// called from a single goroutine.
type Session struct {
	logger          *log.Logger
	stdin           io.WriteCloser
	proc            process
	chunks          chan string
	pending         string
	eof             bool
	halted          bool
	closed          bool
	shutdownCommand string
	shutdownTimeout time.Duration
}

// Start launches the emulated machine. The console is routed to the serial
// port and duplexed with this process over stdio; graphics are disabled,
// reboot-on-triple-fault is disabled, and an isa-debug-exit device is bound to
// port 0xf4 for deterministic exit codes (reserved, currently unused).
//
// A failure to start the subprocess is an environment error: the harness must
// report it and exit without running any scenario.
func Start(opts Options) (*Session, error) {
	if opts.QEMUBinary == "" {
		return nil, errors.New("qemu binary is required")
	}
	if opts.DiskImage == "" {
		return nil, errors.New("disk image is required")
	}

	args := []string{
		"-drive", fmt.Sprintf("file=%s,format=raw,if=ide", opts.DiskImage),
		"-serial", "stdio",
		"-display", "none",
		"-no-reboot",
		"-device", "isa-debug-exit,iobase=0xf4,iosize=0x04",
	}

	cmd := exec.Command(opts.QEMUBinary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open console input: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open console output: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.QEMUBinary, err)
	}

	session := newSession(stdin, stdout, execProcess{cmd: cmd}, opts)
	if session.logger != nil {
		session.logger.With("binary", opts.QEMUBinary, "disk", opts.DiskImage, "pid", cmd.Process.Pid).
			Info("emulator started")
	}
	return session, nil
}

// newSession wires a session over explicit streams and process handle.
// Tests construct sessions this way with in-memory pipes and fake processes.
func newSession(stdin io.WriteCloser, stdout io.Reader, proc process, opts Options) *Session {
	session := &Session{
		logger:          opts.Logger,
		stdin:           stdin,
		proc:            proc,
		chunks:          make(chan string, 16),
		shutdownCommand: opts.ShutdownCommand,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if session.shutdownCommand == "" {
		session.shutdownCommand = defaultShutdownCommand
	}
	if session.shutdownTimeout <= 0 {
		session.shutdownTimeout = defaultShutdownTimeout
	}

	go session.pump(stdout)
	return session
}

// pump reads console bytes into decoded chunks until end-of-stream. Malformed
// byte sequences decode as U+FFFD and never abort the wait; guest output is
// ASCII in practice, so runes split across read boundaries are a non-issue.
func (s *Session) pump(stdout io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			s.chunks <- string(bytes.ToValidUTF8(buf[:n], []byte("�")))
		}
		if err != nil {
			close(s.chunks)
			return
		}
	}
}

// Send writes raw text to the console without a line terminator. Used for
// individual keystrokes: editor commands, escape bytes, confirmation letters.
func (s *Session) Send(text string) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if s.closed {
		return errors.New("session is closed")
	}
	if _, err := io.WriteString(s.stdin, text); err != nil {
		return fmt.Errorf("write console input: %w", err)
	}
	return nil
}

// SendLine writes a shell command followed by a line terminator.
func (s *Session) SendLine(text string) error {
	return s.Send(text + "\n")
}

// Expect consumes buffered and newly arriving console text until the pattern
// is found or the timeout elapses. Text consumed by a successful match is
// never visible to a later Expect. This is the harness's sole synchronization
// primitive; it replaces fixed sleeps with behavior-driven waiting.
func (s *Session) Expect(pattern Pattern, timeout time.Duration) (MatchResult, error) {
	if s == nil {
		return MatchResult{}, errors.New("session is nil")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if result, rest, ok := Match(pattern, s.pending); ok {
			s.pending = rest
			return result, nil
		}

		if s.eof {
			return MatchResult{}, fmt.Errorf("expect %s: %w", pattern, ErrEOF)
		}

		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				continue
			}
			s.pending += chunk
		case <-timer.C:
			return MatchResult{}, fmt.Errorf("expect %s after %v: %w", pattern, timeout, ErrTimeout)
		}
	}
}

// Settle buffers whatever the console produces during the window without
// matching anything. Used where the guest redraws asynchronously (the modal
// editor) and there is no stable pattern to wait on. Buffered text stays
// visible to the next Expect.
func (s *Session) Settle(window time.Duration) {
	if s == nil || s.eof {
		return
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				return
			}
			s.pending += chunk
		case <-timer.C:
			return
		}
	}
}

// MarkHalted records that the machine under test has halted. Close then skips
// the graceful shutdown command, since no shell is listening anymore.
func (s *Session) MarkHalted() {
	if s == nil {
		return
	}
	s.halted = true
}

// Halted reports whether the machine was marked halted.
func (s *Session) Halted() bool {
	return s != nil && s.halted
}

// Close tears the session down: unless the machine already halted, it sends
// the graceful shutdown command and waits briefly for end-of-stream, then
// force-terminates the subprocess unconditionally. Safe to call more than
// once; the emulator is never left running after Close returns.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}

	if !s.halted {
		if err := s.SendLine(s.shutdownCommand); err == nil {
			s.drainUntilEOF(s.shutdownTimeout)
		}
	}
	s.closed = true

	_ = s.stdin.Close()
	killErr := s.proc.Kill()
	_ = s.proc.Wait()

	if s.logger != nil {
		s.logger.With("halted", s.halted).Info("emulator session closed")
	}
	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return fmt.Errorf("kill emulator: %w", killErr)
	}
	return nil
}

// drainUntilEOF discards console output until end-of-stream or the deadline.
func (s *Session) drainUntilEOF(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-s.chunks:
			if !ok {
				s.eof = true
				return
			}
		case <-timer.C:
			return
		}
	}
}
