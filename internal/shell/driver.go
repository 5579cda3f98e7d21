// Package shell composes the console pattern-wait primitive into the
// interaction idioms of the guest shell: send a command and wait for the
// prompt to reappear, answer a destructive-operation confirmation, and drive
// the modal editor one keystroke at a time.
package shell

import (
	"errors"
	"fmt"
	"time"

	"github.com/lisovy/yolo-os/internal/console"
)

// Console is the session surface the driver needs. Satisfied by
// *console.Session; tests substitute a scripted fake.
type Console interface {
	Send(text string) error
	SendLine(text string) error
	Expect(pattern console.Pattern, timeout time.Duration) (console.MatchResult, error)
	Settle(window time.Duration)
}

// Config fixes the shell's interaction constants. Every non-fatal command is
// defined to redisplay the prompt on completion; destructive operations first
// print the confirmation marker and wait for a single keystroke.
type Config struct {
	Prompt         string
	ConfirmMarker  string
	CommandTimeout time.Duration
	SettleDelay    time.Duration
}

// Shell drives the guest's interactive shell over a console session.
type Shell struct {
	con     Console
	prompt  console.Pattern
	confirm console.Pattern
	timeout time.Duration
	settle  time.Duration
}

// New builds a command driver over the given console.
func New(con Console, cfg Config) (*Shell, error) {
	if con == nil {
		return nil, errors.New("console is required")
	}
	if cfg.Prompt == "" {
		return nil, errors.New("prompt is required")
	}
	if cfg.ConfirmMarker == "" {
		return nil, errors.New("confirmation marker is required")
	}
	if cfg.CommandTimeout <= 0 {
		return nil, errors.New("command timeout must be positive")
	}

	return &Shell{
		con:     con,
		prompt:  console.Text(cfg.Prompt),
		confirm: console.Text(cfg.ConfirmMarker),
		timeout: cfg.CommandTimeout,
		settle:  cfg.SettleDelay,
	}, nil
}

// WaitPrompt blocks until the shell prompt appears.
func (s *Shell) WaitPrompt(timeout time.Duration) error {
	if _, err := s.con.Expect(s.prompt, timeout); err != nil {
		return err
	}
	return nil
}

// Run sends a command and waits for the next prompt within the default
// per-command budget. The prompt reappearing is the completion contract.
func (s *Shell) Run(command string) error {
	return s.RunToPrompt(command, s.timeout)
}

// RunToPrompt sends a command and waits for the next prompt.
func (s *Shell) RunToPrompt(command string, timeout time.Duration) error {
	if err := s.con.SendLine(command); err != nil {
		return err
	}
	if _, err := s.con.Expect(s.prompt, timeout); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// Capture sends a command, waits for the next prompt, and returns the text
// block produced in between (including the echoed command line).
func (s *Shell) Capture(command string) (string, error) {
	if err := s.con.SendLine(command); err != nil {
		return "", err
	}
	result, err := s.con.Expect(s.prompt, s.timeout)
	if err != nil {
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return result.Before, nil
}

// ExpectThenPrompt sends a command, waits for the expected pattern, then
// waits for the next prompt. Both waits carry independent timeout budgets.
func (s *Shell) ExpectThenPrompt(command string, pattern console.Pattern, timeout time.Duration) (console.MatchResult, error) {
	if err := s.con.SendLine(command); err != nil {
		return console.MatchResult{}, err
	}
	result, err := s.con.Expect(pattern, timeout)
	if err != nil {
		return console.MatchResult{}, fmt.Errorf("%s: %w", command, err)
	}
	if _, err := s.con.Expect(s.prompt, s.timeout); err != nil {
		return console.MatchResult{}, fmt.Errorf("%s: prompt after output: %w", command, err)
	}
	return result, nil
}

// Remove issues a destructive removal and answers its confirmation: it sends
// the command, waits for the confirmation marker, sends the single affirming
// keystroke, and waits for the next prompt. Each wait has its own budget.
func (s *Shell) Remove(path string) error {
	command := "rm " + path
	if err := s.con.SendLine(command); err != nil {
		return err
	}
	if _, err := s.con.Expect(s.confirm, s.timeout); err != nil {
		return fmt.Errorf("%s: confirmation marker: %w", command, err)
	}
	if err := s.con.Send("y"); err != nil {
		return err
	}
	if _, err := s.con.Expect(s.prompt, s.timeout); err != nil {
		return fmt.Errorf("%s: prompt after confirmation: %w", command, err)
	}
	return nil
}

// OpenEditor starts the modal editor on a path and lets its redraw settle.
// The editor has no stable ready pattern to wait on.
func (s *Shell) OpenEditor(path string) error {
	if err := s.con.SendLine("vi " + path); err != nil {
		return err
	}
	s.con.Settle(s.settle)
	return nil
}

// InsertText enters insert mode, types the text, and returns to normal mode
// with a single escape byte.
func (s *Shell) InsertText(text string) error {
	if err := s.con.Send("i"); err != nil {
		return err
	}
	if err := s.con.Send(text); err != nil {
		return err
	}
	return s.con.Send("\x1b")
}

// WriteQuit saves and exits the editor, then waits for the shell prompt.
func (s *Shell) WriteQuit() error {
	if err := s.con.Send(":wq\r"); err != nil {
		return err
	}
	if _, err := s.con.Expect(s.prompt, s.timeout); err != nil {
		return fmt.Errorf("editor :wq: %w", err)
	}
	return nil
}

// ForceQuit discards unsaved edits keystroke by keystroke, then waits for the
// shell prompt to reappear.
func (s *Shell) ForceQuit() error {
	for _, key := range []string{":", "q", "!", "\r"} {
		if err := s.con.Send(key); err != nil {
			return err
		}
	}
	if _, err := s.con.Expect(s.prompt, s.timeout); err != nil {
		return fmt.Errorf("editor :q!: %w", err)
	}
	return nil
}

// Expect exposes the raw pattern-wait for scenarios that need patterns beyond
// the prompt/confirmation pair.
func (s *Shell) Expect(pattern console.Pattern, timeout time.Duration) (console.MatchResult, error) {
	return s.con.Expect(pattern, timeout)
}

// SendLine forwards a raw command line without waiting.
func (s *Shell) SendLine(command string) error {
	return s.con.SendLine(command)
}

// CommandTimeout returns the default per-command budget.
func (s *Shell) CommandTimeout() time.Duration {
	return s.timeout
}
