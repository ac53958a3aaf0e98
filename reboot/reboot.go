// Package reboot implements the post-install reboot confirmation prompt
// and the reboot itself.
//
// The prompt counts down on the console: silence or Enter proceeds with
// the reboot, an interrupt signal or closed input cancels it. The three
// cancellation sources (input, signal, timer) are arbitrated in a single
// select loop so the outcome is always a well-defined Outcome value, and
// a pending interrupt wins over a timer that expired in the same instant.
package reboot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onlinstall/config"
	"onlinstall/log"
	"onlinstall/util"

	"golang.org/x/sys/unix"
)

// Outcome is the result of a confirmation prompt.
type Outcome int

const (
	// Confirmed means the operator pressed Enter to reboot immediately.
	Confirmed Outcome = iota
	// TimedOut means the countdown expired with no input; proceed.
	TimedOut
	// Declined means input closed (EOF) without confirmation.
	Declined
	// Interrupted means a signal or context cancellation stopped the prompt.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed out"
	case Declined:
		return "declined"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ShouldReboot reports whether an outcome proceeds with the reboot.
func ShouldReboot(o Outcome) bool {
	return o == Confirmed || o == TimedOut
}

// Prompt is an interactive reboot confirmation.
type Prompt struct {
	Timeout time.Duration
	In      io.Reader
	Out     io.Writer
	Logger  log.LibraryLogger

	// Signals delivers interrupt signals to the prompt loop. NewPrompt
	// subscribes it to SIGINT and SIGTERM.
	Signals <-chan os.Signal
}

// NewPrompt returns a Prompt on the process console with the configured
// countdown, subscribed to interrupt signals.
func NewPrompt(cfg *config.Config) *Prompt {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	return &Prompt{
		Timeout: time.Duration(cfg.RebootTimeout) * time.Second,
		In:      os.Stdin,
		Out:     os.Stderr,
		Logger:  log.NoOpLogger{},
		Signals: sigs,
	}
}

type lineResult struct {
	err error
}

// Confirm runs the countdown and returns the arbitrated outcome. It never
// blocks past the timeout except for a pending interrupt, which takes
// priority over an expired timer.
func (p *Prompt) Confirm(ctx context.Context) Outcome {
	secs := int(p.Timeout / time.Second)
	fmt.Fprintf(p.Out, "The system will reboot in %d seconds.\n", secs)
	fmt.Fprintf(p.Out, "Press Enter to reboot now, or interrupt to cancel: ")

	// The reader goroutine may outlive the prompt on timeout; the process
	// is about to reboot, so the leak is bounded by process lifetime.
	lines := make(chan lineResult, 1)
	go func() {
		reader := bufio.NewReader(p.In)
		_, err := reader.ReadString('\n')
		lines <- lineResult{err: err}
	}()

	timer := time.NewTimer(p.Timeout)
	defer timer.Stop()

	outcome := p.wait(ctx, lines, timer)
	if p.Logger != nil {
		p.Logger.Info("reboot prompt: %s", outcome)
	}
	return outcome
}

func (p *Prompt) wait(ctx context.Context, lines <-chan lineResult, timer *time.Timer) Outcome {
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		return Interrupted
	case <-p.Signals:
		fmt.Fprintln(p.Out)
		return Interrupted
	case res := <-lines:
		if res.err != nil {
			return Declined
		}
		return Confirmed
	case <-timer.C:
		select {
		case <-p.Signals:
			fmt.Fprintln(p.Out)
			return Interrupted
		default:
		}
		fmt.Fprintln(p.Out)
		return TimedOut
	}
}

// Executor performs the actual reboot.
type Executor struct {
	Logger log.LibraryLogger
	Out    io.Writer

	// syncFn, rebootFn and run are swappable for tests.
	syncFn   func()
	rebootFn func() error
	run      func(name string, args ...string) error
}

// NewExecutor returns an Executor using the reboot(2) syscall with a
// reboot(8) fallback.
func NewExecutor(logger log.LibraryLogger) *Executor {
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &Executor{
		Logger: logger,
		Out:    os.Stderr,
		syncFn: unix.Sync,
		rebootFn: func() error {
			return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
		},
		run: util.RunCommandQuiet,
	}
}

// Execute acts on a prompt outcome: rebooting for Confirmed and TimedOut,
// reporting cancellation otherwise. Filesystems are synced before the
// reboot syscall; if the syscall fails (insufficient capability inside a
// container, typically) the reboot(8) command is tried instead.
func (e *Executor) Execute(outcome Outcome) error {
	if !ShouldReboot(outcome) {
		fmt.Fprintf(e.Out, "Reboot cancelled (%s).\n", outcome)
		e.Logger.Info("reboot cancelled: %s", outcome)
		return nil
	}

	fmt.Fprintln(e.Out, "Rebooting.")
	e.Logger.Info("rebooting (%s)", outcome)
	e.syncFn()

	if err := e.rebootFn(); err != nil {
		e.Logger.Warn("reboot syscall failed, trying reboot(8): %v", err)
		if rerr := e.run("reboot"); rerr != nil {
			return fmt.Errorf("reboot failed: %w", rerr)
		}
	}
	return nil
}
