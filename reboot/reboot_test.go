package reboot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"onlinstall/log"
)

func newTestPrompt(in io.Reader, timeout time.Duration) (*Prompt, chan os.Signal) {
	sigs := make(chan os.Signal, 1)
	return &Prompt{
		Timeout: timeout,
		In:      in,
		Out:     &bytes.Buffer{},
		Logger:  log.NoOpLogger{},
		Signals: sigs,
	}, sigs
}

func TestConfirm_EnterConfirms(t *testing.T) {
	p, _ := newTestPrompt(strings.NewReader("\n"), 5*time.Second)

	if got := p.Confirm(context.Background()); got != Confirmed {
		t.Errorf("Confirm() = %v, want Confirmed", got)
	}
}

func TestConfirm_SilenceTimesOut(t *testing.T) {
	// Pipe with no writer: the read blocks until the timer fires.
	r, w := io.Pipe()
	defer w.Close()
	p, _ := newTestPrompt(r, 50*time.Millisecond)

	if got := p.Confirm(context.Background()); got != TimedOut {
		t.Errorf("Confirm() = %v, want TimedOut", got)
	}
}

func TestConfirm_EOFDeclines(t *testing.T) {
	p, _ := newTestPrompt(strings.NewReader(""), 5*time.Second)

	if got := p.Confirm(context.Background()); got != Declined {
		t.Errorf("Confirm() = %v, want Declined", got)
	}
}

func TestConfirm_SignalInterrupts(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p, sigs := newTestPrompt(r, 5*time.Second)
	sigs <- syscall.SIGINT

	if got := p.Confirm(context.Background()); got != Interrupted {
		t.Errorf("Confirm() = %v, want Interrupted", got)
	}
}

func TestConfirm_PendingSignalBeatsExpiredTimer(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p, sigs := newTestPrompt(r, time.Nanosecond)

	// The signal is already queued when the (immediately expired) timer
	// is drained.
	sigs <- syscall.SIGINT
	time.Sleep(10 * time.Millisecond)

	if got := p.Confirm(context.Background()); got != Interrupted {
		t.Errorf("Confirm() = %v, want Interrupted over TimedOut", got)
	}
}

func TestConfirm_ContextCancellation(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p, _ := newTestPrompt(r, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := p.Confirm(ctx); got != Interrupted {
		t.Errorf("Confirm() = %v, want Interrupted", got)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{Confirmed, "confirmed"},
		{TimedOut, "timed out"},
		{Declined, "declined"},
		{Interrupted, "interrupted"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.o), got, tt.want)
		}
	}
}

func TestShouldReboot(t *testing.T) {
	if !ShouldReboot(Confirmed) || !ShouldReboot(TimedOut) {
		t.Error("Confirmed and TimedOut must proceed")
	}
	if ShouldReboot(Declined) || ShouldReboot(Interrupted) {
		t.Error("Declined and Interrupted must not proceed")
	}
}

func newTestExecutor() (*Executor, *bool, *bool, *bool) {
	synced := false
	rebooted := false
	fellBack := false
	e := &Executor{
		Logger: log.NoOpLogger{},
		Out:    &bytes.Buffer{},
		syncFn: func() { synced = true },
		rebootFn: func() error {
			rebooted = true
			return nil
		},
		run: func(name string, args ...string) error {
			fellBack = true
			return nil
		},
	}
	return e, &synced, &rebooted, &fellBack
}

func TestExecute_ProceedsOnTimeout(t *testing.T) {
	e, synced, rebooted, _ := newTestExecutor()

	if err := e.Execute(TimedOut); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !*synced {
		t.Error("filesystems must be synced before reboot")
	}
	if !*rebooted {
		t.Error("reboot syscall should have been invoked")
	}
}

func TestExecute_CancelledOutcomeDoesNotReboot(t *testing.T) {
	for _, outcome := range []Outcome{Declined, Interrupted} {
		e, _, rebooted, _ := newTestExecutor()
		if err := e.Execute(outcome); err != nil {
			t.Fatalf("Execute(%v) failed: %v", outcome, err)
		}
		if *rebooted {
			t.Errorf("Execute(%v) must not reboot", outcome)
		}
	}
}

func TestExecute_SyscallFailureFallsBackToCommand(t *testing.T) {
	e, _, _, fellBack := newTestExecutor()
	e.rebootFn = func() error { return errors.New("operation not permitted") }

	if err := e.Execute(Confirmed); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !*fellBack {
		t.Error("reboot(8) fallback should have been tried")
	}
}

func TestExecute_BothPathsFailing(t *testing.T) {
	e, _, _, _ := newTestExecutor()
	e.rebootFn = func() error { return errors.New("EPERM") }
	e.run = func(name string, args ...string) error {
		return errors.New("reboot: not found")
	}

	if err := e.Execute(Confirmed); err == nil {
		t.Error("expected error when both reboot paths fail")
	}
}
