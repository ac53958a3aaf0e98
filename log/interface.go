package log

import (
	"fmt"
	"os"
)

// LibraryLogger is a minimal interface for library packages that need to
// output progress/diagnostics without depending on specific log file formats
// or output devices.
//
// This keeps the mount/fsstat/chroot packages reusable in different
// contexts: the installer CLI (file + console logging), tests (memory
// logging), or embedding installers (their own logger).
type LibraryLogger interface {
	// Info logs informational messages (e.g., "found mount point /mnt/onl")
	Info(format string, args ...any)

	// Debug logs diagnostic messages (may be no-op in production)
	Debug(format string, args ...any)

	// Warn logs warning messages (non-fatal issues)
	Warn(format string, args ...any)

	// Error logs error messages (failures, but execution continues)
	Error(format string, args ...any)
}

// NoOpLogger discards all log messages.
// Useful for tests, silent mode, or when logging is not needed.
type NoOpLogger struct{}

func (NoOpLogger) Info(format string, args ...any)  {}
func (NoOpLogger) Debug(format string, args ...any) {}
func (NoOpLogger) Warn(format string, args ...any)  {}
func (NoOpLogger) Error(format string, args ...any) {}

// StderrLogger prints all messages to stderr with a severity prefix.
// Stdout stays reserved for primary command output (resolved templates,
// mount listings), so diagnostics always go to the error stream.
type StderrLogger struct{}

func (StderrLogger) Info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
}

func (StderrLogger) Debug(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
}

func (StderrLogger) Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}

func (StderrLogger) Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}
