package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"onlinstall/config"
	"onlinstall/util"
)

// Compile-time interface checks
var _ LibraryLogger = (*Logger)(nil)

// Logger manages the install and debug log files for onlinstall.
//
// Warnings and errors are mirrored to the console stream so they reach
// the operator even when the logs directory lives on a volume that is
// about to be re-imaged. During an ONIE install the console is typically
// /dev/console.
type Logger struct {
	cfg         *config.Config
	installFile *os.File
	debugFile   *os.File
	console     io.Writer
	mu          sync.Mutex
}

// NewLogger creates a new logger writing under cfg.LogsPath.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := util.EnsureDir(cfg.LogsPath); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	l := &Logger{cfg: cfg, console: os.Stderr}

	var err error
	l.installFile, err = os.Create(filepath.Join(cfg.LogsPath, "install.log"))
	if err != nil {
		return nil, err
	}

	l.debugFile, err = os.Create(filepath.Join(cfg.LogsPath, "debug.log"))
	if err != nil {
		l.installFile.Close()
		return nil, err
	}

	l.writeHeaders()

	return l, nil
}

// SetConsole redirects the console mirror (default os.Stderr).
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
}

// Close closes all log files
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.installFile != nil {
		l.installFile.Close()
	}
	if l.debugFile != nil {
		l.debugFile.Close()
	}
}

// writeHeaders writes initial headers to log files
func (l *Logger) writeHeaders() {
	timestamp := time.Now().Format(time.RFC3339)

	fmt.Fprintf(l.installFile, "onlinstall log - %s\n", timestamp)
	fmt.Fprintf(l.installFile, "%s\n\n", strings.Repeat("=", 70))

	fmt.Fprintf(l.debugFile, "Debug log - %s\n\n", timestamp)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	l.installFile.WriteString(fmt.Sprintf("[%s] INFO: %s\n", timestamp, msg))
	l.installFile.Sync()
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	l.debugFile.WriteString(fmt.Sprintf("[%s] %s\n", timestamp, msg))
	l.debugFile.Sync()
}

// Warn logs a warning message (non-fatal issues)
func (l *Logger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	warnMsg := fmt.Sprintf("[%s] WARN: %s\n", timestamp, msg)

	l.installFile.WriteString(warnMsg)
	l.debugFile.WriteString(warnMsg)
	if l.console != nil {
		fmt.Fprint(l.console, warnMsg)
	}

	l.installFile.Sync()
	l.debugFile.Sync()
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	errMsg := fmt.Sprintf("[%s] ERROR: %s\n", timestamp, msg)

	l.installFile.WriteString(errMsg)
	l.debugFile.WriteString(errMsg)
	if l.console != nil {
		fmt.Fprint(l.console, errMsg)
	}

	l.installFile.Sync()
	l.debugFile.Sync()
}

// Step logs a named bootstrap/install step transition to the install log.
func (l *Logger) Step(name, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	l.installFile.WriteString(fmt.Sprintf("[%s] STEP %s: %s\n", timestamp, name, status))
	l.installFile.Sync()
}
