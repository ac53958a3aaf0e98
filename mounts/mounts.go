// Package mounts reads the live kernel mount table.
//
// The table is re-read on every call: each read is a point-in-time
// snapshot, never cached, so callers always see mounts made since the
// previous query. Record order is the kernel-reported mount order
// (chronological), which matters to consumers that rely on "last match
// wins" shadowing semantics when locating the mount owning a path.
package mounts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"onlinstall/log"

	"golang.org/x/sys/unix"
)

// DefaultTablePath is the mount table consumed in production.
const DefaultTablePath = "/proc/mounts"

// Record is a single live mount table entry.
type Record struct {
	Device     string
	MountPoint string
	FsType     string
	Options    string
	DumpFreq   int
	PassNo     int
}

// VisitFunc is invoked once per mount record. Returning ErrStopVisit ends
// the iteration successfully; any other non-nil error aborts the iteration
// and is propagated verbatim to the Visit caller.
type VisitFunc func(rec Record) error

// ErrStopVisit signals successful early termination of a Visit loop.
var ErrStopVisit = errors.New("stop mount table iteration")

// TableError indicates the mount table could not be read. An unreadable
// table is an explicit error, never silently treated as an empty table.
type TableError struct {
	Path string
	Err  error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("mount table %s unreadable: %v", e.Path, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// Reader enumerates mount records from a table file.
type Reader struct {
	// Path is the mount table location; defaults to DefaultTablePath.
	Path string

	// Logger receives diagnostics for skipped malformed lines.
	Logger log.LibraryLogger
}

// NewReader returns a Reader over the live mount table.
func NewReader() *Reader {
	return &Reader{Path: DefaultTablePath, Logger: log.NoOpLogger{}}
}

// ReadTable reads the mount table once and returns all records in kernel
// order. Malformed lines (fewer than 6 fields) are skipped with a debug
// diagnostic. An unreadable table yields a TableError.
func (r *Reader) ReadTable() ([]Record, error) {
	path := r.Path
	if path == "" {
		path = DefaultTablePath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &TableError{Path: path, Err: err}
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 6 {
			r.logger().Debug("skipping malformed mount table line: %q", line)
			continue
		}

		dumpFreq, _ := strconv.Atoi(fields[4])
		passNo, _ := strconv.Atoi(fields[5])

		records = append(records, Record{
			Device:     unescape(fields[0]),
			MountPoint: unescape(fields[1]),
			FsType:     fields[2],
			Options:    fields[3],
			DumpFreq:   dumpFreq,
			PassNo:     passNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &TableError{Path: path, Err: err}
	}

	return records, nil
}

// Visit reads a fresh snapshot of the mount table and invokes fn for each
// record in order. See VisitFunc for the stop/abort protocol.
func (r *Reader) Visit(fn VisitFunc) error {
	records, err := r.ReadTable()
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := fn(rec); err != nil {
			if errors.Is(err, ErrStopVisit) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *Reader) logger() log.LibraryLogger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.NoOpLogger{}
}

// DeviceID returns the st_dev of the filesystem holding path. Two paths
// on the same filesystem share a device id; a mount boundary changes it.
func DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return uint64(st.Dev), nil
}

// unescape decodes the \ooo octal escapes the kernel emits for spaces,
// tabs, newlines and backslashes in device and mount point fields.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			n, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
			if err == nil {
				sb.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
