// Package blockdev enumerates block devices and their on-disk signatures
// via the external blkid(8) identification tool.
//
// blkid output is the wire format: one line per device, formatted as
//
//	DEVICE: KEY="VALUE" KEY2=VALUE2 ...
//
// Values may be quoted (embedded spaces allowed, an unescaped quote
// terminates the value) or bare (whitespace terminated). Fields absent
// from a device's attribute list are empty strings on the record, never
// nil; every field is reset before each device line so nothing leaks
// between records.
package blockdev

import (
	"errors"
	"fmt"
	"strings"

	"onlinstall/log"
	"onlinstall/util"

	"github.com/google/shlex"
)

// Record holds the normalized identification attributes of one device.
type Record struct {
	Device    string
	Label     string
	UUID      string
	PartLabel string
	PartUUID  string
}

// VisitFunc is invoked once per device. Returning ErrStopVisit ends the
// enumeration successfully; any other non-nil error aborts and is
// propagated verbatim.
type VisitFunc func(rec Record) error

// ErrStopVisit signals successful early termination of a Visit loop.
var ErrStopVisit = errors.New("stop block device iteration")

// Enumerator lists block devices via the identification tool.
type Enumerator struct {
	Logger log.LibraryLogger

	// run is swappable for tests.
	run func(name string, args ...string) (string, error)
}

// NewEnumerator returns an Enumerator backed by blkid(8).
func NewEnumerator() *Enumerator {
	return &Enumerator{
		Logger: log.NoOpLogger{},
		run:    util.RunCommandOutput,
	}
}

// Parse converts raw blkid output into records, one per device line.
// Lines without a "DEV: attrs" shape are skipped with a diagnostic.
func (e *Enumerator) Parse(output string) []Record {
	var records []Record

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		device, attrs, ok := strings.Cut(line, ":")
		if !ok || device == "" {
			e.logger().Debug("blkid: skipping unparseable line %q", line)
			continue
		}

		// Fresh record per line: previously seen attributes never carry
		// over to the next device.
		rec := Record{Device: strings.TrimSpace(device)}

		tokens, err := shlex.Split(attrs)
		if err != nil {
			e.logger().Warn("blkid %s: cannot tokenize attributes: %v", rec.Device, err)
			records = append(records, rec)
			continue
		}

		for _, tok := range tokens {
			key, value, ok := strings.Cut(tok, "=")
			if !ok {
				e.logger().Debug("blkid %s: ignoring token %q", rec.Device, tok)
				continue
			}
			// shlex already stripped quotes around the value
			switch strings.ToUpper(key) {
			case "LABEL":
				rec.Label = value
			case "UUID":
				rec.UUID = value
			case "PARTLABEL":
				rec.PartLabel = value
			case "PARTUUID":
				rec.PartUUID = value
			case "TYPE":
				// Consumed but not exposed; fsstat owns type reporting.
			default:
				e.logger().Debug("blkid %s: ignoring attribute %s", rec.Device, key)
			}
		}

		records = append(records, rec)
	}

	return records
}

// Visit runs the identification tool once and invokes fn for each device
// record. See VisitFunc for the stop/abort protocol.
func (e *Enumerator) Visit(fn VisitFunc) error {
	out, err := e.runner()("blkid")
	if err != nil {
		return fmt.Errorf("blkid: %w", err)
	}

	for _, rec := range e.Parse(out) {
		if err := fn(rec); err != nil {
			if errors.Is(err, ErrStopVisit) {
				return nil
			}
			return err
		}
	}
	return nil
}

// FindByLabel returns the first device whose filesystem label matches.
func (e *Enumerator) FindByLabel(label string) (Record, bool, error) {
	return e.findFirst(func(rec Record) bool { return rec.Label == label })
}

// FindByUUID returns the first device whose filesystem UUID matches.
func (e *Enumerator) FindByUUID(uuid string) (Record, bool, error) {
	return e.findFirst(func(rec Record) bool { return rec.UUID == uuid })
}

func (e *Enumerator) findFirst(match func(Record) bool) (Record, bool, error) {
	var found Record
	ok := false
	err := e.Visit(func(rec Record) error {
		if match(rec) {
			found = rec
			ok = true
			return ErrStopVisit
		}
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return found, ok, nil
}

func (e *Enumerator) logger() log.LibraryLogger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.NoOpLogger{}
}

func (e *Enumerator) runner() func(name string, args ...string) (string, error) {
	if e.run != nil {
		return e.run
	}
	return util.RunCommandOutput
}
