// Package fsstat synthesizes filesystem statistics for arbitrary paths.
//
// The resolver locates the most specific mount record owning a path and
// fills a Stat record from unix.Statfs(2) when available, falling back to
// the blockdev(8)/df(1) command-line tools on hosts where the syscall is
// not usable (restricted installer environments). Numeric fields that the
// underlying source cannot supply stay nil and render as empty strings,
// never as zero.
package fsstat

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strconv"
	"strings"

	"onlinstall/log"
	"onlinstall/mounts"
	"onlinstall/util"

	"golang.org/x/sys/unix"
)

// Stat is a synthesized filesystem statistics record. Pointer fields are
// nil when the underlying source failed or the filesystem lacks the
// concept (tmpfs inode counts and the like).
type Stat struct {
	MountPoint string
	FsTypeName string

	// FsTypeCode is NOT a kernel f_type magic number. It is fabricated
	// deterministically from the type name (see TypeCode) purely so that
	// templates expecting a numeric code render something stable.
	FsTypeCode string

	BlockSizeFundamental int64
	BlockSizeOptimal     int64

	TotalBlocks      *uint64
	FreeBlocks       *uint64
	FreeBlocksUnpriv *uint64
	TotalInodes      *uint64
	FreeInodes       *uint64
}

// MountNotFoundError reports that no mount record contains the query path,
// even after the root-mount fallback pass.
type MountNotFoundError struct {
	Path string
}

func (e *MountNotFoundError) Error() string {
	return fmt.Sprintf("no containing mount point found for %s", e.Path)
}

// Resolver resolves paths to mount records and collects their statistics.
type Resolver struct {
	Reader *mounts.Reader
	Logger log.LibraryLogger

	// statfs and run are swappable for tests and for hosts where the
	// syscall path must be bypassed.
	statfs func(path string, st *unix.Statfs_t) error
	run    func(name string, args ...string) (string, error)
}

// NewResolver returns a Resolver over the live mount table.
func NewResolver() *Resolver {
	return &Resolver{
		Reader: mounts.NewReader(),
		Logger: log.NoOpLogger{},
		statfs: unix.Statfs,
		run:    util.RunCommandOutput,
	}
}

// ResolveMount returns the mount record owning path. A record matches if
// its mount point equals the path or is a path-prefix of it. The table is
// in kernel (chronological) order, so the last matching record wins: later
// mounts shadow earlier ones at the same or nested path. If nothing
// matches, a second pass restricted to records mounted exactly at "/"
// recovers cases where bind-remounts hide the apparent path relationship.
func ResolveMount(path string, table []mounts.Record) (mounts.Record, error) {
	path = filepath.Clean(path)

	var match mounts.Record
	found := false
	for _, rec := range table {
		if containsPath(rec.MountPoint, path) {
			match = rec
			found = true
		}
	}
	if found {
		return match, nil
	}

	// Root fallback pass
	for _, rec := range table {
		if rec.MountPoint == "/" {
			match = rec
			found = true
		}
	}
	if found {
		return match, nil
	}

	return mounts.Record{}, &MountNotFoundError{Path: path}
}

func containsPath(mountPoint, path string) bool {
	if mountPoint == path {
		return true
	}
	prefix := mountPoint
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(path, prefix)
}

// Collect resolves path to its owning mount and synthesizes a Stat record.
// The mount table is read fresh; nothing is cached across calls.
func (r *Resolver) Collect(path string) (*Stat, error) {
	table, err := r.Reader.ReadTable()
	if err != nil {
		return nil, err
	}

	rec, err := ResolveMount(path, table)
	if err != nil {
		return nil, err
	}

	return r.collectForMount(rec), nil
}

// collectForMount fills a Stat for an already-resolved mount record.
// Source failures degrade to absent fields, never to errors.
func (r *Resolver) collectForMount(rec mounts.Record) *Stat {
	st := &Stat{
		MountPoint: rec.MountPoint,
		FsTypeName: rec.FsType,
		FsTypeCode: TypeCode(rec.FsType),
	}

	var sfs unix.Statfs_t
	if err := r.statfs(rec.MountPoint, &sfs); err == nil {
		r.fillFromStatfs(st, &sfs)
		return st
	}

	r.fillFromTools(st, rec)
	return st
}

func (r *Resolver) fillFromStatfs(st *Stat, sfs *unix.Statfs_t) {
	fundamental := int64(sfs.Frsize)
	if fundamental <= 0 {
		fundamental = 512
	}
	optimal := int64(sfs.Bsize)
	if optimal <= 0 {
		optimal = fundamental
	}
	st.BlockSizeFundamental = fundamental
	st.BlockSizeOptimal = optimal

	st.TotalBlocks = u64p(uint64(sfs.Blocks))
	st.FreeBlocks = u64p(uint64(sfs.Bfree))
	st.FreeBlocksUnpriv = u64p(uint64(sfs.Bavail))

	// Filesystems without inode semantics report zero for both counters;
	// that must surface as absence, not as the literal zero.
	if sfs.Files != 0 || sfs.Ffree != 0 {
		st.TotalInodes = u64p(uint64(sfs.Files))
		st.FreeInodes = u64p(uint64(sfs.Ffree))
	}
}

// fillFromTools derives the statistics by shelling out: blockdev(8) for
// the device sector size, df(1) for block counts and df -i for inodes.
// Each tool's output is the wire format: last line, 3rd field total,
// 5th field free.
func (r *Resolver) fillFromTools(st *Stat, rec mounts.Record) {
	bs := int64(512)
	if strings.HasPrefix(rec.Device, "/dev/") {
		if out, err := r.run("blockdev", "--getss", rec.Device); err == nil {
			if n, perr := strconv.ParseInt(strings.TrimSpace(out), 10, 64); perr == nil && n > 0 {
				bs = n
			}
		}
	}
	st.BlockSizeFundamental = bs
	// No separate optimal-size source exists on the tool path.
	st.BlockSizeOptimal = bs

	if out, err := r.run("df", "-P", "-B", strconv.FormatInt(bs, 10), rec.MountPoint); err == nil {
		if total, free, ok := parseDfLastLine(out); ok {
			st.TotalBlocks = u64p(total)
			st.FreeBlocks = u64p(free)
			st.FreeBlocksUnpriv = u64p(free)
		}
	}

	if out, err := r.run("df", "-P", "-i", rec.MountPoint); err == nil {
		if total, free, ok := parseDfLastLine(out); ok {
			st.TotalInodes = u64p(total)
			st.FreeInodes = u64p(free)
		}
	}
}

// parseDfLastLine extracts (total, free) from the last non-empty line of
// df-style tabular output: 3rd field is the total, 5th field is free.
func parseDfLastLine(out string) (total, free uint64, ok bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return 0, 0, false
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return 0, 0, false
	}

	total, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	free, err = strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return total, free, true
}

// TypeCode fabricates a deterministic hex code for a filesystem type name:
// FNV-1a of the name truncated to 4 hex digits. It exists only for
// template compatibility with tools expecting a numeric type code and has
// no relationship to the kernel's f_type magic numbers.
func TypeCode(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}

func u64p(v uint64) *uint64 {
	return &v
}
