package fsstat

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"onlinstall/mounts"

	"golang.org/x/sys/unix"
)

func testTable() []mounts.Record {
	return []mounts.Record{
		{Device: "/dev/sda2", MountPoint: "/", FsType: "ext4", Options: "rw"},
		{Device: "/dev/sda1", MountPoint: "/boot", FsType: "ext2", Options: "rw"},
		{Device: "/dev/sdb1", MountPoint: "/mnt/onl", FsType: "ext4", Options: "rw"},
		{Device: "/dev/sdb2", MountPoint: "/mnt/onl/data", FsType: "xfs", Options: "rw"},
		{Device: "tmpfs", MountPoint: "/run", FsType: "tmpfs", Options: "rw"},
	}
}

func TestResolveMount_MostSpecificWins(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"root", "/etc/passwd", "/"},
		{"exact match", "/boot", "/boot"},
		{"under boot", "/boot/grub/grub.cfg", "/boot"},
		{"nested mount shadows parent", "/mnt/onl/data/x/y", "/mnt/onl/data"},
		{"parent not shadowed outside nest", "/mnt/onl/swi", "/mnt/onl"},
		{"deeply nested", "/mnt/onl/data/a/b/c/d/e", "/mnt/onl/data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ResolveMount(tt.path, testTable())
			if err != nil {
				t.Fatalf("ResolveMount(%q) failed: %v", tt.path, err)
			}
			if rec.MountPoint != tt.want {
				t.Errorf("ResolveMount(%q) = %q, want %q", tt.path, rec.MountPoint, tt.want)
			}
		})
	}
}

func TestResolveMount_LastMatchWins(t *testing.T) {
	// Two records at the same mount point: the later (newer) mount shadows
	// the earlier one.
	table := []mounts.Record{
		{Device: "/dev/sda2", MountPoint: "/", FsType: "ext4"},
		{Device: "/dev/sdc1", MountPoint: "/mnt/onl", FsType: "ext2"},
		{Device: "/dev/sdd1", MountPoint: "/mnt/onl", FsType: "btrfs"},
	}

	rec, err := ResolveMount("/mnt/onl/file", table)
	if err != nil {
		t.Fatalf("ResolveMount failed: %v", err)
	}
	if rec.Device != "/dev/sdd1" || rec.FsType != "btrfs" {
		t.Errorf("got %s (%s), want /dev/sdd1 (btrfs)", rec.Device, rec.FsType)
	}
}

func TestResolveMount_RootFallback(t *testing.T) {
	// A path that no mount point prefixes falls back to the record
	// mounted exactly at "/".
	rec, err := ResolveMount("relative/path", testTable())
	if err != nil {
		t.Fatalf("expected root fallback, got %v", err)
	}
	if rec.MountPoint != "/" {
		t.Errorf("fallback resolved to %q, want /", rec.MountPoint)
	}
}

func TestResolveMount_NotFound(t *testing.T) {
	table := []mounts.Record{
		{Device: "/dev/sda1", MountPoint: "/boot", FsType: "ext2"},
	}

	_, err := ResolveMount("/home/admin", table)
	var nf *MountNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *MountNotFoundError", err)
	}
	if nf.Path != "/home/admin" {
		t.Errorf("error path = %q, want /home/admin", nf.Path)
	}
}

func writeMountTable(t *testing.T, records []mounts.Record) *mounts.Reader {
	t.Helper()
	var sb strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&sb, "%s %s %s %s %d %d\n",
			rec.Device, rec.MountPoint, rec.FsType, rec.Options, rec.DumpFreq, rec.PassNo)
	}
	path := filepath.Join(t.TempDir(), "mounts")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	return &mounts.Reader{Path: path}
}

func newTestResolver(t *testing.T, statfs func(string, *unix.Statfs_t) error,
	run func(string, ...string) (string, error)) *Resolver {
	t.Helper()
	r := NewResolver()
	r.Reader = writeMountTable(t, testTable())
	if statfs != nil {
		r.statfs = statfs
	}
	if run != nil {
		r.run = run
	}
	return r
}

func TestCollect_StatfsPath(t *testing.T) {
	statfs := func(path string, st *unix.Statfs_t) error {
		if path != "/mnt/onl" {
			t.Errorf("statfs path = %q, want /mnt/onl", path)
		}
		st.Bsize = 4096
		st.Frsize = 4096
		st.Blocks = 1000
		st.Bfree = 600
		st.Bavail = 550
		st.Files = 2000
		st.Ffree = 1500
		return nil
	}
	r := newTestResolver(t, statfs, nil)

	st, err := r.Collect("/mnt/onl/swi/onl.swi")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if st.MountPoint != "/mnt/onl" {
		t.Errorf("MountPoint = %q, want /mnt/onl", st.MountPoint)
	}
	if st.FsTypeName != "ext4" {
		t.Errorf("FsTypeName = %q, want ext4", st.FsTypeName)
	}
	if st.BlockSizeFundamental != 4096 || st.BlockSizeOptimal != 4096 {
		t.Errorf("block sizes = %d/%d, want 4096/4096",
			st.BlockSizeFundamental, st.BlockSizeOptimal)
	}
	if st.TotalBlocks == nil || *st.TotalBlocks != 1000 {
		t.Errorf("TotalBlocks = %v, want 1000", st.TotalBlocks)
	}
	if st.FreeBlocks == nil || *st.FreeBlocks != 600 {
		t.Errorf("FreeBlocks = %v, want 600", st.FreeBlocks)
	}
	if st.FreeBlocksUnpriv == nil || *st.FreeBlocksUnpriv != 550 {
		t.Errorf("FreeBlocksUnpriv = %v, want 550", st.FreeBlocksUnpriv)
	}
	if st.TotalInodes == nil || *st.TotalInodes != 2000 {
		t.Errorf("TotalInodes = %v, want 2000", st.TotalInodes)
	}
	if st.FreeInodes == nil || *st.FreeInodes != 1500 {
		t.Errorf("FreeInodes = %v, want 1500", st.FreeInodes)
	}
}

func TestCollect_NoInodeSemantics(t *testing.T) {
	statfs := func(path string, st *unix.Statfs_t) error {
		st.Bsize = 4096
		st.Frsize = 4096
		st.Blocks = 100
		st.Bfree = 100
		st.Bavail = 100
		// Files/Ffree zero: filesystem lacks inode counts
		return nil
	}
	r := newTestResolver(t, statfs, nil)

	st, err := r.Collect("/run/onl")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if st.TotalInodes != nil || st.FreeInodes != nil {
		t.Errorf("inode fields should be absent, got %v/%v", st.TotalInodes, st.FreeInodes)
	}
}

func TestCollect_ToolFallback(t *testing.T) {
	statfsErr := func(path string, st *unix.Statfs_t) error {
		return unix.ENOSYS
	}
	run := func(name string, args ...string) (string, error) {
		switch name {
		case "blockdev":
			if args[0] != "--getss" || args[1] != "/dev/sdb2" {
				t.Errorf("blockdev args = %v", args)
			}
			return "4096\n", nil
		case "df":
			if args[1] == "-i" {
				return "Filesystem Inodes IUsed IFree IUse%\n/dev/sdb2 x 8000 y 7500\n", nil
			}
			return "Filesystem Blocks Used Avail Use%\n/dev/sdb2 x 5000 y 3000\n", nil
		}
		return "", fmt.Errorf("unexpected command %s", name)
	}
	r := newTestResolver(t, statfsErr, run)

	st, err := r.Collect("/mnt/onl/data/logs")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if st.BlockSizeFundamental != 4096 {
		t.Errorf("BlockSizeFundamental = %d, want 4096", st.BlockSizeFundamental)
	}
	if st.BlockSizeOptimal != 4096 {
		t.Errorf("BlockSizeOptimal = %d, want fundamental (4096)", st.BlockSizeOptimal)
	}
	if st.TotalBlocks == nil || *st.TotalBlocks != 5000 {
		t.Errorf("TotalBlocks = %v, want 5000", st.TotalBlocks)
	}
	if st.FreeBlocks == nil || *st.FreeBlocks != 3000 {
		t.Errorf("FreeBlocks = %v, want 3000", st.FreeBlocks)
	}
	if st.TotalInodes == nil || *st.TotalInodes != 8000 {
		t.Errorf("TotalInodes = %v, want 8000", st.TotalInodes)
	}
	if st.FreeInodes == nil || *st.FreeInodes != 7500 {
		t.Errorf("FreeInodes = %v, want 7500", st.FreeInodes)
	}
}

func TestCollect_ToolsUnavailable(t *testing.T) {
	statfsErr := func(path string, st *unix.Statfs_t) error {
		return unix.ENOSYS
	}
	run := func(name string, args ...string) (string, error) {
		return "", fmt.Errorf("%s: not found", name)
	}
	r := newTestResolver(t, statfsErr, run)

	st, err := r.Collect("/boot/grub")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	// Missing tools degrade to defaults and absence, never errors
	if st.BlockSizeFundamental != 512 {
		t.Errorf("BlockSizeFundamental = %d, want 512 default", st.BlockSizeFundamental)
	}
	if st.TotalBlocks != nil || st.FreeBlocks != nil || st.FreeBlocksUnpriv != nil {
		t.Error("block counts should be absent when df is unavailable")
	}
	if st.TotalInodes != nil || st.FreeInodes != nil {
		t.Error("inode counts should be absent when df is unavailable")
	}
}

func TestParseDfLastLine(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTotal uint64
		wantFree  uint64
		wantOK    bool
	}{
		{
			"well formed",
			"Header line\n/dev/sda1 a 100 b 40\n",
			100, 40, true,
		},
		{
			"multiple rows uses last",
			"Header\n/dev/sda1 a 100 b 40\n/dev/sda2 a 200 b 90\n",
			200, 90, true,
		},
		{"header only", "Filesystem Blocks Used Avail Use%\n", 0, 0, false},
		{"empty", "", 0, 0, false},
		{"short row", "Header\n/dev/sda1 100 40\n", 0, 0, false},
		{"unparseable total", "Header\n/dev/sda1 a x b 40\n", 0, 0, false},
		{"unparseable free", "Header\n/dev/sda1 a 100 b x%\n", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, free, ok := parseDfLastLine(tt.input)
			if ok != tt.wantOK || total != tt.wantTotal || free != tt.wantFree {
				t.Errorf("parseDfLastLine(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.input, total, free, ok, tt.wantTotal, tt.wantFree, tt.wantOK)
			}
		})
	}
}

func TestTypeCode_FabricatedButDeterministic(t *testing.T) {
	a := TypeCode("ext4")
	b := TypeCode("ext4")
	if a != b {
		t.Errorf("TypeCode not deterministic: %q vs %q", a, b)
	}
	if len(a) != 4 {
		t.Errorf("TypeCode length = %d, want 4 hex digits", len(a))
	}
	if TypeCode("tmpfs") == a {
		t.Error("distinct type names should (here) yield distinct codes")
	}
}

func TestRender(t *testing.T) {
	blocks := uint64(1000)
	free := uint64(400)
	st := &Stat{
		MountPoint:           "/mnt/onl",
		FsTypeName:           "ext4",
		FsTypeCode:           "ab12",
		BlockSizeFundamental: 512,
		BlockSizeOptimal:     4096,
		TotalBlocks:          &blocks,
		FreeBlocks:           &free,
		// FreeBlocksUnpriv, TotalInodes, FreeInodes absent
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"type name", "%T", "ext4"},
		{"hex code", "%t", "ab12"},
		{"legacy n is empty", "[%n]", "[]"},
		{"block sizes", "%S/%s", "512/4096"},
		{"counts", "%b %f", "1000 400"},
		{"absent renders empty not zero", "a=%a c=%c d=%d", "a= c= d="},
		{"all occurrences", "%T-%T", "ext4-ext4"},
		{"no placeholders", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(st, tt.template); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestReport_WritesDiagnosticAndResult(t *testing.T) {
	statfs := func(path string, st *unix.Statfs_t) error {
		st.Bsize = 4096
		st.Frsize = 4096
		st.Blocks = 10
		st.Bfree = 5
		st.Bavail = 5
		return nil
	}
	r := newTestResolver(t, statfs, nil)

	var out, errOut bytes.Buffer
	if err := r.Report("/boot/grub/grub.cfg", "%T", &out, &errOut); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if got := out.String(); got != "ext2\n" {
		t.Errorf("stdout = %q, want %q", got, "ext2\n")
	}
	if !strings.Contains(errOut.String(), "/boot") {
		t.Errorf("diagnostic %q should name the mount point", errOut.String())
	}
}

func TestReport_DelegatesResidualEscapes(t *testing.T) {
	statfs := func(path string, st *unix.Statfs_t) error {
		st.Bsize = 4096
		st.Frsize = 4096
		st.Blocks = 10
		st.Bfree = 5
		st.Bavail = 5
		return nil
	}
	var statArgs []string
	run := func(name string, args ...string) (string, error) {
		if name == "stat" {
			statArgs = args
			return "delegated\n", nil
		}
		return "", fmt.Errorf("unexpected command %s", name)
	}
	r := newTestResolver(t, statfs, run)

	var out, errOut bytes.Buffer
	if err := r.Report("/boot", "%T %m", &out, &errOut); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if out.String() != "delegated\n" {
		t.Errorf("stdout = %q, want delegated output", out.String())
	}
	if len(statArgs) != 3 || statArgs[0] != "-c" || statArgs[1] != "ext2 %m" || statArgs[2] != "/boot" {
		t.Errorf("stat args = %v, want [-c %q /boot]", statArgs, "ext2 %m")
	}
}

func TestReport_NotFound(t *testing.T) {
	r := NewResolver()
	r.Reader = writeMountTable(t, []mounts.Record{
		{Device: "/dev/sda1", MountPoint: "/boot", FsType: "ext2", Options: "rw"},
	})

	var out, errOut bytes.Buffer
	err := r.Report("/home/nowhere", "%T", &out, &errOut)

	var nf *MountNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Report error = %v, want *MountNotFoundError", err)
	}
	if out.Len() != 0 {
		t.Errorf("stdout should be empty on failure, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "no mount point") {
		t.Errorf("diagnostic = %q, want lookup failure message", errOut.String())
	}
}
