// Package chroot constructs runnable chroot filesystem trees for the
// installer.
//
// A bootstrap clones or mounts /dev, mirrors host /run subdirectories
// (bind-mounting only those that are persistent and live on a different
// device than /run itself), mounts the proc/sysfs/devpts pseudo
// filesystems, and copies the fixed set of host configuration artifacts
// into the new root. The bootstrapper owns the target tree exclusively
// while it runs; afterwards the tree is handed to an external
// chroot-execution step.
//
// Bootstrap is destructive: it clears any pre-existing {root}/dev and
// {root}/run first, so running it twice produces an equivalent tree.
// Every mounted filesystem is tracked so Teardown can unmount in reverse
// order, the same strategy the mount table itself implies.
package chroot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"onlinstall/config"
	"onlinstall/fsstat"
	"onlinstall/log"
	"onlinstall/mounts"
	"onlinstall/util"

	"golang.org/x/sys/unix"
)

// StepError reports which bootstrap step failed. Any step failure aborts
// the whole bootstrap; there is no partial-success continuation and no
// rollback. The caller must discard the root and retry or fail the
// install.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// MountError represents a filesystem mount or unmount error.
type MountError struct {
	Op     string // Operation: "mount", "unmount", "mkdir"
	Path   string // Target path (absolute)
	FSType string // Filesystem type (optional, for mount)
	Source string // Source path (optional, for mount)
	Err    error
}

func (e *MountError) Error() string {
	if e.FSType != "" {
		return fmt.Sprintf("%s failed for %s (type=%s, source=%s): %v",
			e.Op, e.Path, e.FSType, e.Source, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// mountState tracks a single mounted filesystem for teardown.
type mountState struct {
	target string
	fstype string
	source string
}

// Bootstrapper builds a chroot tree at Root.
type Bootstrapper struct {
	Root     string
	Cfg      *config.Config
	Logger   log.LibraryLogger
	Resolver *fsstat.Resolver

	// Host paths and probes, overridable for tests.
	HostDev         string
	HostRun         string
	ProcFilesystems string

	mounts []mountState

	tableReader *mounts.Reader
	mountFn     func(source, target, fstype string, flags uintptr, data string) error
	unmountFn   func(target string, flags int) error
	devIDFn     func(path string) (uint64, error)
}

// NewBootstrapper returns a Bootstrapper for the given root directory.
func NewBootstrapper(root string, cfg *config.Config, logger log.LibraryLogger) *Bootstrapper {
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &Bootstrapper{
		Root:            root,
		Cfg:             cfg,
		Logger:          logger,
		Resolver:        fsstat.NewResolver(),
		HostDev:         "/dev",
		HostRun:         "/run",
		ProcFilesystems: "/proc/filesystems",
		tableReader:     mounts.NewReader(),
		mountFn:         unix.Mount,
		unmountFn:       unix.Unmount,
		devIDFn:         mounts.DeviceID,
	}
}

// Bootstrap runs all construction steps in order. The first failing step
// aborts with a StepError naming it.
func (b *Bootstrapper) Bootstrap() error {
	useDevtmpfs := b.Cfg.PreferDevtmpfs && b.HostHasDevtmpfs()
	b.Logger.Info("bootstrapping chroot at %s (devtmpfs=%v)", b.Root, useDevtmpfs)

	if err := b.rebuildDev(useDevtmpfs); err != nil {
		return &StepError{Step: "rebuild-dev", Err: err}
	}
	if err := b.rebuildRun(); err != nil {
		return &StepError{Step: "rebuild-run", Err: err}
	}
	if err := b.mountPseudo(useDevtmpfs); err != nil {
		return &StepError{Step: "mount-pseudo", Err: err}
	}
	if err := b.makeTmpdir(); err != nil {
		return &StepError{Step: "tmpdir", Err: err}
	}
	if err := b.copyConfigs(); err != nil {
		return &StepError{Step: "copy-configs", Err: err}
	}

	b.Logger.Info("chroot at %s ready", b.Root)
	return nil
}

// HostHasDevtmpfs reports whether the host kernel can autopopulate device
// nodes (devtmpfs listed in /proc/filesystems).
func (b *Bootstrapper) HostHasDevtmpfs() bool {
	data, err := os.ReadFile(b.ProcFilesystems)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "nodev")) == "devtmpfs" {
			return true
		}
	}
	return false
}

// rebuildDev clears {root}/dev and, when devtmpfs is not available,
// clones the host /dev tree node-by-node.
func (b *Bootstrapper) rebuildDev(useDevtmpfs bool) error {
	target := filepath.Join(b.Root, "dev")
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}
	if useDevtmpfs {
		// devtmpfs will be mounted fresh; nothing to clone
		return nil
	}
	b.Logger.Debug("cloning host %s into %s", b.HostDev, target)
	return cloneTree(b.HostDev, target)
}

// cloneTree recursively copies a device tree: directories recreated,
// symlinks relinked, device/special nodes remade with unix.Mknod
// preserving mode and rdev, regular files copied with attributes.
func cloneTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		spath := filepath.Join(src, entry.Name())
		dpath := filepath.Join(dst, entry.Name())

		var st unix.Stat_t
		if err := unix.Lstat(spath, &st); err != nil {
			return fmt.Errorf("lstat %s: %w", spath, err)
		}

		switch st.Mode & unix.S_IFMT {
		case unix.S_IFDIR:
			if err := os.MkdirAll(dpath, os.FileMode(st.Mode&0777)); err != nil {
				return err
			}
			if err := cloneTree(spath, dpath); err != nil {
				return err
			}
		case unix.S_IFLNK:
			dest, err := os.Readlink(spath)
			if err != nil {
				return err
			}
			if err := os.Symlink(dest, dpath); err != nil {
				return err
			}
		case unix.S_IFCHR, unix.S_IFBLK, unix.S_IFIFO, unix.S_IFSOCK:
			if err := unix.Mknod(dpath, st.Mode, int(st.Rdev)); err != nil {
				return fmt.Errorf("mknod %s: %w", dpath, err)
			}
		default:
			if err := util.CopyFile(spath, dpath); err != nil {
				return fmt.Errorf("copy %s: %w", spath, err)
			}
		}
	}
	return nil
}

// rebuildRun clears {root}/run and recreates one directory per host /run
// subdirectory. Memory-backed subdirectories stay empty (the chroot's own
// memory-backed root supplies fresh ones); persistent subdirectories that
// live on a different device than /run itself are bind-mounted so their
// contents stay shared with the host.
func (b *Bootstrapper) rebuildRun() error {
	target := filepath.Join(b.Root, "run")
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(b.HostRun)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	runDev, err := b.devIDFn(b.HostRun)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		hostSub := filepath.Join(b.HostRun, entry.Name())
		chrootSub := filepath.Join(target, entry.Name())
		if err := os.MkdirAll(chrootSub, 0755); err != nil {
			return err
		}

		st, err := b.Resolver.Collect(hostSub)
		if err != nil {
			b.Logger.Warn("cannot classify %s, leaving empty: %v", hostSub, err)
			continue
		}
		if isMemoryBacked(st.FsTypeName) {
			b.Logger.Debug("%s is %s, leaving empty", hostSub, st.FsTypeName)
			continue
		}

		subDev, err := b.devIDFn(hostSub)
		if err != nil {
			return err
		}
		if subDev == runDev {
			continue
		}

		b.Logger.Debug("bind-mounting %s at %s", hostSub, chrootSub)
		if err := b.doMount(hostSub, chrootSub, "", unix.MS_BIND, ""); err != nil {
			return err
		}
	}
	return nil
}

func isMemoryBacked(fsType string) bool {
	return fsType == "tmpfs" || fsType == "ramfs"
}

// mountPseudo mounts proc and sysfs, devtmpfs when available, and devpts
// unconditionally.
func (b *Bootstrapper) mountPseudo(useDevtmpfs bool) error {
	if err := b.doMount("proc", filepath.Join(b.Root, "proc"), "proc", 0, ""); err != nil {
		return err
	}
	if err := b.doMount("sysfs", filepath.Join(b.Root, "sys"), "sysfs", 0, ""); err != nil {
		return err
	}

	if useDevtmpfs {
		if err := b.doMount("devtmpfs", filepath.Join(b.Root, "dev"), "devtmpfs", 0, ""); err != nil {
			return err
		}
	}

	// dev/pts must exist before devpts mounts over it; with devtmpfs it
	// appears on the mounted filesystem, not the underlying tree
	ptsDir := filepath.Join(b.Root, "dev", "pts")
	if err := os.MkdirAll(ptsDir, 0755); err != nil {
		return &MountError{Op: "mkdir", Path: ptsDir, Err: err}
	}
	return b.doMount("devpts", ptsDir, "devpts", 0, "")
}

// makeTmpdir mirrors a configured temp-directory path inside the chroot
// so that a later bind of $TMPDIR has a target. Created empty.
func (b *Bootstrapper) makeTmpdir() error {
	tmpdir := os.Getenv("TMPDIR")
	if tmpdir == "" {
		return nil
	}
	return os.MkdirAll(filepath.Join(b.Root, tmpdir), 0755)
}

// copyConfigs copies the fixed host configuration artifacts into the new
// root. Each copy is best-effort: a missing source is not an error.
func (b *Bootstrapper) copyConfigs() error {
	etcDir := filepath.Join(b.Root, "etc")
	if err := os.MkdirAll(etcDir, 0755); err != nil {
		return err
	}

	if util.FileExists(b.Cfg.MachineConfPath) {
		dst := filepath.Join(etcDir, "machine.conf")
		b.Logger.Debug("+ /bin/cp %s %s", b.Cfg.MachineConfPath, dst)
		if err := util.CopyFile(b.Cfg.MachineConfPath, dst); err != nil {
			return err
		}
	}

	if util.DirExists(b.Cfg.OnlConfigDir) {
		b.Logger.Debug("+ /bin/cp -R %s %s", b.Cfg.OnlConfigDir, etcDir)
		if err := util.CopyDir(b.Cfg.OnlConfigDir, etcDir); err != nil {
			return err
		}
	}

	if util.FileExists(b.Cfg.FwEnvConfigPath) {
		dst := filepath.Join(etcDir, "fw_env.config")
		b.Logger.Debug("+ /bin/cp %s %s", b.Cfg.FwEnvConfigPath, dst)
		if err := util.CopyFile(b.Cfg.FwEnvConfigPath, dst); err != nil {
			return err
		}
	}

	return nil
}

// doMount creates the target directory, performs the mount, and tracks it
// for teardown.
func (b *Bootstrapper) doMount(source, target, fstype string, flags uintptr, data string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return &MountError{Op: "mkdir", Path: target, Err: err}
	}

	if err := b.mountFn(source, target, fstype, flags, data); err != nil {
		return &MountError{
			Op:     "mount",
			Path:   target,
			FSType: fstype,
			Source: source,
			Err:    err,
		}
	}

	b.mounts = append(b.mounts, mountState{target: target, fstype: fstype, source: source})
	return nil
}

// Teardown unmounts everything mounted under Root, in reverse mount
// order, retrying busy mounts. It consults the live mount table rather
// than only the tracked slice, so it also works in a fresh process that
// never ran Bootstrap. Unmount failures after retries are logged, not
// returned; EPERM/ENOENT/EINVAL mean "not mounted" and are ignored.
func (b *Bootstrapper) Teardown() error {
	const (
		maxRetries = 10
		retryDelay = 5 * time.Second
	)

	targets, err := b.mountedUnderRoot()
	if err != nil {
		// Fall back to the tracked mounts from this process
		b.Logger.Warn("cannot read mount table, using tracked mounts: %v", err)
		for i := len(b.mounts) - 1; i >= 0; i-- {
			targets = append(targets, b.mounts[i].target)
		}
	}

	for _, target := range targets {
		var lastErr error
		unmounted := false
		for attempt := 1; attempt <= maxRetries; attempt++ {
			lastErr = b.doUnmount(target)
			if lastErr == nil {
				unmounted = true
				break
			}
			if attempt < maxRetries {
				time.Sleep(retryDelay)
			}
		}
		if !unmounted {
			b.Logger.Warn("failed to unmount %s after %d retries: %v", target, maxRetries, lastErr)
		}
	}

	b.mounts = nil
	return nil
}

// mountedUnderRoot returns live mount points at or below Root, deepest
// first so nested mounts unmount before their parents.
func (b *Bootstrapper) mountedUnderRoot() ([]string, error) {
	table, err := b.tableReader.ReadTable()
	if err != nil {
		return nil, err
	}

	root := filepath.Clean(b.Root)
	var targets []string
	for _, rec := range table {
		if rec.MountPoint == root || strings.HasPrefix(rec.MountPoint, root+"/") {
			targets = append(targets, rec.MountPoint)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		return len(targets[i]) > len(targets[j])
	})
	return targets, nil
}

func (b *Bootstrapper) doUnmount(target string) error {
	if err := b.unmountFn(target, 0); err != nil {
		switch err {
		case unix.EPERM, unix.ENOENT, unix.EINVAL:
			// Not mounted or already unmounted
			return nil
		default:
			return &MountError{Op: "unmount", Path: target, Err: err}
		}
	}
	return nil
}
