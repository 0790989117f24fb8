// Package handle implements the Handle Layer (spec §4.2): the
// bidirectional mapping between a GFID and its canonical backend path,
// the two-level hash-fanout directory layout under .glusterfs/, and the
// trash/unlink staging areas.
package handle

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
)

// maxPathLen bounds the backend path buffer the way the original engine
// bounds its ambient PATH_MAX assumption (Design Notes §9). Go's os
// package has no per-goroutine working directory, so unlike the source we
// cannot `chdir` into the brick and build a relative path on one thread
// without affecting every other goroutine; instead we simply refuse to
// build a path that would exceed the limit, surfacing it as ENAMETOOLONG.
// See DESIGN.md for the full rationale.
const maxPathLen = 4096

// Layout names the fixed set of top-level directories the handle layer
// owns beneath the brick root (§6).
const (
	GlusterfsDir = ".glusterfs"
	UnlinkDir    = "unlink"
	LandfillDir  = "landfill"
	HealthDir    = "health_check"
)

// Handle resolves GFIDs to backend paths for a single brick root.
type Handle struct {
	BrickRoot string
}

// New returns a Handle rooted at brickRoot (an absolute, existing
// directory; the caller is responsible for having opened it to pin the
// mount per §5's shared-resource policy).
func New(brickRoot string) *Handle {
	return &Handle{BrickRoot: brickRoot}
}

func join(base string, parts ...string) (string, error) {
	p := filepath.Join(append([]string{base}, parts...)...)
	if len(p) > maxPathLen {
		return "", &os.PathError{Op: "join", Path: p, Err: syscall.ENAMETOOLONG}
	}
	return p, nil
}

// GlusterfsRoot returns "<brick>/.glusterfs".
func (h *Handle) GlusterfsRoot() (string, error) {
	return join(h.BrickRoot, GlusterfsDir)
}

// Path returns the canonical handle path for g:
// "<brick>/.glusterfs/<g[0]>/<g[1]>/<g_canonical>" (§3).
func (h *Handle) Path(g gfid.GFID) (string, error) {
	a, b := g.FanoutDirs()
	return join(h.BrickRoot, GlusterfsDir, a, b, g.Canonical())
}

// FanoutDir returns the two-level intermediate directory a handle lives
// in, e.g. "<brick>/.glusterfs/af/03", without the final GFID component.
func (h *Handle) FanoutDir(g gfid.GFID) (string, error) {
	a, b := g.FanoutDirs()
	return join(h.BrickRoot, GlusterfsDir, a, b)
}

// UnlinkPath returns "<brick>/.glusterfs/unlink/<gfid>", the staging
// location for an object unlinked while still open (§4.1).
func (h *Handle) UnlinkPath(g gfid.GFID) (string, error) {
	return join(h.BrickRoot, GlusterfsDir, UnlinkDir, g.Canonical())
}

// LandfillPath returns a fresh "<brick>/.glusterfs/landfill/<rand>" path
// for rmdir-into-trash staging (§4.1). Each call mints a new random
// component so concurrent rmdirs never collide.
func (h *Handle) LandfillPath() (string, error) {
	rand := uuid.New().String()
	return join(h.BrickRoot, GlusterfsDir, LandfillDir, rand)
}

// HealthCheckDir returns "<brick>/.glusterfs/health_check".
func (h *Handle) HealthCheckDir() (string, error) {
	return join(h.BrickRoot, GlusterfsDir, HealthDir)
}

// EnsureFanoutDirs lazily creates the two-level fanout directory for g, if
// it doesn't already exist. The fanout directories are created lazily and
// never deleted (§5).
func (h *Handle) EnsureFanoutDirs(g gfid.GFID) error {
	dir, err := h.FanoutDir(g)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// EnsureLayout creates .glusterfs, .glusterfs/unlink, .glusterfs/landfill
// and .glusterfs/health_check beneath the brick root. Called once at brick
// startup.
func (h *Handle) EnsureLayout() error {
	for _, sub := range []string{"", UnlinkDir, LandfillDir, HealthDir} {
		dir, err := join(h.BrickRoot, GlusterfsDir, sub)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("handle: create layout dir %s: %w", dir, err)
		}
	}
	return nil
}

// CreateFileHandle hard-links namedPath to g's handle path - the
// non-directory case of §3's asymmetry (hard link for files, symlink for
// directories, because directories cannot have hard links).
func (h *Handle) CreateFileHandle(g gfid.GFID, namedPath string) error {
	if err := h.EnsureFanoutDirs(g); err != nil {
		return err
	}
	hp, err := h.Path(g)
	if err != nil {
		return err
	}
	if err := os.Link(namedPath, hp); err != nil {
		return fmt.Errorf("handle: link %s -> %s: %w", namedPath, hp, err)
	}
	return nil
}

// CreateDirHandle symlinks g's handle path to the directory's named path,
// expressed relative through the two-level fanout (§3: "Directory objects
// are symbolic links at the handle path pointing to the named path
// (relative, through the two-level fanout)").
func (h *Handle) CreateDirHandle(g gfid.GFID, namedPath string) error {
	if err := h.EnsureFanoutDirs(g); err != nil {
		return err
	}
	hp, err := h.Path(g)
	if err != nil {
		return err
	}
	rel, err := h.relativeFromFanout(namedPath)
	if err != nil {
		return err
	}
	if err := os.Symlink(rel, hp); err != nil {
		return fmt.Errorf("handle: symlink %s -> %s: %w", hp, rel, err)
	}
	return nil
}

// relativeFromFanout computes namedPath relative to
// "<brick>/.glusterfs/xx/yy", i.e. "../../<relative-to-brick-root>".
func (h *Handle) relativeFromFanout(namedPath string) (string, error) {
	relToBrick, err := filepath.Rel(h.BrickRoot, namedPath)
	if err != nil {
		return "", fmt.Errorf("handle: %s is not under brick root %s: %w", namedPath, h.BrickRoot, err)
	}
	return filepath.Join("..", "..", relToBrick), nil
}

// RetargetDirHandle replaces a directory handle symlink's target after a
// rename, per §4.1's rename contract ("For directories, replace the
// handle symlink's target").
func (h *Handle) RetargetDirHandle(g gfid.GFID, newNamedPath string) error {
	hp, err := h.Path(g)
	if err != nil {
		return err
	}
	rel, err := h.relativeFromFanout(newNamedPath)
	if err != nil {
		return err
	}
	tmp := hp + ".tmp-retarget"
	if err := os.Symlink(rel, tmp); err != nil {
		return fmt.Errorf("handle: create replacement symlink: %w", err)
	}
	if err := os.Rename(tmp, hp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("handle: install replacement symlink: %w", err)
	}
	return nil
}

// VerifyDirTarget checks that the directory handle symlink for g still
// resolves to expectedNamedPath, used to detect a client-visible rename
// race (§4.2).
func (h *Handle) VerifyDirTarget(g gfid.GFID, expectedNamedPath string) (bool, error) {
	hp, err := h.Path(g)
	if err != nil {
		return false, err
	}
	target, err := os.Readlink(hp)
	if err != nil {
		return false, err
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(hp), target))
	return resolved == filepath.Clean(expectedNamedPath), nil
}

// RemoveFileHandle removes the hard-link handle for g once the last
// user-visible link is gone and no descriptors remain open.
func (h *Handle) RemoveFileHandle(g gfid.GFID) error {
	hp, err := h.Path(g)
	if err != nil {
		return err
	}
	if err := os.Remove(hp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("handle: remove %s: %w", hp, err)
	}
	return nil
}

// RemoveDirHandle removes the symlink handle for a directory g.
func (h *Handle) RemoveDirHandle(g gfid.GFID) error {
	return h.RemoveFileHandle(g)
}

// MoveToUnlinkStaging renames a file's handle from the fanout directory to
// .glusterfs/unlink/<gfid>, used when the last link is removed while open
// descriptors remain (§4.1).
func (h *Handle) MoveToUnlinkStaging(g gfid.GFID) error {
	src, err := h.Path(g)
	if err != nil {
		return err
	}
	dst, err := h.UnlinkPath(g)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("handle: stage unlink %s -> %s: %w", src, dst, err)
	}
	return nil
}

// RemoveUnlinkStaging deletes the staged handle once the last descriptor
// on it closes.
func (h *Handle) RemoveUnlinkStaging(g gfid.GFID) error {
	p, err := h.UnlinkPath(g)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("handle: remove unlink staging %s: %w", p, err)
	}
	return nil
}

// MoveToLandfill renames dirPath (a directory about to be rmdir'd "into
// trash") into a fresh .glusterfs/landfill/<rand> entry and returns that
// path for the janitor to reap asynchronously (§4.1).
func (h *Handle) MoveToLandfill(dirPath string) (string, error) {
	dst, err := h.LandfillPath()
	if err != nil {
		return "", err
	}
	if err := os.Rename(dirPath, dst); err != nil {
		return "", fmt.Errorf("handle: move to landfill %s -> %s: %w", dirPath, dst, err)
	}
	return dst, nil
}

// ResolveNameless stats g's handle path directly (a "nameless lookup"):
// for a regular file the handle is itself the live inode; for a directory
// the handle is a symlink whose target is read and verified. A dangling
// directory symlink (one whose target no longer exists) is removed as
// part of resolution, matching the source's best-effort cleanup, and
// reported to the caller as not-found.
func (h *Handle) ResolveNameless(g gfid.GFID) (resolvedPath string, isDir bool, err error) {
	hp, err := h.Path(g)
	if err != nil {
		return "", false, err
	}
	lst, err := os.Lstat(hp)
	if err != nil {
		return "", false, err
	}
	if lst.Mode()&os.ModeSymlink == 0 {
		// Regular file: the handle path itself is a live inode.
		return hp, false, nil
	}
	// Directory: the handle is a symlink; follow it, dropping a dangling
	// one and reporting not-found (§4.2).
	target, err := os.Readlink(hp)
	if err != nil {
		return "", true, err
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(hp), target))
	if st, statErr := os.Stat(resolved); statErr != nil || !st.IsDir() {
		gfs.Debugf(g, "removing dangling directory handle: %s -> %s", hp, target)
		_ = os.Remove(hp)
		return "", true, os.ErrNotExist
	}
	return resolved, true, nil
}
