// Package posix implements the Storage Engine (spec §4.1): the
// GFID-addressed object store over a local directory tree that backs
// every filesystem operation a brick serves.
package posix

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pkg/xattr"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/handle"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
)

// Brick is one brick's storage engine instance: a root directory turned
// into a GFID-addressed object store, plus the inode/fd context tables
// and the health/reserve flags the background workers (§4.5) flip.
type Brick struct {
	Root    string
	Opt     Options
	Handle  *handle.Handle
	Inodes  *fsctx.InodeTable
	FDs     *fsctx.FDTable
	rootDir *os.File // held open for the process lifetime (§5)

	degraded atomic.Bool // set by a failed health probe; refused until next success
	diskFull atomic.Bool // set by the disk-reserve monitor
}

// Open opens a new Brick rooted at root, enforcing the volume-id
// invariant (§3 invariant 5, §6) and preparing the .glusterfs layout.
// onFDClose, if non-nil, is the janitor hook that actually closes
// released descriptors (§4.5); pass nil in tests that want synchronous
// closes.
func Open(root string, opt Options, onFDClose func(*fsctx.FD)) (*Brick, error) {
	h := handle.New(root)
	if err := h.EnsureLayout(); err != nil {
		return nil, err
	}

	rf, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("posix: open brick root %s: %w", root, err)
	}

	b := &Brick{
		Root:    root,
		Opt:     opt,
		Handle:  h,
		rootDir: rf,
	}
	b.Inodes = fsctx.NewInodeTable(b.onInodeGone)
	b.FDs = fsctx.NewFDTable(onFDClose)

	if err := b.checkVolumeID(); err != nil {
		_ = rf.Close()
		return nil, err
	}
	if err := b.ensureRootGFID(); err != nil {
		_ = rf.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the pinned root directory handle.
func (b *Brick) Close() error {
	return b.rootDir.Close()
}

// RootFile returns the brick root's pinned directory descriptor, used by
// the batched fsyncer to issue syncfs(2) against the brick's filesystem
// (§4.5).
func (b *Brick) RootFile() *os.File {
	return b.rootDir
}

// checkVolumeID enforces §3 invariant 5 and §6's "Required extended-
// attribute support": the brick root must carry
// trusted.glusterfs.volume-id equal to the configured value, unless the
// operator opted into VolumeIDWarn.
func (b *Brick) checkVolumeID() error {
	if b.Opt.VolumeID == "" {
		return nil
	}
	want := []byte(b.Opt.VolumeID)
	got, err := xattr.Get(b.Root, xattrkeys.VolumeID)
	if err != nil || !bytes.Equal(got, want) {
		if b.Opt.VolumeIDMode == VolumeIDWarn {
			gfs.Warnf(b, "volume-id mismatch or missing on brick root %s, proceeding because volume-id-mode=warn", b.Root)
			return nil
		}
		return fmt.Errorf("posix: brick root %s missing or mismatched volume-id, refusing to start: %w", b.Root, err)
	}
	return nil
}

// ensureRootGFID makes sure the brick root itself carries trusted.gfid
// equal to the reserved root GFID (§3 invariant 4).
func (b *Brick) ensureRootGFID() error {
	got, err := xattr.Get(b.Root, xattrkeys.GFID)
	if err == nil {
		if g, perr := gfid.FromBytes(got); perr == nil && g == gfid.Root {
			return nil
		}
	}
	return xattr.Set(b.Root, xattrkeys.GFID, gfid.Root.Bytes())
}

// Degraded reports whether the engine is currently refusing mutating
// operations because the health probe is failing (§4.5, §7).
func (b *Brick) Degraded() bool { return b.degraded.Load() }

// SetDegraded is called by the health-check worker (§4.5).
func (b *Brick) SetDegraded(v bool) { b.degraded.Store(v) }

// DiskFull reports the disk-reserve monitor's cached "full" flag (§4.5).
func (b *Brick) DiskFull() bool { return b.diskFull.Load() }

// SetDiskFull is called by the disk-reserve monitor (§4.5).
func (b *Brick) SetDiskFull(v bool) { b.diskFull.Store(v) }

// checkWritable returns ErrBackendIll or ErrNoSpace if the engine should
// currently refuse a mutating operation (§7).
func (b *Brick) checkWritable() error {
	if b.degraded.Load() {
		return gfs.ErrBackendIll
	}
	if b.diskFull.Load() {
		return gfs.ErrNoSpace
	}
	return nil
}

// onInodeGone is the InodeTable's release callback (§4.7): when an
// inode's last reference is forgotten and its unlink flag is set, the
// staged handle is finally removed.
func (b *Brick) onInodeGone(ic *fsctx.InodeContext) {
	if !ic.UnlinkFlag() {
		return
	}
	if err := b.Handle.RemoveUnlinkStaging(ic.GFID); err != nil {
		gfs.Errorf(ic.GFID, "failed to reap unlink staging on forget: %v", err)
	}
}
