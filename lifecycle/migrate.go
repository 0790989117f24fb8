package lifecycle

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/posix"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
	"github.com/gluster/glusterfs-sub002/xlator"
)

// migrateFanout bounds how many descriptors are migrated concurrently,
// the same small-fixed-pool idea the rest of the engine uses for its
// worker threads (§5).
const migrateFanout = 16

// BrickMigrator implements Migrator for a single brick: it walks every
// open descriptor the brick's FDTable knows about and migrates each
// (§4.4 "Descriptor migration").
type BrickMigrator struct {
	Brick *posix.Brick
}

// NewBrickMigrator builds a migrator bound to b.
func NewBrickMigrator(b *posix.Brick) *BrickMigrator {
	return &BrickMigrator{Brick: b}
}

// MigrateAll fans out across every currently open descriptor. A single
// descriptor's failure never aborts the others: it's flagged stale and
// the fan-out continues (§4.4 "If migration fails the descriptor is
// flagged, and any later operation on it returns... fd stale").
func (m *BrickMigrator) MigrateAll(ctx context.Context, oldGraph, newGraph *xlator.Graph) error {
	fds := m.Brick.FDs.All()
	if len(fds) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(migrateFanout)
	for _, fd := range fds {
		fd := fd
		g.Go(func() error {
			if err := m.migrateOne(fd); err != nil {
				gfs.Warnf(fd.GFID, "lifecycle: migration failed, marking fd stale: %v", err)
				fd.Stale.Store(true)
			}
			return nil
		})
	}
	return g.Wait()
}

// migrateOne implements the four per-descriptor steps of §4.4.
func (m *BrickMigrator) migrateOne(base *fsctx.FD) error {
	live := base.Resolve()

	// Step 1: recover the path. The source walks inode up-pointers and
	// falls back to a nameless GFID lookup if that fails; this rewrite
	// has no separate in-memory up-pointer chain to walk in the first
	// place, because the handle layer already makes every GFID
	// resolvable without a name (handle.Handle.Path). So recovery here
	// always takes the source's fallback route directly.
	path, err := m.Brick.ResolveHandle(live.GFID)
	if err != nil {
		return err
	}

	// Step 2: reopen with the same flags, minus create/exclusive/
	// truncate - the object already exists and is already live on the
	// old descriptor; repeating those flags would recreate or truncate
	// it out from under any reader still using the old fd.
	flags := live.Flags &^ (os.O_CREATE | os.O_EXCL | os.O_TRUNC)
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return err
	}

	replacement := fsctx.NewFD(live.GFID, f, flags, live.IsDir)
	if live.IsDir {
		offset, eof := live.DirOffset()
		replacement.SetDirOffset(offset, eof)
	}
	m.Brick.FDs.Install(replacement)

	// Step 3: install the replacement as base's active handle. Every
	// caller still holding the original *fsctx.FD transparently starts
	// using the replacement on its next operation.
	base.SetActive(replacement)

	// Step 4: carry the opaque lockinfo blob forward under the same
	// key (§4.4, §9). A failure here doesn't fail the migration itself
	// - the descriptor is usable either way - but is logged since lock
	// state may now be lost.
	if err := m.migrateLockinfo(path, live.GFID); err != nil {
		gfs.Warnf(live.GFID, "lifecycle: lockinfo migration failed, lock state may be lost: %v", err)
	}
	return nil
}

func (m *BrickMigrator) migrateLockinfo(path string, g gfid.GFID) error {
	blob, err := m.Brick.Getxattr(path, g, xattrkeys.Lockinfo)
	if err != nil {
		if errors.Is(err, gfs.ErrNoSuchXattr) {
			return nil
		}
		return err
	}
	return m.Brick.Setxattr(path, xattrkeys.Lockinfo, blob)
}
