package posix

import (
	"fmt"
	"os"

	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
	"github.com/gluster/glusterfs-sub002/xlator"
)

// checkMkdirPreop enforces §4.1 step 2: if the caller supplied a
// glusterfs.preop.parent.key imperative, the named xattr must already
// exist on the parent directory, or the create fails with
// ErrPreopCheckFailed before anything is created on disk.
func checkMkdirPreop(parentPath string, xd xlator.Xdata) error {
	key, ok := xd.GetString(xattrkeys.ReqPreopParentKey)
	if !ok || key == "" {
		return nil
	}
	if _, err := xattr.Get(parentPath, key); err != nil {
		return gfs.Wrap(gfs.KindPreopCheckFailed, gfs.ErrPreopCheckFailed.Errno, err, "mkdir preop parent xattr check")
	}
	return nil
}

// finishCreate runs the common tail of every create-class operation
// (§4.1 steps 4-10): assign a GFID, apply ownership, record the gfid2path
// link, bump the new parent's pgfid counter, create the handle (hardlink
// for files, symlink for directories), and poststat. On any failure it
// unwinds the handle and pgfid steps it already did; the named entry
// itself is removed by the calling create operation, so a failed create
// never leaves a half-built object behind (§4.1: "A failure after step 3
// unwinds everything already done").
func (b *Brick) finishCreate(l *Loc, uid, gid uint32, isDir bool) (st Stat, err error) {
	g := gfid.New()

	var created []func()
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			created[i]()
		}
	}
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	if err = os.Lchown(l.Path, int(uid), int(gid)); err != nil {
		return Stat{}, fmt.Errorf("posix: chown %s: %w", l.Path, err)
	}

	if err = xattr.LSet(l.Path, xattrkeys.GFID, g.Bytes()); err != nil {
		return Stat{}, fmt.Errorf("posix: set trusted.gfid on %s: %w", l.Path, err)
	}

	if isDir {
		err = b.Handle.CreateDirHandle(g, l.Path)
	} else {
		err = b.Handle.CreateFileHandle(g, l.Path)
	}
	if err != nil {
		return Stat{}, err
	}
	created = append(created, func() {
		if isDir {
			_ = b.Handle.RemoveDirHandle(g)
		} else {
			_ = b.Handle.RemoveFileHandle(g)
		}
	})

	if b.Opt.Gfid2Path {
		sep := b.Opt.Gfid2PathSeparator
		key := xattrkeys.Gfid2pathKey(l.ParentGFID, sep, l.Name)
		val := xattrkeys.Gfid2pathValue(l.ParentGFID, sep, l.Name)
		if err = xattr.LSet(l.Path, key, []byte(val)); err != nil {
			return Stat{}, fmt.Errorf("posix: set gfid2path on %s: %w", l.Path, err)
		}
	}

	ic := b.Inodes.Lookup(g)
	defer b.Inodes.Forget(g, 1)
	if err = b.adjustPGFID(ic, l.Path, l.ParentGFID, 1); err != nil {
		return Stat{}, fmt.Errorf("posix: bump pgfid on %s: %w", l.Path, err)
	}
	created = append(created, func() {
		_ = b.adjustPGFID(ic, l.Path, l.ParentGFID, -1)
	})

	st, err = statPathGFID(l.Path, g)
	if err != nil {
		return Stat{}, err
	}
	l.GFID = g
	return st, nil
}

// Mknod creates a non-directory, non-regular object (device node, pipe,
// socket) at l (§4.1).
func (b *Brick) Mknod(l *Loc, mode os.FileMode, rdev uint64, uid, gid uint32) (Stat, error) {
	if err := b.checkWritable(); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamedForCreate(l); err != nil {
		return Stat{}, err
	}
	shaped := shapeMode(uint32(mode.Perm()), b.Opt.CreateMask, b.Opt.ForceCreateMode)
	if err := unix.Mknod(l.Path, modeToSysMode(mode)&^uint32(0777)|shaped, int(rdev)); err != nil {
		return Stat{}, &os.PathError{Op: "mknod", Path: l.Path, Err: err}
	}
	st, err := b.finishCreate(l, uid, gid, false)
	if err != nil {
		_ = os.Remove(l.Path)
		return Stat{}, err
	}
	return st, nil
}

// modeToSysMode extracts the S_IFMT file-type bits from a Go FileMode so
// Mknod can reassemble type|perm the way mknod(2) expects.
func modeToSysMode(mode os.FileMode) uint32 {
	switch {
	case mode&os.ModeSocket != 0:
		return unix.S_IFSOCK
	case mode&os.ModeNamedPipe != 0:
		return unix.S_IFIFO
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		return unix.S_IFCHR
	case mode&os.ModeDevice != 0:
		return unix.S_IFBLK
	default:
		return unix.S_IFREG
	}
}

// Mkdir creates a directory at l, enforcing the optional preop-parent-
// xattr precondition before creating anything (§4.1 steps 1-2).
func (b *Brick) Mkdir(l *Loc, mode os.FileMode, uid, gid uint32, xd xlator.Xdata) (Stat, error) {
	if err := b.checkWritable(); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamedForCreate(l); err != nil {
		return Stat{}, err
	}
	if err := checkMkdirPreop(l.ParentPath, xd); err != nil {
		return Stat{}, err
	}
	shaped := shapeMode(uint32(mode.Perm()), b.Opt.CreateDirectoryMask, b.Opt.ForceDirectoryMode)
	if err := os.Mkdir(l.Path, os.FileMode(shaped)); err != nil {
		return Stat{}, err
	}
	st, err := b.finishCreate(l, uid, gid, true)
	if err != nil {
		_ = os.Remove(l.Path)
		return Stat{}, err
	}
	return st, nil
}

// Create opens l with O_CREAT, creating a regular file and leaving it
// open, returning the resolved Stat; the caller installs the returned
// *os.File into an FD via fsctx (§4.1).
func (b *Brick) Create(l *Loc, flags int, mode os.FileMode, uid, gid uint32) (*os.File, Stat, error) {
	if err := b.checkWritable(); err != nil {
		return nil, Stat{}, err
	}
	if err := b.ResolveNamedForCreate(l); err != nil {
		return nil, Stat{}, err
	}
	shaped := shapeMode(uint32(mode.Perm()), b.Opt.CreateMask, b.Opt.ForceCreateMode)
	flags = b.odirectFlags(flags)
	f, err := os.OpenFile(l.Path, flags|os.O_CREATE|os.O_EXCL, os.FileMode(shaped))
	if err != nil {
		return nil, Stat{}, err
	}
	st, err := b.finishCreate(l, uid, gid, false)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(l.Path)
		return nil, Stat{}, err
	}
	return f, st, nil
}

// Symlink creates a symbolic link at l pointing at target (§4.1).
func (b *Brick) Symlink(l *Loc, target string, uid, gid uint32) (Stat, error) {
	if err := b.checkWritable(); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamedForCreate(l); err != nil {
		return Stat{}, err
	}
	if err := os.Symlink(target, l.Path); err != nil {
		return Stat{}, err
	}
	st, err := b.finishCreate(l, uid, gid, false)
	if err != nil {
		_ = os.Remove(l.Path)
		return Stat{}, err
	}
	return st, nil
}

// Link creates a new name newLoc pointing at the already-existing object
// src, bumping its pgfid counter and gfid2path set for the new parent
// instead of minting a new GFID (§4.1: hardlink case).
func (b *Brick) Link(src *Loc, newLoc *Loc) (Stat, error) {
	if err := b.checkWritable(); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamed(src); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamedForCreate(newLoc); err != nil {
		return Stat{}, err
	}
	if b.Opt.MaxHardlinks > 0 {
		st, err := os.Lstat(src.Path)
		if err == nil {
			if nl, ok := nlinkOf(st); ok && int(nl) >= b.Opt.MaxHardlinks {
				return Stat{}, gfs.ErrMaxHardlinks
			}
		}
	}
	if err := os.Link(src.Path, newLoc.Path); err != nil {
		return Stat{}, err
	}

	ic := b.Inodes.Lookup(src.GFID)
	defer b.Inodes.Forget(src.GFID, 1)
	if err := b.adjustPGFID(ic, src.Path, newLoc.ParentGFID, 1); err != nil {
		_ = os.Remove(newLoc.Path)
		return Stat{}, err
	}
	if b.Opt.Gfid2Path {
		sep := b.Opt.Gfid2PathSeparator
		key := xattrkeys.Gfid2pathKey(newLoc.ParentGFID, sep, newLoc.Name)
		val := xattrkeys.Gfid2pathValue(newLoc.ParentGFID, sep, newLoc.Name)
		_ = xattr.LSet(src.Path, key, []byte(val))
	}
	return statPathGFID(src.Path, src.GFID)
}

func nlinkOf(fi os.FileInfo) (uint64, bool) {
	st := toStat(fi, gfid.GFID{})
	return st.Nlink, st.Nlink > 0
}

// isBusy reports whether g currently has any live reference in the
// inode table - lookups are created on first reference and removed the
// instant the count reaches zero (fsctx.InodeTable), so presence alone
// is the open/closed signal unlink needs (§4.1, §4.7).
func (b *Brick) isBusy(g gfid.GFID) bool {
	_, ok := b.Inodes.Peek(g)
	return ok
}

// Unlink removes the named entry l. If that was the object's last named
// link and no descriptor is currently open on it, the handle itself is
// removed too; if descriptors remain open, the handle is moved to
// unlink staging instead so nameless lookups by GFID keep working until
// the last descriptor closes (§4.1, §4.2).
func (b *Brick) Unlink(l *Loc) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if err := b.ResolveNamed(l); err != nil {
		return err
	}
	g := l.GFID
	if g.IsZero() {
		var err error
		g, err = readGFID(l.Path)
		if err != nil {
			return err
		}
	}

	busy := b.isBusy(g)
	ic := b.Inodes.Lookup(g)
	defer b.Inodes.Forget(g, 1)

	fi, err := os.Lstat(l.Path)
	if err != nil {
		return err
	}
	lastNamedLink := fi.Mode()&os.ModeDir == 0 && nlinkIsLast(fi)

	if err := os.Remove(l.Path); err != nil {
		return err
	}
	if err := b.adjustPGFID(ic, handlePathOrEmpty(b, g), l.ParentGFID, -1); err != nil {
		gfs.Errorf(g, "unlink: failed to decrement pgfid: %v", err)
	}
	if b.Opt.Gfid2Path {
		hp, herr := b.Handle.Path(g)
		if herr == nil {
			removeGfid2pathEntry(hp, l.ParentGFID, b.Opt.Gfid2PathSeparator, l.Name)
		}
	}

	if !lastNamedLink {
		return nil
	}
	if busy {
		ic.SetUnlinkFlag(true)
		if err := b.Handle.MoveToUnlinkStaging(g); err != nil {
			gfs.Errorf(g, "unlink: failed to stage handle for open descriptors: %v", err)
		}
		return nil
	}
	if b.Opt.BackgroundUnlink {
		b.backgroundUnlinkHandle(g)
		return nil
	}
	if err := b.Handle.RemoveFileHandle(g); err != nil {
		gfs.Errorf(g, "unlink: failed to remove handle: %v", err)
	}
	return nil
}

// backgroundUnlinkHandle implements the background-unlink option (§6):
// open the handle before removing its name, so unlink(2) only drops the
// directory entry and the actual block reclaim happens at close, then
// hand that close to the janitor's deferred queue instead of paying for
// it on the calling goroutine.
func (b *Brick) backgroundUnlinkHandle(g gfid.GFID) {
	hp, err := b.Handle.Path(g)
	if err != nil {
		gfs.Errorf(g, "background-unlink: resolve handle path: %v", err)
		return
	}
	f, err := os.Open(hp)
	if err != nil {
		gfs.Errorf(g, "background-unlink: open handle for deferred close: %v", err)
		return
	}
	if err := os.Remove(hp); err != nil && !os.IsNotExist(err) {
		gfs.Errorf(g, "background-unlink: remove handle: %v", err)
		_ = f.Close()
		return
	}
	fd := fsctx.NewFD(g, f, os.O_RDONLY, false)
	b.FDs.Install(fd)
	b.FDs.Release(fd.ID)
}

// nlinkIsLast reports whether fi's name is the object's last named link;
// the .glusterfs handle hard link accounts for one of its links.
func nlinkIsLast(fi os.FileInfo) bool {
	st := toStat(fi, gfid.GFID{})
	return st.Nlink <= 2
}

func handlePathOrEmpty(b *Brick, g gfid.GFID) string {
	p, err := b.Handle.Path(g)
	if err != nil {
		return ""
	}
	return p
}

func removeGfid2pathEntry(handlePath string, parent gfid.GFID, sep, name string) {
	key := xattrkeys.Gfid2pathKey(parent, sep, name)
	_ = xattr.LRemove(handlePath, key)
}

// Rmdir removes an empty directory at l. When intoTrash is set (the
// "rmdir into landfill" variant, §4.1) the directory is instead renamed
// into .glusterfs/landfill for the janitor to reap asynchronously,
// letting the call return immediately regardless of subtree size.
func (b *Brick) Rmdir(l *Loc, intoTrash bool) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if err := b.ResolveNamed(l); err != nil {
		return err
	}
	g := l.GFID
	if g.IsZero() {
		var err error
		g, err = readGFID(l.Path)
		if err != nil {
			return err
		}
	}

	if intoTrash {
		if _, err := b.Handle.MoveToLandfill(l.Path); err != nil {
			return err
		}
	} else {
		if err := os.Remove(l.Path); err != nil {
			return err
		}
	}

	ic := b.Inodes.Lookup(g)
	defer b.Inodes.Forget(g, 1)
	if err := b.adjustPGFID(ic, handlePathOrEmpty(b, g), l.ParentGFID, -1); err != nil {
		gfs.Errorf(g, "rmdir: failed to decrement pgfid: %v", err)
	}
	if err := b.Handle.RemoveDirHandle(g); err != nil {
		gfs.Errorf(g, "rmdir: failed to remove handle: %v", err)
	}
	return nil
}

// Rename moves src to dst, rewriting gfid2path, retargeting the
// directory handle symlink when src is a directory, updating both the
// old and new parent's pgfid counters, and releasing any victim object
// dst previously named (§4.1's rename contract).
func (b *Brick) Rename(src, dst *Loc) (Stat, error) {
	if err := b.checkWritable(); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamed(src); err != nil {
		return Stat{}, err
	}
	if err := b.ResolveNamedForCreate(dst); err != nil {
		return Stat{}, err
	}

	g, err := readGFID(src.Path)
	if err != nil {
		return Stat{}, err
	}
	srcIsDir := false
	if fi, err := os.Lstat(src.Path); err == nil {
		srcIsDir = fi.IsDir()
	}

	var victim gfid.GFID
	haveVictim := false
	if _, err := os.Lstat(dst.Path); err == nil {
		haveVictim = true
		if vg, err := readGFID(dst.Path); err == nil {
			victim = vg
		}
	}

	// Both the old and new parent's pgfid counters live on g's own
	// InodeContext (a parent-link count is an attribute of the child),
	// so there is only one PGFIDLock to take here; no separate src/dst
	// lock ordering is needed the way the rename contract requires when
	// two distinct inodes are involved (the victim, handled below, is
	// released only after src's rename and counter updates land).
	srcIC := b.Inodes.Lookup(g)
	defer b.Inodes.Forget(g, 1)

	if err := os.Rename(src.Path, dst.Path); err != nil {
		return Stat{}, err
	}

	if err := b.adjustPGFID(srcIC, handlePathOrEmpty(b, g), src.ParentGFID, -1); err != nil {
		gfs.Errorf(g, "rename: failed to decrement source pgfid: %v", err)
	}
	if err := b.adjustPGFID(srcIC, handlePathOrEmpty(b, g), dst.ParentGFID, 1); err != nil {
		gfs.Errorf(g, "rename: failed to increment dest pgfid: %v", err)
	}
	if b.Opt.Gfid2Path {
		hp, herr := b.Handle.Path(g)
		if herr == nil {
			removeGfid2pathEntry(hp, src.ParentGFID, b.Opt.Gfid2PathSeparator, src.Name)
			key := xattrkeys.Gfid2pathKey(dst.ParentGFID, b.Opt.Gfid2PathSeparator, dst.Name)
			val := xattrkeys.Gfid2pathValue(dst.ParentGFID, b.Opt.Gfid2PathSeparator, dst.Name)
			_ = xattr.LSet(hp, key, []byte(val))
		}
	}

	if srcIsDir {
		if err := b.Handle.RetargetDirHandle(g, dst.Path); err != nil {
			gfs.Errorf(g, "rename: failed to retarget directory handle: %v", err)
		}
	}

	if haveVictim && !victim.IsZero() && victim != g {
		if b.isBusy(victim) {
			vic := b.Inodes.Lookup(victim)
			vic.SetUnlinkFlag(true)
			b.Inodes.Forget(victim, 1)
			if err := b.Handle.MoveToUnlinkStaging(victim); err != nil {
				gfs.Errorf(victim, "rename: failed to stage victim handle: %v", err)
			}
		} else {
			if err := b.Handle.RemoveFileHandle(victim); err != nil {
				gfs.Errorf(victim, "rename: failed to remove victim handle: %v", err)
			}
		}
	}

	return statPathGFID(dst.Path, g)
}
