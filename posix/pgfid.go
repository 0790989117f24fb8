package posix

import (
	"encoding/binary"

	"github.com/pkg/xattr"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
)

// readPGFIDCounter returns the current pgfid.<parent> counter on path, or
// zero if absent.
func readPGFIDCounter(path string, parent gfid.GFID) (uint32, error) {
	raw, err := xattr.LGet(path, xattrkeys.PGFIDKey(parent))
	if err != nil {
		if xattr.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 4 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(raw), nil
}

func writePGFIDCounter(path string, parent gfid.GFID, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return xattr.LSet(path, xattrkeys.PGFIDKey(parent), buf[:])
}

// adjustPGFID is adjustPGFIDRaw gated on update-link-count-parent (§6): a
// brick that hasn't opted into pgfid counting skips the read-modify-write
// entirely rather than paying for bookkeeping nothing consumes.
func (b *Brick) adjustPGFID(ic *fsctx.InodeContext, path string, parent gfid.GFID, delta int32) error {
	if !b.Opt.UpdateLinkCountParent {
		return nil
	}
	return adjustPGFIDRaw(ic, path, parent, delta)
}

// adjustPGFIDRaw changes the pgfid.<parent> counter on path by delta under
// the inode's pgfid_lock (§3, §4.1 step 6, §4.1 rename contract). A
// counter that would go negative is clamped to zero and logged rather
// than allowed to wrap, since that signals an inconsistency the source
// itself only logs and proceeds past (§9 open question).
func adjustPGFIDRaw(ic *fsctx.InodeContext, path string, parent gfid.GFID, delta int32) error {
	ic.PGFIDLock.Lock()
	defer ic.PGFIDLock.Unlock()

	cur, err := readPGFIDCounter(path, parent)
	if err != nil {
		return err
	}
	next := int64(cur) + int64(delta)
	if next < 0 {
		gfs.Warnf(path, "pgfid counter for parent %s would go negative (%d); clamping to zero", parent.Canonical(), next)
		next = 0
	}
	if next == 0 {
		if err := xattr.LRemove(path, xattrkeys.PGFIDKey(parent)); err != nil && !xattr.IsNotExist(err) {
			return err
		}
		return nil
	}
	return writePGFIDCounter(path, parent, uint32(next))
}

// sumPGFID sums every pgfid.<P> counter on path, used to validate
// testable property 2 (st_nlink-1 == sum of pgfid counters) and to
// compute the set of parent GFIDs for the gfid2path/pathinfo computed
// keys (§4.3).
func sumPGFID(path string) (sum uint32, parents []gfid.GFID, err error) {
	list, err := xattr.LList(path)
	if err != nil {
		if xattr.IsNotExist(err) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	for _, key := range list {
		parent, ok := xattrkeys.IsPGFIDKey(key)
		if !ok {
			continue
		}
		v, err := readPGFIDCounter(path, parent)
		if err != nil {
			continue
		}
		sum += v
		parents = append(parents, parent)
	}
	return sum, parents, nil
}
