package posix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
)

func rootLoc(name string) *Loc {
	return &Loc{ParentGFID: gfid.Root, Name: name}
}

func TestMkdirCreatesHandleAndStampsGFID(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("dir1")
	st, err := b.Mkdir(l, 0755, 0, 0, nil)
	require.NoError(t, err)
	assert.False(t, st.GFID.IsZero())

	got, err := xattr.Get(l.Path, xattrkeys.GFID)
	require.NoError(t, err)
	g, err := gfid.FromBytes(got)
	require.NoError(t, err)
	assert.Equal(t, st.GFID, g)

	hp, err := b.Handle.Path(g)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.NoError(t, err, "mkdir should create a handle symlink")
}

func TestCreateLeavesFileOpenAndHardlinksHandle(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("file1")
	f, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("hi")
	require.NoError(t, err)

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	namedStat, err := os.Stat(l.Path)
	require.NoError(t, err)
	handleStat, err := os.Stat(hp)
	require.NoError(t, err)
	assert.True(t, os.SameFile(namedStat, handleStat))
}

func TestCreateIsExclusiveOnExistingName(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("dup")
	_, _, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	_, _, err = b.Create(rootLoc("dup"), os.O_RDWR, 0644, 0, 0)
	assert.Error(t, err, "O_EXCL create on an existing name must fail")
}

func TestSymlinkCreatesHandle(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("link1")
	st, err := b.Symlink(l, "/some/target", 0, 0)
	require.NoError(t, err)

	target, err := os.Readlink(l.Path)
	require.NoError(t, err)
	assert.Equal(t, "/some/target", target)

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.NoError(t, err)
}

func TestLinkEnforcesMaxHardlinks(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())
	b.Opt.MaxHardlinks = 1

	l := rootLoc("orig")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	src := &Loc{ParentGFID: gfid.Root, Name: "orig", GFID: st.GFID}
	dst := rootLoc("linked")
	_, err = b.Link(src, dst)
	assert.ErrorIs(t, err, gfs.ErrMaxHardlinks)
}

func TestUnlinkRemovesHandleWhenNoOpenDescriptors(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("toremove")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Unlink(rootLoc("toremove")))

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.True(t, os.IsNotExist(err), "unlink with no open descriptors should remove the handle")
}

func TestUnlinkStagesHandleWhenBusy(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("busyfile")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	// Mark the inode busy the way an open descriptor would.
	b.Inodes.Lookup(st.GFID)
	defer b.Inodes.Forget(st.GFID, 1)

	require.NoError(t, b.Unlink(rootLoc("busyfile")))

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.True(t, os.IsNotExist(err), "handle should have left its fanout path while busy")

	up, err := b.Handle.UnlinkPath(st.GFID)
	require.NoError(t, err)
	_, err = os.Stat(up)
	assert.NoError(t, err, "handle should have been staged, not removed outright")
}

func TestRmdirIntoLandfillMovesInsteadOfRemoving(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("trashme")
	_, err := b.Mkdir(l, 0755, 0, 0, nil)
	require.NoError(t, err)

	require.NoError(t, b.Rmdir(rootLoc("trashme"), true))

	_, err = os.Lstat(filepath.Join(b.Root, "trashme"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenameRetargetsDirectoryHandle(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	l := rootLoc("olddir")
	st, err := b.Mkdir(l, 0755, 0, 0, nil)
	require.NoError(t, err)

	src := &Loc{ParentGFID: gfid.Root, Name: "olddir", GFID: st.GFID}
	dst := rootLoc("newdir")
	_, err = b.Rename(src, dst)
	require.NoError(t, err)

	resolved, isDir, err := b.Handle.ResolveNameless(st.GFID)
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.Equal(t, filepath.Join(b.Root, "newdir"), resolved)
}

func TestRenameReleasesVictimHandle(t *testing.T) {
	b := openTestBrick(t, DefaultOptions())

	_, srcSt, err := b.Create(rootLoc("src"), os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)
	_, victimSt, err := b.Create(rootLoc("dst"), os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	src := &Loc{ParentGFID: gfid.Root, Name: "src", GFID: srcSt.GFID}
	dst := rootLoc("dst")
	_, err = b.Rename(src, dst)
	require.NoError(t, err)

	hp, err := b.Handle.Path(victimSt.GFID)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.True(t, os.IsNotExist(err), "renamed-over victim's handle should be removed")
}

func TestUnlinkWithBackgroundUnlinkStillRemovesHandleName(t *testing.T) {
	opt := DefaultOptions()
	opt.BackgroundUnlink = true
	b := openTestBrick(t, opt)

	l := rootLoc("bg")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Unlink(rootLoc("bg")))

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	_, err = os.Lstat(hp)
	assert.True(t, os.IsNotExist(err), "background-unlink must still drop the handle's directory entry synchronously")
}

func TestPGFIDCountingSkippedUnlessUpdateLinkCountParentEnabled(t *testing.T) {
	b := openTestBrick(t, DefaultOptions()) // UpdateLinkCountParent is false by default

	l := rootLoc("f")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	_, err = xattr.LGet(hp, xattrkeys.PGFIDKey(gfid.Root))
	assert.True(t, xattr.IsNotExist(err), "pgfid counter should not be written when update-link-count-parent is off")
}

func TestPGFIDCountingWritesCounterWhenEnabled(t *testing.T) {
	opt := DefaultOptions()
	opt.UpdateLinkCountParent = true
	b := openTestBrick(t, opt)

	l := rootLoc("f")
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	raw, err := xattr.LGet(hp, xattrkeys.PGFIDKey(gfid.Root))
	require.NoError(t, err)
	assert.Len(t, raw, 4)
}
