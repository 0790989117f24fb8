package handle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	root := t.TempDir()
	h := New(root)
	require.NoError(t, h.EnsureLayout())
	return h
}

func TestEnsureLayoutCreatesFixedDirs(t *testing.T) {
	h := newTestHandle(t)
	for _, sub := range []string{GlusterfsDir, filepath.Join(GlusterfsDir, UnlinkDir), filepath.Join(GlusterfsDir, LandfillDir), filepath.Join(GlusterfsDir, HealthDir)} {
		st, err := os.Stat(filepath.Join(h.BrickRoot, sub))
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
}

func TestPathUsesTwoLevelFanout(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.GFID{0xaf, 0x03}
	p, err := h.Path(g)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.BrickRoot, GlusterfsDir, "af", "03", g.Canonical()), p)
}

func TestCreateFileHandleIsAHardlink(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.New()

	named := filepath.Join(h.BrickRoot, "file.txt")
	require.NoError(t, os.WriteFile(named, []byte("hello"), 0644))

	require.NoError(t, h.CreateFileHandle(g, named))

	hp, err := h.Path(g)
	require.NoError(t, err)
	namedStat, err := os.Stat(named)
	require.NoError(t, err)
	handleStat, err := os.Stat(hp)
	require.NoError(t, err)
	assert.True(t, os.SameFile(namedStat, handleStat))
}

func TestCreateDirHandleResolvesToNamedPath(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.New()

	named := filepath.Join(h.BrickRoot, "dir")
	require.NoError(t, os.Mkdir(named, 0700))
	require.NoError(t, h.CreateDirHandle(g, named))

	resolved, isDir, err := h.ResolveNameless(g)
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.Equal(t, filepath.Clean(named), resolved)

	ok, err := h.VerifyDirTarget(g, named)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetargetDirHandleAfterRename(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.New()

	oldPath := filepath.Join(h.BrickRoot, "old")
	require.NoError(t, os.Mkdir(oldPath, 0700))
	require.NoError(t, h.CreateDirHandle(g, oldPath))

	newPath := filepath.Join(h.BrickRoot, "new")
	require.NoError(t, os.Rename(oldPath, newPath))
	require.NoError(t, h.RetargetDirHandle(g, newPath))

	resolved, _, err := h.ResolveNameless(g)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(newPath), resolved)
}

func TestResolveNamelessDropsDanglingDirHandle(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.New()

	named := filepath.Join(h.BrickRoot, "gone")
	require.NoError(t, os.Mkdir(named, 0700))
	require.NoError(t, h.CreateDirHandle(g, named))
	require.NoError(t, os.Remove(named))

	_, _, err := h.ResolveNameless(g)
	assert.ErrorIs(t, err, os.ErrNotExist)

	hp, err := h.Path(g)
	require.NoError(t, err)
	_, statErr := os.Lstat(hp)
	assert.True(t, os.IsNotExist(statErr), "dangling handle should have been removed")
}

func TestUnlinkStagingRoundtrip(t *testing.T) {
	h := newTestHandle(t)
	g := gfid.New()

	named := filepath.Join(h.BrickRoot, "file.txt")
	require.NoError(t, os.WriteFile(named, []byte("x"), 0644))
	require.NoError(t, h.CreateFileHandle(g, named))
	require.NoError(t, os.Remove(named))

	require.NoError(t, h.MoveToUnlinkStaging(g))
	up, err := h.UnlinkPath(g)
	require.NoError(t, err)
	_, err = os.Stat(up)
	require.NoError(t, err)

	require.NoError(t, h.RemoveUnlinkStaging(g))
	_, err = os.Stat(up)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveToLandfillMintsFreshNamesEachCall(t *testing.T) {
	h := newTestHandle(t)

	dirA := filepath.Join(h.BrickRoot, "a")
	dirB := filepath.Join(h.BrickRoot, "b")
	require.NoError(t, os.Mkdir(dirA, 0700))
	require.NoError(t, os.Mkdir(dirB, 0700))

	pa, err := h.MoveToLandfill(dirA)
	require.NoError(t, err)
	pb, err := h.MoveToLandfill(dirB)
	require.NoError(t, err)
	assert.NotEqual(t, pa, pb)

	_, err = os.Stat(pa)
	assert.NoError(t, err)
	_, err = os.Stat(pb)
	assert.NoError(t, err)
}
