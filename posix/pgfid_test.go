package posix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
)

func newTestPGFIDFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	requireTrustedXattr(t, dir)
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	return p
}

func TestReadPGFIDCounterAbsentIsZero(t *testing.T) {
	path := newTestPGFIDFile(t)
	v, err := readPGFIDCounter(path, gfid.New())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestWriteThenReadPGFIDCounter(t *testing.T) {
	path := newTestPGFIDFile(t)
	parent := gfid.New()
	require.NoError(t, writePGFIDCounter(path, parent, 3))

	v, err := readPGFIDCounter(path, parent)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
}

func TestAdjustPGFIDIncrementsAndRemovesAtZero(t *testing.T) {
	path := newTestPGFIDFile(t)
	ic := &fsctx.InodeContext{}
	parent := gfid.New()

	require.NoError(t, adjustPGFIDRaw(ic, path, parent, 2))
	v, err := readPGFIDCounter(path, parent)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	require.NoError(t, adjustPGFIDRaw(ic, path, parent, -2))
	v, err = readPGFIDCounter(path, parent)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v, "counter reaching zero should be gone, not merely zero-valued")

	_, parents, err := sumPGFID(path)
	require.NoError(t, err)
	assert.NotContains(t, parents, parent)
}

func TestAdjustPGFIDClampsBelowZero(t *testing.T) {
	path := newTestPGFIDFile(t)
	ic := &fsctx.InodeContext{}
	parent := gfid.New()

	require.NoError(t, adjustPGFIDRaw(ic, path, parent, -5))
	v, err := readPGFIDCounter(path, parent)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestSumPGFIDAcrossMultipleParents(t *testing.T) {
	path := newTestPGFIDFile(t)
	ic := &fsctx.InodeContext{}
	p1, p2 := gfid.New(), gfid.New()

	require.NoError(t, adjustPGFIDRaw(ic, path, p1, 2))
	require.NoError(t, adjustPGFIDRaw(ic, path, p2, 5))

	sum, parents, err := sumPGFID(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), sum)
	assert.ElementsMatch(t, []gfid.GFID{p1, p2}, parents)
}
