package posix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/xattrkeys"
)

func TestStatPathReadsGFIDFromXattr(t *testing.T) {
	dir := t.TempDir()
	requireTrustedXattr(t, dir)
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0644))

	g := gfid.New()
	require.NoError(t, xattr.LSet(p, xattrkeys.GFID, g.Bytes()))

	st, err := statPath(p)
	require.NoError(t, err)
	assert.Equal(t, g, st.GFID)
	assert.Equal(t, int64(5), st.Size)
}

func TestStatPathGFIDSkipsXattrRead(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("ab"), 0644))

	g := gfid.New()
	st, err := statPathGFID(p, g)
	require.NoError(t, err)
	assert.Equal(t, g, st.GFID)
	assert.Equal(t, int64(2), st.Size)
	assert.Equal(t, uint64(1), st.Nlink)
}
