package lifecycle

import (
	"context"
	"os"
	"testing"

	"github.com/pkg/xattr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/posix"
)

func openTestBrick(t *testing.T) *posix.Brick {
	t.Helper()
	root := t.TempDir()
	if err := xattr.Set(root, "trusted.glusterfs-sub002-probe", []byte("1")); err != nil {
		t.Skipf("trusted.* xattrs not available on %s (need CAP_SYS_ADMIN): %v", root, err)
	}
	b, err := posix.Open(root, posix.DefaultOptions(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMigrateAllNoOpWithNoOpenDescriptors(t *testing.T) {
	b := openTestBrick(t)
	m := NewBrickMigrator(b)

	g1 := simpleGraph(t, "posix")
	g2 := simpleGraph(t, "changed")
	require.NoError(t, m.MigrateAll(context.Background(), g1, g2))
}

func TestMigrateAllReplacesActiveFDOnEachDescriptor(t *testing.T) {
	b := openTestBrick(t)
	m := NewBrickMigrator(b)

	l := &posix.Loc{ParentGFID: gfid.Root, Name: "f"}
	f, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)
	_, err = f.WriteString("data")
	require.NoError(t, err)

	fd, _, err := b.Open(st.GFID, os.O_RDWR)
	require.NoError(t, err)

	orig := fd.Resolve()

	g1 := simpleGraph(t, "posix")
	g2 := simpleGraph(t, "changed")
	require.NoError(t, m.MigrateAll(context.Background(), g1, g2))

	assert.NotSame(t, orig, fd.Resolve(), "migration should install a fresh active descriptor")
	assert.False(t, fd.Stale.Load())

	buf := make([]byte, 4)
	n, err := fd.Resolve().File.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))
}

func TestMigrateAllFlagsDescriptorStaleOnResolveFailure(t *testing.T) {
	b := openTestBrick(t)
	m := NewBrickMigrator(b)

	l := &posix.Loc{ParentGFID: gfid.Root, Name: "gone"}
	_, st, err := b.Create(l, os.O_RDWR, 0644, 0, 0)
	require.NoError(t, err)

	fd, _, err := b.Open(st.GFID, os.O_RDWR)
	require.NoError(t, err)

	// Remove the handle out from under the fd so the path-recovery step
	// in migrateOne fails.
	hp, err := b.Handle.Path(st.GFID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(hp))

	g1 := simpleGraph(t, "posix")
	g2 := simpleGraph(t, "changed")
	require.NoError(t, m.MigrateAll(context.Background(), g1, g2))

	assert.True(t, fd.Stale.Load(), "a descriptor whose handle vanished should be flagged stale, not abort the fan-out")
}
