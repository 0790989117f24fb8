package fsctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
)

func TestInodeTableLookupRefcounts(t *testing.T) {
	table := NewInodeTable(nil)
	g := gfid.New()

	a := table.Lookup(g)
	b := table.Lookup(g)
	assert.Same(t, a, b)
	assert.Equal(t, 1, table.Len())

	table.Forget(g, 1)
	assert.Equal(t, 1, table.Len())

	table.Forget(g, 1)
	assert.Equal(t, 0, table.Len())
}

func TestInodeTableForgetRunsOnGoneOnlyAtZero(t *testing.T) {
	var gone int
	table := NewInodeTable(func(ic *InodeContext) { gone++ })
	g := gfid.New()

	table.Lookup(g)
	table.Lookup(g)
	table.Forget(g, 1)
	assert.Equal(t, 0, gone)

	table.Forget(g, 1)
	assert.Equal(t, 1, gone)
}

func TestInodeTablePeekDoesNotAffectRefcount(t *testing.T) {
	table := NewInodeTable(nil)
	g := gfid.New()
	table.Lookup(g)

	ic, ok := table.Peek(g)
	require.True(t, ok)
	assert.Equal(t, g, ic.GFID)

	table.Forget(g, 1)
	assert.Equal(t, 0, table.Len())

	_, ok = table.Peek(g)
	assert.False(t, ok)
}

func TestInodeContextUnlinkFlag(t *testing.T) {
	ic := &InodeContext{GFID: gfid.New()}
	assert.False(t, ic.UnlinkFlag())
	ic.SetUnlinkFlag(true)
	assert.True(t, ic.UnlinkFlag())
}
