package xlator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
)

func TestXdataSetGetBytes(t *testing.T) {
	x := New()
	x.Set("k", BytesValue([]byte("hello")))

	got, ok := x.GetBytes("k")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	_, ok = x.GetBytes("missing")
	assert.False(t, ok)
}

func TestXdataGetStringWrongKind(t *testing.T) {
	x := New()
	x.Set("k", Int32Value(5))
	_, ok := x.GetString("k")
	assert.False(t, ok)
}

func TestXdataHasOnNilMap(t *testing.T) {
	var x Xdata
	assert.False(t, x.Has("anything"))
	_, ok := x.GetBytes("anything")
	assert.False(t, ok)
}

func TestXdataSetAllocatesNilMap(t *testing.T) {
	var x Xdata
	x.Set("a", Uint32Value(1))
	require.NotNil(t, x)
	assert.True(t, x.Has("a"))
}

func TestXdataCloneIsIndependent(t *testing.T) {
	x := New()
	x.Set("a", Int64Value(1))
	clone := x.Clone()
	clone.Set("a", Int64Value(2))

	v := x["a"]
	assert.Equal(t, int64(1), v.I64)
	cv := clone["a"]
	assert.Equal(t, int64(2), cv.I64)
}

func TestXdataMergeOverwritesOnCollision(t *testing.T) {
	x := New()
	x.Set("a", Uint64Value(1))
	other := New()
	other.Set("a", Uint64Value(2))
	other.Set("b", GFIDValue(gfid.Root))

	x.Merge(other)
	assert.Equal(t, uint64(2), x["a"].U64)
	assert.Equal(t, gfid.Root, x["b"].GFID)
}

func TestReplyHelpers(t *testing.T) {
	ok := Ok(3, nil)
	assert.Equal(t, int64(3), ok.OpRet)
	assert.Equal(t, int32(0), ok.OpErrno)

	fail := Fail(2)
	assert.Equal(t, int64(-1), fail.OpRet)
	assert.Equal(t, int32(2), fail.OpErrno)
}
