package xattrkeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/gfid"
)

func TestPGFIDKeyRoundtrip(t *testing.T) {
	parent := gfid.New()
	key := PGFIDKey(parent)
	assert.Equal(t, "trusted.pgfid."+parent.Canonical(), key)

	got, ok := IsPGFIDKey(key)
	require.True(t, ok)
	assert.Equal(t, parent, got)
}

func TestIsPGFIDKeyRejectsOtherKeys(t *testing.T) {
	_, ok := IsPGFIDKey(GFID)
	assert.False(t, ok)

	_, ok = IsPGFIDKey("trusted.pgfid.not-a-gfid")
	assert.False(t, ok)
}

func TestGfid2pathKeyIsStableAndBounded(t *testing.T) {
	parent := gfid.New()
	k1 := Gfid2pathKey(parent, "/", "file.txt")
	k2 := Gfid2pathKey(parent, "/", "file.txt")
	assert.Equal(t, k1, k2)

	k3 := Gfid2pathKey(parent, "/", "other.txt")
	assert.NotEqual(t, k1, k3)

	assert.True(t, len(k1) == len(Gfid2pathPrefix())+8)
}

func TestGfid2pathValue(t *testing.T) {
	parent := gfid.New()
	v := Gfid2pathValue(parent, "/", "file.txt")
	assert.Equal(t, parent.Canonical()+"/file.txt", v)
}

func TestDisallowed(t *testing.T) {
	assert.True(t, Disallowed(GFID))
	assert.True(t, Disallowed(VolumeID))
	assert.False(t, Disallowed("trusted.some.other.key"))
}

func TestIsACLKey(t *testing.T) {
	assert.True(t, IsACLKey("system.posix_acl_access"))
	assert.False(t, IsACLKey(GFID))
}
