package posix

import (
	"testing"

	"github.com/pkg/xattr"
)

// requireTrustedXattr skips the test unless the filesystem backing dir
// supports the trusted.* xattr namespace, which needs CAP_SYS_ADMIN on
// Linux. Mirrors the detect-then-react pattern backend/local/xattr.go
// uses for user.* xattrs, redirected to skip instead of silently
// disabling - this engine's on-disk format is not optional the way a
// backend's metadata mirroring is.
func requireTrustedXattr(t *testing.T, dir string) {
	t.Helper()
	if err := xattr.Set(dir, "trusted.glusterfs-sub002-probe", []byte("1")); err != nil {
		t.Skipf("trusted.* xattrs not available on %s (need CAP_SYS_ADMIN): %v", dir, err)
	}
}
