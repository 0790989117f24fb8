// Package xattrkeys defines the reserved extended-attribute namespace
// (spec §3, §4.3, §6): the keys that are stored as-is, the keys that are
// computed on read and never stored, and the xdata side-channel keys that
// carry imperatives and reports rather than persistent state.
package xattrkeys

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gluster/glusterfs-sub002/gfid"
)

// Stored keys (persisted as xattrs on the backend file).
const (
	GFID      = "trusted.gfid"
	VolumeID  = "trusted.glusterfs.volume-id"
	DHTLinkTo = "trusted.glusterfs.dht.linkto"
	CloudSync = "trusted.glusterfs.cs"

	pgfidPrefix     = "trusted.pgfid."
	gfid2pathPrefix = "trusted.gfid2path."

	// InternalWriteGuard is set by a higher layer (e.g. a replication
	// translator) to forbid ordinary writers while it holds the file
	// open for internal self-heal; Writev refuses any write whose xdata
	// carries it.
	InternalWriteGuard = "trusted.glusterfs.protect-from-external-writes"

	// Lockinfo carries the opaque per-fd lock-ownership blob a graph
	// switch migrates forward onto the new descriptor (§4.4 step 4,
	// Design Notes §9: treated as an opaque byte vector, never
	// interpreted by the storage engine).
	Lockinfo = "glusterfs.lockinfo"
)

// Computed keys: synthesized from filesystem/inode state on read, never
// stored on disk.
const (
	ComputedPathFromGFID = "glusterfs.gfid2path" // full canonical path for a GFID
	ComputedNodeUUID     = "trusted.glusterfs.node-uuid"
	ComputedParentPaths  = "glusterfs.pathinfo" // list of all parent paths via pgfid.*
	ComputedOpenFDCount  = "glusterfs.open-fd-count"
)

// Sideband-requested keys: carried in xdata on the request, interpreted
// as an imperative by the storage engine.
const (
	ReqLinkCount           = "link-count"
	ReqDHTIattInXdata      = "dht.iatt-in-xdata"
	ReqDurable             = "durable"
	ReqPreopParentKey      = "glusterfs.preop.parent.key"
	ReqSkipOpenFDUnlink    = "skip-open-fd-unlink"
	ReqWriteIsAppend       = "write-is-append"
	ReqUpdateAtomic        = "update-atomic"
	ReqRchecksumZeroFlag   = "rchecksum.zero-flag"
	ReqBulkRemoveXattrList = "" // bulk removexattr carries its list under the empty name
)

// disallowed xattrs can never be removed via removexattr, individually or
// as part of a bulk batch (§4.3).
var disallowed = map[string]bool{
	GFID:     true,
	VolumeID: true,
}

// Disallowed reports whether key may never be removed by a caller.
func Disallowed(key string) bool {
	return disallowed[key]
}

// PGFIDKey builds the trusted.pgfid.<PARENT_GFID> key for parent g.
func PGFIDKey(parent gfid.GFID) string {
	return pgfidPrefix + parent.Canonical()
}

// IsPGFIDKey reports whether key is a pgfid counter key, returning the
// parent GFID it names.
func IsPGFIDKey(key string) (gfid.GFID, bool) {
	if !strings.HasPrefix(key, pgfidPrefix) {
		return gfid.GFID{}, false
	}
	g, err := gfid.Parse(strings.TrimPrefix(key, pgfidPrefix))
	if err != nil {
		return gfid.GFID{}, false
	}
	return g, true
}

// Gfid2pathHash computes the HASH disambiguator used in
// trusted.gfid2path.<HASH>, over pargfid+sep+basename, per SPEC_FULL §4:
// FNV-1a truncated to 8 hex digits (bounded, so the xattr name never grows
// with basename length the way the value does).
func Gfid2pathHash(parent gfid.GFID, sep, basename string) string {
	h := fnv.New32a()
	_, _ = h.Write(parent.Bytes())
	_, _ = h.Write([]byte(sep))
	_, _ = h.Write([]byte(basename))
	return fmt.Sprintf("%08x", h.Sum32())
}

// Gfid2pathKey builds the trusted.gfid2path.<HASH> key for the link from
// parent via basename.
func Gfid2pathKey(parent gfid.GFID, sep, basename string) string {
	return gfid2pathPrefix + Gfid2pathHash(parent, sep, basename)
}

// Gfid2pathPrefix exposes the prefix for callers that need to enumerate
// every gfid2path.* attribute on an object (e.g. during rename cleanup).
func Gfid2pathPrefix() string { return gfid2pathPrefix }

// Gfid2pathValue formats the value stored at a gfid2path.<HASH> key:
// "<pargfid_canonical><SEP><basename>".
func Gfid2pathValue(parent gfid.GFID, sep, basename string) string {
	return parent.Canonical() + sep + basename
}

// IsACLKey reports whether key belongs to the POSIX-ACL namespace, which
// is exempt from the "trusted." prefix requirement (§3).
func IsACLKey(key string) bool {
	return strings.HasPrefix(key, "system.posix_acl_")
}
