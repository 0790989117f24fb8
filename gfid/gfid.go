// Package gfid implements the 128-bit object identifier used throughout
// the brick: generation, canonical string form, and extraction from the
// raw xattr bytes.
package gfid

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Size is the length in bytes of a GFID's raw, on-disk form.
const Size = 16

// GFID is a 128-bit identifier, uniformly random except for Root.
type GFID [Size]byte

// Root is the reserved GFID of the brick's root directory: "0...01".
var Root = GFID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

// New generates a fresh, uniformly random GFID using a UUIDv4's random
// payload as the 16 raw bytes (the GFID has no version/variant structure
// of its own - it is simply 128 random bits - but a UUIDv4 generator is a
// convenient, already-vetted source of them).
func New() GFID {
	var g GFID
	copy(g[:], uuid.New()[:])
	return g
}

// FromBytes validates that b is exactly Size bytes and returns it as a
// GFID. The spec's open question on corrupt trusted.gfid values (§9) is
// resolved here: any length other than Size is corruption, reported to
// the caller as an error rather than silently truncated or padded.
func FromBytes(b []byte) (GFID, error) {
	var g GFID
	if len(b) != Size {
		return g, fmt.Errorf("gfid: malformed value: got %d bytes, want %d", len(b), Size)
	}
	copy(g[:], b)
	return g, nil
}

// Bytes returns the raw 16-byte form, suitable for writing as the
// trusted.gfid xattr value.
func (g GFID) Bytes() []byte {
	return g[:]
}

// IsRoot reports whether g is the reserved root GFID.
func (g GFID) IsRoot() bool {
	return g == Root
}

// IsZero reports whether g is the all-zero GFID (never a valid object
// identity; used as a sentinel for "not yet assigned").
func (g GFID) IsZero() bool {
	return g == GFID{}
}

// Canonical renders the GFID in the canonical hyphenated hex form used as
// the handle path's final path component, e.g.
// "12345678-1234-1234-1234-123456789abc".
func (g GFID) Canonical() string {
	var buf bytes.Buffer
	hexEncode(&buf, g[0:4])
	buf.WriteByte('-')
	hexEncode(&buf, g[4:6])
	buf.WriteByte('-')
	hexEncode(&buf, g[6:8])
	buf.WriteByte('-')
	hexEncode(&buf, g[8:10])
	buf.WriteByte('-')
	hexEncode(&buf, g[10:16])
	return buf.String()
}

func hexEncode(buf *bytes.Buffer, b []byte) {
	dst := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(dst, b)
	buf.Write(dst)
}

// String implements fmt.Stringer, used by the logging shim.
func (g GFID) String() string {
	return g.Canonical()
}

// Parse parses the canonical hyphenated hex form back into a GFID.
func Parse(s string) (GFID, error) {
	clean := make([]byte, 0, 32)
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			continue
		}
		clean = append(clean, s[i])
	}
	if len(clean) != 32 {
		return GFID{}, fmt.Errorf("gfid: malformed canonical string %q", s)
	}
	var raw [16]byte
	if _, err := hex.Decode(raw[:], clean); err != nil {
		return GFID{}, fmt.Errorf("gfid: malformed canonical string %q: %w", s, err)
	}
	return GFID(raw), nil
}

// FanoutDirs returns the two hex-byte directory names used by the
// handle layer's two-level fanout: g[0] and g[1], each rendered as two
// lowercase hex digits (e.g. "af", "03").
func (g GFID) FanoutDirs() (first, second string) {
	return fmt.Sprintf("%02x", g[0]), fmt.Sprintf("%02x", g[1])
}
