package posix

import (
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"os"
)

// Rchecksum is the reply to an rchecksum request (§4.1): a weak rolling
// checksum and a strong checksum over the requested region, plus whether
// the region was found to be entirely zero.
type Rchecksum struct {
	Weak       uint32
	Strong     []byte
	RegionZero bool
}

// rollingWeakSum computes a constant-time rolling checksum the way an
// rsync-style weak checksum works: two accumulators over the byte
// stream, combined into a 32-bit value. It is not required to be
// rsync's exact algorithm, only to be a genuine rolling sum rather than
// a whole-buffer hash recomputed from scratch (§4.1: "a constant-time
// rolling sum").
func rollingWeakSum(data []byte) uint32 {
	var a, b uint32
	for _, c := range data {
		a += uint32(c)
		b += a
	}
	return a | (b << 16)
}

// computeRchecksum computes the weak and strong checksums over [offset,
// offset+length) of the file backing fd, plus the all-zero flag (§4.1,
// §6). fipsMode selects SHA-256 in place of MD5 for the strong checksum.
func computeRchecksum(f *os.File, offset, length int64, fipsMode bool) (Rchecksum, error) {
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return Rchecksum{}, err
	}
	buf = buf[:n]

	var strong hash.Hash
	if fipsMode {
		strong = sha256.New()
	} else {
		strong = md5.New()
	}
	_, _ = strong.Write(buf)

	allZero := true
	for _, c := range buf {
		if c != 0 {
			allZero = false
			break
		}
	}

	return Rchecksum{
		Weak:       rollingWeakSum(buf),
		Strong:     strong.Sum(nil),
		RegionZero: allZero,
	}, nil
}
