package posix

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/xattr"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
)

// XattropOp selects one of the atomic read-modify-write opcodes over a
// named xattr value (§4.1 "Xattrop").
type XattropOp int

const (
	XattropAddArray32 XattropOp = iota
	XattropAddArray32WithDefault
	XattropAddArray64
	XattropAddArray64WithDefault
	XattropGetAndSet
)

// Xattrop performs one atomic read-modify-write of path's key xattr,
// serialized by the inode's XattropLock, and returns the value as it was
// immediately before the mutation (§4.1, §8 property 5).
//
// On-disk values shorter than the operand requires, or not an exact
// multiple of the element size, are treated as zero-padded on the right
// out to the required length - this rewrite's resolution of the open
// question on non-aligned xattrop values (§9). A misaligned incoming
// operand is the caller's error, not ours to guess at, and is rejected.
func Xattrop(ic *fsctx.InodeContext, path, key string, op XattropOp, operand []byte) (prior []byte, err error) {
	ic.XattropLock.Lock()
	defer ic.XattropLock.Unlock()

	switch op {
	case XattropAddArray32:
		return xattropAddArray(path, key, operand, 4, false)
	case XattropAddArray64:
		return xattropAddArray(path, key, operand, 8, false)
	case XattropAddArray32WithDefault:
		return xattropAddArray(path, key, operand, 4, true)
	case XattropAddArray64WithDefault:
		return xattropAddArray(path, key, operand, 8, true)
	case XattropGetAndSet:
		return xattropGetAndSet(path, key, operand)
	default:
		return nil, fmt.Errorf("posix: unknown xattrop opcode %d", op)
	}
}

func readCurrentOrNil(path, key string) ([]byte, error) {
	v, err := xattr.LGet(path, key)
	if err != nil {
		if xattr.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// padTo zero-extends b on the right to exactly n bytes.
func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func xattropAddArray(path, key string, operand []byte, elemSize int, withDefault bool) (prior []byte, err error) {
	if withDefault {
		if len(operand)%(2*elemSize) != 0 {
			return nil, fmt.Errorf("posix: xattrop operand length %d not a multiple of %d", len(operand), 2*elemSize)
		}
	} else if len(operand)%elemSize != 0 {
		return nil, fmt.Errorf("posix: xattrop operand length %d not a multiple of %d", len(operand), elemSize)
	}

	n := len(operand)
	if withDefault {
		n /= 2
	}
	nElems := n / elemSize

	current, err := readCurrentOrNil(path, key)
	if err != nil {
		return nil, err
	}
	current = padTo(current, n)
	prior = append([]byte(nil), current...)

	result := make([]byte, n)
	for i := 0; i < nElems; i++ {
		off := i * elemSize
		curVal := readElem(current[off:off+elemSize], elemSize)
		var newVal int64
		if withDefault {
			newOperand := readElem(operand[off:off+elemSize], elemSize)
			defOperand := readElem(operand[n+off:n+off+elemSize], elemSize)
			if curVal == 0 {
				newVal = newOperand + defOperand
			} else {
				newVal = curVal + newOperand
			}
		} else {
			newVal = curVal + readElem(operand[off:off+elemSize], elemSize)
		}
		writeElem(result[off:off+elemSize], elemSize, newVal)
	}

	if err := xattr.LSet(path, key, result); err != nil {
		return nil, fmt.Errorf("posix: xattrop set %s on %s: %w", key, path, err)
	}
	return prior, nil
}

func readElem(b []byte, elemSize int) int64 {
	if elemSize == 4 {
		return int64(int32(binary.BigEndian.Uint32(b)))
	}
	return int64(binary.BigEndian.Uint64(b))
}

func writeElem(b []byte, elemSize int, v int64) {
	if elemSize == 4 {
		binary.BigEndian.PutUint32(b, uint32(int32(v)))
		return
	}
	binary.BigEndian.PutUint64(b, uint64(v))
}

func xattropGetAndSet(path, key string, newValue []byte) (prior []byte, err error) {
	prior, err = readCurrentOrNil(path, key)
	if err != nil {
		return nil, err
	}
	if err := xattr.LSet(path, key, newValue); err != nil {
		return nil, fmt.Errorf("posix: xattrop get-and-set %s on %s: %w", key, path, err)
	}
	return prior, nil
}

// logXattropFailure records, without failing anything, a best-effort
// xattrop attempt that went wrong. Nothing in this package calls it.
func logXattropFailure(path, key string, err error) {
	gfs.Debugf(path, "xattrop on %s failed: %v", key, err)
}
