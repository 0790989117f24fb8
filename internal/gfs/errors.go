package gfs

import (
	"syscall"

	"github.com/pkg/errors"
)

// Kind identifies one of the engine-originated error kinds from the
// taxonomy (spec §7). It is distinct from the POSIX errno that gets
// returned to the caller: several kinds can share an errno (ErrBusy and a
// plain EBUSY from the kernel both surface as syscall.EBUSY) but callers
// that want to distinguish "the engine refused this on purpose" from "the
// kernel refused this" switch on Kind.
type Kind int

const (
	KindNone Kind = iota
	KindStaleHandle
	KindPreopCheckFailed
	KindNoSpace
	KindNoSuchXattr
	KindXattrNotSupported
	KindDisallowed
	KindBusy
	KindMaxHardlinks
	KindFDStale
	KindBackendIll
)

func (k Kind) String() string {
	switch k {
	case KindStaleHandle:
		return "stale-handle"
	case KindPreopCheckFailed:
		return "preop-check-failed"
	case KindNoSpace:
		return "no-space"
	case KindNoSuchXattr:
		return "no-such-xattr"
	case KindXattrNotSupported:
		return "xattr-not-supported"
	case KindDisallowed:
		return "disallowed"
	case KindBusy:
		return "busy"
	case KindMaxHardlinks:
		return "max-hardlinks"
	case KindFDStale:
		return "fd-stale"
	case KindBackendIll:
		return "backend-ill"
	default:
		return "none"
	}
}

// Error is an engine-originated error: a Kind, the errno it maps to for
// the op_ret/op_errno reply pair (§6), and the immediate cause.
type Error struct {
	Kind  Kind
	Errno syscall.Errno
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind wrapping cause (cause may be nil).
func New(kind Kind, errno syscall.Errno, cause error) *Error {
	return &Error{Kind: kind, Errno: errno, cause: cause}
}

// Wrap is New with errors.Wrap-style context added to the cause first.
func Wrap(kind Kind, errno syscall.Errno, cause error, context string) *Error {
	return &Error{Kind: kind, Errno: errno, cause: errors.Wrap(cause, context)}
}

var (
	// ErrStaleHandle: GFID resolved to nothing, or the resolved object's
	// GFID differs from the one the caller expected.
	ErrStaleHandle = New(KindStaleHandle, syscall.ESTALE, nil)
	// ErrPreopCheckFailed: the mkdir parent-xattr precondition (§4.1
	// step 2) didn't hold.
	ErrPreopCheckFailed = New(KindPreopCheckFailed, syscall.EIO, nil)
	// ErrNoSpace: the disk-reserve threshold was crossed, or the backend
	// itself ran out of space.
	ErrNoSpace = New(KindNoSpace, syscall.ENOSPC, nil)
	// ErrNoSuchXattr: attribute absent.
	ErrNoSuchXattr = New(KindNoSuchXattr, syscall.ENODATA, nil)
	// ErrXattrNotSupported: backend filesystem refuses extended
	// attributes outright.
	ErrXattrNotSupported = New(KindXattrNotSupported, syscall.ENOTSUP, nil)
	// ErrDisallowed: a disallow-listed xattr remove, or an engine-owned
	// xattr a caller tried to set directly.
	ErrDisallowed = New(KindDisallowed, syscall.EPERM, nil)
	// ErrBusy: unlink/write refused because open fds exist or an
	// internal writer is active.
	ErrBusy = New(KindBusy, syscall.EBUSY, nil)
	// ErrMaxHardlinks: the configured link cap (max-hardlinks) would be
	// exceeded.
	ErrMaxHardlinks = New(KindMaxHardlinks, syscall.EMLINK, nil)
	// ErrFDStale: a descriptor failed migration across a graph switch;
	// never put on the wire as an op_errno, only surfaced to the next
	// translator that tries to use the fd (§7).
	ErrFDStale = New(KindFDStale, 0, nil)
	// ErrBackendIll: the health check is failing; mutating ops are
	// refused until the next successful probe.
	ErrBackendIll = New(KindBackendIll, syscall.EIO, nil)
)

// Is lets callers use errors.Is(err, gfs.ErrStaleHandle) etc. without
// caring about the wrapped cause or errno, matching by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Errno extracts the POSIX errno an error should be reported as, for
// errors that didn't originate as a *gfs.Error (e.g. a raw *os.PathError).
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Errno
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
