package xlator

import "time"

// Credentials carries the caller identity a Frame is issued under (§4.6).
type Credentials struct {
	UID    uint32
	GID    uint32
	Groups []uint32
	PID    int32
	// LockOwner is an opaque blob; the storage engine never interprets
	// it, only stores and forwards it (Design Notes §9: "Lock ownership
	// information is an opaque blob... treat as an opaque byte vector").
	LockOwner []byte
}

// Frame is the per-call record threaded through a Stack (§4.6). Unlike
// the teacher's callback-threaded C frames, Reply is a plain value
// produced by whichever translator terminates the request - there is no
// captured closure (Design Notes §9: "Reshape as explicit request/response
// values produced and consumed by each translator in turn").
type Frame struct {
	Op      Op
	Creds   Credentials
	Xdata   Xdata
	Started time.Time

	// Graph is an immutable reference to the GraphSnapshot this frame
	// was issued against, captured on entry (Design Notes §9's
	// versioned-snapshot pattern). Held for the frame's lifetime so
	// that in-flight operations keep running against a consistent graph
	// even if a switch is published concurrently.
	Graph *GraphSnapshot
}

// Release drops the frame's reference to its graph snapshot. Callers call
// this exactly once when the request's reply has been produced.
func (f *Frame) Release() {
	if f.Graph != nil {
		f.Graph.release()
		f.Graph = nil
	}
}

// Reply is the value a terminal translator produces; it travels back up
// the Stack unchanged except for Xdata, which intermediate translators may
// merge additional reported keys into (§4.6).
type Reply struct {
	OpRet   int64
	OpErrno int32
	Xdata   Xdata
}

// Ok builds a success Reply (op_ret >= 0).
func Ok(ret int64, xdata Xdata) Reply {
	return Reply{OpRet: ret, Xdata: xdata}
}

// Fail builds a failure Reply (op_ret == -1, op_errno == errno), per the
// (op_ret, op_errno) convention in §6.
func Fail(errno int32) Reply {
	return Reply{OpRet: -1, OpErrno: errno}
}
