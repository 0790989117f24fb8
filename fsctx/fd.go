package fsctx

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/gluster/glusterfs-sub002/gfid"
)

// FD is the open-descriptor record (the "pfd" of §3): an OS file
// descriptor paired with its open flags, an optional directory handle, an
// end-of-directory offset, and a link used to enqueue it for deferred
// janitor cleanup.
//
// The teacher's C struct keeps two distinct context slots per descriptor
// (one for the storage engine's pfd, one for the FUSE bridge's "active
// fd" pointer used during a graph switch, §4.7); since the FUSE bridge is
// out of scope here (§1), both collapse onto this single struct, with
// Active playing the bridge's role for migration (§4.4).
type FD struct {
	ID    uint64
	GFID  gfid.GFID
	File  *os.File
	Flags int

	IsDir     bool
	dirMu     sync.Mutex
	dirOffset int64
	dirEOF    bool

	// Stale is set when a graph-switch migration failed for this
	// descriptor (§4.4); subsequent operations return ErrFDStale.
	Stale atomic.Bool

	// Active points at whichever underlying FD should actually serve
	// the next operation. Initially an FD is its own Active; a
	// successful migration swaps every caller-visible reference's
	// Active to the freshly opened descriptor in the new graph, leaving
	// the old FD's Active pointing forward so in-flight holders of the
	// stale pointer still reach the live one (§4.4 step 3).
	activeMu sync.RWMutex
	active   *FD

	// janitorNext is a link field for an intrusive deferred-close list.
	// Nothing sets it: the janitor queues released descriptors on its own
	// channel (§4.7: "Context removal runs the release path, which
	// enqueues the OS descriptor to the janitor").
	janitorNext *FD
}

// NewFD wraps an *os.File as a pfd, initially active on itself.
func NewFD(g gfid.GFID, f *os.File, flags int, isDir bool) *FD {
	fd := &FD{ID: nextFDID(), GFID: g, File: f, Flags: flags, IsDir: isDir}
	fd.active = fd
	return fd
}

var fdIDSeq uint64

func nextFDID() uint64 { return atomic.AddUint64(&fdIDSeq, 1) }

// Resolve returns whichever FD should currently serve operations issued
// against this caller-visible descriptor, following the active chain
// installed by migration.
func (f *FD) Resolve() *FD {
	f.activeMu.RLock()
	a := f.active
	f.activeMu.RUnlock()
	if a == f {
		return f
	}
	return a.Resolve()
}

// SetActive installs newActive as the descriptor that future operations
// on f should use (§4.4 step 3).
func (f *FD) SetActive(newActive *FD) {
	f.activeMu.Lock()
	f.active = newActive
	f.activeMu.Unlock()
}

// DirOffset returns the last reported d_off for a directory descriptor,
// and whether end-of-directory is latched.
func (f *FD) DirOffset() (offset int64, eof bool) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()
	return f.dirOffset, f.dirEOF
}

// SetDirOffset records the resume offset. Once eof is latched true it
// stays true: "End-of-directory is sticky: once reported, re-seeking to
// the stored EOF offset yields empty, not an error" (§4.1).
func (f *FD) SetDirOffset(offset int64, eof bool) {
	f.dirMu.Lock()
	f.dirOffset = offset
	f.dirEOF = f.dirEOF || eof
	f.dirMu.Unlock()
}

// FDTable owns every open FD for a brick, keyed by ID, giving O(1) lookup
// (§4.7) and a release path that enqueues the OS descriptor to the
// janitor instead of closing it inline.
type FDTable struct {
	mu      sync.Mutex
	byID    map[uint64]*FD
	enqueue func(*FD) // janitor hook; nil closes inline (used in tests)
}

// NewFDTable builds an empty table. enqueueForClose is called by Release
// instead of closing the fd synchronously, so close latency never shows
// up on the calling goroutine (§4.5).
func NewFDTable(enqueueForClose func(*FD)) *FDTable {
	return &FDTable{byID: make(map[uint64]*FD), enqueue: enqueueForClose}
}

// Install adds fd to the table.
func (t *FDTable) Install(fd *FD) {
	t.mu.Lock()
	t.byID[fd.ID] = fd
	t.mu.Unlock()
}

// Get returns the FD for id, if still open.
func (t *FDTable) Get(id uint64) (*FD, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd, ok := t.byID[id]
	return fd, ok
}

// Release removes fd from the table and hands it to the janitor for
// closing (§4.7, §4.5).
func (t *FDTable) Release(id uint64) {
	t.mu.Lock()
	fd, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if t.enqueue != nil {
		t.enqueue(fd)
	} else {
		_ = fd.File.Close()
	}
}

// All returns a snapshot slice of every currently open FD, used by graph
// switch migration to walk every descriptor against the old graph
// (§4.4).
func (t *FDTable) All() []*FD {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*FD, 0, len(t.byID))
	for _, fd := range t.byID {
		out = append(out, fd)
	}
	return out
}

// Len reports the number of open descriptors.
func (t *FDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
