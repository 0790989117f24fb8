package xlator

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// NodeSpec describes one translator node as parsed from a volfile: a type
// string, a name, and its typed options (§4.4).
type NodeSpec struct {
	Type     string
	Name     string
	Options  map[string]string
	Children []string // names of child nodes, in wind order
}

// Graph is a static DAG of translator nodes, as parsed. It is immutable
// once built; a "new graph" in the lifecycle state machine is always a
// freshly parsed Graph, never a mutation of an existing one.
type Graph struct {
	ID    uint64 // monotonically increasing, assigned at parse time
	Nodes map[string]*NodeSpec
	Root  string // name of the top-level (root) node
}

// SameTopology reports whether g and other have identical node types,
// names and child wiring - everything except option values. This is the
// test the lifecycle state machine uses to decide reconfigure vs.
// reconstruct (§4.4).
func (g *Graph) SameTopology(other *Graph) bool {
	if len(g.Nodes) != len(other.Nodes) {
		return false
	}
	for name, n := range g.Nodes {
		on, ok := other.Nodes[name]
		if !ok || on.Type != n.Type {
			return false
		}
		if len(on.Children) != len(n.Children) {
			return false
		}
		for i, c := range n.Children {
			if on.Children[i] != c {
				return false
			}
		}
	}
	return g.Root == other.Root
}

// DiffOptions returns the set of (node, option) pairs whose values differ
// between g and other, for nodes present in both by name. Used by a
// reconfigure to report how many nodes' options changed.
func (g *Graph) DiffOptions(other *Graph) map[string][]string {
	diffs := make(map[string][]string)
	for name, n := range g.Nodes {
		on, ok := other.Nodes[name]
		if !ok {
			continue
		}
		var changed []string
		keys := make(map[string]bool, len(n.Options)+len(on.Options))
		for k := range n.Options {
			keys[k] = true
		}
		for k := range on.Options {
			keys[k] = true
		}
		for k := range keys {
			if n.Options[k] != on.Options[k] {
				changed = append(changed, k)
			}
		}
		if len(changed) > 0 {
			diffs[name] = changed
		}
	}
	return diffs
}

func (g *Graph) String() string {
	if g == nil {
		return "graph(nil)"
	}
	return fmt.Sprintf("graph(%d)", g.ID)
}

var graphIDSeq uint64

// NextGraphID hands out monotonically increasing graph identities, used
// to order STAGED graphs and to label snapshots in logs.
func NextGraphID() uint64 {
	return atomic.AddUint64(&graphIDSeq, 1)
}

// GraphSnapshot is the versioned, immutable-snapshot handle the Design
// Notes (§9) call for in place of a raw process-wide graph pointer:
// request handlers acquire a reference on entry (via Acquire) and release
// it on exit (Frame.Release calls this); the switcher publishes a new
// snapshot and waits for an old one's refcount to fall to zero before
// tearing it down.
type GraphSnapshot struct {
	Graph *Graph

	mu       sync.Mutex
	refs     int64
	zeroCh   chan struct{} // closed exactly once, when refs hits zero after retire
	retired  bool
	retireCb func()
}

// NewGraphSnapshot wraps g as a fresh, live snapshot with zero references.
func NewGraphSnapshot(g *Graph) *GraphSnapshot {
	return &GraphSnapshot{Graph: g, zeroCh: make(chan struct{})}
}

// Acquire takes a reference, keeping the snapshot from being torn down
// while in-flight requests still hold it. Returns false if the snapshot
// has already been fully retired and drained (callers must re-fetch the
// current snapshot and retry).
func (s *GraphSnapshot) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired && s.refs == 0 {
		return false
	}
	s.refs++
	return true
}

// release drops a reference; if the snapshot has been retired and this
// was the last reference, the zero-channel is closed and the retire
// callback (if any) runs.
func (s *GraphSnapshot) release() {
	s.mu.Lock()
	s.refs--
	if s.refs < 0 {
		panic("xlator: GraphSnapshot refcount underflow")
	}
	drained := s.retired && s.refs == 0
	s.mu.Unlock()
	if drained {
		s.signalDrained()
	}
}

func (s *GraphSnapshot) signalDrained() {
	s.mu.Lock()
	cb := s.retireCb
	select {
	case <-s.zeroCh:
		// already closed
	default:
		close(s.zeroCh)
	}
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Retire marks the snapshot as no longer the active one; once the last
// held reference is released, onDrained runs (the old-graph parent-down
// event of §4.4: "old-graph parent-down is issued only when the old
// graph's wind counter reaches zero").
func (s *GraphSnapshot) Retire(onDrained func()) {
	s.mu.Lock()
	s.retired = true
	s.retireCb = onDrained
	drained := s.refs == 0
	s.mu.Unlock()
	if drained {
		s.signalDrained()
	}
}

// Drained returns a channel closed once the snapshot has been retired and
// every reference released.
func (s *GraphSnapshot) Drained() <-chan struct{} {
	return s.zeroCh
}

func (s *GraphSnapshot) String() string {
	if s == nil || s.Graph == nil {
		return "graph(nil)"
	}
	return fmt.Sprintf("graph(%d)", s.Graph.ID)
}
