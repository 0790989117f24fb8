package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/xlator"
)

// State names one node of the ACTIVE/STAGED/SWITCHING state machine
// (§4.4).
type State int

const (
	StateActive State = iota
	StateStaged
	StateSwitching
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateStaged:
		return "STAGED"
	case StateSwitching:
		return "SWITCHING"
	default:
		return "?"
	}
}

// Migrator moves every open descriptor and blocked lock from oldGraph
// onto newGraph (§4.4 "Descriptor migration"). BrickMigrator in
// migrate.go is the storage engine's implementation.
type Migrator interface {
	MigrateAll(ctx context.Context, oldGraph, newGraph *xlator.Graph) error
}

// Switcher drives one brick's graph lifecycle state machine (§4.4):
//
//	ACTIVE  --new graph parsed-->        STAGED
//	STAGED  --first event from new graph--> SWITCHING
//	SWITCHING --all fds/locks migrated--> ACTIVE'
//
// Request handlers never see the state machine directly; they call
// Current to get whichever snapshot is live, take a reference on it with
// GraphSnapshot.Acquire, and release it through Frame.Release when their
// reply is produced.
type Switcher struct {
	migrator Migrator

	mu      sync.Mutex
	state   State
	current *xlator.GraphSnapshot
	staged  *xlator.Graph
}

// NewSwitcher starts the state machine ACTIVE on initial.
func NewSwitcher(initial *xlator.Graph, migrator Migrator) *Switcher {
	return &Switcher{
		migrator: migrator,
		state:    StateActive,
		current:  xlator.NewGraphSnapshot(initial),
	}
}

// Current returns the live snapshot.
func (s *Switcher) Current() *xlator.GraphSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State reports the state machine's current node.
func (s *Switcher) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stage installs g as the pending replacement graph (§4.4 "new graph
// parsed"), moving ACTIVE -> STAGED. Only one graph may be staged at a
// time; a second Stage before the first Switch is rejected.
func (s *Switcher) Stage(g *xlator.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return fmt.Errorf("lifecycle: cannot stage a new graph while in state %s", s.state)
	}
	s.staged = g
	s.state = StateStaged
	return nil
}

// Switch activates the staged graph (§4.4 "first event from new
// graph"). Same-topology graphs reconfigure in place; anything else
// reconstructs, publishing a fresh snapshot immediately and migrating
// every open descriptor onto it in the background.
func (s *Switcher) Switch(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStaged {
		s.mu.Unlock()
		return fmt.Errorf("lifecycle: cannot switch while in state %s", s.state)
	}
	staged := s.staged
	old := s.current
	s.mu.Unlock()

	if old.Graph.SameTopology(staged) {
		return s.reconfigure(old, staged)
	}
	return s.reconstruct(ctx, old, staged)
}

// reconfigure applies a same-topology graph without descriptor
// migration (§4.4 "the core reconfigures in place"): the new option
// values take effect immediately via a fresh snapshot, and the old one
// is dropped with no drain to wait for, since nothing it owns changes
// identity.
func (s *Switcher) reconfigure(old *xlator.GraphSnapshot, staged *xlator.Graph) error {
	diffs := old.Graph.DiffOptions(staged)
	gfs.Logf(staged, "reconfiguring graph %d in place (%d node(s) changed)", old.Graph.ID, len(diffs))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = xlator.NewGraphSnapshot(staged)
	s.staged = nil
	s.state = StateActive
	return nil
}

// reconstruct is the topology-changing path: a new inode table belongs
// to the new graph's owner (the caller is expected to have built one
// when constructing staged), the new snapshot is published so new
// requests stop landing on the old graph, and every already-open
// descriptor is migrated onto the new graph on a dedicated goroutine so
// the dispatcher itself never blocks on migration (§4.4 "performed on a
// dedicated background task so the dispatcher remains responsive").
func (s *Switcher) reconstruct(ctx context.Context, old *xlator.GraphSnapshot, staged *xlator.Graph) error {
	s.mu.Lock()
	s.state = StateSwitching
	next := xlator.NewGraphSnapshot(staged)
	s.current = next
	s.staged = nil
	s.mu.Unlock()

	gfs.Logf(staged, "switching from graph %d to graph %d", old.Graph.ID, staged.ID)

	go func() {
		if err := s.migrator.MigrateAll(ctx, old.Graph, staged); err != nil {
			gfs.Errorf(staged, "descriptor migration from graph %d to %d had errors: %v", old.Graph.ID, staged.ID, err)
		}
		s.mu.Lock()
		s.state = StateActive
		s.mu.Unlock()
		// Old-graph parent-down: wait for every frame still holding the
		// old snapshot to release it, then it's torn down (§4.4).
		old.Retire(func() {
			gfs.Logf(staged, "old graph %d fully drained, torn down", old.Graph.ID)
		})
	}()

	return nil
}
