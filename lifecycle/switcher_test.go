package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/xlator"
)

type fakeMigrator struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	failAll bool
}

func (f *fakeMigrator) MigrateAll(ctx context.Context, oldGraph, newGraph *xlator.Graph) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return nil
}

func simpleGraph(t *testing.T, rootType string) *xlator.Graph {
	t.Helper()
	g, err := ParseGraph([]byte(`
root: top
nodes:
  top:
    type: ` + rootType + `
    subvolumes: [leaf]
  leaf:
    type: storage/posix
`))
	require.NoError(t, err)
	return g
}

func TestNewSwitcherStartsActive(t *testing.T) {
	initial := simpleGraph(t, "posix")
	s := NewSwitcher(initial, &fakeMigrator{})
	assert.Equal(t, StateActive, s.State())
	assert.Same(t, initial, s.Current().Graph)
}

func TestStageMovesToStaged(t *testing.T) {
	s := NewSwitcher(simpleGraph(t, "posix"), &fakeMigrator{})
	require.NoError(t, s.Stage(simpleGraph(t, "posix")))
	assert.Equal(t, StateStaged, s.State())
}

func TestStageRejectedWhileAlreadyStaged(t *testing.T) {
	s := NewSwitcher(simpleGraph(t, "posix"), &fakeMigrator{})
	require.NoError(t, s.Stage(simpleGraph(t, "posix")))
	err := s.Stage(simpleGraph(t, "posix"))
	assert.Error(t, err)
}

func TestSwitchRejectedWithoutStage(t *testing.T) {
	s := NewSwitcher(simpleGraph(t, "posix"), &fakeMigrator{})
	err := s.Switch(context.Background())
	assert.Error(t, err)
}

func TestSwitchSameTopologyReconfiguresWithoutMigration(t *testing.T) {
	m := &fakeMigrator{}
	initial := simpleGraph(t, "posix")
	s := NewSwitcher(initial, m)

	staged := simpleGraph(t, "posix") // identical topology, fresh ID
	require.NoError(t, s.Stage(staged))
	require.NoError(t, s.Switch(context.Background()))

	assert.Equal(t, StateActive, s.State())
	assert.Same(t, staged, s.Current().Graph)
	m.mu.Lock()
	assert.Equal(t, 0, m.calls, "same-topology switch must not migrate descriptors")
	m.mu.Unlock()
}

func TestSwitchDifferentTopologyReconstructsAndMigrates(t *testing.T) {
	m := &fakeMigrator{}
	initial := simpleGraph(t, "posix")
	s := NewSwitcher(initial, m)

	staged := simpleGraph(t, "changed-type")
	require.NoError(t, s.Stage(staged))
	require.NoError(t, s.Switch(context.Background()))

	assert.Same(t, staged, s.Current().Graph)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.calls == 1
	}, time.Second, 5*time.Millisecond, "reconstruct should migrate descriptors in the background")
	require.Eventually(t, func() bool {
		return s.State() == StateActive
	}, time.Second, 5*time.Millisecond, "state returns to ACTIVE once migration finishes")
}

func TestSwitchPublishesNewSnapshotBeforeMigrationCompletes(t *testing.T) {
	block := make(chan struct{})
	m := &fakeMigrator{block: block}
	initial := simpleGraph(t, "posix")
	s := NewSwitcher(initial, m)

	staged := simpleGraph(t, "changed-type")
	require.NoError(t, s.Stage(staged))
	require.NoError(t, s.Switch(context.Background()))

	// The new snapshot must already be live even though migration is
	// still blocked - the dispatcher never waits on it.
	assert.Same(t, staged, s.Current().Graph)
	close(block)
}
