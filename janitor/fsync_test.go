package janitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/gfid"
	"github.com/gluster/glusterfs-sub002/posix"
)

func TestNewFsyncerDefaultsDelay(t *testing.T) {
	b := openTestBrick(t)
	s := NewFsyncer(b)
	assert.Equal(t, 100*time.Millisecond, s.Delay)
}

func TestRunIsNoOpWhenModeNone(t *testing.T) {
	b := openTestBrick(t)
	s := NewFsyncer(b)
	s.Mode = posix.BatchFsyncNone

	done := make(chan struct{})
	go func() { s.Run(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Run should return immediately when Mode is none")
	}
}

func TestEnqueueThenDrainReverseFsyncsEveryFD(t *testing.T) {
	b := openTestBrick(t)
	s := NewFsyncer(b)
	s.Mode = posix.BatchFsyncReverse
	s.Delay = 5 * time.Millisecond

	f := openTempFile(t)
	fd := fsctx.NewFD(gfid.New(), f, os.O_RDWR, false)
	s.Enqueue(fd)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	// fsync on a plain temp file never errors under normal conditions;
	// this mainly exercises that drain() doesn't panic on a real fd.
	_, err := f.Stat()
	assert.NoError(t, err)
}

func TestDrainSkipsStaleFD(t *testing.T) {
	b := openTestBrick(t)
	s := NewFsyncer(b)
	s.Mode = posix.BatchFsyncReverse

	f := openTempFile(t)
	fd := fsctx.NewFD(gfid.New(), f, os.O_RDWR, false)
	fd.Stale.Store(true)
	require.NoError(t, f.Close()) // would error if fsyncOne tried to use it

	s.Enqueue(fd)
	s.drain() // must not panic or error despite the closed underlying file
}
