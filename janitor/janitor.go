// Package janitor implements the background-worker component (spec
// §4.5): the deferred fd/dir close queue, the landfill reaper, the
// health-check probe, the disk-reserve monitor, and the batched fsyncer.
// Each background task owns its own goroutine, the way the source gives
// each a dedicated thread (§5 "Scheduling model").
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/posix"
)

// Janitor drains released file descriptors and reaps landfill entries
// (§4.5, §4.7: "Context removal runs the release path, which enqueues
// the OS descriptor to the janitor").
type Janitor struct {
	Brick *posix.Brick

	fdQueue chan *fsctx.FD
	reap    chan struct{}

	wg sync.WaitGroup
}

// New builds a Janitor bound to brick. Pass Janitor.EnqueueFDClose as
// the brick's onFDClose hook at posix.Open time.
func New(b *posix.Brick) *Janitor {
	return &Janitor{
		Brick:   b,
		fdQueue: make(chan *fsctx.FD, 256),
		reap:    make(chan struct{}, 1),
	}
}

// EnqueueFDClose is the FDTable release hook: instead of closing fd on
// the calling goroutine, it's handed to the janitor's own worker so
// close latency never shows up on a request path.
func (j *Janitor) EnqueueFDClose(fd *fsctx.FD) {
	select {
	case j.fdQueue <- fd:
	default:
		// Queue full: close synchronously rather than block the
		// caller indefinitely or drop the descriptor.
		j.closeFD(fd)
	}
}

// TriggerLandfillReap wakes the landfill reaper immediately, instead of
// waiting for its next periodic tick (used right after an rmdir-into-
// trash so the common case doesn't wait a full interval).
func (j *Janitor) TriggerLandfillReap() {
	select {
	case j.reap <- struct{}{}:
	default:
	}
}

// Run starts every background loop and blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context, landfillInterval time.Duration) {
	j.wg.Add(2)
	go j.fdCloseLoop(ctx)
	go j.landfillLoop(ctx, landfillInterval)
	j.wg.Wait()
}

func (j *Janitor) fdCloseLoop(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case <-ctx.Done():
			j.drainFDQueue()
			return
		case fd := <-j.fdQueue:
			j.closeFD(fd)
		}
	}
}

func (j *Janitor) drainFDQueue() {
	for {
		select {
		case fd := <-j.fdQueue:
			j.closeFD(fd)
		default:
			return
		}
	}
}

func (j *Janitor) closeFD(fd *fsctx.FD) {
	if err := fd.File.Close(); err != nil {
		gfs.Errorf(fd.GFID, "janitor: close fd failed: %v", err)
	}
}

func (j *Janitor) landfillLoop(ctx context.Context, interval time.Duration) {
	defer j.wg.Done()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.reapLandfillOnce()
		case <-j.reap:
			j.reapLandfillOnce()
		}
	}
}

// reapLandfillOnce removes every entry currently staged under
// .glusterfs/landfill, best-effort (§4.1 rmdir-into-trash, §4.5).
func (j *Janitor) reapLandfillOnce() {
	dir, err := j.Brick.Handle.GlusterfsRoot()
	if err != nil {
		gfs.Errorf(j.Brick, "janitor: landfill root: %v", err)
		return
	}
	landfillDir := filepath.Join(dir, "landfill")
	entries, err := os.ReadDir(landfillDir)
	if err != nil {
		if !os.IsNotExist(err) {
			gfs.Errorf(j.Brick, "janitor: read landfill dir: %v", err)
		}
		return
	}
	for _, e := range entries {
		p := filepath.Join(landfillDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			gfs.Errorf(j.Brick, "janitor: reap landfill entry %s: %v", p, err)
		}
	}
}
