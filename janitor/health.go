package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/posix"
)

// HealthChecker probes the brick's backing filesystem every interval by
// writing, fsyncing, and reading back a timestamp file under
// .glusterfs/health_check, bounded by a hard per-cycle timeout (§4.5:
// "a hard timeout T bounds the entire cycle"). A failing cycle flips the
// brick into the degraded state, which refuses mutating operations until
// a cycle next succeeds (§4.5, §7).
type HealthChecker struct {
	Brick    *posix.Brick
	Interval time.Duration
	Timeout  time.Duration
}

// NewHealthChecker builds a checker from the brick's configured interval
// and timeout (seconds, §6), falling back to the defaults baked into
// posix.DefaultOptions if either is non-positive.
func NewHealthChecker(b *posix.Brick) *HealthChecker {
	interval := b.Opt.HealthCheckInterval
	if interval <= 0 {
		interval = 30
	}
	timeout := b.Opt.HealthCheckTimeout
	if timeout <= 0 {
		timeout = 20
	}
	return &HealthChecker{
		Brick:    b,
		Interval: time.Duration(interval) * time.Second,
		Timeout:  time.Duration(timeout) * time.Second,
	}
}

// Run loops until ctx is cancelled, probing once per Interval.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probeOnce(ctx)
		}
	}
}

// probeOnce runs a single write-fsync-read-close cycle, bounded by
// h.Timeout. The cycle itself runs on its own goroutine so a wedged
// filesystem (one that blocks forever on a syscall) cannot hang the
// checker's own loop; a timed-out cycle still flips degraded even though
// the stuck goroutine may never return.
func (h *HealthChecker) probeOnce(ctx context.Context) {
	done := make(chan error, 1)
	go func() { done <- h.cycle() }()

	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	select {
	case err := <-done:
		if err != nil {
			gfs.Warnf(h.Brick, "health check failed, marking brick degraded: %v", err)
			h.Brick.SetDegraded(true)
			return
		}
		h.Brick.SetDegraded(false)
	case <-cctx.Done():
		gfs.Warnf(h.Brick, "health check timed out after %s, marking brick degraded", h.Timeout)
		h.Brick.SetDegraded(true)
	}
}

func (h *HealthChecker) cycle() error {
	dir, err := h.Brick.Handle.HealthCheckDir()
	if err != nil {
		return err
	}
	p := filepath.Join(dir, uuid.New().String())

	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("janitor: health check open: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(p)
	}()

	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := f.Write(stamp); err != nil {
		return fmt.Errorf("janitor: health check write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("janitor: health check fsync: %w", err)
	}
	readBack := make([]byte, len(stamp))
	if _, err := f.ReadAt(readBack, 0); err != nil {
		return fmt.Errorf("janitor: health check read-back: %w", err)
	}
	if string(readBack) != string(stamp) {
		return fmt.Errorf("janitor: health check read-back mismatch")
	}
	return nil
}
