package janitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/posix"
)

// reserveCheckInterval is how often the disk-reserve monitor restats the
// brick's filesystem (§4.5: "periodically statvfs the brick").
const reserveCheckInterval = 10 * time.Second

// ReserveMonitor periodically statvfs's the brick root and caches a
// "full" flag on the brick once free space falls under the configured
// threshold, which can be a percentage of total space or an absolute
// byte count (§4.5, §6 "reserve").
type ReserveMonitor struct {
	Brick   *posix.Brick
	Percent float64 // 0 if unset
	Bytes   uint64  // 0 if unset
}

// ParseReserve parses the "reserve" option: either "<N>%" or a plain
// byte count. An empty string disables the monitor entirely.
func ParseReserve(s string) (percent float64, bytes uint64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	if strings.HasSuffix(s, "%") {
		v, perr := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("janitor: invalid reserve percentage %q: %w", s, perr)
		}
		return v, 0, nil
	}
	v, perr := strconv.ParseUint(s, 10, 64)
	if perr != nil {
		return 0, 0, fmt.Errorf("janitor: invalid reserve byte count %q: %w", s, perr)
	}
	return 0, v, nil
}

// NewReserveMonitor builds a monitor from the brick's configured reserve
// string. Returns a monitor with both thresholds zero (meaning: never
// trips) if the option is unset.
func NewReserveMonitor(b *posix.Brick) (*ReserveMonitor, error) {
	pct, bytes, err := ParseReserve(b.Opt.Reserve)
	if err != nil {
		return nil, err
	}
	return &ReserveMonitor{Brick: b, Percent: pct, Bytes: bytes}, nil
}

// Run loops until ctx is cancelled, restatting the brick's filesystem
// every reserveCheckInterval.
func (r *ReserveMonitor) Run(ctx context.Context) {
	if r.Percent <= 0 && r.Bytes == 0 {
		return
	}
	ticker := time.NewTicker(reserveCheckInterval)
	defer ticker.Stop()
	r.checkOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkOnce()
		}
	}
}

// checkOnce statvfs's the brick root and flips Brick.SetDiskFull
// according to whichever threshold is configured (§4.5). Fallocate
// consults the same cached flag through Brick.checkWritable, so it
// "probes the reserve on each call" without needing its own statvfs.
func (r *ReserveMonitor) checkOnce() {
	var st unix.Statfs_t
	if err := unix.Statfs(r.Brick.Root, &st); err != nil {
		gfs.Errorf(r.Brick, "janitor: disk reserve statfs failed: %v", err)
		return
	}

	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)

	full := false
	if r.Bytes > 0 && free < r.Bytes {
		full = true
	}
	if r.Percent > 0 && total > 0 {
		freePct := float64(free) / float64(total) * 100
		if freePct < r.Percent {
			full = true
		}
	}

	if full != r.Brick.DiskFull() {
		if full {
			gfs.Warnf(r.Brick, "disk reserve threshold crossed, refusing writes (free=%d total=%d)", free, total)
		} else {
			gfs.Logf(r.Brick, "disk reserve threshold cleared, resuming writes")
		}
		r.Brick.SetDiskFull(full)
	}
}
