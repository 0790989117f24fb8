package posix

// BatchFsyncMode selects how the background fsyncer drains its queue
// (§4.5, §6).
type BatchFsyncMode string

const (
	BatchFsyncNone              BatchFsyncMode = "none"
	BatchFsyncSyncfs            BatchFsyncMode = "syncfs"
	BatchFsyncSyncfsSingleFsync BatchFsyncMode = "syncfs-single-fsync"
	BatchFsyncSyncfsReverse     BatchFsyncMode = "syncfs-reverse-fsync"
	BatchFsyncReverse           BatchFsyncMode = "reverse-fsync"
)

// VolumeIDMode selects what happens when the brick root's
// trusted.glusterfs.volume-id xattr doesn't match the configured volume
// (§3 invariant 5, §6).
type VolumeIDMode string

const (
	VolumeIDStrict VolumeIDMode = "strict" // refuse to start (default)
	VolumeIDWarn   VolumeIDMode = "warn"   // log and proceed
)

// Options holds every recognized brick configuration option (§6), filled
// from a gfs.Mapper via gfs.Set the way the teacher fills backend Options
// from a configmap.Mapper.
type Options struct {
	VolumeID     string       `config:"volume-id"`
	VolumeIDMode VolumeIDMode `config:"volume-id-mode"`

	ExportStatfsSize bool `config:"export-statfs-size"`
	BackgroundUnlink bool `config:"background-unlink"`
	ODirect          bool `config:"o-direct"`
	// LinuxAIO is accepted for compatibility with the config schema but
	// has no effect: every fop already runs on its own goroutine over a
	// blocking fd, which gives the same concurrent-request dispatch
	// io_submit/io_getevents bought the threaded original.
	LinuxAIO bool `config:"linux-aio"`

	BatchFsyncMode      BatchFsyncMode `config:"batch-fsync-mode"`
	BatchFsyncDelayUsec int64          `config:"batch-fsync-delay-usec"`

	UpdateLinkCountParent bool   `config:"update-link-count-parent"`
	Gfid2Path             bool   `config:"gfid2path"`
	Gfid2PathSeparator    string `config:"gfid2path-separator"`

	HealthCheckInterval int64 `config:"health-check-interval"`
	HealthCheckTimeout  int64 `config:"health-check-timeout"`

	Reserve string `config:"reserve"` // "5%" or an absolute byte count

	CreateMask          uint32 `config:"create-mask"`
	CreateDirectoryMask uint32 `config:"create-directory-mask"`
	ForceCreateMode     uint32 `config:"force-create-mode"`
	ForceDirectoryMode  uint32 `config:"force-directory-mode"`

	MaxHardlinks int `config:"max-hardlinks"`

	FipsModeRchecksum bool `config:"fips-mode-rchecksum"`
	Ctime             bool `config:"ctime"`

	SharedBrickCount int64 `config:"shared-brick-count"`
}

// DefaultOptions returns the option set a brick uses absent any explicit
// configuration, matching the teacher's pattern of Options carrying
// sensible zero-ish defaults that the caller then overrides from the
// parsed map (gfs.Set) before passing them to Open.
func DefaultOptions() Options {
	return Options{
		VolumeIDMode:        VolumeIDStrict,
		ExportStatfsSize:    true,
		BatchFsyncMode:      BatchFsyncReverse,
		BatchFsyncDelayUsec: 0,
		Gfid2PathSeparator:  "/",
		HealthCheckInterval: 30,
		HealthCheckTimeout:  20,
		CreateMask:          0777,
		CreateDirectoryMask: 0777,
		SharedBrickCount:    1,
	}
}

// shapeMode applies the create-mask/force-mode formula pinned by
// SPEC_FULL §4: final = (requested & mask) | force.
func shapeMode(requested, mask, force uint32) uint32 {
	return (requested & mask) | force
}
