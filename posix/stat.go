package posix

import (
	"os"
	"syscall"
	"time"

	"github.com/gluster/glusterfs-sub002/gfid"
)

// Stat is the engine's normalized iatt (§4.1 "poststat"): the subset of
// stat(2) fields every operation's reply carries, plus the object's GFID
// so a caller never needs a second round trip to learn it.
type Stat struct {
	GFID  gfid.GFID
	Ino   uint64
	Mode  os.FileMode
	Nlink uint64
	UID   uint32
	GID   uint32
	Size  int64
	Blocks int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// statPath lstat's path and fills in a Stat, reading the trusted.gfid
// xattr to populate GFID (skipped when the caller already knows it, via
// statPathGFID).
func statPath(path string) (Stat, error) {
	g, err := readGFID(path)
	if err != nil {
		return Stat{}, err
	}
	return statPathGFID(path, g)
}

// statPathGFID is statPath for a caller that already resolved g, avoiding
// a redundant xattr read.
func statPathGFID(path string, g gfid.GFID) (Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Stat{}, err
	}
	return toStat(fi, g), nil
}

func toStat(fi os.FileInfo, g gfid.GFID) Stat {
	st := Stat{
		GFID: g,
		Mode: fi.Mode(),
		Size: fi.Size(),
		Mtime: fi.ModTime(),
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Ino = sys.Ino
		st.Nlink = uint64(sys.Nlink)
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Blocks = sys.Blocks
		st.Atime = time.Unix(sys.Atim.Sec, sys.Atim.Nsec)
		st.Ctime = time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
	}
	return st
}
