package xlator

// Op identifies one of the filesystem operations the storage engine
// exposes (§4.1).
type Op int

const (
	OpLookup Op = iota
	OpStat
	OpReadlink
	OpMknod
	OpMkdir
	OpUnlink
	OpRmdir
	OpSymlink
	OpRename
	OpLink
	OpCreate
	OpOpen
	OpReadv
	OpWritev
	OpFlush
	OpFsync
	OpOpendir
	OpReaddir
	OpReleasedir
	OpStatfs
	OpSetxattr
	OpGetxattr
	OpRemovexattr
	OpFsetxattr
	OpFgetxattr
	OpFremovexattr
	OpTruncate
	OpFtruncate
	OpAccess
	OpFallocate
	OpDiscard
	OpZerofill
	OpSeek
	OpRchecksum
	OpXattrop
	OpFxattrop
	OpPut
	OpSetattr
	OpFsetattr
	OpRelease
)

var opNames = map[Op]string{
	OpLookup: "lookup", OpStat: "stat", OpReadlink: "readlink",
	OpMknod: "mknod", OpMkdir: "mkdir", OpUnlink: "unlink", OpRmdir: "rmdir",
	OpSymlink: "symlink", OpRename: "rename", OpLink: "link", OpCreate: "create",
	OpOpen: "open", OpReadv: "readv", OpWritev: "writev", OpFlush: "flush",
	OpFsync: "fsync", OpOpendir: "opendir", OpReaddir: "readdir",
	OpReleasedir: "releasedir", OpStatfs: "statfs", OpSetxattr: "setxattr",
	OpGetxattr: "getxattr", OpRemovexattr: "removexattr", OpFsetxattr: "fsetxattr",
	OpFgetxattr: "fgetxattr", OpFremovexattr: "fremovexattr", OpTruncate: "truncate",
	OpFtruncate: "ftruncate", OpAccess: "access", OpFallocate: "fallocate",
	OpDiscard: "discard", OpZerofill: "zerofill", OpSeek: "seek",
	OpRchecksum: "rchecksum", OpXattrop: "xattrop", OpFxattrop: "fxattrop",
	OpPut: "put", OpSetattr: "setattr", OpFsetattr: "fsetattr", OpRelease: "release",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "op(?)"
}
