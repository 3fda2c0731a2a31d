//go:build linux

package fingerprint

import (
	"errors"
	"os"
	"syscall"
)

// errUnsupportedStat is returned when a FileInfo's Sys() value isn't the
// expected *syscall.Stat_t, which should not happen on Linux.
var errUnsupportedStat = errors.New("fingerprint: unexpected stat type")

// lstatSnapshot performs an lstat(2) on path and captures the fields needed
// for the canonical stat serialization. This backup engine targets POSIX
// filesystems; the canonical format's inclusion of st_ino and st_dev is
// POSIX-specific by construction.
func lstatSnapshot(path string) (StatSnapshot, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return StatSnapshot{}, err
	}
	raw, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return StatSnapshot{}, errUnsupportedStat
	}
	return StatSnapshot{
		Mode:  uint32(raw.Mode),
		Ino:   uint64(raw.Ino),
		Dev:   uint64(raw.Dev),
		Nlink: uint64(raw.Nlink),
		Uid:   raw.Uid,
		Gid:   raw.Gid,
		Size:  raw.Size,
		Atime: int64(raw.Atim.Sec),
		Mtime: int64(raw.Mtim.Sec),
		Ctime: int64(raw.Ctim.Sec),
	}, nil
}

// isRegular reports whether the snapshot describes a regular file.
func (s StatSnapshot) isRegular() bool {
	return s.Mode&syscall.S_IFMT == syscall.S_IFREG
}

// isSymlink reports whether the snapshot describes a symbolic link.
func (s StatSnapshot) isSymlink() bool {
	return s.Mode&syscall.S_IFMT == syscall.S_IFLNK
}
