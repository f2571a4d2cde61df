// Package fsid identifies files across directory trees so that symlink
// cycles can be detected without resolving full paths.
package fsid

import (
	"golang.org/x/sys/unix"
)

// ID is the identity of a file: device and inode, plus the underlying
// device number for block and character specials. The zero ID is invalid
// and never matches anything, including itself.
type ID struct {
	Dev   uint64
	Ino   uint64
	Rdev  uint64
	Mode  uint32
	Valid bool
}

func FromStat(st *unix.Stat_t) ID {
	return ID{
		Dev:   uint64(st.Dev),
		Ino:   st.Ino,
		Rdev:  uint64(st.Rdev),
		Mode:  uint32(st.Mode),
		Valid: true,
	}
}

// FromFd returns the identity of an open file descriptor.
func FromFd(fd int) (ID, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return ID{}, err
	}
	return FromStat(&st), nil
}

// At returns the identity of name relative to dirfd (unix.AT_FDCWD for the
// working directory). With followSymlinks false a symlink is identified
// itself rather than by its target.
func At(dirfd int, name string, followSymlinks bool) (ID, error) {
	var st unix.Stat_t
	flags := 0
	if !followSymlinks {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	if err := unix.Fstatat(dirfd, name, &st, flags); err != nil {
		return ID{}, err
	}
	return FromStat(&st), nil
}

func FromPath(path string, followSymlinks bool) (ID, error) {
	return At(unix.AT_FDCWD, path, followSymlinks)
}

func (id ID) isDevice() bool {
	switch id.Mode & unix.S_IFMT {
	case unix.S_IFBLK, unix.S_IFCHR:
		return true
	}
	return false
}

// IsDir reports whether the identified file is a directory.
func (id ID) IsDir() bool {
	return id.Valid && id.Mode&unix.S_IFMT == unix.S_IFDIR
}

// Same reports whether a and b denote the same underlying file. Block and
// character specials of the same type count as the same file when they
// share a device number, regardless of which directory entry names them.
// An invalid identity matches nothing.
func Same(a, b ID) bool {
	if !a.Valid || !b.Valid {
		return false
	}
	if a.isDevice() && b.isDevice() {
		return a.Mode&unix.S_IFMT == b.Mode&unix.S_IFMT && a.Rdev == b.Rdev
	}
	return a.Dev == b.Dev && a.Ino == b.Ino
}
