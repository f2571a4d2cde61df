// Package dirread enumerates one directory's entries into a name table for
// comparison. Directories open relative to an already-open parent handle
// when one exists, so deep trees never re-walk their path and renames midway
// through a comparison cannot redirect it.
package dirread

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"dircmp/pkg/fsid"
)

// Sentinel values for Dir.Fd.
const (
	// FdUnopened marks a directory that has not been opened yet.
	FdUnopened = -1

	// FdNonexistent marks a directory known not to exist. Read treats it
	// as empty without touching the filesystem.
	FdNonexistent = -2
)

// Dir is one side of a directory comparison: a display name, an open
// directory handle, and the cached identity used for loop detection. Once
// Read opens the handle it stays open for the life of the Dir; closing it
// is the caller's job, after the whole subtree comparison is done.
type Dir struct {
	Name string
	Fd   int
	ID   fsid.ID
}

// New returns an unopened Dir for name.
func New(name string) Dir {
	return Dir{Name: name, Fd: FdUnopened}
}

// Nonexistent returns a Dir for a name known to be absent on this side.
func Nonexistent(name string) Dir {
	return Dir{Name: name, Fd: FdNonexistent}
}

// Probe caches the directory's identity, resolving relative to parentFd the
// same way Read opens it.
func (d *Dir) Probe(parentFd int, followSymlinks bool) error {
	name := d.Name
	if parentFd >= 0 {
		name = filepath.Base(d.Name)
	}
	id, err := fsid.At(parentFd, name, followSymlinks)
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// Options configure one directory read.
type Options struct {
	// NoFollow makes the open fail instead of traversing a symlinked
	// directory.
	NoFollow bool

	// Excluded, when non-nil, filters out entry names it returns true for.
	Excluded func(name string) bool

	// Compare is the active name ordering. Required when Start is set.
	Compare func(a, b string) int

	// Start skips entries ordered before it, resuming a partial scan.
	// StartOnly additionally skips entries ordered after it, narrowing the
	// read to the names that compare equal to Start.
	Start     string
	StartOnly bool
}

// Read enumerates the visible entries of dir into a Table: "." and "..",
// excluded names, and names outside the Start window are dropped. On the
// first call for a Dir the directory is opened and the handle kept in
// dir.Fd, relative to parentFd when parentFd is non-negative (pass
// unix.AT_FDCWD otherwise). Any OS error aborts the read; no partial table
// is returned.
func Read(parentFd int, dir *Dir, opts Options) (*Table, error) {
	t := &Table{}
	if dir.Fd == FdNonexistent {
		return t, nil
	}

	if dir.Fd < 0 {
		name := dir.Name
		if parentFd >= 0 {
			name = filepath.Base(dir.Name)
		}
		flags := unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC
		if opts.NoFollow {
			flags |= unix.O_NOFOLLOW
		}
		fd, err := unix.Openat(parentFd, name, flags, 0)
		if err != nil {
			return nil, &os.PathError{Op: "open", Path: dir.Name, Err: err}
		}
		dir.Fd = fd
	}

	buf := make([]byte, direntBufSize)
	var batch []string
	for {
		n, err := unix.Getdents(dir.Fd, buf)
		if err != nil {
			return nil, &os.PathError{Op: "readdirent", Path: dir.Name, Err: err}
		}
		if n == 0 {
			break
		}
		// ParseDirent also drops "." and "..".
		_, _, batch = unix.ParseDirent(buf[:n], -1, batch[:0])
		for _, name := range batch {
			if opts.Start != "" {
				cmp := opts.Compare(name, opts.Start)
				if cmp < 0 || (opts.StartOnly && cmp != 0) {
					continue
				}
			}
			if opts.Excluded != nil && opts.Excluded(name) {
				continue
			}
			t.add(name)
		}
	}
	return t, nil
}

const direntBufSize = 8192
