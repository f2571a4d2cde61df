package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"dircmp/pkg/compare"
	"dircmp/pkg/dirread"
	"dircmp/pkg/fsid"
)

// driver turns the core's name-pair stream into report lines and statuses.
type driver struct {
	sess            *compare.Session
	rep             *reporter
	recursive       bool
	newFile         bool
	noDereference   bool
	reportIdentical bool
}

// comparePair handles one name pair produced for a directory pair. It is
// the Handler fed to Session.DiffDirs and recurses through it for matched
// subdirectories.
func (d *driver) comparePair(node *compare.Node, leftName, rightName string) int {
	// An absent side borrows the present side's name for path building.
	ln, rn := leftName, rightName
	if ln == "" {
		ln = rightName
	}
	if rn == "" {
		rn = leftName
	}
	leftPath := filepath.Join(node.Sides[0].Name, ln)
	rightPath := filepath.Join(node.Sides[1].Name, rn)

	if leftName == "" && !d.newFile {
		d.rep.onlyIn(node.Sides[1].Name, rightName, 1)
		return compare.StatusDifferent
	}
	if rightName == "" && !d.newFile {
		d.rep.onlyIn(node.Sides[0].Name, leftName, 0)
		return compare.StatusDifferent
	}

	var ids [2]fsid.ID
	present := [2]bool{leftName != "", rightName != ""}
	names := [2]string{ln, rn}
	paths := [2]string{leftPath, rightPath}
	for i := range ids {
		if !present[i] {
			continue
		}
		parentFd := node.Sides[i].Fd
		if parentFd < 0 {
			parentFd = unix.AT_FDCWD
			names[i] = paths[i]
		}
		id, err := fsid.At(parentFd, names[i], !d.noDereference)
		if err != nil {
			warnf("%s: %v", paths[i], err)
			return compare.StatusTrouble
		}
		ids[i] = id
	}

	switch {
	case present[0] && present[1]:
		if ids[0].IsDir() && ids[1].IsDir() {
			return d.compareDirs(node, leftPath, rightPath, ids)
		}
		if ftype(ids[0].Mode) != ftype(ids[1].Mode) {
			d.rep.typeMismatch(leftPath, ftype(ids[0].Mode), rightPath, ftype(ids[1].Mode))
			return compare.StatusDifferent
		}
		return d.compareLeaf(leftPath, rightPath, ids)

	case present[0]:
		return d.compareAgainstAbsent(node, 0, leftPath, rightPath, ids[0])
	default:
		return d.compareAgainstAbsent(node, 1, leftPath, rightPath, ids[1])
	}
}

func (d *driver) compareDirs(parent *compare.Node, leftPath, rightPath string, ids [2]fsid.ID) int {
	if !d.recursive {
		d.rep.commonDir(leftPath, rightPath)
		return compare.StatusEqual
	}
	debugf("descending into %s and %s", leftPath, rightPath)
	left := dirread.New(leftPath)
	left.ID = ids[0]
	right := dirread.New(rightPath)
	right.ID = ids[1]
	child := compare.NewNode(parent, left, right)
	status := d.sess.DiffDirs(child, d.comparePair)
	closeNode(child)
	return status
}

// compareAgainstAbsent handles a one-sided entry under --new-file: the
// missing side counts as an empty directory or an empty file.
func (d *driver) compareAgainstAbsent(parent *compare.Node, side int, leftPath, rightPath string, id fsid.ID) int {
	paths := [2]string{leftPath, rightPath}
	if id.IsDir() {
		if !d.recursive {
			d.rep.onlyIn(parent.Sides[side].Name, filepath.Base(paths[side]), side)
			return compare.StatusDifferent
		}
		sides := [2]dirread.Dir{dirread.Nonexistent(leftPath), dirread.Nonexistent(rightPath)}
		sides[side] = dirread.New(paths[side])
		sides[side].ID = id
		child := compare.NewNode(parent, sides[0], sides[1])
		status := d.sess.DiffDirs(child, d.comparePair)
		closeNode(child)
		return status
	}
	return d.compareWithEmpty(leftPath, rightPath, side, id)
}

// compareOneSided compares a top-level operand against a missing one.
func (d *driver) compareOneSided(left, right string, leftMissing bool, ids [2]fsid.ID) int {
	if leftMissing {
		return d.compareWithEmpty(left, right, 1, ids[1])
	}
	return d.compareWithEmpty(left, right, 0, ids[0])
}

// compareWithEmpty compares the present side's file against a missing
// counterpart, which --new-file defines as empty.
func (d *driver) compareWithEmpty(leftPath, rightPath string, presentSide int, id fsid.ID) int {
	paths := [2]string{leftPath, rightPath}
	if ftype(id.Mode) != "regular file" {
		d.rep.typeMismatch(leftPath, sideType(presentSide == 0, id), rightPath, sideType(presentSide == 1, id))
		return compare.StatusDifferent
	}
	st, err := os.Stat(paths[presentSide])
	if err != nil {
		warnf("%s: %v", paths[presentSide], err)
		return compare.StatusTrouble
	}
	if st.Size() == 0 {
		if d.reportIdentical {
			d.rep.identical(leftPath, rightPath)
		}
		return compare.StatusEqual
	}
	d.rep.differ(leftPath, rightPath)
	return compare.StatusDifferent
}

func sideType(present bool, id fsid.ID) string {
	if present {
		return ftype(id.Mode)
	}
	return "nonexistent file"
}

// compareLeafPaths stats two paths and compares them as leaves.
func (d *driver) compareLeafPaths(leftPath, rightPath string) int {
	var ids [2]fsid.ID
	for i, p := range []string{leftPath, rightPath} {
		id, err := fsid.FromPath(p, !d.noDereference)
		if err != nil {
			warnf("%s: %v", p, err)
			return compare.StatusTrouble
		}
		ids[i] = id
	}
	if ftype(ids[0].Mode) != ftype(ids[1].Mode) {
		d.rep.typeMismatch(leftPath, ftype(ids[0].Mode), rightPath, ftype(ids[1].Mode))
		return compare.StatusDifferent
	}
	return d.compareLeaf(leftPath, rightPath, ids)
}

// compareLeaf compares two non-directory files of the same type.
func (d *driver) compareLeaf(leftPath, rightPath string, ids [2]fsid.ID) int {
	switch ids[0].Mode & unix.S_IFMT {
	case unix.S_IFREG:
		if fsid.Same(ids[0], ids[1]) {
			if d.reportIdentical {
				d.rep.identical(leftPath, rightPath)
			}
			return compare.StatusEqual
		}
		same, err := filesIdentical(leftPath, rightPath)
		if err != nil {
			warnf("%v", err)
			return compare.StatusTrouble
		}
		if same {
			if d.reportIdentical {
				d.rep.identical(leftPath, rightPath)
			}
			return compare.StatusEqual
		}
		d.rep.differ(leftPath, rightPath)
		return compare.StatusDifferent

	case unix.S_IFLNK:
		lt, err := os.Readlink(leftPath)
		if err != nil {
			warnf("%s: %v", leftPath, err)
			return compare.StatusTrouble
		}
		rt, err := os.Readlink(rightPath)
		if err != nil {
			warnf("%s: %v", rightPath, err)
			return compare.StatusTrouble
		}
		if lt == rt {
			return compare.StatusEqual
		}
		d.rep.linksDiffer(leftPath, rightPath)
		return compare.StatusDifferent

	default:
		// Fifos and sockets pair by name alone; block and character
		// specials match when they share a device number.
		if fsid.Same(ids[0], ids[1]) || ids[0].Mode&unix.S_IFMT == unix.S_IFIFO ||
			ids[0].Mode&unix.S_IFMT == unix.S_IFSOCK {
			return compare.StatusEqual
		}
		d.rep.specialDiffer(leftPath, rightPath)
		return compare.StatusDifferent
	}
}

const readChunk = 64 * 1024

// filesIdentical reports whether two regular files have identical bytes.
func filesIdentical(leftPath, rightPath string) (bool, error) {
	li, err := os.Stat(leftPath)
	if err != nil {
		return false, err
	}
	ri, err := os.Stat(rightPath)
	if err != nil {
		return false, err
	}
	if li.Size() != ri.Size() {
		return false, nil
	}

	lf, err := os.Open(leftPath)
	if err != nil {
		return false, err
	}
	defer lf.Close()
	rf, err := os.Open(rightPath)
	if err != nil {
		return false, err
	}
	defer rf.Close()

	lbuf := make([]byte, readChunk)
	rbuf := make([]byte, readChunk)
	for {
		ln, lerr := io.ReadFull(lf, lbuf)
		rn, rerr := io.ReadFull(rf, rbuf)
		if !bytes.Equal(lbuf[:ln], rbuf[:rn]) {
			return false, nil
		}
		if lerr == io.EOF || lerr == io.ErrUnexpectedEOF {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return true, nil
			}
			return false, nil
		}
		if lerr != nil {
			return false, lerr
		}
		if rerr != nil {
			return false, rerr
		}
	}
}

func ftype(mode uint32) string {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return "regular file"
	case unix.S_IFDIR:
		return "directory"
	case unix.S_IFLNK:
		return "symbolic link"
	case unix.S_IFIFO:
		return "fifo"
	case unix.S_IFSOCK:
		return "socket"
	case unix.S_IFBLK:
		return "block special file"
	case unix.S_IFCHR:
		return "character special file"
	}
	return "unknown file type"
}

// closeNode releases the directory handles the comparison of node opened.
func closeNode(node *compare.Node) {
	for i := range node.Sides {
		closeFd(&node.Sides[i].Fd)
	}
}

func closeFd(fd *int) {
	if *fd >= 0 {
		unix.Close(*fd)
		*fd = dirread.FdUnopened
	}
}
