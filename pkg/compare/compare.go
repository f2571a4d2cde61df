// Package compare pairs up the entries of two directory trees. For each
// directory pair it produces, in a deterministic order, the sequence of name
// pairs a comparison driver must visit: names present on both sides and
// names present on only one. It also refuses to recurse into symlink cycles.
package compare

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"dircmp/pkg/dirread"
	"dircmp/pkg/fsid"
	"dircmp/pkg/order"
)

// Comparison statuses, in increasing severity. Handlers return them and
// DiffDirs reports the maximum seen. StatusTrouble is distinct from "the
// trees differ": it means a comparison could not be carried out.
const (
	StatusEqual     = 0
	StatusDifferent = 1
	StatusTrouble   = 2
)

// Node is one node of the recursive directory-comparison tree: the two
// directories being compared and a link to the comparison they were reached
// from. A nil Parent marks the root; the root's missing ancestor never
// matches any real file identity.
type Node struct {
	Parent *Node
	Sides  [2]dirread.Dir
}

// NewNode links a child comparison under parent. Pass nil for the root.
func NewNode(parent *Node, left, right dirread.Dir) *Node {
	return &Node{Parent: parent, Sides: [2]dirread.Dir{left, right}}
}

// loops reports whether descending into node's given side would revisit a
// directory already being compared higher in the tree.
func (n *Node) loops(side int) bool {
	id := n.Sides[side].ID
	for p := n.Parent; p != nil; p = p.Parent {
		if fsid.Same(p.Sides[side].ID, id) {
			return true
		}
	}
	return false
}

// Handler receives one name pair per directory entry. An empty name marks
// the side the entry is absent from; at least one name is always set. The
// returned status feeds the maximum DiffDirs reports.
type Handler func(node *Node, leftName, rightName string) int

// Config is the read-only configuration of one comparison session.
type Config struct {
	// IgnoreCase matches file names case-insensitively.
	IgnoreCase bool

	// NoFollow refuses to traverse symlinked directories.
	NoFollow bool

	// StartingFile resumes the topmost directory pair at this name,
	// skipping entries ordered before it. It applies only to the root node.
	StartingFile string

	// Excluded, when non-nil, drops matching entry names from both sides.
	Excluded func(name string) bool

	// Warnf receives diagnostics. Defaults to stderr with a program prefix.
	Warnf func(format string, args ...any)

	// Collate overrides the locale collation. Mainly for tests.
	Collate order.CollateFunc
}

// Session is the call-scoped state of one top-level directory comparison.
// Collation starts enabled for every new session and may degrade to raw
// byte ordering within it, so one session's locale failure never poisons
// another's ordering. A Session is not safe for concurrent use.
type Session struct {
	cfg   Config
	cmp   *order.Comparator
	warnf func(format string, args ...any)
}

func NewSession(cfg Config) *Session {
	warnf := cfg.Warnf
	if warnf == nil {
		warnf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "dircmp: "+format+"\n", args...)
		}
	}
	cmp := order.New(order.Options{
		FoldCase: cfg.IgnoreCase,
		Collate:  cfg.Collate,
		Warnf:    warnf,
	})
	return &Session{cfg: cfg, cmp: cmp, warnf: warnf}
}

// Comparator exposes the session's active name ordering.
func (s *Session) Comparator() *order.Comparator { return s.cmp }

// DiffDirs compares the contents of the two directories in node, invoking
// handle once per resulting name pair in the comparator's order. It returns
// the maximum status returned by handle, or StatusTrouble if either side
// could not be read (no pairs are delivered then) or if both sides would
// recurse into a symlink cycle.
//
// A side already marked nonexistent is treated as an empty directory. A
// loop on only one side is not fatal: the looping side still reads (or dead
// ends) and the other side proceeds.
func (s *Session) DiffDirs(node *Node, handle Handler) int {
	if (node.Sides[0].Fd == dirread.FdNonexistent || node.loops(0)) &&
		(node.Sides[1].Fd == dirread.FdNonexistent || node.loops(1)) {
		which := 0
		if node.Sides[0].Fd == dirread.FdNonexistent {
			which = 1
		}
		s.warnf("%s: recursive directory loop", node.Sides[which].Name)
		return StatusTrouble
	}

	val := StatusEqual
	var tables [2]*dirread.Table
	for i := range node.Sides {
		opts := dirread.Options{
			NoFollow: s.cfg.NoFollow,
			Excluded: s.cfg.Excluded,
			Compare:  s.cmp.Compare,
		}
		if node.Parent == nil {
			opts.Start = s.cfg.StartingFile
		}
		parentFd := unix.AT_FDCWD
		if node.Parent != nil {
			parentFd = node.Parent.Sides[i].Fd
		}
		t, err := dirread.Read(parentFd, &node.Sides[i], opts)
		if err != nil {
			s.warnf("%v", err)
			val = StatusTrouble
		}
		tables[i] = t
	}
	if val != StatusEqual {
		return val
	}

	names := [2][]string{tables[0].Names(), tables[1].Names()}
	collated := s.cmp.Active()
	sortSides := func() {
		for i := range names {
			ns := names[i]
			sort.Slice(ns, func(a, b int) bool {
				return s.cmp.SortCompare(ns[a], ns[b]) < 0
			})
		}
	}
	sortSides()
	if collated && !s.cmp.Active() {
		// Collation failed partway through sorting; redo under the raw
		// ordering so the merge sees a consistent order.
		sortSides()
	}

	i0, i1 := 0, 0
	for i0 < len(names[0]) || i1 < len(names[1]) {
		// An exhausted side sorts after everything, draining the other.
		var ord int
		switch {
		case i0 == len(names[0]):
			ord = 1
		case i1 == len(names[1]):
			ord = -1
		default:
			ord = s.cmp.Compare(names[0][i0], names[1][i1])
		}

		if ord == 0 && s.cmp.FoldCase() {
			s.preferExactCase(names, i0, i1)
		}

		var left, right string
		if ord <= 0 {
			left = names[0][i0]
			i0++
		}
		if ord >= 0 {
			right = names[1][i1]
			i1++
		}
		if v := handle(node, left, right); val < v {
			val = v
		}
	}
	return val
}

// preferExactCase pairs byte-identical names ahead of cross-case matches.
// When the two cursor names match only under case folding, the side whose
// name byte-wise precedes the other is scanned through its run of fold-equal
// names for an exact copy of the opposite name; if found, it is rotated to
// the front of the run so it pairs up now. O(k*k) in the run length k, which
// stays tiny in practice.
func (s *Session) preferExactCase(names [2][]string, i0, i1 int) {
	raw := order.Raw(names[0][i0], names[1][i1])
	if raw == 0 {
		return
	}
	greaterSide := 0
	if raw < 0 {
		greaterSide = 1
	}
	idx := [2]int{i0, i1}
	lesserSide := 1 - greaterSide
	run := names[lesserSide]
	li := idx[lesserSide]
	greaterName := names[greaterSide][idx[greaterSide]]

	for p := li + 1; p < len(run) && s.cmp.Compare(run[p], greaterName) == 0; p++ {
		c := order.Raw(run[p], greaterName)
		if c < 0 {
			continue
		}
		if c == 0 {
			copy(run[li+1:p+1], run[li:p])
			run[li] = greaterName
		}
		break
	}
}
