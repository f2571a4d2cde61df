package compare

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"dircmp/pkg/dirread"
	"dircmp/pkg/fsid"
)

func rawCollate(a, b string) (int, error) {
	return strings.Compare(a, b), nil
}

func foldCollate(a, b string) (int, error) {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b)), nil
}

func mkFiles(t *testing.T, dir string, names ...string) string {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	return dir
}

func rootNode(t *testing.T, left, right string) *Node {
	t.Helper()
	l := dirread.New(left)
	r := dirread.New(right)
	require.NoError(t, l.Probe(unix.AT_FDCWD, true))
	require.NoError(t, r.Probe(unix.AT_FDCWD, true))
	return NewNode(nil, l, r)
}

func closeNode(node *Node) {
	for i := range node.Sides {
		closeDir(&node.Sides[i])
	}
}

func closeDir(d *dirread.Dir) {
	if d.Fd >= 0 {
		unix.Close(d.Fd)
		d.Fd = dirread.FdUnopened
	}
}

// collectPairs runs one DiffDirs call and records every delivered pair.
func collectPairs(t *testing.T, cfg Config, node *Node) ([][2]string, int) {
	t.Helper()
	sess := NewSession(cfg)
	var pairs [][2]string
	status := sess.DiffDirs(node, func(_ *Node, l, r string) int {
		pairs = append(pairs, [2]string{l, r})
		if l == "" || r == "" {
			return StatusDifferent
		}
		return StatusEqual
	})
	closeNode(node)
	return pairs, status
}

func TestDisjointNameSets(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "a", "c")
	right := mkFiles(t, t.TempDir(), "b", "d")

	pairs, status := collectPairs(t, Config{Collate: rawCollate}, rootNode(t, left, right))

	assert.Equal(t, [][2]string{
		{"a", ""},
		{"", "b"},
		{"c", ""},
		{"", "d"},
	}, pairs)
	assert.Equal(t, StatusDifferent, status)
}

func TestIdenticalNameSets(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "x", "y")
	right := mkFiles(t, t.TempDir(), "x", "y")

	pairs, status := collectPairs(t, Config{Collate: rawCollate}, rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"x", "x"}, {"y", "y"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestCaseFoldPairsAcrossCase(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "A", "b")
	right := mkFiles(t, t.TempDir(), "a", "B")

	pairs, status := collectPairs(t,
		Config{IgnoreCase: true, Collate: foldCollate},
		rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"A", "a"}, {"b", "B"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestCaseFoldPairsWithoutLocale(t *testing.T) {
	// Case-insensitive matching must not depend on a locale being set.
	t.Setenv("LC_ALL", "C")
	left := mkFiles(t, t.TempDir(), "A", "b")
	right := mkFiles(t, t.TempDir(), "a", "B")

	pairs, status := collectPairs(t,
		Config{IgnoreCase: true},
		rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"A", "a"}, {"b", "B"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestCaseFoldPairsWithRealLocale(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	left := mkFiles(t, t.TempDir(), "A", "b")
	right := mkFiles(t, t.TempDir(), "a", "B")

	pairs, status := collectPairs(t,
		Config{IgnoreCase: true},
		rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"A", "a"}, {"b", "B"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestCaseFoldPrefersExactMatch(t *testing.T) {
	t.Run("rotation in the left run", func(t *testing.T) {
		left := mkFiles(t, t.TempDir(), "A", "a")
		right := mkFiles(t, t.TempDir(), "a")

		pairs, _ := collectPairs(t,
			Config{IgnoreCase: true, Collate: foldCollate},
			rootNode(t, left, right))

		assert.Equal(t, [][2]string{{"a", "a"}, {"A", ""}}, pairs)
	})

	t.Run("rotation in the right run", func(t *testing.T) {
		left := mkFiles(t, t.TempDir(), "a")
		right := mkFiles(t, t.TempDir(), "A", "a")

		pairs, _ := collectPairs(t,
			Config{IgnoreCase: true, Collate: foldCollate},
			rootNode(t, left, right))

		assert.Equal(t, [][2]string{{"a", "a"}, {"", "A"}}, pairs)
	})
}

func TestWithoutFoldingCaseVariantsStayUnpaired(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "README")
	right := mkFiles(t, t.TempDir(), "readme")

	pairs, status := collectPairs(t, Config{Collate: rawCollate}, rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"README", ""}, {"", "readme"}}, pairs)
	assert.Equal(t, StatusDifferent, status)
}

func TestStartingFileAppliesToRootOnly(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "a", "m", "z")
	right := mkFiles(t, t.TempDir(), "a", "m", "z")

	pairs, status := collectPairs(t,
		Config{StartingFile: "m", Collate: rawCollate},
		rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"m", "m"}, {"z", "z"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestExclusionFiltersBothSides(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "a", "a.tmp")
	right := mkFiles(t, t.TempDir(), "a", "b.tmp")

	pairs, status := collectPairs(t,
		Config{
			Collate:  rawCollate,
			Excluded: func(name string) bool { return strings.HasSuffix(name, ".tmp") },
		},
		rootNode(t, left, right))

	assert.Equal(t, [][2]string{{"a", "a"}}, pairs)
	assert.Equal(t, StatusEqual, status)
}

func TestNonexistentSideComparesAsEmpty(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "a")
	node := NewNode(nil, dirread.New(left), dirread.Nonexistent(left+"-gone"))
	var err error
	node.Sides[0].ID, err = fsid.FromPath(left, true)
	require.NoError(t, err)

	pairs, status := collectPairs(t, Config{Collate: rawCollate}, node)

	assert.Equal(t, [][2]string{{"a", ""}}, pairs)
	assert.Equal(t, StatusDifferent, status)
}

func TestUnreadableSideShortCircuitsMerge(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "a")
	// A regular file fails the O_DIRECTORY open.
	bogus := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(bogus, []byte("x"), 0o644))

	var warns []string
	cfg := Config{
		Collate: rawCollate,
		Warnf: func(format string, args ...any) {
			warns = append(warns, fmt.Sprintf(format, args...))
		},
	}
	node := NewNode(nil, dirread.New(left), dirread.New(bogus))

	pairs, status := collectPairs(t, cfg, node)

	assert.Empty(t, pairs, "no pairs may be delivered when a side fails")
	assert.Equal(t, StatusTrouble, status)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], bogus)
}

func TestLoopDetection(t *testing.T) {
	idA := fsid.ID{Dev: 1, Ino: 10, Valid: true}
	idB := fsid.ID{Dev: 1, Ino: 11, Valid: true}
	idC := fsid.ID{Dev: 1, Ino: 12, Valid: true}
	idD := fsid.ID{Dev: 1, Ino: 13, Valid: true}

	side := func(id fsid.ID) dirread.Dir {
		d := dirread.New("dir")
		d.ID = id
		return d
	}

	root := NewNode(nil, side(idA), side(idB))

	t.Run("ancestor match reports a loop", func(t *testing.T) {
		child := NewNode(root, side(idA), side(idC))
		assert.True(t, child.loops(0))
		assert.False(t, child.loops(1))
	})

	t.Run("no match through the whole chain", func(t *testing.T) {
		child := NewNode(root, side(idC), side(idD))
		assert.False(t, child.loops(0))
		assert.False(t, child.loops(1))
	})

	t.Run("unknown identities never loop", func(t *testing.T) {
		child := NewNode(root, dirread.New("x"), dirread.New("y"))
		grand := NewNode(child, dirread.New("x"), dirread.New("y"))
		assert.False(t, grand.loops(0))
		assert.False(t, grand.loops(1))
	})
}

func TestBothSidesLoopingIsFatal(t *testing.T) {
	idA := fsid.ID{Dev: 1, Ino: 10, Valid: true}
	idB := fsid.ID{Dev: 1, Ino: 11, Valid: true}

	mk := func(name string, id fsid.ID) dirread.Dir {
		d := dirread.New(name)
		d.ID = id
		return d
	}

	root := NewNode(nil, mk("l", idA), mk("r", idB))
	child := NewNode(root, mk("l/sub", idA), mk("r/sub", idB))

	var warns []string
	sess := NewSession(Config{
		Collate: rawCollate,
		Warnf: func(format string, args ...any) {
			warns = append(warns, fmt.Sprintf(format, args...))
		},
	})
	called := false
	status := sess.DiffDirs(child, func(*Node, string, string) int {
		called = true
		return StatusEqual
	})

	assert.Equal(t, StatusTrouble, status)
	assert.False(t, called, "must not descend into a two-sided loop")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "recursive directory loop")
	assert.Contains(t, warns[0], "l/sub")
}

func TestOneSidedLoopStillProceeds(t *testing.T) {
	// The left child revisits the left root directory via a symlink; the
	// right side is sound, so the comparison continues.
	leftRoot := mkFiles(t, t.TempDir(), "f")
	require.NoError(t, os.Symlink(leftRoot, filepath.Join(leftRoot, "sub")))
	rightRoot := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(rightRoot, "sub"), 0o755))
	mkFiles(t, filepath.Join(rightRoot, "sub"), "g")

	root := rootNode(t, leftRoot, rightRoot)
	defer closeNode(root)

	sess := NewSession(Config{Collate: rawCollate})
	_ = sess.DiffDirs(root, func(*Node, string, string) int { return StatusEqual })

	leftSub := dirread.New(filepath.Join(leftRoot, "sub"))
	rightSub := dirread.New(filepath.Join(rightRoot, "sub"))
	var err error
	leftSub.ID, err = fsid.FromPath(leftSub.Name, true)
	require.NoError(t, err)
	rightSub.ID, err = fsid.FromPath(rightSub.Name, true)
	require.NoError(t, err)
	child := NewNode(root, leftSub, rightSub)

	require.True(t, child.loops(0))
	require.False(t, child.loops(1))

	pairs, status := collectPairs(t, Config{Collate: rawCollate}, child)

	assert.NotEqual(t, StatusTrouble, status)
	assert.NotEmpty(t, pairs)
}

func TestCollationFailureFallsBackMidMerge(t *testing.T) {
	left := mkFiles(t, t.TempDir(), "b", "a")
	right := mkFiles(t, t.TempDir(), "a", "b")

	var warns []string
	failing := func(a, b string) (int, error) {
		return 0, errors.New("locale data unavailable")
	}
	cfg := Config{
		Collate: failing,
		Warnf: func(format string, args ...any) {
			warns = append(warns, fmt.Sprintf(format, args...))
		},
	}

	sess := NewSession(cfg)
	require.True(t, sess.Comparator().Active())

	node := rootNode(t, left, right)
	var pairs [][2]string
	status := sess.DiffDirs(node, func(_ *Node, l, r string) int {
		pairs = append(pairs, [2]string{l, r})
		return StatusEqual
	})
	closeNode(node)

	// The run completes in raw order with exactly one diagnostic.
	assert.Equal(t, StatusEqual, status)
	assert.Equal(t, [][2]string{{"a", "a"}, {"b", "b"}}, pairs)
	assert.False(t, sess.Comparator().Active())
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "cannot compare file names")

	// A fresh session starts with collation re-enabled.
	assert.True(t, NewSession(cfg).Comparator().Active())
}

func TestRecursiveDescentReusesParentHandles(t *testing.T) {
	left := t.TempDir()
	right := t.TempDir()
	for _, root := range []string{left, right} {
		sub := filepath.Join(root, "sub")
		require.NoError(t, os.Mkdir(sub, 0o755))
		mkFiles(t, sub, "leaf")
	}

	sess := NewSession(Config{Collate: rawCollate})
	root := rootNode(t, left, right)
	defer closeNode(root)

	var leafPairs [][2]string
	status := sess.DiffDirs(root, func(node *Node, l, r string) int {
		if l != "sub" {
			leafPairs = append(leafPairs, [2]string{l, r})
			return StatusEqual
		}
		ls := dirread.New(filepath.Join(node.Sides[0].Name, l))
		rs := dirread.New(filepath.Join(node.Sides[1].Name, r))
		require.NoError(t, ls.Probe(node.Sides[0].Fd, true))
		require.NoError(t, rs.Probe(node.Sides[1].Fd, true))
		child := NewNode(node, ls, rs)
		v := sess.DiffDirs(child, func(_ *Node, cl, cr string) int {
			leafPairs = append(leafPairs, [2]string{cl, cr})
			return StatusEqual
		})
		closeNode(child)
		return v
	})

	assert.Equal(t, StatusEqual, status)
	assert.Equal(t, [][2]string{{"leaf", "leaf"}}, leafPairs)
}
