// Package order decides how file names are sorted and matched while two
// directories are compared. Names are ordered by the user's locale when one
// is configured, falling back permanently to raw byte order for the rest of
// a comparison if collation ever fails.
package order

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// CollateFunc orders two file names under some collation. A non-nil error
// means the collation environment is broken; the comparator then downgrades
// itself to raw ordering and does not call the function again.
type CollateFunc func(a, b string) (int, error)

// WarnFunc receives human-readable diagnostics.
type WarnFunc func(format string, args ...any)

// Comparator holds the name-ordering state of one directory comparison.
// It is not safe for concurrent use; give each comparison its own.
type Comparator struct {
	foldCase bool
	active   bool
	collated CollateFunc
	warnf    WarnFunc
}

type Options struct {
	// FoldCase makes names that differ only in letter case compare equal.
	FoldCase bool

	// Collate overrides the locale-derived collation. Mainly for tests.
	Collate CollateFunc

	// Warnf receives the one diagnostic emitted if collation fails.
	Warnf WarnFunc
}

func New(opts Options) *Comparator {
	c := &Comparator{foldCase: opts.FoldCase, warnf: opts.Warnf}
	if c.warnf == nil {
		c.warnf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "dircmp: "+format+"\n", args...)
		}
	}
	c.collated = opts.Collate
	if c.collated == nil {
		c.collated = localeCollator(opts.FoldCase)
	}
	c.active = c.collated != nil
	return c
}

// localeCollator builds a CollateFunc for the locale named by the usual
// environment variables. When the locale orders by byte value (unset, C,
// POSIX, or unparseable) it returns nil without case folding, since raw
// ordering already covers that; with case folding it returns the byte-order
// folding collation, so folding never depends on a locale being set.
func localeCollator(foldCase bool) CollateFunc {
	tag, ok := localeTag()
	if !ok {
		if !foldCase {
			return nil
		}
		return func(a, b string) (int, error) {
			return foldBytes(a, b), nil
		}
	}
	var copts []collate.Option
	if foldCase {
		copts = append(copts, collate.IgnoreCase)
	}
	col := collate.New(tag, copts...)
	return func(a, b string) (int, error) {
		return col.CompareString(a, b), nil
	}
}

func localeTag() (language.Tag, bool) {
	for _, key := range []string{"LC_ALL", "LC_COLLATE", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if v == "C" || v == "POSIX" {
			return language.Und, false
		}
		// Strip codeset and modifier: en_US.UTF-8@euro -> en_US, then
		// normalize to a BCP 47 tag.
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
		if err != nil {
			return language.Und, false
		}
		return tag, true
	}
	return language.Und, false
}

// Raw is byte-wise ordinal comparison, the universal fallback ordering.
func Raw(a, b string) int {
	return strings.Compare(a, b)
}

// foldBytes orders byte-wise with ASCII letters folded to lower case, the
// collation a case-folding comparison uses when no locale is configured.
func foldBytes(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := foldByte(a[i]), foldByte(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func foldByte(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// tryCollated runs the collated ordering, downgrading the comparator to raw
// ordering on the first failure. The failure is reported once.
func (c *Comparator) tryCollated(a, b string) (int, bool) {
	r, err := c.collated(a, b)
	if err != nil {
		c.warnf("cannot compare file names %q and %q: %v", a, b, err)
		c.active = false
		return 0, false
	}
	return r, true
}

// Compare orders two file names for matching. With case folding enabled,
// names equal under collation stay equal; otherwise a collation tie is
// broken by raw byte order.
func (c *Comparator) Compare(a, b string) int {
	if c.active {
		d, ok := c.tryCollated(a, b)
		if ok && (d != 0 || c.foldCase) {
			return d
		}
	}
	return Raw(a, b)
}

// SortCompare is Compare with an unconditional raw tie-break. Sorting needs
// a strict total order even among names Compare considers equal; SortCompare
// is never used to decide whether two names pair up.
func (c *Comparator) SortCompare(a, b string) int {
	if c.active {
		d, ok := c.tryCollated(a, b)
		if ok && d != 0 {
			return d
		}
	}
	return Raw(a, b)
}

// FoldCase reports whether case folding is enabled.
func (c *Comparator) FoldCase() bool { return c.foldCase }

// Active reports whether collated ordering is still in effect.
func (c *Comparator) Active() bool { return c.active }
