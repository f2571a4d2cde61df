package dirread

import "unsafe"

const initialArena = 512

// Table is the transient name table of one directory read. Names are packed
// into a single byte arena as they arrive; the string views handed out by
// Names are built only once the arena has stopped growing, so no view ever
// points at a moved buffer. A Table lives only until its names have been
// consumed by the merge.
type Table struct {
	data  []byte
	spans []span
	names []string
}

type span struct {
	off int
	n   int
}

func (t *Table) add(name string) {
	need := len(t.data) + len(name)
	if need > cap(t.data) {
		newCap := 2 * cap(t.data)
		if newCap < initialArena {
			newCap = initialArena
		}
		if newCap < need {
			newCap = need
		}
		grown := make([]byte, len(t.data), newCap)
		copy(grown, t.data)
		t.data = grown
	}
	t.spans = append(t.spans, span{off: len(t.data), n: len(name)})
	t.data = append(t.data, name...)
}

// Len returns the number of names read.
func (t *Table) Len() int { return len(t.spans) }

// Names returns the table's names in enumeration order, as views into the
// finalized arena. The returned slice may be reordered in place by the
// caller but is only valid for the table's lifetime.
func (t *Table) Names() []string {
	if t.names == nil {
		t.names = make([]string, len(t.spans))
		for i, s := range t.spans {
			if s.n == 0 {
				continue
			}
			t.names[i] = unsafe.String(&t.data[s.off], s.n)
		}
	}
	return t.names
}
