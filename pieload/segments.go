// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

// Segment describes one validated PT_LOAD entry, in the order it
// appeared in the program header table.
type Segment struct {
	VAddr    uint64
	Offset   uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
	Flags    SegmentFlags
}

// interval is the half-open virtual address range [Low, High) covered
// by a Segment. Its overlaps method mirrors the value semantics
// of an interval map's key type, but backed by a fixed array instead
// of a tree: the core must not allocate, so there is no tree here,
// just an ordered scan bounded by maxSegments.
type interval struct {
	low, high uint64
}

func (i interval) overlaps(o interval) bool {
	return i.low < o.high && o.low < i.high
}

// segmentTable is the "bounded segment table without heap" from the
// design notes: a fixed-capacity, insertion-ordered array of PT_LOAD
// entries plus O(n) overlap checking against everything inserted so
// far. n is bounded by maxSegments and by e_phnum, whichever is
// smaller, so the whole structure lives on the stack or inline in the
// containing Parsed value.
type segmentTable struct {
	entries [maxSegments]Segment
	n       int
}

// add validates that seg's virtual range does not overlap any
// previously added segment and appends it. It never allocates.
func (t *segmentTable) add(seg Segment) Error {
	if t.n >= len(t.entries) {
		return ErrTooManySegments
	}
	next := interval{seg.VAddr, seg.VAddr + seg.MemSize}
	for i := 0; i < t.n; i++ {
		e := t.entries[i]
		if next.overlaps(interval{e.VAddr, e.VAddr + e.MemSize}) {
			return ErrSegmentOverlap
		}
	}
	t.entries[t.n] = seg
	t.n++
	return errNone
}

func (t *segmentTable) slice() []Segment {
	return t.entries[:t.n]
}

// containing returns the segment whose virtual range contains addr,
// and whether one was found.
func (t *segmentTable) containing(addr uint64) (Segment, bool) {
	for i := 0; i < t.n; i++ {
		e := t.entries[i]
		if e.VAddr <= addr && addr < e.VAddr+e.MemSize {
			return e, true
		}
	}
	return Segment{}, false
}
