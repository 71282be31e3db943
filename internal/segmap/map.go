// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segmap

// A Mapping describes what cmd/pieinfo should print for a range of
// relocated virtual addresses.
type Mapping struct {
	Prot uint8 // pieload.Prot bits, kept untyped so segmap does not import pieload
	Name string
}

// Map records the ranges an ELF image occupies once loaded, keyed by
// relocated virtual address, and produces a merged view suitable for
// a "pieinfo" style listing: overlapping ranges collapse to whichever
// Mapping was inserted last, matching how the last PT_LOAD's protect
// call wins for bytes shared with an earlier one.
type Map struct {
	tree avlTree
}

type avlNode struct {
	key         uint64 // Range.Low
	left, right *avlNode
	parent      *avlNode
	heightCache int

	high  uint64
	value Mapping
}

func (n *avlNode) rng() Range {
	return Range{n.key, n.high}
}

// Insert records that [r.Low, r.High) maps to value, splitting or
// deleting any previously inserted range it overlaps.
func (m *Map) Insert(r Range, value Mapping) {
	if r.Empty() {
		return
	}
	low, high := r.Low, r.High

	n := m.tree.Search(func(n *avlNode) bool {
		return low <= n.high
	})
	pred := n

	for n != nil && n.key < high {
		nNext := n.Next()

		l, h := n.rng().Subtract(Range{low, high})
		lok := !l.Empty()
		hok := !h.Empty()
		if lok && !hok {
			n.high = l.High
		} else if !lok && hok {
			n.key = h.Low
			break
		} else if lok && hok {
			if n.value == value {
				return
			}
			n.high = l.High
			n2 := m.tree.Insert(h.Low)
			n2.high, n2.value = h.High, n.value
			n = n2
			break
		} else {
			m.tree.Delete(n)
		}

		n = nNext
	}

	if pred != nil && pred.high == low && pred.value == value {
		pred.high = high
		if n != nil && n.key == high && n.value == value {
			pred.high = n.high
			m.tree.Delete(n)
		}
		return
	}
	if n != nil && n.key == high && n.value == value {
		n.key = low
		return
	}

	n = m.tree.Insert(low)
	n.high, n.value = high, value
}

// Find returns the range and Mapping covering addr, or ok == false if
// no inserted range covers it.
func (m *Map) Find(addr uint64) (r Range, value Mapping, ok bool) {
	n := m.tree.Search(func(n *avlNode) bool {
		return addr < n.high
	})
	if n != nil && n.key <= addr {
		return n.rng(), n.value, true
	}
	return Range{}, Mapping{}, false
}

// All calls f for each merged range in ascending address order.
// Stops early if f returns false.
func (m *Map) All(f func(r Range, value Mapping) bool) {
	n := m.tree.Search(func(n *avlNode) bool { return true })
	for n != nil {
		if !f(n.rng(), n.value) {
			return
		}
		n = n.Next()
	}
}
