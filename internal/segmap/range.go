// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segmap

import "fmt"

// Range is a half-open virtual address range [Low, High).
type Range struct {
	Low, High uint64
}

func (r Range) String() string {
	if r.Empty() {
		return "<empty>"
	}
	return fmt.Sprintf("[%#x,%#x)", r.Low, r.High)
}

func (r Range) Empty() bool {
	return r.High <= r.Low
}

func (r Range) Contains(addr uint64) bool {
	return r.Low <= addr && addr < r.High
}

// Subtract removes o from r and returns the part of r below o and the
// part of r above o, either of which may be empty.
func (r Range) Subtract(o Range) (below Range, above Range) {
	if r.Low < o.Low {
		below = Range{r.Low, o.Low}
	}
	if o.High < r.High {
		above = Range{o.High, r.High}
	}
	return
}
