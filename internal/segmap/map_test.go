// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segmap

import (
	"math/rand"
	"testing"
)

func TestMapRandom(t *testing.T) {
	var m Map
	const max = 16
	want := make([]int, max)
	for i := 0; i < 1000; i++ {
		low := rand.Intn(max)
		high := low + rand.Intn(max-low)
		val := 1 + rand.Intn(10)
		m.Insert(Range{uint64(low), uint64(high)}, Mapping{Prot: uint8(val)})

		for k := low; k < high; k++ {
			want[k] = val
		}

		i := 0
		for i < len(want) {
			j := i
			for j < len(want) && want[j] == want[i] {
				j++
			}

			wantVal := want[i]
			wantRange := Range{uint64(i), uint64(j)}
			for k := i; k < j; k++ {
				r, v, ok := m.Find(uint64(k))
				if wantVal == 0 {
					if ok {
						t.Errorf("at %#x, want none, got %v@%v", k, v, r)
					}
				} else {
					if !ok || int(v.Prot) != wantVal || r != wantRange {
						t.Errorf("at %#x, want %v@%v, got %v@%v (ok=%v)", k, wantVal, wantRange, v.Prot, r, ok)
					}
				}
			}

			i = j
		}
	}
}

func TestMapAllOrdered(t *testing.T) {
	var m Map
	m.Insert(Range{0, 10}, Mapping{Name: "text"})
	m.Insert(Range{10, 20}, Mapping{Name: "data"})
	m.Insert(Range{5, 15}, Mapping{Name: "overlap"})

	var names []string
	m.All(func(r Range, v Mapping) bool {
		names = append(names, v.Name)
		return true
	})
	want := []string{"text", "overlap", "data"}
	if len(names) != len(want) {
		t.Fatalf("All produced %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, names[i], want[i])
		}
	}
}
