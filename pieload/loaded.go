// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

import "unsafe"

// Loaded is the result of a successful Load: an ELF64 image
// materialised into a caller-owned destination slice, with the
// PT_DYNAMIC location (if any) translated to an in-image offset.
type Loaded struct {
	parsed *Parsed
	dest   []byte

	minVAddr   uint64
	dynOff     uint64 // in-image offset, valid only if hasDynamic
	hasDynamic bool
	entryOff   uint64 // e_entry - minVAddr
}

// Load copies parsed's PT_LOAD segments into dest, translating them
// from file-offset form to memory-offset form.
//
// dest must have length at least parsed.MemLen() and must start at an
// address that is a multiple of parsed.MemAlign(); otherwise Load
// returns ErrBadDestination and hands dest back unmodified.
//
// On any other failure, Load returns dest so the caller can dispose
// of it; the returned slice may have been partially written.
func (p *Parsed) Load(dest []byte) (*Loaded, []byte, error) {
	need := p.MemLen()
	if uint64(len(dest)) < need {
		return nil, dest, ErrBadDestination
	}
	if uintptr(unsafe.Pointer(&dest[0]))%uintptr(p.MemAlign()) != 0 {
		return nil, dest, ErrBadDestination
	}

	clear(dest[:need])

	for _, s := range p.segs.slice() {
		off := s.VAddr - p.minVAddr
		if s.FileSize > 0 {
			copy(dest[off:off+s.FileSize], p.input[s.Offset:s.Offset+s.FileSize])
		}
	}

	l := &Loaded{
		parsed:   p,
		dest:     dest,
		minVAddr: p.minVAddr,
		entryOff: p.entry - p.minVAddr,
	}
	if p.hasDynamic {
		if seg, ok := p.findLoadCoveringFileRange(p.dynOff, p.dynSize); ok {
			dynVAddr := seg.VAddr + (p.dynOff - seg.Offset)
			l.hasDynamic = true
			l.dynOff = dynVAddr - p.minVAddr
		}
	}
	return l, nil, nil
}

// LoaderBase returns the address at which dest (as passed to Load)
// begins. This is the natural choice of virtual base when the caller
// has no reason to relocate the image to a different address.
func (l *Loaded) LoaderBase() uintptr {
	return uintptr(unsafe.Pointer(&l.dest[0]))
}
