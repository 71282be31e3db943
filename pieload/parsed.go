// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pieload parses, loads, and relocates a position-independent
// ELF64 x86_64 image from an untrusted byte buffer into a
// caller-provided memory region. See the package's three handle types,
// Parsed, Loaded, and Ready, for the pipeline stages.
//
// Each stage allocates only the handle it returns (Parsed, Loaded, or
// Ready); nothing else in the package allocates. It never panics on
// malformed input; every failure is reported as an Error.
package pieload

import (
	"encoding/binary"

	"github.com/aclements/go-pieload/arch"
)

// leLayout is the one place this package knows how to decode a
// little-endian machine word; every multi-byte field read from the
// input or destination slice goes through it.
var leLayout = arch.NewLayout(binary.LittleEndian, 8)

// Parsed is the result of a successful Parse: a validated description
// of an ELF64 image's layout, still backed by the caller's input
// slice. Parsed values are immutable and safe to share across
// goroutines.
type Parsed struct {
	input []byte

	segs segmentTable

	minVAddr, maxVAddr uint64
	align              uint64
	entry              uint64
	typ                FileType

	hasDynamic bool
	dynOff     uint64 // file offset of PT_DYNAMIC's contents
	dynSize    uint64
}

// Parse validates an untrusted ELF64 image and returns a Parsed
// descriptor of its layout, or an Error if the image is malformed.
//
// Parse never reads outside b; its only allocation is the returned
// Parsed value.
func Parse(b []byte) (*Parsed, error) {
	if len(b) < ehdrSize {
		return nil, ErrTooShort
	}
	if b[eiMag0] != 0x7f || b[eiMag1] != 'E' || b[eiMag2] != 'L' || b[eiMag3] != 'F' {
		return nil, ErrBadMagic
	}
	if b[eiClass] != elfClass64 {
		return nil, ErrBadClass
	}
	if b[eiData] != elfData2LSB {
		return nil, ErrBadData
	}
	if b[eiVersion] != elfVersionCur {
		return nil, ErrBadVersion
	}

	machine := Machine(leLayout.Uint16(b[18:20]))
	if machine != EM_X86_64 {
		return nil, ErrBadMachine
	}
	typ := FileType(leLayout.Uint16(b[16:18]))
	if typ != ET_EXEC && typ != ET_DYN {
		return nil, ErrBadType
	}
	if leLayout.Uint32(b[20:24]) != elfVersionCur {
		return nil, ErrBadVersion
	}

	ehsize := leLayout.Uint16(b[52:54])
	phentsize := leLayout.Uint16(b[54:56])
	if ehsize != ehdrSize || phentsize != phdrSize {
		return nil, ErrBadHeaderSize
	}

	entry := leLayout.Uint64(b[24:32])
	phoff := leLayout.Uint64(b[32:40])
	phnum := leLayout.Uint16(b[56:58])

	phtEnd, ok := addNoWrap(phoff, uint64(phnum)*phdrSize)
	if !ok || phtEnd > uint64(len(b)) {
		return nil, ErrTruncatedTable
	}

	p := &Parsed{input: b, typ: typ, entry: entry}
	if err := p.readProgramHeaders(b, phoff, phnum); err != nil {
		return nil, err
	}
	if p.segs.n == 0 {
		return nil, ErrBadSegment
	}
	if _, ok := p.segs.containing(entry); !ok {
		return nil, ErrBadEntry
	}
	return p, nil
}

// addNoWrap returns a+b and whether the addition did not overflow
// uint64.
func addNoWrap(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}

func alignDown(x, align uint64) uint64 {
	return x &^ (align - 1)
}

func isPow2(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}

func (p *Parsed) readProgramHeaders(b []byte, phoff uint64, phnum uint16) error {
	align := uint64(pageSize)
	minV, maxV := ^uint64(0), uint64(0)
	sawDynamic := false

	for i := uint16(0); i < phnum; i++ {
		off := phoff + uint64(i)*phdrSize
		ph := b[off : off+phdrSize]

		typ := SegmentType(leLayout.Uint32(ph[0:4]))
		flags := SegmentFlags(leLayout.Uint32(ph[4:8]))
		poffset := leLayout.Uint64(ph[8:16])
		pvaddr := leLayout.Uint64(ph[16:24])
		pfilesz := leLayout.Uint64(ph[32:40])
		pmemsz := leLayout.Uint64(ph[40:48])
		palign := leLayout.Uint64(ph[48:56])

		switch typ {
		case PT_LOAD:
			if pfilesz > pmemsz {
				return ErrBadSegment
			}
			end, ok := addNoWrap(poffset, pfilesz)
			if !ok || end > uint64(len(b)) {
				return ErrTruncatedTable
			}
			if palign == 0 {
				palign = pageSize
			}
			if !isPow2(palign) || palign%pageSize != 0 {
				return ErrBadSegment
			}
			if palign > 1 && (pvaddr%palign) != (poffset%palign) {
				return ErrBadSegment
			}
			vEnd, ok := addNoWrap(pvaddr, pmemsz)
			if !ok {
				return ErrBadSegment
			}
			if pvaddr < minV {
				minV = pvaddr
			}
			if vEnd > maxV {
				maxV = vEnd
			}
			if palign > align {
				align = palign
			}
			if err := p.segs.add(Segment{
				VAddr:    pvaddr,
				Offset:   poffset,
				FileSize: pfilesz,
				MemSize:  pmemsz,
				Align:    palign,
				Flags:    flags,
			}); err != errNone {
				return err
			}

		case PT_DYNAMIC:
			if sawDynamic {
				return ErrBadDynamic
			}
			sawDynamic = true
			end, ok := addNoWrap(poffset, pfilesz)
			if !ok || end > uint64(len(b)) {
				return ErrTruncatedTable
			}
			p.hasDynamic = true
			p.dynOff = poffset
			p.dynSize = pfilesz
		}
	}

	if p.segs.n == 0 {
		return ErrBadSegment
	}

	// A PT_DYNAMIC segment must land inside some PT_LOAD's covered
	// range so it will be present in the loaded image.
	if p.hasDynamic {
		if _, ok := p.findLoadCoveringFileRange(p.dynOff, p.dynSize); !ok {
			return ErrBadDynamic
		}
	}

	p.minVAddr = minV
	p.maxVAddr = maxV
	p.align = align
	return nil
}

// findLoadCoveringFileRange returns the PT_LOAD segment whose file
// range [Offset, Offset+FileSize) wholly contains [off, off+size).
func (p *Parsed) findLoadCoveringFileRange(off, size uint64) (Segment, bool) {
	end, ok := addNoWrap(off, size)
	if !ok {
		return Segment{}, false
	}
	for i := 0; i < p.segs.n; i++ {
		s := p.segs.entries[i]
		if off >= s.Offset && end <= s.Offset+s.FileSize {
			return s, true
		}
	}
	return Segment{}, false
}

// MemLen returns the number of bytes the destination slice passed to
// Load must have room for.
func (p *Parsed) MemLen() uint64 {
	return alignUp(p.maxVAddr, p.align) - alignDown(p.minVAddr, p.align)
}

// MemAlign returns the alignment the destination slice passed to Load
// must satisfy; always at least the page size.
func (p *Parsed) MemAlign() uint64 {
	return p.align
}

// Machine returns the architecture this image targets. Currently
// always arch.AMD64, since Parse rejects every other e_machine value;
// the accessor exists so callers and a future non-x86_64 core can
// share one FileInfo-shaped API instead of assuming amd64 everywhere.
func (p *Parsed) Machine() *arch.Arch {
	return arch.AMD64
}

// Type reports whether the image is a shared object (ET_DYN) or a
// non-PIE executable (ET_EXEC).
func (p *Parsed) Type() FileType {
	return p.typ
}

// Segments returns the validated PT_LOAD table, in program-header
// order. The returned slice aliases Parsed's internal storage and
// must not be retained past the next call that mutates a segment
// table sharing the same backing array (Parsed values never do, but
// callers should still treat it as read-only).
func (p *Parsed) Segments() []Segment {
	return p.segs.slice()
}
