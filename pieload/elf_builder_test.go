// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

import "encoding/binary"

// builder assembles a minimal, valid ELF64 image byte-by-byte as
// minimal object bytes built directly in-test, without relying on any
// object-file writer: every field is placed at its gABI offset
// directly so tests can also corrupt individual fields to exercise
// Parse's validation.
type builder struct {
	segs []segSpec
	le   binary.ByteOrder
}

type segSpec struct {
	typ         SegmentType
	flags       SegmentFlags
	vaddr       uint64
	fileData    []byte
	memsz       uint64
	align       uint64
	forceOffset int64 // -1 means "pack after the previous segment"
}

func newBuilder() *builder {
	return &builder{le: binary.LittleEndian}
}

func (b *builder) addLoad(vaddr uint64, flags SegmentFlags, fileData []byte, memsz uint64) *builder {
	b.segs = append(b.segs, segSpec{typ: PT_LOAD, flags: flags, vaddr: vaddr, fileData: fileData, memsz: memsz, align: pageSize, forceOffset: -1})
	return b
}

func (b *builder) addDynamic(vaddr uint64, fileData []byte) *builder {
	b.segs = append(b.segs, segSpec{typ: PT_DYNAMIC, vaddr: vaddr, fileData: fileData, memsz: uint64(len(fileData)), forceOffset: -1})
	return b
}

// addDynamicAt declares a PT_DYNAMIC segment whose bytes are already
// present at fileOff/vaddr because a previously-added PT_LOAD segment
// embeds them; the builder records the header but does not copy or
// reserve any additional file space for it.
func (b *builder) addDynamicAt(fileOff, vaddr uint64, size int) *builder {
	b.segs = append(b.segs, segSpec{typ: PT_DYNAMIC, vaddr: vaddr, memsz: uint64(size), forceOffset: int64(fileOff)})
	return b
}

// build lays out the ELF header, followed immediately by the program
// header table, followed by each segment's file data back-to-back
// (page-aligned relative to file offset 0, matching p_vaddr's
// alignment so the p_vaddr % p_align == p_offset % p_align invariant
// holds for PT_LOAD segments).
func (b *builder) build(entry uint64, typ FileType) []byte {
	phoff := uint64(ehdrSize)
	phEnd := phoff + uint64(len(b.segs))*phdrSize
	dataStart := alignUp(phEnd, pageSize)

	type placed struct {
		off uint64
	}
	offs := make([]placed, len(b.segs))
	cur := dataStart
	for i, s := range b.segs {
		if s.forceOffset >= 0 {
			offs[i] = placed{uint64(s.forceOffset)}
			continue
		}
		if s.typ == PT_LOAD {
			// Preserve p_vaddr % p_align == p_offset % p_align for the
			// page-aligned case used throughout these tests (align ==
			// pageSize, vaddr already page-aligned).
			cur = alignUp(cur, pageSize)
		}
		offs[i] = placed{cur}
		cur += uint64(len(s.fileData))
	}
	total := cur
	for _, s := range b.segs {
		if s.forceOffset >= 0 {
			if end := uint64(s.forceOffset) + s.memsz; end > total {
				total = end
			}
		}
	}

	buf := make([]byte, total)
	// e_ident
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[eiClass] = elfClass64
	buf[eiData] = elfData2LSB
	buf[eiVersion] = elfVersionCur
	b.le.PutUint16(buf[16:18], uint16(typ))
	b.le.PutUint16(buf[18:20], uint16(EM_X86_64))
	b.le.PutUint32(buf[20:24], elfVersionCur)
	b.le.PutUint64(buf[24:32], entry)
	b.le.PutUint64(buf[32:40], phoff)
	b.le.PutUint16(buf[52:54], ehdrSize)
	b.le.PutUint16(buf[54:56], phdrSize)
	b.le.PutUint16(buf[56:58], uint16(len(b.segs)))

	for i, s := range b.segs {
		ph := buf[phoff+uint64(i)*phdrSize:]
		align := s.align
		filesz := uint64(len(s.fileData))
		if s.forceOffset >= 0 {
			// Bytes already live inside an earlier PT_LOAD's fileData.
			filesz = s.memsz
		} else {
			copy(buf[offs[i].off:], s.fileData)
		}
		b.le.PutUint32(ph[0:4], uint32(s.typ))
		b.le.PutUint32(ph[4:8], uint32(s.flags))
		b.le.PutUint64(ph[8:16], offs[i].off)
		b.le.PutUint64(ph[16:24], s.vaddr)
		b.le.PutUint64(ph[24:32], s.vaddr) // p_paddr, unused
		b.le.PutUint64(ph[32:40], filesz)
		b.le.PutUint64(ph[40:48], s.memsz)
		b.le.PutUint64(ph[48:56], align)
	}

	return buf
}

// dynEntries encodes a sequence of (tag, val) pairs as a PT_DYNAMIC
// payload, terminated with DT_NULL.
func dynEntries(pairs ...uint64) []byte {
	buf := make([]byte, 0, (len(pairs)+2)*dynSize)
	put := func(tag, val uint64) {
		var e [dynSize]byte
		binary.LittleEndian.PutUint64(e[0:8], tag)
		binary.LittleEndian.PutUint64(e[8:16], val)
		buf = append(buf, e[:]...)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		put(pairs[i], pairs[i+1])
	}
	put(uint64(dtNull), 0)
	return buf
}

func relaEntry(offset, info uint64, addend int64) []byte {
	var e [relaSize]byte
	binary.LittleEndian.PutUint64(e[0:8], offset)
	binary.LittleEndian.PutUint64(e[8:16], info)
	binary.LittleEndian.PutUint64(e[16:24], uint64(addend))
	return e[:]
}

func relInfo(sym uint32, typ relType) uint64 {
	return uint64(sym)<<32 | uint64(typ)
}

// relrEntries encodes a sequence of raw DT_RELR words (address words
// and bitmap words alike) back to back, per the SysV gABI RELR
// encoding. Callers build the words themselves with relrBitmap.
func relrEntries(words ...uint64) []byte {
	buf := make([]byte, len(words)*relrEntrySize)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*relrEntrySize:], w)
	}
	return buf
}

// relrBitmap packs bits (bit j set means the location addr+(j+1)*8,
// relative to the preceding address word addr, needs a RELATIVE
// relocation) into a RELR bitmap word by shifting them above the
// marker bit.
func relrBitmap(bits uint64) uint64 {
	return bits<<1 | 1
}
