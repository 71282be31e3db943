// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

// Protector installs a memory protection triple over
// [addr, addr+length). The relocator calls it once per PT_LOAD, in
// program-header order, after every relocation has been applied.
// Overlapping calls are legal; per the protection callback contract,
// the last call wins for any byte covered by more than one PT_LOAD.
type Protector func(addr uintptr, length uintptr, prot Prot) error

// RelocOptions controls relocation kinds this package accepts beyond
// the mandatory R_X86_64_RELATIVE/R_X86_64_NONE pair. See "Open
// questions" in the design notes: producer toolchains disagree on
// whether R_X86_64_64/GLOB_DAT/JUMP_SLOT with a zero symbol index are
// legal aliases of RELATIVE, so this package requires an explicit
// opt-in rather than silently accepting them.
type RelocOptions struct {
	// AllowAliasedRelative treats R_X86_64_64, R_X86_64_GLOB_DAT, and
	// R_X86_64_JUMP_SLOT entries with a zero symbol index as
	// RELATIVE, using the slot's current contents as the addend.
	AllowAliasedRelative bool
}

// Ready is the result of a successful Reloc: a fully relocated image
// with protections installed, ready for the caller to jump to Entry.
type Ready struct {
	dest  []byte
	entry uintptr
	base  uintptr
}

// Reloc applies dynamic relocations against base and, if protect is
// non-nil, invokes it once per PT_LOAD with the final protection
// triple derived from p_flags.
//
// If the image has no PT_DYNAMIC segment, it carries no relocations;
// base must then equal l.LoaderBase(), or Reloc fails with
// ErrNotRelocatable.
//
// On failure, Reloc returns the destination slice l owned so the
// caller can dispose of it; the slice may be partially relocated.
func (l *Loaded) Reloc(base uintptr, protect Protector) (*Ready, []byte, error) {
	return l.RelocOptions(base, protect, RelocOptions{})
}

// RelocOptions is like Reloc but accepts explicit extension flags; see
// RelocOptions.
func (l *Loaded) RelocOptions(base uintptr, protect Protector, opts RelocOptions) (*Ready, []byte, error) {
	if !l.hasDynamic {
		if base != l.LoaderBase() {
			return nil, l.dest, ErrNotRelocatable
		}
	} else if err := l.applyDynamic(base, opts); err != nil {
		return nil, l.dest, err
	}

	if protect != nil {
		for _, s := range l.parsed.segs.slice() {
			off := s.VAddr - l.minVAddr
			length := alignUp(s.MemSize, pageSize)
			if err := protect(base+uintptr(off), uintptr(length), protFromFlags(s.Flags)); err != nil {
				return nil, l.dest, ErrProtectFailed
			}
		}
	}

	return &Ready{
		dest:  l.dest,
		entry: base + uintptr(l.entryOff),
		base:  base,
	}, nil, nil
}

// Entry returns the absolute address of the image's entry point,
// base + (e_entry - min_vaddr).
func (r *Ready) Entry() uintptr {
	return r.entry
}

// Mem returns the destination slice backing the relocated image.
func (r *Ready) Mem() []byte {
	return r.dest
}

// Base returns the virtual base the image was relocated against.
func (r *Ready) Base() uintptr {
	return r.base
}

// span returns the byte range of the loaded image within dest.
func (l *Loaded) span() uint64 {
	return l.parsed.MemLen()
}

func (l *Loaded) applyDynamic(base uintptr, opts RelocOptions) error {
	span := l.span()
	if l.dynOff+dynSize > span {
		// Shouldn't happen: Parsed already checked PT_DYNAMIC fits
		// inside a PT_LOAD, but guard against a degenerate span.
		return ErrBadDynamic
	}

	var relaAddr, relaTotalSz, relaEntSz uint64
	var relrAddr, relrTotalSz, relrEntSz uint64
	haveRela, haveRelr := false, false

	for off := l.dynOff; off+dynSize <= span; off += dynSize {
		tag := dynTag(int64(leLayout.Uint64(l.dest[off : off+8])))
		if tag == dtNull {
			break
		}
		val := leLayout.Uint64(l.dest[off+8 : off+16])
		switch tag {
		case dtRela:
			relaAddr = val
			haveRela = true
		case dtRelaSz:
			relaTotalSz = val
		case dtRelaEnt:
			relaEntSz = val
		case dtRelr:
			relrAddr = val
			haveRelr = true
		case dtRelrSz:
			relrTotalSz = val
		case dtRelrEnt:
			relrEntSz = val
		}
	}

	if haveRela {
		if relaEntSz != relaSize {
			return ErrBadDynamic
		}
		if err := l.applyRela(relaAddr, relaTotalSz, base, opts); err != nil {
			return err
		}
	}

	if haveRelr {
		if relrEntSz != relrEntrySize {
			return ErrBadDynamic
		}
		if err := l.applyRelr(relrAddr, relrTotalSz, base); err != nil {
			return err
		}
	}

	return nil
}

// relrEntrySize is sizeof(Elf64_Addr), the required DT_RELRENT value.
const relrEntrySize = 8

// inImageOffset validates that the virtual address vaddr, followed by
// size bytes, lies wholly inside the loaded image and returns its
// in-image byte offset.
func (l *Loaded) inImageOffset(vaddr, size uint64) (uint64, bool) {
	span := l.span()
	if vaddr < l.minVAddr {
		return 0, false
	}
	off := vaddr - l.minVAddr
	end, ok := addNoWrap(off, size)
	if !ok || end > span {
		return 0, false
	}
	return off, true
}

func (l *Loaded) applyRela(vaddr, size uint64, base uintptr, opts RelocOptions) error {
	tableOff, ok := l.inImageOffset(vaddr, size)
	if !ok {
		return ErrBadDynamic
	}
	if size%relaSize != 0 {
		return ErrBadDynamic
	}

	for i := uint64(0); i < size; i += relaSize {
		entry := l.dest[tableOff+i : tableOff+i+relaSize]
		rOffset := leLayout.Uint64(entry[0:8])
		rInfo := leLayout.Uint64(entry[8:16])
		rAddend := int64(leLayout.Uint64(entry[16:24]))

		typ := relType(uint32(rInfo))
		sym := uint32(rInfo >> 32)

		slotOff, ok := l.inImageOffset(rOffset, 8)
		if !ok {
			return ErrBadDynamic
		}

		switch {
		case typ == rNone:
			// no-op

		case typ == rX86_64_relative && sym == 0:
			leLayout.Order().PutUint64(l.dest[slotOff:slotOff+8], uint64(base)+uint64(rAddend))

		case opts.AllowAliasedRelative && sym == 0 &&
			(typ == rX86_64_64 || typ == rX86_64_globDat || typ == rX86_64_jumpSlot):
			cur := leLayout.Uint64(l.dest[slotOff : slotOff+8])
			leLayout.Order().PutUint64(l.dest[slotOff:slotOff+8], uint64(base)+cur)

		case sym != 0:
			return ErrUnsupportedReloc

		default:
			return ErrUnsupportedReloc
		}
	}
	return nil
}

// applyRelr applies a DT_RELR-encoded stream of implicit
// R_X86_64_RELATIVE relocations, per the SysV gABI RELR bitmap
// encoding: each 8-byte entry either holds an even virtual address
// (the next relocation location, with successive locations implied by
// consecutive words) or, when its low bit is set, a bitmap of offsets
// relative to the last address word, one bit per 8-byte word.
func (l *Loaded) applyRelr(vaddr, size uint64, base uintptr) error {
	tableOff, ok := l.inImageOffset(vaddr, size)
	if !ok {
		return ErrBadDynamic
	}
	if size%relrEntrySize != 0 {
		return ErrBadDynamic
	}

	var addr uint64
	haveAddr := false

	for i := uint64(0); i < size; i += relrEntrySize {
		word := leLayout.Uint64(l.dest[tableOff+i : tableOff+i+8])

		if word&1 == 0 || !haveAddr {
			// A location word. The very first entry in a RELR table
			// must be a location word by construction.
			addr = word
			haveAddr = true
			if err := l.relrRelative(addr, base); err != nil {
				return err
			}
			addr += 8
			continue
		}

		// A bitmap word: bit i (i>=1) of word describes the location
		// addr + (i-1)*8, addr being the first word not yet covered.
		bits := word >> 1
		cur := addr
		for bits != 0 {
			if bits&1 != 0 {
				if err := l.relrRelative(cur, base); err != nil {
					return err
				}
			}
			cur += 8
			bits >>= 1
		}
		addr += 8 * 63
	}
	return nil
}

func (l *Loaded) relrRelative(vaddr uint64, base uintptr) error {
	off, ok := l.inImageOffset(vaddr, 8)
	if !ok {
		return ErrBadDynamic
	}
	cur := leLayout.Uint64(l.dest[off : off+8])
	leLayout.Order().PutUint64(l.dest[off:off+8], uint64(base)+cur)
	return nil
}
