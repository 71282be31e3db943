// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

// Package pieload implements the SysV gABI subset needed to parse,
// load, and relocate a position-independent ELF64 x86_64 image. The
// constants below name only the fields this package inspects; see the
// SysV gABI and the x86_64 psABI for the full definitions.

const (
	ehdrSize = 64 // sizeof(Elf64_Ehdr)
	phdrSize = 56 // sizeof(Elf64_Phdr)
	dynSize  = 16 // sizeof(Elf64_Dyn)
	relaSize = 24 // sizeof(Elf64_Rela)

	pageSize = 4096

	// maxSegments bounds the number of PT_LOAD entries this
	// package will track without allocating. See "Bounded segment
	// table without heap" in the design notes.
	maxSegments = 64
)

// e_ident indices.
const (
	eiMag0    = 0
	eiMag1    = 1
	eiMag2    = 2
	eiMag3    = 3
	eiClass   = 4
	eiData    = 5
	eiVersion = 6
)

const (
	elfClass64    = 2
	elfData2LSB   = 1
	elfVersionCur = 1
)

// FileType is the e_type field of an ELF header.
type FileType uint16

const (
	ET_EXEC FileType = 2
	ET_DYN  FileType = 3
)

func (t FileType) String() string {
	switch t {
	case ET_EXEC:
		return "ET_EXEC"
	case ET_DYN:
		return "ET_DYN"
	default:
		return "unknown"
	}
}

// Machine is the e_machine field of an ELF header.
type Machine uint16

// EM_X86_64 is the only machine this package accepts.
const EM_X86_64 Machine = 62

// SegmentType is the p_type field of a program header.
type SegmentType uint32

const (
	PT_NULL    SegmentType = 0
	PT_LOAD    SegmentType = 1
	PT_DYNAMIC SegmentType = 2
)

// SegmentFlags is the p_flags field of a program header.
type SegmentFlags uint32

const (
	PF_X SegmentFlags = 1 << 0
	PF_W SegmentFlags = 1 << 1
	PF_R SegmentFlags = 1 << 2
)

// dynTag is the d_tag field of a dynamic table entry.
type dynTag int64

const (
	dtNull      dynTag = 0
	dtRela      dynTag = 7
	dtRelaSz    dynTag = 8
	dtRelaEnt   dynTag = 9
	dtRelaCount dynTag = 0x6ffffff9
	dtRelrSz    dynTag = 35
	dtRelr      dynTag = 36
	dtRelrEnt   dynTag = 37
)

// relType is the low 32 bits of r_info in a relocation entry.
type relType uint32

const (
	rNone            relType = 0
	rX86_64_64       relType = 1
	rX86_64_relative relType = 8
	rX86_64_globDat  relType = 6
	rX86_64_jumpSlot relType = 7
)

// Prot is a memory protection triple, as passed to a Protector. Its
// bits line up with SegmentFlags so it can be derived by a mask.
type Prot uint8

const (
	protR Prot = 1 << 2
	protW Prot = 1 << 1
	protX Prot = 1 << 0
)

const (
	ProtR   = protR
	ProtRW  = protR | protW
	ProtRX  = protR | protX
	ProtRWX = protR | protW | protX
)

func (p Prot) String() string {
	s := [3]byte{'-', '-', '-'}
	if p&protR != 0 {
		s[0] = 'r'
	}
	if p&protW != 0 {
		s[1] = 'w'
	}
	if p&protX != 0 {
		s[2] = 'x'
	}
	return string(s[:])
}

func protFromFlags(f SegmentFlags) Prot {
	return Prot(f & (PF_R | PF_W | PF_X))
}
