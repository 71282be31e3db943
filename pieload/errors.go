// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pieload

// Error is a compact, closed error enumeration. It fits in a machine
// register and never carries an allocation, matching the resource
// model in "CONCURRENCY & RESOURCE MODEL": every stage in this
// package fails with one of these codes rather than a wrapped error
// chain.
type Error uint8

const (
	errNone Error = iota

	ErrTooShort
	ErrBadMagic
	ErrBadClass
	ErrBadData
	ErrBadVersion
	ErrBadMachine
	ErrBadType
	ErrBadHeaderSize
	ErrTruncatedTable
	ErrBadSegment
	ErrSegmentOverlap
	ErrTooManySegments
	ErrBadEntry
	ErrBadDestination
	ErrBadDynamic
	ErrUnsupportedReloc
	ErrNotRelocatable
	ErrProtectFailed
)

var errText = [...]string{
	errNone:             "no error",
	ErrTooShort:         "input smaller than an ELF64 header",
	ErrBadMagic:         "bad ELF magic",
	ErrBadClass:         "not an ELF64 file",
	ErrBadData:          "not little-endian",
	ErrBadVersion:       "unsupported ELF version",
	ErrBadMachine:       "not an x86_64 image",
	ErrBadType:          "not ET_EXEC or ET_DYN",
	ErrBadHeaderSize:    "inconsistent header or entry size",
	ErrTruncatedTable:   "program header table or referenced segment extends beyond input",
	ErrBadSegment:       "PT_LOAD violates alignment, offset, or size invariants",
	ErrSegmentOverlap:   "PT_LOAD virtual ranges overlap",
	ErrTooManySegments:  "more segments than this package tracks",
	ErrBadEntry:         "entry point is not inside any PT_LOAD",
	ErrBadDestination:   "destination slice too small or misaligned",
	ErrBadDynamic:       "PT_DYNAMIC malformed or out of image bounds",
	ErrUnsupportedReloc: "relocation requires symbol resolution",
	ErrNotRelocatable:   "chosen base differs from the loader base for a non-relocatable image",
	ErrProtectFailed:    "protection callback failed",
}

// Error implements the error interface.
func (e Error) Error() string {
	if int(e) < len(errText) && errText[e] != "" {
		return errText[e]
	}
	return "pieload: unknown error"
}
