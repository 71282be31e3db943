// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostloader is a Linux/amd64 reference implementation of the
// two collaborator contracts pieload expects from its caller: a
// page-aligned anonymous allocator for Parsed.Load's destination
// buffer, and a Protector that installs real page protections with
// mprotect. Neither pieload nor its tests depend on this package; it
// exists so cmd/pieinfo can actually run a loaded image end to end.
package hostloader

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/aclements/go-pieload/pieload"
)

// mappings records, for every slice Allocate hands back that had to
// be trimmed for alignment, the untrimmed mapping Munmap actually
// needs. Keyed by the address of the trimmed slice's first byte.
var (
	mappingsMu sync.Mutex
	mappings   = map[uintptr][]byte{}
)

// Allocate reserves an anonymous, zero-filled mapping at least size
// bytes long whose start address is a multiple of align. align must
// be a power of two; when it exceeds the system page size, Allocate
// over-allocates by align bytes and trims the mapping to satisfy it.
func Allocate(size, align uint64) ([]byte, error) {
	if size == 0 {
		size = 1
	}
	extra := uint64(0)
	if align > uint64(unix.Getpagesize()) {
		extra = align
	}
	raw, err := unix.Mmap(-1, 0, int(size+extra), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("hostloader: mmap %d bytes: %w", size+extra, err)
	}
	if extra == 0 {
		return raw[:size], nil
	}

	addr := uintptr(unsafe.Pointer(&raw[0]))
	pad := (align - uint64(addr)%align) % align
	trimmed := raw[pad : pad+size]

	mappingsMu.Lock()
	mappings[uintptr(unsafe.Pointer(&trimmed[0]))] = raw
	mappingsMu.Unlock()

	return trimmed, nil
}

// Free releases a mapping previously returned by Allocate. mem must
// be the exact slice Allocate returned; Free looks up the mapping's
// true base itself, since Allocate may have trimmed mem from a larger
// mapping to satisfy alignment.
func Free(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	key := uintptr(unsafe.Pointer(&mem[0]))

	mappingsMu.Lock()
	raw, trimmed := mappings[key]
	delete(mappings, key)
	mappingsMu.Unlock()

	if trimmed {
		return unix.Munmap(raw)
	}
	return unix.Munmap(mem)
}

// Protect adapts unix.Mprotect to pieload.Protector: it rounds the
// requested range out to whole pages before calling mprotect, since
// the kernel only protects at page granularity.
func Protect(addr, length uintptr, prot pieload.Prot) error {
	if length == 0 {
		return nil
	}
	page := uintptr(unix.Getpagesize())
	start := addr &^ (page - 1)
	end := (addr + length + page - 1) &^ (page - 1)
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), int(end-start))

	var hostProt int
	if prot&pieload.ProtR != 0 {
		hostProt |= unix.PROT_READ
	}
	if prot&(pieload.ProtRW&^pieload.ProtR) != 0 {
		hostProt |= unix.PROT_WRITE
	}
	if prot&(pieload.ProtRX&^pieload.ProtR) != 0 {
		hostProt |= unix.PROT_EXEC
	}
	if err := unix.Mprotect(region, hostProt); err != nil {
		return fmt.Errorf("hostloader: mprotect %#x+%#x: %w", start, end-start, err)
	}
	return nil
}
