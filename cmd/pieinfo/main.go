// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pieinfo loads a position-independent ELF64 x86_64 image
// with pieload, relocates it against a real anonymous mapping using
// hostloader, and prints a merged memory map plus a short
// disassembly listing at the entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aclements/go-pieload/hostloader"
	"github.com/aclements/go-pieload/internal/disasm"
	"github.com/aclements/go-pieload/internal/segmap"
	"github.com/aclements/go-pieload/pieload"
)

func mainE() error {
	var allowAliased bool
	var listLen int
	flag.BoolVar(&allowAliased, "allow-aliased-relative", false, "accept R_X86_64_64/GLOB_DAT/JUMP_SLOT with symbol 0 as RELATIVE")
	flag.IntVar(&listLen, "n", 8, "number of instructions to disassemble at the entry point")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		return fmt.Errorf("got %d arguments, expected 1", len(args))
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	parsed, err := pieload.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Printf("machine: %v  type: %v  mem: %d bytes, align %d\n",
		parsed.Machine(), parsed.Type(), parsed.MemLen(), parsed.MemAlign())

	dest, err := hostloader.Allocate(parsed.MemLen(), parsed.MemAlign())
	if err != nil {
		return err
	}
	defer hostloader.Free(dest)

	loaded, back, err := parsed.Load(dest)
	if err != nil {
		return fmt.Errorf("%s: load: %w (returned %d bytes)", args[0], err, len(back))
	}

	base := loaded.LoaderBase()

	var m segmap.Map
	protect := func(addr, length uintptr, prot pieload.Prot) error {
		m.Insert(segmap.Range{Low: uint64(addr), High: uint64(addr) + uint64(length)},
			segmap.Mapping{Prot: uint8(prot), Name: prot.String()})
		return hostloader.Protect(addr, length, prot)
	}

	ready, _, err := loaded.RelocOptions(base, protect, pieload.RelocOptions{AllowAliasedRelative: allowAliased})
	if err != nil {
		return fmt.Errorf("%s: relocate: %w", args[0], err)
	}

	fmt.Println("memory map:")
	m.All(func(r segmap.Range, v segmap.Mapping) bool {
		fmt.Printf("  %v  %s\n", r, v.Name)
		return true
	})

	fmt.Printf("entry: %#x\n", ready.Entry())

	entryOff := ready.Entry() - base
	mem := ready.Mem()
	if entryOff >= uintptr(len(mem)) {
		return errors.New("entry point falls outside the loaded image")
	}
	insts := disasm.Listing(mem[entryOff:], uint64(ready.Entry()), listLen)
	fmt.Print(disasm.String(insts))

	return nil
}

func main() {
	if err := mainE(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
