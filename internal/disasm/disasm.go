// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm prints a short x86-64 instruction listing starting
// at a relocated entry point, for cmd/pieinfo's diagnostic output.
// It never drives control flow and is not part of the loading or
// relocation path.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Inst is one decoded instruction, or a one-byte placeholder if
// decoding failed at pc.
type Inst struct {
	PC   uint64
	Len  int
	Text string
}

// Listing decodes up to n instructions from code, which begins at
// virtual address pc. A decode failure at any offset produces a
// single-byte placeholder instruction and resumes at the next byte,
// so callers never see gaps.
func Listing(code []byte, pc uint64, n int) []Inst {
	var out []Inst
	for len(code) > 0 && len(out) < n {
		inst, err := x86asm.Decode(code, 64)
		size := inst.Len
		if err != nil || size == 0 {
			out = append(out, Inst{PC: pc, Len: 1, Text: "(bad)"})
			size = 1
		} else {
			out = append(out, Inst{PC: pc, Len: size, Text: x86asm.GoSyntax(inst, pc, nil)})
		}
		code = code[size:]
		pc += uint64(size)
	}
	return out
}

// String renders a Listing the way objdump-style tools do: one
// "  addr:  text" line per instruction.
func String(insts []Inst) string {
	var b strings.Builder
	for _, in := range insts {
		fmt.Fprintf(&b, "  0x%06x:  %s\n", in.PC, in.Text)
	}
	return b.String()
}
