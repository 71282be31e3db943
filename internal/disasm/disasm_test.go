// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"strings"
	"testing"
)

func TestListingDecodesKnownBytes(t *testing.T) {
	// c3 = RET
	code := []byte{0xc3, 0xc3, 0xc3}
	insts := Listing(code, 0x1000, 2)
	if len(insts) != 2 {
		t.Fatalf("Listing returned %d instructions, want 2", len(insts))
	}
	if insts[0].PC != 0x1000 || insts[1].PC != 0x1001 {
		t.Errorf("PCs = %#x, %#x, want 0x1000, 0x1001", insts[0].PC, insts[1].PC)
	}
	for _, in := range insts {
		if in.Len != 1 {
			t.Errorf("Len = %d, want 1 for RET", in.Len)
		}
	}
}

func TestListingNeverPanicsOnGarbage(t *testing.T) {
	code := make([]byte, 32)
	for i := range code {
		code[i] = 0x0f // a common opcode-escape prefix, likely to produce decode errors alone
	}
	insts := Listing(code, 0, 100)
	if len(insts) == 0 {
		t.Fatal("Listing produced no instructions")
	}
}

func TestString(t *testing.T) {
	insts := []Inst{{PC: 0x400000, Len: 1, Text: "RET"}}
	out := String(insts)
	if !strings.Contains(out, "0x400000") || !strings.Contains(out, "RET") {
		t.Errorf("String output = %q, missing expected fields", out)
	}
}
