// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"testing"
	"unsafe"
)

// TestAllocateFreeInt mirrors original_source/src/main.c's
// test_malloc_free_int: allocate one int, write through it, free it.
func TestAllocateFreeInt(t *testing.T) {
	var a Allocator
	p := a.Allocate(int(unsafe.Sizeof(int32(0))))
	if p == nil {
		t.Fatal("Allocate returned nil")
	}
	if addrOfBytes(p)%mallocAlign != 0 {
		t.Fatalf("payload %#x not 16-byte aligned", ptrOf(p))
	}

	*(*int32)(unsafe.Pointer(&p[0])) = 42
	if got := *(*int32)(unsafe.Pointer(&p[0])); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}

	a.Free(p)
}

// TestAllocateFreeFiveInts mirrors test_malloc_free_5int.
func TestAllocateFreeFiveInts(t *testing.T) {
	var a Allocator
	var ps [5][]byte
	for i := range ps {
		ps[i] = a.Allocate(4)
		if ps[i] == nil {
			t.Fatalf("Allocate #%d returned nil", i)
		}
		if addrOfBytes(ps[i])%mallocAlign != 0 {
			t.Fatalf("payload #%d not 16-byte aligned", i)
		}
	}

	for i := range ps {
		*(*int32)(unsafe.Pointer(&ps[i][0])) = int32(42 + i)
	}
	for i := range ps {
		if got := *(*int32)(unsafe.Pointer(&ps[i][0])); got != int32(42+i) {
			t.Fatalf("slot %d: got %d, want %d", i, got, 42+i)
		}
	}

	for _, p := range ps {
		a.Free(p)
	}
}

// TestAllocateZero exercises spec.md §4.5's "n == 0, unspecified but
// safe to return nil" contract.
func TestAllocateZero(t *testing.T) {
	var a Allocator
	if p := a.Allocate(0); p != nil {
		t.Fatalf("Allocate(0) = %v, want nil", p)
	}
}

// TestAllocateNegativePanics mirrors cznic-memory/memory.go's Malloc,
// which panics on a negative size instead of treating it like zero.
func TestAllocateNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Allocate(-1) did not panic")
		}
	}()
	var a Allocator
	a.Allocate(-1)
}

// TestFreeNil and TestFreeForeign exercise spec.md §7's silent defensive
// handling of nil and foreign pointers.
func TestFreeNil(t *testing.T) {
	var a Allocator
	a.Free(nil) // must not panic
}

func TestFreeForeign(t *testing.T) {
	var a Allocator
	foreign := make([]byte, 64)
	a.Free(foreign) // must not panic, must not touch a's extents
	if a.extents.head != nil {
		t.Fatal("freeing a foreign slice should not create or touch any extent")
	}
}

// TestFreeDouble exercises the double-free defence: used == 0 makes the
// second Free a silent no-op. A second live allocation keeps the extent
// from being released by the first Free, so the second Free reaches the
// used check rather than the foreign-pointer check.
func TestFreeDouble(t *testing.T) {
	var a Allocator
	p := a.Allocate(32)
	keep := a.Allocate(32)
	a.Free(p)
	a.Free(p) // must not panic or corrupt state
	a.Free(keep)
}

// TestAlignment is property P1: every non-nil Allocate(n>0) result is
// 16-byte aligned.
func TestAlignment(t *testing.T) {
	var a Allocator
	for _, n := range []int{1, 2, 3, 7, 15, 16, 17, 31, 63, 64, 127, 255, 500, 513, 4096, 9001} {
		p := a.Allocate(n)
		if p == nil {
			t.Fatalf("Allocate(%d) = nil", n)
		}
		if addrOfBytes(p)%mallocAlign != 0 {
			t.Fatalf("Allocate(%d): payload %#x not 16-byte aligned", n, ptrOf(p))
		}
		a.Free(p)
	}
}

// TestIsolation is property P2: live allocations never overlap.
func TestIsolation(t *testing.T) {
	var a Allocator
	var live [][]byte
	for i := 0; i < 200; i++ {
		size := 1 + (i*37)%2000
		p := a.Allocate(size)
		if p == nil {
			t.Fatalf("Allocate(%d) = nil", size)
		}
		for _, q := range live {
			if overlap(p, q) {
				t.Fatalf("new allocation overlaps a live one")
			}
		}
		live = append(live, p)
	}
	for _, p := range live {
		a.Free(p)
	}
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	as, ae := addrOfBytes(a), addrOfBytes(a)+uintptr(len(a))
	bs, be := addrOfBytes(b), addrOfBytes(b)+uintptr(len(b))
	return as < be && bs < ae
}

// TestHeaderFooterAgree is property P3.
func TestHeaderFooterAgree(t *testing.T) {
	var a Allocator
	ps := make([][]byte, 0, 32)
	for i := 0; i < 32; i++ {
		ps = append(ps, a.Allocate(16+i*13))
	}
	for i, p := range ps {
		if i%3 == 0 {
			a.Free(p)
		}
	}
	assertHeaderFooterAgree(t, &a)
}

func assertHeaderFooterAgree(t *testing.T, a *Allocator) {
	t.Helper()
	for e := a.extents.head; e != nil; e = e.next {
		addr := e.dataStart()
		end := e.dataEnd()
		for addr < end {
			h := readTag(addr)
			f := readTag(footerAddr(addr, h.size()))
			if h != f {
				t.Fatalf("header/footer mismatch at %#x: header=%+v footer=%+v", addr, h, f)
			}
			if h.size() <= 0 {
				t.Fatalf("non-positive region size at %#x", addr)
			}
			addr += uintptr(h.size())
		}
		if addr != end {
			t.Fatalf("regions do not exactly tile extent: ended at %#x, extent ends at %#x", addr, end)
		}
	}
}

// TestNoAdjacentFree is property P4.
func TestNoAdjacentFree(t *testing.T) {
	var a Allocator
	var ps [][]byte
	for i := 0; i < 64; i++ {
		ps = append(ps, a.Allocate(24+i))
	}
	for i, p := range ps {
		if i%2 == 0 {
			a.Free(p)
		}
	}
	assertNoAdjacentFree(t, &a)
}

func assertNoAdjacentFree(t *testing.T, a *Allocator) {
	t.Helper()
	for e := a.extents.head; e != nil; e = e.next {
		addr := e.dataStart()
		end := e.dataEnd()
		prevFree := false
		for addr < end {
			h := readTag(addr)
			if !h.used() && prevFree {
				t.Fatalf("two adjacent free regions ending/starting at %#x", addr)
			}
			prevFree = !h.used()
			addr += uintptr(h.size())
		}
	}
}

// TestExtentDrain is property P5: matching allocate/free pairs that
// return the heap to "no user allocations" leave no extent live.
func TestExtentDrain(t *testing.T) {
	var a Allocator
	var ps [][]byte
	for i := 0; i < 50; i++ {
		ps = append(ps, a.Allocate(64))
	}
	for _, p := range ps {
		a.Free(p)
	}
	if a.extents.head != nil {
		t.Fatal("extent list should be empty after draining all user allocations")
	}
}

// TestReallocPreservesContent is property P6.
func TestReallocPreservesContent(t *testing.T) {
	var a Allocator
	p := a.Allocate(100)
	for i := range p {
		p[i] = byte(i)
	}

	grown := a.Reallocate(p, 300)
	if grown == nil {
		t.Fatal("Reallocate grow failed")
	}
	for i := 0; i < 100; i++ {
		if grown[i] != byte(i) {
			t.Fatalf("byte %d corrupted on grow: got %d, want %d", i, grown[i], byte(i))
		}
	}

	shrunk := a.Reallocate(grown, 40)
	if shrunk == nil {
		t.Fatal("Reallocate shrink failed")
	}
	for i := 0; i < 40; i++ {
		if shrunk[i] != byte(i) {
			t.Fatalf("byte %d corrupted on shrink: got %d, want %d", i, shrunk[i], byte(i))
		}
	}
	a.Free(shrunk)
}

func TestReallocateNilIsAllocate(t *testing.T) {
	var a Allocator
	p := a.Reallocate(nil, 50)
	if p == nil || len(p) != 50 {
		t.Fatalf("Reallocate(nil, 50) = %v", p)
	}
	a.Free(p)
}

// TestReallocateSameSizeReturnsSamePointer asks for exactly the payload
// capacity recorded in p's header (UsableSize), which Reallocate treats
// as an unchanged size.
func TestReallocateSameSizeReturnsSamePointer(t *testing.T) {
	var a Allocator
	p := a.Allocate(80)
	q := a.Reallocate(p, UsableSize(p))
	if &p[0] != &q[0] {
		t.Fatal("Reallocate with unchanged size should return the same backing memory")
	}
	a.Free(q)
}

// TestZeroAllocateZeroes is property P7.
func TestZeroAllocateZeroes(t *testing.T) {
	var a Allocator
	p := a.ZeroAllocate(10, 37)
	if len(p) != 370 {
		t.Fatalf("len = %d, want 370", len(p))
	}
	for i, v := range p {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0", i, v)
		}
	}
	a.Free(p)
}

func TestZeroAllocateSizeZero(t *testing.T) {
	var a Allocator
	if p := a.ZeroAllocate(10, 0); p != nil {
		t.Fatalf("ZeroAllocate(_, 0) = %v, want nil", p)
	}
}

func TestUsableSize(t *testing.T) {
	var a Allocator
	p := a.Allocate(20)
	if got := UsableSize(p); got < 20 {
		t.Fatalf("UsableSize = %d, want >= 20", got)
	}
	a.Free(p)
}
