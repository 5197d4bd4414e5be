// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"fmt"
	"os"
)

// Allocator allocates and frees memory. Its zero value is ready for use,
// requesting anonymous pages from the OS as needed.
//
// Allocator performs no internal synchronization (spec.md §5): Lock and
// Unlock, if set, are invoked around every public entry point, letting
// an embedder serialize concurrent use with whatever primitive it likes.
// The default, nil, hooks make every method safe to call only from one
// goroutine at a time.
type Allocator struct {
	// Lock and Unlock are optional extension hooks wrapping every
	// public call, mirroring original_source/src/linux.c's
	// libhalloc_lock/libhalloc_unlock stubs. Left nil, they are no-ops.
	Lock   func()
	Unlock func()

	// Provider supplies pages of anonymous memory. Left nil, the OS
	// mmap-backed default is used.
	Provider PageProvider

	extents  extentList
	baseline int // usedBytes of the very first extent right after its bookkeeping allocation
	allocs   int
	frees    int
}

func (a *Allocator) provider() PageProvider {
	if a.Provider == nil {
		a.Provider = osPageProvider{}
	}
	return a.Provider
}

func (a *Allocator) lock() {
	if a.Lock != nil {
		a.Lock()
	}
}

func (a *Allocator) unlock() {
	if a.Unlock != nil {
		a.Unlock()
	}
}

// allocateFromExtent allocates payloadBytes from an extent already known
// to have room (either because canAllocate just confirmed it, or because
// it is a brand-new extent whose single free region spans it). It
// performs the remove/split/reinsert/mark-used sequence of spec.md
// §4.5 and returns the header address of the newly used region, or 0 if
// the extent turned out not to fit it after all.
func allocateFromExtent(e *extent, payloadBytes int) uintptr {
	need := payloadBytes + 2*tagSize
	addr := canAllocate(e, need)
	if addr == 0 {
		return 0
	}

	freeListRemove(e, addr)
	if splinter := split(addr, need); splinter != 0 {
		freeListInsert(e, splinter)
	}

	size := readTag(addr).size()
	markUsed(addr, size)
	e.usedBytes += size
	return addr
}

// findForAllocation implements spec.md §4.1's find_for_allocation: it
// returns an extent with a free region able to host payloadBytes,
// creating a new extent if none of the existing ones qualify. Every
// extent this method creates is linked into the extent list as soon as
// createExtent returns it, before any user allocation is carved from it,
// resolving spec.md §9's "dead branch" open question.
func (a *Allocator) findForAllocation(payloadBytes int) *extent {
	need := payloadBytes + 2*tagSize
	// A new extent must also hold its bookkeeping region and the
	// alignment padding in front of the new region.
	fit := need + minFreeRegionSize + 2*mallocAlign

	if a.extents.head == nil {
		initial := fit
		if initial < 4*a.provider().PageSize() {
			initial = 4 * a.provider().PageSize()
		}
		e, err := createExtent(a.provider(), initial)
		if err != nil {
			return nil
		}
		a.extents.insert(e)
		a.baseline = e.usedBytes
		return e
	}

	for e := a.extents.head; e != nil; e = e.next {
		if e.full() {
			continue
		}
		if canAllocate(e, need) != 0 {
			return e
		}
	}

	e, err := createExtent(a.provider(), fit)
	if err != nil {
		return nil
	}
	a.extents.insert(e)
	return e
}

// Allocate reserves n bytes and returns a slice aliasing them. The
// memory is not zeroed. For n == 0 it returns nil. Like the teacher's
// Malloc, a negative size is a programmer error: it panics rather than
// being silently treated as zero (spec.md §6/§4.5).
func (a *Allocator) Allocate(n int) (r []byte) {
	if trace {
		defer func() {
			fmt.Fprintf(os.Stderr, "Allocate(%#x) %#x\n", n, ptrOf(r))
		}()
	}

	a.lock()
	defer a.unlock()

	return a.allocate(n)
}

// allocate is Allocate's body without locking, so callers that already
// hold the lock for a larger operation (Reallocate, ZeroAllocate) can
// invoke it without re-entering Lock/Unlock.
func (a *Allocator) allocate(n int) []byte {
	if n < 0 {
		panic("invalid allocate size")
	}
	if n == 0 {
		return nil
	}

	e := a.findForAllocation(n)
	if e == nil {
		return nil
	}

	addr := allocateFromExtent(e, n)
	if addr == 0 {
		return nil
	}

	a.allocs++
	return bytesAt(addr+uintptr(tagSize), n)
}

// Free releases memory previously returned by Allocate, Reallocate or
// ZeroAllocate. A nil slice, a foreign slice not owned by a, or a slice
// already freed are all silently ignored, per spec.md §7's defensive
// policy.
func (a *Allocator) Free(p []byte) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "Free(%#x)\n", ptrOf(p)) }()
	}

	a.lock()
	defer a.unlock()

	a.free(p)
}

// free is Free's body without locking; see allocate.
func (a *Allocator) free(p []byte) {
	if len(p) == 0 {
		return
	}

	addr := addrOfBytes(p) - uintptr(tagSize)

	e := a.extents.findContaining(addr)
	if e == nil {
		return // foreign pointer
	}

	if !readTag(addr).used() {
		return // double free
	}

	size := readTag(addr).size()
	e.usedBytes -= size
	markFree(addr, size)
	freeListInsert(e, addr)
	coalesce(e, addr)
	a.frees++

	if isEmpty(e, a.baseline) {
		a.extents.remove(e)
		destroyExtent(a.provider(), e)
	}
}

// Reallocate changes the size of the region backing p to n bytes. If p
// is nil, it behaves like Allocate(n). If n equals the payload capacity
// recorded in p's header (UsableSize(p), which may exceed len(p)), p is
// returned unchanged. Otherwise a new region is allocated,
// the lesser of the old and new header-derived capacities is copied, and
// the old region is freed. No in-place grow or shrink is attempted
// (spec.md §4.5). On failure, nil is returned and p is left intact. The
// whole operation runs under a single Lock/Unlock pair (spec.md §5), not
// the separate ones Allocate/Free take internally.
func (a *Allocator) Reallocate(p []byte, n int) []byte {
	if trace {
		defer func(old uintptr) {
			fmt.Fprintf(os.Stderr, "Reallocate(%#x, %#x)\n", old, n)
		}(addrOfBytesOrZero(p))
	}

	a.lock()
	defer a.unlock()

	if len(p) == 0 {
		return a.allocate(n)
	}

	old := addrOfBytes(p) - uintptr(tagSize)
	oldPayload := readTag(old).size() - 2*tagSize
	if n == oldPayload {
		return p
	}

	r := a.allocate(n)
	if r == nil {
		return nil
	}

	copy(r, bytesAt(old+uintptr(tagSize), oldPayload))
	a.free(p)
	return r
}

// ZeroAllocate allocates count*size bytes, zeroes them and returns the
// result. It returns nil if size is zero. Per spec.md §9's documented
// open question, count*size is not checked for overflow: callers
// supplying an absurdly large count and size may see the product wrap.
// The allocation and zeroing run under a single Lock/Unlock pair.
func (a *Allocator) ZeroAllocate(count, size int) []byte {
	if size == 0 {
		return nil
	}

	a.lock()
	defer a.unlock()

	b := a.allocate(count * size)
	if b == nil {
		return nil
	}

	for i := range b {
		b[i] = 0
	}
	return b
}

// UsableSize reports the payload capacity of the live region backing p,
// which may be larger than the size originally requested.
func UsableSize(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	addr := addrOfBytes(p) - uintptr(tagSize)
	return readTag(addr).size() - 2*tagSize
}

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return addrOfBytes(b)
}

func addrOfBytesOrZero(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return addrOfBytes(b) - uintptr(tagSize)
}
