// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "unsafe"

// extent is the fixed-size record living at offset 0 of every OS-backed
// extent ("block" in original_source/src/malloc.c's BlockHeader_t). It
// records the extent's page/byte accounting, its place in the
// address-ordered extent list, and the six segregated free-list heads.
type extent struct {
	pages      int
	totalBytes int
	usedBytes  int
	prev, next *extent
	freeHeads  [numClasses]*freeNode
}

// extentHeaderSize is the 16-byte-rounded footprint of the extent header
// at the start of every extent.
var extentHeaderSize = roundup(int(unsafe.Sizeof(extent{})), mallocAlign)

// bookkeepingPayload is the synthetic allocation spec.md §3/§4.1
// describes: "an initial used region of size 2*sizeof(pointer) ... is
// allocated at the extent head to reserve alignment". It is never freed
// by user action.
var bookkeepingPayload = 2 * int(unsafe.Sizeof(uintptr(0)))

func extentAt(addr uintptr) *extent { return (*extent)(unsafe.Pointer(addr)) }
func addrOfExtent(e *extent) uintptr { return uintptr(unsafe.Pointer(e)) }

// dataStart is the address of the first byte following an extent's
// header - where its first region begins.
func (e *extent) dataStart() uintptr { return addrOfExtent(e) + uintptr(extentHeaderSize) }

// dataEnd is one past the last byte belonging to this extent.
func (e *extent) dataEnd() uintptr { return addrOfExtent(e) + uintptr(e.totalBytes) }

// contains reports whether addr falls within this extent's byte range.
func (e *extent) contains(addr uintptr) bool {
	start := addrOfExtent(e)
	return addr >= start && addr < start+uintptr(e.totalBytes)
}

// full reports whether the extent has no bytes left to hand out.
func (e *extent) full() bool { return e.usedBytes >= e.totalBytes }

// createExtent acquires enough pages from provider to hold requestedBytes
// of payload plus all the bookkeeping spec.md §4.1 names, lays out the
// extent header and one free region covering the remainder, performs the
// synthetic bookkeeping allocation, and returns the new extent. The
// extent is NOT linked into any list; the caller must link it before use
// (spec.md §9's "every newly created extent is linked before being
// used").
func createExtent(provider PageProvider, requestedBytes int) (*extent, error) {
	needed := requestedBytes + extentHeaderSize + freeNodeSize + tagSize
	ps := provider.PageSize()
	pages := roundup(needed, ps) / ps
	if pages < 1 {
		pages = 1
	}

	addr, err := provider.Acquire(pages)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	e := extentAt(addr)
	*e = extent{
		pages:      pages,
		totalBytes: pages * ps,
	}

	freeAddr := e.dataStart()
	freeSize := e.totalBytes - extentHeaderSize
	markFree(freeAddr, freeSize)
	e.freeHeads[numClasses-1] = freeNodeAt(freeAddr)
	e.usedBytes = extentHeaderSize

	if addr := allocateFromExtent(e, bookkeepingPayload); addr == 0 {
		// Should be unreachable: a freshly created extent always has
		// room for the minimal bookkeeping allocation.
		return nil, ErrOutOfMemory
	}

	return e, nil
}

// destroyExtent returns an extent's pages to the page provider. The
// caller must have already unlinked e from the extent list.
func destroyExtent(provider PageProvider, e *extent) error {
	return provider.Release(addrOfExtent(e), e.pages)
}

// isEmpty reports whether e carries no user allocations - only its own
// bookkeeping region remains live - per spec.md §4.1's is_empty, using
// the baseline captured right after the very first extent's creation.
func isEmpty(e *extent, baseline int) bool { return e.usedBytes <= baseline }

// extentList is the address-ordered doubly-linked list of all live
// extents (spec.md invariant 6).
type extentList struct {
	head *extent
}

// insert links e into the list keeping ascending address order.
func (l *extentList) insert(e *extent) {
	if l.head == nil {
		e.prev, e.next = nil, nil
		l.head = e
		return
	}

	if addrOfExtent(l.head) > addrOfExtent(e) {
		e.next = l.head
		e.prev = nil
		l.head.prev = e
		l.head = e
		return
	}

	cur := l.head
	for cur.next != nil && addrOfExtent(cur.next) < addrOfExtent(e) {
		cur = cur.next
	}
	e.next = cur.next
	e.prev = cur
	if cur.next != nil {
		cur.next.prev = e
	}
	cur.next = e
}

// remove unlinks e from the list.
func (l *extentList) remove(e *extent) {
	switch {
	case e.prev == nil && e.next == nil:
		l.head = nil
	case e.prev == nil:
		l.head = e.next
		e.next.prev = nil
	case e.next == nil:
		e.prev.next = nil
	default:
		e.prev.next = e.next
		e.next.prev = e.prev
	}
	e.prev, e.next = nil, nil
}

// findContaining does a linear scan of the extent list for the extent
// owning addr (spec.md §4.1's find_containing). O(#extents), acceptable
// because extent counts are small in the target workload.
func (l *extentList) findContaining(addr uintptr) *extent {
	for e := l.head; e != nil; e = e.next {
		if e.contains(addr) {
			return e
		}
	}
	return nil
}
