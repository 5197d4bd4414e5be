// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "unsafe"

// tag is a region's boundary tag: the 4-byte word stored identically as
// a region's header and its footer. Bit 31 is the used flag, bits 0-27
// hold the region's total size (header + payload + footer), bits 28-30
// are reserved and always zero. This is the Go realization of the C
// bitfield struct AllocMetadata_s in original_source/src/malloc.c.
type tag uint32

const (
	usedBit  = uint32(1) << 31
	sizeMask = uint32(1)<<28 - 1
)

func makeTag(used bool, size int) tag {
	t := tag(uint32(size) & sizeMask)
	if used {
		t |= tag(usedBit)
	}
	return t
}

func (t tag) used() bool { return uint32(t)&usedBit != 0 }
func (t tag) size() int  { return int(uint32(t) & sizeMask) }

func readTag(addr uintptr) tag            { return *(*tag)(unsafe.Pointer(addr)) }
func writeTag(addr uintptr, t tag)         { *(*tag)(unsafe.Pointer(addr)) = t }
func footerAddr(headerAddr uintptr, size int) uintptr {
	return headerAddr + uintptr(size) - uintptr(tagSize)
}

// reservedSize is the 4-byte padding word that follows a free region's
// header so that the next/prev pointers stay 8-byte aligned on 64-bit
// targets, mirroring FreeRegionHeader_s.__reserved in the C original.
const reservedSize = 4

// linksOffset is the byte offset from a free region's header address to
// its next/prev pointer pair.
const linksOffset = tagSize + reservedSize

// freeNode overlays the next/prev sibling pointers of one segregated
// free list onto what would otherwise be user payload. It is valid only
// while the region's boundary tag says used == false; the bytes are
// reclaimed as payload the instant the region is marked used.
type freeNode struct {
	next *freeNode
	prev *freeNode
}

// freeNodeSize is the number of bytes, counting the header itself, a
// region needs ahead of its footer to host the free-list overlay.
const freeNodeSize = linksOffset + 2*int(unsafe.Sizeof(uintptr(0)))

// minFreeRegionSize is the smallest region size that can be a member of
// a free list: big enough for header, footer and the link overlay. A
// 16-byte region (the global minimum region size) is too small to host
// two pointers on 64-bit targets and so, per spec.md's design notes,
// never appears in a free list - it can only exist transiently during
// coalescing.
var minFreeRegionSize = roundup(freeNodeSize+tagSize, mallocAlign)

func freeNodeAt(headerAddr uintptr) *freeNode {
	return (*freeNode)(unsafe.Pointer(headerAddr + uintptr(linksOffset)))
}

// markUsed rewrites both boundary tags of the region at addr to used.
func markUsed(addr uintptr, size int) {
	writeTag(addr, makeTag(true, size))
	writeTag(footerAddr(addr, size), makeTag(true, size))
}

// markFree rewrites both boundary tags of the region at addr to free and
// clears its overlay link pointers.
func markFree(addr uintptr, size int) {
	writeTag(addr, makeTag(false, size))
	writeTag(footerAddr(addr, size), makeTag(false, size))
	n := freeNodeAt(addr)
	n.next = nil
	n.prev = nil
}

// bytesAt returns a byte slice aliasing the size bytes of payload
// starting at addr. addr must come from a live, used region.
func bytesAt(addr uintptr, size int) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

func addrOfBytes(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }
