// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

// align computes the total number of bytes an allocation of need bytes
// will consume inside the free region at addr so that the payload of the
// would-be splinter - the byte just past that splinter's header - is
// 16-byte aligned, with room left for the splinter's own boundary tags
// and link overlay (spec.md §4.3).
func align(addr uintptr, need int) int {
	if need < minFreeRegionSize {
		need = minFreeRegionSize
	}

	tentativeEnd := addr + uintptr(need) + uintptr(tagSize)
	pad := mallocAlign - int(tentativeEnd%uintptr(mallocAlign))
	if pad == mallocAlign {
		pad = 0
	}
	return need + pad
}

// split carves a used-to-be region at addr down to align(addr, need)
// bytes and turns the remaining tail, if big enough, into a new free
// region. It returns the tail's header address, or 0 if no splinter was
// created - either because the remainder was too small to host a free
// region, or because the arithmetic would land on a live region (a
// corruption guard; the caller then simply accepts the internal slack
// and allocates the whole original region, letting the free list
// self-heal on the next free).
func split(addr uintptr, need int) uintptr {
	originalSize := readTag(addr).size()
	aligned := align(addr, need)

	splinterAddr := addr + uintptr(aligned)
	splinterSize := originalSize - aligned

	// Guardrails - checked against the region's UNMODIFIED memory so
	// that, if either fails, the caller can fall back to using the
	// whole original region untouched.
	if splinterSize < minFreeRegionSize {
		return 0
	}
	if readTag(splinterAddr).used() {
		return 0
	}

	markFree(addr, aligned)
	markFree(splinterAddr, splinterSize)
	return splinterAddr
}
