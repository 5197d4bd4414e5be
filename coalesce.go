// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

// isFreeRegion reports whether addr names the header or footer of some
// region currently sitting in one of e's free lists. Scanning every
// free list of the enclosing extent, rather than trusting the bytes at
// addr at face value, is the safety mechanism spec.md §4.4 describes:
// it guards against ever treating arbitrary neighbouring bytes as free
// metadata. O(total free regions) per call.
func isFreeRegion(e *extent, addr uintptr) bool {
	for class := 0; class < numClasses; class++ {
		for n := e.freeHeads[class]; n != nil; n = n.next {
			headerAddr := addrOfNode(n)
			size := readTag(headerAddr).size()
			if headerAddr == addr || footerAddr(headerAddr, size) == addr {
				return true
			}
		}
	}
	return false
}

// coalesce attempts to merge the just-freed region at addr with any
// free neighbour(s), implementing the four cases of spec.md §4.4.
func coalesce(e *extent, addr uintptr) {
	size := readTag(addr).size()
	dataStart := e.dataStart()
	dataEnd := e.dataEnd()

	var leftFooter uintptr
	leftEligible := addr > dataStart
	if leftEligible {
		leftFooter = addr - uintptr(tagSize)
	}

	rightHeader := addr + uintptr(size)
	rightEligible := rightHeader < dataEnd

	leftFree := leftEligible && isFreeRegion(e, leftFooter)
	rightFree := rightEligible && isFreeRegion(e, rightHeader)

	switch {
	case leftFree && rightFree:
		leftSize := readTag(leftFooter).size()
		leftHeader := addr - uintptr(leftSize)
		rightSize := readTag(rightHeader).size()

		freeListRemove(e, leftHeader)
		freeListRemove(e, rightHeader)
		freeListRemove(e, addr)

		newSize := leftSize + size + rightSize
		markFree(leftHeader, newSize)
		freeListInsert(e, leftHeader)

	case leftFree:
		leftSize := readTag(leftFooter).size()
		leftHeader := addr - uintptr(leftSize)

		freeListRemove(e, leftHeader)
		freeListRemove(e, addr)

		newSize := leftSize + size
		markFree(leftHeader, newSize)
		freeListInsert(e, leftHeader)

	case rightFree:
		rightSize := readTag(rightHeader).size()

		freeListRemove(e, rightHeader)
		freeListRemove(e, addr)

		newSize := size + rightSize
		markFree(addr, newSize)
		freeListInsert(e, addr)

	default:
		// Neither neighbour free: addr stays exactly as it was
		// inserted by the caller.
	}
}
