// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "unsafe"

// sizeClass maps a region's total size to one of the six segregated
// free-list buckets of spec.md §3.
func sizeClass(size int) int {
	switch {
	case size <= 32:
		return 0
	case size <= 64:
		return 1
	case size <= 128:
		return 2
	case size <= 256:
		return 3
	case size <= 512:
		return 4
	default:
		return 5
	}
}

// freeListInsert inserts region into the free list matching its size,
// keeping the list ordered by ascending address (spec.md §4.2). A nil,
// zero-size, or too-small-to-host-the-overlay region is a no-op: such
// tiny regions may exist transiently during coalescing but, per
// spec.md's design notes, are never placed in a free list.
func freeListInsert(e *extent, addr uintptr) {
	if addr == 0 {
		return
	}

	size := readTag(addr).size()
	if size == 0 || size < minFreeRegionSize {
		return
	}

	item := freeNodeAt(addr)
	class := sizeClass(size)
	head := &e.freeHeads[class]

	if *head == nil {
		item.next, item.prev = nil, nil
		*head = item
		return
	}

	if addrOfNode(*head) > addr {
		item.next = *head
		item.prev = nil
		(*head).prev = item
		*head = item
		return
	}

	cur := *head
	for cur.next != nil && addrOfNode(cur.next) < addr {
		cur = cur.next
	}
	item.next = cur.next
	item.prev = cur
	if cur.next != nil {
		cur.next.prev = item
	}
	cur.next = item
}

// freeListRemove unlinks the region at addr from its size-class free
// list.
func freeListRemove(e *extent, addr uintptr) {
	if addr == 0 {
		return
	}

	size := readTag(addr).size()
	class := sizeClass(size)
	head := &e.freeHeads[class]
	item := freeNodeAt(addr)

	switch {
	case item.prev == nil && *head == item:
		*head = item.next
		if item.next != nil {
			item.next.prev = nil
		}
	case item.prev == nil:
		// Not actually the head and has no prev: nothing to do but
		// guard against a caller passing a region not in this list.
		return
	case item.next == nil:
		item.prev.next = nil
	default:
		item.prev.next = item.next
		item.next.prev = item.prev
	}

	item.next, item.prev = nil, nil
}

// canAllocate scans an extent's free lists from the smallest class to
// the largest (spec.md §4.2: "best-fit-by-class, first-fit-within-class")
// and returns the header address of the first free region whose size
// strictly exceeds the aligned requirement for need bytes. A remainder
// smaller than the minimum free-region size is not split off; split
// leaves it inside the allocated region. Returns 0 if no region
// qualifies.
func canAllocate(e *extent, need int) uintptr {
	for class := 0; class < numClasses; class++ {
		for n := e.freeHeads[class]; n != nil; n = n.next {
			addr := addrOfNode(n)
			size := readTag(addr).size()
			aligned := align(addr, need)
			if size > aligned {
				return addr
			}
		}
	}
	return 0
}

func addrOfNode(n *freeNode) uintptr {
	return uintptr(unsafe.Pointer(n)) - uintptr(linksOffset)
}
