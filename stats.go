// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cznic/mathutil"
	"github.com/cznic/sortutil"
)

// ExtentStats reports the observable statistics spec.md §4.5 asks for,
// for one extent.
type ExtentStats struct {
	StartAddr       uintptr
	Pages           int
	TotalBytes      int
	UsedBytes       int
	FreeRegionCount int
	LargestFree     int
	SmallestFree    int
	TotalFreeBytes  int
	// PerClass[i] holds the sizes of every free region in class i,
	// sorted in ascending order; original_source/src/malloc.c's
	// mallocstats prints the same per-bucket enumeration.
	PerClass [numClasses][]int
}

// Stats is a Statistics() snapshot across every live extent.
type Stats struct {
	// Allocs and Frees are the lifetime counts of regions reserved and
	// released for callers, including those done inside Reallocate and
	// ZeroAllocate, mirroring cznic-memory/memory.go's Allocator.allocs
	// counter.
	Allocs int
	Frees  int

	Extents []ExtentStats
}

// Statistics walks every live extent and reports pages, total/used
// size, free-region count, largest/smallest free region, total free
// bytes, and a per-class enumeration - spec.md §4.5's statistics(),
// observable behaviour only, no hidden state is exposed.
func (a *Allocator) Statistics() Stats {
	a.lock()
	defer a.unlock()

	s := Stats{Allocs: a.allocs, Frees: a.frees}
	for e := a.extents.head; e != nil; e = e.next {
		es := ExtentStats{
			StartAddr:    addrOfExtent(e),
			Pages:        e.pages,
			TotalBytes:   e.totalBytes,
			UsedBytes:    e.usedBytes,
			SmallestFree: -1,
		}

		for class := 0; class < numClasses; class++ {
			var sizes sortutil.Int64Slice
			for n := e.freeHeads[class]; n != nil; n = n.next {
				size := readTag(addrOfNode(n)).size()
				sizes = append(sizes, int64(size))
				es.FreeRegionCount++
				es.TotalFreeBytes += size
				if size > es.LargestFree {
					es.LargestFree = size
				}
				if es.SmallestFree < 0 || size < es.SmallestFree {
					es.SmallestFree = size
				}
			}
			sort.Sort(sizes)
			sized := make([]int, len(sizes))
			for i, v := range sizes {
				sized[i] = int(v)
			}
			es.PerClass[class] = sized
		}

		if es.SmallestFree < 0 {
			es.SmallestFree = 0
		}

		s.Extents = append(s.Extents, es)
	}
	return s
}

// String renders a human-readable report, laid out field-for-field like
// original_source/src/malloc.c's mallocstats(): pages, total size, used
// size, free-region count, largest/smallest free region, total free
// bytes, then a per-class listing.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Allocs: %d, Frees: %d\n", s.Allocs, s.Frees)
	for i, e := range s.Extents {
		fmt.Fprintf(&b, "Extent[%d] (start %#x):\n", i, e.StartAddr)
		fmt.Fprintf(&b, "  Pages (allocated from kernel): %d\n", e.Pages)
		fmt.Fprintf(&b, "  Size  (allocated from kernel): %d bytes\n", e.TotalBytes)
		fmt.Fprintf(&b, "  Used Size (allocated to app) : %d bytes\n", e.UsedBytes)
		fmt.Fprintf(&b, "  Free statistics:\n")
		fmt.Fprintf(&b, "    Free Regions Count  : %d\n", e.FreeRegionCount)
		fmt.Fprintf(&b, "    Largest Free Space  : %d bytes (%d bits)\n", e.LargestFree, mathutil.BitLen(e.LargestFree))
		fmt.Fprintf(&b, "    Smallest Free Space : %d bytes\n", e.SmallestFree)
		fmt.Fprintf(&b, "    Free Heap Space     : %d bytes\n", e.TotalFreeBytes)
		for class, sizes := range e.PerClass {
			fmt.Fprintf(&b, "      FreeRegion[%d]: %v\n", class, sizes)
		}
	}
	return b.String()
}
