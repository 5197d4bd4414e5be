// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "testing"

// TestStatisticsAccounting exercises spec.md §4.5's statistics(): the
// per-class free-region sizes sortutil.Int64Slice sorts in Statistics
// must come back in ascending order, and the aggregate counters must
// agree with a handful of allocations whose sizes are known up front.
func TestStatisticsAccounting(t *testing.T) {
	var a Allocator
	var ps [][]byte
	for i := 0; i < 10; i++ {
		ps = append(ps, a.Allocate(200))
	}
	// Free every other one, leaving five equal-sized free regions in one
	// size class, plus the extent's free tail, to sort.
	for i, p := range ps {
		if i%2 == 0 {
			a.Free(p)
		}
	}

	stats := a.Statistics()
	if len(stats.Extents) == 0 {
		t.Fatal("Statistics() reported no extents for a non-empty allocator")
	}

	for _, es := range stats.Extents {
		if es.UsedBytes > es.TotalBytes {
			t.Fatalf("extent at %#x: used %d exceeds total %d", es.StartAddr, es.UsedBytes, es.TotalBytes)
		}
		if es.FreeRegionCount > 0 && es.SmallestFree > es.LargestFree {
			t.Fatalf("extent at %#x: smallest free %d > largest free %d", es.StartAddr, es.SmallestFree, es.LargestFree)
		}

		var total int
		for _, sizes := range es.PerClass {
			for i := 1; i < len(sizes); i++ {
				if sizes[i] < sizes[i-1] {
					t.Fatalf("extent at %#x: class sizes not ascending: %v", es.StartAddr, sizes)
				}
			}
			total += len(sizes)
		}
		if total != es.FreeRegionCount {
			t.Fatalf("extent at %#x: per-class region count %d != FreeRegionCount %d", es.StartAddr, total, es.FreeRegionCount)
		}
	}

	if stats.Allocs != 10 {
		t.Fatalf("Allocs = %d, want 10", stats.Allocs)
	}
	if stats.Frees != 5 {
		t.Fatalf("Frees = %d, want 5", stats.Frees)
	}

	for _, p := range ps {
		a.Free(p)
	}
}

// TestStatisticsEmpty exercises Statistics() on a fresh allocator.
func TestStatisticsEmpty(t *testing.T) {
	var a Allocator
	stats := a.Statistics()
	if len(stats.Extents) != 0 {
		t.Fatalf("fresh allocator reported %d extents, want 0", len(stats.Extents))
	}
	if stats.Allocs != 0 || stats.Frees != 0 {
		t.Fatalf("fresh allocator Stats = %+v, want zero Allocs/Frees", stats)
	}
	if got, want := stats.String(), "Allocs: 0, Frees: 0\n"; got != want {
		t.Fatalf("empty Stats.String() = %q, want %q", got, want)
	}
}

// TestStatisticsStringRenders checks String() doesn't panic and renders a
// non-empty report for a non-empty allocator.
func TestStatisticsStringRenders(t *testing.T) {
	var a Allocator
	p := a.Allocate(64)
	s := a.Statistics().String()
	if s == "" {
		t.Fatal("String() empty for a non-empty allocator")
	}
	a.Free(p)
}
