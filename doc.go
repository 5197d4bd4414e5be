// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package halloc implements a user-space dynamic memory allocator: a
// malloc/free/realloc/calloc family built on top of anonymous OS pages.
//
// The allocator requests large contiguous extents of memory from a page
// provider (anonymous mmap by default), subdivides each extent into
// variably sized regions delimited by boundary tags (a 4-byte header and
// a matching 4-byte footer encoding used/size), and tracks free regions
// in six address-ordered, size-segregated free lists per extent. Freeing
// a region eagerly coalesces it with any free neighbour; an extent whose
// only live region is its own bookkeeping allocation is returned to the
// page provider.
//
// Changelog
//
// 2024-01-01 Initial boundary-tag / segregated-free-list core.
package halloc

import "unsafe"

const (
	mallocAlign = 16 // every payload pointer is 16-byte aligned
	numClasses  = 6  // free-list size classes, spec.md §3
)

// tagSize is the size, in bytes, of one boundary tag (header or footer).
const tagSize = int(unsafe.Sizeof(tag(0)))

// trace gates diagnostic printf tracing of Allocate, Free and Reallocate,
// in the same spirit as the teacher's compile-time trace flag: flip it
// by hand while debugging, never at runtime.
const trace = false

// roundup returns the smallest multiple of m that is >= n. m must be a
// power of two.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }
