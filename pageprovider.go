// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import (
	"os"
	"unsafe"
)

// pageSize is the process-wide OS page size, queried once and cached -
// spec.md §6's "Page size is a process-wide constant ... query once".
var pageSize = os.Getpagesize()

// PageProvider is the external, page-granularity virtual-memory
// collaborator spec.md §2/§6 describes: it acquires and releases whole
// pages of anonymous, readable/writable memory. The allocator never asks
// it for anything but whole pages and never retains partial trust in the
// returned address beyond what Acquire/Release promise.
type PageProvider interface {
	// Acquire returns the start address of pages*PageSize() bytes of
	// freshly zeroed, readable/writable anonymous memory, or an error
	// if the OS could not satisfy the request.
	Acquire(pages int) (uintptr, error)

	// Release returns pages*PageSize() bytes previously obtained from
	// Acquire back to the OS. addr must be a value previously returned
	// by Acquire and pages must match the value passed to that call.
	Release(addr uintptr, pages int) error

	// PageSize reports the provider's page granularity in bytes.
	PageSize() int
}

// osPageProvider is the default PageProvider, backed by the host OS's
// anonymous memory mapping facility (mmap on POSIX, file mapping on
// Windows) - carried over from the teacher's mmap_unix.go/mmap_windows.go.
type osPageProvider struct{}

func (osPageProvider) PageSize() int { return pageSize }

func (osPageProvider) Acquire(pages int) (uintptr, error) {
	b, err := mmap0(pages * pageSize)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))), nil
}

func (osPageProvider) Release(addr uintptr, pages int) error {
	return unmap(unsafe.Pointer(addr), pages*pageSize)
}
