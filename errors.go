// Copyright 2024 The Halloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package halloc

import "errors"

// ErrOutOfMemory is returned by operations that had to grow the heap but
// the page provider could not supply the requested pages.
var ErrOutOfMemory = errors.New("halloc: out of memory")
