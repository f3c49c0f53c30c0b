// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package pinned

import "unsafe"

// sysAlloc over-allocates on the Go heap and slices to a page boundary.
// The Go heap does not move objects, so the address stays stable.
func sysAlloc(n int) ([]byte, error) {
	ps := PageSize()
	raw := make([]byte, n+ps)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) & uintptr(ps-1)); rem != 0 {
		off = ps - rem
	}
	return raw[off : off+n : off+n], nil
}

func sysFree([]byte) error { return nil }

func sysLock([]byte) error { return ErrUnsupported }

func sysUnlock([]byte) error { return nil }
