// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build windows

package pinned

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func sysAlloc(n int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

func sysFree(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}

func sysLock(mem []byte) error {
	return windows.VirtualLock(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)))
}

func sysUnlock(mem []byte) error {
	return windows.VirtualUnlock(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)))
}
