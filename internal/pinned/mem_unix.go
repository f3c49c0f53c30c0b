// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pinned

import "golang.org/x/sys/unix"

func sysAlloc(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func sysFree(mem []byte) error {
	return unix.Munmap(mem)
}

func sysLock(mem []byte) error {
	return unix.Mlock(mem)
}

func sysUnlock(mem []byte) error {
	return unix.Munlock(mem)
}
