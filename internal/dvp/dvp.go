// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package dvp binds the NVIDIA GPUDirect for Video DMA library at runtime.
//
// The library is loaded with purego, so no cgo toolchain is needed and
// binaries start on machines without it. [Open] fails with [ErrUnavailable]
// when the library cannot be found.
package dvp

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by Open when the DMA library cannot be loaded.
var ErrUnavailable = errors.New("dvp: library unavailable")

// Status is a DVPStatus code returned by library calls.
type Status uint32

// StatusOK is the only success code.
const StatusOK Status = 0

var statusNames = map[Status]string{
	0:  "ok",
	1:  "invalid parameter",
	2:  "unsupported",
	3:  "end enumeration",
	4:  "invalid device",
	5:  "out of memory",
	6:  "invalid operation",
	7:  "timeout",
	8:  "invalid context",
	9:  "invalid resource type",
	10: "invalid format or type",
	11: "device uninitialized",
	12: "unsignaled",
	13: "sync error",
	14: "sync still bound",
	15: "error",
}

func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return "dvp: " + name
	}
	return fmt.Sprintf("dvp: status %d", uint32(s))
}

// check converts a status into an error wrapped with the call name.
func check(call string, s uint32) error {
	if Status(s) == StatusOK {
		return nil
	}
	return fmt.Errorf("%s: %w", call, Status(s))
}

// Library names probed in order.
var libraryNames = []string{"libdvp.so", "libdvp.so.1"}

// Buffer formats and component types understood by dvpCreateBuffer.
const (
	formatRGBA = 2
	formatBGRA = 3

	typeUnsignedByte = 0

	bufferTypeSystem = 0
)

// timeoutIgnored makes dvpMemcpyLined wait without bound.
const timeoutIgnored = ^uint64(0)

// syncDescFlags for dvpImportSyncObject: the semaphore lives in system memory.
const syncFlagsSysmem = 0
