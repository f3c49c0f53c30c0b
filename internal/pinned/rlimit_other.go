// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !(linux || darwin)

package pinned

// LockLimit is not available on this platform.
func LockLimit() (soft, hard uint64, err error) {
	return 0, 0, ErrUnsupported
}

// RaiseLockLimit is not available on this platform.
func RaiseLockLimit(uint64) (uint64, error) {
	return 0, ErrUnsupported
}
