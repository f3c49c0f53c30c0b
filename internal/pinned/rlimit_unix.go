// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build linux || darwin

package pinned

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockLimit returns the current soft and hard lockable-memory limits in bytes.
func LockLimit() (soft, hard uint64, err error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		return 0, 0, fmt.Errorf("pinned: getrlimit: %w", err)
	}
	return uint64(rl.Cur), uint64(rl.Max), nil //nolint:unconvert // field types differ across platforms
}

// RaiseLockLimit raises the soft lockable-memory limit to at least want
// bytes, capped at the hard limit. It never lowers the limit and returns the
// resulting soft limit. An error is returned if the limit could not be
// raised to want.
func RaiseLockLimit(want uint64) (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		return 0, fmt.Errorf("pinned: getrlimit: %w", err)
	}
	cur, hardMax := uint64(rl.Cur), uint64(rl.Max) //nolint:unconvert // field types differ across platforms
	if cur == unix.RLIM_INFINITY || cur >= want {
		return cur, nil
	}
	target := want
	if hardMax != unix.RLIM_INFINITY && target > hardMax {
		target = hardMax
	}
	if target > cur {
		rl.Cur = target
		if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
			return cur, fmt.Errorf("pinned: setrlimit %d: %w", target, err)
		}
		cur = target
	}
	if cur < want {
		return cur, fmt.Errorf("pinned: lock limit %d below requested %d (hard limit %d)", cur, want, hardMax)
	}
	return cur, nil
}
