// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !linux

package dvp

import (
	"fmt"
	"runtime"

	"github.com/gogpu/gg-capture/transfer"
)

// Engine is unavailable on this platform.
type Engine struct {
	transfer.DMAEngine
}

// Open always fails with ErrUnavailable on this platform.
func Open() (*Engine, error) {
	return nil, fmt.Errorf("%w on %s", ErrUnavailable, runtime.GOOS)
}

// Probe always fails with ErrUnavailable on this platform.
func Probe() (major, minor int, err error) {
	return 0, 0, fmt.Errorf("%w on %s", ErrUnavailable, runtime.GOOS)
}
