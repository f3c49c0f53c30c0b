// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package pinned provides page-aligned memory regions that can be locked
// into physical memory for DMA access.
//
// Regions are allocated outside the Go heap (mmap on Unix, VirtualAlloc on
// Windows) so their address never moves and can be registered with a GPU or
// DMA engine. Pinning is a flag on the region, not a separate object: a
// pinned region stays pinned until Unpin or Free.
package pinned

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Errors returned by pinned memory operations.
var (
	// ErrFreed is returned when operating on a freed region.
	ErrFreed = errors.New("pinned: region has been freed")

	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("pinned: invalid size")

	// ErrUnsupported is returned when the platform cannot lock memory or
	// adjust the lockable-memory limit.
	ErrUnsupported = errors.New("pinned: not supported on this platform")
)

// PageSize returns the system memory page size.
func PageSize() int {
	return os.Getpagesize()
}

// PageAlign rounds n up to a multiple of the page size.
func PageAlign(n int) int {
	ps := PageSize()
	return (n + ps - 1) &^ (ps - 1)
}

// Buffer is a page-aligned memory region with a pinned flag.
//
// Buffer is safe for concurrent use; the pixel bytes themselves are not
// synchronized.
type Buffer struct {
	mu     sync.Mutex
	mem    []byte // full mapping, page multiple
	size   int    // requested size
	pinned bool
	freed  bool
}

// Alloc allocates a fresh page-aligned region of at least size bytes.
// The memory is zeroed.
func Alloc(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	mem, err := sysAlloc(PageAlign(size))
	if err != nil {
		return nil, fmt.Errorf("pinned: allocate %d bytes: %w", size, err)
	}
	return &Buffer{mem: mem, size: size}, nil
}

// Bytes returns the region as a slice of the requested size.
// Returns nil after Free.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return nil
	}
	return b.mem[:b.size:b.size]
}

// Size returns the requested size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Capacity returns the mapped size in bytes (a page multiple).
func (b *Buffer) Capacity() int {
	return len(b.mem)
}

// Pinned reports whether the region is currently locked in memory.
func (b *Buffer) Pinned() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned
}

// Pin locks the region into physical memory. Pinning an already pinned
// region is a no-op.
func (b *Buffer) Pin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrFreed
	}
	if b.pinned {
		return nil
	}
	if err := sysLock(b.mem); err != nil {
		return fmt.Errorf("pinned: lock %d bytes: %w", len(b.mem), err)
	}
	b.pinned = true
	return nil
}

// Unpin unlocks the region. Unpinning an unpinned region is a no-op.
func (b *Buffer) Unpin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrFreed
	}
	return b.unpinLocked()
}

func (b *Buffer) unpinLocked() error {
	if !b.pinned {
		return nil
	}
	if err := sysUnlock(b.mem); err != nil {
		return fmt.Errorf("pinned: unlock %d bytes: %w", len(b.mem), err)
	}
	b.pinned = false
	return nil
}

// Free unpins the region if needed and returns it to the system.
// Free is idempotent.
func (b *Buffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return nil
	}
	unpinErr := b.unpinLocked()
	if err := sysFree(b.mem); err != nil {
		return errors.Join(unpinErr, fmt.Errorf("pinned: free: %w", err))
	}
	b.mem = nil
	b.freed = true
	return unpinErr
}
