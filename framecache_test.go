package capture

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gg-capture/device"
)

// countingFrame is a device.Frame that counts references.
type countingFrame struct {
	seq      uint64
	flags    device.FrameFlags
	refs     atomic.Int32
	retains  *atomic.Int64
	releases *atomic.Int64
}

func newCountingFrame(seq uint64, retains, releases *atomic.Int64) *countingFrame {
	f := &countingFrame{seq: seq, retains: retains, releases: releases}
	f.refs.Store(1)
	return f
}

func (f *countingFrame) AddRef() int32 {
	if f.retains != nil {
		f.retains.Add(1)
	}
	return f.refs.Add(1)
}

func (f *countingFrame) Release() int32 {
	if f.releases != nil {
		f.releases.Add(1)
	}
	return f.refs.Add(-1)
}

func (f *countingFrame) Width() int                  { return 4 }
func (f *countingFrame) Height() int                 { return 4 }
func (f *countingFrame) RowBytes() int               { return 16 }
func (f *countingFrame) Flags() device.FrameFlags    { return f.flags }
func (f *countingFrame) Buffer() device.BufferHandle { return device.BufferHandle(f.seq) }

func TestFrameCacheReplacesStaleFrame(t *testing.T) {
	c := NewFrameCache()
	var retains, releases atomic.Int64

	a := newCountingFrame(1, &retains, &releases)
	b := newCountingFrame(2, &retains, &releases)
	if !c.Put(a) || !c.Put(b) {
		t.Fatal("Put refused frame on open cache")
	}
	if a.refs.Load() != 1 {
		t.Errorf("replaced frame refs = %d, want 1 (caller's only)", a.refs.Load())
	}
	if c.Held() != 1 {
		t.Errorf("Held() = %d, want 1", c.Held())
	}

	got := c.Take()
	if got != device.Frame(b) {
		t.Fatalf("Take() returned frame %v, want the freshest", got)
	}
	if c.Take() != nil {
		t.Error("second Take() returned a frame")
	}
	got.Release()

	if n := retains.Load() - releases.Load(); n != 0 {
		t.Errorf("retain-release = %d after drain, want 0", n)
	}
	st := c.Stats()
	if st.Arrived != 2 || st.Replaced != 1 || st.Taken != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFrameCacheShutdown(t *testing.T) {
	c := NewFrameCache()
	var retains, releases atomic.Int64

	held := newCountingFrame(1, &retains, &releases)
	c.Put(held)
	c.Shutdown()
	c.Shutdown()
	if held.refs.Load() != 1 {
		t.Errorf("held frame refs after Shutdown = %d, want 1", held.refs.Load())
	}

	late := newCountingFrame(2, &retains, &releases)
	if c.Put(late) {
		t.Error("Put accepted a frame after Shutdown")
	}
	if late.refs.Load() != 1 {
		t.Error("dropped frame was retained")
	}
	if c.Take() != nil {
		t.Error("Take() returned a frame after Shutdown")
	}
	if c.Stats().DroppedShutdown != 1 {
		t.Errorf("DroppedShutdown = %d", c.Stats().DroppedShutdown)
	}

	c.Reopen()
	if !c.Put(late) {
		t.Error("Put refused after Reopen")
	}
	c.Take().Release()
	if retains.Load() != releases.Load() {
		t.Errorf("retains %d != releases %d", retains.Load(), releases.Load())
	}
}

// The slot never holds more than one reference, whatever the interleaving.
func TestFrameCacheSingleReference(t *testing.T) {
	c := NewFrameCache()
	var retains, releases atomic.Int64

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 5000 {
			f := newCountingFrame(uint64(i+1), &retains, &releases)
			c.Put(f)
			if d := retains.Load() - releases.Load(); d < 0 || d > 2 {
				// A concurrent Take may have returned one reference that
				// the consumer has not released yet.
				t.Errorf("retain-release = %d", d)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 5000 {
			if f := c.Take(); f != nil {
				f.Release()
			}
		}
	}()
	wg.Wait()

	if d := retains.Load() - releases.Load(); d != int64(c.Held()) || d > 1 {
		t.Errorf("retain-release = %d with %d held", d, c.Held())
	}
	c.Shutdown()
	if d := retains.Load() - releases.Load(); d != 0 {
		t.Errorf("retain-release = %d after Shutdown", d)
	}
}

// Every frame the consumer sees is newer than the previous one.
func TestFrameCacheFreshness(t *testing.T) {
	c := NewFrameCache()
	const frames = 20000

	var (
		wg       sync.WaitGroup
		produced atomic.Uint64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= frames; i++ {
			c.Put(newCountingFrame(i, nil, nil))
			produced.Store(i)
		}
	}()

	var last uint64
	for last < frames {
		before := produced.Load()
		f := c.Take()
		if f == nil {
			if before == frames {
				break
			}
			continue
		}
		seq := f.(*countingFrame).seq
		if seq <= last {
			t.Fatalf("consumer saw frame %d after %d", seq, last)
		}
		if seq < before {
			t.Fatalf("consumer saw frame %d although %d had already arrived", seq, before)
		}
		last = seq
		f.Release()
	}
	wg.Wait()
}
