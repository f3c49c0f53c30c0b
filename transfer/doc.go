// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package transfer moves captured frames from host memory into GPU textures.
//
// Three strategies exist, from fastest to most portable:
//
//   - [KindDirectDMA]: a hardware DMA engine copies lines from host memory
//     straight into the texture, ordered by two host-memory semaphores.
//   - [KindPinnedUpload]: the pinned frame memory is wrapped as a GPU buffer
//     and the texture is uploaded from it, followed by a bounded fence wait.
//   - [KindStaging]: the frame is copied into a GPU staging buffer and the
//     texture is uploaded from there.
//
// A [Binding] is created once per host buffer with [Bind] and memoizes the
// GPU resources of its strategy; [Binding.PerformTransfer] then runs once per
// frame. Strategy choice is made by the caller (see capture.FrameAllocator);
// this package only implements the mechanisms.
//
// The GPU is reached through the [Graphics] interface. backend/native
// implements it on gogpu/wgpu HAL; transfertest provides an in-memory
// implementation for tests.
package transfer
