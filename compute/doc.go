// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compute is the compute substrate used by the BVH builder.
//
// It defines three layers:
//
//   - [Device] and [Buffer]: a minimal device abstraction with named storage
//     buffers, blocking host copies and batched kernel execution. Concrete
//     devices live in backend/soft (goroutine workgroups) and backend/wgpu
//     (WGSL compute shaders on gogpu/wgpu).
//   - [DataBuffer]: a typed device array with an equally sized CPU mirror.
//   - [Dispatcher]: a single serialized submission channel. Passes are
//     recorded into a [CommandList] and executed with ExecuteAndWait, which
//     blocks until the device is idle. Exactly one batch is in flight.
//
// Kernels are identified by [Kernel]. Each kernel has a fixed binding table
// (see [Kernel.Slots]): binding 0 is always a 4-word params uniform, followed
// by the storage bindings in the order listed.
//
// # Barriers
//
// A pass that binds a buffer written by an earlier pass must be separated from
// it by [CommandList.Barrier]. The command list tracks writes since the last
// barrier and fails the batch with [ErrMissingBarrier] otherwise.
package compute
