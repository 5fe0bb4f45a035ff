// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernels implements every compute kernel over plain u32 word
// buffers. It is the reference the WGSL shaders in backend/wgpu mirror
// line by line, and it is what backend/soft executes.
//
// A kernel is invoked once per workgroup. Threads of a workgroup run
// sequentially inside that call; workgroups may run concurrently, so a
// kernel may only share memory across groups through sync/atomic, exactly
// where the shader uses atomics.
package kernels
