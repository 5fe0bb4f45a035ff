// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geom holds the value types shared between the host and the BVH
// kernels, together with their 32-bit word layouts in device memory.
//
// All cross references between nodes are plain u32 indices into fixed-size
// arrays. [InvalidIndex] marks a missing reference (the root's parent).
package geom
