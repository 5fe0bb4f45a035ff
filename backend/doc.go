// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend is the registry of compute devices.
//
// Device packages register a factory from an init function and are selected
// by name at runtime:
//
//	import (
//		_ "github.com/gogpu/lbvh/backend/soft"
//		_ "github.com/gogpu/lbvh/backend/wgpu"
//	)
//
//	dev, err := backend.Open("wgpu")
//
// # Available Backends
//
//   - "soft": goroutine workgroups on the CPU (always available)
//   - "wgpu": WGSL compute shaders on gogpu/wgpu (build tag !nogpu)
//
// Default tries the backends in priority order (wgpu, then soft) and
// returns the first one that opens.
package backend
