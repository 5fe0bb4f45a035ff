// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package wgpu runs the LBVH kernels on a GPU through the gogpu HAL.
//
// Each compute.Kernel maps to one WGSL shader (see shaders/) compiled into
// a compute pipeline when the device is opened. Execute records every pass
// of a batch into one command encoder, one compute pass per dispatch, so
// the pass boundary acts as the storage barrier the command list asks for.
//
// The device can own its adapter (New) or borrow one from an application
// that already renders with gogpu (NewFromProvider, NewFromHAL). A borrowed
// device is never destroyed by Close.
//
// Importing the package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/lbvh/backend/wgpu"
//
// Build with -tags nogpu to exclude it.
package wgpu
