// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import "errors"

// Substrate errors.
var (
	// ErrAllocation is returned when the device cannot allocate a buffer.
	ErrAllocation = errors.New("compute: buffer allocation failed")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("compute: buffer has been destroyed")

	// ErrOutOfRange is returned when a copy exceeds the buffer bounds.
	ErrOutOfRange = errors.New("compute: copy range out of bounds")

	// ErrMissingBarrier is returned when a pass binds a buffer written by an
	// earlier pass of the same batch without an intervening barrier.
	ErrMissingBarrier = errors.New("compute: missing barrier between dependent passes")

	// ErrInvalidPass is returned for passes whose bindings do not match the
	// kernel's binding table.
	ErrInvalidPass = errors.New("compute: invalid pass")

	// ErrDeviceTimeout is returned when the device does not finish a batch
	// before the deadline.
	ErrDeviceTimeout = errors.New("compute: device timeout")

	// ErrDeviceClosed is returned when using a device after Close.
	ErrDeviceClosed = errors.New("compute: device is closed")

	// ErrKernelFault is returned when a kernel invocation fails on the device.
	ErrKernelFault = errors.New("compute: kernel fault")
)
