// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import "context"

// Buffer is a device storage buffer. Implementations must be comparable
// (pointer types) because the command list tracks buffers by identity.
type Buffer interface {
	// Label returns the debug label given at creation.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64
}

// Device executes kernels over storage buffers.
//
// All methods that touch device memory block until the operation is
// complete. Execute runs the passes in order; the device guarantees that
// writes of pass N are visible to pass N+1.
type Device interface {
	// Name identifies the device, e.g. "soft" or the adapter name.
	Name() string

	// CreateBuffer allocates a zero-filled storage buffer of size bytes.
	CreateBuffer(label string, size uint64) (Buffer, error)

	// DestroyBuffer releases a buffer. Destroying nil is a no-op.
	DestroyBuffer(buf Buffer)

	// WriteBuffer copies data into buf at offset.
	WriteBuffer(ctx context.Context, buf Buffer, offset uint64, data []byte) error

	// ReadBuffer copies len(dst) bytes from buf at offset into dst.
	ReadBuffer(ctx context.Context, buf Buffer, offset uint64, dst []byte) error

	// Execute runs passes in order and returns when the device is idle.
	Execute(ctx context.Context, passes []Pass) error

	// Close releases all device resources.
	Close()
}

// CheckRange returns ErrOutOfRange unless [offset, offset+n) lies inside buf.
// Device implementations call it before every copy.
func CheckRange(buf Buffer, offset uint64, n int) error {
	if n < 0 || offset+uint64(n) > buf.Size() {
		return ErrOutOfRange
	}
	return nil
}
