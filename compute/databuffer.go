// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"context"
	"fmt"
)

// DataBuffer is a device array of n elements of T with an equally sized CPU
// mirror. Host and device copies are explicit and blocking: mutate the
// mirror through Local, then Upload; run kernels, then Readback.
//
// A DataBuffer is not safe for concurrent use. The mirror must not be
// touched while a batch that binds the buffer is executing.
type DataBuffer[T any] struct {
	device Device
	layout Layout[T]
	buf    Buffer
	local  []T
	label  string
}

// NewDataBuffer allocates device storage and a zero-valued mirror for n
// elements. The device buffer starts zero-filled.
func NewDataBuffer[T any](device Device, label string, layout Layout[T], n int) (*DataBuffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("compute: %s: negative length %d", label, n)
	}
	size := uint64(n) * uint64(layout.Stride())
	buf, err := device.CreateBuffer(label, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %w", ErrAllocation, label, size, err)
	}

	Logger().Debug("compute: data buffer allocated",
		"label", label,
		"elements", n,
		"bytes", size)

	return &DataBuffer[T]{
		device: device,
		layout: layout,
		buf:    buf,
		local:  make([]T, n),
		label:  label,
	}, nil
}

// NewDataBufferFilled allocates a buffer, fills the mirror with v and
// uploads it immediately.
func NewDataBufferFilled[T any](ctx context.Context, device Device, label string, layout Layout[T], n int, v T) (*DataBuffer[T], error) {
	b, err := NewDataBuffer(device, label, layout, n)
	if err != nil {
		return nil, err
	}
	b.Fill(v)
	if err := b.Upload(ctx); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Local returns the CPU mirror. Callers may mutate it freely between
// device passes.
func (b *DataBuffer[T]) Local() []T { return b.local }

// Len returns the number of elements.
func (b *DataBuffer[T]) Len() int { return len(b.local) }

// Label returns the debug label.
func (b *DataBuffer[T]) Label() string { return b.label }

// Buffer returns the device buffer for binding to passes.
func (b *DataBuffer[T]) Buffer() Buffer { return b.buf }

// Fill sets every mirror element to v. It does not upload.
func (b *DataBuffer[T]) Fill(v T) {
	for i := range b.local {
		b.local[i] = v
	}
}

// Upload copies the whole mirror to the device.
func (b *DataBuffer[T]) Upload(ctx context.Context) error {
	return b.UploadRange(ctx, 0, len(b.local))
}

// UploadRange copies mirror elements [lo, hi) to the device.
func (b *DataBuffer[T]) UploadRange(ctx context.Context, lo, hi int) error {
	if err := b.checkRange(lo, hi); err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	data := b.layout.EncodeBytes(b.local[lo:hi])
	offset := uint64(lo) * uint64(b.layout.Stride())
	if err := b.device.WriteBuffer(ctx, b.buf, offset, data); err != nil {
		return fmt.Errorf("compute: upload %s: %w", b.label, err)
	}
	return nil
}

// Readback copies the whole device buffer into the mirror.
func (b *DataBuffer[T]) Readback(ctx context.Context) error {
	return b.ReadbackRange(ctx, 0, len(b.local))
}

// ReadbackRange copies device elements [lo, hi) into the mirror.
func (b *DataBuffer[T]) ReadbackRange(ctx context.Context, lo, hi int) error {
	if err := b.checkRange(lo, hi); err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	data := make([]byte, (hi-lo)*b.layout.Stride())
	offset := uint64(lo) * uint64(b.layout.Stride())
	if err := b.device.ReadBuffer(ctx, b.buf, offset, data); err != nil {
		return fmt.Errorf("compute: readback %s: %w", b.label, err)
	}
	b.layout.DecodeBytes(data, b.local[lo:hi])
	return nil
}

// Destroy releases the device buffer. The mirror stays readable.
func (b *DataBuffer[T]) Destroy() {
	if b.buf == nil {
		return
	}
	b.device.DestroyBuffer(b.buf)
	b.buf = nil
}

func (b *DataBuffer[T]) checkRange(lo, hi int) error {
	if b.buf == nil {
		return fmt.Errorf("compute: %s: %w", b.label, ErrBufferDestroyed)
	}
	if lo < 0 || hi > len(b.local) || lo > hi {
		return fmt.Errorf("compute: %s [%d, %d) of %d: %w", b.label, lo, hi, len(b.local), ErrOutOfRange)
	}
	return nil
}
