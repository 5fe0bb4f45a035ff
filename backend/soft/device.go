// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft provides a CPU compute device. Workgroups of each pass run
// concurrently on a work-stealing pool; passes run strictly in order, so a
// pass boundary is a full memory barrier.
//
// The device registers itself with the backend registry as "soft":
//
//	import _ "github.com/gogpu/lbvh/backend/soft"
package soft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/internal/kernels"
	"github.com/gogpu/lbvh/internal/parallel"
)

// Name is the registry name of the software device.
const Name = "soft"

// ErrUnaligned is returned for copies that are not 4-byte aligned.
var ErrUnaligned = errors.New("soft: copy is not word aligned")

func init() {
	backend.Register(Name, func() (compute.Device, error) {
		return New(), nil
	})
}

// buffer is device memory held as u32 words.
type buffer struct {
	label     string
	size      uint64
	words     []uint32
	destroyed atomic.Bool
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Size() uint64  { return b.size }

// Device is a compute.Device executing kernels on goroutines.
//
// Thread safety: buffer copies and Execute are serialized by a mutex, which
// gives the single-queue semantics of a hardware device.
type Device struct {
	pool *parallel.WorkerPool

	// mu serializes queue operations.
	mu     sync.Mutex
	closed bool
	live   int
}

// Option configures a Device.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers sets the number of worker goroutines. Zero or negative means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// New creates a software device.
func New(opts ...Option) *Device {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{pool: parallel.NewWorkerPool(o.workers)}
	compute.Logger().Debug("soft: device created", "workers", d.pool.Workers())
	return d
}

// Name implements compute.Device.
func (d *Device) Name() string { return Name }

// Workers returns the number of worker goroutines.
func (d *Device) Workers() int { return d.pool.Workers() }

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// CreateBuffer implements compute.Device.
func (d *Device) CreateBuffer(label string, size uint64) (compute.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, compute.ErrDeviceClosed
	}

	words := (size + 3) / 4
	if words == 0 {
		words = 1
	}
	b := &buffer{label: label, size: size, words: make([]uint32, words)}
	d.live++
	return b, nil
}

// DestroyBuffer implements compute.Device.
func (d *Device) DestroyBuffer(buf compute.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.destroyed.CompareAndSwap(false, true) {
		b.words = nil
		d.live--
	}
}

func (d *Device) lookup(buf compute.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("soft: foreign buffer %T", buf)
	}
	if b.destroyed.Load() {
		return nil, fmt.Errorf("soft: %s: %w", b.label, compute.ErrBufferDestroyed)
	}
	return b, nil
}

func (d *Device) copyTarget(buf compute.Buffer, offset uint64, n int) (*buffer, error) {
	b, err := d.lookup(buf)
	if err != nil {
		return nil, err
	}
	if offset%4 != 0 || n%4 != 0 {
		return nil, fmt.Errorf("soft: %s offset %d len %d: %w", b.label, offset, n, ErrUnaligned)
	}
	if err := compute.CheckRange(b, offset, n); err != nil {
		return nil, fmt.Errorf("soft: %s offset %d len %d: %w", b.label, offset, n, err)
	}
	return b, nil
}

// WriteBuffer implements compute.Device.
func (d *Device) WriteBuffer(ctx context.Context, buf compute.Buffer, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}
	b, err := d.copyTarget(buf, offset, len(data))
	if err != nil {
		return err
	}
	first := offset / 4
	compute.BytesToWords(data, b.words[first:first+uint64(len(data)/4)])
	return nil
}

// ReadBuffer implements compute.Device.
func (d *Device) ReadBuffer(ctx context.Context, buf compute.Buffer, offset uint64, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}
	b, err := d.copyTarget(buf, offset, len(dst))
	if err != nil {
		return err
	}
	first := offset / 4
	copy(dst, compute.WordsToBytes(b.words[first:first+uint64(len(dst)/4)]))
	return nil
}

// Execute implements compute.Device. Passes run in order; the workgroups of
// one pass run concurrently.
func (d *Device) Execute(ctx context.Context, passes []compute.Pass) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}

	for i := range passes {
		p := &passes[i]
		if err := p.Validate(); err != nil {
			return err
		}
		fn, err := kernels.Lookup(p.Kernel)
		if err != nil {
			return fmt.Errorf("%w: %w", compute.ErrInvalidPass, err)
		}

		inv := &kernels.Invocation{
			Params:  p.Params,
			Buffers: make([][]uint32, len(p.Buffers)),
		}
		for j, buf := range p.Buffers {
			b, err := d.lookup(buf)
			if err != nil {
				return fmt.Errorf("soft: %s binding %d: %w", p.Label, j+1, err)
			}
			inv.Buffers[j] = b.words
		}

		err = d.pool.Run(ctx, int(p.Groups), func(g int) {
			fn(inv, uint32(g))
		})
		if errors.Is(err, parallel.ErrPanic) {
			return fmt.Errorf("%w: %s: %w", compute.ErrKernelFault, p.Label, err)
		}
		if err != nil {
			return fmt.Errorf("soft: %s: %w", p.Label, err)
		}
	}
	return nil
}

// Close stops the worker pool. Buffers become unusable.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.pool.Close()
	if d.live > 0 {
		compute.Logger().Warn("soft: device closed with live buffers", "buffers", d.live)
	}
}
