// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CommandList records passes and barriers for one batch.
//
// Recording errors are sticky: Dispatch and Barrier never fail individually;
// the first error is reported by Err and by Dispatcher.ExecuteAndWait.
type CommandList struct {
	passes []Pass

	// written holds buffers written since the last barrier, mapped to the
	// label of the pass that wrote them.
	written map[Buffer]string

	barriers int
	err      error
}

func (c *CommandList) reset() {
	c.passes = c.passes[:0]
	c.written = make(map[Buffer]string)
	c.barriers = 0
	c.err = nil
}

// Dispatch records one kernel dispatch. Passes with zero groups are dropped.
func (c *CommandList) Dispatch(p Pass) {
	if c.err != nil {
		return
	}
	if err := p.Validate(); err != nil {
		c.err = err
		return
	}
	if p.Groups == 0 {
		return
	}
	if p.Label == "" {
		p.Label = p.Kernel.String()
	}

	slots := p.Kernel.Slots()
	for i, buf := range p.Buffers {
		if writer, ok := c.written[buf]; ok {
			c.err = fmt.Errorf("%w: %s binding %d (%s) was written by %s",
				ErrMissingBarrier, p.Label, i+1, buf.Label(), writer)
			return
		}
	}
	for i, buf := range p.Buffers {
		if slots[i] == AccessReadWrite {
			c.written[buf] = p.Label
		}
	}

	// Buffers is retained; copy so callers may reuse their slice.
	p.Buffers = append([]Buffer(nil), p.Buffers...)
	c.passes = append(c.passes, p)
}

// Barrier makes all writes recorded so far visible to subsequent passes.
func (c *CommandList) Barrier() {
	if c.err != nil {
		return
	}
	clear(c.written)
	c.barriers++
}

// Len returns the number of recorded passes.
func (c *CommandList) Len() int { return len(c.passes) }

// Barriers returns the number of recorded barriers.
func (c *CommandList) Barriers() int { return c.barriers }

// Err returns the first recording error, if any.
func (c *CommandList) Err() error { return c.err }

// Passes returns the recorded passes. The slice is owned by the list.
func (c *CommandList) Passes() []Pass { return c.passes }

// DispatchStats accumulates execution statistics over the dispatcher's life.
type DispatchStats struct {
	Batches    int
	Passes     int
	Workgroups uint64
	Busy       time.Duration
}

// Dispatcher is the single serialized submission channel to a device.
//
// Thread safety: ExecuteAndWait is serialized by a mutex, so at most one
// batch is in flight. Recording through GetCommandList is not synchronized
// and belongs to the goroutine that owns the build.
type Dispatcher struct {
	device Device

	// mu serializes execution.
	mu sync.Mutex

	list  CommandList
	stats DispatchStats
}

// NewDispatcher creates a dispatcher submitting to device.
func NewDispatcher(device Device) *Dispatcher {
	d := &Dispatcher{device: device}
	d.list.reset()
	return d
}

// Device returns the target device.
func (d *Dispatcher) Device() Device { return d.device }

// GetCommandList discards any prior recording and returns the list to
// record the next batch into.
func (d *Dispatcher) GetCommandList() *CommandList {
	d.list.reset()
	return &d.list
}

// ExecuteAndWait submits the recorded batch and blocks until the device has
// finished it. The recording is cleared afterwards, whether or not the batch
// succeeded.
func (d *Dispatcher) ExecuteAndWait(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.list.reset()

	if err := d.list.err; err != nil {
		return fmt.Errorf("compute: record batch: %w", err)
	}
	if len(d.list.passes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var groups uint64
	for i := range d.list.passes {
		groups += uint64(d.list.passes[i].Groups)
	}

	start := time.Now()
	err := d.device.Execute(ctx, d.list.passes)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrDeviceTimeout) {
			err = fmt.Errorf("%w: %w", ErrDeviceTimeout, err)
		}
		return fmt.Errorf("compute: execute %d passes on %s: %w", len(d.list.passes), d.device.Name(), err)
	}

	d.stats.Batches++
	d.stats.Passes += len(d.list.passes)
	d.stats.Workgroups += groups
	d.stats.Busy += elapsed

	Logger().Debug("compute: batch complete",
		"device", d.device.Name(),
		"passes", len(d.list.passes),
		"barriers", d.list.barriers,
		"workgroups", groups,
		"elapsed", elapsed)
	return nil
}

// Stats returns a snapshot of the accumulated statistics.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
