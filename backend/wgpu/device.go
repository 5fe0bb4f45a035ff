// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // Register Vulkan backend

	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/compute"
)

// Name is the registry name of the GPU device.
const Name = backend.BackendWGPU

// DefaultTimeout bounds a single fence wait.
const DefaultTimeout = 30 * time.Second

// waitSlice is how long one fence wait blocks before the context is
// checked again.
const waitSlice = 50 * time.Millisecond

// maxGroups is the WebGPU default for maxComputeWorkgroupsPerDimension.
const maxGroups = 65535

var (
	// ErrNoAdapter is returned when no GPU adapter is found.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrNoHAL is returned when a device provider does not expose HAL
	// device and queue handles.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrUnaligned is returned for copies that are not 4-byte aligned.
	ErrUnaligned = errors.New("wgpu: copy is not word aligned")
)

func init() {
	backend.Register(Name, func() (compute.Device, error) {
		return New()
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	spirv   bool
	adapter int
	timeout time.Duration
}

func defaultOptions() options {
	return options{adapter: -1, timeout: DefaultTimeout}
}

// WithSPIRV compiles the kernels to SPIR-V with naga instead of handing
// WGSL to the HAL.
func WithSPIRV() Option {
	return func(o *options) {
		o.spirv = true
	}
}

// WithAdapter selects the adapter at index, as listed by Adapters. A
// negative index picks the first discrete or integrated GPU.
func WithAdapter(index int) Option {
	return func(o *options) {
		o.adapter = index
	}
}

// WithTimeout bounds how long Execute and ReadBuffer wait for the GPU.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// AdapterInfo describes one GPU adapter.
type AdapterInfo struct {
	Index int
	Name  string
	Type  gputypes.DeviceType
}

// buffer is a storage buffer in GPU memory.
type buffer struct {
	label string
	size  uint64
	// alloc is size rounded up to a whole word, at least one.
	alloc     uint64
	raw       hal.Buffer
	destroyed atomic.Bool
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Size() uint64  { return b.size }

// Device is a compute.Device backed by a HAL device and queue.
//
// Thread safety: all queue operations hold a mutex, so concurrent callers
// see a single in-order queue.
type Device struct {
	mu       sync.Mutex
	opts     options
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	external bool

	pipelines [compute.KernelCount]*pipeline

	closed bool
	live   int
	leaked int
}

// New opens a GPU through the Vulkan HAL backend and compiles all kernels.
func New(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	instance, err := createInstance()
	if err != nil {
		return nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	selected, err := selectAdapter(adapters, o.adapter)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := &Device{
		opts:     o,
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
	}
	if err := d.createPipelines(); err != nil {
		d.device.Destroy()
		instance.Destroy()
		return nil, err
	}
	compute.Logger().Info("wgpu: device initialized (standalone)", "adapter", d.name, "spirv", o.spirv)
	return d, nil
}

// NewFromHAL wraps an existing HAL device and queue. The caller keeps
// ownership; Close releases only the kernels and buffers created here.
func NewFromHAL(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil HAL device or queue")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:     o,
		device:   device,
		queue:    queue,
		name:     "wgpu-shared",
		external: true,
	}
	if err := d.createPipelines(); err != nil {
		return nil, err
	}
	compute.Logger().Info("wgpu: device initialized (shared)")
	return d, nil
}

// NewFromProvider shares the GPU of a gogpu application. The provider must
// also implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return NewFromHAL(device, queue, opts...)
}

// Adapters lists the GPU adapters visible to the Vulkan backend.
func Adapters() ([]AdapterInfo, error) {
	instance, err := createInstance()
	if err != nil {
		return nil, err
	}
	defer instance.Destroy()

	adapters := instance.EnumerateAdapters(nil)
	out := make([]AdapterInfo, len(adapters))
	for i := range adapters {
		out[i] = AdapterInfo{Index: i, Name: adapters[i].Info.Name, Type: adapters[i].Info.DeviceType}
	}
	return out, nil
}

func createInstance() (hal.Instance, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return instance, nil
}

// selectAdapter returns adapters[index], or with a negative index the first
// hardware GPU, falling back to adapters[0].
func selectAdapter(adapters []hal.ExposedAdapter, index int) (*hal.ExposedAdapter, error) {
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	if index >= 0 {
		if index >= len(adapters) {
			return nil, fmt.Errorf("%w: index %d, have %d", ErrNoAdapter, index, len(adapters))
		}
		return &adapters[index], nil
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i], nil
		}
	}
	return &adapters[0], nil
}

func (d *Device) createPipelines() error {
	for k := range compute.KernelCount {
		p, err := createPipeline(d.device, k, d.opts.spirv)
		if err != nil {
			d.destroyPipelines()
			return fmt.Errorf("wgpu: %w", err)
		}
		d.pipelines[k] = p
	}
	return nil
}

func (d *Device) destroyPipelines() {
	for k, p := range d.pipelines {
		if p != nil {
			p.destroy(d.device)
			d.pipelines[k] = nil
		}
	}
}

// Name implements compute.Device. It returns the adapter name.
func (d *Device) Name() string { return d.name }

// External reports whether the HAL device is owned by someone else.
func (d *Device) External() bool { return d.external }

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

	alloc := max((size+3)&^3, 4)
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alloc,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %w", compute.ErrAllocation, label, size, err)
	}
	d.queue.WriteBuffer(raw, 0, make([]byte, alloc))
	d.live++
	return &buffer{label: label, size: size, alloc: alloc, raw: raw}, nil
}

// DestroyBuffer implements compute.Device.
func (d *Device) DestroyBuffer(buf compute.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.destroyed.Swap(true) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.device.DestroyBuffer(b.raw)
	}
	b.raw = nil
	d.live--
}

func (d *Device) lookup(buf compute.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("wgpu: foreign buffer %T", buf)
	}
	if b.destroyed.Load() {
		return nil, fmt.Errorf("%w: %s", compute.ErrBufferDestroyed, b.label)
	}
	return b, nil
}

func checkAligned(offset uint64, n int) error {
	if offset%4 != 0 || n%4 != 0 {
		return ErrUnaligned
	}
	return nil
}

// WriteBuffer implements compute.Device.
func (d *Device) WriteBuffer(ctx context.Context, buf compute.Buffer, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := d.lookup(buf)
	if err != nil {
		return err
	}
	if err := compute.CheckRange(b, offset, len(data)); err != nil {
		return err
	}
	if err := checkAligned(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}
	d.queue.WriteBuffer(b.raw, offset, data)
	return nil
}

// ReadBuffer implements compute.Device. It copies through a mappable
// staging buffer and waits for the copy on a fence.
func (d *Device) ReadBuffer(ctx context.Context, buf compute.Buffer, offset uint64, dst []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := d.lookup(buf)
	if err != nil {
		return err
	}
	if err := compute.CheckRange(b, offset, len(dst)); err != nil {
		return err
	}
	if err := checkAligned(offset, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}

	res := &resources{}
	defer d.release(res)

	size := uint64(len(dst))
	res.staging, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: staging for %s: %w", compute.ErrAllocation, b.label, err)
	}

	cmd, err := d.encode(b.label+"_readback", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(b.raw, res.staging, []hal.BufferCopy{
			{SrcOffset: offset, DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return err
	}
	res.cmd = cmd

	if err := d.submitAndWait(ctx, res); err != nil {
		return err
	}
	if err := d.queue.ReadBuffer(res.staging, 0, dst); err != nil {
		return fmt.Errorf("wgpu: read %s: %w", b.label, err)
	}
	return nil
}

// Execute implements compute.Device. All passes go into one command buffer;
// each pass gets its own compute pass, its own params uniform and its own
// bind group.
func (d *Device) Execute(ctx context.Context, passes []compute.Pass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(passes) == 0 {
		return nil
	}

	bound := make([][]*buffer, len(passes))
	for i := range passes {
		p := &passes[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Groups > maxGroups {
			return fmt.Errorf("%w: %s dispatches %d groups, limit %d",
				compute.ErrInvalidPass, p.Kernel, p.Groups, maxGroups)
		}
		bound[i] = make([]*buffer, len(p.Buffers))
		for j, buf := range p.Buffers {
			b, err := d.lookup(buf)
			if err != nil {
				return fmt.Errorf("%s binding %d: %w", p.Kernel, j+1, err)
			}
			bound[i][j] = b
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return compute.ErrDeviceClosed
	}

	res := &resources{}
	defer d.release(res)

	for i := range passes {
		if err := d.bindPass(res, &passes[i], bound[i]); err != nil {
			return err
		}
	}

	cmd, err := d.encode("lbvh_batch", func(enc hal.CommandEncoder) {
		for i := range passes {
			p := &passes[i]
			cp := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.Label})
			cp.SetPipeline(d.pipelines[p.Kernel].pipeline)
			cp.SetBindGroup(0, res.groups[i], nil)
			cp.Dispatch(p.Groups, 1, 1)
			cp.End()
		}
	})
	if err != nil {
		return err
	}
	res.cmd = cmd

	return d.submitAndWait(ctx, res)
}

// bindPass uploads the params of p and creates its bind group.
func (d *Device) bindPass(res *resources, p *compute.Pass, bufs []*buffer) error {
	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.Label + "_params",
		Size:  paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: %s params: %w", compute.ErrAllocation, p.Label, err)
	}
	res.uniforms = append(res.uniforms, ub)
	d.queue.WriteBuffer(ub, 0, compute.WordsToBytes(p.Params[:]))

	entries := make([]gputypes.BindGroupEntry, 0, len(bufs)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize},
	})
	for j, b := range bufs {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(j + 1), //nolint:gosec // at most 6 slots
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: 0, Size: b.alloc},
		})
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.Label + "_bind",
		Layout:  d.pipelines[p.Kernel].bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: %s bind group: %w", p.Label, err)
	}
	res.groups = append(res.groups, bg)
	return nil
}

// encode records one command buffer.
func (d *Device) encode(label string, record func(hal.CommandEncoder)) (hal.CommandBuffer, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	record(encoder)
	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return cmd, nil
}

// submitAndWait submits res.cmd and waits on a fence in short slices so
// that ctx is honored. When the wait is abandoned the GPU may still use
// the batch resources, so they are marked in flight and not released.
func (d *Device) submitAndWait(ctx context.Context, res *resources) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	res.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{res.cmd}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}

	deadline := time.Now().Add(d.opts.timeout)
	for {
		ok, err := d.device.Wait(fence, 1, waitSlice)
		if err != nil {
			res.inFlight = true
			return fmt.Errorf("wgpu: wait for GPU: %w", err)
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			res.inFlight = true
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %w", compute.ErrDeviceTimeout, err)
			}
			return err
		}
		if time.Now().After(deadline) {
			res.inFlight = true
			return fmt.Errorf("%w: no fence signal after %v", compute.ErrDeviceTimeout, d.opts.timeout)
		}
	}
}

// resources are the per-batch HAL objects released after the fence.
type resources struct {
	uniforms []hal.Buffer
	groups   []hal.BindGroup
	staging  hal.Buffer
	cmd      hal.CommandBuffer
	fence    hal.Fence
	inFlight bool
}

func (d *Device) release(res *resources) {
	if res.inFlight {
		d.leaked++
		compute.Logger().Warn("wgpu: abandoning in-flight batch resources",
			"uniforms", len(res.uniforms), "leaked_batches", d.leaked)
		return
	}
	for _, bg := range res.groups {
		if bg != nil {
			d.device.DestroyBindGroup(bg)
		}
	}
	for _, ub := range res.uniforms {
		if ub != nil {
			d.device.DestroyBuffer(ub)
		}
	}
	if res.staging != nil {
		d.device.DestroyBuffer(res.staging)
	}
	if res.cmd != nil {
		d.device.FreeCommandBuffer(res.cmd)
	}
	if res.fence != nil {
		d.device.DestroyFence(res.fence)
	}
}

// Close implements compute.Device. Buffers still alive are invalid
// afterwards; a shared HAL device is left open.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.destroyPipelines()

	if d.live > 0 {
		compute.Logger().Warn("wgpu: closing device with live buffers", "live", d.live)
	}
	if d.external {
		d.device = nil
		d.queue = nil
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}
