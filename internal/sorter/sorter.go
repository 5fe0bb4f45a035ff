// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sorter implements an LSD radix sort of (key, value) u32 pairs on a
// compute device.
//
// Each 8-bit digit is sorted with five kernels:
//
//	local_radix_sort  keys -> block-sorted keys, per-(block,bucket) offsets and sizes
//	pre_scan          sizes -> chunk-local exclusive scan, chunk totals
//	block_sum         chunk totals -> exclusive scan (one workgroup)
//	global_scan       sizes += scanned chunk totals -> global bucket offsets
//	global_scatter    block-sorted keys -> keys at their global positions
//
// with a barrier between every two kernels, and one ExecuteAndWait per digit.
package sorter

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/kernels"
)

// Sorter errors.
var (
	// ErrInvalidConfig is returned for block geometries the kernels cannot run.
	ErrInvalidConfig = errors.New("sorter: invalid config")

	// ErrCapacity is returned when more elements are sorted than the
	// configured capacity.
	ErrCapacity = errors.New("sorter: element count exceeds capacity")

	// ErrUnsorted is returned by Verify when keys are not ascending.
	ErrUnsorted = errors.New("sorter: keys are not ascending")
)

// Sentinel is the key and value of unused slots. It sorts last.
const Sentinel = geom.InvalidIndex

// Config is the block geometry of the sort.
type Config struct {
	// BlockSize is the number of elements per block. It is also the chunk
	// length of the scan levels.
	BlockSize uint32

	// MaxBlocks is the number of blocks at capacity.
	MaxBlocks uint32
}

// DefaultConfig returns 512 blocks of 1024 elements (524,288 elements).
func DefaultConfig() Config {
	return Config{BlockSize: 1024, MaxBlocks: 512}
}

// Capacity returns the maximum number of sortable elements.
func (c Config) Capacity() uint32 { return c.BlockSize * c.MaxBlocks }

// Validate checks that the block-sum level fits in one workgroup and that a
// block divides evenly among workgroup threads.
func (c Config) Validate() error {
	if c.BlockSize == 0 || c.MaxBlocks == 0 {
		return fmt.Errorf("%w: zero block size or count", ErrInvalidConfig)
	}
	if c.BlockSize%compute.WorkgroupSize != 0 {
		return fmt.Errorf("%w: block size %d is not a multiple of %d",
			ErrInvalidConfig, c.BlockSize, compute.WorkgroupSize)
	}
	if uint64(c.BlockSize)*uint64(c.MaxBlocks) > 1<<31 {
		return fmt.Errorf("%w: capacity %d x %d overflows", ErrInvalidConfig, c.BlockSize, c.MaxBlocks)
	}
	if groups := c.scanGroups(c.MaxBlocks); groups > c.BlockSize {
		return fmt.Errorf("%w: %d scan groups exceed one block-sum chunk of %d",
			ErrInvalidConfig, groups, c.BlockSize)
	}
	return nil
}

// ActiveBlocks returns the number of blocks covering m elements.
func (c Config) ActiveBlocks(m uint32) uint32 {
	return (m + c.BlockSize - 1) / c.BlockSize
}

func (c Config) scanGroups(blocks uint32) uint32 {
	n := kernels.Buckets * blocks
	return (n + c.BlockSize - 1) / c.BlockSize
}

// Sorter owns the scratch buffers of the sort, allocated once at capacity.
type Sorter struct {
	cfg  Config
	disp *compute.Dispatcher

	blockKeys   *compute.DataBuffer[uint32]
	blockValues *compute.DataBuffer[uint32]
	offsets     *compute.DataBuffer[uint32]
	sizes       *compute.DataBuffer[uint32]
	sums        *compute.DataBuffer[uint32]
}

// New allocates a sorter for cfg on the dispatcher's device.
func New(disp *compute.Dispatcher, cfg Config) (*Sorter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sorter{cfg: cfg, disp: disp}
	dev := disp.Device()
	capacity := int(cfg.Capacity())
	bucketSlots := int(kernels.Buckets * cfg.MaxBlocks)

	specs := []struct {
		target **compute.DataBuffer[uint32]
		label  string
		n      int
	}{
		{&s.blockKeys, "sort_block_keys", capacity},
		{&s.blockValues, "sort_block_values", capacity},
		{&s.offsets, "sort_block_offsets", bucketSlots},
		{&s.sizes, "sort_bucket_sizes", bucketSlots},
		{&s.sums, "sort_group_sums", int(cfg.scanGroups(cfg.MaxBlocks))},
	}
	for _, sp := range specs {
		b, err := compute.NewDataBuffer(dev, sp.label, compute.Uint32Layout, sp.n)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		*sp.target = b
	}
	return s, nil
}

// Config returns the block geometry.
func (s *Sorter) Config() Config { return s.cfg }

// Sort sorts the first m (key, value) pairs ascending by key, stably.
//
// Slots [m, ActiveBlocks(m)*BlockSize) of both buffers are overwritten with
// Sentinel so that the padding of the last block sorts behind real data.
// keys and values must each hold Capacity elements.
func (s *Sorter) Sort(ctx context.Context, keys, values *compute.DataBuffer[uint32], m uint32) error {
	if m > s.cfg.Capacity() {
		return fmt.Errorf("%w: %d > %d", ErrCapacity, m, s.cfg.Capacity())
	}
	if keys.Len() < int(s.cfg.Capacity()) || values.Len() < int(s.cfg.Capacity()) {
		return fmt.Errorf("%w: key/value buffers hold %d/%d, need %d",
			ErrInvalidConfig, keys.Len(), values.Len(), s.cfg.Capacity())
	}
	if m <= 1 {
		return nil
	}

	blocks := s.cfg.ActiveBlocks(m)
	if err := pad(ctx, keys, m, blocks*s.cfg.BlockSize); err != nil {
		return err
	}
	if err := pad(ctx, values, m, blocks*s.cfg.BlockSize); err != nil {
		return err
	}

	for bit := uint32(0); bit < 32; bit += kernels.RadixBits {
		s.recordDigit(keys.Buffer(), values.Buffer(), bit, blocks)
		if err := s.disp.ExecuteAndWait(ctx); err != nil {
			return fmt.Errorf("sorter: digit at bit %d: %w", bit, err)
		}
	}

	compute.Logger().Debug("sorter: sorted",
		"elements", m,
		"blocks", blocks,
		"scan_groups", s.cfg.scanGroups(blocks))
	return nil
}

func pad(ctx context.Context, b *compute.DataBuffer[uint32], lo, hi uint32) error {
	if lo >= hi {
		return nil
	}
	local := b.Local()
	for i := lo; i < hi; i++ {
		local[i] = Sentinel
	}
	return b.UploadRange(ctx, int(lo), int(hi))
}

// recordDigit records the five kernels of one digit pass.
func (s *Sorter) recordDigit(keys, values compute.Buffer, bit, blocks uint32) {
	scanLen := kernels.Buckets * blocks
	params := [compute.ParamsWords]uint32{
		kernels.ParamBitOffset: bit,
		kernels.ParamNumBlocks: blocks,
		kernels.ParamBlockSize: s.cfg.BlockSize,
		kernels.ParamCount:     scanLen,
	}
	label := func(k compute.Kernel) string { return fmt.Sprintf("%s_%d", k, bit) }

	cl := s.disp.GetCommandList()
	cl.Dispatch(compute.Pass{
		Kernel: compute.KernelLocalRadixSort,
		Label:  label(compute.KernelLocalRadixSort),
		Params: params,
		Groups: blocks,
		Buffers: []compute.Buffer{
			keys, values,
			s.blockKeys.Buffer(), s.blockValues.Buffer(),
			s.offsets.Buffer(), s.sizes.Buffer(),
		},
	})
	cl.Barrier()
	cl.Dispatch(compute.Pass{
		Kernel:  compute.KernelPreScan,
		Label:   label(compute.KernelPreScan),
		Params:  params,
		Groups:  s.cfg.scanGroups(blocks),
		Buffers: []compute.Buffer{s.sizes.Buffer(), s.sums.Buffer()},
	})
	cl.Barrier()
	cl.Dispatch(compute.Pass{
		Kernel:  compute.KernelBlockSum,
		Label:   label(compute.KernelBlockSum),
		Params:  params,
		Groups:  1,
		Buffers: []compute.Buffer{s.sums.Buffer()},
	})
	cl.Barrier()
	cl.Dispatch(compute.Pass{
		Kernel:  compute.KernelGlobalScan,
		Label:   label(compute.KernelGlobalScan),
		Params:  params,
		Groups:  compute.GroupsFor(scanLen),
		Buffers: []compute.Buffer{s.sizes.Buffer(), s.sums.Buffer()},
	})
	cl.Barrier()
	cl.Dispatch(compute.Pass{
		Kernel: compute.KernelGlobalScatter,
		Label:  label(compute.KernelGlobalScatter),
		Params: params,
		Groups: blocks,
		Buffers: []compute.Buffer{
			s.blockKeys.Buffer(), s.blockValues.Buffer(),
			s.offsets.Buffer(), s.sizes.Buffer(),
			keys, values,
		},
	})
}

// Verify reads back the first m keys and checks they are ascending.
func Verify(ctx context.Context, keys *compute.DataBuffer[uint32], m uint32) error {
	if m <= 1 {
		return nil
	}
	if err := keys.ReadbackRange(ctx, 0, int(m)); err != nil {
		return err
	}
	local := keys.Local()
	for i := uint32(1); i < m; i++ {
		if local[i-1] > local[i] {
			return fmt.Errorf("%w: keys[%d] = %#x > keys[%d] = %#x", ErrUnsorted, i-1, local[i-1], i, local[i])
		}
	}
	return nil
}

// Destroy releases the scratch buffers.
func (s *Sorter) Destroy() {
	for _, b := range []*compute.DataBuffer[uint32]{s.blockKeys, s.blockValues, s.offsets, s.sizes, s.sums} {
		if b != nil {
			b.Destroy()
		}
	}
}
