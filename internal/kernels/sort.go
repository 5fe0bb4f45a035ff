// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernels

// RadixBits is the digit width of one sort pass.
const RadixBits = 8

// Buckets is the number of distinct digits per pass.
const Buckets = 1 << RadixBits

const digitMask = Buckets - 1

// Sort params layout, shared by every sort kernel.
const (
	ParamBitOffset = 0
	ParamNumBlocks = 1
	ParamBlockSize = 2
	ParamCount     = 3
)

func digit(key, bitOffset uint32) uint32 {
	return (key >> bitOffset) & digitMask
}

// LocalRadixSort stably bucket-sorts block `group` by the current digit.
//
// Bindings: keys, values, blockKeys, blockValues, blockOffsets, bucketSizes.
// blockOffsets[b*Buckets+k] receives the start of bucket k inside block b;
// bucketSizes[k*numBlocks+b] receives the bucket's element count. The
// bucket-major size layout makes one exclusive scan yield global offsets
// that keep blocks in order within a bucket, which is what makes the sort
// stable.
func LocalRadixSort(inv *Invocation, group uint32) {
	bit := inv.Params[ParamBitOffset]
	numBlocks := inv.Params[ParamNumBlocks]
	blockSize := inv.Params[ParamBlockSize]
	keys, values := inv.Buffers[0], inv.Buffers[1]
	blockKeys, blockValues := inv.Buffers[2], inv.Buffers[3]
	offsets, sizes := inv.Buffers[4], inv.Buffers[5]

	base := group * blockSize
	block := keys[base : base+blockSize]

	var hist [Buckets]uint32
	for _, k := range block {
		hist[digit(k, bit)]++
	}

	var start [Buckets]uint32
	run := uint32(0)
	for d := range uint32(Buckets) {
		start[d] = run
		offsets[group*Buckets+d] = run
		sizes[d*numBlocks+group] = hist[d]
		run += hist[d]
	}

	for j, k := range block {
		d := digit(k, bit)
		pos := base + start[d]
		start[d]++
		blockKeys[pos] = k
		blockValues[pos] = values[base+uint32(j)]
	}
}

// PreScan exclusive-scans chunk `group` of bucketSizes in place and writes
// the chunk total to groupSums[group]. The chunk length is blockSize and
// the scanned array has count entries.
//
// Bindings: bucketSizes, groupSums.
func PreScan(inv *Invocation, group uint32) {
	chunk := inv.Params[ParamBlockSize]
	count := inv.Params[ParamCount]
	sizes, sums := inv.Buffers[0], inv.Buffers[1]

	lo := group * chunk
	hi := min(lo+chunk, count)
	run := uint32(0)
	for i := lo; i < hi; i++ {
		v := sizes[i]
		sizes[i] = run
		run += v
	}
	sums[group] = run
}

// BlockSum exclusive-scans the chunk totals. It runs as a single group.
//
// Bindings: groupSums.
func BlockSum(inv *Invocation, _ uint32) {
	chunk := inv.Params[ParamBlockSize]
	count := inv.Params[ParamCount]
	sums := inv.Buffers[0]

	n := (count + chunk - 1) / chunk
	run := uint32(0)
	for i := range n {
		v := sums[i]
		sums[i] = run
		run += v
	}
}

// GlobalScan adds each chunk's scanned total to the chunk's elements,
// turning chunk-local offsets into global ones.
//
// Bindings: bucketSizes, groupSums.
func GlobalScan(inv *Invocation, group uint32) {
	chunk := inv.Params[ParamBlockSize]
	count := inv.Params[ParamCount]
	sizes, sums := inv.Buffers[0], inv.Buffers[1]

	threads(group, count, func(i uint32) {
		sizes[i] += sums[i/chunk]
	})
}

// GlobalScatter writes every element of locally sorted block `group` to its
// global position for the current digit.
//
// Bindings: blockKeys, blockValues, blockOffsets, bucketSizes, keys, values.
func GlobalScatter(inv *Invocation, group uint32) {
	bit := inv.Params[ParamBitOffset]
	numBlocks := inv.Params[ParamNumBlocks]
	blockSize := inv.Params[ParamBlockSize]
	blockKeys, blockValues := inv.Buffers[0], inv.Buffers[1]
	offsets, sizes := inv.Buffers[2], inv.Buffers[3]
	keys, values := inv.Buffers[4], inv.Buffers[5]

	base := group * blockSize
	for j := range blockSize {
		k := blockKeys[base+j]
		d := digit(k, bit)
		dst := sizes[d*numBlocks+group] + (j - offsets[group*Buckets+d])
		keys[dst] = k
		values[dst] = blockValues[base+j]
	}
}
