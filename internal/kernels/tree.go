// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernels

import (
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/gogpu/lbvh/geom"
)

// Tree params layout.
const (
	ParamTreeCount = 0
)

// GatherAABB copies triangleAABB[sortedIndices[i]] to sortedAABB[i].
//
// Bindings: sortedIndices, triangleAABB, sortedAABB.
func GatherAABB(inv *Invocation, group uint32) {
	count := inv.Params[ParamTreeCount]
	indices, boxes, sorted := inv.Buffers[0], inv.Buffers[1], inv.Buffers[2]

	threads(group, count, func(i uint32) {
		src := indices[i] * geom.AABBWords
		copy(sorted[i*geom.AABBWords:(i+1)*geom.AABBWords], boxes[src:src+geom.AABBWords])
	})
}

// delta is the length of the common prefix of keys i and j, or -1 when j is
// outside [0, n).
func delta(keys []uint32, n, i, j int) int {
	if j < 0 || j >= n {
		return -1
	}
	return bits.LeadingZeros32(keys[i] ^ keys[j])
}

// ConstructTree builds the binary radix tree over count sorted, unique keys.
// Thread i (i < count-1) fills internal node i and the parent words of its
// two children. Every thread i writes leaf[i].index. Thread 0 marks the root
// parent invalid.
//
// Each word is written by exactly one thread: a node's parent word is owned
// by its parent's thread, all other words by the node's own thread.
//
// Bindings: keys, internal, leaf.
func ConstructTree(inv *Invocation, group uint32) {
	count := inv.Params[ParamTreeCount]
	keys, internal, leaf := inv.Buffers[0], inv.Buffers[1], inv.Buffers[2]

	threads(group, count, func(id uint32) {
		leaf[id*geom.LeafNodeWords+geom.LeafIndex] = id
		if id+1 >= count {
			return
		}
		if id == 0 {
			internal[geom.InternalParent] = geom.InvalidIndex
		}
		buildInternal(keys, internal, leaf, int(count), int(id))
	})
}

func buildInternal(keys, internal, leaf []uint32, n, i int) {
	// Direction of the range: towards the neighbor with the longer prefix.
	d := 1
	if delta(keys, n, i, i+1) < delta(keys, n, i, i-1) {
		d = -1
	}

	// Upper bound for the range length.
	dmin := delta(keys, n, i, i-d)
	lmax := 2
	for delta(keys, n, i, i+lmax*d) > dmin {
		lmax *= 2
	}

	// Exact other end by binary search.
	l := 0
	for t := lmax / 2; t >= 1; t /= 2 {
		if delta(keys, n, i, i+(l+t)*d) > dmin {
			l += t
		}
	}
	j := i + l*d

	// Split position by binary search on the node prefix.
	dnode := delta(keys, n, i, j)
	s := 0
	for t := l; t > 1; {
		t = (t + 1) / 2
		if delta(keys, n, i, i+(s+t)*d) > dnode {
			s += t
		}
	}
	gamma := i + s*d + min(d, 0)

	first, last := min(i, j), max(i, j)
	node := uint32(i) * geom.InternalNodeWords

	left, leftType := uint32(gamma), geom.NodeInternal
	if first == gamma {
		leftType = geom.NodeLeaf
	}
	right, rightType := uint32(gamma+1), geom.NodeInternal
	if last == gamma+1 {
		rightType = geom.NodeLeaf
	}

	internal[node+geom.InternalLeft] = left
	internal[node+geom.InternalLeftType] = uint32(leftType)
	internal[node+geom.InternalRight] = right
	internal[node+geom.InternalRightType] = uint32(rightType)
	internal[node+geom.InternalIndex] = uint32(i)

	setParent(internal, leaf, left, leftType, uint32(i))
	setParent(internal, leaf, right, rightType, uint32(i))
}

func setParent(internal, leaf []uint32, child uint32, t geom.NodeType, parent uint32) {
	if t == geom.NodeLeaf {
		leaf[child*geom.LeafNodeWords+geom.LeafParent] = parent
		return
	}
	internal[child*geom.InternalNodeWords+geom.InternalParent] = parent
}

// ConstructBVH runs MergeLeaf for every leaf thread of the group.
//
// Bindings: sortedAABB, internal, leaf, atomics, bvh.
func ConstructBVH(inv *Invocation, group uint32) {
	count := inv.Params[ParamTreeCount]
	sorted, internal, leaf := inv.Buffers[0], inv.Buffers[1], inv.Buffers[2]
	counters, bvh := inv.Buffers[3], inv.Buffers[4]

	threads(group, count, func(i uint32) {
		MergeLeaf(sorted, internal, leaf, counters, bvh, i)
	})
}

// MergeLeaf is the work of one merge thread, starting at leaf i.
//
// At every ancestor the thread increments that node's counter. The first
// thread to arrive stops there. The second arrival (the counter reaches 2)
// is the only one that can see both children's boxes final; it writes the
// union into bvh and continues with the parent. The walk ends at the root.
//
// MergeLeaf is safe to call concurrently for distinct leaves of the same
// tree. Box words are published by the counter increment: a child box is
// written before the writer's increment on the parent, and read after the
// reader's increment on the same counter.
func MergeLeaf(sorted, internal, leaf, counters, bvh []uint32, i uint32) {
	node := leaf[i*geom.LeafNodeWords+geom.LeafParent]
	for {
		if atomic.AddUint32(&counters[node], 1) == 1 {
			return
		}

		base := node * geom.InternalNodeWords
		lb := childBox(sorted, bvh, internal[base+geom.InternalLeft], geom.NodeType(internal[base+geom.InternalLeftType]))
		rb := childBox(sorted, bvh, internal[base+geom.InternalRight], geom.NodeType(internal[base+geom.InternalRightType]))
		out := bvh[node*geom.AABBWords : (node+1)*geom.AABBWords]
		unionWords(out, lb, rb)

		if node == 0 {
			return
		}
		node = internal[base+geom.InternalParent]
	}
}

func childBox(sorted, bvh []uint32, index uint32, t geom.NodeType) []uint32 {
	src := sorted
	if t == geom.NodeInternal {
		src = bvh
	}
	return src[index*geom.AABBWords : (index+1)*geom.AABBWords]
}

// unionWords writes the union of boxes a and b, both in AABB word layout.
func unionWords(dst, a, b []uint32) {
	for c := 0; c < 3; c++ {
		lo := min(math.Float32frombits(a[geom.AABBMinOff+c]), math.Float32frombits(b[geom.AABBMinOff+c]))
		hi := max(math.Float32frombits(a[geom.AABBMaxOff+c]), math.Float32frombits(b[geom.AABBMaxOff+c]))
		dst[geom.AABBMinOff+c] = math.Float32bits(lo)
		dst[geom.AABBMaxOff+c] = math.Float32bits(hi)
	}
	dst[geom.AABBMinOff+3] = 0
	dst[geom.AABBMaxOff+3] = 0
}
