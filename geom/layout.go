// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"math"

	"github.com/gogpu/lbvh/compute"
)

// Word offsets of an AABB in device memory: vec3 min, pad, vec3 max, pad.
const (
	AABBWords  = 8
	AABBMinOff = 0
	AABBMaxOff = 4
)

// Word offsets of an InternalNode in device memory.
const (
	InternalNodeWords = 6
	InternalLeft      = 0
	InternalLeftType  = 1
	InternalRight     = 2
	InternalRightType = 3
	InternalParent    = 4
	InternalIndex     = 5
)

// Word offsets of a LeafNode in device memory.
const (
	LeafNodeWords = 2
	LeafParent    = 0
	LeafIndex     = 1
)

// PayloadWords is the size of a TrianglePayload in words.
const PayloadWords = 4

// AABBLayout packs an AABB as {min.xyz, 0, max.xyz, 0}.
var AABBLayout = compute.Layout[AABB]{
	Words: AABBWords,
	Encode: func(b AABB, dst []uint32) {
		PutAABB(dst, b)
	},
	Decode: func(src []uint32) AABB {
		return GetAABB(src)
	},
}

// PutAABB writes b into the first AABBWords entries of dst.
func PutAABB(dst []uint32, b AABB) {
	for i := 0; i < 3; i++ {
		dst[AABBMinOff+i] = math.Float32bits(b.Min[i])
		dst[AABBMaxOff+i] = math.Float32bits(b.Max[i])
	}
	dst[AABBMinOff+3] = 0
	dst[AABBMaxOff+3] = 0
}

// GetAABB reads an AABB from the first AABBWords entries of src.
func GetAABB(src []uint32) AABB {
	var b AABB
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Float32frombits(src[AABBMinOff+i])
		b.Max[i] = math.Float32frombits(src[AABBMaxOff+i])
	}
	return b
}

// InternalNodeLayout packs an InternalNode as six u32 words.
var InternalNodeLayout = compute.Layout[InternalNode]{
	Words: InternalNodeWords,
	Encode: func(n InternalNode, dst []uint32) {
		dst[InternalLeft] = n.Left
		dst[InternalLeftType] = uint32(n.LeftType)
		dst[InternalRight] = n.Right
		dst[InternalRightType] = uint32(n.RightType)
		dst[InternalParent] = n.Parent
		dst[InternalIndex] = n.Index
	},
	Decode: func(src []uint32) InternalNode {
		return InternalNode{
			Left:      src[InternalLeft],
			LeftType:  NodeType(src[InternalLeftType]),
			Right:     src[InternalRight],
			RightType: NodeType(src[InternalRightType]),
			Parent:    src[InternalParent],
			Index:     src[InternalIndex],
		}
	},
}

// LeafNodeLayout packs a LeafNode as {parent, index}.
var LeafNodeLayout = compute.Layout[LeafNode]{
	Words: LeafNodeWords,
	Encode: func(n LeafNode, dst []uint32) {
		dst[LeafParent] = n.Parent
		dst[LeafIndex] = n.Index
	},
	Decode: func(src []uint32) LeafNode {
		return LeafNode{Parent: src[LeafParent], Index: src[LeafIndex]}
	},
}

// PayloadLayout packs a TrianglePayload as four u32 words.
var PayloadLayout = compute.Layout[TrianglePayload]{
	Words: PayloadWords,
	Encode: func(p TrianglePayload, dst []uint32) {
		dst[0] = p.TriangleIndex
		dst[1] = p.MeshIndex
		dst[2] = p.MaterialIndex
		dst[3] = p.TransformIndex
	},
	Decode: func(src []uint32) TrianglePayload {
		return TrianglePayload{
			TriangleIndex:  src[0],
			MeshIndex:      src[1],
			MaterialIndex:  src[2],
			TransformIndex: src[3],
		}
	},
}
