// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import "fmt"

// InvalidIndex marks a missing node reference. It is also the sentinel key
// used to pad unused sort slots.
const InvalidIndex = 0xFFFFFFFF

// NodeType tags a child reference as internal or leaf.
type NodeType uint32

const (
	// NodeInternal refers to an entry of the internal node array.
	NodeInternal NodeType = 0
	// NodeLeaf refers to an entry of the leaf node array.
	NodeLeaf NodeType = 1
)

// String returns the string representation of NodeType.
func (t NodeType) String() string {
	switch t {
	case NodeInternal:
		return "Internal"
	case NodeLeaf:
		return "Leaf"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(t))
	}
}

// InternalNode is one of the n-1 internal nodes of the radix tree.
// Node 0 is the root and has Parent == InvalidIndex.
type InternalNode struct {
	Left      uint32
	LeftType  NodeType
	Right     uint32
	RightType NodeType
	Parent    uint32
	Index     uint32
}

// LeafNode is one of the n leaves. Index is the leaf's position in sorted
// order; SortedTriangleIndices maps it back to the original triangle.
type LeafNode struct {
	Parent uint32
	Index  uint32
}

// TrianglePayload references a triangle's geometry, material and transform
// tables instead of carrying vertex data.
type TrianglePayload struct {
	TriangleIndex  uint32
	MeshIndex      uint32
	MaterialIndex  uint32
	TransformIndex uint32
}
