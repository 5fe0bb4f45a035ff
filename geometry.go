package lbvh

import (
	"fmt"
	"math"
	"slices"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/lbvh/geom"
)

// Triangle is one world-space triangle with its shading attributes and
// table indices. Only the positions affect the hierarchy; the indices are
// carried into the payload table.
type Triangle struct {
	A, B, C geom.Vec3

	UV     [3]f32.Vec2
	Normal [3]geom.Vec3

	MaterialIndex  uint32
	TransformIndex uint32
	MeshIndex      uint32
}

// Bounds returns the epsilon-inflated box of the triangle.
func (t Triangle) Bounds() geom.AABB {
	return geom.TriangleAABB(t.A, t.B, t.C)
}

// Geometry is an ordered triangle source. Triangle ordinals are the values
// carried through the sort.
type Geometry interface {
	NumTriangles() int
	Triangle(i int) Triangle
}

// TriangleSlice adapts a slice of world-space triangles to Geometry.
type TriangleSlice []Triangle

// NumTriangles implements Geometry.
func (s TriangleSlice) NumTriangles() int { return len(s) }

// Triangle implements Geometry.
func (s TriangleSlice) Triangle(i int) Triangle { return s[i] }

// Identity returns the 4x4 identity matrix.
func Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) f32.Mat4 {
	m := Identity()
	m[3], m[7], m[11] = x, y, z
	return m
}

// Mesh is an indexed triangle mesh in object space.
type Mesh struct {
	Positions []geom.Vec3
	Normals   []geom.Vec3
	UVs       []f32.Vec2
	Indices   []uint32

	// Model maps object space to world space (row-major, column vectors).
	// The zero matrix is treated as the identity.
	Model f32.Mat4

	// Static meshes are extracted into the hierarchy; dynamic ones are
	// skipped.
	Static bool

	MaterialIndex  uint32
	TransformIndex uint32
}

func (m *Mesh) validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Positions) {
			return fmt.Errorf("%w: index %d at %d out of range [0, %d)", ErrInvalidMesh, idx, i, len(m.Positions))
		}
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Positions) {
		return fmt.Errorf("%w: %d normals for %d positions", ErrInvalidMesh, len(m.Normals), len(m.Positions))
	}
	if len(m.UVs) != 0 && len(m.UVs) != len(m.Positions) {
		return fmt.Errorf("%w: %d texcoords for %d positions", ErrInvalidMesh, len(m.UVs), len(m.Positions))
	}
	return nil
}

type meshTriangle struct {
	mesh  uint32
	first uint32
}

// MeshSet exposes the static meshes of a scene as world-space Geometry.
// Dynamic meshes keep their mesh index but contribute no triangles.
type MeshSet struct {
	meshes []Mesh
	tris   []meshTriangle
}

// NewMeshSet validates meshes and indexes the triangles of the static ones.
func NewMeshSet(meshes ...Mesh) (*MeshSet, error) {
	s := &MeshSet{meshes: slices.Clone(meshes)}
	for mi := range s.meshes {
		m := &s.meshes[mi]
		if m.Model == (f32.Mat4{}) {
			m.Model = Identity()
		}
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("mesh %d: %w", mi, err)
		}
		if !m.Static {
			continue
		}
		for t := 0; t < len(m.Indices); t += 3 {
			s.tris = append(s.tris, meshTriangle{mesh: uint32(mi), first: uint32(t)})
		}
	}
	return s, nil
}

// Meshes returns the number of meshes, static or not.
func (s *MeshSet) Meshes() int { return len(s.meshes) }

// NumTriangles implements Geometry.
func (s *MeshSet) NumTriangles() int { return len(s.tris) }

// Triangle implements Geometry. Positions are transformed by the mesh
// model matrix and normals by its upper 3x3 block.
func (s *MeshSet) Triangle(i int) Triangle {
	ref := s.tris[i]
	m := &s.meshes[ref.mesh]
	t := Triangle{
		MaterialIndex:  m.MaterialIndex,
		TransformIndex: m.TransformIndex,
		MeshIndex:      ref.mesh,
	}
	pos := [3]*geom.Vec3{&t.A, &t.B, &t.C}
	for k := 0; k < 3; k++ {
		v := m.Indices[ref.first+uint32(k)]
		*pos[k] = transformPoint(&m.Model, m.Positions[v])
		if len(m.Normals) != 0 {
			t.Normal[k] = transformNormal(&m.Model, m.Normals[v])
		}
		if len(m.UVs) != 0 {
			t.UV[k] = m.UVs[v]
		}
	}
	return t
}

func transformPoint(m *f32.Mat4, p geom.Vec3) geom.Vec3 {
	return geom.Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

func transformNormal(m *f32.Mat4, n geom.Vec3) geom.Vec3 {
	r := geom.Vec3{
		m[0]*n[0] + m[1]*n[1] + m[2]*n[2],
		m[4]*n[0] + m[5]*n[1] + m[6]*n[2],
		m[8]*n[0] + m[9]*n[1] + m[10]*n[2],
	}
	l := float32(math.Sqrt(float64(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])))
	if l == 0 {
		return r
	}
	return geom.Vec3{r[0] / l, r[1] / l, r[2] / l}
}
