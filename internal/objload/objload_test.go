// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package objload

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/lbvh/geom"
)

const cubeSide = `
# two quads sharing an edge
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 2 0 0
v 2 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1

g front
usemtl red
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl blue
f 2//1 5//1 6//1 3//1

g empty
g back
f -3 -2 -1
`

func TestReadGroupsAndMaterials(t *testing.T) {
	s, err := Read(strings.NewReader(cubeSide), "cube.obj")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got, want := len(s.Meshes), 3; got != want {
		t.Fatalf("meshes = %d, want %d", got, want)
	}
	wantNames := []string{"front", "front", "back"}
	for i, n := range wantNames {
		if s.Names[i] != n {
			t.Errorf("Names[%d] = %q, want %q", i, s.Names[i], n)
		}
	}
	wantMats := []string{"", "red", "blue"}
	if len(s.Materials) != len(wantMats) {
		t.Fatalf("materials = %v, want %v", s.Materials, wantMats)
	}
	for i, m := range wantMats {
		if s.Materials[i] != m {
			t.Errorf("Materials[%d] = %q, want %q", i, s.Materials[i], m)
		}
	}
	if s.Meshes[0].MaterialIndex != 1 || s.Meshes[1].MaterialIndex != 2 || s.Meshes[2].MaterialIndex != 2 {
		t.Errorf("material indices = %d %d %d, want 1 2 2",
			s.Meshes[0].MaterialIndex, s.Meshes[1].MaterialIndex, s.Meshes[2].MaterialIndex)
	}
	if got := s.Triangles(); got != 5 {
		t.Errorf("Triangles = %d, want 5", got)
	}
}

func TestReadQuadFan(t *testing.T) {
	s, err := Read(strings.NewReader(cubeSide), "cube.obj")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	m := s.Meshes[0]
	want := []uint32{0, 1, 2, 0, 2, 3}
	if len(m.Indices) != len(want) {
		t.Fatalf("indices = %v, want %v", m.Indices, want)
	}
	for i := range want {
		if m.Indices[i] != want[i] {
			t.Errorf("Indices[%d] = %d, want %d", i, m.Indices[i], want[i])
		}
	}
	if len(m.Positions) != 4 || len(m.UVs) != 4 || len(m.Normals) != 4 {
		t.Errorf("vertex arrays = %d/%d/%d, want 4/4/4", len(m.Positions), len(m.UVs), len(m.Normals))
	}
	if m.UVs[2] != [2]float32{1, 1} {
		t.Errorf("UVs[2] = %v, want [1 1]", m.UVs[2])
	}
	if !m.Static {
		t.Error("loaded meshes should be static")
	}
}

func TestReadNegativeIndicesAndFlatNormals(t *testing.T) {
	s, err := Read(strings.NewReader(cubeSide), "cube.obj")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	m := s.Meshes[2]
	wantPos := []geom.Vec3{{0, 1, 0}, {2, 0, 0}, {2, 1, 0}}
	for i, p := range wantPos {
		if m.Positions[i] != p {
			t.Errorf("Positions[%d] = %v, want %v", i, m.Positions[i], p)
		}
	}
	// (0,1,0),(2,0,0),(2,1,0) winds counter-clockwise seen from +z.
	for i, n := range m.Normals {
		if n != (geom.Vec3{0, 0, 1}) {
			t.Errorf("Normals[%d] = %v, want [0 0 1]", i, n)
		}
	}
}

func TestReadMeshSet(t *testing.T) {
	s, err := Read(strings.NewReader(cubeSide), "cube.obj")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	set, err := s.MeshSet()
	if err != nil {
		t.Fatalf("MeshSet failed: %v", err)
	}
	if set.NumTriangles() != 5 || set.Meshes() != 3 {
		t.Errorf("MeshSet = %d triangles in %d meshes, want 5 in 3", set.NumTriangles(), set.Meshes())
	}
	tri := set.Triangle(4)
	if tri.MeshIndex != 2 || tri.MaterialIndex != 2 {
		t.Errorf("triangle 4 mesh/material = %d/%d, want 2/2", tri.MeshIndex, tri.MaterialIndex)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line string
	}{
		{"bad float", "v 0 x 0\n", ":1:"},
		{"short vertex", "v 0 0\n", ":1:"},
		{"short texcoord", "vt 1\n", ":1:"},
		{"face too short", "v 0 0 0\nv 1 0 0\nf 1 2\n", ":3:"},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n", ":4:"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n", ":4:"},
		{"mixed format", "v 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nf 1/1 2 3\n", ":5:"},
		{"missing position", "v 0 0 0\nf /1 /1 /1\n", ":2:"},
		{"group without name", "\n\ng\n", ":3:"},
		{"usemtl arity", "usemtl\n", ":1:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src), "bad.obj")
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("error = %v, want ErrSyntax", err)
			}
			if !strings.Contains(err.Error(), "bad.obj"+tt.line) {
				t.Errorf("error %q does not name line %s", err, tt.line)
			}
		})
	}
}

func TestReadIgnoresUnknownStatements(t *testing.T) {
	src := "mtllib scene.mtl\ns off\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"
	s, err := Read(strings.NewReader(src), "x.obj")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(s.Meshes) != 1 || s.Names[0] != "default" {
		t.Errorf("meshes = %d names = %v, want one default mesh", len(s.Meshes), s.Names)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	if err := os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Triangles() != 1 {
		t.Errorf("Triangles = %d, want 1", s.Triangles())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.obj")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load missing file: %v, want ErrNotExist", err)
	}
}

func TestResolveIndex(t *testing.T) {
	tests := []struct {
		tok  string
		n    int
		want int
		ok   bool
	}{
		{"1", 3, 0, true},
		{"3", 3, 2, true},
		{"-1", 3, 2, true},
		{"-3", 3, 0, true},
		{"4", 3, 0, false},
		{"-4", 3, 0, false},
		{"0", 3, 0, false},
		{"a", 3, 0, false},
	}
	for _, tt := range tests {
		got, err := resolveIndex(tt.tok, tt.n)
		if (err == nil) != tt.ok {
			t.Errorf("resolveIndex(%q, %d) err = %v, want ok=%v", tt.tok, tt.n, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("resolveIndex(%q, %d) = %d, want %d", tt.tok, tt.n, got, tt.want)
		}
	}
}
