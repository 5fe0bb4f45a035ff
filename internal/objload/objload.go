// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package objload reads Wavefront OBJ files into static meshes.
//
// Supported statements are v, vt, vn, f, g, o and usemtl. Faces with more
// than three vertices are triangulated as a fan. Every group (and every
// material change inside a group) becomes its own mesh. Other statements
// are ignored.
package objload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/lbvh"
	"github.com/gogpu/lbvh/geom"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("objload: syntax error")

// Scene is the result of reading one OBJ file.
type Scene struct {
	// Meshes hold one entry per non-empty group and material run.
	Meshes []lbvh.Mesh

	// Names[i] is the group name of Meshes[i].
	Names []string

	// Materials lists usemtl names in order of first use. Mesh material
	// indices point into it; faces before any usemtl use index 0 with the
	// empty name.
	Materials []string
}

// Triangles returns the total triangle count.
func (s *Scene) Triangles() int {
	n := 0
	for i := range s.Meshes {
		n += len(s.Meshes[i].Indices) / 3
	}
	return n
}

// MeshSet wraps the meshes for the builder.
func (s *Scene) MeshSet() (*lbvh.MeshSet, error) {
	return lbvh.NewMeshSet(s.Meshes...)
}

// Load reads the OBJ file at path.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, path)
}

// corner identifies one face vertex by its 0-based position, texcoord and
// normal indices. Missing attributes are -1.
type corner struct {
	v, vt, vn int
}

type reader struct {
	name string

	positions []geom.Vec3
	uvs       []f32.Vec2
	normals   []geom.Vec3

	scene    Scene
	group    string
	material uint32
	matIndex map[string]uint32

	// cur is the mesh being filled; remap dedupes its vertices.
	cur   *lbvh.Mesh
	remap map[corner]uint32
}

// Read parses OBJ text from r. name is only used in error messages.
func Read(r io.Reader, name string) (*Scene, error) {
	rd := &reader{
		name:     name,
		group:    "default",
		matIndex: map[string]uint32{"": 0},
	}
	rd.scene.Materials = []string{""}
	if err := rd.parse(r); err != nil {
		return nil, err
	}
	rd.flush()
	lbvh.Logger().Debug("objload: parsed",
		"file", name, "meshes", len(rd.scene.Meshes), "triangles", rd.scene.Triangles())
	return &rd.scene, nil
}

func (r *reader) parse(src io.Reader) error {
	lineNum := 0
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNum++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}

		var err error
		switch tokens[0] {
		case "v":
			var v geom.Vec3
			v, err = parseVec3(tokens)
			r.positions = append(r.positions, v)
		case "vn":
			var v geom.Vec3
			v, err = parseVec3(tokens)
			r.normals = append(r.normals, v)
		case "vt":
			var v f32.Vec2
			v, err = parseVec2(tokens)
			r.uvs = append(r.uvs, v)
		case "g", "o":
			if len(tokens) < 2 {
				err = fmt.Errorf(`expected a name after %q`, tokens[0])
				break
			}
			r.flush()
			r.group = tokens[1]
		case "usemtl":
			if len(tokens) != 2 {
				err = fmt.Errorf(`"usemtl" expects 1 argument; got %d`, len(tokens)-1)
				break
			}
			r.useMaterial(tokens[1])
		case "f":
			err = r.parseFace(tokens)
		}
		if err != nil {
			return fmt.Errorf("%w: %s:%d: %w", ErrSyntax, r.name, lineNum, err)
		}
	}
	return scanner.Err()
}

func (r *reader) useMaterial(name string) {
	idx, ok := r.matIndex[name]
	if !ok {
		idx = uint32(len(r.scene.Materials)) //nolint:gosec // material count fits uint32
		r.matIndex[name] = idx
		r.scene.Materials = append(r.scene.Materials, name)
	}
	if idx != r.material {
		r.flush()
		r.material = idx
	}
}

// flush closes the current mesh. Meshes without faces are dropped.
func (r *reader) flush() {
	if r.cur == nil {
		return
	}
	if len(r.cur.Indices) == 0 {
		lbvh.Logger().Warn("objload: dropping empty mesh", "file", r.name, "group", r.group)
	} else {
		r.scene.Meshes = append(r.scene.Meshes, *r.cur)
		r.scene.Names = append(r.scene.Names, r.group)
	}
	r.cur = nil
	r.remap = nil
}

func (r *reader) mesh() *lbvh.Mesh {
	if r.cur == nil {
		r.cur = &lbvh.Mesh{Static: true, MaterialIndex: r.material}
		r.remap = make(map[corner]uint32)
	}
	return r.cur
}

func (r *reader) parseFace(tokens []string) error {
	if len(tokens) < 4 {
		return fmt.Errorf(`"f" expects at least 3 vertices; got %d`, len(tokens)-1)
	}

	corners := make([]corner, len(tokens)-1)
	parts := 0
	for arg, tok := range tokens[1:] {
		c, n, err := r.parseCorner(tok)
		if err != nil {
			return fmt.Errorf("face vertex %d: %w", arg, err)
		}
		// The first vertex defines the format of the rest.
		if arg == 0 {
			parts = n
		} else if n != parts {
			return fmt.Errorf("face vertex %d has %d indices, expected %d", arg, n, parts)
		}
		corners[arg] = c
	}

	// Faces without normals get the flat normal of their first triangle.
	var flat geom.Vec3
	if corners[0].vn < 0 {
		flat = faceNormal(r.positions[corners[0].v], r.positions[corners[1].v], r.positions[corners[2].v])
	}

	m := r.mesh()
	local := make([]uint32, len(corners))
	for i, c := range corners {
		local[i] = r.vertex(m, c, flat)
	}
	for i := 1; i+1 < len(local); i++ {
		m.Indices = append(m.Indices, local[0], local[i], local[i+1])
	}
	return nil
}

// vertex returns the mesh-local index of c, adding it on first use.
func (r *reader) vertex(m *lbvh.Mesh, c corner, flat geom.Vec3) uint32 {
	key := c
	if c.vn < 0 {
		// Generated normals differ per face, so such vertices are not shared.
		key.vn = -2 - len(m.Positions)
	}
	if idx, ok := r.remap[key]; ok {
		return idx
	}

	idx := uint32(len(m.Positions)) //nolint:gosec // vertex count fits uint32
	m.Positions = append(m.Positions, r.positions[c.v])
	var uv f32.Vec2
	if c.vt >= 0 {
		uv = r.uvs[c.vt]
	}
	m.UVs = append(m.UVs, uv)
	n := flat
	if c.vn >= 0 {
		n = r.normals[c.vn]
	}
	m.Normals = append(m.Normals, n)
	r.remap[key] = idx
	return idx
}

// parseCorner parses "v", "v/vt", "v//vn" or "v/vt/vn" and returns the
// number of slash-separated parts.
func (r *reader) parseCorner(tok string) (corner, int, error) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return corner{}, 0, fmt.Errorf("too many indices in %q", tok)
	}
	if parts[0] == "" {
		return corner{}, 0, fmt.Errorf("missing position index in %q", tok)
	}

	c := corner{v: -1, vt: -1, vn: -1}
	var err error
	if c.v, err = resolveIndex(parts[0], len(r.positions)); err != nil {
		return c, 0, fmt.Errorf("position: %w", err)
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.vt, err = resolveIndex(parts[1], len(r.uvs)); err != nil {
			return c, 0, fmt.Errorf("texcoord: %w", err)
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.vn, err = resolveIndex(parts[2], len(r.normals)); err != nil {
			return c, 0, fmt.Errorf("normal: %w", err)
		}
	}
	return c, len(parts), nil
}

// resolveIndex converts a 1-based or negative (relative to the end) OBJ
// index into a 0-based index below n.
func resolveIndex(tok string, n int) (int, error) {
	index, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return -1, err
	}
	var i int
	switch {
	case index < 0:
		i = n + int(index)
	case index > 0:
		i = int(index - 1)
	default:
		return -1, fmt.Errorf("index 0 is not valid")
	}
	if i < 0 || i >= n {
		return -1, fmt.Errorf("index %d out of bounds (have %d)", index, n)
	}
	return i, nil
}

func parseVec3(tokens []string) (geom.Vec3, error) {
	var v geom.Vec3
	if len(tokens) < 4 {
		return v, fmt.Errorf("%q expects 3 arguments; got %d", tokens[0], len(tokens)-1)
	}
	for i := range 3 {
		f, err := strconv.ParseFloat(tokens[i+1], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseVec2(tokens []string) (f32.Vec2, error) {
	var v f32.Vec2
	if len(tokens) < 3 {
		return v, fmt.Errorf("%q expects 2 arguments; got %d", tokens[0], len(tokens)-1)
	}
	for i := range 2 {
		f, err := strconv.ParseFloat(tokens[i+1], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func faceNormal(a, b, c geom.Vec3) geom.Vec3 {
	e1 := geom.Vec3{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	e2 := geom.Vec3{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := geom.Vec3{
		e1[1]*e2[2] - e1[2]*e2[1],
		e1[2]*e2[0] - e1[0]*e2[2],
		e1[0]*e2[1] - e1[1]*e2[0],
	}
	l := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if l == 0 {
		return geom.Vec3{}
	}
	return geom.Vec3{n[0] / l, n[1] / l, n[2] / l}
}
