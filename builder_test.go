package lbvh

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"slices"
	"testing"

	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/backend/soft"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/sorter"
)

func newTestBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	opts = append([]Option{WithCapacity(4096), WithWorkers(4)}, opts...)
	b, err := NewBuilder(opts...)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// triangleAt returns a small triangle centered on the point whose
// normalized scene coordinates (default bounds) are u.
func triangleAt(u geom.Vec3, id uint32) Triangle {
	bounds := DefaultSceneBounds()
	var c geom.Vec3
	for i := 0; i < 3; i++ {
		c[i] = bounds.Min[i] + u[i]*(bounds.Max[i]-bounds.Min[i])
	}
	return Triangle{
		A:             geom.Vec3{c[0] - 0.2, c[1] - 0.1, c[2]},
		B:             geom.Vec3{c[0] + 0.2, c[1] - 0.1, c[2] + 0.1},
		C:             geom.Vec3{c[0], c[1] + 0.2, c[2] - 0.1},
		MaterialIndex: id % 7,
		MeshIndex:     id,
	}
}

func randomScene(rng *rand.Rand, n int) TriangleSlice {
	tris := make(TriangleSlice, n)
	for i := range tris {
		tris[i] = triangleAt(geom.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}, uint32(i))
	}
	return tris
}

// twoClusters returns n triangles alternating between a cluster near the
// minimum scene corner and one near the maximum corner. cluster[i] is the
// cluster of triangle i.
func twoClusters(rng *rand.Rand, n int) (TriangleSlice, []int) {
	tris := make(TriangleSlice, n)
	cluster := make([]int, n)
	for i := range tris {
		lo, span := float32(0.02), float32(0.06)
		if i%2 == 1 {
			lo, span = 0.91, 0.03
			cluster[i] = 1
		}
		u := geom.Vec3{lo + rng.Float32()*span, lo + rng.Float32()*span, lo + rng.Float32()*span}
		tris[i] = triangleAt(u, uint32(i))
	}
	return tris, cluster
}

func TestBuildEmpty(t *testing.T) {
	b := newTestBuilder(t)
	bvh, err := b.Build(context.Background(), TriangleSlice(nil))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if bvh.Len() != 0 || len(bvh.InternalNodes) != 0 {
		t.Errorf("Len() = %d, internal = %d, want 0, 0", bvh.Len(), len(bvh.InternalNodes))
	}
	if _, _, ok := bvh.Root(); ok {
		t.Error("Root() ok = true for empty hierarchy")
	}
	if !bvh.RootBox().IsEmpty() {
		t.Errorf("RootBox() = %v, want empty", bvh.RootBox())
	}
	if err := bvh.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if b.State() != StateEmpty {
		t.Errorf("State() = %v, want %v", b.State(), StateEmpty)
	}
}

func TestBuildSingle(t *testing.T) {
	b := newTestBuilder(t)
	tri := triangleAt(geom.Vec3{0.3, 0.6, 0.9}, 0)
	bvh, err := b.Build(context.Background(), TriangleSlice{tri})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if bvh.Len() != 1 || len(bvh.InternalNodes) != 0 {
		t.Fatalf("Len() = %d, internal = %d, want 1, 0", bvh.Len(), len(bvh.InternalNodes))
	}
	if idx, typ, ok := bvh.Root(); !ok || idx != 0 || typ != geom.NodeLeaf {
		t.Errorf("Root() = %d, %v, %v, want 0, Leaf, true", idx, typ, ok)
	}
	if got, want := bvh.RootBox(), tri.Bounds(); got != want {
		t.Errorf("RootBox() = %v, want %v", got, want)
	}
	if p := bvh.LeafNodes[0].Parent; p != geom.InvalidIndex {
		t.Errorf("leaf parent = %#x, want %#x", p, geom.InvalidIndex)
	}
	if err := bvh.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if b.State() != StateReady {
		t.Errorf("State() = %v, want %v", b.State(), StateReady)
	}
}

func TestBuildTwoClusters(t *testing.T) {
	b := newTestBuilder(t, WithValidation(true))
	tris, cluster := twoClusters(rand.New(rand.NewSource(1)), 1000)

	bvh, err := b.Build(context.Background(), tris)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if bvh.Len() != 1000 || len(bvh.InternalNodes) != 999 {
		t.Fatalf("Len() = %d, internal = %d, want 1000, 999", bvh.Len(), len(bvh.InternalNodes))
	}

	root := bvh.InternalNodes[0]
	if root.Parent != geom.InvalidIndex {
		t.Errorf("root parent = %#x, want %#x", root.Parent, geom.InvalidIndex)
	}
	left := bvh.NodeBox(root.Left, root.LeftType)
	right := bvh.NodeBox(root.Right, root.RightType)
	if left.Overlaps(right) {
		t.Errorf("root children overlap: %v and %v", left, right)
	}

	for _, child := range []struct {
		index uint32
		typ   geom.NodeType
	}{{root.Left, root.LeftType}, {root.Right, root.RightType}} {
		leaves := bvh.Leaves(child.index, child.typ)
		if len(leaves) != 500 {
			t.Errorf("subtree %d has %d leaves, want 500", child.index, len(leaves))
		}
		for _, tri := range leaves {
			if cluster[tri] != cluster[leaves[0]] {
				t.Fatalf("subtree %d mixes clusters (triangles %d and %d)", child.index, leaves[0], tri)
			}
		}
	}

	all := geom.EmptyAABB()
	for _, box := range bvh.TriangleAABBs {
		all = all.Union(box)
	}
	if got := bvh.RootBox(); got != all {
		t.Errorf("RootBox() = %v, want union of leaves %v", got, all)
	}
}

func TestBuildIdempotent(t *testing.T) {
	b := newTestBuilder(t)
	scene := randomScene(rand.New(rand.NewSource(2)), 3000)

	first, err := b.Build(context.Background(), scene)
	if err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	// A different scene in between must not leak into the rebuild.
	if _, err := b.Build(context.Background(), randomScene(rand.New(rand.NewSource(3)), 700)); err != nil {
		t.Fatalf("interleaved Build() error = %v", err)
	}
	second, err := b.Build(context.Background(), scene)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("rebuilding unchanged geometry produced a different hierarchy")
	}
	if err := second.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildDuplicateKeys(t *testing.T) {
	b := newTestBuilder(t)
	tri := triangleAt(geom.Vec3{0.5, 0.5, 0.5}, 0)
	scene := make(TriangleSlice, 64)
	for i := range scene {
		scene[i] = tri
	}

	bvh, err := b.Build(context.Background(), scene)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i, k := range bvh.MortonKeys {
		if k != uint32(i) {
			t.Fatalf("MortonKeys[%d] = %d, want %d", i, k, i)
		}
	}
	// The sort is stable, so equal keys keep their original order.
	for i, tri := range bvh.SortedTriangleIndices {
		if tri != uint32(i) {
			t.Fatalf("SortedTriangleIndices[%d] = %d, want %d", i, tri, i)
		}
	}
	if err := bvh.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildCapacityExceededDegrades(t *testing.T) {
	b := newTestBuilder(t, WithCapacity(16), WithBlockSize(256))
	ctx := context.Background()
	scene := randomScene(rand.New(rand.NewSource(4)), 17)

	_, err := b.Build(ctx, scene)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Build() error = %v, want ErrCapacityExceeded", err)
	}
	var be *BuildError
	if !errors.As(err, &be) || be.Stage != StageExtract {
		t.Errorf("error = %#v, want BuildError in extract stage", err)
	}
	if b.State() != StateDegraded {
		t.Errorf("State() = %v, want %v", b.State(), StateDegraded)
	}
	if !errors.Is(b.LastError(), ErrCapacityExceeded) {
		t.Errorf("LastError() = %v, want ErrCapacityExceeded", b.LastError())
	}

	if _, err := b.Build(ctx, scene[:3]); !errors.Is(err, ErrDegraded) {
		t.Errorf("Build() in degraded mode error = %v, want ErrDegraded", err)
	}

	b.Reset()
	if b.State() != StateEmpty || b.LastError() != nil {
		t.Errorf("after Reset: State() = %v, LastError() = %v", b.State(), b.LastError())
	}
	bvh, err := b.Build(ctx, scene[:16])
	if err != nil {
		t.Fatalf("Build() after Reset error = %v", err)
	}
	if err := bvh.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildCanceledDoesNotDegrade(t *testing.T) {
	b := newTestBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, randomScene(rand.New(rand.NewSource(5)), 100))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", err)
	}
	if b.State() == StateDegraded {
		t.Error("cancellation degraded the builder")
	}
}

func TestBuildQuery(t *testing.T) {
	b := newTestBuilder(t)
	tris, cluster := twoClusters(rand.New(rand.NewSource(6)), 400)
	bvh, err := b.Build(context.Background(), tris)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	lowCorner := geom.AABB{Min: geom.Vec3{-50, -30, -50}, Max: geom.Vec3{0, 0, 0}}
	var hits []uint32
	bvh.Query(lowCorner, func(tri uint32) bool {
		hits = append(hits, tri)
		return true
	})
	if len(hits) != 200 {
		t.Errorf("Query() hit %d triangles, want 200", len(hits))
	}
	for _, tri := range hits {
		if cluster[tri] != 0 {
			t.Fatalf("Query() returned triangle %d of the far cluster", tri)
		}
	}

	count := 0
	bvh.Query(lowCorner, func(uint32) bool {
		count++
		return count < 5
	})
	if count != 5 {
		t.Errorf("early stop visited %d, want 5", count)
	}
}

func TestBuildMeshSet(t *testing.T) {
	b := newTestBuilder(t)
	dynamic := quad()
	dynamic.Static = false
	moved := quad()
	moved.Model = Translate(20, 0, 0)
	moved.TransformIndex = 3

	set, err := NewMeshSet(quad(), dynamic, moved)
	if err != nil {
		t.Fatal(err)
	}
	bvh, err := b.Build(context.Background(), set)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if bvh.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 static triangles", bvh.Len())
	}
	meshes := make([]uint32, 0, 4)
	for _, p := range bvh.Payloads {
		meshes = append(meshes, p.MeshIndex)
	}
	if !slices.Equal(meshes, []uint32{0, 0, 2, 2}) {
		t.Errorf("payload meshes = %v, want [0 0 2 2]", meshes)
	}
	if p := bvh.Payloads[3]; p.TransformIndex != 3 || p.TriangleIndex != 3 {
		t.Errorf("payload = %+v, want transform 3, triangle 3", p)
	}
	if got := bvh.RootBox().Max[0]; got < 21 {
		t.Errorf("root box max x = %v, want the translated mesh inside", got)
	}
}

func TestBuildStats(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.Build(context.Background(), randomScene(rand.New(rand.NewSource(8)), 1500)); err != nil {
		t.Fatal(err)
	}
	st := b.Stats()
	if st.Triangles != 1500 || st.Internal != 1499 {
		t.Errorf("Stats() = %d triangles, %d internal, want 1500, 1499", st.Triangles, st.Internal)
	}
	if st.Total <= 0 {
		t.Errorf("Total = %v, want > 0", st.Total)
	}
	if d := b.DispatchStats(); d.Batches == 0 || d.Passes == 0 {
		t.Errorf("DispatchStats() = %+v, want batches and passes", d)
	}
}

func TestNewBuilderInvalidBlockSize(t *testing.T) {
	_, err := NewBuilder(WithCapacity(100), WithBlockSize(100))
	if !errors.Is(err, sorter.ErrInvalidConfig) {
		t.Errorf("NewBuilder() error = %v, want sorter.ErrInvalidConfig", err)
	}
}

func TestWithDeviceReleasesBuffers(t *testing.T) {
	dev := soft.New(soft.WithWorkers(2))
	defer dev.Close()

	b, err := NewBuilder(WithDevice(dev), WithCapacity(512), WithBlockSize(256))
	if err != nil {
		t.Fatal(err)
	}
	if b.Device() != dev {
		t.Error("Device() is not the injected device")
	}
	if _, err := b.Build(context.Background(), randomScene(rand.New(rand.NewSource(9)), 300)); err != nil {
		t.Fatal(err)
	}
	b.Close()
	b.Close()

	if n := dev.LiveBuffers(); n != 0 {
		t.Errorf("LiveBuffers() after Close = %d, want 0", n)
	}
	if _, err := b.Build(context.Background(), TriangleSlice(nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Build() after Close error = %v, want ErrClosed", err)
	}
}

func TestWithBackend(t *testing.T) {
	b, err := NewBuilder(WithBackend(backend.BackendSoft), WithCapacity(256), WithBlockSize(256))
	if err != nil {
		t.Fatalf("NewBuilder(soft) error = %v", err)
	}
	b.Close()

	_, err = NewBuilder(WithBackend("no-such-backend"), WithCapacity(256), WithBlockSize(256))
	if !errors.Is(err, ErrDeviceFailure) || !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("NewBuilder(unknown) error = %v, want DeviceFailure wrapping ErrBackendNotAvailable", err)
	}
}
