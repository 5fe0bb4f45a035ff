package main

import (
	"context"
	"testing"

	"github.com/gogpu/lbvh"
	"github.com/gogpu/lbvh/backend/soft"
)

func TestRandomSceneDeterministic(t *testing.T) {
	a := randomScene(100, 7)
	b := randomScene(100, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("triangle %d differs between runs with the same seed", i)
		}
	}
	if c := randomScene(100, 8); c[0] == a[0] {
		t.Error("different seeds produced the same first triangle")
	}
}

func TestSceneBoundsContainsTriangles(t *testing.T) {
	g := randomScene(500, 1)
	b := sceneBounds(g)
	for i := range g.NumTriangles() {
		if !b.Contains(g.Triangle(i).Bounds()) {
			t.Fatalf("scene bounds %v miss triangle %d", b, i)
		}
	}
}

func TestBuildRandomScene(t *testing.T) {
	dev := soft.New(soft.WithWorkers(2))
	defer dev.Close()

	g := randomScene(2000, 3)
	b, err := lbvh.NewBuilder(
		lbvh.WithDevice(dev),
		lbvh.WithCapacity(g.NumTriangles()),
		lbvh.WithSceneBounds(sceneBounds(g)),
		lbvh.WithValidation(true),
	)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	defer b.Close()

	bvh, err := b.Build(context.Background(), g)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if bvh.Len() != 2000 {
		t.Errorf("Len = %d, want 2000", bvh.Len())
	}
}
