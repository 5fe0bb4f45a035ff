package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gogpu/lbvh"
	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/backend/soft"
	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/objload"
)

// BuildScene implements the build command.
func BuildScene(ctx *cli.Context) error {
	setupLogging(ctx)
	logger := lbvh.Logger()

	g, source, err := loadScene(ctx)
	if err != nil {
		return err
	}
	logger.Info("scene loaded", "source", source, "triangles", g.NumTriangles())

	dev, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()

	capacity := ctx.Int("capacity")
	if capacity == 0 {
		capacity = max(g.NumTriangles(), 1)
	}
	opts := []lbvh.Option{
		lbvh.WithDevice(dev),
		lbvh.WithCapacity(capacity),
		lbvh.WithBlockSize(ctx.Int("block-size")),
		lbvh.WithValidation(ctx.Bool("validate")),
		lbvh.WithTimeout(ctx.Duration("timeout")),
	}
	if ctx.Bool("fit-bounds") {
		opts = append(opts, lbvh.WithSceneBounds(sceneBounds(g)))
	}

	builder, err := lbvh.NewBuilder(opts...)
	if err != nil {
		return err
	}
	defer builder.Close()

	var bvh *lbvh.BVH
	for i := range max(ctx.Int("repeat"), 1) {
		if bvh, err = builder.Build(context.Background(), g); err != nil {
			return fmt.Errorf("build %d: %w", i+1, err)
		}
	}

	printStats(source, dev.Name(), bvh, builder.Stats(), builder.DispatchStats())
	return nil
}

// loadScene returns the obj file named by the first argument or a random
// scene when --synthetic is set.
func loadScene(ctx *cli.Context) (lbvh.Geometry, string, error) {
	if n := ctx.Int("synthetic"); n > 0 {
		return randomScene(n, ctx.Int64("seed")), "synthetic:" + strconv.Itoa(n), nil
	}

	path := ctx.Args().First()
	if path == "" {
		return nil, "", fmt.Errorf("missing scene file; pass an .obj path or --synthetic N")
	}
	sc, err := objload.Load(path)
	if err != nil {
		return nil, "", err
	}
	set, err := sc.MeshSet()
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	lbvh.Logger().Debug("obj meshes", "file", path, "meshes", len(sc.Meshes), "materials", len(sc.Materials))
	return set, path, nil
}

func openDevice(ctx *cli.Context) (compute.Device, error) {
	switch name := ctx.String("device"); name {
	case "auto":
		return backend.Default()
	case soft.Name:
		return soft.New(soft.WithWorkers(ctx.Int("workers"))), nil
	case backend.BackendWGPU:
		return openGPU(ctx.Int("adapter"), ctx.Bool("spirv"))
	default:
		return nil, fmt.Errorf("unknown device %q (want auto, soft or wgpu)", name)
	}
}

// randomScene scatters small triangles inside the default scene bounds.
func randomScene(n int, seed int64) lbvh.TriangleSlice {
	rng := rand.New(rand.NewPCG(uint64(seed), 0)) //nolint:gosec // reproducible test scenes
	bounds := lbvh.DefaultSceneBounds()
	ext := bounds.Extent()

	tris := make(lbvh.TriangleSlice, n)
	for i := range tris {
		var c geom.Vec3
		for k := range 3 {
			c[k] = bounds.Min[k] + rng.Float32()*ext[k]
		}
		jitter := func() geom.Vec3 {
			return geom.Vec3{
				c[0] + (rng.Float32()-0.5)*0.5,
				c[1] + (rng.Float32()-0.5)*0.5,
				c[2] + (rng.Float32()-0.5)*0.5,
			}
		}
		tris[i] = lbvh.Triangle{
			A:             jitter(),
			B:             jitter(),
			C:             jitter(),
			MaterialIndex: uint32(i % 8), //nolint:gosec // small modulus
		}
	}
	return tris
}

// sceneBounds is the union of all triangle boxes.
func sceneBounds(g lbvh.Geometry) geom.AABB {
	b := geom.EmptyAABB()
	for i := range g.NumTriangles() {
		b = b.Union(g.Triangle(i).Bounds())
	}
	return b
}

func printStats(source, device string, bvh *lbvh.BVH, stats lbvh.BuildStats, disp compute.DispatchStats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Section", "Item", "Value"})

	table.Append([]string{"Scene", "Source", source})
	table.Append([]string{"", "Device", device})
	table.Append([]string{"", "Triangles", strconv.Itoa(int(stats.Triangles))})
	table.Append([]string{" ", " ", " "})

	table.Append([]string{"Tree", "Internal nodes", strconv.Itoa(int(stats.Internal))})
	table.Append([]string{"", "Depth", strconv.Itoa(bvh.Depth())})
	if bvh.Len() > 0 {
		root := bvh.RootBox()
		table.Append([]string{"", "Root min", fmtVec(root.Min)})
		table.Append([]string{"", "Root max", fmtVec(root.Max)})
	}
	table.Append([]string{" ", " ", " "})

	for i, s := range lbvh.Stages() {
		section := ""
		if i == 0 {
			section = "Stages"
		}
		table.Append([]string{section, s.String(), fmtDuration(stats.Duration(s))})
	}
	table.Append([]string{" ", " ", " "})

	table.Append([]string{"Dispatch", "Batches", strconv.Itoa(disp.Batches)})
	table.Append([]string{"", "Passes", strconv.Itoa(disp.Passes)})
	table.Append([]string{"", "Workgroups", strconv.FormatUint(disp.Workgroups, 10)})
	table.Append([]string{"", "Device busy", fmtDuration(disp.Busy)})

	table.SetFooter([]string{"Total", " ", fmtDuration(stats.Total)})
	table.Render()
}

func fmtVec(v geom.Vec3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}

func fmtDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}
