// Command lbvh builds linear bounding volume hierarchies over triangle
// scenes and reports per-stage timings.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "lbvh"
	app.Usage = "build linear BVHs on the GPU or CPU"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build a BVH over a scene and print statistics",
			Description: `
Load triangles from a wavefront obj file (or generate a random scene), sort
them along a Morton curve, build the radix tree and merge the bounding boxes
bottom-up. Timings for every stage are printed as a table.`,
			ArgsUsage: "[scene.obj]",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "synthetic, n",
					Usage: "build over `N` random triangles instead of an obj file",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random seed for synthetic scenes",
				},
				cli.StringFlag{
					Name:  "device, d",
					Value: "auto",
					Usage: "compute device: auto, soft or wgpu",
				},
				cli.IntFlag{
					Name:  "adapter",
					Value: -1,
					Usage: "GPU adapter index as printed by the devices command",
				},
				cli.BoolFlag{
					Name:  "spirv",
					Usage: "compile kernels to SPIR-V with naga",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "worker goroutines for the soft device (0 = GOMAXPROCS)",
				},
				cli.IntFlag{
					Name:  "capacity",
					Usage: "maximum triangle count (0 = fit the scene)",
				},
				cli.IntFlag{
					Name:  "block-size",
					Value: 1024,
					Usage: "radix sort block size (multiple of 256)",
				},
				cli.BoolFlag{
					Name:  "fit-bounds",
					Usage: "quantize Morton codes against the scene bounds instead of the default box",
				},
				cli.BoolFlag{
					Name:  "validate",
					Usage: "check the sort and every tree invariant after the build",
				},
				cli.IntFlag{
					Name:  "repeat",
					Value: 1,
					Usage: "rebuild `N` times and report the last build",
				},
				cli.DurationFlag{
					Name:  "timeout",
					Usage: "abort a build after this long (0 = no limit)",
				},
			},
			Action: BuildScene,
		},
		{
			Name:   "devices",
			Usage:  "list available compute devices",
			Action: ListDevices,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lbvh: %v\n", err)
		os.Exit(1)
	}
}
