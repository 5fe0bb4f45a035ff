package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gogpu/lbvh"
	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/backend/soft"
)

// ListDevices implements the devices command.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Index", "Backend", "Name", "Type"})
	table.Append([]string{"--", soft.Name, "cpu", fmt.Sprintf("%d workers", runtime.GOMAXPROCS(0))})

	rows, err := gpuAdapters()
	if err != nil {
		lbvh.Logger().Warn("GPU enumeration failed", "error", err)
	}
	table.AppendBulk(rows)
	table.SetFooter([]string{"", "", "Registered", fmt.Sprint(backend.Available())})
	table.Render()
	return nil
}
