//go:build !nogpu

package main

import (
	"fmt"

	"github.com/gogpu/lbvh/backend/wgpu"
	"github.com/gogpu/lbvh/compute"
)

func openGPU(adapter int, spirv bool) (compute.Device, error) {
	opts := []wgpu.Option{wgpu.WithAdapter(adapter)}
	if spirv {
		opts = append(opts, wgpu.WithSPIRV())
	}
	dev, err := wgpu.New(opts...)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func gpuAdapters() ([][]string, error) {
	adapters, err := wgpu.Adapters()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(adapters))
	for i, a := range adapters {
		rows[i] = []string{fmt.Sprintf("%02d", a.Index), wgpu.Name, a.Name, fmt.Sprint(a.Type)}
	}
	return rows, nil
}
