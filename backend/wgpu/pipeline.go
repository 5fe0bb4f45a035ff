// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lbvh/compute"
)

// paramsSize is the byte size of the params uniform at binding 0.
const paramsSize = compute.ParamsWords * 4

// pipeline holds the HAL objects of one kernel.
type pipeline struct {
	kernel     compute.Kernel
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// compileSPIRV compiles WGSL to SPIR-V words with naga.
func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	compute.BytesToWords(spirvBytes, words)
	return words, nil
}

// bindLayoutEntries returns the layout of kernel k: the params uniform at
// binding 0 followed by one storage binding per slot.
func bindLayoutEntries(k compute.Kernel) []gputypes.BindGroupLayoutEntry {
	slots := k.Slots()
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(slots)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i, access := range slots {
		typ := gputypes.BufferBindingTypeReadOnlyStorage
		if access == compute.AccessReadWrite {
			typ = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1), //nolint:gosec // at most 6 slots
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	return entries
}

// createPipeline builds the shader module, layouts and compute pipeline of
// kernel k. On error everything created so far is destroyed.
func createPipeline(device hal.Device, k compute.Kernel, spirv bool) (*pipeline, error) {
	name := k.String()
	p := &pipeline{kernel: k}

	source := hal.ShaderSource{WGSL: ShaderSource(k)}
	if spirv {
		code, err := compileSPIRV(source.WGSL)
		if err != nil {
			return nil, fmt.Errorf("compile %s shader: %w", name, err)
		}
		source = hal.ShaderSource{SPIRV: code}
	}

	var err error
	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", name, err)
	}

	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bind_layout",
		Entries: bindLayoutEntries(k),
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create %s bind group layout: %w", name, err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create %s pipeline layout: %w", name, err)
	}

	p.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   name + "_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create %s compute pipeline: %w", name, err)
	}
	return p, nil
}

// destroy releases the pipeline objects in reverse creation order.
func (p *pipeline) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
