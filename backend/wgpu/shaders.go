// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	_ "embed"

	"github.com/gogpu/lbvh/compute"
)

//go:embed shaders/local_radix_sort.wgsl
var localRadixSortWGSL string

//go:embed shaders/pre_scan.wgsl
var preScanWGSL string

//go:embed shaders/block_sum.wgsl
var blockSumWGSL string

//go:embed shaders/global_scan.wgsl
var globalScanWGSL string

//go:embed shaders/global_scatter.wgsl
var globalScatterWGSL string

//go:embed shaders/gather_aabb.wgsl
var gatherAABBWGSL string

//go:embed shaders/construct_tree.wgsl
var constructTreeWGSL string

//go:embed shaders/construct_bvh.wgsl
var constructBVHWGSL string

// shaderSources is indexed by compute.Kernel.
var shaderSources = [compute.KernelCount]string{
	compute.KernelLocalRadixSort: localRadixSortWGSL,
	compute.KernelPreScan:        preScanWGSL,
	compute.KernelBlockSum:       blockSumWGSL,
	compute.KernelGlobalScan:     globalScanWGSL,
	compute.KernelGlobalScatter:  globalScatterWGSL,
	compute.KernelGatherAABB:     gatherAABBWGSL,
	compute.KernelConstructTree:  constructTreeWGSL,
	compute.KernelConstructBVH:   constructBVHWGSL,
}

// ShaderSource returns the WGSL source of kernel k, or "" for an unknown
// kernel.
func ShaderSource(k compute.Kernel) string {
	if k < 0 || k >= compute.KernelCount {
		return ""
	}
	return shaderSources[k]
}
