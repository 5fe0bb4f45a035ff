// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernels

import (
	"fmt"

	"github.com/gogpu/lbvh/compute"
)

// Invocation carries the bindings of one dispatched pass.
type Invocation struct {
	// Params is the uniform at binding 0.
	Params [compute.ParamsWords]uint32

	// Buffers are the storage bindings 1..N, in kernel slot order.
	Buffers [][]uint32
}

// Func runs one workgroup of a kernel.
type Func func(inv *Invocation, group uint32)

var table = [compute.KernelCount]Func{
	compute.KernelLocalRadixSort: LocalRadixSort,
	compute.KernelPreScan:        PreScan,
	compute.KernelBlockSum:       BlockSum,
	compute.KernelGlobalScan:     GlobalScan,
	compute.KernelGlobalScatter:  GlobalScatter,
	compute.KernelGatherAABB:     GatherAABB,
	compute.KernelConstructTree:  ConstructTree,
	compute.KernelConstructBVH:   ConstructBVH,
}

// Lookup returns the implementation of k.
func Lookup(k compute.Kernel) (Func, error) {
	if k < 0 || k >= compute.KernelCount || table[k] == nil {
		return nil, fmt.Errorf("kernels: no implementation for %s", k)
	}
	return table[k], nil
}

// threads calls fn for each thread id of group that is below count.
func threads(group, count uint32, fn func(id uint32)) {
	lo := group * compute.WorkgroupSize
	hi := min(lo+compute.WorkgroupSize, count)
	for id := lo; id < hi; id++ {
		fn(id)
	}
}
