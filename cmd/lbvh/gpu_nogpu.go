//go:build nogpu

package main

import (
	"errors"

	"github.com/gogpu/lbvh/compute"
)

var errNoGPU = errors.New("built with -tags nogpu")

func openGPU(int, bool) (compute.Device, error) { return nil, errNoGPU }

func gpuAdapters() ([][]string, error) { return nil, errNoGPU }
