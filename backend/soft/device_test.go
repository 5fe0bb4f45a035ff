// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/compute"
)

func TestRegistered(t *testing.T) {
	dev, err := backend.Open(Name)
	if err != nil {
		t.Fatalf("backend.Open(%q) error = %v", Name, err)
	}
	defer dev.Close()
	if dev.Name() != Name {
		t.Errorf("Name() = %q, want %q", dev.Name(), Name)
	}
}

func TestBufferCopies(t *testing.T) {
	ctx := context.Background()
	dev := New(WithWorkers(2))
	defer dev.Close()

	buf, err := dev.CreateBuffer("buf", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.DestroyBuffer(buf)

	if err := dev.WriteBuffer(ctx, buf, 4, []byte{1, 0, 0, 0, 2, 0, 0, 0}); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	got := make([]byte, 16)
	if err := dev.ReadBuffer(ctx, buf, 0, got); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if got[4] != 1 || got[8] != 2 || got[0] != 0 || got[12] != 0 {
		t.Errorf("ReadBuffer() = %v", got)
	}

	tests := []struct {
		name   string
		offset uint64
		n      int
		want   error
	}{
		{"unaligned offset", 2, 4, ErrUnaligned},
		{"unaligned length", 0, 3, ErrUnaligned},
		{"past end", 12, 8, compute.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := dev.WriteBuffer(ctx, buf, tt.offset, make([]byte, tt.n)); !errors.Is(err, tt.want) {
				t.Errorf("WriteBuffer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExecuteKernelFault(t *testing.T) {
	ctx := context.Background()
	dev := New(WithWorkers(2))
	defer dev.Close()

	small, _ := dev.CreateBuffer("small", 4)
	defer dev.DestroyBuffer(small)

	// GatherAABB over 64 elements reads far past a one-word buffer.
	err := dev.Execute(ctx, []compute.Pass{{
		Kernel:  compute.KernelGatherAABB,
		Label:   "gather",
		Params:  [4]uint32{64},
		Groups:  1,
		Buffers: []compute.Buffer{small, small, small},
	}})
	if !errors.Is(err, compute.ErrKernelFault) {
		t.Errorf("Execute() error = %v, want ErrKernelFault", err)
	}
}

func TestClosedDevice(t *testing.T) {
	dev := New()
	dev.Close()
	dev.Close()

	if _, err := dev.CreateBuffer("late", 4); !errors.Is(err, compute.ErrDeviceClosed) {
		t.Errorf("CreateBuffer() after Close error = %v, want ErrDeviceClosed", err)
	}
	if err := dev.Execute(context.Background(), nil); !errors.Is(err, compute.ErrDeviceClosed) {
		t.Errorf("Execute() after Close error = %v, want ErrDeviceClosed", err)
	}
}

func TestDestroyedBufferBinding(t *testing.T) {
	dev := New()
	defer dev.Close()

	buf, _ := dev.CreateBuffer("gone", 32)
	dev.DestroyBuffer(buf)
	err := dev.Execute(context.Background(), []compute.Pass{{
		Kernel:  compute.KernelBlockSum,
		Params:  [4]uint32{0, 0, 1, 1},
		Groups:  1,
		Buffers: []compute.Buffer{buf},
	}})
	if !errors.Is(err, compute.ErrBufferDestroyed) {
		t.Errorf("Execute() error = %v, want ErrBufferDestroyed", err)
	}
}
