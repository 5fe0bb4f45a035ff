// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/lbvh/compute"
)

// fakeDevice is a compute.Device that only reports its name.
type fakeDevice struct {
	compute.Device
	name string
}

func (f *fakeDevice) Name() string { return f.name }

func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = make(map[string]Factory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func TestRegistryRegisterAndOpen(t *testing.T) {
	withRegistry(t)
	Register("test", func() (compute.Device, error) { return &fakeDevice{name: "test"}, nil })

	dev, err := Open("test")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if dev.Name() != "test" {
		t.Errorf("Name() = %q, want %q", dev.Name(), "test")
	}
}

func TestRegistryOpenUnregistered(t *testing.T) {
	withRegistry(t)
	if _, err := Open("nonexistent"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryAvailable(t *testing.T) {
	withRegistry(t)
	Register("b", func() (compute.Device, error) { return nil, nil })
	Register("a", func() (compute.Device, error) { return nil, nil })

	if got := Available(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Available() = %v, want [a b]", got)
	}
}

func TestRegistryUnregister(t *testing.T) {
	withRegistry(t)
	Register("gone", func() (compute.Device, error) { return nil, nil })
	Unregister("gone")
	if IsRegistered("gone") {
		t.Error("IsRegistered(gone) = true after Unregister")
	}
}

func TestRegistryDefaultPriority(t *testing.T) {
	withRegistry(t)
	Register(BackendSoft, func() (compute.Device, error) { return &fakeDevice{name: BackendSoft}, nil })
	Register(BackendWGPU, func() (compute.Device, error) { return &fakeDevice{name: BackendWGPU}, nil })

	dev, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if dev.Name() != BackendWGPU {
		t.Errorf("Default() = %q, want %q", dev.Name(), BackendWGPU)
	}
}

func TestRegistryDefaultSkipsFailing(t *testing.T) {
	withRegistry(t)
	Register(BackendWGPU, func() (compute.Device, error) { return nil, errors.New("no adapter") })
	Register(BackendSoft, func() (compute.Device, error) { return &fakeDevice{name: BackendSoft}, nil })

	dev, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if dev.Name() != BackendSoft {
		t.Errorf("Default() = %q, want %q", dev.Name(), BackendSoft)
	}
}

func TestRegistryDefaultEmpty(t *testing.T) {
	withRegistry(t)
	if _, err := Default(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() error = %v, want ErrBackendNotAvailable", err)
	}
}
