// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// NewDeviceMemoryManager creates the allocator every buffer and image is carved from.
func NewDeviceMemoryManager(dev gfx.Device) (*DeviceMemoryManager, error) {
	allocator, err := dev.NewAllocator()
	if err != nil {
		return nil, errors.Wrap(err, "vmaCreateAllocator()")
	}
	return &DeviceMemoryManager{
		device:    dev,
		allocator: allocator,
	}, nil
}

// DeviceMemoryManager owns the device memory allocator. Buffers and images
// keep a non-owning reference to it and must be released before it.
type DeviceMemoryManager struct {
	device    gfx.Device
	allocator gfx.Allocator
}

// Device returns the device the manager allocates from.
func (m *DeviceMemoryManager) Device() gfx.Device {
	return m.device
}

// Allocator returns the underlying allocator.
func (m *DeviceMemoryManager) Allocator() gfx.Allocator {
	return m.allocator
}

// Stats returns a snapshot of live allocations.
func (m *DeviceMemoryManager) Stats() gfx.AllocatorStats {
	return m.allocator.Stats()
}

// Release destroys the allocator.
func (m *DeviceMemoryManager) Release() {
	if m.allocator == nil {
		return
	}
	m.allocator.Release()
	m.allocator = nil
}
