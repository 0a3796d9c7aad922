// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device features that rendering backends must implement.
// Objects crossing the package boundary are opaque handles; the zero value of
// every handle type is the null handle.
package gfx

import "github.com/pkg/errors"

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

var (
	// ErrOutOfDate is returned by acquire and present when the surface
	// no longer matches the swapchain.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrSuboptimal is returned when the swapchain can still be used but
	// no longer matches the surface exactly. Acquire still yields an image.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	// ErrPoolExhausted is returned when a descriptor pool cannot satisfy an allocation.
	ErrPoolExhausted = errors.New("descriptor pool exhausted")

	// ErrTimeout is returned when a wait exceeded its deadline.
	ErrTimeout = errors.New("wait timed out")

	// ErrUnsupported is returned when the backend cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by backend")
)

type (
	// Queue is a device queue.
	Queue uint64
	// Buffer is a device buffer.
	Buffer uint64
	// Image is a device image.
	Image uint64
	// ImageView is a view into an Image.
	ImageView uint64
	// Sampler is a texture sampler.
	Sampler uint64
	// CommandPool owns command buffers.
	CommandPool uint64
	// CommandBuffer records device commands.
	CommandBuffer uint64
	// Fence is a device to host synchronization primitive.
	Fence uint64
	// Semaphore is a queue to queue synchronization primitive.
	Semaphore uint64
	// Swapchain is a presentable image chain.
	Swapchain uint64
	// DescriptorPool allocates descriptor sets.
	DescriptorPool uint64
	// DescriptorSetLayout describes the shape of a descriptor set.
	DescriptorSetLayout uint64
	// DescriptorSet binds resources to shaders.
	DescriptorSet uint64
	// ShaderModule is compiled shader code.
	ShaderModule uint64
	// PipelineLayout describes pipeline resource interfaces.
	PipelineLayout uint64
	// Pipeline is a compiled graphics pipeline.
	Pipeline uint64
)
