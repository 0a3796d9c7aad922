// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "time"

// Allocator carves buffers and images out of device memory.
type Allocator interface {
	Releasable

	// CreateBuffer creates a buffer with memory bound to it.
	CreateBuffer(info BufferInfo) (Buffer, error)

	// DestroyBuffer destroys the buffer and frees its memory.
	DestroyBuffer(b Buffer)

	// MapBuffer maps the whole buffer memory for host access.
	MapBuffer(b Buffer) ([]byte, error)

	// UnmapBuffer removes a mapping made by MapBuffer.
	UnmapBuffer(b Buffer)

	// CreateImage creates a 2D image with memory bound to it.
	CreateImage(info ImageInfo) (Image, error)

	// DestroyImage destroys the image and frees its memory.
	DestroyImage(i Image)

	// Stats returns a snapshot of live allocations.
	Stats() AllocatorStats
}

// QueueDevice exposes the queues of a logical device.
type QueueDevice interface {
	GraphicsQueue() Queue
	PresentQueue() Queue

	// QueueFamilies returns the graphics and present queue family indices.
	QueueFamilies() (graphics, present uint32)

	// Limits returns the physical device limits.
	Limits() Limits

	// WaitIdle blocks until the device finished all submitted work.
	WaitIdle() error
}

// MemoryDevice creates allocators and image views.
type MemoryDevice interface {
	NewAllocator() (Allocator, error)

	// BufferDeviceAddress returns the device address of a buffer created with
	// BufferUsageShaderDeviceAddress, or ErrUnsupported.
	BufferDeviceAddress(b Buffer) (uint64, error)

	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(v ImageView)
}

// Recorder records commands into a command buffer in recording state.
type Recorder interface {
	CmdPipelineBarrier(cb CommandBuffer, barrier ImageBarrier)
	CmdBlitImage(cb CommandBuffer, blit BlitInfo)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdBeginRendering(cb CommandBuffer, info RenderingInfo)
	CmdEndRendering(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect2D)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, first uint32, sets []DescriptorSet)
	CmdBindVertexBuffers(cb CommandBuffer, first uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// CommandDevice manages command pools and buffers.
type CommandDevice interface {
	Recorder

	// CreateCommandPool creates a pool for the queue family. A resettable
	// pool allows individual command buffers to be reset.
	CreateCommandPool(family uint32, resettable bool) (CommandPool, error)
	DestroyCommandPool(p CommandPool)

	AllocateCommandBuffer(p CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(p CommandPool, cb CommandBuffer)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error
}

// SyncDevice manages fences, semaphores and queue submission.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitForFence blocks until the fence is signaled or returns ErrTimeout.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// QueueSubmit submits work and signals the fence, if any, on completion.
	QueueSubmit(q Queue, info SubmitInfo, fence Fence) error
}

// SwapchainDevice manages the presentation surface and swapchains.
type SwapchainDevice interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	SurfacePresentModes() ([]PresentMode, error)

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	DestroySwapchain(s Swapchain)
	SwapchainImages(s Swapchain) ([]Image, error)

	// AcquireNextImage signals the semaphore when the returned image is
	// available. ErrSuboptimal comes with a valid index, ErrOutOfDate does not.
	AcquireNextImage(s Swapchain, signal Semaphore, timeout time.Duration) (uint32, error)

	// QueuePresent may return ErrOutOfDate or ErrSuboptimal.
	QueuePresent(q Queue, info PresentInfo) error
}

// DescriptorDevice manages descriptor pools, layouts and sets.
type DescriptorDevice interface {
	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	ResetDescriptorPool(p DescriptorPool) error

	// AllocateDescriptorSet returns ErrPoolExhausted when the pool is full
	// or fragmented.
	AllocateDescriptorSet(p DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	UpdateDescriptorSets(writes []DescriptorWrite)
}

// PipelineDevice manages shaders, pipelines and samplers.
type PipelineDevice interface {
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)

	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(s Sampler)
}

// Device is a logical device with a presentation surface.
type Device interface {
	Releasable
	QueueDevice
	MemoryDevice
	CommandDevice
	SyncDevice
	SwapchainDevice
	DescriptorDevice
	PipelineDevice

	// Name returns the name of the selected physical device.
	Name() string
}
