package renderer

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// NewFrameSync creates the synchronization objects of one frame in flight.
// The render fence starts signaled so the first wait on a slot returns at once.
func NewFrameSync(dev gfx.SyncDevice) (*FrameSync, error) {
	fs := &FrameSync{device: dev}

	var err error
	if fs.presentSemaphore, err = dev.CreateSemaphore(); err != nil {
		return nil, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	if fs.renderSemaphore, err = dev.CreateSemaphore(); err != nil {
		fs.Release()
		return nil, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	if fs.renderFence, err = dev.CreateFence(true); err != nil {
		fs.Release()
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}
	return fs, nil
}

// FrameSync holds the present semaphore, the render semaphore and the
// render fence of one frame slot. Slots never share them.
type FrameSync struct {
	device gfx.SyncDevice

	presentSemaphore gfx.Semaphore
	renderSemaphore  gfx.Semaphore
	renderFence      gfx.Fence
}

// PresentSemaphore is signaled when the acquired swapchain image is ready.
func (fs *FrameSync) PresentSemaphore() gfx.Semaphore {
	return fs.presentSemaphore
}

// RenderSemaphore is signaled when the frame's commands completed.
func (fs *FrameSync) RenderSemaphore() gfx.Semaphore {
	return fs.renderSemaphore
}

// Fence is signaled when the frame's submission completed.
func (fs *FrameSync) Fence() gfx.Fence {
	return fs.renderFence
}

// Wait blocks until the slot's previous submission completed.
func (fs *FrameSync) Wait(timeout time.Duration) error {
	if err := fs.device.WaitForFence(fs.renderFence, timeout); err != nil {
		return errors.Wrap(err, "render fence")
	}
	return nil
}

// Reset unsignals the render fence before it is handed to a submission.
func (fs *FrameSync) Reset() error {
	if err := fs.device.ResetFence(fs.renderFence); err != nil {
		return errors.Wrap(err, "vk.ResetFences()")
	}
	return nil
}

// Release destroys the semaphores and the fence.
func (fs *FrameSync) Release() {
	if fs.presentSemaphore != 0 {
		fs.device.DestroySemaphore(fs.presentSemaphore)
		fs.presentSemaphore = 0
	}
	if fs.renderSemaphore != 0 {
		fs.device.DestroySemaphore(fs.renderSemaphore)
		fs.renderSemaphore = 0
	}
	if fs.renderFence != 0 {
		fs.device.DestroyFence(fs.renderFence)
		fs.renderFence = 0
	}
}
