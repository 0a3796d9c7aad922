// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package renderer drives frames through a gfx.Device: it owns the
// swapchain, per-frame synchronization and command buffers, the draw image
// and the memory every GPU resource is allocated from.
package renderer

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Window is the surface the renderer presents to.
type Window interface {
	// Extent returns the drawable size in pixels.
	Extent() gfx.Extent2D

	// Resized reports whether the window was resized since the last call.
	Resized() bool
}

// Frame is handed to render systems while a frame is recorded.
type Frame struct {
	Command *Command
	Index   int
	Number  uint64
	Extent  gfx.Extent2D
	Format  gfx.Format
}

// RenderSystem records draw commands into a frame. Render is called
// between begin and end of rendering and must not acquire, submit or present.
type RenderSystem interface {
	Render(frame *Frame) error
}

// FrameStatus is the outcome of Draw.
type FrameStatus int

// Frame outcomes.
const (
	FramePresented FrameStatus = iota
	FrameSkipped
	FramePaused
)

func (s FrameStatus) String() string {
	switch s {
	case FramePresented:
		return "presented"
	case FrameSkipped:
		return "skipped"
	case FramePaused:
		return "paused"
	}
	return "unknown"
}

type frameData struct {
	sync    *FrameSync
	command *Command
}

// New creates a renderer presenting to window.
func New(dev gfx.Device, window Window, cfg Configuration, log logrus.FieldLogger) (r *Renderer, err error) {
	r = &Renderer{
		device: dev,
		window: window,
		cfg:    cfg,
		log:    log.WithField("component", "renderer"),
	}
	defer func() {
		if err != nil {
			r.Release()
			r = nil
		}
	}()

	if r.memory, err = NewDeviceMemoryManager(dev); err != nil {
		return
	}
	if r.swapchain, err = NewSwapchain(dev, window, cfg, log); err != nil {
		return
	}

	graphics, _ := dev.QueueFamilies()
	if r.pool, err = NewCommandPool(dev, graphics); err != nil {
		return
	}
	r.frames = make([]frameData, r.swapchain.FramesInFlight())
	for i := range r.frames {
		if r.frames[i].sync, err = NewFrameSync(dev); err != nil {
			return
		}
		if r.frames[i].command, err = r.pool.NewCommand(); err != nil {
			return
		}
	}

	if r.immediate, err = NewImmediateCommand(dev, graphics, dev.GraphicsQueue(), cfg.FenceTimeout); err != nil {
		return
	}
	r.uploader = NewUploader(r.memory, r.immediate, log)

	if r.descriptors, err = NewDescriptorAllocator(dev, 10, []PoolSizeRatio{
		{Type: gfx.DescriptorTypeUniformBuffer, Ratio: 1},
		{Type: gfx.DescriptorTypeStorageBuffer, Ratio: 1},
		{Type: gfx.DescriptorTypeCombinedImageSampler, Ratio: 1},
	}, cfg.Descriptors); err != nil {
		return
	}

	if r.drawImage, err = NewAllocatedImage(r.memory, AllocatedImageInfo{
		Extent: drawExtent(window.Extent()),
		Format: r.swapchain.Format().Format,
		Usage:  gfx.ImageUsageTransferSrc | gfx.ImageUsageTransferDst | gfx.ImageUsageColorAttachment,
		Memory: gfx.MemoryUsageGPUOnly,
	}); err != nil {
		return
	}

	r.log.WithFields(logrus.Fields{
		"device":           dev.Name(),
		"frames_in_flight": len(r.frames),
	}).Info("renderer initialised")
	return r, nil
}

func drawExtent(e gfx.Extent2D) gfx.Extent3D {
	return gfx.Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

// Renderer is the frame orchestrator. It is driven from a single goroutine.
type Renderer struct {
	device gfx.Device
	window Window
	cfg    Configuration
	log    logrus.FieldLogger

	memory      *DeviceMemoryManager
	swapchain   *Swapchain
	pool        *CommandPool
	frames      []frameData
	immediate   *ImmediateCommand
	uploader    *Uploader
	descriptors *DescriptorAllocator
	drawImage   *AllocatedImage
	systems     []RenderSystem

	frameNumber uint64
	frameIndex  int
}

// AddRenderSystem registers a system. Systems render in registration order.
func (r *Renderer) AddRenderSystem(s RenderSystem) {
	r.systems = append(r.systems, s)
}

// Device returns the device the renderer draws with.
func (r *Renderer) Device() gfx.Device {
	return r.device
}

// Memory returns the memory manager.
func (r *Renderer) Memory() *DeviceMemoryManager {
	return r.memory
}

// Uploader returns the uploader bound to the renderer's immediate command.
func (r *Renderer) Uploader() *Uploader {
	return r.uploader
}

// Descriptors returns the global descriptor allocator.
func (r *Renderer) Descriptors() *DescriptorAllocator {
	return r.descriptors
}

// DrawImage returns the offscreen image frames are rendered into.
func (r *Renderer) DrawImage() *AllocatedImage {
	return r.drawImage
}

// Swapchain returns the swapchain.
func (r *Renderer) Swapchain() *Swapchain {
	return r.swapchain
}

// FramesInFlight returns the number of frame slots.
func (r *Renderer) FramesInFlight() int {
	return len(r.frames)
}

// FrameNumber returns the number of presented frames.
func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

// FrameIndex returns the slot the next frame uses.
func (r *Renderer) FrameIndex() int {
	return r.frameIndex
}

// Draw renders and presents one frame. A minimized window pauses rendering
// and a stale swapchain skips the frame; every returned error is fatal.
func (r *Renderer) Draw() (FrameStatus, error) {
	if r.window.Extent().Zero() {
		return FramePaused, nil
	}
	if r.swapchain.ResizeRequested() {
		if err := r.resize(); err != nil {
			return 0, err
		}
	}

	frame := &r.frames[r.frameIndex]
	if err := frame.sync.Wait(r.cfg.FenceTimeout); err != nil {
		return 0, errors.Wrapf(err, "frame %d", r.frameNumber)
	}

	imageIndex, err := r.swapchain.AcquireNextImage(frame.sync, r.cfg.FenceTimeout)
	if errors.Cause(err) == gfx.ErrOutOfDate {
		r.log.WithField("frame", r.frameNumber).Debug("swapchain out of date, frame skipped")
		return FrameSkipped, nil
	} else if err != nil {
		return 0, err
	}

	if err := frame.sync.Reset(); err != nil {
		return 0, err
	}
	cmd := frame.command
	if err := cmd.Reset(); err != nil {
		return 0, err
	}
	if err := cmd.Begin(); err != nil {
		return 0, err
	}
	if err := r.record(cmd, r.swapchain.Image(imageIndex)); err != nil {
		return 0, errors.Wrapf(err, "frame %d", r.frameNumber)
	}
	if err := cmd.End(); err != nil {
		return 0, errors.Wrapf(err, "frame %d", r.frameNumber)
	}
	if err := cmd.Submit(r.device.GraphicsQueue(), frame.sync); err != nil {
		return 0, err
	}
	if err := r.swapchain.Present(r.device.PresentQueue(), frame.sync, imageIndex); err != nil {
		return 0, err
	}

	if r.window.Resized() {
		r.swapchain.RequestResize()
	}
	r.frameNumber++
	r.frameIndex = int(r.frameNumber % uint64(len(r.frames)))
	return FramePresented, nil
}

// record renders the systems into the draw image and copies it onto the
// swapchain image, leaving that ready to present.
func (r *Renderer) record(cmd *Command, target *SwapchainImage) error {
	draw := &r.drawImage.Image
	extent := draw.Extent2D()

	if err := draw.Transition(cmd, gfx.ImageLayoutColorAttachmentOptimal); err != nil {
		return err
	}
	cmd.BeginRendering(gfx.RenderingInfo{
		ColorView:   draw.View(),
		ColorFormat: draw.Format(),
		Extent:      extent,
		Clear:       true,
		ClearColor:  r.cfg.ClearColor,
	})
	cmd.SetViewport(gfx.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	})
	cmd.SetScissor(gfx.Rect2D{Extent: extent})

	frame := &Frame{
		Command: cmd,
		Index:   r.frameIndex,
		Number:  r.frameNumber,
		Extent:  extent,
		Format:  draw.Format(),
	}
	for _, s := range r.systems {
		if err := s.Render(frame); err != nil {
			return err
		}
	}
	cmd.EndRendering()

	if err := draw.Transition(cmd, gfx.ImageLayoutTransferSrcOptimal); err != nil {
		return err
	}
	if err := target.Transition(cmd, gfx.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	if err := BlitImage(cmd, draw, &target.Image); err != nil {
		return err
	}
	return target.Transition(cmd, gfx.ImageLayoutPresentSrc)
}

func (r *Renderer) resize() error {
	if err := r.swapchain.Recreate(); err != nil {
		return err
	}
	extent := r.window.Extent()
	if err := r.drawImage.Recreate(drawExtent(extent)); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"width":  extent.Width,
		"height": extent.Height,
	}).Info("resized")
	return nil
}

// WaitIdle blocks until the device finished all submitted work.
func (r *Renderer) WaitIdle() error {
	return errors.Wrap(r.device.WaitIdle(), "vk.DeviceWaitIdle()")
}

// Release waits for the device and destroys everything the renderer owns in
// reverse creation order. Render systems implementing gfx.Releasable are
// released first. The device itself is left to the caller.
func (r *Renderer) Release() {
	if err := r.device.WaitIdle(); err != nil {
		r.log.WithError(err).Error("wait idle before release")
	}
	for i := len(r.systems) - 1; i >= 0; i-- {
		if rel, ok := r.systems[i].(gfx.Releasable); ok {
			rel.Release()
		}
	}
	r.systems = nil

	if r.drawImage != nil {
		r.drawImage.Release()
	}
	if r.descriptors != nil {
		r.descriptors.Release()
	}
	if r.immediate != nil {
		r.immediate.Release()
	}
	for _, f := range r.frames {
		if f.sync != nil {
			f.sync.Release()
		}
	}
	r.frames = nil
	if r.pool != nil {
		r.pool.Release()
	}
	if r.swapchain != nil {
		r.swapchain.Release()
	}
	if r.memory != nil {
		r.memory.Release()
	}
}
