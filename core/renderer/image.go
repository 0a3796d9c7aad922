// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// Image is the state shared by allocated and swapchain images. The layout
// is only changed by Transition.
type Image struct {
	device gfx.Device
	handle gfx.Image
	view   gfx.ImageView
	extent gfx.Extent3D
	format gfx.Format
	layout gfx.ImageLayout
}

// Handle returns the image handle.
func (i *Image) Handle() gfx.Image {
	return i.handle
}

// View returns the image view.
func (i *Image) View() gfx.ImageView {
	return i.view
}

// Extent returns the image extent.
func (i *Image) Extent() gfx.Extent3D {
	return i.extent
}

// Extent2D returns width and height.
func (i *Image) Extent2D() gfx.Extent2D {
	return gfx.Extent2D{Width: i.extent.Width, Height: i.extent.Height}
}

// Format returns the texel format.
func (i *Image) Format() gfx.Format {
	return i.format
}

// Layout returns the layout recorded by the last transition.
func (i *Image) Layout() gfx.ImageLayout {
	return i.layout
}

// Transition records a full barrier moving the image into layout and
// updates the tracked layout. Transitioning into the current layout is legal.
func (i *Image) Transition(cmd *Command, layout gfx.ImageLayout) error {
	if cmd.State() != CommandRecording {
		err := contractf("Image.Transition", "command is %s", cmd.State())
		cmd.fail(err)
		return err
	}

	aspect := gfx.ImageAspectColor
	if layout.IsDepth() {
		aspect = gfx.ImageAspectDepth
	}
	cmd.PipelineBarrier(gfx.ImageBarrier{
		Image:     i.handle,
		OldLayout: i.layout,
		NewLayout: layout,
		SrcStage:  gfx.PipelineStageAllCommands,
		DstStage:  gfx.PipelineStageAllCommands,
		SrcAccess: gfx.AccessMemoryWrite | gfx.AccessMemoryRead,
		DstAccess: gfx.AccessMemoryWrite | gfx.AccessMemoryRead,
		Aspect:    aspect,
	})
	i.layout = layout
	return nil
}

func (i *Image) createView(aspect gfx.ImageAspect) error {
	view, err := i.device.CreateImageView(gfx.ImageViewInfo{
		Image:  i.handle,
		Format: i.format,
		Aspect: aspect,
	})
	if err != nil {
		return errors.Wrap(err, "vk.CreateImageView()")
	}
	i.view = view
	return nil
}

func (i *Image) destroyView() {
	if i.view != 0 {
		i.device.DestroyImageView(i.view)
		i.view = 0
	}
}

// BlitImage records a linear filtered copy of the full extent of src into
// the full extent of dst. Both images must already be in transfer layouts;
// no transitions are recorded.
func BlitImage(cmd *Command, src, dst *Image) error {
	if src.layout != gfx.ImageLayoutTransferSrcOptimal {
		return contractf("BlitImage", "source is in %s, want %s", src.layout, gfx.ImageLayoutTransferSrcOptimal)
	}
	if dst.layout != gfx.ImageLayoutTransferDstOptimal {
		return contractf("BlitImage", "destination is in %s, want %s", dst.layout, gfx.ImageLayoutTransferDstOptimal)
	}
	cmd.BlitImage(gfx.BlitInfo{
		Src:       src.handle,
		SrcLayout: src.layout,
		SrcExtent: src.Extent2D(),
		Dst:       dst.handle,
		DstLayout: dst.layout,
		DstExtent: dst.Extent2D(),
		Filter:    gfx.FilterLinear,
	})
	return cmd.Err()
}

// AllocatedImageInfo describes an image backed by allocator memory.
type AllocatedImageInfo struct {
	Extent gfx.Extent3D
	Format gfx.Format
	Usage  gfx.ImageUsage
	Memory gfx.MemoryUsage
	Aspect gfx.ImageAspect
}

// NewAllocatedImage creates an image and its view.
func NewAllocatedImage(mem *DeviceMemoryManager, info AllocatedImageInfo) (*AllocatedImage, error) {
	if info.Aspect == 0 {
		info.Aspect = gfx.ImageAspectColor
	}
	img := &AllocatedImage{
		Image: Image{
			device: mem.Device(),
			format: info.Format,
		},
		memory: mem,
		info:   info,
	}
	if err := img.create(info.Extent); err != nil {
		return nil, err
	}
	return img, nil
}

// AllocatedImage owns its image, memory and view.
type AllocatedImage struct {
	Image
	memory *DeviceMemoryManager
	info   AllocatedImageInfo
}

func (a *AllocatedImage) create(extent gfx.Extent3D) error {
	handle, err := a.memory.Allocator().CreateImage(gfx.ImageInfo{
		Extent: extent,
		Format: a.info.Format,
		Usage:  a.info.Usage,
		Memory: a.info.Memory,
	})
	if err != nil {
		return errors.Wrap(err, "vmaCreateImage()")
	}
	a.handle = handle
	a.extent = extent
	a.layout = gfx.ImageLayoutUndefined
	if err := a.createView(a.info.Aspect); err != nil {
		a.memory.Allocator().DestroyImage(a.handle)
		a.handle = 0
		return err
	}
	return nil
}

// Recreate destroys the image and builds it again with a new extent.
// The layout starts over as undefined.
func (a *AllocatedImage) Recreate(extent gfx.Extent3D) error {
	a.Release()
	return a.create(extent)
}

// Release destroys the view, then the image and its memory.
func (a *AllocatedImage) Release() {
	a.destroyView()
	if a.handle != 0 {
		a.memory.Allocator().DestroyImage(a.handle)
		a.handle = 0
	}
}

// NewSwapchainImage wraps an image owned by a swapchain and creates a view for it.
func NewSwapchainImage(dev gfx.Device, handle gfx.Image, format gfx.Format, extent gfx.Extent2D) (*SwapchainImage, error) {
	img := &SwapchainImage{Image{
		device: dev,
		handle: handle,
		format: format,
		extent: gfx.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}}
	if err := img.createView(gfx.ImageAspectColor); err != nil {
		return nil, err
	}
	return img, nil
}

// SwapchainImage is an image owned by the swapchain. Only the view is
// owned here.
type SwapchainImage struct {
	Image
}

// Release destroys the view and leaves the image to the swapchain.
func (s *SwapchainImage) Release() {
	s.destroyView()
}
