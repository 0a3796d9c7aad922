// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChooseSurfaceFormat picks preferred with the sRGB non-linear color space
// when offered, the first advertised format otherwise.
func ChooseSurfaceFormat(formats []gfx.SurfaceFormat, preferred gfx.Format) (gfx.SurfaceFormat, error) {
	if len(formats) == 0 {
		return gfx.SurfaceFormat{}, errors.New("surface advertises no formats")
	}
	for _, f := range formats {
		if f.Format == preferred && f.ColorSpace == gfx.ColorSpaceSRGBNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

// ChoosePresentMode picks preferred when offered, FIFO otherwise.
// FIFO is always available.
func ChoosePresentMode(modes []gfx.PresentMode, preferred gfx.PresentMode) gfx.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return gfx.PresentModeFifo
}

// ChooseImageCount asks for one image more than the minimum, capped by the
// maximum when the surface has one.
func ChooseImageCount(caps gfx.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// ChooseExtent returns the surface's current extent unless it is undefined,
// in which case the window size clamped to the surface limits is used.
func ChooseExtent(caps gfx.SurfaceCapabilities, window gfx.Extent2D) gfx.Extent2D {
	if caps.CurrentExtent.Width != gfx.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gfx.Extent2D{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// NewSwapchain creates a swapchain sized for the window.
func NewSwapchain(dev gfx.Device, window Window, cfg Configuration, log logrus.FieldLogger) (*Swapchain, error) {
	sc := &Swapchain{
		device: dev,
		window: window,
		cfg:    cfg,
		log:    log.WithField("component", "swapchain"),
	}
	if err := sc.create(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Swapchain owns the presentable images and tracks whether it needs to be
// rebuilt. The resize flag is set by stale acquires and presents and only
// cleared by Recreate.
type Swapchain struct {
	device gfx.Device
	window Window
	cfg    Configuration
	log    logrus.FieldLogger

	handle      gfx.Swapchain
	images      []*SwapchainImage
	format      gfx.SurfaceFormat
	presentMode gfx.PresentMode
	extent      gfx.Extent2D

	resizeRequested bool
}

func (s *Swapchain) create() error {
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceCapabilities()")
	}
	formats, err := s.device.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	modes, err := s.device.SurfacePresentModes()
	if err != nil {
		return errors.Wrap(err, "vk.GetPhysicalDeviceSurfacePresentModes()")
	}

	format, err := ChooseSurfaceFormat(formats, s.cfg.PreferredFormat)
	if err != nil {
		return err
	}
	mode := ChoosePresentMode(modes, s.cfg.PresentMode)
	extent := ChooseExtent(caps, s.window.Extent())

	graphics, present := s.device.QueueFamilies()
	families := []uint32{graphics}
	if present != graphics {
		families = append(families, present)
	}

	handle, err := s.device.CreateSwapchain(gfx.SwapchainInfo{
		Format:        format,
		PresentMode:   mode,
		Extent:        extent,
		MinImageCount: ChooseImageCount(caps),
		Usage:         gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferDst,
		QueueFamilies: families,
	})
	if err != nil {
		return errors.Wrap(err, "vk.CreateSwapchain()")
	}
	s.handle = handle

	handles, err := s.device.SwapchainImages(handle)
	if err != nil {
		s.destroy()
		return errors.Wrap(err, "vk.GetSwapchainImages()")
	}
	for _, h := range handles {
		img, err := NewSwapchainImage(s.device, h, format.Format, extent)
		if err != nil {
			s.destroy()
			return err
		}
		s.images = append(s.images, img)
	}

	s.format = format
	s.presentMode = mode
	s.extent = extent
	s.log.WithFields(logrus.Fields{
		"images":  len(s.images),
		"format":  format.Format,
		"mode":    mode,
		"width":   extent.Width,
		"height":  extent.Height,
		"sharing": len(families) > 1,
	}).Info("swapchain created")
	return nil
}

func (s *Swapchain) destroy() {
	for _, img := range s.images {
		img.Release()
	}
	s.images = nil
	if s.handle != 0 {
		s.device.DestroySwapchain(s.handle)
		s.handle = 0
	}
}

// Recreate waits for the device to go idle, destroys the swapchain and
// builds it again at the window's current size.
func (s *Swapchain) Recreate() error {
	if err := s.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "vk.DeviceWaitIdle()")
	}
	s.destroy()
	if err := s.create(); err != nil {
		return err
	}
	s.resizeRequested = false
	return nil
}

// AcquireNextImage acquires the next image, signaling the frame's present
// semaphore. An out of date swapchain returns gfx.ErrOutOfDate and the frame
// must be skipped; a suboptimal one requests a resize but the image is used.
func (s *Swapchain) AcquireNextImage(sync *FrameSync, timeout time.Duration) (uint32, error) {
	idx, err := s.device.AcquireNextImage(s.handle, sync.PresentSemaphore(), timeout)
	switch errors.Cause(err) {
	case nil:
		return idx, nil
	case gfx.ErrSuboptimal:
		s.resizeRequested = true
		return idx, nil
	case gfx.ErrOutOfDate:
		s.resizeRequested = true
		return 0, gfx.ErrOutOfDate
	}
	return 0, errors.Wrap(err, "vk.AcquireNextImage()")
}

// Present queues the image for presentation after the frame's render
// semaphore. A stale swapchain requests a resize.
func (s *Swapchain) Present(queue gfx.Queue, sync *FrameSync, index uint32) error {
	err := s.device.QueuePresent(queue, gfx.PresentInfo{
		Swapchain:  s.handle,
		ImageIndex: index,
		Wait:       []gfx.Semaphore{sync.RenderSemaphore()},
	})
	switch errors.Cause(err) {
	case nil:
		return nil
	case gfx.ErrOutOfDate, gfx.ErrSuboptimal:
		s.resizeRequested = true
		return nil
	}
	return errors.Wrap(err, "vk.QueuePresent()")
}

// ResizeRequested reports whether the swapchain must be recreated.
func (s *Swapchain) ResizeRequested() bool {
	return s.resizeRequested
}

// RequestResize marks the swapchain for recreation.
func (s *Swapchain) RequestResize() {
	s.resizeRequested = true
}

// Handle returns the swapchain handle.
func (s *Swapchain) Handle() gfx.Swapchain {
	return s.handle
}

// Image returns the image at index.
func (s *Swapchain) Image(index uint32) *SwapchainImage {
	return s.images[index]
}

// Images returns all swapchain images.
func (s *Swapchain) Images() []*SwapchainImage {
	return s.images
}

// Format returns the surface format in use.
func (s *Swapchain) Format() gfx.SurfaceFormat {
	return s.format
}

// PresentMode returns the present mode in use.
func (s *Swapchain) PresentMode() gfx.PresentMode {
	return s.presentMode
}

// Extent returns the image extent.
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.extent
}

// FramesInFlight returns the number of swapchain images.
func (s *Swapchain) FramesInFlight() int {
	return len(s.images)
}

// Release destroys the image views and the swapchain.
func (s *Swapchain) Release() {
	s.destroy()
}
