// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type swapchain struct {
	swapchain vk.Swapchain
	images    []gfx.Image
}

func extent2D(e vk.Extent2D) gfx.Extent2D {
	e.Deref()
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

func (d *Device) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return caps, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceCapabilities()")
	}
	caps.Deref()
	return caps, nil
}

// SurfaceCapabilities implements gfx.SwapchainDevice.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return gfx.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent2D(caps.CurrentExtent),
		MinImageExtent: extent2D(caps.MinImageExtent),
		MaxImageExtent: extent2D(caps.MaxImageExtent),
	}, nil
}

// SurfaceFormats implements gfx.SwapchainDevice.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	surfaceFormats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, surfaceFormats)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	formats := make([]gfx.SurfaceFormat, count)
	for i := range surfaceFormats {
		surfaceFormats[i].Deref()
		formats[i] = gfx.SurfaceFormat{
			Format:     gfx.Format(surfaceFormats[i].Format),
			ColorSpace: gfx.ColorSpace(surfaceFormats[i].ColorSpace),
		}
	}
	return formats, nil
}

// SurfacePresentModes implements gfx.SwapchainDevice.
func (d *Device) SurfacePresentModes() ([]gfx.PresentMode, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfacePresentModes()")
	}
	presentModes := make([]vk.PresentMode, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, presentModes)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfacePresentModes()")
	}
	modes := make([]gfx.PresentMode, count)
	for i, m := range presentModes {
		modes[i] = gfx.PresentMode(m)
	}
	return modes, nil
}

// CreateSwapchain implements gfx.SwapchainDevice.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return 0, err
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	var old vk.Swapchain
	if info.Old != 0 {
		if sc, ok := d.swapchains.get(uint64(info.Old)); ok {
			old = sc.swapchain
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(info.Usage),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}
	if families := distinct(info.QueueFamilies); len(families) > 1 {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = uint32(len(families))
		scci.PQueueFamilyIndices = families
	}

	var sc vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(d.device, &scci, nil, &sc)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateSwapchain()")
	}
	d.log.WithField("extent", info.Extent).Debug("swapchain created")
	return gfx.Swapchain(d.swapchains.add(&swapchain{swapchain: sc})), nil
}

func distinct(families []uint32) []uint32 {
	var out []uint32
	seen := make(map[uint32]bool, len(families))
	for _, f := range families {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// DestroySwapchain implements gfx.SwapchainDevice. The swapchain's images
// go with it.
func (d *Device) DestroySwapchain(s gfx.Swapchain) {
	sc, ok := d.swapchains.remove(uint64(s))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.remove(uint64(img))
	}
	vk.DestroySwapchain(d.device, sc.swapchain, nil)
}

// SwapchainImages implements gfx.SwapchainDevice.
func (d *Device) SwapchainImages(s gfx.Swapchain) ([]gfx.Image, error) {
	sc, ok := d.swapchains.get(uint64(s))
	if !ok {
		return nil, errors.Errorf("vkr: unknown swapchain %d", s)
	}
	if sc.images != nil {
		return sc.images, nil
	}

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetSwapchainImages()")
	}
	swapchainImages := make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, swapchainImages)); err != nil {
		return nil, errors.Wrap(err, "vk.GetSwapchainImages()")
	}
	sc.images = make([]gfx.Image, numImages)
	for i, img := range swapchainImages {
		sc.images[i] = gfx.Image(d.images.add(img))
	}
	return sc.images, nil
}

// presentResult maps the results acquire and present share.
func presentResult(result vk.Result, call string) error {
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return gfx.ErrSuboptimal
	case vk.ErrorOutOfDate:
		return gfx.ErrOutOfDate
	case vk.Timeout, vk.NotReady:
		return gfx.ErrTimeout
	}
	return errors.Wrap(vk.Error(result), call)
}

// AcquireNextImage implements gfx.SwapchainDevice.
func (d *Device) AcquireNextImage(s gfx.Swapchain, signal gfx.Semaphore, timeout time.Duration) (uint32, error) {
	sc, ok := d.swapchains.get(uint64(s))
	if !ok {
		return 0, errors.Errorf("vkr: unknown swapchain %d", s)
	}
	semaphore, ok := d.semaphores.get(uint64(signal))
	if !ok {
		return 0, errors.Errorf("vkr: unknown semaphore %d", signal)
	}
	var idx uint32
	result := vk.AcquireNextImage(d.device, sc.swapchain, uint64(timeout.Nanoseconds()), semaphore, nil, &idx)
	return idx, presentResult(result, "vk.AcquireNextImage()")
}

// QueuePresent implements gfx.SwapchainDevice.
func (d *Device) QueuePresent(q gfx.Queue, info gfx.PresentInfo) error {
	queue, err := d.queue(q)
	if err != nil {
		return err
	}
	sc, ok := d.swapchains.get(uint64(info.Swapchain))
	if !ok {
		return errors.Errorf("vkr: unknown swapchain %d", info.Swapchain)
	}
	waitSemaphores, err := d.semaphoreList(info.Wait)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return presentResult(vk.QueuePresent(queue, &presentInfo), "vk.QueuePresent()")
}
