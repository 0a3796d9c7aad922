// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

type swapchain struct {
	info   gfx.SwapchainInfo
	images []gfx.Image
	next   uint32
}

// SetSurfaceExtent changes the current extent reported by the surface.
func (d *Device) SetSurfaceExtent(extent gfx.Extent2D) {
	d.mu.Lock()
	d.Caps.CurrentExtent = extent
	d.mu.Unlock()
}

// FailNextAcquire makes the next acquire calls return the given errors in order.
func (d *Device) FailNextAcquire(errs ...error) {
	d.mu.Lock()
	d.acquireErrs = append(d.acquireErrs, errs...)
	d.mu.Unlock()
}

// FailNextPresent makes the next present calls return the given errors in order.
func (d *Device) FailNextPresent(errs ...error) {
	d.mu.Lock()
	d.presentErrs = append(d.presentErrs, errs...)
	d.mu.Unlock()
}

// SurfaceCapabilities implements gfx.Device.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Caps, nil
}

// SurfaceFormats implements gfx.Device.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	return append([]gfx.SurfaceFormat(nil), d.Formats...), nil
}

// SurfacePresentModes implements gfx.Device.
func (d *Device) SurfacePresentModes() ([]gfx.PresentMode, error) {
	return append([]gfx.PresentMode(nil), d.PresentModes...), nil
}

// CreateSwapchain implements gfx.Device.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Zero() {
		return 0, errors.New("vk.CreateSwapchain(): extent must be greater than zero")
	}
	count := info.MinImageCount
	if count < d.Caps.MinImageCount {
		count = d.Caps.MinImageCount
	}
	if d.Caps.MaxImageCount > 0 && count > d.Caps.MaxImageCount {
		return 0, errors.New("vk.CreateSwapchain(): image count exceeds surface maximum")
	}

	sc := &swapchain{info: info}
	for i := uint32(0); i < count; i++ {
		h := gfx.Image(d.handle("swapchain image"))
		d.images[h] = &image{
			extent:    gfx.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
			format:    info.Format.Format,
			usage:     info.Usage,
			swapchain: true,
		}
		sc.images = append(sc.images, h)
	}
	h := gfx.Swapchain(d.handle("swapchain"))
	d.swapchains[h] = sc
	return h, nil
}

// SwapchainInfo returns how a live swapchain was created.
func (d *Device) SwapchainInfo(h gfx.Swapchain) (gfx.SwapchainInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return gfx.SwapchainInfo{}, false
	}
	return sc.info, true
}

// DestroySwapchain implements gfx.Device. Views of the swapchain images
// must be destroyed first.
func (d *Device) DestroySwapchain(h gfx.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		d.violatef("destroy of unknown swapchain %d", h)
		return
	}
	for _, img := range sc.images {
		for v, owner := range d.views {
			if owner == img {
				d.violatef("swapchain %d destroyed before view %d", h, v)
			}
		}
		delete(d.images, img)
		delete(d.objects, uint64(img))
	}
	delete(d.swapchains, h)
	d.forget(uint64(h), "swapchain")
}

// SwapchainImages implements gfx.Device.
func (d *Device) SwapchainImages(h gfx.Swapchain) ([]gfx.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, errors.Errorf("unknown swapchain %d", h)
	}
	return append([]gfx.Image(nil), sc.images...), nil
}

// AcquireNextImage implements gfx.Device. Images are handed out round robin.
func (d *Device) AcquireNextImage(h gfx.Swapchain, signal gfx.Semaphore, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, errors.Errorf("unknown swapchain %d", h)
	}

	var err error
	if len(d.acquireErrs) > 0 {
		err, d.acquireErrs = d.acquireErrs[0], d.acquireErrs[1:]
	}
	if err != nil && err != gfx.ErrSuboptimal {
		d.events = append(d.events, Event{Kind: EventAcquire})
		return 0, err
	}

	idx := sc.next % uint32(len(sc.images))
	sc.next++
	d.signalSemaphore(signal)
	d.events = append(d.events, Event{Kind: EventAcquire, Image: idx})
	return idx, err
}

// QueuePresent implements gfx.Device. The presented image is checked to be
// in the present layout once all earlier submissions completed.
func (d *Device) QueuePresent(q gfx.Queue, info gfx.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return errors.Errorf("unknown swapchain %d", info.Swapchain)
	}
	if int(info.ImageIndex) >= len(sc.images) {
		return errors.Errorf("present of image %d out of range", info.ImageIndex)
	}
	for _, s := range info.Wait {
		d.waitSemaphore(s)
	}
	d.events = append(d.events, Event{Kind: EventPresent, Image: info.ImageIndex})

	img := sc.images[info.ImageIndex]
	check := func() {
		if i, ok := d.images[img]; ok && i.layout != gfx.ImageLayoutPresentSrc {
			d.violatef("present of image %d in %s", info.ImageIndex, i.layout)
		}
	}
	prev := d.lastDone
	select {
	case <-prev:
		check()
	default:
		done := make(chan struct{})
		d.lastDone = done
		go func() {
			<-prev
			d.mu.Lock()
			check()
			close(done)
			d.mu.Unlock()
		}()
	}

	var err error
	if len(d.presentErrs) > 0 {
		err, d.presentErrs = d.presentErrs[0], d.presentErrs[1:]
	}
	return err
}
