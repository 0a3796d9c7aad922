// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

type buffer struct {
	data   []byte
	usage  gfx.BufferUsage
	memory gfx.MemoryUsage
	mapped bool
}

type image struct {
	extent    gfx.Extent3D
	format    gfx.Format
	usage     gfx.ImageUsage
	layout    gfx.ImageLayout
	swapchain bool
}

type descriptorPool struct {
	info gfx.DescriptorPoolInfo
	used uint32
}

// Allocator is the simulated memory allocator.
type Allocator struct {
	d        *Device
	released bool
}

// NewAllocator implements gfx.Device.
func (d *Device) NewAllocator() (gfx.Allocator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocators++
	return &Allocator{d: d}, nil
}

// Allocators returns the number of live allocators.
func (d *Device) Allocators() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocators
}

// Release implements gfx.Allocator.
func (a *Allocator) Release() {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	if a.released {
		a.d.violatef("allocator released twice")
		return
	}
	a.released = true
	a.d.allocators--
}

// CreateBuffer implements gfx.Allocator.
func (a *Allocator) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Size == 0 {
		return 0, errors.New("vk.CreateBuffer(): size must be greater than zero")
	}
	h := gfx.Buffer(d.handle("buffer"))
	d.buffers[h] = &buffer{
		data:   make([]byte, info.Size),
		usage:  info.Usage,
		memory: info.Memory,
	}
	return h, nil
}

// DestroyBuffer implements gfx.Allocator.
func (a *Allocator) DestroyBuffer(h gfx.Buffer) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok && b.mapped {
		d.violatef("buffer %d destroyed while mapped", h)
	}
	delete(d.buffers, h)
	d.forget(uint64(h), "buffer")
}

// MapBuffer implements gfx.Allocator. The returned slice aliases the
// simulated memory.
func (a *Allocator) MapBuffer(h gfx.Buffer) ([]byte, error) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, errors.Errorf("unknown buffer %d", h)
	}
	if !b.memory.HostVisible() {
		return nil, errors.New("vmaMapMemory(): memory is not host visible")
	}
	if b.mapped {
		d.violatef("buffer %d mapped twice", h)
	}
	b.mapped = true
	return b.data, nil
}

// UnmapBuffer implements gfx.Allocator.
func (a *Allocator) UnmapBuffer(h gfx.Buffer) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok || !b.mapped {
		d.violatef("unmap of buffer %d that is not mapped", h)
		return
	}
	b.mapped = false
}

// CreateImage implements gfx.Allocator.
func (a *Allocator) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		return 0, errors.New("vk.CreateImage(): extent must be greater than zero")
	}
	h := gfx.Image(d.handle("image"))
	d.images[h] = &image{
		extent: info.Extent,
		format: info.Format,
		usage:  info.Usage,
	}
	return h, nil
}

// DestroyImage implements gfx.Allocator.
func (a *Allocator) DestroyImage(h gfx.Image) {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	for v, img := range d.views {
		if img == h {
			d.violatef("image %d destroyed before its view %d", h, v)
		}
	}
	delete(d.images, h)
	d.forget(uint64(h), "image")
}

// Stats implements gfx.Allocator.
func (a *Allocator) Stats() gfx.AllocatorStats {
	d := a.d
	d.mu.Lock()
	defer d.mu.Unlock()
	var s gfx.AllocatorStats
	for _, b := range d.buffers {
		s.Buffers++
		s.Bytes += uint64(len(b.data))
	}
	for _, i := range d.images {
		if !i.swapchain {
			s.Images++
			s.Bytes += uint64(i.extent.Width) * uint64(i.extent.Height) * 4
		}
	}
	return s
}

// BufferDeviceAddress implements gfx.Device.
func (d *Device) BufferDeviceAddress(h gfx.Buffer) (uint64, error) {
	if !d.DeviceAddresses {
		return 0, gfx.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return 0, errors.Errorf("unknown buffer %d", h)
	}
	if b.usage&gfx.BufferUsageShaderDeviceAddress == 0 {
		d.violatef("device address of buffer %d without device address usage", h)
	}
	return 0x10000000 + uint64(h)<<12, nil
}

// BufferData returns a copy of the simulated buffer memory.
func (d *Device) BufferData(h gfx.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[h]; ok {
		return append([]byte(nil), b.data...)
	}
	return nil
}

// BufferExists reports whether the buffer is alive.
func (d *Device) BufferExists(h gfx.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[h]
	return ok
}

// ImageLayout returns the layout the image is in after all completed work.
func (d *Device) ImageLayout(h gfx.Image) gfx.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.images[h]; ok {
		return i.layout
	}
	return gfx.ImageLayoutUndefined
}

// ImageExtent returns the extent of a live image.
func (d *Device) ImageExtent(h gfx.Image) gfx.Extent3D {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.images[h]; ok {
		return i.extent
	}
	return gfx.Extent3D{}
}

// CreateImageView implements gfx.Device.
func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[info.Image]; !ok {
		return 0, errors.Errorf("vk.CreateImageView(): unknown image %d", info.Image)
	}
	h := gfx.ImageView(d.handle("view"))
	d.views[h] = info.Image
	return h, nil
}

// DestroyImageView implements gfx.Device.
func (d *Device) DestroyImageView(h gfx.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, h)
	d.forget(uint64(h), "view")
}

// CreateDescriptorPool implements gfx.Device.
func (d *Device) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.MaxSets == 0 {
		return 0, errors.New("vk.CreateDescriptorPool(): maxSets must be greater than zero")
	}
	h := gfx.DescriptorPool(d.handle("descriptor pool"))
	d.descPools[h] = &descriptorPool{info: info}
	d.poolHistory = append(d.poolHistory, info)
	return h, nil
}

// CreatedDescriptorPools returns how every descriptor pool was created, in
// creation order, including destroyed ones.
func (d *Device) CreatedDescriptorPools() []gfx.DescriptorPoolInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.DescriptorPoolInfo(nil), d.poolHistory...)
}

// DestroyDescriptorPool implements gfx.Device.
func (d *Device) DestroyDescriptorPool(h gfx.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s, p := range d.descSets {
		if p == h {
			delete(d.descSets, s)
		}
	}
	delete(d.descPools, h)
	d.forget(uint64(h), "descriptor pool")
}

// ResetDescriptorPool implements gfx.Device.
func (d *Device) ResetDescriptorPool(h gfx.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descPools[h]
	if !ok {
		return errors.Errorf("unknown descriptor pool %d", h)
	}
	p.used = 0
	for s, owner := range d.descSets {
		if owner == h {
			delete(d.descSets, s)
		}
	}
	return nil
}

// DescriptorPoolInfo returns how a live pool was created.
func (d *Device) DescriptorPoolInfo(h gfx.DescriptorPool) (gfx.DescriptorPoolInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descPools[h]
	if !ok {
		return gfx.DescriptorPoolInfo{}, false
	}
	return p.info, true
}

// AllocateDescriptorSet implements gfx.Device.
func (d *Device) AllocateDescriptorSet(h gfx.DescriptorPool, layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.descPools[h]
	if !ok {
		return 0, errors.Errorf("unknown descriptor pool %d", h)
	}
	if d.FailDescriptorAllocations || p.used >= p.info.MaxSets {
		return 0, gfx.ErrPoolExhausted
	}
	p.used++
	d.next++
	s := gfx.DescriptorSet(d.next)
	d.descSets[s] = h
	return s, nil
}

// CreateDescriptorSetLayout implements gfx.Device.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gfx.DescriptorSetLayout(d.handle("descriptor set layout")), nil
}

// DestroyDescriptorSetLayout implements gfx.Device.
func (d *Device) DestroyDescriptorSetLayout(h gfx.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(uint64(h), "descriptor set layout")
}

// UpdateDescriptorSets implements gfx.Device.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		if _, ok := d.descSets[w.Set]; !ok {
			d.violatef("write to unknown descriptor set %d", w.Set)
		}
		if w.Image == nil && w.Buffer == nil {
			d.violatef("descriptor write to set %d binding %d without a resource", w.Set, w.Binding)
		}
	}
}

// CreateShaderModule implements gfx.Device.
func (d *Device) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.New("vk.CreateShaderModule(): code size must be a multiple of 4")
	}
	return gfx.ShaderModule(d.handle("shader module")), nil
}

// DestroyShaderModule implements gfx.Device.
func (d *Device) DestroyShaderModule(h gfx.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(uint64(h), "shader module")
}

// CreatePipelineLayout implements gfx.Device.
func (d *Device) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range info.PushConstants {
		if r.Offset+r.Size > d.DeviceLimits.MaxPushConstantsSize {
			return 0, errors.New("vk.CreatePipelineLayout(): push constant range exceeds device limit")
		}
	}
	return gfx.PipelineLayout(d.handle("pipeline layout")), nil
}

// DestroyPipelineLayout implements gfx.Device.
func (d *Device) DestroyPipelineLayout(h gfx.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(uint64(h), "pipeline layout")
}

// CreateGraphicsPipeline implements gfx.Device.
func (d *Device) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(info.Stages) == 0 {
		return 0, errors.New("vk.CreateGraphicsPipelines(): no shader stages")
	}
	if info.Layout == 0 {
		return 0, errors.New("vk.CreateGraphicsPipelines(): no pipeline layout")
	}
	return gfx.Pipeline(d.handle("pipeline")), nil
}

// DestroyPipeline implements gfx.Device.
func (d *Device) DestroyPipeline(h gfx.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(uint64(h), "pipeline")
}

// CreateSampler implements gfx.Device.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gfx.Sampler(d.handle("sampler")), nil
}

// DestroySampler implements gfx.Device.
func (d *Device) DestroySampler(h gfx.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(uint64(h), "sampler")
}
