// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"
	"unsafe"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// memoryFlags returns the property flags tried, in order, for a usage.
func memoryFlags(usage gfx.MemoryUsage) []vk.MemoryPropertyFlags {
	coherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	switch usage {
	case gfx.MemoryUsageCPUOnly:
		return []vk.MemoryPropertyFlags{coherent}
	case gfx.MemoryUsageCPUToGPU:
		return []vk.MemoryPropertyFlags{
			coherent | vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			coherent,
		}
	case gfx.MemoryUsageGPUToCPU:
		return []vk.MemoryPropertyFlags{
			coherent | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit),
			coherent,
		}
	}
	return []vk.MemoryPropertyFlags{vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)}
}

func findMemoryType(props vk.PhysicalDeviceMemoryProperties, filter uint32, prop vk.MemoryPropertyFlags) (uint32, bool) {
	for idx := uint32(0); idx < props.MemoryTypeCount; idx++ {
		props.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (props.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, true
		}
	}
	return 0, false
}

// malloc returns device memory that satisfies req for the given usage.
func (d *Device) malloc(req vk.MemoryRequirements, usage gfx.MemoryUsage) (vk.DeviceMemory, error) {
	for _, prop := range memoryFlags(usage) {
		memTypeIdx, ok := findMemoryType(d.memProperties, req.MemoryTypeBits, prop)
		if !ok {
			continue
		}
		mai := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  req.Size,
			MemoryTypeIndex: memTypeIdx,
		}
		var memory vk.DeviceMemory
		if err := vk.Error(vk.AllocateMemory(d.device, &mai, nil, &memory)); err != nil {
			return nil, errors.Wrap(err, "vk.AllocateMemory()")
		}
		return memory, nil
	}
	return nil, errors.New("vkr: suitable memory type not found")
}

type bufferAllocation struct {
	buffer   vk.Buffer
	memory   vk.DeviceMemory
	size     uint64
	reserved uint64
	mapped   []byte
}

type imageAllocation struct {
	image  vk.Image
	memory vk.DeviceMemory
	size   uint64
}

// Allocator gives every buffer and image a dedicated device memory
// allocation. It is safe for concurrent use.
type Allocator struct {
	dev *Device

	mu      sync.Mutex
	buffers map[gfx.Buffer]*bufferAllocation
	images  map[gfx.Image]*imageAllocation
	bytes   uint64
}

var _ gfx.Allocator = (*Allocator)(nil)

// NewAllocator implements gfx.MemoryDevice.
func (d *Device) NewAllocator() (gfx.Allocator, error) {
	return &Allocator{
		dev:     d,
		buffers: make(map[gfx.Buffer]*bufferAllocation),
		images:  make(map[gfx.Image]*imageAllocation),
	}, nil
}

// CreateBuffer implements gfx.Allocator.
func (a *Allocator) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	if info.Size == 0 {
		return 0, errors.New("vkr: zero sized buffer")
	}
	dev := a.dev.device
	// Device addresses need Vulkan 1.2, which this binding does not expose.
	usage := info.Usage &^ gfx.BufferUsageShaderDeviceAddress
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(dev, &bci, nil, &buffer)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateBuffer()")
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &req)
	req.Deref()

	memory, err := a.dev.malloc(req, info.Memory)
	if err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		return 0, err
	}
	if err := vk.Error(vk.BindBufferMemory(dev, buffer, memory, 0)); err != nil {
		vk.FreeMemory(dev, memory, nil)
		vk.DestroyBuffer(dev, buffer, nil)
		return 0, errors.Wrap(err, "vk.BindBufferMemory()")
	}

	h := gfx.Buffer(a.dev.buffers.add(buffer))
	a.mu.Lock()
	a.buffers[h] = &bufferAllocation{buffer: buffer, memory: memory, size: info.Size, reserved: uint64(req.Size)}
	a.bytes += uint64(req.Size)
	a.mu.Unlock()
	return h, nil
}

// DestroyBuffer implements gfx.Allocator.
func (a *Allocator) DestroyBuffer(b gfx.Buffer) {
	a.mu.Lock()
	alloc, ok := a.buffers[b]
	delete(a.buffers, b)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.dev.buffers.remove(uint64(b))
	a.freeBuffer(alloc)
}

func (a *Allocator) freeBuffer(alloc *bufferAllocation) {
	if alloc.mapped != nil {
		vk.UnmapMemory(a.dev.device, alloc.memory)
	}
	vk.DestroyBuffer(a.dev.device, alloc.buffer, nil)
	vk.FreeMemory(a.dev.device, alloc.memory, nil)
	a.mu.Lock()
	a.bytes -= alloc.reserved
	a.mu.Unlock()
}

// MapBuffer implements gfx.Allocator. Mapping a mapped buffer returns the
// existing mapping.
func (a *Allocator) MapBuffer(b gfx.Buffer) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alloc, ok := a.buffers[b]
	if !ok {
		return nil, errors.Errorf("vkr: unknown buffer %d", b)
	}
	if alloc.mapped != nil {
		return alloc.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := vk.Error(vk.MapMemory(a.dev.device, alloc.memory, 0, vk.DeviceSize(alloc.size), 0, &ptr)); err != nil {
		return nil, errors.Wrap(err, "vk.MapMemory()")
	}
	alloc.mapped = unsafe.Slice((*byte)(ptr), alloc.size)
	return alloc.mapped, nil
}

// UnmapBuffer implements gfx.Allocator.
func (a *Allocator) UnmapBuffer(b gfx.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alloc, ok := a.buffers[b]; ok && alloc.mapped != nil {
		vk.UnmapMemory(a.dev.device, alloc.memory)
		alloc.mapped = nil
	}
}

// CreateImage implements gfx.Allocator.
func (a *Allocator) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	dev := a.dev.device
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  info.Extent.Depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := vk.Error(vk.CreateImage(dev, &ici, nil, &image)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateImage()")
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &req)
	req.Deref()

	memory, err := a.dev.malloc(req, info.Memory)
	if err != nil {
		vk.DestroyImage(dev, image, nil)
		return 0, err
	}
	if err := vk.Error(vk.BindImageMemory(dev, image, memory, 0)); err != nil {
		vk.FreeMemory(dev, memory, nil)
		vk.DestroyImage(dev, image, nil)
		return 0, errors.Wrap(err, "vk.BindImageMemory()")
	}

	h := gfx.Image(a.dev.images.add(image))
	a.mu.Lock()
	a.images[h] = &imageAllocation{image: image, memory: memory, size: uint64(req.Size)}
	a.bytes += uint64(req.Size)
	a.mu.Unlock()
	return h, nil
}

// DestroyImage implements gfx.Allocator.
func (a *Allocator) DestroyImage(i gfx.Image) {
	a.mu.Lock()
	alloc, ok := a.images[i]
	delete(a.images, i)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.dev.images.remove(uint64(i))
	a.freeImage(alloc)
}

func (a *Allocator) freeImage(alloc *imageAllocation) {
	vk.DestroyImage(a.dev.device, alloc.image, nil)
	vk.FreeMemory(a.dev.device, alloc.memory, nil)
	a.mu.Lock()
	a.bytes -= alloc.size
	a.mu.Unlock()
}

// Stats implements gfx.Allocator.
func (a *Allocator) Stats() gfx.AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return gfx.AllocatorStats{
		Buffers: len(a.buffers),
		Images:  len(a.images),
		Bytes:   a.bytes,
	}
}

// Release frees every allocation still alive.
func (a *Allocator) Release() {
	a.mu.Lock()
	buffers, images := a.buffers, a.images
	a.buffers = make(map[gfx.Buffer]*bufferAllocation)
	a.images = make(map[gfx.Image]*imageAllocation)
	a.mu.Unlock()

	if n := len(buffers) + len(images); n > 0 {
		a.dev.log.WithField("allocations", n).Warn("allocator released with live allocations")
	}
	for h, alloc := range buffers {
		a.dev.buffers.remove(uint64(h))
		a.freeBuffer(alloc)
	}
	for h, alloc := range images {
		a.dev.images.remove(uint64(h))
		a.freeImage(alloc)
	}
}

// BufferDeviceAddress implements gfx.MemoryDevice. The Vulkan 1.0 binding
// has no vkGetBufferDeviceAddress.
func (d *Device) BufferDeviceAddress(b gfx.Buffer) (uint64, error) {
	return 0, gfx.ErrUnsupported
}

// CreateImageView implements gfx.MemoryDevice.
func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	image, ok := d.images.get(uint64(info.Image))
	if !ok {
		return 0, errors.Errorf("vkr: unknown image %d", info.Image)
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(info.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateImageView()")
	}
	return gfx.ImageView(d.views.add(view)), nil
}

// DestroyImageView implements gfx.MemoryDevice. Framebuffers built over the
// view are destroyed with it.
func (d *Device) DestroyImageView(v gfx.ImageView) {
	view, ok := d.views.remove(uint64(v))
	if !ok {
		return
	}
	d.passes.forgetView(view)
	vk.DestroyImageView(d.device, view, nil)
}
