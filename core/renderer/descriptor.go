// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"math"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// PoolSizeRatio is the number of descriptors of a type reserved per set.
type PoolSizeRatio struct {
	Type  gfx.DescriptorType
	Ratio float32
}

// NewDescriptorAllocator creates the first pool with room for initialSets sets.
func NewDescriptorAllocator(dev gfx.DescriptorDevice, initialSets uint32, ratios []PoolSizeRatio, cfg DescriptorConfiguration) (*DescriptorAllocator, error) {
	if cfg.MaxSets == 0 {
		cfg.MaxSets = DefaultConfiguration().Descriptors.MaxSets
	}
	if cfg.GrowthFactor < 1 {
		cfg.GrowthFactor = DefaultConfiguration().Descriptors.GrowthFactor
	}

	da := &DescriptorAllocator{
		device: dev,
		ratios: append([]PoolSizeRatio(nil), ratios...),
		cfg:    cfg,
	}
	pool, err := da.createPool(initialSets)
	if err != nil {
		return nil, err
	}
	da.setsPerPool = initialSets
	da.open = append(da.open, pool)
	return da, nil
}

// DescriptorAllocator hands out descriptor sets from a growing list of pools.
// Pools that ran out move to the full list until ResetAll.
type DescriptorAllocator struct {
	device gfx.DescriptorDevice
	ratios []PoolSizeRatio
	cfg    DescriptorConfiguration

	open []gfx.DescriptorPool
	full []gfx.DescriptorPool

	setsPerPool uint32
}

// SetsPerPool returns the capacity of the most recently created pool.
func (da *DescriptorAllocator) SetsPerPool() uint32 {
	return da.setsPerPool
}

// Pools returns the number of open and full pools.
func (da *DescriptorAllocator) Pools() (open, full int) {
	return len(da.open), len(da.full)
}

func (da *DescriptorAllocator) grow(sets uint32) uint32 {
	next := math.Floor(float64(sets) * da.cfg.GrowthFactor)
	if next > float64(da.cfg.MaxSets) {
		return da.cfg.MaxSets
	}
	return uint32(next)
}

func (da *DescriptorAllocator) createPool(sets uint32) (gfx.DescriptorPool, error) {
	sizes := make([]gfx.DescriptorPoolSize, 0, len(da.ratios))
	for _, r := range da.ratios {
		sizes = append(sizes, gfx.DescriptorPoolSize{
			Type:  r.Type,
			Count: uint32(r.Ratio * float32(sets)),
		})
	}
	pool, err := da.device.CreateDescriptorPool(gfx.DescriptorPoolInfo{
		MaxSets:           sets,
		Sizes:             sizes,
		FreeDescriptorSet: true,
	})
	if err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorPool()")
	}
	return pool, nil
}

// acquirePool returns the most recently opened pool, creating a new one
// with grown capacity when none is open.
func (da *DescriptorAllocator) acquirePool() (gfx.DescriptorPool, error) {
	if n := len(da.open); n > 0 {
		pool := da.open[n-1]
		da.open = da.open[:n-1]
		return pool, nil
	}
	sets := da.grow(da.setsPerPool)
	pool, err := da.createPool(sets)
	if err != nil {
		return 0, err
	}
	da.setsPerPool = sets
	return pool, nil
}

// Allocate allocates one set. An exhausted pool is retired and the
// allocation is retried once on another pool; a second failure is fatal.
func (da *DescriptorAllocator) Allocate(layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	pool, err := da.acquirePool()
	if err != nil {
		return 0, err
	}

	set, err := da.device.AllocateDescriptorSet(pool, layout)
	if errors.Cause(err) == gfx.ErrPoolExhausted {
		da.full = append(da.full, pool)
		if pool, err = da.acquirePool(); err != nil {
			return 0, err
		}
		set, err = da.device.AllocateDescriptorSet(pool, layout)
		if err != nil {
			da.open = append(da.open, pool)
			return 0, errors.Wrap(ErrDescriptorAllocation, err.Error())
		}
	} else if err != nil {
		da.open = append(da.open, pool)
		return 0, errors.Wrap(err, "vk.AllocateDescriptorSets()")
	}

	da.open = append(da.open, pool)
	return set, nil
}

// ResetAll resets every pool, invalidating all sets, and reopens full pools.
func (da *DescriptorAllocator) ResetAll() error {
	for _, pool := range da.open {
		if err := da.device.ResetDescriptorPool(pool); err != nil {
			return errors.Wrap(err, "vk.ResetDescriptorPool()")
		}
	}
	for _, pool := range da.full {
		if err := da.device.ResetDescriptorPool(pool); err != nil {
			return errors.Wrap(err, "vk.ResetDescriptorPool()")
		}
		da.open = append(da.open, pool)
	}
	da.full = nil
	return nil
}

// Release destroys every pool.
func (da *DescriptorAllocator) Release() {
	for _, pool := range da.open {
		da.device.DestroyDescriptorPool(pool)
	}
	for _, pool := range da.full {
		da.device.DestroyDescriptorPool(pool)
	}
	da.open, da.full = nil, nil
}

// DescriptorLayoutBuilder collects bindings into descriptor set layouts.
// Every layout it builds is destroyed by Release.
type DescriptorLayoutBuilder struct {
	bindings []gfx.DescriptorBinding
	built    []gfx.DescriptorSetLayout
	device   gfx.DescriptorDevice
}

// AddBinding adds a single descriptor binding.
func (b *DescriptorLayoutBuilder) AddBinding(binding uint32, t gfx.DescriptorType) *DescriptorLayoutBuilder {
	b.bindings = append(b.bindings, gfx.DescriptorBinding{
		Binding: binding,
		Type:    t,
		Count:   1,
	})
	return b
}

// Clear drops the collected bindings.
func (b *DescriptorLayoutBuilder) Clear() {
	b.bindings = nil
}

// Build creates a layout of the collected bindings visible to stages.
func (b *DescriptorLayoutBuilder) Build(dev gfx.DescriptorDevice, stages gfx.ShaderStage) (gfx.DescriptorSetLayout, error) {
	bindings := make([]gfx.DescriptorBinding, len(b.bindings))
	for i, binding := range b.bindings {
		binding.Stages |= stages
		bindings[i] = binding
	}
	layout, err := dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorSetLayout()")
	}
	b.device = dev
	b.built = append(b.built, layout)
	return layout, nil
}

// Release destroys every layout built so far.
func (b *DescriptorLayoutBuilder) Release() {
	for _, layout := range b.built {
		b.device.DestroyDescriptorSetLayout(layout)
	}
	b.built = nil
}

// DescriptorWriter batches descriptor updates.
type DescriptorWriter struct {
	writes []gfx.DescriptorWrite
}

// AddImage queues an image write.
func (w *DescriptorWriter) AddImage(binding uint32, view gfx.ImageView, sampler gfx.Sampler, layout gfx.ImageLayout, t gfx.DescriptorType) *DescriptorWriter {
	w.writes = append(w.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    t,
		Image: &gfx.DescriptorImageInfo{
			Sampler: sampler,
			View:    view,
			Layout:  layout,
		},
	})
	return w
}

// AddBuffer queues a buffer write of size bytes at offset.
func (w *DescriptorWriter) AddBuffer(binding uint32, buffer gfx.Buffer, size, offset uint64, t gfx.DescriptorType) *DescriptorWriter {
	w.writes = append(w.writes, gfx.DescriptorWrite{
		Binding: binding,
		Type:    t,
		Buffer: &gfx.DescriptorBufferInfo{
			Buffer: buffer,
			Offset: offset,
			Range:  size,
		},
	})
	return w
}

// Write applies the queued writes to set.
func (w *DescriptorWriter) Write(dev gfx.DescriptorDevice, set gfx.DescriptorSet) {
	writes := make([]gfx.DescriptorWrite, len(w.writes))
	for i, write := range w.writes {
		write.Set = set
		writes[i] = write
	}
	dev.UpdateDescriptorSets(writes)
}

// Clear drops the queued writes.
func (w *DescriptorWriter) Clear() {
	w.writes = nil
}
