package vkr

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// errorOutOfPoolMemory is VK_ERROR_OUT_OF_POOL_MEMORY from
// VK_KHR_maintenance1, which the 1.0 binding does not name.
const errorOutOfPoolMemory vk.Result = -1000069000

type descriptorPool struct {
	pool vk.DescriptorPool
	sets []gfx.DescriptorSet
}

// CreateDescriptorPool implements gfx.DescriptorDevice.
func (d *Device) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(info.Sizes))
	for _, s := range info.Sizes {
		if s.Count == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if info.FreeDescriptorSet {
		dpci.Flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	var pool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorPool()")
	}
	return gfx.DescriptorPool(d.descriptorPools.add(&descriptorPool{pool: pool})), nil
}

func (d *Device) forgetSets(p *descriptorPool) {
	for _, s := range p.sets {
		d.sets.remove(uint64(s))
	}
	p.sets = nil
}

// DestroyDescriptorPool implements gfx.DescriptorDevice.
func (d *Device) DestroyDescriptorPool(p gfx.DescriptorPool) {
	pool, ok := d.descriptorPools.remove(uint64(p))
	if !ok {
		return
	}
	d.forgetSets(pool)
	vk.DestroyDescriptorPool(d.device, pool.pool, nil)
}

// ResetDescriptorPool implements gfx.DescriptorDevice. Sets allocated from
// the pool become invalid.
func (d *Device) ResetDescriptorPool(p gfx.DescriptorPool) error {
	pool, ok := d.descriptorPools.get(uint64(p))
	if !ok {
		return errors.Errorf("vkr: unknown descriptor pool %d", p)
	}
	d.forgetSets(pool)
	if err := vk.Error(vk.ResetDescriptorPool(d.device, pool.pool, 0)); err != nil {
		return errors.Wrap(err, "vk.ResetDescriptorPool()")
	}
	return nil
}

// AllocateDescriptorSet implements gfx.DescriptorDevice.
func (d *Device) AllocateDescriptorSet(p gfx.DescriptorPool, l gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	pool, ok := d.descriptorPools.get(uint64(p))
	if !ok {
		return 0, errors.Errorf("vkr: unknown descriptor pool %d", p)
	}
	setLayout, ok := d.setLayouts.get(uint64(l))
	if !ok {
		return 0, errors.Errorf("vkr: unknown descriptor set layout %d", l)
	}
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}
	var set vk.DescriptorSet
	switch result := vk.AllocateDescriptorSets(d.device, &dsai, &set); result {
	case vk.Success:
	case errorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return 0, gfx.ErrPoolExhausted
	default:
		return 0, errors.Wrap(vk.Error(result), "vk.AllocateDescriptorSets()")
	}
	h := gfx.DescriptorSet(d.sets.add(set))
	pool.sets = append(pool.sets, h)
	return h, nil
}

// CreateDescriptorSetLayout implements gfx.DescriptorDevice.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &setLayout)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorSetLayout()")
	}
	return gfx.DescriptorSetLayout(d.setLayouts.add(setLayout)), nil
}

// DestroyDescriptorSetLayout implements gfx.DescriptorDevice.
func (d *Device) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	if setLayout, ok := d.setLayouts.remove(uint64(l)); ok {
		vk.DestroyDescriptorSetLayout(d.device, setLayout, nil)
	}
}

// UpdateDescriptorSets implements gfx.DescriptorDevice. Writes naming
// unknown objects are skipped.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	wds := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.get(uint64(w.Set))
		if !ok {
			continue
		}
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorType(w.Type),
			DescriptorCount: 1,
		}
		switch {
		case w.Buffer != nil:
			buffer, ok := d.buffers.get(uint64(w.Buffer.Buffer))
			if !ok {
				continue
			}
			wd.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		case w.Image != nil:
			dii := vk.DescriptorImageInfo{ImageLayout: layout(w.Image.Layout)}
			if w.Image.View != 0 {
				if dii.ImageView, ok = d.views.get(uint64(w.Image.View)); !ok {
					continue
				}
			}
			if w.Image.Sampler != 0 {
				if dii.Sampler, ok = d.samplers.get(uint64(w.Image.Sampler)); !ok {
					continue
				}
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{dii}
		default:
			continue
		}
		wds = append(wds, wd)
	}
	if len(wds) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(wds)), wds, 0, nil)
	}
}
