package renderer_test

import (
	"testing"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRatios = []renderer.PoolSizeRatio{
	{Type: gfx.DescriptorTypeUniformBuffer, Ratio: 1},
	{Type: gfx.DescriptorTypeCombinedImageSampler, Ratio: 0.5},
}

func newDescriptorAllocator(t *testing.T, dev *gfxtest.Device, initial uint32) *renderer.DescriptorAllocator {
	da, err := renderer.NewDescriptorAllocator(dev, initial, testRatios, renderer.DefaultConfiguration().Descriptors)
	require.NoError(t, err)
	t.Cleanup(da.Release)
	return da
}

func newLayout(t *testing.T, dev *gfxtest.Device) gfx.DescriptorSetLayout {
	var b renderer.DescriptorLayoutBuilder
	layout, err := b.AddBinding(0, gfx.DescriptorTypeUniformBuffer).Build(dev, gfx.ShaderStageVertex)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return layout
}

func TestDescriptorAllocatorGrowth(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 1000)
	assert.Equal(t, uint32(1000), da.SetsPerPool())

	want := []uint32{1000, 1500, 2250, 3375, 4096, 4096}
	var total uint32
	for _, sets := range want {
		total += sets
	}
	// one more than fits, forcing the last pool
	for i := uint32(0); i < total-4096+1; i++ {
		_, err := da.Allocate(layout)
		require.NoError(t, err, "allocation %d", i)
	}

	pools := dev.CreatedDescriptorPools()
	require.Len(t, pools, len(want))
	for i, info := range pools {
		assert.Equal(t, want[i], info.MaxSets, "pool %d", i)
		assert.True(t, info.FreeDescriptorSet)
		require.Len(t, info.Sizes, 2)
		assert.Equal(t, gfx.DescriptorPoolSize{Type: gfx.DescriptorTypeUniformBuffer, Count: want[i]}, info.Sizes[0])
		assert.Equal(t, gfx.DescriptorPoolSize{Type: gfx.DescriptorTypeCombinedImageSampler, Count: want[i] / 2}, info.Sizes[1])
	}
	assert.Equal(t, uint32(4096), da.SetsPerPool())

	open, full := da.Pools()
	assert.Equal(t, 1, open)
	assert.Equal(t, 5, full)
	assert.Empty(t, dev.Violations())
}

func TestDescriptorAllocatorSetsPerPool(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 2)
	assert.Equal(t, uint32(2), da.SetsPerPool())

	// 2 + 3 + 4 + 6 sets fill four pools, one more opens the fifth
	for i := 0; i < 2+3+4+6+1; i++ {
		_, err := da.Allocate(layout)
		require.NoError(t, err)
	}

	var got []uint32
	for _, info := range dev.CreatedDescriptorPools() {
		got = append(got, info.MaxSets)
	}
	assert.Equal(t, []uint32{2, 3, 4, 6, 9}, got)
	assert.Equal(t, uint32(9), da.SetsPerPool())
}

func TestDescriptorAllocatorSetsPerPoolFollowsFilledPools(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 1000)

	allocate := func(n int) {
		for i := 0; i < n; i++ {
			_, err := da.Allocate(layout)
			require.NoError(t, err)
		}
	}

	allocate(1000)
	assert.Equal(t, uint32(1000), da.SetsPerPool(), "first pool full but not yet retired")

	allocate(1)
	assert.Equal(t, uint32(1500), da.SetsPerPool())

	allocate(1500)
	assert.Equal(t, uint32(2250), da.SetsPerPool())
	assert.Len(t, dev.CreatedDescriptorPools(), 3)
}

func TestDescriptorAllocatorCustomLimits(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da, err := renderer.NewDescriptorAllocator(dev, 4, testRatios, renderer.DescriptorConfiguration{
		MaxSets:      8,
		GrowthFactor: 2,
	})
	require.NoError(t, err)
	defer da.Release()

	for i := 0; i < 4+8+8+1; i++ {
		_, err := da.Allocate(layout)
		require.NoError(t, err)
	}
	var got []uint32
	for _, info := range dev.CreatedDescriptorPools() {
		got = append(got, info.MaxSets)
	}
	assert.Equal(t, []uint32{4, 8, 8, 8}, got)
}

func TestDescriptorAllocatorRetryFailure(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 4)

	dev.FailDescriptorAllocations = true
	_, err := da.Allocate(layout)
	require.Error(t, err)
	assert.Equal(t, renderer.ErrDescriptorAllocation, errors.Cause(err))
	assert.Len(t, dev.CreatedDescriptorPools(), 2, "exactly one retry on a fresh pool")

	dev.FailDescriptorAllocations = false
	_, err = da.Allocate(layout)
	assert.NoError(t, err)
}

func TestDescriptorAllocatorResetAll(t *testing.T) {
	dev := gfxtest.NewDevice()
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 2)

	for i := 0; i < 2+3+1; i++ {
		_, err := da.Allocate(layout)
		require.NoError(t, err)
	}
	open, full := da.Pools()
	assert.Equal(t, 1, open)
	assert.Equal(t, 2, full)

	require.NoError(t, da.ResetAll())
	open, full = da.Pools()
	assert.Equal(t, 3, open)
	assert.Zero(t, full)

	// reset pools are reused before new ones are created
	for i := 0; i < 2+3+4; i++ {
		_, err := da.Allocate(layout)
		require.NoError(t, err)
	}
	assert.Len(t, dev.CreatedDescriptorPools(), 3)

	da.Release()
	assert.Zero(t, dev.LiveKinds()["descriptor pool"])
}

func TestDescriptorWriter(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	layout := newLayout(t, dev)
	da := newDescriptorAllocator(t, dev, 4)
	ubo := newUniformBuffer(t, mem, 64, 1, 256)
	img := newColorImage(t, mem, 4, 4)
	sampler, err := dev.CreateSampler(gfx.SamplerInfo{MagFilter: gfx.FilterLinear, MinFilter: gfx.FilterLinear})
	require.NoError(t, err)
	defer dev.DestroySampler(sampler)

	set, err := da.Allocate(layout)
	require.NoError(t, err)

	var w renderer.DescriptorWriter
	w.AddBuffer(0, ubo.Handle(), 64, 0, gfx.DescriptorTypeUniformBuffer).
		AddImage(1, img.View(), sampler, gfx.ImageLayoutShaderReadOnlyOptimal, gfx.DescriptorTypeCombinedImageSampler)
	w.Write(dev, set)
	assert.Empty(t, dev.Violations())

	// sets are invalid after a reset
	require.NoError(t, da.ResetAll())
	w.Write(dev, set)
	assert.Len(t, dev.Violations(), 2)

	w.Clear()
	w.Write(dev, set)
	assert.Len(t, dev.Violations(), 2)
}

func TestDescriptorLayoutBuilderRelease(t *testing.T) {
	dev := gfxtest.NewDevice()
	var b renderer.DescriptorLayoutBuilder
	b.AddBinding(0, gfx.DescriptorTypeUniformBuffer)
	_, err := b.Build(dev, gfx.ShaderStageVertex)
	require.NoError(t, err)

	b.Clear()
	b.AddBinding(0, gfx.DescriptorTypeStorageImage)
	_, err = b.Build(dev, gfx.ShaderStageFragment)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.LiveKinds()["descriptor set layout"])

	b.Release()
	assert.Zero(t, dev.LiveKinds()["descriptor set layout"])
}
