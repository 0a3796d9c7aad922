package vkr

import (
	"sync/atomic"
	"testing"

	"github.com/devblok/vkframe/gfx"
	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestSafeString(t *testing.T) {
	assert.Equal(t, "VK_KHR_swapchain\x00", safeString("VK_KHR_swapchain"))
	assert.Equal(t, "VK_KHR_swapchain\x00", safeString("VK_KHR_swapchain\x00"))
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestSliceUint32(t *testing.T) {
	data := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	words := sliceUint32(data)
	assert.Len(t, words, 2)
	assert.Equal(t, uint32(0x07230203), words[0], "SPIR-V magic")
	assert.Equal(t, uint32(0x00010000), words[1])
	assert.Nil(t, sliceUint32([]byte{1, 2, 3}))
}

func TestLayoutMapping(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, layout(gfx.ImageLayoutDepthAttachmentOptimal))
	assert.Equal(t, vk.ImageLayoutPresentSrc, layout(gfx.ImageLayoutPresentSrc))
	assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, layout(gfx.ImageLayoutTransferSrcOptimal))
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, layout(gfx.ImageLayoutColorAttachmentOptimal))
}

func TestMemoryFlags(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	coherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	assert.Equal(t, []vk.MemoryPropertyFlags{deviceLocal}, memoryFlags(gfx.MemoryUsageGPUOnly))
	assert.Equal(t, []vk.MemoryPropertyFlags{coherent}, memoryFlags(gfx.MemoryUsageCPUOnly))

	readback := memoryFlags(gfx.MemoryUsageGPUToCPU)
	assert.Len(t, readback, 2)
	assert.NotZero(t, readback[0]&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit))
	assert.Equal(t, coherent, readback[1], "falls back to uncached")
}

func TestFindMemoryType(t *testing.T) {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = 3
	props.MemoryTypes[0].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	props.MemoryTypes[1].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	props.MemoryTypes[2].PropertyFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

	coherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	idx, ok := findMemoryType(props, 0b111, coherent)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), idx)

	_, ok = findMemoryType(props, 0b011, coherent)
	assert.False(t, ok, "type filtered out by requirements")
}

func TestRegistry(t *testing.T) {
	var ids atomic.Uint64
	fences := newRegistry[string](&ids)
	images := newRegistry[int](&ids)

	a := fences.add("a")
	b := images.add(7)
	assert.NotEqual(t, a, b, "handles unique across registries")
	assert.NotZero(t, a)

	v, ok := fences.get(a)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = fences.get(b)
	assert.False(t, ok)

	_, ok = fences.remove(a)
	assert.True(t, ok)
	_, ok = fences.remove(a)
	assert.False(t, ok)

	images.add(8)
	assert.Equal(t, 2, images.len())
	assert.ElementsMatch(t, []int{7, 8}, images.drain())
	assert.Zero(t, images.len())
}

func TestDistinctFamilies(t *testing.T) {
	assert.Equal(t, []uint32{0}, distinct([]uint32{0, 0}))
	assert.Equal(t, []uint32{0, 2}, distinct([]uint32{0, 2, 0}))
	assert.Nil(t, distinct(nil))
}

func TestBlendAttachment(t *testing.T) {
	off := blendAttachment(gfx.BlendDisabled)
	assert.Equal(t, vk.Bool32(vk.False), off.BlendEnable)
	assert.Equal(t, vk.ColorComponentFlags(0xF), off.ColorWriteMask)

	alpha := blendAttachment(gfx.BlendAlpha)
	assert.Equal(t, vk.Bool32(vk.True), alpha.BlendEnable)
	assert.Equal(t, vk.BlendFactorOneMinusSrcAlpha, alpha.DstColorBlendFactor)

	additive := blendAttachment(gfx.BlendAdditive)
	assert.Equal(t, vk.BlendFactorOne, additive.DstColorBlendFactor)
}

func BenchmarkSliceUint32(b *testing.B) {
	data := make([]byte, 64*1024)
	for i := 0; i < b.N; i++ {
		sliceUint32(data)
	}
}
