package renderer_test

import (
	"testing"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newColorImage(t *testing.T, mem *renderer.DeviceMemoryManager, width, height uint32) *renderer.AllocatedImage {
	img, err := renderer.NewAllocatedImage(mem, renderer.AllocatedImageInfo{
		Extent: gfx.Extent3D{Width: width, Height: height, Depth: 1},
		Format: gfx.FormatR8G8B8A8Unorm,
		Usage:  gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferSrc | gfx.ImageUsageTransferDst,
		Memory: gfx.MemoryUsageGPUOnly,
	})
	require.NoError(t, err)
	t.Cleanup(img.Release)
	return img
}

func TestImageTransitionSameLayoutTwice(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	img := newColorImage(t, mem, 16, 16)
	ic := newImmediate(t, dev)

	assert.Equal(t, gfx.ImageLayoutUndefined, img.Layout())
	require.NoError(t, ic.Submit(func(cmd *renderer.Command) error {
		if err := img.Transition(cmd, gfx.ImageLayoutGeneral); err != nil {
			return err
		}
		return img.Transition(cmd, gfx.ImageLayoutGeneral)
	}))

	assert.Equal(t, gfx.ImageLayoutGeneral, img.Layout())
	assert.Equal(t, gfx.ImageLayoutGeneral, dev.ImageLayout(img.Handle()))
	assert.Equal(t, []string{"barrier", "barrier"}, dev.Executed())
	requireNoViolations(t, dev)
}

func TestImageTransitionChain(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	img := newColorImage(t, mem, 16, 16)
	ic := newImmediate(t, dev)

	layouts := []gfx.ImageLayout{
		gfx.ImageLayoutColorAttachmentOptimal,
		gfx.ImageLayoutTransferSrcOptimal,
		gfx.ImageLayoutTransferDstOptimal,
		gfx.ImageLayoutShaderReadOnlyOptimal,
	}
	for _, layout := range layouts {
		require.NoError(t, ic.Submit(func(cmd *renderer.Command) error {
			return img.Transition(cmd, layout)
		}))
		assert.Equal(t, layout, img.Layout())
		assert.Equal(t, layout, dev.ImageLayout(img.Handle()))
	}
	requireNoViolations(t, dev)
}

func TestImageTransitionDepthAspect(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	depth, err := renderer.NewAllocatedImage(mem, renderer.AllocatedImageInfo{
		Extent: gfx.Extent3D{Width: 8, Height: 8, Depth: 1},
		Format: gfx.FormatD32Sfloat,
		Usage:  gfx.ImageUsageDepthStencil,
		Memory: gfx.MemoryUsageGPUOnly,
		Aspect: gfx.ImageAspectDepth,
	})
	require.NoError(t, err)
	defer depth.Release()
	ic := newImmediate(t, dev)

	require.NoError(t, ic.Submit(func(cmd *renderer.Command) error {
		return depth.Transition(cmd, gfx.ImageLayoutDepthAttachmentOptimal)
	}))
	assert.Equal(t, gfx.ImageLayoutDepthAttachmentOptimal, dev.ImageLayout(depth.Handle()))
	requireNoViolations(t, dev)
}

func TestImageTransitionOutsideRecording(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	img := newColorImage(t, mem, 4, 4)
	cmd := newCommand(t, dev)

	err := img.Transition(cmd, gfx.ImageLayoutGeneral)
	assert.True(t, renderer.IsContract(err))
	assert.Equal(t, gfx.ImageLayoutUndefined, img.Layout(), "layout unchanged")
	assert.True(t, renderer.IsContract(cmd.Err()))
}

func TestBlitImageRequiresTransferLayouts(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	src := newColorImage(t, mem, 32, 32)
	dst := newColorImage(t, mem, 16, 16)
	ic := newImmediate(t, dev)

	err := ic.Submit(func(cmd *renderer.Command) error {
		return renderer.BlitImage(cmd, &src.Image, &dst.Image)
	})
	assert.True(t, renderer.IsContract(err))

	require.NoError(t, ic.Submit(func(cmd *renderer.Command) error {
		if err := src.Transition(cmd, gfx.ImageLayoutTransferSrcOptimal); err != nil {
			return err
		}
		if err := dst.Transition(cmd, gfx.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		return renderer.BlitImage(cmd, &src.Image, &dst.Image)
	}))
	assert.Equal(t, []string{"barrier", "barrier", "blit"}, dev.Executed())

	// blitting leaves both layouts alone
	assert.Equal(t, gfx.ImageLayoutTransferSrcOptimal, src.Layout())
	assert.Equal(t, gfx.ImageLayoutTransferDstOptimal, dst.Layout())
	requireNoViolations(t, dev)
}

func TestAllocatedImageRecreate(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	img := newColorImage(t, mem, 64, 64)
	ic := newImmediate(t, dev)

	require.NoError(t, ic.Submit(func(cmd *renderer.Command) error {
		return img.Transition(cmd, gfx.ImageLayoutColorAttachmentOptimal)
	}))
	old := img.Handle()

	require.NoError(t, img.Recreate(gfx.Extent3D{Width: 128, Height: 32, Depth: 1}))
	assert.NotEqual(t, old, img.Handle())
	assert.NotZero(t, img.View())
	assert.Equal(t, gfx.ImageLayoutUndefined, img.Layout())
	assert.Equal(t, gfx.Extent2D{Width: 128, Height: 32}, img.Extent2D())
	assert.Equal(t, gfx.Extent3D{Width: 128, Height: 32, Depth: 1}, dev.ImageExtent(img.Handle()))
	assert.Equal(t, 1, mem.Stats().Images)
	requireNoViolations(t, dev)
}

func TestSwapchainImageReleaseKeepsImage(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	owner := newColorImage(t, mem, 8, 8)

	img, err := renderer.NewSwapchainImage(dev, owner.Handle(), owner.Format(), owner.Extent2D())
	require.NoError(t, err)
	kinds := dev.LiveKinds()
	assert.Equal(t, 2, kinds["view"])

	img.Release()
	img.Release()
	kinds = dev.LiveKinds()
	assert.Equal(t, 1, kinds["view"])
	assert.Equal(t, 1, kinds["image"])
	assert.Empty(t, dev.Violations())
}
