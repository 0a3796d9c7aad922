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

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := gfx.ColorSpaceSRGBNonlinear
	other := gfx.ColorSpace(1000104001)

	cases := []struct {
		name    string
		formats []gfx.SurfaceFormat
		want    gfx.SurfaceFormat
	}{
		{
			name: "preferred offered",
			formats: []gfx.SurfaceFormat{
				{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: srgb},
				{Format: gfx.FormatR8G8B8A8Unorm, ColorSpace: srgb},
			},
			want: gfx.SurfaceFormat{Format: gfx.FormatR8G8B8A8Unorm, ColorSpace: srgb},
		},
		{
			name: "preferred in wrong color space",
			formats: []gfx.SurfaceFormat{
				{Format: gfx.FormatB8G8R8A8Unorm, ColorSpace: srgb},
				{Format: gfx.FormatR8G8B8A8Unorm, ColorSpace: other},
			},
			want: gfx.SurfaceFormat{Format: gfx.FormatB8G8R8A8Unorm, ColorSpace: srgb},
		},
		{
			name:    "fallback to first",
			formats: []gfx.SurfaceFormat{{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: srgb}},
			want:    gfx.SurfaceFormat{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: srgb},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := renderer.ChooseSurfaceFormat(c.formats, gfx.FormatR8G8B8A8Unorm)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := renderer.ChooseSurfaceFormat(nil, gfx.FormatR8G8B8A8Unorm)
	assert.Error(t, err)
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, gfx.PresentModeMailbox,
		renderer.ChoosePresentMode([]gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox}, gfx.PresentModeMailbox))
	assert.Equal(t, gfx.PresentModeFifo,
		renderer.ChoosePresentMode([]gfx.PresentMode{gfx.PresentModeImmediate, gfx.PresentModeFifo}, gfx.PresentModeMailbox))
	assert.Equal(t, gfx.PresentModeFifo, renderer.ChoosePresentMode(nil, gfx.PresentModeMailbox))
}

func TestChooseImageCount(t *testing.T) {
	cases := []struct {
		min, max, want uint32
	}{
		{2, 8, 3},
		{2, 2, 2},
		{3, 0, 4},
		{1, 3, 2},
	}
	for _, c := range cases {
		got := renderer.ChooseImageCount(gfx.SurfaceCapabilities{MinImageCount: c.min, MaxImageCount: c.max})
		assert.Equal(t, c.want, got, "min %d max %d", c.min, c.max)
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gfx.SurfaceCapabilities{
		CurrentExtent:  gfx.Extent2D{Width: 800, Height: 600},
		MinImageExtent: gfx.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: gfx.Extent2D{Width: 2048, Height: 2048},
	}
	assert.Equal(t, gfx.Extent2D{Width: 800, Height: 600}, renderer.ChooseExtent(caps, gfx.Extent2D{Width: 1, Height: 1}))

	caps.CurrentExtent = gfx.Extent2D{Width: gfx.UndefinedExtent, Height: gfx.UndefinedExtent}
	assert.Equal(t, gfx.Extent2D{Width: 1024, Height: 768}, renderer.ChooseExtent(caps, gfx.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, gfx.Extent2D{Width: 2048, Height: 16}, renderer.ChooseExtent(caps, gfx.Extent2D{Width: 5000, Height: 2}))
}

func newSwapchain(t *testing.T, dev *gfxtest.Device, window *testWindow) *renderer.Swapchain {
	sc, err := renderer.NewSwapchain(dev, window, testConfig(), testLogger())
	require.NoError(t, err)
	t.Cleanup(sc.Release)
	return sc
}

func TestNewSwapchain(t *testing.T) {
	dev := gfxtest.NewDevice()
	sc := newSwapchain(t, dev, &testWindow{extent: gfx.Extent2D{Width: 1280, Height: 720}})

	assert.Equal(t, gfx.FormatR8G8B8A8Unorm, sc.Format().Format)
	assert.Equal(t, gfx.ColorSpaceSRGBNonlinear, sc.Format().ColorSpace)
	assert.Equal(t, gfx.PresentModeMailbox, sc.PresentMode())
	assert.Equal(t, gfx.Extent2D{Width: 1280, Height: 720}, sc.Extent())
	assert.Equal(t, 3, sc.FramesInFlight())
	assert.Len(t, sc.Images(), 3)
	assert.False(t, sc.ResizeRequested())

	info, ok := dev.SwapchainInfo(sc.Handle())
	require.True(t, ok)
	assert.Equal(t, uint32(3), info.MinImageCount)
	assert.NotZero(t, info.Usage&gfx.ImageUsageTransferDst, "blit target")
	for _, img := range sc.Images() {
		assert.NotZero(t, img.View())
		assert.Equal(t, gfx.ImageLayoutUndefined, img.Layout())
	}
}

func TestSwapchainFallbacks(t *testing.T) {
	dev := gfxtest.NewDevice()
	dev.Formats = []gfx.SurfaceFormat{{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: gfx.ColorSpaceSRGBNonlinear}}
	dev.PresentModes = []gfx.PresentMode{gfx.PresentModeFifo}
	dev.Caps.MinImageCount, dev.Caps.MaxImageCount = 2, 2
	dev.Caps.CurrentExtent = gfx.Extent2D{Width: gfx.UndefinedExtent, Height: gfx.UndefinedExtent}

	sc := newSwapchain(t, dev, &testWindow{extent: gfx.Extent2D{Width: 640, Height: 480}})
	assert.Equal(t, gfx.FormatB8G8R8A8Srgb, sc.Format().Format)
	assert.Equal(t, gfx.PresentModeFifo, sc.PresentMode())
	assert.Equal(t, 2, sc.FramesInFlight())
	assert.Equal(t, gfx.Extent2D{Width: 640, Height: 480}, sc.Extent())
}

func TestSwapchainResizeFlag(t *testing.T) {
	dev := gfxtest.NewDevice()
	window := &testWindow{extent: gfx.Extent2D{Width: 1280, Height: 720}}
	sc := newSwapchain(t, dev, window)
	sync, err := renderer.NewFrameSync(dev)
	require.NoError(t, err)
	defer sync.Release()

	dev.FailNextAcquire(gfx.ErrOutOfDate)
	_, err = sc.AcquireNextImage(sync, testConfig().FenceTimeout)
	assert.Equal(t, gfx.ErrOutOfDate, errors.Cause(err))
	assert.True(t, sc.ResizeRequested())

	// only recreation clears the flag
	_, err = sc.AcquireNextImage(sync, testConfig().FenceTimeout)
	require.NoError(t, err)
	assert.True(t, sc.ResizeRequested())

	old := sc.Handle()
	window.extent = gfx.Extent2D{Width: 1920, Height: 1080}
	dev.SetSurfaceExtent(window.extent)
	require.NoError(t, sc.Recreate())
	assert.False(t, sc.ResizeRequested())
	assert.NotEqual(t, old, sc.Handle())
	assert.Equal(t, window.extent, sc.Extent())
	_, ok := dev.SwapchainInfo(old)
	assert.False(t, ok, "old swapchain destroyed")
	assert.Empty(t, dev.Violations())
}

func TestSwapchainSuboptimalAcquire(t *testing.T) {
	dev := gfxtest.NewDevice()
	sc := newSwapchain(t, dev, &testWindow{extent: gfx.Extent2D{Width: 1280, Height: 720}})
	sync, err := renderer.NewFrameSync(dev)
	require.NoError(t, err)
	defer sync.Release()

	dev.FailNextAcquire(gfx.ErrSuboptimal)
	idx, err := sc.AcquireNextImage(sync, testConfig().FenceTimeout)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.True(t, sc.ResizeRequested())
}
