package renderer_test

import (
	"io/ioutil"
	"testing"
	"time"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testWindow struct {
	extent  gfx.Extent2D
	resized bool
}

func (w *testWindow) Extent() gfx.Extent2D {
	return w.extent
}

func (w *testWindow) Resized() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *testWindow) resize(width, height uint32) {
	w.extent = gfx.Extent2D{Width: width, Height: height}
	w.resized = true
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

func testConfig() renderer.Configuration {
	cfg := renderer.DefaultConfiguration()
	cfg.FenceTimeout = 2 * time.Second
	return cfg
}

func newMemory(t *testing.T, dev *gfxtest.Device) *renderer.DeviceMemoryManager {
	mem, err := renderer.NewDeviceMemoryManager(dev)
	require.NoError(t, err)
	t.Cleanup(mem.Release)
	return mem
}

func newImmediate(t *testing.T, dev *gfxtest.Device) *renderer.ImmediateCommand {
	ic, err := renderer.NewImmediateCommand(dev, 0, dev.GraphicsQueue(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(ic.Release)
	return ic
}

func newRenderer(t *testing.T, dev *gfxtest.Device, window *testWindow) *renderer.Renderer {
	r, err := renderer.New(dev, window, testConfig(), testLogger())
	require.NoError(t, err)
	return r
}

func requireNoViolations(t *testing.T, dev *gfxtest.Device) {
	t.Helper()
	require.NoError(t, dev.WaitIdle())
	require.Empty(t, dev.Violations())
}
