package systems

import (
	"io/ioutil"
	"testing"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/devblok/vkframe/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapShaders map[string][]byte

func (m mapShaders) Shader(name string) ([]byte, error) {
	code, ok := m[name]
	if !ok {
		return nil, errors.Errorf("no shader %q", name)
	}
	return code, nil
}

var testShaders = mapShaders{
	MeshVertexShader:   make([]byte, 64),
	MeshFragmentShader: make([]byte, 32),
}

type window struct{}

func (window) Extent() gfx.Extent2D { return gfx.Extent2D{Width: 640, Height: 480} }
func (window) Resized() bool        { return false }

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

func newRenderer(t *testing.T, dev *gfxtest.Device) *renderer.Renderer {
	r, err := renderer.New(dev, window{}, renderer.DefaultConfiguration(), testLogger())
	require.NoError(t, err)
	return r
}

func drawFrame(t *testing.T, r *renderer.Renderer) {
	t.Helper()
	status, err := r.Draw()
	require.NoError(t, err)
	require.Equal(t, renderer.FramePresented, status)
	require.NoError(t, r.WaitIdle())
}

func TestMeshRenderSystemBindsVertexBuffer(t *testing.T) {
	dev := gfxtest.NewDevice()
	r := newRenderer(t, dev)
	defer r.Release()

	mesh, err := NewMeshRenderSystem(r, testShaders, testLogger())
	require.NoError(t, err)
	r.AddRenderSystem(mesh)

	rect, err := mesh.AddMesh(model.Rectangle(), nil)
	require.NoError(t, err)
	assert.Zero(t, rect.Buffers.VertexAddress)
	assert.Equal(t, uint32(6), rect.Buffers.IndexCount)

	dev.ClearLog()
	drawFrame(t, r)

	assert.Equal(t, []string{
		"barrier",
		"begin_rendering",
		"viewport",
		"scissor",
		"bind_pipeline",
		"bind_descriptor_sets",
		"push_constants",
		"bind_vertex_buffers",
		"bind_index_buffer",
		"draw_indexed",
		"end_rendering",
		"barrier",
		"barrier",
		"blit",
		"barrier",
	}, dev.Executed())
	assert.Empty(t, dev.Violations())
}

func TestMeshRenderSystemUsesDeviceAddress(t *testing.T) {
	dev := gfxtest.NewDevice()
	dev.DeviceAddresses = true
	r := newRenderer(t, dev)
	defer r.Release()

	mesh, err := NewMeshRenderSystem(r, testShaders, testLogger())
	require.NoError(t, err)
	r.AddRenderSystem(mesh)

	for i := 0; i < 2; i++ {
		_, err := mesh.AddMesh(model.Rectangle(), nil)
		require.NoError(t, err)
	}
	for _, rend := range mesh.Renderables() {
		assert.NotZero(t, rend.Buffers.VertexAddress)
	}

	dev.ClearLog()
	drawFrame(t, r)

	var draws, binds int
	for _, op := range dev.Executed() {
		switch op {
		case "draw_indexed":
			draws++
		case "bind_vertex_buffers":
			binds++
		}
	}
	assert.Equal(t, 2, draws)
	assert.Zero(t, binds)
	assert.Empty(t, dev.Violations())
}

func TestMeshRenderSystemWritesSceneForFrameSlot(t *testing.T) {
	dev := gfxtest.NewDevice()
	r := newRenderer(t, dev)
	defer r.Release()

	mesh, err := NewMeshRenderSystem(r, testShaders, testLogger())
	require.NoError(t, err)
	r.AddRenderSystem(mesh)
	require.GreaterOrEqual(t, r.FramesInFlight(), 2)
	assert.Len(t, mesh.sets, r.FramesInFlight())
	assert.Equal(t, uint64(256), mesh.scene.Alignment(), "padded to the uniform offset alignment")

	mesh.Camera().SetViewTarget(glm.Vec3{0, 0, -2}, glm.Vec3{}, glm.Vec3{0, -1, 0})
	mesh.Camera().SetPerspectiveProjection(glm.DegToRad(70), 640.0/480.0, 0.1, 100)
	scene := mesh.Camera().Scene()

	slot := uint64(r.FrameIndex())
	drawFrame(t, r)
	drawFrame(t, r)

	data := dev.BufferData(mesh.scene.Handle())
	for _, s := range []uint64{slot, slot + 1} {
		start := s * mesh.scene.Alignment()
		assert.Equal(t, scene.Bytes(), data[start:start+model.SceneUniformSize], "slot %d", s)
	}
}

func TestMeshRenderSystemMissingShader(t *testing.T) {
	dev := gfxtest.NewDevice()
	r := newRenderer(t, dev)
	defer r.Release()
	before := dev.LiveObjects()

	_, err := NewMeshRenderSystem(r, mapShaders{MeshVertexShader: make([]byte, 64)}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), MeshFragmentShader)
	assert.Equal(t, before, dev.LiveObjects(), "%v", dev.LiveKinds())
}

func TestMeshRenderSystemRebuildsOnFormatChange(t *testing.T) {
	dev := gfxtest.NewDevice()
	r := newRenderer(t, dev)
	defer r.Release()

	mesh, err := NewMeshRenderSystem(r, testShaders, testLogger())
	require.NoError(t, err)
	old := mesh.pipeline.Handle()

	require.NoError(t, mesh.buildPipeline(gfx.FormatB8G8R8A8Srgb))
	assert.NotEqual(t, old, mesh.pipeline.Handle())
	assert.Equal(t, gfx.FormatB8G8R8A8Srgb, mesh.format)
	mesh.Release()
}

func TestMeshRenderSystemRelease(t *testing.T) {
	dev := gfxtest.NewDevice()
	r := newRenderer(t, dev)

	mesh, err := NewMeshRenderSystem(r, testShaders, testLogger())
	require.NoError(t, err)
	r.AddRenderSystem(mesh)
	_, err = mesh.AddMesh(model.Rectangle(), model.NewTransform())
	require.NoError(t, err)
	drawFrame(t, r)

	r.Release()
	assert.Zero(t, dev.LiveObjects(), "%v", dev.LiveKinds())
	assert.Empty(t, dev.Violations())
}
