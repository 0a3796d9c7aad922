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

type mapShaders map[string][]byte

func (m mapShaders) Shader(name string) ([]byte, error) {
	code, ok := m[name]
	if !ok {
		return nil, errors.Errorf("no shader %q", name)
	}
	return code, nil
}

var testShaders = mapShaders{
	"mesh.vert": make([]byte, 64),
	"mesh.frag": make([]byte, 32),
	"broken":    make([]byte, 7),
}

func TestLoadShader(t *testing.T) {
	dev := gfxtest.NewDevice()

	s, err := renderer.LoadShader(dev, testShaders, "mesh.vert", gfx.ShaderStageVertex)
	require.NoError(t, err)
	assert.Equal(t, "mesh.vert", s.Name())
	assert.Equal(t, gfx.ShaderStageVertex, s.Stage())
	assert.NotZero(t, s.Module())
	s.Release()
	s.Release()
	assert.Zero(t, dev.LiveObjects())

	_, err = renderer.LoadShader(dev, testShaders, "missing", gfx.ShaderStageVertex)
	assert.Error(t, err)
	_, err = renderer.LoadShader(dev, testShaders, "broken", gfx.ShaderStageFragment)
	assert.Error(t, err)
}

func TestPipelineBuilder(t *testing.T) {
	dev := gfxtest.NewDevice()
	vert, err := renderer.LoadShader(dev, testShaders, "mesh.vert", gfx.ShaderStageVertex)
	require.NoError(t, err)
	defer vert.Release()
	frag, err := renderer.LoadShader(dev, testShaders, "mesh.frag", gfx.ShaderStageFragment)
	require.NoError(t, err)
	defer frag.Release()

	layout, err := renderer.NewPipelineLayout(dev, nil, gfx.PushConstantRange{
		Stages: gfx.ShaderStageVertex,
		Size:   72,
	})
	require.NoError(t, err)
	defer layout.Release()

	pb := renderer.NewPipelineBuilder()
	_, err = pb.Build(dev)
	assert.True(t, renderer.IsContract(err), "no layout")

	pb.SetLayout(layout)
	_, err = pb.Build(dev)
	assert.True(t, renderer.IsContract(err), "no shaders")

	pipeline, err := pb.SetShaders(vert, frag).
		SetInputTopology(gfx.TopologyTriangleList).
		SetPolygonMode(gfx.PolygonModeFill).
		SetCullMode(gfx.CullModeBack, gfx.FrontFaceCounterClockwise).
		EnableBlendingAlphaBlend().
		SetColorAttachmentFormat(gfx.FormatR8G8B8A8Unorm).
		EnableDepthTest(true, gfx.CompareOpGreaterOrEqual).
		SetDepthFormat(gfx.FormatD32Sfloat).
		Build(dev)
	require.NoError(t, err)
	assert.NotZero(t, pipeline.Handle())
	assert.Equal(t, layout, pipeline.Layout())

	pipeline.Release()
	pipeline.Release()
	assert.Zero(t, dev.LiveKinds()["pipeline"])

	pb.Clear()
	_, err = pb.Build(dev)
	assert.True(t, renderer.IsContract(err), "clear drops the layout")
}

func TestPipelineLayoutPushConstantLimit(t *testing.T) {
	dev := gfxtest.NewDevice()
	_, err := renderer.NewPipelineLayout(dev, nil, gfx.PushConstantRange{
		Stages: gfx.ShaderStageVertex,
		Size:   256,
	})
	assert.Error(t, err)
}
