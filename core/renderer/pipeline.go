// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// ShaderCompiler returns compiled binary shader code by logical name.
type ShaderCompiler interface {
	Shader(name string) ([]byte, error)
}

// LoadShader fetches the named shader and creates a module for stage.
func LoadShader(dev gfx.PipelineDevice, compiler ShaderCompiler, name string, stage gfx.ShaderStage) (*Shader, error) {
	code, err := compiler.Shader(name)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrapf(err, "vk.CreateShaderModule(%s)", name)
	}
	return &Shader{
		device: dev,
		module: module,
		stage:  stage,
		name:   name,
	}, nil
}

// Shader is a shader module bound to a stage.
type Shader struct {
	device gfx.PipelineDevice
	module gfx.ShaderModule
	stage  gfx.ShaderStage
	name   string
}

// Name returns the logical shader name.
func (s *Shader) Name() string {
	return s.name
}

// Stage returns the pipeline stage of the shader.
func (s *Shader) Stage() gfx.ShaderStage {
	return s.stage
}

// Module returns the module handle.
func (s *Shader) Module() gfx.ShaderModule {
	return s.module
}

// Release destroys the module. Pipelines built from it stay valid.
func (s *Shader) Release() {
	if s.module != 0 {
		s.device.DestroyShaderModule(s.module)
		s.module = 0
	}
}

// NewPipelineLayout creates a pipeline layout.
func NewPipelineLayout(dev gfx.PipelineDevice, sets []gfx.DescriptorSetLayout, pushConstants ...gfx.PushConstantRange) (*PipelineLayout, error) {
	handle, err := dev.CreatePipelineLayout(gfx.PipelineLayoutInfo{
		SetLayouts:    sets,
		PushConstants: pushConstants,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreatePipelineLayout()")
	}
	return &PipelineLayout{device: dev, handle: handle}, nil
}

// PipelineLayout wraps a pipeline layout handle.
type PipelineLayout struct {
	device gfx.PipelineDevice
	handle gfx.PipelineLayout
}

// Handle returns the layout handle.
func (l *PipelineLayout) Handle() gfx.PipelineLayout {
	return l.handle
}

// Release destroys the layout.
func (l *PipelineLayout) Release() {
	if l.handle != 0 {
		l.device.DestroyPipelineLayout(l.handle)
		l.handle = 0
	}
}

// Pipeline is a graphics pipeline.
type Pipeline struct {
	device gfx.PipelineDevice
	handle gfx.Pipeline
	layout *PipelineLayout
}

// Handle returns the pipeline handle.
func (p *Pipeline) Handle() gfx.Pipeline {
	return p.handle
}

// Layout returns the layout the pipeline was built with.
func (p *Pipeline) Layout() *PipelineLayout {
	return p.layout
}

// Release destroys the pipeline. The layout is released separately.
func (p *Pipeline) Release() {
	if p.handle != 0 {
		p.device.DestroyPipeline(p.handle)
		p.handle = 0
	}
}

// NewPipelineBuilder returns a builder with every optional state cleared.
func NewPipelineBuilder() *PipelineBuilder {
	pb := &PipelineBuilder{}
	pb.Clear()
	return pb
}

// PipelineBuilder assembles graphics pipeline state. Viewport and scissor
// are always dynamic, multisampling is always off.
type PipelineBuilder struct {
	info   gfx.GraphicsPipelineInfo
	layout *PipelineLayout
}

// Clear resets the builder to triangle lists, filled polygons, no culling,
// no blending and no depth test.
func (pb *PipelineBuilder) Clear() *PipelineBuilder {
	pb.info = gfx.GraphicsPipelineInfo{
		Topology:     gfx.TopologyTriangleList,
		PolygonMode:  gfx.PolygonModeFill,
		CullMode:     gfx.CullModeNone,
		FrontFace:    gfx.FrontFaceClockwise,
		Blend:        gfx.BlendDisabled,
		DepthCompare: gfx.CompareOpNever,
	}
	pb.layout = nil
	return pb
}

// SetShaders sets the vertex and fragment stages.
func (pb *PipelineBuilder) SetShaders(vertex, fragment *Shader) *PipelineBuilder {
	pb.info.Stages = []gfx.ShaderStageInfo{
		{Stage: gfx.ShaderStageVertex, Module: vertex.Module(), Entry: "main"},
		{Stage: gfx.ShaderStageFragment, Module: fragment.Module(), Entry: "main"},
	}
	return pb
}

// SetLayout sets the pipeline layout.
func (pb *PipelineBuilder) SetLayout(layout *PipelineLayout) *PipelineBuilder {
	pb.layout = layout
	return pb
}

// SetVertexInput sets vertex bindings and attributes. Pipelines fetching
// vertices through device addresses leave them empty.
func (pb *PipelineBuilder) SetVertexInput(bindings []gfx.VertexBinding, attributes []gfx.VertexAttribute) *PipelineBuilder {
	pb.info.VertexBindings = bindings
	pb.info.VertexAttributes = attributes
	return pb
}

// SetInputTopology sets the primitive topology.
func (pb *PipelineBuilder) SetInputTopology(t gfx.PrimitiveTopology) *PipelineBuilder {
	pb.info.Topology = t
	return pb
}

// SetPolygonMode sets the rasterization mode.
func (pb *PipelineBuilder) SetPolygonMode(mode gfx.PolygonMode) *PipelineBuilder {
	pb.info.PolygonMode = mode
	return pb
}

// SetCullMode sets face culling and winding.
func (pb *PipelineBuilder) SetCullMode(mode gfx.CullMode, front gfx.FrontFace) *PipelineBuilder {
	pb.info.CullMode = mode
	pb.info.FrontFace = front
	return pb
}

// DisableBlending writes colors unblended.
func (pb *PipelineBuilder) DisableBlending() *PipelineBuilder {
	pb.info.Blend = gfx.BlendDisabled
	return pb
}

// EnableBlendingAdditive adds source to destination.
func (pb *PipelineBuilder) EnableBlendingAdditive() *PipelineBuilder {
	pb.info.Blend = gfx.BlendAdditive
	return pb
}

// EnableBlendingAlphaBlend blends by source alpha.
func (pb *PipelineBuilder) EnableBlendingAlphaBlend() *PipelineBuilder {
	pb.info.Blend = gfx.BlendAlpha
	return pb
}

// SetColorAttachmentFormat sets the format of the rendered color attachment.
func (pb *PipelineBuilder) SetColorAttachmentFormat(format gfx.Format) *PipelineBuilder {
	pb.info.ColorFormat = format
	return pb
}

// SetDepthFormat sets the format of the depth attachment.
func (pb *PipelineBuilder) SetDepthFormat(format gfx.Format) *PipelineBuilder {
	pb.info.DepthFormat = format
	return pb
}

// DisableDepthTest turns depth testing and writing off.
func (pb *PipelineBuilder) DisableDepthTest() *PipelineBuilder {
	pb.info.DepthTest = false
	pb.info.DepthWrite = false
	pb.info.DepthCompare = gfx.CompareOpNever
	return pb
}

// EnableDepthTest turns depth testing on with op.
func (pb *PipelineBuilder) EnableDepthTest(write bool, op gfx.CompareOp) *PipelineBuilder {
	pb.info.DepthTest = true
	pb.info.DepthWrite = write
	pb.info.DepthCompare = op
	return pb
}

// Build creates the pipeline.
func (pb *PipelineBuilder) Build(dev gfx.PipelineDevice) (*Pipeline, error) {
	if pb.layout == nil {
		return nil, contractf("PipelineBuilder.Build", "no pipeline layout set")
	}
	if len(pb.info.Stages) == 0 {
		return nil, contractf("PipelineBuilder.Build", "no shaders set")
	}
	info := pb.info
	info.Layout = pb.layout.Handle()
	handle, err := dev.CreateGraphicsPipeline(info)
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateGraphicsPipelines()")
	}
	return &Pipeline{
		device: dev,
		handle: handle,
		layout: pb.layout,
	}, nil
}
