// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package systems contains render systems that plug into the renderer.
package systems

import (
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Shader names the mesh system loads.
const (
	MeshVertexShader   = "mesh.vert"
	MeshFragmentShader = "mesh.frag"
)

// Renderable is an uploaded mesh placed in the world.
type Renderable struct {
	Buffers *renderer.MeshBuffers
	Object  model.Object
}

// NewMeshRenderSystem creates the mesh pipeline for the renderer's draw
// image format, a scene uniform per frame slot and their descriptor sets.
func NewMeshRenderSystem(r *renderer.Renderer, shaders renderer.ShaderCompiler, log logrus.FieldLogger) (s *MeshRenderSystem, err error) {
	s = &MeshRenderSystem{
		renderer: r,
		device:   r.Device(),
		shaders:  shaders,
		camera:   model.NewCamera(),
		log:      log.WithField("component", "mesh"),
	}
	defer func() {
		if err != nil {
			s.Release()
			s = nil
		}
	}()

	s.layouts.AddBinding(0, gfx.DescriptorTypeUniformBuffer)
	if s.sceneLayout, err = s.layouts.Build(s.device, gfx.ShaderStageVertex|gfx.ShaderStageFragment); err != nil {
		return
	}

	if s.pipelineLayout, err = renderer.NewPipelineLayout(s.device, []gfx.DescriptorSetLayout{s.sceneLayout}, gfx.PushConstantRange{
		Stages: gfx.ShaderStageVertex,
		Size:   model.DrawPushConstantsSize,
	}); err != nil {
		return
	}
	if err = s.buildPipeline(r.DrawImage().Format()); err != nil {
		return
	}

	frames := r.FramesInFlight()
	if s.scene, err = renderer.NewBuffer(r.Memory(), renderer.BufferInfo{
		InstanceSize:       model.SceneUniformSize,
		InstanceCount:      uint64(frames),
		Usage:              gfx.BufferUsageUniform,
		Memory:             gfx.MemoryUsageCPUToGPU,
		MinOffsetAlignment: s.device.Limits().MinUniformBufferOffsetAlignment,
	}); err != nil {
		return
	}

	s.sets = make([]gfx.DescriptorSet, frames)
	var writer renderer.DescriptorWriter
	for i := range s.sets {
		if s.sets[i], err = r.Descriptors().Allocate(s.sceneLayout); err != nil {
			return
		}
		writer.Clear()
		writer.AddBuffer(0, s.scene.Handle(), model.SceneUniformSize, s.scene.Alignment()*uint64(i), gfx.DescriptorTypeUniformBuffer)
		writer.Write(s.device, s.sets[i])
	}
	return s, nil
}

// MeshRenderSystem draws every added mesh with one pipeline.
type MeshRenderSystem struct {
	renderer *renderer.Renderer
	device   gfx.Device
	shaders  renderer.ShaderCompiler
	log      logrus.FieldLogger

	layouts        renderer.DescriptorLayoutBuilder
	sceneLayout    gfx.DescriptorSetLayout
	pipelineLayout *renderer.PipelineLayout
	pipeline       *renderer.Pipeline
	format         gfx.Format

	scene *renderer.Buffer
	sets  []gfx.DescriptorSet

	camera      *model.Camera
	renderables []*Renderable
}

var _ renderer.RenderSystem = (*MeshRenderSystem)(nil)

func (s *MeshRenderSystem) buildPipeline(format gfx.Format) error {
	vert, err := renderer.LoadShader(s.device, s.shaders, MeshVertexShader, gfx.ShaderStageVertex)
	if err != nil {
		return err
	}
	defer vert.Release()
	frag, err := renderer.LoadShader(s.device, s.shaders, MeshFragmentShader, gfx.ShaderStageFragment)
	if err != nil {
		return err
	}
	defer frag.Release()

	pipeline, err := renderer.NewPipelineBuilder().
		SetShaders(vert, frag).
		SetLayout(s.pipelineLayout).
		SetVertexInput(model.VertexBindings(), model.VertexAttributes()).
		SetInputTopology(gfx.TopologyTriangleList).
		SetPolygonMode(gfx.PolygonModeFill).
		SetCullMode(gfx.CullModeNone, gfx.FrontFaceClockwise).
		DisableBlending().
		DisableDepthTest().
		SetColorAttachmentFormat(format).
		Build(s.device)
	if err != nil {
		return err
	}
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	s.pipeline = pipeline
	s.format = format
	s.log.WithField("format", format).Debug("mesh pipeline built")
	return nil
}

// Camera returns the camera the scene is viewed through.
func (s *MeshRenderSystem) Camera() *model.Camera {
	return s.camera
}

// SetCamera replaces the camera.
func (s *MeshRenderSystem) SetCamera(c *model.Camera) {
	s.camera = c
}

// AddMesh uploads mesh and draws it at obj from the next frame on. A nil
// obj places the mesh at the origin.
func (s *MeshRenderSystem) AddMesh(mesh model.Mesh, obj model.Object) (*Renderable, error) {
	buffers, err := s.renderer.Uploader().UploadMesh(mesh.VertexBytes(), mesh.Indices)
	if err != nil {
		return nil, errors.Wrap(err, "upload mesh")
	}
	if obj == nil {
		obj = model.NewTransform()
	}
	r := &Renderable{Buffers: buffers, Object: obj}
	s.renderables = append(s.renderables, r)
	return r, nil
}

// Renderables returns the meshes being drawn.
func (s *MeshRenderSystem) Renderables() []*Renderable {
	return s.renderables
}

// Render implements renderer.RenderSystem.
func (s *MeshRenderSystem) Render(frame *renderer.Frame) error {
	if frame.Format != s.format {
		if err := s.buildPipeline(frame.Format); err != nil {
			return err
		}
	}

	scene := s.camera.Scene()
	if err := s.scene.WriteToIndex(scene.Bytes(), uint64(frame.Index)); err != nil {
		return err
	}

	cmd := frame.Command
	cmd.BindPipeline(s.pipeline)
	cmd.BindDescriptorSets(s.pipelineLayout, 0, s.sets[frame.Index])

	for _, r := range s.renderables {
		push := model.DrawPushConstants{
			World:        worldMatrix(scene.ViewProjection, r.Object),
			VertexBuffer: r.Buffers.VertexAddress,
		}
		cmd.PushConstants(s.pipelineLayout, gfx.ShaderStageVertex, 0, push.Bytes())
		if r.Buffers.VertexAddress == 0 {
			cmd.BindVertexBuffer(r.Buffers.Vertex, 0)
		}
		cmd.BindIndexBuffer(r.Buffers.Index, 0)
		cmd.DrawIndexed(r.Buffers.IndexCount, 1, 0, 0, 0)
	}
	return cmd.Err()
}

func worldMatrix(viewProjection glm.Mat4, obj model.Object) glm.Mat4 {
	return viewProjection.Mul4(obj.World())
}

// Release destroys the meshes, the pipeline and the scene buffers. The
// descriptor sets go back with the renderer's allocator.
func (s *MeshRenderSystem) Release() {
	for _, r := range s.renderables {
		r.Buffers.Release()
	}
	s.renderables = nil
	if s.scene != nil {
		s.scene.Release()
		s.scene = nil
	}
	if s.pipeline != nil {
		s.pipeline.Release()
		s.pipeline = nil
	}
	if s.pipelineLayout != nil {
		s.pipelineLayout.Release()
		s.pipelineLayout = nil
	}
	s.layouts.Release()
}
