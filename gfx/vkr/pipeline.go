// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CreateShaderModule implements gfx.PipelineDevice.
func (d *Device) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Errorf("vkr: shader code of %d bytes is not SPIR-V", len(code))
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(d.device, &smci, nil, &module)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateShaderModule()")
	}
	return gfx.ShaderModule(d.shaders.add(module)), nil
}

// DestroyShaderModule implements gfx.PipelineDevice.
func (d *Device) DestroyShaderModule(m gfx.ShaderModule) {
	if module, ok := d.shaders.remove(uint64(m)); ok {
		vk.DestroyShaderModule(d.device, module, nil)
	}
}

// CreatePipelineLayout implements gfx.PipelineDevice.
func (d *Device) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		setLayout, ok := d.setLayouts.get(uint64(l))
		if !ok {
			return 0, errors.Errorf("vkr: unknown descriptor set layout %d", l)
		}
		setLayouts[i] = setLayout
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var pipelineLayout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(d.device, &plci, nil, &pipelineLayout)); err != nil {
		return 0, errors.Wrap(err, "vk.CreatePipelineLayout()")
	}
	return gfx.PipelineLayout(d.pipelineLayouts.add(pipelineLayout)), nil
}

// DestroyPipelineLayout implements gfx.PipelineDevice.
func (d *Device) DestroyPipelineLayout(l gfx.PipelineLayout) {
	if pipelineLayout, ok := d.pipelineLayouts.remove(uint64(l)); ok {
		vk.DestroyPipelineLayout(d.device, pipelineLayout, nil)
	}
}

func blendAttachment(mode gfx.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: 0xF,
		BlendEnable:    vk.False,
	}
	switch mode {
	case gfx.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	case gfx.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

// CreateGraphicsPipeline implements gfx.PipelineDevice. The pipeline is
// built against the render pass CmdBeginRendering uses for the same
// attachment formats.
func (d *Device) CreateGraphicsPipeline(info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	pipelineLayout, ok := d.pipelineLayouts.get(uint64(info.Layout))
	if !ok {
		return 0, errors.Errorf("vkr: unknown pipeline layout %d", info.Layout)
	}
	pass, err := d.passes.renderPass(renderPassKey{color: info.ColorFormat, depth: info.DepthFormat, clear: true})
	if err != nil {
		return 0, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for idx, s := range info.Stages {
		module, ok := d.shaders.get(uint64(s.Module))
		if !ok {
			return 0, errors.Errorf("vkr: unknown shader module %d", s.Module)
		}
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		stages[idx] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(s.Stage),
			Module: module,
			PName:  safeString(entry),
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	depthTest, depthWrite := vk.Bool32(vk.False), vk.Bool32(vk.False)
	if info.DepthTest {
		depthTest = vk.True
	}
	if info.DepthWrite {
		depthWrite = vk.True
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopology(info.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonMode(info.PolygonMode),
			CullMode:    vk.CullModeFlags(info.CullMode),
			FrontFace:   vk.FrontFace(info.FrontFace),
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       depthTest,
			DepthWriteEnable:      depthWrite,
			DepthCompareOp:        vk.CompareOp(info.DepthCompare),
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			MaxDepthBounds: 1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment(info.Blend)},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     pipelineLayout,
		RenderPass: pass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(d.device, d.pipelineCache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateGraphicsPipelines()")
	}
	return gfx.Pipeline(d.pipelines.add(pipelines[0])), nil
}

// DestroyPipeline implements gfx.PipelineDevice.
func (d *Device) DestroyPipeline(p gfx.Pipeline) {
	if pipeline, ok := d.pipelines.remove(uint64(p)); ok {
		vk.DestroyPipeline(d.device, pipeline, nil)
	}
}

// CreateSampler implements gfx.PipelineDevice.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(info.MagFilter),
		MinFilter:               vk.Filter(info.MinFilter),
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(d.device, &sci, nil, &sampler)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateSampler()")
	}
	return gfx.Sampler(d.samplers.add(sampler)), nil
}

// DestroySampler implements gfx.PipelineDevice.
func (d *Device) DestroySampler(s gfx.Sampler) {
	if sampler, ok := d.samplers.remove(uint64(s)); ok {
		vk.DestroySampler(d.device, sampler, nil)
	}
}
