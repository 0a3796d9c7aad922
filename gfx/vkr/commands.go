package vkr

import (
	"unsafe"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// layout maps a gfx layout onto what Vulkan 1.0 understands; the separate
// depth-only layouts arrived with 1.2.
func layout(l gfx.ImageLayout) vk.ImageLayout {
	if l == gfx.ImageLayoutDepthAttachmentOptimal {
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayout(l)
}

// CreateCommandPool implements gfx.CommandDevice.
func (d *Device) CreateCommandPool(family uint32, resettable bool) (gfx.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
	}
	if resettable {
		cpci.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}
	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(d.device, &cpci, nil, &commandPool)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateCommandPool()")
	}
	return gfx.CommandPool(d.commandPools.add(commandPool)), nil
}

// DestroyCommandPool implements gfx.CommandDevice.
func (d *Device) DestroyCommandPool(p gfx.CommandPool) {
	if pool, ok := d.commandPools.remove(uint64(p)); ok {
		vk.DestroyCommandPool(d.device, pool, nil)
	}
}

// AllocateCommandBuffer implements gfx.CommandDevice.
func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return 0, errors.Errorf("vkr: unknown command pool %d", p)
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return 0, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}
	return gfx.CommandBuffer(d.commandBuffers.add(commandBuffers[0])), nil
}

// FreeCommandBuffer implements gfx.CommandDevice.
func (d *Device) FreeCommandBuffer(p gfx.CommandPool, cb gfx.CommandBuffer) {
	buffer, ok := d.commandBuffers.remove(uint64(cb))
	if !ok {
		return
	}
	if pool, ok := d.commandPools.get(uint64(p)); ok {
		vk.FreeCommandBuffers(d.device, pool, 1, []vk.CommandBuffer{buffer})
	}
}

func (d *Device) commandBuffer(cb gfx.CommandBuffer) (vk.CommandBuffer, error) {
	buffer, ok := d.commandBuffers.get(uint64(cb))
	if !ok {
		return nil, errors.Errorf("vkr: unknown command buffer %d", cb)
	}
	return buffer, nil
}

// ResetCommandBuffer implements gfx.CommandDevice.
func (d *Device) ResetCommandBuffer(cb gfx.CommandBuffer) error {
	buffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if err := vk.Error(vk.ResetCommandBuffer(buffer, 0)); err != nil {
		return errors.Wrap(err, "vk.ResetCommandBuffer()")
	}
	return nil
}

// BeginCommandBuffer implements gfx.CommandDevice.
func (d *Device) BeginCommandBuffer(cb gfx.CommandBuffer, oneTimeSubmit bool) error {
	buffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		cbbi.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := vk.Error(vk.BeginCommandBuffer(buffer, &cbbi)); err != nil {
		return errors.Wrap(err, "vk.BeginCommandBuffer()")
	}
	return nil
}

// EndCommandBuffer implements gfx.CommandDevice.
func (d *Device) EndCommandBuffer(cb gfx.CommandBuffer) error {
	buffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if err := vk.Error(vk.EndCommandBuffer(buffer)); err != nil {
		return errors.Wrap(err, "vk.EndCommandBuffer()")
	}
	return nil
}

// Recording calls with unknown handles are no-ops.

// CmdPipelineBarrier implements gfx.Recorder.
func (d *Device) CmdPipelineBarrier(cb gfx.CommandBuffer, b gfx.ImageBarrier) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	image, ok := d.images.get(uint64(b.Image))
	if buffer == nil || !ok {
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
		DstAccessMask:       vk.AccessFlags(b.DstAccess),
		OldLayout:           layout(b.OldLayout),
		NewLayout:           layout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(b.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(buffer,
		vk.PipelineStageFlags(b.SrcStage),
		vk.PipelineStageFlags(b.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// CmdBlitImage implements gfx.Recorder.
func (d *Device) CmdBlitImage(cb gfx.CommandBuffer, blit gfx.BlitInfo) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	src, srcOK := d.images.get(uint64(blit.Src))
	dst, dstOK := d.images.get(uint64(blit.Dst))
	if buffer == nil || !srcOK || !dstOK {
		return
	}
	subresource := vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(blit.SrcExtent.Width), Y: int32(blit.SrcExtent.Height), Z: 1},
		},
		DstSubresource: subresource,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(blit.DstExtent.Width), Y: int32(blit.DstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(buffer, src, layout(blit.SrcLayout), dst, layout(blit.DstLayout),
		1, []vk.ImageBlit{region}, vk.Filter(blit.Filter))
}

// CmdCopyBuffer implements gfx.Recorder.
func (d *Device) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	from, srcOK := d.buffers.get(uint64(src))
	to, dstOK := d.buffers.get(uint64(dst))
	if buffer == nil || !srcOK || !dstOK || len(regions) == 0 {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(buffer, from, to, uint32(len(copies)), copies)
}

// CmdBeginRendering implements gfx.Recorder with a single-subpass render
// pass over the color view.
func (d *Device) CmdBeginRendering(cb gfx.CommandBuffer, info gfx.RenderingInfo) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	view, ok := d.views.get(uint64(info.ColorView))
	if buffer == nil || !ok {
		return
	}
	pass, err := d.passes.renderPass(renderPassKey{color: info.ColorFormat, clear: info.Clear})
	if err != nil {
		d.log.WithError(err).Error("render pass unavailable")
		return
	}
	framebuffer, err := d.passes.framebuffer(pass, view, info.Extent)
	if err != nil {
		d.log.WithError(err).Error("framebuffer unavailable")
		return
	}

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(info.ClearColor[:])
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  info.Extent.Width,
				Height: info.Extent.Height,
			},
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(buffer, &rpbi, vk.SubpassContentsInline)
}

// CmdEndRendering implements gfx.Recorder.
func (d *Device) CmdEndRendering(cb gfx.CommandBuffer) {
	if buffer, ok := d.commandBuffers.get(uint64(cb)); ok {
		vk.CmdEndRenderPass(buffer)
	}
}

// CmdSetViewport implements gfx.Recorder.
func (d *Device) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	if buffer, ok := d.commandBuffers.get(uint64(cb)); ok {
		vk.CmdSetViewport(buffer, 0, 1, []vk.Viewport{{
			X:        viewport.X,
			Y:        viewport.Y,
			Width:    viewport.Width,
			Height:   viewport.Height,
			MinDepth: viewport.MinDepth,
			MaxDepth: viewport.MaxDepth,
		}})
	}
}

// CmdSetScissor implements gfx.Recorder.
func (d *Device) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	if buffer, ok := d.commandBuffers.get(uint64(cb)); ok {
		vk.CmdSetScissor(buffer, 0, 1, []vk.Rect2D{{
			Offset: vk.Offset2D{X: scissor.Offset.X, Y: scissor.Offset.Y},
			Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
		}})
	}
}

// CmdBindPipeline implements gfx.Recorder.
func (d *Device) CmdBindPipeline(cb gfx.CommandBuffer, p gfx.Pipeline) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	pipeline, ok := d.pipelines.get(uint64(p))
	if buffer != nil && ok {
		vk.CmdBindPipeline(buffer, vk.PipelineBindPointGraphics, pipeline)
	}
}

// CmdBindDescriptorSets implements gfx.Recorder.
func (d *Device) CmdBindDescriptorSets(cb gfx.CommandBuffer, l gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	pipelineLayout, ok := d.pipelineLayouts.get(uint64(l))
	if buffer == nil || !ok || len(sets) == 0 {
		return
	}
	descriptorSets := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := d.sets.get(uint64(s))
		if !ok {
			return
		}
		descriptorSets = append(descriptorSets, set)
	}
	vk.CmdBindDescriptorSets(buffer, vk.PipelineBindPointGraphics, pipelineLayout,
		first, uint32(len(descriptorSets)), descriptorSets, 0, nil)
}

// CmdBindVertexBuffers implements gfx.Recorder.
func (d *Device) CmdBindVertexBuffers(cb gfx.CommandBuffer, first uint32, buffers []gfx.Buffer, offsets []uint64) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	if buffer == nil || len(buffers) == 0 || len(buffers) != len(offsets) {
		return
	}
	vertexBuffers := make([]vk.Buffer, len(buffers))
	deviceOffsets := make([]vk.DeviceSize, len(offsets))
	for i, b := range buffers {
		vb, ok := d.buffers.get(uint64(b))
		if !ok {
			return
		}
		vertexBuffers[i] = vb
		deviceOffsets[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(buffer, first, uint32(len(vertexBuffers)), vertexBuffers, deviceOffsets)
}

// CmdBindIndexBuffer implements gfx.Recorder.
func (d *Device) CmdBindIndexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	ib, ok := d.buffers.get(uint64(b))
	if buffer != nil && ok {
		vk.CmdBindIndexBuffer(buffer, ib, vk.DeviceSize(offset), vk.IndexType(t))
	}
}

// CmdPushConstants implements gfx.Recorder.
func (d *Device) CmdPushConstants(cb gfx.CommandBuffer, l gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	buffer, _ := d.commandBuffers.get(uint64(cb))
	pipelineLayout, ok := d.pipelineLayouts.get(uint64(l))
	if buffer == nil || !ok || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(buffer, pipelineLayout, vk.ShaderStageFlags(stages), offset,
		uint32(len(data)), unsafe.Pointer(&data[0]))
}

// CmdDraw implements gfx.Recorder.
func (d *Device) CmdDraw(cb gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if buffer, ok := d.commandBuffers.get(uint64(cb)); ok {
		vk.CmdDraw(buffer, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

// CmdDrawIndexed implements gfx.Recorder.
func (d *Device) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if buffer, ok := d.commandBuffers.get(uint64(cb)); ok {
		vk.CmdDrawIndexed(buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}
