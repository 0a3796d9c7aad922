// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// CreateCommandPool implements gfx.Device.
func (d *Device) CreateCommandPool(family uint32, resettable bool) (gfx.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gfx.CommandPool(d.handle("command pool"))
	d.pools[h] = resettable
	return h, nil
}

// DestroyCommandPool implements gfx.Device. Command buffers of the pool are freed.
func (d *Device) DestroyCommandPool(h gfx.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for cbh, cb := range d.cmds {
		if cb.pool != h {
			continue
		}
		if cb.pending > 0 {
			d.violatef("command pool %d destroyed while buffer %d is in use", h, cbh)
		}
		delete(d.cmds, cbh)
		delete(d.objects, uint64(cbh))
	}
	delete(d.pools, h)
	d.forget(uint64(h), "command pool")
}

// AllocateCommandBuffer implements gfx.Device.
func (d *Device) AllocateCommandBuffer(p gfx.CommandPool) (gfx.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pools[p]; !ok {
		return 0, errors.Errorf("vk.AllocateCommandBuffers(): unknown pool %d", p)
	}
	h := gfx.CommandBuffer(d.handle("command buffer"))
	d.cmds[h] = &commandBuffer{pool: p}
	return h, nil
}

// FreeCommandBuffer implements gfx.Device.
func (d *Device) FreeCommandBuffer(p gfx.CommandPool, h gfx.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.cmds[h]; ok && cb.pending > 0 {
		d.violatef("command buffer %d freed while in use", h)
	}
	delete(d.cmds, h)
	d.forget(uint64(h), "command buffer")
}

// ResetCommandBuffer implements gfx.Device.
func (d *Device) ResetCommandBuffer(h gfx.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmds[h]
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	if !d.pools[cb.pool] {
		d.violatef("reset of command buffer %d from a pool without reset support", h)
	}
	if cb.pending > 0 {
		d.violatef("command buffer %d reset while in use", h)
	}
	cb.state = cmdInitial
	cb.ops = nil
	return nil
}

// BeginCommandBuffer implements gfx.Device.
func (d *Device) BeginCommandBuffer(h gfx.CommandBuffer, oneTimeSubmit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmds[h]
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	if cb.state != cmdInitial {
		d.violatef("begin of command buffer %d that is not reset", h)
	}
	if cb.pending > 0 {
		d.violatef("begin of command buffer %d while in use", h)
	}
	cb.state = cmdRecording
	cb.ops = nil
	return nil
}

// EndCommandBuffer implements gfx.Device.
func (d *Device) EndCommandBuffer(h gfx.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmds[h]
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	if cb.state != cmdRecording {
		d.violatef("end of command buffer %d that is not recording", h)
	}
	open := 0
	for _, o := range cb.ops {
		switch o.name {
		case "begin_rendering":
			open++
		case "end_rendering":
			open--
		}
	}
	if open > 0 {
		d.violatef("end of command buffer %d inside rendering", h)
	}
	cb.state = cmdExecutable
	return nil
}

func (d *Device) record(h gfx.CommandBuffer, name string, run func(d *Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmds[h]
	if !ok || cb.state != cmdRecording {
		d.violatef("%s recorded into command buffer %d outside recording", name, h)
		return
	}
	cb.ops = append(cb.ops, op{name: name, run: run})
}

func (d *Device) liveImage(h gfx.Image, use string) *image {
	img, ok := d.images[h]
	if !ok {
		d.violatef("%s of unknown image %d", use, h)
	}
	return img
}

// CmdPipelineBarrier implements gfx.Device.
func (d *Device) CmdPipelineBarrier(cb gfx.CommandBuffer, b gfx.ImageBarrier) {
	d.record(cb, "barrier", func(d *Device) {
		img := d.liveImage(b.Image, "barrier")
		if img == nil {
			return
		}
		if b.OldLayout != gfx.ImageLayoutUndefined && b.OldLayout != img.layout {
			d.violatef("barrier on image %d from %s but image is in %s", b.Image, b.OldLayout, img.layout)
		}
		if b.NewLayout.IsDepth() != (b.Aspect == gfx.ImageAspectDepth) {
			d.violatef("barrier on image %d to %s with aspect %d", b.Image, b.NewLayout, b.Aspect)
		}
		img.layout = b.NewLayout
	})
}

// CmdBlitImage implements gfx.Device.
func (d *Device) CmdBlitImage(cb gfx.CommandBuffer, b gfx.BlitInfo) {
	d.record(cb, "blit", func(d *Device) {
		src, dst := d.liveImage(b.Src, "blit"), d.liveImage(b.Dst, "blit")
		if src == nil || dst == nil {
			return
		}
		if src.layout != gfx.ImageLayoutTransferSrcOptimal || b.SrcLayout != src.layout {
			d.violatef("blit source %d in %s", b.Src, src.layout)
		}
		if dst.layout != gfx.ImageLayoutTransferDstOptimal || b.DstLayout != dst.layout {
			d.violatef("blit destination %d in %s", b.Dst, dst.layout)
		}
	})
}

// CmdCopyBuffer implements gfx.Device.
func (d *Device) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	regions = append([]gfx.BufferCopy(nil), regions...)
	d.record(cb, "copy", func(d *Device) {
		s, ok1 := d.buffers[src]
		t, ok2 := d.buffers[dst]
		if !ok1 || !ok2 {
			d.violatef("copy between unknown buffers %d and %d", src, dst)
			return
		}
		if s.usage&gfx.BufferUsageTransferSrc == 0 || t.usage&gfx.BufferUsageTransferDst == 0 {
			d.violatef("copy from %d to %d without transfer usage", src, dst)
		}
		for _, r := range regions {
			if r.SrcOffset+r.Size > uint64(len(s.data)) || r.DstOffset+r.Size > uint64(len(t.data)) {
				d.violatef("copy region %+v out of bounds", r)
				continue
			}
			copy(t.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

// CmdBeginRendering implements gfx.Device.
func (d *Device) CmdBeginRendering(cb gfx.CommandBuffer, info gfx.RenderingInfo) {
	d.record(cb, "begin_rendering", func(d *Device) {
		img := d.liveImage(d.views[info.ColorView], "rendering")
		if img == nil {
			return
		}
		if img.layout != gfx.ImageLayoutColorAttachmentOptimal && img.layout != gfx.ImageLayoutGeneral {
			d.violatef("rendering into image in %s", img.layout)
		}
	})
}

// CmdEndRendering implements gfx.Device.
func (d *Device) CmdEndRendering(cb gfx.CommandBuffer) {
	d.record(cb, "end_rendering", func(*Device) {})
}

// CmdSetViewport implements gfx.Device.
func (d *Device) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	d.record(cb, "viewport", func(*Device) {})
}

// CmdSetScissor implements gfx.Device.
func (d *Device) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect2D) {
	d.record(cb, "scissor", func(*Device) {})
}

// CmdBindPipeline implements gfx.Device.
func (d *Device) CmdBindPipeline(cb gfx.CommandBuffer, p gfx.Pipeline) {
	d.record(cb, "bind_pipeline", func(*Device) {})
}

// CmdBindDescriptorSets implements gfx.Device.
func (d *Device) CmdBindDescriptorSets(cb gfx.CommandBuffer, layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet) {
	d.record(cb, "bind_descriptor_sets", func(*Device) {})
}

// CmdBindVertexBuffers implements gfx.Device.
func (d *Device) CmdBindVertexBuffers(cb gfx.CommandBuffer, first uint32, buffers []gfx.Buffer, offsets []uint64) {
	d.record(cb, "bind_vertex_buffers", func(*Device) {})
}

// CmdBindIndexBuffer implements gfx.Device.
func (d *Device) CmdBindIndexBuffer(cb gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	d.record(cb, "bind_index_buffer", func(*Device) {})
}

// CmdPushConstants implements gfx.Device.
func (d *Device) CmdPushConstants(cb gfx.CommandBuffer, layout gfx.PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	if offset+uint32(len(data)) > d.DeviceLimits.MaxPushConstantsSize {
		d.mu.Lock()
		d.violatef("push constants of %d bytes at %d exceed the device limit", len(data), offset)
		d.mu.Unlock()
	}
	d.record(cb, "push_constants", func(*Device) {})
}

// CmdDraw implements gfx.Device.
func (d *Device) CmdDraw(cb gfx.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, "draw", func(*Device) {})
}

// CmdDrawIndexed implements gfx.Device.
func (d *Device) CmdDrawIndexed(cb gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, "draw_indexed", func(*Device) {})
}
