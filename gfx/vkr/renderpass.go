package vkr

import (
	"sync"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Vulkan 1.0 has no dynamic rendering, so begin/end rendering is served by
// render passes and framebuffers created on first use and cached.

type renderPassKey struct {
	color gfx.Format
	depth gfx.Format
	clear bool
}

type framebufferKey struct {
	pass   vk.RenderPass
	view   vk.ImageView
	extent gfx.Extent2D
}

type renderPassCache struct {
	device vk.Device

	mu           sync.Mutex
	passes       map[renderPassKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

func newRenderPassCache(device vk.Device) *renderPassCache {
	return &renderPassCache{
		device:       device,
		passes:       make(map[renderPassKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
}

// renderPass returns a single-subpass pass whose color attachment stays in
// the color attachment layout from start to end.
func (c *renderPassCache) renderPass(key renderPassKey) (vk.RenderPass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pass, ok := c.passes[key]; ok {
		return pass, nil
	}

	loadOp := vk.AttachmentLoadOpLoad
	if key.clear {
		loadOp = vk.AttachmentLoadOpClear
	}
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(key.color),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}

	if key.depth != gfx.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var pass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(c.device, &rpci, nil, &pass)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateRenderPass()")
	}
	c.passes[key] = pass
	return pass, nil
}

func (c *renderPassCache) framebuffer(pass vk.RenderPass, view vk.ImageView, extent gfx.Extent2D) (vk.Framebuffer, error) {
	key := framebufferKey{pass: pass, view: view, extent: extent}
	c.mu.Lock()
	defer c.mu.Unlock()
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}

	attachments := []vk.ImageView{view}
	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := vk.Error(vk.CreateFramebuffer(c.device, &fci, nil, &fb)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateFramebuffer()")
	}
	c.framebuffers[key] = fb
	return fb, nil
}

// forgetView destroys the framebuffers that reference view.
func (c *renderPassCache) forgetView(view vk.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.framebuffers {
		if key.view == view {
			vk.DestroyFramebuffer(c.device, fb, nil)
			delete(c.framebuffers, key)
		}
	}
}

func (c *renderPassCache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.framebuffers {
		vk.DestroyFramebuffer(c.device, fb, nil)
		delete(c.framebuffers, key)
	}
	for key, pass := range c.passes {
		vk.DestroyRenderPass(c.device, pass, nil)
		delete(c.passes, key)
	}
}
