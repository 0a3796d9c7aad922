// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// NewCommandPool creates a pool whose command buffers can be reset individually.
func NewCommandPool(dev gfx.Device, family uint32) (*CommandPool, error) {
	handle, err := dev.CreateCommandPool(family, true)
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateCommandPool()")
	}
	return &CommandPool{
		device: dev,
		handle: handle,
		family: family,
	}, nil
}

// CommandPool owns the command buffers allocated from it.
type CommandPool struct {
	device gfx.Device
	handle gfx.CommandPool
	family uint32
}

// Handle returns the pool handle.
func (p *CommandPool) Handle() gfx.CommandPool {
	return p.handle
}

// NewCommand allocates a primary command buffer in idle state.
func (p *CommandPool) NewCommand() (*Command, error) {
	cb, err := p.device.AllocateCommandBuffer(p.handle)
	if err != nil {
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}
	return &Command{
		device: p.device,
		pool:   p,
		handle: cb,
	}, nil
}

// Release destroys the pool and with it every command buffer allocated from it.
func (p *CommandPool) Release() {
	if p.handle == 0 {
		return
	}
	p.device.DestroyCommandPool(p.handle)
	p.handle = 0
}

// CommandState is the recording state of a Command.
type CommandState int

// Command states.
const (
	CommandIdle CommandState = iota
	CommandRecording
	CommandEnded
)

func (s CommandState) String() string {
	switch s {
	case CommandIdle:
		return "idle"
	case CommandRecording:
		return "recording"
	case CommandEnded:
		return "ended"
	}
	return "unknown"
}

// Command is a command buffer with an explicit idle, recording, ended
// lifecycle. Recording helpers called outside of recording leave a sticky
// contract error that End reports.
type Command struct {
	device gfx.Device
	pool   *CommandPool
	handle gfx.CommandBuffer

	state     CommandState
	rendering bool
	err       error
}

// Handle returns the command buffer handle.
func (c *Command) Handle() gfx.CommandBuffer {
	return c.handle
}

// State returns the current state.
func (c *Command) State() CommandState {
	return c.state
}

// Err returns the first recording error since the last Reset.
func (c *Command) Err() error {
	return c.err
}

// Reset returns the command to idle from any state.
func (c *Command) Reset() error {
	if err := c.device.ResetCommandBuffer(c.handle); err != nil {
		return errors.Wrap(err, "vk.ResetCommandBuffer()")
	}
	c.state = CommandIdle
	c.rendering = false
	c.err = nil
	return nil
}

// Begin starts recording. Only valid when idle.
func (c *Command) Begin() error {
	return c.begin(false)
}

func (c *Command) begin(oneTimeSubmit bool) error {
	if c.state != CommandIdle {
		return contractf("Command.Begin", "command is %s", c.state)
	}
	if err := c.device.BeginCommandBuffer(c.handle, oneTimeSubmit); err != nil {
		return errors.Wrap(err, "vk.BeginCommandBuffer()")
	}
	c.state = CommandRecording
	return nil
}

// End stops recording. Only valid when recording and outside rendering;
// otherwise the command stays recording.
func (c *Command) End() error {
	if c.state != CommandRecording {
		return contractf("Command.End", "command is %s", c.state)
	}
	if c.rendering {
		err := contractf("Command.End", "rendering was not ended")
		c.fail(err)
		return err
	}
	if err := c.device.EndCommandBuffer(c.handle); err != nil {
		return errors.Wrap(err, "vk.EndCommandBuffer()")
	}
	c.state = CommandEnded
	return c.err
}

// Submit submits the ended command for one frame: it waits on the frame's
// present semaphore at color attachment output, signals the render
// semaphore and the render fence on completion.
func (c *Command) Submit(queue gfx.Queue, sync *FrameSync) error {
	return c.submit(queue, gfx.SubmitInfo{
		Wait: []gfx.SemaphoreWait{{
			Semaphore: sync.PresentSemaphore(),
			Stage:     gfx.PipelineStageColorAttachmentOutput,
		}},
		Signal:      []gfx.Semaphore{sync.RenderSemaphore()},
		SignalStage: gfx.PipelineStageAllGraphics,
	}, sync.Fence())
}

func (c *Command) submit(queue gfx.Queue, info gfx.SubmitInfo, fence gfx.Fence) error {
	if c.state != CommandEnded {
		return contractf("Command.Submit", "command is %s", c.state)
	}
	info.CommandBuffers = []gfx.CommandBuffer{c.handle}
	if err := c.device.QueueSubmit(queue, info, fence); err != nil {
		return errors.Wrap(err, "vk.QueueSubmit()")
	}
	return nil
}

func (c *Command) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// recording checks the command can accept op and records a contract
// error otherwise.
func (c *Command) recording(op string) bool {
	if c.state != CommandRecording {
		c.fail(contractf(op, "command is %s", c.state))
		return false
	}
	return true
}

func (c *Command) drawing(op string) bool {
	if !c.recording(op) {
		return false
	}
	if !c.rendering {
		c.fail(contractf(op, "no rendering in progress"))
		return false
	}
	return true
}

// PipelineBarrier records an image barrier.
func (c *Command) PipelineBarrier(b gfx.ImageBarrier) {
	if c.recording("Command.PipelineBarrier") {
		c.device.CmdPipelineBarrier(c.handle, b)
	}
}

// BlitImage records an image blit.
func (c *Command) BlitImage(b gfx.BlitInfo) {
	if c.recording("Command.BlitImage") {
		c.device.CmdBlitImage(c.handle, b)
	}
}

// CopyBuffer records buffer to buffer copies.
func (c *Command) CopyBuffer(src, dst *Buffer, regions ...gfx.BufferCopy) {
	if c.recording("Command.CopyBuffer") {
		c.device.CmdCopyBuffer(c.handle, src.Handle(), dst.Handle(), regions)
	}
}

// BeginRendering starts rendering into a color attachment.
func (c *Command) BeginRendering(info gfx.RenderingInfo) {
	if !c.recording("Command.BeginRendering") {
		return
	}
	if c.rendering {
		c.fail(contractf("Command.BeginRendering", "rendering already in progress"))
		return
	}
	c.device.CmdBeginRendering(c.handle, info)
	c.rendering = true
}

// EndRendering ends the rendering started by BeginRendering.
func (c *Command) EndRendering() {
	if c.drawing("Command.EndRendering") {
		c.device.CmdEndRendering(c.handle)
		c.rendering = false
	}
}

// SetViewport sets the dynamic viewport.
func (c *Command) SetViewport(v gfx.Viewport) {
	if c.recording("Command.SetViewport") {
		c.device.CmdSetViewport(c.handle, v)
	}
}

// SetScissor sets the dynamic scissor.
func (c *Command) SetScissor(r gfx.Rect2D) {
	if c.recording("Command.SetScissor") {
		c.device.CmdSetScissor(c.handle, r)
	}
}

// BindPipeline binds a graphics pipeline.
func (c *Command) BindPipeline(p *Pipeline) {
	if c.recording("Command.BindPipeline") {
		c.device.CmdBindPipeline(c.handle, p.Handle())
	}
}

// BindDescriptorSets binds sets starting at set index first.
func (c *Command) BindDescriptorSets(layout *PipelineLayout, first uint32, sets ...gfx.DescriptorSet) {
	if c.recording("Command.BindDescriptorSets") {
		c.device.CmdBindDescriptorSets(c.handle, layout.Handle(), first, sets)
	}
}

// BindVertexBuffer binds a vertex buffer to binding 0.
func (c *Command) BindVertexBuffer(b *Buffer, offset uint64) {
	if c.recording("Command.BindVertexBuffer") {
		c.device.CmdBindVertexBuffers(c.handle, 0, []gfx.Buffer{b.Handle()}, []uint64{offset})
	}
}

// BindIndexBuffer binds a 32-bit index buffer.
func (c *Command) BindIndexBuffer(b *Buffer, offset uint64) {
	if c.recording("Command.BindIndexBuffer") {
		c.device.CmdBindIndexBuffer(c.handle, b.Handle(), offset, gfx.IndexTypeUint32)
	}
}

// PushConstants updates push constants of the layout.
func (c *Command) PushConstants(layout *PipelineLayout, stages gfx.ShaderStage, offset uint32, data []byte) {
	if c.recording("Command.PushConstants") {
		c.device.CmdPushConstants(c.handle, layout.Handle(), stages, offset, data)
	}
}

// Draw records a non-indexed draw.
func (c *Command) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if c.drawing("Command.Draw") {
		c.device.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

// DrawIndexed records an indexed draw.
func (c *Command) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if c.drawing("Command.DrawIndexed") {
		c.device.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

// NewImmediateCommand creates a command with its own pool and fence for
// blocking one-off submissions such as uploads.
func NewImmediateCommand(dev gfx.Device, family uint32, queue gfx.Queue, timeout time.Duration) (*ImmediateCommand, error) {
	pool, err := NewCommandPool(dev, family)
	if err != nil {
		return nil, err
	}
	cmd, err := pool.NewCommand()
	if err != nil {
		pool.Release()
		return nil, err
	}
	fence, err := dev.CreateFence(true)
	if err != nil {
		pool.Release()
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}
	return &ImmediateCommand{
		device:  dev,
		pool:    pool,
		cmd:     cmd,
		fence:   fence,
		queue:   queue,
		timeout: timeout,
	}, nil
}

// ImmediateCommand records, submits and waits for a single command.
type ImmediateCommand struct {
	device  gfx.Device
	pool    *CommandPool
	cmd     *Command
	fence   gfx.Fence
	queue   gfx.Queue
	timeout time.Duration
}

// Submit resets the command, records through fn, submits and blocks until
// the device finished the work. The fence stays signaled when recording fails.
func (ic *ImmediateCommand) Submit(fn func(cmd *Command) error) error {
	if err := ic.cmd.Reset(); err != nil {
		return err
	}
	if err := ic.cmd.begin(true); err != nil {
		return err
	}

	recordErr := fn(ic.cmd)
	if err := ic.cmd.End(); err != nil && recordErr == nil {
		recordErr = err
	}
	if recordErr != nil {
		return recordErr
	}

	if err := ic.device.ResetFence(ic.fence); err != nil {
		return errors.Wrap(err, "vk.ResetFences()")
	}
	if err := ic.cmd.submit(ic.queue, gfx.SubmitInfo{}, ic.fence); err != nil {
		return err
	}
	if err := ic.device.WaitForFence(ic.fence, ic.timeout); err != nil {
		return errors.Wrap(err, "immediate command fence")
	}
	return nil
}

// Release destroys the fence and the pool.
func (ic *ImmediateCommand) Release() {
	if ic.pool == nil {
		return
	}
	ic.device.DestroyFence(ic.fence)
	ic.pool.Release()
	ic.pool = nil
}
