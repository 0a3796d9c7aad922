package vkr

import (
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CreateFence implements gfx.SyncDevice.
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateFence()")
	}
	return gfx.Fence(d.fences.add(fence)), nil
}

// DestroyFence implements gfx.SyncDevice.
func (d *Device) DestroyFence(f gfx.Fence) {
	if fence, ok := d.fences.remove(uint64(f)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

// WaitForFence implements gfx.SyncDevice.
func (d *Device) WaitForFence(f gfx.Fence, timeout time.Duration) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return errors.Errorf("vkr: unknown fence %d", f)
	}
	result := vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	if result == vk.Timeout {
		return gfx.ErrTimeout
	}
	if err := vk.Error(result); err != nil {
		return errors.Wrap(err, "vk.WaitForFences()")
	}
	return nil
}

// ResetFence implements gfx.SyncDevice.
func (d *Device) ResetFence(f gfx.Fence) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return errors.Errorf("vkr: unknown fence %d", f)
	}
	if err := vk.Error(vk.ResetFences(d.device, 1, []vk.Fence{fence})); err != nil {
		return errors.Wrap(err, "vk.ResetFences()")
	}
	return nil
}

// CreateSemaphore implements gfx.SyncDevice.
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(d.device, &sci, nil, &semaphore)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	return gfx.Semaphore(d.semaphores.add(semaphore)), nil
}

// DestroySemaphore implements gfx.SyncDevice.
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	if semaphore, ok := d.semaphores.remove(uint64(s)); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

func (d *Device) semaphoreList(list []gfx.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(list))
	for i, s := range list {
		semaphore, ok := d.semaphores.get(uint64(s))
		if !ok {
			return nil, errors.Errorf("vkr: unknown semaphore %d", s)
		}
		out[i] = semaphore
	}
	return out, nil
}

// QueueSubmit implements gfx.SyncDevice.
func (d *Device) QueueSubmit(q gfx.Queue, info gfx.SubmitInfo, f gfx.Fence) error {
	queue, err := d.queue(q)
	if err != nil {
		return err
	}

	commandBuffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cb := range info.CommandBuffers {
		if commandBuffers[i], err = d.commandBuffer(cb); err != nil {
			return err
		}
	}
	waits := make([]gfx.Semaphore, len(info.Wait))
	stages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i, w := range info.Wait {
		waits[i] = w.Semaphore
		stages[i] = vk.PipelineStageFlags(w.Stage)
	}
	waitSemaphores, err := d.semaphoreList(waits)
	if err != nil {
		return err
	}
	signalSemaphores, err := d.semaphoreList(info.Signal)
	if err != nil {
		return err
	}

	var fence vk.Fence
	if f != 0 {
		var ok bool
		if fence, ok = d.fences.get(uint64(f)); !ok {
			return errors.Errorf("vkr: unknown fence %d", f)
		}
	}

	submit := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}}
	if err := vk.Error(vk.QueueSubmit(queue, 1, submit, fence)); err != nil {
		return errors.Wrap(err, "vk.QueueSubmit()")
	}
	return nil
}
