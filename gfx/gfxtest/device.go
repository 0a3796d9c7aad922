// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides a simulated gfx.Device for tests. Buffers live in
// host memory, submitted work executes when its fence completes and misuse of
// the device is collected as violations instead of undefined behaviour.
package gfxtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

var (
	_ gfx.Device    = (*Device)(nil)
	_ gfx.Allocator = (*Allocator)(nil)
)

// EventKind classifies recorded device events.
type EventKind int

// Event kinds.
const (
	EventSubmit EventKind = iota
	EventComplete
	EventWaitReturn
	EventAcquire
	EventPresent
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventComplete:
		return "complete"
	case EventWaitReturn:
		return "wait"
	case EventAcquire:
		return "acquire"
	case EventPresent:
		return "present"
	}
	return "unknown"
}

// Event is one entry of the device event log.
type Event struct {
	Kind   EventKind
	Fence  gfx.Fence
	Buffer gfx.CommandBuffer
	Image  uint32
}

type fence struct {
	done    chan struct{}
	pending bool
}

func (f *fence) signal() {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

func (f *fence) signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
)

type commandBuffer struct {
	pool    gfx.CommandPool
	state   cmdState
	ops     []op
	pending int
}

type op struct {
	name string
	run  func(d *Device)
}

// Device is a simulated gfx.Device. The exported fields configure it and
// may be changed between calls from the test goroutine.
type Device struct {
	// Caps, Formats and PresentModes describe the simulated surface.
	Caps         gfx.SurfaceCapabilities
	Formats      []gfx.SurfaceFormat
	PresentModes []gfx.PresentMode
	DeviceLimits gfx.Limits

	// CompletionDelay postpones execution of every submission.
	CompletionDelay time.Duration

	// DeviceAddresses enables BufferDeviceAddress.
	DeviceAddresses bool

	// FailDescriptorAllocations makes every descriptor set allocation fail.
	FailDescriptorAllocations bool

	mu   sync.Mutex
	next uint64

	fences     map[gfx.Fence]*fence
	semaphores map[gfx.Semaphore]bool
	pools      map[gfx.CommandPool]bool
	cmds       map[gfx.CommandBuffer]*commandBuffer

	buffers map[gfx.Buffer]*buffer
	images  map[gfx.Image]*image
	views   map[gfx.ImageView]gfx.Image

	swapchains map[gfx.Swapchain]*swapchain
	descPools  map[gfx.DescriptorPool]*descriptorPool
	descSets   map[gfx.DescriptorSet]gfx.DescriptorPool
	objects    map[uint64]string

	poolHistory []gfx.DescriptorPoolInfo

	acquireErrs []error
	presentErrs []error

	lastDone   chan struct{}
	events     []Event
	executed   []string
	violations []string
	allocators int
	released   bool
}

// NewDevice returns a simulated device with a 1280x720 surface that offers
// B8G8R8A8_SRGB and R8G8B8A8_UNORM and the FIFO and MAILBOX present modes.
func NewDevice() *Device {
	done := make(chan struct{})
	close(done)
	return &Device{
		Caps: gfx.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  gfx.Extent2D{Width: 1280, Height: 720},
			MinImageExtent: gfx.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: gfx.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []gfx.SurfaceFormat{
			{Format: gfx.FormatB8G8R8A8Srgb, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
			{Format: gfx.FormatR8G8B8A8Unorm, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []gfx.PresentMode{gfx.PresentModeFifo, gfx.PresentModeMailbox},
		DeviceLimits: gfx.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 16,
			MaxPushConstantsSize:            128,
		},
		fences:     make(map[gfx.Fence]*fence),
		semaphores: make(map[gfx.Semaphore]bool),
		pools:      make(map[gfx.CommandPool]bool),
		cmds:       make(map[gfx.CommandBuffer]*commandBuffer),
		buffers:    make(map[gfx.Buffer]*buffer),
		images:     make(map[gfx.Image]*image),
		views:      make(map[gfx.ImageView]gfx.Image),
		swapchains: make(map[gfx.Swapchain]*swapchain),
		descPools:  make(map[gfx.DescriptorPool]*descriptorPool),
		descSets:   make(map[gfx.DescriptorSet]gfx.DescriptorPool),
		objects:    make(map[uint64]string),
		lastDone:   done,
	}
}

// handle returns a fresh non-null handle and tracks it as a live object.
// Must be called with d.mu held.
func (d *Device) handle(kind string) uint64 {
	d.next++
	d.objects[d.next] = kind
	return d.next
}

func (d *Device) forget(h uint64, kind string) {
	if h == 0 {
		return
	}
	if k, ok := d.objects[h]; !ok || k != kind {
		d.violatef("destroy of unknown %s %d", kind, h)
		return
	}
	delete(d.objects, h)
}

func (d *Device) violatef(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Violations returns every misuse detected so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Events returns a copy of the event log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Executed returns the names of executed commands in execution order.
func (d *Device) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}

// ClearLog empties the event and execution logs.
func (d *Device) ClearLog() {
	d.mu.Lock()
	d.events = nil
	d.executed = nil
	d.mu.Unlock()
}

// LiveObjects returns the number of handles created and not yet destroyed.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

// LiveKinds returns the live object count per kind.
func (d *Device) LiveKinds() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make(map[string]int)
	for _, k := range d.objects {
		kinds[k]++
	}
	return kinds
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Name implements gfx.Device.
func (d *Device) Name() string {
	return "simulated device"
}

// Release implements gfx.Device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		d.violatef("device released twice")
	}
	d.released = true
}

// GraphicsQueue implements gfx.Device.
func (d *Device) GraphicsQueue() gfx.Queue { return 1 }

// PresentQueue implements gfx.Device.
func (d *Device) PresentQueue() gfx.Queue { return 1 }

// QueueFamilies implements gfx.Device.
func (d *Device) QueueFamilies() (uint32, uint32) { return 0, 0 }

// Limits implements gfx.Device.
func (d *Device) Limits() gfx.Limits { return d.DeviceLimits }

// WaitIdle blocks until every submission has completed.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	last := d.lastDone
	d.mu.Unlock()
	<-last
	return nil
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &fence{done: make(chan struct{})}
	if signaled {
		close(f.done)
	}
	h := gfx.Fence(d.handle("fence"))
	d.fences[h] = f
	return h, nil
}

// DestroyFence implements gfx.Device.
func (d *Device) DestroyFence(h gfx.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[h]; ok && f.pending {
		d.violatef("fence %d destroyed while in use", h)
	}
	delete(d.fences, h)
	d.forget(uint64(h), "fence")
}

// WaitForFence implements gfx.Device.
func (d *Device) WaitForFence(h gfx.Fence, timeout time.Duration) error {
	d.mu.Lock()
	f, ok := d.fences[h]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown fence %d", h)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
	case <-timer.C:
		return gfx.ErrTimeout
	}

	d.mu.Lock()
	d.events = append(d.events, Event{Kind: EventWaitReturn, Fence: h})
	d.mu.Unlock()
	return nil
}

// ResetFence implements gfx.Device.
func (d *Device) ResetFence(h gfx.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return errors.Errorf("unknown fence %d", h)
	}
	if f.pending {
		d.violatef("fence %d reset while in use", h)
		return nil
	}
	if f.signaled() {
		f.done = make(chan struct{})
	}
	return nil
}

// FenceSignaled reports whether the fence is signaled.
func (d *Device) FenceSignaled(h gfx.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	return ok && f.signaled()
}

// CreateSemaphore implements gfx.Device.
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gfx.Semaphore(d.handle("semaphore"))
	d.semaphores[h] = false
	return h, nil
}

// DestroySemaphore implements gfx.Device.
func (d *Device) DestroySemaphore(h gfx.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, h)
	d.forget(uint64(h), "semaphore")
}

func (d *Device) signalSemaphore(h gfx.Semaphore) {
	if d.semaphores[h] {
		d.violatef("semaphore %d signaled twice without a wait", h)
	}
	d.semaphores[h] = true
}

func (d *Device) waitSemaphore(h gfx.Semaphore) {
	if !d.semaphores[h] {
		d.violatef("wait on semaphore %d that has no pending signal", h)
	}
	d.semaphores[h] = false
}

// QueueSubmit implements gfx.Device. Commands execute in submission order
// once CompletionDelay has elapsed, then the fence is signaled.
func (d *Device) QueueSubmit(q gfx.Queue, info gfx.SubmitInfo, h gfx.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var f *fence
	if h != 0 {
		var ok bool
		if f, ok = d.fences[h]; !ok {
			return errors.Errorf("unknown fence %d", h)
		}
		if f.signaled() || f.pending {
			d.violatef("submit with fence %d that is not reset", h)
		}
		f.pending = true
	}

	var ops []op
	var cbs []*commandBuffer
	for _, cbh := range info.CommandBuffers {
		cb, ok := d.cmds[cbh]
		if !ok {
			return errors.Errorf("unknown command buffer %d", cbh)
		}
		if cb.state != cmdExecutable {
			d.violatef("submit of command buffer %d that is not executable", cbh)
		}
		cb.pending++
		cbs = append(cbs, cb)
		ops = append(ops, cb.ops...)
	}
	for _, w := range info.Wait {
		d.waitSemaphore(w.Semaphore)
	}
	for _, s := range info.Signal {
		d.signalSemaphore(s)
	}

	var cb gfx.CommandBuffer
	if len(info.CommandBuffers) > 0 {
		cb = info.CommandBuffers[0]
	}
	d.events = append(d.events, Event{Kind: EventSubmit, Fence: h, Buffer: cb})

	prev := d.lastDone
	done := make(chan struct{})
	d.lastDone = done
	deadline := time.Now().Add(d.CompletionDelay)

	complete := func() {
		for _, o := range ops {
			d.executed = append(d.executed, o.name)
			o.run(d)
		}
		for _, c := range cbs {
			c.pending--
		}
		if f != nil {
			f.pending = false
			f.signal()
		}
		d.events = append(d.events, Event{Kind: EventComplete, Fence: h, Buffer: cb})
		close(done)
	}

	if d.CompletionDelay == 0 {
		select {
		case <-prev:
			complete()
			return nil
		default:
		}
	}

	go func() {
		<-prev
		time.Sleep(time.Until(deadline))
		d.mu.Lock()
		complete()
		d.mu.Unlock()
	}()
	return nil
}
