// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync/atomic"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

var _ gfx.Device = (*Device)(nil)

// Device is a logical Vulkan device bound to one presentation surface.
type Device struct {
	log      logrus.FieldLogger
	instance *Instance
	physical vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface

	name          string
	limits        gfx.Limits
	memProperties vk.PhysicalDeviceMemoryProperties

	graphicsFamily, presentFamily uint32
	graphicsQueue, presentQueue   gfx.Queue

	pipelineCache vk.PipelineCache
	passes        *renderPassCache

	ids             atomic.Uint64
	queues          *registry[vk.Queue]
	buffers         *registry[vk.Buffer]
	images          *registry[vk.Image]
	views           *registry[vk.ImageView]
	samplers        *registry[vk.Sampler]
	commandPools    *registry[vk.CommandPool]
	commandBuffers  *registry[vk.CommandBuffer]
	fences          *registry[vk.Fence]
	semaphores      *registry[vk.Semaphore]
	swapchains      *registry[*swapchain]
	descriptorPools *registry[*descriptorPool]
	setLayouts      *registry[vk.DescriptorSetLayout]
	sets            *registry[vk.DescriptorSet]
	shaders         *registry[vk.ShaderModule]
	pipelineLayouts *registry[vk.PipelineLayout]
	pipelines       *registry[vk.Pipeline]
}

// NewDevice picks a physical device able to present to surface and creates
// a logical device with the swapchain extension plus any extensions given.
func NewDevice(instance *Instance, surface vk.Surface, extensions []string, log logrus.FieldLogger) (*Device, error) {
	physical, err := instance.pickPhysicalDevice(surface)
	if err != nil {
		return nil, err
	}
	graphics, present, _ := queueFamilies(physical, surface)

	priorities := []float32{1}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphics,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	if present != graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: present,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}

	required := safeStrings(append([]string{vk.KhrSwapchainExtensionName}, extensions...))
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(required)),
		PpEnabledExtensionNames: required,
	}
	var device vk.Device
	if err := vk.Error(vk.CreateDevice(physical, &dci, nil, &device)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateDevice()")
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &props)
	props.Deref()
	props.Limits.Deref()

	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProperties)
	memProperties.Deref()

	d := &Device{
		instance:       instance,
		physical:       physical,
		device:         device,
		surface:        surface,
		name:           vk.ToString(props.DeviceName[:]),
		memProperties:  memProperties,
		graphicsFamily: graphics,
		presentFamily:  present,
		limits: gfx.Limits{
			MinUniformBufferOffsetAlignment: uint64(props.Limits.MinUniformBufferOffsetAlignment),
			MinStorageBufferOffsetAlignment: uint64(props.Limits.MinStorageBufferOffsetAlignment),
			MaxPushConstantsSize:            props.Limits.MaxPushConstantsSize,
		},
	}
	d.log = log.WithField("device", d.name)
	d.initRegistries()

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, graphics, 0, &graphicsQueue)
	vk.GetDeviceQueue(device, present, 0, &presentQueue)
	d.graphicsQueue = gfx.Queue(d.queues.add(graphicsQueue))
	d.presentQueue = d.graphicsQueue
	if present != graphics {
		d.presentQueue = gfx.Queue(d.queues.add(presentQueue))
	}

	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := vk.Error(vk.CreatePipelineCache(device, &pcci, nil, &d.pipelineCache)); err != nil {
		vk.DestroyDevice(device, nil)
		return nil, errors.Wrap(err, "vk.CreatePipelineCache()")
	}
	d.passes = newRenderPassCache(device)

	d.log.WithFields(logrus.Fields{
		"graphicsFamily": graphics,
		"presentFamily":  present,
	}).Info("logical device created")
	return d, nil
}

func (d *Device) initRegistries() {
	d.queues = newRegistry[vk.Queue](&d.ids)
	d.buffers = newRegistry[vk.Buffer](&d.ids)
	d.images = newRegistry[vk.Image](&d.ids)
	d.views = newRegistry[vk.ImageView](&d.ids)
	d.samplers = newRegistry[vk.Sampler](&d.ids)
	d.commandPools = newRegistry[vk.CommandPool](&d.ids)
	d.commandBuffers = newRegistry[vk.CommandBuffer](&d.ids)
	d.fences = newRegistry[vk.Fence](&d.ids)
	d.semaphores = newRegistry[vk.Semaphore](&d.ids)
	d.swapchains = newRegistry[*swapchain](&d.ids)
	d.descriptorPools = newRegistry[*descriptorPool](&d.ids)
	d.setLayouts = newRegistry[vk.DescriptorSetLayout](&d.ids)
	d.sets = newRegistry[vk.DescriptorSet](&d.ids)
	d.shaders = newRegistry[vk.ShaderModule](&d.ids)
	d.pipelineLayouts = newRegistry[vk.PipelineLayout](&d.ids)
	d.pipelines = newRegistry[vk.Pipeline](&d.ids)
}

// Name implements gfx.Device.
func (d *Device) Name() string {
	return d.name
}

// GraphicsQueue implements gfx.QueueDevice.
func (d *Device) GraphicsQueue() gfx.Queue {
	return d.graphicsQueue
}

// PresentQueue implements gfx.QueueDevice.
func (d *Device) PresentQueue() gfx.Queue {
	return d.presentQueue
}

// QueueFamilies implements gfx.QueueDevice.
func (d *Device) QueueFamilies() (graphics, present uint32) {
	return d.graphicsFamily, d.presentFamily
}

// Limits implements gfx.QueueDevice.
func (d *Device) Limits() gfx.Limits {
	return d.limits
}

// WaitIdle implements gfx.QueueDevice.
func (d *Device) WaitIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(d.device)); err != nil {
		return errors.Wrap(err, "vk.DeviceWaitIdle()")
	}
	return nil
}

// Release destroys the logical device. Objects still registered are
// destroyed first and reported as leaks.
func (d *Device) Release() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)

	leaked := 0
	for _, p := range d.pipelines.drain() {
		vk.DestroyPipeline(d.device, p, nil)
		leaked++
	}
	for _, l := range d.pipelineLayouts.drain() {
		vk.DestroyPipelineLayout(d.device, l, nil)
		leaked++
	}
	for _, s := range d.shaders.drain() {
		vk.DestroyShaderModule(d.device, s, nil)
		leaked++
	}
	for _, p := range d.descriptorPools.drain() {
		vk.DestroyDescriptorPool(d.device, p.pool, nil)
		leaked++
	}
	for _, l := range d.setLayouts.drain() {
		vk.DestroyDescriptorSetLayout(d.device, l, nil)
		leaked++
	}
	for _, s := range d.samplers.drain() {
		vk.DestroySampler(d.device, s, nil)
		leaked++
	}
	for _, p := range d.commandPools.drain() {
		vk.DestroyCommandPool(d.device, p, nil)
		leaked++
	}
	for _, f := range d.fences.drain() {
		vk.DestroyFence(d.device, f, nil)
		leaked++
	}
	for _, s := range d.semaphores.drain() {
		vk.DestroySemaphore(d.device, s, nil)
		leaked++
	}
	d.passes.release()
	for _, v := range d.views.drain() {
		vk.DestroyImageView(d.device, v, nil)
		leaked++
	}
	for _, s := range d.swapchains.drain() {
		vk.DestroySwapchain(d.device, s.swapchain, nil)
		leaked++
	}
	if leaked > 0 {
		d.log.WithField("objects", leaked).Warn("device released with live objects")
	}

	vk.DestroyPipelineCache(d.device, d.pipelineCache, nil)
	vk.DestroyDevice(d.device, nil)
	d.device = nil
	d.log.Info("logical device destroyed")
}

func (d *Device) queue(q gfx.Queue) (vk.Queue, error) {
	queue, ok := d.queues.get(uint64(q))
	if !ok {
		return nil, errors.Errorf("vkr: unknown queue %d", q)
	}
	return queue, nil
}
