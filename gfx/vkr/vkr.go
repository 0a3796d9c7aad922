// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx device interfaces over Vulkan.
package vkr

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// Surface is a window Vulkan can present to. *sdl.Window satisfies it.
type Surface interface {
	VulkanGetInstanceExtensions() []string
	VulkanCreateSurface(instance interface{}) (unsafe.Pointer, error)
}

// InstanceConfig describes the Vulkan instance to create.
type InstanceConfig struct {
	ApplicationName string
	Extensions      []string
	Layers          []string
	Debug           bool
}

// Instance is a Vulkan API instance together with the physical devices it sees.
type Instance struct {
	log       logrus.FieldLogger
	instance  vk.Instance
	available []vk.PhysicalDevice
}

// NewInstance loads Vulkan through procAddr, or the default loader when
// procAddr is nil, and creates an instance.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfig, log logrus.FieldLogger) (*Instance, error) {
	if cfg.Debug {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	name := safeString(cfg.ApplicationName)
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   name,
		PEngineName:        "vkframe\x00",
	}

	extensions := safeStrings(cfg.Extensions)
	layers := safeStrings(cfg.Layers)
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateInstance()")
	}
	vk.InitInstance(instance)

	available, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	if len(available) == 0 {
		vk.DestroyInstance(instance, nil)
		return nil, errors.New("vkr: no Vulkan capable devices")
	}

	log.WithField("devices", len(available)).Info("vulkan instance created")
	return &Instance{
		log:       log,
		instance:  instance,
		available: available,
	}, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	available := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, available)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	return available, nil
}

// Handle returns the underlying vk.Instance, as expected by
// Surface.VulkanCreateSurface.
func (i *Instance) Handle() interface{} {
	return i.instance
}

// CreateSurface creates a presentation surface for the window.
func (i *Instance) CreateSurface(window Surface) (vk.Surface, error) {
	ptr, err := window.VulkanCreateSurface(i.instance)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "VulkanCreateSurface()")
	}
	return vk.SurfaceFromPointer(uintptr(ptr)), nil
}

// DestroySurface destroys a surface made by CreateSurface.
func (i *Instance) DestroySurface(surface vk.Surface) {
	if surface != vk.NullSurface {
		vk.DestroySurface(i.instance, surface, nil)
	}
}

// Release destroys the instance. Devices and surfaces must be gone already.
func (i *Instance) Release() {
	if i.instance == nil {
		return
	}
	vk.DestroyInstance(i.instance, nil)
	i.instance = nil
	i.available = nil
}

// queueFamilies finds a graphics family and a family able to present to the
// surface, preferring one family that does both.
func queueFamilies(pd vk.PhysicalDevice, surface vk.Surface) (graphics, present uint32, ok bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	if count == 0 {
		return 0, 0, false
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	var graphicsFound, presentFound bool
	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &supportsPresent)

		isGraphics := families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if isGraphics && supportsPresent.B() {
			return i, i, true
		}
		if isGraphics && !graphicsFound {
			graphics, graphicsFound = i, true
		}
		if supportsPresent.B() && !presentFound {
			present, presentFound = i, true
		}
	}
	return graphics, present, graphicsFound && presentFound
}

// pickPhysicalDevice prefers a discrete GPU and otherwise takes the first
// device with usable queue families.
func (i *Instance) pickPhysicalDevice(surface vk.Surface) (vk.PhysicalDevice, error) {
	var fallback vk.PhysicalDevice
	for _, pd := range i.available {
		if _, _, ok := queueFamilies(pd, surface); !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return pd, nil
		}
		if fallback == nil {
			fallback = pd
		}
	}
	if fallback == nil {
		return nil, errors.New("vkr: no device can render and present to the surface")
	}
	return fallback, nil
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytes as words without copying.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
