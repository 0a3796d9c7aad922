package renderer

import (
	"time"

	"github.com/devblok/vkframe/gfx"
)

// Configuration describes the renderer configuration
type Configuration struct {
	// FenceTimeout bounds every wait on a render or immediate fence.
	// Exceeding it is fatal.
	FenceTimeout time.Duration

	// PreferredFormat is chosen for the swapchain when the surface offers
	// it with the sRGB non-linear color space.
	PreferredFormat gfx.Format

	// PresentMode is chosen when the surface offers it, FIFO otherwise.
	PresentMode gfx.PresentMode

	// ClearColor is the color the draw image is cleared to every frame.
	ClearColor [4]float32

	Descriptors DescriptorConfiguration
}

// DescriptorConfiguration tunes descriptor pool growth.
type DescriptorConfiguration struct {
	// MaxSets caps the number of sets a single pool is created with.
	MaxSets uint32

	// GrowthFactor multiplies the sets per pool each time a new pool is needed.
	GrowthFactor float64
}

// DefaultConfiguration returns the configuration used when nothing is overridden.
func DefaultConfiguration() Configuration {
	return Configuration{
		FenceTimeout:    time.Second,
		PreferredFormat: gfx.FormatR8G8B8A8Unorm,
		PresentMode:     gfx.PresentModeMailbox,
		ClearColor:      [4]float32{0, 0, 0, 1},
		Descriptors: DescriptorConfiguration{
			MaxSets:      4096,
			GrowthFactor: 1.5,
		},
	}
}
