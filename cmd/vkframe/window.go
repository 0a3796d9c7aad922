package main

import (
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/vkr"
	"github.com/veandco/go-sdl2/sdl"
)

func newWindow(title string, width, height uint32) (*window, error) {
	w, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, err
	}
	return &window{Window: w}, nil
}

// window adapts an SDL window to the renderer. Resize events are recorded by
// the event loop and consumed by the renderer.
type window struct {
	*sdl.Window
	resized bool
}

var (
	_ renderer.Window = (*window)(nil)
	_ vkr.Surface     = (*window)(nil)
)

func (w *window) Extent() gfx.Extent2D {
	if w.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gfx.Extent2D{}
	}
	width, height := w.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *window) Resized() bool {
	resized := w.resized
	w.resized = false
	return resized
}

// handle records window events. It reports false once the window is asked
// to close.
func (w *window) handle(event sdl.Event) bool {
	switch et := event.(type) {
	case *sdl.KeyboardEvent:
		if et.Keysym.Sym == sdl.K_ESCAPE {
			return false
		}
	case *sdl.QuitEvent:
		return false
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_RESTORED:
			w.resized = true
		}
	}
	return true
}
