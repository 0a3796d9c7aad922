package main

import (
	"flag"
	"math"
	"runtime"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/core/systems"
	"github.com/devblok/vkframe/gfx/vkr"
	"github.com/devblok/vkframe/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	envFile  = flag.String("env", ".env", "environment file with configuration overrides")
	embedded = flag.Bool("embedded-shaders", false, "use the shaders packed into the binary")
)

func main() {
	flag.Parse()

	configuration, err := core.LoadConfiguration(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	if *embedded {
		configuration.Renderer.ShaderEmbedded = true
	}
	log, err := core.NewLogger(configuration.Log)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.WithError(err).Fatal("sdl.Init()")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.WithError(err).Fatal("sdl.VulkanLoadLibrary()")
	}
	defer sdl.VulkanUnloadLibrary()

	if err := run(configuration, log); err != nil {
		log.WithError(err).Error("exiting")
	}
}

func run(configuration core.Configuration, log *logrus.Logger) error {
	win, err := newWindow(configuration.Instance.ApplicationName,
		configuration.Renderer.ScreenWidth,
		configuration.Renderer.ScreenHeight)
	if err != nil {
		return err
	}
	defer win.Destroy()

	instance, err := vkr.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfig{
		ApplicationName: configuration.Instance.ApplicationName,
		Extensions:      append(win.VulkanGetInstanceExtensions(), configuration.Instance.Extensions...),
		Layers:          configuration.Instance.Layers,
		Debug:           configuration.Instance.Debug,
	}, log)
	if err != nil {
		return err
	}
	defer instance.Release()

	surface, err := instance.CreateSurface(win)
	if err != nil {
		return err
	}
	defer instance.DestroySurface(surface)

	device, err := vkr.NewDevice(instance, surface, configuration.Renderer.DeviceExtensions, log)
	if err != nil {
		return err
	}
	defer device.Release()

	shaders, err := loadShaders(configuration.Renderer)
	if err != nil {
		return err
	}

	r, err := renderer.New(device, win, configuration.Renderer.Frame, log)
	if err != nil {
		return err
	}
	defer r.Release()

	mesh, err := systems.NewMeshRenderSystem(r, shaders, log)
	if err != nil {
		return err
	}
	r.AddRenderSystem(mesh)

	quad, err := mesh.AddMesh(model.Rectangle(), nil)
	if err != nil {
		return err
	}
	mesh.Camera().SetViewTarget(glm.Vec3{0, 0, -2}, glm.Vec3{}, glm.Vec3{0, -1, 0})

	var spin float32
	err = loop(configuration, r, win, func(timer *core.FrameTimer) {
		extent := r.Swapchain().Extent()
		if extent.Height > 0 {
			mesh.Camera().SetPerspectiveProjection(glm.DegToRad(50), float32(extent.Width)/float32(extent.Height), 0.1, 10)
		}
		spin += float32(timer.Delta().Seconds())
		quad.Object.SetRotation(glm.HomogRotate3DY(float32(math.Mod(float64(spin), 2*math.Pi))))
	}, log)

	if waitErr := r.WaitIdle(); waitErr != nil && err == nil {
		err = waitErr
	}
	return err
}

func loadShaders(cfg core.RendererConfiguration) (renderer.ShaderCompiler, error) {
	lib, err := core.NewShaderLibrary(cfg)
	if err != nil {
		return nil, err
	}
	defer lib.Close()
	cache, err := core.PreloadShaders(lib, systems.MeshVertexShader, systems.MeshFragmentShader)
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// loop polls window events and draws a frame on every fps tick until the
// window is closed.
func loop(configuration core.Configuration, r *renderer.Renderer, win *window, update func(*core.FrameTimer), log logrus.FieldLogger) error {
	time := core.NewTime(configuration.Time)
	defer time.Stop()
	timer := core.NewFrameTimer()
	logEvery := uint64(configuration.Time.FramesPerSecond)
	if logEvery == 0 {
		logEvery = 1000
	}

EventLoop:
	for {
		select {
		case <-time.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				if !win.handle(event) {
					break EventLoop
				}
			}
		case <-time.FpsTicker().C:
			timer.Tick()
			update(timer)
			status, err := r.Draw()
			if err != nil {
				return err
			}
			if status != renderer.FramePresented {
				log.WithField("status", status).Debug("frame not presented")
			}
			if timer.Frames()%logEvery == 0 {
				log.WithFields(logrus.Fields{
					"fps":   int(timer.Fps()),
					"frame": r.FrameNumber(),
				}).Debug("frame timing")
			}
		}
	}
	log.Info("event loop exited")
	return nil
}
