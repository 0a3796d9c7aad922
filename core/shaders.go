package core

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/utility/kar"
	"github.com/gobuffalo/packd"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

const shaderSuffix = ".spv"

// ErrShaderNotFound is returned when a library has no shader by that name.
var ErrShaderNotFound = errors.New("shader not found")

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

// ShaderTypeOf derives the type from a logical name such as "mesh.vert".
func ShaderTypeOf(name string) ShaderType {
	switch filepath.Ext(name) {
	case ".vert":
		return VertexShaderType
	case ".frag":
		return FragmentShaderType
	}
	return UnknownShaderType
}

// Stage maps the type to its pipeline stage.
func (t ShaderType) Stage() gfx.ShaderStage {
	switch t {
	case VertexShaderType:
		return gfx.ShaderStageVertex
	case FragmentShaderType:
		return gfx.ShaderStageFragment
	}
	return 0
}

// ShaderLibrary provides compiled shaders by logical name, "mesh.vert" for
// the file mesh.vert.spv.
type ShaderLibrary interface {
	renderer.ShaderCompiler

	// Names lists every shader the library holds.
	Names() ([]string, error)

	Close() error
}

// logicalName returns the shader name of a compiled shader file. The file
// name must not contain more than two dots, the first is always the name of
// the shader, second is type, and the third one ensures that the shader is
// compiled. Other files are rejected.
func logicalName(file string) (string, bool) {
	base := filepath.Base(file)
	if !strings.HasSuffix(base, shaderSuffix) {
		return "", false
	}
	shader := strings.TrimSuffix(base, shaderSuffix)
	nodes := strings.Split(shader, ".")
	if len(nodes) != 2 || nodes[0] == "" {
		return "", false
	}
	if ShaderTypeOf(shader) == UnknownShaderType {
		return "", false
	}
	return shader, true
}

//go:generate glslc ../shaders/mesh.vert -o ../shaders/mesh.vert.spv
//go:generate glslc ../shaders/mesh.frag -o ../shaders/mesh.frag.spv

// embeddedShaders is packed into the binary by the packr tool and read from
// the shaders directory of the source tree otherwise.
var embeddedShaders = packr.NewBox("../shaders")

// NewShaderLibrary opens the archive when one is configured, the embedded
// shaders when asked for, the shader directory otherwise.
func NewShaderLibrary(cfg RendererConfiguration) (ShaderLibrary, error) {
	if cfg.ShaderArchive != "" {
		lib, err := OpenArchiveShaders(cfg.ShaderArchive)
		if err != nil {
			return nil, err
		}
		return lib, nil
	}
	if cfg.ShaderEmbedded {
		return NewBoxShaders(embeddedShaders), nil
	}
	lib, err := NewDirectoryShaders(cfg.ShaderDirectory)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

// NewDirectoryShaders reads shaders from compiled files in dir.
func NewDirectoryShaders(dir string) (*DirectoryShaders, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "shader directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("shader directory: %s is not a directory", dir)
	}
	return &DirectoryShaders{dir: dir}, nil
}

// DirectoryShaders is a shader library on disk.
type DirectoryShaders struct {
	dir string
}

// Shader implements renderer.ShaderCompiler.
func (d *DirectoryShaders) Shader(name string) ([]byte, error) {
	code, err := ioutil.ReadFile(filepath.Join(d.dir, name+shaderSuffix))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrShaderNotFound, name)
	}
	return code, err
}

// Names walks the directory for compiled shader files.
func (d *DirectoryShaders) Names() ([]string, error) {
	var names []string
	if err := filepath.Walk(d.dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.dir, path)
		if err != nil {
			return err
		}
		if name, ok := logicalName(rel); ok {
			names = append(names, filepath.ToSlash(filepath.Join(filepath.Dir(rel), name)))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close implements ShaderLibrary.
func (d *DirectoryShaders) Close() error {
	return nil
}

// NewBoxShaders serves shaders packed into the binary by packr.
func NewBoxShaders(box packr.Box) *BoxShaders {
	return &BoxShaders{box: box}
}

// BoxShaders is a shader library inside a packr box.
type BoxShaders struct {
	box packr.Box
}

// Shader implements renderer.ShaderCompiler.
func (b *BoxShaders) Shader(name string) ([]byte, error) {
	if !b.box.Has(name + shaderSuffix) {
		return nil, errors.Wrap(ErrShaderNotFound, name)
	}
	return b.box.Find(name + shaderSuffix)
}

// Names walks the box for compiled shader files.
func (b *BoxShaders) Names() ([]string, error) {
	var names []string
	if err := b.box.Walk(func(path string, f packd.File) error {
		if name, ok := logicalName(path); ok {
			names = append(names, filepath.ToSlash(filepath.Join(filepath.Dir(path), name)))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close implements ShaderLibrary.
func (b *BoxShaders) Close() error {
	return nil
}

// OpenArchiveShaders memory maps a kar archive of shaders.
func OpenArchiveShaders(path string) (*ArchiveShaders, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "shader archive")
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "shader archive %s", path)
	}
	return &ArchiveShaders{file: r, archive: ar}, nil
}

// ArchiveShaders is a shader library in a kar archive.
type ArchiveShaders struct {
	file    *mmap.ReaderAt
	archive *kar.Archive
}

// Shader implements renderer.ShaderCompiler.
func (a *ArchiveShaders) Shader(name string) ([]byte, error) {
	code, err := a.archive.ReadAll(name + shaderSuffix)
	if errors.Cause(err) == kar.ErrNotFound {
		return nil, errors.Wrap(ErrShaderNotFound, name)
	}
	return code, err
}

// Names lists the compiled shaders in the archive.
func (a *ArchiveShaders) Names() ([]string, error) {
	var names []string
	for _, n := range a.archive.Names() {
		if name, ok := logicalName(n); ok {
			names = append(names, filepath.ToSlash(filepath.Join(filepath.Dir(n), name)))
		}
	}
	return names, nil
}

// Close unmaps the archive.
func (a *ArchiveShaders) Close() error {
	return a.file.Close()
}

// PreloadShaders reads the named shaders concurrently, or every shader the
// library has when no names are given.
func PreloadShaders(lib ShaderLibrary, names ...string) (*ShaderCache, error) {
	if len(names) == 0 {
		var err error
		if names, err = lib.Names(); err != nil {
			return nil, err
		}
	}

	cache := &ShaderCache{code: make(map[string][]byte, len(names))}
	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			code, err := lib.Shader(name)
			if err != nil {
				return errors.Wrapf(err, "preload %s", name)
			}
			cache.mutex.Lock()
			cache.code[name] = code
			cache.mutex.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cache, nil
}

// ShaderCache holds preloaded shader code in memory.
type ShaderCache struct {
	mutex sync.RWMutex
	code  map[string][]byte
}

// Shader implements renderer.ShaderCompiler.
func (c *ShaderCache) Shader(name string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	code, ok := c.code[name]
	if !ok {
		return nil, errors.Wrap(ErrShaderNotFound, name)
	}
	return code, nil
}

// Len returns the number of cached shaders.
func (c *ShaderCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.code)
}
