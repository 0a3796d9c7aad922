package core

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/utility/kar"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testShaders = packr.NewBox("./testdata/shaders")

func TestLogicalName(t *testing.T) {
	tests := []struct {
		file string
		name string
		ok   bool
	}{
		{"mesh.vert.spv", "mesh.vert", true},
		{"dir/mesh.frag.spv", "mesh.frag", true},
		{"mesh.v2.vert.spv", "", false},
		{"mesh.geom.spv", "", false},
		{"mesh.vert", "", false},
		{".vert.spv", "", false},
	}
	for _, tt := range tests {
		name, ok := logicalName(tt.file)
		assert.Equal(t, tt.ok, ok, tt.file)
		assert.Equal(t, tt.name, name, tt.file)
	}
}

func TestShaderType(t *testing.T) {
	assert.Equal(t, VertexShaderType, ShaderTypeOf("mesh.vert"))
	assert.Equal(t, FragmentShaderType, ShaderTypeOf("mesh.frag"))
	assert.Equal(t, UnknownShaderType, ShaderTypeOf("mesh"))
	assert.Equal(t, gfx.ShaderStageVertex, VertexShaderType.Stage())
	assert.Equal(t, gfx.ShaderStageFragment, FragmentShaderType.Stage())
}

func TestDirectoryShaders(t *testing.T) {
	lib, err := NewDirectoryShaders("testdata/shaders")
	require.NoError(t, err)
	defer lib.Close()

	names, err := lib.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"mesh.frag", "mesh.vert"}, names)

	code, err := lib.Shader("mesh.vert")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x03\x02\x23\x07vert"), code)

	_, err = lib.Shader("sky.vert")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))

	_, err = NewDirectoryShaders("testdata/nope")
	assert.Error(t, err)
	_, err = NewDirectoryShaders("testdata/test.env")
	assert.Error(t, err)
}

func TestBoxShaders(t *testing.T) {
	lib := NewBoxShaders(testShaders)

	names, err := lib.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"mesh.frag", "mesh.vert"}, names)

	code, err := lib.Shader("mesh.frag")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x03\x02\x23\x07frag"), code)

	_, err = lib.Shader("sky.frag")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))
}

func writeShaderArchive(t *testing.T) string {
	builder, err := kar.NewBuilder(kar.Header{Author: "test", Version: 1})
	require.NoError(t, err)
	defer builder.Close()

	for _, f := range []string{"mesh.vert.spv", "mesh.frag.spv", "notes.txt"} {
		data, err := ioutil.ReadFile(filepath.Join("testdata/shaders", f))
		require.NoError(t, err)
		require.NoError(t, builder.Add(f, bytes.NewReader(data)))
	}

	path := filepath.Join(t.TempDir(), "shaders.kar")
	out, err := os.Create(path)
	require.NoError(t, err)
	_, err = builder.WriteTo(out)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	return path
}

func TestEmbeddedShaderLibrary(t *testing.T) {
	embedded := embeddedShaders
	embeddedShaders = testShaders
	defer func() { embeddedShaders = embedded }()

	lib, err := NewShaderLibrary(RendererConfiguration{
		ShaderDirectory: "does-not-exist",
		ShaderEmbedded:  true,
	})
	require.NoError(t, err)
	defer lib.Close()
	require.IsType(t, &BoxShaders{}, lib)

	cache, err := PreloadShaders(lib)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestArchiveShaders(t *testing.T) {
	lib, err := NewShaderLibrary(RendererConfiguration{ShaderArchive: writeShaderArchive(t)})
	require.NoError(t, err)
	defer lib.Close()
	require.IsType(t, &ArchiveShaders{}, lib)

	names, err := lib.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"mesh.frag", "mesh.vert"}, names)

	code, err := lib.Shader("mesh.vert")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x03\x02\x23\x07vert"), code)

	_, err = lib.Shader("sky.vert")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))
}

func TestOpenArchiveShadersRejectsOtherFiles(t *testing.T) {
	_, err := OpenArchiveShaders("testdata/test.env")
	assert.Equal(t, kar.ErrFileFormat, errors.Cause(err))
}

func TestPreloadShaders(t *testing.T) {
	lib, err := NewShaderLibrary(RendererConfiguration{ShaderDirectory: "testdata/shaders"})
	require.NoError(t, err)

	cache, err := PreloadShaders(lib)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	code, err := cache.Shader("mesh.frag")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x03\x02\x23\x07frag"), code)

	_, err = PreloadShaders(lib, "mesh.vert", "sky.vert")
	assert.Equal(t, ErrShaderNotFound, errors.Cause(err))
}
