package renderer_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploader(t *testing.T, dev *gfxtest.Device) (*renderer.Uploader, *renderer.DeviceMemoryManager) {
	mem := newMemory(t, dev)
	return renderer.NewUploader(mem, newImmediate(t, dev), testLogger()), mem
}

func testMesh(vertices, indices int) ([]byte, []uint32) {
	rng := rand.New(rand.NewSource(42))
	vb := make([]byte, vertices*48)
	rng.Read(vb)
	ib := make([]uint32, indices)
	for i := range ib {
		ib[i] = uint32(rng.Intn(vertices))
	}
	return vb, ib
}

func TestUploadMeshRoundTrip(t *testing.T) {
	dev := gfxtest.NewDevice()
	dev.CompletionDelay = time.Millisecond
	up, mem := newUploader(t, dev)

	vertices, indices := testMesh(100, 300)
	mesh, err := up.UploadMesh(vertices, indices)
	require.NoError(t, err)
	defer mesh.Release()

	assert.Equal(t, uint32(300), mesh.IndexCount)
	assert.Equal(t, 2, mem.Stats().Buffers, "staging buffer destroyed")

	gotVertices, err := up.Readback(mesh.Vertex, uint64(len(vertices)))
	require.NoError(t, err)
	assert.Equal(t, vertices, gotVertices)

	gotIndices, err := up.Readback(mesh.Index, uint64(len(indices)*4))
	require.NoError(t, err)
	assert.Equal(t, renderer.IndexBytes(indices), gotIndices)

	assert.Equal(t, 2, mem.Stats().Buffers, "readback buffers destroyed")
	requireNoViolations(t, dev)
}

func TestUploadMeshStagingLayout(t *testing.T) {
	dev := gfxtest.NewDevice()
	up, _ := newUploader(t, dev)

	vertices := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	indices := []uint32{0, 1, 2}
	mesh, err := up.UploadMesh(vertices, indices)
	require.NoError(t, err)
	defer mesh.Release()

	assert.Equal(t, vertices, dev.BufferData(mesh.Vertex.Handle()))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, dev.BufferData(mesh.Index.Handle()))
	assert.Equal(t, []string{"copy", "copy"}, dev.Executed())
}

func TestUploadMeshDeviceAddress(t *testing.T) {
	dev := gfxtest.NewDevice()
	up, _ := newUploader(t, dev)
	vertices, indices := testMesh(3, 3)

	mesh, err := up.UploadMesh(vertices, indices)
	require.NoError(t, err)
	assert.Zero(t, mesh.VertexAddress, "device without addresses")
	mesh.Release()

	dev.DeviceAddresses = true
	mesh, err = up.UploadMesh(vertices, indices)
	require.NoError(t, err)
	defer mesh.Release()
	assert.NotZero(t, mesh.VertexAddress)
	assert.NotZero(t, mesh.Vertex.Usage()&gfx.BufferUsageShaderDeviceAddress)
	assert.Empty(t, dev.Violations())
}

func TestUploadEmptyMesh(t *testing.T) {
	dev := gfxtest.NewDevice()
	up, mem := newUploader(t, dev)

	_, err := up.UploadMesh(nil, []uint32{0})
	assert.True(t, renderer.IsContract(err))
	_, err = up.UploadMesh([]byte{1, 2, 3, 4}, nil)
	assert.True(t, renderer.IsContract(err))
	assert.Zero(t, mem.Stats().Buffers)
}

func TestIndexBytes(t *testing.T) {
	assert.Nil(t, renderer.IndexBytes(nil))
	assert.Equal(t, []byte{0xff, 0, 0, 0, 0, 1, 0, 0}, renderer.IndexBytes([]uint32{0xff, 0x100}))
}

func BenchmarkUploadMesh(b *testing.B) {
	dev := gfxtest.NewDevice()
	mem, _ := renderer.NewDeviceMemoryManager(dev)
	defer mem.Release()
	ic, _ := renderer.NewImmediateCommand(dev, 0, dev.GraphicsQueue(), time.Second)
	defer ic.Release()
	up := renderer.NewUploader(mem, ic, testLogger())
	vertices, indices := testMesh(1000, 3000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mesh, err := up.UploadMesh(vertices, indices)
		if err != nil {
			b.Fatal(err)
		}
		mesh.Release()
	}
}
