package renderer

import (
	"unsafe"

	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewUploader creates an uploader that copies through the immediate command.
func NewUploader(mem *DeviceMemoryManager, immediate *ImmediateCommand, log logrus.FieldLogger) *Uploader {
	return &Uploader{
		memory:    mem,
		immediate: immediate,
		log:       log.WithField("component", "uploader"),
	}
}

// Uploader moves host data into device local buffers through a staging buffer.
type Uploader struct {
	memory    *DeviceMemoryManager
	immediate *ImmediateCommand
	log       logrus.FieldLogger

	warnedAddress bool
}

// MeshBuffers are the device local buffers of one uploaded mesh.
type MeshBuffers struct {
	Vertex *Buffer
	Index  *Buffer

	// VertexAddress is the device address of the vertex buffer, zero when
	// the device cannot report addresses and the buffer has to be bound.
	VertexAddress uint64
	IndexCount    uint32
}

// Release destroys both buffers.
func (m *MeshBuffers) Release() {
	m.Vertex.Release()
	m.Index.Release()
}

// IndexBytes returns the host byte representation of 32-bit indices.
func IndexBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
}

// UploadMesh creates device local vertex and index buffers and fills them
// with one staging buffer holding the vertices at offset zero followed by
// the indices. The call blocks until the copy finished; the staging buffer
// is destroyed before returning.
func (u *Uploader) UploadMesh(vertices []byte, indices []uint32) (*MeshBuffers, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, contractf("Uploader.UploadMesh", "empty mesh (%d vertex bytes, %d indices)", len(vertices), len(indices))
	}
	vertexBytes := uint64(len(vertices))
	indexBytes := uint64(len(indices)) * 4

	vertex, err := NewBuffer(u.memory, BufferInfo{
		InstanceSize:  vertexBytes,
		InstanceCount: 1,
		Usage: gfx.BufferUsageStorage | gfx.BufferUsageVertex | gfx.BufferUsageTransferDst |
			gfx.BufferUsageTransferSrc | gfx.BufferUsageShaderDeviceAddress,
		Memory: gfx.MemoryUsageGPUOnly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}
	index, err := NewBuffer(u.memory, BufferInfo{
		InstanceSize:  indexBytes,
		InstanceCount: 1,
		Usage:         gfx.BufferUsageIndex | gfx.BufferUsageTransferDst | gfx.BufferUsageTransferSrc,
		Memory:        gfx.MemoryUsageGPUOnly,
	})
	if err != nil {
		vertex.Release()
		return nil, errors.Wrap(err, "index buffer")
	}

	mesh := &MeshBuffers{
		Vertex:     vertex,
		Index:      index,
		IndexCount: uint32(len(indices)),
	}
	if err := u.stage(mesh, vertices, IndexBytes(indices)); err != nil {
		mesh.Release()
		return nil, err
	}

	addr, err := u.memory.Device().BufferDeviceAddress(vertex.Handle())
	switch errors.Cause(err) {
	case nil:
		mesh.VertexAddress = addr
	case gfx.ErrUnsupported:
		if !u.warnedAddress {
			u.log.Warn("device addresses unsupported, vertex buffers will be bound")
			u.warnedAddress = true
		}
	default:
		mesh.Release()
		return nil, errors.Wrap(err, "vk.GetBufferDeviceAddress()")
	}
	return mesh, nil
}

func (u *Uploader) stage(mesh *MeshBuffers, vertices, indices []byte) error {
	vertexBytes := uint64(len(vertices))
	indexBytes := uint64(len(indices))

	staging, err := NewBuffer(u.memory, BufferInfo{
		InstanceSize:  vertexBytes + indexBytes,
		InstanceCount: 1,
		Usage:         gfx.BufferUsageTransferSrc,
		Memory:        gfx.MemoryUsageCPUOnly,
	})
	if err != nil {
		return errors.Wrap(err, "staging buffer")
	}
	defer staging.Release()

	if err := staging.Write(vertices, 0); err != nil {
		return err
	}
	if err := staging.Write(indices, vertexBytes); err != nil {
		return err
	}
	staging.Unmap()

	return u.immediate.Submit(func(cmd *Command) error {
		cmd.CopyBuffer(staging, mesh.Vertex, gfx.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vertexBytes,
		})
		cmd.CopyBuffer(staging, mesh.Index, gfx.BufferCopy{
			SrcOffset: vertexBytes,
			DstOffset: 0,
			Size:      indexBytes,
		})
		return cmd.Err()
	})
}

// Readback copies size bytes from the start of a device buffer into host
// memory. It blocks until the copy finished.
func (u *Uploader) Readback(src *Buffer, size uint64) ([]byte, error) {
	if size > src.AllocatedBytes() {
		return nil, contractf("Uploader.Readback", "%d bytes exceed buffer of %d bytes", size, src.AllocatedBytes())
	}
	dst, err := NewBuffer(u.memory, BufferInfo{
		InstanceSize:  size,
		InstanceCount: 1,
		Usage:         gfx.BufferUsageTransferDst,
		Memory:        gfx.MemoryUsageGPUToCPU,
	})
	if err != nil {
		return nil, errors.Wrap(err, "readback buffer")
	}
	defer dst.Release()

	err = u.immediate.Submit(func(cmd *Command) error {
		cmd.CopyBuffer(src, dst, gfx.BufferCopy{Size: size})
		return cmd.Err()
	})
	if err != nil {
		return nil, err
	}
	return dst.Read(0, size)
}
