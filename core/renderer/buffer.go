// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"github.com/devblok/vkframe/gfx"
	"github.com/pkg/errors"
)

// AlignmentSize rounds size up to the next multiple of minAlignment.
// A zero alignment leaves the size unchanged.
func AlignmentSize(size, minAlignment uint64) uint64 {
	if minAlignment > 0 {
		return (size + minAlignment - 1) / minAlignment * minAlignment
	}
	return size
}

// BufferInfo describes a buffer of instanceCount records of instanceSize bytes.
type BufferInfo struct {
	InstanceSize  uint64
	InstanceCount uint64
	Usage         gfx.BufferUsage
	Memory        gfx.MemoryUsage

	// MinOffsetAlignment pads every record, typically to the device's
	// uniform or storage buffer offset alignment.
	MinOffsetAlignment uint64
}

// NewBuffer allocates a buffer. The allocation holds instanceCount aligned
// records so every per-index write stays inside it.
func NewBuffer(mem *DeviceMemoryManager, info BufferInfo) (*Buffer, error) {
	if info.InstanceSize == 0 || info.InstanceCount == 0 {
		return nil, contractf("NewBuffer", "zero sized buffer (%d x %d)", info.InstanceCount, info.InstanceSize)
	}

	alignment := AlignmentSize(info.InstanceSize, info.MinOffsetAlignment)
	size := alignment * info.InstanceCount
	handle, err := mem.Allocator().CreateBuffer(gfx.BufferInfo{
		Size:   size,
		Usage:  info.Usage,
		Memory: info.Memory,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vmaCreateBuffer()")
	}

	return &Buffer{
		memory:        mem,
		handle:        handle,
		usage:         info.Usage,
		memoryUsage:   info.Memory,
		instanceSize:  info.InstanceSize,
		instanceCount: info.InstanceCount,
		alignment:     alignment,
		size:          size,
	}, nil
}

// Buffer is a device buffer holding contiguous, alignment padded copies of
// a fixed size record. Host visible buffers are mapped on first write.
type Buffer struct {
	memory *DeviceMemoryManager
	handle gfx.Buffer
	mapped []byte

	usage       gfx.BufferUsage
	memoryUsage gfx.MemoryUsage

	instanceSize  uint64
	instanceCount uint64
	alignment     uint64
	size          uint64
}

// Handle returns the device buffer handle.
func (b *Buffer) Handle() gfx.Buffer {
	return b.handle
}

// InstanceSize returns the unpadded record size.
func (b *Buffer) InstanceSize() uint64 {
	return b.instanceSize
}

// InstanceCount returns the number of records.
func (b *Buffer) InstanceCount() uint64 {
	return b.instanceCount
}

// Alignment returns the padded record size, the stride between records.
func (b *Buffer) Alignment() uint64 {
	return b.alignment
}

// TotalBytes returns instanceCount * instanceSize.
func (b *Buffer) TotalBytes() uint64 {
	return b.instanceCount * b.instanceSize
}

// AllocatedBytes returns the size of the device allocation.
func (b *Buffer) AllocatedBytes() uint64 {
	return b.size
}

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gfx.BufferUsage {
	return b.usage
}

// Mapped reports whether the buffer memory is mapped.
func (b *Buffer) Mapped() bool {
	return b.mapped != nil
}

// Map maps the whole buffer. Mapping a mapped buffer is a no-op.
func (b *Buffer) Map() error {
	if b.handle == 0 {
		return contractf("Buffer.Map", "buffer is released")
	}
	if b.mapped != nil {
		return nil
	}
	if !b.memoryUsage.HostVisible() {
		return contractf("Buffer.Map", "buffer memory is not host visible")
	}
	data, err := b.memory.Allocator().MapBuffer(b.handle)
	if err != nil {
		return errors.Wrap(err, "vmaMapMemory()")
	}
	b.mapped = data
	return nil
}

// Unmap removes the mapping, if any.
func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.memory.Allocator().UnmapBuffer(b.handle)
	b.mapped = nil
}

// Write copies data into the buffer at byte offset.
func (b *Buffer) Write(data []byte, offset uint64) error {
	return b.write("Buffer.Write", data, offset)
}

// WriteToIndex copies one record into slot index, at index * Alignment().
func (b *Buffer) WriteToIndex(data []byte, index uint64) error {
	if index >= b.instanceCount {
		return contractf("Buffer.WriteToIndex", "index %d out of range for %d instances", index, b.instanceCount)
	}
	if uint64(len(data)) > b.instanceSize {
		return contractf("Buffer.WriteToIndex", "%d bytes exceed instance size %d", len(data), b.instanceSize)
	}
	return b.write("Buffer.WriteToIndex", data, index*b.alignment)
}

// write is the single path every host write goes through.
func (b *Buffer) write(op string, data []byte, offset uint64) error {
	if offset > b.size || uint64(len(data)) > b.size-offset {
		return contractf(op, "%d bytes at offset %d overflow buffer of %d bytes", len(data), offset, b.size)
	}
	if err := b.Map(); err != nil {
		return err
	}
	copy(b.mapped[offset:], data)
	return nil
}

// Read copies size bytes starting at offset out of a host visible buffer.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	if offset > b.size || size > b.size-offset {
		return nil, contractf("Buffer.Read", "%d bytes at offset %d overflow buffer of %d bytes", size, offset, b.size)
	}
	if err := b.Map(); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, b.mapped[offset:offset+size])
	return out, nil
}

// Release unmaps and destroys the buffer. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b.handle == 0 {
		return
	}
	b.Unmap()
	b.memory.Allocator().DestroyBuffer(b.handle)
	b.handle = 0
}
