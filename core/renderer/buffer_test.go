// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"bytes"
	"testing"

	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignmentSize(t *testing.T) {
	cases := []struct {
		size, align, want uint64
	}{
		{64, 256, 256},
		{300, 256, 512},
		{256, 256, 256},
		{257, 256, 512},
		{1, 1, 1},
		{10, 0, 10},
		{48, 16, 48},
		{100, 24, 120},
	}
	for _, c := range cases {
		got := renderer.AlignmentSize(c.size, c.align)
		assert.Equal(t, c.want, got, "AlignmentSize(%d, %d)", c.size, c.align)
		if c.align > 0 {
			assert.Zero(t, got%c.align)
			assert.True(t, got >= c.size && got < c.size+c.align)
		}
	}
}

func newUniformBuffer(t *testing.T, mem *renderer.DeviceMemoryManager, size, count, align uint64) *renderer.Buffer {
	buf, err := renderer.NewBuffer(mem, renderer.BufferInfo{
		InstanceSize:       size,
		InstanceCount:      count,
		Usage:              gfx.BufferUsageUniform,
		Memory:             gfx.MemoryUsageCPUToGPU,
		MinOffsetAlignment: align,
	})
	require.NoError(t, err)
	t.Cleanup(buf.Release)
	return buf
}

func TestBufferWriteToIndex(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	buf := newUniformBuffer(t, mem, 64, 3, 256)

	assert.Equal(t, uint64(256), buf.Alignment())
	assert.Equal(t, uint64(192), buf.TotalBytes())
	assert.Equal(t, uint64(768), buf.AllocatedBytes())
	assert.False(t, buf.Mapped())

	record := bytes.Repeat([]byte{0xAB}, 64)
	require.NoError(t, buf.WriteToIndex(record, 1))
	assert.True(t, buf.Mapped(), "first write maps the buffer")

	data := dev.BufferData(buf.Handle())
	assert.Equal(t, record, data[256:320])
	assert.Equal(t, make([]byte, 256), data[:256])
	assert.Equal(t, make([]byte, 768-320), data[320:])

	got, err := buf.Read(256, 64)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestBufferLargeInstanceAlignment(t *testing.T) {
	dev := gfxtest.NewDevice()
	buf := newUniformBuffer(t, newMemory(t, dev), 300, 2, 256)

	assert.Equal(t, uint64(512), buf.Alignment())
	require.NoError(t, buf.WriteToIndex(bytes.Repeat([]byte{1}, 300), 1))
	data := dev.BufferData(buf.Handle())
	assert.Equal(t, byte(1), data[512])
	assert.Equal(t, byte(0), data[511])
}

func TestBufferWriteToIndexOutOfRange(t *testing.T) {
	dev := gfxtest.NewDevice()
	buf := newUniformBuffer(t, newMemory(t, dev), 64, 3, 256)

	err := buf.WriteToIndex(make([]byte, 64), 3)
	require.Error(t, err)
	assert.True(t, renderer.IsContract(err))

	err = buf.WriteToIndex(make([]byte, 65), 0)
	require.Error(t, err)
	assert.True(t, renderer.IsContract(err))

	assert.False(t, buf.Mapped(), "rejected writes must not map")
}

func TestBufferWriteOverflow(t *testing.T) {
	dev := gfxtest.NewDevice()
	buf := newUniformBuffer(t, newMemory(t, dev), 16, 1, 0)

	require.NoError(t, buf.Write(make([]byte, 16), 0))
	err := buf.Write(make([]byte, 8), 12)
	assert.True(t, renderer.IsContract(err))
}

func TestBufferWrapAroundOffset(t *testing.T) {
	dev := gfxtest.NewDevice()
	buf := newUniformBuffer(t, newMemory(t, dev), 256, 1, 0)

	var err error
	require.NotPanics(t, func() { err = buf.Write(make([]byte, 8), ^uint64(0)-3) })
	assert.True(t, renderer.IsContract(err))

	require.NotPanics(t, func() { _, err = buf.Read(^uint64(0)-3, 8) })
	assert.True(t, renderer.IsContract(err))

	require.NotPanics(t, func() { err = buf.Write(nil, 257) })
	assert.True(t, renderer.IsContract(err))

	assert.NoError(t, buf.Write(nil, 256))
}

func TestBufferDeviceLocalWrite(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	buf, err := renderer.NewBuffer(mem, renderer.BufferInfo{
		InstanceSize:  16,
		InstanceCount: 1,
		Usage:         gfx.BufferUsageStorage,
		Memory:        gfx.MemoryUsageGPUOnly,
	})
	require.NoError(t, err)
	defer buf.Release()

	err = buf.Write(make([]byte, 16), 0)
	assert.True(t, renderer.IsContract(err))
}

func TestBufferRelease(t *testing.T) {
	dev := gfxtest.NewDevice()
	mem := newMemory(t, dev)
	buf, err := renderer.NewBuffer(mem, renderer.BufferInfo{
		InstanceSize:  32,
		InstanceCount: 4,
		Usage:         gfx.BufferUsageUniform,
		Memory:        gfx.MemoryUsageCPUToGPU,
	})
	require.NoError(t, err)
	require.NoError(t, buf.Write([]byte{1, 2, 3}, 0))

	buf.Release()
	buf.Release()
	assert.Zero(t, mem.Stats().Buffers)
	assert.Empty(t, dev.Violations())

	assert.True(t, renderer.IsContract(buf.Write([]byte{1}, 0)))
}

func TestNewBufferZeroSize(t *testing.T) {
	dev := gfxtest.NewDevice()
	_, err := renderer.NewBuffer(newMemory(t, dev), renderer.BufferInfo{
		InstanceSize:  0,
		InstanceCount: 1,
	})
	assert.True(t, renderer.IsContract(err))
}

func BenchmarkAlignmentSize(b *testing.B) {
	for i := 0; i < b.N; i++ {
		renderer.AlignmentSize(uint64(i), 256)
	}
}
