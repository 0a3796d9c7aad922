package model

import (
	"sync"
	"unsafe"

	"github.com/devblok/vkframe/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Object is anything placed in the world with a position and rotation.
type Object interface {

	// SetPosition sets the object's current position in space.
	// Has to be thread-safe
	SetPosition(glm.Vec3)

	// Position gets the object's current position in space.
	// Has to be thread-safe
	Position() glm.Vec3

	// SetRotation sets the object's rotation matrix.
	// Has to be thread-safe
	SetRotation(glm.Mat4)

	// Rotation gets the object's rotation matrix.
	// Has to be thread-safe
	Rotation() glm.Mat4

	// World returns the model matrix, rotation first.
	World() glm.Mat4
}

// NewTransform returns a transform at the origin without rotation.
func NewTransform() *Transform {
	return &Transform{rotation: glm.Ident4()}
}

// Transform is the default Object implementation.
type Transform struct {
	mutex    sync.RWMutex
	position glm.Vec3
	rotation glm.Mat4
}

// SetPosition implements Object
func (t *Transform) SetPosition(p glm.Vec3) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.position = p
}

// Position implements Object
func (t *Transform) Position() glm.Vec3 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.position
}

// SetRotation implements Object
func (t *Transform) SetRotation(r glm.Mat4) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.rotation = r
}

// Rotation implements Object
func (t *Transform) Rotation() glm.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.rotation
}

// World implements Object
func (t *Transform) World() glm.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return glm.Translate3D(t.position.X(), t.position.Y(), t.position.Z()).Mul4(t.rotation)
}

// Vertex is a model vertex. The texture coordinates are split to pack
// the vertex into three 16 byte rows.
type Vertex struct {
	Position glm.Vec3
	UVX      float32
	Normal   glm.Vec3
	UVY      float32
	Color    glm.Vec4
}

// VertexSize is the size of one Vertex in bytes.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// VertexBytes returns the host byte representation of vertices without
// copying.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(VertexSize))
}

// VertexBindings describes the single interleaved vertex buffer.
func VertexBindings() []gfx.VertexBinding {
	return []gfx.VertexBinding{{
		Binding: 0,
		Stride:  VertexSize,
	}}
}

// VertexAttributes describes the Vertex fields by shader location.
func VertexAttributes() []gfx.VertexAttribute {
	return []gfx.VertexAttribute{
		{
			Binding:  0,
			Location: 0,
			Format:   gfx.FormatR32G32B32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   gfx.FormatR32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UVX)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   gfx.FormatR32G32B32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
		},
		{
			Binding:  0,
			Location: 3,
			Format:   gfx.FormatR32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UVY)),
		},
		{
			Binding:  0,
			Location: 4,
			Format:   gfx.FormatR32G32B32A32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
	}
}

// DrawPushConstants are pushed once per draw.
type DrawPushConstants struct {
	World glm.Mat4

	// VertexBuffer is the device address of the vertex buffer, zero when
	// the vertex buffer is bound instead.
	VertexBuffer uint64
}

// DrawPushConstantsSize is the pushed range in bytes.
const DrawPushConstantsSize = uint32(unsafe.Sizeof(DrawPushConstants{}))

// Bytes returns the push constant bytes.
func (p *DrawPushConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), DrawPushConstantsSize)
}

// SceneUniform defines the per frame view and projection.
type SceneUniform struct {
	View           glm.Mat4
	Projection     glm.Mat4
	ViewProjection glm.Mat4
}

// SceneUniformSize is the uniform buffer range in bytes.
const SceneUniformSize = uint64(unsafe.Sizeof(SceneUniform{}))

// Bytes returns the uniform bytes.
func (u *SceneUniform) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), SceneUniformSize)
}
