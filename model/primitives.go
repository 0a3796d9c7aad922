package model

import (
	glm "github.com/go-gl/mathgl/mgl32"
)

// Mesh is host side geometry ready for upload.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Rectangle is a unit quad in the xy plane centered at the origin, made of
// two triangles with a distinct color per corner.
func Rectangle() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: glm.Vec3{0.5, -0.5, 0}, Color: glm.Vec4{0, 0, 0, 1}},
			{Position: glm.Vec3{0.5, 0.5, 0}, Color: glm.Vec4{0.5, 0.5, 0.5, 1}},
			{Position: glm.Vec3{-0.5, -0.5, 0}, Color: glm.Vec4{1, 0, 0, 1}},
			{Position: glm.Vec3{-0.5, 0.5, 0}, Color: glm.Vec4{0, 1, 0, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 1, 3},
	}
}

// VertexBytes returns the vertices as bytes.
func (m Mesh) VertexBytes() []byte {
	return VertexBytes(m.Vertices)
}
