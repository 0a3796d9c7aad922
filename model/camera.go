package model

import (
	"math"

	glm "github.com/go-gl/mathgl/mgl32"
)

// NewCamera returns a camera with identity view and projection.
func NewCamera() *Camera {
	return &Camera{
		projection: glm.Ident4(),
		view:       glm.Ident4(),
	}
}

// Camera holds a view and a projection matrix. Projections map depth to
// [0, 1] and flip y for Vulkan clip space.
type Camera struct {
	projection glm.Mat4
	view       glm.Mat4
}

// at sets column c, row r.
func at(m *glm.Mat4, c, r int, v float32) {
	m[c*4+r] = v
}

// SetOrthographicProjection maps the box to clip space.
func (c *Camera) SetOrthographicProjection(left, right, bottom, top, near, far float32) {
	p := glm.Ident4()
	at(&p, 0, 0, 2/(right-left))
	at(&p, 1, 1, 2/(bottom-top))
	at(&p, 2, 2, 1/(far-near))
	at(&p, 3, 0, -(right+left)/(right-left))
	at(&p, 3, 1, -(bottom+top)/(bottom-top))
	at(&p, 3, 2, -near/(far-near))
	c.projection = p
}

// SetPerspectiveProjection sets a perspective projection with fovy in
// radians. A zero aspect ratio leaves the projection unchanged.
func (c *Camera) SetPerspectiveProjection(fovy, aspect, near, far float32) {
	if glm.Abs(aspect) <= glm.Epsilon {
		return
	}
	tanHalf := float32(math.Tan(float64(fovy) / 2))
	var p glm.Mat4
	at(&p, 0, 0, 1/(aspect*tanHalf))
	at(&p, 1, 1, 1/tanHalf)
	at(&p, 2, 2, far/(far-near))
	at(&p, 2, 3, 1)
	at(&p, 3, 2, -(far*near)/(far-near))
	c.projection = p
}

// SetViewDirection looks from position along direction.
func (c *Camera) SetViewDirection(position, direction, up glm.Vec3) {
	w := direction.Normalize()
	u := w.Cross(up).Normalize()
	v := w.Cross(u)
	c.view = viewMatrix(position, u, v, w)
}

// SetViewTarget looks from position at target.
func (c *Camera) SetViewTarget(position, target, up glm.Vec3) {
	c.SetViewDirection(position, target.Sub(position), up)
}

// SetViewEulerYXZ orients the view by rotation angles in radians, applied
// in Y, X, Z order.
func (c *Camera) SetViewEulerYXZ(position, rotation glm.Vec3) {
	c3, s3 := cos(rotation.Z()), sin(rotation.Z())
	c2, s2 := cos(rotation.X()), sin(rotation.X())
	c1, s1 := cos(rotation.Y()), sin(rotation.Y())
	u := glm.Vec3{c1*c3 + s1*s2*s3, c2 * s3, c1*s2*s3 - c3*s1}
	v := glm.Vec3{c3*s1*s2 - c1*s3, c2 * c3, c1*c3*s2 + s1*s3}
	w := glm.Vec3{c2 * s1, -s2, c1 * c2}
	c.view = viewMatrix(position, u, v, w)
}

func viewMatrix(position, u, v, w glm.Vec3) glm.Mat4 {
	m := glm.Ident4()
	at(&m, 0, 0, u.X())
	at(&m, 1, 0, u.Y())
	at(&m, 2, 0, u.Z())
	at(&m, 0, 1, v.X())
	at(&m, 1, 1, v.Y())
	at(&m, 2, 1, v.Z())
	at(&m, 0, 2, w.X())
	at(&m, 1, 2, w.Y())
	at(&m, 2, 2, w.Z())
	at(&m, 3, 0, -u.Dot(position))
	at(&m, 3, 1, -v.Dot(position))
	at(&m, 3, 2, -w.Dot(position))
	return m
}

func cos(a float32) float32 { return float32(math.Cos(float64(a))) }
func sin(a float32) float32 { return float32(math.Sin(float64(a))) }

// Projection returns the projection matrix.
func (c *Camera) Projection() glm.Mat4 {
	return c.projection
}

// View returns the view matrix.
func (c *Camera) View() glm.Mat4 {
	return c.view
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() glm.Mat4 {
	return c.projection.Mul4(c.view)
}

// Scene returns the camera as a scene uniform.
func (c *Camera) Scene() SceneUniform {
	return SceneUniform{
		View:           c.view,
		Projection:     c.projection,
		ViewProjection: c.ViewProjection(),
	}
}
