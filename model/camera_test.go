package model

import (
	"testing"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func project(m glm.Mat4, p glm.Vec3) glm.Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	return v.Vec3().Mul(1 / v.W())
}

func TestPerspectiveDepthRange(t *testing.T) {
	c := NewCamera()
	c.SetPerspectiveProjection(glm.DegToRad(90), 1, 0.1, 100)

	assert.InDelta(t, 0, project(c.Projection(), glm.Vec3{0, 0, 0.1}).Z(), 1e-5, "near maps to 0")
	assert.InDelta(t, 1, project(c.Projection(), glm.Vec3{0, 0, 100}).Z(), 1e-5, "far maps to 1")
	assert.InDelta(t, 1, project(c.Projection(), glm.Vec3{1, 0, 1}).X(), 1e-5, "90 degrees spans the frustum edge")
}

func TestPerspectiveZeroAspect(t *testing.T) {
	c := NewCamera()
	c.SetPerspectiveProjection(glm.DegToRad(70), 0, 0.1, 100)
	assert.Equal(t, glm.Ident4(), c.Projection())
}

func TestOrthographic(t *testing.T) {
	c := NewCamera()
	c.SetOrthographicProjection(-1, 1, -1, 1, 0, 10)

	p := project(c.Projection(), glm.Vec3{1, 1, 10})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, -1, p.Y(), 1e-5, "y is flipped")
	assert.InDelta(t, 1, p.Z(), 1e-5)
}

func TestViewTarget(t *testing.T) {
	c := NewCamera()
	c.SetViewTarget(glm.Vec3{0, 0, -5}, glm.Vec3{}, glm.Vec3{0, -1, 0})

	p := project(c.View(), glm.Vec3{})
	assert.InDelta(t, 0, p.X(), 1e-5)
	assert.InDelta(t, 0, p.Y(), 1e-5)
	assert.InDelta(t, 5, p.Z(), 1e-5, "target straight ahead")
}

func TestViewEulerMatchesDirection(t *testing.T) {
	a, b := NewCamera(), NewCamera()
	a.SetViewEulerYXZ(glm.Vec3{1, 2, 3}, glm.Vec3{})
	b.SetViewDirection(glm.Vec3{1, 2, 3}, glm.Vec3{0, 0, 1}, glm.Vec3{0, -1, 0})
	assert.True(t, a.View().ApproxEqualThreshold(b.View(), 1e-5))
}

func TestScene(t *testing.T) {
	c := NewCamera()
	c.SetPerspectiveProjection(glm.DegToRad(70), 16.0/9.0, 0.1, 100)
	c.SetViewTarget(glm.Vec3{0, 0, -2}, glm.Vec3{}, glm.Vec3{0, -1, 0})

	s := c.Scene()
	assert.Equal(t, c.View(), s.View)
	assert.Equal(t, c.Projection(), s.Projection)
	assert.Equal(t, c.Projection().Mul4(c.View()), s.ViewProjection)
}
