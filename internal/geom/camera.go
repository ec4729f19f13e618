package geom

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/design"
)

// Camera is a perspective camera. FovY is in degrees.
type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
	Up       mgl64.Vec3
	FovY     float64
	Aspect   float64
	Near     float64
	Far      float64
}

// DefaultCamera looks at the middle of the floor from above one corner.
func DefaultCamera(room design.Room, vp Viewport) Camera {
	return Camera{
		Position: mgl64.Vec3{room.Width * 1.5, room.Height * 1.5, room.Length * 1.5},
		Target:   mgl64.Vec3{room.Width / 2, 0, room.Length / 2},
		Up:       mgl64.Vec3{0, 1, 0},
		FovY:     75,
		Aspect:   vp.Aspect(),
		Near:     0.1,
		Far:      1000,
	}
}

func (c Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Target, c.Up)
}

func (c Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
}

func (c Camera) ViewProjection() mgl64.Mat4 {
	return c.Projection().Mul4(c.View())
}

// Project maps a world point to viewport pixels. ok is false for points
// behind the camera.
func (c Camera) Project(world mgl64.Vec3, vp Viewport) (p Point, ok bool) {
	clip := c.ViewProjection().Mul4x1(world.Vec4(1))
	if clip.W() <= 0 {
		return Point{}, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	return Point{
		X: (ndc.X() + 1) / 2 * vp.Width,
		Y: (1 - ndc.Y()) / 2 * vp.Height,
	}, true
}

// Ray is a half line. Dir is normalized.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
}

func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// PointerRay unprojects a pixel into a world-space ray from the near plane.
func PointerRay(c Camera, vp Viewport, p Point) Ray {
	ndcX := p.X/vp.Width*2 - 1
	ndcY := -(p.Y/vp.Height)*2 + 1

	inv := c.ViewProjection().Inv()
	near := unproject(inv, mgl64.Vec4{ndcX, ndcY, -1, 1})
	far := unproject(inv, mgl64.Vec4{ndcX, ndcY, 1, 1})
	return Ray{Origin: near, Dir: far.Sub(near).Normalize()}
}

func unproject(inv mgl64.Mat4, ndc mgl64.Vec4) mgl64.Vec3 {
	v := inv.Mul4x1(ndc)
	return v.Vec3().Mul(1 / v.W())
}

// Plane is defined by a point on it and its normal.
type Plane struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

// HorizontalPlane is the plane y = height facing up.
func HorizontalPlane(height float64) Plane {
	return Plane{Point: mgl64.Vec3{0, height, 0}, Normal: mgl64.Vec3{0, 1, 0}}
}

// IntersectPlane returns where r crosses pl. Rays parallel to the plane or
// pointing away from it do not hit.
func (r Ray) IntersectPlane(pl Plane) (mgl64.Vec3, bool) {
	denom := r.Dir.Dot(pl.Normal)
	if denom > -1e-6 && denom < 1e-6 {
		return mgl64.Vec3{}, false
	}
	t := pl.Point.Sub(r.Origin).Dot(pl.Normal) / denom
	if t < 0 {
		return mgl64.Vec3{}, false
	}
	return r.At(t), true
}

// IntersectBox returns the entry distance of r into b using the slab test.
func (r Ray) IntersectBox(b Box3) (float64, bool) {
	if b.Empty() {
		return 0, false
	}
	tMin, tMax := 0.0, 1e300
	for axis := range 3 {
		o, d := r.Origin[axis], r.Dir[axis]
		lo, hi := b.Min[axis], b.Max[axis]
		if d > -1e-12 && d < 1e-12 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = max(tMin, t1)
		tMax = min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
