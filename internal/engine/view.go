package engine

import (
	"math"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
)

// View3D adapts a RenderContext to the interaction controller. Picking and
// drag math go through the camera; the gizmo is tested before items.
type View3D struct {
	rc *RenderContext
}

func NewView3D(rc *RenderContext) *View3D {
	return &View3D{rc: rc}
}

func (v *View3D) ray(p geom.Point) geom.Ray {
	return geom.PointerRay(v.rc.Camera, v.rc.Viewport, p)
}

func (v *View3D) HitTest(p geom.Point, selectedID int) interact.Target {
	r := v.ray(p)
	g := v.rc.gizmo
	if selectedID != 0 && g.ItemID() == selectedID && g.HitTest(r) {
		c := g.Center()
		return interact.Target{Kind: interact.TargetGizmo, ItemID: selectedID, Point: [3]float64{c.X(), c.Y(), c.Z()}}
	}
	hit, ok := v.rc.Graph.Pick(r)
	if !ok {
		return interact.Target{}
	}
	pt := r.At(hit.Distance)
	return interact.Target{Kind: interact.TargetItem, ItemID: hit.Item.FurnitureID, Point: [3]float64{pt.X(), pt.Y(), pt.Z()}}
}

// Begin fixes the drag plane at the height of the grabbed node's origin.
func (v *View3D) Begin(s *interact.Session, _ interact.Target, item design.Furniture) {
	if n, ok := v.rc.Graph.Item(item.ID); ok {
		s.PlaneHeight = n.Position.Y()
	}
}

func (v *View3D) ComputeDelta(s *interact.Session, _ design.Furniture, prev, cur geom.Point) (interact.Delta, bool) {
	switch s.Mode {
	case interact.ModeDragging:
		plane := geom.HorizontalPlane(s.PlaneHeight)
		a, ok := v.ray(prev).IntersectPlane(plane)
		if !ok {
			return interact.Delta{}, false
		}
		b, ok := v.ray(cur).IntersectPlane(plane)
		if !ok {
			return interact.Delta{}, false
		}
		d := b.Sub(a)
		return interact.Delta{X: d.X(), Z: d.Z()}, true

	case interact.ModeRotating:
		c, ok := v.rc.Camera.Project(v.rc.gizmo.Center(), v.rc.Viewport)
		if !ok {
			return interact.Delta{}, false
		}
		return interact.Delta{Angle: geom.WrapAngle(bearing(c, cur) - bearing(c, prev))}, true
	}
	return interact.Delta{}, false
}

// bearing is the screen angle of p around c, counter-clockwise positive.
func bearing(c, p geom.Point) float64 {
	return math.Atan2(-(p.Y - c.Y), p.X-c.X)
}

func (v *View3D) ApplyDelta(s *interact.Session, item design.Furniture, d interact.Delta) (design.Furniture, bool) {
	switch s.Mode {
	case interact.ModeDragging:
		p := *item.Position
		p.X += d.X
		p.Z += d.Z
		return item.WithPosition(p), true
	case interact.ModeRotating:
		item.Rotation += d.Angle
		return item, true
	}
	return item, false
}

func (v *View3D) Clamp(room design.Room, item design.Furniture) design.Furniture {
	return geom.ClampFloor(room, item)
}

func (v *View3D) SetNavigationEnabled(enabled bool) {
	v.rc.SetNavigationEnabled(enabled)
}
