package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/scene"
)

const (
	gizmoColor     = "#3B82F6"
	gizmoLift      = 0.05
	gizmoMargin    = 0.3
	gizmoTolerance = 0.15
)

// Gizmo is a horizontal rotation ring floating above the selected item. It
// is not parented to the item so it never tilts or spins with it.
type Gizmo struct {
	node   *scene.Node
	itemID int
	center mgl64.Vec3
	radius float64
}

func newGizmo(res *scene.Resources) *Gizmo {
	// A unit ring scaled to the radius keeps its geometry stable.
	n := scene.NewMeshNode("gizmo-rotate",
		res.NewGeometry("ring", geom.CenteredBox(2, 0, 2)),
		res.NewMaterial(gizmoColor))
	n.Visible = false
	return &Gizmo{node: n}
}

// Follow attaches the ring to item.
func (g *Gizmo) Follow(item design.Furniture) {
	g.itemID = item.ID
	g.radius = math.Max(item.Width, item.Depth)/2 + gizmoMargin
	g.center = mgl64.Vec3{item.Position.X, item.Height + gizmoLift, item.Position.Z}
	g.node.Position = g.center
	g.node.Scale = mgl64.Vec3{g.radius, 1, g.radius}
	g.node.Visible = true
}

func (g *Gizmo) Hide() {
	g.itemID = 0
	g.node.Visible = false
}

func (g *Gizmo) Visible() bool { return g.node.Visible }

func (g *Gizmo) ItemID() int { return g.itemID }

func (g *Gizmo) Center() mgl64.Vec3 { return g.center }

func (g *Gizmo) Radius() float64 { return g.radius }

func (g *Gizmo) Node() *scene.Node { return g.node }

// HitTest reports whether r crosses the ring's band.
func (g *Gizmo) HitTest(r geom.Ray) bool {
	if !g.node.Visible {
		return false
	}
	pt, ok := r.IntersectPlane(geom.HorizontalPlane(g.center.Y()))
	if !ok {
		return false
	}
	d := pt.Sub(g.center)
	dist := math.Hypot(d.X(), d.Z())
	return math.Abs(dist-g.radius) <= gizmoTolerance
}

func (g *Gizmo) dispose() {
	g.node.Dispose()
	g.Hide()
}
