package geom

import (
	"math"

	"github.com/furnivision/furnivision/internal/design"
)

// Elevation maps the front wall of a room to pixels. Room X runs right and
// room Y runs down from the ceiling line, so the mapping is a uniform scale
// followed by a centring offset.
type Elevation struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
	m, inv  Matrix2D
}

// NewElevation centres a Width x Height room in vp at scale pixels per meter.
func NewElevation(room design.Room, vp Viewport, scale float64) Elevation {
	e := Elevation{
		Scale:   scale,
		OffsetX: (vp.Width - room.Width*scale) / 2,
		OffsetY: (vp.Height - room.Height*scale) / 2,
	}
	e.m = Translate(e.OffsetX, e.OffsetY).Multiply(Scale(scale, scale))
	e.inv, _ = e.m.Invert()
	return e
}

func (e Elevation) Matrix() Matrix2D { return e.m }

func (e Elevation) ToScreen(p Point) Point { return e.m.Apply(p) }

func (e Elevation) ToRoom(p Point) Point { return e.inv.Apply(p) }

// RoomRect is the room outline on screen.
func (e Elevation) RoomRect(room design.Room) Rect {
	return e.m.ApplyRect(Rect{Width: room.Width, Height: room.Height})
}

// RoomToScreen2D converts a room point to pixels.
func RoomToScreen2D(room design.Room, vp Viewport, scale float64, p Point) Point {
	return NewElevation(room, vp, scale).ToScreen(p)
}

// ScreenToRoom2D is the inverse of RoomToScreen2D.
func ScreenToRoom2D(room design.Room, vp Viewport, scale float64, p Point) Point {
	return NewElevation(room, vp, scale).ToRoom(p)
}

// DisplayScale is a 2D-only visual enlargement of an item.
type DisplayScale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

var UnitScale = DisplayScale{X: 1, Y: 1}

// Footprint2D is the item's rectangle on the elevation in room meters. The
// item's X is its horizontal centre and Y is its top edge.
func Footprint2D(f design.Furniture, s DisplayScale) Rect {
	if f.Position == nil {
		return Rect{}
	}
	w := f.Width * s.X
	h := f.Height * s.Y
	return Rect{X: f.Position.X - w/2, Y: f.Position.Y, Width: w, Height: h}
}

// Footprint3D is the item's rectangle on the floor plane (X, Z) in room
// meters, ignoring rotation.
func Footprint3D(f design.Furniture) Rect {
	if f.Position == nil {
		return Rect{}
	}
	return Rect{X: f.Position.X - f.Width/2, Y: f.Position.Z - f.Depth/2, Width: f.Width, Height: f.Depth}
}

// Clamp limits v to [lo, hi]. An empty range collapses to its midpoint.
func Clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}

// ClampFloor keeps an item's floor footprint inside the room.
func ClampFloor(room design.Room, f design.Furniture) design.Furniture {
	if f.Position == nil {
		return f
	}
	p := *f.Position
	p.X = Clamp(p.X, f.Width/2, room.Width-f.Width/2)
	p.Z = Clamp(p.Z, f.Depth/2, room.Length-f.Depth/2)
	f.Position = &p
	return f
}

// ClampElevation keeps an item's displayed rectangle inside the front wall.
func ClampElevation(room design.Room, f design.Furniture, s DisplayScale) design.Furniture {
	if f.Position == nil {
		return f
	}
	w := f.Width * s.X
	h := f.Height * s.Y
	p := *f.Position
	p.X = Clamp(p.X, w/2, room.Width-w/2)
	p.Y = Clamp(p.Y, 0, room.Height-h)
	f.Position = &p
	return f
}

// WrapAngle maps a to (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
