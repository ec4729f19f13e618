package geom

import "github.com/go-gl/mathgl/mgl64"

// Box3 is an axis-aligned box in 3D. A box with Min greater than Max on any
// axis is empty.
type Box3 struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyBox returns a box that any ExpandByPoint will replace.
func EmptyBox() Box3 {
	const inf = 1e300
	return Box3{Min: mgl64.Vec3{inf, inf, inf}, Max: mgl64.Vec3{-inf, -inf, -inf}}
}

// CenteredBox returns a box of the given size centred on the origin.
func CenteredBox(width, height, depth float64) Box3 {
	h := mgl64.Vec3{width / 2, height / 2, depth / 2}
	return Box3{Min: h.Mul(-1), Max: h}
}

func (b Box3) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b Box3) Size() mgl64.Vec3 {
	if b.Empty() {
		return mgl64.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

func (b Box3) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Degenerate reports whether the box has no volume on some axis.
func (b Box3) Degenerate(eps float64) bool {
	s := b.Size()
	return s[0] <= eps || s[1] <= eps || s[2] <= eps
}

func (b Box3) ExpandByPoint(p mgl64.Vec3) Box3 {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

func (b Box3) Union(o Box3) Box3 {
	if o.Empty() {
		return b
	}
	return b.ExpandByPoint(o.Min).ExpandByPoint(o.Max)
}

// Transform returns the axis-aligned bounds of b after applying m.
func (b Box3) Transform(m mgl64.Mat4) Box3 {
	if b.Empty() {
		return b
	}
	out := EmptyBox()
	for i := range 8 {
		corner := mgl64.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.ExpandByPoint(m.Mul4x1(corner.Vec4(1)).Vec3())
	}
	return out
}
