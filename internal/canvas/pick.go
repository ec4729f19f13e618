package canvas

import (
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

// Pick returns the item under p. Items later in the list win, matching the
// order the controller sees them in the store. Drawing sorts by Y instead,
// so where two items overlap the one painted on top is not always the one
// picked.
func Pick(room design.Room, items []design.Furniture, vp geom.Viewport, scale float64, scales *Scales, p geom.Point) (design.Furniture, bool) {
	el := geom.NewElevation(room, vp, scale)
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if !it.Placed() {
			continue
		}
		if itemRect(el, it, scales.Get(it.ID)).Contains(p) {
			return it, true
		}
	}
	return design.Furniture{}, false
}

// HitResizeHandle reports whether p is on item's resize handle.
func HitResizeHandle(room design.Room, item design.Furniture, vp geom.Viewport, scale float64, scales *Scales, p geom.Point) bool {
	if !item.Placed() {
		return false
	}
	el := geom.NewElevation(room, vp, scale)
	return handleHitRect(itemRect(el, item, scales.Get(item.ID))).Contains(p)
}

// ItemRect is the on-screen rectangle of item at the renderer's zoom.
func (r *Renderer) ItemRect(room design.Room, vp geom.Viewport, item design.Furniture) geom.Rect {
	return itemRect(r.Elevation(room, vp), item, r.scales.Get(item.ID))
}

// HandleCenter is the centre of the item's resize hotspot on screen.
func (r *Renderer) HandleCenter(room design.Room, vp geom.Viewport, item design.Furniture) geom.Point {
	return handleHitRect(r.ItemRect(room, vp, item)).Center()
}
