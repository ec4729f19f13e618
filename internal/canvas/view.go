package canvas

import (
	"sync"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
)

// Source is the store view the elevation needs.
type Source interface {
	Room() design.Room
	Furniture() []design.Furniture
	Item(id int) (design.Furniture, bool)
}

// View adapts the elevation renderer to the interaction controller.
type View struct {
	renderer *Renderer
	source   Source

	mu         sync.RWMutex
	viewport   geom.Viewport
	invalidate func()
}

func NewView(r *Renderer, src Source, vp geom.Viewport) *View {
	return &View{renderer: r, source: src, viewport: vp}
}

func (v *View) Viewport() geom.Viewport {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.viewport
}

func (v *View) SetViewport(vp geom.Viewport) {
	v.mu.Lock()
	v.viewport = vp
	v.mu.Unlock()
}

// OnInvalidate registers a callback for visual changes that do not go
// through the store, such as display scale edits.
func (v *View) OnInvalidate(fn func()) {
	v.mu.Lock()
	v.invalidate = fn
	v.mu.Unlock()
}

func (v *View) HitTest(p geom.Point, selectedID int) interact.Target {
	room := v.source.Room()
	vp := v.Viewport()
	scale := v.renderer.PixelsPerMeter()

	if selectedID != 0 {
		if sel, ok := v.source.Item(selectedID); ok && HitResizeHandle(room, sel, vp, scale, v.renderer.scales, p) {
			return interact.Target{Kind: interact.TargetResizeHandle, ItemID: sel.ID}
		}
	}
	// Store order, not draw order; see Pick.
	if it, ok := Pick(room, v.source.Furniture(), vp, scale, v.renderer.scales, p); ok {
		return interact.Target{Kind: interact.TargetItem, ItemID: it.ID}
	}
	return interact.Target{}
}

func (v *View) Begin(*interact.Session, interact.Target, design.Furniture) {}

func (v *View) ComputeDelta(s *interact.Session, _ design.Furniture, prev, cur geom.Point) (interact.Delta, bool) {
	d := cur.Sub(prev)
	switch s.Mode {
	case interact.ModeDragging:
		scale := v.renderer.PixelsPerMeter()
		return interact.Delta{X: d.X / scale, Y: d.Y / scale, Pixels: d}, true
	case interact.ModeResizing:
		return interact.Delta{Pixels: d}, true
	}
	return interact.Delta{}, false
}

func (v *View) ApplyDelta(s *interact.Session, item design.Furniture, d interact.Delta) (design.Furniture, bool) {
	switch s.Mode {
	case interact.ModeDragging:
		p := *item.Position
		p.X += d.X
		p.Y += d.Y
		return item.WithPosition(p), true

	case interact.ModeResizing:
		scale := v.renderer.PixelsPerMeter()
		cur := v.renderer.scales.Get(item.ID)
		v.renderer.scales.Set(item.ID, geom.DisplayScale{
			X: cur.X + d.Pixels.X/(item.Width*scale*cur.X)*2,
			Y: cur.Y + d.Pixels.Y/(item.Height*scale*cur.Y)*2,
		})
		v.notify()
	}
	return item, false
}

func (v *View) Clamp(room design.Room, item design.Furniture) design.Furniture {
	return geom.ClampElevation(room, item, v.renderer.scales.Get(item.ID))
}

func (v *View) notify() {
	v.mu.RLock()
	fn := v.invalidate
	v.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
