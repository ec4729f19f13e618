package interact

import (
	"math"
	"testing"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

// planView maps 100 pixels to one meter on the floor and treats any pointer
// within half a meter of an item as a hit.
type planView struct {
	store      *design.Store
	navEnabled bool
	navToggles int
	handleHit  bool
}

func (v *planView) toRoom(p geom.Point) geom.Point { return geom.Point{X: p.X / 100, Y: p.Y / 100} }

func (v *planView) HitTest(p geom.Point, selected int) Target {
	r := v.toRoom(p)
	items := v.store.Furniture()
	for i := len(items) - 1; i >= 0; i-- {
		f := items[i]
		if math.Abs(f.Position.X-r.X) <= 0.5 && math.Abs(f.Position.Z-r.Y) <= 0.5 {
			if v.handleHit && f.ID == selected {
				return Target{Kind: TargetResizeHandle, ItemID: f.ID}
			}
			return Target{Kind: TargetItem, ItemID: f.ID}
		}
	}
	return Target{}
}

func (v *planView) Begin(s *Session, _ Target, item design.Furniture) {}

func (v *planView) ComputeDelta(s *Session, _ design.Furniture, prev, cur geom.Point) (Delta, bool) {
	d := cur.Sub(prev)
	if s.Mode == ModeResizing {
		return Delta{Pixels: d}, true
	}
	return Delta{X: d.X / 100, Z: d.Y / 100}, true
}

func (v *planView) ApplyDelta(s *Session, item design.Furniture, d Delta) (design.Furniture, bool) {
	if s.Mode == ModeResizing {
		return item, false
	}
	p := *item.Position
	p.X += d.X
	p.Z += d.Z
	return item.WithPosition(p), true
}

func (v *planView) Clamp(room design.Room, item design.Furniture) design.Furniture {
	return geom.ClampFloor(room, item)
}

func (v *planView) SetNavigationEnabled(enabled bool) {
	v.navEnabled = enabled
	v.navToggles++
}

func newFixture(t *testing.T) (*design.Store, *planView, *Controller, design.Furniture) {
	t.Helper()
	store := design.NewStore()
	tpl, _ := design.DefaultCatalog().Find("Dining Chair")
	item, err := store.AddFurniture(tpl)
	if err != nil {
		t.Fatal(err)
	}
	view := &planView{store: store, navEnabled: true}
	return store, view, NewController(store, view, nil), item
}

func TestDragMovesItemByPointerDelta(t *testing.T) {
	store, _, c, item := newFixture(t)

	c.PointerDown(geom.Point{X: 250, Y: 250})
	if c.Mode() != ModeDragging {
		t.Fatalf("mode = %v, want dragging", c.Mode())
	}
	if store.SelectedID() != item.ID {
		t.Fatal("pointer down on an item should select it")
	}

	c.PointerMove(geom.Point{X: 260, Y: 250})
	c.PointerMove(geom.Point{X: 275, Y: 240})
	c.PointerUp(geom.Point{X: 275, Y: 240})

	got, _ := store.Item(item.ID)
	if math.Abs(got.Position.X-2.75) > 1e-9 || math.Abs(got.Position.Z-2.4) > 1e-9 {
		t.Fatalf("position = %+v, want (2.75, 2.4)", got.Position)
	}
	if c.Mode() != ModeIdle {
		t.Fatal("pointer up should end the gesture")
	}
}

func TestMoveWithoutGestureIsNoop(t *testing.T) {
	store, _, c, item := newFixture(t)
	rev := store.Revision()
	c.PointerMove(geom.Point{X: 10, Y: 10})
	if store.Revision() != rev {
		t.Fatal("idle move must not write to the store")
	}
	got, _ := store.Item(item.ID)
	if got.Position.X != 2.5 {
		t.Fatal("item moved without a gesture")
	}
}

func TestPointerDownOnEmptyClearsSelection(t *testing.T) {
	store, _, c, item := newFixture(t)
	_ = store.Select(item.ID)

	c.PointerDown(geom.Point{X: 0, Y: 0})
	if store.SelectedID() != 0 {
		t.Fatal("clicking empty space should clear the selection")
	}
	if c.Mode() != ModeIdle {
		t.Fatal("no gesture should start on empty space")
	}
}

func TestPointerLeaveEndsGesture(t *testing.T) {
	_, view, c, _ := newFixture(t)
	c.PointerDown(geom.Point{X: 250, Y: 250})
	if view.navEnabled {
		t.Fatal("navigation should be suspended during a gesture")
	}
	c.PointerLeave()
	if c.Mode() != ModeIdle {
		t.Fatal("leave should end the gesture")
	}
	if !view.navEnabled {
		t.Fatal("navigation should be restored on leave")
	}
}

func TestSecondPointerDownIgnoredDuringGesture(t *testing.T) {
	store, view, c, item := newFixture(t)
	tpl, _ := design.DefaultCatalog().Find("Side Table")
	other, _ := store.AddFurniture(tpl)
	_ = store.UpdateFurniture(other.WithPosition(design.Position{X: 1, Z: 1}))

	c.PointerDown(geom.Point{X: 250, Y: 250})
	c.PointerDown(geom.Point{X: 100, Y: 100})

	s, ok := c.Session()
	if !ok || s.ItemID != item.ID {
		t.Fatalf("session = %+v, want item %d", s, item.ID)
	}
	if view.navToggles != 1 {
		t.Fatalf("navigation toggled %d times, want 1", view.navToggles)
	}
}

func TestItemRemovedMidGestureEndsSession(t *testing.T) {
	store, _, c, item := newFixture(t)
	c.PointerDown(geom.Point{X: 250, Y: 250})
	_ = store.RemoveFurniture(item.ID)

	c.PointerMove(geom.Point{X: 300, Y: 300})
	if c.Mode() != ModeIdle {
		t.Fatal("gesture on a removed item should end")
	}
}

func TestDragIsClampedToRoom(t *testing.T) {
	store, _, c, item := newFixture(t)
	c.PointerDown(geom.Point{X: 250, Y: 250})
	c.PointerMove(geom.Point{X: 2000, Y: -2000})
	c.PointerUp(geom.Point{})

	got, _ := store.Item(item.ID)
	if got.Position.X != 4.75 || got.Position.Z != 0.25 {
		t.Fatalf("position = %+v, want clamped (4.75, 0.25)", got.Position)
	}
}

func TestResizeGestureDoesNotWriteStore(t *testing.T) {
	store, view, c, item := newFixture(t)
	view.handleHit = true
	_ = store.Select(item.ID)

	c.PointerDown(geom.Point{X: 250, Y: 250})
	if c.Mode() != ModeResizing {
		t.Fatalf("mode = %v, want resizing", c.Mode())
	}
	rev := store.Revision()
	c.PointerMove(geom.Point{X: 280, Y: 280})
	if store.Revision() != rev {
		t.Fatal("resize gestures must not write furniture")
	}
}

func TestNudge(t *testing.T) {
	store, _, _, item := newFixture(t)
	store.ClearSelection()
	if ok, _ := ApplyNudge(store, NudgeLeft); ok {
		t.Fatal("nudge without selection should do nothing")
	}
	_ = store.Select(item.ID)

	for range 3 {
		if _, err := ApplyNudge(store, NudgeRotate); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ApplyNudge(store, NudgeRight); err != nil {
		t.Fatal(err)
	}
	for range 20 {
		_, _ = ApplyNudge(store, NudgeShorter)
	}
	got, _ := store.Item(item.ID)
	if math.Abs(got.Rotation-3*math.Pi/4) > 1e-9 {
		t.Fatalf("rotation = %g", got.Rotation)
	}
	if math.Abs(got.Position.X-2.6) > 1e-9 {
		t.Fatalf("x = %g, want 2.6", got.Position.X)
	}
	if got.Height != 0.2 {
		t.Fatalf("height = %g, want floor of 0.2", got.Height)
	}
	if _, err := ApplyNudge(store, Nudge("spin")); err == nil {
		t.Fatal("unknown nudge should fail")
	}
}
