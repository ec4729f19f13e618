package canvas

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gg"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
)

// testOptions keeps the room small: 5m x 3m at 50 px/m is 250 x 150 px,
// centred in a 400 x 300 surface at offset (75, 75).
func testOptions() Options {
	opts := DefaultOptions()
	opts.BaseScale = 50
	return opts
}

type solidLoader struct {
	c     color.Color
	err   error
	calls atomic.Int32
}

func (l *solidLoader) LoadImage(_ context.Context, _ string) (image.Image, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, l.c)
		}
	}
	return img, nil
}

func newRenderer(t *testing.T, loader ImageLoader) *Renderer {
	t.Helper()
	r, err := NewRenderer(testOptions(), loader, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func crate(id int, x, y float64) design.Furniture {
	return design.Furniture{
		ID: id, Type: "crate", Name: "Crate", Width: 1, Depth: 1, Height: 1, Color: "#708090",
	}.WithPosition(design.Position{X: x, Y: y})
}

func rgb(img image.Image, x, y int) (uint8, uint8, uint8, uint8) {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return c.R, c.G, c.B, c.A
}

func within(a, b uint8, tol int) bool {
	return math.Abs(float64(a)-float64(b)) <= float64(tol)
}

func render(t *testing.T, r *Renderer, f Frame) image.Image {
	t.Helper()
	dc := gg.NewContext(400, 300)
	t.Cleanup(func() { _ = dc.Close() })
	if err := r.Render(dc, f); err != nil {
		t.Fatal(err)
	}
	return dc.Image()
}

func TestRenderWallAndItemPixels(t *testing.T) {
	r := newRenderer(t, nil)
	img := render(t, r, Frame{Room: design.DefaultRoom(), Furniture: []design.Furniture{crate(1, 2.5, 1)}})

	if cr, cg, cb, _ := rgb(img, 100, 100); cr != 0xF5 || cg != 0xF5 || cb != 0xF5 {
		t.Fatalf("wall pixel = %d,%d,%d", cr, cg, cb)
	}
	if _, _, _, a := rgb(img, 10, 10); a != 0 {
		t.Fatalf("outside the room should stay transparent, alpha = %d", a)
	}
	// Crate spans x 175..225 and y 125..175.
	if cr, cg, cb, _ := rgb(img, 200, 150); cr != 0x70 || cg != 0x80 || cb != 0x90 {
		t.Fatalf("item pixel = %d,%d,%d", cr, cg, cb)
	}
}

func TestUnplacedItemsAreNotDrawnOrPicked(t *testing.T) {
	r := newRenderer(t, nil)
	item := crate(1, 2.5, 1)
	item.Position = nil
	img := render(t, r, Frame{Room: design.DefaultRoom(), Furniture: []design.Furniture{item}})

	if cr, _, _, _ := rgb(img, 200, 150); cr != 0xF5 {
		t.Fatal("unplaced item should not be drawn")
	}
	vp := geom.Viewport{Width: 400, Height: 300}
	if _, ok := Pick(design.DefaultRoom(), []design.Furniture{item}, vp, 50, r.Scales(), geom.Point{X: 200, Y: 150}); ok {
		t.Fatal("unplaced item should not be pickable")
	}
}

func TestPickPrefersHighestIndex(t *testing.T) {
	r := newRenderer(t, nil)
	vp := geom.Viewport{Width: 400, Height: 300}
	items := []design.Furniture{crate(1, 2.5, 1), crate(2, 2.7, 1.2)}

	got, ok := Pick(design.DefaultRoom(), items, vp, 50, r.Scales(), geom.Point{X: 200, Y: 150})
	if !ok || got.ID != 2 {
		t.Fatalf("picked %d, want 2", got.ID)
	}
	if _, ok := Pick(design.DefaultRoom(), items, vp, 50, r.Scales(), geom.Point{X: 5, Y: 5}); ok {
		t.Fatal("pointer outside every item should miss")
	}
}

func TestResizeHandleTakesPriority(t *testing.T) {
	store := design.NewStore()
	r := newRenderer(t, nil)
	view := NewView(r, store, geom.Viewport{Width: 400, Height: 300})

	tpl := design.Template{Type: "crate", Name: "Crate", Width: 1, Depth: 1, Height: 1, Color: "#708090"}
	item, _ := store.AddFurniture(tpl)
	_ = store.UpdateFurniture(item.WithPosition(design.Position{X: 2.5, Y: 1}))
	item, _ = store.Item(item.ID)

	handle := r.HandleCenter(store.Room(), view.Viewport(), item)
	if got := view.HitTest(handle, 0); got.Kind != interact.TargetItem {
		t.Fatalf("unselected item: kind = %v, want item", got.Kind)
	}
	if got := view.HitTest(handle, item.ID); got.Kind != interact.TargetResizeHandle {
		t.Fatalf("selected item: kind = %v, want resize handle", got.Kind)
	}
}

func isSelectionBlue(img image.Image, x, y int) bool {
	cr, cg, cb, _ := rgb(img, x, y)
	return within(cr, 0x3B, 8) && within(cg, 0x82, 8) && within(cb, 0xF6, 8)
}

func TestSelectionDrawnOverLaterItems(t *testing.T) {
	r := newRenderer(t, nil)
	// B spans x 195..245 and y 140..190, covering A's handle at (222, 172).
	a, b := crate(1, 2.5, 1), crate(2, 2.9, 1.3)

	img := render(t, r, Frame{Room: design.DefaultRoom(), Furniture: []design.Furniture{a, b}})
	if cr, cg, cb, _ := rgb(img, 222, 172); cr != 0x70 || cg != 0x80 || cb != 0x90 {
		t.Fatalf("unselected corner = %d,%d,%d, want B's fill", cr, cg, cb)
	}

	img = render(t, r, Frame{Room: design.DefaultRoom(), Furniture: []design.Furniture{a, b}, SelectedID: 1})
	if !isSelectionBlue(img, 222, 172) {
		cr, cg, cb, _ := rgb(img, 222, 172)
		t.Fatalf("handle pixel = %d,%d,%d, want selection blue", cr, cg, cb)
	}
	vp := geom.Viewport{Width: 400, Height: 300}
	if !HitResizeHandle(design.DefaultRoom(), a, vp, 50, r.Scales(), geom.Point{X: 222, Y: 172}) {
		t.Fatal("drawn handle should be the hit-tested handle")
	}
}

func TestSelectionDrawnOverFrontView(t *testing.T) {
	loader := &solidLoader{c: color.RGBA{R: 255, A: 255}}
	r := newRenderer(t, loader)
	item := crate(1, 2.5, 1)
	item.ModelID = "model_1"
	f := Frame{
		Room:       design.DefaultRoom(),
		Furniture:  []design.Furniture{item},
		SelectedID: 1,
		Models:     map[string]design.FurnitureModel{"model_1": {ID: "model_1", FrontView: "mem://front"}},
	}

	render(t, r, f)
	r.Images().Wait()
	img := render(t, r, f)

	if cr, cg, cb, _ := rgb(img, 200, 150); cr != 255 || cg != 0 || cb != 0 {
		t.Fatalf("front view pixel = %d,%d,%d, want red", cr, cg, cb)
	}
	if !isSelectionBlue(img, 222, 172) {
		t.Fatal("handle should be drawn over the front view image")
	}
	if !isSelectionBlue(img, 200, 125) {
		t.Fatal("selection outline should be drawn over the front view image")
	}
}

func TestResizeIsDisplayOnlyAndFloored(t *testing.T) {
	store := design.NewStore()
	r := newRenderer(t, nil)
	view := NewView(r, store, geom.Viewport{Width: 400, Height: 300})
	c := interact.NewController(store, view, nil)

	tpl := design.Template{Type: "crate", Name: "Crate", Width: 1, Depth: 1, Height: 1, Color: "#708090"}
	item, _ := store.AddFurniture(tpl)
	_ = store.UpdateFurniture(item.WithPosition(design.Position{X: 2.5, Y: 1}))
	item, _ = store.Item(item.ID)
	_ = store.Select(item.ID)

	invalidated := 0
	view.OnInvalidate(func() { invalidated++ })

	start := r.HandleCenter(store.Room(), view.Viewport(), item)
	c.PointerDown(start)
	if c.Mode() != interact.ModeResizing {
		t.Fatalf("mode = %v, want resizing", c.Mode())
	}
	// Shrinking by 30px on a 50px item asks for 1 - 0.6*2 = -0.2, floored.
	c.PointerMove(geom.Point{X: start.X - 30, Y: start.Y - 30})
	c.PointerUp(geom.Point{})

	if sc := r.Scales().Get(item.ID); sc.X != MinDisplayScale || sc.Y != MinDisplayScale {
		t.Fatalf("scale = %+v, want floor of 0.5", sc)
	}
	got, _ := store.Item(item.ID)
	if got.Width != 1 || got.Height != 1 || got.Depth != 1 {
		t.Fatalf("stored dimensions changed: %+v", got)
	}
	if invalidated != 1 {
		t.Fatalf("invalidated %d times, want 1", invalidated)
	}
}

func TestScalesFloorDirectSet(t *testing.T) {
	s := NewScales()
	s.Set(3, geom.DisplayScale{X: 0.4, Y: 0.4})
	if got := s.Get(3); got.X != 0.5 || got.Y != 0.5 {
		t.Fatalf("scale = %+v, want (0.5, 0.5)", got)
	}
	s.Prune(map[int]bool{})
	if got := s.Get(3); got != geom.UnitScale {
		t.Fatal("pruned entry should fall back to 1x1")
	}
}

func TestDragInElevationClampsToWall(t *testing.T) {
	store := design.NewStore()
	r := newRenderer(t, nil)
	view := NewView(r, store, geom.Viewport{Width: 400, Height: 300})
	c := interact.NewController(store, view, nil)

	tpl := design.Template{Type: "crate", Name: "Crate", Width: 1, Depth: 1, Height: 1, Color: "#708090"}
	item, _ := store.AddFurniture(tpl)
	_ = store.UpdateFurniture(item.WithPosition(design.Position{X: 2.5, Y: 1}))

	c.PointerDown(geom.Point{X: 200, Y: 150})
	c.PointerMove(geom.Point{X: 250, Y: 175})
	got, _ := store.Item(item.ID)
	if got.Position.X != 3.5 || got.Position.Y != 1.5 {
		t.Fatalf("after move = %+v, want (3.5, 1.5)", got.Position)
	}

	c.PointerMove(geom.Point{X: 2000, Y: 2000})
	c.PointerMove(geom.Point{X: 2100, Y: 2100})
	c.PointerUp(geom.Point{})
	got, _ = store.Item(item.ID)
	if got.Position.X != 4.5 || got.Position.Y != 2 {
		t.Fatalf("clamped = %+v, want (4.5, 2)", got.Position)
	}
}

func TestBackgroundRedrawAfterLoad(t *testing.T) {
	loader := &solidLoader{c: color.RGBA{R: 255, A: 255}}
	r := newRenderer(t, loader)
	ready := make(chan string, 1)
	r.Images().OnReady(func(url string) { ready <- url })

	f := Frame{Room: design.DefaultRoom(), Background: &design.BackgroundImage{ID: "bg_1", URL: "mem://red"}}

	first := render(t, r, f)
	if cr, cg, _, _ := rgb(first, 100, 100); cr != 0xF5 || cg != 0xF5 {
		t.Fatal("background should fall back to the wall color while loading")
	}
	if got := <-ready; got != "mem://red" {
		t.Fatalf("ready url = %q", got)
	}

	second := render(t, r, f)
	cr, cg, cb, _ := rgb(second, 100, 100)
	// Red under a 30% white overlay.
	if !within(cr, 255, 2) || !within(cg, 77, 4) || !within(cb, 77, 4) {
		t.Fatalf("background pixel = %d,%d,%d", cr, cg, cb)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestFailedBackgroundIsNotRetried(t *testing.T) {
	loader := &solidLoader{err: errors.New("corrupt")}
	r := newRenderer(t, loader)
	f := Frame{Room: design.DefaultRoom(), Background: &design.BackgroundImage{ID: "bg_1", URL: "mem://bad"}}

	render(t, r, f)
	r.Images().Wait()
	img := render(t, r, f)
	if cr, _, _, _ := rgb(img, 100, 100); cr != 0xF5 {
		t.Fatal("failed background should keep the wall fallback")
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestZoomClamps(t *testing.T) {
	r := newRenderer(t, nil)
	for range 20 {
		r.ZoomIn()
	}
	if r.Zoom() != 2 {
		t.Fatalf("zoom = %g, want 2", r.Zoom())
	}
	for range 30 {
		r.ZoomOut()
	}
	if r.Zoom() != 0.5 {
		t.Fatalf("zoom = %g, want 0.5", r.Zoom())
	}
	r.ResetZoom()
	if r.PixelsPerMeter() != 50 {
		t.Fatalf("pixels per meter = %g", r.PixelsPerMeter())
	}
}

func TestAdjustColor(t *testing.T) {
	cases := map[string]struct {
		in     string
		amount int
		want   string
	}{
		"darken":  {"#8B4513", -20, "#773100"},
		"lighten": {"#F5F5F5", 20, "#ffffff"},
		"invalid": {"red", 20, "red"},
	}
	for name, tc := range cases {
		if got := AdjustColor(tc.in, tc.amount); got != tc.want {
			t.Errorf("%s: AdjustColor(%q, %d) = %q, want %q", name, tc.in, tc.amount, got, tc.want)
		}
	}
}

func TestRenderPNG(t *testing.T) {
	r := newRenderer(t, nil)
	data, err := r.RenderPNG(Frame{Room: design.DefaultRoom()}, geom.Viewport{Width: 64, Height: 48})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Fatal("output is not a PNG")
	}
	if _, err := r.RenderPNG(Frame{Room: design.DefaultRoom()}, geom.Viewport{}); err == nil {
		t.Fatal("empty viewport should fail")
	}
}
