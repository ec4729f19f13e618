package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

const (
	selectionColor = "#3B82F6"
	outlineColor   = "#000000"
	handleSize     = 6.0
	// handleHitSize is larger than the drawn handle to make it easier to grab.
	handleHitSize = 8.0
	labelOffset   = 5.0
)

// Frame is everything one elevation render needs.
type Frame struct {
	Room       design.Room
	Furniture  []design.Furniture
	SelectedID int
	Background *design.BackgroundImage
	Models     map[string]design.FurnitureModel
}

// FrameOf reads a consistent frame from the store.
func FrameOf(s *design.Store) Frame {
	f := Frame{
		Room:       s.Room(),
		Furniture:  s.Furniture(),
		SelectedID: s.SelectedID(),
		Models:     make(map[string]design.FurnitureModel),
	}
	if bg, ok := s.ActiveBackground(); ok {
		f.Background = &bg
	}
	for _, m := range s.Models() {
		f.Models[m.ID] = m
	}
	return f
}

// Renderer draws the front elevation of a room with its furniture.
type Renderer struct {
	opts   Options
	scales *Scales
	images *Images
	label  text.Face
	tag    text.Face
	logger *slog.Logger

	mu   sync.Mutex
	zoom float64
}

func NewRenderer(opts Options, loader ImageLoader, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load label font: %w", err)
	}
	return &Renderer{
		opts:   opts,
		scales: NewScales(),
		images: NewImages(loader, opts.ImageCacheSize, logger),
		label:  src.Face(12),
		tag:    src.Face(10),
		logger: logger,
		zoom:   1,
	}, nil
}

func (r *Renderer) Scales() *Scales { return r.scales }

func (r *Renderer) Images() *Images { return r.images }

func (r *Renderer) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

// SetZoom clamps z to the configured range and returns the applied value.
func (r *Renderer) SetZoom(z float64) float64 {
	z = math.Round(z*100) / 100
	z = geom.Clamp(z, r.opts.MinZoom, r.opts.MaxZoom)
	r.mu.Lock()
	r.zoom = z
	r.mu.Unlock()
	return z
}

func (r *Renderer) ZoomIn() float64  { return r.SetZoom(r.Zoom() + r.opts.ZoomStep) }
func (r *Renderer) ZoomOut() float64 { return r.SetZoom(r.Zoom() - r.opts.ZoomStep) }
func (r *Renderer) ResetZoom() float64 {
	return r.SetZoom(1)
}

// PixelsPerMeter is the effective elevation scale at the current zoom.
func (r *Renderer) PixelsPerMeter() float64 {
	return r.opts.BaseScale * r.Zoom()
}

// Elevation returns the room-to-screen mapping for vp.
func (r *Renderer) Elevation(room design.Room, vp geom.Viewport) geom.Elevation {
	return geom.NewElevation(room, vp, r.PixelsPerMeter())
}

// Render clears dc and draws the background, the furniture and finally the
// selection decoration of the selected item.
func (r *Renderer) Render(dc Surface, f Frame) error {
	vp := geom.Viewport{Width: float64(dc.Width()), Height: float64(dc.Height())}
	el := r.Elevation(f.Room, vp)

	dc.Clear()
	errs := []error{r.drawBackground(dc, f, el)}

	var selected *design.Furniture
	for _, item := range drawOrder(f.Furniture) {
		errs = append(errs, r.drawItem(dc, f, el, item))
		if item.ID == f.SelectedID {
			selected = &item
		}
	}
	if selected != nil {
		errs = append(errs, r.drawSelection(dc, el, *selected))
	}
	return errors.Join(errs...)
}

// drawOrder returns the placed items sorted by their top edge so lower
// items are painted over higher ones.
func drawOrder(items []design.Furniture) []design.Furniture {
	out := make([]design.Furniture, 0, len(items))
	for _, it := range items {
		if it.Placed() {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b design.Furniture) int {
		switch {
		case a.Position.Y < b.Position.Y:
			return -1
		case a.Position.Y > b.Position.Y:
			return 1
		}
		return 0
	})
	return out
}

func (r *Renderer) drawBackground(dc Surface, f Frame, el geom.Elevation) error {
	rr := el.RoomRect(f.Room)

	if f.Background != nil {
		if img, _ := r.images.Lookup(f.Background.URL); img != nil {
			dc.DrawImageEx(img, gg.DrawImageOptions{
				X:         rr.X,
				Y:         rr.Y,
				DstWidth:  rr.Width,
				DstHeight: rr.Height,
			})
			dc.SetRGBA(1, 1, 1, 0.3)
			dc.DrawRectangle(rr.X, rr.Y, rr.Width, rr.Height)
			if err := dc.Fill(); err != nil {
				return err
			}
			return strokeRect(dc, rr, outlineColor, 2)
		}
	}

	dc.SetHexColor(colorOr(f.Room.WallColor, design.DefaultWallColor))
	dc.DrawRectangle(rr.X, rr.Y, rr.Width, rr.Height)
	if err := dc.Fill(); err != nil {
		return err
	}
	if err := strokeRect(dc, rr, outlineColor, 2); err != nil {
		return err
	}

	dc.SetHexColor(colorOr(f.Room.FloorColor, design.DefaultFloorColor))
	dc.SetLineWidth(3)
	dc.MoveTo(rr.X, rr.Y+rr.Height)
	dc.LineTo(rr.X+rr.Width, rr.Y+rr.Height)
	return dc.Stroke()
}

// itemRect is the item's rectangle on screen.
func itemRect(el geom.Elevation, item design.Furniture, ds geom.DisplayScale) geom.Rect {
	return el.Matrix().ApplyRect(geom.Footprint2D(item, ds))
}

func (r *Renderer) drawItem(dc Surface, f Frame, el geom.Elevation, item design.Furniture) error {
	rect := itemRect(el, item, r.scales.Get(item.ID))
	selected := item.ID == f.SelectedID
	cx := rect.X + rect.Width/2

	dc.Push()
	defer dc.Pop()

	var err error
	if front := r.frontView(f, item); front != nil {
		r.drawFrontView(dc, front, rect)
	} else {
		err = drawSilhouette(dc, item, rect, selected)
	}

	dc.SetHexColor(outlineColor)
	dc.SetFont(r.label)
	dc.DrawStringAnchored(item.Name, cx, rect.Y-labelOffset, 0.5, 0)
	return err
}

// frontView returns the decoded front image of the item's model, or nil
// while it is loading or when there is none.
func (r *Renderer) frontView(f Frame, item design.Furniture) *gg.ImageBuf {
	if item.ModelID == "" {
		return nil
	}
	m, ok := f.Models[item.ModelID]
	if !ok || m.FrontView == "" {
		return nil
	}
	img, _ := r.images.Lookup(m.FrontView)
	return img
}

func (r *Renderer) drawFrontView(dc Surface, img *gg.ImageBuf, rect geom.Rect) {
	dc.DrawImageEx(img, gg.DrawImageOptions{
		X:         rect.X,
		Y:         rect.Y,
		DstWidth:  rect.Width,
		DstHeight: rect.Height,
	})
	dc.SetHexColor(selectionColor)
	dc.SetFont(r.tag)
	dc.DrawStringAnchored("3D", rect.X+rect.Width/2, rect.Y+rect.Height+12, 0.5, 0)
}

// drawSelection outlines the selected item and draws its resize handle over
// everything else, on the same rectangle hit-testing uses.
func (r *Renderer) drawSelection(dc Surface, el geom.Elevation, item design.Furniture) error {
	rect := itemRect(el, item, r.scales.Get(item.ID))

	dc.Push()
	defer dc.Pop()

	if err := strokeRect(dc, rect, selectionColor, 2); err != nil {
		return err
	}
	return drawHandle(dc, rect, "#FFFFFF")
}

// handleRect is the drawn resize handle in the item's bottom-right corner.
func handleRect(rect geom.Rect) geom.Rect {
	return geom.Rect{
		X:      rect.X + rect.Width - handleSize,
		Y:      rect.Y + rect.Height - handleSize,
		Width:  handleSize,
		Height: handleSize,
	}
}

// handleHitRect is centred on the drawn handle.
func handleHitRect(rect geom.Rect) geom.Rect {
	c := handleRect(rect).Center()
	return geom.Rect{
		X:      c.X - handleHitSize/2,
		Y:      c.Y - handleHitSize/2,
		Width:  handleHitSize,
		Height: handleHitSize,
	}
}

func drawHandle(dc Surface, rect geom.Rect, stroke string) error {
	h := handleRect(rect)
	dc.DrawRectangle(h.X, h.Y, h.Width, h.Height)
	dc.SetHexColor(selectionColor)
	if err := dc.FillPreserve(); err != nil {
		return err
	}
	dc.SetHexColor(stroke)
	dc.SetLineWidth(1)
	return dc.Stroke()
}

func strokeRect(dc Surface, rect geom.Rect, color string, width float64) error {
	dc.SetHexColor(color)
	dc.SetLineWidth(width)
	dc.DrawRectangle(rect.X, rect.Y, rect.Width, rect.Height)
	return dc.Stroke()
}

func colorOr(c, fallback string) string {
	if c == "" {
		return fallback
	}
	return c
}

// RenderPNG draws f once on a fresh surface and encodes it. Images still
// loading are drawn as their fallback; OnReady signals the redraw.
func (r *Renderer) RenderPNG(f Frame, vp geom.Viewport) ([]byte, error) {
	return r.renderPNG(context.Background(), f, vp, false)
}

// CapturePNG is RenderPNG for one-shot output such as thumbnails: it waits
// for pending images until ctx is done and draws the frame again.
func (r *Renderer) CapturePNG(ctx context.Context, f Frame, vp geom.Viewport) ([]byte, error) {
	return r.renderPNG(ctx, f, vp, true)
}

func (r *Renderer) renderPNG(ctx context.Context, f Frame, vp geom.Viewport, settle bool) ([]byte, error) {
	if !vp.Valid() {
		return nil, fmt.Errorf("render png: invalid viewport %gx%g", vp.Width, vp.Height)
	}
	dc := gg.NewContext(int(vp.Width), int(vp.Height))
	defer dc.Close()

	if err := r.Render(dc, f); err != nil {
		return nil, err
	}
	if settle {
		if err := r.images.WaitContext(ctx); err != nil {
			r.logger.Warn("capture without pending images", "error", err)
		}
		if err := r.Render(dc, f); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
