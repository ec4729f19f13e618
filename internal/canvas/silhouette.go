package canvas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

const legColor = "#5C4033"

// drawSilhouette paints a type-specific front view of the item inside rect.
func drawSilhouette(dc Surface, item design.Furniture, rect geom.Rect, selected bool) error {
	stroke, lw := outlineColor, 1.0
	if selected {
		stroke, lw = selectionColor, 2.0
	}
	p := painter{dc: dc, stroke: stroke, width: lw}

	switch strings.ToLower(item.Type) {
	case "chair":
		return drawChair(p, rect, item.Color)
	case "table":
		return drawTable(p, rect, item.Color)
	case "sofa":
		return drawSofa(p, rect, item.Color)
	default:
		return p.rects(item.Color, rect)
	}
}

type painter struct {
	dc     Surface
	stroke string
	width  float64
}

// rects fills and outlines one path made of rs.
func (p painter) rects(fill string, rs ...geom.Rect) error {
	for _, r := range rs {
		p.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	}
	p.dc.SetHexColor(fill)
	if err := p.dc.FillPreserve(); err != nil {
		return err
	}
	p.dc.SetHexColor(p.stroke)
	p.dc.SetLineWidth(p.width)
	return p.dc.Stroke()
}

func drawChair(p painter, r geom.Rect, color string) error {
	backH := r.Height * 0.65
	seatD := r.Height * 0.35
	legW := r.Width * 0.08

	if err := p.rects(color, geom.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: backH}); err != nil {
		return err
	}
	if err := p.rects(color, geom.Rect{X: r.X, Y: r.Y + backH, Width: r.Width, Height: seatD * 0.3}); err != nil {
		return err
	}
	legY := r.Y + backH + seatD*0.3
	if err := p.rects(color,
		geom.Rect{X: r.X, Y: legY, Width: legW, Height: seatD * 0.7},
		geom.Rect{X: r.X + r.Width - legW, Y: legY, Width: legW, Height: seatD * 0.7},
	); err != nil {
		return err
	}

	const bars = 3
	spacing := backH / (bars + 1)
	barW := r.Width * 0.8
	barH := backH * 0.05
	cx := r.X + r.Width/2
	slats := make([]geom.Rect, 0, bars)
	for i := range bars {
		slats = append(slats, geom.Rect{X: cx - barW/2, Y: r.Y + float64(i+1)*spacing, Width: barW, Height: barH})
	}
	return p.rects(AdjustColor(color, -20), slats...)
}

func drawTable(p painter, r geom.Rect, color string) error {
	top := r.Height * 0.08
	legW := r.Width * 0.08

	if err := p.rects(color, geom.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: top}); err != nil {
		return err
	}
	if err := p.rects(color,
		geom.Rect{X: r.X + legW, Y: r.Y + top, Width: legW, Height: r.Height - top},
		geom.Rect{X: r.X + r.Width - legW*2, Y: r.Y + top, Width: legW, Height: r.Height - top},
	); err != nil {
		return err
	}
	cx := r.X + r.Width/2
	beam := geom.Rect{X: cx - r.Width/3, Y: r.Y + r.Height*0.6, Width: r.Width * 2 / 3, Height: r.Height * 0.05}
	return p.rects(AdjustColor(color, -20), beam)
}

func drawSofa(p painter, r geom.Rect, color string) error {
	backH := r.Height * 0.6
	seatH := r.Height - backH
	armW := r.Width * 0.15
	gap := r.Width * 0.05

	if err := p.rects(color, geom.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: backH}); err != nil {
		return err
	}
	if err := p.rects(color, geom.Rect{X: r.X, Y: r.Y + backH, Width: r.Width, Height: seatH * 0.6}); err != nil {
		return err
	}
	armH := backH + seatH*0.3
	if err := p.rects(AdjustColor(color, -30),
		geom.Rect{X: r.X, Y: r.Y, Width: armW, Height: armH},
		geom.Rect{X: r.X + r.Width - armW, Y: r.Y, Width: armW, Height: armH},
	); err != nil {
		return err
	}

	legW := r.Width * 0.05
	legH := r.Height * 0.1
	if err := p.rects(legColor,
		geom.Rect{X: r.X + armW/2 - legW/2, Y: r.Y + r.Height - legH, Width: legW, Height: legH},
		geom.Rect{X: r.X + r.Width - armW/2 - legW/2, Y: r.Y + r.Height - legH, Width: legW, Height: legH},
	); err != nil {
		return err
	}

	// Cushion count is decided on the on-screen width in pixels.
	count := 2
	if r.Width > 1.2 {
		count = 3
	}
	cushionW := (r.Width - 2*armW - float64(count+1)*gap) / float64(count)
	cushions := make([]geom.Rect, 0, count)
	for i := range count {
		x := r.X + armW + gap + (cushionW+gap)*float64(i)
		cushions = append(cushions, geom.Rect{X: x, Y: r.Y + backH + seatH*0.1, Width: cushionW, Height: seatH * 0.4})
	}
	return p.rects(AdjustColor(color, 20), cushions...)
}

// AdjustColor shifts each channel of a #RRGGBB color by amount, clamped to
// [0, 255]. Colors it cannot parse are returned unchanged.
func AdjustColor(hex string, amount int) string {
	if len(hex) != 7 || hex[0] != '#' {
		return hex
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return hex
	}
	ch := func(shift uint) int {
		return min(255, max(0, int(v>>shift&0xFF)+amount))
	}
	return fmt.Sprintf("#%02x%02x%02x", ch(16), ch(8), ch(0))
}
