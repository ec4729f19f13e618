package canvas

import (
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
)

// Options controls the elevation renderer.
type Options struct {
	// BaseScale is pixels per meter at zoom 1.
	BaseScale float64
	MinZoom   float64
	MaxZoom   float64
	ZoomStep  float64
	// ImageCacheSize is the soft entry limit of the decoded image cache.
	ImageCacheSize int
}

func DefaultOptions() Options {
	return Options{
		BaseScale:      180,
		MinZoom:        0.5,
		MaxZoom:        2.0,
		ZoomStep:       0.1,
		ImageCacheSize: 16,
	}
}

// Surface is the drawing target. *gg.Context implements it.
type Surface interface {
	Width() int
	Height() int
	Clear()
	SetHexColor(hex string)
	SetRGBA(r, g, b, a float64)
	SetLineWidth(width float64)
	DrawRectangle(x, y, w, h float64)
	MoveTo(x, y float64)
	LineTo(x, y float64)
	Fill() error
	Stroke() error
	FillPreserve() error
	DrawImageEx(img *gg.ImageBuf, opts gg.DrawImageOptions)
	SetFont(face text.Face)
	DrawStringAnchored(s string, x, y, ax, ay float64)
	Push()
	Pop()
}

var _ Surface = (*gg.Context)(nil)
