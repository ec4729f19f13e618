package asset

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/scene"
)

var (
	ErrNotFound          = errors.New("asset not found")
	ErrUnsupportedFormat = errors.New("unsupported asset format")
	ErrNoGeometry        = errors.New("model has no measurable geometry")
	ErrRemoteNotAllowed  = errors.New("remote host not allowed")
	ErrTooLarge          = errors.New("asset exceeds size limit")
)

const defaultPartColor = "#CCCCCC"

// Part is one drawable sub-mesh, summarized by its bounds in model space.
type Part struct {
	Name   string
	Color  string
	Bounds geom.Box3
}

// Decoder turns a model file into parts.
type Decoder func(data []byte) ([]Part, error)

// DefaultDecoders covers the formats the upload handler accepts.
func DefaultDecoders() map[design.ModelFormat]Decoder {
	return map[design.ModelFormat]Decoder{
		design.FormatGLB:  DecodeGLB,
		design.FormatGLTF: DecodeGLTF,
		design.FormatOBJ:  DecodeOBJ,
	}
}

// FormatOf returns the declared format, falling back to the URL extension.
func FormatOf(m design.FurnitureModel) design.ModelFormat {
	if m.Format != "" {
		return design.ModelFormat(strings.ToLower(string(m.Format)))
	}
	return formatFromName(m.URL)
}

func formatFromName(name string) design.ModelFormat {
	return design.ModelFormat(strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."))
}

// Bounds returns the union of every part's bounds.
func Bounds(parts []Part) geom.Box3 {
	b := geom.EmptyBox()
	for _, p := range parts {
		b = b.Union(p.Bounds)
	}
	return b
}

// buildNode allocates one mesh node per part from res.
func buildNode(name string, parts []Part, res *scene.Resources) *scene.Node {
	root := scene.NewNode(name)
	for i, p := range parts {
		n := p.Name
		if n == "" {
			n = fmt.Sprintf("part-%d", i)
		}
		color := p.Color
		if color == "" {
			color = defaultPartColor
		}
		root.Add(scene.NewMeshNode(n, res.NewGeometry("mesh", p.Bounds), res.NewMaterial(color)))
	}
	return root
}
