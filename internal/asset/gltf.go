package asset

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/furnivision/furnivision/internal/geom"
)

// DecodeGLB reads a binary glTF file. Bounds come from the POSITION
// accessors' min/max, so vertex data is never walked.
func DecodeGLB(data []byte) ([]Part, error) {
	if !bytes.HasPrefix(data, []byte("glTF")) {
		return nil, fmt.Errorf("glb: bad magic")
	}
	return decodeGLTF("glb", data)
}

// DecodeGLTF reads a glTF document. Every mesh primitive becomes one part
// with its bounds transformed into model space.
func DecodeGLTF(data []byte) ([]Part, error) {
	return decodeGLTF("gltf", data)
}

func decodeGLTF(kind string, data []byte) ([]Part, error) {
	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	var parts []Part
	visited := make(map[int]bool)
	var walk func(idx int, parent mgl64.Mat4)
	walk = func(idx int, parent mgl64.Mat4) {
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true
		n := doc.Nodes[idx]
		world := parent.Mul4(localMatrix(n))
		if n.Mesh != nil {
			parts = append(parts, meshParts(&doc, *n.Mesh, n.Name, world)...)
		}
		for _, c := range n.Children {
			walk(c, world)
		}
	}

	if roots := sceneRoots(&doc); len(roots) > 0 {
		for _, r := range roots {
			walk(r, mgl64.Ident4())
		}
	} else {
		for i := range doc.Meshes {
			parts = append(parts, meshParts(&doc, i, "", mgl64.Ident4())...)
		}
	}

	if len(parts) == 0 {
		return nil, ErrNoGeometry
	}
	return parts, nil
}

// sceneRoots prefers the default scene, then the first scene, then every
// node no other node lists as a child.
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			s = *doc.Scene
		}
		return doc.Scenes[s].Nodes
	}
	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var out []int
	for i := range doc.Nodes {
		if !child[i] {
			out = append(out, i)
		}
	}
	return out
}

func meshParts(doc *gltf.Document, idx int, nodeName string, world mgl64.Mat4) []Part {
	if idx < 0 || idx >= len(doc.Meshes) {
		return nil
	}
	m := doc.Meshes[idx]
	name := m.Name
	if name == "" {
		name = nodeName
	}
	var out []Part
	for _, p := range m.Primitives {
		ai, ok := p.Attributes[gltf.POSITION]
		if !ok || ai < 0 || ai >= len(doc.Accessors) {
			continue
		}
		acc := doc.Accessors[ai]
		if len(acc.Min) < 3 || len(acc.Max) < 3 {
			continue
		}
		box := geom.Box3{
			Min: mgl64.Vec3{acc.Min[0], acc.Min[1], acc.Min[2]},
			Max: mgl64.Vec3{acc.Max[0], acc.Max[1], acc.Max[2]},
		}
		out = append(out, Part{Name: name, Color: materialColor(doc, p.Material), Bounds: box.Transform(world)})
	}
	return out
}

func materialColor(doc *gltf.Document, idx *int) string {
	if idx == nil || *idx < 0 || *idx >= len(doc.Materials) {
		return defaultPartColor
	}
	pbr := doc.Materials[*idx].PBRMetallicRoughness
	if pbr == nil || pbr.BaseColorFactor == nil {
		return defaultPartColor
	}
	f := *pbr.BaseColorFactor
	return fmt.Sprintf("#%02X%02X%02X", channel(f[0]), channel(f[1]), channel(f[2]))
}

func channel(v float64) uint8 {
	return uint8(math.Round(geom.Clamp(v, 0, 1) * 255))
}

// localMatrix composes matrix and TRS; a node sets one or the other, and an
// unset field decodes as its identity or as zeros.
func localMatrix(n *gltf.Node) mgl64.Mat4 {
	m := mgl64.Ident4()
	if n.Matrix != ([16]float64{}) {
		m = mgl64.Mat4(n.Matrix)
	}
	t := n.Translation
	m = m.Mul4(mgl64.Translate3D(t[0], t[1], t[2]))
	if r := n.Rotation; r != ([4]float64{}) {
		q := mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := n.Scale; s != ([3]float64{}) {
		m = m.Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
	}
	return m
}
