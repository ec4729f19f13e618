package scene

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/geom"
)

// Node is one element of the 3D scene tree.
type Node struct {
	Name string
	// FurnitureID tags the root node of a furniture item. Zero means the
	// node is not an item root.
	FurnitureID int

	Position  mgl64.Vec3
	RotationY float64
	Scale     mgl64.Vec3
	Visible   bool

	Mesh     *Mesh
	Parent   *Node
	Children []*Node
}

func NewNode(name string) *Node {
	return &Node{Name: name, Scale: mgl64.Vec3{1, 1, 1}, Visible: true}
}

// NewMeshNode wraps a mesh in a node.
func NewMeshNode(name string, g *Geometry, m *Material) *Node {
	n := NewNode(name)
	n.Mesh = &Mesh{Geometry: g, Material: m}
	return n
}

func (n *Node) Add(child *Node) {
	if child.Parent != nil {
		child.Parent.Remove(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
}

// Remove detaches child. It does not release resources.
func (n *Node) Remove(child *Node) {
	if i := slices.Index(n.Children, child); i >= 0 {
		n.Children = slices.Delete(n.Children, i, i+1)
		child.Parent = nil
	}
}

// LocalMatrix composes translation, yaw and scale.
func (n *Node) LocalMatrix() mgl64.Mat4 {
	return mgl64.Translate3D(n.Position[0], n.Position[1], n.Position[2]).
		Mul4(mgl64.HomogRotate3DY(n.RotationY)).
		Mul4(mgl64.Scale3D(n.Scale[0], n.Scale[1], n.Scale[2]))
}

func (n *Node) WorldMatrix() mgl64.Mat4 {
	m := n.LocalMatrix()
	for p := n.Parent; p != nil; p = p.Parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Meshes returns every mesh-bearing node in the subtree.
func (n *Node) Meshes() []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.Mesh != nil {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Bounds returns the axis-aligned box of the subtree in the coordinate
// space of n's parent.
func (n *Node) Bounds() geom.Box3 {
	return n.boundsIn(mgl64.Ident4())
}

// LocalBounds ignores n's own transform.
func (n *Node) LocalBounds() geom.Box3 {
	box := geom.EmptyBox()
	if n.Mesh != nil && n.Mesh.Geometry != nil {
		box = box.Union(n.Mesh.Geometry.Bounds)
	}
	for _, c := range n.Children {
		box = box.Union(c.boundsIn(mgl64.Ident4()))
	}
	return box
}

func (n *Node) boundsIn(parent mgl64.Mat4) geom.Box3 {
	m := parent.Mul4(n.LocalMatrix())
	box := geom.EmptyBox()
	if n.Mesh != nil && n.Mesh.Geometry != nil {
		box = box.Union(n.Mesh.Geometry.Bounds.Transform(m))
	}
	for _, c := range n.Children {
		box = box.Union(c.boundsIn(m))
	}
	return box
}

// Dispose releases every geometry and material in the subtree.
func (n *Node) Dispose() {
	n.Walk(func(c *Node) bool {
		c.Mesh.Dispose()
		return true
	})
}

// Materials returns the distinct materials in the subtree.
func (n *Node) Materials() []*Material {
	var out []*Material
	n.Walk(func(c *Node) bool {
		if c.Mesh != nil && c.Mesh.Material != nil && !slices.Contains(out, c.Mesh.Material) {
			out = append(out, c.Mesh.Material)
		}
		return true
	})
	return out
}
