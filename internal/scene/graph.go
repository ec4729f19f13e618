package scene

import (
	"math"

	"github.com/furnivision/furnivision/internal/geom"
)

// maxOwnerDepth bounds the upward walk from a hit mesh to its item root.
const maxOwnerDepth = 64

// Graph is the persistent 3D scene. Items hang directly off Root and are
// indexed by furniture ID.
type Graph struct {
	Root      *Node
	Resources *Resources
	items     map[int]*Node
}

func NewGraph(res *Resources) *Graph {
	return &Graph{
		Root:      NewNode("scene"),
		Resources: res,
		items:     make(map[int]*Node),
	}
}

// Attach adds an item root under Root and indexes it. An existing node for
// the same ID is detached first but not disposed.
func (g *Graph) Attach(n *Node) {
	if old, ok := g.items[n.FurnitureID]; ok && old != n {
		g.Root.Remove(old)
	}
	g.items[n.FurnitureID] = n
	g.Root.Add(n)
}

// Detach removes the item's node from the tree and the index and returns it.
func (g *Graph) Detach(id int) (*Node, bool) {
	n, ok := g.items[id]
	if !ok {
		return nil, false
	}
	delete(g.items, id)
	g.Root.Remove(n)
	return n, true
}

func (g *Graph) Item(id int) (*Node, bool) {
	n, ok := g.items[id]
	return n, ok
}

// ItemIDs returns the indexed furniture IDs in no particular order.
func (g *Graph) ItemIDs() []int {
	ids := make([]int, 0, len(g.items))
	for id := range g.items {
		ids = append(ids, id)
	}
	return ids
}

func (g *Graph) Len() int { return len(g.items) }

// Owner walks up from n to the nearest node tagged with a furniture ID.
func Owner(n *Node) (*Node, bool) {
	for depth := 0; n != nil && depth < maxOwnerDepth; depth++ {
		if n.FurnitureID != 0 {
			return n, true
		}
		n = n.Parent
	}
	return nil, false
}

// Hit is the result of a pick.
type Hit struct {
	Item     *Node
	Mesh     *Node
	Distance float64
}

// Pick casts r against every visible item mesh and returns the nearest hit
// resolved to its item root. Meshes are tested by world-space bounds.
func (g *Graph) Pick(r geom.Ray) (Hit, bool) {
	best := Hit{Distance: math.Inf(1)}
	for _, item := range g.items {
		if !item.Visible {
			continue
		}
		for _, m := range item.Meshes() {
			if !m.Visible || m.Mesh.Geometry == nil {
				continue
			}
			box := m.Mesh.Geometry.Bounds.Transform(m.WorldMatrix())
			d, ok := r.IntersectBox(box)
			if !ok || d >= best.Distance {
				continue
			}
			owner, ok := Owner(m)
			if !ok {
				continue
			}
			best = Hit{Item: owner, Mesh: m, Distance: d}
		}
	}
	if best.Item == nil {
		return Hit{}, false
	}
	return best, true
}

// Clear disposes and removes every item.
func (g *Graph) Clear() {
	for id := range g.items {
		n, _ := g.Detach(id)
		n.Dispose()
	}
}
