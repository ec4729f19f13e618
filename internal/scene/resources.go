package scene

import (
	"sync"

	"github.com/furnivision/furnivision/internal/geom"
)

// Resources hands out geometries and materials and counts how many are
// still live. Every resource belongs to exactly one Resources.
type Resources struct {
	mu       sync.Mutex
	nextID   uint64
	live     map[uint64]string
	created  int
	released int
}

func NewResources() *Resources {
	return &Resources{live: make(map[uint64]string)}
}

func (r *Resources) acquire(kind string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.live[r.nextID] = kind
	r.created++
	return r.nextID
}

// release returns false when id was already released.
func (r *Resources) release(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return false
	}
	delete(r.live, id)
	r.released++
	return true
}

type Stats struct {
	Created   int `json:"created"`
	Released  int `json:"released"`
	Live      int `json:"live"`
	Geometry  int `json:"geometry"`
	Materials int `json:"materials"`
}

func (r *Resources) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Created: r.created, Released: r.released, Live: len(r.live)}
	for _, kind := range r.live {
		switch kind {
		case kindGeometry:
			s.Geometry++
		case kindMaterial:
			s.Materials++
		}
	}
	return s
}

const (
	kindGeometry = "geometry"
	kindMaterial = "material"
)

// Geometry is vertex data summarized by its local bounds.
type Geometry struct {
	id       uint64
	owner    *Resources
	Kind     string
	Bounds   geom.Box3
	disposed bool
}

func (r *Resources) NewGeometry(kind string, bounds geom.Box3) *Geometry {
	return &Geometry{id: r.acquire(kindGeometry), owner: r, Kind: kind, Bounds: bounds}
}

// NewBox returns a box geometry of the given size centred on the origin.
func (r *Resources) NewBox(width, height, depth float64) *Geometry {
	return r.NewGeometry("box", geom.CenteredBox(width, height, depth))
}

// Dispose releases the geometry. Calling it again has no effect.
func (g *Geometry) Dispose() {
	if g == nil || g.disposed {
		return
	}
	g.disposed = true
	g.owner.release(g.id)
}

func (g *Geometry) Disposed() bool { return g.disposed }

// Material is a flat color with an optional emissive tint and texture.
type Material struct {
	id       uint64
	owner    *Resources
	Color    string
	Emissive uint32
	Opacity  float64
	Texture  string
	disposed bool
}

func (r *Resources) NewMaterial(color string) *Material {
	return &Material{id: r.acquire(kindMaterial), owner: r, Color: color, Opacity: 1}
}

func (m *Material) Dispose() {
	if m == nil || m.disposed {
		return
	}
	m.disposed = true
	m.owner.release(m.id)
}

func (m *Material) Disposed() bool { return m.disposed }

// Mesh pairs a geometry with its material.
type Mesh struct {
	Geometry *Geometry
	Material *Material
}

func (m *Mesh) Dispose() {
	if m == nil {
		return
	}
	m.Geometry.Dispose()
	m.Material.Dispose()
}
