package canvas

import (
	"sync"

	"github.com/furnivision/furnivision/internal/geom"
)

// MinDisplayScale is the smallest visual enlargement a resize gesture can
// produce.
const MinDisplayScale = 0.5

// Scales is the per-item 2D display scale side table. It never affects the
// furniture's real dimensions.
type Scales struct {
	mu     sync.RWMutex
	scales map[int]geom.DisplayScale
}

func NewScales() *Scales {
	return &Scales{scales: make(map[int]geom.DisplayScale)}
}

// Get returns the item's scale, or 1x1 when none has been set.
func (s *Scales) Get(id int) geom.DisplayScale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sc, ok := s.scales[id]; ok {
		return sc
	}
	return geom.UnitScale
}

func (s *Scales) Set(id int, sc geom.DisplayScale) {
	sc.X = max(MinDisplayScale, sc.X)
	sc.Y = max(MinDisplayScale, sc.Y)
	s.mu.Lock()
	s.scales[id] = sc
	s.mu.Unlock()
}

func (s *Scales) Delete(id int) {
	s.mu.Lock()
	delete(s.scales, id)
	s.mu.Unlock()
}

// Prune drops entries for items that no longer exist.
func (s *Scales) Prune(live map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.scales {
		if !live[id] {
			delete(s.scales, id)
		}
	}
}

// Snapshot returns a copy of the table.
func (s *Scales) Snapshot() map[int]geom.DisplayScale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]geom.DisplayScale, len(s.scales))
	for id, sc := range s.scales {
		out[id] = sc
	}
	return out
}
