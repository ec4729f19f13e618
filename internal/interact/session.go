package interact

import (
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

// Mode is the controller state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDragging
	ModeRotating
	ModeResizing
)

func (m Mode) String() string {
	switch m {
	case ModeDragging:
		return "dragging"
	case ModeRotating:
		return "rotating"
	case ModeResizing:
		return "resizing"
	}
	return "idle"
}

// TargetKind says what a pointer-down landed on.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetItem
	TargetResizeHandle
	TargetGizmo
)

type Target struct {
	Kind   TargetKind
	ItemID int
	// Point is the world-space grab point for view-specific use.
	Point [3]float64
}

// Session is the per-gesture state. It exists only between pointer-down
// and pointer-up.
type Session struct {
	Mode   Mode
	ItemID int
	// Anchor is the previous pointer sample. Deltas are computed against it
	// and it is advanced on every move.
	Anchor geom.Point
	// PlaneHeight is the height of the drag plane in the 3D view.
	PlaneHeight float64
}

// Delta is a view-computed change for one pointer move.
type Delta struct {
	X, Y, Z float64
	Angle   float64
	// Pixels is the raw pointer movement for resize gestures.
	Pixels geom.Point
}

// View supplies the view-specific parts of the gesture.
type View interface {
	HitTest(p geom.Point, selectedID int) Target
	// Begin prepares s for a gesture on item.
	Begin(s *Session, t Target, item design.Furniture)
	ComputeDelta(s *Session, item design.Furniture, prev, cur geom.Point) (Delta, bool)
	// ApplyDelta returns the updated item and whether it must be pushed to
	// the store.
	ApplyDelta(s *Session, item design.Furniture, d Delta) (design.Furniture, bool)
	Clamp(room design.Room, item design.Furniture) design.Furniture
}

// Navigator is implemented by views whose camera navigation must be
// suspended during a gesture.
type Navigator interface {
	SetNavigationEnabled(enabled bool)
}

// Store is the part of design.Store the controller needs.
type Store interface {
	Room() design.Room
	Item(id int) (design.Furniture, bool)
	SelectedID() int
	Select(id int) error
	ClearSelection()
	UpdateFurniture(item design.Furniture) error
}
