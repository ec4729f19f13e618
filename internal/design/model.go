package design

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("furniture not found")
	ErrInvalidRoom      = errors.New("invalid room")
	ErrInvalidFurniture = errors.New("invalid furniture")
)

// RoomShape is informational; all boundary math treats the room as a box.
type RoomShape string

const (
	ShapeRectangular RoomShape = "rectangular"
	ShapeLShaped     RoomShape = "l-shaped"
)

const (
	DefaultWallColor  = "#F5F5F5"
	DefaultFloorColor = "#D2B48C"
)

// Room is an axis-aligned box in meters. X spans Width, Z spans Length and
// Y spans Height.
type Room struct {
	Width              float64   `json:"width" yaml:"width"`
	Length             float64   `json:"length" yaml:"length"`
	Height             float64   `json:"height" yaml:"height"`
	Shape              RoomShape `json:"shape" yaml:"shape"`
	WallColor          string    `json:"wallColor" yaml:"wallColor"`
	FloorColor         string    `json:"floorColor" yaml:"floorColor"`
	ActiveBackgroundID string    `json:"activeBackgroundId,omitempty" yaml:"activeBackgroundId,omitempty"`
}

func DefaultRoom() Room {
	return Room{
		Width:      5,
		Length:     5,
		Height:     3,
		Shape:      ShapeRectangular,
		WallColor:  DefaultWallColor,
		FloorColor: DefaultFloorColor,
	}
}

func (r Room) Validate() error {
	if r.Width <= 0 || r.Length <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %gx%gx%g", ErrInvalidRoom, r.Width, r.Length, r.Height)
	}
	return nil
}

// Position is a point in room meters. In the 3D view Y is derived from the
// loaded geometry, in the 2D elevation Y is the distance below the ceiling.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Furniture struct {
	ID     int     `json:"id"`
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`
	Color  string  `json:"color"`
	// Position is nil until the item has been placed.
	Position *Position `json:"position,omitempty"`
	// Rotation is a yaw about the vertical axis in radians.
	Rotation float64 `json:"rotation,omitempty"`
	ModelID  string  `json:"modelId,omitempty"`
}

func (f Furniture) Placed() bool {
	return f.Position != nil
}

// Clone returns a copy that shares no memory with f.
func (f Furniture) Clone() Furniture {
	if f.Position != nil {
		p := *f.Position
		f.Position = &p
	}
	return f
}

// WithPosition returns a copy of f placed at p.
func (f Furniture) WithPosition(p Position) Furniture {
	f.Position = &p
	return f
}

func (f Furniture) Validate() error {
	if f.Width <= 0 || f.Depth <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: item %d has non-positive dimensions", ErrInvalidFurniture, f.ID)
	}
	return nil
}

type ModelFormat string

const (
	FormatGLB  ModelFormat = "glb"
	FormatGLTF ModelFormat = "gltf"
	FormatOBJ  ModelFormat = "obj"
)

type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// FurnitureModel references a geometry asset that replaces the box
// placeholder once it has loaded.
type FurnitureModel struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	URL        string      `json:"url"`
	Format     ModelFormat `json:"format"`
	Dimensions Dimensions  `json:"dimensions"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	FrontView  string      `json:"frontView,omitempty"`
}

type BackgroundImage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Design is a serializable snapshot of a session.
type Design struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Timestamp   time.Time         `json:"timestamp"`
	Room        Room              `json:"room"`
	Furniture   []Furniture       `json:"furniture"`
	Backgrounds []BackgroundImage `json:"backgrounds,omitempty"`
	Models      []FurnitureModel  `json:"models,omitempty"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
}

type ChangeKind string

const (
	ChangeRoom       ChangeKind = "room.updated"
	ChangeAdded      ChangeKind = "furniture.added"
	ChangeUpdated    ChangeKind = "furniture.updated"
	ChangeRemoved    ChangeKind = "furniture.removed"
	ChangeSelection  ChangeKind = "selection.changed"
	ChangeBackground ChangeKind = "background.changed"
	ChangeModel      ChangeKind = "model.registered"
	ChangeLoaded     ChangeKind = "design.loaded"
)

// Change describes one committed store mutation.
type Change struct {
	Kind        ChangeKind `json:"kind"`
	Revision    uint64     `json:"revision"`
	FurnitureID int        `json:"furnitureId,omitempty"`
}
