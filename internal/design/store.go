package design

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"
)

// Store owns the room, the furniture list and the selection. Readers get
// copies, so any value handed out stays valid for the revision it was read at.
type Store struct {
	mu          sync.RWMutex
	room        Room
	furniture   []Furniture
	selectedID  int
	nextID      int
	backgrounds []BackgroundImage
	models      map[string]FurnitureModel
	revision    uint64

	// ClearOnResize drops all furniture when the room changes by more than
	// a meter instead of repositioning it.
	ClearOnResize bool

	subMu       sync.Mutex
	subscribers map[int]func(Change)
	nextSub     int
}

func NewStore() *Store {
	return &Store{
		room:        DefaultRoom(),
		nextID:      1,
		models:      make(map[string]FurnitureModel),
		subscribers: make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called after every committed change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// commit bumps the revision. Callers hold mu.
func (s *Store) commit(kind ChangeKind, furnitureID int) Change {
	s.revision++
	return Change{Kind: kind, Revision: s.revision, FurnitureID: furnitureID}
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Room() Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Furniture returns the furniture list in insertion order.
func (s *Store) Furniture() []Furniture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFurniture(s.furniture)
}

func (s *Store) Item(id int) (Furniture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.furniture[i].Clone(), true
	}
	return Furniture{}, false
}

func (s *Store) indexOf(id int) int {
	return slices.IndexFunc(s.furniture, func(f Furniture) bool { return f.ID == id })
}

// SelectedID returns 0 when nothing is selected.
func (s *Store) SelectedID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

func (s *Store) Selected() (Furniture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == 0 {
		return Furniture{}, false
	}
	if i := s.indexOf(s.selectedID); i >= 0 {
		return s.furniture[i].Clone(), true
	}
	return Furniture{}, false
}

// AddFurniture creates an item from a catalog template at the room centre,
// selects it and returns it.
func (s *Store) AddFurniture(t Template) (Furniture, error) {
	s.mu.Lock()
	item := Furniture{
		ID:      s.nextID,
		Type:    t.Type,
		Name:    t.Name,
		Width:   t.Width,
		Depth:   t.Depth,
		Height:  t.Height,
		Color:   t.Color,
		ModelID: t.ModelID,
	}
	item.Position = &Position{X: s.room.Width / 2, Y: 0, Z: s.room.Length / 2}
	if err := item.Validate(); err != nil {
		s.mu.Unlock()
		return Furniture{}, err
	}
	s.nextID++
	s.furniture = append(s.furniture, item)
	s.selectedID = item.ID
	change := s.commit(ChangeAdded, item.ID)
	s.mu.Unlock()

	s.notify(change)
	return item.Clone(), nil
}

// UpdateFurniture replaces the item with the same ID. The selection follows
// the update automatically since it is tracked by ID.
func (s *Store) UpdateFurniture(item Furniture) error {
	if err := item.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.indexOf(item.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update %d: %w", item.ID, ErrNotFound)
	}
	s.furniture[i] = item.Clone()
	change := s.commit(ChangeUpdated, item.ID)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) RemoveFurniture(id int) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("remove %d: %w", id, ErrNotFound)
	}
	s.furniture = slices.Delete(s.furniture, i, i+1)
	if s.selectedID == id {
		s.selectedID = 0
	}
	change := s.commit(ChangeRemoved, id)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// Select makes id the only selected item.
func (s *Store) Select(id int) error {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("select %d: %w", id, ErrNotFound)
	}
	if s.selectedID == id {
		s.mu.Unlock()
		return nil
	}
	s.selectedID = id
	change := s.commit(ChangeSelection, id)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	if s.selectedID == 0 {
		s.mu.Unlock()
		return
	}
	s.selectedID = 0
	change := s.commit(ChangeSelection, 0)
	s.mu.Unlock()

	s.notify(change)
}

// RoomPatch carries a partial room update. Nil fields are left unchanged.
type RoomPatch struct {
	Width      *float64   `json:"width,omitempty"`
	Length     *float64   `json:"length,omitempty"`
	Height     *float64   `json:"height,omitempty"`
	Shape      *RoomShape `json:"shape,omitempty"`
	WallColor  *string    `json:"wallColor,omitempty"`
	FloorColor *string    `json:"floorColor,omitempty"`
}

// resizeThreshold is the change in meters past which furniture is
// repositioned to follow the new room size.
const resizeThreshold = 1.0

func (s *Store) UpdateRoom(p RoomPatch) error {
	s.mu.Lock()
	old := s.room
	next := old
	if p.Width != nil {
		next.Width = *p.Width
	}
	if p.Length != nil {
		next.Length = *p.Length
	}
	if p.Height != nil {
		next.Height = *p.Height
	}
	if p.Shape != nil {
		next.Shape = *p.Shape
	}
	if p.WallColor != nil {
		next.WallColor = *p.WallColor
	}
	if p.FloorColor != nil {
		next.FloorColor = *p.FloorColor
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	significant := math.Abs(next.Width-old.Width) > resizeThreshold ||
		math.Abs(next.Length-old.Length) > resizeThreshold ||
		math.Abs(next.Height-old.Height) > resizeThreshold
	if significant {
		if s.ClearOnResize {
			s.furniture = nil
			s.selectedID = 0
		} else {
			for i, f := range s.furniture {
				s.furniture[i] = reposition(f, old, next)
			}
		}
		slog.Debug("room resized", "width", next.Width, "length", next.Length, "height", next.Height, "cleared", s.ClearOnResize)
	}

	s.room = next
	change := s.commit(ChangeRoom, 0)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// reposition scales an item's position proportionally to the room change
// and keeps its footprint inside the new bounds.
func reposition(f Furniture, old, next Room) Furniture {
	if f.Position == nil {
		return f
	}
	p := *f.Position
	p.X = clampRange(p.X*next.Width/old.Width, f.Width/2, next.Width-f.Width/2)
	p.Z = clampRange(p.Z*next.Length/old.Length, f.Depth/2, next.Length-f.Depth/2)
	p.Y = clampRange(p.Y*next.Height/old.Height, 0, next.Height-f.Height)
	f.Position = &p
	return f
}

// clampRange clamps v to [lo, hi]. When the range is empty the midpoint is
// used so oversized items stay centred.
func clampRange(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}

func (s *Store) Backgrounds() []BackgroundImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.backgrounds)
}

// ActiveBackground returns the background image currently shown behind the
// room, if any.
func (s *Store) ActiveBackground() (BackgroundImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeBackground()
}

func (s *Store) activeBackground() (BackgroundImage, bool) {
	if s.room.ActiveBackgroundID == "" {
		return BackgroundImage{}, false
	}
	for _, b := range s.backgrounds {
		if b.ID == s.room.ActiveBackgroundID {
			return b, true
		}
	}
	return BackgroundImage{}, false
}

// AddBackground appends an image and makes it the active background.
func (s *Store) AddBackground(b BackgroundImage) {
	s.mu.Lock()
	s.backgrounds = append(s.backgrounds, b)
	s.room.ActiveBackgroundID = b.ID
	change := s.commit(ChangeBackground, 0)
	s.mu.Unlock()

	s.notify(change)
}

func (s *Store) RemoveBackground(id string) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.backgrounds, func(b BackgroundImage) bool { return b.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("background %s: %w", id, ErrNotFound)
	}
	s.backgrounds = slices.Delete(s.backgrounds, i, i+1)
	if s.room.ActiveBackgroundID == id {
		s.room.ActiveBackgroundID = ""
	}
	change := s.commit(ChangeBackground, 0)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// SetActiveBackground selects a stored background. An empty id clears it.
func (s *Store) SetActiveBackground(id string) error {
	s.mu.Lock()
	if id != "" && !slices.ContainsFunc(s.backgrounds, func(b BackgroundImage) bool { return b.ID == id }) {
		s.mu.Unlock()
		return fmt.Errorf("background %s: %w", id, ErrNotFound)
	}
	s.room.ActiveBackgroundID = id
	change := s.commit(ChangeBackground, 0)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) RegisterModel(m FurnitureModel) {
	s.mu.Lock()
	s.models[m.ID] = m
	change := s.commit(ChangeModel, 0)
	s.mu.Unlock()

	s.notify(change)
}

func (s *Store) Model(id string) (FurnitureModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	return m, ok
}

// Models returns the model library sorted by ID.
func (s *Store) Models() []FurnitureModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FurnitureModel, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b FurnitureModel) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Snapshot captures the current state as a Design.
func (s *Store) Snapshot(id, name string) Design {
	models := s.Models()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Design{
		ID:          id,
		Name:        name,
		Timestamp:   time.Now().UTC(),
		Room:        s.room,
		Furniture:   cloneFurniture(s.furniture),
		Backgrounds: slices.Clone(s.backgrounds),
		Models:      models,
	}
}

// Load replaces the store contents with d and clears the selection.
func (s *Store) Load(d Design) error {
	if err := d.Room.Validate(); err != nil {
		return err
	}
	maxID := 0
	for _, f := range d.Furniture {
		if err := f.Validate(); err != nil {
			return err
		}
		maxID = max(maxID, f.ID)
	}

	s.mu.Lock()
	s.room = d.Room
	s.furniture = cloneFurniture(d.Furniture)
	s.backgrounds = slices.Clone(d.Backgrounds)
	s.models = make(map[string]FurnitureModel, len(d.Models))
	for _, m := range d.Models {
		s.models[m.ID] = m
	}
	s.selectedID = 0
	s.nextID = maxID + 1
	change := s.commit(ChangeLoaded, 0)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func cloneFurniture(in []Furniture) []Furniture {
	if in == nil {
		return nil
	}
	out := make([]Furniture, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}
