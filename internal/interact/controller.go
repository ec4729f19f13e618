package interact

import (
	"log/slog"

	"github.com/furnivision/furnivision/internal/geom"
)

// Controller turns pointer events into selection changes and furniture
// updates. It is not safe for concurrent use; events arrive on one thread.
type Controller struct {
	store   Store
	view    View
	session *Session
	logger  *slog.Logger
}

func NewController(store Store, view View, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, view: view, logger: logger}
}

// Mode reports the current gesture mode.
func (c *Controller) Mode() Mode {
	if c.session == nil {
		return ModeIdle
	}
	return c.session.Mode
}

// Session returns a copy of the active session, if any.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Controller) PointerDown(p geom.Point) {
	if c.session != nil {
		return
	}

	target := c.view.HitTest(p, c.store.SelectedID())
	var mode Mode
	switch target.Kind {
	case TargetNone:
		c.store.ClearSelection()
		return
	case TargetItem:
		mode = ModeDragging
	case TargetResizeHandle:
		mode = ModeResizing
	case TargetGizmo:
		mode = ModeRotating
	}

	item, ok := c.store.Item(target.ItemID)
	if !ok || !item.Placed() {
		c.store.ClearSelection()
		return
	}
	if err := c.store.Select(item.ID); err != nil {
		c.logger.Warn("select item", "id", item.ID, "error", err)
		return
	}

	s := &Session{Mode: mode, ItemID: item.ID, Anchor: p}
	c.view.Begin(s, target, item)
	c.session = s
	c.setNavigation(false)
	c.logger.Debug("gesture started", "mode", mode.String(), "item", item.ID)
}

func (c *Controller) PointerMove(p geom.Point) {
	s := c.session
	if s == nil {
		return
	}

	item, ok := c.store.Item(s.ItemID)
	if !ok || !item.Placed() {
		c.end()
		return
	}

	prev := s.Anchor
	s.Anchor = p
	d, ok := c.view.ComputeDelta(s, item, prev, p)
	if !ok {
		return
	}
	updated, push := c.view.ApplyDelta(s, item, d)
	if !push {
		return
	}
	updated = c.view.Clamp(c.store.Room(), updated)
	if err := c.store.UpdateFurniture(updated); err != nil {
		c.logger.Warn("update item", "id", item.ID, "error", err)
	}
}

func (c *Controller) PointerUp(geom.Point) { c.end() }

// PointerLeave ends the gesture the same way PointerUp does.
func (c *Controller) PointerLeave() { c.end() }

// Cancel drops any active gesture, for example when the view is torn down.
func (c *Controller) Cancel() { c.end() }

func (c *Controller) end() {
	if c.session == nil {
		return
	}
	c.logger.Debug("gesture ended", "mode", c.session.Mode.String(), "item", c.session.ItemID)
	c.session = nil
	c.setNavigation(true)
}

func (c *Controller) setNavigation(enabled bool) {
	if nav, ok := c.view.(Navigator); ok {
		nav.SetNavigationEnabled(enabled)
	}
}
