// Package admin drives the admin dashboard: list and edit-target loading, create/update
// submission and confirmed deletion, keeping its own view in step with the backend.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/model"
)

// EventsAPI is the part of *api.Events the controller uses.
type EventsAPI interface {
	List(ctx context.Context, includePast, includeInactive bool) (*model.EventList, error)
	Get(ctx context.Context, id int64) (*model.Event, error)
	Create(ctx context.Context, in model.EventInput) (*model.Event, error)
	Update(ctx context.Context, id int64, in model.EventInput) (*model.Event, error)
	Remove(ctx context.Context, id int64) (json.RawMessage, error)
}

// Messages rendered by the dashboard.
const (
	EmptyMessage      = "No events found. Use the form above to create one."
	ListFailedMessage = "Failed to load events."
	SaveFailedMessage = "Failed to process event. Check your inputs."
	DeleteFailedMsg   = "Failed to delete event."
	NotConfirmedMsg   = "Deletion was not confirmed."
)

// StatusKind classifies a status line.
type StatusKind string

const (
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is the outcome line of the last action.
type Status struct {
	Kind StatusKind
	Text string
}

// View is the dashboard state. List and target have independent error slots.
type View struct {
	Mode      Mode
	Heading   string
	Events    []model.Event
	ListErr   error
	Target    *model.Event
	TargetErr error
	Form      Form
	Status    *Status
}

// Empty reports a successful list fetch that returned nothing.
func (v *View) Empty() bool { return v.ListErr == nil && len(v.Events) == 0 }

// ListMessage renders ListErr.
func (v *View) ListMessage() string { return httpclient.Message(v.ListErr, ListFailedMessage) }

// TargetMessage renders TargetErr.
func (v *View) TargetMessage() string {
	if v.TargetErr == nil {
		return ""
	}
	id, _ := v.Mode.EditID()
	return fmt.Sprintf("Failed to load event ID %d for editing.", id)
}

func (v *View) clone() *View {
	c := *v
	c.Events = append([]model.Event(nil), v.Events...)
	if v.Target != nil {
		t := *v.Target
		c.Target = &t
	}
	if v.Status != nil {
		s := *v.Status
		c.Status = &s
	}
	return &c
}

// Controller is the only writer of its view. Calls are serialized.
type Controller struct {
	events  EventsAPI
	log     *zap.Logger
	onSaved func(*model.Event)

	mu   sync.Mutex
	view *View
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

// WithOnSaved registers a hook run after a successful save, once the list has been reloaded.
func WithOnSaved(fn func(*model.Event)) Option { return func(c *Controller) { c.onSaved = fn } }

func NewController(events EventsAPI, opts ...Option) *Controller {
	c := &Controller{events: events, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// View returns a copy of the current view, or nil before the first Load.
func (c *Controller) View() *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return nil
	}
	return c.view.clone()
}

// Load fetches the full list and, in edit mode, the target, concurrently. One failing does
// not affect the other.
func (c *Controller) Load(ctx context.Context, mode Mode) *View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx, mode).clone()
}

func (c *Controller) load(ctx context.Context, mode Mode) *View {
	v := &View{Mode: mode, Heading: mode.Heading(), Form: NewForm()}

	// plain Group: a failed list fetch must not cancel the target fetch
	var g errgroup.Group
	g.Go(func() error {
		list, err := c.events.List(ctx, true, true)
		if err != nil {
			c.log.Info("admin: list events", zap.Error(err))
			v.ListErr = err
			return nil
		}
		v.Events = list.Events
		return nil
	})
	if id, ok := mode.EditID(); ok {
		g.Go(func() error {
			ev, err := c.events.Get(ctx, id)
			if err != nil {
				c.log.Info("admin: load edit target", zap.Int64("id", id), zap.Error(err))
				v.TargetErr = err
				return nil
			}
			v.Target = ev
			return nil
		})
	}
	_ = g.Wait()

	if v.Target != nil {
		v.Form = FormFromEvent(*v.Target)
	}
	c.view = v
	return v
}

func (c *Controller) current(mode Mode) *View {
	if c.view == nil || c.view.Mode != mode {
		return &View{Mode: mode, Heading: mode.Heading(), Form: NewForm()}
	}
	return c.view
}

// Submit validates f and creates (Create mode) or updates (Edit mode). On success the list is
// reloaded and the returned view is in Create mode. On failure the view keeps mode and form.
func (c *Controller) Submit(ctx context.Context, mode Mode, f Form) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.current(mode)
	v.Form = f
	if err := f.Validate(); err != nil {
		v.Status = &Status{Kind: StatusError, Text: err.Error()}
		c.view = v
		return v.clone(), err
	}

	var (
		ev   *model.Event
		err  error
		verb = "created"
	)
	if id, ok := mode.EditID(); ok {
		verb = "updated"
		ev, err = c.events.Update(ctx, id, f.Input())
	} else {
		ev, err = c.events.Create(ctx, f.Input())
	}
	if err != nil {
		c.log.Info("admin: save event", zap.Stringer("mode", mode), zap.Error(err))
		v.Status = &Status{Kind: StatusError, Text: httpclient.Message(err, SaveFailedMessage)}
		c.view = v
		return v.clone(), err
	}

	c.log.Info("admin: event saved", zap.Int64("id", ev.ID), zap.String("action", verb))
	nv := c.load(ctx, Create)
	nv.Status = &Status{Kind: StatusSuccess, Text: fmt.Sprintf("Event '%s' %s successfully!", ev.Title, verb)}
	if c.onSaved != nil {
		c.onSaved(ev)
	}
	return nv.clone(), nil
}

// Delete removes id after explicit confirmation. The list is reloaded; deleting the active
// edit target drops back to Create mode.
func (c *Controller) Delete(ctx context.Context, mode Mode, id int64, confirmed bool) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.current(mode)
	if !confirmed {
		v.Status = &Status{Kind: StatusError, Text: NotConfirmedMsg}
		c.view = v
		return v.clone(), errs.ErrNotConfirmed
	}
	if _, err := c.events.Remove(ctx, id); err != nil {
		c.log.Info("admin: delete event", zap.Int64("id", id), zap.Error(err))
		v.Status = &Status{Kind: StatusError, Text: httpclient.Message(err, DeleteFailedMsg)}
		c.view = v
		return v.clone(), err
	}

	next := mode
	if target, ok := mode.EditID(); ok && target == id {
		next = Create
	}
	c.log.Info("admin: event deleted", zap.Int64("id", id))
	nv := c.load(ctx, next)
	nv.Status = &Status{Kind: StatusSuccess, Text: fmt.Sprintf("Event %d deleted successfully.", id)}
	return nv.clone(), nil
}
