package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/and161185/eventdesk/internal/model"
)

// ListPageSize approximates "fetch all" in one round trip; it is the backend's maximum.
const ListPageSize = 100

// Events wraps /api/events.
type Events struct{ t Transport }

// List fetches one large page. Both flags are always sent explicitly.
func (e *Events) List(ctx context.Context, includePast, includeInactive bool) (*model.EventList, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(ListPageSize))
	q.Set("include_past", strconv.FormatBool(includePast))
	q.Set("include_inactive", strconv.FormatBool(includeInactive))

	var out model.EventList
	if err := e.t.Get(ctx, "/api/events/", q, &out); err != nil {
		return nil, err
	}
	if out.Events == nil {
		out.Events = []model.Event{}
	}
	return &out, nil
}

// Get fetches one event. A missing event yields an error matching errs.ErrNotFound.
func (e *Events) Get(ctx context.Context, id int64) (*model.Event, error) {
	var out model.Event
	if err := e.t.Get(ctx, eventPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create returns the created event including its server-assigned id.
func (e *Events) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	var out model.Event
	if err := e.t.Post(ctx, "/api/events/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the event (full PUT).
func (e *Events) Update(ctx context.Context, id int64, in model.EventInput) (*model.Event, error) {
	var out model.Event
	if err := e.t.Put(ctx, eventPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove deletes the event and returns whatever the backend acknowledged (possibly empty).
func (e *Events) Remove(ctx context.Context, id int64) (json.RawMessage, error) {
	b, err := e.t.Delete(ctx, eventPath(id))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func eventPath(id int64) string { return fmt.Sprintf("/api/events/%d", id) }
