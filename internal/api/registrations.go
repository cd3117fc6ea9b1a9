package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/and161185/eventdesk/internal/model"
)

// Registrations wraps /api/registrations.
type Registrations struct{ t Transport }

// Register enrols the current user into eventID.
func (r *Registrations) Register(ctx context.Context, eventID int64) (*model.Registration, error) {
	var out model.Registration
	if err := r.t.Post(ctx, "/api/registrations/", model.RegistrationRequest{EventID: eventID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Registrants lists everyone registered for eventID. Admin only on the backend.
func (r *Registrations) Registrants(ctx context.Context, eventID int64) ([]model.Registration, error) {
	var out []model.Registration
	if err := r.t.Get(ctx, fmt.Sprintf("/api/registrations/event/%d/registrants", eventID), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Registration{}
	}
	return out, nil
}

// Mine lists the current user's registrations.
func (r *Registrations) Mine(ctx context.Context, includeCancelled bool) ([]model.Registration, error) {
	q := url.Values{"include_cancelled": {strconv.FormatBool(includeCancelled)}}
	var out []model.Registration
	if err := r.t.Get(ctx, "/api/registrations/my-registrations", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Registration{}
	}
	return out, nil
}

// CancelAck is the cancellation acknowledgement.
type CancelAck struct {
	Message        string `json:"message"`
	RegistrationID int64  `json:"registration_id"`
}

// Cancel cancels one of the current user's registrations.
func (r *Registrations) Cancel(ctx context.Context, id int64) (*CancelAck, error) {
	b, err := r.t.Delete(ctx, fmt.Sprintf("/api/registrations/%d", id))
	if err != nil {
		return nil, err
	}
	var ack CancelAck
	if len(b) > 0 {
		if err := json.Unmarshal(b, &ack); err != nil {
			return nil, fmt.Errorf("decode cancel ack: %w", err)
		}
	}
	return &ack, nil
}
