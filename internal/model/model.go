// Package model defines the wire entities exchanged with the events backend.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Placeholder prefixes the backend stores when a user has no real student/national id.
const (
	dummyStudentPrefix  = "DS-"
	dummyNationalPrefix = "DN-"
)

// Flag is a boolean that also accepts 0/1 integers and "true"/"false" strings on decode.
// The backend has serialized is_admin both ways.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true", "1", `"true"`, `"1"`:
		*f = true
	case "false", "0", "null", `"false"`, `"0"`, `""`:
		*f = false
	default:
		return fmt.Errorf("model: invalid flag value %s", b)
	}
	return nil
}

// Profile is the authenticated user's identity/role record.
type Profile struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	FullName            string    `json:"full_name"`
	PhoneNumber         *string   `json:"phone_number,omitempty"`
	IsAdmin             bool      `json:"is_admin"`
	IsActive            bool      `json:"is_active"`
	IsUniversityStudent bool      `json:"is_university_student"`
	StudentID           *string   `json:"student_id,omitempty"`
	NationalID          *string   `json:"national_id,omitempty"`
	CreatedAt           Timestamp `json:"created_at,omitempty"`
}

// UnmarshalJSON normalizes loosely typed boolean fields into strict bools.
func (p *Profile) UnmarshalJSON(b []byte) error {
	type plain Profile
	var aux struct {
		*plain
		IsAdmin             Flag `json:"is_admin"`
		IsActive            Flag `json:"is_active"`
		IsUniversityStudent Flag `json:"is_university_student"`
	}
	aux.plain = (*plain)(p)
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.IsAdmin = bool(aux.IsAdmin)
	p.IsActive = bool(aux.IsActive)
	p.IsUniversityStudent = bool(aux.IsUniversityStudent)
	return nil
}

// DisplayStudentID hides backend placeholder ids.
func (p Profile) DisplayStudentID() string {
	if p.StudentID == nil || strings.HasPrefix(*p.StudentID, dummyStudentPrefix) {
		return ""
	}
	return *p.StudentID
}

// DisplayNationalID hides backend placeholder ids.
func (p Profile) DisplayNationalID() string {
	if p.NationalID == nil || strings.HasPrefix(*p.NationalID, dummyNationalPrefix) {
		return ""
	}
	return *p.NationalID
}

// Phone returns the phone number or "".
func (p Profile) Phone() string {
	if p.PhoneNumber == nil {
		return ""
	}
	return *p.PhoneNumber
}

// Event is a transient copy of a backend event.
type Event struct {
	ID                   int64      `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	EventDate            string     `json:"event_date"`
	EventTime            *string    `json:"event_time,omitempty"`
	Location             string     `json:"location"`
	Capacity             int        `json:"capacity"`
	CurrentRegistrations int        `json:"current_registrations"`
	RegistrationDeadline string     `json:"registration_deadline"`
	ImageURL             *string    `json:"image_url,omitempty"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            *Timestamp `json:"created_at,omitempty"`
	UpdatedAt            *Timestamp `json:"updated_at,omitempty"`
}

// SpotsLeft is a display helper; capacity is enforced by the backend.
func (e Event) SpotsLeft() int {
	if n := e.Capacity - e.CurrentRegistrations; n > 0 {
		return n
	}
	return 0
}

// Time returns event_time as HH:MM, or "" when unknown.
func (e Event) Time() string {
	if e.EventTime == nil || len(*e.EventTime) < 5 {
		return ""
	}
	return (*e.EventTime)[:5]
}

// Image returns the image url or "".
func (e Event) Image() string {
	if e.ImageURL == nil {
		return ""
	}
	return *e.ImageURL
}

// StartsAt parses event_date. Naive timestamps are read in loc.
func (e Event) StartsAt(loc *time.Location) (time.Time, bool) {
	return ParseTimestamp(e.EventDate, loc)
}

// timestampLayouts are the shapes the backend emits for datetime fields.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a backend datetime; naive values are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp is a backend datetime field. The backend stores UTC without an offset, so naive
// values decode as UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	v, ok := ParseTimestamp(s, time.UTC)
	if !ok {
		return fmt.Errorf("timestamp: unrecognised value %q", s)
	}
	t.Time = v
	return nil
}

// EventInput is the create/update payload. EventDate carries the combined timestamp.
type EventInput struct {
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	EventDate            string  `json:"event_date"`
	Location             string  `json:"location"`
	Capacity             int     `json:"capacity"`
	RegistrationDeadline string  `json:"registration_deadline"`
	ImageURL             *string `json:"image_url"`
}

// EventList is the paginated list response.
type EventList struct {
	Events     []Event `json:"events"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}

// Registrant is the user part of a registration projection.
type Registrant struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Registration is a read-only projection used by registrant and "my registrations" views.
type Registration struct {
	ID           int64       `json:"id"`
	EventID      int64       `json:"event_id"`
	UserID       int64       `json:"user_id,omitempty"`
	User         *Registrant `json:"user,omitempty"`
	UserName     string      `json:"user_name,omitempty"`
	UserEmail    string      `json:"user_email,omitempty"`
	EventTitle   string      `json:"event_title,omitempty"`
	IsCancelled  bool        `json:"is_cancelled"`
	RegisteredAt Timestamp   `json:"registered_at"`
	CancelledAt  *Timestamp  `json:"cancelled_at,omitempty"`
}

// Name returns the registrant's display name from whichever shape the backend sent.
func (r Registration) Name() string {
	if r.User != nil && r.User.FullName != "" {
		return r.User.FullName
	}
	return r.UserName
}

// Email returns the registrant's email from whichever shape the backend sent.
func (r Registration) Email() string {
	if r.User != nil && r.User.Email != "" {
		return r.User.Email
	}
	return r.UserEmail
}

// LoginRequest is the credential exchange body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// RegistrationRequest enrols the current user into an event.
type RegistrationRequest struct {
	EventID int64 `json:"event_id"`
}
