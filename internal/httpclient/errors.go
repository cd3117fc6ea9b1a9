package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/eventdesk/internal/errs"
)

// ConnectivityMessage is shown when no response was received.
const ConnectivityMessage = "Unable to reach the server. Please check your network connection and try again."

// Error is a non-2xx backend answer. Detail is the raw "detail" member of the body, if any.
type Error struct {
	Method string
	Path   string
	Status int
	Detail json.RawMessage
}

func (e *Error) Error() string {
	if d := e.DetailText(); d != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, d)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Is maps the status onto the errs sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case errs.ErrNotFound:
		return e.Status == 404
	case errs.ErrUnauthorized:
		return e.Status == 401 || e.Status == 403
	case errs.ErrBackend:
		return e.Status != 404 && e.Status != 401 && e.Status != 403
	}
	return false
}

// FieldError is one entry of a list-shaped detail.
type FieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// Path joins loc with dots.
func (f FieldError) Path() string {
	parts := make([]string, len(f.Loc))
	for i, p := range f.Loc {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}

// Fields decodes a list-shaped detail; nil for any other shape.
func (e *Error) Fields() []FieldError {
	d := bytes.TrimSpace(e.Detail)
	if len(d) == 0 || d[0] != '[' {
		return nil
	}
	var out []FieldError
	if err := json.Unmarshal(d, &out); err != nil {
		return nil
	}
	return out
}

// DetailText flattens the detail: a string as-is, a list as "loc.path: msg | ...",
// an object with msg as that msg, anything else as its JSON text.
func (e *Error) DetailText() string {
	d := bytes.TrimSpace(e.Detail)
	if len(d) == 0 || string(d) == "null" {
		return ""
	}
	switch d[0] {
	case '"':
		var s string
		if json.Unmarshal(d, &s) == nil {
			return s
		}
	case '[':
		if fields := e.Fields(); fields != nil {
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				parts = append(parts, f.Path()+": "+f.Msg)
			}
			return strings.Join(parts, " | ")
		}
	case '{':
		var obj struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(d, &obj) == nil && obj.Msg != "" {
			return obj.Msg
		}
	}
	return string(d)
}

// Message turns err into a display string. Backend detail wins, transport failures get the
// generic connectivity text, local validation errors show their own text, and everything
// else falls back to fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var he *Error
	if errors.As(err, &he) {
		if d := he.DetailText(); d != "" {
			return d
		}
		return fallback
	}
	if errors.Is(err, errs.ErrTransport) {
		return ConnectivityMessage
	}
	if errors.Is(err, errs.ErrValidation) {
		return err.Error()
	}
	return fallback
}
