package admin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/and161185/eventdesk/internal/errs"
)

// EditParam is the navigation query parameter carrying the edit target.
const EditParam = "editId"

// Mode is Create or Edit(id). The zero value is Create.
type Mode struct {
	id int64
}

// Create is the create-new-event mode.
var Create = Mode{}

// Edit targets an existing event.
func Edit(id int64) Mode { return Mode{id: id} }

func (m Mode) IsEdit() bool { return m.id > 0 }

// EditID returns the target id in edit mode.
func (m Mode) EditID() (int64, bool) { return m.id, m.id > 0 }

// Heading is known before any fetch resolves.
func (m Mode) Heading() string {
	if m.IsEdit() {
		return fmt.Sprintf("Edit Event (ID: %d)", m.id)
	}
	return "Create New Event/Course"
}

// Query encodes the mode back into navigation state.
func (m Mode) Query() url.Values {
	if !m.IsEdit() {
		return url.Values{}
	}
	return url.Values{EditParam: {strconv.FormatInt(m.id, 10)}}
}

// URL returns path with the mode's query attached.
func (m Mode) URL(path string) string {
	if q := m.Query().Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

func (m Mode) String() string {
	if m.IsEdit() {
		return fmt.Sprintf("edit(%d)", m.id)
	}
	return "create"
}

// ParseMode derives the mode from navigation query state. An absent or empty editId is
// Create; anything that is not a positive integer is rejected.
func ParseMode(q url.Values) (Mode, error) {
	raw := strings.TrimSpace(q.Get(EditParam))
	if raw == "" {
		return Create, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Create, errs.Validation(fmt.Sprintf("Invalid event ID %q.", raw))
	}
	return Edit(id), nil
}
