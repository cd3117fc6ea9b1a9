package admin

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/model"
)

// DefaultCapacity pre-fills a blank form.
const DefaultCapacity = 10

// ErrRequiredFields is returned by Form.Validate; it matches errs.ErrValidation.
var ErrRequiredFields = errs.Validation("Please fill in all required fields (Title, Description, Event Date, Event Time, Registration Deadline).")

// Form is the create/edit sub-form. Date (YYYY-MM-DD) and time (HH:MM) are collected
// separately; the deadline is YYYY-MM-DDTHH:MM.
type Form struct {
	Title                string `form:"title" validate:"required"`
	Description          string `form:"description" validate:"required"`
	EventDate            string `form:"event_date" validate:"required"`
	EventTime            string `form:"event_time" validate:"required"`
	Location             string `form:"location"`
	Capacity             int    `form:"capacity"`
	RegistrationDeadline string `form:"registration_deadline" validate:"required"`
	ImageURL             string `form:"image_url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewForm returns a blank form.
func NewForm() Form { return Form{Capacity: DefaultCapacity} }

// Validate checks the required fields. No request may be made when it fails.
func (f Form) Validate() error {
	if err := validate.Struct(f); err != nil {
		return ErrRequiredFields
	}
	return nil
}

// Input composes the write payload: event_date is date+"T"+time+":00", an empty image url
// is sent as null.
func (f Form) Input() model.EventInput {
	in := model.EventInput{
		Title:                f.Title,
		Description:          f.Description,
		EventDate:            f.EventDate + "T" + f.EventTime + ":00",
		Location:             f.Location,
		Capacity:             f.Capacity,
		RegistrationDeadline: f.RegistrationDeadline,
	}
	if f.ImageURL != "" {
		u := f.ImageURL
		in.ImageURL = &u
	}
	return in
}

// FormFromEvent pre-fills the form from an edit target.
func FormFromEvent(e model.Event) Form {
	f := Form{
		Title:                e.Title,
		Description:          e.Description,
		Location:             e.Location,
		Capacity:             e.Capacity,
		RegistrationDeadline: prefix(e.RegistrationDeadline, 16),
		ImageURL:             e.Image(),
		EventTime:            e.Time(),
	}
	if f.Capacity == 0 {
		f.Capacity = DefaultCapacity
	}
	if t, ok := e.StartsAt(nil); ok {
		f.EventDate = t.Format("2006-01-02")
		if f.EventTime == "" && strings.Contains(e.EventDate, "T") {
			f.EventTime = t.Format("15:04")
		}
	} else {
		f.EventDate = prefix(e.EventDate, 10)
	}
	return f
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
