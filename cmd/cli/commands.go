package main

import (
	"context"
	"fmt"

	"github.com/and161185/eventdesk/internal/api"
	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/guard"
	"github.com/and161185/eventdesk/internal/model"
	"github.com/and161185/eventdesk/internal/session"
)

const loginFailedMsg = "Login failed. Please check your credentials or network."

var (
	errLoginRequired   = fmt.Errorf("%w: not logged in, run \"evd login\" first", errs.ErrUnauthorized)
	errAdminOnly       = fmt.Errorf("%w: administrators only", errs.ErrUnauthorized)
	errParticipantOnly = fmt.Errorf("%w: administrators cannot enrol in events", errs.ErrUnauthorized)
)

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "signup":
		return c.signup(ctx, args)
	case "events":
		return c.events(ctx, args)
	case "event":
		return c.event(ctx, args)
	case "enroll":
		return c.enroll(ctx, args)
	case "my":
		return c.mine(ctx, args)
	case "cancel":
		return c.cancel(ctx, args)
	case "admin":
		return c.admin(ctx, args)
	default:
		return errUsage
	}
}

// require restores the session once, waits for it to settle and applies req.
func (c *cli) require(ctx context.Context, req guard.Requirement) (session.State, error) {
	go c.app.Session.Restore(ctx)
	d, err := c.app.Guard.Wait(ctx, req)
	if err != nil {
		return session.State{}, err
	}
	st := c.app.Session.State()
	if d.Status == guard.Granted {
		return st, nil
	}
	switch {
	case !st.IsAuthenticated:
		return st, errLoginRequired
	case req.Admin:
		return st, errAdminOnly
	default:
		return st, errParticipantOnly
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	email := fs.String("e", "", "email")
	password := fs.String("p", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errs.Validation("need -e")
	}
	if *password == "" {
		pw, err := c.prompt("Password: ")
		if err != nil {
			return err
		}
		*password = pw
	}

	p, err := c.app.Session.Authenticate(ctx, *email, *password)
	if err != nil {
		return show(err, loginFailedMsg)
	}
	role := "participant"
	if p.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(c.out, "logged in as %s <%s> (%s)\n", p.FullName, p.Email, role)
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	if err := c.app.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "logged out")
	return nil
}

type profileView struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone_number,omitempty"`
	Admin      bool   `json:"is_admin"`
	Student    bool   `json:"is_university_student"`
	StudentID  string `json:"student_id,omitempty"`
	NationalID string `json:"national_id,omitempty"`
}

func newProfileView(p *model.Profile) profileView {
	return profileView{
		ID:         p.ID,
		Email:      p.Email,
		FullName:   p.FullName,
		Phone:      p.Phone(),
		Admin:      p.IsAdmin,
		Student:    p.IsUniversityStudent,
		StudentID:  p.DisplayStudentID(),
		NationalID: p.DisplayNationalID(),
	}
}

func (c *cli) whoami(ctx context.Context) error {
	st, err := c.require(ctx, guard.Authenticated)
	if err != nil {
		return err
	}
	printJSON(c.out, newProfileView(st.Profile))
	return nil
}

func (c *cli) signup(ctx context.Context, args []string) error {
	fs := c.flags("signup")
	var in api.RegisterInput
	fs.StringVar(&in.Email, "e", "", "email")
	fs.StringVar(&in.FullName, "name", "", "full name")
	fs.StringVar(&in.PhoneNumber, "phone", "", "phone number")
	fs.BoolVar(&in.IsUniversityStudent, "student", false, "university student")
	fs.StringVar(&in.StudentID, "student-id", "", "student id code")
	fs.StringVar(&in.NationalID, "national-id", "", "national id code")
	fs.StringVar(&in.Password, "p", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in.Password == "" && in.Email != "" {
		pw, err := c.prompt("Password: ")
		if err != nil {
			return err
		}
		in.Password = pw
	}

	p, err := c.app.API.Auth.Register(ctx, in)
	if err != nil {
		return &shown{msg: api.RegisterMessage(err), err: err}
	}
	fmt.Fprintf(c.out, "Registration successful! You can now log in as %s.\n", p.Email)
	return nil
}

type eventRow struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
	Spots    string `json:"spots"`
	Active   bool   `json:"active"`
}

func eventRows(events []model.Event) []eventRow {
	rows := make([]eventRow, 0, len(events))
	for _, e := range events {
		date := e.EventDate
		if t, ok := e.StartsAt(nil); ok {
			date = t.Format("2006-01-02")
		}
		rows = append(rows, eventRow{
			ID:       e.ID,
			Title:    e.Title,
			Date:     date,
			Time:     e.Time(),
			Location: e.Location,
			Spots:    fmt.Sprintf("%d/%d", e.CurrentRegistrations, e.Capacity),
			Active:   e.IsActive,
		})
	}
	return rows
}

func (c *cli) events(ctx context.Context, args []string) error {
	fs := c.flags("events")
	past := fs.Bool("past", false, "include past events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := c.app.API.Events.List(ctx, *past, false)
	if err != nil {
		return show(err, "Failed to load events.")
	}
	printJSON(c.out, eventRows(list.Events))
	return nil
}

type registrantRow struct {
	ID           int64  `json:"registration_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RegisteredAt string `json:"registered_at"`
	Cancelled    bool   `json:"cancelled,omitempty"`
}

func registrantRows(regs []model.Registration) []registrantRow {
	rows := make([]registrantRow, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, registrantRow{
			ID:           r.ID,
			Name:         r.Name(),
			Email:        r.Email(),
			RegisteredAt: r.RegisteredAt.UTC().Format("2006-01-02T15:04:05Z"),
			Cancelled:    r.IsCancelled,
		})
	}
	return rows
}

func (c *cli) event(ctx context.Context, args []string) error {
	fs := c.flags("event")
	id := fs.Int64("id", 0, "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}

	st := c.app.Session.Restore(ctx)
	ev, err := c.app.API.Events.Get(ctx, *id)
	if err != nil {
		return show(err, "Failed to fetch event details.")
	}
	out := struct {
		*model.Event
		Registrants    []registrantRow `json:"registrants,omitempty"`
		RegistrantsErr string          `json:"registrants_error,omitempty"`
	}{Event: ev}

	if st.IsAdmin {
		regs, err := c.app.API.Registrations.Registrants(ctx, *id)
		if err != nil {
			out.RegistrantsErr = "Failed to load registrants list. Check backend access."
		} else {
			out.Registrants = registrantRows(regs)
		}
	}
	printJSON(c.out, out)
	return nil
}

func (c *cli) enroll(ctx context.Context, args []string) error {
	fs := c.flags("enroll")
	id := fs.Int64("id", 0, "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}
	if _, err := c.require(ctx, guard.Participant); err != nil {
		return err
	}
	reg, err := c.app.API.Registrations.Register(ctx, *id)
	if err != nil {
		return show(err, "Registration failed due to an unexpected server error.")
	}
	fmt.Fprintf(c.out, "Registration successful! (registration %d for event %d)\n", reg.ID, *id)
	return nil
}

type myRow struct {
	ID           int64  `json:"registration_id"`
	EventID      int64  `json:"event_id"`
	Event        string `json:"event,omitempty"`
	RegisteredAt string `json:"registered_at"`
	Cancelled    bool   `json:"cancelled,omitempty"`
}

func (c *cli) mine(ctx context.Context, args []string) error {
	fs := c.flags("my")
	all := fs.Bool("all", false, "include cancelled registrations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.require(ctx, guard.Authenticated); err != nil {
		return err
	}
	regs, err := c.app.API.Registrations.Mine(ctx, *all)
	if err != nil {
		return show(err, "Failed to load your registrations.")
	}
	rows := make([]myRow, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, myRow{
			ID:           r.ID,
			EventID:      r.EventID,
			Event:        r.EventTitle,
			RegisteredAt: r.RegisteredAt.UTC().Format("2006-01-02T15:04:05Z"),
			Cancelled:    r.IsCancelled,
		})
	}
	printJSON(c.out, rows)
	return nil
}

func (c *cli) cancel(ctx context.Context, args []string) error {
	fs := c.flags("cancel")
	id := fs.Int64("id", 0, "registration id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errs.Validation("need -id")
	}
	if _, err := c.require(ctx, guard.Authenticated); err != nil {
		return err
	}
	ack, err := c.app.API.Registrations.Cancel(ctx, *id)
	if err != nil {
		return show(err, "Failed to cancel registration.")
	}
	msg := ack.Message
	if msg == "" {
		msg = fmt.Sprintf("Registration %d cancelled.", *id)
	}
	fmt.Fprintln(c.out, msg)
	return nil
}
