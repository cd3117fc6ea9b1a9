package portal

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/admin"
	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/guard"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/model"
)

// Messages rendered by the public pages.
const (
	EventsFailedMsg      = "Failed to load events. Please try again later."
	EventFailedMsg       = "Failed to fetch event details."
	RegistrantsFailedMsg = "Failed to load registrants list. Check backend access."
	EnrolFailedMsg       = "Registration failed due to an unexpected server error."
	EnrolSuccessMsg      = "Registration successful! Redirecting to the event page..."
	MineFailedMsg        = "Failed to load your registrations."
	CancelFailedMsg      = "Failed to cancel registration."
)

// homeUpcoming is how many upcoming events the landing page previews.
const homeUpcoming = 2

func (s *Server) funcs() template.FuncMap {
	return template.FuncMap{
		"eventDate": func(e model.Event) string {
			t, ok := e.StartsAt(s.loc)
			if !ok {
				return e.EventDate
			}
			return t.Format("January 2, 2006")
		},
		"eventTime": func(e model.Event) string {
			if t := e.Time(); t != "" {
				return t
			}
			return "Time TBD"
		},
		"deadline": func(e model.Event) string {
			t, ok := model.ParseTimestamp(e.RegistrationDeadline, s.loc)
			if !ok {
				return e.RegistrationDeadline
			}
			return t.Format("January 2, 2006 15:04")
		},
		"stamp": func(t model.Timestamp) string {
			if t.IsZero() {
				return ""
			}
			return t.In(s.loc).Format("2006-01-02 15:04")
		},
		"deleteURL": deleteURL,
	}
}

// split partitions events around now: upcoming ascending, past descending. Events whose date
// cannot be parsed are treated as upcoming and sorted last.
func split(events []model.Event, now time.Time, loc *time.Location) (upcoming, past []model.Event) {
	type dated struct {
		e  model.Event
		at time.Time
		ok bool
	}
	var up, pa []dated
	for _, e := range events {
		at, ok := e.StartsAt(loc)
		if ok && at.Before(now) {
			pa = append(pa, dated{e, at, ok})
			continue
		}
		up = append(up, dated{e, at, ok})
	}
	sort.SliceStable(up, func(i, j int) bool {
		if up[i].ok != up[j].ok {
			return up[i].ok
		}
		return up[i].at.Before(up[j].at)
	})
	sort.SliceStable(pa, func(i, j int) bool { return pa[i].at.After(pa[j].at) })

	upcoming = make([]model.Event, 0, len(up))
	for _, d := range up {
		upcoming = append(upcoming, d.e)
	}
	past = make([]model.Event, 0, len(pa))
	for _, d := range pa {
		past = append(past, d.e)
	}
	return upcoming, past
}

func deleteURL(m admin.Mode, id int64) string {
	return m.URL(fmt.Sprintf("/admin/events/%d/delete", id))
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

type homePage struct {
	Upcoming []model.Event
	Err      string
}

func (s *Server) home(c *gin.Context) {
	var data homePage
	list, err := s.api.Events.List(c.Request.Context(), true, false)
	if err != nil {
		s.log.Info("home: list events", zap.Error(err))
		data.Err = httpclient.Message(err, EventsFailedMsg)
	} else {
		up, _ := split(list.Events, s.now(), s.loc)
		if len(up) > homeUpcoming {
			up = up[:homeUpcoming]
		}
		data.Upcoming = up
	}
	s.render(c, http.StatusOK, "home", "Home", data)
}

func (s *Server) about(c *gin.Context) {
	s.render(c, http.StatusOK, "about", "About", nil)
}

type eventsPage struct {
	Tab      string
	Upcoming []model.Event
	Past     []model.Event
	Err      string
}

// Shown returns the events of the active tab.
func (p eventsPage) Shown() []model.Event {
	if p.Tab == "past" {
		return p.Past
	}
	return p.Upcoming
}

func (s *Server) events(c *gin.Context) {
	data := eventsPage{Tab: "upcoming"}
	if c.Query("tab") == "past" {
		data.Tab = "past"
	}
	status := http.StatusOK
	list, err := s.api.Events.List(c.Request.Context(), true, false)
	if err != nil {
		s.log.Info("events: list", zap.Error(err))
		data.Err = httpclient.Message(err, EventsFailedMsg)
		status = http.StatusBadGateway
	} else {
		data.Upcoming, data.Past = split(list.Events, s.now(), s.loc)
	}
	s.render(c, status, "events", "Events & Courses", data)
}

type detailPage struct {
	Event          *model.Event
	Err            string
	Registrants    []model.Registration
	RegistrantsErr string
	CanEnrol       bool
	EditURL        string
}

func (s *Server) eventDetail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		s.render(c, http.StatusNotFound, "event", "Event", detailPage{Err: fmt.Sprintf("Event with ID %s not found.", c.Param("id"))})
		return
	}
	ctx := c.Request.Context()
	ev, err := s.api.Events.Get(ctx, id)
	if err != nil {
		status, msg := http.StatusBadGateway, EventFailedMsg
		if errors.Is(err, errs.ErrNotFound) {
			status, msg = http.StatusNotFound, fmt.Sprintf("Event with ID %d not found.", id)
		}
		s.log.Info("event detail: get", zap.Int64("id", id), zap.Error(err))
		s.render(c, status, "event", "Event", detailPage{Err: msg})
		return
	}

	st := s.sess.State()
	data := detailPage{Event: ev, CanEnrol: st.IsAuthenticated && !st.IsAdmin}
	if st.IsAdmin {
		data.EditURL = "/admin?editId=" + strconv.FormatInt(id, 10)
		regs, err := s.api.Registrations.Registrants(ctx, id)
		if err != nil {
			s.log.Info("event detail: registrants", zap.Int64("id", id), zap.Error(err))
			data.RegistrantsErr = RegistrantsFailedMsg
		} else {
			data.Registrants = regs
		}
	}
	s.render(c, http.StatusOK, "event", ev.Title, data)
}

type enrolPage struct {
	Event   *model.Event
	Profile *model.Profile
	Err     string
	Done    bool
}

func (s *Server) enrolForm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/events-courses")
		return
	}
	st := guard.CurrentState(c)
	data := enrolPage{Profile: st.Profile}
	ev, err := s.api.Events.Get(c.Request.Context(), id)
	if err != nil {
		s.log.Info("enrol: get event", zap.Int64("id", id), zap.Error(err))
		data.Err = httpclient.Message(err, "Failed to load event or user details.")
		s.render(c, http.StatusBadGateway, "enrol", "Register", data)
		return
	}
	data.Event = ev
	s.render(c, http.StatusOK, "enrol", "Register for "+ev.Title, data)
}

func (s *Server) enrol(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/events-courses")
		return
	}
	st := guard.CurrentState(c)
	ctx := c.Request.Context()
	data := enrolPage{Profile: st.Profile}
	if ev, err := s.api.Events.Get(ctx, id); err == nil {
		data.Event = ev
	}

	if _, err := s.api.Registrations.Register(ctx, id); err != nil {
		s.log.Info("enrol: register", zap.Int64("id", id), zap.Error(err))
		data.Err = httpclient.Message(err, EnrolFailedMsg)
		s.render(c, http.StatusUnprocessableEntity, "enrol", "Register", data)
		return
	}
	data.Done = true
	c.Header("Refresh", fmt.Sprintf("2; url=/events/%d", id))
	s.render(c, http.StatusOK, "enrol", "Registered", data)
}

type minePage struct {
	Registrations []model.Registration
	Err           string
	Notice        string
}

func (s *Server) myRegistrations(c *gin.Context) {
	s.renderMine(c, http.StatusOK, minePage{})
}

func (s *Server) renderMine(c *gin.Context, status int, data minePage) {
	regs, err := s.api.Registrations.Mine(c.Request.Context(), c.Query("all") == "1")
	if err != nil {
		s.log.Info("my registrations: list", zap.Error(err))
		if data.Err == "" {
			data.Err = httpclient.Message(err, MineFailedMsg)
		}
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	}
	data.Registrations = regs
	s.render(c, status, "mine", "My registrations", data)
}

func (s *Server) cancelRegistration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/my-registrations")
		return
	}
	ack, err := s.api.Registrations.Cancel(c.Request.Context(), id)
	if err != nil {
		s.log.Info("cancel registration", zap.Int64("id", id), zap.Error(err))
		s.renderMine(c, http.StatusUnprocessableEntity, minePage{Err: httpclient.Message(err, CancelFailedMsg)})
		return
	}
	notice := ack.Message
	if notice == "" {
		notice = fmt.Sprintf("Registration %d cancelled.", id)
	}
	s.renderMine(c, http.StatusOK, minePage{Notice: notice})
}
