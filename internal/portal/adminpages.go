package portal

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/admin"
	"github.com/and161185/eventdesk/internal/model"
)

type dashboardPage struct {
	View *admin.View
	// FormAction posts the form in the view's mode.
	FormAction string
}

func (s *Server) renderDashboard(c *gin.Context, status int, v *admin.View) {
	s.render(c, status, "admin", "Admin Dashboard", dashboardPage{
		View:       v,
		FormAction: v.Mode.URL("/admin/events"),
	})
}

func (s *Server) adminDashboard(c *gin.Context) {
	mode, err := admin.ParseMode(c.Request.URL.Query())
	v := s.admin.Load(c.Request.Context(), mode)
	if err != nil {
		v.Status = &admin.Status{Kind: admin.StatusError, Text: err.Error()}
		s.renderDashboard(c, http.StatusBadRequest, v)
		return
	}
	s.renderDashboard(c, http.StatusOK, v)
}

func (s *Server) adminSave(c *gin.Context) {
	mode, err := admin.ParseMode(c.Request.URL.Query())
	if err != nil {
		v := s.admin.Load(c.Request.Context(), admin.Create)
		v.Status = &admin.Status{Kind: admin.StatusError, Text: err.Error()}
		s.renderDashboard(c, http.StatusBadRequest, v)
		return
	}
	f := admin.NewForm()
	if err := c.ShouldBind(&f); err != nil {
		s.log.Info("admin: bind form", zap.Error(err))
	}
	v, err := s.admin.Submit(c.Request.Context(), mode, f)
	s.renderDashboard(c, httpStatus(err), v)
}

type deletePage struct {
	ID     int64
	Event  *model.Event
	Action string
	Back   string
}

func (s *Server) adminDeleteConfirm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/admin")
		return
	}
	mode, _ := admin.ParseMode(c.Request.URL.Query())
	data := deletePage{
		ID:     id,
		Action: deleteURL(mode, id),
		Back:   mode.URL("/admin"),
	}
	if ev, err := s.api.Events.Get(c.Request.Context(), id); err == nil {
		data.Event = ev
	}
	s.render(c, http.StatusOK, "delete", "Delete event", data)
}

func (s *Server) adminDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/admin")
		return
	}
	mode, _ := admin.ParseMode(c.Request.URL.Query())
	v, err := s.admin.Delete(c.Request.Context(), mode, id, c.PostForm("confirm") == "yes")
	s.renderDashboard(c, httpStatus(err), v)
}
