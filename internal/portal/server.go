// Package portal is the local web frontend: server-rendered pages over the client SDK, with
// the guard mounted on protected routes.
package portal

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/admin"
	"github.com/and161185/eventdesk/internal/api"
	"github.com/and161185/eventdesk/internal/guard"
	"github.com/and161185/eventdesk/internal/session"
)

// Server wires the session, the resource client and the admin controller into gin routes.
type Server struct {
	sess  *session.Store
	guard *guard.Guard
	api   *api.Client
	admin *admin.Controller
	log   *zap.Logger
	loc   *time.Location
	now   func() time.Time
	key   []byte

	engine *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

// WithLocation sets the zone naive event timestamps are read in.
func WithLocation(loc *time.Location) Option { return func(s *Server) { s.loc = loc } }

// WithCSRFKey sets the 32-byte key that signs form tokens. By default a random key is
// generated, so forms rendered before a restart are rejected after it.
func WithCSRFKey(key []byte) Option { return func(s *Server) { s.key = key } }

// New builds the router. Restore is not started here; the caller owns that goroutine.
func New(sess *session.Store, c *api.Client, ctl *admin.Controller, opts ...Option) *Server {
	s := &Server{
		sess:  sess,
		guard: guard.New(sess),
		api:   c,
		admin: ctl,
		log:   zap.NewNop(),
		loc:   time.Local,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if len(s.key) == 0 {
		s.key = securecookie.GenerateRandomKey(32)
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.log), Logging(s.log), CSRF(s.key, s.log))
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(s.funcs()).ParseFS(templateFS, "templates/*.html")))

	r.GET("/", s.home)
	r.GET("/about", s.about)
	r.GET("/events-courses", s.events)
	r.GET("/events/:id", s.eventDetail)

	r.GET("/login", s.loginForm)
	r.POST("/login", s.login)
	r.POST("/logout", s.logout)
	r.GET("/register", s.signupForm)
	r.POST("/register", s.signup)

	enrol := r.Group("/register/event", s.guard.Middleware(guard.Participant))
	enrol.GET("/:id", s.enrolForm)
	enrol.POST("/:id", s.enrol)

	mine := r.Group("/my-registrations", s.guard.Middleware(guard.Authenticated))
	mine.GET("", s.myRegistrations)
	mine.POST("/:id/cancel", s.cancelRegistration)

	adm := r.Group("/admin", s.guard.Middleware(guard.AdminOnly))
	adm.GET("", s.adminDashboard)
	adm.POST("/events", s.adminSave)
	adm.GET("/events/:id/delete", s.adminDeleteConfirm)
	adm.POST("/events/:id/delete", s.adminDelete)

	r.NoRoute(func(c *gin.Context) {
		s.render(c, http.StatusNotFound, "message", "Not found", messagePage{Text: "Page not found."})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// page is the data every template receives.
type page struct {
	Title   string
	Session session.State
	CSRF    template.HTML
	Data    any
}

func (s *Server) render(c *gin.Context, status int, name, title string, data any) {
	c.Header("Cache-Control", "no-store")
	c.HTML(status, name, page{Title: title, Session: s.sess.State(), CSRF: csrf.TemplateField(c.Request), Data: data})
}

// messagePage is a bare notice, optionally with a follow-up link.
type messagePage struct {
	Text    string
	IsError bool
	Link    string
	LinkFor string
}
