package portal

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/api"
	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/guard"
	"github.com/and161185/eventdesk/internal/httpclient"
)

// Messages rendered by the account pages.
const (
	LoginFailedMsg      = "Login failed. Please check your credentials or network."
	LoginRequiredMsg    = "Email and password are required."
	LoginThrottledMsg   = "Too many login attempts. Please wait and try again."
	SignupSuccessMsg    = "Registration successful! Redirecting to login..."
	signupRedirectAfter = "2; url=" + guard.LoginPath
)

type loginPage struct {
	Email string
	Err   string
}

func (s *Server) loginForm(c *gin.Context) {
	s.render(c, http.StatusOK, "login", "Login", loginPage{})
}

func (s *Server) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	data := loginPage{Email: email}
	if email == "" || password == "" {
		data.Err = LoginRequiredMsg
		s.render(c, http.StatusUnprocessableEntity, "login", "Login", data)
		return
	}

	_, err := s.sess.AuthenticateFrom(c.Request.Context(), email, password, c.ClientIP())
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, guard.HomePath)
		return
	case errors.Is(err, errs.ErrRateLimited):
		data.Err = LoginThrottledMsg
		s.render(c, http.StatusTooManyRequests, "login", "Login", data)
		return
	}
	s.log.Info("login failed", zap.Error(err))
	data.Err = httpclient.Message(err, LoginFailedMsg)
	status := http.StatusUnauthorized
	if errors.Is(err, errs.ErrTransport) {
		status = http.StatusBadGateway
	}
	s.render(c, status, "login", "Login", data)
}

func (s *Server) logout(c *gin.Context) {
	if err := s.sess.Logout(c.Request.Context()); err != nil {
		s.log.Warn("logout", zap.Error(err))
	}
	c.Redirect(http.StatusFound, guard.HomePath)
}

// signupForm mirrors api.RegisterInput for form binding.
type signupForm struct {
	Email               string `form:"email"`
	FullName            string `form:"full_name"`
	PhoneNumber         string `form:"phone_number"`
	IsUniversityStudent bool   `form:"is_university_student"`
	StudentID           string `form:"student_id"`
	NationalID          string `form:"national_id"`
	Password            string `form:"password"`
}

func (f signupForm) input() api.RegisterInput {
	return api.RegisterInput{
		Email:               f.Email,
		FullName:            f.FullName,
		PhoneNumber:         f.PhoneNumber,
		IsUniversityStudent: f.IsUniversityStudent,
		StudentID:           f.StudentID,
		NationalID:          f.NationalID,
		Password:            f.Password,
	}
}

type signupPage struct {
	Form    signupForm
	Err     string
	Success string
}

func (s *Server) signupForm(c *gin.Context) {
	s.render(c, http.StatusOK, "signup", "Register", signupPage{})
}

func (s *Server) signup(c *gin.Context) {
	var f signupForm
	if err := c.ShouldBind(&f); err != nil {
		s.render(c, http.StatusBadRequest, "signup", "Register", signupPage{Err: api.MsgRegisterFailed})
		return
	}
	data := signupPage{Form: f}
	data.Form.Password = ""

	if _, err := s.api.Auth.Register(c.Request.Context(), f.input()); err != nil {
		if !errors.Is(err, errs.ErrValidation) {
			s.log.Info("sign-up failed", zap.Error(err))
		}
		data.Err = api.RegisterMessage(err)
		s.render(c, httpStatus(err), "signup", "Register", data)
		return
	}
	c.Header("Refresh", signupRedirectAfter)
	s.render(c, http.StatusOK, "signup", "Register", signupPage{Success: SignupSuccessMsg})
}
