package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/eventdesk/internal/errs"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/model"
)

// Auth wraps /api/auth.
type Auth struct{ t Transport }

// Login exchanges email/password for a bearer token.
func (a *Auth) Login(ctx context.Context, email, password string) (string, error) {
	var out model.LoginResponse
	if err := a.t.Post(ctx, "/api/auth/login", model.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login: %w: empty access token", errs.ErrBackend)
	}
	return out.AccessToken, nil
}

// Register creates an account. in is validated first; no request is made when it fails.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (*model.Profile, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out model.Profile
	if err := a.t.Post(ctx, "/api/auth/register", in.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users wraps /api/users.
type Users struct{ t Transport }

// Me fetches the profile bound to the current credential.
func (u *Users) Me(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := u.t.Get(ctx, "/api/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterInput is the sign-up form. Exactly one of StudentID/NationalID is relevant,
// chosen by IsUniversityStudent.
type RegisterInput struct {
	Email               string `validate:"required"`
	FullName            string `validate:"required"`
	PhoneNumber         string
	IsUniversityStudent bool
	StudentID           string `validate:"required_if=IsUniversityStudent true"`
	NationalID          string `validate:"required_if=IsUniversityStudent false"`
	Password            string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Messages shown by the sign-up flow.
const (
	MsgNameEmailRequired  = "Email and Full Name are required."
	MsgStudentIDRequired  = "Student ID Code is required."
	MsgNationalIDRequired = "National ID Code is required."
	MsgPasswordRequired   = "Password is required."
	MsgRegisterFailed     = "Registration failed. Please try again."
)

// Validate runs the client-side checks in form order and reports the first failing step.
func (in RegisterInput) Validate() error {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	failed := map[string]bool{}
	for _, fe := range ve {
		failed[fe.StructField()] = true
	}
	switch {
	case failed["Email"] || failed["FullName"]:
		return errs.Validation(MsgNameEmailRequired)
	case failed["StudentID"]:
		return errs.Validation(MsgStudentIDRequired)
	case failed["NationalID"]:
		return errs.Validation(MsgNationalIDRequired)
	default:
		return errs.Validation(MsgPasswordRequired)
	}
}

type registerPayload struct {
	Email               string  `json:"email"`
	FullName            string  `json:"full_name"`
	Password            string  `json:"password"`
	IsUniversityStudent bool    `json:"is_university_student"`
	PhoneNumber         *string `json:"phone_number"`
	StudentID           *string `json:"student_id"`
	NationalID          *string `json:"national_id"`
}

// payload sends only the relevant id; the other is an explicit null.
func (in RegisterInput) payload() registerPayload {
	p := registerPayload{
		Email:               strings.TrimSpace(in.Email),
		FullName:            strings.TrimSpace(in.FullName),
		Password:            in.Password,
		IsUniversityStudent: in.IsUniversityStudent,
	}
	if in.PhoneNumber != "" {
		phone := in.PhoneNumber
		p.PhoneNumber = &phone
	}
	if in.IsUniversityStudent {
		id := in.StudentID
		p.StudentID = &id
	} else {
		id := in.NationalID
		p.NationalID = &id
	}
	return p
}

// RegisterMessage renders a sign-up failure. List details only report their first entry,
// prefixed by whether it concerns the password.
func RegisterMessage(err error) string {
	var he *httpclient.Error
	if errors.As(err, &he) {
		if fields := he.Fields(); len(fields) > 0 {
			f := fields[0]
			if len(f.Loc) > 1 && fmt.Sprint(f.Loc[1]) == "password" {
				return "Password Error: " + f.Msg
			}
			return "Validation Error: " + f.Msg
		}
	}
	return httpclient.Message(err, MsgRegisterFailed)
}
