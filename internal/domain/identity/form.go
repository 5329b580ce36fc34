package identity

import (
	"context"
	"errors"

	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/validation"
)

type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// Form is the login/register screen. The zero value is an empty login form.
type Form struct {
	Mode         Mode   `json:"mode"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	DoctorNumber string `json:"doctor_number"`
	Password     string `json:"-"`
	Message      string `json:"message,omitempty"`
	Busy         bool   `json:"busy"`
}

// Toggle switches between login and register and clears the message.
func (f *Form) Toggle() {
	if f.Mode == ModeRegister {
		f.Mode = ModeLogin
	} else {
		f.Mode = ModeRegister
	}
	f.Message = ""
}

// Submit runs login or registration for the current mode and reports whether
// the doctor is now authenticated.
func (f *Form) Submit(ctx context.Context, svc *Service) bool {
	f.Busy = true
	f.Message = ""
	defer func() { f.Busy = false }()

	if f.Mode == ModeRegister {
		err := svc.Register(ctx, Registration{
			Name:         f.Name,
			Email:        f.Email,
			DoctorNumber: f.DoctorNumber,
			Password:     f.Password,
		})
		if err != nil {
			f.Message = failureMessage(err, MsgRegistrationFailed)
			return false
		}
		*f = Form{Mode: ModeLogin, Message: MsgRegistered}
		return false
	}

	_, err := svc.Login(ctx, Credentials{DoctorNumber: f.DoctorNumber, Password: f.Password})
	if err != nil {
		f.Message = failureMessage(err, MsgLoginFailed)
		if errors.Is(err, ErrLoginFailed) {
			f.Message = MsgLoginFailed
		}
		return false
	}
	f.Password = ""
	return true
}

func failureMessage(err error, fallback string) string {
	var verrs validation.Errors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Message
	}
	return apiclient.ServerMessage(err, fallback)
}
