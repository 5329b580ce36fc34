package patient

import (
	"context"
	"errors"

	"github.com/ehr/desk/internal/platform/validation"
)

// Intake is the new-patient form opened when the locator misses. The
// insurance number is fixed at construction and has no setter.
type Intake struct {
	insuranceNumber string

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`

	Error  string `json:"error,omitempty"`
	Saving bool   `json:"saving"`
}

func NewIntake(insuranceNumber string) *Intake {
	return &Intake{insuranceNumber: insuranceNumber}
}

func (in *Intake) InsuranceNumber() string {
	return in.insuranceNumber
}

// Submit creates the patient. On failure Error holds the text to show and
// the returned error matches ErrSessionExpired when the doctor must log in
// again.
func (in *Intake) Submit(ctx context.Context, svc *Service) (*Patient, error) {
	if in.FirstName == "" || in.LastName == "" || in.BirthDate == "" {
		in.Error = MsgFieldsRequired
		return nil, &validation.UserError{Message: MsgFieldsRequired}
	}

	in.Saving = true
	in.Error = ""
	defer func() { in.Saving = false }()

	p, err := svc.Create(ctx, NewPatient{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		BirthDate:       in.BirthDate,
		InsuranceNumber: in.insuranceNumber,
	})
	if err != nil {
		in.Error = validation.Message(err, MsgCreateFailed)
		return nil, err
	}
	return p, nil
}

// SessionExpired reports whether err requires a fresh login.
func SessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
