package patient

import (
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/pkg/calendar"
)

type Patient struct {
	ID              int           `json:"id"`
	DoctorID        int           `json:"doctor_id,omitempty"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	BirthDate       calendar.Date `json:"birth_date"`
	InsuranceNumber string        `json:"insurance_number"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// SearchQuery identifies a patient by insurance number and date of birth.
// Both are required; the values go to the API as typed.
type SearchQuery struct {
	InsuranceNumber string `json:"insurance_number" validate:"required"`
	BirthDate       string `json:"birth_date" validate:"required"`
}

// LocateResult is the locator's answer. When Found is false,
// InsuranceNumber carries the typed value for the intake form.
type LocateResult struct {
	Found           bool           `json:"found"`
	Patient         *Patient       `json:"patient,omitempty"`
	Visits          []*visit.Visit `json:"visits,omitempty"`
	InsuranceNumber string         `json:"insurance_number,omitempty"`
}

// NewPatient is the body of a create request.
type NewPatient struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	BirthDate       string `json:"birth_date" validate:"required,isodate"`
	InsuranceNumber string `json:"insurance_number" validate:"required"`
}
