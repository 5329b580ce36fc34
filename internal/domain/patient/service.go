package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/metrics"
	"github.com/ehr/desk/internal/platform/validation"
	"github.com/ehr/desk/pkg/calendar"
)

// Messages shown by the locator and the intake form.
const (
	MsgInsuranceRequired = "Insurance number is required"
	MsgBirthDateRequired = "Date of birth is required for verification"
	MsgSearchFailed      = "Error searching for patient"
	MsgFieldsRequired    = "Please fill in all required fields"
	MsgBirthDateFormat   = "Date of birth must be in YYYY-MM-DD form"
	MsgSessionExpired    = "Session expired. Please log in again."
	MsgCreateFailed      = "Failed to create patient"
	MsgCreateError       = "Error creating patient"
)

var (
	// ErrSessionExpired means the API rejected the session mid-task; the
	// caller should send the doctor back through login.
	ErrSessionExpired = errors.New("session expired")

	errMissingPatient = errors.New("response carried no patient")
)

type Validator interface {
	Validate(i any) error
}

type Service struct {
	repo     Repository
	validate Validator
	metrics  *metrics.Collector
	log      zerolog.Logger
}

func NewService(repo Repository, v Validator, m *metrics.Collector, log zerolog.Logger) *Service {
	return &Service{repo: repo, validate: v, metrics: m, log: log}
}

// Locate verifies a patient by insurance number and date of birth. A miss
// is not an error: the result carries the typed insurance number so the
// intake form can be pre-filled. Only transport failures are errors.
func (s *Service) Locate(ctx context.Context, q SearchQuery) (*LocateResult, error) {
	if err := s.validate.Validate(q); err != nil {
		return nil, queryError(err)
	}

	p, visits, err := s.repo.Verify(ctx, q)
	if err != nil {
		if apiclient.IsTransport(err) {
			s.log.Error().Err(err).Msg("patient search failed")
			return nil, &validation.UserError{Message: MsgSearchFailed, Err: err}
		}
		s.log.Warn().Err(err).Msg("patient verify rejected; treating as not found")
		p = nil
	}
	if p == nil {
		return &LocateResult{Found: false, InsuranceNumber: q.InsuranceNumber}, nil
	}
	return &LocateResult{Found: true, Patient: p, Visits: visits}, nil
}

// Create registers a new patient for the logged-in doctor.
func (s *Service) Create(ctx context.Context, np NewPatient) (*Patient, error) {
	if err := s.validate.Validate(np); err != nil {
		return nil, &validation.UserError{Message: createMessage(err), Err: err}
	}

	p, err := s.repo.Create(ctx, np)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return nil, &validation.UserError{Message: MsgSessionExpired, Err: fmt.Errorf("%w: %w", ErrSessionExpired, err)}
	case apiclient.IsTransport(err):
		s.log.Error().Err(err).Msg("create patient failed")
		return nil, &validation.UserError{Message: MsgCreateError, Err: err}
	case err != nil:
		return nil, &validation.UserError{Message: apiclient.ServerMessage(err, MsgCreateFailed), Err: err}
	}

	s.metrics.PatientCreated()
	s.log.Info().Int("patient_id", p.ID).Msg("patient created")
	return p, nil
}

// Get loads a patient with their visit list, newest first.
func (s *Service) Get(ctx context.Context, id int) (*Patient, []*visit.Visit, error) {
	p, visits, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return p, visits, nil
}

// Age is the completed years between birth and today.
func Age(birth, today calendar.Date) int {
	age := today.Year - birth.Year
	if today.Month < birth.Month || (today.Month == birth.Month && today.Day < birth.Day) {
		age--
	}
	return age
}

func queryError(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	msg := verrs[0].Message
	switch {
	case verrs.Has("insurance_number"):
		msg = MsgInsuranceRequired
	case verrs[0].Field == "birth_date" && verrs[0].Tag == "required":
		msg = MsgBirthDateRequired
	}
	return &validation.UserError{Message: msg, Err: err}
}

// createMessage names the first rule that failed on the intake form. A
// missing field reads as the generic required-fields text.
func createMessage(err error) string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return MsgFieldsRequired
	}
	for _, fe := range verrs {
		if fe.Tag == "required" {
			return MsgFieldsRequired
		}
	}
	if verrs.Has("birth_date") {
		return MsgBirthDateFormat
	}
	return verrs[0].Message
}
