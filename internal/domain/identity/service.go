package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/apiclient"
)

// Messages shown by the auth form.
const (
	MsgLoginFailed        = "Login failed."
	MsgRegistrationFailed = "Registration failed."
	MsgRegistered         = "Registration successful! Please log in."
)

// ErrLoginFailed hides why a login was refused; the detail is only logged.
var ErrLoginFailed = errors.New("login failed")

// SessionStore is the local copy of the session cookie.
type SessionStore interface {
	Clear() error
}

type Validator interface {
	Validate(i any) error
}

type Service struct {
	repo     Repository
	validate Validator
	session  SessionStore
	log      zerolog.Logger
}

// NewService wires the auth flow. session may be nil when nothing is
// persisted locally.
func NewService(repo Repository, v Validator, session SessionStore, log zerolog.Logger) *Service {
	return &Service{repo: repo, validate: v, session: session, log: log}
}

// Probe asks the API whether the stored session is still valid. Any failure
// counts as "not authenticated" and is never surfaced.
func (s *Service) Probe(ctx context.Context) bool {
	st, err := s.repo.CheckAuth(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("auth probe failed")
		return false
	}
	return st.Authenticated
}

func (s *Service) Login(ctx context.Context, c Credentials) (*Doctor, error) {
	if err := s.validate.Validate(c); err != nil {
		return nil, err
	}
	d, err := s.repo.Login(ctx, c)
	if err != nil {
		s.log.Warn().Err(err).Str("doctor_number", c.DoctorNumber).Msg("login refused")
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	s.log.Info().Int("doctor_id", d.ID).Msg("logged in")
	return d, nil
}

// Register creates the account. Server refusals come back as
// *apiclient.APIError with the server's message.
func (s *Service) Register(ctx context.Context, r Registration) error {
	if err := s.validate.Validate(r); err != nil {
		return err
	}
	if err := s.repo.Register(ctx, r); err != nil {
		return fmt.Errorf("register doctor: %w", err)
	}
	s.log.Info().Str("doctor_number", r.DoctorNumber).Msg("doctor registered")
	return nil
}

// Logout ends the server session and drops the local cookie copy. An already
// expired session is not an error.
func (s *Service) Logout(ctx context.Context) error {
	err := s.repo.Logout(ctx)
	if err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		s.log.Warn().Err(err).Msg("logout request failed")
	}
	if s.session != nil {
		if cerr := s.session.Clear(); cerr != nil {
			return fmt.Errorf("clear session: %w", cerr)
		}
	}
	if err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
