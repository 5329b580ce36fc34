package visit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/metrics"
	"github.com/ehr/desk/pkg/calendar"
)

type Service struct {
	repo    Repository
	metrics *metrics.Collector
	log     zerolog.Logger
	today   func() calendar.Date
}

func NewService(repo Repository, m *metrics.Collector, log zerolog.Logger) *Service {
	return &Service{repo: repo, metrics: m, log: log, today: calendar.Today}
}

// Create opens a visit for the patient, filling defaults for zero fields.
func (s *Service) Create(ctx context.Context, patientID int, v NewVisit) (*Visit, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("patient_id is required")
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = s.today()
	}
	if v.VisitType == "" {
		v.VisitType = DefaultType
	}
	created, err := s.repo.Create(ctx, patientID, v)
	if err != nil {
		return nil, fmt.Errorf("create visit for patient %d: %w", patientID, err)
	}
	s.metrics.VisitCreated()
	s.log.Info().Int("patient_id", patientID).Int("visit_id", created.ID).Msg("visit created")
	return created, nil
}

// ListByPatient returns the patient's visits newest first, as the API orders
// them.
func (s *Service) ListByPatient(ctx context.Context, patientID int) ([]*Visit, error) {
	visits, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list visits for patient %d: %w", patientID, err)
	}
	return visits, nil
}
