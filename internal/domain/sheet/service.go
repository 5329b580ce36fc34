package sheet

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/metrics"
)

type Service struct {
	store   Store
	metrics *metrics.Collector
	log     zerolog.Logger
}

func NewService(store Store, m *metrics.Collector, log zerolog.Logger) *Service {
	return &Service{store: store, metrics: m, log: log}
}

// Editor returns a closed editor for one sheet of one visit. Call Open to
// load it.
func (s *Service) Editor(t Type, patientID, visitID int) (*Editor, error) {
	schema, ok := Lookup(t)
	if !ok {
		return nil, fmt.Errorf("unknown sheet type %q", t)
	}
	return newEditor(s, schema, patientID, visitID), nil
}

func (s *Service) History(ctx context.Context, t Type, patientID int) ([]*Entry, error) {
	h, err := s.store.History(ctx, t, patientID)
	if err != nil {
		return nil, fmt.Errorf("%s history for patient %d: %w", t, patientID, err)
	}
	return h, nil
}

func (s *Service) Entry(ctx context.Context, t Type, id int) (*Entry, error) {
	e, err := s.store.Entry(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("%s entry: %w", t, err)
	}
	return e, nil
}
