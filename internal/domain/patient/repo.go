package patient

import (
	"context"

	"github.com/ehr/desk/internal/domain/visit"
)

type Repository interface {
	// Verify returns (nil, nil, nil) when no patient matches.
	Verify(ctx context.Context, q SearchQuery) (*Patient, []*visit.Visit, error)
	Create(ctx context.Context, p NewPatient) (*Patient, error)
	Get(ctx context.Context, id int) (*Patient, []*visit.Visit, error)
}
