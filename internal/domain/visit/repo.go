package visit

import "context"

type Repository interface {
	Create(ctx context.Context, patientID int, v NewVisit) (*Visit, error)
	ListByPatient(ctx context.Context, patientID int) ([]*Visit, error)
}
