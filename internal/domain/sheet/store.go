package sheet

import (
	"context"
	"errors"
)

// ErrEntryNotFound is returned for an unknown history entry.
var ErrEntryNotFound = errors.New("sheet entry not found")

// Store reads and appends sheet entries. Every sheet type goes through the
// same contract.
type Store interface {
	// Latest returns nil, nil when the sheet was never saved.
	Latest(ctx context.Context, t Type, patientID, visitID int) (*Entry, error)
	// History is newest first.
	History(ctx context.Context, t Type, patientID int) ([]*Entry, error)
	Entry(ctx context.Context, t Type, id int) (*Entry, error)
	// Save appends an entry and returns its id, or 0 when the server does not
	// report one.
	Save(ctx context.Context, t Type, req SaveRequest) (int, error)
}
