package documents

import (
	"context"
	"io"
)

type Repository interface {
	ListByVisit(ctx context.Context, visitID int) ([]*Document, error)
	Upload(ctx context.Context, visitID int, u Upload) (*Document, error)
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}
