package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/metrics"
	"github.com/ehr/desk/internal/platform/validation"
)

// Messages shown by the document manager.
const (
	MsgSelectFile    = "Please select a file"
	MsgUploaded      = "Document uploaded successfully"
	MsgUploadError   = "Error uploading document"
	MsgNoDocuments   = "No documents uploaded for this visit"
	MsgNoDescription = "No description"
)

type Service struct {
	repo    Repository
	origin  string
	metrics *metrics.Collector
	log     zerolog.Logger
}

// NewService needs the API origin (scheme://host) to build view links.
func NewService(repo Repository, origin string, m *metrics.Collector, log zerolog.Logger) *Service {
	return &Service{repo: repo, origin: strings.TrimRight(origin, "/"), metrics: m, log: log}
}

func (s *Service) List(ctx context.Context, visitID int) ([]*Document, error) {
	docs, err := s.repo.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list documents for visit %d: %w", visitID, err)
	}
	return docs, nil
}

// Upload sends one file. The file type is not checked here; the server
// decides what it accepts.
func (s *Service) Upload(ctx context.Context, visitID int, u Upload) (*Document, error) {
	if u.Content == nil || u.FileName == "" {
		return nil, &validation.UserError{Message: MsgSelectFile}
	}
	doc, err := s.repo.Upload(ctx, visitID, u)
	if err != nil {
		s.log.Error().Err(err).Int("visit_id", visitID).Str("file_name", u.FileName).Msg("upload failed")
		if apiclient.IsTransport(err) {
			return nil, &validation.UserError{Message: MsgUploadError, Err: err}
		}
		return nil, &validation.UserError{Message: "Upload failed: " + apiclient.ServerMessage(err, "unknown error"), Err: err}
	}
	s.metrics.DocumentUploaded()
	s.log.Info().Int("visit_id", visitID).Str("file_name", u.FileName).Msg("document uploaded")
	return doc, nil
}

// ViewURL is where the stored file can be opened: the API origin followed by
// the storage path.
func (s *Service) ViewURL(d *Document) string {
	return s.origin + "/" + strings.TrimLeft(d.FilePath, "/")
}

// Fetch downloads the stored file with the session cookie.
func (s *Service) Fetch(ctx context.Context, d *Document, w io.Writer) (int64, error) {
	n, err := s.repo.Fetch(ctx, s.ViewURL(d), w)
	if err != nil {
		return n, fmt.Errorf("fetch %s: %w", d.FileName, err)
	}
	return n, nil
}

// Caption is the line under a document's name: description and upload time.
func Caption(d *Document) string {
	desc := d.Description
	if desc == "" {
		desc = MsgNoDescription
	}
	return desc + " • " + d.UploadedAt
}
