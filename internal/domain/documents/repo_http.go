package documents

import (
	"context"
	"io"
	"strconv"

	"github.com/ehr/desk/internal/platform/apiclient"
)

type documentRepoHTTP struct {
	api *apiclient.Client
}

func NewHTTPRepo(api *apiclient.Client) Repository {
	return &documentRepoHTTP{api: api}
}

// ListByVisit reads the documents embedded in the visit record.
func (r *documentRepoHTTP) ListByVisit(ctx context.Context, visitID int) ([]*Document, error) {
	var resp struct {
		Documents []*Document `json:"documents"`
	}
	if err := r.api.Get(ctx, "documents.list", "visits/"+strconv.Itoa(visitID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Documents == nil {
		resp.Documents = []*Document{}
	}
	return resp.Documents, nil
}

func (r *documentRepoHTTP) Upload(ctx context.Context, visitID int, u Upload) (*Document, error) {
	form := apiclient.Multipart{
		Fields: map[string]string{"description": u.Description},
		Files:  []apiclient.FilePart{{Field: "file", FileName: u.FileName, Content: u.Content}},
	}
	var resp struct {
		Document *Document `json:"document"`
	}
	path := "visits/" + strconv.Itoa(visitID) + "/documents"
	if err := r.api.PostMultipart(ctx, "documents.upload", path, form, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

func (r *documentRepoHTTP) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	return r.api.Download(ctx, "documents.fetch", rawURL, w)
}
