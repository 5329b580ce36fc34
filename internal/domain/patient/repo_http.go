package patient

import (
	"context"
	"strconv"

	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/internal/platform/apiclient"
)

type patientRepoHTTP struct {
	api *apiclient.Client
}

func NewHTTPRepo(api *apiclient.Client) Repository {
	return &patientRepoHTTP{api: api}
}

func (r *patientRepoHTTP) Verify(ctx context.Context, q SearchQuery) (*Patient, []*visit.Visit, error) {
	var resp struct {
		Verified bool           `json:"verified"`
		Patient  *Patient       `json:"patient"`
		Visits   []*visit.Visit `json:"visits"`
	}
	if err := r.api.Post(ctx, "patients.verify", "patients/verify", q, &resp); err != nil {
		return nil, nil, err
	}
	if !resp.Verified || resp.Patient == nil {
		return nil, nil, nil
	}
	return resp.Patient, resp.Visits, nil
}

func (r *patientRepoHTTP) Create(ctx context.Context, p NewPatient) (*Patient, error) {
	var resp struct {
		Patient *Patient `json:"patient"`
	}
	if err := r.api.Post(ctx, "patients.create", "patients", p, &resp); err != nil {
		return nil, err
	}
	if resp.Patient == nil {
		return nil, &apiclient.TransportError{Endpoint: "patients.create", Op: "decode", Err: errMissingPatient}
	}
	return resp.Patient, nil
}

func (r *patientRepoHTTP) Get(ctx context.Context, id int) (*Patient, []*visit.Visit, error) {
	var resp struct {
		Patient *Patient       `json:"patient"`
		Visits  []*visit.Visit `json:"visits"`
	}
	if err := r.api.Get(ctx, "patients.get", "patients/"+strconv.Itoa(id), nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Patient, resp.Visits, nil
}
