package visit

import (
	"context"
	"errors"
	"strconv"

	"github.com/ehr/desk/internal/platform/apiclient"
)

type visitRepoHTTP struct {
	api *apiclient.Client
}

func NewHTTPRepo(api *apiclient.Client) Repository {
	return &visitRepoHTTP{api: api}
}

func (r *visitRepoHTTP) Create(ctx context.Context, patientID int, v NewVisit) (*Visit, error) {
	var resp struct {
		Visit *Visit `json:"visit"`
	}
	path := "patients/" + strconv.Itoa(patientID) + "/visits"
	if err := r.api.Post(ctx, "visits.create", path, v, &resp); err != nil {
		return nil, err
	}
	if resp.Visit == nil {
		return nil, &apiclient.TransportError{Endpoint: "visits.create", Op: "decode", Err: errors.New("response carried no visit")}
	}
	return resp.Visit, nil
}

// ListByPatient reads the visit list embedded in the patient record.
func (r *visitRepoHTTP) ListByPatient(ctx context.Context, patientID int) ([]*Visit, error) {
	var resp struct {
		Visits []*Visit `json:"visits"`
	}
	if err := r.api.Get(ctx, "visits.list", "patients/"+strconv.Itoa(patientID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Visits, nil
}
