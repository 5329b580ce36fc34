package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/pkg/calendar"
)

type sheetStoreHTTP struct {
	api             *apiclient.Client
	legacyDigestive bool
}

// NewHTTPStore returns the API-backed store. With legacyDigestive the
// digestive sheet uses the single-record /digestive/{patientId} endpoint,
// which keeps no history; otherwise it is stored like every other type.
func NewHTTPStore(api *apiclient.Client, legacyDigestive bool) Store {
	return &sheetStoreHTTP{api: api, legacyDigestive: legacyDigestive}
}

func (s *sheetStoreHTTP) legacy(t Type) bool {
	return s.legacyDigestive && t == Digestive
}

func (s *sheetStoreHTTP) Latest(ctx context.Context, t Type, patientID, visitID int) (*Entry, error) {
	if s.legacy(t) {
		return s.digestiveRecord(ctx, patientID)
	}
	var q url.Values
	if visitID > 0 {
		q = url.Values{"visit_id": {strconv.Itoa(visitID)}}
	}
	var e Entry
	err := s.api.Get(ctx, "sheets.latest", fmt.Sprintf("sheets/%s/%d/latest", t, patientID), q, &e)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Type == "" {
		e.Type = t
	}
	return &e, nil
}

func (s *sheetStoreHTTP) History(ctx context.Context, t Type, patientID int) ([]*Entry, error) {
	if s.legacy(t) {
		return []*Entry{}, nil
	}
	var resp struct {
		History []*Entry `json:"history"`
	}
	if err := s.api.Get(ctx, "sheets.history", fmt.Sprintf("sheets/%s/%d/history", t, patientID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.History == nil {
		resp.History = []*Entry{}
	}
	return resp.History, nil
}

func (s *sheetStoreHTTP) Entry(ctx context.Context, t Type, id int) (*Entry, error) {
	if s.legacy(t) {
		return nil, fmt.Errorf("digestive entry %d: %w", id, ErrEntryNotFound)
	}
	var e Entry
	err := s.api.Get(ctx, "sheets.entry", "sheets/entry/"+strconv.Itoa(id), nil, &e)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil, fmt.Errorf("entry %d: %w", id, ErrEntryNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *sheetStoreHTTP) Save(ctx context.Context, t Type, req SaveRequest) (int, error) {
	if s.legacy(t) {
		return 0, s.saveDigestiveRecord(ctx, req)
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := s.api.Post(ctx, "sheets.save", "sheets/"+string(t), req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// digestiveRecord is the wire shape of /digestive/{patientId}.
type digestiveRecord struct {
	ID                    *int   `json:"id"`
	PatientID             int    `json:"patient_id,omitempty"`
	VisitDate             string `json:"visit_date"`
	DigestiveInspection   string `json:"digestive_inspection"`
	DigestiveAuscultation string `json:"digestive_auscultation"`
	DigestivePalpation    string `json:"digestive_palpation"`
	Liver                 string `json:"liver"`
	Rectal                string `json:"rectal"`
	Smoker                int    `json:"smoker"`
	InsuranceType         string `json:"insurance_type"`
	Notes                 string `json:"notes"`
}

func (s *sheetStoreHTTP) digestiveRecord(ctx context.Context, patientID int) (*Entry, error) {
	var rec digestiveRecord
	if err := s.api.Get(ctx, "digestive.get", "digestive/"+strconv.Itoa(patientID), nil, &rec); err != nil {
		return nil, err
	}
	visitDate, _ := calendar.Parse(rec.VisitDate)
	smoker := Unchecked
	if rec.Smoker != 0 {
		smoker = Checked
	}
	e := &Entry{
		Type:      Digestive,
		PatientID: patientID,
		VisitDate: visitDate,
		Data: Values{
			"notes":                  rec.Notes,
			"digestive_inspection":   rec.DigestiveInspection,
			"digestive_auscultation": rec.DigestiveAuscultation,
			"digestive_palpation":    rec.DigestivePalpation,
			"liver":                  rec.Liver,
			"rectal":                 rec.Rectal,
			"smoker":                 smoker,
			"insurance_type":         rec.InsuranceType,
		},
	}
	if rec.ID != nil {
		e.ID = *rec.ID
	}
	return e, nil
}

func (s *sheetStoreHTTP) saveDigestiveRecord(ctx context.Context, req SaveRequest) error {
	smoker := 0
	if req.Data["smoker"] == Checked {
		smoker = 1
	}
	visitDate := req.VisitDate
	if visitDate.IsZero() {
		visitDate = calendar.Today()
	}
	rec := digestiveRecord{
		VisitDate:             visitDate.String(),
		DigestiveInspection:   req.Data["digestive_inspection"],
		DigestiveAuscultation: req.Data["digestive_auscultation"],
		DigestivePalpation:    req.Data["digestive_palpation"],
		Liver:                 req.Data["liver"],
		Rectal:                req.Data["rectal"],
		Smoker:                smoker,
		InsuranceType:         req.Data["insurance_type"],
		Notes:                 req.Data["notes"],
	}
	path := "digestive/" + strconv.Itoa(req.PatientID)
	return s.api.Post(ctx, "digestive.save", path, rec, nil)
}
