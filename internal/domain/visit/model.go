package visit

import (
	"github.com/ehr/desk/pkg/calendar"
)

// Visit is one encounter between the doctor and a patient. Sheets and
// documents are scoped to it.
type Visit struct {
	ID             int           `json:"id"`
	PatientID      int           `json:"patient_id"`
	VisitDate      calendar.Date `json:"visit_date"`
	VisitType      string        `json:"visit_type"`
	ChiefComplaint string        `json:"chief_complaint"`
	Notes          string        `json:"notes"`
	DocumentCount  int           `json:"document_count"`
	CreatedAt      string        `json:"created_at,omitempty"`
}

// DefaultType is used when a visit is opened without one.
const DefaultType = "general"

// NewVisit is the body of a create request. Zero fields take defaults:
// today's date, the general type, and empty complaint and notes.
type NewVisit struct {
	VisitDate      calendar.Date `json:"visit_date"`
	VisitType      string        `json:"visit_type"`
	ChiefComplaint string        `json:"chief_complaint"`
	Notes          string        `json:"notes"`
}
