// Package desk is the doctor's workstation session. State is a plain value
// changed only by Reduce; the Coordinator runs the API calls and feeds their
// results back as actions.
package desk

import (
	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/pkg/calendar"
)

// Tokens number the latest request of each kind. A result carrying an older
// token is dropped.
type Tokens struct {
	Patient   uint64
	Visits    uint64
	Documents uint64
}

type State struct {
	Authenticated bool

	Searching bool
	Patient   *patient.Patient
	VisitID   int
	VisitDate calendar.Date
	Visits    []*visit.Visit

	// Sheet is the selected examination sheet; empty means digestive.
	Sheet sheet.Type

	IntakeOpen       bool
	PendingInsurance string

	DocumentsOpen    bool
	DocumentsVisitID int
	Documents        []*documents.Document
	DocumentsMessage string

	Notice         string
	Error          string
	SessionExpired bool

	Tokens Tokens
}

// CurrentSheet resolves "no selection" to the first sheet.
func (s State) CurrentSheet() sheet.Type {
	if s.Sheet == "" {
		return sheet.Digestive
	}
	return s.Sheet
}

// HasVisit reports whether id is the current visit or one in the list.
func (s State) HasVisit(id int) bool {
	if id != 0 && id == s.VisitID {
		return true
	}
	return visit.Find(s.Visits, id) != nil
}
