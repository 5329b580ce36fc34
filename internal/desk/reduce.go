package desk

import (
	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/pkg/calendar"
)

// Action is anything Reduce understands.
type Action interface {
	action()
}

type (
	AuthChecked struct{ Authenticated bool }
	LoggedOut   struct{}

	SearchStarted struct{}
	PatientFound  struct {
		Token   uint64
		Patient *patient.Patient
		Visits  []*visit.Visit
	}
	PatientNotFound struct {
		Token           uint64
		InsuranceNumber string
	}
	SearchFailed struct {
		Token   uint64
		Message string
	}

	IntakeCancelled struct{}
	PatientCreated  struct{ Patient *patient.Patient }
	SessionExpired  struct{ Message string }

	VisitProvisioned struct {
		Token     uint64
		PatientID int
		Visit     *visit.Visit
	}
	VisitsRequested struct{}
	VisitsLoaded    struct {
		Token     uint64
		PatientID int
		Visits    []*visit.Visit
	}

	SheetSelected struct{ Type sheet.Type }
	SheetNext     struct{}
	SheetPrevious struct{}

	DocumentsOpened    struct{ VisitID int }
	DocumentsRequested struct{}
	DocumentsLoaded    struct {
		Token     uint64
		Documents []*documents.Document
	}
	DocumentsMessage struct{ Text string }
	DocumentsClosed  struct{}

	Notice     struct{ Text string }
	ErrorShown struct{ Text string }
)

func (AuthChecked) action()        {}
func (LoggedOut) action()          {}
func (SearchStarted) action()      {}
func (PatientFound) action()       {}
func (PatientNotFound) action()    {}
func (SearchFailed) action()       {}
func (IntakeCancelled) action()    {}
func (PatientCreated) action()     {}
func (SessionExpired) action()     {}
func (VisitProvisioned) action()   {}
func (VisitsRequested) action()    {}
func (VisitsLoaded) action()       {}
func (SheetSelected) action()      {}
func (SheetNext) action()          {}
func (SheetPrevious) action()      {}
func (DocumentsOpened) action()    {}
func (DocumentsRequested) action() {}
func (DocumentsLoaded) action()    {}
func (DocumentsMessage) action()   {}
func (DocumentsClosed) action()    {}
func (Notice) action()             {}
func (ErrorShown) action()         {}

// Stale reports whether a carries a token that a newer request has
// replaced.
func Stale(s State, a Action) bool {
	switch a := a.(type) {
	case PatientFound:
		return a.Token != s.Tokens.Patient
	case PatientNotFound:
		return a.Token != s.Tokens.Patient
	case SearchFailed:
		return a.Token != s.Tokens.Patient
	case VisitProvisioned:
		return a.Token != s.Tokens.Patient || s.Patient == nil || s.Patient.ID != a.PatientID
	case VisitsLoaded:
		return a.Token != s.Tokens.Visits || s.Patient == nil || s.Patient.ID != a.PatientID
	case DocumentsLoaded:
		return a.Token != s.Tokens.Documents || !s.DocumentsOpen
	}
	return false
}

// Reduce returns the state after a. It never mutates s and ignores stale
// results.
func Reduce(s State, a Action) State {
	if Stale(s, a) {
		return s
	}

	switch a := a.(type) {
	case AuthChecked:
		if !a.Authenticated {
			return State{Tokens: s.Tokens}
		}
		s.Authenticated = true
		s.SessionExpired = false

	case LoggedOut:
		return State{Tokens: s.Tokens}

	case SearchStarted:
		s.Tokens.Patient++
		s.Searching = true
		s.Error = ""
		s.Notice = ""

	case PatientFound:
		s.Searching = false
		s = setPatient(s, a.Patient)
		s.Visits = a.Visits

	case PatientNotFound:
		s.Searching = false
		s.IntakeOpen = true
		s.PendingInsurance = a.InsuranceNumber

	case SearchFailed:
		s.Searching = false
		s.Error = a.Message

	case IntakeCancelled:
		s.IntakeOpen = false
		s.PendingInsurance = ""

	case PatientCreated:
		s.Tokens.Patient++
		s = setPatient(s, a.Patient)
		s.Visits = nil
		s.IntakeOpen = false
		s.PendingInsurance = ""

	case SessionExpired:
		s.SessionExpired = true
		s.Error = a.Message

	case VisitProvisioned:
		s.VisitID = a.Visit.ID
		s.VisitDate = a.Visit.VisitDate

	case VisitsRequested:
		s.Tokens.Visits++

	case VisitsLoaded:
		s.Visits = a.Visits

	case SheetSelected:
		s.Sheet = a.Type

	case SheetNext:
		s.Sheet = sheet.Next(s.Sheet)

	case SheetPrevious:
		s.Sheet = sheet.Previous(s.Sheet)

	case DocumentsOpened:
		if !s.HasVisit(a.VisitID) {
			return s
		}
		s.Tokens.Documents++
		s.DocumentsOpen = true
		s.DocumentsVisitID = a.VisitID
		s.Documents = nil
		s.DocumentsMessage = ""

	case DocumentsRequested:
		if s.DocumentsOpen {
			s.Tokens.Documents++
		}

	case DocumentsLoaded:
		s.Documents = a.Documents

	case DocumentsMessage:
		s.DocumentsMessage = a.Text

	case DocumentsClosed:
		s.Tokens.Documents++
		s.DocumentsOpen = false
		s.DocumentsVisitID = 0
		s.Documents = nil
		s.DocumentsMessage = ""

	case Notice:
		s.Notice = a.Text
		s.Error = ""

	case ErrorShown:
		s.Error = a.Text
	}
	return s
}

// setPatient switches the session to p. A different patient drops the
// visit in progress and closes the document panel.
func setPatient(s State, p *patient.Patient) State {
	if s.Patient == nil || p == nil || s.Patient.ID != p.ID {
		s.VisitID = 0
		s.VisitDate = calendar.Date{}
		s.DocumentsOpen = false
		s.DocumentsVisitID = 0
		s.Documents = nil
		s.DocumentsMessage = ""
		s.Tokens.Documents++
	}
	s.Patient = p
	return s
}
