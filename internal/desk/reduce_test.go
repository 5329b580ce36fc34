package desk

import (
	"testing"

	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
)

func located(t *testing.T, p *patient.Patient, visits ...*visit.Visit) State {
	t.Helper()
	s := Reduce(State{Authenticated: true}, SearchStarted{})
	return Reduce(s, PatientFound{Token: s.Tokens.Patient, Patient: p, Visits: visits})
}

func TestReduce_AuthChecked(t *testing.T) {
	s := Reduce(State{}, AuthChecked{Authenticated: true})
	if !s.Authenticated {
		t.Fatal("expected authenticated")
	}

	s.Patient = &patient.Patient{ID: 1}
	s = Reduce(s, AuthChecked{Authenticated: false})
	if s.Authenticated || s.Patient != nil {
		t.Errorf("expected a locked, empty desk, got %+v", s)
	}
}

func TestReduce_PatientFound(t *testing.T) {
	v := &visit.Visit{ID: 7}
	s := located(t, &patient.Patient{ID: 1}, v)

	if s.Patient == nil || s.Patient.ID != 1 {
		t.Fatalf("expected patient 1, got %+v", s.Patient)
	}
	if len(s.Visits) != 1 || s.Visits[0] != v {
		t.Errorf("expected visits to be taken from the result, got %v", s.Visits)
	}
	if s.Searching {
		t.Error("expected search to be finished")
	}
	if s.VisitID != 0 {
		t.Errorf("expected no visit tracked for a new patient, got %d", s.VisitID)
	}
}

func TestReduce_PatientNotFoundOpensIntake(t *testing.T) {
	s := Reduce(State{Authenticated: true}, SearchStarted{})
	s = Reduce(s, PatientNotFound{Token: s.Tokens.Patient, InsuranceNumber: "INS123"})

	if !s.IntakeOpen {
		t.Error("expected intake to be open")
	}
	if s.PendingInsurance != "INS123" {
		t.Errorf("expected pending insurance INS123, got %q", s.PendingInsurance)
	}

	s = Reduce(s, IntakeCancelled{})
	if s.IntakeOpen || s.PendingInsurance != "" {
		t.Errorf("expected intake closed, got %+v", s)
	}
}

func TestReduce_PatientCreated(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1}, &visit.Visit{ID: 7})
	s = Reduce(s, VisitProvisioned{Token: s.Tokens.Patient, PatientID: 1, Visit: &visit.Visit{ID: 8}})
	s.IntakeOpen = true
	s.PendingInsurance = "INS9"

	s = Reduce(s, PatientCreated{Patient: &patient.Patient{ID: 2}})

	if s.Patient.ID != 2 {
		t.Errorf("expected patient 2, got %d", s.Patient.ID)
	}
	if len(s.Visits) != 0 {
		t.Errorf("expected empty visits, got %v", s.Visits)
	}
	if s.IntakeOpen || s.PendingInsurance != "" {
		t.Error("expected intake closed")
	}
	if s.VisitID != 0 {
		t.Errorf("expected visit to be dropped with the previous patient, got %d", s.VisitID)
	}
}

func TestReduce_SamePatientKeepsVisit(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1})
	s = Reduce(s, VisitProvisioned{Token: s.Tokens.Patient, PatientID: 1, Visit: &visit.Visit{ID: 8}})

	s = Reduce(s, SearchStarted{})
	s = Reduce(s, PatientFound{Token: s.Tokens.Patient, Patient: &patient.Patient{ID: 1}})

	if s.VisitID != 8 {
		t.Errorf("expected visit 8 to survive a reload of the same patient, got %d", s.VisitID)
	}
}

func TestReduce_DropsStalePatientResult(t *testing.T) {
	s := Reduce(State{Authenticated: true}, SearchStarted{})
	first := s.Tokens.Patient
	s = Reduce(s, SearchStarted{})
	second := s.Tokens.Patient

	s = Reduce(s, PatientFound{Token: second, Patient: &patient.Patient{ID: 2}})
	stale := PatientFound{Token: first, Patient: &patient.Patient{ID: 1}}
	if !Stale(s, stale) {
		t.Fatal("expected the first search result to be stale")
	}
	s = Reduce(s, stale)

	if s.Patient.ID != 2 {
		t.Errorf("expected the later search to win, got patient %d", s.Patient.ID)
	}
}

func TestReduce_DropsVisitsForOtherPatient(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1})
	s = Reduce(s, VisitsRequested{})
	token := s.Tokens.Visits

	s = Reduce(s, PatientCreated{Patient: &patient.Patient{ID: 2}})
	s = Reduce(s, VisitsLoaded{Token: token, PatientID: 1, Visits: []*visit.Visit{{ID: 5}}})

	if len(s.Visits) != 0 {
		t.Errorf("expected visits of patient 1 to be dropped, got %v", s.Visits)
	}
}

func TestReduce_DropsSupersededVisitList(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1})
	s = Reduce(s, VisitsRequested{})
	old := s.Tokens.Visits
	s = Reduce(s, VisitsRequested{})

	s = Reduce(s, VisitsLoaded{Token: s.Tokens.Visits, PatientID: 1, Visits: []*visit.Visit{{ID: 2}, {ID: 1}}})
	s = Reduce(s, VisitsLoaded{Token: old, PatientID: 1, Visits: []*visit.Visit{{ID: 1}}})

	if len(s.Visits) != 2 {
		t.Errorf("expected the newer list to win, got %v", s.Visits)
	}
}

func TestReduce_SheetNavigation(t *testing.T) {
	s := State{}
	if s.CurrentSheet() != sheet.Digestive {
		t.Fatalf("expected no selection to read as digestive, got %s", s.CurrentSheet())
	}

	s = Reduce(s, SheetPrevious{})
	if s.Sheet != sheet.Abdomen {
		t.Errorf("expected previous from digestive to wrap to abdomen, got %s", s.Sheet)
	}
	s = Reduce(s, SheetNext{})
	if s.Sheet != sheet.Digestive {
		t.Errorf("expected next from abdomen to wrap to digestive, got %s", s.Sheet)
	}
	s = Reduce(s, SheetSelected{Type: sheet.Cardiac})
	s = Reduce(s, SheetNext{})
	if s.Sheet != sheet.Respiratory {
		t.Errorf("expected respiratory after cardiac, got %s", s.Sheet)
	}
}

func TestReduce_DocumentsOpenIgnoresUnknownVisit(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1}, &visit.Visit{ID: 7})

	s = Reduce(s, DocumentsOpened{VisitID: 99})
	if s.DocumentsOpen {
		t.Fatal("expected unknown visit id to be a no-op")
	}

	s = Reduce(s, DocumentsOpened{VisitID: 7})
	if !s.DocumentsOpen || s.DocumentsVisitID != 7 {
		t.Fatalf("expected documents for visit 7, got %+v", s)
	}

	token := s.Tokens.Documents
	s = Reduce(s, DocumentsLoaded{Token: token, Documents: []*documents.Document{{ID: 1}}})
	if len(s.Documents) != 1 {
		t.Errorf("expected one document, got %v", s.Documents)
	}

	s = Reduce(s, DocumentsClosed{})
	if Reduce(s, DocumentsLoaded{Token: token, Documents: []*documents.Document{{ID: 2}}}).Documents != nil {
		t.Error("expected a list arriving after close to be dropped")
	}
}

func TestReduce_DocumentsMessageSurvivesReload(t *testing.T) {
	s := located(t, &patient.Patient{ID: 1}, &visit.Visit{ID: 7})
	s = Reduce(s, DocumentsOpened{VisitID: 7})
	s = Reduce(s, DocumentsMessage{Text: documents.MsgUploaded})
	s = Reduce(s, DocumentsRequested{})
	s = Reduce(s, DocumentsLoaded{Token: s.Tokens.Documents, Documents: []*documents.Document{{ID: 1}}})

	if s.DocumentsMessage != documents.MsgUploaded {
		t.Errorf("expected upload message to stay, got %q", s.DocumentsMessage)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := located(t, &patient.Patient{ID: 1}, &visit.Visit{ID: 7})
	tokens := before.Tokens

	_ = Reduce(before, PatientCreated{Patient: &patient.Patient{ID: 2}})

	if before.Patient.ID != 1 || before.Tokens != tokens || len(before.Visits) != 1 {
		t.Errorf("expected input state to be untouched, got %+v", before)
	}
}

func TestReduce_SessionExpired(t *testing.T) {
	s := Reduce(State{Authenticated: true}, SessionExpired{Message: patient.MsgSessionExpired})
	if !s.SessionExpired || s.Error != patient.MsgSessionExpired {
		t.Errorf("expected session-expired state, got %+v", s)
	}
	s = Reduce(s, LoggedOut{})
	if s.SessionExpired || s.Authenticated {
		t.Errorf("expected reset state, got %+v", s)
	}
}
