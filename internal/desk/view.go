package desk

import (
	"strconv"

	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/identity"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
)

type PatientHeader struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	BirthDate       string `json:"birth_date"`
	Age             string `json:"age"`
	InsuranceNumber string `json:"insurance_number"`
}

type IntakeView struct {
	InsuranceNumber string `json:"insurance_number"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	BirthDate       string `json:"birth_date"`
	Error           string `json:"error,omitempty"`
	Saving          bool   `json:"saving"`
}

type DocumentItem struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	Caption  string `json:"caption"`
	ViewURL  string `json:"view_url"`
}

type DocumentsView struct {
	VisitID int            `json:"visit_id"`
	Items   []DocumentItem `json:"items"`
	Empty   string         `json:"empty,omitempty"`
	Message string         `json:"message,omitempty"`
}

// View is everything the workstation shows at one moment.
type View struct {
	Authenticated  bool              `json:"authenticated"`
	Auth           *identity.Form    `json:"auth,omitempty"`
	Searching      bool              `json:"searching"`
	Patient        *PatientHeader    `json:"patient,omitempty"`
	VisitID        int               `json:"visit_id,omitempty"`
	Ledger         visit.LedgerView  `json:"ledger"`
	Sheet          sheet.Type        `json:"sheet"`
	Editor         *sheet.EditorView `json:"editor,omitempty"`
	Intake         *IntakeView       `json:"intake,omitempty"`
	Documents      *DocumentsView    `json:"documents,omitempty"`
	Notice         string            `json:"notice,omitempty"`
	Error          string            `json:"error,omitempty"`
	SessionExpired bool              `json:"session_expired"`
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	st := c.state
	auth := c.auth
	var in *patient.Intake
	if c.intake != nil {
		cp := *c.intake
		in = &cp
	}
	ed := c.editor
	c.mu.Unlock()

	v := View{
		Authenticated:  st.Authenticated,
		Searching:      st.Searching,
		VisitID:        st.VisitID,
		Ledger:         visit.Ledger(st.Visits),
		Sheet:          st.CurrentSheet(),
		Notice:         st.Notice,
		Error:          st.Error,
		SessionExpired: st.SessionExpired,
	}
	if !st.Authenticated {
		auth.Password = ""
		v.Auth = &auth
		return v
	}
	if st.Patient != nil {
		v.Patient = c.header(st.Patient)
	}
	if ed != nil {
		ev := ed.View()
		v.Editor = &ev
	}
	if st.IntakeOpen && in != nil {
		v.Intake = &IntakeView{
			InsuranceNumber: in.InsuranceNumber(),
			FirstName:       in.FirstName,
			LastName:        in.LastName,
			BirthDate:       in.BirthDate,
			Error:           in.Error,
			Saving:          in.Saving,
		}
	}
	if st.DocumentsOpen {
		v.Documents = c.documentsView(st)
	}
	return v
}

func (c *Coordinator) header(p *patient.Patient) *PatientHeader {
	h := &PatientHeader{
		ID:              p.ID,
		Name:            p.FullName(),
		Age:             "N/A",
		InsuranceNumber: p.InsuranceNumber,
	}
	if !p.BirthDate.IsZero() {
		h.BirthDate = p.BirthDate.String()
		h.Age = strconv.Itoa(patient.Age(p.BirthDate, c.today()))
	}
	return h
}

func (c *Coordinator) documentsView(st State) *DocumentsView {
	dv := &DocumentsView{
		VisitID: st.DocumentsVisitID,
		Items:   make([]DocumentItem, 0, len(st.Documents)),
		Message: st.DocumentsMessage,
	}
	for _, d := range st.Documents {
		dv.Items = append(dv.Items, DocumentItem{
			ID:       d.ID,
			FileName: d.FileName,
			FileType: d.FileType,
			Caption:  documents.Caption(d),
			ViewURL:  c.svc.Documents.ViewURL(d),
		})
	}
	if len(dv.Items) == 0 {
		dv.Empty = documents.MsgNoDocuments
	}
	return dv
}
