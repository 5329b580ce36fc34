package desk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/identity"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/internal/platform/metrics"
	"github.com/ehr/desk/internal/platform/validation"
	"github.com/ehr/desk/pkg/calendar"
)

var (
	// ErrNoPatient is returned by operations that need a located patient.
	ErrNoPatient       = errors.New("no patient selected")
	ErrUnknownDocument = errors.New("unknown document")
)

type Services struct {
	Identity  *identity.Service
	Patients  *patient.Service
	Visits    *visit.Service
	Sheets    *sheet.Service
	Documents *documents.Service
}

type Options struct {
	// ReloadDelay is how long the session-expired message stays up before
	// the desk resets and probes the session again.
	ReloadDelay time.Duration
	Metrics     *metrics.Collector
	Logger      zerolog.Logger

	// AfterFunc schedules the reload; time.AfterFunc when nil.
	AfterFunc func(d time.Duration, f func())
	// Today is the clock used for ages; calendar.Today when nil.
	Today func() calendar.Date
}

// Coordinator owns the desk State and runs the calls that change it. All
// state changes go through dispatch.
type Coordinator struct {
	svc         Services
	log         zerolog.Logger
	metrics     *metrics.Collector
	reloadDelay time.Duration
	afterFunc   func(d time.Duration, f func())
	today       func() calendar.Date

	mu     sync.Mutex
	state  State
	auth   identity.Form
	intake *patient.Intake
	editor *sheet.Editor
}

func New(svc Services, opts Options) *Coordinator {
	c := &Coordinator{
		svc:         svc,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		reloadDelay: opts.ReloadDelay,
		afterFunc:   opts.AfterFunc,
		today:       opts.Today,
	}
	if c.afterFunc == nil {
		c.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if c.today == nil {
		c.today = calendar.Today
	}
	return c
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) dispatch(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if Stale(c.state, a) {
		c.metrics.StaleResponse(staleOp(a))
		c.log.Debug().Str("action", staleOp(a)).Msg("dropped stale response")
		return c.state
	}
	c.state = Reduce(c.state, a)
	return c.state
}

func staleOp(a Action) string {
	switch a.(type) {
	case PatientFound, PatientNotFound, SearchFailed:
		return "patient.locate"
	case VisitProvisioned:
		return "visit.provision"
	case VisitsLoaded:
		return "visit.list"
	case DocumentsLoaded:
		return "documents.list"
	}
	return "unknown"
}

// Start runs the session gate: a valid stored session unlocks the desk
// without prompting.
func (c *Coordinator) Start(ctx context.Context) State {
	return c.dispatch(AuthChecked{Authenticated: c.svc.Identity.Probe(ctx)})
}

// AuthForm returns a copy of the login/register form.
func (c *Coordinator) AuthForm() identity.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.auth
	f.Password = ""
	return f
}

func (c *Coordinator) ToggleAuthMode() identity.Form {
	c.mu.Lock()
	c.auth.Toggle()
	c.mu.Unlock()
	return c.AuthForm()
}

// SubmitAuth fills the form and submits it in its current mode. A
// successful login unlocks the desk.
func (c *Coordinator) SubmitAuth(ctx context.Context, in identity.Form) (identity.Form, bool) {
	c.mu.Lock()
	f := c.auth
	c.mu.Unlock()

	f.Name, f.Email, f.DoctorNumber, f.Password = in.Name, in.Email, in.DoctorNumber, in.Password
	ok := f.Submit(ctx, c.svc.Identity)
	f.Password = ""

	c.mu.Lock()
	c.auth = f
	c.mu.Unlock()
	if ok {
		c.dispatch(AuthChecked{Authenticated: true})
	}
	return f, ok
}

func (c *Coordinator) Logout(ctx context.Context) State {
	if err := c.svc.Identity.Logout(ctx); err != nil {
		c.log.Warn().Err(err).Msg("logout failed")
	}
	c.mu.Lock()
	c.auth = identity.Form{}
	c.intake = nil
	c.editor = nil
	c.mu.Unlock()
	return c.dispatch(LoggedOut{})
}

// Locate runs the patient locator. A hit loads the patient and provisions
// a visit when none is tracked; a miss opens the intake form.
func (c *Coordinator) Locate(ctx context.Context, q patient.SearchQuery) (State, error) {
	st := c.dispatch(SearchStarted{})
	token := st.Tokens.Patient

	res, err := c.svc.Patients.Locate(ctx, q)
	if err != nil {
		c.dispatch(SearchFailed{Token: token, Message: validation.Message(err, patient.MsgSearchFailed)})
		return c.State(), err
	}
	if !res.Found {
		c.mu.Lock()
		c.intake = patient.NewIntake(res.InsuranceNumber)
		c.mu.Unlock()
		return c.dispatch(PatientNotFound{Token: token, InsuranceNumber: res.InsuranceNumber}), nil
	}

	st = c.dispatch(PatientFound{Token: token, Patient: res.Patient, Visits: res.Visits})
	if st.Tokens.Patient != token {
		return st, nil
	}
	c.patientChanged(ctx, st)
	return c.State(), nil
}

// Intake returns a copy of the open intake form, or nil.
func (c *Coordinator) Intake() *patient.Intake {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intake == nil {
		return nil
	}
	in := *c.intake
	return &in
}

// SubmitIntake creates the patient from the open intake form. A 401 shows
// the session-expired message and schedules a full reload.
func (c *Coordinator) SubmitIntake(ctx context.Context, firstName, lastName, birthDate string) (State, error) {
	c.mu.Lock()
	if c.intake == nil {
		c.mu.Unlock()
		return c.State(), errors.New("no intake form is open")
	}
	in := *c.intake
	c.mu.Unlock()

	in.FirstName, in.LastName, in.BirthDate = firstName, lastName, birthDate
	p, err := in.Submit(ctx, c.svc.Patients)

	c.mu.Lock()
	if c.intake != nil {
		*c.intake = in
	}
	c.mu.Unlock()

	if err != nil {
		if patient.SessionExpired(err) {
			c.dispatch(SessionExpired{Message: patient.MsgSessionExpired})
			c.scheduleReload()
		}
		return c.State(), err
	}

	c.mu.Lock()
	c.intake = nil
	c.mu.Unlock()
	st := c.dispatch(PatientCreated{Patient: p})
	c.patientChanged(ctx, st)
	return c.State(), nil
}

func (c *Coordinator) CancelIntake() State {
	c.mu.Lock()
	c.intake = nil
	c.mu.Unlock()
	return c.dispatch(IntakeCancelled{})
}

func (c *Coordinator) scheduleReload() {
	c.log.Info().Dur("delay", c.reloadDelay).Msg("session expired; reloading")
	c.afterFunc(c.reloadDelay, func() {
		c.reset()
		c.Start(context.Background())
	})
}

// reset drops everything but the request tokens, as a page reload would.
func (c *Coordinator) reset() {
	c.mu.Lock()
	c.auth = identity.Form{}
	c.intake = nil
	c.editor = nil
	c.mu.Unlock()
	c.dispatch(LoggedOut{})
}

// patientChanged provisions a visit when the new patient has none tracked,
// then opens the selected sheet.
func (c *Coordinator) patientChanged(ctx context.Context, st State) {
	if st.VisitID == 0 {
		c.provisionVisit(ctx, st)
	}
	c.openEditor(ctx)
}

func (c *Coordinator) provisionVisit(ctx context.Context, st State) {
	pid := st.Patient.ID
	v, err := c.svc.Visits.Create(ctx, pid, visit.NewVisit{})
	if err != nil {
		c.log.Error().Err(err).Int("patient_id", pid).Msg("provision visit failed")
		return
	}
	after := c.dispatch(VisitProvisioned{Token: st.Tokens.Patient, PatientID: pid, Visit: v})
	if after.VisitID != v.ID {
		return
	}
	c.RefreshVisits(ctx)
}

// RefreshVisits reloads the ledger for the current patient.
func (c *Coordinator) RefreshVisits(ctx context.Context) State {
	st := c.dispatch(VisitsRequested{})
	if st.Patient == nil {
		return st
	}
	pid := st.Patient.ID
	visits, err := c.svc.Visits.ListByPatient(ctx, pid)
	if err != nil {
		c.log.Error().Err(err).Int("patient_id", pid).Msg("refresh visits failed")
		return c.State()
	}
	return c.dispatch(VisitsLoaded{Token: st.Tokens.Visits, PatientID: pid, Visits: visits})
}

func (c *Coordinator) SelectSheet(ctx context.Context, t sheet.Type) (State, error) {
	if _, ok := sheet.Lookup(t); !ok {
		return c.State(), &validation.UserError{Message: "Unknown sheet type: " + string(t)}
	}
	st := c.dispatch(SheetSelected{Type: t})
	c.openEditor(ctx)
	return st, nil
}

func (c *Coordinator) NextSheet(ctx context.Context) State {
	st := c.dispatch(SheetNext{})
	c.openEditor(ctx)
	return st
}

func (c *Coordinator) PreviousSheet(ctx context.Context) State {
	st := c.dispatch(SheetPrevious{})
	c.openEditor(ctx)
	return st
}

// openEditor replaces the editor with one for the selected sheet, the
// current patient and visit. Without both there is no editor.
func (c *Coordinator) openEditor(ctx context.Context) {
	st := c.State()
	if st.Patient == nil || st.VisitID == 0 {
		c.mu.Lock()
		c.editor = nil
		c.mu.Unlock()
		return
	}
	ed, err := c.svc.Sheets.Editor(st.CurrentSheet(), st.Patient.ID, st.VisitID)
	if err != nil {
		c.log.Error().Err(err).Msg("open sheet editor failed")
		return
	}
	ed.SetVisitDate(st.VisitDate)
	c.mu.Lock()
	c.editor = ed
	c.mu.Unlock()

	if err := ed.Open(ctx); err != nil && !errors.Is(err, sheet.ErrSuperseded) {
		c.log.Warn().Err(err).Str("sheet_type", string(ed.Type())).Msg("sheet opened with load errors")
	}
}

// Editor returns the open sheet editor, or an error when no patient or
// visit is in progress.
func (c *Coordinator) Editor() (*sheet.Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == nil {
		if c.state.Patient == nil {
			return nil, ErrNoPatient
		}
		return nil, &validation.UserError{Message: sheet.MsgNoVisit}
	}
	return c.editor, nil
}

func (c *Coordinator) SetSheetField(key, value string) error {
	ed, err := c.Editor()
	if err != nil {
		return err
	}
	return ed.SetField(key, value)
}

func (c *Coordinator) NewSheetEntry() error {
	ed, err := c.Editor()
	if err != nil {
		return err
	}
	ed.NewEntry()
	return nil
}

func (c *Coordinator) SelectSheetHistory(ctx context.Context, id int, force bool) error {
	ed, err := c.Editor()
	if err != nil {
		return err
	}
	return ed.SelectHistory(ctx, id, force)
}

// SaveSheet saves the open sheet and refreshes the visit ledger.
func (c *Coordinator) SaveSheet(ctx context.Context) (int, error) {
	ed, err := c.Editor()
	if err != nil {
		return 0, err
	}
	id, err := ed.Save(ctx)
	if err != nil {
		return 0, err
	}
	c.dispatch(Notice{Text: sheet.MsgSaved})
	c.RefreshVisits(ctx)
	return id, nil
}

// OpenDocuments shows the document manager for a ledger line. Unknown
// visit ids are ignored.
func (c *Coordinator) OpenDocuments(ctx context.Context, visitID int) State {
	st := c.dispatch(DocumentsOpened{VisitID: visitID})
	if !st.DocumentsOpen || st.DocumentsVisitID != visitID {
		return st
	}
	return c.loadDocuments(ctx, st)
}

func (c *Coordinator) CloseDocuments() State {
	return c.dispatch(DocumentsClosed{})
}

func (c *Coordinator) loadDocuments(ctx context.Context, st State) State {
	docs, err := c.svc.Documents.List(ctx, st.DocumentsVisitID)
	if err != nil {
		c.log.Error().Err(err).Int("visit_id", st.DocumentsVisitID).Msg("load documents failed")
		return c.State()
	}
	return c.dispatch(DocumentsLoaded{Token: st.Tokens.Documents, Documents: docs})
}

// UploadDocument attaches a file to the visit shown in the document
// manager, then reloads its list and the ledger counts.
func (c *Coordinator) UploadDocument(ctx context.Context, u documents.Upload) (State, error) {
	st := c.State()
	if !st.DocumentsOpen {
		return st, errors.New("document manager is not open")
	}
	if _, err := c.svc.Documents.Upload(ctx, st.DocumentsVisitID, u); err != nil {
		c.dispatch(DocumentsMessage{Text: validation.Message(err, documents.MsgUploadError)})
		return c.State(), err
	}
	c.dispatch(DocumentsMessage{Text: documents.MsgUploaded})

	if st = c.dispatch(DocumentsRequested{}); st.DocumentsOpen {
		c.loadDocuments(ctx, st)
	}
	return c.RefreshVisits(ctx), nil
}

// FetchDocument streams a file listed in the open document manager.
func (c *Coordinator) FetchDocument(ctx context.Context, id int, w io.Writer) (*documents.Document, error) {
	var doc *documents.Document
	for _, d := range c.State().Documents {
		if d.ID == id {
			doc = d
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d is not listed: %w", id, ErrUnknownDocument)
	}
	if _, err := c.svc.Documents.Fetch(ctx, doc, w); err != nil {
		return doc, err
	}
	return doc, nil
}
