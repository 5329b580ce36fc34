package sheet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/validation"
	"github.com/ehr/desk/pkg/calendar"
)

type Mode string

const (
	ModeClosed  Mode = "closed"
	ModeLoading Mode = "loading"
	ModeCurrent Mode = "current"
	ModeHistory Mode = "history"
)

// Messages shown by the editor.
const (
	MsgSaved        = "Sheet saved successfully"
	MsgSaveFailed   = "Failed to save sheet"
	MsgSaveError    = "Error saving sheet"
	MsgNoHistory    = "No history available"
	MsgNoVisit      = "No visit in progress"
	MsgUnsavedEdits = "Unsaved changes would be lost"
)

var (
	// ErrUnsavedChanges blocks loading a history entry over edited fields.
	ErrUnsavedChanges = errors.New("sheet has unsaved changes")
	// ErrSuperseded means a newer load replaced this one; its result was
	// dropped.
	ErrSuperseded = errors.New("superseded by a newer load")
)

// Editor is the state of one open sheet. Field loads and history loads each
// carry a generation; a response that comes back for an older generation is
// discarded. Starting a new entry only supersedes field loads.
type Editor struct {
	svc       *Service
	schema    Schema
	patientID int
	visitID   int

	mu        sync.Mutex
	fieldGen  uint64
	histGen   uint64
	mode      Mode
	fields    Values
	entryID   int
	visitDate calendar.Date
	history   []*Entry
	dirty     bool
	saving    bool
	notice    string
}

func newEditor(svc *Service, schema Schema, patientID, visitID int) *Editor {
	return &Editor{
		svc:       svc,
		schema:    schema,
		patientID: patientID,
		visitID:   visitID,
		mode:      ModeClosed,
		fields:    schema.Blank(),
		history:   []*Entry{},
	}
}

func (e *Editor) Type() Type { return e.schema.Type }

// SetVisitDate records the date of the visit in progress. Saves are stamped
// with it; loaded entries never change it. Zero means today.
func (e *Editor) SetVisitDate(d calendar.Date) {
	e.mu.Lock()
	e.visitDate = d
	e.mu.Unlock()
}

// Open loads the latest entry for the visit and the sheet history in
// parallel. A failed half is logged and leaves that part empty.
func (e *Editor) Open(ctx context.Context) error {
	e.mu.Lock()
	e.fieldGen++
	e.histGen++
	fieldGen, histGen := e.fieldGen, e.histGen
	e.mode = ModeLoading
	e.notice = ""
	e.mu.Unlock()

	var (
		latest  *Entry
		history []*Entry
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		latest, err = e.svc.store.Latest(ctx, e.schema.Type, e.patientID, e.visitID)
		if err != nil {
			e.svc.log.Error().Err(err).Str("sheet_type", string(e.schema.Type)).Int("patient_id", e.patientID).Msg("load latest sheet failed")
		}
		return err
	})
	g.Go(func() error {
		var err error
		history, err = e.svc.store.History(ctx, e.schema.Type, e.patientID)
		if err != nil {
			e.svc.log.Error().Err(err).Str("sheet_type", string(e.schema.Type)).Int("patient_id", e.patientID).Msg("load sheet history failed")
		}
		return err
	})
	err := g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	fieldsCurrent, historyCurrent := fieldGen == e.fieldGen, histGen == e.histGen
	if historyCurrent && history != nil {
		e.history = history
	}
	if !fieldsCurrent {
		e.svc.metrics.StaleResponse("sheet.open")
		if !historyCurrent {
			return ErrSuperseded
		}
		return nil
	}
	e.mode = ModeCurrent
	e.fields = e.schema.Blank()
	e.entryID = 0
	e.dirty = false
	if latest != nil {
		e.load(latest)
	}
	return err
}

// NewEntry clears every field and detaches from the loaded entry, so the
// next save is recorded as a new entry. History is kept.
func (e *Editor) NewEntry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fieldGen++
	e.mode = ModeCurrent
	e.fields = e.schema.Blank()
	e.entryID = 0
	e.dirty = false
	e.notice = ""
}

// SetField edits one field. Checkbox values are normalized to "0"/"1";
// choice values must be one of the field's options.
func (e *Editor) SetField(key, value string) error {
	f, ok := e.schema.Field(key)
	if !ok {
		return fmt.Errorf("%s sheet has no field %q", e.schema.Type, key)
	}
	switch f.Kind {
	case KindCheckbox:
		switch value {
		case Checked, "true", "on", "yes":
			value = Checked
		case Unchecked, "false", "off", "no", "":
			value = Unchecked
		default:
			return fmt.Errorf("field %q: %q is not a checkbox value", key, value)
		}
	case KindChoice:
		valid := false
		for _, o := range f.Options {
			if o == value {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("field %q must be one of %v", key, f.Options)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fields[key] != value {
		e.fields[key] = value
		e.dirty = true
	}
	return nil
}

// SelectHistory loads a previous entry into the editor. With unsaved edits
// it refuses unless force is set.
func (e *Editor) SelectHistory(ctx context.Context, id int, force bool) error {
	e.mu.Lock()
	if e.dirty && !force {
		e.notice = MsgUnsavedEdits
		e.mu.Unlock()
		return ErrUnsavedChanges
	}
	e.fieldGen++
	gen := e.fieldGen
	e.mu.Unlock()

	entry, err := e.svc.store.Entry(ctx, e.schema.Type, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.fieldGen {
		e.svc.metrics.StaleResponse("sheet.history_entry")
		return ErrSuperseded
	}
	if err != nil {
		e.svc.log.Error().Err(err).Int("entry_id", id).Msg("load sheet entry failed")
		return fmt.Errorf("load entry %d: %w", id, err)
	}
	e.fields = e.schema.Blank()
	e.load(entry)
	e.entryID = id
	e.mode = ModeHistory
	e.dirty = false
	e.notice = ""
	return nil
}

// Save appends the full field mapping as a new entry. The edit reason is
// "Updated entry" when the editor tracks a loaded entry, "New entry"
// otherwise. History is reloaded afterwards.
func (e *Editor) Save(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.visitID <= 0 || e.patientID <= 0 {
		e.notice = MsgNoVisit
		e.mu.Unlock()
		return 0, &validation.UserError{Message: MsgNoVisit}
	}
	reason := EditNew
	if e.entryID != 0 {
		reason = EditUpdated
	}
	req := SaveRequest{
		PatientID:  e.patientID,
		VisitID:    e.visitID,
		VisitDate:  e.visitDate,
		Data:       e.fields.clone(),
		EditReason: reason,
	}
	e.saving = true
	e.mu.Unlock()

	id, err := e.svc.store.Save(ctx, e.schema.Type, req)

	e.mu.Lock()
	e.saving = false
	if err != nil {
		msg := MsgSaveFailed
		if apiclient.IsTransport(err) {
			msg = MsgSaveError
		}
		e.notice = msg
		e.mu.Unlock()
		e.svc.log.Error().Err(err).Str("sheet_type", string(e.schema.Type)).Int("visit_id", e.visitID).Msg("save sheet failed")
		return 0, &validation.UserError{Message: msg, Err: err}
	}
	if id != 0 {
		e.entryID = id
	}
	e.dirty = false
	e.notice = MsgSaved
	e.histGen++
	gen := e.histGen
	e.mu.Unlock()

	e.svc.metrics.SheetSaved(string(e.schema.Type), reason)
	e.svc.log.Info().Str("sheet_type", string(e.schema.Type)).Int("visit_id", e.visitID).Str("edit_reason", reason).Int("entry_id", id).Msg("sheet saved")

	history, herr := e.svc.store.History(ctx, e.schema.Type, e.patientID)
	if herr != nil {
		e.svc.log.Error().Err(herr).Msg("reload sheet history failed")
		return id, nil
	}
	e.mu.Lock()
	if gen == e.histGen {
		e.history = history
	} else {
		e.svc.metrics.StaleResponse("sheet.history")
	}
	e.mu.Unlock()
	return id, nil
}

// Dirty reports whether fields changed since the last load or save.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// load copies an entry's data over the blank mapping. The entry's own visit
// date is not carried over. Callers hold e.mu.
func (e *Editor) load(entry *Entry) {
	for k, v := range entry.Data {
		if _, ok := e.schema.Field(k); ok {
			e.fields[k] = v
		}
	}
	e.entryID = entry.ID
}
