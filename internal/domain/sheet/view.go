package sheet

type FieldView struct {
	Field
	Value string `json:"value"`
}

type HistoryItem struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	EditReason string `json:"edit_reason,omitempty"`
}

type EditorView struct {
	Type       Type          `json:"type"`
	Title      string        `json:"title"`
	Mode       Mode          `json:"mode"`
	Fields     []FieldView   `json:"fields"`
	EntryID    int           `json:"entry_id,omitempty"`
	History    []HistoryItem `json:"history"`
	HistoryMsg string        `json:"history_message,omitempty"`
	Dirty      bool          `json:"dirty"`
	Saving     bool          `json:"saving"`
	Notice     string        `json:"notice,omitempty"`
}

// View snapshots the editor for display.
func (e *Editor) View() EditorView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := EditorView{
		Type:    e.schema.Type,
		Title:   e.schema.Title + " Examination",
		Mode:    e.mode,
		Fields:  make([]FieldView, 0, len(e.schema.Fields)),
		EntryID: e.entryID,
		History: make([]HistoryItem, 0, len(e.history)),
		Dirty:   e.dirty,
		Saving:  e.saving,
		Notice:  e.notice,
	}
	for _, f := range e.schema.Fields {
		v.Fields = append(v.Fields, FieldView{Field: f, Value: e.fields[f.Key]})
	}
	for _, h := range e.history {
		v.History = append(v.History, HistoryItem{ID: h.ID, Label: HistoryLabel(h), EditReason: h.EditReason})
	}
	if len(v.History) == 0 {
		v.HistoryMsg = MsgNoHistory
	}
	return v
}

// HistoryLabel renders an entry as "<created at> - Visit: <visit date>".
func HistoryLabel(h *Entry) string {
	visit := "N/A"
	if !h.VisitDate.IsZero() {
		visit = h.VisitDate.String()
	}
	return h.CreatedAt + " - Visit: " + visit
}
