package sheet

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ehr/desk/pkg/calendar"
)

// Edit reasons recorded with every save.
const (
	EditNew     = "New entry"
	EditUpdated = "Updated entry"
)

// Values maps field keys to their text. Checkboxes hold "0" or "1".
type Values map[string]string

// UnmarshalJSON accepts numbers, booleans and null as well as strings, since
// stored sheets are free-form on the server.
func (v *Values) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for k, val := range raw {
		switch x := val.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case bool:
			if x {
				out[k] = Checked
			} else {
				out[k] = Unchecked
			}
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			return fmt.Errorf("field %q: unsupported value %T", k, val)
		}
	}
	*v = out
	return nil
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Entry is one saved version of a sheet. Entries are append-only; an ID of
// zero means the server sent defaults for a sheet never saved.
type Entry struct {
	ID         int           `json:"id"`
	Type       Type          `json:"sheet_type"`
	PatientID  int           `json:"patient_id"`
	VisitID    int           `json:"visit_id"`
	VisitDate  calendar.Date `json:"visit_date"`
	Data       Values        `json:"data"`
	EditReason string        `json:"edit_reason,omitempty"`
	CreatedAt  string        `json:"created_at,omitempty"`
}

type SaveRequest struct {
	PatientID  int           `json:"patient_id"`
	VisitID    int           `json:"visit_id"`
	VisitDate  calendar.Date `json:"-"`
	Data       Values        `json:"data"`
	EditReason string        `json:"edit_reason"`
}
