package visit

import (
	"fmt"
	"unicode/utf8"
)

// Placeholder is shown instead of an empty ledger.
const Placeholder = "No previous visits"

// complaintPreviewLen is how many characters of the chief complaint a ledger
// line shows before eliding.
const complaintPreviewLen = 50

// dateLayout renders visit dates the way the clinic's locale does.
const dateLayout = "1/2/2006"

type Line struct {
	VisitID   int    `json:"visit_id"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Complaint string `json:"complaint,omitempty"`
	Documents string `json:"documents,omitempty"`
}

type LedgerView struct {
	Lines       []Line `json:"lines"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Ledger renders visits in the order given. It never sorts.
func Ledger(visits []*Visit) LedgerView {
	if len(visits) == 0 {
		return LedgerView{Lines: []Line{}, Placeholder: Placeholder}
	}
	lines := make([]Line, 0, len(visits))
	for _, v := range visits {
		l := Line{
			VisitID:   v.ID,
			Type:      "Type: " + v.VisitType,
			Complaint: Preview(v.ChiefComplaint),
		}
		if !v.VisitDate.IsZero() {
			l.Date = v.VisitDate.Time().Format(dateLayout)
		}
		if v.DocumentCount > 0 {
			l.Documents = fmt.Sprintf("%d document(s)", v.DocumentCount)
		}
		lines = append(lines, l)
	}
	return LedgerView{Lines: lines}
}

// Preview truncates a chief complaint to 50 characters, appending "..." when
// anything was cut.
func Preview(complaint string) string {
	if utf8.RuneCountInString(complaint) <= complaintPreviewLen {
		return complaint
	}
	r := []rune(complaint)
	return string(r[:complaintPreviewLen]) + "..."
}

// Find returns the visit with id, or nil.
func Find(visits []*Visit, id int) *Visit {
	for _, v := range visits {
		if v.ID == id {
			return v
		}
	}
	return nil
}
