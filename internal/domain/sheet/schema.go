package sheet

import (
	"fmt"
	"strings"
)

// Type tags one examination sheet variant.
type Type string

const (
	Digestive   Type = "digestive"
	Neurologic  Type = "neurologic"
	Vascular    Type = "vascular"
	Cardiac     Type = "cardiac"
	Respiratory Type = "respiratory"
	Abdomen     Type = "abdomen"
)

// Kind is how a field is edited.
type Kind string

const (
	KindText     Kind = "text"
	KindCheckbox Kind = "checkbox"
	KindChoice   Kind = "choice"
)

// Checkbox values as they are stored in a sheet's data.
const (
	Checked   = "1"
	Unchecked = "0"
)

type Field struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Rows    int      `json:"rows,omitempty"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"`
	Default string   `json:"default,omitempty"`
}

type Schema struct {
	Type   Type    `json:"type"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

func text(key, label string, rows int) Field {
	return Field{Key: key, Label: label, Rows: rows, Kind: KindText}
}

// schemas is in navigation order.
var schemas = []Schema{
	{Type: Digestive, Title: "Digestive", Fields: []Field{
		text("notes", "Notes", 4),
		text("digestive_inspection", "Digestive inspection", 2),
		text("digestive_auscultation", "Digestive auscultation", 2),
		text("digestive_palpation", "Digestive palpation", 2),
		text("liver", "Liver", 2),
		text("rectal", "Rectal", 2),
		{Key: "smoker", Label: "Smoker", Kind: KindCheckbox, Default: Unchecked},
		{Key: "insurance_type", Label: "Insurance Type", Kind: KindChoice, Options: []string{"public", "private"}, Default: "public"},
	}},
	{Type: Neurologic, Title: "Neurologic", Fields: []Field{
		text("cranial_nerves", "Cranial Nerves (II-XII)", 3),
		text("motor_strength", "Motor Strength", 3),
		text("reflexes", "Reflexes", 2),
		text("sensation", "Sensation", 2),
		text("coordination", "Coordination & Gait", 2),
		text("mental_status", "Mental Status", 2),
	}},
	{Type: Vascular, Title: "Vascular", Fields: []Field{
		text("pulses", "Pulses (radial, femoral, pedal)", 3),
		text("edema", "Edema", 2),
		text("capillary_refill", "Capillary Refill", 2),
		text("varicosities", "Varicosities", 2),
		text("bruits", "Bruits", 2),
	}},
	{Type: Cardiac, Title: "Cardiac", Fields: []Field{
		text("rate_rhythm", "Rate & Rhythm", 2),
		text("heart_sounds", "Heart Sounds (S1, S2, murmurs)", 3),
		text("chest_pain", "Chest Pain Assessment", 2),
		text("jvp", "Jugular Venous Pressure", 2),
		text("peripheral_perfusion", "Peripheral Perfusion", 2),
	}},
	{Type: Respiratory, Title: "Respiratory", Fields: []Field{
		text("respiratory_rate", "Respiratory Rate & Pattern", 2),
		text("breath_sounds", "Breath Sounds", 3),
		text("adventitious_sounds", "Adventitious Sounds (wheezes/crackles)", 2),
		text("oxygen_saturation", "Oxygen Saturation", 2),
		text("chest_expansion", "Chest Expansion", 2),
	}},
	{Type: Abdomen, Title: "Abdomen", Fields: []Field{
		text("inspection", "Inspection", 2),
		text("auscultation", "Auscultation", 2),
		text("palpation", "Palpation", 3),
		text("percussion", "Percussion", 2),
		text("liver", "Liver", 2),
		text("spleen", "Spleen", 2),
	}},
}

// Schemas returns every sheet variant in navigation order.
func Schemas() []Schema {
	out := make([]Schema, len(schemas))
	copy(out, schemas)
	return out
}

func Lookup(t Type) (Schema, bool) {
	for _, s := range schemas {
		if s.Type == t {
			return s, true
		}
	}
	return Schema{}, false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Lookup(t); !ok {
		return "", fmt.Errorf("unknown sheet type %q", s)
	}
	return t, nil
}

// Field returns the field with key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Blank returns a full mapping with every field at its default.
func (s Schema) Blank() Values {
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		v[f.Key] = f.Default
	}
	return v
}

// Next returns the sheet after t, wrapping from the last to the first. No
// selection counts as the first sheet.
func Next(t Type) Type {
	return schemas[(index(t)+1)%len(schemas)].Type
}

// Previous returns the sheet before t, wrapping from the first to the last.
func Previous(t Type) Type {
	return schemas[(index(t)-1+len(schemas))%len(schemas)].Type
}

func index(t Type) int {
	for i, s := range schemas {
		if s.Type == t {
			return i
		}
	}
	return 0
}
