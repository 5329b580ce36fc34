package sheet

import "testing"

func TestNavigation_Wraps(t *testing.T) {
	order := []Type{Digestive, Neurologic, Vascular, Cardiac, Respiratory, Abdomen}
	for i, typ := range order {
		want := order[(i+1)%len(order)]
		if got := Next(typ); got != want {
			t.Errorf("Next(%s) = %s, want %s", typ, got, want)
		}
		if got := Previous(want); got != typ {
			t.Errorf("Previous(%s) = %s, want %s", want, got, typ)
		}
	}
	if Next(Abdomen) != Digestive {
		t.Error("expected Next to wrap from abdomen to digestive")
	}
	if Previous(Digestive) != Abdomen {
		t.Error("expected Previous to wrap from digestive to abdomen")
	}
}

func TestNavigation_NoSelectionIsDigestive(t *testing.T) {
	if Next("") != Neurologic {
		t.Errorf("expected Next of no selection to be neurologic, got %s", Next(""))
	}
	if Previous("") != Abdomen {
		t.Errorf("expected Previous of no selection to be abdomen, got %s", Previous(""))
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Cardiac ")
	if err != nil || typ != Cardiac {
		t.Errorf("expected cardiac, got %s / %v", typ, err)
	}
	if _, err := ParseType("dental"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestSchemas_FieldCounts(t *testing.T) {
	want := map[Type]int{Digestive: 8, Neurologic: 6, Vascular: 5, Cardiac: 5, Respiratory: 5, Abdomen: 6}
	for _, s := range Schemas() {
		if len(s.Fields) != want[s.Type] {
			t.Errorf("%s: expected %d fields, got %d", s.Type, want[s.Type], len(s.Fields))
		}
	}
}

func TestSchema_Blank(t *testing.T) {
	s, _ := Lookup(Digestive)
	b := s.Blank()
	if b["insurance_type"] != "public" || b["smoker"] != Unchecked {
		t.Errorf("unexpected digestive defaults %v", b)
	}
	if v, ok := b["notes"]; !ok || v != "" {
		t.Error("expected every field present in the blank mapping")
	}

	c, _ := Lookup(Cardiac)
	f, ok := c.Field("heart_sounds")
	if !ok || f.Rows != 3 || f.Label != "Heart Sounds (S1, S2, murmurs)" {
		t.Errorf("unexpected field %+v", f)
	}
}
