package schema

import (
	"encoding/json"
	"testing"
)

func TestWorkItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    WorkItem
		wantErr bool
	}{
		{name: "valid item", item: WorkItem{TagID: 10, TagName: "blue_sky"}},
		{name: "zero id", item: WorkItem{TagID: 0, TagName: "blue_sky"}, wantErr: true},
		{name: "negative id", item: WorkItem{TagID: -1, TagName: "blue_sky"}, wantErr: true},
		{name: "blank name", item: WorkItem{TagID: 10, TagName: "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkItem_LineFormat(t *testing.T) {
	item := WorkItem{TagID: 10, TagName: "blue_sky"}

	line, err := item.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine() failed: %v", err)
	}
	if got, want := string(line), `{"tag_id":10,"tag":"blue_sky"}`; got != want {
		t.Errorf("MarshalLine() = %s, want %s", got, want)
	}

	parsed, err := ParseWorkItem(line)
	if err != nil {
		t.Fatalf("ParseWorkItem() failed: %v", err)
	}
	if parsed != item {
		t.Errorf("ParseWorkItem() = %+v, want %+v", parsed, item)
	}
}

func TestParseWorkItem_Rejects(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"tag_id":"ten","tag":"blue_sky"}`,
		`{"tag":"blue_sky"}`,
		`{"tag_id":10}`,
	} {
		if _, err := ParseWorkItem([]byte(line)); err == nil {
			t.Errorf("ParseWorkItem(%q) expected error", line)
		}
	}
}

func TestImplicationRecord_UnmarshalStatus(t *testing.T) {
	data := `[
		{"id":1,"antecedent_name":"blue_sky","consequent_name":"sky","status":"active"},
		{"id":2,"antecedent_name":"a","consequent_name":"b","status":"deleted"},
		{"id":3,"antecedent_name":"c","consequent_name":"d","status":"processing"}
	]`

	var recs []ImplicationRecord
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if !recs[0].IsActive() {
		t.Errorf("record 0 should be active")
	}
	for _, r := range recs[1:] {
		if r.Status != StatusOther {
			t.Errorf("status for %s = %q, want %q", r.AntecedentName, r.Status, StatusOther)
		}
	}
}

func TestDirectionFor(t *testing.T) {
	rec := ImplicationRecord{AntecedentName: "blue_sky", ConsequentName: "sky", Status: StatusActive}

	other, isChild, ok := DirectionFor("blue_sky", rec)
	if !ok || other != "sky" || !isChild {
		t.Errorf("antecedent: got (%q, %v, %v), want (sky, true, true)", other, isChild, ok)
	}

	other, isChild, ok = DirectionFor("sky", rec)
	if !ok || other != "blue_sky" || isChild {
		t.Errorf("consequent: got (%q, %v, %v), want (blue_sky, false, true)", other, isChild, ok)
	}

	if _, _, ok := DirectionFor("cloud", rec); ok {
		t.Errorf("unrelated tag should not match")
	}
}
