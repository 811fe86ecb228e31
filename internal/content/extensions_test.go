package content

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestCVDataKeepsUnknownSections(t *testing.T) {
	raw := []byte(`{"personal":{"fullName":"Ada"},"projects":[{"name":"Engine"}],"certifications":["X"]}`)

	var data CVData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Personal.FullName != "Ada" {
		t.Fatalf("unexpected personal %+v", data.Personal)
	}
	if len(data.Extensions) != 2 || data.Extensions["certifications"] == nil {
		t.Fatalf("unexpected extensions %v", data.Extensions)
	}

	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var top map[string]any
	if err := json.Unmarshal(out, &top); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := []any{map[string]any{"name": "Engine"}}
	if !reflect.DeepEqual(top["projects"], want) || !reflect.DeepEqual(top["certifications"], []any{"X"}) {
		t.Fatalf("extensions not flattened back: %s", out)
	}
	if _, ok := top["extensions"]; ok {
		t.Fatalf("unexpected nested extensions key: %s", out)
	}
}

func TestKnownFieldsWinOverExtensions(t *testing.T) {
	data := CoverLetterData{Subject: "Hello", Extensions: map[string]any{"subject": "shadow", "ps": "see you"}}
	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var top map[string]any
	if err := json.Unmarshal(out, &top); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if top["subject"] != "Hello" || top["ps"] != "see you" {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestDataRejectsNonObjects(t *testing.T) {
	var data CVData
	if err := json.Unmarshal([]byte(`["personal"]`), &data); err == nil {
		t.Fatalf("expected error for array body")
	}
}
