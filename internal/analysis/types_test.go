package analysis

import (
	"encoding/json"
	"testing"
)

func TestSafetyIncidentUnmarshalBothShapes(t *testing.T) {
	raw := `[
		"Near miss at the loading bay",
		{"person": "J. Smith", "description": "Cut to left hand", "action_taken": "First aid administered"}
	]`
	var incidents []SafetyIncident
	if err := json.Unmarshal([]byte(raw), &incidents); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("len = %d", len(incidents))
	}
	if incidents[0].IsStructured() || incidents[0].Text != "Near miss at the loading bay" {
		t.Fatalf("incidents[0] = %+v", incidents[0])
	}
	if !incidents[1].IsStructured() {
		t.Fatalf("incidents[1] = %+v", incidents[1])
	}
	if incidents[1].Structured.Person != "J. Smith" || incidents[1].Structured.ActionTaken != "First aid administered" {
		t.Fatalf("incidents[1].Structured = %+v", incidents[1].Structured)
	}
}

func TestSafetyIncidentMarshalRoundTrip(t *testing.T) {
	in := []SafetyIncident{
		{Text: "Toolbox talk held"},
		{Structured: &IncidentDetail{Person: "A. Jones", Description: "Slip on wet ramp", ActionTaken: "Area cordoned"}},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out []SafetyIncident
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out[0].Text != in[0].Text {
		t.Fatalf("out[0] = %+v", out[0])
	}
	if !out[1].IsStructured() || out[1].Structured.Description != "Slip on wet ramp" {
		t.Fatalf("out[1] = %+v", out[1])
	}
}

func TestSafetyIncidentRejectsOtherTypes(t *testing.T) {
	var si SafetyIncident
	if err := json.Unmarshal([]byte(`42`), &si); err == nil {
		t.Fatal("expected error for numeric incident")
	}
}
