package analysis

import (
	"reflect"
	"testing"
)

func TestMockAnalysisNamedCrew(t *testing.T) {
	req := Request{
		ReportDate:     "2025-03-14",
		ProjectName:    "Riverside Apartments",
		WorksPerformed: "Poured slab for block B. Stripped formwork on level 2; cleaned site.",
		Labour:         "4 × Labourers – Jack, Josh, Daniel & Simon",
		HoursWorked:    "8",
		Plant:          "Excavator, Telehandler",
		Materials:      "Concrete 12 m3, Rebar",
		Delays:         "Light rain in the morning",
		Safety:         "Toolbox talk held on site access",
		Photos:         []ImageInput{{MimeType: "image/jpeg", Data: []byte("a")}, {MimeType: "image/png", Data: []byte("b")}},
	}

	a := MockAnalysis(req)

	if a.Workforce.TotalWorkers != 4 {
		t.Fatalf("TotalWorkers = %d, want 4", a.Workforce.TotalWorkers)
	}
	wantNames := []string{"Jack", "Josh", "Daniel", "Simon"}
	if !reflect.DeepEqual(a.Workforce.WorkerNames, wantNames) {
		t.Fatalf("WorkerNames = %v, want %v", a.Workforce.WorkerNames, wantNames)
	}
	if a.Workforce.HoursWorked != 8 {
		t.Fatalf("HoursWorked = %v, want 8", a.Workforce.HoursWorked)
	}
	if a.Workforce.ManHours != 32 {
		t.Fatalf("ManHours = %v, want 32", a.Workforce.ManHours)
	}
	if a.SiteConditions.Weather != "Rainy" {
		t.Fatalf("Weather = %q, want Rainy", a.SiteConditions.Weather)
	}
	wantActivities := []string{
		"Poured slab for block B",
		"Stripped formwork on level 2",
		"cleaned site",
	}
	if !reflect.DeepEqual(a.WorksSummary.Activities, wantActivities) {
		t.Fatalf("Activities = %v, want %v", a.WorksSummary.Activities, wantActivities)
	}
	if a.PhotoDocumentation.TotalImages != 2 {
		t.Fatalf("TotalImages = %d, want 2", a.PhotoDocumentation.TotalImages)
	}
	if got := a.PhotoDocumentation.Descriptions[1]; got != "Site progress photo 2" {
		t.Fatalf("caption = %q", got)
	}
	if len(a.SafetyIncidents) != 1 || a.SafetyIncidents[0].Text != "Toolbox talk held on site access" {
		t.Fatalf("SafetyIncidents = %+v", a.SafetyIncidents)
	}
	if a.ReportMetadata.ProjectName != "Riverside Apartments" || a.ReportMetadata.ReportDate != "2025-03-14" {
		t.Fatalf("metadata = %+v", a.ReportMetadata)
	}
}

func TestMockAnalysisCountOnlyCrew(t *testing.T) {
	a := MockAnalysis(Request{Labour: "3 workers", HoursWorked: "6"})
	if a.Workforce.TotalWorkers != 3 {
		t.Fatalf("TotalWorkers = %d, want 3", a.Workforce.TotalWorkers)
	}
	if len(a.Workforce.WorkerNames) != 0 {
		t.Fatalf("WorkerNames = %v, want empty", a.Workforce.WorkerNames)
	}
	if a.Workforce.ManHours != 18 {
		t.Fatalf("ManHours = %v, want 18", a.Workforce.ManHours)
	}
}

func TestMockAnalysisDefaults(t *testing.T) {
	a := MockAnalysis(Request{})
	if a.Workforce.TotalWorkers != 1 {
		t.Fatalf("TotalWorkers = %d, want 1", a.Workforce.TotalWorkers)
	}
	if a.Workforce.HoursWorked != 8 {
		t.Fatalf("HoursWorked = %v, want 8 by default", a.Workforce.HoursWorked)
	}
	if a.SiteConditions.Weather != "Clear" {
		t.Fatalf("Weather = %q, want Clear", a.SiteConditions.Weather)
	}
	if a.WorksSummary.Summary != "No works recorded for this date." {
		t.Fatalf("Summary = %q", a.WorksSummary.Summary)
	}
	if len(a.SafetyIncidents) != 0 {
		t.Fatalf("SafetyIncidents = %+v, want none", a.SafetyIncidents)
	}
	if len(a.NextDayPlan) != 1 {
		t.Fatalf("NextDayPlan = %v", a.NextDayPlan)
	}
}

func TestMockAnalysisDeterministic(t *testing.T) {
	req := Request{
		WorksPerformed: "Excavated footings.",
		Labour:         "2 × Carpenters - Ana, Beth",
		HoursWorked:    "7.5",
		Delays:         "Overcast, cloudy afternoon",
	}
	first := MockAnalysis(req)
	second := MockAnalysis(req)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input produced different analyses")
	}
	if first.SiteConditions.Weather != "Cloudy" {
		t.Fatalf("Weather = %q, want Cloudy", first.SiteConditions.Weather)
	}
	if first.Workforce.ManHours != 15 {
		t.Fatalf("ManHours = %v, want 15", first.Workforce.ManHours)
	}
}

func TestParseLabourRejectsNoisyNameList(t *testing.T) {
	// Digits after the separator mean the tail is not a name list; fall back
	// to the leading count.
	n, names := parseLabour("5 crew - shift 2")
	if n != 5 || len(names) != 0 {
		t.Fatalf("got %d %v, want 5 with no names", n, names)
	}
}

func TestParseMaterials(t *testing.T) {
	ms := parseMaterials("Concrete 12.5, Rebar")
	if len(ms) != 2 {
		t.Fatalf("materials = %+v", ms)
	}
	if ms[0].Material != "Concrete" || ms[0].Quantity != "12.5" {
		t.Fatalf("materials[0] = %+v", ms[0])
	}
	if ms[1].Material != "Rebar" || ms[1].Quantity != "" {
		t.Fatalf("materials[1] = %+v", ms[1])
	}
}
