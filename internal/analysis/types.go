package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredAnalysis is the fixed-schema document produced from form data and
// photos. It is the wire contract with the PDF renderer and the webhook
// payload, so field names are stable.
type StructuredAnalysis struct {
	ReportMetadata     ReportMetadata     `json:"report_metadata"`
	SiteConditions     SiteConditions     `json:"site_conditions"`
	Workforce          Workforce          `json:"workforce"`
	WorksSummary       WorksSummary       `json:"works_summary"`
	Materials          []Material         `json:"materials"`
	Equipment          []string           `json:"equipment"`
	ComplianceNote     string             `json:"compliance_note"`
	SafetyIncidents    []SafetyIncident   `json:"safety_incidents"`
	DelaysImpact       string             `json:"delays_impact"`
	PhotoDocumentation PhotoDocumentation `json:"photo_documentation"`
	NextDayPlan        []string           `json:"next_day_plan"`
}

type ReportMetadata struct {
	ProjectName string `json:"project_name"`
	ReportDate  string `json:"report_date"`
}

type SiteConditions struct {
	Weather string `json:"weather"`
	Notes   string `json:"notes,omitempty"`
}

type Workforce struct {
	TotalWorkers int      `json:"total_workers"`
	HoursWorked  float64  `json:"hours_worked"`
	ManHours     float64  `json:"man_hours"`
	WorkerNames  []string `json:"worker_names"`
}

type WorksSummary struct {
	Summary    string   `json:"summary"`
	Activities []string `json:"activities"`
}

type Material struct {
	Material string `json:"material"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

type PhotoDocumentation struct {
	TotalImages  int      `json:"total_images"`
	Descriptions []string `json:"descriptions"`
}

// SafetyIncident is either a plain free-text note or a structured record.
// On the wire it appears as a JSON string or object; exactly one variant is
// set.
type SafetyIncident struct {
	Text       string
	Structured *IncidentDetail
}

type IncidentDetail struct {
	Person      string `json:"person"`
	Description string `json:"description"`
	ActionTaken string `json:"action_taken"`
}

func (si *SafetyIncident) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*si = SafetyIncident{Text: text}
		return nil
	}
	var detail IncidentDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return fmt.Errorf("safety incident must be a string or object: %w", err)
	}
	*si = SafetyIncident{Structured: &detail}
	return nil
}

func (si SafetyIncident) MarshalJSON() ([]byte, error) {
	if si.Structured != nil {
		return json.Marshal(si.Structured)
	}
	return json.Marshal(si.Text)
}

func (si SafetyIncident) IsStructured() bool { return si.Structured != nil }

// ImageInput carries one photo's raw bytes into the analysis call.
type ImageInput struct {
	MimeType string
	Data     []byte
}

// Request is the input to Analyze: the submitted form, report metadata, the
// photos, and the already-resolved prompt template.
type Request struct {
	ReportDate     string
	ProjectName    string
	WorksPerformed string
	Labour         string
	Plant          string
	HoursWorked    string
	Materials      string
	Delays         string
	Safety         string
	Photos         []ImageInput
	PromptTemplate string
}
