package store

import (
	"encoding/json"
	"strings"
	"time"
)

type ReportStatus string

const (
	StatusProcessing ReportStatus = "processing"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
)

// FormData holds the free-text fields a field worker submits with a daily
// report. Immutable after creation.
type FormData struct {
	WorksPerformed string `json:"works_performed"`
	Labour         string `json:"labour"`
	Plant          string `json:"plant"`
	HoursWorked    string `json:"hours_worked"`
	Materials      string `json:"materials"`
	Delays         string `json:"delays"`
	Safety         string `json:"safety"`
}

func (f FormData) Empty() bool {
	return strings.TrimSpace(f.WorksPerformed) == "" &&
		strings.TrimSpace(f.Labour) == "" &&
		strings.TrimSpace(f.Plant) == "" &&
		strings.TrimSpace(f.Materials) == "" &&
		strings.TrimSpace(f.Delays) == "" &&
		strings.TrimSpace(f.Safety) == ""
}

// Report is one daily submission and its derived artifacts.
type Report struct {
	ID          string
	ClientID    string
	ReportDate  string
	ProjectName string
	FormData    FormData
	AIAnalysis  json.RawMessage // nil until the analysis engine has run
	PDFPath     string          // canonical storage key; "" iff status != completed
	Status      ReportStatus
	SubmittedAt time.Time
	ProcessedAt *time.Time
}

// Image is one photo attached to a report. ImageOrder is unique per report
// and defines display and caption order.
type Image struct {
	ID            string
	ReportID      string
	FilePath      string
	FileName      string
	MimeType      string
	AIDescription string
	ImageOrder    int
}

// Worker is an individual labourer extracted or entered for a report.
type Worker struct {
	ID          string
	ReportID    string
	WorkerName  string
	HoursWorked *float64
}

// Client is the owning tenant of a report. The pipeline reads it and never
// mutates it.
type Client struct {
	ID                 string
	Name               string
	LogoPath           string
	BrandColor         string
	NotificationEmails []string
	PromptTemplate     string // per-client analysis prompt override, may be empty
	Active             bool
}
