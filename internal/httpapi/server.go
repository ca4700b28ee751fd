package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/mhartwell/siteworks/internal/blob"
	"github.com/mhartwell/siteworks/internal/pipeline"
	"github.com/mhartwell/siteworks/internal/store"
)

const (
	maxSubmissionBytes = 64 << 20
	maxPhotoBytes      = 16 << 20
)

// Server exposes the pipeline over HTTP: submission, regeneration, status
// polling, and artifact download. Authentication and the portal UI live in
// front of this service.
type Server struct {
	orch  *pipeline.Orchestrator
	store *store.Store
	blobs *blob.Store
}

func NewServer(orch *pipeline.Orchestrator, st *store.Store, blobs *blob.Store) http.Handler {
	s := &Server{orch: orch, store: st, blobs: blobs}
	mux := http.NewServeMux()
	mux.HandleFunc("/reports", s.handleSubmit)
	mux.HandleFunc("/reports/", s.handleReport)
	mux.HandleFunc("/files/", s.handleFile)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

type submissionData struct {
	ClientID       string `json:"client_id"`
	ReportDate     string `json:"report_date"`
	ProjectName    string `json:"project_name"`
	WorksPerformed string `json:"works_performed"`
	Labour         string `json:"labour"`
	Plant          string `json:"plant"`
	HoursWorked    string `json:"hours_worked"`
	Materials      string `json:"materials"`
	Delays         string `json:"delays"`
	Safety         string `json:"safety"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxSubmissionBytes); err != nil {
		writeError(w, 400, "invalid multipart form")
		return
	}

	var data submissionData
	if err := json.Unmarshal([]byte(r.FormValue("data")), &data); err != nil {
		writeError(w, 400, "data part must be valid JSON")
		return
	}
	if strings.TrimSpace(data.ClientID) == "" {
		writeError(w, 400, "client_id is required")
		return
	}

	var photos []pipeline.Photo
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["photos"] {
			photo, err := readPhoto(header)
			if err != nil {
				writeError(w, 400, "unreadable photo upload: "+header.Filename)
				return
			}
			photos = append(photos, photo)
		}
	}

	reportID, err := s.orch.Submit(r.Context(), pipeline.Submission{
		ClientID:    data.ClientID,
		ReportDate:  data.ReportDate,
		ProjectName: data.ProjectName,
		FormData: store.FormData{
			WorksPerformed: data.WorksPerformed,
			Labour:         data.Labour,
			Plant:          data.Plant,
			HoursWorked:    data.HoursWorked,
			Materials:      data.Materials,
			Delays:         data.Delays,
			Safety:         data.Safety,
		},
		Photos: photos,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEmptySubmission):
			writeError(w, 400, err.Error())
		case errors.Is(err, store.ErrClientNotFound):
			writeError(w, 404, "client not found")
		default:
			log.Printf("httpapi: submit: %v", err)
			writeError(w, 500, "failed to accept submission")
		}
		return
	}
	writeJSON(w, 202, map[string]any{"report_id": reportID, "status": store.StatusProcessing})
}

func readPhoto(header *multipart.FileHeader) (pipeline.Photo, error) {
	f, err := header.Open()
	if err != nil {
		return pipeline.Photo{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		return pipeline.Photo{}, err
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return pipeline.Photo{FileName: header.Filename, MimeType: mimeType, Data: data}, nil
}

// handleReport serves /reports/{id}, /reports/{id}/pdf and
// /reports/{id}/regenerate.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/reports/"), "/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		writeError(w, 400, "report id is required")
		return
	}
	reportID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleStatus(w, reportID)
	case action == "pdf" && r.Method == http.MethodGet:
		s.handlePDF(w, r, reportID)
	case action == "regenerate" && r.Method == http.MethodPost:
		s.handleRegenerate(w, r, reportID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, reportID string) {
	rep, err := s.store.GetReport(reportID)
	if errors.Is(err, store.ErrReportNotFound) {
		writeError(w, 404, "report not found")
		return
	}
	if err != nil {
		log.Printf("httpapi: status %s: %v", reportID, err)
		writeError(w, 500, "failed to load report")
		return
	}
	payload := map[string]any{
		"report_id":    rep.ID,
		"client_id":    rep.ClientID,
		"report_date":  rep.ReportDate,
		"project_name": rep.ProjectName,
		"status":       rep.Status,
		"submitted_at": rep.SubmittedAt,
	}
	if rep.ProcessedAt != nil {
		payload["processed_at"] = rep.ProcessedAt
	}
	if rep.AIAnalysis != nil {
		payload["analysis"] = json.RawMessage(rep.AIAnalysis)
	}
	if rep.PDFPath != "" {
		if url, err := s.blobs.PublicURL("", rep.PDFPath); err == nil {
			payload["pdf_url"] = url
		}
	}
	writeJSON(w, 200, payload)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request, reportID string) {
	rep, err := s.store.GetReport(reportID)
	if errors.Is(err, store.ErrReportNotFound) {
		writeError(w, 404, "report not found")
		return
	}
	if err != nil {
		writeError(w, 500, "failed to load report")
		return
	}
	if rep.Status != store.StatusCompleted || rep.PDFPath == "" {
		writeError(w, 404, "report pdf not ready")
		return
	}
	pdf, err := s.blobs.Download(r.Context(), rep.PDFPath)
	if err != nil {
		log.Printf("httpapi: download pdf for %s: %v", reportID, err)
		writeError(w, 502, "failed to fetch pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="daily-report.pdf"`)
	w.WriteHeader(200)
	_, _ = w.Write(pdf)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request, reportID string) {
	err := s.orch.Regenerate(r.Context(), reportID)
	if errors.Is(err, store.ErrReportNotFound) {
		writeError(w, 404, "report not found")
		return
	}
	if err != nil {
		log.Printf("httpapi: regenerate %s: %v", reportID, err)
		writeError(w, 500, "failed to regenerate report")
		return
	}
	writeJSON(w, 202, map[string]any{"report_id": reportID, "status": store.StatusProcessing})
}

// handleFile serves stored files for deployments without a CDN backend.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/files/")
	data, err := s.blobs.Download(r.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrUnsafePath) {
			writeError(w, 400, "invalid file reference")
			return
		}
		writeError(w, 404, "file not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(200)
	_, _ = w.Write(data)
}
