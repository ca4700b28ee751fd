package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedReport(t *testing.T, s *Store, id string) Report {
	t.Helper()
	rep := Report{
		ID:          id,
		ClientID:    "cli-1",
		ReportDate:  "2025-03-14",
		ProjectName: "Depot Upgrade",
		FormData:    FormData{WorksPerformed: "Poured slab", Labour: "3 workers"},
		Status:      StatusProcessing,
		SubmittedAt: time.Date(2025, 3, 14, 16, 30, 0, 0, time.UTC),
	}
	if err := s.CreateReport(rep); err != nil {
		t.Fatalf("create report: %v", err)
	}
	return rep
}

func TestReportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := seedReport(t, s, "rep-1")

	got, err := s.GetReport("rep-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.ProjectName != want.ProjectName || got.FormData.WorksPerformed != "Poured slab" {
		t.Fatalf("got %+v", got)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("status = %q", got.Status)
	}
	if !got.SubmittedAt.Equal(want.SubmittedAt) {
		t.Fatalf("submitted_at = %v, want %v", got.SubmittedAt, want.SubmittedAt)
	}
	if got.ProcessedAt != nil {
		t.Fatalf("processed_at = %v, want nil before processing", got.ProcessedAt)
	}
	if got.AIAnalysis != nil {
		t.Fatalf("ai_analysis = %s, want nil", got.AIAnalysis)
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetReport("missing"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("err = %v, want ErrReportNotFound", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")
	at := time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC)

	if err := s.MarkCompleted("rep-1", "reports/rep-1/daily-report.pdf", at); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	rep, err := s.GetReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != StatusCompleted || rep.PDFPath == "" {
		t.Fatalf("completed report = %+v", rep)
	}
	if rep.ProcessedAt == nil || !rep.ProcessedAt.Equal(at) {
		t.Fatalf("processed_at = %v", rep.ProcessedAt)
	}

	// Regeneration resets the artifact along with the status.
	if err := s.MarkProcessing("rep-1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	rep, err = s.GetReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != StatusProcessing || rep.PDFPath != "" || rep.ProcessedAt != nil {
		t.Fatalf("reprocessing report = %+v", rep)
	}

	if err := s.MarkFailed("rep-1", at); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	rep, err = s.GetReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != StatusFailed || rep.PDFPath != "" {
		t.Fatalf("failed report = %+v", rep)
	}
	if rep.ProcessedAt == nil {
		t.Fatal("failed report missing processed_at")
	}
}

func TestReportIDsByStatus(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")
	seedReport(t, s, "rep-2")
	if err := s.MarkCompleted("rep-2", "reports/rep-2/daily-report.pdf", time.Now()); err != nil {
		t.Fatal(err)
	}

	processing, err := s.ReportIDsByStatus(StatusProcessing)
	if err != nil {
		t.Fatal(err)
	}
	if len(processing) != 1 || processing[0] != "rep-1" {
		t.Fatalf("processing = %v", processing)
	}
	failed, err := s.ReportIDsByStatus(StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Fatalf("failed = %v", failed)
	}
}

func TestStatusUpdatesUnknownReport(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkCompleted("missing", "x.pdf", time.Now()); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("err = %v, want ErrReportNotFound", err)
	}
	if err := s.MarkProcessing("missing"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("err = %v, want ErrReportNotFound", err)
	}
}

func TestSetAnalysis(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")

	raw := json.RawMessage(`{"workforce":{"total_workers":3}}`)
	if err := s.SetAnalysis("rep-1", raw); err != nil {
		t.Fatalf("set analysis: %v", err)
	}
	rep, err := s.GetReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(rep.AIAnalysis) != string(raw) {
		t.Fatalf("ai_analysis = %s", rep.AIAnalysis)
	}
}

func TestImagesOrderAndCaptions(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")

	// Insert out of order; reads come back by image_order.
	for _, img := range []Image{
		{ID: "img-2", ReportID: "rep-1", FilePath: "reports/rep-1/photos/001-b.jpg", ImageOrder: 1},
		{ID: "img-1", ReportID: "rep-1", FilePath: "reports/rep-1/photos/000-a.jpg", ImageOrder: 0},
	} {
		if err := s.AddImage(img); err != nil {
			t.Fatalf("add image: %v", err)
		}
	}

	if err := s.SetImageDescription("rep-1", 1, "Fresh surface after compaction"); err != nil {
		t.Fatalf("set description: %v", err)
	}

	images, err := s.ImagesForReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Fatalf("images = %+v", images)
	}
	if images[0].ImageOrder != 0 || images[1].ImageOrder != 1 {
		t.Fatalf("images out of order: %+v", images)
	}
	if images[1].AIDescription != "Fresh surface after compaction" {
		t.Fatalf("caption = %q", images[1].AIDescription)
	}
}

func TestAddImageDuplicateOrderRejected(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")
	if err := s.AddImage(Image{ID: "img-1", ReportID: "rep-1", FilePath: "a", ImageOrder: 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddImage(Image{ID: "img-2", ReportID: "rep-1", FilePath: "b", ImageOrder: 0}); err == nil {
		t.Fatal("duplicate image_order should be rejected")
	}
}

func TestReplaceWorkers(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")

	hours := 8.0
	first := []Worker{
		{ID: "w-1", ReportID: "rep-1", WorkerName: "Jack", HoursWorked: &hours},
		{ID: "w-2", ReportID: "rep-1", WorkerName: "Josh", HoursWorked: &hours},
	}
	if err := s.ReplaceWorkers("rep-1", first); err != nil {
		t.Fatalf("replace workers: %v", err)
	}

	second := []Worker{{ID: "w-3", ReportID: "rep-1", WorkerName: "Daniel"}}
	if err := s.ReplaceWorkers("rep-1", second); err != nil {
		t.Fatalf("replace workers again: %v", err)
	}

	workers, err := s.WorkersForReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 1 || workers[0].WorkerName != "Daniel" {
		t.Fatalf("workers = %+v", workers)
	}
	if workers[0].HoursWorked != nil {
		t.Fatalf("hours = %v, want nil", *workers[0].HoursWorked)
	}
}

func TestDeleteReportCascades(t *testing.T) {
	s := openTestStore(t)
	seedReport(t, s, "rep-1")
	if err := s.AddImage(Image{ID: "img-1", ReportID: "rep-1", FilePath: "a", ImageOrder: 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceWorkers("rep-1", []Worker{{ID: "w-1", ReportID: "rep-1", WorkerName: "Jack"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteReport("rep-1"); err != nil {
		t.Fatalf("delete report: %v", err)
	}
	if _, err := s.GetReport("rep-1"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("report survived delete: %v", err)
	}
	images, err := s.ImagesForReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 0 {
		t.Fatalf("images survived delete: %+v", images)
	}
	workers, err := s.WorkersForReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 0 {
		t.Fatalf("workers survived delete: %+v", workers)
	}
}

func TestClientRoundTrip(t *testing.T) {
	s := openTestStore(t)
	c := Client{
		ID:                 "cli-1",
		Name:               "Hartwell Civil",
		BrandColor:         "#aa3311",
		NotificationEmails: []string{"pm@example.com", "site@example.com"},
		PromptTemplate:     "custom prompt",
		Active:             true,
	}
	if err := s.UpsertClient(c); err != nil {
		t.Fatalf("upsert client: %v", err)
	}

	got, err := s.GetClient("cli-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != c.Name || len(got.NotificationEmails) != 2 || !got.Active {
		t.Fatalf("client = %+v", got)
	}

	// Upsert updates in place.
	c.Active = false
	c.NotificationEmails = nil
	if err := s.UpsertClient(c); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetClient("cli-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || len(got.NotificationEmails) != 0 {
		t.Fatalf("client after update = %+v", got)
	}
}

func TestGetClientNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetClient("missing"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("err = %v, want ErrClientNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	v, err := s.Setting("email_subject_template")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("unset setting = %q, want empty", v)
	}

	if err := s.SetSetting("email_subject_template", "Report for {project_name}"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("email_subject_template", "Updated {project_name}"); err != nil {
		t.Fatal(err)
	}
	v, err = s.Setting("email_subject_template")
	if err != nil {
		t.Fatal(err)
	}
	if v != "Updated {project_name}" {
		t.Fatalf("setting = %q", v)
	}
}
