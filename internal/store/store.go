package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrClientNotFound = errors.New("client not found")
)

// Store persists reports, their images and workers, clients, and tenant-wide
// settings in SQLite.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	client_id           TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	logo_path           TEXT NOT NULL DEFAULT '',
	brand_color         TEXT NOT NULL DEFAULT '',
	notification_emails TEXT NOT NULL DEFAULT '[]',
	prompt_template     TEXT NOT NULL DEFAULT '',
	active              INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS reports (
	report_id    TEXT PRIMARY KEY,
	client_id    TEXT NOT NULL,
	report_date  TEXT NOT NULL DEFAULT '',
	project_name TEXT NOT NULL DEFAULT '',
	form_data    TEXT NOT NULL DEFAULT '{}',
	ai_analysis  TEXT,
	pdf_path     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'processing',
	submitted_at TEXT NOT NULL,
	processed_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS report_images (
	image_id       TEXT PRIMARY KEY,
	report_id      TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	file_name      TEXT NOT NULL DEFAULT '',
	mime_type      TEXT NOT NULL DEFAULT '',
	ai_description TEXT NOT NULL DEFAULT '',
	image_order    INTEGER NOT NULL,
	UNIQUE (report_id, image_order)
);

CREATE TABLE IF NOT EXISTS report_workers (
	worker_id    TEXT PRIMARY KEY,
	report_id    TEXT NOT NULL,
	worker_name  TEXT NOT NULL,
	hours_worked REAL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- reports ---

type reportRow struct {
	ReportID    string         `db:"report_id"`
	ClientID    string         `db:"client_id"`
	ReportDate  string         `db:"report_date"`
	ProjectName string         `db:"project_name"`
	FormData    string         `db:"form_data"`
	AIAnalysis  sql.NullString `db:"ai_analysis"`
	PDFPath     string         `db:"pdf_path"`
	Status      string         `db:"status"`
	SubmittedAt string         `db:"submitted_at"`
	ProcessedAt string         `db:"processed_at"`
}

func (r reportRow) toReport() (Report, error) {
	var form FormData
	if r.FormData != "" {
		if err := json.Unmarshal([]byte(r.FormData), &form); err != nil {
			return Report{}, fmt.Errorf("decode form_data for %s: %w", r.ReportID, err)
		}
	}
	rep := Report{
		ID:          r.ReportID,
		ClientID:    r.ClientID,
		ReportDate:  r.ReportDate,
		ProjectName: r.ProjectName,
		FormData:    form,
		PDFPath:     r.PDFPath,
		Status:      ReportStatus(r.Status),
	}
	if r.AIAnalysis.Valid && r.AIAnalysis.String != "" {
		rep.AIAnalysis = json.RawMessage(r.AIAnalysis.String)
	}
	rep.SubmittedAt = parseTime(r.SubmittedAt)
	if r.ProcessedAt != "" {
		t := parseTime(r.ProcessedAt)
		rep.ProcessedAt = &t
	}
	return rep, nil
}

func (s *Store) CreateReport(r Report) error {
	form, err := json.Marshal(r.FormData)
	if err != nil {
		return fmt.Errorf("encode form_data: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO reports
		(report_id, client_id, report_date, project_name, form_data, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, r.ReportDate, r.ProjectName, string(form), string(r.Status), formatTime(r.SubmittedAt))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(id string) (Report, error) {
	var row reportRow
	err := s.db.Get(&row, `SELECT * FROM reports WHERE report_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("select report: %w", err)
	}
	return row.toReport()
}

// MarkProcessing resets a report for a pipeline run. The PDF path is cleared
// so the status/pdf invariant holds while the run is in flight.
func (s *Store) MarkProcessing(id string) error {
	res, err := s.db.Exec(`UPDATE reports SET status = ?, pdf_path = '', processed_at = '' WHERE report_id = ?`,
		string(StatusProcessing), id)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireRow(res, id)
}

// MarkFailed records a terminal failure and stamps processed_at.
func (s *Store) MarkFailed(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE reports SET status = ?, pdf_path = '', processed_at = ? WHERE report_id = ?`,
		string(StatusFailed), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res, id)
}

// MarkCompleted stores the rendered PDF path and flips the status in one
// write, so completed and pdf_path never disagree.
func (s *Store) MarkCompleted(id, pdfPath string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE reports SET status = ?, pdf_path = ?, processed_at = ? WHERE report_id = ?`,
		string(StatusCompleted), pdfPath, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) SetAnalysis(id string, analysis json.RawMessage) error {
	res, err := s.db.Exec(`UPDATE reports SET ai_analysis = ? WHERE report_id = ?`, string(analysis), id)
	if err != nil {
		return fmt.Errorf("set analysis: %w", err)
	}
	return requireRow(res, id)
}

// ReportIDsByStatus lists report ids in the given status, oldest first.
// Used to find reports stuck mid-pipeline.
func (s *Store) ReportIDsByStatus(status ReportStatus) ([]string, error) {
	var ids []string
	err := s.db.Select(&ids, `SELECT report_id FROM reports WHERE status = ? ORDER BY submitted_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("select reports by status: %w", err)
	}
	return ids, nil
}

func (s *Store) DeleteReport(id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM report_images WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM report_workers WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete workers: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM reports WHERE report_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- images ---

type imageRow struct {
	ImageID       string `db:"image_id"`
	ReportID      string `db:"report_id"`
	FilePath      string `db:"file_path"`
	FileName      string `db:"file_name"`
	MimeType      string `db:"mime_type"`
	AIDescription string `db:"ai_description"`
	ImageOrder    int    `db:"image_order"`
}

func (s *Store) AddImage(img Image) error {
	_, err := s.db.Exec(`INSERT INTO report_images
		(image_id, report_id, file_path, file_name, mime_type, ai_description, image_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.ReportID, img.FilePath, img.FileName, img.MimeType, img.AIDescription, img.ImageOrder)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *Store) ImagesForReport(reportID string) ([]Image, error) {
	var rows []imageRow
	err := s.db.Select(&rows, `SELECT * FROM report_images WHERE report_id = ? ORDER BY image_order`, reportID)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	images := make([]Image, 0, len(rows))
	for _, r := range rows {
		images = append(images, Image{
			ID:            r.ImageID,
			ReportID:      r.ReportID,
			FilePath:      r.FilePath,
			FileName:      r.FileName,
			MimeType:      r.MimeType,
			AIDescription: r.AIDescription,
			ImageOrder:    r.ImageOrder,
		})
	}
	return images, nil
}

// SetImageDescription fills the AI caption for the photo at the given order.
func (s *Store) SetImageDescription(reportID string, order int, description string) error {
	_, err := s.db.Exec(`UPDATE report_images SET ai_description = ? WHERE report_id = ? AND image_order = ?`,
		description, reportID, order)
	if err != nil {
		return fmt.Errorf("set image description: %w", err)
	}
	return nil
}

// --- workers ---

// ReplaceWorkers swaps the extracted labour list for a report. Regeneration
// replaces the list wholesale.
func (s *Store) ReplaceWorkers(reportID string, workers []Worker) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin replace workers: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM report_workers WHERE report_id = ?`, reportID); err != nil {
		return fmt.Errorf("clear workers: %w", err)
	}
	for _, w := range workers {
		if _, err := tx.Exec(`INSERT INTO report_workers (worker_id, report_id, worker_name, hours_worked) VALUES (?, ?, ?, ?)`,
			w.ID, reportID, w.WorkerName, w.HoursWorked); err != nil {
			return fmt.Errorf("insert worker: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) WorkersForReport(reportID string) ([]Worker, error) {
	type workerRow struct {
		WorkerID    string   `db:"worker_id"`
		ReportID    string   `db:"report_id"`
		WorkerName  string   `db:"worker_name"`
		HoursWorked *float64 `db:"hours_worked"`
	}
	var rows []workerRow
	err := s.db.Select(&rows, `SELECT * FROM report_workers WHERE report_id = ?`, reportID)
	if err != nil {
		return nil, fmt.Errorf("select workers: %w", err)
	}
	workers := make([]Worker, 0, len(rows))
	for _, r := range rows {
		workers = append(workers, Worker{ID: r.WorkerID, ReportID: r.ReportID, WorkerName: r.WorkerName, HoursWorked: r.HoursWorked})
	}
	return workers, nil
}

// --- clients ---

type clientRow struct {
	ClientID           string `db:"client_id"`
	Name               string `db:"name"`
	LogoPath           string `db:"logo_path"`
	BrandColor         string `db:"brand_color"`
	NotificationEmails string `db:"notification_emails"`
	PromptTemplate     string `db:"prompt_template"`
	Active             int    `db:"active"`
}

func (s *Store) GetClient(id string) (Client, error) {
	var row clientRow
	err := s.db.Get(&row, `SELECT * FROM clients WHERE client_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrClientNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("select client: %w", err)
	}
	var emails []string
	if row.NotificationEmails != "" {
		if err := json.Unmarshal([]byte(row.NotificationEmails), &emails); err != nil {
			return Client{}, fmt.Errorf("decode notification_emails for %s: %w", id, err)
		}
	}
	return Client{
		ID:                 row.ClientID,
		Name:               row.Name,
		LogoPath:           row.LogoPath,
		BrandColor:         row.BrandColor,
		NotificationEmails: emails,
		PromptTemplate:     row.PromptTemplate,
		Active:             row.Active != 0,
	}, nil
}

func (s *Store) UpsertClient(c Client) error {
	emails, err := json.Marshal(c.NotificationEmails)
	if err != nil {
		return fmt.Errorf("encode notification_emails: %w", err)
	}
	active := 0
	if c.Active {
		active = 1
	}
	_, err = s.db.Exec(`INSERT INTO clients
		(client_id, name, logo_path, brand_color, notification_emails, prompt_template, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			name = excluded.name,
			logo_path = excluded.logo_path,
			brand_color = excluded.brand_color,
			notification_emails = excluded.notification_emails,
			prompt_template = excluded.prompt_template,
			active = excluded.active`,
		c.ID, c.Name, c.LogoPath, c.BrandColor, string(emails), c.PromptTemplate, active)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// --- settings ---

// Setting returns the tenant-wide value for key, or "" when unset.
func (s *Store) Setting(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select setting: %w", err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// --- helpers ---

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
