package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/distribute"
	"github.com/mhartwell/siteworks/internal/pdfrender"
	"github.com/mhartwell/siteworks/internal/store"
)

// ErrEmptySubmission is returned before any report is created when a
// submission carries neither photos nor works-performed text.
var ErrEmptySubmission = errors.New("submission requires at least one photo or works-performed text")

// Settings keys for tenant-wide overrides.
const (
	SettingPromptTemplate = "analysis_prompt_template"
	SettingEmailSubject   = "email_subject_template"
	SettingEmailHeader    = "email_header_template"
	SettingEmailFooter    = "email_footer_template"
)

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.StructuredAnalysis, error)
}

type Renderer interface {
	Render(ctx context.Context, doc pdfrender.Document) ([]byte, error)
}

// BlobStore is the subset of the blob store the orchestrator drives.
type BlobStore interface {
	Upload(ctx context.Context, ref string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, ref string) ([]byte, error)
}

type Sender interface {
	Distribute(ctx context.Context, rep store.Report, client store.Client, a analysis.StructuredAnalysis, tpl distribute.Templates, pdf []byte)
}

// Photo is one uploaded image as received from the submission boundary.
type Photo struct {
	FileName string
	MimeType string
	Data     []byte
}

// Submission is the validated multipart payload from the HTTP layer.
type Submission struct {
	ClientID    string
	ReportDate  string
	ProjectName string
	FormData    store.FormData
	Photos      []Photo
}

// Orchestrator owns the report state machine: processing → completed|failed,
// with failed recoverable only through an explicit regenerate.
type Orchestrator struct {
	store       *store.Store
	blobs       BlobStore
	analyzer    Analyzer
	renderer    Renderer
	distributor Sender
	tracer      trace.Tracer

	queue chan string
	locks *reportLocks
	wg    sync.WaitGroup
	now   func() time.Time
}

func New(st *store.Store, blobs BlobStore, analyzer Analyzer, renderer Renderer, distributor Sender) *Orchestrator {
	return &Orchestrator{
		store:       st,
		blobs:       blobs,
		analyzer:    analyzer,
		renderer:    renderer,
		distributor: distributor,
		tracer:      otel.Tracer("siteworks/pipeline"),
		queue:       make(chan string, 64),
		locks:       newReportLocks(),
		now:         time.Now,
	}
}

// Start launches the background workers that drain the job queue. The
// submission call returns before any of this work happens; callers observe
// progress by polling report status.
func (o *Orchestrator) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case reportID := <-o.queue:
					o.runOne(reportID)
				}
			}
		}()
	}
}

// Wait blocks until the workers have exited. Call after cancelling the Start
// context.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Submit validates the payload, persists the report and its photos, and
// enqueues the pipeline run. It returns the new report id immediately.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (string, error) {
	if len(sub.Photos) == 0 && strings.TrimSpace(sub.FormData.WorksPerformed) == "" {
		return "", ErrEmptySubmission
	}
	client, err := o.store.GetClient(sub.ClientID)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if !client.Active {
		return "", fmt.Errorf("submit: client %s is inactive", client.ID)
	}

	reportID := uuid.NewString()
	rep := store.Report{
		ID:          reportID,
		ClientID:    sub.ClientID,
		ReportDate:  sub.ReportDate,
		ProjectName: sub.ProjectName,
		FormData:    sub.FormData,
		Status:      store.StatusProcessing,
		SubmittedAt: o.now(),
	}
	if err := o.store.CreateReport(rep); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	for i, photo := range sub.Photos {
		key := fmt.Sprintf("reports/%s/photos/%03d-%s", reportID, i, sanitizeFilename(photo.FileName))
		storedRef, err := o.blobs.Upload(ctx, key, photo.Data, photo.MimeType)
		if err != nil {
			o.discardReport(reportID)
			return "", fmt.Errorf("submit: store photo %d: %w", i, err)
		}
		img := store.Image{
			ID:         uuid.NewString(),
			ReportID:   reportID,
			FilePath:   storedRef,
			FileName:   photo.FileName,
			MimeType:   photo.MimeType,
			ImageOrder: i,
		}
		if err := o.store.AddImage(img); err != nil {
			o.discardReport(reportID)
			return "", fmt.Errorf("submit: record photo %d: %w", i, err)
		}
	}

	o.enqueue(reportID)
	return reportID, nil
}

// Regenerate resets an existing report to processing and re-runs the
// pipeline, overwriting its analysis and PDF. Unknown ids are refused.
func (o *Orchestrator) Regenerate(ctx context.Context, reportID string) error {
	if _, err := o.store.GetReport(reportID); err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	if err := o.store.MarkProcessing(reportID); err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	o.enqueue(reportID)
	return nil
}

// discardReport removes a report whose photos could not be fully persisted.
// The submitter gets a synchronous error; nothing is left in processing with
// no run queued to ever finish it.
func (o *Orchestrator) discardReport(reportID string) {
	if err := o.store.DeleteReport(reportID); err != nil {
		log.Printf("pipeline: discard partial report %s: %v", reportID, err)
	}
}

func (o *Orchestrator) enqueue(reportID string) {
	o.queue <- reportID
}

// runOne drives one queued report through the pipeline under its per-report
// lock. Pipeline runs are detached from the submitting request, so the run
// context is fresh.
func (o *Orchestrator) runOne(reportID string) {
	release := o.locks.Acquire(reportID)
	defer release()

	ctx, span := o.tracer.Start(context.Background(), "pipeline.run",
		trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	if err := o.runPipeline(ctx, reportID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("pipeline: report %s failed: %v", reportID, err)
		if err := o.store.MarkFailed(reportID, o.now()); err != nil {
			log.Printf("pipeline: record failure for %s: %v", reportID, err)
		}
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, reportID string) error {
	rep, err := o.store.GetReport(reportID)
	if err != nil {
		return err
	}
	client, err := o.store.GetClient(rep.ClientID)
	if err != nil {
		return err
	}
	images, err := o.store.ImagesForReport(reportID)
	if err != nil {
		return err
	}

	// Analysis step. Any error here is terminal for this attempt; no PDF is
	// rendered on a failed analysis.
	result, err := o.analyzeStep(ctx, rep, client, images)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	analysisJSON, err := marshalAnalysis(result)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := o.store.SetAnalysis(reportID, analysisJSON); err != nil {
		return err
	}
	o.persistDerived(reportID, result, images)

	// Render step. The analysis result stays persisted on a render failure
	// so an operator can inspect what the renderer was given.
	pdfKey, err := o.renderStep(ctx, rep, client, result, images)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if err := o.store.MarkCompleted(reportID, pdfKey, o.now()); err != nil {
		return err
	}

	// Distribution never affects the stored status.
	o.distributeStep(ctx, reportID, client, result, pdfKey)
	return nil
}

func (o *Orchestrator) analyzeStep(ctx context.Context, rep store.Report, client store.Client, images []store.Image) (analysis.StructuredAnalysis, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.analyze")
	defer span.End()

	tenantDefault, err := o.store.Setting(SettingPromptTemplate)
	if err != nil {
		return analysis.StructuredAnalysis{}, err
	}

	req := analysis.Request{
		ReportDate:     rep.ReportDate,
		ProjectName:    rep.ProjectName,
		WorksPerformed: rep.FormData.WorksPerformed,
		Labour:         rep.FormData.Labour,
		Plant:          rep.FormData.Plant,
		HoursWorked:    rep.FormData.HoursWorked,
		Materials:      rep.FormData.Materials,
		Delays:         rep.FormData.Delays,
		Safety:         rep.FormData.Safety,
		PromptTemplate: analysis.ResolveTemplate(client.PromptTemplate, tenantDefault),
	}
	for _, img := range images {
		data, err := o.blobs.Download(ctx, img.FilePath)
		if err != nil {
			// The renderer tolerates a missing photo; the analysis does too.
			log.Printf("pipeline: photo %s unreadable for analysis: %v", img.FilePath, err)
			data = nil
		}
		req.Photos = append(req.Photos, analysis.ImageInput{MimeType: img.MimeType, Data: data})
	}
	return o.analyzer.Analyze(ctx, req)
}

// persistDerived writes the photo captions and extracted workers. These are
// enrichments; a failure is logged, not fatal.
func (o *Orchestrator) persistDerived(reportID string, result analysis.StructuredAnalysis, images []store.Image) {
	for _, img := range images {
		if img.ImageOrder < len(result.PhotoDocumentation.Descriptions) {
			caption := result.PhotoDocumentation.Descriptions[img.ImageOrder]
			if err := o.store.SetImageDescription(reportID, img.ImageOrder, caption); err != nil {
				log.Printf("pipeline: caption for %s/%d: %v", reportID, img.ImageOrder, err)
			}
		}
	}
	var workers []store.Worker
	for _, name := range result.Workforce.WorkerNames {
		hours := result.Workforce.HoursWorked
		workers = append(workers, store.Worker{
			ID:          uuid.NewString(),
			ReportID:    reportID,
			WorkerName:  name,
			HoursWorked: &hours,
		})
	}
	if err := o.store.ReplaceWorkers(reportID, workers); err != nil {
		log.Printf("pipeline: workers for %s: %v", reportID, err)
	}
}

func (o *Orchestrator) renderStep(ctx context.Context, rep store.Report, client store.Client, result analysis.StructuredAnalysis, images []store.Image) (string, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.render")
	defer span.End()

	pdf, err := o.renderer.Render(ctx, pdfrender.Document{
		Report:   rep,
		Client:   client,
		Analysis: result,
		Images:   images,
	})
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("reports/%s/daily-report.pdf", rep.ID)
	storedRef, err := o.blobs.Upload(ctx, key, pdf, "application/pdf")
	if err != nil {
		return "", fmt.Errorf("store pdf: %w", err)
	}
	return storedRef, nil
}

func (o *Orchestrator) distributeStep(ctx context.Context, reportID string, client store.Client, result analysis.StructuredAnalysis, pdfKey string) {
	ctx, span := o.tracer.Start(ctx, "pipeline.distribute")
	defer span.End()

	rep, err := o.store.GetReport(reportID)
	if err != nil {
		log.Printf("pipeline: reload report %s for distribution: %v", reportID, err)
		return
	}
	pdf, err := o.blobs.Download(ctx, pdfKey)
	if err != nil {
		log.Printf("pipeline: reload pdf for %s: %v", reportID, err)
		return
	}
	o.distributor.Distribute(ctx, rep, client, result, o.emailTemplates(), pdf)
}

func (o *Orchestrator) emailTemplates() distribute.Templates {
	subject, _ := o.store.Setting(SettingEmailSubject)
	header, _ := o.store.Setting(SettingEmailHeader)
	footer, _ := o.store.Setting(SettingEmailFooter)
	return distribute.Templates{Subject: subject, Header: header, Footer: footer}
}

func marshalAnalysis(a analysis.StructuredAnalysis) (json.RawMessage, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return data, nil
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "photo"
	}
	v = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, v)
	return v
}
