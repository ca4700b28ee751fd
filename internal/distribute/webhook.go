package distribute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/store"
)

// WebhookSender posts the finished artifact to the outbound automation
// endpoint: a multipart body with the PDF and a JSON data part.
type WebhookSender struct {
	url        string
	files      FileReader
	httpClient *http.Client
}

func NewWebhookSender(url string, files FileReader) *WebhookSender {
	return &WebhookSender{
		url:        strings.TrimSpace(url),
		files:      files,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookPayload struct {
	ReportID           string                      `json:"report_id"`
	ClientID           string                      `json:"client_id"`
	ClientName         string                      `json:"client_name"`
	ProjectName        string                      `json:"project_name"`
	ReportDate         string                      `json:"report_date"`
	FormData           store.FormData              `json:"form_data"`
	Analysis           analysis.StructuredAnalysis `json:"analysis"`
	NotificationEmails []string                    `json:"notification_emails"`
	SummaryHTML        string                      `json:"summary_html"`
}

func (s *WebhookSender) Send(ctx context.Context, rep store.Report, client store.Client, a analysis.StructuredAnalysis, tpl Templates, pdf []byte) error {
	if s.url == "" {
		log.Printf("distribute: webhook unconfigured, skipping for report %s", rep.ID)
		return nil
	}

	clientLogoSrc := ""
	if strings.TrimSpace(client.LogoPath) != "" && s.files != nil {
		if data, err := s.files.Download(ctx, client.LogoPath); err == nil {
			clientLogoSrc = dataURL(data)
		}
	}

	payload := webhookPayload{
		ReportID:           rep.ID,
		ClientID:           client.ID,
		ClientName:         client.Name,
		ProjectName:        rep.ProjectName,
		ReportDate:         rep.ReportDate,
		FormData:           rep.FormData,
		Analysis:           a,
		NotificationEmails: client.NotificationEmails,
		SummaryHTML:        summaryHTML(rep, client, a, tpl, clientLogoSrc, ""),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	pdfPart, err := mw.CreateFormFile("pdf", attachmentName(rep))
	if err != nil {
		return fmt.Errorf("webhook multipart: %w", err)
	}
	if _, err := pdfPart.Write(pdf); err != nil {
		return fmt.Errorf("webhook multipart: %w", err)
	}
	if err := mw.WriteField("data", string(data)); err != nil {
		return fmt.Errorf("webhook multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("webhook multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
