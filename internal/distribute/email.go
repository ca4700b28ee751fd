package distribute

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/store"
)

// SMTPConfig carries the transport settings for outbound mail. An empty Host
// means mail is unconfigured and sends become logged no-ops.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) configured() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

// EmailSender delivers the finished PDF to the client's notification list.
type EmailSender struct {
	cfg              SMTPConfig
	files            FileReader
	platformLogoPath string
	send             func(ctx context.Context, msg *mail.Msg) error
}

// FileReader resolves a storage reference to raw bytes (client logos).
type FileReader interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

func NewEmailSender(cfg SMTPConfig, files FileReader, platformLogoPath string) *EmailSender {
	s := &EmailSender{cfg: cfg, files: files, platformLogoPath: platformLogoPath}
	s.send = s.smtpSend
	return s
}

func (s *EmailSender) Send(ctx context.Context, rep store.Report, client store.Client, a analysis.StructuredAnalysis, tpl Templates, pdf []byte) error {
	if !s.cfg.configured() {
		log.Printf("distribute: mail transport unconfigured, skipping email for report %s", rep.ID)
		return nil
	}
	if len(client.NotificationEmails) == 0 {
		log.Printf("distribute: client %s has no notification emails, skipping", client.ID)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(client.NotificationEmails...); err != nil {
		return fmt.Errorf("email recipients: %w", err)
	}
	msg.Subject(substitute(tpl.withDefaults().Subject, rep, client))

	clientLogoSrc := s.embedLogo(ctx, msg, client.LogoPath, "client-logo")
	platformLogoSrc := s.embedPlatformLogo(msg)
	msg.SetBodyString(mail.TypeTextHTML, summaryHTML(rep, client, a, tpl, clientLogoSrc, platformLogoSrc))

	if err := msg.AttachReader(attachmentName(rep), bytes.NewReader(pdf)); err != nil {
		return fmt.Errorf("email attachment: %w", err)
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (s *EmailSender) smtpSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if strings.TrimSpace(s.cfg.Username) != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// embedLogo downloads the client logo and embeds it under a content id,
// returning the cid reference for the body. A missing logo is skipped.
func (s *EmailSender) embedLogo(ctx context.Context, msg *mail.Msg, ref, cid string) string {
	if strings.TrimSpace(ref) == "" || s.files == nil {
		return ""
	}
	data, err := s.files.Download(ctx, ref)
	if err != nil {
		log.Printf("distribute: client logo %s unreadable, sending without it: %v", ref, err)
		return ""
	}
	if err := msg.EmbedReader(cid, bytes.NewReader(data)); err != nil {
		log.Printf("distribute: embed logo %s: %v", ref, err)
		return ""
	}
	return "cid:" + cid
}

func (s *EmailSender) embedPlatformLogo(msg *mail.Msg) string {
	if strings.TrimSpace(s.platformLogoPath) == "" {
		return ""
	}
	if _, err := os.Stat(s.platformLogoPath); err != nil {
		return ""
	}
	msg.EmbedFile(s.platformLogoPath)
	return "cid:" + baseName(s.platformLogoPath)
}

// dataURL renders logo bytes for channels that cannot resolve cid references.
func dataURL(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func attachmentName(rep store.Report) string {
	date := strings.ReplaceAll(rep.ReportDate, "/", "-")
	if date == "" {
		date = "report"
	}
	return "daily-report-" + date + ".pdf"
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
