package distribute

import (
	"context"
	"log"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/store"
)

// Distributor fans the finished artifact out to humans (email) and automation
// (webhook). Both channels are best-effort and independent: a failure is
// logged, never returned, and never blocks the other channel.
type Distributor struct {
	email   *EmailSender
	webhook *WebhookSender
}

func NewDistributor(email *EmailSender, webhook *WebhookSender) *Distributor {
	return &Distributor{email: email, webhook: webhook}
}

func (d *Distributor) Distribute(ctx context.Context, rep store.Report, client store.Client, a analysis.StructuredAnalysis, tpl Templates, pdf []byte) {
	if d.email != nil {
		if err := d.email.Send(ctx, rep, client, a, tpl, pdf); err != nil {
			log.Printf("distribute: email for report %s failed: %v", rep.ID, err)
		}
	}
	if d.webhook != nil {
		if err := d.webhook.Send(ctx, rep, client, a, tpl, pdf); err != nil {
			log.Printf("distribute: webhook for report %s failed: %v", rep.ID, err)
		}
	}
}
