package distribute

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	mail "github.com/wneessen/go-mail"
)

func TestDistributeEmailFailureStillPostsWebhook(t *testing.T) {
	var webhookCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhookCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	email := NewEmailSender(SMTPConfig{Host: "smtp.example.com", From: "reports@example.com"}, nil, "")
	email.send = func(context.Context, *mail.Msg) error {
		return errors.New("connection refused")
	}

	d := NewDistributor(email, NewWebhookSender(srv.URL, nil))
	rep, client, a := sampleReport()
	d.Distribute(context.Background(), rep, client, a, Templates{}, []byte("%PDF-1.7"))

	if webhookCalls.Load() != 1 {
		t.Fatalf("webhook calls = %d, want 1 despite email failure", webhookCalls.Load())
	}
}

func TestDistributeWebhookFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var emailSent bool
	email := NewEmailSender(SMTPConfig{Host: "smtp.example.com", From: "reports@example.com"}, nil, "")
	email.send = func(context.Context, *mail.Msg) error {
		emailSent = true
		return nil
	}

	d := NewDistributor(email, NewWebhookSender(srv.URL, nil))
	rep, client, a := sampleReport()
	// Must not panic or surface the webhook error.
	d.Distribute(context.Background(), rep, client, a, Templates{}, []byte("%PDF-1.7"))

	if !emailSent {
		t.Fatal("email was not attempted")
	}
}
