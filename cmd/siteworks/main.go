package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/blob"
	"github.com/mhartwell/siteworks/internal/config"
	"github.com/mhartwell/siteworks/internal/distribute"
	"github.com/mhartwell/siteworks/internal/httpapi"
	"github.com/mhartwell/siteworks/internal/observability"
	"github.com/mhartwell/siteworks/internal/pdfrender"
	"github.com/mhartwell/siteworks/internal/pipeline"
	"github.com/mhartwell/siteworks/internal/store"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "", "Listen address (overrides SITEWORKS_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SITEWORKS_DB)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env := "development"
	if cfg.Production {
		env = "production"
	}
	shutdownTracing := observability.Init(ctx, "siteworks", env)
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	blobs, err := blob.New(cfg.Blob)
	if err != nil {
		log.Fatal(err)
	}

	engine := analysis.NewEngineFromConfig(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	renderer := pdfrender.NewRenderer(blobs)
	distributor := distribute.NewDistributor(
		distribute.NewEmailSender(cfg.SMTP, blobs, cfg.PlatformLogoPath),
		distribute.NewWebhookSender(cfg.WebhookURL, blobs),
	)

	orch := pipeline.New(st, blobs, engine, renderer, distributor)
	orch.Start(ctx, cfg.Workers)

	handler := httpapi.NewServer(orch, st, blobs)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("siteworks listening on %s (production=%v, workers=%d)", cfg.Addr, cfg.Production, cfg.Workers)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	orch.Wait()
}
