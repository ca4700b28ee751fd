package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/blob"
	"github.com/mhartwell/siteworks/internal/config"
	"github.com/mhartwell/siteworks/internal/pdfrender"
	"github.com/mhartwell/siteworks/internal/store"
)

// render-report regenerates a single report's PDF from stored state and
// writes it to a local file, bypassing distribution. Handy when inspecting
// why a render failed in the pipeline.
func main() {
	_ = godotenv.Load()

	reportID := flag.String("report", "", "Report id to render")
	out := flag.String("out", "report.pdf", "Output PDF path")
	dbPath := flag.String("db", "", "SQLite database path (overrides SITEWORKS_DB)")
	flag.Parse()

	if *reportID == "" {
		log.Fatal("--report is required")
	}

	cfg := config.FromEnv()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	blobs, err := blob.New(cfg.Blob)
	if err != nil {
		log.Fatal(err)
	}

	rep, err := st.GetReport(*reportID)
	if err != nil {
		log.Fatal(err)
	}
	client, err := st.GetClient(rep.ClientID)
	if err != nil {
		log.Fatal(err)
	}
	images, err := st.ImagesForReport(rep.ID)
	if err != nil {
		log.Fatal(err)
	}

	var result analysis.StructuredAnalysis
	if rep.AIAnalysis != nil {
		if err := json.Unmarshal(rep.AIAnalysis, &result); err != nil {
			log.Fatalf("stored analysis for %s is not valid JSON: %v", rep.ID, err)
		}
	}

	renderer := pdfrender.NewRenderer(blobs)
	pdf, err := renderer.Render(context.Background(), pdfrender.Document{
		Report:   rep,
		Client:   client,
		Analysis: result,
		Images:   images,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%d bytes)", *out, len(pdf))
}
