package pdfrender

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer converts a composed report document into a paginated A4 PDF via a
// headless Chromium instance. Launch failure is fatal to the pipeline run.
type Renderer struct {
	files      FileReader
	chromePath string
	timeout    time.Duration
	printPDF   func(ctx context.Context, htmlDoc string) ([]byte, error)
}

func NewRenderer(files FileReader) *Renderer {
	r := &Renderer{
		files:      files,
		chromePath: detectChromePath(),
		timeout:    30 * time.Second,
	}
	r.printPDF = r.chromiumPrint
	return r
}

func (r *Renderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	htmlDoc := composeHTML(ctx, r.files, doc)
	pdf, err := r.printPDF(ctx, htmlDoc)
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, errors.New("renderer produced an empty document")
	}
	return pdf, nil
}

func (r *Renderer) chromiumPrint(ctx context.Context, htmlDoc string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
