package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromedpRenderer prints HTML documents to A4 PDFs with headless Chrome.
// Each call starts a fresh browser.
type ChromedpRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewChromedpRenderer(chromePath string, timeout time.Duration) *ChromedpRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromedpRenderer{chromePath: chromePath, timeout: timeout}
}

func (r *ChromedpRenderer) RenderHTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	cctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	runCtx, cancelRun := context.WithTimeout(cctx, r.timeout)
	defer cancelRun()

	// Stylesheets are inlined, so the page only needs to exist on disk
	// long enough for Chrome to load it.
	tmpDir, err := os.MkdirTemp("", "fit-report-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	htmlPath := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return nil, err
	}

	var pdfBuf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4: 210mm x 297mm -> inches: 8.27 x 11.69
			pdfBuf, _, err = page.PrintToPDF().WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}
