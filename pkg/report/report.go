// Package report turns a generated narrative into a PDF artifact on disk.
package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/report.html.tmpl templates/style.css
var templateFS embed.FS

var (
	pageTemplate = template.Must(template.New("report.html.tmpl").
			Funcs(template.FuncMap{"deref": func(p *int) int { return *p }}).
			ParseFS(templateFS, "templates/report.html.tmpl"))
	stylesheet = mustRead("templates/style.css")
	markdown   = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Linkify))
)

func mustRead(name string) string {
	b, err := templateFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// PDFRenderer converts a standalone HTML document to PDF bytes.
type PDFRenderer interface {
	RenderHTMLToPDF(ctx context.Context, html string) ([]byte, error)
}

// Input is everything the report page shows.
type Input struct {
	JobID       uuid.UUID
	StudentName string
	Email       string
	RollNumber  string
	JobTitle    string
	Narrative   string
	MatchScore  *int
}

type pageData struct {
	Input
	Organization string
	Body         template.HTML
	CSS          template.CSS
	GeneratedAt  time.Time
}

// BuildHTML renders the report page. The narrative is treated as markdown.
func BuildHTML(in Input, now time.Time) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(in.Narrative), &body); err != nil {
		return "", fmt.Errorf("convert narrative: %w", err)
	}
	data := pageData{
		Input:        in,
		Organization: OrgLabel(in.Email),
		Body:         template.HTML(body.String()),
		CSS:          template.CSS(stylesheet),
		GeneratedAt:  now,
	}
	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return out.String(), nil
}

// Renderer writes report PDFs under OutputDir, one directory per roll number.
type Renderer struct {
	pdf       PDFRenderer
	outputDir string
	attempts  int
	backoff   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Renderer)

// WithBackoff sets the base delay between render attempts.
func WithBackoff(d time.Duration) Option { return func(r *Renderer) { r.backoff = d } }

func WithLogger(l *slog.Logger) Option { return func(r *Renderer) { r.logger = l } }

func NewRenderer(pdf PDFRenderer, outputDir string, attempts int, opts ...Option) *Renderer {
	if attempts < 1 {
		attempts = 1
	}
	r := &Renderer{
		pdf:       pdf,
		outputDir: outputDir,
		attempts:  attempts,
		backoff:   time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Path returns where the report for rollNumber and jobID is written.
func (r *Renderer) Path(rollNumber string, jobID uuid.UUID) string {
	return filepath.Join(r.outputDir, safeSegment(rollNumber), fmt.Sprintf("report_%s.pdf", jobID))
}

// Render builds the page, converts it with retry and writes the PDF.
// It returns the path of the written file.
func (r *Renderer) Render(ctx context.Context, in Input) (string, error) {
	html, err := BuildHTML(in, r.now())
	if err != nil {
		return "", err
	}

	var (
		pdf       []byte
		renderErr error
	)
	for i := 0; i < r.attempts; i++ {
		pdf, renderErr = r.pdf.RenderHTMLToPDF(ctx, html)
		if renderErr == nil {
			if len(pdf) > 0 && bytes.HasPrefix(pdf, []byte("%PDF")) {
				break
			}
			renderErr = fmt.Errorf("invalid PDF output (len=%d)", len(pdf))
		}
		r.logger.WarnContext(ctx, "render attempt failed",
			"attempt", i+1,
			"roll_number", in.RollNumber,
			"error", renderErr,
		)
		if i < r.attempts-1 {
			select {
			case <-time.After(r.backoff * time.Duration(1<<i)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if renderErr != nil {
		return "", fmt.Errorf("rendering failed after %d attempts: %w", r.attempts, renderErr)
	}

	path := r.Path(in.RollNumber, in.JobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create student directory: %w", err)
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// safeSegment keeps a roll number usable as a single directory name.
func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(s)
	if s == "" || s == "." {
		return "unknown"
	}
	return s
}
