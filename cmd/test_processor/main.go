// Command test_processor runs one batch end to end against a local mock
// OpenAI-compatible endpoint and the in-memory store, then prints the job.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"fit-report/internal/adapter/repository"
	"fit-report/internal/config"
	"fit-report/internal/domain"
	"fit-report/internal/usecase"
	"fit-report/pkg/ai"
	"fit-report/pkg/extract"
	"fit-report/pkg/infrastructure"
	"fit-report/pkg/mailer"
	"fit-report/pkg/report"
)

const mockNarrative = `## Overall Match Assessment
Estimated match: 68%

## Key Strengths
- Solid SQL and reporting background

## Gaps
- Limited cloud exposure

## Recommendations
1. Complete a cloud fundamentals course
2. Build a dashboard project on public data`

func startMockAI() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"messages required"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": mockNarrative}},
			},
		})
	})
	return httptest.NewServer(mux)
}

func main() {
	rosterPath := flag.String("roster", "students.csv", "student roster CSV")
	jdPath := flag.String("jd", "job_description.txt", "job description (pdf, docx or txt)")
	outDir := flag.String("out", "outputs", "report output directory")
	chromePath := flag.String("chrome", "", "Chrome executable (default: auto-detect)")
	flag.Parse()

	logger := config.InitLogger("debug")
	if err := run(logger, *rosterPath, *jdPath, *outDir, *chromePath); err != nil {
		logger.Error("test run failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, rosterPath, jdPath, outDir, chromePath string) error {
	srv := startMockAI()
	defer srv.Close()

	roster, err := extract.ParseRoster(rosterPath)
	if err != nil {
		return err
	}
	format, err := extract.DetectFormat(jdPath, "")
	if err != nil {
		return err
	}
	jd, err := extract.ExtractText(jdPath, format)
	if err != nil {
		return err
	}

	store := repository.NewMemoryStore()
	processor := usecase.NewProcessor(usecase.ProcessorDeps{
		Jobs:     store.Jobs(),
		Students: store.Students(),
		Reports:  store.Reports(),
		Generator: ai.NewClient(ai.Config{
			Provider:      ai.ProviderOpenAI,
			OpenAIAPIKey:  "test-key",
			OpenAIModel:   "mock",
			OpenAIBaseURL: srv.URL,
			MaxTokens:     1000,
			Timeout:       10 * time.Second,
		}, logger),
		Renderer: report.NewRenderer(
			infrastructure.NewChromedpRenderer(chromePath, 60*time.Second),
			outDir, 3, report.WithLogger(logger),
		),
		// No SMTP host: every record ends as Partial Success with a PDF.
		Deliverer: mailer.New(mailer.Config{}),
		Logger:    logger,
	})

	jobs := usecase.NewJobService(store.Jobs(), store.Students(), store.Reports(), nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	job := domain.NewJob(len(roster.Records), jd, time.Now())
	if err := store.Jobs().Create(ctx, job); err != nil {
		return err
	}
	// SourceFiles stays empty so the inputs survive the run.
	err = processor.Run(ctx, &usecase.Batch{
		JobID:          job.ID,
		Records:        roster.Records,
		JobDescription: jd,
		JobTitle:       job.JobDescriptionTitle,
		EnqueuedAt:     time.Now(),
	})
	if err != nil {
		return err
	}

	final, err := jobs.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
