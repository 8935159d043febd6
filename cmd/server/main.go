package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "fit-report/internal/adapter/http"
	"fit-report/internal/adapter/queue"
	repo "fit-report/internal/adapter/repository"
	"fit-report/internal/config"
	"fit-report/internal/infrastructure/migration"
	"fit-report/internal/reaper"
	"fit-report/internal/usecase"
	"fit-report/internal/worker"
	"fit-report/pkg/ai"
	infra "fit-report/pkg/infrastructure"
	"fit-report/pkg/mailer"
	"fit-report/pkg/report"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	jobs     usecase.JobsRepo
	students usecase.StudentsRepo
	reports  usecase.ReportsRepo
	ping     httpadapter.Checker
	close    func()
}

func run() error {
	startedAt := time.Now()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	q, closeQueue, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	generator := ai.NewClient(ai.Config{
		Provider:      cfg.LLM.Provider,
		OpenAIAPIKey:  cfg.LLM.OpenAIAPIKey,
		OpenAIModel:   cfg.LLM.OpenAIModel,
		OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
		OllamaURL:     cfg.LLM.OllamaURL,
		OllamaModel:   cfg.LLM.OllamaModel,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout,
	}, logger)

	renderer := report.NewRenderer(
		infra.NewChromedpRenderer(cfg.Render.ChromePath, cfg.Render.Timeout),
		cfg.Render.OutputDir,
		cfg.Render.Attempts,
		report.WithLogger(logger),
	)

	mail := mailer.New(mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
	})
	if !mail.Enabled() {
		logger.Warn("SMTP_HOST not set; reports will be generated but not emailed")
	}

	processor := usecase.NewProcessor(usecase.ProcessorDeps{
		Jobs:      st.jobs,
		Students:  st.students,
		Reports:   st.reports,
		Generator: generator,
		Renderer:  renderer,
		Deliverer: mail,
		Logger:    logger,
	})
	jobs := usecase.NewJobService(st.jobs, st.students, st.reports, q, logger)

	handler := httpadapter.NewHandler(jobs, cfg.HTTP.UploadDir, map[string]httpadapter.Checker{
		"store": st.ping,
		"queue": q.Ping,
	}, logger)
	app := httpadapter.NewApp(handler, cfg.HTTP.MaxUploadBytes)

	sweeper := reaper.New(st.jobs, reaper.Config{
		Schedule:        cfg.Reaper.Schedule,
		StaleAfter:      cfg.Reaper.StaleAfter,
		UploadDir:       cfg.HTTP.UploadDir,
		UploadRetention: cfg.Reaper.UploadRetention,
	}, logger)
	// Batches in a memory queue died with the previous process.
	if cfg.Queue.Backend == config.QueueMemory {
		if _, err := sweeper.FailInterrupted(ctx, startedAt); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewRunner(q, processor, cfg.Queue.Workers, logger).Run(gctx)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (stores, error) {
	if cfg.Store.Backend == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		m := repo.NewMemoryStore()
		return stores{
			jobs:     m.Jobs(),
			students: m.Students(),
			reports:  m.Reports(),
			ping:     m.Ping,
			close:    func() {},
		}, nil
	}

	pool, err := infra.NewPool(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	if cfg.Store.RunMigrationsOnStart {
		if err := migration.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return stores{}, err
		}
	}
	return stores{
		jobs:     repo.NewJobsRepo(pool),
		students: repo.NewStudentsRepo(pool),
		reports:  repo.NewReportsRepo(pool),
		ping:     pool.Ping,
		close:    pool.Close,
	}, nil
}

func openQueue(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (queue.Queue, func(), error) {
	if cfg.Queue.Backend == config.QueueRedis {
		client, err := infra.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis queue", "key", cfg.Queue.Key, "capacity", cfg.Queue.Capacity)
		return queue.NewRedis(client, cfg.Queue.Key, cfg.Queue.Capacity), func() { _ = client.Close() }, nil
	}
	return queue.NewMemory(cfg.Queue.Capacity, cfg.Queue.EnqueueTimeout), func() {}, nil
}
