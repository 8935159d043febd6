// Package http exposes the submission and query API over fiber.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	apperrors "fit-report/internal/errors"
	"fit-report/internal/usecase"
)

const readyTimeout = 2 * time.Second

// Checker reports whether a dependency can serve requests.
type Checker func(ctx context.Context) error

type Handler struct {
	jobs      *usecase.JobService
	uploadDir string
	checkers  map[string]Checker
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(jobs *usecase.JobService, uploadDir string, checkers map[string]Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobs: jobs, uploadDir: uploadDir, checkers: checkers, logger: logger, now: time.Now}
}

// NewApp builds the fiber app with the API routes registered.
func NewApp(h *Handler, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})
	h.Register(app)
	return app
}

func (h *Handler) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Post("/upload", h.Upload)
	api.Get("/job/:jobId", h.GetJob)
	api.Get("/jobs", h.ListJobs)
	api.Get("/student/:email/reports", h.StudentReports)
	api.Get("/status", h.Status)
	api.Get("/ready", h.Ready)
}

type uploadResp struct {
	JobID         uuid.UUID `json:"jobId"`
	Status        string    `json:"status"`
	TotalStudents int       `json:"totalStudents"`
	Message       string    `json:"message"`
}

// Upload stores the roster ("csv") and job description ("jobDesc") as
// "<unix millis>-<random>-<roster|jd>-<name>" and submits the batch.
func (h *Handler) Upload(c *fiber.Ctx) error {
	roster, err := c.FormFile("csv")
	if err != nil {
		return badRequest(c, "Both CSV file and job description file are required")
	}
	jd, err := c.FormFile("jobDesc")
	if err != nil {
		return badRequest(c, "Both CSV file and job description file are required")
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	prefix := strconv.FormatInt(h.now().UnixMilli(), 10) + "-" + uuid.NewString()[:8]
	rosterPath := filepath.Join(h.uploadDir, prefix+"-roster-"+filepath.Base(roster.Filename))
	jdPath := filepath.Join(h.uploadDir, prefix+"-jd-"+filepath.Base(jd.Filename))
	if err := c.SaveFile(roster, rosterPath); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	if err := c.SaveFile(jd, jdPath); err != nil {
		_ = os.Remove(rosterPath)
		return fmt.Errorf("save job description: %w", err)
	}

	job, err := h.jobs.Submit(c.UserContext(), usecase.Upload{
		RosterPath:             rosterPath,
		JobDescriptionPath:     jdPath,
		JobDescriptionName:     jd.Filename,
		JobDescriptionMIMEType: jd.Header.Get(fiber.HeaderContentType),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(uploadResp{
		JobID:         job.ID,
		Status:        string(job.Status),
		TotalStudents: job.TotalStudents,
		Message:       "Processing started",
	})
}

func (h *Handler) GetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return badRequest(c, "invalid jobId")
	}
	job, err := h.jobs.GetJob(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (h *Handler) ListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", usecase.DefaultJobsLimit)
	jobs, err := h.jobs.ListRecentJobs(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(jobs)
}

func (h *Handler) StudentReports(c *fiber.Ctx) error {
	email, err := url.PathUnescape(c.Params("email"))
	if err != nil {
		return badRequest(c, "invalid email")
	}
	reports, err := h.jobs.StudentReports(c.UserContext(), email)
	if err != nil {
		return err
	}
	return c.JSON(reports)
}

func (h *Handler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready runs every checker and answers 503 if any fails.
func (h *Handler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	checks := fiber.Map{}
	ready := true
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	status := fiber.StatusOK
	if !ready {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"ready": ready, "checks": checks})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// errorHandler renders errors returned by handlers as {"error": message}.
func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status := statusFor(apperrors.GetCode(err))
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		h.logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		if status == fiber.StatusInternalServerError {
			msg = "Internal server error"
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return fiber.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return fiber.StatusNotFound
	case apperrors.ErrCodeConflict:
		return fiber.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return fiber.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
