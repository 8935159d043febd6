package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
	"fit-report/pkg/extract"
)

const (
	DefaultJobsLimit = 10
	MaxJobsLimit     = 100
)

// Upload is a stored pair of submitted files.
type Upload struct {
	RosterPath             string
	JobDescriptionPath     string
	JobDescriptionName     string
	JobDescriptionMIMEType string
}

// JobService accepts submissions and answers job and report queries.
type JobService struct {
	jobs     JobsRepo
	students StudentsRepo
	reports  ReportsRepo
	queue    Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

func NewJobService(jobs JobsRepo, students StudentsRepo, reports ReportsRepo, queue Enqueuer, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{jobs: jobs, students: students, reports: reports, queue: queue, logger: logger, now: time.Now}
}

// Submit parses both uploads, creates the job and enqueues its batch. Any
// parse problem is a validation error and no job is created. If the queue
// refuses the batch the new job is marked failed and an unavailable error is
// returned. On every error path the uploaded files are removed.
func (s *JobService) Submit(ctx context.Context, u Upload) (job *domain.Job, err error) {
	queued := false
	defer func() {
		if !queued {
			removeQuietly(u.RosterPath, u.JobDescriptionPath)
		}
	}()

	format, err := extract.DetectFormat(u.JobDescriptionName, u.JobDescriptionMIMEType)
	if err != nil {
		return nil, apperrors.Validation("Unsupported job description file format. Only PDF, DOCX and TXT files are allowed.")
	}

	roster, err := extract.ParseRoster(u.RosterPath)
	if err != nil {
		if errors.Is(err, extract.ErrEmptyRoster) {
			return nil, apperrors.Validation("No student data found in CSV file")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Unable to read CSV file")
	}
	if missing := roster.MissingColumns(ColName, ColEmail); len(missing) > 0 {
		return nil, apperrors.Validationf("CSV file is missing required columns: %s", strings.Join(missing, ", "))
	}

	jd, err := extract.ExtractText(u.JobDescriptionPath, format)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Unable to read job description")
	}
	if strings.TrimSpace(jd) == "" {
		return nil, apperrors.Validation("Job description file is empty")
	}

	job = domain.NewJob(len(roster.Records), jd, s.now())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	batch := &Batch{
		JobID:          job.ID,
		Records:        roster.Records,
		JobDescription: jd,
		JobTitle:       job.JobDescriptionTitle,
		SourceFiles:    []string{u.RosterPath, u.JobDescriptionPath},
		EnqueuedAt:     s.now(),
	}
	if err := s.queue.Enqueue(ctx, batch); err != nil {
		s.logger.ErrorContext(ctx, "enqueue batch", "job_id", job.ID, "error", err)
		if ferr := s.jobs.Fail(context.WithoutCancel(ctx), job.ID, "Job could not be queued: "+err.Error(), s.now()); ferr != nil {
			s.logger.ErrorContext(ctx, "mark unqueued job failed", "job_id", job.ID, "error", ferr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Processing queue is full, try again later")
	}
	queued = true

	s.logger.InfoContext(ctx, "batch submitted",
		"job_id", job.ID,
		"total_students", job.TotalStudents,
		"job_title", job.JobDescriptionTitle,
	)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.Get(ctx, id)
}

// ListRecentJobs returns up to limit jobs, newest first. Non-positive limits
// use DefaultJobsLimit; larger ones are capped at MaxJobsLimit.
func (s *JobService) ListRecentJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	switch {
	case limit <= 0:
		limit = DefaultJobsLimit
	case limit > MaxJobsLimit:
		limit = MaxJobsLimit
	}
	return s.jobs.ListRecent(ctx, limit)
}

// StudentReports returns the student's reports, oldest first.
func (s *JobService) StudentReports(ctx context.Context, email string) ([]*domain.Report, error) {
	student, err := s.students.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFoundf("student %s not found", email)
		}
		return nil, err
	}
	return s.reports.ListByStudent(ctx, student.ID)
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
