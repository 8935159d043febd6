package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	"fit-report/pkg/extract"
	"fit-report/pkg/mailer"
	"fit-report/pkg/report"
)

// Batch is the unit of work handed from submission to the worker pool.
type Batch struct {
	JobID          uuid.UUID        `json:"jobId"`
	Records        []extract.Record `json:"records"`
	JobDescription string           `json:"jobDescription"`
	JobTitle       string           `json:"jobTitle"`
	// SourceFiles are the uploaded files, removed once the batch finishes.
	SourceFiles []string  `json:"sourceFiles"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// JobsRepo persists Job aggregates. AppendResult, Complete and Fail only
// apply to jobs still in the processing state and return a conflict error
// otherwise.
type JobsRepo interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Job, error)
	// AppendResult adds r to the results and increments processedStudents
	// in one write.
	AppendResult(ctx context.Context, id uuid.UUID, r domain.StudentResult) error
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	// FailStale fails every processing job created before cutoff and
	// returns how many were changed.
	FailStale(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error)
}

// StudentsRepo persists Students. Create returns a conflict error carrying
// the violated field ("email" or "roll_number").
type StudentsRepo interface {
	GetByEmail(ctx context.Context, email string) (*domain.Student, error)
	Create(ctx context.Context, s *domain.Student) error
}

// ReportsRepo persists Reports. Create also appends the report id to the
// owning Student's reports.
type ReportsRepo interface {
	Create(ctx context.Context, r *domain.Report) error
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Report, error)
}

type Generator interface {
	Generate(ctx context.Context, record map[string]string, jobDescription string) (string, error)
}

type ArtifactRenderer interface {
	Render(ctx context.Context, in report.Input) (string, error)
}

type Deliverer interface {
	Send(ctx context.Context, d mailer.Delivery) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, b *Batch) error
}
