package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	"fit-report/pkg/extract"
	"fit-report/pkg/report"
)

// failTimeout bounds the write that marks an aborted job as failed.
const failTimeout = 10 * time.Second

// Processor runs batches: one record at a time, in roster order, with each
// record's outcome appended to the job before the next record starts.
type Processor struct {
	jobs      JobsRepo
	students  *StudentRegistry
	reports   ReportsRepo
	generator Generator
	renderer  ArtifactRenderer
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
	remove    func(string) error
}

// ProcessorDeps groups the collaborators of a Processor.
type ProcessorDeps struct {
	Jobs      JobsRepo
	Students  StudentsRepo
	Reports   ReportsRepo
	Generator Generator
	Renderer  ArtifactRenderer
	Deliverer Deliverer
	Logger    *slog.Logger
}

func NewProcessor(d ProcessorDeps) *Processor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		jobs:      d.Jobs,
		students:  NewStudentRegistry(d.Students, logger),
		reports:   d.Reports,
		generator: d.Generator,
		renderer:  d.Renderer,
		deliverer: d.Deliverer,
		logger:    logger,
		now:       time.Now,
		remove:    os.Remove,
	}
}

// Run processes every record of b and completes the job. When the loop
// cannot finish (a progress write fails, ctx is canceled or the loop itself
// panics) the job is marked failed instead. Uploaded files are removed in
// every case.
func (p *Processor) Run(ctx context.Context, b *Batch) (err error) {
	log := p.logger.With("job_id", b.JobID)
	defer p.cleanup(ctx, log, b.SourceFiles)
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "batch panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("batch panicked: %v", r)
		}
		if err != nil {
			p.fail(ctx, log, b.JobID, err)
		}
	}()

	job, err := p.jobs.Get(ctx, b.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		log.WarnContext(ctx, "skipping batch for finished job", "status", job.Status)
		return nil
	}

	log.InfoContext(ctx, "batch started", "total_students", len(b.Records))
	start := time.Now()
	resolver := NewIdentityResolver()
	counts := map[domain.ResultStatus]int{}

	for i, rec := range b.Records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted after %d of %d records: %w", i, len(b.Records), err)
		}
		result := p.processRecord(ctx, b, rec, resolver)
		if err := p.jobs.AppendResult(ctx, b.JobID, result); err != nil {
			return fmt.Errorf("record result %d: %w", i+1, err)
		}
		counts[result.Status]++
		log.InfoContext(ctx, "record processed",
			"roll_number", result.RollNumber,
			"status", result.Status,
			"error", result.Error,
			"processed", i+1,
		)
	}

	if err := p.jobs.Complete(ctx, b.JobID, p.now()); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	log.InfoContext(ctx, "batch completed",
		"success", counts[domain.ResultSuccess],
		"partial", counts[domain.ResultPartialSuccess],
		"failure", counts[domain.ResultFailure],
		"duration", time.Since(start),
	)
	return nil
}

// processRecord runs the stages for one record and folds the outcome into a
// StudentResult. It never returns an error: every stage failure becomes data,
// and a panic inside a stage fails only this record.
func (p *Processor) processRecord(ctx context.Context, b *Batch, rec extract.Record, resolver *IdentityResolver) (res domain.StudentResult) {
	var out recordOutcome
	stage := StageValidate
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "record panicked",
				"job_id", b.JobID,
				"roll_number", out.rollNumber,
				"stage", stage,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = p.fold(ctx, rec, out, &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	err := p.runStages(ctx, b, rec, resolver, &out, &stage)
	return p.fold(ctx, rec, out, err)
}

// runStages fills out as the stages succeed and keeps stage pointing at the
// step in progress.
func (p *Processor) runStages(ctx context.Context, b *Batch, rec extract.Record, resolver *IdentityResolver, out *recordOutcome, stage *Stage) error {
	if err := p.validate(rec); err != nil {
		return err
	}
	*stage = StageStudent
	out.name = rec.Get(ColName)
	out.email = rec.Get(ColEmail)
	out.rollNumber = resolver.Resolve(rec)

	student, err := p.findStudent(ctx, rec, out.rollNumber)
	if err != nil {
		return err
	}

	*stage = StageGenerate
	narrative, err := p.generate(ctx, rec, b.JobDescription)
	if err != nil {
		return err
	}

	*stage = StageRender
	score := domain.ExtractMatchScore(narrative)
	out.pdfPath, err = p.render(ctx, report.Input{
		JobID:       b.JobID,
		StudentName: out.name,
		Email:       out.email,
		RollNumber:  out.rollNumber,
		JobTitle:    b.JobTitle,
		Narrative:   narrative,
		MatchScore:  score,
	})
	if err != nil {
		return err
	}

	*stage = StageReport
	if err := p.saveReport(ctx, b, student, narrative, out.pdfPath, score); err != nil {
		return err
	}

	*stage = StageDeliver
	if err := p.deliver(ctx, b, *out); err != nil {
		return err
	}
	out.emailSent = true
	return nil
}

func (p *Processor) fold(ctx context.Context, rec extract.Record, out recordOutcome, err error) domain.StudentResult {
	now := p.now()
	var se *StageError
	switch {
	case err == nil:
		return domain.StudentResult{
			Name:        out.name,
			Email:       out.email,
			RollNumber:  out.rollNumber,
			Status:      domain.ResultSuccess,
			PDFPath:     out.pdfPath,
			EmailSent:   true,
			ProcessedAt: now,
		}
	case errors.As(err, &se) && se.Stage == StageValidate && errors.Is(se.Err, ErrMissingRequiredFields):
		return domain.StudentResult{
			Name:        orDefault(rec.Get(ColName), unknownName),
			Email:       orDefault(rec.Get(ColEmail), unknownEmail),
			RollNumber:  unknownRollNumber,
			Status:      domain.ResultFailure,
			Error:       missingDataMessage,
			ProcessedAt: now,
		}
	case errors.As(err, &se) && se.Stage == StageDeliver:
		p.logger.WarnContext(ctx, "report generated but email not sent",
			"roll_number", out.rollNumber,
			"error", se.Err,
		)
		return domain.StudentResult{
			Name:        out.name,
			Email:       out.email,
			RollNumber:  out.rollNumber,
			Status:      domain.ResultPartialSuccess,
			PDFPath:     out.pdfPath,
			EmailSent:   false,
			ProcessedAt: now,
		}
	default:
		msg := err.Error()
		if se != nil {
			msg = se.Err.Error()
		}
		return domain.StudentResult{
			Name:        out.name,
			Email:       out.email,
			RollNumber:  out.rollNumber,
			Status:      domain.ResultFailure,
			Error:       msg,
			ProcessedAt: now,
		}
	}
}

// fail marks the job failed on a context detached from ctx, since ctx may be
// the reason the batch stopped.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, jobID uuid.UUID, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	log.ErrorContext(ctx, "batch aborted", "error", cause)
	if err := p.jobs.Fail(fctx, jobID, cause.Error(), p.now()); err != nil {
		log.ErrorContext(ctx, "mark job failed", "error", err)
	}
}

func (p *Processor) cleanup(ctx context.Context, log *slog.Logger, files []string) {
	for _, f := range files {
		if err := p.remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WarnContext(ctx, "remove uploaded file", "path", f, "error", err)
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
