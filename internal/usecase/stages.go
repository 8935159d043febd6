package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	"fit-report/pkg/extract"
	"fit-report/pkg/mailer"
	"fit-report/pkg/report"
)

// Stage names one step of per-record processing.
type Stage string

const (
	StageValidate Stage = "validate"
	StageStudent  Stage = "student"
	StageGenerate Stage = "generate"
	StageRender   Stage = "render"
	StageReport   Stage = "report"
	StageDeliver  Stage = "deliver"
)

// StageError is the failure of one stage for one record.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// recordOutcome accumulates what the stages produced for one record.
type recordOutcome struct {
	name       string
	email      string
	rollNumber string
	pdfPath    string
	emailSent  bool
}

func (p *Processor) validate(rec extract.Record) error {
	return stageErr(StageValidate, ValidateRecord(rec))
}

func (p *Processor) findStudent(ctx context.Context, rec extract.Record, rollNumber string) (*domain.Student, error) {
	s, err := p.students.FindOrCreate(ctx, rec, rollNumber)
	return s, stageErr(StageStudent, err)
}

func (p *Processor) generate(ctx context.Context, rec extract.Record, jobDescription string) (string, error) {
	text, err := p.generator.Generate(ctx, rec, jobDescription)
	return text, stageErr(StageGenerate, err)
}

func (p *Processor) render(ctx context.Context, in report.Input) (string, error) {
	path, err := p.renderer.Render(ctx, in)
	return path, stageErr(StageRender, err)
}

func (p *Processor) saveReport(ctx context.Context, b *Batch, s *domain.Student, narrative, pdfPath string, score *int) error {
	r := &domain.Report{
		ID:             uuid.New(),
		StudentID:      s.ID,
		JobID:          b.JobID,
		JobTitle:       b.JobTitle,
		JobDescription: b.JobDescription,
		PDFPath:        pdfPath,
		LLMResponse:    narrative,
		MatchScore:     score,
		CreatedAt:      p.now(),
	}
	return stageErr(StageReport, p.reports.Create(ctx, r))
}

func (p *Processor) deliver(ctx context.Context, b *Batch, out recordOutcome) error {
	return stageErr(StageDeliver, p.deliverer.Send(ctx, mailer.Delivery{
		To:         out.email,
		Name:       out.name,
		RollNumber: out.rollNumber,
		JobTitle:   b.JobTitle,
		Attachment: out.pdfPath,
	}))
}
