package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"fit-report/internal/adapter/repository"
	"fit-report/internal/domain"
	"fit-report/internal/mocks"
	"fit-report/pkg/ai"
	"fit-report/pkg/extract"
	"fit-report/pkg/mailer"
	"fit-report/pkg/report"
)

type staticPDF struct{}

func (staticPDF) RenderHTMLToPDF(context.Context, string) ([]byte, error) {
	return []byte("%PDF-1.4\n%fake\n"), nil
}

// panicOnceRenderer panics on its first call and delegates afterwards.
type panicOnceRenderer struct {
	next  ArtifactRenderer
	calls int
}

func (r *panicOnceRenderer) Render(ctx context.Context, in report.Input) (string, error) {
	r.calls++
	if r.calls == 1 {
		panic("nil map in template helper")
	}
	return r.next.Render(ctx, in)
}

type failingPDF struct{ err error }

func (f failingPDF) RenderHTMLToPDF(context.Context, string) ([]byte, error) {
	return nil, f.err
}

// failFirstReports rejects the first report it is asked to store.
type failFirstReports struct {
	ReportsRepo
	calls int
}

func (r *failFirstReports) Create(ctx context.Context, rep *domain.Report) error {
	r.calls++
	if r.calls == 1 {
		return errors.New("reports table unavailable")
	}
	return r.ReportsRepo.Create(ctx, rep)
}

type harness struct {
	store     *repository.MemoryStore
	generator *mocks.MockGenerator
	deliverer *mocks.MockDeliverer
	processor *Processor
	outputDir string

	mu      sync.Mutex
	removed []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		store:     repository.NewMemoryStore(),
		generator: mocks.NewMockGenerator(ctrl),
		deliverer: mocks.NewMockDeliverer(ctrl),
		outputDir: t.TempDir(),
	}
	h.processor = NewProcessor(ProcessorDeps{
		Jobs:      h.store.Jobs(),
		Students:  h.store.Students(),
		Reports:   h.store.Reports(),
		Generator: h.generator,
		Renderer:  report.NewRenderer(staticPDF{}, h.outputDir, 1),
		Deliverer: h.deliverer,
	})
	h.processor.remove = func(p string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removed = append(h.removed, p)
		return nil
	}
	return h
}

func (h *harness) submit(t *testing.T, jd string, records ...extract.Record) *Batch {
	t.Helper()
	job := domain.NewJob(len(records), jd, time.Now())
	require.NoError(t, h.store.Jobs().Create(context.Background(), job))
	return &Batch{
		JobID:          job.ID,
		Records:        records,
		JobDescription: jd,
		JobTitle:       job.JobDescriptionTitle,
		SourceFiles:    []string{"uploads/roster.csv", "uploads/jd.txt"},
		EnqueuedAt:     time.Now(),
	}
}

func (h *harness) job(t *testing.T, id uuid.UUID) *domain.Job {
	t.Helper()
	j, err := h.store.Jobs().Get(context.Background(), id)
	require.NoError(t, err)
	return j
}

func TestRun_MixedRoster(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	b := h.submit(t, "Data Analyst\nSQL, Python, dashboards",
		extract.Record{"Name": "Asha Rao", "Email": "asha@example.edu", "Roll_Number": "R001"},
		extract.Record{"Name": "No Mail", "Email": "  "},
		extract.Record{"Name": "Ben Li", "Email": "ben@example.edu", "ID": "B-7"},
	)

	h.generator.EXPECT().
		Generate(gomock.Any(), gomock.Any(), b.JobDescription).
		Return("## Summary\nOverall match: 72%", nil).
		Times(2)
	var sent []mailer.Delivery
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d mailer.Delivery) error {
			sent = append(sent, d)
			return nil
		}).
		Times(2)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	require.Len(t, job.Results, 3)
	assert.Equal(t, len(job.Results), job.ProcessedStudents)

	assert.Equal(t, domain.ResultSuccess, job.Results[0].Status)
	assert.Equal(t, "R001", job.Results[0].RollNumber)
	assert.True(t, job.Results[0].EmailSent)
	assert.FileExists(t, job.Results[0].PDFPath)
	assert.Equal(t, filepath.Join(h.outputDir, "R001", "report_"+b.JobID.String()+".pdf"), job.Results[0].PDFPath)

	assert.Equal(t, domain.ResultFailure, job.Results[1].Status)
	assert.Equal(t, "Missing required student data", job.Results[1].Error)
	assert.Equal(t, "unknown", job.Results[1].RollNumber)
	assert.Equal(t, "No Mail", job.Results[1].Name)
	assert.Equal(t, "unknown@example.com", job.Results[1].Email)

	assert.Equal(t, domain.ResultSuccess, job.Results[2].Status)
	assert.Equal(t, "B-7", job.Results[2].RollNumber)

	require.Len(t, sent, 2)
	assert.Equal(t, "asha@example.edu", sent[0].To)
	assert.Equal(t, "Data Analyst", sent[0].JobTitle)

	student, err := h.store.Students().GetByEmail(context.Background(), "asha@example.edu")
	require.NoError(t, err)
	reports, err := h.store.Reports().ListByStudent(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.NotNil(t, reports[0].MatchScore)
	assert.Equal(t, 72, *reports[0].MatchScore)
	assert.Equal(t, []uuid.UUID{reports[0].ID}, student.Reports)

	assert.ElementsMatch(t, b.SourceFiles, h.removed)
}

func TestRun_SameStudentAcrossJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := extract.Record{"Name": "Asha Rao", "Email": "Asha@Example.edu", "Roll_Number": "R001", "Skill1": "SQL", "Skill1_Level": "advanced"}

	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil).Times(2)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first := h.submit(t, "Analyst", rec)
	second := h.submit(t, "Engineer", rec)
	require.NoError(t, h.processor.Run(context.Background(), first))
	require.NoError(t, h.processor.Run(context.Background(), second))

	student, err := h.store.Students().GetByEmail(context.Background(), "asha@example.edu")
	require.NoError(t, err)
	assert.Equal(t, []domain.Skill{{Name: "SQL", Level: domain.SkillAdvanced}}, student.Skills)
	reports, err := h.store.Reports().ListByStudent(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, first.JobID, reports[0].JobID)
	assert.Equal(t, second.JobID, reports[1].JobID)
	assert.Nil(t, reports[0].MatchScore)
	assert.Len(t, student.Reports, 2)
}

func TestRun_DeliveryFailureIsPartialSuccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	b := h.submit(t, "Analyst", extract.Record{"Name": "Asha", "Email": "asha@example.edu"})

	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(mailer.ErrDisabled)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 1)
	res := job.Results[0]
	assert.Equal(t, domain.ResultPartialSuccess, res.Status)
	assert.False(t, res.EmailSent)
	assert.NotEmpty(t, res.PDFPath)
	assert.Regexp(t, `^student-\d+-\d+$`, res.RollNumber)
}

func TestRun_UnsupportedProviderFailsEveryRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.processor.generator = ai.NewClient(ai.Config{Provider: "gemini"}, nil)
	b := h.submit(t, "Analyst",
		extract.Record{"Name": "Asha", "Email": "asha@example.edu", "Roll_Number": "R1"},
		extract.Record{"Name": "Ben", "Email": "ben@example.edu", "Roll_Number": "R2"},
	)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	for _, r := range job.Results {
		assert.Equal(t, domain.ResultFailure, r.Status)
		assert.Equal(t, "Error calling LLM service: Unsupported LLM endpoint: gemini", r.Error)
		assert.Empty(t, r.PDFPath)
	}
}

func TestRun_RollNumberTakenByAnotherStudent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	b := h.submit(t, "Analyst",
		extract.Record{"Name": "Asha", "Email": "asha@example.edu", "Roll_Number": "R1"},
		extract.Record{"Name": "Imposter", "Email": "other@example.edu", "Roll_Number": "R1"},
	)
	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.ResultSuccess, job.Results[0].Status)
	assert.Equal(t, domain.ResultFailure, job.Results[1].Status)
	assert.Contains(t, job.Results[1].Error, `roll number "R1" is already registered`)
}

func TestRun_CanceledContextFailsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	b := h.submit(t, "Analyst", extract.Record{"Name": "Asha", "Email": "asha@example.edu"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.processor.Run(ctx, b)
	require.ErrorIs(t, err, context.Canceled)

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "interrupted after 0 of 1 records")
	assert.Empty(t, job.Results)
	assert.ElementsMatch(t, b.SourceFiles, h.removed)
}

func TestRun_StagePanicFailsOnlyThatRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.processor.renderer = &panicOnceRenderer{next: h.processor.renderer}
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil).Times(3)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	b := h.submit(t, "Analyst",
		extract.Record{"Name": "Asha", "Email": "asha@example.edu", "Roll_Number": "A1"},
		extract.Record{"Name": "Ben", "Email": "ben@example.edu", "Roll_Number": "B1"},
		extract.Record{"Name": "Cleo", "Email": "cleo@example.edu", "Roll_Number": "C1"},
	)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProcessedStudents)
	require.Len(t, job.Results, 3)
	assert.Equal(t, domain.ResultFailure, job.Results[0].Status)
	assert.Equal(t, "A1", job.Results[0].RollNumber)
	assert.Equal(t, "panic: nil map in template helper", job.Results[0].Error)
	assert.Equal(t, domain.ResultSuccess, job.Results[1].Status)
	assert.Equal(t, domain.ResultSuccess, job.Results[2].Status)
	assert.ElementsMatch(t, b.SourceFiles, h.removed)
}

func TestRun_RenderErrorFailsRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.processor.renderer = report.NewRenderer(failingPDF{err: errors.New("chrome not found")}, h.outputDir, 2, report.WithBackoff(time.Millisecond))
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil).Times(2)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
	b := h.submit(t, "Analyst",
		extract.Record{"Name": "Asha", "Email": "asha@example.edu", "Roll_Number": "A1"},
		extract.Record{"Name": "Ben", "Email": "ben@example.edu", "Roll_Number": "B1"},
	)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	for _, r := range job.Results {
		assert.Equal(t, domain.ResultFailure, r.Status)
		assert.Contains(t, r.Error, "rendering failed after 2 attempts")
		assert.Contains(t, r.Error, "chrome not found")
		assert.Empty(t, r.PDFPath)
		assert.False(t, r.EmailSent)
	}

	student, err := h.store.Students().GetByEmail(context.Background(), "asha@example.edu")
	require.NoError(t, err)
	assert.Empty(t, student.Reports)
	reports, err := h.store.Reports().ListByStudent(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRun_ReportSaveErrorFailsRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.processor.reports = &failFirstReports{ReportsRepo: h.store.Reports()}
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil).Times(2)
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	b := h.submit(t, "Analyst",
		extract.Record{"Name": "Asha", "Email": "asha@example.edu", "Roll_Number": "A1"},
		extract.Record{"Name": "Ben", "Email": "ben@example.edu", "Roll_Number": "B1"},
	)

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	require.Len(t, job.Results, 2)
	assert.Equal(t, domain.ResultFailure, job.Results[0].Status)
	assert.Equal(t, "reports table unavailable", job.Results[0].Error)
	assert.Equal(t, domain.ResultSuccess, job.Results[1].Status)

	asha, err := h.store.Students().GetByEmail(context.Background(), "asha@example.edu")
	require.NoError(t, err)
	assert.Empty(t, asha.Reports)
}

func TestRun_SkipsFinishedJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	b := h.submit(t, "Analyst", extract.Record{"Name": "Asha", "Email": "asha@example.edu"})
	require.NoError(t, h.store.Jobs().Fail(context.Background(), b.JobID, "Job could not be queued", time.Now()))

	require.NoError(t, h.processor.Run(context.Background(), b))

	job := h.job(t, b.JobID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Empty(t, job.Results)
}

func TestRun_ProgressVisibleToReaders(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	records := make([]extract.Record, 20)
	for i := range records {
		records[i] = extract.Record{"Name": "S", "Email": uuid.NewString() + "@example.edu"}
	}
	b := h.submit(t, "Analyst", records...)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("Narrative", nil).AnyTimes()
	h.deliverer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- h.processor.Run(context.Background(), b) }()

	last := 0
	for finished := false; !finished; {
		select {
		case err := <-done:
			require.NoError(t, err)
			finished = true
		default:
		}
		j := h.job(t, b.JobID)
		require.Equal(t, j.ProcessedStudents, len(j.Results))
		require.GreaterOrEqual(t, j.ProcessedStudents, last)
		last = j.ProcessedStudents
	}
	assert.Equal(t, 20, last)
}

func TestIdentityResolver_SynthesizedIDsAreUnique(t *testing.T) {
	t.Parallel()
	r := NewIdentityResolver()
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	seq := []int{7, 7, 7, 8}
	r.intn = func(int) int {
		n := seq[0]
		seq = seq[1:]
		return n
	}

	first := r.Resolve(extract.Record{"Name": "A"})
	second := r.Resolve(extract.Record{"Name": "B"})
	assert.Equal(t, "student-1700000000000-7", first)
	assert.Equal(t, "student-1700000000000-8", second)
	assert.Equal(t, "X1", r.Resolve(extract.Record{"ID": " X1 ", "StudentID": "S9"}))
	assert.Equal(t, "S9", r.Resolve(extract.Record{"StudentID": "S9"}))
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateRecord(extract.Record{"Name": "A", "Email": "a@x.io"}))
	assert.ErrorIs(t, ValidateRecord(extract.Record{"Name": "A"}), ErrMissingRequiredFields)
	assert.ErrorIs(t, ValidateRecord(extract.Record{"Name": " ", "Email": "a@x.io"}), ErrMissingRequiredFields)
}
