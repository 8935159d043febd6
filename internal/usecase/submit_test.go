package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fit-report/internal/adapter/repository"
	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
)

var errFull = errors.New("queue is full")

// sliceQueue is a bounded in-process Enqueuer.
type sliceQueue struct {
	capacity int
	batches  []*Batch
}

func (q *sliceQueue) Enqueue(_ context.Context, b *Batch) error {
	if len(q.batches) >= q.capacity {
		return errFull
	}
	q.batches = append(q.batches, b)
	return nil
}

func writeUpload(t *testing.T, rosterCSV, jdName, jd string) Upload {
	t.Helper()
	dir := t.TempDir()
	rp := filepath.Join(dir, "roster.csv")
	jp := filepath.Join(dir, jdName)
	require.NoError(t, os.WriteFile(rp, []byte(rosterCSV), 0o600))
	require.NoError(t, os.WriteFile(jp, []byte(jd), 0o600))
	return Upload{RosterPath: rp, JobDescriptionPath: jp, JobDescriptionName: jdName}
}

func TestSubmit_EnqueuesBatch(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	q := &sliceQueue{capacity: 2}
	svc := NewJobService(store.Jobs(), store.Students(), store.Reports(), q, nil)

	u := writeUpload(t, "Name,Email\nAsha,asha@example.edu\n", "jd.txt", "Backend Engineer\nGo, Postgres")
	job, err := svc.Submit(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.TotalStudents)
	assert.Equal(t, "Backend Engineer", job.JobDescriptionTitle)

	require.Len(t, q.batches, 1)
	b := q.batches[0]
	assert.Equal(t, job.ID, b.JobID)
	assert.Equal(t, "Backend Engineer\nGo, Postgres", b.JobDescription)
	assert.Equal(t, []string{u.RosterPath, u.JobDescriptionPath}, b.SourceFiles)
	assert.FileExists(t, u.RosterPath)
}

func TestSubmit_ValidationRemovesUploads(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := NewJobService(store.Jobs(), store.Students(), store.Reports(), &sliceQueue{capacity: 1}, nil)

	u := writeUpload(t, "Name\nAsha\n", "jd.txt", "Engineer")
	_, err := svc.Submit(context.Background(), u)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoFileExists(t, u.RosterPath)
	assert.NoFileExists(t, u.JobDescriptionPath)

	jobs, err := store.Jobs().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmit_QueueFull(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	q := &sliceQueue{capacity: 1, batches: []*Batch{{}}}
	svc := NewJobService(store.Jobs(), store.Students(), store.Reports(), q, nil)

	u := writeUpload(t, "Name,Email\nAsha,asha@example.edu\n", "jd.txt", "Engineer")
	_, err := svc.Submit(context.Background(), u)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.ErrorIs(t, err, errFull)
	assert.NoFileExists(t, u.RosterPath)

	jobs, err := store.Jobs().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "Job could not be queued")
}

func TestListRecentJobs_ClampsLimit(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := NewJobService(store.Jobs(), store.Students(), store.Reports(), &sliceQueue{capacity: 1}, nil)
	for range MaxJobsLimit + 5 {
		require.NoError(t, store.Jobs().Create(context.Background(), domain.NewJob(1, "Role", svc.now())))
	}

	jobs, err := svc.ListRecentJobs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, jobs, DefaultJobsLimit)

	jobs, err = svc.ListRecentJobs(context.Background(), 1000)
	require.NoError(t, err)
	assert.Len(t, jobs, MaxJobsLimit)
}

func TestStudentReports_UnknownStudent(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := NewJobService(store.Jobs(), store.Students(), store.Reports(), &sliceQueue{capacity: 1}, nil)

	_, err := svc.StudentReports(context.Background(), "ghost@example.edu")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
