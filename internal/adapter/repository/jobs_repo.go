package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
)

const jobColumns = `id, status, total_students, processed_students, job_description_title,
	job_description_length, coalesce(error, ''), created_at, completed_at, results`

// JobsRepo stores jobs in Postgres with results as a JSONB array on the job
// row, so a result append and the counter increment are one UPDATE.
type JobsRepo struct {
	pool *pgxpool.Pool
}

func NewJobsRepo(pool *pgxpool.Pool) *JobsRepo {
	return &JobsRepo{pool: pool}
}

func (r *JobsRepo) Create(ctx context.Context, j *domain.Job) error {
	results, err := json.Marshal(j.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO jobs (id, status, total_students, processed_students,
		job_description_title, job_description_length, created_at, results)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, string(j.Status), j.TotalStudents, j.ProcessedStudents,
		j.JobDescriptionTitle, j.JobDescriptionLength, j.CreatedAt, results)
	if err != nil {
		return fmt.Errorf("insert job: %w", apperrors.MapDBError(err))
	}
	return nil
}

func (r *JobsRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, err
	}
	return j, nil
}

func (r *JobsRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	out := []*domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func (r *JobsRepo) AppendResult(ctx context.Context, id uuid.UUID, res domain.StudentResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE jobs
		SET results = results || jsonb_build_array($2::jsonb),
			processed_students = processed_students + 1
		WHERE id = $1 AND status = 'processing'`, id, b)
	if err != nil {
		return fmt.Errorf("append result: %w", apperrors.MapDBError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.notProcessing(ctx, id)
	}
	return nil
}

func (r *JobsRepo) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.finish(ctx, id, domain.JobStatusCompleted, nil, at)
}

func (r *JobsRepo) Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.finish(ctx, id, domain.JobStatusFailed, &reason, at)
}

func (r *JobsRepo) finish(ctx context.Context, id uuid.UUID, status domain.JobStatus, reason *string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1 AND status = 'processing'`, id, string(status), reason, at)
	if err != nil {
		return fmt.Errorf("set job %s: %w", status, apperrors.MapDBError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.notProcessing(ctx, id)
	}
	return nil
}

func (r *JobsRepo) FailStale(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs
		SET status = 'failed', error = $2, completed_at = $3
		WHERE status = 'processing' AND created_at < $1`, cutoff, reason, at)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", apperrors.MapDBError(err))
	}
	return tag.RowsAffected(), nil
}

// notProcessing explains a conditional update that matched no row.
func (r *JobsRepo) notProcessing(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if apperrors.IsNotFound(apperrors.MapDBError(err)) {
			return apperrors.NotFoundf("job %s not found", id)
		}
		return fmt.Errorf("read job status: %w", apperrors.MapDBError(err))
	}
	return apperrors.Conflict("status", fmt.Sprintf("job %s is already %s", id, status))
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j       domain.Job
		status  string
		results []byte
	)
	err := row.Scan(&j.ID, &status, &j.TotalStudents, &j.ProcessedStudents, &j.JobDescriptionTitle,
		&j.JobDescriptionLength, &j.Error, &j.CreatedAt, &j.CompletedAt, &results)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	j.Status = domain.JobStatus(status)
	if err := json.Unmarshal(results, &j.Results); err != nil {
		return nil, fmt.Errorf("decode results of job %s: %w", j.ID, err)
	}
	if j.Results == nil {
		j.Results = []domain.StudentResult{}
	}
	return &j, nil
}
