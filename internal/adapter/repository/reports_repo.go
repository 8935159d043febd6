package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
)

type ReportsRepo struct {
	pool *pgxpool.Pool
}

func NewReportsRepo(pool *pgxpool.Pool) *ReportsRepo {
	return &ReportsRepo{pool: pool}
}

// Create inserts the report and appends its id to the student in one
// transaction.
func (r *ReportsRepo) Create(ctx context.Context, rep *domain.Report) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO reports (id, student_id, job_id, job_title, job_description,
			pdf_path, llm_response, match_score, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rep.ID, rep.StudentID, rep.JobID, rep.JobTitle, rep.JobDescription,
			rep.PDFPath, rep.LLMResponse, rep.MatchScore, rep.CreatedAt); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE students
			SET report_ids = array_append(report_ids, $2), updated_at = $3
			WHERE id = $1`, rep.StudentID, rep.ID, rep.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFoundf("student %s not found", rep.StudentID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create report: %w", apperrors.MapDBError(err))
	}
	return nil
}

func (r *ReportsRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Report, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, student_id, job_id, job_title, job_description, pdf_path,
		llm_response, match_score, created_at
		FROM reports WHERE student_id = $1 ORDER BY created_at, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	out := []*domain.Report{}
	for rows.Next() {
		var rep domain.Report
		if err := rows.Scan(&rep.ID, &rep.StudentID, &rep.JobID, &rep.JobTitle, &rep.JobDescription,
			&rep.PDFPath, &rep.LLMResponse, &rep.MatchScore, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", apperrors.MapDBError(err))
		}
		out = append(out, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
