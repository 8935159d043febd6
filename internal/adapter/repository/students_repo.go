package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
)

// StudentsRepo stores students; email and roll_number carry unique
// constraints, so concurrent creates for one email serialize in Postgres.
type StudentsRepo struct {
	pool *pgxpool.Pool
}

func NewStudentsRepo(pool *pgxpool.Pool) *StudentsRepo {
	return &StudentsRepo{pool: pool}
}

func (r *StudentsRepo) GetByEmail(ctx context.Context, email string) (*domain.Student, error) {
	var (
		s      domain.Student
		skills []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, roll_number, university, degree, major,
		graduation_year, skills, report_ids, created_at, updated_at
		FROM students WHERE email = $1`, email).
		Scan(&s.ID, &s.Name, &s.Email, &s.RollNumber, &s.University, &s.Degree, &s.Major,
			&s.GraduationYear, &skills, &s.Reports, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		err = apperrors.MapDBError(err)
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFoundf("student %s not found", email)
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	if err := json.Unmarshal(skills, &s.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return &s, nil
}

func (r *StudentsRepo) Create(ctx context.Context, s *domain.Student) error {
	skills, err := json.Marshal(s.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO students (id, name, email, roll_number, university, degree,
		major, graduation_year, skills, report_ids, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.ID, s.Name, s.Email, s.RollNumber, s.University, s.Degree, s.Major,
		s.GraduationYear, skills, s.Reports, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
