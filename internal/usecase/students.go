package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
	"fit-report/pkg/extract"
)

const maxSkills = 5

// StudentRegistry looks students up by email and creates them on first
// sight.
type StudentRegistry struct {
	repo   StudentsRepo
	logger *slog.Logger
	now    func() time.Time
}

func NewStudentRegistry(repo StudentsRepo, logger *slog.Logger) *StudentRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentRegistry{repo: repo, logger: logger, now: time.Now}
}

// FindOrCreate returns the student registered under the record's email,
// creating it from rec when absent. A create that loses a race to another
// batch re-reads and returns the stored student.
func (r *StudentRegistry) FindOrCreate(ctx context.Context, rec extract.Record, rollNumber string) (*domain.Student, error) {
	email := normalizeEmail(rec.Get(ColEmail))

	existing, err := r.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("look up student: %w", err)
	}

	s := r.buildStudent(ctx, rec, email, rollNumber)
	if err := r.repo.Create(ctx, s); err != nil {
		if apperrors.IsConflict(err) && apperrors.GetField(err) == "email" {
			return r.repo.GetByEmail(ctx, email)
		}
		if apperrors.IsConflict(err) {
			return nil, fmt.Errorf("roll number %q is already registered to another student: %w", rollNumber, err)
		}
		return nil, fmt.Errorf("create student: %w", err)
	}
	return s, nil
}

func (r *StudentRegistry) buildStudent(ctx context.Context, rec extract.Record, email, rollNumber string) *domain.Student {
	now := r.now()
	return &domain.Student{
		ID:             uuid.New(),
		Name:           rec.Get(ColName),
		Email:          email,
		RollNumber:     rollNumber,
		University:     rec.First("University", "College"),
		Degree:         rec.Get("Degree"),
		Major:          rec.First("Major", "Specialization"),
		GraduationYear: rec.Get("Graduation_Year"),
		Skills:         r.skills(ctx, rec),
		Reports:        []uuid.UUID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// skills pairs Skill1..Skill5 with SkillN_Level.
func (r *StudentRegistry) skills(ctx context.Context, rec extract.Record) []domain.Skill {
	out := []domain.Skill{}
	for i := 1; i <= maxSkills; i++ {
		key := "Skill" + strconv.Itoa(i)
		name := rec.Get(key)
		if name == "" {
			continue
		}
		raw := rec.Get(key + "_Level")
		level, ok := domain.ParseSkillLevel(raw)
		if !ok {
			r.logger.WarnContext(ctx, "unknown skill level, using Beginner", "skill", name, "level", raw)
		}
		out = append(out, domain.Skill{Name: name, Level: level})
	}
	return out
}
