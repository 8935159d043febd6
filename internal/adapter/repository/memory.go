package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fit-report/internal/domain"
	apperrors "fit-report/internal/errors"
)

// MemoryStore implements the jobs, students and reports repositories in
// process memory. Reads return copies taken under the lock, so readers never
// observe a half-applied write. It backs STORE_BACKEND=memory and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[uuid.UUID]*domain.Job
	students map[string]*domain.Student // by email
	rolls    map[string]string          // roll number -> email
	reports  map[uuid.UUID][]*domain.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[uuid.UUID]*domain.Job),
		students: make(map[string]*domain.Student),
		rolls:    make(map[string]string),
		reports:  make(map[uuid.UUID][]*domain.Report),
	}
}

// Jobs, Students and Reports expose the store through the per-aggregate
// repository interfaces.
func (m *MemoryStore) Jobs() *MemoryJobs { return &MemoryJobs{m} }
func (m *MemoryStore) Students() *MemoryStudents { return &MemoryStudents{m} }
func (m *MemoryStore) Reports() *MemoryReports { return &MemoryReports{m} }

// Ping satisfies the readiness checker.
func (m *MemoryStore) Ping(context.Context) error { return nil }

type MemoryJobs struct{ m *MemoryStore }

func (r *MemoryJobs) Create(_ context.Context, j *domain.Job) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.jobs[j.ID]; ok {
		return apperrors.Conflict("id", fmt.Sprintf("job %s already exists", j.ID))
	}
	r.m.jobs[j.ID] = j.Clone()
	return nil
}

func (r *MemoryJobs) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	j, ok := r.m.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return j.Clone(), nil
}

func (r *MemoryJobs) ListRecent(_ context.Context, limit int) ([]*domain.Job, error) {
	r.m.mu.RLock()
	out := make([]*domain.Job, 0, len(r.m.jobs))
	for _, j := range r.m.jobs {
		out = append(out, j.Clone())
	}
	r.m.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID.String() < out[b].ID.String()
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// processing returns the live job or the error a conditional update gets.
// Callers hold the write lock.
func (r *MemoryJobs) processing(id uuid.UUID) (*domain.Job, error) {
	j, ok := r.m.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if j.Status != domain.JobStatusProcessing {
		return nil, apperrors.Conflict("status", fmt.Sprintf("job %s is already %s", id, j.Status))
	}
	return j, nil
}

func (r *MemoryJobs) AppendResult(_ context.Context, id uuid.UUID, res domain.StudentResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, err := r.processing(id)
	if err != nil {
		return err
	}
	j.Results = append(j.Results, res)
	j.ProcessedStudents++
	return nil
}

func (r *MemoryJobs) Complete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, err := r.processing(id)
	if err != nil {
		return err
	}
	j.Status = domain.JobStatusCompleted
	j.CompletedAt = &at
	return nil
}

func (r *MemoryJobs) Fail(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, err := r.processing(id)
	if err != nil {
		return err
	}
	j.Status = domain.JobStatusFailed
	j.Error = reason
	j.CompletedAt = &at
	return nil
}

func (r *MemoryJobs) FailStale(_ context.Context, cutoff time.Time, reason string, at time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, j := range r.m.jobs {
		if j.Status == domain.JobStatusProcessing && j.CreatedAt.Before(cutoff) {
			j.Status = domain.JobStatusFailed
			j.Error = reason
			t := at
			j.CompletedAt = &t
			n++
		}
	}
	return n, nil
}

type MemoryStudents struct{ m *MemoryStore }

func (r *MemoryStudents) GetByEmail(_ context.Context, email string) (*domain.Student, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.students[email]
	if !ok {
		return nil, apperrors.NotFoundf("student %s not found", email)
	}
	return s.Clone(), nil
}

func (r *MemoryStudents) Create(_ context.Context, s *domain.Student) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.students[s.Email]; ok {
		return apperrors.Conflict("email", "email already exists")
	}
	if _, ok := r.m.rolls[s.RollNumber]; ok {
		return apperrors.Conflict("roll_number", "roll_number already exists")
	}
	r.m.students[s.Email] = s.Clone()
	r.m.rolls[s.RollNumber] = s.Email
	return nil
}

type MemoryReports struct{ m *MemoryStore }

func (r *MemoryReports) Create(_ context.Context, rep *domain.Report) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var owner *domain.Student
	for _, s := range r.m.students {
		if s.ID == rep.StudentID {
			owner = s
			break
		}
	}
	if owner == nil {
		return apperrors.NotFoundf("student %s not found", rep.StudentID)
	}
	cp := *rep
	r.m.reports[rep.StudentID] = append(r.m.reports[rep.StudentID], &cp)
	owner.Reports = append(owner.Reports, rep.ID)
	owner.UpdatedAt = rep.CreatedAt
	return nil
}

func (r *MemoryReports) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*domain.Report, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	src := r.m.reports[studentID]
	out := make([]*domain.Report, 0, len(src))
	for _, rep := range src {
		cp := *rep
		out = append(out, &cp)
	}
	return out, nil
}
