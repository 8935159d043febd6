package usecase

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"fit-report/pkg/extract"
)

// Roster column names.
const (
	ColName       = "Name"
	ColEmail      = "Email"
	ColRollNumber = "Roll_Number"
	ColID         = "ID"
	ColStudentID  = "StudentID"
)

const (
	missingDataMessage = "Missing required student data"
	unknownName        = "Unknown"
	unknownEmail       = "unknown@example.com"
	unknownRollNumber  = "unknown"
)

// ErrMissingRequiredFields rejects a record without a Name or Email.
var ErrMissingRequiredFields = errors.New("missing required student data (Name or Email)")

// ValidateRecord checks the mandatory fields. Whitespace-only counts as
// missing.
func ValidateRecord(rec extract.Record) error {
	if rec.Get(ColName) == "" || rec.Get(ColEmail) == "" {
		return ErrMissingRequiredFields
	}
	return nil
}

// IdentityResolver derives roll numbers for the records of one batch.
// It is not safe for concurrent use; each batch owns one.
type IdentityResolver struct {
	issued map[string]struct{}
	now    func() time.Time
	intn   func(n int) int
}

func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{
		issued: make(map[string]struct{}),
		now:    time.Now,
		intn:   rand.IntN,
	}
}

// Resolve returns the first non-blank of Roll_Number, ID and StudentID, or a
// synthesized "student-<unix millis>-<n>" id not yet issued in this batch.
func (r *IdentityResolver) Resolve(rec extract.Record) string {
	if id := rec.First(ColRollNumber, ColID, ColStudentID); id != "" {
		r.issued[id] = struct{}{}
		return id
	}
	for {
		id := fmt.Sprintf("student-%d-%d", r.now().UnixMilli(), r.intn(1000))
		if _, taken := r.issued[id]; !taken {
			r.issued[id] = struct{}{}
			return id
		}
	}
}

// normalizeEmail is the lookup key for students.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
