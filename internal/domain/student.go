package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "Beginner"
	SkillIntermediate SkillLevel = "Intermediate"
	SkillAdvanced     SkillLevel = "Advanced"
	SkillExpert       SkillLevel = "Expert"
)

// ParseSkillLevel matches s case-insensitively against the known levels.
// Blank or unknown values fall back to Beginner; ok is false for unknown
// non-blank input so callers can log it.
func ParseSkillLevel(s string) (level SkillLevel, ok bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return SkillBeginner, true
	}
	for _, l := range []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced, SkillExpert} {
		if strings.EqualFold(v, string(l)) {
			return l, true
		}
	}
	return SkillBeginner, false
}

type Skill struct {
	Name  string     `json:"name"`
	Level SkillLevel `json:"level"`
}

// Student is keyed by Email; RollNumber is a secondary unique key.
type Student struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	RollNumber     string      `json:"rollNumber"`
	University     string      `json:"university,omitempty"`
	Degree         string      `json:"degree,omitempty"`
	Major          string      `json:"major,omitempty"`
	GraduationYear string      `json:"graduationYear,omitempty"`
	Skills         []Skill     `json:"skills"`
	Reports        []uuid.UUID `json:"reports"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	out := *s
	out.Skills = append([]Skill(nil), s.Skills...)
	out.Reports = append([]uuid.UUID(nil), s.Reports...)
	return &out
}
