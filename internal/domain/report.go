package domain

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Report is one generated fit report. It belongs to exactly one Student and
// references the Job that produced it.
type Report struct {
	ID             uuid.UUID `json:"id"`
	StudentID      uuid.UUID `json:"studentId"`
	JobID          uuid.UUID `json:"jobId"`
	JobTitle       string    `json:"jobTitle"`
	JobDescription string    `json:"jobDescription"`
	PDFPath        string    `json:"pdfPath"`
	LLMResponse    string    `json:"llmResponse"`
	MatchScore     *int      `json:"matchScore,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

var percentRe = regexp.MustCompile(`(\d{1,3})\s?%`)

// ExtractMatchScore returns the first percentage in 0..100 stated in the
// narrative, or nil when there is none.
func ExtractMatchScore(narrative string) *int {
	for _, m := range percentRe.FindAllStringSubmatch(narrative, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 100 {
			continue
		}
		return &n
	}
	return nil
}
