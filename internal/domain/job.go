package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type ResultStatus string

const (
	ResultSuccess        ResultStatus = "Success"
	ResultPartialSuccess ResultStatus = "Partial Success"
	ResultFailure        ResultStatus = "Failure"
	ResultProcessing     ResultStatus = "Processing"
)

// StudentResult is the outcome of one roster record. It is appended to the
// owning Job once and never edited afterwards.
type StudentResult struct {
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	RollNumber  string       `json:"rollNumber"`
	Status      ResultStatus `json:"status"`
	PDFPath     string       `json:"pdfPath,omitempty"`
	EmailSent   bool         `json:"emailSent"`
	Error       string       `json:"error,omitempty"`
	ProcessedAt time.Time    `json:"processedAt"`
}

// Job tracks one submitted batch. ProcessedStudents always equals
// len(Results); stores update both in a single write.
type Job struct {
	ID                   uuid.UUID       `json:"jobId"`
	Status               JobStatus       `json:"status"`
	TotalStudents        int             `json:"totalStudents"`
	ProcessedStudents    int             `json:"processedStudents"`
	JobDescriptionTitle  string          `json:"jobDescriptionTitle"`
	JobDescriptionLength int             `json:"jobDescriptionLength"`
	Error                string          `json:"error,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`
	Results              []StudentResult `json:"results"`
}

// NewJob builds a Job in the processing state for a roster of total records.
// Title and length both count characters (runes), not bytes.
func NewJob(total int, jobDescription string, now time.Time) *Job {
	return &Job{
		ID:                   uuid.New(),
		Status:               JobStatusProcessing,
		TotalStudents:        total,
		JobDescriptionTitle:  JobTitle(jobDescription),
		JobDescriptionLength: utf8.RuneCountInString(jobDescription),
		CreatedAt:            now,
		Results:              []StudentResult{},
	}
}

// JobTitle derives the display title from the first line of the first 100
// characters of a job description.
func JobTitle(jobDescription string) string {
	head := jobDescription
	if r := []rune(head); len(r) > 100 {
		head = string(r[:100])
	}
	line, _, _ := strings.Cut(head, "\n")
	return strings.TrimSpace(line)
}

// Clone returns a deep copy so readers never share the Results backing array
// with the writer.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Results = append([]StudentResult(nil), j.Results...)
	if out.Results == nil {
		out.Results = []StudentResult{}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
