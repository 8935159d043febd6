package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one roster row keyed by header name. Values are trimmed.
type Record map[string]string

// Get returns the trimmed value for key, or "".
func (r Record) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// First returns the first non-blank value among keys.
func (r Record) First(keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Roster is a parsed roster file.
type Roster struct {
	Header  []string
	Records []Record
}

// MissingColumns returns the columns of cols absent from the header.
func (r *Roster) MissingColumns(cols ...string) []string {
	present := make(map[string]bool, len(r.Header))
	for _, h := range r.Header {
		present[h] = true
	}
	var missing []string
	for _, c := range cols {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// ErrEmptyRoster is returned when a roster has a header but no data rows.
var ErrEmptyRoster = errors.New("no student data found in CSV file")

// ParseRoster reads a CSV roster from path.
func ParseRoster(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return ReadRoster(f)
}

// ReadRoster reads a CSV roster. The first row is the header; rows whose cells
// are all blank are skipped. Short rows leave their trailing columns empty.
func ReadRoster(r io.Reader) (*Roster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyRoster
	}
	if err != nil {
		return nil, &ParseError{Format: FormatCSV, Err: err}
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	roster := &Roster{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: FormatCSV, Err: err}
		}
		if blankRow(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			} else {
				rec[h] = ""
			}
		}
		roster.Records = append(roster.Records, rec)
	}
	if len(roster.Records) == 0 {
		return nil, ErrEmptyRoster
	}
	return roster, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
