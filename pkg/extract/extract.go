// Package extract turns uploaded documents into plain text and rosters into
// records.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
)

// Format is a supported job-description document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for any extension outside the mapping
// below, including legacy .doc files.
var ErrUnsupportedFormat = errors.New("unsupported job description file format")

var formatsByExt = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".txt":  FormatTXT,
}

// DetectFormat maps an uploaded filename to its Format. The extension is
// authoritative; contentType only breaks the tie for extensionless uploads.
func DetectFormat(filename, contentType string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := formatsByExt[ext]; ok {
		return f, nil
	}
	if ext == "" {
		switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
		case "application/pdf":
			return FormatPDF, nil
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return FormatDOCX, nil
		case "text/plain":
			return FormatTXT, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// ParseError reports a failure to read a document of a given format.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing %s: %v", strings.ToUpper(string(e.Format)), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractText reads the file at path and returns its text content.
func ExtractText(path string, format Format) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Format: format, Err: err}
	}
	var text string
	switch format {
	case FormatPDF:
		text, err = textFromPDF(data)
	case FormatDOCX:
		text, err = textFromDocx(data)
	case FormatTXT:
		text, err = textFromTXT(data)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", &ParseError{Format: format, Err: err}
	}
	return text, nil
}

func textFromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	rs, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err = io.Copy(&buf, rs); err != nil {
		return "", err
	}
	return normalizeWhitespace(buf.String()), nil
}

func textFromTXT(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8")
	}
	return string(data), nil
}

var (
	reSpaces   = regexp.MustCompile(`[ \t\r\f\v]+`)
	reNewlines = regexp.MustCompile(`\n+`)
)

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reNewlines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
