package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError values:
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict with Field set to the column
//   - check / not-null violations → Validation
//   - context deadline / cancel → Timeout / Canceled
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database call timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database call canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := uniqueViolationField(pgErr)
		msg := "value already exists"
		if field != "" {
			msg = field + " already exists"
		}
		return &AppError{Code: ErrCodeConflict, Message: msg, Field: field, Cause: pgErr}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "invalid value", Field: pgErr.ColumnName, Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}

// uniqueViolationField prefers ColumnName, then the Detail message, then the
// constraint name ("students_email_key" → "email").
func uniqueViolationField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return inferFieldFromConstraint(pgErr.ConstraintName)
}

// inferFieldFromConstraint handles the "<table>_<column>_key" naming that
// Postgres uses for UNIQUE column constraints. Table and column names may
// contain underscores, so the table prefix is matched against known tables.
func inferFieldFromConstraint(name string) string {
	name = strings.TrimSuffix(name, "_key")
	for _, table := range []string{"students_", "reports_", "jobs_"} {
		if strings.HasPrefix(name, table) {
			return strings.TrimPrefix(name, table)
		}
	}
	return ""
}
