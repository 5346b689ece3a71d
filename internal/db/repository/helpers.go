// Package repository implements the trip cache's persistence layer:
// normalized entity storage, trip graph write/read, garbage collection,
// and stored searches.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tripstore/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the entity store
// can run inside a caller's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapDBError translates low-level sql errors into domain errors. Unique
// violations reaching this point are unexpected (upserts absorb the
// identity-key conflict) and therefore integrity errors.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("record not found")
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return domain.ErrIntegrity(err, "constraint violation")
	}
	return err
}

// millis converts an optional time to epoch-millisecond storage form.
func millis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// millisValue is millis for a required timestamp; the zero time stores NULL.
func millisValue(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func timeValueFromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// jsonText marshals v into a nullable TEXT column; nil or empty slices
// store NULL.
func jsonText(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case []domain.Point:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case []int:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func jsonInto(v sql.NullString, dst any) error {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}
