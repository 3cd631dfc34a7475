package sqlutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Helper functions for converting between Go types and nullable pgtype values

// ToPgUUID converts a Go UUID pointer to pgtype.UUID
func ToPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// FromPgUUID converts pgtype.UUID to a Go UUID pointer
func FromPgUUID(val pgtype.UUID) *uuid.UUID {
	if !val.Valid {
		return nil
	}
	id := uuid.UUID(val.Bytes)
	return &id
}

// ToPgTimestamptz converts a Go time pointer to pgtype.Timestamptz
func ToPgTimestamptz(val *time.Time) pgtype.Timestamptz {
	if val == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *val, Valid: true}
}

// FromPgTimestamptz converts pgtype.Timestamptz to a Go time pointer
func FromPgTimestamptz(val pgtype.Timestamptz) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

// ToPgText converts a Go string pointer to pgtype.Text
func ToPgText(val *string) pgtype.Text {
	if val == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *val, Valid: true}
}

// FromPgText converts pgtype.Text to a Go string pointer
func FromPgText(val pgtype.Text) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}

// FromPgTextDefault converts pgtype.Text to a Go string with default
func FromPgTextDefault(val pgtype.Text, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// ParseAmount reads a numeric column selected as text.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// AmountParam renders an amount for a numeric parameter.
func AmountParam(d decimal.Decimal) string {
	return d.StringFixed(2)
}
