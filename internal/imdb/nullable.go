package imdb

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
)

// Try-coercion mirrors SQL TRY_CAST: a value that does not parse becomes null
// instead of failing the row.

// TryInt32 coerces a raw field to a nullable 32-bit integer
func TryInt32(raw sql.Null[string]) sql.Null[int32] {
	if !raw.Valid {
		return sql.Null[int32]{}
	}
	v, ok := parseInteger(raw.V, 32)
	if !ok {
		return sql.Null[int32]{}
	}
	return sql.Null[int32]{V: int32(v), Valid: true}
}

// TryInt64 coerces a raw field to a nullable 64-bit integer
func TryInt64(raw sql.Null[string]) sql.Null[int64] {
	if !raw.Valid {
		return sql.Null[int64]{}
	}
	v, ok := parseInteger(raw.V, 64)
	if !ok {
		return sql.Null[int64]{}
	}
	return sql.Null[int64]{V: v, Valid: true}
}

// parseInteger accepts integer text and, like an SQL integer cast, decimal or
// exponent text rounded half away from zero. Values outside the bit size fail.
func parseInteger(s string, bitSize int) (int64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, bitSize); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.Round(f)
	limit := math.Ldexp(1, bitSize-1)
	if r < -limit || r >= limit {
		return 0, false
	}
	return int64(r), true
}

// TryFloat64 coerces a raw field to a nullable finite float
func TryFloat64(raw sql.Null[string]) sql.Null[float64] {
	if !raw.Valid {
		return sql.Null[float64]{}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw.V), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.Null[float64]{}
	}
	return sql.Null[float64]{V: v, Valid: true}
}

// Predicates over nullable values never hold for null, matching SQL comparison semantics.

// Between reports lo <= v <= hi
func Between[T int32 | int64 | float64](v sql.Null[T], lo, hi T) bool {
	return v.Valid && v.V >= lo && v.V <= hi
}

// AtLeast reports v >= lo
func AtLeast[T int32 | int64 | float64](v sql.Null[T], lo T) bool {
	return v.Valid && v.V >= lo
}

// Equals reports v == want
func Equals[T comparable](v sql.Null[T], want T) bool {
	return v.Valid && v.V == want
}

// Value unwraps a nullable into an interface value, nil when null
func Value[T any](v sql.Null[T]) any {
	if !v.Valid {
		return nil
	}
	return v.V
}

// Some wraps a present value
func Some[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}
