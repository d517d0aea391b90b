/*
Package factory converts raw store rows into canonical payout types.

PURPOSE:
  The legacy tables were filled by spreadsheets and several generations of
  import scripts, so the same column shows up under different names
  ("usuario", "username", "nick") and numbers arrive as text, blanks or
  "NaN". This package is the single ingestion boundary: every variant is
  mapped once here, and nothing downstream probes for alternatives.

COERCION POLICY:
  Numeric fields are coerced permissively. Anything that does not parse
  (including NaN and infinities) becomes 0, and negative activity values
  are clamped to 0. Coercion never returns an error.

SEPARATORS:
  A comma is a decimal separator only when it is the only separator in
  the number and at most two digits follow it ("12,5", "210,40"). With
  both "." and "," present the last one is the decimal separator
  ("1.234,56", "1,234.56"). Any other comma groups thousands and is
  dropped ("1,000", "1,234,567").

TIMES:
  Timestamps keep the offset they were written with, so a month stamped
  "2025-09-01T00:00:00+02:00" stays September.

FLAGS:
  String booleans ("SI", "sí", "YES", "TRUE", "1") are parsed by ParseFlag
  only; callers get a real bool.

SEE ALSO:
  - records.go: Row -> payout types
  - store/sqlite: Scans rows into Row before calling this package
*/
package factory

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Row is one raw store row keyed by column name.
type Row map[string]any

// normalizeKey lowercases and trims a column name so lookups ignore
// cosmetic differences ("Dias " == "dias").
func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Normalize returns a copy of r with normalized column names. On collision
// the first non-empty value wins.
func (r Row) Normalize() Row {
	out := make(Row, len(r))
	for k, v := range r {
		nk := normalizeKey(k)
		if prev, ok := out[nk]; ok && !isBlank(prev) {
			continue
		}
		out[nk] = v
	}
	return out
}

// first returns the first present, non-blank value among candidate columns.
// The row must already be normalized.
func (r Row) first(candidates ...string) (any, bool) {
	for _, c := range candidates {
		if v, ok := r[c]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return strings.TrimSpace(string(x)) == ""
	}
	return false
}

func unwrapBytes(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// =============================================================================
// COERCION
// =============================================================================

// CoerceFloat converts v to a finite float64, 0 when it cannot.
func CoerceFloat(v any) float64 {
	v = unwrapBytes(v)
	if s, ok := v.(string); ok {
		v = normalizeNumber(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// normalizeNumber rewrites a numeric string to use "." as the only decimal
// separator and no grouping.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	comma := strings.LastIndex(s, ",")
	if comma < 0 {
		return s
	}
	if dot := strings.LastIndex(s, "."); dot >= 0 {
		if dot > comma {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	}
	if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
		return strings.Replace(s, ",", ".", 1)
	}
	return strings.ReplaceAll(s, ",", "")
}

// CoerceInt64 converts v to an int64, truncating fractions; 0 when it cannot.
func CoerceInt64(v any) int64 {
	f := CoerceFloat(v)
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}

// CoerceCount is CoerceInt64 clamped to >= 0.
func CoerceCount(v any) int64 {
	n := CoerceInt64(v)
	if n < 0 {
		return 0
	}
	return n
}

// CoerceMeasure is CoerceFloat clamped to >= 0.
func CoerceMeasure(v any) float64 {
	f := CoerceFloat(v)
	if f < 0 {
		return 0
	}
	return f
}

// CoerceDecimal converts v to a decimal, zero when it cannot.
func CoerceDecimal(v any) decimal.Decimal {
	v = unwrapBytes(v)
	switch x := v.(type) {
	case decimal.Decimal:
		return x
	case string:
		d, err := decimal.NewFromString(normalizeNumber(x))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	f := CoerceFloat(v)
	return decimal.NewFromFloat(f)
}

// CoerceString converts v to a trimmed string. Numeric ids stored as
// floats ("7.0123e+18") are rendered without exponent or fraction.
func CoerceString(v any) string {
	v = unwrapBytes(v)
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return decimal.NewFromFloat(x).String()
		}
	}
	return strings.TrimSpace(cast.ToString(v))
}

// CoerceTime converts v to a time; zero time when it cannot.
func CoerceTime(v any) time.Time {
	v = unwrapBytes(v)
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return time.Time{}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// =============================================================================
// FLAGS
// =============================================================================

var truthy = map[string]bool{
	"si":   true,
	"sí":   true,
	"s":    true,
	"yes":  true,
	"y":    true,
	"true": true,
	"t":    true,
	"1":    true,
	"on":   true,
}

// ParseFlag turns a stored flag into a bool. Anything not recognized as
// true is false.
func ParseFlag(v any) bool {
	v = unwrapBytes(v)
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(x))]
	}
	b, err := cast.ToBoolE(v)
	return err == nil && b
}
