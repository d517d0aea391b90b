package payout

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - A reporting month
// =============================================================================

// Period is a calendar month. The zero value is not a valid period.
// Always normalized to the first day of the month at 00:00 UTC.
type Period struct {
	t time.Time
}

const periodLayout = "2006-01-02"

// NewPeriod returns the period for year/month.
func NewPeriod(year int, month time.Month) Period {
	return Period{t: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

// PeriodOf returns the period containing t, read in t's own location.
func PeriodOf(t time.Time) Period {
	return NewPeriod(t.Year(), t.Month())
}

// ParsePeriod accepts "2025-09-01", "2025-09", "2025-09-01 00:00:00" and
// RFC3339 timestamps. Any day inside the month maps to the month; an
// offset is kept, so "2025-09-01T00:00:00+02:00" is September.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{periodLayout, "2006-01", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return PeriodOf(t), nil
		}
	}
	return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

func (p Period) Year() int { return p.t.Year() }
func (p Period) Month() time.Month { return p.t.Month() }
func (p Period) Start() time.Time { return p.t }
func (p Period) IsZero() bool { return p.t.IsZero() }
func (p Period) Equal(o Period) bool { return p.t.Equal(o.t) }
func (p Period) Before(o Period) bool { return p.t.Before(o.t) }

// End returns the last day of the month.
func (p Period) End() time.Time {
	return p.t.AddDate(0, 1, -1)
}

// Next returns the following month.
func (p Period) Next() Period { return Period{t: p.t.AddDate(0, 1, 0)} }

// String returns the storage key form, "2025-09-01".
func (p Period) String() string {
	return p.t.Format(periodLayout)
}

var monthNamesES = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// Label returns the Spanish display label, e.g. "Septiembre 2025".
func (p Period) Label() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", monthNamesES[p.t.Month()-1], p.t.Year())
}

// MarshalText encodes the period as "2025-09-01".
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts every layout ParsePeriod accepts.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
