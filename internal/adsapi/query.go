package adsapi

import (
	"errors"
	"fmt"
	"strings"
)

// Date ranges accepted by reporting queries.
const (
	DateRangeLast7Days  = "LAST_7_DAYS"
	DateRangeLast14Days = "LAST_14_DAYS"
	DateRangeLast30Days = "LAST_30_DAYS"
	DateRangeLast90Days = "LAST_90_DAYS"
	DateRangeThisMonth  = "THIS_MONTH"
	DateRangeLastMonth  = "LAST_MONTH"
	DateRangeToday      = "TODAY"
	DateRangeYesterday  = "YESTERDAY"
)

var validDateRanges = map[string]bool{
	DateRangeLast7Days:  true,
	DateRangeLast14Days: true,
	DateRangeLast30Days: true,
	DateRangeLast90Days: true,
	DateRangeThisMonth:  true,
	DateRangeLastMonth:  true,
	DateRangeToday:      true,
	DateRangeYesterday:  true,
}

// ValidDateRange reports whether r is a predefined relative date range.
func ValidDateRange(r string) bool {
	return validDateRanges[r]
}

// Query describes a report request: the resource to read, the attribute
// and metric fields to select, and either explicit constraints, a relative
// date range, or both.
type Query struct {
	Entity      string
	Attributes  []string
	Metrics     []string
	Constraints []string
	DateRange   string
	OrderBy     string
	Limit       int
}

// ErrEmptyQuery is returned when a query names no resource or no fields.
var ErrEmptyQuery = errors.New("query needs an entity and at least one field")

// GAQL renders the query in the ads query language.
func (q Query) GAQL() (string, error) {
	fields := append(append([]string{}, q.Attributes...), q.Metrics...)
	if q.Entity == "" || len(fields) == 0 {
		return "", ErrEmptyQuery
	}
	if q.DateRange != "" && !ValidDateRange(q.DateRange) {
		return "", fmt.Errorf("unsupported date range %q", q.DateRange)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Entity)

	where := append([]string{}, q.Constraints...)
	if q.DateRange != "" {
		where = append(where, "segments.date DURING "+q.DateRange)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), nil
}

// In builds a "field IN ('a', 'b')" constraint with quoted literals.
func In(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ", "))
}

// OnDate builds a single-day constraint on segments.date.
func OnDate(day string) string {
	return fmt.Sprintf("segments.date = %s", Quote(day))
}

// Quote returns s as a single-quoted string literal.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
