// Package filter holds the closed set of list filters shared by document
// listings. Filters combine with AND.
package filter

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Filter is implemented only by the types in this package.
type Filter interface {
	isFilter()
}

// DateRange matches rows created in [From, To). A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// StatusSet matches rows whose status is any of the values.
type StatusSet struct {
	Statuses []string
}

// TextSearch matches rows where any searchable column contains Query,
// ignoring case.
type TextSearch struct {
	Query string
}

func (DateRange) isFilter()  {}
func (StatusSet) isFilter()  {}
func (TextSearch) isFilter() {}

// Columns names the columns a listing exposes to each filter kind.
type Columns struct {
	Date   string
	Status string
	Text   []string
}

// Apply narrows stmt by every filter.
func Apply(stmt *gorm.DB, cols Columns, filters ...Filter) (*gorm.DB, error) {
	for _, f := range filters {
		switch v := f.(type) {
		case DateRange:
			if !v.From.IsZero() && !v.To.IsZero() && !v.From.Before(v.To) {
				return nil, fmt.Errorf("%w: from must be before to", ErrInvalidFilter)
			}
			if !v.From.IsZero() {
				stmt = stmt.Where(cols.Date+" >= ?", v.From.UTC())
			}
			if !v.To.IsZero() {
				stmt = stmt.Where(cols.Date+" < ?", v.To.UTC())
			}
		case StatusSet:
			if len(v.Statuses) == 0 {
				continue
			}
			stmt = stmt.Where(cols.Status+" IN ?", v.Statuses)
		case TextSearch:
			query := strings.ToLower(strings.TrimSpace(v.Query))
			if query == "" || len(cols.Text) == 0 {
				continue
			}
			pattern := "%" + escapeLike(query) + "%"
			clauses := make([]string, 0, len(cols.Text))
			args := make([]any, 0, len(cols.Text))
			for _, col := range cols.Text {
				clauses = append(clauses, "LOWER("+col+") LIKE ? ESCAPE '\\'")
				args = append(args, pattern)
			}
			stmt = stmt.Where("("+strings.Join(clauses, " OR ")+")", args...)
		case nil:
			continue
		default:
			return nil, fmt.Errorf("%w: %T", ErrInvalidFilter, f)
		}
	}
	return stmt, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
