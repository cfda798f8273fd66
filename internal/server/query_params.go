package server

import (
	"errors"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// listQuery is the shared query string of the document list routes.
type listQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	From      string `form:"from"`
	To        string `form:"to"`
	Status    string `form:"status"`
	Query     string `form:"q"`
}

// parseOptionalTime accepts RFC3339 or a bare date. Bare dates are read in
// loc and widened to the whole day when endOfDay is set.
func parseOptionalTime(value string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if parsed, err := time.ParseInLocation(dateOnlyLayout, trimmed, loc); err == nil {
		if endOfDay {
			parsed = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseStatusList splits a comma separated status list. Blank entries are
// dropped.
func parseStatusList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (q listQuery) dateRange(loc *time.Location) (*time.Time, *time.Time, error) {
	from, err := parseOptionalTime(q.From, false, loc)
	if err != nil {
		return nil, nil, newValidationError("from", "invalid_from", "invalid from")
	}
	to, err := parseOptionalTime(q.To, true, loc)
	if err != nil {
		return nil, nil, newValidationError("to", "invalid_to", "invalid to")
	}
	return from, to, nil
}
