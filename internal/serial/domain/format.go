package domain

import (
	"fmt"
	"time"
)

const dateLayout = "20060102"

// Format renders {prefix}{YYYYMMDD}{seq:03d}. businessDate must already be
// expressed in the business time zone.
//
// Pure: no clock and no database access.
func Format(documentType DocumentType, businessDate time.Time, seq int64) (string, error) {
	prefix, ok := documentType.Prefix()
	if !ok {
		return "", ErrUnknownDocumentType
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, seq)
	}
	return fmt.Sprintf("%s%s%03d", prefix, businessDate.Format(dateLayout), seq), nil
}

// BusinessDate returns the YYYYMMDD key of the business day containing t.
func BusinessDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// BusinessDay returns the UTC bounds [start, end) of the business day that
// contains t.
func BusinessDay(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}
