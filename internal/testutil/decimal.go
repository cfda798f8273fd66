package testutil

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// AssertDecimal compares by value so 1500 and 1500.0000 are equal.
func AssertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) bool {
	t.Helper()
	expected := decimal.RequireFromString(want)
	if expected.Equal(got) {
		return true
	}
	return assert.Fail(t, "decimal mismatch: want "+expected.String()+", got "+got.String(), msgAndArgs...)
}
