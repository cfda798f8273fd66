package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrDuplicateKey marks a unique index violation, e.g. two documents racing
// for the same serial number.
var ErrDuplicateKey = errors.New("duplicate_key")

// uniqueViolations are the driver messages for postgres 23505, mysql 1062
// and sqlite 2067.
var uniqueViolations = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicateKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range uniqueViolations {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// TranslateDuplicate wraps unique violations in ErrDuplicateKey and returns
// every other error unchanged.
func TranslateDuplicate(err error) error {
	if err == nil || errors.Is(err, ErrDuplicateKey) || !IsDuplicateKeyErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
}
