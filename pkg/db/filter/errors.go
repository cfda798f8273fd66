package filter

import "errors"

var ErrInvalidFilter = errors.New("invalid_filter")
