package repository

import "errors"

// ErrNotFound is returned when no live record exists for a key.
var ErrNotFound = errors.New("not found")
