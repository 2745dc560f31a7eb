package repository

import "errors"

// ErrUniqueViolation is returned when a write collides with a uniqueness
// constraint. Callers implementing find-or-create treat it as "already exists".
var ErrUniqueViolation = errors.New("unique constraint violation")
