package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("access denied")
	ErrNotPending       = errors.New("reminder is not pending")
	ErrPermissionDenied = errors.New("notification permission denied")
)
