package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a service returns on purpose wraps exactly one
// of them; anything else is a system failure.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrAlreadyProcessed = errors.New("report already processed")
)

var (
	ErrReportNotFound  = fmt.Errorf("%w: report", ErrNotFound)
	ErrSubjectNotFound = fmt.Errorf("%w: subject", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)

	ErrDuplicateReport = fmt.Errorf("%w: you already have an open report for this subject", ErrConflict)
	ErrAlreadyBlocked  = fmt.Errorf("%w: user already blocked", ErrConflict)
	ErrNotBlocked      = fmt.Errorf("%w: user is not blocked", ErrConflict)

	ErrSelfReport     = fmt.Errorf("%w: cannot report yourself", ErrValidation)
	ErrBlockAdmin     = fmt.Errorf("%w: admin accounts cannot be blocked", ErrForbidden)
	ErrNotReviewer    = fmt.Errorf("%w: reviewer role required", ErrForbidden)
	ErrAccountBlocked = fmt.Errorf("%w: account is blocked", ErrForbidden)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
