package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Error classes. Every error returned by a repository matches at most one of
// them through errors.Is.
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrTransient marks connection-class failures that are worth retrying
	ErrTransient = errors.New("transient database error")

	// ErrIntegrity marks constraint violations
	ErrIntegrity = errors.New("integrity constraint violation")
)

// constraintError is a specific integrity failure that also matches ErrIntegrity
type constraintError struct {
	msg string
}

func (e *constraintError) Error() string { return e.msg }

func (e *constraintError) Is(target error) bool { return target == ErrIntegrity }

// Specific constraint violations
var (
	ErrDuplicateUsername      error = &constraintError{"user with this username already exists"}
	ErrDuplicateEmail         error = &constraintError{"user with this email already exists"}
	ErrDuplicateToken         error = &constraintError{"token with this hash already exists"}
	ErrDuplicateOAuthProvider error = &constraintError{"oauth provider connection already exists"}
	ErrDuplicateSession       error = &constraintError{"payment session already exists"}
)

const uniqueViolation = "23505"

// IsTransient reports whether err was classified as transient
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classify wraps err with its error class
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if isTransientCause(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}

	return err
}

// uniqueConstraint returns the violated unique constraint name, if any
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"): // connection exception
			return true
		case strings.HasPrefix(code, "53"): // insufficient resources
			return true
		case strings.HasPrefix(code, "57P0"): // admin shutdown, crash shutdown, cannot connect now
			return true
		case code == "40001", code == "40P01": // serialization failure, deadlock
			return true
		}
	}

	return false
}
