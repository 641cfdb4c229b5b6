package gorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned on a unique constraint violation.
	ErrDuplicate = errors.New("document already exists")
	// ErrUnavailable marks connection-level failures that may succeed on retry.
	ErrUnavailable = errors.New("database unavailable")
)

// Postgres SQLSTATE codes the store distinguishes.
const (
	codeUniqueViolation = "23505"
	codeAdminShutdown   = "57P01"
	codeCannotConnect   = "57P03"
	classConnection     = "08"
)

// classify maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case pgErr.Code == codeAdminShutdown, pgErr.Code == codeCannotConnect,
			strings.HasPrefix(pgErr.Code, classConnection):
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// IsRetryable reports whether err is a transient connection failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// clampPage normalizes paging arguments.
func clampPage(offset, limit, maxLimit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
