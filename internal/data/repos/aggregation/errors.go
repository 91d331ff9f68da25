package aggregation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the addressed row does not exist.
	ErrNotFound = errors.New("store not found")
	// ErrConflict indicates a uniqueness or concurrency conflict.
	ErrConflict = errors.New("store conflict")
	// ErrRetryable indicates a transient failure worth retrying.
	ErrRetryable = errors.New("store retryable")
	// ErrInternal is everything else.
	ErrInternal = errors.New("store internal")
)

// MapError tags an infrastructure failure with its class, keeping the cause.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrRetryable) || errors.Is(err, ErrInternal) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Join(ErrNotFound, wrapped)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrRetryable, wrapped)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return errors.Join(ErrConflict, wrapped) // unique_violation
		case "40001", "40P01", "55P03":
			return errors.Join(ErrRetryable, wrapped) // serialization/deadlock/lock_not_available
		case "08000", "08003", "08006", "57P01":
			return errors.Join(ErrRetryable, wrapped) // connection lost/admin shutdown
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return errors.Join(ErrConflict, wrapped)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "temporar"):
		return errors.Join(ErrRetryable, wrapped)
	default:
		return errors.Join(ErrInternal, wrapped)
	}
}

// IsRetryable reports whether a mapped error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
