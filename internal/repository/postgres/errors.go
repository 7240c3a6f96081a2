package postgres

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/roster-go/internal/repository"
)

// wrapDBErr maps driver errors to repository-level errors and wraps them
// with the operation name. Connection failures become ErrUnavailable so
// batch jobs can tell an outage from a bad row.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch {
		case pge.Code == "23505":
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		case strings.HasPrefix(pge.Code, "08"), pge.Code == "57P01", pge.Code == "57P03", pge.Code == "53300":
			return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isConnErr(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isConnErr(err error) bool {
	var ce *pgconn.ConnectError
	if errors.As(err, &ce) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}
