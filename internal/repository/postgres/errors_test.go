package postgres

import (
	"errors"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestWrapDBErr(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, repository.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, repository.ErrConflict},
		{"connection exception", &pgconn.PgError{Code: "08006"}, repository.ErrUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, repository.ErrUnavailable},
		{"dial failure", dial, repository.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapDBErr("op", tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "op")
		})
	}

	assert.NoError(t, wrapDBErr("op", nil))

	other := wrapDBErr("op", &pgconn.PgError{Code: "22P02"})
	assert.False(t, repository.IsUnavailable(other))
	assert.NotErrorIs(t, other, repository.ErrConflict)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(wrapDBErr("op", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("x")))
}
