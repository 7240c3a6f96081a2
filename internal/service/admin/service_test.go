package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sig = "0123456789abcdef0123456789abcdef"

type recordingInvalidator struct{ sigs []string }

func (r *recordingInvalidator) InvalidateRosters(ctx context.Context, orderIDs []int64, sigs []string) error {
	r.sigs = append(r.sigs, sigs...)
	return nil
}

func setup(t *testing.T) (*Service, *memory.Rosters, *recordingInvalidator) {
	t.Helper()

	rosters := memory.NewRosters()
	rosters.Put(
		domain.RosterEntry{NaturalKey: domain.NaturalKey{OrderID: 1, OrderItemID: 1}, EventSignature: sig},
		domain.RosterEntry{NaturalKey: domain.NaturalKey{OrderID: 2, OrderItemID: 2}, EventSignature: sig},
	)
	inv := &recordingInvalidator{}

	return New(rosters, inv, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), rosters, inv
}

func TestSetEventCompletedAndReopen(t *testing.T) {
	svc, rosters, inv := setup(t)
	ctx := context.Background()

	change, err := svc.SetEventCompleted(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, EventChange{EventSignature: sig, Completed: true, Affected: 2}, change)
	assert.Equal(t, []string{sig}, inv.sigs)

	done, err := rosters.CompletedSignatures(ctx, []string{sig})
	require.NoError(t, err)
	assert.True(t, done[sig])

	change, err = svc.ReopenEvent(ctx, sig)
	require.NoError(t, err)
	assert.False(t, change.Completed)

	done, err = rosters.CompletedSignatures(ctx, []string{sig})
	require.NoError(t, err)
	assert.False(t, done[sig])
}

func TestSetEventCompletedErrors(t *testing.T) {
	svc, rosters, inv := setup(t)
	ctx := context.Background()

	_, err := svc.SetEventCompleted(ctx, "not-a-signature")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.SetEventCompleted(ctx, "ffffffffffffffffffffffffffffffff")
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Empty(t, inv.sigs, "no invalidation without a commit")

	rosters.SetUnavailable(true)
	_, err = svc.ReopenEvent(ctx, sig)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}
