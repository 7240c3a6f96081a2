package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCommit struct{}

func (failingCommit) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit: serialization failure")
}

func TestDoRunsHooksAfterCommit(t *testing.T) {
	var order []string

	err := NewUoW(nil).Do(context.Background(), func(ctx context.Context, after func(AfterCommit)) error {
		after(func(context.Context) { order = append(order, "first") })
		after(func(context.Context) { order = append(order, "second") })
		order = append(order, "body")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"body", "first", "second"}, order)
}

func TestDoSkipsHooksOnFailure(t *testing.T) {
	ran := false
	boom := errors.New("boom")

	err := NewUoW(Immediate{}).Do(context.Background(), func(ctx context.Context, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)

	err = NewUoW(failingCommit{}).Do(context.Background(), func(ctx context.Context, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestHooksOutliveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var hookErr error
	err := NewUoW(nil).Do(ctx, func(ctx context.Context, after func(AfterCommit)) error {
		after(func(ctx context.Context) { hookErr = ctx.Err() })
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, hookErr)
}
