package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	found := Classify(42, nil)
	v, ok := found.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.NoError(t, found.Err())

	missing := Classify(0, fmt.Errorf("postgres.OrderRepo.Get: %w", ErrNotFound))
	assert.True(t, missing.IsNotFound())
	assert.False(t, missing.IsFound())
	assert.NoError(t, missing.Err(), "not found is not an error")

	boom := errors.New("boom")
	failed := Classify(0, boom)
	assert.False(t, failed.IsFound())
	assert.False(t, failed.IsNotFound())
	assert.ErrorIs(t, failed.Err(), boom)
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, IsUnavailable(fmt.Errorf("op: %w", ErrUnavailable)))
	assert.False(t, IsUnavailable(ErrNotFound))
}
