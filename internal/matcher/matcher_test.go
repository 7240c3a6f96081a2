package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository/memory"
	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchByIndex(t *testing.T) {
	players := []domain.PlayerProfile{{ID: 1, FirstName: "Lea"}, {ID: 2, FirstName: "Nico"}}

	p, ok := MatchByIndex(1, players)
	require.True(t, ok)
	assert.Equal(t, int64(2), p.ID)

	_, ok = MatchByIndex(2, players)
	assert.False(t, ok)
	_, ok = MatchByIndex(-1, players)
	assert.False(t, ok)
	_, ok = MatchByIndex(0, nil)
	assert.False(t, ok)
}

func TestApplyProfileKeepsOrderValues(t *testing.T) {
	r := domain.Registrant{FirstName: "Lea", Medical: "none"}
	p := domain.PlayerProfile{FirstName: "Leonie", LastName: "Keller", BirthDate: "2015-04-02", Medical: "asthma"}

	got := ApplyProfile(r, p)
	assert.Equal(t, "Lea", got.FirstName)
	assert.Equal(t, "Keller", got.LastName)
	assert.Equal(t, "2015-04-02", got.BirthDate)
	assert.Equal(t, "none", got.Medical)
}

func newMatcher(c *memory.Catalog) *EventMatcher {
	return NewEventMatcher(c, signature.New(nil, nil))
}

func TestResolveVariationOverridesProduct(t *testing.T) {
	c := memory.NewCatalog()
	c.PutProduct(domain.EventAttributes{ProductID: 10, ActivityType: "camp", Venue: "Zurich", AgeGroup: "U10", Season: "Summer 2024"})
	c.PutVariation(domain.EventAttributes{VariationID: 11, AgeGroup: "U12", StartDate: time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC)})

	lk := newMatcher(c).Resolve(context.Background(), domain.LineItem{ProductID: 10, VariationID: 11})
	got, ok := lk.Get()
	require.True(t, ok)
	assert.Equal(t, "U12", got.AgeGroup)
	assert.Equal(t, "Zurich", got.Venue)
	assert.Equal(t, int64(11), got.VariationID)
	assert.False(t, got.StartDate.IsZero())
}

func TestResolveNotFound(t *testing.T) {
	lk := newMatcher(memory.NewCatalog()).Resolve(context.Background(), domain.LineItem{ProductID: 99})
	assert.True(t, lk.IsNotFound())
	assert.NoError(t, lk.Err())
}

func TestResolveVariationOnly(t *testing.T) {
	c := memory.NewCatalog()
	c.PutVariation(domain.EventAttributes{VariationID: 5, ActivityType: "course"})

	got, ok := newMatcher(c).Resolve(context.Background(), domain.LineItem{ProductID: 4, VariationID: 5}).Get()
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ProductID)
}

func TestResolveFailure(t *testing.T) {
	c := memory.NewCatalog()
	boom := errors.New("catalog down")
	c.Fail(10, boom)

	lk := newMatcher(c).Resolve(context.Background(), domain.LineItem{ProductID: 10})
	assert.False(t, lk.IsFound())
	assert.False(t, lk.IsNotFound())
	assert.ErrorIs(t, lk.Err(), boom)
}

func TestMatches(t *testing.T) {
	m := newMatcher(memory.NewCatalog())

	a := domain.EventAttributes{ProductID: 1, ActivityType: "Camp", Venue: "Genève", Season: "Summer 2024"}
	b := domain.EventAttributes{ProductID: 1, ActivityType: "camp", Venue: "Geneva", Season: "summer  2024"}
	c := b
	c.Venue = "Basel"

	assert.True(t, m.Matches(a, b))
	assert.False(t, m.Matches(a, c))
	assert.Equal(t, m.Signature(a), m.Signature(b))
}
