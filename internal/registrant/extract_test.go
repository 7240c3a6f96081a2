package registrant

import (
	"testing"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var billing = domain.BillingContact{
	FirstName: "Anna",
	LastName:  "Muster",
	Email:     "anna@example.com",
	Phone:     "+41 79 000 00 00",
}

func TestExtractIndexed(t *testing.T) {
	item := domain.LineItem{ID: 7, Quantity: 2, Metadata: map[string]string{
		"participant_first_name_1": "Lea",
		"participant_last_name_1":  "Muster",
		"participant_age_1":        "9",
		"participant_first_name_2": "Nico",
		"Participant_Gender_2":     "m",
	}}

	e := NewExtractor()

	s0, err := e.Extract(item, 0, billing)
	require.NoError(t, err)
	assert.True(t, s0.Present)
	assert.Equal(t, "Lea", s0.Registrant.FirstName)
	assert.Equal(t, "9", s0.Registrant.Age)
	assert.Equal(t, "indexed:participant", s0.Sources[FirstName])

	s1, err := e.Extract(item, 1, billing)
	require.NoError(t, err)
	assert.Equal(t, "Nico", s1.Registrant.FirstName)
	assert.Equal(t, "m", s1.Registrant.Gender)
	assert.Equal(t, NoPlayer, s1.AssignedPlayer)
}

func TestExtractPriority(t *testing.T) {
	item := domain.LineItem{Metadata: map[string]string{
		"players[0][first_name]": "Old",
		"child_first_name_1":     "New",
	}}

	s, err := NewExtractor().Extract(item, 0, billing)
	require.NoError(t, err)
	assert.Equal(t, "New", s.Registrant.FirstName)
	assert.Equal(t, "indexed:child", s.Sources[FirstName])
}

func TestExtractLegacyConventions(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		slot int
		want string
	}{
		{"bracketed", map[string]string{"players[1][first_name]": "Mia"}, 1, "Mia"},
		{"labelled", map[string]string{"Child 2 First Name": "Tim"}, 1, "Tim"},
		{"unindexed", map[string]string{"child_first_name": "Ben"}, 0, "Ben"},
		{"full name split", map[string]string{"child_name_1": "Eva Maria Keller"}, 0, "Eva"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewExtractor().Extract(domain.LineItem{Metadata: tt.meta}, tt.slot, billing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Registrant.FirstName)
		})
	}
}

func TestExtractUnindexedOnlyFirstSlot(t *testing.T) {
	item := domain.LineItem{Metadata: map[string]string{"child_first_name": "Ben"}}

	s, err := NewExtractor().Extract(item, 1, billing)
	require.NoError(t, err)
	assert.False(t, s.Present)
	assert.Empty(t, s.Registrant.FirstName)
}

func TestExtractGuardianFallback(t *testing.T) {
	item := domain.LineItem{Metadata: map[string]string{
		"child_first_name_1":   "Lea",
		"child_parent_phone_1": "+41 44 111 11 11",
	}}

	s, err := NewExtractor().Extract(item, 0, billing)
	require.NoError(t, err)
	assert.Equal(t, "Anna Muster", s.Registrant.GuardianName)
	assert.Equal(t, "anna@example.com", s.Registrant.GuardianEmail)
	assert.Equal(t, "+41 44 111 11 11", s.Registrant.GuardianPhone)
}

func TestExtractAssignedPlayer(t *testing.T) {
	item := domain.LineItem{Metadata: map[string]string{"participant_player_index_1": "2"}}

	s, err := NewExtractor().Extract(item, 0, billing)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AssignedPlayer)

	item.Metadata["participant_player_index_1"] = "x"
	_, err = NewExtractor().Extract(item, 0, billing)
	assert.Error(t, err)
}

func TestExtractorWithAppends(t *testing.T) {
	custom := Indexed("kid")
	item := domain.LineItem{Metadata: map[string]string{"kid_first_name_1": "Ola"}}

	s, err := NewExtractor().Extract(item, 0, billing)
	require.NoError(t, err)
	assert.False(t, s.Present)

	s, err = NewExtractor().With(custom).Extract(item, 0, billing)
	require.NoError(t, err)
	assert.Equal(t, "Ola", s.Registrant.FirstName)
}

func TestCount(t *testing.T) {
	n, err := Count(domain.LineItem{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Count(domain.LineItem{Quantity: 1, Metadata: map[string]string{"_registrant_count": "3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Count(domain.LineItem{Quantity: 2, Metadata: map[string]string{"participants": "0"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Count(domain.LineItem{ID: 9, Quantity: 1, Metadata: map[string]string{"participants": "two"}})
	assert.ErrorContains(t, err, "item 9")
}

func TestCapacityHold(t *testing.T) {
	assert.True(t, CapacityHold(domain.LineItem{Metadata: map[string]string{"_capacity_hold": "yes"}}))
	assert.False(t, CapacityHold(domain.LineItem{Metadata: map[string]string{"_capacity_hold": "no"}}))
	assert.False(t, CapacityHold(domain.LineItem{}))
}
