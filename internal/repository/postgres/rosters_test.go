package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestUpsertSQLKeepsCompletion(t *testing.T) {
	assert.Contains(t, upsertSQL, "ON CONFLICT (order_id, order_item_id, registrant_slot_index) DO UPDATE")
	assert.Contains(t, upsertSQL, "rosters.event_completed OR EXCLUDED.event_completed")
	assert.NotContains(t, upsertSQL, "order_id = EXCLUDED.order_id")
	assert.Equal(t, 1, strings.Count(upsertSQL, "event_completed = "))
	assert.Contains(t, upsertSQL, "$32")
	assert.NotContains(t, upsertSQL, "$33")
}

func TestRosterArgsMatchColumns(t *testing.T) {
	args := rosterArgs(domain.RosterEntry{
		NaturalKey: domain.NaturalKey{OrderID: 1, OrderItemID: 2, RegistrantSlotIndex: 3},
		OrderDate:  time.Now(),
	})

	assert.Len(t, args, len(rosterColumns))
	assert.Nil(t, args[25], "zero start date is stored as NULL")
	assert.Nil(t, args[30], "absent pricing is stored as NULL")
}
