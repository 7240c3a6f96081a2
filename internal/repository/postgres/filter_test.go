package postgres

import (
	"testing"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRosterWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter domain.RosterFilter
		offset int
		want   string
		args   int
	}{
		{"empty matches nothing", domain.RosterFilter{}, 0, "WHERE FALSE", 0},
		{"all", domain.RosterFilter{All: true}, 0, "", 0},
		{"orders", domain.RosterFilter{OrderIDs: []int64{1, 2}}, 0, "WHERE order_id = ANY($1)", 1},
		{
			"combined with offset",
			domain.RosterFilter{EventSignature: "abc", OrderDateFrom: &from},
			2,
			"WHERE event_signature = $3 AND order_date >= $4",
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := rosterWhere(tt.filter, tt.offset)
			assert.Equal(t, tt.want, got)
			assert.Len(t, args, tt.args)
		})
	}
}
