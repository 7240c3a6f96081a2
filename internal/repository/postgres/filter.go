package postgres

import (
	"fmt"
	"strings"

	"github.com/kirinyoku/roster-go/internal/domain"
)

// rosterWhere renders f as a WHERE clause with numbered arguments starting
// after the given offset. An empty filter matches nothing.
func rosterWhere(f domain.RosterFilter, offset int) (string, []any) {
	if f.Empty() {
		return "WHERE FALSE", nil
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, offset+len(args)))
	}

	if len(f.OrderIDs) > 0 {
		add("order_id = ANY($%d)", f.OrderIDs)
	}
	if f.EventSignature != "" {
		add("event_signature = $%d", f.EventSignature)
	}
	if f.OrderDateFrom != nil {
		add("order_date >= $%d", *f.OrderDateFrom)
	}
	if f.OrderDateTo != nil {
		add("order_date <= $%d", *f.OrderDateTo)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}
