package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/kirinyoku/roster-go/internal/service/reconcile"
	"github.com/kirinyoku/roster-go/internal/service/roster"
)

// render writes v as indented JSON or, in text mode, through its text form.
func render(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	switch r := v.(type) {
	case orders.Result:
		_, err := fmt.Fprintf(w, "order %d: %s (entries=%d)\n", r.OrderID, r.Outcome, r.Entries)
		return err
	case orders.BatchResult:
		_, err := fmt.Fprintf(w, "%s\nprocessed=%d completed=%d deferred=%d skipped=%d entries=%d failed=%v\n",
			r.Message, r.ProcessedCount, r.CompletedCount, r.DeferredCount, r.SkippedCount, r.RosterEntryCount, r.FailedOrderIDs)
		return err
	case roster.RebuildResult:
		_, err := fmt.Fprintf(w, "rebuild: processed=%d created=%d errors=%d batches=%d cleared=%d last_order_id=%d stopped=%t\n",
			r.Processed, r.Created, r.Errors, r.Batches, r.Cleared, r.LastOrderID, r.Stopped)
		if err == nil {
			err = writeOrderErrors(w, r.RecentErrors)
		}
		return err
	case roster.TargetedResult:
		st := r.Statistics
		_, err := fmt.Fprintf(w, "rebuild-orders: requested=%d rebuilt=%d missing=%d deleted=%d entries=%d failed=%d\n",
			st.Requested, st.Rebuilt, st.Missing, st.Deleted, st.Entries, len(st.Failed))
		if err == nil {
			err = writeOrderErrors(w, st.Failed)
		}
		return err
	case reconcile.Result:
		_, err := fmt.Fprintf(w, "reconcile: scanned=%d synced=%d skipped=%d entries=%d orphans=%d deleted=%d destructive=%t errors=%d stopped=%t\n",
			r.Scanned, r.Synced, r.Skipped, r.Entries, len(r.Orphans), r.Deleted, r.Destructive, r.ErrorCount, r.Stopped)
		if err == nil {
			err = writeOrderErrors(w, r.Errors)
		}
		return err
	case []domain.RosterEntry:
		return writeEntries(w, r)
	default:
		_, err := fmt.Fprintf(w, "%+v\n", v)
		return err
	}
}

func writeOrderErrors(w io.Writer, errs []roster.OrderError) error {
	for _, e := range errs {
		if _, err := fmt.Fprintf(w, "  order %d: %s\n", e.OrderID, e.Message); err != nil {
			return err
		}
	}
	return nil
}

func writeEntries(w io.Writer, entries []domain.RosterEntry) error {
	for _, e := range entries {
		flags := make([]string, 0, 2)
		if e.IsPlaceholder {
			flags = append(flags, "placeholder")
		}
		if e.EventCompleted {
			flags = append(flags, "completed")
		}

		name := e.FullName()
		if name == "" {
			name = "-"
		}

		_, err := fmt.Fprintf(w, "%d/%d/%d\t%s\t%s\t%s %s\t%s\n",
			e.OrderID, e.OrderItemID, e.RegistrantSlotIndex,
			e.EventSignature, name, e.Event.ActivityType, e.Event.Venue,
			strings.Join(flags, ","))
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d entries\n", len(entries))
	return err
}
