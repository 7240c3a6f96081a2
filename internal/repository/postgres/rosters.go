package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type RosterRepo struct {
	store *Store
}

var rosterColumns = []string{
	"order_id", "order_item_id", "registrant_slot_index",
	"first_name", "last_name", "age", "birth_date", "gender",
	"guardian_name", "guardian_email", "guardian_phone", "medical", "dietary",
	"event_signature",
	"product_id", "variation_id", "product_name", "activity_type", "venue", "age_group",
	"time_window", "season", "city", "region", "girls_only", "start_date", "end_date", "capacity",
	"event_completed", "is_placeholder", "pricing", "order_date",
}

// upsertSQL writes one row by natural key. A completed flag survives a
// rewrite of the same row as long as its event signature is unchanged.
var upsertSQL = func() string {
	var (
		params []string
		sets   []string
	)
	for i, c := range rosterColumns {
		params = append(params, fmt.Sprintf("$%d", i+1))
		if i < 3 || c == "event_completed" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets,
		`event_completed = CASE
		   WHEN rosters.event_signature = EXCLUDED.event_signature
		   THEN rosters.event_completed OR EXCLUDED.event_completed
		   ELSE EXCLUDED.event_completed END`,
		"updated_at = now()",
	)

	return fmt.Sprintf(
		`INSERT INTO rosters (%s) VALUES (%s)
		 ON CONFLICT (order_id, order_item_id, registrant_slot_index) DO UPDATE SET %s`,
		strings.Join(rosterColumns, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ",\n"),
	)
}()

var selectRosterSQL = "SELECT " + strings.Join(rosterColumns, ", ") + ", updated_at FROM rosters "

func rosterArgs(e domain.RosterEntry) []any {
	ev := e.Event
	var pricing any
	if len(e.Pricing) > 0 {
		pricing = []byte(e.Pricing)
	}

	return []any{
		e.OrderID, e.OrderItemID, e.RegistrantSlotIndex,
		e.FirstName, e.LastName, e.Age, e.BirthDate, e.Gender,
		e.GuardianName, e.GuardianEmail, e.GuardianPhone, e.Medical, e.Dietary,
		e.EventSignature,
		ev.ProductID, ev.VariationID, ev.ProductName, ev.ActivityType, ev.Venue, ev.AgeGroup,
		ev.TimeWindow, ev.Season, ev.City, ev.Region, ev.GirlsOnly, dateArg(ev.StartDate), dateArg(ev.EndDate), ev.Capacity,
		e.EventCompleted, e.IsPlaceholder, pricing, e.OrderDate,
	}
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanRoster(row pgx.CollectableRow) (domain.RosterEntry, error) {
	var (
		e          domain.RosterEntry
		start, end *time.Time
		pricing    []byte
	)
	ev := &e.Event

	err := row.Scan(
		&e.OrderID, &e.OrderItemID, &e.RegistrantSlotIndex,
		&e.FirstName, &e.LastName, &e.Age, &e.BirthDate, &e.Gender,
		&e.GuardianName, &e.GuardianEmail, &e.GuardianPhone, &e.Medical, &e.Dietary,
		&e.EventSignature,
		&ev.ProductID, &ev.VariationID, &ev.ProductName, &ev.ActivityType, &ev.Venue, &ev.AgeGroup,
		&ev.TimeWindow, &ev.Season, &ev.City, &ev.Region, &ev.GirlsOnly, &start, &end, &ev.Capacity,
		&e.EventCompleted, &e.IsPlaceholder, &pricing, &e.OrderDate,
		&e.UpdatedAt,
	)
	if err != nil {
		return domain.RosterEntry{}, err
	}

	setDates(ev, start, end)
	if len(pricing) > 0 {
		e.Pricing = pricing
	}

	return e, nil
}

func (r *RosterRepo) Upsert(ctx context.Context, e domain.RosterEntry) error {
	const op = "postgres.RosterRepo.Upsert"

	if _, err := r.store.handle(ctx).Exec(ctx, upsertSQL, rosterArgs(e)...); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ReplaceOrder makes entries the complete set of rows for orderID. Stale
// rows are deleted and the rest upserted in one transaction, so readers
// never see the order half-written.
//
// Returns:
//   - int: rows written.
//   - error: when an entry belongs to another order, or on store failure.
func (r *RosterRepo) ReplaceOrder(ctx context.Context, orderID int64, entries []domain.RosterEntry) (int, error) {
	const op = "postgres.RosterRepo.ReplaceOrder"

	items := make([]int64, 0, len(entries))
	slots := make([]int32, 0, len(entries))
	for _, e := range entries {
		if e.OrderID != orderID {
			return 0, fmt.Errorf("%s: entry for order %d in replace of %d", op, e.OrderID, orderID)
		}
		items = append(items, e.OrderItemID)
		slots = append(slots, int32(e.RegistrantSlotIndex))
	}

	err := r.store.RunTx(ctx, func(ctx context.Context) error {
		db := r.store.handle(ctx)

		if _, err := db.Exec(ctx,
			`DELETE FROM rosters r
			 WHERE r.order_id = $1
			   AND NOT EXISTS (
			     SELECT 1 FROM unnest($2::bigint[], $3::int[]) AS k(item_id, slot)
			     WHERE k.item_id = r.order_item_id AND k.slot = r.registrant_slot_index
			   )`,
			orderID, items, slots,
		); err != nil {
			return wrapDBErr(op, err)
		}

		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(upsertSQL, rosterArgs(e)...)
		}
		if err := db.SendBatch(ctx, batch).Close(); err != nil {
			return wrapDBErr(op, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

func (r *RosterRepo) DeleteWhere(ctx context.Context, f domain.RosterFilter) (int64, error) {
	const op = "postgres.RosterRepo.DeleteWhere"

	where, args := rosterWhere(f, 0)

	tag, err := r.store.handle(ctx).Exec(ctx, "DELETE FROM rosters "+where, args...)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// Query lists matching rows in natural-key order.
func (r *RosterRepo) Query(ctx context.Context, f domain.RosterFilter, opts domain.QueryOptions) ([]domain.RosterEntry, error) {
	const op = "postgres.RosterRepo.Query"

	where, args := rosterWhere(f, 0)
	sql := selectRosterSQL + where + " ORDER BY order_id, order_item_id, registrant_slot_index"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.store.handle(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := pgx.CollectRows(rows, scanRoster)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *RosterRepo) CountWhere(ctx context.Context, f domain.RosterFilter) (int64, error) {
	const op = "postgres.RosterRepo.CountWhere"

	where, args := rosterWhere(f, 0)

	var n int64
	if err := r.store.handle(ctx).QueryRow(ctx, "SELECT count(*) FROM rosters "+where, args...).Scan(&n); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

// OrderIDs returns the distinct order ids of matching rows greater than
// after, ascending.
func (r *RosterRepo) OrderIDs(ctx context.Context, f domain.RosterFilter, after int64, limit int) ([]int64, error) {
	const op = "postgres.RosterRepo.OrderIDs"

	where, args := rosterWhere(f, 0)
	args = append(args, after)
	cond := fmt.Sprintf("order_id > $%d", len(args))
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}

	sql := "SELECT DISTINCT order_id FROM rosters " + where + " ORDER BY order_id"
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.store.handle(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// CompletedEvents lists every signature whose rows are all completed.
func (r *RosterRepo) CompletedEvents(ctx context.Context) ([]string, error) {
	const op = "postgres.RosterRepo.CompletedEvents"

	rows, err := r.store.handle(ctx).Query(ctx,
		`SELECT event_signature
		 FROM rosters
		 GROUP BY event_signature
		 HAVING bool_and(event_completed)
		 ORDER BY event_signature`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	sigs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return sigs, nil
}

// CompletedSignatures reports the signatures whose rows are all completed.
func (r *RosterRepo) CompletedSignatures(ctx context.Context, sigs []string) (map[string]bool, error) {
	const op = "postgres.RosterRepo.CompletedSignatures"

	out := make(map[string]bool)
	if len(sigs) == 0 {
		return out, nil
	}

	rows, err := r.store.handle(ctx).Query(ctx,
		`SELECT event_signature
		 FROM rosters
		 WHERE event_signature = ANY($1)
		 GROUP BY event_signature
		 HAVING bool_and(event_completed)`,
		sigs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	done, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	for _, s := range done {
		out[s] = true
	}

	return out, nil
}

func (r *RosterRepo) SetEventCompleted(ctx context.Context, sig string, completed bool) (int64, error) {
	const op = "postgres.RosterRepo.SetEventCompleted"

	tag, err := r.store.handle(ctx).Exec(ctx,
		`UPDATE rosters SET event_completed = $2, updated_at = now()
		 WHERE event_signature = $1`,
		sig, completed,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// EventSummary counts the rows of one event signature.
//
// Returns:
//   - domain.EventSummary: totals for the signature.
//   - error: repository.ErrNotFound if no row carries it.
func (r *RosterRepo) EventSummary(ctx context.Context, sig string) (domain.EventSummary, error) {
	const op = "postgres.RosterRepo.EventSummary"

	s := domain.EventSummary{EventSignature: sig}
	err := r.store.handle(ctx).QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE event_completed),
		        count(*) FILTER (WHERE is_placeholder)
		 FROM rosters
		 WHERE event_signature = $1`,
		sig,
	).Scan(&s.Total, &s.Completed, &s.Placeholders)
	if err != nil {
		return domain.EventSummary{}, wrapDBErr(op, err)
	}

	if s.Total == 0 {
		return domain.EventSummary{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return s, nil
}
