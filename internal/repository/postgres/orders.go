package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type OrderRepo struct {
	store *Store
}

// GetOrder retrieves an order with its line items.
//
// Parameters:
//   - ctx: request-scoped context; joins a transaction bound by RunTx.
//   - id: order ID.
//
// Returns:
//   - *domain.Order: the order when found.
//   - error: repository.ErrNotFound if the order does not exist.
func (r *OrderRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	const op = "postgres.OrderRepo.GetOrder"

	db := r.store.handle(ctx)

	var o domain.Order
	err := db.QueryRow(ctx,
		`SELECT id, status, customer_id,
		        billing_first_name, billing_last_name, billing_email, billing_phone,
		        created_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(
		&o.ID, &o.Status, &o.CustomerID,
		&o.Billing.FirstName, &o.Billing.LastName, &o.Billing.Email, &o.Billing.Phone,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT id, product_id, variation_id, quantity, metadata, pricing
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			it      domain.LineItem
			meta    []byte
			pricing []byte
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariationID, &it.Quantity, &meta, &pricing); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &it.Metadata); err != nil {
				return nil, fmt.Errorf("%s: item %d metadata: %w", op, it.ID, err)
			}
		}
		if len(pricing) > 0 {
			it.Pricing = json.RawMessage(pricing)
		}
		o.LineItems = append(o.LineItems, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

// ListOrderIDs returns matching order ids in ascending order.
func (r *OrderRepo) ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error) {
	const op = "postgres.OrderRepo.ListOrderIDs"

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("id > $%d", f.AfterID)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	sql := "SELECT id FROM orders WHERE " + strings.Join(conds, " AND ") + " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.store.handle(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// UpdateOrderStatus sets the status and appends an order note in one
// transaction.
func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	const op = "postgres.OrderRepo.UpdateOrderStatus"

	return r.store.RunTx(ctx, func(ctx context.Context) error {
		db := r.store.handle(ctx)

		tag, err := db.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
			id, string(status),
		)
		if err != nil {
			return wrapDBErr(op, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}

		if note == "" {
			return nil
		}

		if _, err := db.Exec(ctx,
			`INSERT INTO order_notes(order_id, note) VALUES ($1, $2)`,
			id, note,
		); err != nil {
			return wrapDBErr(op, err)
		}

		return nil
	})
}
