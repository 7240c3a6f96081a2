// Package memory holds thread-safe in-memory implementations of the store
// contracts. They back tests and the CLI's dry-run mode.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type Orders struct {
	mu     sync.RWMutex
	orders map[int64]domain.Order
	notes  map[int64][]string

	getErr map[int64]error
	// sticky orders accept status writes without persisting them.
	sticky      map[int64]bool
	unavailable bool
	updates     int
}

func NewOrders(orders ...domain.Order) *Orders {
	o := &Orders{
		orders: make(map[int64]domain.Order),
		notes:  make(map[int64][]string),
		getErr: make(map[int64]error),
		sticky: make(map[int64]bool),
	}
	for _, ord := range orders {
		o.Put(ord)
	}
	return o
}

func (o *Orders) Put(ord domain.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[ord.ID] = cloneOrder(ord)
}

func (o *Orders) Delete(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.orders, id)
}

// FailGet makes GetOrder return err for id.
func (o *Orders) FailGet(id int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.getErr[id] = err
}

// Sticky makes status writes for id succeed without changing the stored
// status, like a stale cache in front of the order store.
func (o *Orders) Sticky(id int64, sticky bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sticky[id] = sticky
}

// SetUnavailable makes every call fail with repository.ErrUnavailable.
func (o *Orders) SetUnavailable(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable = v
}

func (o *Orders) StatusUpdates() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.updates
}

func (o *Orders) Notes(id int64) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.notes[id])
}

func (o *Orders) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	const op = "memory.Orders.GetOrder"

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}
	if err := o.getErr[id]; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ord, ok := o.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	cp := cloneOrder(ord)
	return &cp, nil
}

func (o *Orders) ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error) {
	const op = "memory.Orders.ListOrderIDs"

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var ids []int64
	for id, ord := range o.orders {
		if id <= f.AfterID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, ord.Status) {
			continue
		}
		if f.From != nil && ord.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && ord.CreatedAt.After(*f.To) {
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}

	return ids, nil
}

func (o *Orders) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	const op = "memory.Orders.UpdateOrderStatus"

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.unavailable {
		return fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	ord, ok := o.orders[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	o.updates++
	if note != "" {
		o.notes[id] = append(o.notes[id], note)
	}
	if o.sticky[id] {
		return nil
	}

	ord.Status = status
	o.orders[id] = ord
	return nil
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.LineItem, len(o.LineItems))
	for i, it := range o.LineItems {
		meta := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			meta[k] = v
		}
		it.Metadata = meta
		it.Pricing = slices.Clone(it.Pricing)
		items[i] = it
	}
	o.LineItems = items
	return o
}
