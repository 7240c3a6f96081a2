package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type Rosters struct {
	mu          sync.RWMutex
	rows        map[domain.NaturalKey]domain.RosterEntry
	unavailable bool
}

func NewRosters() *Rosters {
	return &Rosters{rows: make(map[domain.NaturalKey]domain.RosterEntry)}
}

func (r *Rosters) SetUnavailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = v
}

// Put stores rows as-is, bypassing upsert rules.
func (r *Rosters) Put(entries ...domain.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.rows[e.NaturalKey] = e
	}
}

func (r *Rosters) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func (r *Rosters) Upsert(ctx context.Context, e domain.RosterEntry) error {
	const op = "memory.Rosters.Upsert"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unavailable {
		return fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	r.upsertLocked(e)
	return nil
}

// ReplaceOrder makes entries the complete set of rows for orderID.
func (r *Rosters) ReplaceOrder(ctx context.Context, orderID int64, entries []domain.RosterEntry) (int, error) {
	const op = "memory.Rosters.ReplaceOrder"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unavailable {
		return 0, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	keep := make(map[domain.NaturalKey]struct{}, len(entries))
	for _, e := range entries {
		if e.OrderID != orderID {
			return 0, fmt.Errorf("%s: entry for order %d in replace of %d", op, e.OrderID, orderID)
		}
		keep[e.NaturalKey] = struct{}{}
	}

	for k := range r.rows {
		if k.OrderID != orderID {
			continue
		}
		if _, ok := keep[k]; !ok {
			delete(r.rows, k)
		}
	}

	for _, e := range entries {
		r.upsertLocked(e)
	}

	return len(entries), nil
}

func (r *Rosters) DeleteWhere(ctx context.Context, f domain.RosterFilter) (int64, error) {
	const op = "memory.Rosters.DeleteWhere"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unavailable {
		return 0, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var n int64
	for k, e := range r.rows {
		if matches(e, f) {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

func (r *Rosters) Query(ctx context.Context, f domain.RosterFilter, opts domain.QueryOptions) ([]domain.RosterEntry, error) {
	const op = "memory.Rosters.Query"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var out []domain.RosterEntry
	for _, e := range r.rows {
		if matches(e, f) {
			out = append(out, e)
		}
	}

	slices.SortFunc(out, func(a, b domain.RosterEntry) int {
		return compareKeys(a.NaturalKey, b.NaturalKey)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	return out, nil
}

func (r *Rosters) CountWhere(ctx context.Context, f domain.RosterFilter) (int64, error) {
	const op = "memory.Rosters.CountWhere"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return 0, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var n int64
	for _, e := range r.rows {
		if matches(e, f) {
			n++
		}
	}
	return n, nil
}

// OrderIDs returns the distinct order ids of matching rows greater than
// after, ascending, at most limit of them.
func (r *Rosters) OrderIDs(ctx context.Context, f domain.RosterFilter, after int64, limit int) ([]int64, error) {
	const op = "memory.Rosters.OrderIDs"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var ids []int64
	for k, e := range r.rows {
		if k.OrderID <= after || !matches(e, f) || slices.Contains(ids, k.OrderID) {
			continue
		}
		ids = append(ids, k.OrderID)
	}

	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// CompletedSignatures reports, for each given signature, whether at least
// one row carries it and all such rows are completed.
func (r *Rosters) CompletedSignatures(ctx context.Context, sigs []string) (map[string]bool, error) {
	const op = "memory.Rosters.CompletedSignatures"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	seen := make(map[string]bool, len(sigs))
	for _, e := range r.rows {
		if !slices.Contains(sigs, e.EventSignature) {
			continue
		}
		done, ok := seen[e.EventSignature]
		seen[e.EventSignature] = e.EventCompleted && (done || !ok)
	}

	out := make(map[string]bool, len(seen))
	for s, done := range seen {
		if done {
			out[s] = true
		}
	}
	return out, nil
}

func (r *Rosters) CompletedEvents(ctx context.Context) ([]string, error) {
	const op = "memory.Rosters.CompletedEvents"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	done := make(map[string]bool)
	for _, e := range r.rows {
		prev, ok := done[e.EventSignature]
		done[e.EventSignature] = e.EventCompleted && (prev || !ok)
	}

	var out []string
	for s, ok := range done {
		if ok {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *Rosters) SetEventCompleted(ctx context.Context, sig string, completed bool) (int64, error) {
	const op = "memory.Rosters.SetEventCompleted"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unavailable {
		return 0, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	var n int64
	for k, e := range r.rows {
		if e.EventSignature == sig {
			e.EventCompleted = completed
			r.rows[k] = e
			n++
		}
	}
	return n, nil
}

func (r *Rosters) EventSummary(ctx context.Context, sig string) (domain.EventSummary, error) {
	const op = "memory.Rosters.EventSummary"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unavailable {
		return domain.EventSummary{}, fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
	}

	s := domain.EventSummary{EventSignature: sig}
	for _, e := range r.rows {
		if e.EventSignature != sig {
			continue
		}
		s.Total++
		if e.EventCompleted {
			s.Completed++
		}
		if e.IsPlaceholder {
			s.Placeholders++
		}
	}
	if s.Total == 0 {
		return domain.EventSummary{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return s, nil
}

func (r *Rosters) upsertLocked(e domain.RosterEntry) {
	if old, ok := r.rows[e.NaturalKey]; ok && old.EventSignature == e.EventSignature && old.EventCompleted {
		e.EventCompleted = true
	}
	r.rows[e.NaturalKey] = e
}

func matches(e domain.RosterEntry, f domain.RosterFilter) bool {
	if f.Empty() {
		return false
	}
	if len(f.OrderIDs) > 0 && !slices.Contains(f.OrderIDs, e.OrderID) {
		return false
	}
	if f.EventSignature != "" && e.EventSignature != f.EventSignature {
		return false
	}
	if f.OrderDateFrom != nil && e.OrderDate.Before(*f.OrderDateFrom) {
		return false
	}
	if f.OrderDateTo != nil && e.OrderDate.After(*f.OrderDateTo) {
		return false
	}
	return true
}

func compareKeys(a, b domain.NaturalKey) int {
	if c := cmp.Compare(a.OrderID, b.OrderID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OrderItemID, b.OrderItemID); c != 0 {
		return c
	}
	return cmp.Compare(a.RegistrantSlotIndex, b.RegistrantSlotIndex)
}
