package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type Catalog struct {
	mu         sync.RWMutex
	products   map[int64]domain.EventAttributes
	variations map[int64]domain.EventAttributes
	failing    map[int64]error
}

func NewCatalog() *Catalog {
	return &Catalog{
		products:   make(map[int64]domain.EventAttributes),
		variations: make(map[int64]domain.EventAttributes),
		failing:    make(map[int64]error),
	}
}

func (c *Catalog) PutProduct(a domain.EventAttributes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[a.ProductID] = a
}

func (c *Catalog) PutVariation(a domain.EventAttributes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variations[a.VariationID] = a
}

// Fail makes lookups of product id return err.
func (c *Catalog) Fail(productID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[productID] = err
}

func (c *Catalog) Product(ctx context.Context, id int64) (domain.EventAttributes, error) {
	const op = "memory.Catalog.Product"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.failing[id]; err != nil {
		return domain.EventAttributes{}, fmt.Errorf("%s: %w", op, err)
	}

	a, ok := c.products[id]
	if !ok {
		return domain.EventAttributes{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return a, nil
}

func (c *Catalog) Variation(ctx context.Context, id int64) (domain.EventAttributes, error) {
	const op = "memory.Catalog.Variation"

	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.variations[id]
	if !ok {
		return domain.EventAttributes{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return a, nil
}

type Players struct {
	mu      sync.RWMutex
	byOwner map[int64][]domain.PlayerProfile
}

func NewPlayers() *Players {
	return &Players{byOwner: make(map[int64][]domain.PlayerProfile)}
}

func (p *Players) Put(owner int64, players ...domain.PlayerProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byOwner[owner] = append(p.byOwner[owner], players...)
}

func (p *Players) GetPlayersByOwner(ctx context.Context, ownerID int64) ([]domain.PlayerProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.byOwner[ownerID]), nil
}
