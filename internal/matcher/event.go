// Package matcher resolves line items to catalog events and stored player
// profiles to registrant slots.
package matcher

import (
	"context"
	"fmt"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/signature"
)

type Catalog interface {
	Product(ctx context.Context, id int64) (domain.EventAttributes, error)
	Variation(ctx context.Context, id int64) (domain.EventAttributes, error)
}

type EventMatcher struct {
	catalog Catalog
	gen     *signature.Generator
}

func NewEventMatcher(catalog Catalog, gen *signature.Generator) *EventMatcher {
	return &EventMatcher{catalog: catalog, gen: gen}
}

// Resolve returns the event attributes a line item books. Variation
// attributes override those of the parent product. NotFound means neither
// the product nor the variation exists.
func (m *EventMatcher) Resolve(ctx context.Context, item domain.LineItem) repository.Lookup[domain.EventAttributes] {
	const op = "matcher.EventMatcher.Resolve"

	product := repository.NotFound[domain.EventAttributes]()
	if item.ProductID > 0 {
		product = repository.Classify(m.catalog.Product(ctx, item.ProductID))
		if err := product.Err(); err != nil {
			return repository.Failed[domain.EventAttributes](fmt.Errorf("%s: product %d: %w", op, item.ProductID, err))
		}
	}

	variation := repository.NotFound[domain.EventAttributes]()
	if item.VariationID > 0 {
		variation = repository.Classify(m.catalog.Variation(ctx, item.VariationID))
		if err := variation.Err(); err != nil {
			return repository.Failed[domain.EventAttributes](fmt.Errorf("%s: variation %d: %w", op, item.VariationID, err))
		}
	}

	p, hasProduct := product.Get()
	v, hasVariation := variation.Get()

	switch {
	case hasProduct && hasVariation:
		return repository.Found(merge(p, v))
	case hasVariation:
		if v.ProductID == 0 {
			v.ProductID = item.ProductID
		}
		return repository.Found(v)
	case hasProduct:
		return repository.Found(p)
	default:
		return repository.NotFound[domain.EventAttributes]()
	}
}

// Matches reports whether a and b describe the same event once normalised.
func (m *EventMatcher) Matches(a, b domain.EventAttributes) bool {
	return m.gen.Normalize(a) == m.gen.Normalize(b)
}

func (m *EventMatcher) Signature(a domain.EventAttributes) string {
	return m.gen.Generate(a)
}

func merge(p, v domain.EventAttributes) domain.EventAttributes {
	out := p
	str := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	out.VariationID = v.VariationID
	str(&out.ProductName, v.ProductName)
	str(&out.ActivityType, v.ActivityType)
	str(&out.Venue, v.Venue)
	str(&out.AgeGroup, v.AgeGroup)
	str(&out.TimeWindow, v.TimeWindow)
	str(&out.Season, v.Season)
	str(&out.City, v.City)
	str(&out.Region, v.Region)

	if v.GirlsOnly {
		out.GirlsOnly = true
	}
	if !v.StartDate.IsZero() {
		out.StartDate = v.StartDate
	}
	if !v.EndDate.IsZero() {
		out.EndDate = v.EndDate
	}
	if v.Capacity > 0 {
		out.Capacity = v.Capacity
	}

	return out
}
