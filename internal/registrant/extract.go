// Package registrant turns loosely keyed line-item metadata into typed
// registrant records.
package registrant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirinyoku/roster-go/internal/domain"
)

var countKeys = []string{"_registrant_count", "registrant_count", "participants", "number_of_children", "anzahl_kinder"}

var holdKeys = []string{"_capacity_hold", "_placeholder"}

// NoPlayer marks a slot without an explicit player-profile assignment.
const NoPlayer = -1

// Slot is the typed result of extracting one registrant slot.
type Slot struct {
	Index      int
	Registrant domain.Registrant
	// AssignedPlayer is a 0-based index into the customer's stored player
	// profiles, or NoPlayer.
	AssignedPlayer int
	// Present is false when no strategy found any registrant field.
	Present bool
	// Sources names the strategy that supplied each field.
	Sources map[Field]string
}

type Extractor struct {
	strategies []Strategy
}

// NewExtractor returns an extractor probing strategies in order. With no
// arguments it uses DefaultStrategies.
func NewExtractor(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// With returns an extractor that additionally probes s after the existing
// strategies.
func (e *Extractor) With(s ...Strategy) *Extractor {
	cp := make([]Strategy, 0, len(e.strategies)+len(s))
	cp = append(cp, e.strategies...)
	cp = append(cp, s...)
	return &Extractor{strategies: cp}
}

// Count returns the number of registrant slots a line item books: an
// explicit count in metadata wins over the quantity.
func Count(item domain.LineItem) (int, error) {
	const op = "registrant.Count"

	b := NewBag(item.Metadata)
	if k, v, ok := b.First(countKeys...); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s: item %d: invalid %s %q", op, item.ID, k, v)
		}
		if n > 0 {
			return n, nil
		}
	}

	if item.Quantity < 0 {
		return 0, nil
	}
	return item.Quantity, nil
}

// CapacityHold reports whether the line item only reserves capacity.
func CapacityHold(item domain.LineItem) bool {
	return NewBag(item.Metadata).Truthy(holdKeys...)
}

// Extract reads slot from item metadata. Guardian contact falls back to the
// order's billing identity.
func (e *Extractor) Extract(item domain.LineItem, slot int, billing domain.BillingContact) (Slot, error) {
	const op = "registrant.Extractor.Extract"

	b := NewBag(item.Metadata)
	out := Slot{Index: slot, AssignedPlayer: NoPlayer, Sources: map[Field]string{}}

	get := func(f Field) string {
		for _, s := range e.strategies {
			if v, ok := s.Lookup(b, slot, f); ok {
				out.Sources[f] = s.Name()
				return v
			}
		}
		return ""
	}

	r := domain.Registrant{
		FirstName:     get(FirstName),
		LastName:      get(LastName),
		Age:           get(Age),
		BirthDate:     get(BirthDate),
		Gender:        get(Gender),
		GuardianName:  get(GuardianName),
		GuardianEmail: get(GuardianEmail),
		GuardianPhone: get(GuardianPhone),
		Medical:       get(Medical),
		Dietary:       get(Dietary),
	}

	if r.FirstName == "" && r.LastName == "" {
		r.FirstName, r.LastName = splitName(get(FullName))
	}

	if v := get(AssignedPlayer); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 {
			return Slot{}, fmt.Errorf("%s: item %d slot %d: invalid player index %q", op, item.ID, slot, v)
		}
		out.AssignedPlayer = idx
	}

	out.Present = r.FirstName != "" || r.LastName != "" || r.Age != "" || r.BirthDate != ""

	if r.GuardianName == "" {
		r.GuardianName = billing.FullName()
	}
	if r.GuardianEmail == "" {
		r.GuardianEmail = billing.Email
	}
	if r.GuardianPhone == "" {
		r.GuardianPhone = billing.Phone
	}

	out.Registrant = r
	return out, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
