package httpgin

import (
	"encoding/json"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
)

type OrderTriggerRequest struct {
	OrderID int64  `json:"order_id" binding:"required,gt=0"`
	Status  string `json:"status"`
}

type OrderIDsRequest struct {
	OrderIDs []int64 `json:"order_ids" binding:"required,min=1,dive,gt=0"`
}

type RebuildRequest struct {
	ClearExisting bool `json:"clear_existing"`
	BatchSize     int  `json:"batch_size" binding:"gte=0"`
	Resume        bool `json:"resume"`
}

type ReconcileRequest struct {
	DateFrom       string `json:"date_from"`
	DateTo         string `json:"date_to"`
	DeleteObsolete *bool  `json:"delete_obsolete"`
	BatchSize      int    `json:"batch_size" binding:"gte=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RegistrantResponse struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Age           string `json:"age,omitempty"`
	BirthDate     string `json:"birth_date,omitempty"`
	Gender        string `json:"gender,omitempty"`
	GuardianName  string `json:"guardian_name,omitempty"`
	GuardianEmail string `json:"guardian_email,omitempty"`
	GuardianPhone string `json:"guardian_phone,omitempty"`
	Medical       string `json:"medical,omitempty"`
	Dietary       string `json:"dietary,omitempty"`
}

type EventResponse struct {
	ProductID    int64      `json:"product_id"`
	VariationID  int64      `json:"variation_id,omitempty"`
	ProductName  string     `json:"product_name"`
	ActivityType string     `json:"activity_type"`
	Venue        string     `json:"venue"`
	AgeGroup     string     `json:"age_group"`
	TimeWindow   string     `json:"time_window,omitempty"`
	Season       string     `json:"season"`
	City         string     `json:"city,omitempty"`
	Region       string     `json:"region,omitempty"`
	GirlsOnly    bool       `json:"girls_only"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

type RosterEntryResponse struct {
	OrderID             int64              `json:"order_id"`
	OrderItemID         int64              `json:"order_item_id"`
	RegistrantSlotIndex int                `json:"registrant_slot_index"`
	Registrant          RegistrantResponse `json:"registrant"`
	EventSignature      string             `json:"event_signature"`
	Event               EventResponse      `json:"event"`
	EventCompleted      bool               `json:"event_completed"`
	IsPlaceholder       bool               `json:"is_placeholder"`
	Pricing             json.RawMessage    `json:"pricing,omitempty"`
	OrderDate           time.Time          `json:"order_date"`
}

type RosterResponse struct {
	Count   int                   `json:"count"`
	DryRun  bool                  `json:"dry_run,omitempty"`
	Entries []RosterEntryResponse `json:"entries"`
}

func toRosterResponse(entries []domain.RosterEntry, dryRun bool) RosterResponse {
	out := RosterResponse{
		Count:   len(entries),
		DryRun:  dryRun,
		Entries: make([]RosterEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, toRosterEntryResponse(e))
	}
	return out
}

func toRosterEntryResponse(e domain.RosterEntry) RosterEntryResponse {
	return RosterEntryResponse{
		OrderID:             e.OrderID,
		OrderItemID:         e.OrderItemID,
		RegistrantSlotIndex: e.RegistrantSlotIndex,
		Registrant: RegistrantResponse{
			FirstName:     e.FirstName,
			LastName:      e.LastName,
			Age:           e.Age,
			BirthDate:     e.BirthDate,
			Gender:        e.Gender,
			GuardianName:  e.GuardianName,
			GuardianEmail: e.GuardianEmail,
			GuardianPhone: e.GuardianPhone,
			Medical:       e.Medical,
			Dietary:       e.Dietary,
		},
		EventSignature: e.EventSignature,
		Event: EventResponse{
			ProductID:    e.Event.ProductID,
			VariationID:  e.Event.VariationID,
			ProductName:  e.Event.ProductName,
			ActivityType: e.Event.ActivityType,
			Venue:        e.Event.Venue,
			AgeGroup:     e.Event.AgeGroup,
			TimeWindow:   e.Event.TimeWindow,
			Season:       e.Event.Season,
			City:         e.Event.City,
			Region:       e.Event.Region,
			GirlsOnly:    e.Event.GirlsOnly,
			StartDate:    optionalTime(e.Event.StartDate),
			EndDate:      optionalTime(e.Event.EndDate),
		},
		EventCompleted: e.EventCompleted,
		IsPlaceholder:  e.IsPlaceholder,
		Pricing:        e.Pricing,
		OrderDate:      e.OrderDate,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseDate accepts an RFC3339 timestamp or a plain 2006-01-02 date. With
// endOfDay a plain date covers the whole day. Empty input yields nil.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
