package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
)

// Actionable reports whether the roster pipeline reacts to an order in this
// state. Every other status is treated like pending.
func (s OrderStatus) Actionable() bool {
	return s == OrderProcessing || s == OrderCompleted
}

type BillingContact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

func (b BillingContact) FullName() string {
	switch {
	case b.FirstName == "":
		return b.LastName
	case b.LastName == "":
		return b.FirstName
	default:
		return b.FirstName + " " + b.LastName
	}
}

type LineItem struct {
	ID          int64
	ProductID   int64
	VariationID int64
	Quantity    int
	Metadata    map[string]string
	// Pricing is produced by the external pricing collaborator and copied
	// onto roster rows untouched.
	Pricing json.RawMessage
}

type Order struct {
	ID         int64
	Status     OrderStatus
	CustomerID int64
	Billing    BillingContact
	LineItems  []LineItem
	CreatedAt  time.Time
}

type OrderFilter struct {
	Statuses []OrderStatus
	From     *time.Time
	To       *time.Time
	// AfterID enables keyset pagination: only ids greater than AfterID.
	AfterID int64
	Limit   int
}

// EventAttributes describe one purchasable event occurrence as resolved from
// the product catalog.
type EventAttributes struct {
	ProductID    int64
	VariationID  int64
	ProductName  string
	ActivityType string
	Venue        string
	AgeGroup     string
	TimeWindow   string
	Season       string
	City         string
	Region       string
	GirlsOnly    bool
	StartDate    time.Time
	EndDate      time.Time
	Capacity     int
}

type PlayerProfile struct {
	ID        int64
	OwnerID   int64
	FirstName string
	LastName  string
	BirthDate string
	Gender    string
	Medical   string
	Dietary   string
}

type Registrant struct {
	FirstName     string
	LastName      string
	Age           string
	BirthDate     string
	Gender        string
	GuardianName  string
	GuardianEmail string
	GuardianPhone string
	Medical       string
	Dietary       string
}

func (r Registrant) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// NaturalKey uniquely identifies a roster row.
type NaturalKey struct {
	OrderID             int64 `json:"order_id"`
	OrderItemID         int64 `json:"order_item_id"`
	RegistrantSlotIndex int   `json:"registrant_slot_index"`
}

type RosterEntry struct {
	NaturalKey
	Registrant

	EventSignature string
	Event          EventAttributes

	EventCompleted bool
	IsPlaceholder  bool

	Pricing   json.RawMessage
	OrderDate time.Time
	UpdatedAt time.Time
}

type RosterFilter struct {
	OrderIDs       []int64
	EventSignature string
	OrderDateFrom  *time.Time
	OrderDateTo    *time.Time
	// All must be set explicitly to match every row; an empty filter
	// matches nothing.
	All bool
}

// Empty reports whether the filter carries no constraint at all.
func (f RosterFilter) Empty() bool {
	return !f.All &&
		len(f.OrderIDs) == 0 &&
		f.EventSignature == "" &&
		f.OrderDateFrom == nil &&
		f.OrderDateTo == nil
}

type QueryOptions struct {
	Limit  int
	Offset int
}

type EventSummary struct {
	EventSignature string `json:"event_signature"`
	Total          int64  `json:"total"`
	Completed      int64  `json:"completed"`
	Placeholders   int64  `json:"placeholders"`
}

// DeferredTask is a unit of work that must not run before DueAt. Receipt
// identifies the claim that handed the task out.
type DeferredTask struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	DueAt   time.Time       `json:"due_at"`
	Receipt string          `json:"-"`
}
