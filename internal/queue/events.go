// Package queue connects the roster pipeline to RabbitMQ: it consumes
// order status change triggers and publishes completion notices.
package queue

import "time"

const (
	DefaultTriggerQueue = "order.status_changed"
	CompletedQueue      = "order.completed"
)

// StatusChangedEvent is published by the shop whenever an order changes
// status. Status is informational; the order is always reloaded.
type StatusChangedEvent struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status,omitempty"`
}

// OrderCompletedEvent is emitted once per order the pipeline completed.
type OrderCompletedEvent struct {
	OrderID     int64     `json:"order_id"`
	CustomerID  int64     `json:"customer_id"`
	LineItems   int       `json:"line_items"`
	CompletedAt time.Time `json:"completed_at"`
}
