package roster

import (
	"fmt"
)

// ExtractionError reports a failure to turn one line item of an order into
// roster rows. It is recoverable at batch level.
type ExtractionError struct {
	OrderID int64
	ItemID  int64
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.ItemID == 0 {
		return fmt.Sprintf("extract order %d: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("extract order %d item %d: %v", e.OrderID, e.ItemID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// OrderError is one entry of a job's error list.
type OrderError struct {
	OrderID int64  `json:"order_id"`
	Message string `json:"message"`
}
