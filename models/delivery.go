package models

import "time"

// DeliveryRecord marks an order as fulfilled. At most one record with
// Success set exists per OrderID.
type DeliveryRecord struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	Title       string       `json:"title"`
	Plan        PlanDuration `json:"plan"`
	DeliveredAt time.Time    `json:"delivered_at"`
	Success     bool         `json:"success"`
}
