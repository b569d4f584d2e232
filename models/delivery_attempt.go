package models

import "time"

// DeliveryAttemptStatus defines the set of allowed statuses for a DeliveryAttempt.
type DeliveryAttemptStatus string

const (
	DeliveryAttemptDelivered DeliveryAttemptStatus = "delivered"
	DeliveryAttemptFailed    DeliveryAttemptStatus = "failed"
)

// DeliveryAttempt represents one attempt to send an activation code to a buyer,
// logging its status and any potential errors.
type DeliveryAttempt struct {
	ID           string                `json:"id"`
	OrderID      string                `json:"order_id"`
	CreatedAt    time.Time             `json:"created_at"`
	Status       DeliveryAttemptStatus `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
}
