package models

// Order is a marketplace order awaiting fulfillment. It is observed, never mutated.
type Order struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	BuyerID string `json:"buyer_id,omitempty"`
}
