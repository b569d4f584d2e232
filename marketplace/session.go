// Package marketplace drives the seller's marketplace session: listing orders
// that await shipment and sending the delivery note to the buyer.
package marketplace

import (
	"context"
	"errors"

	"github.com/coreybb/xianyu-autodeliver/models"
)

var (
	// ErrSessionLost means the seller is no longer logged in. An operator has
	// to re-authenticate the browser profile by hand.
	ErrSessionLost = errors.New("marketplace session lost, manual re-authentication required")

	ErrOrderNotFound = errors.New("order not found on the pending orders page")
	ErrInvalidOrder  = errors.New("invalid order id")
)

// Session is a single-owner handle on the marketplace. Implementations are
// not safe for concurrent use.
type Session interface {
	// ListPendingOrders returns orders that are paid and awaiting delivery.
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
	// SendMessage delivers text to the buyer through the order's in-platform
	// delivery note, without physical shipment. A nil error means the
	// marketplace confirmed the send.
	SendMessage(ctx context.Context, buyerID, orderID, text string) error
}
