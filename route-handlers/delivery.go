package routehandlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/models"
	"github.com/coreybb/xianyu-autodeliver/webutil"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DeliveryHandler serves read-only views of the dedup store.
type DeliveryHandler struct {
	Store datastore.DeliveryStore
}

func NewDeliveryHandler(store datastore.DeliveryStore) *DeliveryHandler {
	return &DeliveryHandler{Store: store}
}

// orderStatusResponse also covers orders that were never delivered but have
// failed attempts, which is how parked orders show up.
type orderStatusResponse struct {
	OrderID        string                 `json:"order_id"`
	Delivered      bool                   `json:"delivered"`
	Record         *models.DeliveryRecord `json:"record"`
	FailedAttempts int                    `json:"failed_attempts"`
}

// HandleListDeliveries returns the most recent delivery records.
func (h *DeliveryHandler) HandleListDeliveries(w http.ResponseWriter, r *http.Request) error {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return webutil.ErrBadRequest("limit must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.Store.List(r.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list deliveries: %w", err)
	}
	if records == nil {
		records = []models.DeliveryRecord{}
	}

	webutil.RespondWithJSON(w, http.StatusOK, records)
	return nil
}

// HandleGetDelivery reports the delivery state of a single order.
func (h *DeliveryHandler) HandleGetDelivery(w http.ResponseWriter, r *http.Request) error {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		return webutil.ErrBadRequest("Missing order ID")
	}

	resp := orderStatusResponse{OrderID: orderID}

	record, err := h.Store.Get(r.Context(), orderID)
	switch {
	case err == nil:
		resp.Delivered = true
		resp.Record = record
	case errors.Is(err, datastore.ErrNotFound):
	default:
		return fmt.Errorf("failed to retrieve delivery for order %s: %w", orderID, err)
	}

	resp.FailedAttempts, err = h.Store.CountFailedAttempts(r.Context(), orderID)
	if err != nil {
		return fmt.Errorf("failed to count attempts for order %s: %w", orderID, err)
	}

	if !resp.Delivered && resp.FailedAttempts == 0 {
		return webutil.ErrNotFound("No delivery or attempt recorded for this order")
	}

	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}
