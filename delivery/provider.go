// Package delivery sends activation codes to buyers and commits the delivery
// record once the marketplace has confirmed the send.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/models"
)

const defaultSendTimeout = 60 * time.Second

// MessageSender is the part of the marketplace session the dispatcher needs.
type MessageSender interface {
	SendMessage(ctx context.Context, buyerID, orderID, text string) error
}

// Config tunes the dispatcher.
type Config struct {
	// SendTimeout bounds a single send.
	SendTimeout time.Duration
	// SendInterval is the minimum gap between two sends. Zero disables pacing.
	SendInterval time.Duration
}

// Dispatcher delivers codes and records the outcome.
type Dispatcher struct {
	sender      MessageSender
	store       datastore.DeliveryStore
	limiter     *rate.Limiter
	sendTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewDispatcher(sender MessageSender, store datastore.DeliveryStore, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	limit := rate.Inf
	if cfg.SendInterval > 0 {
		limit = rate.Every(cfg.SendInterval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:      sender,
		store:       store,
		limiter:     rate.NewLimiter(limit, 1),
		sendTimeout: cfg.SendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Deliver sends code to the buyer of order and, only after the send is
// confirmed, commits the delivery record. A send failure returns ErrSendFailed
// and writes no record. A record that cannot be persisted returns an error
// wrapping datastore.ErrStorageWrite, which callers must treat as fatal.
func (d *Dispatcher) Deliver(ctx context.Context, order models.Order, plan models.PlanDuration, code *models.ActivationCode) (*models.DeliveryRecord, error) {
	text := ComposeMessage(code, plan)

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: order %s: pacing: %w", ErrSendFailed, order.ID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	sendErr := d.sender.SendMessage(sendCtx, order.BuyerID, order.ID, text)
	cancel()

	if sendErr != nil {
		d.recordAttempt(ctx, order.ID, models.DeliveryAttemptFailed, sendErr)
		return nil, fmt.Errorf("%w: order %s: %w", ErrSendFailed, order.ID, sendErr)
	}

	record := &models.DeliveryRecord{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Title:       order.Title,
		Plan:        plan,
		DeliveredAt: d.now(),
		Success:     true,
	}

	// The buyer already has the code; the commit must not be cut short by shutdown.
	if err := d.store.Put(context.WithoutCancel(ctx), record); err != nil {
		if errors.Is(err, datastore.ErrAlreadyDelivered) {
			d.logger.Warn("Delivery record already present after send",
				zap.String("order_id", order.ID))
			return record, nil
		}
		return nil, fmt.Errorf("commit delivery of order %s: %w", order.ID, err)
	}

	d.recordAttempt(ctx, order.ID, models.DeliveryAttemptDelivered, nil)
	d.logger.Info("Order delivered",
		zap.String("order_id", order.ID),
		zap.String("title", order.Title),
		zap.Stringer("plan", plan),
		zap.Stringer("code", code),
	)
	return record, nil
}

func (d *Dispatcher) recordAttempt(ctx context.Context, orderID string, status models.DeliveryAttemptStatus, cause error) {
	attempt := models.DeliveryAttempt{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		CreatedAt: d.now(),
		Status:    status,
	}
	if cause != nil {
		attempt.ErrorMessage = cause.Error()
	}
	if err := d.store.RecordAttempt(context.WithoutCancel(ctx), &attempt); err != nil {
		d.logger.Warn("Failed to record delivery attempt",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
