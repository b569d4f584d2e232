// Package scheduler drives the poll loop: fetch pending orders, resolve the
// plan, mint a code and deliver it, once per order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/coreybb/xianyu-autodeliver/activation"
	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/metrics"
	"github.com/coreybb/xianyu-autodeliver/models"
	"github.com/coreybb/xianyu-autodeliver/webutil"
)

const (
	defaultInterval    = 300 * time.Second
	defaultCallTimeout = 30 * time.Second
)

type OrderSource interface {
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
}

type PlanResolver interface {
	Resolve(title string) models.PlanDuration
}

type CodeMinter interface {
	Mint(ctx context.Context, orderID string, plan models.PlanDuration) (*models.ActivationCode, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, order models.Order, plan models.PlanDuration, code *models.ActivationCode) (*models.DeliveryRecord, error)
}

// Config tunes the loop.
type Config struct {
	Interval    time.Duration
	CallTimeout time.Duration
	// MaxDeliveryAttempts parks an order once this many sends have failed.
	// Zero retries forever.
	MaxDeliveryAttempts int
}

// CycleResult counts what a single cycle did with the orders it fetched.
type CycleResult struct {
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Delivered  int `json:"delivered"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
	Parked     int `json:"parked"`
}

// Scheduler owns the marketplace session for the lifetime of Run. Only the
// loop goroutine touches it; Trigger just wakes that goroutine.
type Scheduler struct {
	orders    OrderSource
	resolver  PlanResolver
	minter    CodeMinter
	deliverer Deliverer
	store     datastore.DeliveryStore
	metrics   *metrics.Collector
	config    Config
	logger    *zap.Logger

	running   atomic.Bool
	trigger   chan struct{}
	delivered map[string]struct{}
}

// New creates a new Scheduler with all required dependencies.
func New(
	orders OrderSource,
	resolver PlanResolver,
	minter CodeMinter,
	deliverer Deliverer,
	store datastore.DeliveryStore,
	collector *metrics.Collector,
	config Config,
	logger *zap.Logger,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	if collector == nil {
		collector = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		orders:    orders,
		resolver:  resolver,
		minter:    minter,
		deliverer: deliverer,
		store:     store,
		metrics:   collector,
		config:    config,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		delivered: make(map[string]struct{}),
	}
}

// Run warms the delivered set from the store, then runs a cycle immediately
// and every Interval afterwards until ctx is done. It returns nil on shutdown
// and a fatal error when the process must stop.
func (s *Scheduler) Run(ctx context.Context) error {
	ids, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load delivered orders: %w", err)
	}
	s.delivered = ids
	s.metrics.SetDeliveredOrders(len(ids))
	s.logger.Info("Poll loop starting",
		zap.Int("delivered_orders", len(ids)),
		zap.Duration("interval", s.config.Interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poll loop stopped")
			return nil
		case <-timer.C:
		case <-s.trigger:
			s.logger.Info("Early cycle requested")
		}

		if _, err := s.RunCycle(ctx); err != nil {
			if IsFatal(err) {
				s.logger.Error("Poll loop stopping on fatal error", zap.Error(err))
				return err
			}
			s.logger.Warn("Poll cycle failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			s.logger.Info("Poll loop stopped")
			return nil
		}

		timer.Reset(s.config.Interval)
	}
}

// Trigger asks the loop to start a cycle without waiting for the interval.
// Requests made while a cycle is pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// HandleTick is an HTTP handler that requests an early cycle.
func (s *Scheduler) HandleTick(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Tick triggered via HTTP", zap.String("remote_addr", r.RemoteAddr))
	s.Trigger()
	webutil.RespondWithJSON(w, http.StatusAccepted, webutil.StatusBody{Status: "triggered"})
}

// RunCycle runs one fetch-and-deliver pass. Cycles never overlap; a
// concurrent call returns ErrCycleInProgress without touching the session.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.ObserveCycle(metrics.CycleSkipped, 0)
		return CycleResult{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	result, err := s.runCycle(ctx)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.ObserveCycle(metrics.CycleFailed, elapsed)
		return result, err
	}
	s.metrics.ObserveCycle(metrics.CycleOK, elapsed)
	s.logger.Info("Poll cycle finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("delivered", result.Delivered),
		zap.Int("skipped", result.Skipped),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("failed", result.Failed),
		zap.Int("parked", result.Parked),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *Scheduler) runCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	orders, err := s.orders.ListPendingOrders(fetchCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("fetch pending orders: %w", err)
	}
	result.Fetched = len(orders)

	for _, order := range orders {
		if ctx.Err() != nil {
			s.logger.Info("Shutdown requested, stopping before next order",
				zap.String("order_id", order.ID))
			break
		}

		outcome, err := s.processOrder(ctx, order)
		s.metrics.ObserveOrder(outcome)
		switch outcome {
		case metrics.OrderDelivered:
			result.Delivered++
		case metrics.OrderSkipped:
			result.Skipped++
		case metrics.OrderUnresolved:
			result.Unresolved++
		case metrics.OrderParked:
			result.Parked++
		default:
			result.Failed++
		}
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// processOrder handles the full pipeline for a single order. The returned
// error is non-nil only when the failure is fatal; everything else is logged
// and retried next cycle.
func (s *Scheduler) processOrder(ctx context.Context, order models.Order) (string, error) {
	log := s.logger.With(zap.String("order_id", order.ID), zap.String("title", order.Title))

	if _, ok := s.delivered[order.ID]; ok {
		return metrics.OrderSkipped, nil
	}
	done, err := s.store.Has(ctx, order.ID)
	if err != nil {
		log.Warn("Failed to check delivery record", zap.Error(err))
		return metrics.OrderFailed, nil
	}
	if done {
		s.markDelivered(order.ID)
		return metrics.OrderSkipped, nil
	}

	if s.config.MaxDeliveryAttempts > 0 {
		failed, err := s.store.CountFailedAttempts(ctx, order.ID)
		if err != nil {
			log.Warn("Failed to count delivery attempts", zap.Error(err))
			return metrics.OrderFailed, nil
		}
		if failed >= s.config.MaxDeliveryAttempts {
			log.Error("Order parked after repeated send failures, manual delivery required",
				zap.Int("failed_attempts", failed))
			return metrics.OrderParked, nil
		}
	}

	plan := s.resolver.Resolve(order.Title)
	if !plan.Resolved() {
		log.Warn("Could not resolve plan from title")
		return metrics.OrderUnresolved, nil
	}
	log = log.With(zap.Stringer("plan", plan))

	// From here on the order runs to completion even if shutdown is requested.
	orderCtx := context.WithoutCancel(ctx)

	mintCtx, cancel := context.WithTimeout(orderCtx, s.config.CallTimeout)
	code, err := s.minter.Mint(mintCtx, order.ID, plan)
	cancel()
	if err != nil {
		if errors.Is(err, activation.ErrUnauthorized) {
			log.Error("Activation api rejected credentials", zap.Error(err))
		} else {
			log.Warn("Failed to mint activation code", zap.Error(err))
		}
		return metrics.OrderFailed, nil
	}

	if _, err := s.deliverer.Deliver(orderCtx, order, plan, code); err != nil {
		if IsFatal(err) {
			log.Error("Delivery failed fatally", zap.Error(err))
			return metrics.OrderFailed, err
		}
		log.Warn("Failed to deliver activation code", zap.Error(err))
		return metrics.OrderFailed, nil
	}

	s.markDelivered(order.ID)
	return metrics.OrderDelivered, nil
}

func (s *Scheduler) markDelivered(orderID string) {
	s.delivered[orderID] = struct{}{}
	s.metrics.SetDeliveredOrders(len(s.delivered))
}
