package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/coreybb/xianyu-autodeliver/models"
)

const (
	DefaultHomeURL   = "https://seller.idle.taobao.com/"
	DefaultOrdersURL = "https://seller.idle.taobao.com/order.htm?tab=3"

	defaultActionTimeout = 60 * time.Second
	loginCheckTimeout    = 15 * time.Second
	optionalStepTimeout  = 5 * time.Second
)

// BrowserConfig configures the Chrome instance behind a BrowserSession.
type BrowserConfig struct {
	// ProfileDir is a persistent Chrome user-data-dir holding the logged-in session.
	ProfileDir string
	Headless   bool
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	HomeURL   string
	OrdersURL string
	// ActionTimeout bounds a whole list or send operation when the caller sets no deadline.
	ActionTimeout time.Duration
}

func (c *BrowserConfig) applyDefaults() {
	if c.HomeURL == "" {
		c.HomeURL = DefaultHomeURL
	}
	if c.OrdersURL == "" {
		c.OrdersURL = DefaultOrdersURL
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = defaultActionTimeout
	}
}

// BrowserSession drives the seller centre through Chrome DevTools Protocol.
// It is acquired once at startup and released on shutdown.
type BrowserSession struct {
	config BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Acquire launches Chrome with the persistent profile and verifies that the
// seller is logged in. It returns ErrSessionLost if not.
func Acquire(ctx context.Context, config BrowserConfig, logger *zap.Logger) (*BrowserSession, error) {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
	)
	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if config.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(config.ProfileDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &BrowserSession{
		config:        config,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// The first Run allocates the browser; it must not carry a deadline or the
	// browser dies with it.
	if err := chromedp.Run(browserCtx); err != nil {
		s.Release()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if err := s.checkLoggedIn(ctx); err != nil {
		s.Release()
		return nil, err
	}
	logger.Info("Marketplace session acquired",
		zap.String("profile_dir", config.ProfileDir),
		zap.Bool("headless", config.Headless),
	)
	return s, nil
}

// Release closes the browser. The session must not be used afterwards.
func (s *BrowserSession) Release() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.logger.Info("Marketplace session released")
}

func (s *BrowserSession) checkLoggedIn(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, loginCheckTimeout)
	defer cancel()

	err := s.run(checkCtx,
		chromedp.Navigate(s.config.HomeURL),
		chromedp.WaitVisible(loggedInSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: logged-in marker not found: %w", ErrSessionLost, err)
	}
	return nil
}

// ListPendingOrders scrapes the "awaiting delivery" tab.
func (s *BrowserSession) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	var (
		location string
		rows     []scrapedOrder
	)
	err := s.run(ctx,
		chromedp.Navigate(s.config.OrdersURL),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open orders page: %w", err)
	}
	if isLoginURL(location) {
		return nil, fmt.Errorf("%w: redirected to %s", ErrSessionLost, location)
	}

	err = s.run(ctx,
		chromedp.WaitReady(orderListSelector, chromedp.ByQuery),
		chromedp.Evaluate(scrapeOrdersJS, &rows),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending orders: %w", err)
	}

	orders := parseScrapedOrders(rows)
	s.logger.Debug("Scraped pending orders", zap.Int("rows", len(rows)), zap.Int("orders", len(orders)))
	return orders, nil
}

// SendMessage opens the order's delivery dialog, picks "no logistics",
// writes text into the delivery note and confirms.
func (s *BrowserSession) SendMessage(ctx context.Context, buyerID, orderID, text string) error {
	if err := validateOrderID(orderID); err != nil {
		return err
	}

	var location string
	if err := s.run(ctx, chromedp.Navigate(s.config.OrdersURL), chromedp.Location(&location)); err != nil {
		return fmt.Errorf("failed to open orders page: %w", err)
	}
	if isLoginURL(location) {
		return fmt.Errorf("%w: redirected to %s", ErrSessionLost, location)
	}

	var items []*cdp.Node
	err := s.run(ctx,
		chromedp.WaitReady(orderListSelector, chromedp.ByQuery),
		chromedp.Nodes(orderItemXPath(orderID), &items, chromedp.BySearch, chromedp.AtLeast(0)),
	)
	if err != nil {
		return fmt.Errorf("failed to locate order %s: %w", orderID, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	err = s.run(ctx,
		chromedp.Click(deliverButtonXPath(orderID), chromedp.BySearch),
		chromedp.WaitVisible(deliveryDialog, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to open delivery dialog for order %s: %w", orderID, err)
	}

	// The dialog sometimes opens on the no-logistics tab already.
	if err := s.runOptional(ctx, chromedp.Click(noLogisticsButtonXPath, chromedp.BySearch)); err != nil {
		s.logger.Debug("No-logistics option not clicked", zap.String("order_id", orderID), zap.Error(err))
	}

	err = s.run(ctx,
		chromedp.WaitVisible(deliveryNoteInput, chromedp.ByQuery),
		chromedp.Clear(deliveryNoteInput, chromedp.ByQuery),
		chromedp.SendKeys(deliveryNoteInput, text, chromedp.ByQuery),
		chromedp.Click(confirmDeliveryXPath, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm delivery for order %s: %w", orderID, err)
	}

	if err := s.runOptional(ctx, chromedp.Click(finalConfirmButtonXPath, chromedp.BySearch)); err != nil {
		s.logger.Debug("No final confirmation dialog", zap.String("order_id", orderID))
	}

	s.logger.Info("Delivery note sent",
		zap.String("order_id", orderID),
		zap.String("buyer", buyerID),
	)
	return nil
}

// run executes actions on the browser tab, bounded by ctx and by ActionTimeout.
// Cancelling ctx aborts the actions without closing the tab.
func (s *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := s.config.ActionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(s.browserCtx.Err(), context.Canceled) {
		return fmt.Errorf("%w: browser closed: %w", ErrSessionLost, err)
	}
	return err
}

func (s *BrowserSession) runOptional(ctx context.Context, actions ...chromedp.Action) error {
	optCtx, cancel := context.WithTimeout(ctx, optionalStepTimeout)
	defer cancel()
	return s.run(optCtx, actions...)
}

var _ Session = (*BrowserSession)(nil)
