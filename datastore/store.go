// Package datastore persists delivery records: the durable record of which
// orders have already been fulfilled.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreybb/xianyu-autodeliver/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSONFile = "jsonfile"
)

var (
	// ErrStorageWrite means a delivery record could not be made durable.
	// Continuing would risk delivering the same order twice, so callers must stop.
	ErrStorageWrite = errors.New("delivery record write failed")

	ErrAlreadyDelivered = errors.New("order already has a successful delivery record")
	ErrInvalidRecord    = errors.New("invalid delivery record")
	ErrNotFound         = errors.New("delivery record not found")
)

// DeliveryStore is the dedup store keyed by order id.
type DeliveryStore interface {
	// Has reports whether orderID has a successful delivery record.
	Has(ctx context.Context, orderID string) (bool, error)
	// Put durably commits a successful delivery before returning.
	Put(ctx context.Context, record *models.DeliveryRecord) error
	// LoadAll returns every delivered order id.
	LoadAll(ctx context.Context) (map[string]struct{}, error)
	Get(ctx context.Context, orderID string) (*models.DeliveryRecord, error)
	// List returns the most recent records first.
	List(ctx context.Context, limit int) ([]models.DeliveryRecord, error)

	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	CountFailedAttempts(ctx context.Context, orderID string) (int, error)

	Close() error
}

// Open opens the store selected by driver. dsn is a file path for sqlite and
// jsonfile, and a connection string for postgres.
func Open(ctx context.Context, driver, dsn string) (DeliveryStore, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	case DriverJSONFile:
		return OpenJSONFile(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

func validateRecord(record *models.DeliveryRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.OrderID == "" {
		return fmt.Errorf("%w: order id is empty", ErrInvalidRecord)
	}
	if record.ID == "" {
		return fmt.Errorf("%w: record id is empty", ErrInvalidRecord)
	}
	if !record.Success {
		return fmt.Errorf("%w: only successful deliveries are committed", ErrInvalidRecord)
	}
	return nil
}

func validateAttempt(attempt *models.DeliveryAttempt) error {
	if attempt == nil || attempt.ID == "" || attempt.OrderID == "" {
		return fmt.Errorf("invalid delivery attempt: id and order id are required")
	}
	switch attempt.Status {
	case models.DeliveryAttemptDelivered, models.DeliveryAttemptFailed:
		return nil
	default:
		return fmt.Errorf("invalid delivery attempt status %q", attempt.Status)
	}
}
