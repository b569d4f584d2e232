package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coreybb/xianyu-autodeliver/models"
)

func (s *SQLStore) Has(ctx context.Context, orderID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT 1 FROM delivery_records WHERE order_id = ? AND success`), orderID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check delivery record for order %s: %w", orderID, err)
	}
	return true, nil
}

func (s *SQLStore) Put(ctx context.Context, record *models.DeliveryRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO delivery_records (order_id, id, title, plan_months, delivered_at, success)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		record.OrderID, record.ID, record.Title, record.Plan.Months(), toMillis(record.DeliveredAt), record.Success,
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", record.OrderID, ErrAlreadyDelivered)
		}
		return fmt.Errorf("%w: insert record for order %s: %w", ErrStorageWrite, record.OrderID, err)
	}
	return nil
}

func (s *SQLStore) LoadAll(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id FROM delivery_records WHERE success`)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery records: %w", err)
	}
	defer rows.Close()

	delivered := make(map[string]struct{})
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		delivered[orderID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery records: %w", err)
	}
	return delivered, nil
}

func (s *SQLStore) Get(ctx context.Context, orderID string) (*models.DeliveryRecord, error) {
	query := `
		SELECT order_id, id, title, plan_months, delivered_at, success
		FROM delivery_records
		WHERE order_id = ?
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(query), orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get delivery record for order %s: %w", orderID, err)
	}
	return record, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT order_id, id, title, plan_months, delivered_at, success
		FROM delivery_records
		ORDER BY delivered_at DESC, order_id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}
	defer rows.Close()

	records := []models.DeliveryRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DeliveryRecord, error) {
	var (
		record      models.DeliveryRecord
		planMonths  int
		deliveredAt int64
	)
	if err := row.Scan(&record.OrderID, &record.ID, &record.Title, &planMonths, &deliveredAt, &record.Success); err != nil {
		return nil, err
	}
	record.Plan = models.PlanDuration(planMonths)
	record.DeliveredAt = fromMillis(deliveredAt)
	return &record, nil
}
