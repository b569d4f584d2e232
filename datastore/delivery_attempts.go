package datastore

import (
	"context"
	"fmt"

	"github.com/coreybb/xianyu-autodeliver/models"
)

func (s *SQLStore) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if err := validateAttempt(attempt); err != nil {
		return err
	}

	query := `
		INSERT INTO delivery_attempts (id, order_id, created_at, status, error_message)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		attempt.ID, attempt.OrderID, toMillis(attempt.CreatedAt), string(attempt.Status), attempt.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}
	return nil
}

func (s *SQLStore) CountFailedAttempts(ctx context.Context, orderID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM delivery_attempts WHERE order_id = ? AND status = ?`),
		orderID, string(models.DeliveryAttemptFailed),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count delivery attempts for order %s: %w", orderID, err)
	}
	return count, nil
}
