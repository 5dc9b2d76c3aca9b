package store

import (
	"context"
	"database/sql"
	"fmt"

	"registration-service/internal/models"
)

// CreateOrder persists a pending order together with its priced line items
// in one transaction. The total is fixed here and never touched again.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_id, status, total_amount, currency,
			buyer_name, buyer_email, buyer_phone, buyer_gender, buyer_age,
			university_name, address, university_id_card,
			team_roster, form_data, environment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OrderID, order.Status, order.TotalAmount, order.Currency,
		order.BuyerName, order.BuyerEmail, order.BuyerPhone, order.BuyerGender, order.BuyerAge,
		order.UniversityName, order.Address, order.UniversityIDCard,
		order.TeamRoster, []byte(order.FormData), order.Environment,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, catalog_id, name, unit_price, quantity)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.OrderID, item.CatalogID, item.Name, item.UnitPrice, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByOrderID retrieves an order and its line items by public order id
func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return nil, err
	}

	return &order, nil
}

// MarkOrderCompleted transitions an order from pending to completed. The
// conditional WHERE clause makes this a compare-and-set: of any number of
// concurrent completion signals for the same order, exactly one observes
// transitioned == true.
func (s *Store) MarkOrderCompleted(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, completed_at = NOW() WHERE order_id = $2 AND status = $3`,
		models.OrderStatusCompleted, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkOrderFailed transitions an order from pending to failed with a reason.
// A completed order is never overwritten.
func (s *Store) MarkOrderFailed(ctx context.Context, orderID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_reason = $2 WHERE order_id = $3 AND status = $4`,
		models.OrderStatusFailed, reason, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AttachGatewaySession records the gateway session id on a freshly created order
func (s *Store) AttachGatewaySession(ctx context.Context, orderID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_session_id = $1 WHERE order_id = $2",
		sessionID, orderID)
	return err
}

// StampGatewayPayment records transaction correlation metadata from a
// webhook. Completed orders are left untouched.
func (s *Store) StampGatewayPayment(ctx context.Context, orderID, transactionID, paymentMethod string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET transaction_id = $1, payment_method = $2
		 WHERE order_id = $3 AND status <> $4`,
		transactionID, paymentMethod, orderID, models.OrderStatusCompleted)
	return err
}

// LinkOrderAttendee stores the durable attendee reference and credential
// flag on an order after materialization.
func (s *Store) LinkOrderAttendee(ctx context.Context, orderID string, attendeeID int64, credentialIssued bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET attendee_id = $1, credential_issued = $2 WHERE order_id = $3",
		attendeeID, credentialIssued, orderID)
	return err
}

// MarkOrderNotified stamps the confirmation dispatch on the order
func (s *Store) MarkOrderNotified(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET notification_sent = TRUE, notification_sent_at = NOW() WHERE order_id = $1",
		orderID)
	return err
}

// ListUnnotifiedCompleted returns completed orders whose confirmation was
// never recorded as sent, newest first. Used by the operator backfill.
func (s *Store) ListUnnotifiedCompleted(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE status = $1 AND notification_sent = FALSE
		 ORDER BY created_at DESC LIMIT $2`,
		models.OrderStatusCompleted, limit)
	return orders, err
}
