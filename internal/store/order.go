package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(s scanner) (*model.Order, error) {
	var o model.Order
	var planID, sessionID sql.NullString
	var userID sql.NullInt64
	var customerData string
	var activatedAt, missedAt sql.NullTime
	err := s.Scan(
		&o.ID, &o.ToolID, &planID, &userID, &o.BuyerEmail, &o.Status, &o.PaymentStatus,
		&sessionID, &customerData, &o.ActivationDeadline, &activatedAt, &missedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if planID.Valid {
		o.PlanID = &planID.String
	}
	if userID.Valid {
		o.UserID = &userID.Int64
	}
	if sessionID.Valid {
		o.StripeSessionID = &sessionID.String
	}
	if activatedAt.Valid {
		o.ActivatedAt = &activatedAt.Time
	}
	if missedAt.Valid {
		o.DeadlineMissedAt = &missedAt.Time
	}
	if err := json.Unmarshal([]byte(customerData), &o.CustomerData); err != nil {
		return nil, fmt.Errorf("decode customer data: %w", err)
	}
	return &o, nil
}

const orderCols = `id, tool_id, plan_id, user_id, buyer_email, status, payment_status, stripe_session_id, customer_data, activation_deadline, activated_at, deadline_missed_at, created_at, updated_at`

// Create inserts a pending, unpaid order. ID is generated when empty;
// CreatedAt and ActivationDeadline are written as given.
func (s *OrderStore) Create(o model.Order) (*model.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CustomerData == nil {
		o.CustomerData = map[string]string{}
	}
	data, err := json.Marshal(o.CustomerData)
	if err != nil {
		return nil, fmt.Errorf("encode customer data: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO orders (id, tool_id, plan_id, user_id, buyer_email, status, payment_status, stripe_session_id, customer_data, activation_deadline, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ToolID, o.PlanID, o.UserID, o.BuyerEmail, model.OrderPending, model.PaymentUnpaid,
		o.StripeSessionID, string(data),
		database.FormatTime(o.ActivationDeadline), database.FormatTime(o.CreatedAt), database.FormatTime(o.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return s.GetByID(o.ID)
}

func (s *OrderStore) GetByID(id string) (*model.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) GetBySessionID(sessionID string) (*model.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderCols+` FROM orders WHERE stripe_session_id = ?`, sessionID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by session: %w", err)
	}
	return o, nil
}

// MarkPaid records payment for the order created with the given checkout
// session. A pending order moves to processing; later statuses are kept.
// changed is false when the order was already paid, and the order is nil
// when no order matches.
func (s *OrderStore) MarkPaid(sessionID string) (order *model.Order, changed bool, err error) {
	res, err := s.db.Exec(
		`UPDATE orders SET
		   payment_status = 'paid',
		   status = CASE WHEN status = 'pending' THEN 'processing' ELSE status END,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_session_id = ? AND payment_status != 'paid'`,
		sessionID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	order, err = s.GetBySessionID(sessionID)
	if err != nil {
		return nil, false, err
	}
	return order, n > 0, nil
}

// Transition moves an order that is still pending or processing to status.
// Activation stamps activated_at. It returns false when the order does not
// exist or has already left the pending/processing states.
func (s *OrderStore) Transition(id, status string, at time.Time) (bool, error) {
	var activatedAt any
	if status == model.OrderActive {
		activatedAt = database.FormatTime(at)
	}
	res, err := s.db.Exec(
		`UPDATE orders SET status = ?, activated_at = COALESCE(?, activated_at), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('pending', 'processing')`,
		status, activatedAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *OrderStore) listWhere(where string, args ...any) ([]model.Order, error) {
	rows, err := s.db.Query(`SELECT `+orderCols+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListByUser returns a signed-in buyer's orders, newest first.
func (s *OrderStore) ListByUser(userID int64) ([]model.Order, error) {
	return s.listWhere(`WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// List returns orders for the admin console. An empty status lists all.
func (s *OrderStore) List(status string, limit, offset int) ([]model.Order, error) {
	if status == "" {
		return s.listWhere(`ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	}
	return s.listWhere(`WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, status, limit, offset)
}

// ListOverdue returns unfulfilled orders whose activation deadline is at or
// before now and that have not been flagged yet.
func (s *OrderStore) ListOverdue(now time.Time) ([]model.Order, error) {
	return s.listWhere(
		`WHERE status IN ('pending', 'processing') AND deadline_missed_at IS NULL AND activation_deadline <= ?
		 ORDER BY activation_deadline ASC`,
		database.FormatTime(now),
	)
}

// MarkDeadlineMissed flags the order once. It returns false if it was
// already flagged.
func (s *OrderStore) MarkDeadlineMissed(id string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE orders SET deadline_missed_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deadline_missed_at IS NULL`,
		database.FormatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark deadline missed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
