package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(s scanner) (*model.Subscription, error) {
	var sub model.Subscription
	var customerID sql.NullString
	var periodStart, periodEnd sql.NullTime
	var cancelAtPeriodEnd int
	err := s.Scan(
		&sub.ID, &sub.UserID, &sub.OrderID, &sub.ToolID, &sub.StripeSubscriptionID, &customerID,
		&sub.Status, &periodStart, &periodEnd, &cancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sub.StripeCustomerID = &customerID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

const subscriptionCols = `id, user_id, order_id, tool_id, stripe_subscription_id, stripe_customer_id, status, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

// CreateIfAbsent inserts an active subscription unless one with the same
// Stripe subscription ID exists. created reports whether a row was added.
func (s *SubscriptionStore) CreateIfAbsent(sub model.Subscription) (*model.Subscription, bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, order_id, tool_id, stripe_subscription_id, stripe_customer_id, status)
		 VALUES (?, ?, ?, ?, ?, 'active')
		 ON CONFLICT(stripe_subscription_id) DO NOTHING`,
		sub.UserID, sub.OrderID, sub.ToolID, sub.StripeSubscriptionID, sub.StripeCustomerID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	got, err := s.GetByStripeID(sub.StripeSubscriptionID)
	if err != nil {
		return nil, false, err
	}
	return got, n > 0, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListByUser(userID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// RecordPayment refreshes the billing period and reactivates the subscription.
// It returns false when no subscription has the given Stripe ID.
func (s *SubscriptionStore) RecordPayment(stripeSubID string, periodStart, periodEnd time.Time) (bool, error) {
	return s.exec(
		`UPDATE subscriptions SET status = 'active', current_period_start = ?, current_period_end = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE stripe_subscription_id = ?`,
		database.FormatTime(periodStart), database.FormatTime(periodEnd), stripeSubID,
	)
}

func (s *SubscriptionStore) UpdateStatus(stripeSubID, status string) (bool, error) {
	return s.exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE stripe_subscription_id = ?`,
		status, stripeSubID,
	)
}

func (s *SubscriptionStore) SetCancelAtPeriodEnd(stripeSubID string, cancel bool) (bool, error) {
	return s.exec(
		`UPDATE subscriptions SET cancel_at_period_end = ?, updated_at = CURRENT_TIMESTAMP WHERE stripe_subscription_id = ?`,
		boolInt(cancel), stripeSubID,
	)
}

func (s *SubscriptionStore) exec(query string, args ...any) (bool, error) {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
