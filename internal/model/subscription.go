package model

import "time"

const (
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	OrderID              string     `json:"order_id"`
	ToolID               string     `json:"tool_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// WebhookEvent records a payment provider event that has been claimed for
// processing.
type WebhookEvent struct {
	EventID         string     `json:"event_id"`
	EventType       string     `json:"event_type"`
	Attempts        int        `json:"attempts"`
	ProcessingError *string    `json:"processing_error"`
	ProcessedAt     *time.Time `json:"processed_at"`
	ClaimedAt       time.Time  `json:"claimed_at"`
	ReceivedAt      time.Time  `json:"received_at"`
}
