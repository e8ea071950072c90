package model

import "time"

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderActive     = "active"
	OrderCancelled  = "cancelled"
)

const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

type Order struct {
	ID                 string            `json:"id"`
	ToolID             string            `json:"tool_id"`
	PlanID             *string           `json:"plan_id"`
	UserID             *int64            `json:"user_id"`
	BuyerEmail         string            `json:"buyer_email"`
	Status             string            `json:"status"`
	PaymentStatus      string            `json:"payment_status"`
	StripeSessionID    *string           `json:"stripe_session_id"`
	CustomerData       map[string]string `json:"customer_data"`
	ActivationDeadline time.Time         `json:"activation_deadline"`
	ActivatedAt        *time.Time        `json:"activated_at"`
	DeadlineMissedAt   *time.Time        `json:"deadline_missed_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// AwaitingFulfilment reports whether the order still counts down towards its
// activation deadline.
func (o *Order) AwaitingFulfilment() bool {
	return o.Status == OrderPending || o.Status == OrderProcessing
}

type OrderCredential struct {
	ID                int64     `json:"id"`
	OrderID           string    `json:"order_id"`
	Email             string    `json:"email"`
	EncryptedPassword string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// ActivationDeadline is the fulfilment SLA of an order created at createdAt
// for a tool or plan promising activation within the given hours.
func ActivationDeadline(createdAt time.Time, hours int) time.Time {
	return createdAt.Add(time.Duration(hours) * time.Hour)
}
