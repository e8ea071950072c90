package model

import "time"

// Alert kinds pushed to admin devices.
const (
	AlertOrderPaid      = "order_paid"
	AlertDeadlineMissed = "deadline_missed"
)

// AdminPushSubscription is a browser push endpoint registered by an admin.
type AdminPushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
