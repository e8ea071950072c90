package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery types describe how access to a tool is handed to the buyer.
const (
	DeliveryProvideAccount   = "provide_account"
	DeliverySubscribeForThem = "subscribe_for_them"
	DeliveryEmailOnly        = "email_only"
	DeliveryLinkAccess       = "link_access"
	DeliveryAPIKey           = "api_key"
)

// ValidDeliveryType reports whether s is one of the known delivery types.
func ValidDeliveryType(s string) bool {
	switch s {
	case DeliveryProvideAccount, DeliverySubscribeForThem, DeliveryEmailOnly, DeliveryLinkAccess, DeliveryAPIKey:
		return true
	}
	return false
}

type Tool struct {
	ID             int64           `json:"id"`
	ToolID         string          `json:"tool_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	DeliveryType   string          `json:"delivery_type"`
	AccessURL      string          `json:"access_url"`
	ActivationTime int             `json:"activation_time"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ToolPlan is a priced tier under a tool. A nil MonthlyPrice means the plan
// is sold on request ("contact pricing").
type ToolPlan struct {
	ID             int64            `json:"id"`
	ToolID         string           `json:"tool_id"`
	PlanID         string           `json:"plan_id"`
	PlanName       string           `json:"plan_name"`
	MonthlyPrice   *decimal.Decimal `json:"monthly_price"`
	DeliveryType   string           `json:"delivery_type"`
	ActivationTime int              `json:"activation_time"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Key returns the natural key used to reconcile plans: "tool_id::plan_id".
func (p ToolPlan) Key() string {
	return PlanKey(p.ToolID, p.PlanID)
}

func PlanKey(toolID, planID string) string {
	return toolID + "::" + planID
}
