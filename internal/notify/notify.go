// Package notify sends the buyer-facing order emails.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/aideals/internal/email"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/store"
)

const (
	TypePaymentConfirmed = "payment_confirmed"
	TypeOrderActivated   = "order_activated"
)

var ErrUnknownType = errors.New("unknown notification type")

// KnownType reports whether Send can dispatch kind.
func KnownType(kind string) bool {
	return kind == TypePaymentConfirmed || kind == TypeOrderActivated
}

type mailer interface {
	SendPaymentConfirmed(ctx context.Context, p email.PaymentConfirmed) error
	SendOrderActivated(ctx context.Context, p email.OrderActivated) error
}

type Notifier struct {
	mail  mailer
	tools *store.ToolStore
	plans *store.PlanStore
}

func New(mail mailer, tools *store.ToolStore, plans *store.PlanStore) *Notifier {
	return &Notifier{mail: mail, tools: tools, plans: plans}
}

// Send dispatches a notification by type name.
func (n *Notifier) Send(ctx context.Context, kind string, o model.Order) error {
	switch kind {
	case TypePaymentConfirmed:
		return n.PaymentConfirmed(ctx, o)
	case TypeOrderActivated:
		return n.OrderActivated(ctx, o)
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, kind)
}

func (n *Notifier) PaymentConfirmed(ctx context.Context, o model.Order) error {
	toolName, planName, _ := n.names(o)
	return n.mail.SendPaymentConfirmed(ctx, email.PaymentConfirmed{
		To:       o.BuyerEmail,
		OrderID:  o.ID,
		ToolName: toolName,
		PlanName: planName,
		Deadline: o.ActivationDeadline,
	})
}

func (n *Notifier) OrderActivated(ctx context.Context, o model.Order) error {
	toolName, planName, accessURL := n.names(o)
	return n.mail.SendOrderActivated(ctx, email.OrderActivated{
		To:        o.BuyerEmail,
		OrderID:   o.ID,
		ToolName:  toolName,
		PlanName:  planName,
		AccessURL: accessURL,
	})
}

// names falls back to the slugs when catalog rows are gone.
func (n *Notifier) names(o model.Order) (tool, plan, accessURL string) {
	tool = o.ToolID
	if t, err := n.tools.GetByToolID(o.ToolID); err == nil && t != nil {
		tool = t.Name
		accessURL = t.AccessURL
	}
	if o.PlanID != nil {
		plan = *o.PlanID
		if p, err := n.plans.Get(o.ToolID, *o.PlanID); err == nil && p != nil {
			plan = p.PlanName
		}
	}
	return tool, plan, accessURL
}
