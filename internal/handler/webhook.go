package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/websocket"
)

const maxWebhookBody = 65536

type eventVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type orderNotifier interface {
	PaymentConfirmed(ctx context.Context, o model.Order) error
	OrderActivated(ctx context.Context, o model.Order) error
}

type orderPublisher interface {
	PublishOrder(action string, o model.Order)
}

type alerter interface {
	Alert(ctx context.Context, payload push.Payload)
}

type WebhookHandler struct {
	verifier      eventVerifier
	events        *store.WebhookEventStore
	orders        *store.OrderStore
	subscriptions *store.SubscriptionStore
	notifier      orderNotifier
	feed          orderPublisher
	alerts        alerter
	logger        *slog.Logger
	now           func() time.Time
}

// WebhookDeps wires the webhook handler. Alerts may be nil.
type WebhookDeps struct {
	Verifier      eventVerifier
	Events        *store.WebhookEventStore
	Orders        *store.OrderStore
	Subscriptions *store.SubscriptionStore
	Notifier      orderNotifier
	Feed          orderPublisher
	Alerts        alerter
	Logger        *slog.Logger
}

func NewWebhookHandler(d WebhookDeps) *WebhookHandler {
	return &WebhookHandler{
		verifier:      d.Verifier,
		events:        d.Events,
		orders:        d.Orders,
		subscriptions: d.Subscriptions,
		notifier:      d.Notifier,
		feed:          d.Feed,
		alerts:        d.Alerts,
		logger:        d.Logger,
		now:           time.Now,
	}
}

// HandleStripe handles POST /webhooks/stripe
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxWebhookBody)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.verifier.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		writeMessage(w, http.StatusBadRequest, "invalid signature")
		return
	}

	process := h.processor(event.Type)
	if process == nil {
		h.logger.Debug("webhook event ignored", "event_id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	claimed, err := h.events.Claim(event.ID, string(event.Type), h.now())
	if err != nil {
		h.logger.Error("claim webhook event", "event_id", event.ID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !claimed {
		h.skipClaimed(w, event)
		return
	}

	if err := h.run(r.Context(), event, process); err != nil {
		h.logger.Error("process webhook event", "event_id", event.ID, "type", event.Type, "error", err)
		if merr := h.events.MarkFailed(event.ID, err); merr != nil {
			h.logger.Error("mark webhook event failed", "event_id", event.ID, "error", merr)
		}
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.events.MarkProcessed(event.ID); err != nil {
		h.logger.Error("mark webhook event processed", "event_id", event.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// skipClaimed answers a delivery that could not claim its event. A processed
// event is acknowledged; one still held by another attempt gets a 409 so
// Stripe delivers it again after the claim is released or its lease expires.
func (h *WebhookHandler) skipClaimed(w http.ResponseWriter, event stripe.Event) {
	prev, err := h.events.Get(event.ID)
	if err != nil {
		h.logger.Error("load webhook event", "event_id", event.ID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if prev != nil && prev.ProcessedAt == nil {
		h.logger.Warn("webhook event in flight", "event_id", event.ID, "type", event.Type, "claimed_at", prev.ClaimedAt)
		writeMessage(w, http.StatusConflict, "event is being processed")
		return
	}
	h.logger.Info("webhook event already handled", "event_id", event.ID, "type", event.Type)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// run processes a claimed event. A panic is returned as an error so the
// claim is marked failed instead of staying in flight.
func (h *WebhookHandler) run(ctx context.Context, event stripe.Event, process func(context.Context, stripe.Event) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("webhook handler panic", "event_id", event.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return process(ctx, event)
}

func (h *WebhookHandler) processor(t stripe.EventType) func(context.Context, stripe.Event) error {
	switch t {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted
	case "invoice.payment_succeeded", "invoice.paid":
		return h.handleInvoicePaid
	case "invoice.payment_failed":
		return h.handleInvoicePaymentFailed
	case "customer.subscription.updated":
		return h.handleSubscriptionUpdated
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted
	}
	return nil
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	order, err := h.orders.GetBySessionID(sess.ID)
	if err != nil {
		return err
	}
	if order == nil {
		h.logger.Error("no order for checkout session", "event_id", event.ID, "session_id", sess.ID)
		return nil
	}
	if err := h.ensureSubscription(order, &sess); err != nil {
		return err
	}

	order, changed, err := h.orders.MarkPaid(sess.ID)
	if err != nil {
		return err
	}
	if order == nil || !changed {
		return nil
	}

	// Notifications are best effort and run once, on the delivery that
	// flipped the payment status.
	h.logger.Info("order paid", "order_id", order.ID, "session_id", sess.ID)
	if err := h.notifier.PaymentConfirmed(ctx, *order); err != nil {
		h.logger.Error("send payment confirmation", "order_id", order.ID, "error", err)
	}
	if h.alerts != nil {
		h.alerts.Alert(ctx, push.OrderPaidAlert(*order, h.now()))
	}
	h.feed.PublishOrder(websocket.ActionPaid, *order)
	return nil
}

// ensureSubscription records the Stripe subscription of a signed-in buyer's
// order. It is a no-op for guests and when the row already exists.
func (h *WebhookHandler) ensureSubscription(order *model.Order, sess *stripe.CheckoutSession) error {
	if sess.Subscription == nil || sess.Subscription.ID == "" || order.UserID == nil {
		return nil
	}
	sub := model.Subscription{
		UserID:               *order.UserID,
		OrderID:              order.ID,
		ToolID:               order.ToolID,
		StripeSubscriptionID: sess.Subscription.ID,
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		sub.StripeCustomerID = &sess.Customer.ID
	}
	_, created, err := h.subscriptions.CreateIfAbsent(sub)
	if err != nil {
		return err
	}
	if created {
		h.logger.Info("subscription created", "order_id", order.ID, "subscription_id", sub.StripeSubscriptionID)
	}
	return nil
}

func (h *WebhookHandler) handleInvoicePaid(_ context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	subID := invoiceSubscriptionID(&inv)
	if subID == "" {
		return nil
	}
	start, end := invoicePeriod(&inv)
	ok, err := h.subscriptions.RecordPayment(subID, start, end)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Warn("invoice for unknown subscription", "event_id", event.ID, "subscription_id", subID)
	}
	return nil
}

func (h *WebhookHandler) handleInvoicePaymentFailed(_ context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	subID := invoiceSubscriptionID(&inv)
	if subID == "" {
		return nil
	}
	return h.setStatus(event, subID, model.SubscriptionPastDue)
}

func (h *WebhookHandler) handleSubscriptionUpdated(_ context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	ok, err := h.subscriptions.SetCancelAtPeriodEnd(sub.ID, sub.CancelAtPeriodEnd)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Warn("update for unknown subscription", "event_id", event.ID, "subscription_id", sub.ID)
	}
	return nil
}

func (h *WebhookHandler) handleSubscriptionDeleted(_ context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	return h.setStatus(event, sub.ID, model.SubscriptionCancelled)
}

func (h *WebhookHandler) setStatus(event stripe.Event, subID, status string) error {
	ok, err := h.subscriptions.UpdateStatus(subID, status)
	if err != nil {
		return err
	}
	if !ok {
		h.logger.Warn("status change for unknown subscription", "event_id", event.ID, "subscription_id", subID, "status", status)
		return nil
	}
	h.logger.Info("subscription status changed", "subscription_id", subID, "status", status)
	return nil
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// invoicePeriod prefers the service period of the first line item; the
// invoice-level period only covers the billing run.
func invoicePeriod(inv *stripe.Invoice) (time.Time, time.Time) {
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > 0 {
				return time.Unix(line.Period.Start, 0).UTC(), time.Unix(line.Period.End, 0).UTC()
			}
		}
	}
	return time.Unix(inv.PeriodStart, 0).UTC(), time.Unix(inv.PeriodEnd, 0).UTC()
}
