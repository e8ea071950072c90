package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/payment"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/websocket"
)

const testWebhookSecret = "whsec_test"

func newWebhookHandler(env *testEnv) *WebhookHandler {
	return NewWebhookHandler(WebhookDeps{
		Verifier:      payment.NewClient(payment.Config{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}),
		Events:        env.events,
		Orders:        env.orders,
		Subscriptions: env.subscriptions,
		Notifier:      env.notifier,
		Feed:          env.feed,
		Logger:        env.logger,
	})
}

func eventJSON(id, typ, object string) string {
	return `{"id":"` + id + `","object":"event","type":"` + typ + `","api_version":"2025-03-31.basil","data":{"object":` + object + `}}`
}

func postSigned(t *testing.T, h *WebhookHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(signed.Payload)))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)
	return rec
}

func sessionCompleted(eventID, sessionID string) string {
	return eventJSON(eventID, "checkout.session.completed",
		`{"id":"`+sessionID+`","object":"checkout.session","subscription":"sub_1","customer":"cus_1"}`)
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	order := env.seedOrder(t, "cs_1", int64Ptr(7), "buyer@example.com")

	rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Errorf("body = %s", rec.Body)
	}

	got, _ := env.orders.GetByID(order.ID)
	if got.PaymentStatus != model.PaymentPaid || got.Status != model.OrderProcessing {
		t.Errorf("order = %s/%s, want paid/processing", got.PaymentStatus, got.Status)
	}
	sub, err := env.subscriptions.GetByStripeID("sub_1")
	if err != nil || sub == nil {
		t.Fatalf("subscription = %v, %v", sub, err)
	}
	if sub.UserID != 7 || sub.OrderID != order.ID || sub.Status != model.SubscriptionActive {
		t.Errorf("subscription = %+v", sub)
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID != "cus_1" {
		t.Errorf("customer = %v", sub.StripeCustomerID)
	}
	if len(env.notifier.paid) != 1 {
		t.Errorf("payment emails = %d, want 1", len(env.notifier.paid))
	}
	if len(env.feed.msgs) != 1 || env.feed.msgs[0].action != websocket.ActionPaid {
		t.Errorf("feed = %+v", env.feed.msgs)
	}
	ev, _ := env.events.Get("evt_1")
	if ev == nil || ev.ProcessedAt == nil {
		t.Errorf("event not marked processed: %+v", ev)
	}
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", int64Ptr(7), "buyer@example.com")

	for i := 0; i < 3; i++ {
		if rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1")); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, rec.Code)
		}
	}
	// A different event for the same session must not repeat side effects either.
	if rec := postSigned(t, h, sessionCompleted("evt_2", "cs_1")); rec.Code != http.StatusOK {
		t.Fatalf("second event: status = %d", rec.Code)
	}

	if len(env.notifier.paid) != 1 {
		t.Errorf("payment emails = %d, want 1", len(env.notifier.paid))
	}
	if len(env.feed.msgs) != 1 {
		t.Errorf("feed messages = %d, want 1", len(env.feed.msgs))
	}
	subs, _ := env.subscriptions.ListByUser(7)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}
}

func TestWebhookGuestOrderCreatesNoSubscription(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", nil, "guest@example.com")

	if rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1")); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if sub, _ := env.subscriptions.GetByStripeID("sub_1"); sub != nil {
		t.Errorf("guest order created subscription %+v", sub)
	}
	if len(env.notifier.paid) != 1 {
		t.Errorf("payment emails = %d, want 1", len(env.notifier.paid))
	}
}

func TestWebhookUnknownSession(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)

	rec := postSigned(t, h, sessionCompleted("evt_1", "cs_missing"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(env.notifier.paid) != 0 || len(env.feed.msgs) != 0 {
		t.Error("unknown session triggered side effects")
	}
}

func TestWebhookUnknownEventType(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	order := env.seedOrder(t, "cs_1", nil, "buyer@example.com")

	rec := postSigned(t, h, eventJSON("evt_1", "customer.created", `{"id":"cus_1","object":"customer"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	n, err := env.events.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("webhook_events rows = %d, want 0", n)
	}
	got, _ := env.orders.GetByID(order.ID)
	if got.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("payment status = %s", got.PaymentStatus)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", nil, "buyer@example.com")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(sessionCompleted("evt_1", "cs_1")))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if n, _ := env.events.Count(); n != 0 {
		t.Errorf("webhook_events rows = %d, want 0", n)
	}
	got, _ := env.orders.GetBySessionID("cs_1")
	if got.PaymentStatus != model.PaymentUnpaid {
		t.Error("order changed on bad signature")
	}
}

func TestWebhookInvoiceLifecycle(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", int64Ptr(7), "buyer@example.com")
	postSigned(t, h, sessionCompleted("evt_1", "cs_1"))

	invoice := func(eventID, typ string) string {
		return eventJSON(eventID, typ, `{"id":"in_1","object":"invoice",`+
			`"parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1"}},`+
			`"lines":{"object":"list","data":[{"id":"il_1","object":"line_item","period":{"start":1767225600,"end":1769904000}}]}}`)
	}

	if rec := postSigned(t, h, invoice("evt_2", "invoice.payment_failed")); rec.Code != http.StatusOK {
		t.Fatalf("payment_failed: status = %d", rec.Code)
	}
	sub, _ := env.subscriptions.GetByStripeID("sub_1")
	if sub.Status != model.SubscriptionPastDue {
		t.Errorf("status = %s, want past_due", sub.Status)
	}

	if rec := postSigned(t, h, invoice("evt_3", "invoice.paid")); rec.Code != http.StatusOK {
		t.Fatalf("paid: status = %d", rec.Code)
	}
	sub, _ = env.subscriptions.GetByStripeID("sub_1")
	if sub.Status != model.SubscriptionActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	wantEnd := time.Unix(1769904000, 0).UTC()
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(wantEnd) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, wantEnd)
	}

	updated := eventJSON("evt_4", "customer.subscription.updated", `{"id":"sub_1","object":"subscription","cancel_at_period_end":true}`)
	if rec := postSigned(t, h, updated); rec.Code != http.StatusOK {
		t.Fatalf("updated: status = %d", rec.Code)
	}
	sub, _ = env.subscriptions.GetByStripeID("sub_1")
	if !sub.CancelAtPeriodEnd {
		t.Error("cancel_at_period_end not set")
	}

	deleted := eventJSON("evt_5", "customer.subscription.deleted", `{"id":"sub_1","object":"subscription"}`)
	if rec := postSigned(t, h, deleted); rec.Code != http.StatusOK {
		t.Fatalf("deleted: status = %d", rec.Code)
	}
	sub, _ = env.subscriptions.GetByStripeID("sub_1")
	if sub.Status != model.SubscriptionCancelled {
		t.Errorf("status = %s, want cancelled", sub.Status)
	}
}

func TestWebhookPanicReleasesClaim(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", int64Ptr(7), "buyer@example.com")
	env.notifier.panics = 1

	rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("first delivery: status = %d, want 500", rec.Code)
	}
	ev, _ := env.events.Get("evt_1")
	if ev == nil || ev.ProcessingError == nil {
		t.Fatalf("event not marked failed: %+v", ev)
	}
	if sub, _ := env.subscriptions.GetByStripeID("sub_1"); sub == nil {
		t.Error("subscription should be recorded before notifications run")
	}

	rec = postSigned(t, h, sessionCompleted("evt_1", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery: status = %d, body = %s", rec.Code, rec.Body)
	}
	ev, _ = env.events.Get("evt_1")
	if ev.ProcessedAt == nil || ev.Attempts != 2 {
		t.Errorf("event after redelivery = %+v", ev)
	}
	got, _ := env.orders.GetBySessionID("cs_1")
	if got.PaymentStatus != model.PaymentPaid {
		t.Errorf("payment status = %s", got.PaymentStatus)
	}
}

func TestWebhookSubscriptionFailureIsRetried(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", int64Ptr(7), "buyer@example.com")

	_, err := env.db.Exec(`CREATE TRIGGER fail_subscriptions BEFORE INSERT ON subscriptions
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("first delivery: status = %d, want 500", rec.Code)
	}
	ev, _ := env.events.Get("evt_1")
	if ev == nil || ev.ProcessingError == nil {
		t.Fatalf("event not marked failed: %+v", ev)
	}
	got, _ := env.orders.GetBySessionID("cs_1")
	if got.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("order paid before its subscription was recorded")
	}
	if len(env.notifier.paid) != 0 {
		t.Errorf("payment emails = %d, want 0", len(env.notifier.paid))
	}

	if _, err := env.db.Exec(`DROP TRIGGER fail_subscriptions`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	for i := 0; i < 2; i++ {
		if rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1")); rec.Code != http.StatusOK {
			t.Fatalf("redelivery %d: status = %d", i, rec.Code)
		}
	}

	if sub, _ := env.subscriptions.GetByStripeID("sub_1"); sub == nil {
		t.Error("subscription not created on redelivery")
	}
	if len(env.notifier.paid) != 1 {
		t.Errorf("payment emails = %d, want 1", len(env.notifier.paid))
	}
	if len(env.feed.msgs) != 1 {
		t.Errorf("feed messages = %d, want 1", len(env.feed.msgs))
	}
}

func TestWebhookInFlightEventIsRetried(t *testing.T) {
	env := setup(t)
	h := newWebhookHandler(env)
	env.seedOrder(t, "cs_1", nil, "buyer@example.com")

	if ok, err := env.events.Claim("evt_1", "checkout.session.completed", time.Now()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(env.notifier.paid) != 0 {
		t.Error("in-flight event was processed twice")
	}

	h.now = func() time.Time { return time.Now().Add(store.WebhookClaimLease + time.Minute) }
	if rec := postSigned(t, h, sessionCompleted("evt_1", "cs_1")); rec.Code != http.StatusOK {
		t.Fatalf("after lease: status = %d", rec.Code)
	}
	if len(env.notifier.paid) != 1 {
		t.Errorf("payment emails = %d, want 1", len(env.notifier.paid))
	}
}
