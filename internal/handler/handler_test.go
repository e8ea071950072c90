package handler

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/notify"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/vault"
)

type fakeNotifier struct {
	paid      []string
	activated []string
	err       error
	panics    int
}

func (f *fakeNotifier) PaymentConfirmed(_ context.Context, o model.Order) error {
	if f.panics > 0 {
		f.panics--
		panic("mail client blew up")
	}
	f.paid = append(f.paid, o.ID)
	return f.err
}

func (f *fakeNotifier) OrderActivated(_ context.Context, o model.Order) error {
	f.activated = append(f.activated, o.ID)
	return f.err
}

func (f *fakeNotifier) Send(ctx context.Context, kind string, o model.Order) error {
	switch kind {
	case notify.TypePaymentConfirmed:
		return f.PaymentConfirmed(ctx, o)
	case notify.TypeOrderActivated:
		return f.OrderActivated(ctx, o)
	}
	return notify.ErrUnknownType
}

type published struct {
	action  string
	orderID string
	status  string
}

type fakeFeed struct {
	msgs []published
}

func (f *fakeFeed) PublishOrder(action string, o model.Order) {
	f.msgs = append(f.msgs, published{action: action, orderID: o.ID, status: o.Status})
}

type testEnv struct {
	db            *sql.DB
	tools         *store.ToolStore
	plans         *store.PlanStore
	orders        *store.OrderStore
	credentials   *store.CredentialStore
	subscriptions *store.SubscriptionStore
	events        *store.WebhookEventStore
	vault         *vault.Vault
	notifier      *fakeNotifier
	feed          *fakeFeed
	logger        *slog.Logger
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	v, err := vault.New("test-master-secret")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	env := &testEnv{
		db:            db,
		tools:         store.NewToolStore(db),
		plans:         store.NewPlanStore(db),
		orders:        store.NewOrderStore(db),
		credentials:   store.NewCredentialStore(db),
		subscriptions: store.NewSubscriptionStore(db),
		events:        store.NewWebhookEventStore(db),
		vault:         v,
		notifier:      &fakeNotifier{},
		feed:          &fakeFeed{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err = env.tools.Upsert(model.Tool{
		ToolID:         "chatgpt",
		Name:           "ChatGPT",
		Price:          decimal.RequireFromString("20"),
		DeliveryType:   model.DeliveryProvideAccount,
		ActivationTime: 24,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	return env
}

func (e *testEnv) seedOrder(t *testing.T, sessionID string, userID *int64, email string) *model.Order {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	o, err := e.orders.Create(model.Order{
		ToolID:             "chatgpt",
		UserID:             userID,
		BuyerEmail:         email,
		StripeSessionID:    &sessionID,
		ActivationDeadline: model.ActivationDeadline(now, 24),
		CreatedAt:          now,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func (e *testEnv) seedPlan(t *testing.T, planID, price string) *model.ToolPlan {
	t.Helper()
	p := decimal.RequireFromString(price)
	plan, err := e.plans.Upsert(model.ToolPlan{
		ToolID:         "chatgpt",
		PlanID:         planID,
		PlanName:       strings.ToUpper(planID[:1]) + planID[1:],
		MonthlyPrice:   &p,
		DeliveryType:   model.DeliveryProvideAccount,
		ActivationTime: 24,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func int64Ptr(v int64) *int64 { return &v }

func withIdentity(r *http.Request, id auth.Identity) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), id))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}
