package sweep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/store"
)

type recordingFeed struct {
	actions []string
	orders  []model.Order
}

func (f *recordingFeed) PublishOrder(action string, o model.Order) {
	f.actions = append(f.actions, action)
	f.orders = append(f.orders, o)
}

type recordingAlerts struct {
	payloads []push.Payload
}

func (a *recordingAlerts) Alert(_ context.Context, p push.Payload) {
	a.payloads = append(a.payloads, p)
}

func setup(t *testing.T) (*store.OrderStore, time.Time) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = store.NewToolStore(db).Upsert(model.Tool{
		ToolID: "chatgpt", Name: "ChatGPT", Price: decimal.NewFromInt(20),
		DeliveryType: model.DeliveryProvideAccount, ActivationTime: 24, IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	return store.NewOrderStore(db), time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func createOrder(t *testing.T, orders *store.OrderStore, createdAt time.Time, hours int) *model.Order {
	t.Helper()
	o, err := orders.Create(model.Order{
		ToolID:             "chatgpt",
		BuyerEmail:         "b@example.com",
		CreatedAt:          createdAt,
		ActivationDeadline: model.ActivationDeadline(createdAt, hours),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestSweepFlagsOverdueOnce(t *testing.T) {
	orders, now := setup(t)
	overdue := createOrder(t, orders, now.Add(-30*time.Hour), 24)
	onTime := createOrder(t, orders, now.Add(-1*time.Hour), 24)
	done := createOrder(t, orders, now.Add(-48*time.Hour), 24)
	if _, err := orders.Transition(done.ID, model.OrderActive, now.Add(-40*time.Hour)); err != nil {
		t.Fatal(err)
	}

	feed := &recordingFeed{}
	alerts := &recordingAlerts{}
	s := New(orders, feed, alerts, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }

	if got := s.Sweep(context.Background()); got != 1 {
		t.Fatalf("first sweep flagged %d, want 1", got)
	}
	if got := s.Sweep(context.Background()); got != 0 {
		t.Errorf("second sweep flagged %d, want 0", got)
	}

	o, _ := orders.GetByID(overdue.ID)
	if o.DeadlineMissedAt == nil || !o.DeadlineMissedAt.Equal(now) {
		t.Errorf("DeadlineMissedAt = %v, want %v", o.DeadlineMissedAt, now)
	}
	if o.Status != model.OrderPending {
		t.Errorf("status = %q, sweeper must not change status", o.Status)
	}
	if o, _ := orders.GetByID(onTime.ID); o.DeadlineMissedAt != nil {
		t.Error("on-time order flagged")
	}
	if o, _ := orders.GetByID(done.ID); o.DeadlineMissedAt != nil {
		t.Error("fulfilled order flagged")
	}

	if len(feed.orders) != 1 || feed.orders[0].ID != overdue.ID || feed.actions[0] != "deadline_missed" {
		t.Errorf("feed = %v %v", feed.actions, feed.orders)
	}
	if len(alerts.payloads) != 1 || alerts.payloads[0].Tag != "deadline_missed:"+overdue.ID {
		t.Errorf("alerts = %+v", alerts.payloads)
	}
}

func TestSweepWithoutAlerts(t *testing.T) {
	orders, now := setup(t)
	createOrder(t, orders, now.Add(-25*time.Hour), 24)

	s := New(orders, &recordingFeed{}, nil, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	if got := s.Sweep(context.Background()); got != 1 {
		t.Errorf("flagged %d, want 1", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	orders, _ := setup(t)
	s := New(orders, &recordingFeed{}, nil, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
