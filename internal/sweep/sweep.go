// Package sweep flags orders that passed their activation deadline.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/websocket"
)

type orderPublisher interface {
	PublishOrder(action string, o model.Order)
}

type alerter interface {
	Alert(ctx context.Context, payload push.Payload)
}

// Sweeper stamps deadline_missed_at on overdue orders so they can be
// refunded. Order status is left alone.
type Sweeper struct {
	orders   *store.OrderStore
	feed     orderPublisher
	alerts   alerter
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a sweeper. alerts may be nil when web push is not configured.
func New(orders *store.OrderStore, feed orderPublisher, alerts alerter, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		orders:   orders,
		feed:     feed,
		alerts:   alerts,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep flags every currently overdue order and returns how many were
// flagged by this call.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now().UTC().Truncate(time.Second)
	overdue, err := s.orders.ListOverdue(now)
	if err != nil {
		s.logger.Error("list overdue orders", "error", err)
		return 0
	}

	flagged := 0
	for _, o := range overdue {
		ok, err := s.orders.MarkDeadlineMissed(o.ID, now)
		if err != nil {
			s.logger.Error("mark deadline missed", "order_id", o.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		flagged++
		o.DeadlineMissedAt = &now
		s.logger.Warn("activation deadline missed",
			"order_id", o.ID,
			"tool_id", o.ToolID,
			"deadline", o.ActivationDeadline,
		)
		s.feed.PublishOrder(websocket.ActionDeadlineMissed, o)
		if s.alerts != nil {
			s.alerts.Alert(ctx, push.DeadlineMissedAlert(o, now))
		}
	}
	return flagged
}
