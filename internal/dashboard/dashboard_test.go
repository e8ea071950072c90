package dashboard

import (
	"testing"
	"time"

	"github.com/dukerupert/aideals/internal/model"
)

func TestViewCountdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		status   string
		deadline time.Time
		wantSecs *int64
		wantText string
		wantLate bool
	}{
		{"hours left", model.OrderPending, now.Add(5 * time.Hour), ptr(5 * 3600), "5 hours left", false},
		{"minutes left", model.OrderProcessing, now.Add(30 * time.Minute), ptr(1800), "30 minutes left", false},
		{"overdue", model.OrderProcessing, now.Add(-3 * time.Hour), ptr(0), "3 hours overdue", true},
		{"active has no countdown", model.OrderActive, now.Add(time.Hour), nil, "", false},
		{"cancelled has no countdown", model.OrderCancelled, now.Add(-time.Hour), nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View(model.Order{ID: "o", Status: tt.status, ActivationDeadline: tt.deadline}, now)
			switch {
			case tt.wantSecs == nil && v.SecondsRemaining != nil:
				t.Errorf("SecondsRemaining = %d, want nil", *v.SecondsRemaining)
			case tt.wantSecs != nil && (v.SecondsRemaining == nil || *v.SecondsRemaining != *tt.wantSecs):
				t.Errorf("SecondsRemaining = %v, want %d", v.SecondsRemaining, *tt.wantSecs)
			}
			if v.Countdown != tt.wantText {
				t.Errorf("Countdown = %q, want %q", v.Countdown, tt.wantText)
			}
			if v.Overdue != tt.wantLate {
				t.Errorf("Overdue = %v, want %v", v.Overdue, tt.wantLate)
			}
		})
	}
}

func ptr(n int64) *int64 { return &n }
