// Package dashboard shapes orders for the buyer dashboard and its live feed.
package dashboard

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/aideals/internal/model"
)

// OrderView is an order plus its live activation countdown. The countdown
// fields are only set while the order awaits fulfilment.
type OrderView struct {
	model.Order
	SecondsRemaining *int64 `json:"seconds_remaining,omitempty"`
	Countdown        string `json:"countdown,omitempty"`
	Overdue          bool   `json:"overdue"`
}

func View(o model.Order, now time.Time) OrderView {
	v := OrderView{Order: o}
	if !o.AwaitingFulfilment() {
		return v
	}
	secs := int64(o.ActivationDeadline.Sub(now) / time.Second)
	if secs < 0 {
		secs = 0
	}
	v.SecondsRemaining = &secs
	v.Overdue = !now.Before(o.ActivationDeadline)
	v.Countdown = humanize.CustomRelTime(o.ActivationDeadline, now, "overdue", "left", countdownMagnitudes)
	return v
}

func Views(orders []model.Order, now time.Time) []OrderView {
	views := make([]OrderView, len(orders))
	for i, o := range orders {
		views[i] = View(o, now)
	}
	return views
}

var countdownMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "less than a second %s", DivBy: time.Second},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 week %s", DivBy: 1},
	{D: humanize.Month, Format: "%d weeks %s", DivBy: humanize.Week},
	{D: humanize.LongTime, Format: "a long while %s", DivBy: 1},
}
