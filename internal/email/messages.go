package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/dustin/go-humanize"
)

type PaymentConfirmed struct {
	To       string
	OrderID  string
	ToolName string
	PlanName string
	Deadline time.Time
}

// SendPaymentConfirmed tells the buyer their payment went through and when
// access will be delivered.
func (c *Client) SendPaymentConfirmed(ctx context.Context, p PaymentConfirmed) error {
	product := productName(p.ToolName, p.PlanName)
	due := p.Deadline.UTC().Format("Jan 2, 2006 15:04 MST")
	eta := humanize.Time(p.Deadline)
	dashboard := c.baseURL + "/dashboard"

	text := fmt.Sprintf(
		"Thanks for your purchase of %s.\n\nYour payment is confirmed and we are preparing your access. "+
			"It will be ready by %s (%s).\n\nTrack your order: %s\n\nOrder reference: %s",
		product, due, eta, dashboard, p.OrderID,
	)
	body := fmt.Sprintf(
		`<p>Thanks for your purchase of <strong>%s</strong>.</p>`+
			`<p>Your payment is confirmed and we are preparing your access. It will be ready by %s (%s).</p>`+
			`<p><a href="%s">Track your order</a></p><p>Order reference: %s</p>`,
		html.EscapeString(product), due, eta, dashboard, html.EscapeString(p.OrderID),
	)

	return c.Send(ctx, Message{
		To:      p.To,
		Subject: fmt.Sprintf("Payment confirmed: %s", product),
		HTML:    body,
		Text:    text,
	})
}

type OrderActivated struct {
	To        string
	OrderID   string
	ToolName  string
	PlanName  string
	AccessURL string
}

// SendOrderActivated tells the buyer their tool is ready to use.
func (c *Client) SendOrderActivated(ctx context.Context, p OrderActivated) error {
	product := productName(p.ToolName, p.PlanName)
	link := p.AccessURL
	if link == "" {
		link = c.baseURL + "/dashboard"
	}

	text := fmt.Sprintf(
		"Good news: your %s access is active.\n\nGet started: %s\n\nOrder reference: %s",
		product, link, p.OrderID,
	)
	body := fmt.Sprintf(
		`<p>Good news: your <strong>%s</strong> access is active.</p>`+
			`<p><a href="%s">Get started</a></p><p>Order reference: %s</p>`,
		html.EscapeString(product), html.EscapeString(link), html.EscapeString(p.OrderID),
	)

	return c.Send(ctx, Message{
		To:      p.To,
		Subject: fmt.Sprintf("Your %s access is ready", product),
		HTML:    body,
		Text:    text,
	})
}

func productName(tool, plan string) string {
	if plan == "" {
		return tool
	}
	return tool + " " + plan
}
