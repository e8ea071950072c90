// Package payment wraps the Stripe API calls used by checkout and webhooks.
package payment

import (
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrProvider marks failures reported by Stripe.
var ErrProvider = errors.New("payment provider error")

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// stripeAPI is the subset of Stripe endpoints the client calls.
type stripeAPI interface {
	GetProduct(id string) (*stripe.Product, error)
	CreateProduct(params *stripe.ProductParams) (*stripe.Product, error)
	ListPrices(params *stripe.PriceListParams) ([]*stripe.Price, error)
	CreatePrice(params *stripe.PriceParams) (*stripe.Price, error)
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Client struct {
	cfg Config
	api stripeAPI
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	return &Client{cfg: cfg, api: liveAPI{}}
}

// PriceRequest identifies the recurring monthly price a checkout needs.
type PriceRequest struct {
	ToolID     string
	PlanID     string
	Name       string
	UnitAmount int64 // minor units
}

// ProductID returns the Stripe product ID reserved for a tool.
func ProductID(toolID string) string {
	return "aideals_" + toolID
}

// ResolvePrice finds or creates the product for the tool and an active monthly
// price on it matching the plan and unit amount. A changed amount yields a
// new price; existing prices are never modified.
func (c *Client) ResolvePrice(req PriceRequest) (productID, priceID string, err error) {
	productID, err = c.ensureProduct(req)
	if err != nil {
		return "", "", err
	}

	prices, err := c.api.ListPrices(&stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	})
	if err != nil {
		return "", "", providerErr("list prices", err)
	}
	for _, p := range prices {
		if c.priceMatches(p, req) {
			return productID, p.ID, nil
		}
	}

	meta := map[string]string{"tool_id": req.ToolID}
	if req.PlanID != "" {
		meta["plan_id"] = req.PlanID
	}
	p, err := c.api.CreatePrice(&stripe.PriceParams{
		Product:    stripe.String(productID),
		Currency:   stripe.String(c.cfg.Currency),
		UnitAmount: stripe.Int64(req.UnitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		Metadata: meta,
	})
	if err != nil {
		return "", "", providerErr("create price", err)
	}
	return productID, p.ID, nil
}

func (c *Client) priceMatches(p *stripe.Price, req PriceRequest) bool {
	if !p.Active || p.UnitAmount != req.UnitAmount || string(p.Currency) != c.cfg.Currency {
		return false
	}
	if p.Recurring == nil || p.Recurring.Interval != stripe.PriceRecurringIntervalMonth {
		return false
	}
	return p.Metadata["tool_id"] == req.ToolID && p.Metadata["plan_id"] == req.PlanID
}

func (c *Client) ensureProduct(req PriceRequest) (string, error) {
	id := ProductID(req.ToolID)
	prod, err := c.api.GetProduct(id)
	if err == nil {
		return prod.ID, nil
	}
	if !isResourceMissing(err) {
		return "", providerErr("get product", err)
	}

	prod, err = c.api.CreateProduct(&stripe.ProductParams{
		ID:       stripe.String(id),
		Name:     stripe.String(req.Name),
		Metadata: map[string]string{"tool_id": req.ToolID},
	})
	if err != nil {
		return "", providerErr("create product", err)
	}
	return prod.ID, nil
}

// CheckoutRequest describes a subscription-mode hosted checkout.
type CheckoutRequest struct {
	PriceID       string
	CustomerEmail string
	OrderID       string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type Session struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a Stripe checkout session for one seat of the price.
func (c *Client) CreateCheckoutSession(req CheckoutRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		Metadata:          req.Metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	sess, err := c.api.CreateCheckoutSession(params)
	if err != nil {
		return nil, providerErr("create checkout session", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func isResourceMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == 404)
}

// providerErr keeps Stripe's own message so callers can surface it.
func providerErr(op string, err error) error {
	msg := err.Error()
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		msg = se.Msg
	}
	return fmt.Errorf("%s: %w: %s", op, ErrProvider, msg)
}

type liveAPI struct{}

func (liveAPI) GetProduct(id string) (*stripe.Product, error) {
	return product.Get(id, nil)
}

func (liveAPI) CreateProduct(params *stripe.ProductParams) (*stripe.Product, error) {
	return product.New(params)
}

func (liveAPI) ListPrices(params *stripe.PriceListParams) ([]*stripe.Price, error) {
	var prices []*stripe.Price
	it := price.List(params)
	for it.Next() {
		prices = append(prices, it.Price())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

func (liveAPI) CreatePrice(params *stripe.PriceParams) (*stripe.Price, error) {
	return price.New(params)
}

func (liveAPI) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return checksession.New(params)
}
