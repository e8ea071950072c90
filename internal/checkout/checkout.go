// Package checkout turns a purchase request into a hosted Stripe checkout
// session and the pending order that tracks it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/payment"
	"github.com/dukerupert/aideals/internal/store"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

type Request struct {
	ToolID           string `json:"toolId" validate:"required,max=100"`
	PlanID           string `json:"planId" validate:"omitempty,max=100"`
	CustomerEmail    string `json:"customerEmail" validate:"omitempty,email,max=255"`
	CustomerPassword string `json:"customerPassword" validate:"omitempty,max=100"`
}

type Result struct {
	URL        string `json:"url"`
	GuestToken string `json:"guestToken,omitempty"`
	OrderID    string `json:"-"`
	SessionID  string `json:"-"`
}

type paymentProvider interface {
	ResolvePrice(req payment.PriceRequest) (productID, priceID string, err error)
	CreateCheckoutSession(req payment.CheckoutRequest) (*payment.Session, error)
}

type encrypter interface {
	Encrypt(plaintext, context string) (string, error)
}

type guestTokenIssuer interface {
	IssueGuest(email, orderID string) (string, error)
}

type Service struct {
	tools       *store.ToolStore
	plans       *store.PlanStore
	orders      *store.OrderStore
	credentials *store.CredentialStore
	payments    paymentProvider
	vault       encrypter
	tokens      guestTokenIssuer
	baseURL     string
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

type Deps struct {
	Tools       *store.ToolStore
	Plans       *store.PlanStore
	Orders      *store.OrderStore
	Credentials *store.CredentialStore
	Payments    paymentProvider
	Vault       encrypter
	Tokens      guestTokenIssuer
	BaseURL     string
	Logger      *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		tools:       d.Tools,
		plans:       d.Plans,
		orders:      d.Orders,
		credentials: d.Credentials,
		payments:    d.Payments,
		vault:       d.Vault,
		tokens:      d.Tokens,
		baseURL:     strings.TrimRight(d.BaseURL, "/"),
		logger:      d.Logger,
		validate:    NewValidator(),
		now:         time.Now,
	}
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationMessage flattens validator errors into one readable sentence.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

type offer struct {
	tool         *model.Tool
	plan         *model.ToolPlan
	price        decimal.Decimal
	hours        int
	deliveryType string
}

// Create validates the request, resolves the Stripe price, opens a checkout
// session and records the pending order. Failures to persist the order or
// its credential are logged; the buyer still gets the payment URL.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	req.ToolID = strings.TrimSpace(req.ToolID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, ValidationMessage(err))
	}

	ident, signedIn := auth.FromContext(ctx)
	email := req.CustomerEmail
	if email == "" && signedIn {
		email = strings.ToLower(ident.Email)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrValidation)
	}

	o, err := s.resolveOffer(req.ToolID, req.PlanID)
	if err != nil {
		return nil, err
	}
	amount := o.price.Shift(2).Round(0).IntPart()
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %s has no checkout price", ErrValidation, req.ToolID)
	}

	orderID := uuid.NewString()
	_, priceID, err := s.payments.ResolvePrice(payment.PriceRequest{
		ToolID:     o.tool.ToolID,
		PlanID:     req.PlanID,
		Name:       o.tool.Name,
		UnitAmount: amount,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve price: %w", err)
	}

	meta := map[string]string{"order_id": orderID, "tool_id": o.tool.ToolID}
	if req.PlanID != "" {
		meta["plan_id"] = req.PlanID
	}
	var userID *int64
	if signedIn && ident.UserID != 0 {
		uid := ident.UserID
		userID = &uid
		meta["user_id"] = strconv.FormatInt(uid, 10)
	}

	sess, err := s.payments.CreateCheckoutSession(payment.CheckoutRequest{
		PriceID:       priceID,
		CustomerEmail: email,
		OrderID:       orderID,
		SuccessURL:    s.baseURL + "/dashboard?payment=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.baseURL + "/tools/" + url.PathEscape(o.tool.ToolID) + "?payment=cancelled",
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	order := model.Order{
		ID:                 orderID,
		ToolID:             o.tool.ToolID,
		UserID:             userID,
		BuyerEmail:         email,
		StripeSessionID:    &sess.ID,
		CustomerData:       map[string]string{"email": email, "delivery_type": o.deliveryType},
		ActivationDeadline: model.ActivationDeadline(now, o.hours),
		CreatedAt:          now,
	}
	if o.plan != nil {
		order.PlanID = &o.plan.PlanID
	}
	if _, err := s.orders.Create(order); err != nil {
		s.logger.Error("insert order", "order_id", orderID, "session_id", sess.ID, "error", err)
	}

	if o.deliveryType == model.DeliverySubscribeForThem && req.CustomerPassword != "" {
		s.storeCredential(orderID, email, req.CustomerPassword)
	}

	res := &Result{URL: sess.URL, OrderID: orderID, SessionID: sess.ID}
	if !signedIn || ident.IsGuest() {
		tok, err := s.tokens.IssueGuest(email, orderID)
		if err != nil {
			s.logger.Error("issue guest token", "order_id", orderID, "error", err)
		}
		res.GuestToken = tok
	}

	s.logger.Info("checkout session created",
		"order_id", orderID,
		"session_id", sess.ID,
		"tool_id", o.tool.ToolID,
		"plan_id", req.PlanID,
	)
	return res, nil
}

func (s *Service) resolveOffer(toolID, planID string) (*offer, error) {
	tool, err := s.tools.GetByToolID(toolID)
	if err != nil {
		return nil, fmt.Errorf("load tool: %w", err)
	}
	if tool == nil || !tool.IsActive {
		return nil, fmt.Errorf("%w: tool %s", ErrNotFound, toolID)
	}
	if planID == "" {
		return &offer{tool: tool, price: tool.Price, hours: tool.ActivationTime, deliveryType: tool.DeliveryType}, nil
	}

	plan, err := s.plans.Get(toolID, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, model.PlanKey(toolID, planID))
	}
	if plan.MonthlyPrice == nil {
		return nil, fmt.Errorf("%w: plan %s is sold on request", ErrValidation, planID)
	}
	return &offer{
		tool:         tool,
		plan:         plan,
		price:        *plan.MonthlyPrice,
		hours:        plan.ActivationTime,
		deliveryType: plan.DeliveryType,
	}, nil
}

func (s *Service) storeCredential(orderID, email, password string) {
	blob, err := s.vault.Encrypt(password, orderID)
	if err != nil {
		s.logger.Error("encrypt credential", "order_id", orderID, "error", err)
		return
	}
	if _, err := s.credentials.Create(orderID, email, blob); err != nil {
		s.logger.Error("insert credential", "order_id", orderID, "error", err)
	}
}
