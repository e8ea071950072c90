package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/aideals/internal/archive"
	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/email"
	"github.com/dukerupert/aideals/internal/handler"
	"github.com/dukerupert/aideals/internal/middleware"
	"github.com/dukerupert/aideals/internal/notify"
	"github.com/dukerupert/aideals/internal/payment"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/sweep"
	"github.com/dukerupert/aideals/internal/vault"
	ws "github.com/dukerupert/aideals/internal/websocket"
)

// Public form endpoints allow this many requests per IP per minute.
const publicRateLimit = 10

type Server struct {
	hub            *ws.Hub
	originPatterns []string
	checkoutH      *handler.CheckoutHandler
	webhookH       *handler.WebhookHandler
	notificationH  *handler.NotificationHandler
	credentialH    *handler.CredentialHandler
	catalogH       *handler.CatalogHandler
	orderH         *handler.OrderHandler
	adminOrderH    *handler.AdminOrderHandler
	adminCatalogH  *handler.AdminCatalogHandler
	pushH          *handler.PushHandler
	healthH        *handler.HealthHandler
	tokens         *auth.Tokens
	rateLimiter    *middleware.RateLimiter
	sweeper        *sweep.Sweeper
	logger         *slog.Logger
}

// Deps are the long-lived components built from configuration. Push and
// Archive are nil when not configured.
type Deps struct {
	DB            *sql.DB
	BaseURL       string
	SweepInterval time.Duration
	Payments      *payment.Client
	Vault         *vault.Vault
	Tokens        *auth.Tokens
	Email         *email.Client
	Push          *push.Service
	Archive       *archive.Archive
	Logger        *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	hub := ws.NewHub(logger.With("component", "websocket"))

	toolStore := store.NewToolStore(d.DB)
	planStore := store.NewPlanStore(d.DB)
	orderStore := store.NewOrderStore(d.DB)
	credentialStore := store.NewCredentialStore(d.DB)
	subscriptionStore := store.NewSubscriptionStore(d.DB)
	webhookEventStore := store.NewWebhookEventStore(d.DB)
	pushStore := store.NewPushStore(d.DB)

	notifier := notify.New(d.Email, toolStore, planStore)

	checkoutSvc := checkout.NewService(checkout.Deps{
		Tools:       toolStore,
		Plans:       planStore,
		Orders:      orderStore,
		Credentials: credentialStore,
		Payments:    d.Payments,
		Vault:       d.Vault,
		Tokens:      d.Tokens,
		BaseURL:     d.BaseURL,
		Logger:      logger.With("component", "checkout"),
	})

	webhookDeps := handler.WebhookDeps{
		Verifier:      d.Payments,
		Events:        webhookEventStore,
		Orders:        orderStore,
		Subscriptions: subscriptionStore,
		Notifier:      notifier,
		Feed:          hub,
		Logger:        logger.With("component", "webhook"),
	}
	sweepLogger := logger.With("component", "sweep")
	var (
		sweeper *sweep.Sweeper
		pushH   *handler.PushHandler
	)
	if d.Push != nil {
		webhookDeps.Alerts = d.Push
		sweeper = sweep.New(orderStore, hub, d.Push, d.SweepInterval, sweepLogger)
		pushH = handler.NewPushHandler(pushStore, d.Push, logger.With("component", "push_handler"))
	} else {
		sweeper = sweep.New(orderStore, hub, nil, d.SweepInterval, sweepLogger)
	}

	catalogLogger := logger.With("component", "admin_catalog")
	adminCatalogH := handler.NewAdminCatalogHandler(toolStore, planStore, nil, catalogLogger)
	if d.Archive != nil {
		adminCatalogH = handler.NewAdminCatalogHandler(toolStore, planStore, d.Archive, catalogLogger)
	}

	return &Server{
		hub:            hub,
		originPatterns: originPatterns(d.BaseURL),
		checkoutH:      handler.NewCheckoutHandler(checkoutSvc, logger.With("component", "checkout")),
		webhookH:       handler.NewWebhookHandler(webhookDeps),
		notificationH:  handler.NewNotificationHandler(orderStore, notifier, logger.With("component", "notification")),
		credentialH:    handler.NewCredentialHandler(orderStore, credentialStore, d.Vault, logger.With("component", "credential")),
		catalogH:       handler.NewCatalogHandler(toolStore, planStore, logger.With("component", "catalog")),
		orderH:         handler.NewOrderHandler(orderStore, logger.With("component", "orders")),
		adminOrderH:    handler.NewAdminOrderHandler(orderStore, notifier, hub, logger.With("component", "admin_orders")),
		adminCatalogH:  adminCatalogH,
		pushH:          pushH,
		healthH:        handler.NewHealthHandler(d.DB),
		tokens:         d.Tokens,
		rateLimiter:    middleware.NewRateLimiter(publicRateLimit, time.Minute),
		sweeper:        sweeper,
		logger:         logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Sweeper returns the activation deadline sweeper.
func (s *Server) Sweeper() *sweep.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthH.Check)
	mux.HandleFunc("GET /api/tools", s.catalogH.ListTools)
	mux.HandleFunc("GET /api/tools/{toolID}/plans", s.catalogH.ListPlans)
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripe)
	mux.Handle("POST /api/checkout", s.rateLimiter.Limit(http.HandlerFunc(s.checkoutH.Create)))
	mux.Handle("POST /api/credentials", s.rateLimiter.Limit(middleware.RequireIdentity(http.HandlerFunc(s.credentialH.Create))))

	// Buyer routes
	mux.Handle("GET /api/orders", middleware.RequireIdentity(http.HandlerFunc(s.orderH.List)))
	mux.Handle("GET /ws/orders", middleware.RequireIdentity(ws.HandleOrders(s.hub, s.originPatterns, s.logger.With("component", "websocket"))))

	// Admin routes
	mux.Handle("POST /api/notifications", middleware.RequireAdmin(http.HandlerFunc(s.notificationH.Send)))
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	mux.Handle("/api/admin/", middleware.RequireAdmin(adminMux))

	var h http.Handler = mux
	h = middleware.Authenticate(s.tokens)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/orders", s.adminOrderH.List)
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", s.adminOrderH.UpdateStatus)
	mux.HandleFunc("GET /api/admin/orders/{id}/credential", s.credentialH.Reveal)

	mux.HandleFunc("GET /api/admin/tools", s.adminCatalogH.ListTools)
	mux.HandleFunc("PUT /api/admin/tools", s.adminCatalogH.UpsertTool)
	mux.HandleFunc("PATCH /api/admin/tools/{toolID}/active", s.adminCatalogH.SetToolActive)

	mux.HandleFunc("GET /api/admin/plans", s.adminCatalogH.ListPlans)
	mux.HandleFunc("PUT /api/admin/plans", s.adminCatalogH.UpsertPlan)
	mux.HandleFunc("PATCH /api/admin/plans/{id}/active", s.adminCatalogH.SetPlanActive)
	mux.HandleFunc("POST /api/admin/plans/import/preview", s.adminCatalogH.PreviewImport)
	mux.HandleFunc("POST /api/admin/plans/import", s.adminCatalogH.CommitImport)
	mux.HandleFunc("GET /api/admin/plans/export", s.adminCatalogH.Export)

	if s.pushH != nil {
		mux.HandleFunc("POST /api/admin/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/admin/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/admin/push/test", s.pushH.Test)
	}
}

// originPatterns allows websocket connections from the storefront host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
