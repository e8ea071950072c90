package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/aideals/internal/archive"
	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/config"
	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/email"
	"github.com/dukerupert/aideals/internal/logging"
	"github.com/dukerupert/aideals/internal/payment"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/server"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/vault"
)

const adminTokenTTL = 90 * 24 * time.Hour

func main() {
	genVAPID := flag.Bool("generate-vapid-keys", false, "print a new VAPID key pair and exit")
	adminEmail := flag.String("admin-token", "", "print an admin bearer token for `email` and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)
	tokens := auth.NewTokens(cfg.JWTSecret)

	if *adminEmail != "" {
		tok, err := tokens.Issue(auth.Identity{Email: strings.ToLower(*adminEmail), Role: auth.RoleAdmin}, adminTokenTTL)
		if err != nil {
			slog.Error("issue admin token", "error", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, tokens, logger); err != nil {
		slog.Error("aideals stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, tokens *auth.Tokens, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	credentialVault, err := vault.New(cfg.CredentialKey)
	if err != nil {
		return fmt.Errorf("credential vault: %w", err)
	}

	if !cfg.StripeEnabled() {
		logger.Warn("stripe is not configured; checkout and webhooks will fail")
	}
	emailClient := email.NewClient(cfg.Email.APIKey, cfg.Email.FromEmail, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("resend is not configured; order emails are disabled")
	}

	deps := server.Deps{
		DB:            db,
		BaseURL:       cfg.BaseURL,
		SweepInterval: cfg.SweepInterval,
		Payments: payment.NewClient(payment.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
		}),
		Vault:  credentialVault,
		Tokens: tokens,
		Email:  emailClient,
		Logger: logger,
	}
	if cfg.PushEnabled() {
		deps.Push = push.NewService(push.Config{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subscriber,
		}, store.NewPushStore(db), logger.With("component", "push"))
	}
	if cfg.ArchiveEnabled() {
		deps.Archive = archive.New(archive.Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
	}
	srv := server.New(deps)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("aideals starting", "addr", httpServer.Addr, "push", cfg.PushEnabled(), "archive", cfg.ArchiveEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.Sweeper().Run(ctx)
	})
	g.Go(func() error {
		srv.RateLimiter().Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
