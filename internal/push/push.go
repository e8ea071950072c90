// Package push delivers web push alerts to registered admin devices.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/aideals/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

type subscriptionStore interface {
	List() ([]model.AdminPushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

type Service struct {
	cfg        Config
	subs       subscriptionStore
	logger     *slog.Logger
	httpClient webpush.HTTPClient
}

func NewService(cfg Config, subs subscriptionStore, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, subs: subs, logger: logger, httpClient: &http.Client{}}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

func (s *Service) Send(sub model.AdminPushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             86400,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// Alert fans the payload out to every admin device. Expired subscriptions
// are removed; other failures are logged. It never fails the caller.
func (s *Service) Alert(ctx context.Context, payload Payload) {
	subs, err := s.subs.List()
	if err != nil {
		s.logger.Error("list push subscriptions", "error", err)
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sub := range subs {
		g.Go(func() error {
			err := s.Send(sub, payload)
			switch {
			case errors.Is(err, ErrExpired):
				if err := s.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired push subscription", "id", sub.ID, "error", err)
				}
			case err != nil:
				s.logger.Warn("push alert", "id", sub.ID, "device", sub.DeviceName, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// GenerateVAPIDKeys returns a new base64url VAPID key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
