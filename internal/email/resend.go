// Package email sends transactional mail through the Resend API.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/sethvargo/go-retry"
)

var ErrNotConfigured = errors.New("email client not configured")

type Client struct {
	apiKey     string
	fromEmail  string
	baseURL    string
	httpClient *http.Client
	backoff    func() retry.Backoff
	resend     *resend.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBackoff overrides the retry policy for transient failures.
func WithBackoff(b func() retry.Backoff) Option {
	return func(cl *Client) {
		cl.backoff = b
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.WithJitterPercent(10, retry.NewExponential(250*time.Millisecond)))
}

// NewClient creates a Resend client. baseURL is the storefront origin used
// in links inside messages.
func NewClient(apiKey, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.httpClient
	hc.Transport = &statusTransport{base: base}
	c.resend = resend.NewCustomClient(&hc, apiKey)
	return c
}

// Configured returns true if the API key and sender are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.fromEmail != ""
}

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Send delivers msg, retrying network errors, 429 and 5xx responses.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	req := &resend.SendEmailRequest{
		From:    c.fromEmail,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var status int
		_, err := c.resend.Emails.SendWithContext(context.WithValue(ctx, statusKey{}, &status), req)
		if err == nil {
			return nil
		}
		err = fmt.Errorf("send email: %w", err)
		if retryable(status, err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// retryable reports whether a failed send may succeed later. status is 0
// when no response arrived.
func retryable(status int, err error) bool {
	if errors.Is(err, resend.ErrRateLimit) {
		return true
	}
	return status == 0 || status >= 500
}

type statusKey struct{}

// statusTransport records the response status in the request context so
// Send can tell server failures from rejected messages; the SDK reports
// both as plain errors.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}
