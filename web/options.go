package web

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v76"

	"github.com/isolatorcalc/isolator/config"
	"github.com/isolatorcalc/isolator/modal"
	"github.com/isolatorcalc/isolator/subscription"
	"github.com/isolatorcalc/isolator/usage"
)

// A PaymentRecorder persists completed checkouts.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, p subscription.Payment) (subscription.Payment, error)
}

// Options are used for configuring the web server.
type Options struct {
	// BindAddress is the address the server listens on, e.g. "localhost:8080". Port 0 picks a free port.
	BindAddress string
	// AllowedOrigins restricts cross-origin callers of /api. Empty allows any origin.
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// JWTSecret verifies HS256 bearer tokens. Empty means every caller is anonymous and bearer
	// tokens are rejected.
	JWTSecret string

	// WebhookSecret verifies payment webhook signatures. Empty disables the webhook.
	WebhookSecret    string
	WebhookTolerance time.Duration

	// StripeKey is the secret API key used to open checkout sessions. Empty disables checkout.
	StripeKey string
	// StripeBackend overrides the Stripe API backend. Nil uses the public API.
	StripeBackend      stripe.Backend
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	Model modal.Model

	Limiter       usage.Limiter
	RateLimiter   *usage.ClientRateLimiter
	Subscriptions subscription.Checker
	Payments      PaymentRecorder

	// Registry collects the server's metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry
}

// NewOptions returns default options: localhost, a three calculation free tier and 60 requests
// per minute per client.
func NewOptions() Options {
	return Options{
		BindAddress:      "localhost:8080",
		ShutdownTimeout:  10 * time.Second,
		WebhookTolerance: 5 * time.Minute,
		Model:            modal.ModelReference,
		Limiter:          usage.NewMemoryLimiter(usage.DefaultFreeCalculations),
		RateLimiter:      usage.NewClientRateLimiter(60, 10),
	}
}

// OptionsFromConfig returns server options for a validated config. Storage is wired by the caller.
func OptionsFromConfig(cfg *config.Config, limiter usage.Limiter) Options {
	options := NewOptions()
	options.BindAddress = cfg.Network.BindAddress
	options.AllowedOrigins = cfg.Network.AllowedOrigins
	options.ShutdownTimeout = cfg.Network.ShutdownWait()
	options.JWTSecret = cfg.Auth.JWTSecret
	options.WebhookSecret = cfg.Billing.WebhookSecret
	options.WebhookTolerance = cfg.Billing.WebhookTolerance
	options.StripeKey = cfg.Billing.StripeSecretKey
	options.CheckoutSuccessURL = cfg.Billing.SuccessURL
	options.CheckoutCancelURL = cfg.Billing.CancelURL
	options.Model = cfg.Solver.ModalModel()
	if limiter != nil {
		options.Limiter = limiter
	}
	options.RateLimiter = usage.NewClientRateLimiter(cfg.Usage.RequestsPerMinute, cfg.Usage.RequestBurst)
	return options
}
