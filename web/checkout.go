package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

const (
	maxCheckoutPayloadBytes = 4 << 10

	// metadata keys written on checkout sessions and read back by the webhook
	userIDMetadataKey         = "user_id"
	browserSessionMetadataKey = "isolator_session"
)

type checkoutRequest struct {
	PriceID string `json:"priceId"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

// newCheckoutClient returns nil when no Stripe key is configured.
func newCheckoutClient(options Options, logger stripe.LeveledLoggerInterface) *session.Client {
	if options.StripeKey == "" {
		return nil
	}
	backend := options.StripeBackend
	if backend == nil {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{LeveledLogger: logger})
	}
	return &session.Client{B: backend, Key: options.StripeKey}
}

// handleCheckout opens a subscription checkout session for a signed in user.
func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout is not configured")
		return
	}
	if !s.options.RateLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	id, err := s.identify(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, "sign in to subscribe")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutPayloadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		writeError(w, http.StatusBadRequest, "Price ID is required")
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.options.CheckoutSuccessURL),
		CancelURL:         stripe.String(s.options.CheckoutCancelURL),
		ClientReferenceID: stripe.String(id.UserID),
		Metadata: map[string]string{
			userIDMetadataKey:         id.UserID,
			browserSessionMetadataKey: id.SessionID,
		},
	}
	params.Context = r.Context()
	cs, err := s.checkout.New(params)
	if err != nil {
		s.logger.Errorw("error creating checkout session", "user", id.UserID, "price", priceID, "error", err)
		writeError(w, http.StatusBadGateway, "could not create checkout session")
		return
	}
	s.logger.Infow("checkout session created", "session", cs.ID, "user", id.UserID, "price", priceID)
	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: cs.ID, URL: cs.URL})
}
