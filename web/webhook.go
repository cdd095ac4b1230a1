package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/isolatorcalc/isolator/subscription"
)

const (
	signatureHeader        = "Stripe-Signature"
	maxWebhookPayloadBytes = 64 << 10
)

// handleWebhook records completed checkouts. The user comes from the session metadata set by
// handleCheckout; a paid checkout also clears the free tier usage of the browser session that started it.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.options.WebhookSecret == "" || s.options.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook is not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get(signatureHeader), s.options.WebhookSecret,
		webhook.ConstructEventOptions{
			Tolerance: s.options.WebhookTolerance,
			// endpoints may be pinned to an older API version than the library
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		s.logger.Warnw("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}
	s.metrics.recordWebhookEvent(string(event.Type))

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		s.logger.Debugw("ignoring webhook event", "id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	var session stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
		writeError(w, http.StatusBadRequest, "invalid checkout session")
		return
	}
	userID := session.Metadata[userIDMetadataKey]
	if userID == "" {
		writeError(w, http.StatusBadRequest, "checkout session has no user_id metadata")
		return
	}
	recorded, err := s.options.Payments.RecordPayment(r.Context(), subscription.Payment{
		SessionID:   session.ID,
		UserID:      userID,
		Status:      string(session.PaymentStatus),
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
	})
	if err != nil {
		s.logger.Errorw("error recording payment", "session", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "database insert failed")
		return
	}
	s.logger.Infow("payment stored",
		"session", recorded.SessionID, "user", recorded.UserID, "status", recorded.Status,
		"amount", recorded.Amount(), "currency", recorded.Currency)

	if browserSession := session.Metadata[browserSessionMetadataKey]; recorded.Status == subscription.StatusPaid &&
		browserSession != "" {
		if err := s.options.Limiter.Reset(r.Context(), browserSession); err != nil {
			s.logger.Warnw("error resetting usage", "session", browserSession, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
