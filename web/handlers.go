package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/isolatorcalc/isolator/logging"
	"github.com/isolatorcalc/isolator/modal"
)

const (
	maxModalPayloadBytes = 1 << 20
	// debugHeader turns on debug logging for a single request. Its value tags the log lines.
	debugHeader = "Isolator-Debug"
)

type usageResponse struct {
	Subscribed bool `json:"subscribed"`
	Used       int  `json:"used"`
	Limit      int  `json:"limit"`
	Remaining  int  `json:"remaining"`
}

type modalResponse struct {
	*modal.ModalResult
	Modes []modal.Mode  `json:"modes"`
	Usage usageResponse `json:"usage"`
}

type subscriptionResponse struct {
	UserID     string `json:"userId"`
	Subscribed bool   `json:"subscribed"`
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if key, ok := r.Header[debugHeader]; ok {
		name := ""
		if len(key) > 0 {
			name = key[0]
		}
		ctx = logging.EnableDebugMode(ctx, name)
	}
	return ctx
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// isSubscribed reports whether the user holds a paid subscription. Anonymous callers never do.
func (s *Service) isSubscribed(ctx context.Context, userID string) (bool, error) {
	if userID == "" || s.options.Subscriptions == nil {
		return false, nil
	}
	return s.options.Subscriptions.IsSubscribed(ctx, userID)
}

func (s *Service) handleModal(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	if !s.options.RateLimiter.Allow(clientKey(r)) {
		s.metrics.recordCalculation("rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	id, err := s.identify(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var form modal.FormParameters
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxModalPayloadBytes)).Decode(&form); err != nil {
		s.metrics.recordCalculation("invalid")
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	// Validate before touching the free tier so that typos do not use up calculations.
	params, err := form.Parse()
	if err == nil {
		err = params.ValidateForModel(s.options.Model)
	}
	if err != nil {
		s.metrics.recordCalculation("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subscribed, err := s.isSubscribed(ctx, id.UserID)
	if err != nil {
		s.logger.Errorw("error checking subscription", "user", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not check subscription")
		return
	}
	resp := modalResponse{Usage: usageResponse{Subscribed: subscribed}}
	if !subscribed {
		decision, err := s.options.Limiter.Allow(ctx, id.SessionID)
		if err != nil {
			s.logger.Errorw("error checking usage", "session", id.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not check usage")
			return
		}
		resp.Usage.Used, resp.Usage.Limit, resp.Usage.Remaining = decision.Used, decision.Limit, decision.Remaining()
		if !decision.Allowed {
			s.metrics.recordCalculation("limit_reached")
			writeJSON(w, http.StatusPaymentRequired, struct {
				errorResponse
				Usage usageResponse `json:"usage"`
			}{errorResponse{"free tier limit reached; subscribe for unlimited calculations"}, resp.Usage})
			return
		}
	}

	result, err := modal.ComputeModalResult(params, modal.WithModel(s.options.Model))
	switch {
	case errors.Is(err, modal.ErrInvalidInput):
		s.metrics.recordCalculation("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.metrics.recordCalculation("failed")
		s.logger.Warnw("calculation failed", "session", id.SessionID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.metrics.recordCalculation("ok")
	s.logger.CDebugw(ctx, "calculation",
		"debug_key", logging.GetName(ctx),
		"session", id.SessionID,
		"user", id.UserID,
		"mounts", len(params.MountingPoints),
		"frequencies", result.NaturalFrequencies)
	resp.ModalResult = result
	resp.Modes = result.Modes()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	id, err := s.identify(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	subscribed, err := s.isSubscribed(ctx, id.UserID)
	if err != nil {
		s.logger.Errorw("error checking subscription", "user", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not check subscription")
		return
	}
	resp := usageResponse{Subscribed: subscribed}
	if !subscribed {
		decision, err := s.options.Limiter.Peek(ctx, id.SessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not check usage")
			return
		}
		resp.Used, resp.Limit, resp.Remaining = decision.Used, decision.Limit, decision.Remaining()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	userID, err := s.userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	subscribed, err := s.isSubscribed(ctx, userID)
	if err != nil {
		s.logger.Errorw("error checking subscription", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not check subscription")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{UserID: userID, Subscribed: subscribed})
}
