// Package web serves the modal calculator over a JSON HTTP API.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"go.uber.org/zap"
	"goji.io"
	"goji.io/pat"

	"github.com/isolatorcalc/isolator/logging"
)

// Service hosts the calculator API.
type Service struct {
	options  Options
	logger   logging.Logger
	metrics  *metricsCollector
	checkout *session.Client

	mu         sync.Mutex
	addr       string
	isRunning  bool
	cancelFunc func()
	webWorkers sync.WaitGroup
}

// New returns a service that is ready to Start or to serve via Handler.
func New(options Options, logger logging.Logger) *Service {
	defaults := NewOptions()
	if options.Limiter == nil {
		options.Limiter = defaults.Limiter
	}
	if options.RateLimiter == nil {
		options.RateLimiter = defaults.RateLimiter
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if options.WebhookTolerance <= 0 {
		options.WebhookTolerance = defaults.WebhookTolerance
	}
	return &Service{
		options:  options,
		logger:   logger,
		metrics:  newMetricsCollector(options.Registry),
		checkout: newCheckoutClient(options, logger),
	}
}

// Handler returns the root handler with every route installed.
func (s *Service) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/healthz"), s.handleHealth)
	mux.Handle(pat.Get("/metrics"), s.metrics.handler())

	api := goji.SubMux()
	api.HandleFunc(pat.Post("/v1/modal"), s.metrics.instrument("modal", s.handleModal))
	api.HandleFunc(pat.Get("/v1/usage"), s.metrics.instrument("usage", s.handleUsage))
	api.HandleFunc(pat.Get("/v1/subscription"), s.metrics.instrument("subscription", s.handleSubscription))
	api.HandleFunc(pat.Post("/v1/checkout"), s.metrics.instrument("checkout", s.handleCheckout))
	api.HandleFunc(pat.Post("/v1/webhooks/stripe"), s.metrics.instrument("webhook", s.handleWebhook))

	mux.Handle(pat.New("/api/*"), s.corsHandler().Handler(api))
	return mux
}

func (s *Service) corsHandler() *cors.Cors {
	if len(s.options.AllowedOrigins) == 0 {
		return cors.AllowAll()
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.options.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", debugHeader},
		AllowCredentials: true,
	})
}

// Start listens on the configured address and serves until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return errors.New("web server already started")
	}

	listener, err := net.Listen("tcp", s.options.BindAddress)
	if err != nil {
		return err
	}
	listenerTCPAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return errors.Errorf("expected *net.TCPAddr but got %T", listener.Addr())
	}
	s.addr = listenerTCPAddr.String()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Desugar()),
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.isRunning = true

	s.webWorkers.Add(1)
	go func() {
		defer s.webWorkers.Done()
		<-cancelCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("error shutting down", "error", err)
		}
	}()
	s.webWorkers.Add(1)
	go func() {
		defer s.webWorkers.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("error serving http", "error", err)
		}
	}()

	s.logger.Infow("serving", "address", s.addr, "model", s.options.Model.String())
	return nil
}

// Address returns the address the server is listening on. It is empty before Start.
func (s *Service) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down and waits for in-flight requests to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false
	s.webWorkers.Wait()
}
