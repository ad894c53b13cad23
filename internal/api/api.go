// Package api provides HTTP handlers and the main API server logic for BotWeave.
//
// It exposes the inbound webhook endpoints that feed the conversation engine
// plus a small admin surface for registering flow versions and triggers and
// inspecting sessions. The API integrates with the messaging, flow, store,
// and scheduler modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BotWeave/BotWeave/internal/flow"
	"github.com/BotWeave/BotWeave/internal/messaging"
	"github.com/BotWeave/BotWeave/internal/scheduler"
	"github.com/BotWeave/BotWeave/internal/store"
	"github.com/BotWeave/BotWeave/internal/twiliowhatsapp"
	"github.com/BotWeave/BotWeave/internal/whatsapp"
)

// Default server configuration.
const (
	// DefaultAPIAddr is the address the HTTP server binds when none is configured.
	DefaultAPIAddr = ":8080"
	// DefaultSessionTTL is how long a session may sit idle before the sweep ends it.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultExpiryCron runs the idle-session sweep every 10 minutes.
	DefaultExpiryCron = "*/10 * * * *"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	SessionTTL time.Duration
	ExpiryCron string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithSessionTTL sets how long sessions may idle before expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.SessionTTL = ttl
	}
}

// WithExpiryCron sets the cron expression for the idle-session sweep.
func WithExpiryCron(expr string) Option {
	return func(o *Opts) {
		o.ExpiryCron = expr
	}
}

// Server wires the HTTP surface to the conversation engine. It holds only
// interfaces and engine types so tests can construct it with in-memory
// collaborators.
type Server struct {
	st         store.Store
	handler    *flow.Handler
	dispatcher *messaging.Dispatcher
	msgService messaging.Service
	twilioSvc  *messaging.TwilioService
	opts       Opts
}

// NewServer creates an API server over the given collaborators. twilioSvc may
// be nil when the Twilio transport is not configured.
func NewServer(st store.Store, handler *flow.Handler, dispatcher *messaging.Dispatcher, msgService messaging.Service, twilioSvc *messaging.TwilioService, opts ...Option) *Server {
	cfg := Opts{
		Addr:       DefaultAPIAddr,
		SessionTTL: DefaultSessionTTL,
		ExpiryCron: DefaultExpiryCron,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		st:         st,
		handler:    handler,
		dispatcher: dispatcher,
		msgService: msgService,
		twilioSvc:  twilioSvc,
		opts:       cfg,
	}
}

// Routes builds the HTTP handler with all endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/flows", s.flowsHandler)
	mux.HandleFunc("/triggers", s.triggersHandler)
	mux.HandleFunc("/sessions/", s.sessionsHandler)
	return mux
}

// Run bootstraps the full service: store, WhatsApp client, optional Twilio
// transport, flow engine, dispatcher, scheduler, and the HTTP server. It
// blocks until SIGINT/SIGTERM and shuts everything down in reverse order.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, apiOpts []Option) error {
	slog.Debug("api.Run: starting bootstrap", "whatsapp_opts", len(waOpts), "store_opts", len(storeOpts), "api_opts", len(apiOpts))

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	waClient, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
	}
	defer waClient.Disconnect()
	msgService := messaging.NewWhatsAppService(waClient)

	var twilioSvc *messaging.TwilioService
	if os.Getenv("TWILIO_ACCOUNT_SID") != "" {
		twClient, twErr := twiliowhatsapp.NewClient()
		if twErr != nil {
			return fmt.Errorf("failed to initialize Twilio client: %w", twErr)
		}
		twilioSvc = messaging.NewTwilioService(twClient)
		slog.Info("api.Run: Twilio transport enabled")
	}

	resolver := flow.NewTriggerResolver(st)
	definitions := flow.NewCachingDefinitionProvider(st)
	handler := flow.NewHandler(st, resolver, definitions, msgService)
	dispatcher := messaging.NewDispatcher(handler)
	defer dispatcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()
	dispatcher.Attach(msgService)
	if twilioSvc != nil {
		if err := twilioSvc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Twilio service: %w", err)
		}
		defer twilioSvc.Stop()
		dispatcher.Attach(twilioSvc)
	}

	srv := NewServer(st, handler, dispatcher, msgService, twilioSvc, apiOpts...)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	ttl := srv.opts.SessionTTL
	if err := sched.AddJob(srv.opts.ExpiryCron, func() {
		if _, sweepErr := handler.ExpireIdleSessions(context.Background(), ttl); sweepErr != nil {
			slog.Error("api.Run: idle session sweep failed", "error", sweepErr)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule session expiry sweep: %w", err)
	}

	httpServer := &http.Server{
		Addr:    srv.opts.Addr,
		Handler: srv.Routes(),
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("BotWeave API running", "addr", srv.opts.Addr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("api.Run: shutdown signal received", "signal", sig.String())
	case serveErr := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api.Run: HTTP shutdown failed", "error", err)
	}
	return nil
}

// buildStore selects a backend by DSN: in-memory when no DSN is configured,
// otherwise SQLite or PostgreSQL by DSN shape.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("buildStore: using PostgreSQL store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("buildStore: using SQLite store", "db_path", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.st.ListActiveTriggers(); err != nil {
		slog.Warn("Health check: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach store"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
