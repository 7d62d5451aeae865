// Package server exposes the REST surface of the shipping service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dzexpress/shipping/internal/orchestrator"
	"github.com/dzexpress/shipping/internal/store"
	"github.com/dzexpress/shipping/internal/vault"
	"github.com/dzexpress/shipping/pkg/courier"
)

// Config holds server configuration.
type Config struct {
	Port               int
	MetricsPort        int
	CORSAllowedOrigins []string
	CORSAllowCookies   bool
}

// Server is the HTTP server for the shipping service.
type Server struct {
	cfg      Config
	store    store.Store
	vault    *vault.Vault
	registry *courier.Registry
	orch     *orchestrator.Orchestrator
	logger   *otelzap.Logger
}

// New creates a new server instance.
func New(cfg Config, st store.Store, v *vault.Vault, registry *courier.Registry, orch *orchestrator.Orchestrator, logger *otelzap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		vault:    v,
		registry: registry,
		orch:     orch,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/companies", s.handleListCompanies)

		r.Post("/integrations", s.handleUpsertIntegration)
		r.Get("/integrations", s.handleListIntegrations)
		r.Delete("/integrations/{companyID}", s.handleDisableIntegration)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/bulk-assign", s.handleBulkAssign)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Post("/assign", s.handleAssign)
				r.Post("/generate-label", s.handleGenerateLabel)
				r.Post("/cancel", s.handleCancel)
				r.Get("/tracking", s.handleTracking)
				r.Get("/events", s.handleDeliveryEvents)
				r.Get("/label", s.handleLabelPDF)
			})
		})

		r.Post("/webhooks/{company}", s.handleWebhook)
	})

	return r
}

// Run starts the API and metrics servers and blocks until the context is
// cancelled or either server fails.
func (s *Server) Run(ctx context.Context) error {
	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.MetricsPort),
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting API server", zap.Int("port", s.cfg.Port))
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Starting metrics server", zap.Int("port", s.cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return api.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := map[string]bool{}
	wildcard := false
	for _, origin := range s.cfg.CORSAllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			if wildcard && !s.cfg.CORSAllowCookies {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			if s.cfg.CORSAllowCookies {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-ID, X-Webhook-Signature")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
