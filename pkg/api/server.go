// Package api wires the HTTP surface of the access-control service:
// routing, identity and observability middleware, and server lifecycle.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cccs-paul/rcbudget/pkg/acl"
	"github.com/cccs-paul/rcbudget/pkg/config"
	"github.com/cccs-paul/rcbudget/pkg/directory"
	"github.com/cccs-paul/rcbudget/pkg/httputil"
	"github.com/cccs-paul/rcbudget/pkg/observability"
)

// Server is the HTTP server for the access-control service
type Server struct {
	cfg       *config.Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	engine    *acl.Engine
	directory directory.Lookup
	db        *sql.DB
	router    *mux.Router
	http      *http.Server
}

// NewServer assembles the router, middleware, and HTTP server. The metrics
// and redis client arguments may be nil.
func NewServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, engine *acl.Engine, lookup directory.Lookup, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		engine:    engine,
		directory: lookup,
		db:        db,
		router:    mux.NewRouter(),
	}

	s.router.Use(requestIDMiddleware)
	s.router.Use(identityMiddleware)
	s.router.Use(loggingMiddleware(logger))
	if metrics != nil {
		s.router.Use(mux.MiddlewareFunc(metrics.HTTPMiddleware(routeTemplate)))
	}

	health := observability.NewHealthChecker(db, redisClient)
	s.router.HandleFunc("/healthz", health.Liveness).Methods("GET")
	s.router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	if metrics != nil {
		s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	apiRouter := s.router.PathPrefix("/api/v1").Subrouter()
	acl.NewHandlers(engine, logger).RegisterRoutes(apiRouter)
	apiRouter.HandleFunc("/directory/search", s.searchDirectory).Methods("GET")

	var handler http.Handler = s.router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "rcbudget")
	}

	s.http = &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// searchDirectory proxies identity searches to the directory gateway for
// the sharing dialog's identity picker.
func (s *Server) searchDirectory(w http.ResponseWriter, r *http.Request) {
	if observability.GetRequester(r.Context()) == "" {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	if s.directory == nil {
		httputil.WriteNotFound(w, "Directory lookup is not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteBadRequest(w, "q is required")
		return
	}

	limit := s.cfg.Directory.SearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = directory.DefaultSearchLimit
	}

	identities, err := s.directory.Search(r.Context(), query, limit)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("directory search failed")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "Directory lookup failed")
		return
	}
	if identities == nil {
		identities = []directory.Identity{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"identities": identities})
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("http server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.metrics != nil {
		go s.observeDBStats(ctx)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the assembled handler for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) observeDBStats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.ObserveDBStats(s.db.Stats())
		}
	}
}
