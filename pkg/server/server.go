package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"custody/pkg/config"
	"custody/pkg/metrics"
	"custody/pkg/verifier"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ingester pulls remote content and registers its commitments with the
// engine. Satisfied by fetch.Fetcher.
type Ingester interface {
	IngestAndRegister(ctx context.Context, v *verifier.StorageVerifier, contentID string, chunkSize uint32) (uint64, error)
}

// Server is the HTTP/JSON façade over the verification engine. It owns
// route wiring, JSON envelopes, and the engine-error to status-code
// mapping; all verification semantics live in pkg/verifier.
type Server struct {
	engine   *verifier.StorageVerifier
	ingester Ingester
	logger   *zap.Logger
	cfg      config.ServerConfig

	httpServer *http.Server
}

// New builds the façade. A nil ingester disables the ingest endpoint.
func New(engine *verifier.StorageVerifier, ingester Ingester, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		ingester: ingester,
		logger:   logger,
		cfg:      cfg,
	}

	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/commitments/chunks", s.handleRegisterChunks).Methods(http.MethodPost)
	api.HandleFunc("/commitments/merkle", s.handleRegisterMerkle).Methods(http.MethodPost)
	api.HandleFunc("/challenges", s.handleGenerateChallenge).Methods(http.MethodPost)
	api.HandleFunc("/proofs", s.handleVerifyProof).Methods(http.MethodPost)
	api.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(
		metrics.NewRegistry(engine), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
