package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRecordBytes caps the size of an on-demand parameterization request.
const maxRecordBytes = 8 << 20

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Transformer parameterizes a single raw record on demand.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ParameterizedDSD, error)
}

// Server exposes health, readiness, metrics and on-demand parameterization
// endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /v1/parameterize routes.
func NewServer(addr string, ready ReadinessChecker, transformer Transformer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/parameterize", s.handleParameterize(transformer))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleParameterize runs one raw record through the transformer and
// returns the result as JSON, or msgpack when the client accepts it.
// Nothing is written to the sink.
func (s *Server) handleParameterize(transformer Transformer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("record exceeds %d bytes", tooLarge.Limit))
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}

		out, err := transformer.Transform(r.Context(), domain.RawEvent{Value: body, Timestamp: domain.Now()})
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("on-demand parameterization failed", "error", err)
			}
			writeError(w, status, err)
			return
		}

		encoding := domain.EncodingJSON
		if r.Header.Get("Accept") == domain.ContentTypeMsgpack {
			encoding = domain.EncodingMsgpack
		}
		encoded, err := domain.Serialize(out, encoding)
		if err != nil {
			s.logger.Error("encode parameterized record", "error", err, "record_id", out.ID)
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", encoded.Headers["content_type"])
		w.WriteHeader(http.StatusOK)
		w.Write(encoded.Value) //nolint:errcheck // client may have gone away
	}
}

// statusFor maps transform errors to HTTP status codes.
func statusFor(err error) int {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, dsd.ErrInvalidGeometry),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
