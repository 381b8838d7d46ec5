package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/logging"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

const maxBodyBytes = 1 << 20

// Engine is the retrieval surface served over HTTP. *engine.Engine satisfies it.
type Engine interface {
	PerformHybridSearch(ctx context.Context, query string, topK int, hybridRatio float64, filters *types.Filters) ([]types.SearchResult, error)
	RouteQuery(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error)
	ExtractMetadata(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error)
	InvalidateMetadata(ctx context.Context, text string) error
	Status(ctx context.Context) (*engine.Status, error)
}

// Config holds request defaults
type Config struct {
	DefaultTopK        int
	DefaultHybridRatio float64
	ShutdownTimeout    time.Duration
}

// DefaultConfig returns the HTTP defaults
func DefaultConfig() Config {
	return Config{
		DefaultTopK:        10,
		DefaultHybridRatio: 0.5,
		ShutdownTimeout:    10 * time.Second,
	}
}

// Server exposes the engine as a JSON API
type Server struct {
	engine Engine
	cfg    Config
	logger *zap.Logger
	router *chi.Mux
}

// New creates the API server and its routes
func New(eng Engine, cfg Config, logger *zap.Logger) *Server {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultConfig().DefaultTopK
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{engine: eng, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/route", s.handleRoute)
		r.Post("/metadata/extract", s.handleExtract)
		r.Post("/metadata/invalidate", s.handleInvalidate)
		r.Get("/status", s.handleStatus)
	})
	s.router = r
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http api: %w", err)
	}
	return nil
}

// logRequests attaches a request-scoped logger and logs each response
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), logger)))

		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

type searchRequest struct {
	Query       string         `json:"query"`
	TopK        int            `json:"topK"`
	HybridRatio *float64       `json:"hybridRatio"`
	Filters     *types.Filters `json:"filters"`
}

type searchResponse struct {
	Results []types.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}
	ratio := s.cfg.DefaultHybridRatio
	if req.HybridRatio != nil {
		ratio = *req.HybridRatio
	}

	results, err := s.engine.PerformHybridSearch(r.Context(), req.Query, topK, ratio, req.Filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []types.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

type routeRequest struct {
	Query             string         `json:"query"`
	UseQueryExpansion bool           `json:"useQueryExpansion"`
	UseReranking      bool           `json:"useReranking"`
	Debug             bool           `json:"debug"`
	TopK              int            `json:"topK"`
	HybridRatio       *float64       `json:"hybridRatio"`
	Filters           *types.Filters `json:"filters"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.RouteQuery(r.Context(), req.Query, router.Options{
		UseQueryExpansion: req.UseQueryExpansion,
		UseReranking:      req.UseReranking,
		Debug:             req.Debug,
		TopK:              req.TopK,
		HybridRatio:       req.HybridRatio,
		Filters:           req.Filters,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Results == nil {
		result.Results = []types.SearchResult{}
	}
	writeJSON(w, http.StatusOK, result)
}

type extractRequest struct {
	Text       string `json:"text"`
	ID         string `json:"id"`
	Model      string `json:"model"`
	UseCaching *bool  `json:"useCaching"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: types.ErrEmptyContent.Error()})
		return
	}

	opts := metadata.Options{Model: req.Model, UseCaching: true}
	if req.UseCaching != nil {
		opts.UseCaching = *req.UseCaching
	}

	meta, err := s.engine.ExtractMetadata(r.Context(), req.Text, req.ID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type invalidateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: types.ErrEmptyContent.Error()})
		return
	}
	if err := s.engine.InvalidateMetadata(r.Context(), req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// StatusCode maps an engine error onto an HTTP status
func StatusCode(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidQuery), errors.Is(err, types.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	resp := errorResponse{Error: err.Error()}
	var stageErr *types.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage
	}
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Warn("request failed", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
