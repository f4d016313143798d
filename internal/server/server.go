package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retail-bi/internal/handlers"
	"retail-bi/internal/pipeline"
)

type Server struct {
	run         *pipeline.Run
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

// NewServer exposes a finished run read-only. gatherer may be nil, in which
// case /metrics is not mounted.
func NewServer(run *pipeline.Run, topAssociations int, logger *slog.Logger, gatherer prometheus.Gatherer, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		run:         run,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(run, topAssociations, logger),
		sseHandlers: handlers.NewSSEHandlers(run, logger),
	}
	s.setupRoutes(templateHandlers, gatherer)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers, gatherer prometheus.Gatherer) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// REST API endpoints
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/monthly-sales", s.apiHandlers.HandleMonthlySales)
	s.mux.HandleFunc("GET /api/forecast", s.apiHandlers.HandleForecast)
	s.mux.HandleFunc("GET /api/associations", s.apiHandlers.HandleAssociations)
	s.mux.HandleFunc("GET /api/rfm", s.apiHandlers.HandleRFM)
	s.mux.HandleFunc("GET /api/segments", s.apiHandlers.HandleSegments)
	s.mux.HandleFunc("GET /api/categories", s.apiHandlers.HandleCategories)
	s.mux.HandleFunc("GET /api/regions", s.apiHandlers.HandleRegions)
	s.mux.HandleFunc("GET /api/top-products", s.apiHandlers.HandleTopProducts)
	s.mux.HandleFunc("GET /api/seasonality", s.apiHandlers.HandleSeasonality)
	s.mux.HandleFunc("GET /api/insights", s.apiHandlers.HandleInsights)
	s.mux.HandleFunc("GET /api/", s.apiHandlers.HandleNotFound)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/summary", s.sseHandlers.HandleSummary)
	s.mux.HandleFunc("GET /sse/monthly-sales", s.sseHandlers.HandleMonthlySales)
	s.mux.HandleFunc("GET /sse/forecast", s.sseHandlers.HandleForecast)
	s.mux.HandleFunc("GET /sse/associations", s.sseHandlers.HandleAssociations)
	s.mux.HandleFunc("GET /sse/segments", s.sseHandlers.HandleSegments)
	s.mux.HandleFunc("GET /sse/insights", s.sseHandlers.HandleInsights)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
