package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"retail-bi/internal/aggregate"
	"retail-bi/internal/errors"
	"retail-bi/internal/observability"
	"retail-bi/internal/pipeline"
	"retail-bi/pkg/version"
)

const (
	cacheControl       = "public, max-age=300"
	defaultTopProducts = 20
	maxLimit           = 1000
)

var cacheHeaders = map[string]string{"Cache-Control": cacheControl}

// APIHandlers serves the tables of one pipeline run as JSON. The run is
// fixed at construction; a failed module answers 503 DATA_UNAVAILABLE.
type APIHandlers struct {
	run             *pipeline.Run
	topAssociations int
	logger          *slog.Logger
}

func NewAPIHandlers(run *pipeline.Run, topAssociations int, logger *slog.Logger) *APIHandlers {
	if topAssociations <= 0 {
		topAssociations = 15
	}
	return &APIHandlers{
		run:             run,
		topAssociations: topAssociations,
		logger:          logger,
	}
}

// unavailable writes a 503 for a module that failed in this run.
func (h *APIHandlers) unavailable(w http.ResponseWriter, r *http.Request, module pipeline.Module) {
	st := h.run.Status(module)
	err := errors.Wrap(st.Err, errors.CodeDataUnavailable, fmt.Sprintf("%s data unavailable", module))
	err.Details = string(st.Code)
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}
	errors.WriteSuccessWithHeaders(w, h.run.Summary(), cacheHeaders)
}

func (h *APIHandlers) HandleMonthlySales(w http.ResponseWriter, r *http.Request) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}
	errors.WriteSuccessWithHeaders(w, h.run.Monthly(), cacheHeaders)
}

func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	fc, ok := h.run.Forecast()
	if !ok {
		h.unavailable(w, r, pipeline.ModuleForecast)
		return
	}
	errors.WriteSuccessWithHeaders(w, fc, cacheHeaders)
}

func (h *APIHandlers) HandleAssociations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, h.topAssociations)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	res, ok := h.run.Associations()
	if !ok {
		h.unavailable(w, r, pipeline.ModuleBasket)
		return
	}
	errors.WriteSuccessWithHeaders(w, map[string]any{
		"associations": res.Top(limit),
		"total":        len(res.Associations),
		"total_orders": res.TotalOrders,
	}, cacheHeaders)
}

func (h *APIHandlers) HandleRFM(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run.RFM()
	if !ok {
		h.unavailable(w, r, pipeline.ModuleRFM)
		return
	}
	errors.WriteSuccessWithHeaders(w, res, cacheHeaders)
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run.RFM()
	if !ok {
		h.unavailable(w, r, pipeline.ModuleRFM)
		return
	}
	errors.WriteSuccessWithHeaders(w, res.Segments, cacheHeaders)
}

func (h *APIHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}
	errors.WriteSuccessWithHeaders(w, h.run.Categories(), cacheHeaders)
}

func (h *APIHandlers) HandleRegions(w http.ResponseWriter, r *http.Request) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}
	errors.WriteSuccessWithHeaders(w, h.run.Regions(), cacheHeaders)
}

// HandleTopProducts lists products by revenue, or by profit margin with
// ?sort=margin.
func (h *APIHandlers) HandleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTopProducts)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}

	switch r.URL.Query().Get("sort") {
	case "", "sales":
		errors.WriteSuccessWithHeaders(w, aggregate.Top(h.run.Products(), limit), cacheHeaders)
	case "margin":
		errors.WriteSuccessWithHeaders(w, h.run.TopMarginProducts(limit), cacheHeaders)
	default:
		h.badRequest(w, r, errors.BadRequest("sort must be sales or margin"))
	}
}

func (h *APIHandlers) HandleSeasonality(w http.ResponseWriter, r *http.Request) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		h.unavailable(w, r, pipeline.ModuleAggregate)
		return
	}
	errors.WriteSuccessWithHeaders(w, h.run.Seasonality(), cacheHeaders)
}

func (h *APIHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.run.Insights(), cacheHeaders)
}

// HandleNotFound answers unknown API paths with the JSON error envelope.
func (h *APIHandlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	errors.WriteError(w, h.logger, errors.NotFound(fmt.Sprintf("no API endpoint at %s", r.URL.Path)),
		observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if len(h.run.Failed()) > 0 {
		status = "degraded"
	}

	errors.WriteSuccess(w, map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version.Short(),
	})
}

type moduleStat struct {
	Module    string `json:"module"`
	Available bool   `json:"available"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
	Duration  string `json:"duration"`
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	modules := make([]moduleStat, 0, len(pipeline.Modules))
	for _, st := range h.run.Statuses() {
		ms := moduleStat{
			Module:    string(st.Module),
			Available: st.OK(),
			Code:      string(st.Code),
			Duration:  st.Duration.String(),
		}
		if st.Err != nil {
			ms.Error = st.Err.Error()
		}
		modules = append(modules, ms)
	}

	errors.WriteSuccess(w, map[string]any{
		"run_id":       h.run.ID(),
		"source":       h.run.Source(),
		"transactions": h.run.TransactionCount(),
		"started_at":   h.run.StartedAt().Format(time.RFC3339),
		"duration":     h.run.Duration().String(),
		"modules":      modules,
	})
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequestWrap(err, fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit))
	}
	if n < 1 || n > maxLimit {
		return 0, errors.BadRequest(fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit))
	}
	return n, nil
}
