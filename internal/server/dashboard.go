package server

import (
	"context"
	"net/http"
	"time"

	"retail-bi/internal/pipeline"
	"retail-bi/internal/ui/templates"
	"retail-bi/pkg/version"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

// DashboardHandler renders the dashboard page for run.
func DashboardHandler(run *pipeline.Run) http.HandlerFunc {
	page := templates.Page{
		Title:   "Retail BI Dashboard",
		RunID:   run.ID(),
		Source:  run.Source(),
		Version: version.Short(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}
