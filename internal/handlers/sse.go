package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"retail-bi/internal/aggregate"
	"retail-bi/internal/pipeline"
)

const (
	maxTableRows = 50
	maxProducts  = 20
)

var summaryTemplate = template.Must(template.New("summary").Parse(`
<div id="summary-content" class="kpi-grid">
<div class="kpi"><span>Revenue</span><strong>${{printf "%.2f" .TotalSales}}</strong></div>
<div class="kpi"><span>Profit</span><strong>${{printf "%.2f" .TotalProfit}}</strong></div>
<div class="kpi"><span>Margin</span><strong>{{printf "%.1f" .MarginPercent}}%</strong></div>
<div class="kpi"><span>Orders</span><strong>{{.Orders}}</strong></div>
<div class="kpi"><span>Customers</span><strong>{{.Customers}}</strong></div>
<div class="kpi"><span>Avg order</span><strong>${{printf "%.2f" .AvgOrderValue}}</strong></div>
</div>`))

var associationsTemplate = template.Must(template.New("associations").Parse(`
<div id="associations-content">
<table class="modern-table">
<thead><tr><th>Product A</th><th>Product B</th><th>Orders</th><th>Support</th><th>Confidence</th><th>Lift</th></tr></thead>
<tbody>
{{range $i, $item := .Data}}{{if lt $i $.MaxRows}}<tr>
<td>{{.ProductA}}</td>
<td>{{.ProductB}}</td>
<td>{{.CoPurchaseCount}}</td>
<td>{{printf "%.4f" .Support}}</td>
<td>{{printf "%.4f" .Confidence}}</td>
<td><strong>{{printf "%.2f" .Lift}}</strong></td>
</tr>{{end}}{{end}}
</tbody>
</table>
</div>`))

var segmentsTemplate = template.Must(template.New("segments").Parse(`
<div id="segments-content">
<table class="modern-table">
<thead><tr><th>Segment</th><th>Customers</th><th>Revenue</th><th>Avg spend</th><th>Avg orders</th><th>Avg recency</th></tr></thead>
<tbody>
{{range .Data}}<tr>
<td><span class="category-badge">{{.Segment}}</span></td>
<td>{{.Customers}}</td>
<td><strong>${{printf "%.2f" .Revenue}}</strong></td>
<td>${{printf "%.2f" .AvgMonetary}}</td>
<td>{{printf "%.1f" .AvgFrequency}}</td>
<td>{{printf "%.0f" .AvgRecencyDays}}d</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var insightsTemplate = template.Must(template.New("insights").Parse(`
<div id="insights-content">
<ul class="insights">
{{with .Forecast}}<li><strong>Forecast:</strong> {{printf "%+.1f" .GrowthPercent}}% vs last month. {{.Recommendation}}.</li>{{end}}
{{with .Bundles}}<li><strong>Bundles:</strong> {{.TopProductA}} + {{.TopProductB}}. {{.Recommendation}}.</li>{{end}}
{{with .Retention}}<li><strong>Retention:</strong> {{.Champions}} champions, {{.AtRisk}} at risk. {{.Recommendation}}.</li>{{end}}
{{with .Seasonal}}<li><strong>Seasonality:</strong> peak {{.PeakMonth}}, low {{.LowMonth}}. {{.Recommendation}}.</li>{{end}}
{{with .Category}}<li><strong>Margin:</strong> {{.Category}} at {{printf "%.1f" .Margin}}. {{.Recommendation}}.</li>{{end}}
</ul>
</div>`))

var unavailableTemplate = template.Must(template.New("unavailable").Parse(
	`<div id="{{.ID}}" class="unavailable">{{.Module}} data unavailable ({{.Code}})</div>`))

// SSEHandlers streams dashboard fragments and chart signals for one run.
type SSEHandlers struct {
	run    *pipeline.Run
	logger *slog.Logger
}

func NewSSEHandlers(run *pipeline.Run, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		run:    run,
		logger: logger,
	}
}

type templateData struct {
	Data    any
	MaxRows int
}

type summaryData struct {
	TotalSales    float64
	TotalProfit   float64
	MarginPercent float64
	Orders        int
	Customers     int
	AvgOrderValue float64
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) renderUnavailable(id string, module pipeline.Module) string {
	st := h.run.Status(module)
	html, err := render(unavailableTemplate, map[string]string{
		"ID":     id,
		"Module": string(module),
		"Code":   string(st.Code),
	})
	if err != nil {
		h.logger.Error("render unavailable fragment", "module", module, "error", err)
	}
	return html
}

func (h *SSEHandlers) summaryFragment() (string, error) {
	if !h.run.Available(pipeline.ModuleAggregate) {
		return h.renderUnavailable("summary-content", pipeline.ModuleAggregate), nil
	}
	s := h.run.Summary()
	return render(summaryTemplate, summaryData{
		TotalSales:    s.TotalSales,
		TotalProfit:   s.TotalProfit,
		MarginPercent: s.ProfitMargin,
		Orders:        s.Orders,
		Customers:     s.Customers,
		AvgOrderValue: s.AvgOrderValue,
	})
}

func (h *SSEHandlers) associationsFragment() (string, error) {
	res, ok := h.run.Associations()
	if !ok {
		return h.renderUnavailable("associations-content", pipeline.ModuleBasket), nil
	}
	return render(associationsTemplate, templateData{Data: res.Top(maxTableRows), MaxRows: maxTableRows})
}

func (h *SSEHandlers) segmentsFragment() (string, error) {
	res, ok := h.run.RFM()
	if !ok {
		return h.renderUnavailable("segments-content", pipeline.ModuleRFM), nil
	}
	return render(segmentsTemplate, templateData{Data: res.Segments})
}

// chartSignals collects the series the dashboard charts bind to. Series of a
// failed module are omitted.
func (h *SSEHandlers) chartSignals() map[string]any {
	signals := map[string]any{}
	if h.run.Available(pipeline.ModuleAggregate) {
		signals["monthlyData"] = h.run.Monthly()
		signals["productsData"] = aggregate.Top(h.run.Products(), maxProducts)
		signals["regionsData"] = h.run.Regions()
		signals["seasonalData"] = h.run.Seasonality().Months
	}
	if fc, ok := h.run.Forecast(); ok {
		signals["forecastData"] = fc.Points
	}
	if res, ok := h.run.RFM(); ok {
		signals["segmentsData"] = res.Segments
	}
	return signals
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.summaryFragment()
	if err != nil {
		h.logger.Error("render summary", "error", err)
		return
	}
	sse.PatchElements(html)
	flush(w)
}

func (h *SSEHandlers) HandleMonthlySales(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	if !h.run.Available(pipeline.ModuleAggregate) {
		sse.PatchElements(h.renderUnavailable("monthly-content", pipeline.ModuleAggregate))
		flush(w)
		return
	}

	jsonData, err := json.Marshal(map[string]any{
		"monthlyData": h.run.Monthly(),
	})
	if err != nil {
		h.logger.Error("marshal monthly data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)
	sse.PatchElements(`<div id="monthly-content">Monthly sales chart data loaded</div>`)
	flush(w)
}

func (h *SSEHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	fc, ok := h.run.Forecast()
	if !ok {
		sse.PatchElements(h.renderUnavailable("forecast-content", pipeline.ModuleForecast))
		flush(w)
		return
	}

	jsonData, err := json.Marshal(map[string]any{
		"forecastData": fc.Points,
	})
	if err != nil {
		h.logger.Error("marshal forecast data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)
	sse.PatchElements(`<div id="forecast-content">Forecast chart data loaded</div>`)
	flush(w)
}

func (h *SSEHandlers) HandleAssociations(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.associationsFragment()
	if err != nil {
		h.logger.Error("render associations table", "error", err)
		return
	}
	sse.PatchElements(html)
	flush(w)
}

func (h *SSEHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.segmentsFragment()
	if err != nil {
		h.logger.Error("render segments table", "error", err)
		return
	}
	if res, ok := h.run.RFM(); ok {
		jsonData, err := json.Marshal(map[string]any{
			"segmentsData": res.Segments,
		})
		if err != nil {
			h.logger.Error("marshal segments data", "error", err)
			return
		}
		sse.PatchSignals(jsonData)
	}
	sse.PatchElements(html)
	flush(w)
}

func (h *SSEHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := render(insightsTemplate, h.run.Insights())
	if err != nil {
		h.logger.Error("render insights", "error", err)
		return
	}
	sse.PatchElements(html)
	flush(w)
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	for _, fragment := range []func() (string, error){
		h.summaryFragment,
		h.associationsFragment,
		h.segmentsFragment,
	} {
		html, err := fragment()
		if err != nil {
			h.logger.Error("render fragment", "error", err)
			return
		}
		sse.PatchElements(html)
	}

	insights, err := render(insightsTemplate, h.run.Insights())
	if err != nil {
		h.logger.Error("render insights", "error", err)
		return
	}
	sse.PatchElements(insights)

	// Send all signals in one call
	allSignals, err := json.Marshal(h.chartSignals())
	if err != nil {
		h.logger.Error("marshal all signals data", "error", err)
		return
	}
	sse.PatchSignals(allSignals)
	flush(w)
}
