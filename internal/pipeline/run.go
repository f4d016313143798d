package pipeline

import (
	"time"

	"retail-bi/internal/aggregate"
	"retail-bi/internal/basket"
	"retail-bi/internal/errors"
	"retail-bi/internal/forecast"
	"retail-bi/internal/models"
	"retail-bi/internal/rfm"
)

type ModuleStatus struct {
	Module   Module           `json:"module"`
	Code     errors.ErrorCode `json:"code,omitempty"`
	Err      error            `json:"-"`
	Duration time.Duration    `json:"duration"`
}

func (s ModuleStatus) OK() bool {
	return s.Err == nil
}

// Run holds the derived tables of one pipeline execution. It is never
// modified after Execute returns, so it can be shared between goroutines.
// Returned slices must be treated as read-only.
type Run struct {
	id        string
	source    string
	startedAt time.Time
	duration  time.Duration

	transactions []models.Transaction

	summary    models.Summary
	monthly    []models.MonthlyAggregate
	categories []models.GroupAggregate
	regions    []models.GroupAggregate
	products   []models.GroupAggregate
	seasonal   models.SeasonalProfile

	forecast forecast.Result
	basket   basket.Result
	rfm      rfm.Result

	statuses map[Module]ModuleStatus
}

func (r *Run) ID() string { return r.id }

// Source is the file the transactions were loaded from, empty when Execute
// was called directly.
func (r *Run) Source() string { return r.source }

func (r *Run) StartedAt() time.Time { return r.startedAt }

func (r *Run) Duration() time.Duration { return r.duration }

func (r *Run) TransactionCount() int { return len(r.transactions) }

func (r *Run) Summary() models.Summary { return r.summary }

func (r *Run) Monthly() []models.MonthlyAggregate { return r.monthly }

func (r *Run) Categories() []models.GroupAggregate { return r.categories }

func (r *Run) Regions() []models.GroupAggregate { return r.regions }

func (r *Run) Products() []models.GroupAggregate { return r.products }

func (r *Run) Seasonality() models.SeasonalProfile { return r.seasonal }

// Status returns the outcome of module. Unknown modules report DATA_UNAVAILABLE.
func (r *Run) Status(module Module) ModuleStatus {
	if st, ok := r.statuses[module]; ok {
		return st
	}
	return ModuleStatus{
		Module: module,
		Code:   errors.CodeDataUnavailable,
		Err:    errors.DataUnavailable("module " + string(module) + " did not run"),
	}
}

func (r *Run) Available(module Module) bool {
	return r.Status(module).OK()
}

// Statuses lists module outcomes in reporting order.
func (r *Run) Statuses() []ModuleStatus {
	out := make([]ModuleStatus, 0, len(Modules))
	for _, m := range Modules {
		out = append(out, r.Status(m))
	}
	return out
}

func (r *Run) Failed() []Module {
	var failed []Module
	for _, m := range Modules {
		if !r.Available(m) {
			failed = append(failed, m)
		}
	}
	return failed
}

// Forecast returns the projection and whether the forecast module succeeded.
func (r *Run) Forecast() (forecast.Result, bool) {
	return r.forecast, r.Available(ModuleForecast)
}

func (r *Run) Associations() (basket.Result, bool) {
	return r.basket, r.Available(ModuleBasket)
}

func (r *Run) RFM() (rfm.Result, bool) {
	return r.rfm, r.Available(ModuleRFM)
}

// TopMarginCategories returns up to n categories ordered by profit margin.
func (r *Run) TopMarginCategories(n int) []models.GroupAggregate {
	return aggregate.TopByMargin(r.categories, n)
}

func (r *Run) TopMarginProducts(n int) []models.GroupAggregate {
	return aggregate.TopByMargin(r.products, n)
}
