package pipeline

import (
	"retail-bi/internal/models"
)

// Insights condenses a run into business recommendations. A section is nil
// when the module it depends on failed.
type Insights struct {
	Forecast  *ForecastInsight  `json:"forecast,omitempty"`
	Bundles   *BundleInsight    `json:"bundles,omitempty"`
	Retention *RetentionInsight `json:"retention,omitempty"`
	Seasonal  *SeasonalInsight  `json:"seasonal,omitempty"`
	Category  *CategoryInsight  `json:"category,omitempty"`
}

type ForecastInsight struct {
	LastActual     float64 `json:"last_actual"`
	AvgForecast    float64 `json:"avg_forecast"`
	GrowthPercent  float64 `json:"growth_percent"`
	Recommendation string  `json:"recommendation"`
}

type BundleInsight struct {
	Associations   int    `json:"associations"`
	TopProductA    string `json:"top_product_a"`
	TopProductB    string `json:"top_product_b"`
	Recommendation string `json:"recommendation"`
}

type RetentionInsight struct {
	Champions      int    `json:"champions"`
	AtRisk         int    `json:"at_risk"`
	Recommendation string `json:"recommendation"`
}

type SeasonalInsight struct {
	PeakMonth      string `json:"peak_month"`
	LowMonth       string `json:"low_month"`
	Recommendation string `json:"recommendation"`
}

type CategoryInsight struct {
	Category       string  `json:"category"`
	Margin         float64 `json:"margin"`
	Recommendation string  `json:"recommendation"`
}

func (r *Run) Insights() Insights {
	var in Insights

	if fc, ok := r.Forecast(); ok && len(fc.Points) > 0 && len(r.monthly) > 0 {
		last := r.monthly[len(r.monthly)-1].TotalSales
		var sum float64
		for _, p := range fc.Points {
			sum += p.PredictedSales
		}
		avg := sum / float64(len(fc.Points))

		var growth float64
		if last != 0 {
			growth = (avg - last) / last * 100
		}
		rec := "Optimize stock levels for a flat or declining quarter"
		if growth > 0 {
			rec = "Increase inventory by 15-20% ahead of expected growth"
		}
		in.Forecast = &ForecastInsight{
			LastActual:     last,
			AvgForecast:    avg,
			GrowthPercent:  growth,
			Recommendation: rec,
		}
	}

	if b, ok := r.Associations(); ok && len(b.Associations) > 0 {
		top := b.Associations[0]
		in.Bundles = &BundleInsight{
			Associations:   len(b.Associations),
			TopProductA:    top.ProductA,
			TopProductB:    top.ProductB,
			Recommendation: "Promote the top pairs as frequently bought together bundles",
		}
	}

	if res, ok := r.RFM(); ok {
		ret := &RetentionInsight{
			Recommendation: "Reward champions and run win-back campaigns for at-risk customers",
		}
		for _, c := range res.Customers {
			switch c.Segment {
			case models.SegmentChampions:
				ret.Champions++
			case models.SegmentAtRisk:
				ret.AtRisk++
			}
		}
		in.Retention = ret
	}

	if r.Available(ModuleAggregate) {
		if r.seasonal.Peak != "" {
			in.Seasonal = &SeasonalInsight{
				PeakMonth:      r.seasonal.Peak,
				LowMonth:       r.seasonal.Low,
				Recommendation: "Shift marketing spend into the peak month and clear stock in the low month",
			}
		}
		if top := r.TopMarginCategories(1); len(top) > 0 {
			in.Category = &CategoryInsight{
				Category:       top[0].Key,
				Margin:         top[0].Margin,
				Recommendation: "Give high-margin categories more shelf space and promotion",
			}
		}
	}

	return in
}
