package report

import (
	"retail-bi/internal/models"
	"retail-bi/internal/pipeline"
)

// Column precision for float cells. Integers and strings ignore it.
const (
	precMoney = 2
	precRatio = 6
)

type Column struct {
	Name      string
	Precision int
}

// Table is one derived dataset in export form. Cells hold string, int or
// float64 values.
type Table struct {
	Name    string
	Module  pipeline.Module
	Columns []Column
	Rows    [][]any
}

func (t Table) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Tables builds every exportable table of run. Tables of failed modules are
// returned with nil rows; callers check run.Available(t.Module).
func Tables(run *pipeline.Run) []Table {
	tables := []Table{
		monthlyTable(run),
		forecastTable(run),
		associationsTable(run),
		rfmTable(run),
		segmentsTable(run),
		groupTable("category_sales", "category", run.Categories()),
		groupTable("region_sales", "region", run.Regions()),
		groupTable("product_sales", "product_name", run.Products()),
	}
	for i := range tables {
		if !run.Available(tables[i].Module) {
			tables[i].Rows = nil
		}
	}
	return tables
}

func monthlyTable(run *pipeline.Run) Table {
	t := Table{
		Name:   "monthly_sales",
		Module: pipeline.ModuleAggregate,
		Columns: []Column{
			{Name: "month"},
			{Name: "total_sales", Precision: precMoney},
			{Name: "total_profit", Precision: precMoney},
			{Name: "order_count"},
		},
	}
	for _, m := range run.Monthly() {
		t.Rows = append(t.Rows, []any{m.Month, m.TotalSales, m.TotalProfit, m.OrderCount})
	}
	return t
}

func forecastTable(run *pipeline.Run) Table {
	t := Table{
		Name:   "sales_forecast",
		Module: pipeline.ModuleForecast,
		Columns: []Column{
			{Name: "month"},
			{Name: "predicted_sales", Precision: precMoney},
		},
	}
	fc, _ := run.Forecast()
	for _, p := range fc.Points {
		t.Rows = append(t.Rows, []any{p.Month, p.PredictedSales})
	}
	return t
}

func associationsTable(run *pipeline.Run) Table {
	t := Table{
		Name:   "product_associations",
		Module: pipeline.ModuleBasket,
		Columns: []Column{
			{Name: "product_a"},
			{Name: "product_b"},
			{Name: "co_purchase_count"},
			{Name: "support", Precision: precRatio},
			{Name: "confidence", Precision: precRatio},
			{Name: "lift", Precision: precRatio},
		},
	}
	res, _ := run.Associations()
	for _, a := range res.Associations {
		t.Rows = append(t.Rows, []any{a.ProductA, a.ProductB, a.CoPurchaseCount, a.Support, a.Confidence, a.Lift})
	}
	return t
}

func rfmTable(run *pipeline.Run) Table {
	t := Table{
		Name:   "customer_rfm_segments",
		Module: pipeline.ModuleRFM,
		Columns: []Column{
			{Name: "customer_id"},
			{Name: "recency_days"},
			{Name: "frequency"},
			{Name: "monetary", Precision: precMoney},
			{Name: "r_score"},
			{Name: "f_score"},
			{Name: "m_score"},
			{Name: "segment"},
		},
	}
	res, _ := run.RFM()
	for _, c := range res.Customers {
		t.Rows = append(t.Rows, []any{
			c.CustomerID, c.RecencyDays, c.Frequency, c.Monetary,
			c.RScore, c.FScore, c.MScore, string(c.Segment),
		})
	}
	return t
}

func segmentsTable(run *pipeline.Run) Table {
	t := Table{
		Name:   "rfm_segment_summary",
		Module: pipeline.ModuleRFM,
		Columns: []Column{
			{Name: "segment"},
			{Name: "customers"},
			{Name: "revenue", Precision: precMoney},
			{Name: "avg_monetary", Precision: precMoney},
			{Name: "avg_frequency", Precision: precMoney},
			{Name: "avg_recency_days", Precision: precMoney},
		},
	}
	res, _ := run.RFM()
	for _, s := range res.Segments {
		t.Rows = append(t.Rows, []any{
			string(s.Segment), s.Customers, s.Revenue, s.AvgMonetary, s.AvgFrequency, s.AvgRecencyDays,
		})
	}
	return t
}

func groupTable(name, key string, groups []models.GroupAggregate) Table {
	t := Table{
		Name:   name,
		Module: pipeline.ModuleAggregate,
		Columns: []Column{
			{Name: key},
			{Name: "total_sales", Precision: precMoney},
			{Name: "total_profit", Precision: precMoney},
			{Name: "line_items"},
			{Name: "order_count"},
			{Name: "quantity"},
			{Name: "margin_pct", Precision: precMoney},
		},
	}
	for _, g := range groups {
		t.Rows = append(t.Rows, []any{g.Key, g.TotalSales, g.TotalProfit, g.Count, g.OrderCount, g.Quantity, g.Margin})
	}
	return t
}
