package models

import "time"

type MonthlyAggregate struct {
	Month       string  `json:"month"`
	TotalSales  float64 `json:"total_sales"`
	TotalProfit float64 `json:"total_profit"`
	OrderCount  int     `json:"order_count"`
}

// GroupAggregate is the shared shape of the category, region and product
// reductions.
type GroupAggregate struct {
	Key         string  `json:"key"`
	TotalSales  float64 `json:"total_sales"`
	TotalProfit float64 `json:"total_profit"`
	Count       int     `json:"count"`
	OrderCount  int     `json:"order_count"`
	Quantity    int     `json:"quantity"`
	Margin      float64 `json:"margin"`
}

type ForecastPoint struct {
	Month          string  `json:"month"`
	PredictedSales float64 `json:"predicted_sales"`
}

// ProductAssociation is an unordered product pair stored with ProductA < ProductB.
type ProductAssociation struct {
	ProductA        string  `json:"product_a"`
	ProductB        string  `json:"product_b"`
	CoPurchaseCount int     `json:"co_purchase_count"`
	Support         float64 `json:"support"`
	Confidence      float64 `json:"confidence"`
	Lift            float64 `json:"lift"`
}

type Segment string

const (
	SegmentChampions Segment = "Champions"
	SegmentLoyal     Segment = "Loyal"
	SegmentPotential Segment = "Potential"
	SegmentAtRisk    Segment = "At Risk"
)

type CustomerRFM struct {
	CustomerID  string  `json:"customer_id"`
	RecencyDays int     `json:"recency_days"`
	Frequency   int     `json:"frequency"`
	Monetary    float64 `json:"monetary"`
	RScore      int     `json:"r_score"`
	FScore      int     `json:"f_score"`
	MScore      int     `json:"m_score"`
	Segment     Segment `json:"segment"`
}

type SegmentSummary struct {
	Segment        Segment `json:"segment"`
	Customers      int     `json:"customers"`
	Revenue        float64 `json:"revenue"`
	AvgMonetary    float64 `json:"avg_monetary"`
	AvgFrequency   float64 `json:"avg_frequency"`
	AvgRecencyDays float64 `json:"avg_recency_days"`
}

// SeasonalMonth holds the average line-item sales for one calendar month
// across all years in the dataset.
type SeasonalMonth struct {
	Month     time.Month `json:"month"`
	Name      string     `json:"name"`
	AvgSales  float64    `json:"avg_sales"`
	LineItems int        `json:"line_items"`
}

type SeasonalProfile struct {
	Months []SeasonalMonth `json:"months"`
	Peak   string          `json:"peak"`
	Low    string          `json:"low"`
}

type Summary struct {
	Transactions  int       `json:"transactions"`
	TotalSales    float64   `json:"total_sales"`
	TotalProfit   float64   `json:"total_profit"`
	ProfitMargin  float64   `json:"profit_margin"`
	Orders        int       `json:"orders"`
	Customers     int       `json:"customers"`
	AvgOrderValue float64   `json:"avg_order_value"`
	FirstDate     time.Time `json:"first_date"`
	LastDate      time.Time `json:"last_date"`
}
