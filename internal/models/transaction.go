package models

import "time"

// Transaction is one line item of an order. Sales and Profit are trusted as
// given by the source and never recomputed.
type Transaction struct {
	OrderID     string    `json:"order_id"`
	Date        time.Time `json:"date"`
	CustomerID  string    `json:"customer_id"`
	Category    string    `json:"category"`
	Region      string    `json:"region"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Sales       float64   `json:"sales"`
	Discount    float64   `json:"discount"`
	Profit      float64   `json:"profit"`
}

// MonthKey returns the calendar month of the transaction as YYYY-MM.
func (t Transaction) MonthKey() string {
	return t.Date.Format(MonthLayout)
}

const (
	MonthLayout = "2006-01"
	DateLayout  = "2006-01-02"

	// UnknownRegion is used when the source carries no region column.
	UnknownRegion = "Unknown"
)
