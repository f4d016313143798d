// Package datagen generates synthetic retail transaction tables for demos and
// load tests. Output is fully determined by the seed.
package datagen

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/xuri/excelize/v2"

	"retail-bi/internal/models"
)

var (
	categories = []string{"Electronics", "Furniture", "Office Supplies", "Clothing"}
	regions    = []string{"North", "South", "East", "West", "Central"}
	discounts  = []float64{0, 0, 0, 0.05, 0.1, 0.15, 0.2}

	// Relative sales weight per calendar month, heavier around the holidays.
	seasonality = [13]float64{0, 0.8, 0.75, 0.9, 0.95, 1, 1, 0.95, 1, 1.05, 1.1, 1.4, 1.6}
)

const productsPerCategory = 8

type Options struct {
	Rows      int
	Seed      uint64
	Start     time.Time
	Months    int
	Customers int
}

func DefaultOptions() Options {
	return Options{
		Rows:      34000,
		Seed:      42,
		Start:     time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC),
		Months:    24,
		Customers: 1500,
	}
}

type product struct {
	name     string
	category string
	price    float64
	margin   float64
}

type Generator struct {
	faker    *gofakeit.Faker
	opts     Options
	products []product
}

func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Rows <= 0 {
		opts.Rows = def.Rows
	}
	if opts.Start.IsZero() {
		opts.Start = def.Start
	}
	if opts.Months <= 0 {
		opts.Months = def.Months
	}
	if opts.Customers <= 0 {
		opts.Customers = def.Customers
	}

	g := &Generator{
		faker: gofakeit.New(opts.Seed),
		opts:  opts,
	}
	g.products = g.catalogue()
	return g
}

func (g *Generator) catalogue() []product {
	seen := make(map[string]bool)
	var products []product
	for _, category := range categories {
		for n := 0; n < productsPerCategory; {
			name := g.faker.ProductName()
			if seen[name] {
				continue
			}
			seen[name] = true
			products = append(products, product{
				name:     name,
				category: category,
				price:    round2(g.faker.Float64Range(5, 1500)),
				margin:   g.faker.Float64Range(-0.1, 0.4),
			})
			n++
		}
	}
	return products
}

// Transactions builds exactly opts.Rows line items grouped into orders of one
// to four distinct products.
func (g *Generator) Transactions() []models.Transaction {
	txs := make([]models.Transaction, 0, g.opts.Rows)
	end := g.opts.Start.AddDate(0, g.opts.Months, 0).Add(-time.Nanosecond)

	for order := 1; len(txs) < g.opts.Rows; order++ {
		date := g.orderDate(end)
		customer := fmt.Sprintf("CUST-%05d", g.faker.IntRange(1, g.opts.Customers))
		region := regions[g.faker.IntRange(0, len(regions)-1)]
		orderID := fmt.Sprintf("ORD-%07d", order)

		items := min(g.faker.IntRange(1, 4), g.opts.Rows-len(txs))
		picked := make(map[int]bool, items)
		for len(picked) < items {
			idx := g.faker.IntRange(0, len(g.products)-1)
			if picked[idx] {
				continue
			}
			picked[idx] = true

			p := g.products[idx]
			qty := g.faker.IntRange(1, 6)
			discount := discounts[g.faker.IntRange(0, len(discounts)-1)]
			sales := round2(float64(qty) * p.price * (1 - discount))

			txs = append(txs, models.Transaction{
				OrderID:     orderID,
				Date:        date,
				CustomerID:  customer,
				Category:    p.category,
				Region:      region,
				ProductName: p.name,
				Quantity:    qty,
				UnitPrice:   p.price,
				Sales:       sales,
				Discount:    discount,
				Profit:      round2(sales * (p.margin - discount/2)),
			})
		}
	}
	return txs
}

// orderDate draws a day in range, re-drawing with a probability that follows
// the seasonal weight of its month.
func (g *Generator) orderDate(end time.Time) time.Time {
	for {
		d := g.faker.DateRange(g.opts.Start, end)
		if g.faker.Float64Range(0, seasonality[12]) <= seasonality[d.Month()] {
			y, m, day := d.UTC().Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		}
	}
}

var header = []string{
	"order_id", "date", "customer_id", "category", "region", "product_name",
	"quantity", "unit_price", "sales", "discount", "profit",
}

// WriteCSV writes the generated table in the column layout the loader reads.
func (g *Generator) WriteCSV(w io.Writer) (int, error) {
	txs := g.Transactions()

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write headers: %w", err)
	}
	for i, tx := range txs {
		if err := writer.Write(record(tx)); err != nil {
			return i, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return len(txs), writer.Error()
}

// WriteXLSX writes the generated table to the first sheet of a new workbook.
func (g *Generator) WriteXLSX(path string) (int, error) {
	txs := g.Transactions()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to open sheet writer: %w", err)
	}
	if err := sw.SetRow("A1", toCells(header)); err != nil {
		return 0, fmt.Errorf("failed to write headers: %w", err)
	}
	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return i, err
		}
		if err := sw.SetRow(cell, toCells(record(tx))); err != nil {
			return i, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("failed to save workbook: %w", err)
	}
	return len(txs), nil
}

func record(tx models.Transaction) []string {
	return []string{
		tx.OrderID,
		tx.Date.Format(models.DateLayout),
		tx.CustomerID,
		tx.Category,
		tx.Region,
		tx.ProductName,
		strconv.Itoa(tx.Quantity),
		strconv.FormatFloat(tx.UnitPrice, 'f', 2, 64),
		strconv.FormatFloat(tx.Sales, 'f', 2, 64),
		strconv.FormatFloat(tx.Discount, 'f', 2, 64),
		strconv.FormatFloat(tx.Profit, 'f', 2, 64),
	}
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
