package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

type column int

const (
	colOrderID column = iota
	colDate
	colCustomerID
	colCategory
	colRegion
	colProduct
	colQuantity
	colUnitPrice
	colSales
	colDiscount
	colProfit
	numColumns
)

var columnNames = [numColumns]string{
	colOrderID:    "order_id",
	colDate:       "date",
	colCustomerID: "customer_id",
	colCategory:   "category",
	colRegion:     "region",
	colProduct:    "product_name",
	colQuantity:   "quantity",
	colUnitPrice:  "unit_price",
	colSales:      "sales",
	colDiscount:   "discount",
	colProfit:     "profit",
}

// Header spellings accepted for each column after normalization.
var columnAliases = map[string]column{
	"order_id": colOrderID, "orderid": colOrderID, "order_no": colOrderID, "order_number": colOrderID,
	"invoice": colOrderID, "invoice_no": colOrderID, "invoiceno": colOrderID,

	"date": colDate, "order_date": colDate, "orderdate": colDate, "transaction_date": colDate,
	"invoice_date": colDate, "invoicedate": colDate,

	"customer_id": colCustomerID, "customerid": colCustomerID, "customer": colCustomerID, "user_id": colCustomerID,

	"category": colCategory, "product_category": colCategory,

	"region": colRegion,

	"product_name": colProduct, "product": colProduct, "productname": colProduct, "item": colProduct,
	"description": colProduct,

	"quantity": colQuantity, "qty": colQuantity,

	"unit_price": colUnitPrice, "unitprice": colUnitPrice, "price": colUnitPrice,

	"sales": colSales, "total_price": colSales, "amount": colSales, "revenue": colSales,

	"discount": colDiscount,

	"profit": colProfit,
}

var requiredColumns = []column{
	colOrderID, colDate, colCustomerID, colCategory, colProduct, colQuantity, colSales, colProfit,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// header maps each canonical column to its position in a source row, or -1.
type header [numColumns]int

func parseHeader(cells []string) (header, error) {
	var h header
	for i := range h {
		h[i] = -1
	}

	for i, cell := range cells {
		name := normalizeHeader(cell)
		if col, ok := columnAliases[name]; ok && h[col] == -1 {
			h[col] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if h[col] == -1 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return h, errors.Schema(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	return h, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func (h header) cell(row []string, col column) string {
	idx := h[col]
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (h header) parse(row []string) (models.Transaction, error) {
	tx := models.Transaction{
		OrderID:     h.cell(row, colOrderID),
		CustomerID:  h.cell(row, colCustomerID),
		Category:    h.cell(row, colCategory),
		Region:      h.cell(row, colRegion),
		ProductName: h.cell(row, colProduct),
	}

	for _, col := range []column{colOrderID, colCustomerID, colProduct} {
		if h.cell(row, col) == "" {
			return tx, fmt.Errorf("empty %s", columnNames[col])
		}
	}
	if tx.Region == "" {
		tx.Region = models.UnknownRegion
	}

	date, err := parseDate(h.cell(row, colDate))
	if err != nil {
		return tx, err
	}
	tx.Date = date

	if tx.Quantity, err = parseQuantity(h.cell(row, colQuantity)); err != nil {
		return tx, err
	}
	if tx.Sales, err = parseNumber(h.cell(row, colSales), colSales); err != nil {
		return tx, err
	}
	if tx.Profit, err = parseNumber(h.cell(row, colProfit), colProfit); err != nil {
		return tx, err
	}

	if raw := h.cell(row, colUnitPrice); raw != "" {
		if tx.UnitPrice, err = parseNumber(raw, colUnitPrice); err != nil {
			return tx, err
		}
		if tx.UnitPrice < 0 {
			return tx, fmt.Errorf("negative unit_price %v", tx.UnitPrice)
		}
	}

	if raw := h.cell(row, colDiscount); raw != "" {
		if tx.Discount, err = parseNumber(raw, colDiscount); err != nil {
			return tx, err
		}
		if tx.Discount < 0 || tx.Discount > 1 {
			return tx, fmt.Errorf("discount %v outside [0,1]", tx.Discount)
		}
	}

	return tx, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseNumber(raw string, col column) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty %s", columnNames[col])
	}
	clean := strings.NewReplacer("$", "", ",", "").Replace(raw)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", columnNames[col], raw)
	}
	return v, nil
}

func parseQuantity(raw string) (int, error) {
	q, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := parseNumber(raw, colQuantity)
		if ferr != nil {
			return 0, ferr
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("quantity %q is not an integer", raw)
		}
		q = int(f)
	}
	if q < 0 {
		return 0, fmt.Errorf("negative quantity %d", q)
	}
	if q == 0 {
		return 0, fmt.Errorf("zero quantity")
	}
	return q, nil
}
