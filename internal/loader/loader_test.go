package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

const validHeader = "order_id,date,customer_id,category,region,product_name,quantity,unit_price,sales,discount,profit"

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidCSV(t *testing.T) {
	csv := validHeader + `
O2,2024-02-03,C2,Office,West,Stapler,2,10.00,18.00,0.1,4.50
O1,2024-01-15,C1,Technology,,Laptop,1,999.99,999.99,0,120.00
O1,2024-01-15,C1,Technology,East,Mouse,3,20.00,60.00,0,-5.25`

	path := createTempFile(t, "sales.csv", csv)
	txs, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	// Source order is preserved.
	if txs[0].OrderID != "O2" || txs[1].ProductName != "Laptop" || txs[2].ProductName != "Mouse" {
		t.Errorf("row order not preserved: %+v", txs)
	}

	want := models.Transaction{
		OrderID:     "O2",
		Date:        time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		CustomerID:  "C2",
		Category:    "Office",
		Region:      "West",
		ProductName: "Stapler",
		Quantity:    2,
		UnitPrice:   10,
		Sales:       18,
		Discount:    0.1,
		Profit:      4.5,
	}
	if txs[0] != want {
		t.Errorf("first transaction = %+v, want %+v", txs[0], want)
	}

	if txs[1].Region != models.UnknownRegion {
		t.Errorf("empty region should default to %q, got %q", models.UnknownRegion, txs[1].Region)
	}
	if txs[2].Profit != -5.25 {
		t.Errorf("negative profit should be kept, got %v", txs[2].Profit)
	}
}

func TestLoad_HeaderAliases(t *testing.T) {
	csv := "\ufeffOrder_ID,Order Date,Customer_ID,Category,Product,Qty,Sales,Profit\n" +
		"A-1,01/31/2023,C9,Furniture,Chair,4,\"1,200.00\",300\n"

	txs, err := LoadCSV(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].Sales != 1200 {
		t.Errorf("expected sales 1200, got %v", txs[0].Sales)
	}
	if !txs[0].Date.Equal(time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", txs[0].Date)
	}
	if txs[0].Discount != 0 || txs[0].UnitPrice != 0 {
		t.Error("optional columns should default to zero")
	}
}

func TestLoad_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantMsg string
	}{
		{
			name:    "empty file",
			csv:     "",
			wantMsg: "no header",
		},
		{
			name:    "header only",
			csv:     validHeader,
			wantMsg: "no transactions",
		},
		{
			name:    "missing columns",
			csv:     "order_id,date,product_name,sales\nO1,2024-01-01,Laptop,10",
			wantMsg: "customer_id, category, quantity, profit",
		},
		{
			name:    "invalid date",
			csv:     validHeader + "\nO1,not-a-date,C1,Tech,East,Laptop,1,10,10,0,1",
			wantMsg: "unparseable date",
		},
		{
			name:    "negative quantity",
			csv:     validHeader + "\nO1,2024-01-01,C1,Tech,East,Laptop,-2,10,10,0,1",
			wantMsg: "negative quantity",
		},
		{
			name:    "fractional quantity",
			csv:     validHeader + "\nO1,2024-01-01,C1,Tech,East,Laptop,1.5,10,10,0,1",
			wantMsg: "not an integer",
		},
		{
			name:    "invalid sales",
			csv:     validHeader + "\nO1,2024-01-01,C1,Tech,East,Laptop,1,10,abc,0,1",
			wantMsg: "invalid sales",
		},
		{
			name:    "discount above one",
			csv:     validHeader + "\nO1,2024-01-01,C1,Tech,East,Laptop,1,10,10,1.5,1",
			wantMsg: "outside [0,1]",
		},
		{
			name:    "negative unit price",
			csv:     validHeader + "\nO1,2024-01-01,C1,Tech,East,Laptop,1,-10,10,0,1",
			wantMsg: "negative unit_price",
		},
		{
			name:    "empty customer",
			csv:     validHeader + "\nO1,2024-01-01,,Tech,East,Laptop,1,10,10,0,1",
			wantMsg: "empty customer_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(context.Background(), strings.NewReader(tt.csv))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.HasCode(err, errors.CodeSchema) {
				t.Errorf("expected SCHEMA_ERROR, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad_ReportsFirstBadRowAcrossBatches(t *testing.T) {
	var b strings.Builder
	b.WriteString(validHeader + "\n")
	rows := batchSize*2 + 100
	for i := range rows {
		qty := "1"
		if i == batchSize+7 || i == batchSize*2+50 {
			qty = "-1"
		}
		fmt.Fprintf(&b, "O%d,2024-01-01,C%d,Tech,East,P%d,%s,1,1,0,0\n", i, i%10, i%5, qty)
	}

	_, err := LoadCSV(context.Background(), strings.NewReader(b.String()))
	if err == nil {
		t.Fatal("expected an error")
	}
	wantRow := fmt.Sprintf("row %d", batchSize+7+2)
	if !strings.Contains(err.Error(), wantRow) {
		t.Errorf("error %q should point at %s", err.Error(), wantRow)
	}
}

func TestLoad_LargeInputKeepsOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString(validHeader + "\n")
	rows := batchSize*3 + 17
	for i := range rows {
		fmt.Fprintf(&b, "O%d,2024-01-01,C1,Tech,East,P1,1,1,%d,0,0\n", i, i)
	}

	txs, err := LoadCSV(context.Background(), strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(txs) != rows {
		t.Fatalf("expected %d rows, got %d", rows, len(txs))
	}
	for i, tx := range txs {
		if tx.Sales != float64(i) {
			t.Fatalf("row %d out of order: sales %v", i, tx.Sales)
		}
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadCSV(ctx, strings.NewReader(validHeader+"\nO1,2024-01-01,C1,Tech,East,Laptop,1,10,10,0,1"))
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Order_ID", "Order_Date", "Customer_ID", "Category", "Region", "Product", "Quantity", "Sales", "Profit"},
		{"O1", "2024-03-01", "C1", "Tech", "North", "Monitor", 1, 250.5, 40},
		{},
		{"O2", "2024-03-02", "C2", "Tech", "South", "Cable", 2, 12, 3},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	txs, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions (blank row skipped), got %d", len(txs))
	}
	if txs[0].ProductName != "Monitor" || txs[0].Sales != 250.5 {
		t.Errorf("unexpected first row %+v", txs[0])
	}
	if txs[1].Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", txs[1].Quantity)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := createTempFile(t, "sales.json", "[]")
	_, err := Load(context.Background(), path)
	if !errors.HasCode(err, errors.CodeSchema) {
		t.Errorf("expected SCHEMA_ERROR for unsupported format, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Error("expected error for a missing file")
	}
}
