package datagen

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-bi/internal/loader"
)

func smallOptions(seed uint64) Options {
	return Options{
		Rows:      500,
		Seed:      seed,
		Start:     time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		Months:    6,
		Customers: 40,
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	_, err := New(smallOptions(7)).WriteCSV(&a)
	require.NoError(t, err)
	_, err = New(smallOptions(7)).WriteCSV(&b)
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())

	var c bytes.Buffer
	_, err = New(smallOptions(8)).WriteCSV(&c)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), c.Bytes())
}

func TestGenerator_Transactions(t *testing.T) {
	opts := smallOptions(1)
	txs := New(opts).Transactions()
	require.Len(t, txs, opts.Rows)

	end := opts.Start.AddDate(0, opts.Months, 0)
	perOrder := map[string]map[string]bool{}
	for _, tx := range txs {
		assert.False(t, tx.Date.Before(opts.Start), "date %v before start", tx.Date)
		assert.True(t, tx.Date.Before(end), "date %v after end", tx.Date)
		assert.Positive(t, tx.Quantity)
		assert.GreaterOrEqual(t, tx.Discount, 0.0)
		assert.LessOrEqual(t, tx.Discount, 1.0)
		assert.GreaterOrEqual(t, tx.UnitPrice, 0.0)

		if perOrder[tx.OrderID] == nil {
			perOrder[tx.OrderID] = map[string]bool{}
		}
		assert.False(t, perOrder[tx.OrderID][tx.ProductName], "product repeated within order %s", tx.OrderID)
		perOrder[tx.OrderID][tx.ProductName] = true
	}

	var multi int
	for _, products := range perOrder {
		if len(products) > 1 {
			multi++
		}
	}
	assert.Positive(t, multi, "expected some multi-item orders")
}

func TestGenerator_OutputLoads(t *testing.T) {
	var buf bytes.Buffer
	n, err := New(smallOptions(3)).WriteCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	txs, err := loader.LoadCSV(context.Background(), &buf)
	require.NoError(t, err)
	assert.Len(t, txs, 500)
}

func TestGenerator_XLSXLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.xlsx")
	n, err := New(smallOptions(5)).WriteXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	txs, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, txs, 500)
	assert.Equal(t, New(smallOptions(5)).Transactions()[0].OrderID, txs[0].OrderID)
}

func TestNew_Defaults(t *testing.T) {
	g := New(Options{Seed: 1})
	assert.Equal(t, DefaultOptions().Rows, g.opts.Rows)
	assert.Len(t, g.products, len(categories)*productsPerCategory)
}
