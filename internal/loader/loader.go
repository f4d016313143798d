// Package loader reads a raw retail transaction table and turns it into the
// canonical []models.Transaction consumed by the analytics pipeline.
//
// Any schema problem is fatal: a missing required column, an unparseable date
// or number, a non-positive quantity, a negative unit price or a discount
// outside [0, 1] aborts the load with a SCHEMA_ERROR. The output keeps the
// row order of the source.
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

const (
	batchSize  = 5000
	maxWorkers = 8
)

// Load reads a .csv or .xlsx transaction source.
func Load(ctx context.Context, path string) ([]models.Transaction, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer file.Close()
		return LoadCSV(ctx, file)
	case ".xlsx":
		return LoadXLSX(ctx, path)
	default:
		return nil, errors.Schema(fmt.Sprintf("unsupported source format %q, expected .csv or .xlsx", filepath.Ext(path)))
	}
}

func LoadCSV(ctx context.Context, r io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.SchemaWrap(err, "malformed csv")
	}
	return LoadRows(ctx, rows)
}

// LoadXLSX reads the first sheet of a workbook.
func LoadXLSX(ctx context.Context, path string) ([]models.Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Schema("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return LoadRows(ctx, rows)
}

type sourceRow struct {
	line  int
	cells []string
}

// LoadRows parses a header row followed by data rows. Blank rows are skipped.
func LoadRows(ctx context.Context, rows [][]string) ([]models.Transaction, error) {
	if len(rows) == 0 {
		return nil, errors.Schema("empty source: no header row")
	}

	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}

	body := make([]sourceRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		body = append(body, sourceRow{line: i + 2, cells: cells})
	}
	if len(body) == 0 {
		return nil, errors.Schema("no transactions found")
	}

	txs := make([]models.Transaction, len(body))
	batches := (len(body) + batchSize - 1) / batchSize
	batchErrs := make([]error, batches)

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for b := range batches {
		start := b * batchSize
		end := min(start+batchSize, len(body))

		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					batchErrs[b] = err
					return nil
				}
				tx, err := h.parse(body[i].cells)
				if err != nil {
					batchErrs[b] = errors.SchemaWrap(err, fmt.Sprintf("row %d", body[i].line))
					return nil
				}
				txs[i] = tx
			}
			return nil
		})
	}
	_ = g.Wait()

	// Report the first bad row in source order regardless of which batch
	// finished first.
	for _, err := range batchErrs {
		if err != nil {
			return nil, err
		}
	}

	return txs, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
