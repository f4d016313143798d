// Package report exports the tables of a pipeline run as flat files: one CSV
// per table, an optional XLSX workbook and a YAML manifest describing the run.
//
// CSV output is deterministic. Floats are written with fixed precision, so
// the same input always produces byte-identical files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"retail-bi/internal/config"
	"retail-bi/internal/errors"
	"retail-bi/internal/observability"
	"retail-bi/internal/pipeline"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	WorkbookName = "retail_analytics.xlsx"
	ManifestName = "manifest.yaml"
)

type Manifest struct {
	RunID        string        `yaml:"run_id"`
	Source       string        `yaml:"source,omitempty"`
	StartedAt    time.Time     `yaml:"started_at"`
	Transactions int           `yaml:"transactions"`
	Modules      []ModuleEntry `yaml:"modules"`
	Files        []FileEntry   `yaml:"files"`
	Unavailable  []string      `yaml:"unavailable,omitempty"`
}

type ModuleEntry struct {
	Module string `yaml:"module"`
	Status string `yaml:"status"`
	Code   string `yaml:"code,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

type FileEntry struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
	Table  string `yaml:"table,omitempty"`
	Rows   int    `yaml:"rows,omitempty"`
}

type Writer struct {
	dir     string
	formats []string
	logger  *slog.Logger
}

func NewWriter(cfg config.DataConfig, logger *slog.Logger) *Writer {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Writer{dir: cfg.OutputDir, formats: formats, logger: logger}
}

func (w *Writer) has(format string) bool {
	for _, f := range w.formats {
		if f == format {
			return true
		}
	}
	return false
}

// Write exports run into the output directory. Tables of failed modules are
// skipped, any stale copy from an earlier run is removed, and the manifest
// lists them as unavailable.
func (w *Writer) Write(run *pipeline.Run) (Manifest, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return Manifest{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := Manifest{
		RunID:        run.ID(),
		Source:       run.Source(),
		StartedAt:    run.StartedAt(),
		Transactions: run.TransactionCount(),
	}
	for _, st := range run.Statuses() {
		entry := ModuleEntry{Module: string(st.Module), Status: "ok"}
		if !st.OK() {
			entry.Status = "unavailable"
			entry.Code = string(st.Code)
			entry.Error = st.Err.Error()
		}
		m.Modules = append(m.Modules, entry)
	}

	tables := Tables(run)
	var available []Table
	for _, t := range tables {
		if !run.Available(t.Module) {
			m.Unavailable = append(m.Unavailable, t.Name)
			if err := removeStale(filepath.Join(w.dir, t.Name+".csv")); err != nil {
				return m, err
			}
			continue
		}
		available = append(available, t)
	}

	if w.has(FormatCSV) {
		for _, t := range available {
			name := t.Name + ".csv"
			if err := w.writeCSV(filepath.Join(w.dir, name), t); err != nil {
				return m, fmt.Errorf("write %s: %w", name, err)
			}
			m.Files = append(m.Files, FileEntry{Name: name, Format: FormatCSV, Table: t.Name, Rows: len(t.Rows)})
		}
	}

	if w.has(FormatXLSX) {
		if err := writeWorkbook(filepath.Join(w.dir, WorkbookName), available); err != nil {
			return m, fmt.Errorf("write %s: %w", WorkbookName, err)
		}
		m.Files = append(m.Files, FileEntry{Name: WorkbookName, Format: FormatXLSX})
	}

	if err := writeManifest(filepath.Join(w.dir, ManifestName), m); err != nil {
		return m, err
	}

	w.logger.Info("reports written",
		slog.String("run_id", m.RunID),
		slog.String("dir", w.dir),
		slog.Int("files", len(m.Files)),
		slog.Int("unavailable", len(m.Unavailable)),
	)
	return m, nil
}

func (w *Writer) writeCSV(path string, t Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := encodeCSV(file, t); err != nil {
		return err
	}

	w.logger.Debug("csv table written",
		slog.String("file_path", path),
		slog.Int("record_count", len(t.Rows)),
	)
	return file.Close()
}

func encodeCSV(out io.Writer, t Table) error {
	writer := csv.NewWriter(out)
	if err := writer.Write(t.Header()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, v := range row {
			record[j] = formatCell(v, t.Columns[j].Precision)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatCell(v any, precision int) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', precision, 64)
	default:
		return fmt.Sprint(x)
	}
}

// writeWorkbook stores one sheet per table. Numeric cells stay numeric.
func writeWorkbook(path string, tables []Table) error {
	if len(tables) == 0 {
		return errors.DataUnavailable("no tables available for the workbook")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}

		header := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			header[j] = c.Name
		}
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return err
		}
		for r, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(t.Name, cell, &row); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	return f.SaveAs(path)
}

func writeManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", filepath.Base(path), err)
	}
	return nil
}
