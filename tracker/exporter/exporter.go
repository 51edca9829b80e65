// Package exporter writes the flattened benchmark history as CSV, JSON or Parquet.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

// Format is an export file format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// FormatFromPath guesses the format from a file extension
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Row is one bench of one entry
type Row struct {
	Suite      string    `json:"suite" parquet:"suite,snappy,dict"`
	RunID      string    `json:"run_id" parquet:"run_id,snappy"`
	CommitID   string    `json:"commit_id" parquet:"commit_id,snappy,dict"`
	Date       time.Time `json:"date" parquet:"date,snappy"`
	Bench      string    `json:"bench" parquet:"bench,snappy,dict"`
	Value      float64   `json:"value" parquet:"value,snappy"`
	Unit       string    `json:"unit" parquet:"unit,snappy,dict"`
	Iterations int64     `json:"iterations" parquet:"iterations,snappy"`
	CPUTime    float64   `json:"cpu_time" parquet:"cpu_time,snappy"`
	Threads    int32     `json:"threads" parquet:"threads,snappy"`
}

var csvHeader = []string{"suite", "run_id", "commit_id", "date", "bench", "value", "unit", "iterations", "cpu_time", "threads"}

// Rows flattens a dataset. An empty suite exports every suite.
func Rows(ds *types.Dataset, suite string) []Row {
	suites := []string{suite}
	if suite == "" {
		suites = dataset.Suites(ds)
	}

	var rows []Row
	for _, s := range suites {
		for i := range ds.Entries[s] {
			entry := &ds.Entries[s][i]
			runID := storage.GenerateRunID(s, entry)
			for _, m := range storage.Metrics(runID, s, entry) {
				rows = append(rows, rowFromMetric(m))
			}
		}
	}
	return rows
}

// RowsFromMetrics converts database metrics
func RowsFromMetrics(metrics []types.TimeSeriesMetric) []Row {
	rows := make([]Row, len(metrics))
	for i, m := range metrics {
		rows[i] = rowFromMetric(m)
	}
	return rows
}

func rowFromMetric(m types.TimeSeriesMetric) Row {
	return Row{
		Suite:      m.Suite,
		RunID:      m.RunID,
		CommitID:   m.CommitID,
		Date:       m.Time.UTC(),
		Bench:      m.Bench,
		Value:      m.Value,
		Unit:       m.Unit,
		Iterations: m.Iterations,
		CPUTime:    m.CPUTime,
		Threads:    int32(m.Threads),
	}
}

// Write encodes rows to w
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if rows == nil {
			rows = []Row{}
		}
		return encoder.Encode(rows)
	case FormatParquet:
		writer := parquet.NewGenericWriter[Row](w)
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write data to parquet file: %w", err)
		}
		return writer.Close()
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Suite,
			r.RunID,
			r.CommitID,
			r.Date.Format(time.RFC3339Nano),
			r.Bench,
			dataset.FormatNumber(r.Value),
			r.Unit,
			strconv.FormatInt(r.Iterations, 10),
			dataset.FormatNumber(r.CPUTime),
			strconv.Itoa(int(r.Threads)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFile writes rows to path, creating parent directories. An empty
// format is derived from the file extension.
func ExportFile(path string, format Format, rows []Row) error {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return err
		}
		format = f
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := Write(file, format, rows); err != nil {
		return err
	}
	return file.Close()
}
