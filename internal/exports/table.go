// Package exports reads keyword ranking and search performance exports from
// CSV or XLSX files and writes discovery results back out in either format.
package exports

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Column aliases accepted in export headers, compared case-insensitively.
var columnAliases = map[string][]string{
	"keyword":     {"keyword", "query", "keys", "top queries", "search query"},
	"position":    {"position", "avg. position", "average position", "rank"},
	"clicks":      {"clicks", "url clicks"},
	"impressions": {"impressions"},
	"ctr":         {"ctr", "url ctr"},
	"intent":      {"intent", "search intent"},
}

// table is a parsed export: a header index and the data rows.
type table struct {
	cols map[string]int
	rows [][]string
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// number parses a numeric cell. Thousands separators and a trailing percent
// sign are accepted; percentages are returned as fractions.
func (t *table) number(row []string, col string) float64 {
	s := strings.ReplaceAll(t.get(row, col), ",", "")
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if pct {
		v /= 100
	}
	return v
}

// readTable loads path as CSV or XLSX by extension and indexes its header.
func readTable(ctx context.Context, path string) (*table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(ctx, path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, eris.Errorf("exports: unsupported file type %q", path)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("exports: %s is empty", path)
	}

	t := &table{cols: indexHeader(records[0]), rows: records[1:]}
	if !t.has("keyword") {
		return nil, eris.Errorf("exports: %s has no keyword column", path)
	}
	return t, nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for col, aliases := range columnAliases {
			if _, seen := cols[col]; seen {
				continue
			}
			for _, a := range aliases {
				if name == a {
					cols[col] = i
				}
			}
		}
	}
	return cols
}

func readCSV(ctx context.Context, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "exports: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "exports: csv read cancelled")
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "exports: read %s", path)
		}
		records = append(records, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "exports: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("exports: %s has no sheets", path)
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}
