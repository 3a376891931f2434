// Package output writes the final classification artifact and reads vendor
// lists from xlsx and csv files.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/classify-cli/internal/model"
)

// Format selects the artifact file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", eris.Errorf("output: unknown format %q", s)
	}
}

var header = []string{
	"Vendor",
	"L1 Code", "L1 Name", "L1 Confidence",
	"L2 Code", "L2 Name", "L2 Confidence",
	"L3 Code", "L3 Name", "L3 Confidence",
	"L4 Code", "L4 Name", "L4 Confidence",
	"Search Code", "Search Name", "Search Confidence",
	"Search Sources",
	"Notes",
}

// WriteResults writes one artifact for a job and returns its path. The file
// holds one row per original input vendor, in input order.
func WriteResults(dir, jobID string, format Format, rows []model.OutputRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "output: create dir %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("classification_%s.%s", jobID, format))

	switch format {
	case FormatCSV:
		if err := writeCSV(path, rows); err != nil {
			return "", err
		}
	default:
		if err := writeXLSX(path, rows); err != nil {
			return "", err
		}
	}
	return path, nil
}

func writeXLSX(path string, rows []model.OutputRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Classification")
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().Value = h
	}

	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range flatten(row) {
			r.AddCell().Value = v
		}
	}

	return eris.Wrapf(f.Save(path), "output: save %s", path)
}

func writeCSV(path string, rows []model.OutputRow) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "output: write header")
	}
	for _, row := range rows {
		if err := w.Write(flatten(row)); err != nil {
			return eris.Wrap(err, "output: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "output: flush")
}

// flatten lays one OutputRow out across the header columns.
func flatten(row model.OutputRow) []string {
	out := make([]string, 0, len(header))
	out = append(out, row.Vendor)

	byLevel := make(map[int]model.LevelResult, len(row.Levels))
	for _, lr := range row.Levels {
		byLevel[lr.Level] = lr
	}

	var notes []string
	for level := 1; level <= 4; level++ {
		lr, ok := byLevel[level]
		if !ok || !lr.Succeeded() {
			out = append(out, "", "", "")
			if ok && lr.Reason != "" {
				notes = append(notes, fmt.Sprintf("L%d: %s", level, lr.Reason))
			}
			continue
		}
		out = append(out, lr.CategoryID, lr.CategoryName, formatConfidence(lr.Confidence))
	}

	if row.Search != nil {
		rc := row.Search.ResolvedCategory
		if rc != nil && rc.Succeeded() {
			out = append(out, rc.CategoryID, rc.CategoryName, formatConfidence(rc.Confidence))
		} else {
			out = append(out, "", "", "")
			if rc != nil && rc.Reason != "" {
				notes = append(notes, "search: "+rc.Reason)
			}
		}
		var urls []string
		for _, s := range row.Search.Sources {
			urls = append(urls, s.URL)
		}
		out = append(out, strings.Join(urls, " "))
		if row.Search.Error != "" {
			notes = append(notes, "search: "+row.Search.Error)
		}
	} else {
		out = append(out, "", "", "", "")
	}

	if row.Reason != "" {
		notes = append(notes, row.Reason)
	}
	out = append(out, strings.Join(notes, "; "))
	return out
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%.2f", c)
}
