package output

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadVendors reads the vendor list from an xlsx or csv file, picked by
// extension. Vendor strings pass through verbatim, duplicates included;
// only fully empty cells are dropped.
func ReadVendors(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readVendorsXLSX(path)
	case ".csv":
		return readVendorsCSV(path)
	default:
		return nil, eris.Errorf("output: unsupported vendor list format %q", filepath.Ext(path))
	}
}

func readVendorsXLSX(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("output: %s has no sheets", path)
	}

	var vendors []string
	for i, row := range f.Sheets[0].Rows {
		if len(row.Cells) == 0 {
			continue
		}
		v := row.Cells[0].String()
		if i == 0 && isHeaderCell(v) {
			continue
		}
		if v == "" {
			continue
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

func readVendorsCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var vendors []string
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "output: read %s", path)
		}
		if len(record) == 0 {
			continue
		}
		v := record[0]
		if first && isHeaderCell(v) {
			first = false
			continue
		}
		first = false
		if v == "" {
			continue
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

// isHeaderCell spots a leading header row in a vendor list file.
func isHeaderCell(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "vendor", "vendor_name", "vendor name", "name", "company":
		return true
	}
	return false
}
