package taxonomy

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"
)

// LoadXLSX reads a taxonomy workbook. The first sheet must carry one node
// per row as `id | name | description | level`, with a single header row.
// Parent links are derived from the hierarchical id scheme: a node's parent
// is the level-N-1 node whose id prefixes it.
func LoadXLSX(path string) (*Tree, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("taxonomy: workbook has no sheets")
	}

	var flats []FlatNode
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		cells := rowStrings(row)
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		if len(cells) < 4 {
			return nil, eris.Errorf("taxonomy: row %d has %d cells, want 4", i+1, len(cells))
		}
		level, err := cellInt(cells[3])
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: row %d level", i+1)
		}
		flats = append(flats, FlatNode{
			ID:          strings.TrimSpace(cells[0]),
			Name:        strings.TrimSpace(cells[1]),
			Description: strings.TrimSpace(cells[2]),
			Level:       level,
		})
	}

	if err := deriveParents(flats); err != nil {
		return nil, err
	}
	return Build(flats)
}

// LoadYAML reads a taxonomy fixture file: a list of nodes with explicit
// parent_id fields. Used for development and tests.
func LoadYAML(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: read yaml")
	}
	var flats []FlatNode
	if err := yaml.Unmarshal(data, &flats); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse yaml")
	}
	return Build(flats)
}

// deriveParents fills ParentID for nodes above level 1 by finding the
// level-N-1 id that prefixes the node's id.
func deriveParents(flats []FlatNode) error {
	byLevel := make(map[int]map[string]bool)
	for _, fn := range flats {
		if byLevel[fn.Level] == nil {
			byLevel[fn.Level] = make(map[string]bool)
		}
		byLevel[fn.Level][fn.ID] = true
	}

	for i := range flats {
		fn := &flats[i]
		if fn.Level == 1 {
			continue
		}
		parents := byLevel[fn.Level-1]
		found := ""
		for candidate := range parents {
			if strings.HasPrefix(fn.ID, candidate) && len(candidate) > len(found) {
				found = candidate
			}
		}
		if found == "" {
			return eris.Errorf("taxonomy: no level-%d parent prefixes id %s", fn.Level-1, fn.ID)
		}
		fn.ParentID = found
	}
	return nil
}

func rowStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

func cellInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	// xlsx numeric cells may render as "2" or "2.0".
	if idx := strings.Index(s, "."); idx > 0 {
		s = s[:idx]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, eris.Errorf("not a number: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	if s == "" {
		return 0, eris.New("empty cell")
	}
	return n, nil
}
