package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tealeg/xlsx/v2"
)

func TestLoadYAML(t *testing.T) {
	fixture := `
- id: "51"
  name: Information
  level: 1
- id: "511"
  name: Publishing
  level: 2
  parent_id: "51"
`
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	tree, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tree.Size() != 2 {
		t.Errorf("size = %d, want 2", tree.Size())
	}
	if n := tree.Node("511"); n == nil || n.Name != "Publishing" {
		t.Errorf("unexpected node: %+v", n)
	}
}

func TestLoadYAML_InvalidTree(t *testing.T) {
	fixture := `
- id: "511"
  name: Publishing
  level: 2
  parent_id: "51"
`
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadYAML(path); err == nil {
		t.Error("expected error for missing parent")
	}
}

func TestLoadXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Taxonomy")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]string{
		{"id", "name", "description", "level"},
		{"51", "Information", "Information sector", "1"},
		{"511", "Publishing", "", "2"},
		{"5111", "Newspaper Publishers", "", "3"},
		{"511110", "Newspaper Publishers", "", "4"},
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().Value = v
		}
	}

	path := filepath.Join(t.TempDir(), "taxonomy.xlsx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}

	tree, err := LoadXLSX(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tree.Size() != 4 {
		t.Errorf("size = %d, want 4", tree.Size())
	}
	kids := tree.Children("5111", 4)
	if len(kids) != 1 || kids[0].ID != "511110" {
		t.Errorf("unexpected level-4 children: %v", kids)
	}
}
