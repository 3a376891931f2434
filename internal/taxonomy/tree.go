package taxonomy

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxDepth is the fixed depth of the taxonomy: category, subcategory,
// group, class.
const MaxDepth = 4

// Node is a single taxonomy entry. The tree is built once at load time and
// never mutated afterwards.
type Node struct {
	ID          string
	Name        string
	Description string
	Level       int
}

// FlatNode is the loader-facing shape before tree assembly.
type FlatNode struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Level       int    `yaml:"level"`
	ParentID    string `yaml:"parent_id"`
}

// Tree is the immutable 4-level category tree with O(1) child lookup keyed
// by parent id. Level-1 roots live under the empty parent key.
type Tree struct {
	children map[string][]*Node
	byID     map[string]*Node
}

// Build assembles and validates a Tree from flat nodes. It fails fast when
// a node's level is not its parent's level + 1, when a child id is not
// prefixed by its parent id, or when two siblings share an id.
func Build(nodes []FlatNode) (*Tree, error) {
	t := &Tree{
		children: make(map[string][]*Node),
		byID:     make(map[string]*Node, len(nodes)),
	}

	// Parents must exist before their children; input files are not
	// required to be pre-sorted.
	sorted := make([]FlatNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	for _, fn := range sorted {
		if fn.ID == "" {
			return nil, eris.New("taxonomy: node with empty id")
		}
		if fn.Level < 1 || fn.Level > MaxDepth {
			return nil, eris.Errorf("taxonomy: node %s has level %d outside 1..%d", fn.ID, fn.Level, MaxDepth)
		}
		if _, dup := t.byID[fn.ID]; dup {
			return nil, eris.Errorf("taxonomy: duplicate node id %s", fn.ID)
		}

		if fn.Level == 1 {
			if fn.ParentID != "" {
				return nil, eris.Errorf("taxonomy: level-1 node %s must not have a parent", fn.ID)
			}
		} else {
			parent, ok := t.byID[fn.ParentID]
			if !ok {
				return nil, eris.Errorf("taxonomy: node %s references unknown parent %s", fn.ID, fn.ParentID)
			}
			if fn.Level != parent.Level+1 {
				return nil, eris.Errorf("taxonomy: node %s has level %d under parent %s at level %d", fn.ID, fn.Level, parent.ID, parent.Level)
			}
			if !strings.HasPrefix(fn.ID, parent.ID) {
				return nil, eris.Errorf("taxonomy: node id %s is not prefixed by parent id %s", fn.ID, parent.ID)
			}
		}

		n := &Node{
			ID:          fn.ID,
			Name:        fn.Name,
			Description: fn.Description,
			Level:       fn.Level,
		}
		t.byID[n.ID] = n
		t.children[fn.ParentID] = append(t.children[fn.ParentID], n)
	}

	if len(t.children[""]) == 0 {
		return nil, eris.New("taxonomy: no level-1 categories")
	}

	return t, nil
}

// Children returns the immediate children of parentID at the given level.
// An unknown parent or a parent without children yields nil: "no categories
// available" is a valid terminal condition, not an error. Level-1 lookup
// takes the empty parent id.
func (t *Tree) Children(parentID string, level int) []*Node {
	if level == 1 {
		parentID = ""
	}
	kids := t.children[parentID]
	if len(kids) == 0 || kids[0].Level != level {
		return nil
	}
	return kids
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id string) *Node {
	return t.byID[id]
}

// Size returns the total number of nodes.
func (t *Tree) Size() int {
	return len(t.byID)
}
