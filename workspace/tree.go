package workspace

import (
	"sort"
	"strings"
)

// Node is one entry in the hierarchical projection of the workspace.
// Directories carry children; files carry nothing beyond their identity
// (content stays in the flat map).
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Dir      bool    `json:"dir"`
	Children []*Node `json:"children,omitempty"`
}

// Tree derives the hierarchical view from the flat map. The flat map is the
// source of truth; the tree is recomputed on every call and never cached.
// At each level directories sort before files, both lexicographically by
// name.
func (w *Workspace) Tree() []*Node {
	w.mu.RLock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.RUnlock()

	root := &Node{Dir: true}
	for _, path := range paths {
		insert(root, path)
	}
	sortChildren(root)
	return root.Children
}

func insert(root *Node, path string) {
	segments := make([]string, 0, 4)
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return
	}

	cur := root
	for i, seg := range segments {
		last := i == len(segments)-1
		child := findChild(cur, seg)
		if child == nil {
			child = &Node{
				Name: seg,
				Path: strings.Join(segments[:i+1], "/"),
				Dir:  !last,
			}
			cur.Children = append(cur.Children, child)
		}
		cur = child
	}
}

func findChild(n *Node, name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func sortChildren(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Dir != b.Dir {
			return a.Dir
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		sortChildren(c)
	}
}
