package zipmeta

import "strings"

// Node is one level of the folder view over entry names. Files carry a
// size and no children; folders carry children and no size of their own.
// The tree is immutable once built; navigation is a caller-driven walk.
type Node struct {
	Size     int64            `json:"size,omitempty"`
	Children map[string]*Node `json:"children,omitempty"`
}

// IsDir reports whether the node represents a folder level.
func (n *Node) IsDir() bool {
	return n.Children != nil
}

// BuildTree folds the flat entry listing into a nested name to
// (size | subtree) structure keyed on "/" separated path segments.
func BuildTree(entries []Entry) *Node {
	root := &Node{Children: make(map[string]*Node)}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name, "/")
		if name == "" {
			continue
		}
		parts := strings.Split(name, "/")
		current := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := current.Children[part]
			if !ok || child.Children == nil {
				child = &Node{Children: make(map[string]*Node)}
				current.Children[part] = child
			}
			current = child
		}
		leaf := parts[len(parts)-1]
		if strings.HasSuffix(e.Name, "/") {
			// explicit directory entry; keep any children already attached
			if _, ok := current.Children[leaf]; !ok {
				current.Children[leaf] = &Node{Children: make(map[string]*Node)}
			}
			continue
		}
		current.Children[leaf] = &Node{Size: e.Size}
	}
	return root
}
