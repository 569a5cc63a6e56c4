// Package tree implements the structural operations over an investigation
// forest. Every mutating operation returns a new forest and leaves its
// input untouched; sibling order is always preserved exactly as stored.
package tree

import (
	"casetree/pkg/models"
)

// FindNode returns the first node with the given id, searching depth
// first: each node before its children, children in stored order. The
// returned node is a view into the input forest and must not be mutated.
func FindNode(forest models.Forest, id string) models.Node {
	for _, node := range forest {
		if found := findInNode(node, id); found != nil {
			return found
		}
	}
	return nil
}

func findInNode(node models.Node, id string) models.Node {
	if node.NodeID() == id {
		return node
	}
	if folder, ok := node.(*models.Folder); ok {
		for _, child := range folder.Children {
			if found := findInNode(child, id); found != nil {
				return found
			}
		}
	}
	return nil
}

// FindParentAndIndex locates the container holding the node with the
// given id. A nil parent with ok=true means the node sits at the root
// level at the returned index.
func FindParentAndIndex(forest models.Forest, id string) (parent *models.Folder, index int, ok bool) {
	for i, node := range forest {
		if node.NodeID() == id {
			return nil, i, true
		}
	}
	for _, node := range forest {
		if folder, isFolder := node.(*models.Folder); isFolder {
			if p, i, found := findParentIn(folder, id); found {
				return p, i, true
			}
		}
	}
	return nil, -1, false
}

func findParentIn(folder *models.Folder, id string) (*models.Folder, int, bool) {
	for i, child := range folder.Children {
		if child.NodeID() == id {
			return folder, i, true
		}
	}
	for _, child := range folder.Children {
		if sub, ok := child.(*models.Folder); ok {
			if p, i, found := findParentIn(sub, id); found {
				return p, i, true
			}
		}
	}
	return nil, -1, false
}

// CountNodes returns the total number of folders and records in the
// forest.
func CountNodes(forest models.Forest) int {
	total := 0
	for _, node := range forest {
		total += countInNode(node)
	}
	return total
}

func countInNode(node models.Node) int {
	total := 1
	if folder, ok := node.(*models.Folder); ok {
		for _, child := range folder.Children {
			total += countInNode(child)
		}
	}
	return total
}

// CollectIDs returns every id in the forest in depth-first order.
func CollectIDs(forest models.Forest) []string {
	var ids []string
	var walk func(models.Node)
	walk = func(node models.Node) {
		ids = append(ids, node.NodeID())
		if folder, ok := node.(*models.Folder); ok {
			for _, child := range folder.Children {
				walk(child)
			}
		}
	}
	for _, node := range forest {
		walk(node)
	}
	return ids
}

// CollectRecordIDs returns the ids of every record in the subtree rooted
// at the node with the given id. If the id names a record, the result is
// just that id. Used by the store to cascade ledger deletes.
func CollectRecordIDs(forest models.Forest, id string) []string {
	node := FindNode(forest, id)
	if node == nil {
		return nil
	}
	var ids []string
	var walk func(models.Node)
	walk = func(n models.Node) {
		switch v := n.(type) {
		case *models.Record:
			ids = append(ids, v.ID)
		case *models.Folder:
			for _, child := range v.Children {
				walk(child)
			}
		}
	}
	walk(node)
	return ids
}

// isDescendant reports whether candidateID names the root node itself or
// any node inside its subtree.
func isDescendant(root models.Node, candidateID string) bool {
	return findInNode(root, candidateID) != nil
}
