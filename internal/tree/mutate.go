package tree

import (
	"strings"

	"casetree/pkg/models"
)

// Insert returns a new forest with node appended under the folder named
// by parentID, or at the root level when parentID is empty. The target
// folder is opened so the new content is immediately visible.
func Insert(forest models.Forest, parentID string, node models.Node) (models.Forest, error) {
	for _, id := range CollectIDs(models.Forest{node}) {
		if FindNode(forest, id) != nil {
			return nil, DuplicateIDError{ID: id}
		}
	}
	if parentID == "" {
		out := forest.Clone()
		return append(out, node.Clone()), nil
	}

	target := FindNode(forest, parentID)
	if target == nil {
		return nil, NotFoundError{ID: parentID}
	}
	if _, ok := target.(*models.Folder); !ok {
		return nil, NotAFolderError{ID: parentID}
	}

	out := forest.Clone()
	folder, _ := FindNode(out, parentID).(*models.Folder)
	folder.Children = append(folder.Children, node.Clone())
	folder.IsOpen = true
	return out, nil
}

// Rename returns a new forest with the named node's display name
// replaced. An empty name after trimming is a no-op, not an error;
// callers validate before calling, the algorithm stays defensive.
func Rename(forest models.Forest, id, newName string) (models.Forest, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return forest, nil
	}
	if FindNode(forest, id) == nil {
		return nil, NotFoundError{ID: id}
	}

	out := forest.Clone()
	switch node := FindNode(out, id).(type) {
	case *models.Folder:
		node.Name = newName
	case *models.Record:
		node.Name = newName
	}
	return out, nil
}

// Remove returns a new forest without the named node. Removing a folder
// drops its entire subtree; confirmation is the caller's concern.
func Remove(forest models.Forest, id string) (models.Forest, error) {
	if FindNode(forest, id) == nil {
		return nil, NotFoundError{ID: id}
	}

	out := forest.Clone()
	parent, index, _ := FindParentAndIndex(out, id)
	if parent == nil {
		out = append(out[:index], out[index+1:]...)
		return out, nil
	}
	parent.Children = append(parent.Children[:index], parent.Children[index+1:]...)
	return out, nil
}

// ToggleOpen returns a new forest with the named folder's expansion
// state flipped. Descendant folders keep their own state.
func ToggleOpen(forest models.Forest, folderID string) (models.Forest, error) {
	target := FindNode(forest, folderID)
	if target == nil {
		return nil, NotFoundError{ID: folderID}
	}
	if _, ok := target.(*models.Folder); !ok {
		return nil, NotAFolderError{ID: folderID}
	}

	out := forest.Clone()
	folder, _ := FindNode(out, folderID).(*models.Folder)
	folder.IsOpen = !folder.IsOpen
	return out, nil
}

// Move returns a new forest with the named node re-parented under
// newParentID, or at the root level when newParentID is empty. The move
// is a single operation: no intermediate forest ever lacks the node.
// Moving a folder into its own subtree fails with CycleError.
func Move(forest models.Forest, id, newParentID string) (models.Forest, error) {
	node := FindNode(forest, id)
	if node == nil {
		return nil, NotFoundError{ID: id}
	}
	if newParentID != "" {
		if isDescendant(node, newParentID) {
			return nil, CycleError{ID: id, ParentID: newParentID}
		}
		target := FindNode(forest, newParentID)
		if target == nil {
			return nil, NotFoundError{ID: newParentID}
		}
		if _, ok := target.(*models.Folder); !ok {
			return nil, NotAFolderError{ID: newParentID}
		}
	}

	out := forest.Clone()
	parent, index, _ := FindParentAndIndex(out, id)
	var moved models.Node
	if parent == nil {
		moved = out[index]
		out = append(out[:index], out[index+1:]...)
	} else {
		moved = parent.Children[index]
		parent.Children = append(parent.Children[:index], parent.Children[index+1:]...)
	}

	if newParentID == "" {
		return append(out, moved), nil
	}
	folder, _ := FindNode(out, newParentID).(*models.Folder)
	folder.Children = append(folder.Children, moved)
	folder.IsOpen = true
	return out, nil
}
