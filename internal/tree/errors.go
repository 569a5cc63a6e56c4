package tree

import "fmt"

// NotFoundError reports an operation that referenced an id absent from
// the forest.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}

// NotAFolderError reports an insert or move whose target parent resolved
// to a leaf record.
type NotAFolderError struct {
	ID string
}

func (e NotAFolderError) Error() string {
	return fmt.Sprintf("node is not a folder: %s", e.ID)
}

// DuplicateIDError reports an insert whose node (or one of its
// descendants) carries an id already present in the forest.
type DuplicateIDError struct {
	ID string
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("id already exists in forest: %s", e.ID)
}

// CycleError reports a move whose target parent lies inside the moved
// node's own subtree.
type CycleError struct {
	ID       string
	ParentID string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("moving %s under %s would create a cycle", e.ID, e.ParentID)
}
