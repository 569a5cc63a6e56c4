package tree

import (
	"testing"

	"casetree/pkg/models"
)

func TestFindNodeDepthFirstOrder(t *testing.T) {
	// Two nodes never share an id in a valid forest; the contract is
	// simply first match in depth-first, folders before their children.
	forest := models.Forest{
		folder("f1", "A",
			record("r1", "X"),
			folder("f2", "B", record("r2", "Y")),
		),
		folder("f3", "C"),
	}

	for _, id := range []string{"f1", "r1", "f2", "r2", "f3"} {
		node := FindNode(forest, id)
		if node == nil || node.NodeID() != id {
			t.Fatalf("find %s failed: %+v", id, node)
		}
	}
	if FindNode(forest, "missing") != nil {
		t.Fatalf("expected nil for missing id")
	}
}

func TestFindParentAndIndex(t *testing.T) {
	forest := models.Forest{
		folder("f1", "A",
			record("r1", "X"),
			folder("f2", "B", record("r2", "Y")),
		),
	}

	parent, index, ok := FindParentAndIndex(forest, "f1")
	if !ok || parent != nil || index != 0 {
		t.Fatalf("root lookup wrong: parent=%v index=%d ok=%v", parent, index, ok)
	}

	parent, index, ok = FindParentAndIndex(forest, "f2")
	if !ok || parent == nil || parent.ID != "f1" || index != 1 {
		t.Fatalf("nested folder lookup wrong: parent=%+v index=%d", parent, index)
	}

	parent, index, ok = FindParentAndIndex(forest, "r2")
	if !ok || parent == nil || parent.ID != "f2" || index != 0 {
		t.Fatalf("deep record lookup wrong: parent=%+v index=%d", parent, index)
	}

	if _, _, ok := FindParentAndIndex(forest, "ghost"); ok {
		t.Fatalf("expected miss for ghost")
	}
}

func TestCountNodes(t *testing.T) {
	if n := CountNodes(nil); n != 0 {
		t.Fatalf("empty forest count = %d", n)
	}
	forest := models.Forest{
		folder("f1", "A", record("r1", "X"), folder("f2", "B", record("r2", "Y"))),
	}
	if n := CountNodes(forest); n != 4 {
		t.Fatalf("expected 4 nodes, got %d", n)
	}
}

func TestCollectRecordIDs(t *testing.T) {
	forest := models.Forest{
		folder("f1", "A",
			record("r1", "X"),
			folder("f2", "B", record("r2", "Y")),
		),
	}

	ids := CollectRecordIDs(forest, "f1")
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Fatalf("unexpected record ids: %v", ids)
	}

	ids = CollectRecordIDs(forest, "r2")
	if len(ids) != 1 || ids[0] != "r2" {
		t.Fatalf("single record lookup wrong: %v", ids)
	}

	if ids := CollectRecordIDs(forest, "ghost"); ids != nil {
		t.Fatalf("expected nil for missing id, got %v", ids)
	}
}
