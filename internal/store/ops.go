package store

import (
	"encoding/json"
	"fmt"

	"casetree/pkg/models"
)

// OpKind names one of the tree operations the store accepts.
type OpKind string

const (
	OpInsert     OpKind = "insert"
	OpRename     OpKind = "rename"
	OpRemove     OpKind = "remove"
	OpToggleOpen OpKind = "toggle-open"
	OpMove       OpKind = "move"
)

// Operation is the tagged variant handed to Apply. Which fields matter
// depends on Kind: insert uses ParentID+Node, rename uses ID+NewName,
// remove and toggle-open use ID, move uses ID+ParentID. An empty
// ParentID targets the root level.
type Operation struct {
	Kind     OpKind      `json:"kind"`
	ID       string      `json:"id,omitempty"`
	ParentID string      `json:"parentId,omitempty"`
	NewName  string      `json:"newName,omitempty"`
	Node     models.Node `json:"-"`
}

type operationWire struct {
	Kind     OpKind          `json:"kind"`
	ID       string          `json:"id,omitempty"`
	ParentID string          `json:"parentId,omitempty"`
	NewName  string          `json:"newName,omitempty"`
	Node     json.RawMessage `json:"node,omitempty"`
}

// MarshalJSON encodes the operation with its node payload tagged.
func (op Operation) MarshalJSON() ([]byte, error) {
	wire := operationWire{
		Kind:     op.Kind,
		ID:       op.ID,
		ParentID: op.ParentID,
		NewName:  op.NewName,
	}
	if op.Node != nil {
		raw, err := json.Marshal(op.Node)
		if err != nil {
			return nil, err
		}
		wire.Node = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes an operation, resolving the node payload into
// its concrete shape.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var wire operationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	op.Kind = wire.Kind
	op.ID = wire.ID
	op.ParentID = wire.ParentID
	op.NewName = wire.NewName
	op.Node = nil
	if len(wire.Node) > 0 {
		node, err := models.DecodeNode(wire.Node)
		if err != nil {
			return fmt.Errorf("decode operation node: %w", err)
		}
		op.Node = node
	}
	return nil
}

// Validate checks that the fields required by the operation's kind are
// present.
func (op Operation) Validate() error {
	switch op.Kind {
	case OpInsert:
		if op.Node == nil {
			return fmt.Errorf("insert requires a node")
		}
		if op.Node.NodeID() == "" {
			return fmt.Errorf("insert node is missing an id")
		}
	case OpRename:
		if op.ID == "" {
			return fmt.Errorf("rename requires an id")
		}
	case OpRemove, OpToggleOpen:
		if op.ID == "" {
			return fmt.Errorf("%s requires an id", op.Kind)
		}
	case OpMove:
		if op.ID == "" {
			return fmt.Errorf("move requires an id")
		}
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}
