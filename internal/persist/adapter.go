// Package persist translates the in-memory forest, signal map, and
// selection to and from a durable key-value slot, and surfaces changes
// made to that slot by other contexts.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"casetree/pkg/models"
)

// Slot names one of the well-known persisted keys.
type Slot string

const (
	SlotForest    Slot = "investigationFolderData"
	SlotSignals   Slot = "savedSignals"
	SlotSelection Slot = "investigationSelectedItemId"
)

// Adapter is a durable backend for the three slots. Load methods treat
// missing or malformed payloads as absence: they log and return the
// empty value, never an error the caller must recover from.
type Adapter interface {
	SaveForest(forest models.Forest) error
	LoadForest() (models.Forest, error)
	SaveSignals(m models.SignalMap) error
	LoadSignals() (models.SignalMap, error)
	SaveSelection(id string) error
	LoadSelection() (string, error)

	// Watch invokes onChange for every slot rewrite made by a different
	// context, until ctx is cancelled. Writes made through this adapter
	// instance are suppressed.
	Watch(ctx context.Context, onChange func(Slot)) error

	Close() error
}

// MalformedStateError reports a persisted payload that cannot be decoded
// into its slot's shape. Adapters recover from it locally by treating
// the slot as empty.
type MalformedStateError struct {
	Slot Slot
	Err  error
}

func (e MalformedStateError) Error() string {
	return fmt.Sprintf("malformed persisted state in %s: %v", e.Slot, e.Err)
}

func (e MalformedStateError) Unwrap() error { return e.Err }

// EncodeForest serializes a forest for its slot.
func EncodeForest(forest models.Forest) ([]byte, error) {
	if forest == nil {
		forest = models.Forest{}
	}
	return json.Marshal(forest)
}

// DecodeForest deserializes a forest payload.
func DecodeForest(data []byte) (models.Forest, error) {
	var forest models.Forest
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, MalformedStateError{Slot: SlotForest, Err: err}
	}
	return forest, nil
}

// EncodeSignals serializes a signal map for its slot.
func EncodeSignals(m models.SignalMap) ([]byte, error) {
	if m == nil {
		m = models.SignalMap{}
	}
	return json.Marshal(m)
}

// DecodeSignals deserializes a signal map payload.
func DecodeSignals(data []byte) (models.SignalMap, error) {
	var m models.SignalMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, MalformedStateError{Slot: SlotSignals, Err: err}
	}
	return m, nil
}
