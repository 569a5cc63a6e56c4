package persist

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"casetree/internal/logger"
	"casetree/pkg/models"
)

// FileConfig configures the file-backed adapter.
type FileConfig struct {
	Dir          string
	PollInterval time.Duration
}

// FileAdapter keeps each slot in a JSON file under one directory and
// detects external rewrites by polling content fingerprints. Writes go
// through a temp file plus rename so a concurrent reader never sees a
// torn payload.
type FileAdapter struct {
	dir  string
	poll time.Duration

	mu    sync.Mutex
	seen  map[Slot][32]byte
	known map[Slot]bool
}

// NewFileAdapter constructs a file-backed adapter, creating the slot
// directory if needed.
func NewFileAdapter(cfg FileConfig) (*FileAdapter, error) {
	if cfg.Dir == "" {
		cfg.Dir = "data"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create slot directory: %w", err)
	}

	logger.Infof("File persistence initialized: %s", cfg.Dir)
	return &FileAdapter{
		dir:   cfg.Dir,
		poll:  cfg.PollInterval,
		seen:  make(map[Slot][32]byte),
		known: make(map[Slot]bool),
	}, nil
}

// SaveForest writes the forest slot.
func (a *FileAdapter) SaveForest(forest models.Forest) error {
	data, err := EncodeForest(forest)
	if err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}
	return a.write(SlotForest, data)
}

// LoadForest reads the forest slot. Missing or malformed data loads as
// an empty forest.
func (a *FileAdapter) LoadForest() (models.Forest, error) {
	data, ok, err := a.read(SlotForest)
	if err != nil || !ok {
		return models.Forest{}, err
	}
	forest, err := DecodeForest(data)
	if err != nil {
		logger.Warnf("Treating malformed forest slot as empty: %v", err)
		return models.Forest{}, nil
	}
	return forest, nil
}

// SaveSignals writes the signal-map slot.
func (a *FileAdapter) SaveSignals(m models.SignalMap) error {
	data, err := EncodeSignals(m)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	return a.write(SlotSignals, data)
}

// LoadSignals reads the signal-map slot. Missing or malformed data
// loads as an empty map.
func (a *FileAdapter) LoadSignals() (models.SignalMap, error) {
	data, ok, err := a.read(SlotSignals)
	if err != nil || !ok {
		return models.SignalMap{}, err
	}
	m, err := DecodeSignals(data)
	if err != nil {
		logger.Warnf("Treating malformed signal slot as empty: %v", err)
		return models.SignalMap{}, nil
	}
	return m, nil
}

// SaveSelection writes the selected-item slot.
func (a *FileAdapter) SaveSelection(id string) error {
	return a.write(SlotSelection, []byte(id))
}

// LoadSelection reads the selected-item slot.
func (a *FileAdapter) LoadSelection() (string, error) {
	data, ok, err := a.read(SlotSelection)
	if err != nil || !ok {
		return "", err
	}
	return string(data), nil
}

// Watch polls the slot files and forwards slots whose content changed
// outside this adapter, until ctx is cancelled.
func (a *FileAdapter) Watch(ctx context.Context, onChange func(Slot)) error {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, slot := range []Slot{SlotForest, SlotSignals, SlotSelection} {
				if a.changedExternally(slot) {
					onChange(slot)
				}
			}
		}
	}
}

// Close is a no-op for the file backend.
func (a *FileAdapter) Close() error { return nil }

// changedExternally and write share the mutex so a poll can never
// observe this adapter's own rename before its fingerprint is recorded.
// Known absence counts as state: a slot file appearing after a load saw
// it missing is an external change, as is a slot file vanishing after
// one was seen.
func (a *FileAdapter) changedExternally(slot Slot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.slotPath(slot))
	if os.IsNotExist(err) {
		_, hadContent := a.seen[slot]
		a.known[slot] = true
		delete(a.seen, slot)
		return hadContent
	}
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)

	prev, hadContent := a.seen[slot]
	if hadContent && prev == sum {
		return false
	}
	external := a.known[slot]
	a.seen[slot] = sum
	a.known[slot] = true
	// First sighting of a slot this adapter never read or wrote is the
	// initial state, not an external change.
	return external
}

func (a *FileAdapter) write(slot Slot, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.slotPath(slot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit slot %s: %w", slot, err)
	}
	a.seen[slot] = sha256.Sum256(data)
	a.known[slot] = true
	return nil
}

func (a *FileAdapter) read(slot Slot) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.slotPath(slot))
	if os.IsNotExist(err) {
		a.known[slot] = true
		delete(a.seen, slot)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", slot, err)
	}
	a.seen[slot] = sha256.Sum256(data)
	a.known[slot] = true
	return data, true, nil
}

func (a *FileAdapter) slotPath(slot Slot) string {
	return filepath.Join(a.dir, string(slot)+".json")
}
