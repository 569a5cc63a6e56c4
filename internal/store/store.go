// Package store owns the in-memory forest and signal ledger for one
// context, serializes every mutation through the tree algorithms, writes
// through the persistence adapter, and broadcasts resulting snapshots to
// subscribers. One store instance is the single writer per context; all
// reads hand out copies.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"casetree/internal/logger"
	"casetree/internal/metrics"
	"casetree/internal/persist"
	"casetree/internal/signals"
	"casetree/internal/tree"
	"casetree/pkg/models"
)

const defaultLookupCacheSize = 512

// Config tunes store construction.
type Config struct {
	// CascadeSignals deletes a record's attached signals when the record
	// (or a folder subtree containing it) is removed.
	CascadeSignals bool
	// LookupCacheSize bounds the id lookup cache. Zero uses the default.
	LookupCacheSize int
	// Metrics receives operation counters when non-nil.
	Metrics *metrics.Metrics
}

// Store is the single owner of forest, ledger, and selection state.
type Store struct {
	mu        sync.Mutex
	forest    models.Forest
	ledger    *signals.Ledger
	selection string

	adapter persist.Adapter
	cfg     Config
	lookup  *lru.Cache[string, models.Node]

	nextSubID  int
	forestSubs map[int]func(models.Forest)
	signalSubs map[int]func(models.SignalMap)
}

// New constructs a store and loads its initial state from the adapter.
// Missing or malformed persisted state starts the store empty.
func New(adapter persist.Adapter, cfg Config) (*Store, error) {
	size := cfg.LookupCacheSize
	if size <= 0 {
		size = defaultLookupCacheSize
	}
	lookup, err := lru.New[string, models.Node](size)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}

	forest, err := adapter.LoadForest()
	if err != nil {
		return nil, fmt.Errorf("load forest: %w", err)
	}
	sigMap, err := adapter.LoadSignals()
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	selection, err := adapter.LoadSelection()
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}

	s := &Store{
		forest:     forest,
		ledger:     signals.NewLedger(sigMap),
		selection:  selection,
		adapter:    adapter,
		cfg:        cfg,
		lookup:     lookup,
		forestSubs: make(map[int]func(models.Forest)),
		signalSubs: make(map[int]func(models.SignalMap)),
	}
	s.setNodeGauge()
	logger.Infof("Store loaded: %d nodes, %d signals", tree.CountNodes(forest), s.ledger.Len())
	return s, nil
}

// Forest returns a snapshot of the current forest.
func (s *Store) Forest() models.Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Clone()
}

// FindNode returns a copy of the node with the given id, or nil. Hot
// lookups are served from a cache that is purged on every forest swap.
func (s *Store) FindNode(id string) models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.lookup.Get(id); ok {
		return node.Clone()
	}
	node := tree.FindNode(s.forest, id)
	if node == nil {
		return nil
	}
	s.lookup.Add(id, node)
	return node.Clone()
}

// Subscribe registers a listener for forest snapshots. The listener runs
// after every successful mutation and every externally-detected forest
// change. The returned function removes the listener.
func (s *Store) Subscribe(fn func(models.Forest)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.forestSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.forestSubs, id)
	}
}

// SubscribeSignals registers a listener for signal-map snapshots. The
// signal stream is independent of the forest stream.
func (s *Store) SubscribeSignals(fn func(models.SignalMap)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.signalSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.signalSubs, id)
	}
}

// Apply runs one tree operation against the current forest. On success
// the new forest is persisted, swapped in, and broadcast; the returned
// snapshot is durable by the time Apply returns. On error the prior
// forest is untouched and nothing is persisted.
func (s *Store) Apply(op Operation) (models.Forest, error) {
	if err := op.Validate(); err != nil {
		s.countFailure(op.Kind)
		return nil, err
	}

	s.mu.Lock()

	// Defensive no-op the algorithms also honor: renaming to an empty
	// string changes nothing and must not persist or notify.
	if op.Kind == OpRename && strings.TrimSpace(op.NewName) == "" {
		snapshot := s.forest.Clone()
		s.mu.Unlock()
		return snapshot, nil
	}

	next, err := s.runAlgorithm(op)
	if err != nil {
		s.mu.Unlock()
		s.countFailure(op.Kind)
		return nil, err
	}

	var droppedRecords []string
	if op.Kind == OpRemove && s.cfg.CascadeSignals {
		droppedRecords = tree.CollectRecordIDs(s.forest, op.ID)
	}

	if err := s.adapter.SaveForest(next); err != nil {
		s.mu.Unlock()
		s.countFailure(op.Kind)
		return nil, fmt.Errorf("persist forest: %w", err)
	}

	s.forest = next
	s.lookup.Purge()
	s.setNodeGauge()

	signalsChanged := false
	for _, recID := range droppedRecords {
		if s.ledger.Remove(recID) {
			signalsChanged = true
		}
	}
	if signalsChanged {
		if err := s.adapter.SaveSignals(s.ledger.Snapshot()); err != nil {
			logger.Errorf("Failed to persist cascaded signal deletes: %v", err)
		}
	}

	if op.Kind == OpRemove && s.selection != "" && tree.FindNode(next, s.selection) == nil {
		s.selection = ""
		if err := s.adapter.SaveSelection(""); err != nil {
			logger.Errorf("Failed to clear persisted selection: %v", err)
		}
	}

	snapshot := next.Clone()
	forestSubs := s.forestListeners()
	var signalSubs []func(models.SignalMap)
	var signalSnapshot models.SignalMap
	if signalsChanged {
		signalSubs = s.signalListeners()
		signalSnapshot = s.ledger.Snapshot()
	}
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.OpsApplied.WithLabelValues(string(op.Kind)).Inc()
	}
	for _, fn := range forestSubs {
		fn(snapshot)
	}
	for _, fn := range signalSubs {
		fn(signalSnapshot)
	}
	return snapshot, nil
}

// AttachSignal appends or replaces a signal for the record and persists
// the ledger. Re-attaching an id overwrites the previous payload. The
// record need not exist in the forest: signals outlive their source
// unless cascade deletion is enabled.
func (s *Store) AttachSignal(recordID string, sig *models.Signal) error {
	if recordID == "" {
		return fmt.Errorf("attach signal: record id is required")
	}
	if sig == nil {
		return fmt.Errorf("attach signal: signal is required")
	}

	s.mu.Lock()
	attached := sig.Clone()
	if attached.ID == "" {
		attached.ID = models.NewID()
	}
	s.ledger.Attach(recordID, attached)

	if err := s.adapter.SaveSignals(s.ledger.Snapshot()); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist signals: %w", err)
	}

	snapshot := s.ledger.Snapshot()
	subs := s.signalListeners()
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SignalsAttached.Inc()
	}
	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// SignalsFor returns the ordered signals attached to the record.
func (s *Store) SignalsFor(recordID string) []*models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.For(recordID)
}

// Signals returns a snapshot of the full ledger.
func (s *Store) Signals() models.SignalMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// Selection returns the persisted selected-item id.
func (s *Store) Selection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// SetSelection persists the selected-item id for restore on next load.
func (s *Store) SetSelection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adapter.SaveSelection(id); err != nil {
		return fmt.Errorf("persist selection: %w", err)
	}
	s.selection = id
	return nil
}

// Run watches the adapter for changes made by other contexts and folds
// them into this store, re-notifying subscribers exactly as if the
// change had been local. Blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	return s.adapter.Watch(ctx, s.handleExternalChange)
}

// handleExternalChange reloads one slot after another context rewrote
// it. The slot content is taken as truth wholesale: last writer wins,
// with no per-field merge.
func (s *Store) handleExternalChange(slot persist.Slot) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ExternalReloads.WithLabelValues(string(slot)).Inc()
	}

	switch slot {
	case persist.SlotForest:
		forest, err := s.adapter.LoadForest()
		if err != nil {
			logger.Errorf("Failed to reload forest after external change: %v", err)
			return
		}
		s.mu.Lock()
		s.forest = forest
		s.lookup.Purge()
		s.setNodeGauge()
		snapshot := forest.Clone()
		subs := s.forestListeners()
		s.mu.Unlock()

		logger.Infof("Forest reloaded after external change: %d nodes", tree.CountNodes(forest))
		for _, fn := range subs {
			fn(snapshot)
		}

	case persist.SlotSignals:
		m, err := s.adapter.LoadSignals()
		if err != nil {
			logger.Errorf("Failed to reload signals after external change: %v", err)
			return
		}
		s.mu.Lock()
		s.ledger.Replace(m)
		snapshot := s.ledger.Snapshot()
		subs := s.signalListeners()
		s.mu.Unlock()

		for _, fn := range subs {
			fn(snapshot)
		}

	case persist.SlotSelection:
		sel, err := s.adapter.LoadSelection()
		if err != nil {
			logger.Errorf("Failed to reload selection after external change: %v", err)
			return
		}
		s.mu.Lock()
		s.selection = sel
		s.mu.Unlock()
	}
}

func (s *Store) runAlgorithm(op Operation) (models.Forest, error) {
	switch op.Kind {
	case OpInsert:
		return tree.Insert(s.forest, op.ParentID, op.Node)
	case OpRename:
		return tree.Rename(s.forest, op.ID, op.NewName)
	case OpRemove:
		return tree.Remove(s.forest, op.ID)
	case OpToggleOpen:
		return tree.ToggleOpen(s.forest, op.ID)
	case OpMove:
		return tree.Move(s.forest, op.ID, op.ParentID)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (s *Store) forestListeners() []func(models.Forest) {
	out := make([]func(models.Forest), 0, len(s.forestSubs))
	for _, fn := range s.forestSubs {
		out = append(out, fn)
	}
	return out
}

func (s *Store) signalListeners() []func(models.SignalMap) {
	out := make([]func(models.SignalMap), 0, len(s.signalSubs))
	for _, fn := range s.signalSubs {
		out = append(out, fn)
	}
	return out
}

func (s *Store) countFailure(kind OpKind) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.OpsFailed.WithLabelValues(string(kind)).Inc()
	}
}

func (s *Store) setNodeGauge() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ForestNodes.Set(float64(tree.CountNodes(s.forest)))
	}
}
