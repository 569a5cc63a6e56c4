package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetree/internal/persist"
	"casetree/internal/tree"
	"casetree/pkg/models"
)

// fakeAdapter is an in-memory persist.Adapter whose external changes are
// triggered by hand, so cross-context scenarios run deterministically.
type fakeAdapter struct {
	mu        sync.Mutex
	forest    models.Forest
	signals   models.SignalMap
	selection string
	saveErr   error

	forestSaves  int
	signalSaves  int
	watchStarted chan struct{}
	external     chan persist.Slot
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		signals:      models.SignalMap{},
		watchStarted: make(chan struct{}),
		external:     make(chan persist.Slot, 8),
	}
}

func (f *fakeAdapter) SaveForest(forest models.Forest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.forest = forest.Clone()
	f.forestSaves++
	return nil
}

func (f *fakeAdapter) LoadForest() (models.Forest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forest == nil {
		return models.Forest{}, nil
	}
	return f.forest.Clone(), nil
}

func (f *fakeAdapter) SaveSignals(m models.SignalMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.signals = m.Clone()
	f.signalSaves++
	return nil
}

func (f *fakeAdapter) LoadSignals() (models.SignalMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signals == nil {
		return models.SignalMap{}, nil
	}
	return f.signals.Clone(), nil
}

func (f *fakeAdapter) SaveSelection(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selection = id
	return nil
}

func (f *fakeAdapter) LoadSelection() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection, nil
}

func (f *fakeAdapter) Watch(ctx context.Context, onChange func(persist.Slot)) error {
	close(f.watchStarted)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case slot := <-f.external:
			onChange(slot)
		}
	}
}

func (f *fakeAdapter) Close() error { return nil }

// overwriteExternally simulates another context rewriting a slot.
func (f *fakeAdapter) overwriteExternally(slot persist.Slot, forest models.Forest, m models.SignalMap) {
	f.mu.Lock()
	if forest != nil {
		f.forest = forest.Clone()
	}
	if m != nil {
		f.signals = m.Clone()
	}
	f.mu.Unlock()
	f.external <- slot
}

func newTestStore(t *testing.T, fake *fakeAdapter) *Store {
	t.Helper()
	s, err := New(fake, Config{CascadeSignals: true})
	require.NoError(t, err)
	return s
}

func folderNode(id, name string) *models.Folder {
	return &models.Folder{ID: id, Name: name}
}

func recordNode(id, name string) *models.Record {
	return &models.Record{ID: id, Name: name, Status: models.StatusOpen, Severity: models.SeverityMedium, CreatedAt: "2026-08-01"}
}

func TestApplyInsertPersistsAndNotifies(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)

	var notified []models.Forest
	unsub := s.Subscribe(func(f models.Forest) { notified = append(notified, f) })
	defer unsub()

	forest, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)
	require.Len(t, forest, 1)

	_, err = s.Apply(Operation{Kind: OpInsert, ParentID: "f1", Node: recordNode("r1", "X")})
	require.NoError(t, err)

	require.Len(t, notified, 2)
	parent := notified[1][0].(*models.Folder)
	assert.True(t, parent.IsOpen)
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "r1", parent.Children[0].NodeID())

	assert.Equal(t, 2, fake.forestSaves)
	persisted, err := fake.LoadForest()
	require.NoError(t, err)
	assert.Equal(t, s.Forest(), persisted)
}

func TestApplyErrorLeavesStateAndSkipsPersist(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)
	savesBefore := fake.forestSaves
	before := s.Forest()

	notifications := 0
	unsub := s.Subscribe(func(models.Forest) { notifications++ })
	defer unsub()

	_, err = s.Apply(Operation{Kind: OpRemove, ID: "ghost"})
	var notFound tree.NotFoundError
	require.ErrorAs(t, err, &notFound)

	assert.Equal(t, before, s.Forest())
	assert.Equal(t, savesBefore, fake.forestSaves)
	assert.Zero(t, notifications)
}

func TestApplyPersistFailureLeavesStateUntouched(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	before := s.Forest()

	fake.saveErr = errors.New("disk full")
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.Error(t, err)
	assert.Equal(t, before, s.Forest())
}

func TestRenameEmptyNameDoesNotPersistOrNotify(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)
	savesBefore := fake.forestSaves

	notifications := 0
	unsub := s.Subscribe(func(models.Forest) { notifications++ })
	defer unsub()

	forest, err := s.Apply(Operation{Kind: OpRename, ID: "f1", NewName: "  "})
	require.NoError(t, err)
	assert.Equal(t, "A", forest[0].NodeName())
	assert.Equal(t, savesBefore, fake.forestSaves)
	assert.Zero(t, notifications)
}

func TestAttachSignalOverwritesByID(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)

	var signalEvents int
	unsub := s.SubscribeSignals(func(models.SignalMap) { signalEvents++ })
	defer unsub()

	require.NoError(t, s.AttachSignal("r1", &models.Signal{ID: "s1", Description: "first"}))
	require.NoError(t, s.AttachSignal("r1", &models.Signal{ID: "s1", Description: "second"}))

	sigs := s.SignalsFor("r1")
	require.Len(t, sigs, 1)
	assert.Equal(t, "second", sigs[0].Description)
	assert.Equal(t, "r1", sigs[0].SourceRecordID)
	assert.Equal(t, 2, signalEvents)
	assert.Equal(t, 2, fake.signalSaves)
}

func TestAttachSignalGeneratesMissingID(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)

	require.NoError(t, s.AttachSignal("r1", &models.Signal{Description: "anon"}))
	sigs := s.SignalsFor("r1")
	require.Len(t, sigs, 1)
	assert.NotEmpty(t, sigs[0].ID)
}

func TestRemoveRecordCascadesSignalsAndSelection(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)
	_, err = s.Apply(Operation{Kind: OpInsert, ParentID: "f1", Node: recordNode("r1", "X")})
	require.NoError(t, err)
	require.NoError(t, s.AttachSignal("r1", &models.Signal{ID: "s1"}))
	require.NoError(t, s.SetSelection("r1"))

	var signalEvents int
	unsubSig := s.SubscribeSignals(func(models.SignalMap) { signalEvents++ })
	defer unsubSig()

	forest, err := s.Apply(Operation{Kind: OpRemove, ID: "f1"})
	require.NoError(t, err)
	assert.Empty(t, forest)
	assert.Nil(t, s.SignalsFor("r1"))
	assert.Equal(t, 1, signalEvents)
	assert.Empty(t, s.Selection())

	persistedSel, err := fake.LoadSelection()
	require.NoError(t, err)
	assert.Empty(t, persistedSel)
}

func TestFindNodeUsesSnapshotSemantics(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)

	node := s.FindNode("f1")
	require.NotNil(t, node)
	node.(*models.Folder).Name = "mutated"
	assert.Equal(t, "A", s.FindNode("f1").NodeName())

	// Cached lookups must not survive a forest swap.
	_, err = s.Apply(Operation{Kind: OpRemove, ID: "f1"})
	require.NoError(t, err)
	assert.Nil(t, s.FindNode("f1"))
}

func TestExternalForestOverwriteReloadsAndNotifies(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)

	notified := make(chan models.Forest, 1)
	unsub := s.Subscribe(func(f models.Forest) { notified <- f })
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	<-fake.watchStarted

	theirs := models.Forest{folderNode("f9", "Written elsewhere")}
	fake.overwriteExternally(persist.SlotForest, theirs, nil)

	select {
	case f := <-notified:
		require.Len(t, f, 1)
		assert.Equal(t, "f9", f[0].NodeID())
	case <-time.After(2 * time.Second):
		t.Fatal("external change did not reach subscribers")
	}

	// Last writer wins: the slot content replaces local state wholesale.
	assert.Equal(t, theirs, s.Forest())
	assert.Nil(t, s.FindNode("f1"))
}

func TestExternalSignalOverwriteReloads(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)
	require.NoError(t, s.AttachSignal("r1", &models.Signal{ID: "s1"}))

	notified := make(chan models.SignalMap, 1)
	unsub := s.SubscribeSignals(func(m models.SignalMap) { notified <- m })
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	<-fake.watchStarted

	theirs := models.SignalMap{"r2": {{ID: "s2", SourceRecordID: "r2"}}}
	fake.overwriteExternally(persist.SlotSignals, nil, theirs)

	select {
	case m := <-notified:
		assert.Contains(t, m, "r2")
	case <-time.After(2 * time.Second):
		t.Fatal("external signal change did not reach subscribers")
	}
	assert.Nil(t, s.SignalsFor("r1"))
	require.Len(t, s.SignalsFor("r2"), 1)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	fake := newFakeAdapter()
	s := newTestStore(t, fake)

	count := 0
	unsub := s.Subscribe(func(models.Forest) { count++ })
	_, err := s.Apply(Operation{Kind: OpInsert, Node: folderNode("f1", "A")})
	require.NoError(t, err)
	unsub()
	_, err = s.Apply(Operation{Kind: OpInsert, Node: folderNode("f2", "B")})
	require.NoError(t, err)

	assert.Equal(t, 1, count)
}

func TestOperationJSONRoundTrip(t *testing.T) {
	op := Operation{Kind: OpInsert, ParentID: "f1", Node: recordNode("r1", "X")}
	data, err := op.MarshalJSON()
	require.NoError(t, err)

	var decoded Operation
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, OpInsert, decoded.Kind)
	assert.Equal(t, "f1", decoded.ParentID)
	require.NotNil(t, decoded.Node)
	assert.Equal(t, "r1", decoded.Node.NodeID())
}

func TestOperationValidate(t *testing.T) {
	assert.Error(t, Operation{Kind: OpInsert}.Validate())
	assert.Error(t, Operation{Kind: OpRename}.Validate())
	assert.Error(t, Operation{Kind: "explode"}.Validate())
	assert.NoError(t, Operation{Kind: OpMove, ID: "x"}.Validate())
}
