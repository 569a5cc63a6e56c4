package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetree/pkg/models"
)

func newTestFileAdapter(t *testing.T) *FileAdapter {
	t.Helper()
	a, err := NewFileAdapter(FileConfig{Dir: t.TempDir(), PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	return a
}

func sampleForest() models.Forest {
	return models.Forest{
		&models.Folder{ID: "f1", Name: "A", IsOpen: true, Children: []models.Node{
			&models.Record{ID: "r1", Name: "X", Status: models.StatusOpen, Severity: models.SeverityMedium, CreatedAt: "2026-08-01"},
		}},
	}
}

func TestFileForestRoundTrip(t *testing.T) {
	a := newTestFileAdapter(t)
	forest := sampleForest()

	require.NoError(t, a.SaveForest(forest))
	loaded, err := a.LoadForest()
	require.NoError(t, err)
	assert.Equal(t, forest, loaded)
}

func TestFileLoadMissingSlotsAreEmpty(t *testing.T) {
	a := newTestFileAdapter(t)

	forest, err := a.LoadForest()
	require.NoError(t, err)
	assert.Empty(t, forest)

	m, err := a.LoadSignals()
	require.NoError(t, err)
	assert.Empty(t, m)

	sel, err := a.LoadSelection()
	require.NoError(t, err)
	assert.Empty(t, sel)
}

func TestFileMalformedForestLoadsAsEmpty(t *testing.T) {
	a := newTestFileAdapter(t)
	path := filepath.Join(a.dir, string(SlotForest)+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	forest, err := a.LoadForest()
	require.NoError(t, err)
	assert.Empty(t, forest)
}

func TestFileSignalsAndSelectionRoundTrip(t *testing.T) {
	a := newTestFileAdapter(t)

	m := models.SignalMap{"r1": {{ID: "s1", SourceRecordID: "r1", Description: "d"}}}
	require.NoError(t, a.SaveSignals(m))
	loaded, err := a.LoadSignals()
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	require.NoError(t, a.SaveSelection("r1"))
	sel, err := a.LoadSelection()
	require.NoError(t, err)
	assert.Equal(t, "r1", sel)
}

func TestFileWatchSeesExternalWriteAndIgnoresOwn(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(FileConfig{Dir: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, a.SaveForest(sampleForest()))

	changes := make(chan Slot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Watch(ctx, func(slot Slot) { changes <- slot })
	}()

	// Our own write must not come back as an external change.
	require.NoError(t, a.SaveForest(models.Forest{}))
	select {
	case slot := <-changes:
		t.Fatalf("own write reported as external change: %s", slot)
	case <-time.After(100 * time.Millisecond):
	}

	// A second context rewriting the slot must be reported.
	other, err := NewFileAdapter(FileConfig{Dir: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, other.SaveForest(sampleForest()))

	select {
	case slot := <-changes:
		assert.Equal(t, SlotForest, slot)
	case <-time.After(2 * time.Second):
		t.Fatal("external change was not detected")
	}

	cancel()
	<-done
}

func TestFileWatchSeesFirstWriteToMissingSlot(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(FileConfig{Dir: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	// Fresh context: the forest slot does not exist yet.
	forest, err := a.LoadForest()
	require.NoError(t, err)
	require.Empty(t, forest)

	changes := make(chan Slot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Watch(ctx, func(slot Slot) { changes <- slot })
	}()

	// Another context creates the slot for the first time; the empty
	// context must still hear about it.
	other, err := NewFileAdapter(FileConfig{Dir: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, other.SaveForest(sampleForest()))

	select {
	case slot := <-changes:
		assert.Equal(t, SlotForest, slot)
	case <-time.After(2 * time.Second):
		t.Fatal("first write to a previously-missing slot was not detected")
	}

	cancel()
	<-done
}

func TestFileWatchSeesExternalSlotDeletion(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(FileConfig{Dir: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, a.SaveForest(sampleForest()))

	changes := make(chan Slot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Watch(ctx, func(slot Slot) { changes <- slot })
	}()

	require.NoError(t, os.Remove(filepath.Join(dir, string(SlotForest)+".json")))

	select {
	case slot := <-changes:
		assert.Equal(t, SlotForest, slot)
	case <-time.After(2 * time.Second):
		t.Fatal("slot deletion was not detected")
	}

	cancel()
	<-done
}

func TestDecodeErrorsAreMalformedState(t *testing.T) {
	_, err := DecodeForest([]byte("]["))
	var malformed MalformedStateError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, SlotForest, malformed.Slot)

	_, err = DecodeSignals([]byte("12"))
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, SlotSignals, malformed.Slot)
}
