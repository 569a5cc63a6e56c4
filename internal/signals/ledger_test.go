package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetree/pkg/models"
)

func sig(id, desc string) *models.Signal {
	return &models.Signal{ID: id, Description: desc}
}

func TestAttachKeepsOrder(t *testing.T) {
	l := NewLedger(nil)
	l.Attach("r1", sig("s1", "first"))
	l.Attach("r1", sig("s2", "second"))
	l.Attach("r2", sig("s3", "other record"))

	got := l.For("r1")
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "s2", got[1].ID)
	assert.Equal(t, "r1", got[0].SourceRecordID)
	assert.Len(t, l.For("r2"), 1)
	assert.Equal(t, 3, l.Len())
}

func TestAttachSameIDOverwritesInPlace(t *testing.T) {
	l := NewLedger(nil)
	l.Attach("r1", sig("s1", "first"))
	l.Attach("r1", sig("s2", "second"))
	l.Attach("r1", sig("s1", "rewritten"))

	got := l.For("r1")
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "rewritten", got[0].Description)
	assert.Equal(t, "s2", got[1].ID)
}

func TestForReturnsCopies(t *testing.T) {
	l := NewLedger(nil)
	l.Attach("r1", sig("s1", "first"))

	got := l.For("r1")
	got[0].Description = "mutated"
	assert.Equal(t, "first", l.For("r1")[0].Description)

	assert.Nil(t, l.For("missing"))
}

func TestRemoveDropsAllSignalsForRecord(t *testing.T) {
	l := NewLedger(nil)
	l.Attach("r1", sig("s1", "a"))
	l.Attach("r1", sig("s2", "b"))

	assert.True(t, l.Remove("r1"))
	assert.False(t, l.Remove("r1"))
	assert.Nil(t, l.For("r1"))
	assert.Equal(t, 0, l.Len())
}

func TestSnapshotAndReplace(t *testing.T) {
	l := NewLedger(nil)
	l.Attach("r1", sig("s1", "a"))

	snap := l.Snapshot()
	snap["r1"][0].Description = "mutated"
	assert.Equal(t, "a", l.For("r1")[0].Description)

	l.Replace(models.SignalMap{"r9": {sig("s9", "loaded")}})
	assert.Nil(t, l.For("r1"))
	require.Len(t, l.For("r9"), 1)
	assert.ElementsMatch(t, []string{"r9"}, l.Records())
}
